package authz

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	"github.com/task-manager/task-manager/internal/db/models"
)

// Capability is an (object, action) pair granted to roles
type Capability struct {
	Object string
	Action string
}

func (c Capability) String() string {
	return c.Object + ":" + c.Action
}

var (
	CapTaskCreate         = Capability{"task", "create"}
	CapTaskList           = Capability{"task", "list"}
	CapTaskRead           = Capability{"task", "read"}
	CapTaskUpdate         = Capability{"task", "update"}
	CapTaskDelete         = Capability{"task", "delete"}
	CapAuditRead          = Capability{"audit", "read"}
	CapOrganizationRead   = Capability{"organization", "read"}
	CapOrganizationCreate = Capability{"organization", "create"}
	CapUserList           = Capability{"user", "list"}
	CapUserCreate         = Capability{"user", "create"}
)

// Roles inherit from the role below them: owner > org_admin > member.
const policyModel = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && r.obj == p.obj && r.act == p.act
`

// DefaultGrants lists the capabilities each role adds on top of the role it inherits
var DefaultGrants = map[models.Role][]Capability{
	models.RoleMember: {
		CapTaskCreate,
		CapTaskList,
		CapTaskRead,
		CapTaskUpdate,
		CapOrganizationRead,
		CapUserList,
	},
	models.RoleOrgAdmin: {
		CapTaskDelete,
		CapAuditRead,
		CapUserCreate,
	},
	models.RoleOwner: {
		CapOrganizationCreate,
	},
}

var roleInheritance = [][2]models.Role{
	{models.RoleOrgAdmin, models.RoleMember},
	{models.RoleOwner, models.RoleOrgAdmin},
}

// Policy answers coarse role capability questions using a casbin enforcer held in memory.
// It is read-only after construction and safe for concurrent use.
type Policy struct {
	enforcer *casbin.Enforcer
}

// NewPolicy builds a Policy from DefaultGrants
func NewPolicy() (*Policy, error) {
	return NewPolicyWithGrants(DefaultGrants)
}

// NewPolicyWithGrants builds a Policy from an explicit grant table
func NewPolicyWithGrants(grants map[models.Role][]Capability) (*Policy, error) {
	m, err := model.NewModelFromString(policyModel)
	if err != nil {
		return nil, fmt.Errorf("authz: failed to parse policy model: %w", err)
	}
	enforcer, err := casbin.NewEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("authz: failed to initialize enforcer: %w", err)
	}

	for role, caps := range grants {
		for _, c := range caps {
			if _, err := enforcer.AddPolicy(string(role), c.Object, c.Action); err != nil {
				return nil, fmt.Errorf("authz: failed to add policy %s %s: %w", role, c, err)
			}
		}
	}
	for _, pair := range roleInheritance {
		if _, err := enforcer.AddGroupingPolicy(string(pair[0]), string(pair[1])); err != nil {
			return nil, fmt.Errorf("authz: failed to add role inheritance %s -> %s: %w", pair[0], pair[1], err)
		}
	}
	return &Policy{enforcer: enforcer}, nil
}

// MustPolicy is like NewPolicy but panics on error
func MustPolicy() *Policy {
	p, err := NewPolicy()
	if err != nil {
		panic(err)
	}
	return p
}

// Can reports whether role holds the capability. Enforcement errors deny.
func (p *Policy) Can(role models.Role, c Capability) bool {
	ok, err := p.enforcer.Enforce(string(role), c.Object, c.Action)
	if err != nil {
		slog.Error("authz: enforce failed", "role", role, "capability", c.String(), "error", err)
		return false
	}
	return ok
}

// Capabilities returns every capability the role holds, including inherited ones
func (p *Policy) Capabilities(role models.Role) []string {
	out := make([]string, 0)
	seen := make(map[string]bool)
	for _, caps := range DefaultGrants {
		for _, c := range caps {
			if !seen[c.String()] && p.Can(role, c) {
				seen[c.String()] = true
				out = append(out, c.String())
			}
		}
	}
	sort.Strings(out)
	return out
}
