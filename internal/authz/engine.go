package authz

import (
	"slices"

	"github.com/task-manager/task-manager/internal/db/models"
)

// Rule is one predicate→decision pair. A rule applies when its predicate holds, and the
// engine then returns its decision without consulting later rules.
type Rule struct {
	Name     string
	Applies  func(Request) bool
	Decision Decision
}

// Engine evaluates a fixed, ordered rule list
type Engine struct {
	rules  []Rule
	policy *Policy
}

// NewEngine creates an engine with DefaultRules
func NewEngine(policy *Policy) *Engine {
	return &Engine{rules: DefaultRules(policy), policy: policy}
}

// Policy returns the capability policy backing the engine
func (e *Engine) Policy() *Policy {
	return e.policy
}

// Evaluate runs the rules in order. When none applies the request is allowed; for updates
// the decision carries the fields the actor may mutate.
func (e *Engine) Evaluate(req Request) Decision {
	for _, r := range e.rules {
		if r.Applies(req) {
			d := r.Decision
			d.Rule = r.Name
			return d
		}
	}

	d := Decision{Effect: Allow}
	if req.Operation == OpUpdate {
		if req.Actor.IsMember() {
			d.MutableFields = []string{models.TaskFieldStatus}
		} else {
			d.MutableFields = slices.Clone(models.TaskMutableFields)
		}
	}
	return d
}

// ListScope returns the query filter that applies the read rules to a listing. Tasks from
// other organizations are never selected, and members only see tasks they take part in.
func (e *Engine) ListScope(actor Actor) models.TaskFilter {
	f := models.TaskFilter{OrganizationID: actor.OrganizationID}
	if actor.IsMember() {
		f.ParticipantID = actor.ID
	}
	return f
}

func needsTarget(op Operation) bool {
	return op == OpRead || op == OpUpdate || op == OpDelete
}

// DefaultRules returns the task access rules in evaluation order
func DefaultRules(policy *Policy) []Rule {
	return []Rule{
		{
			Name: "organization-isolation",
			Applies: func(r Request) bool {
				return needsTarget(r.Operation) &&
					(r.Target == nil || r.Target.OrganizationID != r.Actor.OrganizationID)
			},
			Decision: deny(ReasonCrossOrganization),
		},
		{
			Name: "member-read-participation",
			Applies: func(r Request) bool {
				return r.Operation == OpRead && r.Actor.IsMember() && !r.Target.isParticipant(r.Actor.ID)
			},
			Decision: deny(ReasonNotParticipant),
		},
		{
			Name: "member-update-assignee",
			Applies: func(r Request) bool {
				return r.Operation == OpUpdate && r.Actor.IsMember() && !r.Target.isAssignee(r.Actor.ID)
			},
			Decision: deny(ReasonNotAssignee),
		},
		{
			Name: "member-update-fields",
			Applies: func(r Request) bool {
				if r.Operation != OpUpdate || !r.Actor.IsMember() {
					return false
				}
				for _, f := range r.Fields {
					if f != models.TaskFieldStatus {
						return true
					}
				}
				return false
			},
			Decision: deny(ReasonFieldNotMutable),
		},
		{
			Name: "delete-capability",
			Applies: func(r Request) bool {
				return r.Operation == OpDelete && !policy.Can(r.Actor.Role, CapTaskDelete)
			},
			Decision: deny(ReasonDeleteNotPermitted),
		},
		{
			Name: "assignee-membership",
			Applies: func(r Request) bool {
				if r.Operation != OpCreate && r.Operation != OpUpdate {
					return false
				}
				return r.Assignee != nil &&
					(!r.Assignee.Exists || r.Assignee.OrganizationID != r.Actor.OrganizationID)
			},
			Decision: deny(ReasonInvalidAssignee),
		},
	}
}
