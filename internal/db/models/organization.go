// Package models - organization.go defines the Organization model. Organizations form a
// tree through ParentID; a nil ParentID marks a root tenant.
package models

import "time"

// Organization represents a tenant, optionally nested under a parent organization
type Organization struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	ParentID  *string   `db:"parent_id" json:"parentId"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// IsRoot reports whether the organization has no parent
func (o *Organization) IsRoot() bool {
	return o.ParentID == nil
}

// OrganizationNode is an organization together with its descendants
type OrganizationNode struct {
	Organization
	Children []*OrganizationNode `json:"children"`
}

// BuildOrganizationTree arranges a flat list (the root plus its descendants, in any order)
// into a tree rooted at rootID. Organizations whose parent is not in the list are dropped.
func BuildOrganizationTree(rootID string, orgs []*Organization) *OrganizationNode {
	nodes := make(map[string]*OrganizationNode, len(orgs))
	for _, o := range orgs {
		nodes[o.ID] = &OrganizationNode{Organization: *o, Children: []*OrganizationNode{}}
	}

	root, ok := nodes[rootID]
	if !ok {
		return nil
	}

	for _, o := range orgs {
		if o.ParentID == nil || o.ID == rootID {
			continue
		}
		if parent, ok := nodes[*o.ParentID]; ok {
			parent.Children = append(parent.Children, nodes[o.ID])
		}
	}
	return root
}
