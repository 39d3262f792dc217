package authz

import (
	"errors"
	"fmt"
)

// Effect is the outcome of an evaluation
type Effect string

const (
	Allow Effect = "allow"
	Deny  Effect = "deny"
)

// Reason explains a denial
type Reason string

const (
	ReasonNone               Reason = ""
	ReasonCrossOrganization  Reason = "cross_organization"
	ReasonNotParticipant     Reason = "not_participant"
	ReasonNotAssignee        Reason = "not_assignee"
	ReasonFieldNotMutable    Reason = "field_not_mutable"
	ReasonDeleteNotPermitted Reason = "delete_not_permitted"
	ReasonInvalidAssignee    Reason = "invalid_assignee"
)

var (
	// ErrForbidden is returned for every authorization denial except an invalid assignee
	ErrForbidden = errors.New("forbidden")
	// ErrInvalidAssignee is returned when the assignee does not exist or belongs to
	// another organization
	ErrInvalidAssignee = errors.New("invalid assignee")
)

// Decision is the tagged result of evaluating a Request. MutableFields is populated on
// Allow for update requests and lists the fields the actor may change.
type Decision struct {
	Effect        Effect
	Reason        Reason
	Rule          string
	MutableFields []string
}

// Allowed reports whether the decision permits the operation
func (d Decision) Allowed() bool {
	return d.Effect == Allow
}

// Err converts a denial to the matching sentinel error, or nil when allowed
func (d Decision) Err() error {
	if d.Allowed() {
		return nil
	}
	if d.Reason == ReasonInvalidAssignee {
		return ErrInvalidAssignee
	}
	return fmt.Errorf("%w: %s", ErrForbidden, d.Reason)
}

func deny(reason Reason) Decision {
	return Decision{Effect: Deny, Reason: reason}
}
