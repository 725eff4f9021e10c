package models

import (
	"strings"
)

// HandoffKey is the storage key of a pending cross-page assignment reference.
const HandoffKey = "selectedAssignment"

// DeepLink is an externally supplied reference to an assignment, either from
// URL query parameters or from a stored handoff entry.
type DeepLink struct {
	AssignmentID    string  `json:"assignmentId" form:"assignmentId" validate:"required"`
	AssignmentTitle string  `json:"assignmentTitle,omitempty" form:"assignmentTitle"`
	Subject         Subject `json:"subject" form:"subject" validate:"required,subject"`
	ViewResult      bool    `json:"viewResult,omitempty" form:"viewResult"`
}

// IsZero reports whether no reference was supplied at all.
func (d *DeepLink) IsZero() bool {
	return d == nil || strings.TrimSpace(d.AssignmentID) == ""
}

// HandoffSource records where a dispatched deep link came from.
type HandoffSource string

const (
	HandoffFromURL     HandoffSource = "url"
	HandoffFromStorage HandoffSource = "storage"
	HandoffFromPush    HandoffSource = "push"
)
