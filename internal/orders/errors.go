package orders

import (
	"fmt"
	"strings"

	"github.com/antonio12761/roxy-bar-sub000/internal/models"
)

// Machine-readable reason codes surfaced to callers alongside the
// human-readable message.
const (
	ReasonAuthenticationRequired  = "AUTHENTICATION_REQUIRED"
	ReasonPermissionDenied        = "PERMISSION_DENIED"
	ReasonInvalidTransition       = "INVALID_TRANSITION"
	ReasonInsufficientInventory   = "INSUFFICIENT_INVENTORY"
	ReasonDuplicateSubmission     = "DUPLICATE_SUBMISSION"
	ReasonConflictingMergeRequest = "CONFLICTING_MERGE_REQUEST"
	ReasonNotFound                = "NOT_FOUND"
	ReasonTransactionTimeout      = "TRANSACTION_TIMEOUT"
	ReasonValidationFailed        = "VALIDATION_FAILED"
)

// Coded is implemented by every typed domain error.
type Coded interface {
	error
	Code() string
}

// AuthenticationRequiredError reports a missing or unresolvable actor.
type AuthenticationRequiredError struct{}

func (e *AuthenticationRequiredError) Error() string { return "authentication required" }

// Code returns the machine-readable reason code.
func (e *AuthenticationRequiredError) Code() string { return ReasonAuthenticationRequired }

// PermissionDeniedError reports a role outside the operation's allowed set.
type PermissionDeniedError struct {
	Role models.Role
	Op   string
}

func (e *PermissionDeniedError) Error() string {
	return fmt.Sprintf("role %s is not permitted to %s", e.Role, e.Op)
}

// Code returns the machine-readable reason code.
func (e *PermissionDeniedError) Code() string { return ReasonPermissionDenied }

// InvalidTransitionError reports a status pair outside the transition graph.
// Allowed carries the legal next statuses for UI hinting.
type InvalidTransitionError struct {
	Current models.OrderStatus
	Next    models.OrderStatus
	Allowed []models.OrderStatus
}

func (e *InvalidTransitionError) Error() string {
	allowed := make([]string, len(e.Allowed))
	for i, s := range e.Allowed {
		allowed[i] = string(s)
	}
	return fmt.Sprintf("cannot transition from %s to %s (allowed: %s)",
		e.Current, e.Next, strings.Join(allowed, ", "))
}

// Code returns the machine-readable reason code.
func (e *InvalidTransitionError) Code() string { return ReasonInvalidTransition }

// DuplicateSubmissionError reports a probable accidental resubmission of the
// same item set within the detection window.
type DuplicateSubmissionError struct {
	TableNumber string
}

func (e *DuplicateSubmissionError) Error() string {
	return fmt.Sprintf("an identical order was already submitted for table %s moments ago", e.TableNumber)
}

// Code returns the machine-readable reason code.
func (e *DuplicateSubmissionError) Code() string { return ReasonDuplicateSubmission }

// ValidationError reports malformed mutation input.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Msg)
}

// Code returns the machine-readable reason code.
func (e *ValidationError) Code() string { return ReasonValidationFailed }
