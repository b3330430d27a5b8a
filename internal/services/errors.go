package services

import (
	"errors"
	"fmt"

	"github.com/SAP-F-2025/exercise-service/internal/models"
	"github.com/SAP-F-2025/exercise-service/internal/validator"
)

// Sentinel errors surfaced verbatim to the request boundary
var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrExerciseNotFound   = errors.New("exercise not found")
	ErrWeekNotFound       = errors.New("week not found")
	ErrQuizNotFound       = errors.New("exercise has no quiz")
	ErrAttemptNotFound    = errors.New("attempt not found")
	ErrCourseNotFound     = errors.New("course not found")
	ErrNotEnrolled        = errors.New("student is not enrolled in this course")
	ErrAccessWindowClosed = errors.New("exercise is not currently accepting submissions")
	ErrCooldownActive     = errors.New("retry cooldown has not elapsed")
	ErrQuizNoBatches      = errors.New("quiz has no batches")
)

// PermissionError is returned when a caller acts on a resource they do not own
// without an elevated role.
type PermissionError struct {
	UserID     string
	ResourceID uint
	Resource   string
	Action     string
	Reason     string
}

func NewPermissionError(userID string, resourceID uint, resource, action, reason string) *PermissionError {
	return &PermissionError{
		UserID:     userID,
		ResourceID: resourceID,
		Resource:   resource,
		Action:     action,
		Reason:     reason,
	}
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("user %s cannot %s %s %d: %s", e.UserID, e.Action, e.Resource, e.ResourceID, e.Reason)
}

// InvalidStateError is returned when an operation is illegal for the attempt's
// current status. Callers never coerce state; they surface this instead.
type InvalidStateError struct {
	AttemptID uint
	Status    models.AttemptStatus
	Operation string
}

func NewInvalidStateError(attemptID uint, status models.AttemptStatus, operation string) *InvalidStateError {
	return &InvalidStateError{
		AttemptID: attemptID,
		Status:    status,
		Operation: operation,
	}
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("attempt %d is in state %q, operation %q not allowed", e.AttemptID, e.Status, e.Operation)
}

// ValidationErrors re-exported so callers can errors.As against one package
type ValidationErrors = validator.ValidationErrors
type ValidationError = validator.ValidationError

// NewValidationError builds a single-failure ValidationErrors value
func NewValidationError(field, message string) ValidationErrors {
	return ValidationErrors{{
		Field:   field,
		Message: message,
		Rule:    "business_logic",
	}}
}
