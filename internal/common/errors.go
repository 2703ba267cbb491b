package common

import "fmt"

// NotFoundError indicates a resource was not found.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s with id '%s' not found", e.Resource, e.ID)
}

// NewNotFoundError creates a new NotFoundError.
func NewNotFoundError(resource, id string) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id}
}

// ValidationError indicates invalid input data.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// NewValidationError creates a new ValidationError.
func NewValidationError(message string) *ValidationError {
	return &ValidationError{Message: message}
}

// UnauthorizedError indicates missing or invalid authentication.
type UnauthorizedError struct {
	Message string
}

func (e *UnauthorizedError) Error() string {
	if e.Message == "" {
		return "unauthorized"
	}
	return e.Message
}

// NewUnauthorizedError creates a new UnauthorizedError.
func NewUnauthorizedError(message string) *UnauthorizedError {
	return &UnauthorizedError{Message: message}
}

// ProviderError indicates an external delivery provider failure.
type ProviderError struct {
	Provider string
	Message  string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s provider error: %s", e.Provider, e.Message)
}

// NewProviderError creates a new ProviderError.
func NewProviderError(provider, message string) *ProviderError {
	return &ProviderError{Provider: provider, Message: message}
}

// PreconditionError indicates a whole-operation precondition failed before
// any state was created (e.g. escalating with no reachable recipients).
type PreconditionError struct {
	Code    string
	Message string
}

func (e *PreconditionError) Error() string {
	return e.Message
}

// NewNoContactsError reports an escalation with no emergency contacts and no
// subject destination to fall back on.
func NewNoContactsError() *PreconditionError {
	return &PreconditionError{
		Code:    "no_contacts",
		Message: "no emergency contacts configured and subject has no destination",
	}
}

// NewSubjectNotFoundError reports an escalation whose subject could not be resolved.
func NewSubjectNotFoundError(subjectID string) *PreconditionError {
	return &PreconditionError{
		Code:    "subject_not_found",
		Message: fmt.Sprintf("subject '%s' could not be resolved", subjectID),
	}
}

// NotRetryableError indicates an explicit retry of a notification that is not
// eligible for retry (not failed, attempts exhausted, or expired).
type NotRetryableError struct {
	NotificationID string
	Reason         string
}

func (e *NotRetryableError) Error() string {
	return fmt.Sprintf("notification '%s' is not retryable: %s", e.NotificationID, e.Reason)
}

// NewNotRetryableError creates a new NotRetryableError.
func NewNotRetryableError(id, reason string) *NotRetryableError {
	return &NotRetryableError{NotificationID: id, Reason: reason}
}
