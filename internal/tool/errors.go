package tool

import (
	"errors"
	"fmt"

	"google.golang.org/api/googleapi"
)

// UnknownToolError is returned by Dispatch for names not in the registry.
type UnknownToolError struct {
	Name string
}

func (e *UnknownToolError) Error() string {
	return fmt.Sprintf("unknown tool %q", e.Name)
}

// ExternalServiceError wraps a failed Google API call.
type ExternalServiceError struct {
	Operation string
	Status    int
	Cause     error
}

func (e *ExternalServiceError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s failed with status %d: %v", e.Operation, e.Status, e.Cause)
	}

	return fmt.Sprintf("%s failed: %v", e.Operation, e.Cause)
}

func (e *ExternalServiceError) Unwrap() error {
	return e.Cause
}

func external(operation string, err error) *ExternalServiceError {
	e := &ExternalServiceError{Operation: operation, Cause: err}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		e.Status = apiErr.Code
	}

	return e
}

func (e *UnknownToolError) ErrorType() string { return "unknown_tool" }

func (e *ExternalServiceError) ErrorType() string { return "external_service_error" }
