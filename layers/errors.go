package layers

import (
	"errors"
	"fmt"
)

// local, synchronous. malformed command input never reaches the host.
type ValidationError struct {
	Field string
	Message string
}

func (self *ValidationError) Error() string {
	if self.Field == "" {
		return fmt.Sprintf("validation: %s", self.Message)
	}
	return fmt.Sprintf("validation: %s: %s", self.Field, self.Message)
}

// the host rejected a request. the optimistic local update is left
// as-is; reconciliation or a full resync is the recovery path.
type HostCommandError struct {
	Operation string
	// the host's error payload, when one was returned
	Payload map[string]any
	Err error
}

func (self *HostCommandError) Error() string {
	return fmt.Sprintf("host command %q failed: %s", self.Operation, self.Err)
}

func (self *HostCommandError) Unwrap() error {
	return self.Err
}

func hostCommandError(operation string, err error) error {
	if err == nil {
		return nil
	}
	var hostErr *HostCommandError
	if errors.As(err, &hostErr) {
		return err
	}
	return &HostCommandError{
		Operation: operation,
		Err: err,
	}
}

// a logic defect, not a runtime condition. thrown rather than silently
// ignored.
type InvariantViolation struct {
	Message string
}

func (self *InvariantViolation) Error() string {
	return fmt.Sprintf("invariant violation: %s", self.Message)
}
