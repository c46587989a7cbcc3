package checks

import (
	"errors"
	"fmt"
)

// ErrRegistrySealed is returned by Register once the registry has been read.
var ErrRegistrySealed = errors.New("check registry is sealed")

type DuplicateCheckError struct {
	ID string
}

func (e *DuplicateCheckError) Error() string {
	return fmt.Sprintf("check %q already registered", e.ID)
}

type InvalidDefinitionError struct {
	ID     string
	Reason string
}

func (e *InvalidDefinitionError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("invalid check definition: %s", e.Reason)
	}
	return fmt.Sprintf("invalid check definition %q: %s", e.ID, e.Reason)
}

// TransientError marks a failure worth retrying, such as throttling or an
// unavailable backend.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	if e.Err == nil {
		return "transient error"
	}
	return fmt.Sprintf("transient: %v", e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// PermissionError marks an authorization failure. It is never retried.
type PermissionError struct {
	Err error
}

func (e *PermissionError) Error() string {
	if e.Err == nil {
		return "permission denied"
	}
	return fmt.Sprintf("permission denied: %v", e.Err)
}

func (e *PermissionError) Unwrap() error { return e.Err }

func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

func Permission(err error) error {
	if err == nil {
		return nil
	}
	return &PermissionError{Err: err}
}

func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

func IsPermission(err error) bool {
	var pe *PermissionError
	return errors.As(err, &pe)
}
