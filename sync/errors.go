// ABOUTME: Error taxonomy for sync passes
// ABOUTME: Separates item-fatal validation errors, non-fatal resolution failures and consistency violations
package sync

import (
	"errors"
	"fmt"
)

// ValidationError rejects malformed pass input or a malformed external item.
// It is fatal to that item only.
type ValidationError struct {
	ExternalID string
	Field      string
	Reason     string
}

func (e *ValidationError) Error() string {
	if e.ExternalID == "" {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("external record %s: invalid %s: %s", e.ExternalID, e.Field, e.Reason)
}

// ResolutionFailure records that an owner, contact or company lookup failed.
// Callers fall through to the next source instead of failing the item.
type ResolutionFailure struct {
	What string
	ID   string
	Err  error
}

func (e *ResolutionFailure) Error() string {
	return fmt.Sprintf("failed to resolve %s %s: %v", e.What, e.ID, e.Err)
}

func (e *ResolutionFailure) Unwrap() error {
	return e.Err
}

// ConsistencyViolation means a write collided with a unique key other than the
// one the upsert was keyed on.
type ConsistencyViolation struct {
	Entity     string
	ExternalID string
	Err        error
}

func (e *ConsistencyViolation) Error() string {
	return fmt.Sprintf("consistency violation on %s %s: %v", e.Entity, e.ExternalID, e.Err)
}

func (e *ConsistencyViolation) Unwrap() error {
	return e.Err
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
