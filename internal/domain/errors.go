package domain

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by stores when no row matches the key.
var ErrNotFound = errors.New("not found")

// ValidationError reports a caller-supplied argument outside the supported set.
type ValidationError struct {
	Field string
	Value string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s %q", e.Field, e.Value)
}

// TransportError wraps a failed remote call.
type TransportError struct {
	Method string
	Code   int
	Err    error
}

func (e *TransportError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("call %s: code %d: %v", e.Method, e.Code, e.Err)
	}
	return fmt.Sprintf("call %s: %v", e.Method, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// MissingReferenceError reports a reference that neither the payload, the
// store nor the remote API could resolve.
type MissingReferenceError struct {
	Ref Ref
}

func (e *MissingReferenceError) Error() string {
	return fmt.Sprintf("missing reference %s", e.Ref)
}

// IntegrityConflictError reports a child pointing at a parent that does not exist.
type IntegrityConflictError struct {
	Entity string
	ID     string
	Parent string
}

func (e *IntegrityConflictError) Error() string {
	return fmt.Sprintf("%s %s references missing %s", e.Entity, e.ID, e.Parent)
}

// MalformedPayloadError reports a payload shape the normalizer cannot parse.
type MalformedPayloadError struct {
	Entity string
	Key    string
	Reason string
}

func (e *MalformedPayloadError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("malformed %s payload: missing %q", e.Entity, e.Key)
	}
	return fmt.Sprintf("malformed %s payload: %q: %s", e.Entity, e.Key, e.Reason)
}
