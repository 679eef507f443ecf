package domain

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// ErrDuplicate is returned by stores when an insert violates a uniqueness
// constraint. Callers treat it as "already present".
var ErrDuplicate = errors.New("duplicate key")

// ErrEscalationExhausted is returned when a contested reference did not
// receive a recognised verdict within the allowed number of escalations.
var ErrEscalationExhausted = errors.New("escalation exhausted without a recognised verdict")

// IsDuplicate reports whether err signals a uniqueness violation.
func IsDuplicate(err error) bool {
	return errors.Is(err, ErrDuplicate)
}

// ErrNotFound is returned when a referenced entity does not exist.
type ErrNotFound struct {
	Entity EntityType
	ID     string
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// AmbiguousTypeError is returned when ids submitted for merging do not share a
// single known entity type.
type AmbiguousTypeError struct {
	IDs   []EntityID
	Types []EntityType
}

func (e AmbiguousTypeError) Error() string {
	ids := make([]string, len(e.IDs))
	for i, id := range e.IDs {
		ids[i] = id.String()
	}
	types := make([]string, len(e.Types))
	for i, t := range e.Types {
		types[i] = string(t)
	}
	return fmt.Sprintf("ids [%s] do not share one entity type (found %d: %s)",
		strings.Join(ids, ", "), len(e.Types), strings.Join(types, ", "))
}

// UnsupportedMergeTypeError is returned when merging is requested for an
// entity type without a merge procedure.
type UnsupportedMergeTypeError struct {
	Type EntityType
}

func (e UnsupportedMergeTypeError) Error() string {
	return fmt.Sprintf("merging entities of type %s is not supported", e.Type)
}

// TransientConnectivityError is returned when a storage operation failed on
// connectivity twice in a row, once before and once after reconnecting.
type TransientConnectivityError struct {
	Op  string
	Err error
}

func (e *TransientConnectivityError) Error() string {
	return fmt.Sprintf("%s: storage unreachable after reconnect: %v", e.Op, e.Err)
}

func (e *TransientConnectivityError) Unwrap() error { return e.Err }
