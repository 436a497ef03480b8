// internal/planner/errors.go
package planner

import (
	"errors"
	"fmt"
)

// ErrUnparsableAction means the plan text carried no extractable JSON
// object at all (no brace pair after fence stripping).
var ErrUnparsableAction = errors.New("planner: no JSON object found in plan text")

// MalformedActionError means a JSON candidate was extracted but failed to
// parse. It carries the underlying syntax error and a truncated snippet of
// the offending payload for logs.
type MalformedActionError struct {
	Snippet string
	Err     error
}

func (e *MalformedActionError) Error() string {
	return fmt.Sprintf("planner: malformed action JSON: %v", e.Err)
}

func (e *MalformedActionError) Unwrap() error { return e.Err }
