package pipeline

import (
	"errors"
	"fmt"
	"strings"
)

// NotFoundError reports a nickname that bottomed out at an unknown tool.
type NotFoundError struct {
	Nickname string
	Name     string
}

func (e *NotFoundError) Error() string {
	if e.Nickname == e.Name {
		return fmt.Sprintf("pipeline: unknown tool %q", e.Name)
	}
	return fmt.Sprintf("pipeline: unknown tool %q (resolving %q)", e.Name, e.Nickname)
}

// AliasCycleError reports an alias chain that leads back to itself.
type AliasCycleError struct {
	Chain []string
}

func (e *AliasCycleError) Error() string {
	return "pipeline: alias cycle " + strings.Join(e.Chain, " -> ")
}

// AliasError is one rejected alias table entry.
type AliasError struct {
	Alias  string
	Reason string
}

func (e *AliasError) Error() string {
	return fmt.Sprintf("pipeline: alias %q: %s", e.Alias, e.Reason)
}

// ValidationError reports pipeline entries that cannot run.
type ValidationError struct {
	Index  int
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("pipeline: tool[%d]: %s", e.Index, e.Reason)
}

// ToolFailedError reports the tool that stopped a run and its result code.
// Err is set when the tool itself returned an error.
type ToolFailedError struct {
	Tool string
	Code int
	Err  error
}

func (e *ToolFailedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("pipeline: tool %q failed with code %d: %v", e.Tool, e.Code, e.Err)
	}
	return fmt.Sprintf("pipeline: tool %q failed with code %d", e.Tool, e.Code)
}

func (e *ToolFailedError) Unwrap() error { return e.Err }

// IsNotFound reports whether err carries a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}
