package opts

import (
	"errors"
	"fmt"
)

// ErrNoFileLoader is returned when a File fragment is applied before any
// loader has been registered.
var ErrNoFileLoader = errors.New("opts: no config file loader registered")

// TypeMismatchError reports an override value whose type does not fit the
// existing field.
type TypeMismatchError struct {
	Node     string
	Field    string
	Expected string
	Value    any
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("opts: %s.%s expects %s, got %s (%#v)", e.Node, e.Field, e.Expected, TypeName(e.Value), e.Value)
}

// ConfigFileError reports a configuration file that could not be read or
// parsed.
type ConfigFileError struct {
	Path string
	Err  error
}

func (e *ConfigFileError) Error() string {
	return fmt.Sprintf("opts: config file %s: %v", e.Path, e.Err)
}

func (e *ConfigFileError) Unwrap() error { return e.Err }
