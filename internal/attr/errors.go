package attr

import (
	"errors"
	"fmt"
)

var (
	// ErrParse is matched by every ParseError.
	ErrParse = errors.New("attr: invalid attribute tuple")
	// ErrInput is matched by every InputError.
	ErrInput = errors.New("attr: unparsable input value")
)

// ParseError reports a schema tuple that does not describe a valid
// attribute.
type ParseError struct {
	ID     string
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("attr %s: %s: %v", e.ID, e.Reason, e.Err)
	}
	return fmt.Sprintf("attr %s: %s", e.ID, e.Reason)
}

func (e *ParseError) Unwrap() error        { return e.Err }
func (e *ParseError) Is(target error) bool { return target == ErrParse }

// InputError reports input that could not be converted to the attribute
// type and was returned unparsed.
type InputError struct {
	Value any
	Type  DataType
}

func (e *InputError) Error() string {
	return fmt.Sprintf("attr: cannot parse %v as %s", e.Value, e.Type)
}

func (e *InputError) Is(target error) bool { return target == ErrInput }
