package attrschema

import (
	"errors"
	"fmt"
)

// ErrSchemaParse is matched by every SchemaParseError.
var ErrSchemaParse = errors.New("attrschema: invalid schema document")

// SchemaParseError reports a catalog document that cannot be turned into a
// schema snapshot.
type SchemaParseError struct {
	ModelID string
	Reason  string
	Err     error
}

func (e *SchemaParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("schema %s: %s: %v", e.ModelID, e.Reason, e.Err)
	}
	return fmt.Sprintf("schema %s: %s", e.ModelID, e.Reason)
}

func (e *SchemaParseError) Unwrap() error        { return e.Err }
func (e *SchemaParseError) Is(target error) bool { return target == ErrSchemaParse }
