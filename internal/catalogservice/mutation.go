package catalogservice

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/autodesk-tandem/tandem-sample-rest/internal/apperr"
	"github.com/autodesk-tandem/tandem-sample-rest/internal/attr"
	"github.com/autodesk-tandem/tandem-sample-rest/internal/dtschema"
)

// MutationRequest names an attribute, by id or by category and name, and
// the raw input to write to it.
type MutationRequest struct {
	ID         string `json:"id,omitempty"`
	Category   string `json:"category,omitempty"`
	Name       string `json:"name,omitempty"`
	Value      any    `json:"value"`
	UseDefault bool   `json:"useDefault,omitempty"`
}

// BuiltMutation is a coerced value and the insert tuple that writes it.
type BuiltMutation struct {
	Attribute attr.Info         `json:"attribute"`
	Value     any               `json:"value"`
	Mutation  dtschema.Mutation `json:"mutation"`
}

// BuildMutation coerces req.Value to the attribute's data type and returns
// the ["i", family, column, value] tuple of a mutate request. Nothing is
// sent anywhere.
func (s *Service) BuildMutation(_ context.Context, modelID string, req MutationRequest) (*BuiltMutation, error) {
	var (
		d   *attr.Definition
		err error
	)
	switch {
	case req.ID != "":
		d, err = s.FindAttributeByID(modelID, req.ID)
	case req.Name != "":
		d, err = s.FindAttribute(modelID, req.Category, req.Name)
	default:
		return nil, fmt.Errorf("%w: id or category and name are required", apperr.ErrInvalidInput)
	}
	if err != nil {
		return nil, err
	}
	if d.ReadOnly() {
		return nil, fmt.Errorf("%w: attribute %s is read-only", apperr.ErrInvalidInput, d.QualifiedColumn())
	}

	v, err := attr.ParseInputValue(req.Value, d.DataType(), req.UseDefault)
	if err != nil {
		if errors.Is(err, attr.ErrInput) {
			return nil, fmt.Errorf("%w: %w", apperr.ErrInvalidInput, err)
		}
		return nil, err
	}
	if f, ok := v.(float64); ok && (math.IsNaN(f) || math.IsInf(f, 0)) {
		return nil, fmt.Errorf("%w: %v is not a %s", apperr.ErrInvalidInput, req.Value, d.DataType())
	}
	return &BuiltMutation{Attribute: d.Info(), Value: v, Mutation: d.Mutation(v)}, nil
}
