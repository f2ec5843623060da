package catalogservice

import (
	"fmt"

	"github.com/autodesk-tandem/tandem-sample-rest/internal/apperr"
	"github.com/autodesk-tandem/tandem-sample-rest/internal/keys"
)

// DecodedKey is the readable form of a qualified element key.
type DecodedKey struct {
	Key      string `json:"key"`
	ShortKey string `json:"shortKey"`
	Flags    uint32 `json:"flags"`
	Kind     string `json:"kind"`
	Logical  bool   `json:"logical"`
}

// QualifyKeys converts short keys to qualified keys. The whole batch fails
// on the first malformed key.
func QualifyKeys(shortKeys []string, logical bool) ([]string, error) {
	out := make([]string, len(shortKeys))
	for i, k := range shortKeys {
		q, err := keys.ToQualifiedKey(k, logical)
		if err != nil {
			return nil, fmt.Errorf("%w: key %d: %w", apperr.ErrInvalidInput, i, err)
		}
		out[i] = q
	}
	return out, nil
}

// DecodeKeys splits qualified keys into flags and short keys.
func DecodeKeys(qualified []string) ([]DecodedKey, error) {
	out := make([]DecodedKey, len(qualified))
	for i, q := range qualified {
		k, err := keys.ParseQualifiedKey(q)
		if err != nil {
			return nil, fmt.Errorf("%w: key %d: %w", apperr.ErrInvalidInput, i, err)
		}
		out[i] = DecodedKey{
			Key:      q,
			ShortKey: k.ShortKey(),
			Flags:    uint32(k.Flags),
			Kind:     k.Flags.String(),
			Logical:  k.IsLogical(),
		}
	}
	return out, nil
}
