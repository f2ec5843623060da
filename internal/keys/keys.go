// Package keys converts between short per-model element keys and the
// qualified keys used to reference elements across models.
//
// A qualified key is 24 raw bytes: a 4-byte big-endian element flag
// followed by the 20-byte element id, encoded as URL-safe base64 without
// padding.
package keys

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"github.com/autodesk-tandem/tandem-sample-rest/internal/dtschema"
)

const (
	// FlagSize is the length of the kind prefix.
	FlagSize = 4
	// BodySize is the length of a raw element id.
	BodySize = 20
	// QualifiedSize is the raw length of a qualified key.
	QualifiedSize = FlagSize + BodySize
)

// ErrKeyFormat is matched by every KeyFormatError.
var ErrKeyFormat = errors.New("keys: invalid key format")

// KeyFormatError reports a key that cannot be decoded into the fixed layout.
type KeyFormatError struct {
	Key    string
	Reason string
	Err    error
}

func (e *KeyFormatError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("keys: %s: %q: %v", e.Reason, e.Key, e.Err)
	}
	return fmt.Sprintf("keys: %s: %q", e.Reason, e.Key)
}

func (e *KeyFormatError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrKeyFormat) hold for any KeyFormatError.
func (e *KeyFormatError) Is(target error) bool { return target == ErrKeyFormat }

// MakeURLSafe rewrites standard base64 into the URL-safe form used on the
// wire: '+' becomes '-', '/' becomes '_' and trailing '=' are removed.
func MakeURLSafe(b64 string) string {
	s := strings.NewReplacer("+", "-", "/", "_").Replace(b64)
	return strings.TrimRight(s, "=")
}

// ShortKey encodes a raw element id the way scan results carry it.
func ShortKey(body []byte) string {
	return base64.StdEncoding.EncodeToString(body)
}

// ToQualifiedKey converts a short key into a qualified key. Logical
// elements (family types, levels, documents, streams) are prefixed with
// the FamilyType flag, everything else with SimpleElement.
func ToQualifiedKey(shortKey string, logical bool) (string, error) {
	flags := dtschema.SimpleElement
	if logical {
		flags = dtschema.FamilyType
	}
	return ToQualifiedKeyWithFlags(shortKey, flags)
}

// ToQualifiedKeyWithFlags is ToQualifiedKey with an explicit kind prefix.
func ToQualifiedKeyWithFlags(shortKey string, flags dtschema.ElementFlags) (string, error) {
	body, err := decodeBase64(shortKey)
	if err != nil {
		return "", &KeyFormatError{Key: shortKey, Reason: "decode short key", Err: err}
	}
	if len(body) > BodySize {
		return "", &KeyFormatError{
			Key:    shortKey,
			Reason: fmt.Sprintf("short key decodes to %d bytes, max %d", len(body), BodySize),
		}
	}

	var buf [QualifiedSize]byte
	binary.BigEndian.PutUint32(buf[:FlagSize], uint32(flags))
	copy(buf[FlagSize:], body)

	return MakeURLSafe(base64.StdEncoding.EncodeToString(buf[:])), nil
}

// QualifiedKey is a decoded qualified key.
type QualifiedKey struct {
	Flags dtschema.ElementFlags
	Body  [BodySize]byte
}

// ParseQualifiedKey decodes a qualified key produced by ToQualifiedKey.
func ParseQualifiedKey(q string) (QualifiedKey, error) {
	var out QualifiedKey
	raw, err := decodeBase64(q)
	if err != nil {
		return out, &KeyFormatError{Key: q, Reason: "decode qualified key", Err: err}
	}
	if len(raw) != QualifiedSize {
		return out, &KeyFormatError{
			Key:    q,
			Reason: fmt.Sprintf("qualified key decodes to %d bytes, want %d", len(raw), QualifiedSize),
		}
	}
	out.Flags = dtschema.ElementFlags(binary.BigEndian.Uint32(raw[:FlagSize]))
	copy(out.Body[:], raw[FlagSize:])
	return out, nil
}

// ShortKey returns the per-model key of the element.
func (k QualifiedKey) ShortKey() string {
	return ShortKey(k.Body[:])
}

// IsLogical reports whether the key addresses an element without geometry.
func (k QualifiedKey) IsLogical() bool {
	return k.Flags.IsLogical()
}

// String re-encodes the qualified key.
func (k QualifiedKey) String() string {
	var buf [QualifiedSize]byte
	binary.BigEndian.PutUint32(buf[:FlagSize], uint32(k.Flags))
	copy(buf[FlagSize:], k.Body[:])
	return MakeURLSafe(base64.StdEncoding.EncodeToString(buf[:]))
}

// decodeBase64 accepts the standard and URL-safe alphabets, with or
// without padding. Keys come from several sources that disagree on both.
func decodeBase64(s string) ([]byte, error) {
	s = strings.NewReplacer("-", "+", "_", "/").Replace(strings.TrimSpace(s))
	s = strings.TrimRight(s, "=")
	return base64.RawStdEncoding.DecodeString(s)
}
