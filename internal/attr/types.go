package attr

import (
	"encoding/json"
	"fmt"
	"strings"
)

// DataType is the storage type of an attribute value.
type DataType int

const (
	TypeUnknown DataType = 0

	// numeric
	TypeBoolean DataType = 1
	TypeInteger DataType = 2
	TypeDouble  DataType = 3
	TypeFloat   DataType = 4

	// special
	TypeBLOB  DataType = 10
	TypeDbKey DataType = 11 // link to another element by database id

	// strings
	TypeString            DataType = 20
	TypeLocalizableString DataType = 21
	TypeDateTime          DataType = 22 // ISO 8601
	TypeGeoLocation       DataType = 23 // ISO 6709 Annex H, e.g. "+27.5916+086.5640+8850/"
	TypePosition          DataType = 24 // "x y z w", 2 to 4 components
	TypeURL               DataType = 25
)

var dataTypeNames = map[DataType]string{
	TypeUnknown:           "Unknown",
	TypeBoolean:           "Boolean",
	TypeInteger:           "Integer",
	TypeDouble:            "Double",
	TypeFloat:             "Float",
	TypeBLOB:              "BLOB",
	TypeDbKey:             "DbKey",
	TypeString:            "String",
	TypeLocalizableString: "LocalizableString",
	TypeDateTime:          "DateTime",
	TypeGeoLocation:       "GeoLocation",
	TypePosition:          "Position",
	TypeURL:               "Url",
}

// Valid reports whether t is a known data type.
func (t DataType) Valid() bool {
	_, ok := dataTypeNames[t]
	return ok
}

func (t DataType) String() string {
	if s, ok := dataTypeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("DataType(%d)", int(t))
}

// IsNumeric reports whether values of t are numbers.
func (t DataType) IsNumeric() bool {
	return t == TypeInteger || t == TypeDouble || t == TypeFloat
}

// IsDateTime reports whether values of t are ISO dates.
func (t DataType) IsDateTime() bool {
	return t == TypeDateTime
}

// Flags is the attribute option bitmask.
type Flags int

const (
	FlagHidden    Flags = 1 << 0 // not shown in default property views
	FlagDontIndex Flags = 1 << 1 // unused by Tandem
	// FlagDtHashV2 reuses the DontIndex bit: in DT storage it marks
	// parameters hashed by content rather than by uuid.
	FlagDtHashV2      Flags = 1 << 1
	FlagDirectStorage Flags = 1 << 2 // unused
	FlagReadOnly      Flags = 1 << 3
	FlagDtParam       Flags = 1 << 4 // native catalog parameter
	FlagStable        Flags = 1 << 5 // unused
)

// Has reports whether every bit of f2 is set in f.
func (f Flags) Has(f2 Flags) bool {
	return f&f2 == f2
}

// Context names the kinds of objects an attribute applies to. It may
// combine letters, e.g. "et" applies to elements and types.
type Context string

const (
	ContextElement  Context = "e"
	ContextType     Context = "t"
	ContextSpace    Context = "s"
	ContextFacility Context = "f"
	ContextLogical  Context = "l"
)

// Has reports whether c includes the single-letter context k.
func (c Context) Has(k Context) bool {
	return k != "" && strings.Contains(string(c), string(k))
}

// HashScheme selects how the identity hash is computed. It is fixed when a
// definition is built.
type HashScheme int

const (
	// HashGeneric covers attributes that are not native catalog parameters.
	HashGeneric HashScheme = iota
	// HashLegacy hashes native parameters by uuid.
	HashLegacy
	// HashV2 hashes native parameters by content.
	HashV2
)

func (s HashScheme) String() string {
	switch s {
	case HashLegacy:
		return "legacy"
	case HashV2:
		return "v2"
	default:
		return "generic"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s HashScheme) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *HashScheme) UnmarshalText(text []byte) error {
	switch string(text) {
	case "generic":
		*s = HashGeneric
	case "legacy":
		*s = HashLegacy
	case "v2":
		*s = HashV2
	default:
		return fmt.Errorf("attr: unknown hash scheme %q", text)
	}
	return nil
}

// schemeFor picks the hash variant from the flag bits.
func schemeFor(flags Flags) HashScheme {
	if !flags.Has(FlagDtParam) {
		return HashGeneric
	}
	if flags.Has(FlagDtHashV2) {
		return HashV2
	}
	return HashLegacy
}

// ApplicationFilter holds the classification rules deciding which elements
// a native parameter is applied to automatically.
type ApplicationFilter struct {
	DtClass      []string                   `json:"dtClass,omitempty"`
	MasterFormat []string                   `json:"masterFormat,omitempty"`
	Extra        map[string]json.RawMessage `json:"-"`
}

// Recognized reports whether the filter uses a classification scheme the
// resolver understands.
func (f *ApplicationFilter) Recognized() bool {
	return f != nil && (f.DtClass != nil || f.MasterFormat != nil)
}

// Matches reports whether an element classification falls under the
// filter. Dots are ignored on both sides and codes match by prefix.
func (f *ApplicationFilter) Matches(classification string) bool {
	if f == nil || classification == "" {
		return false
	}
	cls := strings.ReplaceAll(classification, ".", "")
	for _, codes := range [][]string{f.DtClass, f.MasterFormat} {
		for _, code := range codes {
			code = strings.ReplaceAll(code, ".", "")
			if code != "" && strings.HasPrefix(cls, code) {
				return true
			}
		}
	}
	return false
}

// UnmarshalJSON implements json.Unmarshaler. Only the first dot of each
// classification code is dropped, matching how the server stores codes.
func (f *ApplicationFilter) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for key, val := range raw {
		switch key {
		case "dtClass":
			codes, err := decodeCodes(val)
			if err != nil {
				return fmt.Errorf("dtClass: %w", err)
			}
			f.DtClass = codes
		case "masterFormat":
			codes, err := decodeCodes(val)
			if err != nil {
				return fmt.Errorf("masterFormat: %w", err)
			}
			f.MasterFormat = codes
		default:
			if f.Extra == nil {
				f.Extra = make(map[string]json.RawMessage)
			}
			f.Extra[key] = val
		}
	}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (f ApplicationFilter) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(f.Extra)+2)
	for k, v := range f.Extra {
		out[k] = v
	}
	if f.DtClass != nil {
		out["dtClass"] = f.DtClass
	}
	if f.MasterFormat != nil {
		out["masterFormat"] = f.MasterFormat
	}
	return json.Marshal(out)
}

func decodeCodes(data json.RawMessage) ([]string, error) {
	if isNull(data) {
		return nil, nil
	}
	var codes []string
	if err := json.Unmarshal(data, &codes); err != nil {
		return nil, err
	}
	out := make([]string, len(codes))
	for i, c := range codes {
		out[i] = strings.Replace(c, ".", "", 1)
	}
	return out, nil
}
