// Package attr parses attribute schema tuples into immutable definitions
// and computes their identity hash.
//
// The identity hash is the join key used to match the same logical
// property across independently fetched schemas, and must equal the hash
// the server computes for the definition.
package attr

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"

	"github.com/google/uuid"

	"github.com/autodesk-tandem/tandem-sample-rest/internal/dtschema"
)

const (
	genericTupleLen = 9
	nativeTupleLen  = 16
)

// Native holds the fields only catalog parameters carry.
type Native struct {
	ForgeSymbol       string             `json:"forgeSymbol"`
	ForgeSpec         string             `json:"forgeSpec"`
	UUID              string             `json:"uuid"`
	GroupUUID         string             `json:"groupUuid"`
	ApplicationFilter *ApplicationFilter `json:"applicationFilter,omitempty"`
	AllowedValues     json.RawMessage    `json:"allowedValues,omitempty"`
	Context           Context            `json:"context"`
}

// Definition is a parsed attribute. It is never modified after Parse or
// NewStandard return, so it can be shared between goroutines and schema
// snapshots.
type Definition struct {
	id              string
	name            string
	category        string
	dataType        DataType
	dataTypeContext string
	description     string
	displayName     string
	flags           Flags
	precision       int
	forgeUnit       string
	native          *Native
	uuidValid       bool

	family dtschema.ColumnFamily
	column string

	scheme HashScheme
	hash   string
	format FormatProfile
}

// Option configures Parse.
type Option func(*parseOptions)

type parseOptions struct {
	overrides FormatOverrides
}

// WithFormatOverrides replaces the default unit override lists.
func WithFormatOverrides(o FormatOverrides) Option {
	return func(p *parseOptions) {
		p.overrides = o
	}
}

// Parse builds a definition from a raw schema tuple:
//
//	[name, category, dataType, dataTypeContext, description, displayName,
//	 flags, precision, forgeUnit,
//	 forgeSymbol, forgeSpec, uuid, groupUuid, applicationFilter, allowedValues, context]
//
// The last seven fields are only present for catalog parameters.
func Parse(id string, tuple json.RawMessage, opts ...Option) (*Definition, error) {
	po := parseOptions{overrides: DefaultFormatOverrides()}
	for _, opt := range opts {
		opt(&po)
	}

	var fields []json.RawMessage
	if err := json.Unmarshal(tuple, &fields); err != nil {
		return nil, &ParseError{ID: id, Reason: "tuple is not an array", Err: err}
	}
	if len(fields) < genericTupleLen || len(fields) > nativeTupleLen {
		return nil, &ParseError{ID: id, Reason: fmt.Sprintf("tuple has %d fields, want %d to %d", len(fields), genericTupleLen, nativeTupleLen)}
	}

	d := &Definition{id: id}
	r := tupleReader{id: id, fields: fields}

	d.name = r.str(0, "name")
	d.category = r.str(1, "category")
	d.dataType = DataType(r.integer(2, "dataType"))
	d.dataTypeContext = r.str(3, "dataTypeContext")
	d.description = r.str(4, "description")
	d.displayName = r.str(5, "displayName")
	d.flags = Flags(r.integer(6, "flags"))
	d.precision = r.integer(7, "precision")
	d.forgeUnit = r.str(8, "forgeUnit")

	if len(fields) > genericTupleLen {
		n := &Native{
			ForgeSymbol: r.str(9, "forgeSymbol"),
			ForgeSpec:   r.str(10, "forgeSpec"),
			UUID:        r.str(11, "uuid"),
			GroupUUID:   r.str(12, "groupUuid"),
			Context:     Context(r.str(15, "context")),
		}
		n.ApplicationFilter = r.filter(13)
		if len(fields) > 14 && !isNull(fields[14]) {
			n.AllowedValues = append(json.RawMessage(nil), fields[14]...)
		}
		if n.Context == "" {
			n.Context = ContextElement
		}
		d.native = n
	}
	if r.err != nil {
		return nil, r.err
	}

	if !d.dataType.Valid() {
		return nil, &ParseError{ID: id, Reason: fmt.Sprintf("unknown data type %d", int(d.dataType))}
	}
	if d.flags < 0 {
		return nil, &ParseError{ID: id, Reason: fmt.Sprintf("negative flags %d", int(d.flags))}
	}

	d.scheme = schemeFor(d.flags)
	if d.scheme != HashGeneric {
		if d.native == nil {
			return nil, &ParseError{ID: id, Reason: "native parameter without catalog fields"}
		}
		if d.scheme == HashLegacy && d.native.UUID == "" {
			return nil, &ParseError{ID: id, Reason: "native parameter without uuid"}
		}
	}
	d.uuidValid = true
	if d.native != nil {
		d.uuidValid = optionalUUID(d.native.UUID) && optionalUUID(d.native.GroupUUID)
	}

	if d.IsNative() {
		d.family = dtschema.FamilyDtProperties
	} else {
		d.family = dtschema.FamilySource
	}
	d.column = id

	d.hash = computeHash(d)
	d.format = guessFormat(d.dataType, d.name, d.forgeUnit, po.overrides)
	return d, nil
}

// NewStandard builds one of the fixed, cross-model attributes stored under
// a well-known qualified column.
func NewStandard(qc, name, category string, dt DataType, flags Flags) *Definition {
	fam, col := dtschema.SplitQualified(qc)
	if fam == "" {
		// the row key has no family; it is carried by the Standard family
		fam = dtschema.FamilyStandard
	}
	d := &Definition{
		id:       qc,
		name:     name,
		category: category,
		dataType: dt,
		flags:    flags &^ FlagDtParam,
		family:   fam,
		column:   col,
		scheme:   HashGeneric,

		uuidValid: true,
	}
	d.hash = computeHash(d)
	d.format = guessFormat(dt, name, "", DefaultFormatOverrides())
	return d
}

// computeHash must stay in sync with the server-side computation.
func computeHash(d *Definition) string {
	dt := strconv.Itoa(int(d.dataType))
	switch d.scheme {
	case HashV2:
		return string(dtschema.FamilyDtProperties) + "[" + d.category + "][" + d.name + "][" + dt + "]"
	case HashLegacy:
		return "[" + d.native.UUID + "][" + dt + "]"
	default:
		ctx := ""
		if d.forgeUnit == "" {
			ctx = d.dataTypeContext
		}
		return "[" + d.category + "][" + d.name + "][" + d.forgeUnit + "][" + ctx + "]"
	}
}

// optionalUUID accepts an absent uuid or one that parses.
func optionalUUID(s string) bool {
	if s == "" {
		return true
	}
	_, err := uuid.Parse(s)
	return err == nil
}

// ID is the raw attribute id: a compact per-model id for catalog
// attributes, a qualified column for standard ones.
func (d *Definition) ID() string { return d.id }

func (d *Definition) Name() string { return d.name }
func (d *Definition) Category() string { return d.category }
func (d *Definition) DataType() DataType { return d.dataType }
func (d *Definition) DataTypeContext() string { return d.dataTypeContext }
func (d *Definition) Description() string { return d.description }
func (d *Definition) DisplayName() string { return d.displayName }
func (d *Definition) Flags() Flags { return d.flags }
func (d *Definition) Precision() int { return d.precision }

// ForgeUnit is the unit as delivered by the catalog, before display
// overrides. Format().Unit holds the display unit.
func (d *Definition) ForgeUnit() string { return d.forgeUnit }

// Native returns a copy of the catalog-only fields, or nil for generic
// attributes.
func (d *Definition) Native() *Native {
	if d.native == nil {
		return nil
	}
	n := *d.native
	if n.ApplicationFilter != nil {
		f := *n.ApplicationFilter
		f.DtClass = slices.Clone(f.DtClass)
		f.MasterFormat = slices.Clone(f.MasterFormat)
		n.ApplicationFilter = &f
	}
	n.AllowedValues = slices.Clone(n.AllowedValues)
	return &n
}

// HasCatalogFields reports whether the tuple carried the native fields.
func (d *Definition) HasCatalogFields() bool { return d.native != nil }

// UUIDValid reports whether the native uuids that are present parse.
// Malformed uuids are kept verbatim since the legacy hash is computed from
// the raw string.
func (d *Definition) UUIDValid() bool { return d.uuidValid }

// Context is the applicability context; generic attributes report Element.
func (d *Definition) Context() Context {
	if d.native == nil {
		return ContextElement
	}
	return d.native.Context
}

func (d *Definition) Scheme() HashScheme { return d.scheme }
func (d *Definition) Hash() string { return d.hash }
func (d *Definition) Format() FormatProfile { return d.format }
func (d *Definition) IsNative() bool { return d.flags.Has(FlagDtParam) }
func (d *Definition) ReadOnly() bool { return d.flags.Has(FlagReadOnly) }
func (d *Definition) Hidden() bool { return d.flags.Has(FlagHidden) }
func (d *Definition) UsesHashV2() bool { return d.scheme == HashV2 }
func (d *Definition) Family() dtschema.ColumnFamily { return d.family }

// Column is the column name the attribute's values are stored under.
func (d *Definition) Column() string { return d.column }

// QualifiedColumn is the "family:column" key of the attribute in scan
// results and mutations.
func (d *Definition) QualifiedColumn() string {
	return dtschema.Qualify(d.family, d.column)
}

// Mutation builds the property write for value.
func (d *Definition) Mutation(value any) dtschema.Mutation {
	return dtschema.Mutation{Op: dtschema.OpInsert, Family: d.family, Column: d.column, Value: value}
}

// AutoApplies reports whether the parameter carries a classification
// filter the resolver understands.
func (d *Definition) AutoApplies() bool {
	return d.IsNative() && d.native != nil && d.native.ApplicationFilter.Recognized()
}

// AppliesTo reports whether the parameter is applied automatically to an
// element with the given classification.
func (d *Definition) AppliesTo(classification string) bool {
	if !d.AutoApplies() {
		return false
	}
	return d.native.ApplicationFilter.Matches(classification)
}

// Info is a JSON view of a definition.
type Info struct {
	ID              string        `json:"id"`
	Name            string        `json:"name"`
	Category        string        `json:"category"`
	DataType        DataType      `json:"dataType"`
	DataTypeName    string        `json:"dataTypeName"`
	DataTypeContext string        `json:"dataTypeContext,omitempty"`
	Description     string        `json:"description,omitempty"`
	DisplayName     string        `json:"displayName,omitempty"`
	Flags           Flags         `json:"flags"`
	Precision       int           `json:"precision"`
	ForgeUnit       string        `json:"forgeUnit,omitempty"`
	ReadOnly        bool          `json:"readOnly"`
	Hidden          bool          `json:"hidden"`
	Hash            string        `json:"hash"`
	Scheme          HashScheme    `json:"hashScheme"`
	Family          string        `json:"family"`
	Column          string        `json:"column"`
	QualifiedColumn string        `json:"qualifiedColumn"`
	Format          FormatProfile `json:"format"`
	Native          *Native       `json:"native,omitempty"`
	MalformedUUID   bool          `json:"malformedUuid,omitempty"`
}

// Info returns a serializable snapshot of the definition.
func (d *Definition) Info() Info {
	return Info{
		ID:              d.id,
		Name:            d.name,
		Category:        d.category,
		DataType:        d.dataType,
		DataTypeName:    d.dataType.String(),
		DataTypeContext: d.dataTypeContext,
		Description:     d.description,
		DisplayName:     d.displayName,
		Flags:           d.flags,
		Precision:       d.precision,
		ForgeUnit:       d.forgeUnit,
		ReadOnly:        d.ReadOnly(),
		Hidden:          d.Hidden(),
		Hash:            d.hash,
		Scheme:          d.scheme,
		Family:          string(d.family),
		Column:          d.column,
		QualifiedColumn: d.QualifiedColumn(),
		Format:          d.format,
		Native:          d.Native(),
		MalformedUUID:   !d.uuidValid,
	}
}

// MarshalJSON implements json.Marshaler.
func (d *Definition) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Info())
}

// tupleReader decodes positional fields and keeps the first error.
type tupleReader struct {
	id     string
	fields []json.RawMessage
	err    error
}

func (r *tupleReader) fail(idx int, field string, err error) {
	if r.err == nil {
		r.err = &ParseError{ID: r.id, Reason: fmt.Sprintf("field %d (%s)", idx, field), Err: err}
	}
}

// str reads a string slot; null and missing slots read as empty.
func (r *tupleReader) str(idx int, field string) string {
	if idx >= len(r.fields) || isNull(r.fields[idx]) {
		return ""
	}
	var s string
	if err := json.Unmarshal(r.fields[idx], &s); err != nil {
		r.fail(idx, field, err)
		return ""
	}
	return s
}

func (r *tupleReader) integer(idx int, field string) int {
	if idx >= len(r.fields) || isNull(r.fields[idx]) {
		return 0
	}
	var f float64
	if err := json.Unmarshal(r.fields[idx], &f); err != nil {
		r.fail(idx, field, err)
		return 0
	}
	if f != float64(int(f)) {
		r.fail(idx, field, fmt.Errorf("%v is not an integer", f))
		return 0
	}
	return int(f)
}

func (r *tupleReader) filter(idx int) *ApplicationFilter {
	if idx >= len(r.fields) || isNull(r.fields[idx]) {
		return nil
	}
	var f ApplicationFilter
	if err := json.Unmarshal(r.fields[idx], &f); err != nil {
		r.fail(idx, "applicationFilter", err)
		return nil
	}
	return &f
}

func isNull(data json.RawMessage) bool {
	trimmed := bytes.TrimSpace(data)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}
