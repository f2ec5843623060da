// Package attrschema builds per-model attribute schema snapshots from the
// catalog documents served by the Tandem model data endpoint.
//
// A catalog is a JSON array: a version marker followed by (id, tuple)
// pairs.
//
//	["pdb version dt 3", 101, ["Serial Number", "General", 20, ...], "z9", [...]]
//
// The catalog entries are merged with a fixed table of standard attributes
// and indexed by id, identity hash and (category, name).
package attrschema

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"

	"github.com/autodesk-tandem/tandem-sample-rest/internal/attr"
	"github.com/autodesk-tandem/tandem-sample-rest/internal/dtschema"
)

const versionPrefix = "pdb version dt "

// Skipped is a catalog entry that could not be parsed.
type Skipped struct {
	ID  string `json:"id"`
	Err error  `json:"-"`
}

// MarshalJSON implements json.Marshaler.
func (s Skipped) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ID    string `json:"id"`
		Error string `json:"error"`
	}{s.ID, s.Err.Error()})
}

// Duplicate lists the ids sharing one (category, name) pair, in catalog
// order. A standard attribute hidden by catalog entries comes last, as its
// qualified column. FindAttribute returns the first of them.
type Duplicate struct {
	Category string   `json:"category"`
	Name     string   `json:"name"`
	IDs      []string `json:"ids"`
}

// Option configures New.
type Option func(*options)

type options struct {
	logger    *slog.Logger
	strict    bool
	overrides attr.FormatOverrides
}

// WithLogger sets the logger used for non-fatal catalog problems.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithStrict makes malformed tuples and duplicate (category, name) pairs
// fail construction instead of being logged.
func WithStrict(strict bool) Option {
	return func(o *options) {
		o.strict = strict
	}
}

// WithFormatOverrides sets the unit override lists passed to attr.Parse.
func WithFormatOverrides(fo attr.FormatOverrides) Option {
	return func(o *options) {
		o.overrides = fo
	}
}

// Schema is an immutable snapshot of one model's attributes. All methods
// are safe for concurrent use.
type Schema struct {
	modelID string
	version int

	attrs  []*attr.Definition
	native []*attr.Definition
	byID   map[string]*attr.Definition
	byHash map[string]*attr.Definition

	skipped        []Skipped
	duplicates     []Duplicate
	malformedUUIDs []string
}

// New parses a catalog document for modelID.
func New(modelID string, catalog json.RawMessage, opts ...Option) (*Schema, error) {
	o := options{
		logger:    slog.Default(),
		overrides: attr.DefaultFormatOverrides(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	log := o.logger.With(slog.String("model_id", modelID))

	var items []json.RawMessage
	if err := json.Unmarshal(catalog, &items); err != nil {
		return nil, &SchemaParseError{ModelID: modelID, Reason: "catalog is not an array", Err: err}
	}
	if len(items) == 0 {
		return nil, &SchemaParseError{ModelID: modelID, Reason: "missing version marker"}
	}
	version, err := parseVersion(items[0])
	if err != nil {
		return nil, &SchemaParseError{ModelID: modelID, Reason: "bad version marker", Err: err}
	}
	if len(items)%2 == 0 {
		return nil, &SchemaParseError{ModelID: modelID, Reason: "attribute id without definition"}
	}

	s := &Schema{
		modelID: modelID,
		version: version,
		byID:    make(map[string]*attr.Definition, len(items)/2+len(standard)),
		byHash:  make(map[string]*attr.Definition, len(items)/2+len(standard)),
	}

	type nameKey struct{ category, name string }
	seen := make(map[nameKey]int)

	for i := 1; i < len(items); i += 2 {
		id, err := parseID(items[i])
		if err != nil {
			return nil, &SchemaParseError{ModelID: modelID, Reason: fmt.Sprintf("entry %d", i), Err: err}
		}

		def, err := attr.Parse(id, items[i+1], attr.WithFormatOverrides(o.overrides))
		if err != nil {
			if o.strict {
				return nil, &SchemaParseError{ModelID: modelID, Reason: "invalid attribute", Err: err}
			}
			log.Warn("skipping attribute", slog.String("attr_id", id), slog.Any("error", err))
			s.skipped = append(s.skipped, Skipped{ID: id, Err: err})
			continue
		}

		key := nameKey{def.Category(), def.Name()}
		sameName := false
		if prev, ok := s.byID[id]; ok {
			log.Warn("attribute id repeated, keeping last", slog.String("attr_id", id), slog.String("previous", prev.Name()))
			prevKey := nameKey{prev.Category(), prev.Name()}
			sameName = prevKey == key
			if !sameName {
				if idx := seen[prevKey]; idx < 0 {
					delete(seen, prevKey)
				} else {
					s.duplicates[idx].IDs = slices.DeleteFunc(s.duplicates[idx].IDs, func(x string) bool { return x == id })
				}
			}
			s.attrs = removeDef(s.attrs, prev)
			s.native = removeDef(s.native, prev)
			s.malformedUUIDs = slices.DeleteFunc(s.malformedUUIDs, func(x string) bool { return x == id })
			if s.byHash[prev.Hash()] == prev {
				s.rehash(prev.Hash())
			}
		}

		if !sameName {
			if idx, ok := seen[key]; ok {
				if o.strict {
					return nil, &SchemaParseError{ModelID: modelID, Reason: fmt.Sprintf("duplicate attribute [%s][%s]", key.category, key.name)}
				}
				if idx < 0 {
					first := s.byName(key.category, key.name)
					s.duplicates = append(s.duplicates, Duplicate{Category: key.category, Name: key.name, IDs: []string{first.ID()}})
					idx = len(s.duplicates) - 1
					seen[key] = idx
				}
				s.duplicates[idx].IDs = append(s.duplicates[idx].IDs, id)
				log.Warn("duplicate attribute name", slog.String("attr_id", id),
					slog.String("category", key.category), slog.String("name", key.name))
			} else {
				seen[key] = -1
			}
		}

		s.attrs = append(s.attrs, def)
		s.byID[id] = def
		s.byHash[def.Hash()] = def

		if def.IsNative() {
			if !def.AutoApplies() {
				log.Info("unknown classification, parameter will not auto-apply", slog.String("attr_id", id))
			}
			if !def.UUIDValid() {
				log.Warn("malformed uuid kept verbatim", slog.String("attr_id", id), slog.String("uuid", def.Native().UUID))
				s.malformedUUIDs = append(s.malformedUUIDs, id)
			}
			s.native = append(s.native, def)
		}
	}

	for _, def := range standard {
		if prev, ok := s.byID[def.Column()]; ok {
			log.Warn("catalog attribute shadowed by standard column",
				slog.String("attr_id", prev.ID()), slog.String("column", def.QualifiedColumn()))
		}
		key := nameKey{def.Category(), def.Name()}
		if idx, ok := seen[key]; ok {
			if o.strict {
				return nil, &SchemaParseError{ModelID: modelID, Reason: fmt.Sprintf("attribute [%s][%s] collides with a standard attribute", key.category, key.name)}
			}
			if idx < 0 {
				first := s.byName(key.category, key.name)
				s.duplicates = append(s.duplicates, Duplicate{Category: key.category, Name: key.name, IDs: []string{first.ID()}})
				idx = len(s.duplicates) - 1
				seen[key] = idx
			}
			s.duplicates[idx].IDs = append(s.duplicates[idx].IDs, def.ID())
			log.Warn("catalog attribute hides standard attribute", slog.String("column", def.QualifiedColumn()),
				slog.String("category", key.category), slog.String("name", key.name))
		}
		s.attrs = append(s.attrs, def)
		s.byID[def.Column()] = def
		s.byHash[def.Hash()] = def
	}

	// a repeated id that changed its name can leave a single-id entry behind
	s.duplicates = slices.DeleteFunc(s.duplicates, func(d Duplicate) bool { return len(d.IDs) < 2 })

	return s, nil
}

func parseVersion(raw json.RawMessage) (int, error) {
	var marker string
	if err := json.Unmarshal(raw, &marker); err != nil {
		return 0, err
	}
	rest, ok := strings.CutPrefix(marker, versionPrefix)
	if !ok {
		return 0, fmt.Errorf("%q does not start with %q", marker, versionPrefix)
	}
	v, err := strconv.Atoi(strings.TrimSpace(rest))
	if err != nil {
		return 0, fmt.Errorf("%q: %w", marker, err)
	}
	return v, nil
}

// parseID accepts numeric and string ids and returns their string form.
func parseID(raw json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if s == "" {
			return "", fmt.Errorf("empty attribute id")
		}
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", fmt.Errorf("attribute id %s is neither a number nor a string", raw)
	}
	if i, err := n.Int64(); err == nil {
		return strconv.FormatInt(i, 10), nil
	}
	return n.String(), nil
}

// rehash points hash at the last remaining attribute carrying it.
func (s *Schema) rehash(hash string) {
	delete(s.byHash, hash)
	for _, d := range s.attrs {
		if d.Hash() == hash {
			s.byHash[hash] = d
		}
	}
}

func removeDef(defs []*attr.Definition, d *attr.Definition) []*attr.Definition {
	for i, x := range defs {
		if x == d {
			return append(defs[:i:i], defs[i+1:]...)
		}
	}
	return defs
}

// ModelID is the model the snapshot was built for.
func (s *Schema) ModelID() string { return s.modelID }

// Version is the number in the catalog's version marker.
func (s *Schema) Version() int { return s.version }

// FindAttributeByID looks up a catalog id or a standard column name. A
// missing id is normal and reported with ok == false.
func (s *Schema) FindAttributeByID(id string) (*attr.Definition, bool) {
	d, ok := s.byID[id]
	return d, ok
}

// FindAttributeByQualifiedColumn resolves a "family:column" key from a scan
// result. The family is ignored.
func (s *Schema) FindAttributeByQualifiedColumn(qc string) (*attr.Definition, bool) {
	_, col := dtschema.SplitQualified(qc)
	return s.FindAttributeByID(col)
}

// FindAttributeByHash matches an attribute across models by identity hash.
func (s *Schema) FindAttributeByHash(hash string) (*attr.Definition, bool) {
	d, ok := s.byHash[hash]
	return d, ok
}

// FindAttribute returns the first attribute with the given category and
// name, catalog entries before standard ones.
func (s *Schema) FindAttribute(category, name string) (*attr.Definition, bool) {
	d := s.byName(category, name)
	return d, d != nil
}

func (s *Schema) byName(category, name string) *attr.Definition {
	for _, d := range s.attrs {
		if d.Category() == category && d.Name() == name {
			return d
		}
	}
	return nil
}

// Attributes returns every attribute in lookup order.
func (s *Schema) Attributes() []*attr.Definition {
	return clone(s.attrs)
}

// Native returns the catalog parameters in catalog order.
func (s *Schema) Native() []*attr.Definition {
	return clone(s.native)
}

// ApplicableAttributes returns the native parameters applied automatically
// to elements with the given classification.
func (s *Schema) ApplicableAttributes(classification string) []*attr.Definition {
	var out []*attr.Definition
	for _, d := range s.native {
		if d.AppliesTo(classification) {
			out = append(out, d)
		}
	}
	return out
}

// Skipped lists catalog entries dropped because their tuple was invalid.
func (s *Schema) Skipped() []Skipped {
	return append([]Skipped(nil), s.skipped...)
}

// Duplicates lists (category, name) pairs used by more than one catalog
// attribute, or by a catalog attribute and a standard one.
func (s *Schema) Duplicates() []Duplicate {
	out := make([]Duplicate, len(s.duplicates))
	for i, d := range s.duplicates {
		d.IDs = append([]string(nil), d.IDs...)
		out[i] = d
	}
	return out
}

// MalformedUUIDs lists native parameters whose uuid or group uuid does not
// parse. They are kept and hashed with the uuid text as given.
func (s *Schema) MalformedUUIDs() []string {
	return slices.Clone(s.malformedUUIDs)
}

func clone(defs []*attr.Definition) []*attr.Definition {
	out := make([]*attr.Definition, len(defs))
	copy(out, defs)
	return out
}
