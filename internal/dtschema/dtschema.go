// Package dtschema holds the storage vocabulary shared with the Tandem
// server: column families, column names, element key flags and the
// qualified column strings used as keys in scan results.
//
// The single-character codes are part of the wire format and must match the
// server byte for byte.
package dtschema

import (
	"encoding/json"
	"fmt"
	"strings"
)

// SchemaVersion is the storage schema version these constants describe.
const SchemaVersion = 1

// ColumnFamily is a single-character namespace for a group of columns.
type ColumnFamily string

const (
	FamilyStatus          ColumnFamily = "s"
	FamilyAttributes      ColumnFamily = "p"
	FamilyAttributeHashes ColumnFamily = "h"
	FamilyAccessControl   ColumnFamily = "c"

	FamilyLMV          ColumnFamily = "0"
	FamilyStandard     ColumnFamily = "n"
	FamilyRefs         ColumnFamily = "l"
	FamilyXrefs        ColumnFamily = "x"
	FamilySource       ColumnFamily = "r"
	FamilyDtProperties ColumnFamily = "z"
	FamilyTags         ColumnFamily = "t"

	FamilyUserInfo   ColumnFamily = "u"
	FamilyChangeInfo ColumnFamily = "c"

	FamilyVirtual ColumnFamily = "v"
)

// Column names. The family each one lives in is noted where it is not
// obvious from the name.
const (
	ColFragment     = "f"   // LMV, data table
	ColBoundingBox  = "b"   // LMV, data table
	ColLmvModelRoot = "lmv" // LMV, data table
	ColAecModelData = "aec" // LMV, data table

	ColDocumentID = "docid" // Standard, meta table
	ColForgeURN   = "urn"   // Standard, meta table
	ColVersion    = "v"     // Status

	ColElementFlags    = "a"  // Standard
	ColUniformatClass  = "u"  // Standard
	ColOUniformatClass = "!u" // Standard, override
	ColClassification  = "v"  // Standard (value), Status (scheme)
	ColOClassification = "!v" // Standard, override
	ColName            = "n"  // Standard
	ColOName           = "!n" // Standard, override
	ColSystemClass     = "b"  // Standard, Revit system classification bitmask
	ColOSystemClass    = "!b" // Standard, override
	ColCategoryID      = "c"  // Standard
	ColCategoryName    = "vc" // Virtual
	ColFamilyPath      = "f"  // Standard, family type elements only

	ColParent     = "p"  // Refs
	ColFamilyType = "t"  // Refs
	ColSubFamily  = "s"  // Refs
	ColLmvDbID    = "d"  // Refs
	ColLevel      = "l"  // Refs
	ColOLevel     = "!l" // Refs, override
	ColTopLevel   = "m"  // Refs
	ColRooms      = "r"  // Refs
	ColElements   = "e"  // Xrefs
	ColNext       = "sn" // system downstream ids
	ColPrevious   = "sp" // system upstream ids
	ColUnassigned = "su" // non-directional system ids

	ColUserID     = "i" // UserInfo
	ColClientID   = "c" // UserInfo
	ColUserName   = "n" // UserInfo
	ColChangeType = "t" // ChangeInfo
	ColChangeDesc = "d" // ChangeInfo
)

// MetaTablePrefix is the type-specific prefix of rows in the meta table.
type MetaTablePrefix uint32

const (
	MetaPrefixModel MetaTablePrefix = 0x00000000
	MetaPrefixUser  MetaTablePrefix = 0x80000000
)

// LogTablePrefix is the type-specific key prefix in the time series table.
type LogTablePrefix uint32

const LogPrefixDataMutation LogTablePrefix = 0x00000000

// ChangeType describes an entry in the change log.
type ChangeType string

const (
	ChangeImportBegin ChangeType = "import_begin"
	ChangeImportEnd   ChangeType = "import_end"
	ChangeImportFail  ChangeType = "import_fail"
)

// ElementFlags is the 4-byte kind prefix of a qualified element key.
//
// Elements with geometry have 0x00 in the highest byte. Logical elements
// (no geometry) have a non-zero highest byte.
type ElementFlags uint32

const (
	// physical elements
	SimpleElement   ElementFlags = 0x00000000
	NestedChild     ElementFlags = 0x00000001 // instanced or nested element inside a host
	NestedParent    ElementFlags = 0x00000002 // host family, e.g. casework
	CompositeChild  ElementFlags = 0x00000003 // curtain wall panel or mullion
	CompositeParent ElementFlags = 0x00000004 // curtain wall parent, normally no geometry
	Room            ElementFlags = 0x00000005 // room boundary

	// logical elements
	FamilyType   ElementFlags = 0x01000000
	Level        ElementFlags = 0x01000001
	DocumentRoot ElementFlags = 0x01000002
	Stream       ElementFlags = 0x01000003 // IoT data stream

	AllLogicalMask ElementFlags = 0xff000000

	UnknownElement ElementFlags = 0xffffffff
)

var elementFlagNames = map[ElementFlags]string{
	SimpleElement:   "SimpleElement",
	NestedChild:     "NestedChild",
	NestedParent:    "NestedParent",
	CompositeChild:  "CompositeChild",
	CompositeParent: "CompositeParent",
	Room:            "Room",
	FamilyType:      "FamilyType",
	Level:           "Level",
	DocumentRoot:    "DocumentRoot",
	Stream:          "Stream",
	UnknownElement:  "Unknown",
}

// IsLogical reports whether the flag denotes an element without geometry.
func (f ElementFlags) IsLogical() bool {
	return f != UnknownElement && f&AllLogicalMask != 0
}

func (f ElementFlags) String() string {
	if s, ok := elementFlagNames[f]; ok {
		return s
	}
	return fmt.Sprintf("ElementFlags(0x%08x)", uint32(f))
}

// KeyFlags is a coarse generalization of ElementFlags used to narrow
// table scans.
type KeyFlags uint32

const (
	KeyPhysical KeyFlags = 0x00000000
	KeyLogical  KeyFlags = 0x01000000
)

// Qualify joins a family and a column into a qualified column string.
func Qualify(family ColumnFamily, column string) string {
	return string(family) + ":" + column
}

// SplitQualified splits a qualified column. A string without a family
// separator (the row key "k") yields an empty family.
func SplitQualified(qc string) (ColumnFamily, string) {
	fam, col, ok := strings.Cut(qc, ":")
	if !ok {
		return "", qc
	}
	return ColumnFamily(fam), col
}

// Qualified columns used by queries and the standard attribute table.
var (
	QCParent            = Qualify(FamilyRefs, ColParent)
	QCSubFamily         = Qualify(FamilyRefs, ColSubFamily)
	QCFamilyType        = Qualify(FamilyRefs, ColFamilyType)
	QCLevel             = Qualify(FamilyRefs, ColLevel)
	QCOLevel            = Qualify(FamilyRefs, ColOLevel)
	QCRooms             = Qualify(FamilyRefs, ColRooms)
	QCXRooms            = Qualify(FamilyXrefs, ColRooms)
	QCXElements         = Qualify(FamilyXrefs, ColElements)
	QCName              = Qualify(FamilyStandard, ColName)
	QCOName             = Qualify(FamilyStandard, ColOName)
	QCCategoryID        = Qualify(FamilyStandard, ColCategoryID)
	QCCategoryName      = Qualify(FamilyVirtual, ColCategoryName)
	QCElementFlags      = Qualify(FamilyStandard, ColElementFlags)
	QCSystemClass       = Qualify(FamilyStandard, ColSystemClass)
	QCOSystemClass      = Qualify(FamilyStandard, ColOSystemClass)
	QCFamilyPath        = Qualify(FamilyStandard, ColFamilyPath)
	QCUniformatClass    = Qualify(FamilyStandard, ColUniformatClass)
	QCOUniformatClass   = Qualify(FamilyStandard, ColOUniformatClass)
	QCClassification    = Qualify(FamilyStandard, ColClassification)
	QCOClassification   = Qualify(FamilyStandard, ColOClassification)
	QCLmvDbID           = Qualify(FamilyRefs, ColLmvDbID)
	QCSystemPrev        = Qualify(FamilyRefs, ColPrevious)
	QCSystemNext        = Qualify(FamilyRefs, ColNext)
	QCSystemUnassigned  = Qualify(FamilyRefs, ColUnassigned)
	QCXSystemPrev       = Qualify(FamilyXrefs, ColPrevious)
	QCXSystemNext       = Qualify(FamilyXrefs, ColNext)
	QCXSystemUnassigned = Qualify(FamilyXrefs, ColUnassigned)
)

// QCRowKey is the pseudo column carrying the element key in scan results.
const QCRowKey = "k"

var qcOverrides = map[string]string{
	QCUniformatClass: QCOUniformatClass,
	QCClassification: QCOClassification,
	QCLevel:          QCOLevel,
	QCName:           QCOName,
}

// OverrideFor returns the user override column shadowing qc, if any.
func OverrideFor(qc string) (string, bool) {
	o, ok := qcOverrides[qc]
	return o, ok
}

// OpInsert inserts or replaces a property value.
const OpInsert = "i"

// Mutation is a single property write. It encodes as the wire tuple
// [op, family, column, value].
type Mutation struct {
	Op     string
	Family ColumnFamily
	Column string
	Value  any
}

// MarshalJSON implements json.Marshaler.
func (m Mutation) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{m.Op, string(m.Family), m.Column, m.Value})
}

// UnmarshalJSON implements json.Unmarshaler.
func (m *Mutation) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw) != 4 {
		return fmt.Errorf("dtschema: mutation has %d elements, want 4", len(raw))
	}
	var fam string
	if err := json.Unmarshal(raw[0], &m.Op); err != nil {
		return fmt.Errorf("dtschema: mutation op: %w", err)
	}
	if err := json.Unmarshal(raw[1], &fam); err != nil {
		return fmt.Errorf("dtschema: mutation family: %w", err)
	}
	if err := json.Unmarshal(raw[2], &m.Column); err != nil {
		return fmt.Errorf("dtschema: mutation column: %w", err)
	}
	m.Family = ColumnFamily(fam)
	return json.Unmarshal(raw[3], &m.Value)
}
