package attrschema

import (
	"github.com/autodesk-tandem/tandem-sample-rest/internal/attr"
	"github.com/autodesk-tandem/tandem-sample-rest/internal/dtschema"
)

// StandardTableVersion is bumped whenever the standard attribute table
// changes, so cached snapshots can tell which table they were merged with.
const StandardTableVersion = 1

// standard is built once and shared read-only by every snapshot.
var standard = []*attr.Definition{
	attr.NewStandard(dtschema.QCLmvDbID, "dbid", "ID", attr.TypeDbKey, attr.FlagHidden|attr.FlagReadOnly),
	attr.NewStandard(dtschema.QCRowKey, "externalId", "ID", attr.TypeString, attr.FlagHidden|attr.FlagReadOnly),
	attr.NewStandard(dtschema.QCName, "Name", "Common", attr.TypeString, 0),
	attr.NewStandard(dtschema.QCUniformatClass, "Assembly Code", "Common", attr.TypeString, 0),
	attr.NewStandard(dtschema.QCClassification, "Classification", "Common", attr.TypeString, 0),
	attr.NewStandard(dtschema.QCLevel, "Level", "Common", attr.TypeString, 0),
	attr.NewStandard(dtschema.QCRooms, "Rooms", "Common", attr.TypeString, 0),
	attr.NewStandard(dtschema.QCCategoryID, "Category Id", "Common", attr.TypeInteger, attr.FlagReadOnly),
	attr.NewStandard(dtschema.QCCategoryName, "Category Name", "Common", attr.TypeString, attr.FlagReadOnly),
	attr.NewStandard(dtschema.QCFamilyPath, "Category/Family", "Common", attr.TypeString, attr.FlagHidden|attr.FlagReadOnly),
	// kept for older models that predate the uniformat column
	attr.NewStandard(dtschema.QCElementFlags, "System-deprecated", "Common", attr.TypeString, 0),
}

// Standard returns the fixed attributes merged into every schema.
func Standard() []*attr.Definition {
	out := make([]*attr.Definition, len(standard))
	copy(out, standard)
	return out
}
