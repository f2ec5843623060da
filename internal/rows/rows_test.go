package rows

import (
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autodesk-tandem/tandem-sample-rest/internal/attrschema"
	"github.com/autodesk-tandem/tandem-sample-rest/internal/dtschema"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func testSchema(t *testing.T) *attrschema.Schema {
	t.Helper()
	s, err := attrschema.New("m1", json.RawMessage(`[
		"pdb version dt 3",
		101, ["Serial Number","General",20,null,"","",0,0,""],
		"z9", ["Installation Date","General",22,null,"","",18,0,"","","","","",null,null,"e"],
		7, ["Thickness","Construction",3,null,"","",0,2,"feet"]
	]`), attrschema.WithLogger(discard))
	require.NoError(t, err)
	return s
}

const scan = `[
	{"version": 1},
	{"k": "AAAAAQ", "n:n": ["Pump 1"], "z:z9": ["2024-01-02", 1700000000000, "2023-01-01", 1600000000000], "r:101": ["SN-1"], "r:7": [0.5], "z:zz": [1]},
	{"k": "AAAAAg", "n:c": [-2001000.0]}
]`

func TestParse(t *testing.T) {
	res, err := Parse([]byte(scan))
	require.NoError(t, err)
	assert.JSONEq(t, `{"version":1}`, string(res.Version))
	require.Len(t, res.Rows, 2)
	assert.Equal(t, "AAAAAQ", res.Rows[0].Key)
	assert.Len(t, res.Rows[0].Columns, 5)
	assert.Equal(t, []any{"Pump 1"}, res.Rows[0].Columns["n:n"])
}

func TestParseErrors(t *testing.T) {
	for _, doc := range []string{`{}`, `[]`, `[1, 2]`, `[1, {"k": 5}]`, `[1, {"n:n": "x"}]`} {
		_, err := Parse([]byte(doc))
		assert.Error(t, err, doc)
	}
}

func TestFormat(t *testing.T) {
	res, err := Parse([]byte(scan))
	require.NoError(t, err)

	out := FormatAll(testSchema(t), res, Options{Logger: discard})
	require.Len(t, out, 2)

	first := out[0]
	assert.Equal(t, "m1", first.ModelID)
	assert.Equal(t, "AAAAAQ", first.ElementID)

	props := map[string]Prop{}
	for _, p := range first.Props {
		props[p.QualifiedColumn] = p
	}
	// the unknown z:zz column is dropped
	assert.Len(t, props, 4)

	name := props["n:n"]
	assert.Equal(t, "Name", name.Name)
	assert.Equal(t, "Pump 1", name.Value)
	assert.Empty(t, name.History)

	date := props["z:z9"]
	assert.Equal(t, "z", date.Family)
	assert.Equal(t, "z9", date.Column)
	assert.Equal(t, "Installation Date", date.Name)
	assert.Equal(t, "2024-01-02", date.Value)
	assert.Equal(t, []HistoryEntry{
		{Value: "2024-01-02", At: 1700000000000},
		{Value: "2023-01-01", At: 1600000000000},
	}, date.History)

	assert.Equal(t, int64(6), props["r:7"].Value)

	assert.Equal(t, int64(-2001000), out[1].Props[0].Value)
}

func TestFormatExcludesFamilies(t *testing.T) {
	res, err := Parse([]byte(scan))
	require.NoError(t, err)

	out := Format(testSchema(t), res.Rows[0], Options{
		Logger:          discard,
		ExcludeFamilies: []dtschema.ColumnFamily{dtschema.FamilySource},
	})
	for _, p := range out.Props {
		assert.NotEqual(t, "r", p.Family)
	}
	assert.Len(t, out.Props, 2)
}

func TestFormatUnparsableNumbers(t *testing.T) {
	s, err := attrschema.New("m2", json.RawMessage(`[
		"pdb version dt 1",
		56, ["Pressure","Mechanical",3,null,"","",0,0,"pascals"],
		57, ["Count","General",2,null,"","",0,0,""]
	]`), attrschema.WithLogger(discard))
	require.NoError(t, err)

	res, err := Parse([]byte(`[{"version":1},{"k":"AAAA","r:56":["n/a", 1700000000000, 3.5, 1600000000000],"r:57":["x"]}]`))
	require.NoError(t, err)

	out := FormatAll(s, res, Options{Logger: discard})
	require.Len(t, out, 1)
	require.Len(t, out[0].Props, 2)
	assert.Nil(t, out[0].Props[0].Value)
	assert.Equal(t, []HistoryEntry{
		{Value: nil, At: 1700000000000},
		{Value: 3.5, At: 1600000000000},
	}, out[0].Props[0].History)
	assert.Nil(t, out[0].Props[1].Value)

	_, err = json.Marshal(out)
	assert.NoError(t, err)
}
