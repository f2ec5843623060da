// Package rows turns raw element scan results into named, formatted
// properties using a model's attribute schema.
package rows

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"sort"

	"github.com/autodesk-tandem/tandem-sample-rest/internal/attrschema"
	"github.com/autodesk-tandem/tandem-sample-rest/internal/dtschema"
)

// Row is one element of a scan result: its short key and the raw value
// arrays keyed by qualified column.
type Row struct {
	Key     string
	Columns map[string][]any
}

// ScanResult is a decoded scan response.
type ScanResult struct {
	Version json.RawMessage
	Rows    []Row
}

// Parse decodes a scan response: a version entry followed by one object per
// element. Each column maps to [value] or, with history, [value, timestamp,
// value, timestamp, ...].
func Parse(data []byte) (*ScanResult, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("rows: scan result is not an array: %w", err)
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("rows: scan result has no version entry")
	}

	res := &ScanResult{Version: items[0], Rows: make([]Row, 0, len(items)-1)}
	for i, item := range items[1:] {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(item, &obj); err != nil {
			return nil, fmt.Errorf("rows: element %d: %w", i, err)
		}
		row := Row{Columns: make(map[string][]any, len(obj))}
		for qc, raw := range obj {
			if qc == dtschema.QCRowKey {
				if err := json.Unmarshal(raw, &row.Key); err != nil {
					return nil, fmt.Errorf("rows: element %d key: %w", i, err)
				}
				continue
			}
			var vals []any
			if err := json.Unmarshal(raw, &vals); err != nil {
				return nil, fmt.Errorf("rows: element %d column %s: %w", i, qc, err)
			}
			row.Columns[qc] = vals
		}
		res.Rows = append(res.Rows, row)
	}
	return res, nil
}

// HistoryEntry is one timestamped value of a column.
type HistoryEntry struct {
	Value any   `json:"value"`
	At    int64 `json:"at"`
}

// Prop is a resolved property of an element.
type Prop struct {
	Family          string         `json:"colFam"`
	Column          string         `json:"colName"`
	QualifiedColumn string         `json:"qId"`
	Name            string         `json:"name"`
	Category        string         `json:"category"`
	Value           any            `json:"value"`
	History         []HistoryEntry `json:"history,omitempty"`
}

// ElementProps is the formatted view of a row.
type ElementProps struct {
	ModelID   string `json:"modelId"`
	ElementID string `json:"elementId"`
	Props     []Prop `json:"props"`
}

// Options controls formatting.
type Options struct {
	// ExcludeFamilies drops columns of these families, e.g. Source to hide
	// the design file properties.
	ExcludeFamilies []dtschema.ColumnFamily
	Logger          *slog.Logger
}

func (o Options) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

func (o Options) excluded(fam dtschema.ColumnFamily) bool {
	return slices.Contains(o.ExcludeFamilies, fam)
}

// Format resolves every column of row against schema. Columns the schema
// does not know are logged and skipped.
func Format(schema *attrschema.Schema, row Row, opts Options) ElementProps {
	log := opts.logger()
	out := ElementProps{ModelID: schema.ModelID(), ElementID: row.Key, Props: []Prop{}}

	cols := make([]string, 0, len(row.Columns))
	for qc := range row.Columns {
		cols = append(cols, qc)
	}
	sort.Strings(cols)

	for _, qc := range cols {
		def, ok := schema.FindAttributeByQualifiedColumn(qc)
		if !ok {
			log.Warn("unknown property", slog.String("model_id", schema.ModelID()), slog.String("column", qc))
			continue
		}
		fam, col := dtschema.SplitQualified(qc)
		if opts.excluded(fam) || opts.excluded(def.Family()) {
			continue
		}

		vals := row.Columns[qc]
		p := Prop{
			Family:          string(fam),
			Column:          col,
			QualifiedColumn: qc,
			Name:            def.Name(),
			Category:        def.Category(),
		}
		if len(vals) > 0 {
			p.Value = def.FormatValue(vals[0])
		}
		if len(vals) > 1 {
			for i := 0; i+1 < len(vals); i += 2 {
				p.History = append(p.History, HistoryEntry{
					Value: def.FormatValue(vals[i]),
					At:    timestamp(vals[i+1]),
				})
			}
		}
		out.Props = append(out.Props, p)
	}
	return out
}

// FormatAll formats every row of a scan result.
func FormatAll(schema *attrschema.Schema, res *ScanResult, opts Options) []ElementProps {
	out := make([]ElementProps, 0, len(res.Rows))
	for _, row := range res.Rows {
		out = append(out, Format(schema, row, opts))
	}
	return out
}

func timestamp(v any) int64 {
	switch t := v.(type) {
	case float64:
		return int64(t)
	case json.Number:
		n, _ := t.Int64()
		return n
	}
	return 0
}
