package attr

import (
	"log/slog"
	"math"
	"slices"
)

// Display units the heuristic maps Revit "feet" parameters to.
const (
	UnitFeet                 = "feet"
	UnitFractionalInches     = "fractionalInches"
	UnitFeetFractionalInches = "feetFractionalInches"
)

// Coarse UI value types.
const (
	FormatBoolean = "boolean"
	FormatInteger = "integer"
	FormatNumber  = "number"
)

// maxSafeInteger is the largest integer a float64 holds exactly.
const maxSafeInteger = 1<<53 - 1

// FormatProfile tells presentation code how to render values.
type FormatProfile struct {
	Type        string  `json:"type,omitempty"`
	Unit        string  `json:"unit,omitempty"`
	ScaleFactor float64 `json:"scaleFactor,omitempty"`
}

// FormatOverrides lists parameter names whose "feet" values should be
// displayed as fractional inches. Older schemas carry no formatting
// metadata, so the lists are the only source for it.
type FormatOverrides struct {
	FractionalInches     []string `yaml:"fractional_inches" json:"fractionalInches"`
	FeetFractionalInches []string `yaml:"feet_fractional_inches" json:"feetFractionalInches"`
}

// DefaultFormatOverrides returns the Revit parameters known to use the
// fractional inch formats.
func DefaultFormatOverrides() FormatOverrides {
	return FormatOverrides{
		FractionalInches: []string{
			"Default Thickness",
			"Thickness",
			"Actual Tread Depth",
			"Actual Riser Height",
			"Tread Thickness",
			"Minimum Tread Depth",
			"Maximum Riser Height",
		},
		FeetFractionalInches: []string{
			"Height Offset From Level",
			"Top Offset",
			"Base Offset",
			"Width",
			"Base Offset From Level",
		},
	}
}

func guessFormat(dt DataType, name, unit string, o FormatOverrides) FormatProfile {
	var p FormatProfile
	switch dt {
	case TypeBoolean:
		p.Type = FormatBoolean
	case TypeInteger:
		p.Type = FormatInteger
	case TypeFloat, TypeDouble:
		p.Type = FormatNumber
	}
	p.Unit = unit

	if unit == UnitFeet {
		switch {
		case slices.Contains(o.FractionalInches, name):
			// incoming feet are rendered as inches
			p.Unit = UnitFractionalInches
			p.ScaleFactor = 12
		case slices.Contains(o.FeetFractionalInches, name):
			p.Unit = UnitFeetFractionalInches
		}
	}
	return p
}

// FormatValue converts a stored value into the application value for the
// attribute. Reals are scaled by the profile's scale factor and collapsed
// to int64 when they hold a safe integer. A nil value stays nil, and so does
// a number column whose stored text has no numeric prefix.
func (d *Definition) FormatValue(val any) any {
	if val == nil {
		return nil
	}
	switch d.dataType {
	case TypeInteger:
		n, ok := toNumber(val)
		if !ok {
			slog.Warn("expected integer", slog.String("attr_id", d.id), slog.Any("value", val))
			if i, ok := parseIntPrefix(jsString(val)); ok {
				return i
			}
			return nil
		}
		return collapseInteger(n)
	case TypeFloat, TypeDouble:
		n, ok := toNumber(val)
		if !ok {
			slog.Warn("expected number", slog.String("attr_id", d.id), slog.Any("value", val))
			f := jsParseFloat(val)
			if math.IsNaN(f) || math.IsInf(f, 0) {
				return nil
			}
			return f
		}
		if d.format.ScaleFactor != 0 {
			n *= d.format.ScaleFactor
		}
		return collapseInteger(n)
	default:
		return val
	}
}

// collapseInteger returns n as int64 when it is a safe integer.
func collapseInteger(n float64) any {
	if n == math.Trunc(n) && math.Abs(n) <= maxSafeInteger {
		return int64(n)
	}
	return n
}
