package attr

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

// ParseInputValue converts external input (grid edits, spreadsheet imports)
// into a value of the given type, ready for a mutation.
//
// Empty input ("" or nil) yields nil for numeric and boolean types, which
// means "clear the property" and is distinct from zero. The one exception
// is "" for a Double without useDefault, which yields NaN. With useDefault,
// unparsable numbers become 0. Without it, Double and Float yield NaN and
// Integer/DbKey return the raw value together with an *InputError.
func ParseInputValue(value any, dt DataType, useDefault bool) (any, error) {
	switch dt {
	case TypeDbKey, TypeInteger:
		if isEmptyInput(value) {
			return nil, nil
		}
		n, ok := parseIntPrefix(jsString(value))
		if useDefault {
			if !ok {
				return int64(0), nil
			}
			return n, nil
		}
		if !ok {
			return value, &InputError{Value: value, Type: dt}
		}
		return n, nil

	case TypeDouble:
		if value == nil {
			return nil, nil
		}
		if value == "" {
			// "" would convert to 0; callers editing without defaults
			// need to tell it apart from a typed zero
			if useDefault {
				return nil, nil
			}
			return math.NaN(), nil
		}
		n := jsNumber(value)
		if useDefault && math.IsNaN(n) {
			return float64(0), nil
		}
		return n, nil

	case TypeFloat:
		if isEmptyInput(value) {
			return nil, nil
		}
		n := jsParseFloat(value)
		if useDefault && math.IsNaN(n) {
			return float64(0), nil
		}
		return n, nil

	case TypeString:
		if !jsTruthy(value) {
			return "", nil
		}
		return jsString(value), nil

	case TypeDateTime:
		if !jsTruthy(value) {
			return "", nil
		}
		return value, nil

	case TypeBoolean:
		if isEmptyInput(value) {
			return nil, nil
		}
		if b, ok := value.(bool); ok {
			if b {
				return int64(1), nil
			}
			return int64(0), nil
		}
		src := "0"
		if jsTruthy(value) {
			src = jsString(value)
		}
		if n, ok := parseIntPrefix(src); ok && n != int64(0) {
			return int64(1), nil
		}
		return int64(0), nil

	default:
		return value, nil
	}
}

func isEmptyInput(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && s == ""
}

// toNumber unwraps Go and JSON numeric values.
func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func jsTruthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != ""
	}
	if n, ok := toNumber(v); ok {
		return n != 0 && !math.IsNaN(n)
	}
	return true
}

// jsString renders v the way script callers stringify input.
func jsString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	}
	if n, ok := toNumber(v); ok {
		return formatNumber(n)
	}
	return fmt.Sprint(v)
}

func formatNumber(n float64) string {
	switch {
	case math.IsNaN(n):
		return "NaN"
	case math.IsInf(n, 1):
		return "Infinity"
	case math.IsInf(n, -1):
		return "-Infinity"
	}
	abs := math.Abs(n)
	if abs == 0 || (abs >= 1e-6 && abs < 1e21) {
		return strconv.FormatFloat(n, 'f', -1, 64)
	}
	s := strconv.FormatFloat(n, 'e', -1, 64)
	// "1e+06" style exponents carry no leading zeros in script output
	mant, exp, _ := strings.Cut(s, "e")
	sign := exp[:1]
	exp = strings.TrimLeft(exp[1:], "0")
	return mant + "e" + sign + exp
}

// parseIntPrefix reads a leading integer (optionally 0x-prefixed hex) and
// ignores trailing garbage. The result is an int64, or the nearest float64
// when the digits do not fit in one.
func parseIntPrefix(s string) (any, bool) {
	s = strings.TrimLeftFunc(s, unicode.IsSpace)
	neg := false
	if s != "" && (s[0] == '+' || s[0] == '-') {
		neg = s[0] == '-'
		s = s[1:]
	}
	base := 10
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		base = 16
		s = s[2:]
	}
	end := 0
	for end < len(s) && digitValue(s[end]) < base {
		end++
	}
	if end == 0 {
		return nil, false
	}
	digits := s[:end]
	if neg {
		digits = "-" + digits
	}
	if n, err := strconv.ParseInt(digits, base, 64); err == nil {
		return n, true
	}
	if base == 10 {
		f, _ := strconv.ParseFloat(digits, 64)
		return f, true
	}
	var f float64
	for i := 0; i < end; i++ {
		f = f*float64(base) + float64(digitValue(s[i]))
	}
	if neg {
		f = -f
	}
	return f, true
}

func digitValue(c byte) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'a' && c <= 'f':
		return int(c-'a') + 10
	case c >= 'A' && c <= 'F':
		return int(c-'A') + 10
	}
	return 99
}

var (
	floatPrefixRe = regexp.MustCompile(`^[+-]?(?:Infinity|[0-9]+\.?[0-9]*(?:[eE][+-]?[0-9]+)?|\.[0-9]+(?:[eE][+-]?[0-9]+)?)`)
	decimalRe     = regexp.MustCompile(`^[+-]?(?:Infinity|[0-9]+\.?[0-9]*(?:[eE][+-]?[0-9]+)?|\.[0-9]+(?:[eE][+-]?[0-9]+)?)$`)
	radixRe       = regexp.MustCompile(`^0([xXoObB])([0-9a-fA-F]+)$`)
)

// jsParseFloat returns the longest decimal prefix of v, or NaN.
func jsParseFloat(v any) float64 {
	s := strings.TrimLeftFunc(jsString(v), unicode.IsSpace)
	m := floatPrefixRe.FindString(s)
	if m == "" {
		return math.NaN()
	}
	return parseDecimal(m)
}

// jsNumber converts the whole of v to a number, or NaN.
func jsNumber(v any) float64 {
	switch x := v.(type) {
	case nil:
		return 0
	case bool:
		if x {
			return 1
		}
		return 0
	}
	if n, ok := toNumber(v); ok {
		return n
	}
	s, ok := v.(string)
	if !ok {
		return math.NaN()
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	if decimalRe.MatchString(s) {
		return parseDecimal(s)
	}
	if m := radixRe.FindStringSubmatch(s); m != nil {
		base := map[byte]int{'x': 16, 'X': 16, 'o': 8, 'O': 8, 'b': 2, 'B': 2}[m[1][0]]
		n, err := strconv.ParseUint(m[2], base, 64)
		if err != nil {
			return math.NaN()
		}
		return float64(n)
	}
	return math.NaN()
}

func parseDecimal(s string) float64 {
	switch strings.TrimLeft(s, "+") {
	case "Infinity":
		return math.Inf(1)
	case "-Infinity":
		return math.Inf(-1)
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return math.NaN()
	}
	// out of range values come back as ±Inf or 0
	return f
}
