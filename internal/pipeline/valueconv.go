package pipeline

import (
	"fmt"
	"strconv"
)

// stringifyValue renders a driver-scanned value the way the composite key
// construction needs: the textual representation a human would read from
// the cell, not a Go type dump.
func stringifyValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprintf("%v", t)
	}
}

// floatValue coerces a driver-scanned value to float64, treating anything
// unparsable as the numeric zero (§7's DataError: numeric parse fallback,
// non-fatal).
func floatValue(v any) float64 {
	switch t := v.(type) {
	case nil:
		return 0
	case float64:
		return t
	case int64:
		return float64(t)
	case string:
		f, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return 0
		}
		return f
	case []byte:
		f, err := strconv.ParseFloat(string(t), 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}

// compositeKeyValue joins the stringified column values with "_", per the
// glossary's definition.
func compositeKeyValue(values map[string]any, cols []string) string {
	out := ""
	for i, c := range cols {
		if i > 0 {
			out += "_"
		}
		out += stringifyValue(values[c])
	}
	return out
}

// round6 normalizes to 6-decimal precision, per §4.7 step 4.
func round6(x float64) float64 {
	const scale = 1e6
	return float64(int64(x*scale+signOf(x)*0.5)) / scale
}

func signOf(x float64) float64 {
	if x < 0 {
		return -1
	}
	return 1
}
