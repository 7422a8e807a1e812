package rules

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"
)

var (
	leadingFloat = regexp.MustCompile(`^[+-]?(Infinity|(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?)`)
	leadingInt   = regexp.MustCompile(`^[+-]?\d+`)
)

// isoLayout is the millisecond ISO-8601 layout used for timestamps
const isoLayout = "2006-01-02T15:04:05.000Z07:00"

// Stringify returns the text form of a cell or condition value. Numbers use
// the shortest decimal form, bools are true/false and nil is "null".
func Stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return strconv.FormatInt(i, 10)
		}
		if f, err := val.Float64(); err == nil {
			return formatFloat(f)
		}
		return val.String()
	case int:
		return strconv.Itoa(val)
	case int32:
		return strconv.FormatInt(int64(val), 10)
	case int64:
		return strconv.FormatInt(val, 10)
	case uint:
		return strconv.FormatUint(uint64(val), 10)
	case uint32:
		return strconv.FormatUint(uint64(val), 10)
	case uint64:
		return strconv.FormatUint(val, 10)
	case float32:
		return formatFloat(float64(val))
	case float64:
		return formatFloat(val)
	case time.Time:
		return val.UTC().Format(isoLayout)
	case []any:
		parts := make([]string, len(val))
		for i, elem := range val {
			if elem != nil {
				parts[i] = Stringify(elem)
			}
		}
		return strings.Join(parts, ",")
	case map[string]any:
		return "[object Object]"
	default:
		return fmt.Sprint(val)
	}
}

func isNumber(v any) bool {
	switch v.(type) {
	case int, int32, int64, uint, uint32, uint64, float32, float64, json.Number:
		return true
	}
	return false
}

func formatFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	case f == 0:
		return "0"
	}

	abs := math.Abs(f)
	if abs >= 1e21 || abs < 1e-6 {
		s := strconv.FormatFloat(f, 'e', -1, 64)
		// 1e-07 -> 1e-7
		mant, exp, _ := strings.Cut(s, "e")
		sign := exp[:1]
		digits := strings.TrimLeft(exp[1:], "0")
		if digits == "" {
			digits = "0"
		}
		return mant + "e" + sign + digits
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// parseLeadingFloat reads the longest numeric prefix of s, ignoring leading
// whitespace, and reports whether one was found
func parseLeadingFloat(s string) (float64, bool) {
	s = strings.TrimLeftFunc(s, unicode.IsSpace)
	m := leadingFloat.FindString(s)
	if m == "" {
		return 0, false
	}
	switch strings.TrimLeft(m, "+-") {
	case "Infinity":
		if strings.HasPrefix(m, "-") {
			return math.Inf(-1), true
		}
		return math.Inf(1), true
	}
	f, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// ParseID reads the leading integer of s. Ids that do not start with a
// number are rejected.
func ParseID(s string) (int64, bool) {
	s = strings.TrimLeftFunc(s, unicode.IsSpace)
	m := leadingInt.FindString(s)
	if m == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(m, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// ParseIDs converts raw ids to integers, dropping the ones that do not parse
func ParseIDs(raw []string) []int64 {
	ids := make([]int64, 0, len(raw))
	for _, r := range raw {
		if id, ok := ParseID(r); ok {
			ids = append(ids, id)
		}
	}
	return ids
}
