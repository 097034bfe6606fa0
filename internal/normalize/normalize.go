// Package normalize converts spreadsheet cell values (raw value plus display
// text) into typed, validated outputs. Absence is reported through a bool;
// no function here returns NaN, an infinity, or a placeholder value.
package normalize

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"
)

// Policy selects which sentinel tokens count as data during resolution.
type Policy int

const (
	// Strict rejects every token in the invalid-token set.
	Strict Policy = iota
	// AllowFalse accepts the literal "FALSE" (a legitimate P3 value).
	AllowFalse
)

// String returns the policy name.
func (p Policy) String() string {
	switch p {
	case Strict:
		return "strict"
	case AllowFalse:
		return "allow_false"
	default:
		return "unknown"
	}
}

// Default ceilings.
const (
	DefaultSafeCeiling    = 1e15
	DefaultNumericCeiling = 1e10
	DefaultP3MaxLen       = 20

	// maxExactInt is the largest integer a float64 represents exactly.
	maxExactInt = 1<<53 - 1
)

// falseToken is the only sentinel a caller may allow-list.
const falseToken = "FALSE"

var invalidTokens = map[string]bool{
	"SC":      true,
	"N/A":     true,
	"#VALUE!": true,
	"#DIV/0!": true,
	"FALSE":   true,
	"":        true,
}

// businessInvalid is the scratch-detection set. Unlike invalidTokens it
// does not contain FALSE.
var businessInvalid = map[string]bool{
	"SC":      true,
	"N/A":     true,
	"#VALUE!": true,
	"#DIV/0!": true,
	"":        true,
}

// IsInvalidToken reports whether s is in the invalid-token set.
func IsInvalidToken(s string) bool {
	return invalidTokens[s]
}

// IsBusinessInvalid reports whether a resolved payout string marks a
// scratched or missing entry.
func IsBusinessInvalid(s string) bool {
	return businessInvalid[strings.TrimSpace(s)]
}

// Token returns the first non-empty candidate of a cell, raw before
// display, without filtering invalid tokens.
func Token(raw any, display string) string {
	for _, c := range []any{raw, display} {
		if s, ok := stringify(c); ok {
			if s = strings.TrimSpace(s); s != "" {
				return s
			}
		}
	}
	return ""
}

// Resolve picks the working string for a cell: raw first, then display.
// Each candidate is stringified and trimmed; empty strings and invalid
// tokens are skipped unless the policy allows them.
func Resolve(raw any, display string, p Policy) (string, bool) {
	for _, c := range []any{raw, display} {
		s, ok := stringify(c)
		if !ok {
			continue
		}
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if invalidTokens[s] && !(p == AllowFalse && s == falseToken) {
			continue
		}
		return s, true
	}
	return "", false
}

func stringify(v any) (string, bool) {
	switch x := v.(type) {
	case nil:
		return "", false
	case string:
		return x, true
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return "", false
		}
		return strconv.FormatFloat(x, 'f', -1, 64), true
	case float32:
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return "", false
		}
		return strconv.FormatFloat(f, 'f', -1, 32), true
	case int:
		return strconv.Itoa(x), true
	case int64:
		return strconv.FormatInt(x, 10), true
	case int32:
		return strconv.FormatInt(int64(x), 10), true
	case uint:
		return strconv.FormatUint(uint64(x), 10), true
	case uint64:
		return strconv.FormatUint(x, 10), true
	case json.Number:
		return x.String(), true
	case bool:
		if x {
			return "TRUE", true
		}
		return falseToken, true
	case fmt.Stringer:
		return x.String(), true
	default:
		return fmt.Sprint(v), true
	}
}

// asFloat converts numeric Go types to float64. Strings are not numbers.
func asFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case int32:
		return float64(x), true
	case uint:
		return float64(x), true
	case uint64:
		return float64(x), true
	case *float64:
		if x == nil {
			return 0, false
		}
		return *x, true
	}
	return 0, false
}

// stripNumeric removes currency symbols, thousands separators, percent
// signs, and all whitespace.
func stripNumeric(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r == '$' || r == ',' || r == '%':
			return -1
		case unicode.IsSpace(r):
			return -1
		}
		return r
	}, s)
}

// parseNumber parses a cleaned numeric string. Accounting negatives
// "(12.50)" are accepted. NaN and infinities are rejected even though
// strconv accepts their spellings.
func parseNumber(s string) (float64, bool) {
	s = stripNumeric(s)
	neg := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		neg = true
		s = s[1 : len(s)-1]
	}
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	if neg {
		f = -f
	}
	return f, true
}
