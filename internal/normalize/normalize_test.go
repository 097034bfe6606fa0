package normalize

import (
	"encoding/json"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

var invalidSet = []string{"SC", "N/A", "#VALUE!", "#DIV/0!", ""}

func TestResolve(t *testing.T) {
	tests := []struct {
		name    string
		raw     any
		display string
		policy  Policy
		want    string
		ok      bool
	}{
		{"raw string", "5.5", "", Strict, "5.5", true},
		{"raw wins over display", 4.0, "$4.00", Strict, "4", true},
		{"raw nil falls back", nil, " 7 ", Strict, "7", true},
		{"raw invalid falls back", "SC", "3.2", Strict, "3.2", true},
		{"both invalid", "N/A", "#VALUE!", Strict, "", false},
		{"raw blank", "   ", "", Strict, "", false},
		{"FALSE strict", "FALSE", "", Strict, "", false},
		{"FALSE allowed", "FALSE", "", AllowFalse, "FALSE", true},
		{"bool false allowed", false, "", AllowFalse, "FALSE", true},
		{"bool false strict", false, "x", Strict, "x", true},
		{"lowercase false is data", "false", "", Strict, "false", true},
		{"NaN skipped", math.NaN(), "2", Strict, "2", true},
		{"json number", json.Number("12.5"), "", Strict, "12.5", true},
		{"int", 12, "", Strict, "12", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Resolve(tt.raw, tt.display, tt.policy)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIsSafeNumber(t *testing.T) {
	tests := []struct {
		name    string
		v       any
		ceiling float64
		want    bool
	}{
		{"small float", 12.5, 0, true},
		{"zero", 0.0, 0, true},
		{"negative", -3.0, 0, true},
		{"int", 42, 0, true},
		{"at default ceiling", 1e15, 0, true},
		{"above default ceiling", 1.1e15, 0, false},
		{"above max exact int", 1e16, 1e20, false},
		{"custom ceiling", 101.0, 100, false},
		{"nan", math.NaN(), 0, false},
		{"inf", math.Inf(1), 0, false},
		{"neg inf", math.Inf(-1), 0, false},
		{"string", "12", 0, false},
		{"nil", nil, 0, false},
		{"bool", true, 0, false},
		{"large but under 1e15", 12000000000.0, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsSafeNumber(tt.v, tt.ceiling))
		})
	}
}

func TestCleanNumericValue(t *testing.T) {
	tests := []struct {
		name    string
		raw     any
		display string
		want    float64
		ok      bool
	}{
		{"plain", 5.0, "", 5, true},
		{"rounds half up", 2.345, "", 2.35, true},
		{"rounds negative away from zero", -2.345, "", -2.35, true},
		{"currency string", "$1,234.567", "", 1234.57, true},
		{"whitespace", " 3.5 ", "", 3.5, true},
		{"accounting negative", "(12.50)", "", -12.5, true},
		{"zero retained", 0.0, "", 0, true},
		{"zero string retained", "0", "", 0, true},
		{"display fallback", nil, "7.25", 7.25, true},
		{"ceiling rejected", 12000000000.0, "", 0, false},
		{"below ceiling kept", 999999999.0, "", 999999999, true},
		{"exactly ceiling kept", 1e10, "", 1e10, true},
		{"non numeric", "abc", "", 0, false},
		{"inf spelling", "Inf", "", 0, false},
		{"nan spelling", "NaN", "", 0, false},
		{"nan value", math.NaN(), "", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := CleanNumericValue(tt.raw, tt.display)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.InDelta(t, tt.want, got, 1e-9)
			}
		})
	}

	for _, tok := range invalidSet {
		t.Run("invalid token "+tok, func(t *testing.T) {
			_, ok := CleanNumericValue(tok, "")
			assert.False(t, ok)
		})
	}
}

func TestCleanNumericValue_Idempotent(t *testing.T) {
	for _, in := range []any{1.25, "-3.10", "$19,722", 0.0, "7", 999999999.99} {
		first, ok := CleanNumericValue(in, "")
		if !assert.True(t, ok) {
			continue
		}
		second, ok := CleanNumericValue(first, "")
		assert.True(t, ok)
		assert.Equal(t, first, second)
	}
}

func TestCleanCurrencyValue(t *testing.T) {
	tests := []struct {
		name    string
		raw     any
		display string
		want    string
		ok      bool
	}{
		{"integer raw", 19722, "", "$19,722.00", true},
		{"float raw", 19722.0, "", "$19,722.00", true},
		{"string with symbol", "$1,234.5", "", "$1,234.50", true},
		{"display preferred", 5.1234, "$5.12", "$5.12", true},
		{"display decimal shaped", nil, "1,000.5", "$1,000.50", true},
		{"display not currency falls back to raw", 12.0, "twelve", "$12.00", true},
		{"small", 3.0, "", "$3.00", true},
		{"millions", 1234567.891, "", "$1,234,567.89", true},
		{"negative", -45.5, "", "-$45.50", true},
		{"unparseable display falls back to raw", 7.0, "$ --", "$7.00", true},
		{"bare symbol display falls back to raw", 7.0, "$", "$7.00", true},
		{"unparseable display and nil raw", nil, "$ --", "", false},
		{"SC display and nil raw", nil, "SC", "", false},
		{"non numeric", "abc", "", "", false},
		{"FALSE", "FALSE", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := CleanCurrencyValue(tt.raw, tt.display)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}

	for _, tok := range invalidSet {
		t.Run("invalid token "+tok, func(t *testing.T) {
			_, ok := CleanCurrencyValue(tok, tok)
			assert.False(t, ok)
		})
	}
}

func TestCleanPercentValue(t *testing.T) {
	tests := []struct {
		name    string
		raw     any
		display string
		want    string
		ok      bool
	}{
		{"fraction scaled", 0.1822, "", "18.22%", true},
		{"display wins", 18.22, "18.22%", "18.22%", true},
		{"display normalized", 0.18224, "18.224%", "18.22%", true},
		{"whole number not scaled", 18.22, "", "18.22%", true},
		{"raw string with percent not scaled", "0.5%", "", "0.50%", true},
		{"one scaled", 1.0, "", "100.00%", true},
		{"negative fraction scaled", -0.05, "", "-5.00%", true},
		{"zero", 0.0, "", "0.00%", true},
		{"non numeric", "n/a-ish", "", "", false},
		{"display above safe ceiling", nil, "1e300%", "", false},
		{"unsafe display falls back to raw", 0.25, "1e300%", "25.00%", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := CleanPercentValue(tt.raw, tt.display)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}

	for _, tok := range invalidSet {
		t.Run("invalid token "+tok, func(t *testing.T) {
			_, ok := CleanPercentValue(tok, tok)
			assert.False(t, ok)
		})
	}
}

func TestCleanP3Value(t *testing.T) {
	long := strings.Repeat("X", 25)
	tests := []struct {
		name    string
		raw     any
		display string
		want    string
		ok      bool
	}{
		{"FALSE literal", "FALSE", "", "FALSE", true},
		{"FALSE bool", false, "", "FALSE", true},
		{"numeric", 12.5, "", "12.50", true},
		{"numeric string", "3", "", "3.00", true},
		{"short text", "1-4-7", "", "1-4-7", true},
		{"long text truncated", long, "", long[:20], true},
		{"lowercase false is text", "false", "", "false", true},
		{"SC", "SC", "", "", false},
		{"empty", "", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := CleanP3Value(tt.raw, tt.display)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCleanVetoRating(t *testing.T) {
	tests := []struct {
		raw  any
		want string
		ok   bool
	}{
		{7.25, "7.3", true},
		{"8", "8.0", true},
		{-1.04, "-1.0", true},
		{"high", "", false},
		{"N/A", "", false},
	}
	for _, tt := range tests {
		got, ok := CleanVetoRating(tt.raw, "")
		assert.Equal(t, tt.ok, ok)
		assert.Equal(t, tt.want, got)
	}
}

func TestIsBusinessInvalid(t *testing.T) {
	for _, tok := range invalidSet {
		assert.True(t, IsBusinessInvalid(tok), tok)
	}
	assert.False(t, IsBusinessInvalid("FALSE"))
	assert.False(t, IsBusinessInvalid("$5.00"))
	assert.True(t, IsBusinessInvalid("  "))
}

func TestToken(t *testing.T) {
	assert.Equal(t, "SC", Token(" SC ", "$5.00"))
	assert.Equal(t, "$5.00", Token(nil, "$5.00"))
	assert.Equal(t, "5", Token(5.0, ""))
	assert.Equal(t, "", Token(nil, "  "))
}

func TestNew_Defaults(t *testing.T) {
	n := New(Options{})
	assert.Equal(t, DefaultSafeCeiling, n.Options().SafeCeiling)
	assert.Equal(t, DefaultNumericCeiling, n.Options().NumericCeiling)
	assert.Equal(t, DefaultP3MaxLen, n.Options().P3MaxLen)
}

func TestNormalizer_CustomCeiling(t *testing.T) {
	n := New(Options{NumericCeiling: 100})
	_, ok := n.Numeric(150.0, "")
	assert.False(t, ok)
	v, ok := n.Numeric(99.999, "")
	assert.True(t, ok)
	assert.InDelta(t, 100.0, v, 1e-9)
}

func TestPolicy_String(t *testing.T) {
	assert.Equal(t, "strict", Strict.String())
	assert.Equal(t, "allow_false", AllowFalse.String())
	assert.Equal(t, "unknown", Policy(9).String())
}
