package normalize

import (
	"math"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var currencyShaped = regexp.MustCompile(`^-?[\d,]*\.?\d+$`)

// Options configures a Normalizer. Zero fields take the package defaults.
type Options struct {
	// SafeCeiling bounds IsSafe. Default 1e15.
	SafeCeiling float64
	// NumericCeiling bounds Numeric after rounding. Default 1e10.
	NumericCeiling float64
	// P3MaxLen truncates non-numeric P3 strings. Default 20.
	P3MaxLen int
}

// Normalizer cleans cell values with a fixed set of ceilings.
type Normalizer struct {
	opts    Options
	printer *message.Printer
}

// New creates a Normalizer, filling unset options with defaults.
func New(opts Options) *Normalizer {
	if opts.SafeCeiling <= 0 {
		opts.SafeCeiling = DefaultSafeCeiling
	}
	if opts.NumericCeiling <= 0 {
		opts.NumericCeiling = DefaultNumericCeiling
	}
	if opts.P3MaxLen <= 0 {
		opts.P3MaxLen = DefaultP3MaxLen
	}
	return &Normalizer{
		opts:    opts,
		printer: message.NewPrinter(language.English),
	}
}

// Options returns the effective options.
func (n *Normalizer) Options() Options {
	return n.opts
}

var std = New(Options{})

// Default returns the package-level Normalizer.
func Default() *Normalizer {
	return std
}

// IsSafeNumber reports whether v is a finite number with |v| <= ceiling and
// within the exactly-representable integer range. A non-positive ceiling
// means DefaultSafeCeiling.
func IsSafeNumber(v any, ceiling float64) bool {
	f, ok := asFloat(v)
	if !ok {
		return false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return false
	}
	if ceiling <= 0 {
		ceiling = DefaultSafeCeiling
	}
	a := math.Abs(f)
	return a <= ceiling && a <= maxExactInt
}

// IsSafe applies IsSafeNumber with the normalizer's ceiling.
func (n *Normalizer) IsSafe(v any) bool {
	return IsSafeNumber(v, n.opts.SafeCeiling)
}

// round2 rounds half away from zero to two places.
func round2(f float64) float64 {
	r, _ := decimal.NewFromFloat(f).Round(2).Float64()
	return r
}

// Numeric returns the cell as a number rounded to 2 decimals. Zero is a
// retained value. Magnitudes above the numeric ceiling are rejected as
// upstream corruption.
func (n *Normalizer) Numeric(raw any, display string) (float64, bool) {
	s, ok := Resolve(raw, display, Strict)
	if !ok {
		return 0, false
	}
	f, ok := parseNumber(s)
	if !ok {
		zap.L().Debug("normalize: non-numeric value", zap.String("value", s))
		return 0, false
	}
	r := round2(f)
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return 0, false
	}
	if math.Abs(r) > n.opts.NumericCeiling {
		zap.L().Warn("normalize: numeric value exceeds ceiling",
			zap.Float64("value", r),
			zap.Float64("ceiling", n.opts.NumericCeiling),
		)
		return 0, false
	}
	return r, true
}

// NumericPtr is Numeric returning nil for absent values.
func (n *Normalizer) NumericPtr(raw any, display string) *float64 {
	f, ok := n.Numeric(raw, display)
	if !ok {
		return nil
	}
	return &f
}

// Currency returns the cell rendered as "$#,##0.00". A currency-shaped
// display value is preferred over the raw value.
func (n *Normalizer) Currency(raw any, display string) (string, bool) {
	d := strings.TrimSpace(display)
	if d != "" && !invalidTokens[d] && (strings.Contains(d, "$") || currencyShaped.MatchString(d)) {
		if f, ok := parseNumber(d); ok && n.IsSafe(f) {
			return n.formatCurrency(f), true
		}
	}
	s, ok := Resolve(raw, display, Strict)
	if !ok {
		return "", false
	}
	f, ok := parseNumber(s)
	if !ok || !n.IsSafe(f) {
		zap.L().Debug("normalize: invalid currency value", zap.String("value", s))
		return "", false
	}
	return n.formatCurrency(f), true
}

func (n *Normalizer) formatCurrency(f float64) string {
	r := round2(f)
	sign := ""
	if r < 0 {
		sign = "-"
		r = -r
	}
	return sign + "$" + n.printer.Sprintf("%.2f", r)
}

// Percent returns the cell as "NN.NN%". A display value carrying "%" wins.
// Otherwise fractions (|x| <= 1) are scaled by 100.
func (n *Normalizer) Percent(raw any, display string) (string, bool) {
	d := strings.TrimSpace(display)
	if strings.Contains(d, "%") && !invalidTokens[d] {
		if f, ok := parseNumber(d); ok && n.IsSafe(f) {
			return decimal.NewFromFloat(f).StringFixed(2) + "%", true
		}
	}
	s, ok := Resolve(raw, display, Strict)
	if !ok {
		return "", false
	}
	hadPercent := strings.Contains(s, "%")
	f, ok := parseNumber(s)
	if !ok || !n.IsSafe(f) {
		zap.L().Debug("normalize: invalid percent value", zap.String("value", s))
		return "", false
	}
	v := decimal.NewFromFloat(f)
	if !hadPercent && math.Abs(f) <= 1 {
		v = v.Mul(decimal.NewFromInt(100))
	}
	return v.StringFixed(2) + "%", true
}

// P3 returns the P3 cell. "FALSE" is a terminal value returned verbatim;
// numbers are formatted to 2 decimals; other strings longer than the
// configured maximum are truncated, never rejected.
func (n *Normalizer) P3(raw any, display string) (string, bool) {
	s, ok := Resolve(raw, display, AllowFalse)
	if !ok {
		return "", false
	}
	if s == falseToken {
		return s, true
	}
	if f, ok := parseNumber(s); ok && n.IsSafe(f) {
		return decimal.NewFromFloat(f).StringFixed(2), true
	}
	if utf8.RuneCountInString(s) > n.opts.P3MaxLen {
		zap.L().Warn("normalize: truncating long P3 value",
			zap.String("value", s),
			zap.Int("max_len", n.opts.P3MaxLen),
		)
		s = string([]rune(s)[:n.opts.P3MaxLen])
	}
	return s, true
}

// VetoRating returns the rating with exactly one decimal place.
func (n *Normalizer) VetoRating(raw any, display string) (string, bool) {
	s, ok := Resolve(raw, display, Strict)
	if !ok {
		return "", false
	}
	f, ok := parseNumber(s)
	if !ok || !n.IsSafe(f) {
		return "", false
	}
	return decimal.NewFromFloat(f).StringFixed(1), true
}

// StringPtr wraps a (value, present) pair as an optional string.
func StringPtr(s string, ok bool) *string {
	if !ok {
		return nil
	}
	return &s
}

// CleanNumericValue cleans with the default normalizer.
func CleanNumericValue(raw any, display string) (float64, bool) {
	return std.Numeric(raw, display)
}

// CleanCurrencyValue cleans with the default normalizer.
func CleanCurrencyValue(raw any, display string) (string, bool) {
	return std.Currency(raw, display)
}

// CleanPercentValue cleans with the default normalizer.
func CleanPercentValue(raw any, display string) (string, bool) {
	return std.Percent(raw, display)
}

// CleanP3Value cleans with the default normalizer.
func CleanP3Value(raw any, display string) (string, bool) {
	return std.P3(raw, display)
}

// CleanVetoRating cleans with the default normalizer.
func CleanVetoRating(raw any, display string) (string, bool) {
	return std.VetoRating(raw, display)
}
