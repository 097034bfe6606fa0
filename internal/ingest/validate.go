// Package ingest turns report-sheet rows into race payloads for the backend:
// it gates scratched rows, builds normalized entries, and sanitizes the
// result right before submission.
package ingest

import (
	"fmt"
	"math"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/race-sync/internal/model"
	"github.com/sells-group/race-sync/internal/normalize"
)

// Row is one report-sheet entry row: raw values and their displayed text,
// indexed by column offset.
type Row struct {
	Values   []any
	Displays []string
}

func (r Row) cell(i int) (any, string) {
	if i < 0 {
		return nil, ""
	}
	var v any
	var d string
	if i < len(r.Values) {
		v = r.Values[i]
	}
	if i < len(r.Displays) {
		d = r.Displays[i]
	}
	return v, d
}

// Builder builds entries with a specific normalizer and column layout.
type Builder struct {
	norm *normalize.Normalizer
	cols model.ColumnMap
}

// NewBuilder creates a builder. A nil normalizer uses the default.
func NewBuilder(n *normalize.Normalizer, cols model.ColumnMap) *Builder {
	if n == nil {
		n = normalize.Default()
	}
	return &Builder{norm: n, cols: cols}
}

// HasValidEntryData reports whether both will-pay columns hold a real
// currency value. Scratched horses carry "SC" or nothing there; the token
// is checked before currency cleaning, so a raw "SC" is not rescued by a
// formatted display.
func (b *Builder) HasValidEntryData(r Row) bool {
	for _, idx := range []int{b.cols.WillPay2, b.cols.WillPay1P3} {
		raw, disp := r.cell(idx)
		if normalize.IsBusinessInvalid(normalize.Token(raw, disp)) {
			return false
		}
		if _, ok := b.norm.Currency(raw, disp); !ok {
			return false
		}
	}
	return true
}

// BuildEntry assembles a normalized entry. The horse number must be an
// integer in 1-16.
func (b *Builder) BuildEntry(r Row) (model.RaceEntry, error) {
	n := b.norm
	h, ok := n.Numeric(r.cell(b.cols.Horse))
	if !ok || h != math.Trunc(h) || h < model.MinHorseNumber || h > model.MaxHorseNumber {
		raw, disp := r.cell(b.cols.Horse)
		return model.RaceEntry{}, eris.Errorf("ingest: invalid horse number %v (%q)", raw, disp)
	}

	num := func(i int) *float64 { return n.NumericPtr(r.cell(i)) }
	cur := func(i int) *string { return normalize.StringPtr(n.Currency(r.cell(i))) }

	e := model.RaceEntry{
		HorseNumber:  int(h),
		Double:       num(b.cols.Double),
		Constant:     num(b.cols.Constant),
		CorrectP3:    num(b.cols.CorrectP3),
		ML:           num(b.cols.ML),
		LiveOdds:     num(b.cols.LiveOdds),
		Action:       num(b.cols.Action),
		DoubleDelta:  num(b.cols.DoubleDelta),
		P3Delta:      num(b.cols.P3Delta),
		XFigure:      num(b.cols.XFigure),
		P3:           normalize.StringPtr(n.P3(r.cell(b.cols.P3))),
		SharpPercent: normalize.StringPtr(n.Percent(r.cell(b.cols.SharpPercent))),
		WillPay2:     cur(b.cols.WillPay2),
		WillPay:      cur(b.cols.WillPay),
		WillPay1P3:   cur(b.cols.WillPay1P3),
		WinPool:      cur(b.cols.WinPool),
		VetoRating:   normalize.StringPtr(n.VetoRating(r.cell(b.cols.VetoRating))),
		RawData:      rawData(r),
	}
	return e, nil
}

// rawData snapshots the row's display tokens, pipe-delimited.
func rawData(r Row) string {
	tokens := make([]string, model.RowWidth)
	for i := range tokens {
		v, d := r.cell(i)
		switch {
		case strings.TrimSpace(d) != "":
			tokens[i] = strings.TrimSpace(d)
		case v != nil:
			tokens[i] = strings.TrimSpace(fmt.Sprint(v))
		}
	}
	return strings.Join(tokens, "|")
}

// HasValidEntryData checks a row with the default normalizer.
func HasValidEntryData(values []any, displays []string, cols model.ColumnMap) bool {
	return NewBuilder(nil, cols).HasValidEntryData(Row{Values: values, Displays: displays})
}

// BuildEntry builds an entry with the default normalizer.
func BuildEntry(values []any, displays []string, cols model.ColumnMap) (model.RaceEntry, error) {
	return NewBuilder(nil, cols).BuildEntry(Row{Values: values, Displays: displays})
}
