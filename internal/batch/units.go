package batch

import (
	"sort"
	"strings"
	"time"

	"github.com/sells-group/race-sync/internal/model"
)

// TrackUnits returns the upper-cased, de-duplicated track codes in sorted
// order.
func TrackUnits(codes []string) []string {
	seen := make(map[string]struct{}, len(codes))
	out := make([]string, 0, len(codes))
	for _, c := range codes {
		c = strings.ToUpper(strings.TrimSpace(c))
		if c == "" {
			continue
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// DateUnits returns every day from from to to inclusive as yyyy-MM-dd, in
// chronological order. It is empty when to precedes from.
func DateUnits(from, to time.Time) []string {
	from = day(from)
	to = day(to)
	var out []string
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		out = append(out, d.Format(model.ISODateLayout))
	}
	return out
}

// ParseDateUnit parses a unit produced by DateUnits.
func ParseDateUnit(unit string) (time.Time, error) {
	return time.Parse(model.ISODateLayout, unit)
}

func day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
