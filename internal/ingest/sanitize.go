package ingest

import (
	"go.uber.org/zap"

	"github.com/sells-group/race-sync/internal/model"
	"github.com/sells-group/race-sync/internal/normalize"
)

// SanitizeEntry returns a copy of e with every unsafe numeric field
// dropped. String fields pass through. e is not modified.
func SanitizeEntry(e model.RaceEntry) model.RaceEntry {
	out, _ := sanitizeEntry(e, normalize.Default())
	return out
}

func sanitizeEntry(e model.RaceEntry, n *normalize.Normalizer) (model.RaceEntry, int) {
	out := e
	dropped := 0
	for _, f := range out.NumericFields() {
		if *f.Ptr == nil {
			continue
		}
		v := **f.Ptr
		if !n.IsSafe(v) {
			*f.Ptr = nil
			dropped++
			continue
		}
		*f.Ptr = &v
	}
	return out, dropped
}

// SanitizeRaces returns sanitized copies of races. The input is not
// modified.
func SanitizeRaces(races []model.Race) []model.Race {
	return sanitizeRaces(races, normalize.Default())
}

func sanitizeRaces(races []model.Race, n *normalize.Normalizer) []model.Race {
	out := make([]model.Race, len(races))
	dropped := 0
	for i, r := range races {
		c := r
		c.Entries = make([]model.RaceEntry, len(r.Entries))
		for j, e := range r.Entries {
			var d int
			c.Entries[j], d = sanitizeEntry(e, n)
			dropped += d
		}
		out[i] = c
	}
	if dropped > 0 {
		zap.L().Warn("ingest: dropped unsafe numeric fields before submission", zap.Int("fields", dropped))
	}
	return out
}
