package reconcile

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/race-sync/internal/model"
	"github.com/sells-group/race-sync/internal/normalize"
	"github.com/sells-group/race-sync/pkg/raceapi"
)

// Source supplies a day's entries and winners for a track.
// raceapi.Client satisfies it.
type Source interface {
	Entries(ctx context.Context, date time.Time, trackCode string) ([]raceapi.Entry, error)
	Winners(ctx context.Context, date time.Time, trackCode string) ([]raceapi.Winner, error)
}

// DailyResult breaks a daily sync down by table.
type DailyResult struct {
	Entries  Result `json:"entries"`
	Metadata Result `json:"metadata"`
	Winners  Result `json:"winners"`
}

// Total sums the three tables.
func (d DailyResult) Total() Result {
	var r Result
	r.Add(d.Entries)
	r.Add(d.Metadata)
	r.Add(d.Winners)
	return r
}

// SyncDaily fetches entries and winners in parallel and reconciles them
// into the tracking store. Failing to fetch entries aborts the sync;
// failing to fetch winners is recorded and the rest proceeds.
func (e *Engine) SyncDaily(ctx context.Context, src Source, date time.Time) (DailyResult, error) {
	var (
		out       DailyResult
		entries   []raceapi.Entry
		winners   []raceapi.Winner
		winnerErr error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		entries, err = src.Entries(gctx, date, e.cfg.TrackCode)
		if err != nil {
			return eris.Wrapf(err, "reconcile: fetch entries for %s", e.cfg.TrackCode)
		}
		return nil
	})
	g.Go(func() error {
		winners, winnerErr = src.Winners(gctx, date, e.cfg.TrackCode)
		return nil
	})
	if err := g.Wait(); err != nil {
		return out, err
	}

	unit := e.cfg.TrackCode + " " + date.Format(model.ISODateLayout)

	rows, meta := e.convertEntries(entries)
	res, err := e.SyncEntries(date, rows)
	if err != nil {
		res.Fail(unit+" entries", err)
	}
	out.Entries = res

	res, err = e.SyncMetadata(date, meta)
	if err != nil {
		res.Fail(unit+" metadata", err)
	}
	out.Metadata = res

	if winnerErr != nil {
		e.log.Warn("winners fetch failed", zap.Error(winnerErr))
		out.Winners.Fail(unit+" winners", winnerErr)
		return out, nil
	}
	res, err = e.SyncWinners(date, e.convertWinners(winners))
	if err != nil {
		res.Fail(unit+" winners", err)
	}
	out.Winners = res
	return out, nil
}

// horseNumber reads an integral saddle-cloth number; 0 when absent or
// fractional.
func (e *Engine) horseNumber(v any) int {
	f, ok := e.norm.Numeric(v, "")
	if !ok || f != math.Trunc(f) {
		return 0
	}
	return int(f)
}

func (e *Engine) text(v any) string {
	s, _ := normalize.Resolve(v, "", normalize.Strict)
	return s
}

// convertEntries normalizes API entries and collects the first metadata
// seen for each race.
func (e *Engine) convertEntries(in []raceapi.Entry) ([]EntryRow, []model.RaceMetadata) {
	rows := make([]EntryRow, 0, len(in))
	seen := make(map[string]bool)
	var meta []model.RaceMetadata
	for _, a := range in {
		id := strings.TrimSpace(a.RaceID)
		rows = append(rows, EntryRow{
			RaceID:      id,
			HorseNumber: e.horseNumber(a.HorseNumber),
			ML:          e.norm.NumericPtr(a.ML, ""),
			LiveOdds:    e.norm.NumericPtr(a.LiveOdds, ""),
			CorrectP3:   e.norm.NumericPtr(a.CorrectP3, ""),
			Double:      e.norm.NumericPtr(a.Double, ""),
		})
		if seen[id] {
			continue
		}
		m := model.RaceMetadata{RaceID: id, Age: e.text(a.Age), Type: e.text(a.Type)}
		if p, ok := e.norm.Currency(a.Purse, ""); ok {
			m.Purse = p
		}
		if m.Age == "" && m.Type == "" && m.Purse == "" {
			continue
		}
		seen[id] = true
		meta = append(meta, m)
	}
	return rows, meta
}

func (e *Engine) convertWinners(in []raceapi.Winner) []model.Winner {
	out := make([]model.Winner, 0, len(in))
	for _, a := range in {
		out = append(out, model.Winner{
			RaceID:             strings.TrimSpace(a.RaceID),
			WinningHorseNumber: e.horseNumber(a.WinningHorseNumber),
			Payout2:            e.norm.NumericPtr(a.Payout2, ""),
			PayoutP3:           e.norm.NumericPtr(a.PayoutP3, ""),
			ExtractionMethod:   model.ExtractionAPI,
			Confidence:         model.ConfidenceHigh,
		})
	}
	return out
}
