// Package reconcile moves race data into the tracking sheet, the dated TEE
// report sheets, and the TOTALS sheet. Every write is keyed, so running the
// same reconciliation twice appends nothing the second time.
package reconcile

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/race-sync/internal/metrics"
	"github.com/sells-group/race-sync/internal/model"
	"github.com/sells-group/race-sync/internal/normalize"
	"github.com/sells-group/race-sync/internal/sheet"
	"github.com/sells-group/race-sync/internal/tracking"
)

// Config scopes an engine to one track.
type Config struct {
	TrackCode   string
	TrackName   string
	MinRace     int // default 3
	MaxRace     int // default 15
	MaxHorses   int // TEE block height, default 16
	TotalsSheet string
	TotalsCells []string
	Columns     model.ColumnMap // report-sheet row layout
}

func (c Config) withDefaults() Config {
	c.TrackCode = strings.ToUpper(strings.TrimSpace(c.TrackCode))
	if c.MinRace <= 0 {
		c.MinRace = 3
	}
	if c.MaxRace <= 0 {
		c.MaxRace = model.MaxRaceNumber
	}
	if c.MaxHorses <= 0 {
		c.MaxHorses = model.MaxHorseNumber
	}
	if c.Columns == (model.ColumnMap{}) {
		c.Columns = model.DefaultColumns()
	}
	if c.TotalsSheet == "" {
		c.TotalsSheet = "TOTALS"
	}
	if len(c.TotalsCells) == 0 {
		c.TotalsCells = []string{"B1", "C1", "D1", "E1"}
	}
	return c
}

// UnitError is a failure confined to one unit of work (a date, a sheet,
// a table).
type UnitError struct {
	Unit  string `json:"unit"`
	Error string `json:"error"`
}

// Result counts what a reconciliation did.
type Result struct {
	Fetched    int         `json:"fetched"`
	Appended   int         `json:"appended"`
	Skipped    int         `json:"skipped"`
	Duplicates int         `json:"duplicates"`
	Errors     []UnitError `json:"errors,omitempty"`
}

// Add folds o into r.
func (r *Result) Add(o Result) {
	r.Fetched += o.Fetched
	r.Appended += o.Appended
	r.Skipped += o.Skipped
	r.Duplicates += o.Duplicates
	r.Errors = append(r.Errors, o.Errors...)
}

// Fail records a unit failure.
func (r *Result) Fail(unit string, err error) {
	r.Errors = append(r.Errors, UnitError{Unit: unit, Error: err.Error()})
}

// Option configures an Engine.
type Option func(*Engine)

// WithNormalizer overrides the default normalizer.
func WithNormalizer(n *normalize.Normalizer) Option {
	return func(e *Engine) { e.norm = n }
}

// WithMetrics records item counts on m.
func WithMetrics(m *metrics.Recorder) Option {
	return func(e *Engine) { e.metrics = m }
}

// Engine reconciles one track's workbook.
type Engine struct {
	cfg     Config
	wb      sheet.Workbook
	store   *tracking.Store
	norm    *normalize.Normalizer
	metrics *metrics.Recorder
	log     *zap.Logger
}

// NewEngine creates an engine over a track workbook and its tracking store.
func NewEngine(wb sheet.Workbook, store *tracking.Store, cfg Config, opts ...Option) *Engine {
	cfg = cfg.withDefaults()
	e := &Engine{
		cfg:   cfg,
		wb:    wb,
		store: store,
		norm:  normalize.Default(),
		log:   zap.L().With(zap.String("component", "reconcile"), zap.String("track", cfg.TrackCode)),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Config returns the effective configuration.
func (e *Engine) Config() Config { return e.cfg }

// accept parses raceID and checks it belongs to this track, this date,
// and the race window.
func (e *Engine) accept(raceID string, date time.Time) (model.RaceKey, bool) {
	k, err := model.ParseRaceID(raceID)
	if err != nil {
		e.log.Debug("skipping malformed race id", zap.String("race_id", raceID))
		return model.RaceKey{}, false
	}
	if k.TrackCode != e.cfg.TrackCode || k.DateToken != model.DateToken(date) {
		return model.RaceKey{}, false
	}
	if k.RaceNumber < e.cfg.MinRace || k.RaceNumber > e.cfg.MaxRace {
		return model.RaceKey{}, false
	}
	return k, true
}

// candidate is one row offered to a table.
type candidate struct {
	raceID string
	key    string
	row    []sheet.Cell
}

// reconcileTable appends every candidate whose key is new, in one write.
func (e *Engine) reconcileTable(tbl *tracking.Table, date time.Time, cands []candidate, invalid int) (Result, error) {
	name := tbl.Spec().Name
	res := Result{Fetched: len(cands) + invalid, Skipped: invalid}

	keys, err := tbl.Keys()
	if err != nil {
		return res, eris.Wrapf(err, "reconcile: %s keys", name)
	}

	var queued [][]sheet.Cell
	for _, c := range cands {
		if _, ok := e.accept(c.raceID, date); !ok {
			res.Skipped++
			continue
		}
		if keys.Has(c.key) {
			res.Duplicates++
			continue
		}
		keys.Add(c.key)
		queued = append(queued, c.row)
	}

	if _, err := tbl.Append(queued); err != nil {
		return res, eris.Wrapf(err, "reconcile: append %s", name)
	}
	res.Appended = len(queued)

	e.metrics.Items(name, metrics.OutcomeFetched, res.Fetched)
	e.metrics.Items(name, metrics.OutcomeAppended, res.Appended)
	e.metrics.Items(name, metrics.OutcomeSkipped, res.Skipped)
	e.metrics.Items(name, metrics.OutcomeDuplicate, res.Duplicates)
	e.log.Info("reconciled table",
		zap.String("table", name),
		zap.String("date", date.Format(model.ISODateLayout)),
		zap.Int("fetched", res.Fetched),
		zap.Int("appended", res.Appended),
		zap.Int("skipped", res.Skipped),
		zap.Int("duplicates", res.Duplicates),
	)
	return res, nil
}

// EntryRow is the slice of an entry tracked on the DATABASE sheet.
type EntryRow struct {
	RaceID      string
	HorseNumber int
	ML          *float64
	LiveOdds    *float64
	CorrectP3   *float64
	Double      *float64
}

func numberCell(f *float64) sheet.Cell {
	if f == nil {
		return sheet.Cell{}
	}
	return sheet.Number(*f)
}

func textCell(s string) sheet.Cell {
	if strings.TrimSpace(s) == "" {
		return sheet.Cell{}
	}
	return sheet.Text(s)
}

func validHorse(n int) bool {
	return n >= model.MinHorseNumber && n <= model.MaxHorseNumber
}

// SyncEntries appends entries not yet tracked, keyed by raceId|horseNumber.
func (e *Engine) SyncEntries(date time.Time, rows []EntryRow) (Result, error) {
	cands := make([]candidate, 0, len(rows))
	invalid := 0
	for _, r := range rows {
		if !validHorse(r.HorseNumber) {
			invalid++
			continue
		}
		cands = append(cands, candidate{
			raceID: r.RaceID,
			key:    model.EntryKey(strings.TrimSpace(r.RaceID), r.HorseNumber),
			row: []sheet.Cell{
				sheet.Text(strings.TrimSpace(r.RaceID)),
				sheet.Number(float64(r.HorseNumber)),
				numberCell(r.ML),
				numberCell(r.LiveOdds),
				numberCell(r.CorrectP3),
				numberCell(r.Double),
			},
		})
	}
	return e.reconcileTable(e.store.Entries, date, cands, invalid)
}

// SyncMetadata appends race conditions for races not yet tracked. Records
// without any field are skipped.
func (e *Engine) SyncMetadata(date time.Time, meta []model.RaceMetadata) (Result, error) {
	cands := make([]candidate, 0, len(meta))
	invalid := 0
	for _, m := range meta {
		if m.Age == "" && m.Type == "" && m.Purse == "" {
			invalid++
			continue
		}
		id := strings.TrimSpace(m.RaceID)
		cands = append(cands, candidate{
			raceID: id,
			key:    id,
			row:    []sheet.Cell{sheet.Text(id), textCell(m.Age), textCell(m.Type), textCell(m.Purse)},
		})
	}
	return e.reconcileTable(e.store.Metadata, date, cands, invalid)
}

// SyncWinners appends the winner of each race not yet decided. The first
// winner recorded for a race stands; later ones are duplicates.
func (e *Engine) SyncWinners(date time.Time, winners []model.Winner) (Result, error) {
	cands := make([]candidate, 0, len(winners))
	invalid := 0
	for _, w := range winners {
		if !validHorse(w.WinningHorseNumber) {
			invalid++
			continue
		}
		id := strings.TrimSpace(w.RaceID)
		cands = append(cands, candidate{
			raceID: id,
			key:    id,
			row:    []sheet.Cell{sheet.Text(id), sheet.Number(float64(w.WinningHorseNumber))},
		})
	}
	return e.reconcileTable(e.store.Winners, date, cands, invalid)
}
