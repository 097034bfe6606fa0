package ingest

import (
	"math"
	"slices"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/race-sync/internal/model"
	"github.com/sells-group/race-sync/internal/normalize"
	"github.com/sells-group/race-sync/internal/sheet"
)

// CollectorConfig scopes a Collector to one track's workbook.
type CollectorConfig struct {
	TrackCode string
	TrackName string
	MinRace   int
	MaxRace   int
	MaxHorses int
	Columns   model.ColumnMap
}

// Collection is what a dated report sheet yields for submission.
type Collection struct {
	Races     []model.Race   `json:"races"`
	Winners   []model.Winner `json:"winners"`
	Rows      int            `json:"rows"`
	Scratched int            `json:"scratched"`
	Invalid   int            `json:"invalid"`
}

// WinnersByRace keys the collected winners by race id. The last winner
// seen for a race wins.
func (c Collection) WinnersByRace() map[string]model.Winner {
	out := make(map[string]model.Winner, len(c.Winners))
	for _, w := range c.Winners {
		out[w.RaceID] = w
	}
	return out
}

// Collector reads race blocks off a dated report sheet.
type Collector struct {
	wb      sheet.Workbook
	cfg     CollectorConfig
	norm    *normalize.Normalizer
	builder *Builder
	log     *zap.Logger
}

// NewCollector creates a collector. A nil normalizer uses the default.
func NewCollector(wb sheet.Workbook, cfg CollectorConfig, n *normalize.Normalizer) *Collector {
	if n == nil {
		n = normalize.Default()
	}
	if cfg.MinRace <= 0 {
		cfg.MinRace = model.MinRaceNumber
	}
	if cfg.MaxRace <= 0 {
		cfg.MaxRace = model.MaxRaceNumber
	}
	if cfg.MaxHorses <= 0 {
		cfg.MaxHorses = model.MaxHorseNumber
	}
	if cfg.Columns == (model.ColumnMap{}) {
		cfg.Columns = model.DefaultColumns()
	}
	return &Collector{
		wb:      wb,
		cfg:     cfg,
		norm:    n,
		builder: NewBuilder(n, cfg.Columns),
		log:     zap.L().With(zap.String("component", "ingest"), zap.String("track", cfg.TrackCode)),
	}
}

func rowWidth(c model.ColumnMap) int {
	w := model.RowWidth
	for _, off := range []int{c.Horse, c.Double, c.Constant, c.P3, c.CorrectP3, c.ML, c.LiveOdds,
		c.SharpPercent, c.Action, c.DoubleDelta, c.P3Delta, c.WillPay2, c.XFigure, c.WillPay1P3,
		c.WinPool, c.VetoRating, c.WillPay} {
		w = max(w, off+1)
	}
	return w
}

// Collect reads every race block of the date's report sheet. Scratched
// and malformed rows are counted and left out; races without a valid
// entry are omitted.
func (c *Collector) Collect(date time.Time) (Collection, error) {
	var out Collection
	name := model.SheetName(date)
	g, err := c.wb.Sheet(name)
	if err != nil {
		return out, eris.Wrapf(err, "ingest: report sheet %s", name)
	}

	width := rowWidth(c.cfg.Columns)
	for n := c.cfg.MinRace; n <= c.cfg.MaxRace; n++ {
		row, col, ok := g.Find(model.RaceLabel(n))
		if !ok {
			continue
		}
		cells, err := g.Read(sheet.Range{Row: row + 1, Col: col, Rows: c.cfg.MaxHorses, Cols: width})
		if err != nil {
			return out, eris.Wrapf(err, "ingest: read %s race %d", name, n)
		}

		entries := c.entries(cells, n, &out)
		if len(entries) == 0 {
			c.log.Debug("race has no valid entries", zap.Int("race", n))
			continue
		}
		raceID := model.ExternalRaceID(c.cfg.TrackName, date, n)
		out.Races = append(out.Races, model.Race{
			RaceID:     raceID,
			TrackName:  c.cfg.TrackName,
			TrackCode:  c.cfg.TrackCode,
			Date:       date.Format(model.ISODateLayout),
			RaceNumber: n,
			Entries:    entries,
		})

		label, err := g.Read(sheet.Range{Row: row, Col: col + model.BlockWinnerCol, Rows: 1, Cols: 1})
		if err != nil {
			return out, eris.Wrapf(err, "ingest: read %s race %d winner", name, n)
		}
		if w, ok := c.winner(raceID, label[0][0], entries); ok {
			out.Winners = append(out.Winners, w)
		}
	}

	c.log.Info("collected report sheet",
		zap.String("sheet", name),
		zap.Int("races", len(out.Races)),
		zap.Int("winners", len(out.Winners)),
		zap.Int("scratched", out.Scratched),
		zap.Int("invalid", out.Invalid),
	)
	return out, nil
}

func (c *Collector) entries(cells [][]sheet.Cell, race int, out *Collection) []model.RaceEntry {
	var entries []model.RaceEntry
	seen := make(map[int]bool)
	for _, rc := range cells {
		if blank(rc) {
			continue
		}
		out.Rows++
		r := Row{Values: make([]any, len(rc)), Displays: make([]string, len(rc))}
		for i, cell := range rc {
			r.Values[i], r.Displays[i] = cell.Value, cell.Display
		}
		if !c.builder.HasValidEntryData(r) {
			out.Scratched++
			continue
		}
		e, err := c.builder.BuildEntry(r)
		if err != nil {
			c.log.Warn("skipping entry row", zap.Int("race", race), zap.Error(err))
			out.Invalid++
			continue
		}
		if seen[e.HorseNumber] {
			c.log.Warn("duplicate horse in race block", zap.Int("race", race), zap.Int("horse", e.HorseNumber))
			out.Invalid++
			continue
		}
		seen[e.HorseNumber] = true
		entries = append(entries, e)
	}
	slices.SortFunc(entries, func(a, b model.RaceEntry) int { return a.HorseNumber - b.HorseNumber })
	return entries
}

// winner reads the block's winner cell. Payouts come from the winning
// entry's will-pay columns.
func (c *Collector) winner(raceID string, cell sheet.Cell, entries []model.RaceEntry) (model.Winner, bool) {
	h, ok := c.norm.Numeric(cell.Value, cell.Display)
	if !ok || h != math.Trunc(h) || h < model.MinHorseNumber || h > model.MaxHorseNumber {
		return model.Winner{}, false
	}
	w := model.Winner{
		RaceID:             raceID,
		WinningHorseNumber: int(h),
		ExtractionMethod:   model.ExtractionWinnerCell,
		Confidence:         model.ConfidenceLow,
	}
	for _, e := range entries {
		if e.HorseNumber != w.WinningHorseNumber {
			continue
		}
		w.Confidence = model.ConfidenceHigh
		if e.WillPay2 != nil {
			w.Payout2 = c.norm.NumericPtr(*e.WillPay2, "")
		}
		if e.WillPay1P3 != nil {
			w.PayoutP3 = c.norm.NumericPtr(*e.WillPay1P3, "")
		}
		break
	}
	return w, true
}

func blank(cells []sheet.Cell) bool {
	for _, c := range cells {
		if !c.Empty() {
			return false
		}
	}
	return true
}
