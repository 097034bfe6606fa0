package reconcile

import (
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/race-sync/internal/metrics"
	"github.com/sells-group/race-sync/internal/model"
	"github.com/sells-group/race-sync/internal/sheet"
	"github.com/sells-group/race-sync/internal/tracking"
)

type teeEntry struct {
	horse int
	cells []sheet.Cell
}

type teeBlock struct {
	entries []teeEntry
	horses  map[int]bool
	meta    []sheet.Cell
	winner  sheet.Cell
}

// PopulateTEE rewrites the race blocks of the date's report sheet from the
// tracking store. Each block is cleared and rewritten, so repeated runs
// converge to the same sheet.
func (e *Engine) PopulateTEE(date time.Time) (Result, error) {
	var res Result
	name := model.SheetName(date)
	g, err := e.wb.Sheet(name)
	if err != nil {
		return res, eris.Wrapf(err, "reconcile: report sheet %s", name)
	}

	blocks, err := e.collectBlocks(date, &res)
	if err != nil {
		return res, err
	}

	races := make([]int, 0, len(blocks))
	for n := range blocks {
		races = append(races, n)
	}
	slices.Sort(races)

	for _, n := range races {
		b := blocks[n]
		row, col, ok := g.Find(model.RaceLabel(n))
		if !ok {
			e.log.Debug("race block not on sheet", zap.String("sheet", name), zap.Int("race", n))
			res.Skipped += len(b.entries)
			continue
		}

		slices.SortFunc(b.entries, func(x, y teeEntry) int { return x.horse - y.horse })
		if over := len(b.entries) - e.cfg.MaxHorses; over > 0 {
			res.Skipped += over
			b.entries = b.entries[:e.cfg.MaxHorses]
		}
		if err := e.writeBlock(g, row, col, b.entries); err != nil {
			return res, eris.Wrapf(err, "reconcile: write %s race %d", name, n)
		}

		label := append(append([]sheet.Cell{}, b.meta...), sheet.Text(model.WinnerTag), b.winner)
		if err := g.Write(row, col+model.BlockMetaOffset, [][]sheet.Cell{label}); err != nil {
			return res, eris.Wrapf(err, "reconcile: write %s race %d label", name, n)
		}
		res.Appended += len(b.entries)
	}

	e.metrics.Items("tee", metrics.OutcomeFetched, res.Fetched)
	e.metrics.Items("tee", metrics.OutcomeAppended, res.Appended)
	e.log.Info("populated report sheet",
		zap.String("sheet", name),
		zap.Int("races", len(races)),
		zap.Int("entries", res.Appended),
		zap.Int("skipped", res.Skipped),
	)
	return res, nil
}

// trackedOffsets returns the block columns owned by the tracking store, in
// entry-table order: horse, ML, live odds, correct P3, double.
func (e *Engine) trackedOffsets() []int {
	c := e.cfg.Columns
	return []int{c.Horse, c.ML, c.LiveOdds, c.CorrectP3, c.Double}
}

// writeBlock clears and rewrites only the tracked columns of a block, so
// hand-entered columns (will-pays, pools) survive a repopulation.
func (e *Engine) writeBlock(g sheet.Grid, row, col int, entries []teeEntry) error {
	for f, off := range e.trackedOffsets() {
		if off < 0 {
			continue
		}
		if err := g.Clear(sheet.Range{Row: row + 1, Col: col + off, Rows: e.cfg.MaxHorses, Cols: 1}); err != nil {
			return err
		}
		cells := make([][]sheet.Cell, len(entries))
		for i, te := range entries {
			if f == 0 {
				cells[i] = []sheet.Cell{sheet.Number(float64(te.horse))}
			} else {
				cells[i] = []sheet.Cell{te.cells[f-1]}
			}
		}
		if err := g.Write(row+1, col+off, cells); err != nil {
			return err
		}
	}
	return nil
}

// collectBlocks groups the tracked rows for date by race number.
func (e *Engine) collectBlocks(date time.Time, res *Result) (map[int]*teeBlock, error) {
	blocks := make(map[int]*teeBlock)
	block := func(n int) *teeBlock {
		b, ok := blocks[n]
		if !ok {
			b = &teeBlock{
				horses: make(map[int]bool),
				meta:   make([]sheet.Cell, tracking.MetadataSpec.Width()-1),
			}
			blocks[n] = b
		}
		return b
	}

	entries, err := e.store.Entries.Rows()
	if err != nil {
		return nil, eris.Wrap(err, "reconcile: read entries")
	}
	for _, r := range entries {
		k, ok := e.accept(tracking.KeyPart(r[0]), date)
		if !ok {
			continue
		}
		res.Fetched++
		h, err := strconv.Atoi(tracking.KeyPart(r[1]))
		if err != nil || !validHorse(h) {
			res.Skipped++
			continue
		}
		b := block(k.RaceNumber)
		if b.horses[h] {
			res.Duplicates++
			continue
		}
		b.horses[h] = true
		b.entries = append(b.entries, teeEntry{horse: h, cells: r[2:]})
	}

	meta, err := e.store.Metadata.Rows()
	if err != nil {
		return nil, eris.Wrap(err, "reconcile: read metadata")
	}
	seen := make(map[int]bool)
	for _, r := range meta {
		k, ok := e.accept(tracking.KeyPart(r[0]), date)
		if !ok || seen[k.RaceNumber] {
			continue
		}
		seen[k.RaceNumber] = true
		copy(block(k.RaceNumber).meta, r[1:])
	}

	winners, err := e.store.Winners.Rows()
	if err != nil {
		return nil, eris.Wrap(err, "reconcile: read winners")
	}
	clear(seen)
	for _, r := range winners {
		k, ok := e.accept(tracking.KeyPart(r[0]), date)
		if !ok || seen[k.RaceNumber] {
			continue
		}
		seen[k.RaceNumber] = true
		block(k.RaceNumber).winner = r[1]
	}
	return blocks, nil
}

// RollupTotals adds the date's row to the TOTALS sheet. The row holds
// formulas pointing at the report sheet's summary cells; a date already
// present is left alone.
func (e *Engine) RollupTotals(date time.Time) (Result, error) {
	res := Result{Fetched: 1}
	name := model.SheetName(date)
	if _, err := e.wb.Sheet(name); err != nil {
		return res, eris.Wrapf(err, "reconcile: report sheet %s", name)
	}
	g, err := e.wb.AddSheet(e.cfg.TotalsSheet)
	if err != nil {
		return res, eris.Wrapf(err, "reconcile: totals sheet %s", e.cfg.TotalsSheet)
	}

	last, err := g.LastRow(1)
	if err != nil {
		return res, eris.Wrap(err, "reconcile: totals last row")
	}
	if last == 0 {
		hdr := []sheet.Cell{sheet.Text("Date")}
		for _, ref := range e.cfg.TotalsCells {
			hdr = append(hdr, sheet.Text(ref))
		}
		if err := g.Write(1, 1, [][]sheet.Cell{hdr}); err != nil {
			return res, eris.Wrap(err, "reconcile: totals header")
		}
		last = 1
	}

	if last >= 2 {
		dates, err := g.Read(sheet.Range{Row: 2, Col: 1, Rows: last - 1, Cols: 1})
		if err != nil {
			return res, eris.Wrap(err, "reconcile: read totals dates")
		}
		for _, d := range dates {
			if tracking.KeyPart(d[0]) == name {
				res.Duplicates = 1
				return res, nil
			}
		}
	}

	row := []sheet.Cell{sheet.Text(name)}
	for _, ref := range e.cfg.TotalsCells {
		row = append(row, sheet.Formula(fmt.Sprintf("='%s'!%s", name, ref)))
	}
	if err := g.Write(last+1, 1, [][]sheet.Cell{row}); err != nil {
		return res, eris.Wrap(err, "reconcile: append totals row")
	}
	res.Appended = 1
	e.metrics.Items("totals", metrics.OutcomeAppended, 1)
	e.log.Info("rolled up totals", zap.String("date", name), zap.Int("row", last+1))
	return res, nil
}
