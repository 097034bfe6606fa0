package progress

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/race-sync/internal/sheet"
)

// DefaultSheetName is the hidden bookkeeping sheet of a workbook.
const DefaultSheetName = "_PROGRESS"

// SheetState keeps markers inside the workbook itself, one row per
// record: job, unit ("" for the session marker), marker.
type SheetState struct {
	wb   sheet.Workbook
	name string
}

// NewSheetState stores markers on the named sheet, created on first use.
func NewSheetState(wb sheet.Workbook, name string) *SheetState {
	if name == "" {
		name = DefaultSheetName
	}
	return &SheetState{wb: wb, name: name}
}

type record struct {
	job, unit, marker string
}

func (s *SheetState) records() (sheet.Grid, []record, error) {
	g, err := s.wb.AddSheet(s.name)
	if err != nil {
		return nil, nil, eris.Wrap(err, "progress: progress sheet")
	}
	last, err := g.LastRow(1)
	if err != nil || last == 0 {
		return g, nil, eris.Wrap(err, "progress: progress sheet rows")
	}
	cells, err := g.Read(sheet.Range{Row: 1, Col: 1, Rows: last, Cols: 3})
	if err != nil {
		return nil, nil, eris.Wrap(err, "progress: read progress sheet")
	}
	recs := make([]record, len(cells))
	for i, r := range cells {
		recs[i] = record{
			job:    strings.TrimSpace(r[0].String()),
			unit:   strings.TrimSpace(r[1].String()),
			marker: strings.TrimSpace(r[2].String()),
		}
	}
	return g, recs, nil
}

func (s *SheetState) Load(_ context.Context, job string) (Snapshot, error) {
	snap := Snapshot{Job: job, Units: map[string]string{}}
	_, recs, err := s.records()
	if err != nil {
		return snap, err
	}
	for _, r := range recs {
		if r.job != job {
			continue
		}
		if r.unit == "" {
			snap.Session = r.marker
			continue
		}
		snap.Units[r.unit] = r.marker
	}
	return snap, nil
}

func (s *SheetState) put(job, unit, marker string) error {
	g, recs, err := s.records()
	if err != nil {
		return err
	}
	row := len(recs) + 1
	for i, r := range recs {
		if r.job == job && r.unit == unit {
			row = i + 1
			break
		}
	}
	err = g.Write(row, 1, [][]sheet.Cell{{sheet.Text(job), sheet.Text(unit), sheet.Text(marker)}})
	return eris.Wrapf(err, "progress: write %s/%s", job, unit)
}

func (s *SheetState) StartSession(_ context.Context, job, marker string) error {
	return s.put(job, "", marker)
}

func (s *SheetState) MarkUnit(_ context.Context, job, unit, marker string) error {
	if unit == "" {
		return eris.New("progress: empty unit name")
	}
	return s.put(job, unit, marker)
}

func (s *SheetState) Clear(_ context.Context, job string) error {
	g, recs, err := s.records()
	if err != nil || len(recs) == 0 {
		return err
	}
	var kept [][]sheet.Cell
	for _, r := range recs {
		if r.job == job || r.job == "" {
			continue
		}
		kept = append(kept, []sheet.Cell{sheet.Text(r.job), sheet.Text(r.unit), sheet.Text(r.marker)})
	}
	if err := g.Clear(sheet.Range{Row: 1, Col: 1, Rows: len(recs), Cols: 3}); err != nil {
		return eris.Wrap(err, "progress: clear progress sheet")
	}
	return eris.Wrap(g.Write(1, 1, kept), "progress: rewrite progress sheet")
}

func (s *SheetState) Close() error { return nil }

// SheetFile is a SheetState persisted to a standalone xlsx file. Every
// mutation is saved immediately.
type SheetFile struct {
	*SheetState
	wb   *sheet.MemWorkbook
	path string
}

// OpenSheetFile loads path, or starts an empty workbook when it does not
// exist yet.
func OpenSheetFile(path string) (*SheetFile, error) {
	wb := sheet.NewMemWorkbook()
	if _, err := os.Stat(path); err == nil {
		if wb, err = sheet.LoadXLSX(path); err != nil {
			return nil, eris.Wrap(err, "progress: load progress workbook")
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, eris.Wrapf(err, "progress: stat %s", path)
	}
	return &SheetFile{SheetState: NewSheetState(wb, ""), wb: wb, path: path}, nil
}

func (f *SheetFile) save(err error) error {
	if err != nil {
		return err
	}
	return eris.Wrap(sheet.SaveXLSX(f.wb, f.path), "progress: save progress workbook")
}

func (f *SheetFile) StartSession(ctx context.Context, job, marker string) error {
	return f.save(f.SheetState.StartSession(ctx, job, marker))
}

func (f *SheetFile) MarkUnit(ctx context.Context, job, unit, marker string) error {
	return f.save(f.SheetState.MarkUnit(ctx, job, unit, marker))
}

func (f *SheetFile) Clear(ctx context.Context, job string) error {
	return f.save(f.SheetState.Clear(ctx, job))
}
