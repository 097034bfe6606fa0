package sheet

import (
	"strings"

	"github.com/rotisserie/eris"
)

// MemSheet is an in-memory Grid backed by a dense row-major slice.
type MemSheet struct {
	name  string
	cells [][]Cell
}

// NewMemSheet creates an empty sheet.
func NewMemSheet(name string) *MemSheet {
	return &MemSheet{name: name}
}

// Name returns the sheet name.
func (s *MemSheet) Name() string { return s.name }

func (s *MemSheet) get(row, col int) Cell {
	if row < 1 || row > len(s.cells) {
		return Cell{}
	}
	r := s.cells[row-1]
	if col < 1 || col > len(r) {
		return Cell{}
	}
	return r[col-1]
}

func (s *MemSheet) set(row, col int, c Cell) {
	for len(s.cells) < row {
		s.cells = append(s.cells, nil)
	}
	r := s.cells[row-1]
	for len(r) < col {
		r = append(r, Cell{})
	}
	r[col-1] = c
	s.cells[row-1] = r
}

// Get returns a single cell.
func (s *MemSheet) Get(row, col int) Cell {
	return s.get(row, col)
}

// Set stores a single cell.
func (s *MemSheet) Set(row, col int, c Cell) {
	if row < 1 || col < 1 {
		return
	}
	s.set(row, col, c)
}

// Read returns the cells of r.
func (s *MemSheet) Read(r Range) ([][]Cell, error) {
	if err := r.validate(); err != nil {
		return nil, err
	}
	out := make([][]Cell, r.Rows)
	for i := range r.Rows {
		row := make([]Cell, r.Cols)
		for j := range r.Cols {
			row[j] = s.get(r.Row+i, r.Col+j)
		}
		out[i] = row
	}
	return out, nil
}

// Write stores cells with their top-left corner at (row, col).
func (s *MemSheet) Write(row, col int, cells [][]Cell) error {
	if row < 1 || col < 1 {
		return eris.Errorf("sheet: invalid write origin %s", A1(max(row, 1), max(col, 1)))
	}
	for i, r := range cells {
		for j, c := range r {
			s.set(row+i, col+j, c)
		}
	}
	return nil
}

// Clear empties every cell of r.
func (s *MemSheet) Clear(r Range) error {
	if err := r.validate(); err != nil {
		return err
	}
	for i := range r.Rows {
		row := r.Row + i
		if row > len(s.cells) {
			break
		}
		for j := range r.Cols {
			col := r.Col + j
			if col <= len(s.cells[row-1]) {
				s.cells[row-1][col-1] = Cell{}
			}
		}
	}
	return nil
}

// LastRow returns the last row with a non-empty cell in col.
func (s *MemSheet) LastRow(col int) (int, error) {
	if col < 1 {
		return 0, eris.Errorf("sheet: invalid column %d", col)
	}
	for row := len(s.cells); row >= 1; row-- {
		if !s.get(row, col).Empty() {
			return row, nil
		}
	}
	return 0, nil
}

// MaxRow returns the last row with any non-empty cell.
func (s *MemSheet) MaxRow() int {
	for row := len(s.cells); row >= 1; row-- {
		for _, c := range s.cells[row-1] {
			if !c.Empty() {
				return row
			}
		}
	}
	return 0
}

// Find returns the first cell whose trimmed text equals text.
func (s *MemSheet) Find(text string) (int, int, bool) {
	for i, r := range s.cells {
		for j, c := range r {
			if strings.TrimSpace(c.String()) == text {
				return i + 1, j + 1, true
			}
		}
	}
	return 0, 0, false
}

// MemWorkbook is an in-memory Workbook.
type MemWorkbook struct {
	order  []string
	sheets map[string]*MemSheet
}

// NewMemWorkbook creates an empty workbook.
func NewMemWorkbook() *MemWorkbook {
	return &MemWorkbook{sheets: make(map[string]*MemSheet)}
}

// Sheet returns the named sheet.
func (w *MemWorkbook) Sheet(name string) (Grid, error) {
	s, ok := w.sheets[name]
	if !ok {
		return nil, eris.Wrapf(ErrSheetNotFound, "sheet %q", name)
	}
	return s, nil
}

// AddSheet creates the named sheet if it does not exist.
func (w *MemWorkbook) AddSheet(name string) (Grid, error) {
	if strings.TrimSpace(name) == "" {
		return nil, eris.New("sheet: empty sheet name")
	}
	if s, ok := w.sheets[name]; ok {
		return s, nil
	}
	s := NewMemSheet(name)
	w.sheets[name] = s
	w.order = append(w.order, name)
	return s, nil
}

// SheetNames lists sheets in creation order.
func (w *MemWorkbook) SheetNames() []string {
	return append([]string(nil), w.order...)
}

func (w *MemWorkbook) mem(name string) *MemSheet {
	return w.sheets[name]
}
