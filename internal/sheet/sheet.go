// Package sheet models the spreadsheet store as a key-value grid with range
// read and write operations. Rows and columns are 1-based, as in A1 notation.
package sheet

import (
	"errors"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// ErrSheetNotFound is returned when a named sheet does not exist.
var ErrSheetNotFound = errors.New("sheet: not found")

// Cell is one spreadsheet cell: its typed value, its rendered text, and an
// optional formula.
type Cell struct {
	Value   any    `json:"value,omitempty"` // float64, string, bool, or nil
	Display string `json:"display,omitempty"`
	Formula string `json:"formula,omitempty"`
}

// Text builds a string cell.
func Text(s string) Cell {
	return Cell{Value: s, Display: s}
}

// Number builds a numeric cell displayed with the shortest representation.
func Number(f float64) Cell {
	return Cell{Value: f, Display: strconv.FormatFloat(f, 'f', -1, 64)}
}

// Formula builds a formula cell. The value is computed by the spreadsheet.
func Formula(f string) Cell {
	return Cell{Formula: f}
}

// Empty reports whether the cell has no value, text, or formula.
func (c Cell) Empty() bool {
	if c.Formula != "" {
		return false
	}
	if strings.TrimSpace(c.Display) != "" {
		return false
	}
	switch v := c.Value.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(v) == ""
	}
	return false
}

// String returns the display text, falling back to the value.
func (c Cell) String() string {
	if c.Display != "" {
		return c.Display
	}
	switch v := c.Value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		if v {
			return "TRUE"
		}
		return "FALSE"
	}
	return ""
}

// Range is a rectangular block of cells.
type Range struct {
	Row  int
	Col  int
	Rows int
	Cols int
}

func (r Range) validate() error {
	if r.Row < 1 || r.Col < 1 || r.Rows < 0 || r.Cols < 0 {
		return eris.Errorf("sheet: invalid range %+v", r)
	}
	return nil
}

// Grid is a single sheet.
type Grid interface {
	// Name returns the sheet name.
	Name() string
	// Read returns the cells of r, row-major. Missing cells are empty.
	Read(r Range) ([][]Cell, error)
	// Write stores cells with their top-left corner at (row, col).
	Write(row, col int, cells [][]Cell) error
	// Clear empties every cell of r.
	Clear(r Range) error
	// LastRow returns the last row with a non-empty cell in col, or 0.
	LastRow(col int) (int, error)
	// MaxRow returns the last row with any non-empty cell, or 0.
	MaxRow() int
	// Find returns the first cell whose text equals text, scanning rows
	// top to bottom then columns left to right.
	Find(text string) (row, col int, ok bool)
}

// Workbook is a named collection of sheets.
type Workbook interface {
	// Sheet returns the named sheet or ErrSheetNotFound.
	Sheet(name string) (Grid, error)
	// AddSheet creates a sheet, or returns the existing one.
	AddSheet(name string) (Grid, error)
	// SheetNames lists sheets in creation order.
	SheetNames() []string
}

// ColumnIndex converts a column letter ("A", "AB") to its 1-based index.
func ColumnIndex(letters string) (int, error) {
	letters = strings.ToUpper(strings.TrimSpace(letters))
	if letters == "" {
		return 0, eris.New("sheet: empty column")
	}
	n := 0
	for _, r := range letters {
		if r < 'A' || r > 'Z' {
			return 0, eris.Errorf("sheet: invalid column %q", letters)
		}
		n = n*26 + int(r-'A'+1)
	}
	return n, nil
}

// MustColumn is ColumnIndex for compile-time constants.
func MustColumn(letters string) int {
	n, err := ColumnIndex(letters)
	if err != nil {
		panic(err)
	}
	return n
}

// ColumnLetter converts a 1-based column index to letters.
func ColumnLetter(col int) string {
	var b []byte
	for col > 0 {
		col--
		b = append([]byte{byte('A' + col%26)}, b...)
		col /= 26
	}
	return string(b)
}

// ParseA1 parses a cell reference such as "B12".
func ParseA1(ref string) (row, col int, err error) {
	ref = strings.ToUpper(strings.TrimSpace(ref))
	i := strings.IndexFunc(ref, func(r rune) bool { return r >= '0' && r <= '9' })
	if i <= 0 {
		return 0, 0, eris.Errorf("sheet: invalid cell reference %q", ref)
	}
	col, err = ColumnIndex(ref[:i])
	if err != nil {
		return 0, 0, err
	}
	row, err = strconv.Atoi(ref[i:])
	if err != nil || row < 1 {
		return 0, 0, eris.Errorf("sheet: invalid cell reference %q", ref)
	}
	return row, col, nil
}

// A1 renders a cell reference.
func A1(row, col int) string {
	return ColumnLetter(col) + strconv.Itoa(row)
}
