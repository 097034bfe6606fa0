// Package tracking layers the three append-only logical tables (entries,
// winners, race metadata) onto the columns of one physical DATABASE sheet.
// Each table grows independently, so appends are positioned by the last
// populated row of the table's own key column.
package tracking

import (
	"math"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/race-sync/internal/sheet"
)

// Spec describes where a logical table lives on the sheet.
type Spec struct {
	Name     string
	FirstCol int      // 1-based first column
	Headers  []string // one per column; defines the width
	KeyCols  int      // number of leading columns forming the key
}

// Width returns the number of columns.
func (s Spec) Width() int { return len(s.Headers) }

// Table layouts on the DATABASE sheet.
var (
	EntriesSpec = Spec{
		Name:     "entries",
		FirstCol: sheet.MustColumn("A"),
		Headers:  []string{"Race ID", "Horse #", "ML", "Live Odds", "Correct P3", "Double"},
		KeyCols:  2,
	}
	WinnersSpec = Spec{
		Name:     "winners",
		FirstCol: sheet.MustColumn("L"),
		Headers:  []string{"Race ID", "Winner"},
		KeyCols:  1,
	}
	MetadataSpec = Spec{
		Name:     "metadata",
		FirstCol: sheet.MustColumn("O"),
		Headers:  []string{"Race ID", "Age", "Type", "Purse"},
		KeyCols:  1,
	}
)

// KeySet is a set of composite keys.
type KeySet map[string]struct{}

// Has reports membership.
func (k KeySet) Has(key string) bool {
	_, ok := k[key]
	return ok
}

// Add inserts key.
func (k KeySet) Add(key string) {
	k[key] = struct{}{}
}

// Table is one logical table.
type Table struct {
	spec         Spec
	grid         sheet.Grid
	firstDataRow int
}

// NewTable binds a spec to a grid. Data starts at firstDataRow; the header
// sits on the row above.
func NewTable(g sheet.Grid, spec Spec, firstDataRow int) *Table {
	if firstDataRow < 2 {
		firstDataRow = 2
	}
	return &Table{spec: spec, grid: g, firstDataRow: firstDataRow}
}

// Spec returns the table layout.
func (t *Table) Spec() Spec { return t.spec }

// lastRow returns the last populated row of the key column, never less
// than the header row.
func (t *Table) lastRow() (int, error) {
	last, err := t.grid.LastRow(t.spec.FirstCol)
	if err != nil {
		return 0, eris.Wrapf(err, "tracking: last row of %s", t.spec.Name)
	}
	if last < t.firstDataRow-1 {
		last = t.firstDataRow - 1
	}
	return last, nil
}

// Rows returns every data row of the table.
func (t *Table) Rows() ([][]sheet.Cell, error) {
	last, err := t.lastRow()
	if err != nil {
		return nil, err
	}
	n := last - t.firstDataRow + 1
	if n <= 0 {
		return nil, nil
	}
	rows, err := t.grid.Read(sheet.Range{Row: t.firstDataRow, Col: t.spec.FirstCol, Rows: n, Cols: t.spec.Width()})
	if err != nil {
		return nil, eris.Wrapf(err, "tracking: read %s", t.spec.Name)
	}
	return rows, nil
}

// Keys scans the key columns from the first data row to the last populated
// row.
func (t *Table) Keys() (KeySet, error) {
	rows, err := t.Rows()
	if err != nil {
		return nil, err
	}
	keys := make(KeySet, len(rows))
	for _, r := range rows {
		k := t.RowKey(r)
		if k == "" {
			continue
		}
		keys.Add(k)
	}
	return keys, nil
}

// RowKey builds the composite key of a row ("raceId|horseNumber" for
// entries, raceId otherwise). Rows with an empty leading key are "".
func (t *Table) RowKey(row []sheet.Cell) string {
	parts := make([]string, 0, t.spec.KeyCols)
	for i := 0; i < t.spec.KeyCols && i < len(row); i++ {
		parts = append(parts, KeyPart(row[i]))
	}
	if len(parts) == 0 || parts[0] == "" {
		return ""
	}
	return strings.Join(parts, "|")
}

// KeyPart renders a key cell. Integral numbers render without decimals so
// a horse number stored as 4.0 matches "4".
func KeyPart(c sheet.Cell) string {
	if f, ok := c.Value.(float64); ok && f == math.Trunc(f) && !math.IsInf(f, 0) {
		return strconv.FormatInt(int64(f), 10)
	}
	return strings.TrimSpace(c.String())
}

// Append writes rows in one bulk write, starting after the table's last
// populated row. It returns the first row written (0 when rows is empty).
func (t *Table) Append(rows [][]sheet.Cell) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	for i, r := range rows {
		if len(r) != t.spec.Width() {
			return 0, eris.Errorf("tracking: %s row %d has %d cells, want %d", t.spec.Name, i, len(r), t.spec.Width())
		}
	}
	last, err := t.lastRow()
	if err != nil {
		return 0, err
	}
	start := last + 1
	if err := t.grid.Write(start, t.spec.FirstCol, rows); err != nil {
		return 0, eris.Wrapf(err, "tracking: append %d %s rows", len(rows), t.spec.Name)
	}
	return start, nil
}

// EnsureHeader writes the header row when it is blank.
func (t *Table) EnsureHeader() error {
	hdrRow := t.firstDataRow - 1
	cur, err := t.grid.Read(sheet.Range{Row: hdrRow, Col: t.spec.FirstCol, Rows: 1, Cols: 1})
	if err != nil {
		return eris.Wrapf(err, "tracking: read %s header", t.spec.Name)
	}
	if !cur[0][0].Empty() {
		return nil
	}
	hdr := make([]sheet.Cell, len(t.spec.Headers))
	for i, h := range t.spec.Headers {
		hdr[i] = sheet.Text(h)
	}
	if err := t.grid.Write(hdrRow, t.spec.FirstCol, [][]sheet.Cell{hdr}); err != nil {
		return eris.Wrapf(err, "tracking: write %s header", t.spec.Name)
	}
	return nil
}

// Store groups the three tables of one DATABASE sheet.
type Store struct {
	Entries  *Table
	Winners  *Table
	Metadata *Table
}

// Open binds the tables to an existing sheet. A missing sheet is a
// precondition failure.
func Open(wb sheet.Workbook, sheetName string, firstDataRow int) (*Store, error) {
	g, err := wb.Sheet(sheetName)
	if err != nil {
		return nil, eris.Wrap(err, "tracking: open tracking sheet")
	}
	return newStore(g, firstDataRow), nil
}

// Init creates the sheet if needed and writes blank headers.
func Init(wb sheet.Workbook, sheetName string, firstDataRow int) (*Store, error) {
	g, err := wb.AddSheet(sheetName)
	if err != nil {
		return nil, eris.Wrap(err, "tracking: create tracking sheet")
	}
	s := newStore(g, firstDataRow)
	for _, t := range []*Table{s.Entries, s.Winners, s.Metadata} {
		if err := t.EnsureHeader(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func newStore(g sheet.Grid, firstDataRow int) *Store {
	return &Store{
		Entries:  NewTable(g, EntriesSpec, firstDataRow),
		Winners:  NewTable(g, WinnersSpec, firstDataRow),
		Metadata: NewTable(g, MetadataSpec, firstDataRow),
	}
}
