package sheet

import (
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// xlsx forbids '/' in sheet names, so dated sheets (MM/dd/yy) are stored
// as MM-dd-yy and mapped back on load.
var storedDateName = regexp.MustCompile(`^\d{2}-\d{2}-\d{2}$`)

func storedName(name string) string {
	return strings.ReplaceAll(name, "/", "-")
}

func loadedName(name string) string {
	if storedDateName.MatchString(name) {
		return strings.ReplaceAll(name, "-", "/")
	}
	return name
}

// Formula references to dated sheets follow the same mapping.
var (
	dateRef       = regexp.MustCompile(`'(\d{2})/(\d{2})/(\d{2})'!`)
	storedDateRef = regexp.MustCompile(`'(\d{2})-(\d{2})-(\d{2})'!`)
)

func storedFormula(f string) string {
	return dateRef.ReplaceAllString(f, "'$1-$2-$3'!")
}

func loadedFormula(f string) string {
	return storedDateRef.ReplaceAllString(f, "'$1/$2/$3'!")
}

// LoadXLSX reads an xlsx file into an in-memory workbook.
func LoadXLSX(path string) (*MemWorkbook, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "sheet: open xlsx %s", path)
	}

	wb := NewMemWorkbook()
	for _, xs := range f.Sheets {
		g, err := wb.AddSheet(loadedName(xs.Name))
		if err != nil {
			return nil, err
		}
		ms := g.(*MemSheet)
		for i, row := range xs.Rows {
			if row == nil {
				continue
			}
			for j, xc := range row.Cells {
				if xc == nil {
					continue
				}
				c := fromXLSXCell(xc)
				if c.Empty() {
					continue
				}
				ms.Set(i+1, j+1, c)
			}
		}
	}
	return wb, nil
}

func fromXLSXCell(xc *xlsx.Cell) Cell {
	var c Cell
	if f := xc.Formula(); f != "" {
		c.Formula = "=" + loadedFormula(f)
	}
	switch xc.Type() {
	case xlsx.CellTypeNumeric:
		if f, err := xc.Float(); err == nil {
			c.Value = f
		} else {
			c.Value = xc.Value
		}
	case xlsx.CellTypeBool:
		c.Value = xc.Bool()
		c.Display = Cell{Value: xc.Bool()}.String()
		return c
	default:
		if xc.Value != "" {
			c.Value = xc.Value
		}
	}
	display, err := xc.FormattedValue()
	if err != nil {
		display = xc.Value
	}
	c.Display = display
	return c
}

// SaveXLSX writes an in-memory workbook to an xlsx file.
func SaveXLSX(wb *MemWorkbook, path string) error {
	f := xlsx.NewFile()
	for _, name := range wb.SheetNames() {
		xs, err := f.AddSheet(storedName(name))
		if err != nil {
			return eris.Wrapf(err, "sheet: add xlsx sheet %q", name)
		}
		ms := wb.mem(name)
		for _, r := range ms.cells {
			row := xs.AddRow()
			last := len(r)
			for last > 0 && r[last-1].Empty() {
				last--
			}
			for _, c := range r[:last] {
				toXLSXCell(row.AddCell(), c)
			}
		}
	}
	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "sheet: save xlsx %s", path)
	}
	return nil
}

func toXLSXCell(xc *xlsx.Cell, c Cell) {
	if c.Formula != "" {
		xc.SetFormula(storedFormula(strings.TrimPrefix(c.Formula, "=")))
		return
	}
	switch v := c.Value.(type) {
	case float64:
		xc.SetFloat(v)
	case bool:
		xc.SetBool(v)
	case string:
		xc.SetString(v)
	case nil:
		if c.Display != "" {
			xc.SetString(c.Display)
		}
	}
}
