package tracking

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/race-sync/internal/sheet"
)

func entryRow(raceID string, horse float64) []sheet.Cell {
	return []sheet.Cell{sheet.Text(raceID), sheet.Number(horse), {}, {}, {}, {}}
}

func TestStore_IndependentGrowth(t *testing.T) {
	wb := sheet.NewMemWorkbook()
	st, err := Init(wb, "DATABASE", 2)
	require.NoError(t, err)

	start, err := st.Entries.Append([][]sheet.Cell{
		entryRow("SA_20250315_3", 1),
		entryRow("SA_20250315_3", 2),
		entryRow("SA_20250315_3", 3),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, start)

	start, err = st.Winners.Append([][]sheet.Cell{{sheet.Text("SA_20250315_3"), sheet.Number(2)}})
	require.NoError(t, err)
	assert.Equal(t, 2, start, "winners start right under their own header")

	start, err = st.Entries.Append([][]sheet.Cell{entryRow("SA_20250315_4", 1)})
	require.NoError(t, err)
	assert.Equal(t, 5, start)

	start, err = st.Winners.Append([][]sheet.Cell{{sheet.Text("SA_20250315_4"), sheet.Number(1)}})
	require.NoError(t, err)
	assert.Equal(t, 3, start)
}

func TestTable_Keys(t *testing.T) {
	wb := sheet.NewMemWorkbook()
	st, err := Init(wb, "DATABASE", 2)
	require.NoError(t, err)

	_, err = st.Entries.Append([][]sheet.Cell{
		entryRow("SA_20250315_3", 1),
		entryRow("SA_20250315_3", 10),
	})
	require.NoError(t, err)

	keys, err := st.Entries.Keys()
	require.NoError(t, err)
	assert.Len(t, keys, 2)
	assert.True(t, keys.Has("SA_20250315_3|1"))
	assert.True(t, keys.Has("SA_20250315_3|10"))
	assert.False(t, keys.Has("SA_20250315_3"))

	keys, err = st.Winners.Keys()
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestTable_KeysIgnoreHeaderAndBlankRows(t *testing.T) {
	g := sheet.NewMemSheet("DATABASE")
	tbl := NewTable(g, MetadataSpec, 2)
	require.NoError(t, tbl.EnsureHeader())

	g.Set(2, 15, sheet.Text("SA_20250315_3"))
	g.Set(4, 15, sheet.Text("SA_20250315_5"))

	keys, err := tbl.Keys()
	require.NoError(t, err)
	assert.Len(t, keys, 2)
	assert.False(t, keys.Has("Race ID"))
}

func TestTable_AppendWidthMismatch(t *testing.T) {
	g := sheet.NewMemSheet("DATABASE")
	tbl := NewTable(g, WinnersSpec, 2)
	_, err := tbl.Append([][]sheet.Cell{{sheet.Text("x")}})
	assert.Error(t, err)

	start, err := tbl.Append(nil)
	require.NoError(t, err)
	assert.Equal(t, 0, start)
}

func TestKeyPart(t *testing.T) {
	assert.Equal(t, "4", KeyPart(sheet.Number(4)))
	assert.Equal(t, "4.5", KeyPart(sheet.Number(4.5)))
	assert.Equal(t, "SA_1", KeyPart(sheet.Text(" SA_1 ")))
	assert.Equal(t, "", KeyPart(sheet.Cell{}))
}

func TestOpen_MissingSheet(t *testing.T) {
	_, err := Open(sheet.NewMemWorkbook(), "DATABASE", 2)
	require.Error(t, err)
	assert.True(t, errors.Is(err, sheet.ErrSheetNotFound))
}

func TestEnsureHeader_Idempotent(t *testing.T) {
	g := sheet.NewMemSheet("DATABASE")
	tbl := NewTable(g, EntriesSpec, 2)
	require.NoError(t, tbl.EnsureHeader())
	g.Set(1, 1, sheet.Text("custom"))
	require.NoError(t, tbl.EnsureHeader())
	assert.Equal(t, "custom", g.Get(1, 1).String())
}
