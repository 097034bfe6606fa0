package progress

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/race-sync/internal/sheet"
)

func newTestSQLiteState(t *testing.T) *SQLiteState {
	t.Helper()
	st, err := NewSQLite(context.Background(), filepath.Join(t.TempDir(), "progress.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	return st
}

// stateContract exercises behaviour every adapter must share.
func stateContract(t *testing.T, st State) {
	ctx := context.Background()

	snap, err := st.Load(ctx, "daily")
	require.NoError(t, err)
	assert.False(t, snap.Active())
	assert.Empty(t, snap.Units)

	require.NoError(t, st.StartSession(ctx, "daily", "s1"))
	require.NoError(t, st.MarkUnit(ctx, "daily", "SA", "s1"))
	require.NoError(t, st.MarkUnit(ctx, "tee", "03/15/25", "t1"))

	snap, err = st.Load(ctx, "daily")
	require.NoError(t, err)
	assert.Equal(t, "s1", snap.Session)
	assert.True(t, snap.Done("SA"))
	assert.False(t, snap.Done("DMR"))
	assert.Equal(t, []string{"SA"}, snap.DoneUnits())

	// A new session makes older stamps stale.
	require.NoError(t, st.StartSession(ctx, "daily", "s2"))
	snap, err = st.Load(ctx, "daily")
	require.NoError(t, err)
	assert.Equal(t, "s2", snap.Session)
	assert.False(t, snap.Done("SA"))

	require.NoError(t, st.MarkUnit(ctx, "daily", "SA", "s2"))
	snap, err = st.Load(ctx, "daily")
	require.NoError(t, err)
	assert.True(t, snap.Done("SA"))
	assert.Len(t, snap.Units, 1)

	require.NoError(t, st.Clear(ctx, "daily"))
	snap, err = st.Load(ctx, "daily")
	require.NoError(t, err)
	assert.False(t, snap.Active())
	assert.Empty(t, snap.Units)

	// Other jobs are untouched.
	other, err := st.Load(ctx, "tee")
	require.NoError(t, err)
	assert.Equal(t, "t1", other.Units["03/15/25"])
}

func TestSQLiteState(t *testing.T) {
	stateContract(t, newTestSQLiteState(t))
}

func TestSheetState(t *testing.T) {
	wb := sheet.NewMemWorkbook()
	stateContract(t, NewSheetState(wb, ""))

	g, err := wb.Sheet(DefaultSheetName)
	require.NoError(t, err)
	last, err := g.LastRow(1)
	require.NoError(t, err)
	assert.Equal(t, 1, last, "only the tee record remains")
}

func TestSQLiteState_Persists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "progress.db")
	ctx := context.Background()

	st, err := NewSQLite(ctx, path)
	require.NoError(t, err)
	require.NoError(t, st.StartSession(ctx, "daily", "s1"))
	require.NoError(t, st.MarkUnit(ctx, "daily", "SA", "s1"))
	require.NoError(t, st.Close())

	st, err = NewSQLite(ctx, path)
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck
	snap, err := st.Load(ctx, "daily")
	require.NoError(t, err)
	assert.True(t, snap.Done("SA"))
}

func TestSheetState_EmptyUnitRejected(t *testing.T) {
	st := NewSheetState(sheet.NewMemWorkbook(), "")
	assert.Error(t, st.MarkUnit(context.Background(), "daily", "", "s1"))
}

func TestSnapshot_Done(t *testing.T) {
	s := Snapshot{Units: map[string]string{"SA": ""}}
	assert.False(t, s.Done("SA"), "no session means nothing is done")
}

func TestSheetFile_Persists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "progress.xlsx")
	ctx := context.Background()

	f, err := OpenSheetFile(path)
	require.NoError(t, err)
	stateContract(t, f)
	require.NoError(t, f.StartSession(ctx, "daily", "2025-03-15T12:00:00Z"))
	require.NoError(t, f.MarkUnit(ctx, "daily", "2025-03-15", "2025-03-15T12:00:00Z"))
	require.NoError(t, f.Close())

	f, err = OpenSheetFile(path)
	require.NoError(t, err)
	snap, err := f.Load(ctx, "daily")
	require.NoError(t, err)
	assert.Equal(t, "2025-03-15T12:00:00Z", snap.Session)
	assert.True(t, snap.Done("2025-03-15"))
}
