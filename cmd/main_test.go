package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/race-sync/internal/config"
	"github.com/sells-group/race-sync/internal/metrics"
	"github.com/sells-group/race-sync/internal/model"
	"github.com/sells-group/race-sync/internal/normalize"
	"github.com/sells-group/race-sync/internal/progress"
	"github.com/sells-group/race-sync/internal/sheet"
	"github.com/sells-group/race-sync/internal/tracking"
	"github.com/sells-group/race-sync/pkg/raceapi"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

var raceDay = time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC)

func testConfig(apiURL string) *config.Config {
	return &config.Config{
		API: config.APIConfig{
			BaseURL:     apiURL,
			Key:         "test-key",
			TimeoutSecs: 5,
			MaxRetries:  1,
			Source:      "race-sync",
		},
		Tracking:  config.TrackingConfig{Sheet: "DATABASE", FirstDataRow: 2},
		Races:     config.RacesConfig{MinNumber: 3, MaxNumber: 15, MaxHorses: 16},
		Columns:   model.DefaultColumns(),
		Normalize: config.NormalizeConfig{SafeCeiling: 1e15, NumericCeiling: 1e10},
		TEE:       config.TEEConfig{TotalsSheet: "TOTALS", TotalsCells: []string{"B1", "C1", "D1", "E1"}},
		Batch:     config.BatchConfig{BudgetSecs: 330},
		Progress:  config.ProgressConfig{Driver: "sheet"},
	}
}

// fakeAPI serves one day of Santa Anita data and records ingest bodies.
type fakeAPI struct {
	ingestStatus int
	ingested     []raceapi.IngestRequest
	requests     atomic.Int32
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.requests.Add(1)
	if r.Header.Get("X-API-Key") != "test-key" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	switch r.URL.Path {
	case "/entries":
		_, _ = io.WriteString(w, `{"success":true,"entries":[
			{"raceId":"SA_20250315_3","horseNumber":1,"ml":"$2.50","double":11.2,"age":"3YO","type":"MSW","purse":50000},
			{"raceId":"SA_20250315_3","horseNumber":"2","ml":4},
			{"raceId":"SA_20250315_4","horseNumber":1,"ml":3}
		]}`)
	case "/winners":
		_, _ = io.WriteString(w, `{"success":true,"winners":[{"raceId":"SA_20250315_3","winningHorseNumber":2}]}`)
	case "/races/ingest":
		var req raceapi.IngestRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		f.ingested = append(f.ingested, req)
		if f.ingestStatus != 0 && f.ingestStatus != http.StatusOK {
			w.WriteHeader(f.ingestStatus)
			_, _ = io.WriteString(w, `{"success":false,"message":"validation failed","errors":["race 3: bad entry"]}`)
			return
		}
		_, _ = io.WriteString(w, `{"success":true,"message":"ok","statistics":{"races":1}}`)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

// writeWorkbook saves a track workbook with an empty tracking sheet and a
// report sheet for raceDay with blocks for races 3 and 4.
func writeWorkbook(t *testing.T, path string, fill func(s *sheet.MemSheet)) {
	t.Helper()
	wb := sheet.NewMemWorkbook()
	_, err := tracking.Init(wb, "DATABASE", 2)
	require.NoError(t, err)
	g, err := wb.AddSheet(model.SheetName(raceDay))
	require.NoError(t, err)
	s := g.(*sheet.MemSheet)
	s.Set(4, 2, sheet.Text(model.RaceLabel(3)))
	s.Set(22, 2, sheet.Text(model.RaceLabel(4)))
	if fill != nil {
		fill(s)
	}
	require.NoError(t, sheet.SaveXLSX(wb, path))
}

func newTestEnv(t *testing.T, api *fakeAPI, reg prometheus.Registerer) (*appEnv, config.Track) {
	t.Helper()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	prev := cfg
	cfg = testConfig(srv.URL)
	t.Cleanup(func() { cfg = prev })

	tr := config.Track{Name: "Santa Anita", Code: "SA", Workbook: filepath.Join(t.TempDir(), "sa.xlsx")}
	writeWorkbook(t, tr.Workbook, nil)

	env := &appEnv{
		Tracks:  config.Tracks{"SA": tr},
		State:   progress.NewSheetState(sheet.NewMemWorkbook(), ""),
		Metrics: metrics.NewRecorder(reg),
		Norm:    normalize.Default(),
	}
	var err error
	env.Client, err = newAPIClient(env.Metrics)
	require.NoError(t, err)
	return env, tr
}

func loadSheet(t *testing.T, path, name string) sheet.Grid {
	t.Helper()
	wb, err := sheet.LoadXLSX(path)
	require.NoError(t, err)
	g, err := wb.Sheet(name)
	require.NoError(t, err)
	return g
}

func cell(t *testing.T, g sheet.Grid, row, col int) sheet.Cell {
	t.Helper()
	rows, err := g.Read(sheet.Range{Row: row, Col: col, Rows: 1, Cols: 1})
	require.NoError(t, err)
	return rows[0][0]
}

func TestRunDailySync(t *testing.T) {
	env, tr := newTestEnv(t, &fakeAPI{}, nil)

	out, err := runDailySync(context.Background(), env, raceDay, nil)
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Equal(t, "2025-03-15", out.Date)
	assert.Equal(t, []string{"SA"}, out.Batch.Completed)
	assert.True(t, out.Batch.Finished)

	res := out.Tracks["SA"]
	assert.Equal(t, 3, res.Entries.Appended)
	assert.Equal(t, 1, res.Metadata.Appended)
	assert.Equal(t, 1, res.Winners.Appended)

	g := loadSheet(t, tr.Workbook, "DATABASE")
	assert.Equal(t, "SA_20250315_3", cell(t, g, 2, 1).String())
	assert.Equal(t, 2.5, cell(t, g, 2, 3).Value)
	assert.Equal(t, "SA_20250315_3", cell(t, g, 2, sheet.MustColumn("L")).String())

	// A second sync of the same day appends nothing.
	out, err = runDailySync(context.Background(), env, raceDay, []string{"sa"})
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Equal(t, 0, out.Totals.Appended)
	assert.Equal(t, 5, out.Totals.Duplicates)
}

func TestRunDailySync_UnknownTrack(t *testing.T) {
	env, _ := newTestEnv(t, &fakeAPI{}, nil)
	_, err := runDailySync(context.Background(), env, raceDay, []string{"GP"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errUnknownTrack))
}

func TestRunDailySync_MissingTrackingSheet(t *testing.T) {
	env, tr := newTestEnv(t, &fakeAPI{}, nil)
	wb := sheet.NewMemWorkbook()
	_, err := wb.AddSheet("NOTES")
	require.NoError(t, err)
	require.NoError(t, sheet.SaveXLSX(wb, tr.Workbook))

	out, err := runDailySync(context.Background(), env, raceDay, nil)
	require.NoError(t, err)
	assert.False(t, out.Success)
	require.Len(t, out.Batch.Errors, 1)
	assert.Equal(t, "SA", out.Batch.Errors[0].Unit)
	assert.Equal(t, []string{"SA"}, out.Batch.Remaining)
}

func TestRunTEE(t *testing.T) {
	env, tr := newTestEnv(t, &fakeAPI{}, nil)
	_, err := runDailySync(context.Background(), env, raceDay, nil)
	require.NoError(t, err)

	out, err := runTEE(context.Background(), env, tr, raceDay, raceDay)
	require.NoError(t, err)
	assert.True(t, out.Success)
	day, ok := out.Dates["2025-03-15"]
	require.True(t, ok)
	assert.Equal(t, 3, day.Populate.Appended)
	assert.Equal(t, 1, day.Totals.Appended)

	g := loadSheet(t, tr.Workbook, "03/15/25")
	assert.Equal(t, 1.0, cell(t, g, 5, 2).Value)
	assert.Equal(t, 2.0, cell(t, g, 6, 2).Value)
	assert.Equal(t, "3YO", cell(t, g, 4, 3).String())
	assert.Equal(t, 2.0, cell(t, g, 4, 7).Value, "winner")
	assert.Equal(t, 1.0, cell(t, g, 23, 2).Value)

	totals := loadSheet(t, tr.Workbook, "TOTALS")
	assert.Equal(t, "03/15/25", cell(t, totals, 2, 1).String())
	assert.Equal(t, "='03/15/25'!B1", cell(t, totals, 2, 2).Formula)

	// Rerunning converges and does not add a second totals row.
	out, err = runTEE(context.Background(), env, tr, raceDay, raceDay)
	require.NoError(t, err)
	assert.Equal(t, 1, out.Dates["2025-03-15"].Totals.Duplicates)
}

func fillRace3(s *sheet.MemSheet) {
	c := model.DefaultColumns()
	row := func(r int, horse float64, wp2, wp1 string) {
		s.Set(r, 2+c.Horse, sheet.Number(horse))
		s.Set(r, 2+c.ML, sheet.Number(2.5))
		s.Set(r, 2+c.WillPay2, sheet.Text(wp2))
		s.Set(r, 2+c.WillPay1P3, sheet.Text(wp1))
	}
	row(5, 1, "$5.00", "$3.00")
	row(6, 2, "SC", "SC")
	s.Set(4, 2+model.BlockWinnerTagCol, sheet.Text(model.WinnerTag))
	s.Set(4, 2+model.BlockWinnerCol, sheet.Number(1))
}

func TestRunSubmit(t *testing.T) {
	api := &fakeAPI{}
	env, tr := newTestEnv(t, api, nil)
	writeWorkbook(t, tr.Workbook, fillRace3)

	out, err := runSubmit(context.Background(), env, tr, raceDay, false)
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Equal(t, 1, out.Races)
	assert.Equal(t, 1, out.Entries)
	assert.Equal(t, 1, out.Winners)
	assert.Equal(t, 1, out.Scratched)
	assert.Equal(t, map[string]int{"races": 1}, out.Statistics)

	require.Len(t, api.ingested, 1)
	req := api.ingested[0]
	assert.Equal(t, "race-sync", req.Source)
	require.Len(t, req.Races, 1)
	assert.Equal(t, 3, req.Races[0].RaceNumber)
	assert.Equal(t, "SA", req.Races[0].TrackCode)
	require.Len(t, req.RaceWinners, 1)
	w, ok := req.RaceWinners[req.Races[0].RaceID]
	require.True(t, ok, "winners are keyed by race id")
	assert.Equal(t, req.Races[0].RaceID, w.RaceID)
	assert.Equal(t, 1, w.WinningHorseNumber)
	assert.Equal(t, model.ConfidenceHigh, w.Confidence)
	require.NotNil(t, w.Payout2)
	assert.Equal(t, 5.0, *w.Payout2)
}

func TestRunSubmit_DryRun(t *testing.T) {
	api := &fakeAPI{}
	env, tr := newTestEnv(t, api, nil)
	writeWorkbook(t, tr.Workbook, fillRace3)

	out, err := runSubmit(context.Background(), env, tr, raceDay, true)
	require.NoError(t, err)
	assert.True(t, out.Success)
	require.NotNil(t, out.Payload)
	assert.Len(t, out.Payload.Races, 1)
	assert.Empty(t, api.ingested)
}

func TestRunSubmit_Rejected(t *testing.T) {
	api := &fakeAPI{ingestStatus: http.StatusUnprocessableEntity}
	env, tr := newTestEnv(t, api, nil)
	writeWorkbook(t, tr.Workbook, fillRace3)

	out, err := runSubmit(context.Background(), env, tr, raceDay, false)
	require.NoError(t, err)
	assert.False(t, out.Success)
	assert.Equal(t, "validation failed", out.Message)
	assert.Equal(t, []string{"race 3: bad entry"}, out.Errors)
}

func TestRunSubmit_NothingToSend(t *testing.T) {
	api := &fakeAPI{}
	env, tr := newTestEnv(t, api, nil)

	out, err := runSubmit(context.Background(), env, tr, raceDay, false)
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Equal(t, "nothing to submit", out.Message)
	assert.Empty(t, api.ingested)
}

func TestRouter(t *testing.T) {
	reg := prometheus.NewRegistry()
	env, _ := newTestEnv(t, &fakeAPI{}, reg)
	h := newRouter(env, reg)

	do := func(method, path, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		return rr
	}

	rr := do(http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())

	rr = do(http.MethodPost, "/sync/daily", "not json")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(http.MethodPost, "/sync/daily", `{"date":"15/03/2025"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(http.MethodPost, "/sync/daily", `{"date":"2025-03-15","tracks":["GP"]}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(http.MethodPost, "/sync/daily", `{"date":"2025-03-15","tracks":["SA"]}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var out dailySummary
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	assert.True(t, out.Success)
	assert.Equal(t, 3, out.Tracks["SA"].Entries.Appended)

	rr = do(http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "race_sync_api_requests_total")
	assert.Contains(t, rr.Body.String(), "race_sync_items_total")
}

func TestStatusOf(t *testing.T) {
	s := statusOf(progress.Snapshot{Job: "tee:SA", Session: "s1", Units: map[string]string{"2025-03-15": "s1", "2025-03-14": "s0"}})
	assert.True(t, s.Active)
	assert.Equal(t, []string{"2025-03-15"}, s.Completed)

	s = statusOf(progress.Snapshot{Job: "tee:SA"})
	assert.False(t, s.Active)
	assert.Equal(t, []string{}, s.Completed)
}

func TestReport(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, report(&buf, failure{Success: true}, true))
	assert.JSONEq(t, `{"success":true,"error":""}`, buf.String())

	buf.Reset()
	err := report(&buf, failure{Error: "boom"}, false)
	assert.True(t, errors.Is(err, errUnsuccessful))
	assert.Contains(t, buf.String(), "boom")
}

func TestParseDate(t *testing.T) {
	d, err := parseDate("2025-03-15")
	require.NoError(t, err)
	assert.Equal(t, raceDay, d)

	d, err = parseDate("")
	require.NoError(t, err)
	assert.Equal(t, 0, d.Hour())

	_, err = parseDate("03/15/25")
	assert.Error(t, err)
}

func TestOpenState(t *testing.T) {
	dir := t.TempDir()

	st, err := openState(context.Background(), config.ProgressConfig{Driver: "sqlite", DSN: filepath.Join(dir, "p.db")})
	require.NoError(t, err)
	require.NoError(t, st.Close())

	st, err = openState(context.Background(), config.ProgressConfig{Driver: "sheet", DSN: filepath.Join(dir, "p.xlsx")})
	require.NoError(t, err)
	require.NoError(t, st.Close())

	_, err = openState(context.Background(), config.ProgressConfig{Driver: "redis"})
	assert.Error(t, err)
}

func TestCommandTree(t *testing.T) {
	var names []string
	for _, c := range rootCmd.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"sync", "tee", "submit", "progress", "serve"} {
		assert.Contains(t, names, want)
	}
}
