package main

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/race-sync/internal/batch"
	"github.com/sells-group/race-sync/internal/config"
	"github.com/sells-group/race-sync/internal/db"
	"github.com/sells-group/race-sync/internal/ingest"
	"github.com/sells-group/race-sync/internal/metrics"
	"github.com/sells-group/race-sync/internal/normalize"
	"github.com/sells-group/race-sync/internal/progress"
	"github.com/sells-group/race-sync/internal/reconcile"
	"github.com/sells-group/race-sync/internal/resilience"
	"github.com/sells-group/race-sync/internal/sheet"
	"github.com/sells-group/race-sync/internal/tracking"
	"github.com/sells-group/race-sync/pkg/raceapi"
)

// recorder is shared by every command of the process and exported on
// /metrics by serve.
var recorder = sync.OnceValue(func() *metrics.Recorder {
	return metrics.NewRecorder(prometheus.DefaultRegisterer)
})

// appEnv holds the clients and stores a command needs.
type appEnv struct {
	Tracks  config.Tracks
	Client  raceapi.Client // nil for offline commands
	State   progress.State
	Metrics *metrics.Recorder
	Norm    *normalize.Normalizer
}

// Close releases resources held by the environment.
func (e *appEnv) Close() {
	if e.State != nil {
		if err := e.State.Close(); err != nil {
			zap.L().Warn("close progress state", zap.Error(err))
		}
	}
}

// initEnv validates the config and builds the environment. withClient
// also builds the backend API client, which requires the API settings.
func initEnv(ctx context.Context, withClient bool) (*appEnv, error) {
	validate := cfg.ValidateOffline
	if withClient {
		validate = cfg.Validate
	}
	if err := validate(); err != nil {
		return nil, err
	}

	tracks, err := config.LoadTracks(cfg.TracksFile)
	if err != nil {
		return nil, err
	}

	env := &appEnv{
		Tracks:  tracks,
		Metrics: recorder(),
		Norm: normalize.New(normalize.Options{
			SafeCeiling:    cfg.Normalize.SafeCeiling,
			NumericCeiling: cfg.Normalize.NumericCeiling,
		}),
	}

	if withClient {
		env.Client, err = newAPIClient(env.Metrics)
		if err != nil {
			return nil, err
		}
	}

	env.State, err = openState(ctx, cfg.Progress)
	if err != nil {
		return nil, err
	}
	return env, nil
}

func newAPIClient(rec *metrics.Recorder) (raceapi.Client, error) {
	return raceapi.NewClient(cfg.API.BaseURL, cfg.API.Key,
		raceapi.WithTimeout(time.Duration(cfg.API.TimeoutSecs)*time.Second),
		raceapi.WithRateLimit(cfg.API.RatePerSec),
		raceapi.WithRetry(resilience.WithAttempts(cfg.API.MaxRetries)),
		raceapi.WithBreaker(resilience.NewBreaker(5, 30*time.Second)),
		raceapi.WithObserver(rec.APIRequest),
	)
}

// openState opens the job-state backend selected by progress.driver.
func openState(ctx context.Context, pc config.ProgressConfig) (progress.State, error) {
	switch pc.Driver {
	case "sqlite":
		return progress.NewSQLite(ctx, pc.DSN)
	case "postgres":
		pool, err := db.Connect(ctx, pc.DSN)
		if err != nil {
			return nil, err
		}
		st := progress.NewPostgres(pool)
		if err := st.Migrate(ctx); err != nil {
			pool.Close()
			return nil, err
		}
		return st, nil
	case "sheet":
		dsn := pc.DSN
		if dsn == "" {
			dsn = "race-sync-progress.xlsx"
		}
		return progress.OpenSheetFile(dsn)
	default:
		return nil, eris.Errorf("unsupported progress driver: %s", pc.Driver)
	}
}

func (e *appEnv) processor() *batch.Processor {
	return batch.NewProcessor(e.State,
		batch.WithBudget(time.Duration(cfg.Batch.BudgetSecs)*time.Second),
		batch.WithMetrics(e.Metrics),
	)
}

// errUnknownTrack is returned for a code missing from the roster.
var errUnknownTrack = errors.New("unknown track")

func (e *appEnv) track(code string) (config.Track, error) {
	tr, ok := e.Tracks.Get(code)
	if !ok {
		return tr, eris.Wrapf(errUnknownTrack, "%q", code)
	}
	return tr, nil
}

// engine binds a reconciliation engine to a loaded track workbook.
func (e *appEnv) engine(tr config.Track, wb sheet.Workbook) (*reconcile.Engine, error) {
	store, err := tracking.Open(wb, cfg.Tracking.Sheet, cfg.Tracking.FirstDataRow)
	if err != nil {
		return nil, eris.Wrapf(err, "track %s", tr.Code)
	}
	return reconcile.NewEngine(wb, store, reconcile.Config{
		TrackCode:   tr.Code,
		TrackName:   tr.Name,
		MinRace:     cfg.Races.MinNumber,
		MaxRace:     cfg.Races.MaxNumber,
		MaxHorses:   cfg.Races.MaxHorses,
		TotalsSheet: cfg.TEE.TotalsSheet,
		TotalsCells: cfg.TEE.TotalsCells,
		Columns:     cfg.Columns,
	}, reconcile.WithNormalizer(e.Norm), reconcile.WithMetrics(e.Metrics)), nil
}

func (e *appEnv) collector(tr config.Track, wb sheet.Workbook) *ingest.Collector {
	return ingest.NewCollector(wb, ingest.CollectorConfig{
		TrackCode: tr.Code,
		TrackName: tr.Name,
		MinRace:   cfg.Races.MinNumber,
		MaxRace:   cfg.Races.MaxNumber,
		MaxHorses: cfg.Races.MaxHorses,
		Columns:   cfg.Columns,
	}, e.Norm)
}
