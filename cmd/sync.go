package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/race-sync/internal/batch"
	"github.com/sells-group/race-sync/internal/config"
	"github.com/sells-group/race-sync/internal/model"
	"github.com/sells-group/race-sync/internal/reconcile"
	"github.com/sells-group/race-sync/internal/sheet"
)

var (
	syncDate   string
	syncTracks []string
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Reconcile backend race data into track workbooks",
}

var syncDailyCmd = &cobra.Command{
	Use:   "daily",
	Short: "Append the day's entries, metadata and winners to each track's tracking sheet",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		date, err := parseDate(syncDate)
		if err != nil {
			return err
		}

		env, err := initEnv(ctx, true)
		if err != nil {
			return err
		}
		defer env.Close()

		out, err := runDailySync(ctx, env, date, syncTracks)
		if err != nil {
			return err
		}
		return report(cmd.OutOrStdout(), out, out.Success)
	},
}

func init() {
	syncDailyCmd.Flags().StringVar(&syncDate, "date", "", "race date, yyyy-mm-dd (default today)")
	syncDailyCmd.Flags().StringSliceVar(&syncTracks, "tracks", nil, "track codes (default every track in the roster)")
	syncCmd.AddCommand(syncDailyCmd)
	rootCmd.AddCommand(syncCmd)
}

// dailySummary is the printed outcome of a daily sync.
type dailySummary struct {
	Success bool                             `json:"success"`
	Date    string                           `json:"date"`
	Batch   *batch.Summary                   `json:"batch"`
	Tracks  map[string]reconcile.DailyResult `json:"tracks"`
	Totals  reconcile.Result                 `json:"totals"`
}

func dailyJob(date time.Time) string {
	return "sync-daily:" + date.Format(model.ISODateLayout)
}

// runDailySync runs one resumable daily sync over the given tracks (every
// roster track when codes is empty). Each track is a unit: its workbook is
// loaded, reconciled and saved before the unit is stamped.
func runDailySync(ctx context.Context, env *appEnv, date time.Time, codes []string) (*dailySummary, error) {
	if len(codes) == 0 {
		codes = env.Tracks.Codes()
	}
	units := batch.TrackUnits(codes)
	for _, code := range units {
		if _, err := env.track(code); err != nil {
			return nil, err
		}
	}

	out := &dailySummary{
		Date:   date.Format(model.ISODateLayout),
		Tracks: make(map[string]reconcile.DailyResult, len(units)),
	}
	sum, err := env.processor().Run(ctx, dailyJob(date), units, func(ctx context.Context, code string) error {
		tr, err := env.track(code)
		if err != nil {
			return err
		}
		res, err := syncTrack(ctx, env, tr, date)
		if err != nil {
			return err
		}
		out.Tracks[code] = res
		out.Totals.Add(res.Total())
		return nil
	})
	if err != nil {
		return nil, err
	}
	out.Batch = sum
	out.Success = sum.Success && len(out.Totals.Errors) == 0

	zap.L().Info("daily sync complete",
		zap.String("component", "sync"),
		zap.String("date", out.Date),
		zap.Int("tracks", len(out.Tracks)),
		zap.Int("appended", out.Totals.Appended),
		zap.Int("duplicates", out.Totals.Duplicates),
		zap.Bool("success", out.Success),
	)
	return out, nil
}

func syncTrack(ctx context.Context, env *appEnv, tr config.Track, date time.Time) (reconcile.DailyResult, error) {
	wb, err := sheet.LoadXLSX(tr.Workbook)
	if err != nil {
		return reconcile.DailyResult{}, err
	}
	eng, err := env.engine(tr, wb)
	if err != nil {
		return reconcile.DailyResult{}, err
	}
	res, err := eng.SyncDaily(ctx, env.Client, date)
	if err != nil {
		return res, err
	}
	if res.Total().Appended == 0 {
		return res, nil
	}
	return res, sheet.SaveXLSX(wb, tr.Workbook)
}
