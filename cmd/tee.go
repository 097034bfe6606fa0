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
	teeFrom  string
	teeTo    string
	teeTrack string
)

var teeCmd = &cobra.Command{
	Use:   "tee",
	Short: "Maintain the dated TEE report sheets",
}

var teePopulateCmd = &cobra.Command{
	Use:   "populate",
	Short: "Rebuild race blocks from the tracking sheet and roll totals up, one date at a time",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		from, err := parseDate(teeFrom)
		if err != nil {
			return err
		}
		to := from
		if teeTo != "" {
			if to, err = parseDate(teeTo); err != nil {
				return err
			}
		}

		env, err := initEnv(ctx, false)
		if err != nil {
			return err
		}
		defer env.Close()

		tr, err := env.track(teeTrack)
		if err != nil {
			return err
		}
		out, err := runTEE(ctx, env, tr, from, to)
		if err != nil {
			return err
		}
		return report(cmd.OutOrStdout(), out, out.Success)
	},
}

func init() {
	teePopulateCmd.Flags().StringVar(&teeFrom, "from", "", "first date, yyyy-mm-dd (default today)")
	teePopulateCmd.Flags().StringVar(&teeTo, "to", "", "last date, yyyy-mm-dd (default --from)")
	teePopulateCmd.Flags().StringVar(&teeTrack, "track", "", "track code")
	_ = teePopulateCmd.MarkFlagRequired("track")
	teeCmd.AddCommand(teePopulateCmd)
	rootCmd.AddCommand(teeCmd)
}

// teeDay is the outcome of one date.
type teeDay struct {
	Populate reconcile.Result `json:"populate"`
	Totals   reconcile.Result `json:"totals"`
}

// teeSummary is the printed outcome of a TEE run.
type teeSummary struct {
	Success bool              `json:"success"`
	Track   string            `json:"track"`
	Batch   *batch.Summary    `json:"batch"`
	Dates   map[string]teeDay `json:"dates"`
}

func teeJob(code string) string {
	return "tee:" + code
}

// runTEE populates the report sheet of every date in [from, to] and adds
// each to TOTALS. The workbook is saved after every date so a stamped date
// is always persisted.
func runTEE(ctx context.Context, env *appEnv, tr config.Track, from, to time.Time) (*teeSummary, error) {
	wb, err := sheet.LoadXLSX(tr.Workbook)
	if err != nil {
		return nil, err
	}
	eng, err := env.engine(tr, wb)
	if err != nil {
		return nil, err
	}

	out := &teeSummary{Track: tr.Code, Dates: map[string]teeDay{}}
	sum, err := env.processor().Run(ctx, teeJob(tr.Code), batch.DateUnits(from, to), func(_ context.Context, unit string) error {
		date, err := batch.ParseDateUnit(unit)
		if err != nil {
			return err
		}
		var day teeDay
		if day.Populate, err = eng.PopulateTEE(date); err != nil {
			return err
		}
		if day.Totals, err = eng.RollupTotals(date); err != nil {
			return err
		}
		if err := sheet.SaveXLSX(wb, tr.Workbook); err != nil {
			return err
		}
		out.Dates[unit] = day
		return nil
	})
	if err != nil {
		return nil, err
	}
	out.Batch = sum
	out.Success = sum.Success

	zap.L().Info("tee populate complete",
		zap.String("component", "tee"),
		zap.String("track", tr.Code),
		zap.String("from", from.Format(model.ISODateLayout)),
		zap.String("to", to.Format(model.ISODateLayout)),
		zap.Int("dates", len(out.Dates)),
		zap.Bool("success", out.Success),
	)
	return out, nil
}
