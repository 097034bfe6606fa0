package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/race-sync/internal/config"
	"github.com/sells-group/race-sync/internal/ingest"
	"github.com/sells-group/race-sync/internal/model"
	"github.com/sells-group/race-sync/internal/sheet"
	"github.com/sells-group/race-sync/pkg/raceapi"
)

var (
	submitDate   string
	submitTrack  string
	submitDryRun bool
)

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit a dated report sheet's races and winners to the backend",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		date, err := parseDate(submitDate)
		if err != nil {
			return err
		}

		env, err := initEnv(ctx, !submitDryRun)
		if err != nil {
			return err
		}
		defer env.Close()

		tr, err := env.track(submitTrack)
		if err != nil {
			return err
		}
		out, err := runSubmit(ctx, env, tr, date, submitDryRun)
		if err != nil {
			return err
		}
		return report(cmd.OutOrStdout(), out, out.Success)
	},
}

func init() {
	submitCmd.Flags().StringVar(&submitDate, "date", "", "race date, yyyy-mm-dd (default today)")
	submitCmd.Flags().StringVar(&submitTrack, "track", "", "track code")
	submitCmd.Flags().BoolVar(&submitDryRun, "dry-run", false, "print the payload instead of sending it")
	_ = submitCmd.MarkFlagRequired("track")
	rootCmd.AddCommand(submitCmd)
}

// submitSummary is the printed outcome of a submission.
type submitSummary struct {
	Success    bool                   `json:"success"`
	Track      string                 `json:"track"`
	Date       string                 `json:"date"`
	DryRun     bool                   `json:"dry_run"`
	Races      int                    `json:"races"`
	Entries    int                    `json:"entries"`
	Winners    int                    `json:"winners"`
	Scratched  int                    `json:"scratched"`
	Invalid    int                    `json:"invalid"`
	Message    string                 `json:"message,omitempty"`
	Errors     []string               `json:"errors,omitempty"`
	Statistics map[string]int         `json:"statistics,omitempty"`
	Payload    *raceapi.IngestRequest `json:"payload,omitempty"`
}

// runSubmit collects the track's report sheet for date, sanitizes it and
// sends it. A backend rejection is reported in the summary, not returned.
func runSubmit(ctx context.Context, env *appEnv, tr config.Track, date time.Time, dryRun bool) (*submitSummary, error) {
	wb, err := sheet.LoadXLSX(tr.Workbook)
	if err != nil {
		return nil, err
	}
	col, err := env.collector(tr, wb).Collect(date)
	if err != nil {
		return nil, err
	}

	req := raceapi.IngestRequest{
		Source:      cfg.API.Source,
		Races:       ingest.SanitizeRaces(col.Races),
		RaceWinners: col.WinnersByRace(),
	}
	out := &submitSummary{
		Track:     tr.Code,
		Date:      date.Format(model.ISODateLayout),
		DryRun:    dryRun,
		Races:     len(req.Races),
		Winners:   len(req.RaceWinners),
		Scratched: col.Scratched,
		Invalid:   col.Invalid,
	}
	for _, r := range req.Races {
		out.Entries += len(r.Entries)
	}

	log := zap.L().With(zap.String("component", "submit"), zap.String("track", tr.Code), zap.String("date", out.Date))
	if dryRun {
		out.Payload = &req
		out.Success = true
		log.Info("dry run, payload not sent", zap.Int("races", out.Races), zap.Int("entries", out.Entries))
		return out, nil
	}
	if len(req.Races) == 0 && len(req.RaceWinners) == 0 {
		out.Success = true
		out.Message = "nothing to submit"
		log.Info("nothing to submit")
		return out, nil
	}

	resp, err := env.Client.Ingest(ctx, req)
	var rejected *raceapi.SubmitError
	switch {
	case errors.As(err, &rejected):
		out.Message = rejected.Message
		out.Errors = rejected.Errors
		out.Statistics = rejected.Statistics
		log.Warn("submission rejected", zap.Int("status", rejected.StatusCode), zap.Strings("errors", rejected.Errors))
		return out, nil
	case err != nil:
		return nil, err
	}

	out.Success = resp.Success
	out.Message = resp.Message
	out.Errors = resp.Errors
	out.Statistics = resp.Statistics
	log.Info("submission accepted",
		zap.Int("races", out.Races),
		zap.Int("entries", out.Entries),
		zap.Int("winners", out.Winners),
	)
	return out, nil
}
