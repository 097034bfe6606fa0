package main

import (
	"github.com/spf13/cobra"

	"github.com/sells-group/race-sync/internal/progress"
)

var progressJob string

var progressCmd = &cobra.Command{
	Use:   "progress",
	Short: "Inspect or reset resumable job progress",
}

var progressStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the session marker and completed units of a job",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer env.Close()

		snap, err := env.processor().Status(cmd.Context(), progressJob)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), statusOf(snap))
	},
}

var progressResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Clear a job's progress so the next run starts fresh",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer env.Close()

		if err := env.processor().Reset(cmd.Context(), progressJob); err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), map[string]any{"success": true, "job": progressJob})
	},
}

func init() {
	for _, c := range []*cobra.Command{progressStatusCmd, progressResetCmd} {
		c.Flags().StringVar(&progressJob, "job", "", "job name, e.g. sync-daily:2025-03-15 or tee:SA")
		_ = c.MarkFlagRequired("job")
		progressCmd.AddCommand(c)
	}
	rootCmd.AddCommand(progressCmd)
}

type jobStatus struct {
	Success   bool     `json:"success"`
	Job       string   `json:"job"`
	Active    bool     `json:"active"`
	Session   string   `json:"session,omitempty"`
	Completed []string `json:"completed"`
}

func statusOf(s progress.Snapshot) jobStatus {
	done := s.DoneUnits()
	if done == nil {
		done = []string{}
	}
	return jobStatus{Success: true, Job: s.Job, Active: s.Active(), Session: s.Session, Completed: done}
}
