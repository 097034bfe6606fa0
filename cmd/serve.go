package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve health, metrics and a daily-sync trigger over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx, true)
		if err != nil {
			return err
		}
		defer env.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           newRouter(env, prometheus.DefaultGatherer),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

type syncRequest struct {
	Date   string   `json:"date"`
	Tracks []string `json:"tracks"`
}

// newRouter builds the HTTP API. Daily syncs run on the request goroutine
// and only one may run at a time, since workbooks have a single writer.
func newRouter(env *appEnv, gatherer prometheus.Gatherer) http.Handler {
	var running sync.Mutex

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Post("/sync/daily", func(w http.ResponseWriter, r *http.Request) {
		var req syncRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, failure{Error: "invalid request body"})
			return
		}
		date, err := parseDate(req.Date)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, failure{Error: err.Error()})
			return
		}

		if !running.TryLock() {
			writeJSON(w, http.StatusConflict, failure{Error: "a sync is already running"})
			return
		}
		defer running.Unlock()

		out, err := runDailySync(r.Context(), env, date, req.Tracks)
		if errors.Is(err, errUnknownTrack) {
			writeJSON(w, http.StatusBadRequest, failure{Error: err.Error()})
			return
		}
		if err != nil {
			zap.L().Error("daily sync failed", zap.String("request_id", middleware.GetReqID(r.Context())), zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, failure{Error: err.Error()})
			return
		}
		status := http.StatusOK
		if !out.Success {
			status = http.StatusMultiStatus
		}
		writeJSON(w, status, out)
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
