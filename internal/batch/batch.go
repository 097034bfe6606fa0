// Package batch runs resumable, time-budgeted jobs over an ordered list of
// units (track codes or dates). Progress lives in a progress.State so an
// interrupted run picks up where it stopped on the next invocation.
package batch

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/race-sync/internal/metrics"
	"github.com/sells-group/race-sync/internal/progress"
)

// DefaultBudget stays under the six minute ceiling of the hosts that
// schedule these jobs.
const DefaultBudget = 330 * time.Second

// UnitFunc processes one unit.
type UnitFunc func(ctx context.Context, unit string) error

// UnitError records a unit that failed.
type UnitError struct {
	Unit  string `json:"unit"`
	Error string `json:"error"`
}

// Summary is the outcome of one Run.
type Summary struct {
	RunID     string        `json:"run_id"`
	Job       string        `json:"job"`
	Session   string        `json:"session,omitempty"`
	Resumed   bool          `json:"resumed"`
	Total     int           `json:"total"`
	Completed []string      `json:"completed"`
	Skipped   []string      `json:"skipped,omitempty"`
	Remaining []string      `json:"remaining,omitempty"`
	TimedOut  bool          `json:"timed_out"`
	Finished  bool          `json:"finished"`
	Errors    []UnitError   `json:"errors,omitempty"`
	Success   bool          `json:"success"`
	Duration  time.Duration `json:"duration_ns"`
}

// Processor drives units through a UnitFunc.
type Processor struct {
	state   progress.State
	budget  time.Duration
	now     func() time.Time
	metrics *metrics.Recorder
}

// Option configures a Processor.
type Option func(*Processor)

// WithBudget sets the wall-clock budget of one Run. Non-positive values
// keep DefaultBudget.
func WithBudget(d time.Duration) Option {
	return func(p *Processor) {
		if d > 0 {
			p.budget = d
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(p *Processor) { p.now = now }
}

// WithMetrics records per-unit metrics.
func WithMetrics(m *metrics.Recorder) Option {
	return func(p *Processor) { p.metrics = m }
}

// NewProcessor creates a Processor backed by state.
func NewProcessor(state progress.State, opts ...Option) *Processor {
	p := &Processor{state: state, budget: DefaultBudget, now: time.Now}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Run processes units in order. Units already stamped in the current
// session are skipped. Before each unit the elapsed time is checked
// against the budget; once exceeded (or ctx is done) the run stops and the
// rest is reported as Remaining. Failed units are not stamped, so the next
// run retries them. When every unit of the session is stamped the job's
// progress is cleared.
func (p *Processor) Run(ctx context.Context, job string, units []string, fn UnitFunc) (*Summary, error) {
	start := p.now()
	sum := &Summary{RunID: uuid.NewString(), Job: job, Total: len(units)}
	log := zap.L().With(
		zap.String("component", "batch"),
		zap.String("job", job),
		zap.String("run_id", sum.RunID),
	)

	snap, err := p.state.Load(ctx, job)
	if err != nil {
		return nil, eris.Wrapf(err, "batch: load progress for %s", job)
	}

	sum.Session = snap.Session
	sum.Resumed = snap.Active()
	if !sum.Resumed {
		sum.Session = start.UTC().Format(time.RFC3339Nano)
		if err := p.state.StartSession(ctx, job, sum.Session); err != nil {
			return nil, eris.Wrapf(err, "batch: start session for %s", job)
		}
	}

	pending := make([]string, 0, len(units))
	for _, u := range units {
		if snap.Done(u) {
			sum.Skipped = append(sum.Skipped, u)
			continue
		}
		pending = append(pending, u)
	}

	log.Info("batch run starting",
		zap.String("session", sum.Session),
		zap.Bool("resumed", sum.Resumed),
		zap.Int("units", len(units)),
		zap.Int("pending", len(pending)),
	)

	for i, u := range pending {
		if ctx.Err() != nil || p.now().Sub(start) >= p.budget {
			sum.TimedOut = true
			sum.Remaining = append(sum.Remaining, pending[i:]...)
			log.Warn("batch budget exhausted",
				zap.Duration("elapsed", p.now().Sub(start)),
				zap.Int("remaining", len(pending)-i),
			)
			break
		}

		unitStart := p.now()
		err := fn(ctx, u)
		if err == nil {
			err = p.state.MarkUnit(ctx, job, u, sum.Session)
		}
		if err != nil {
			p.metrics.Unit(job, "error", p.now().Sub(unitStart))
			log.Error("batch unit failed", zap.String("unit", u), zap.Error(err))
			sum.Errors = append(sum.Errors, UnitError{Unit: u, Error: err.Error()})
			sum.Remaining = append(sum.Remaining, u)
			continue
		}
		p.metrics.Unit(job, "ok", p.now().Sub(unitStart))
		log.Debug("batch unit done", zap.String("unit", u))
		sum.Completed = append(sum.Completed, u)
	}

	if len(sum.Remaining) == 0 {
		// Clear even if ctx was cancelled after the last unit.
		if err := p.state.Clear(context.WithoutCancel(ctx), job); err != nil {
			return sum, eris.Wrapf(err, "batch: clear progress for %s", job)
		}
		sum.Finished = true
	}

	sum.Success = !sum.TimedOut && len(sum.Errors) == 0
	sum.Duration = p.now().Sub(start)
	log.Info("batch run complete",
		zap.Int("completed", len(sum.Completed)),
		zap.Int("skipped", len(sum.Skipped)),
		zap.Int("remaining", len(sum.Remaining)),
		zap.Int("errors", len(sum.Errors)),
		zap.Bool("timed_out", sum.TimedOut),
		zap.Bool("finished", sum.Finished),
	)
	return sum, nil
}

// Reset clears every marker of job so the next run starts fresh.
func (p *Processor) Reset(ctx context.Context, job string) error {
	if err := p.state.Clear(ctx, job); err != nil {
		return eris.Wrapf(err, "batch: reset %s", job)
	}
	zap.L().Info("batch progress reset", zap.String("component", "batch"), zap.String("job", job))
	return nil
}

// Status returns the persisted progress of job.
func (p *Processor) Status(ctx context.Context, job string) (progress.Snapshot, error) {
	snap, err := p.state.Load(ctx, job)
	if err != nil {
		return snap, eris.Wrapf(err, "batch: status %s", job)
	}
	return snap, nil
}
