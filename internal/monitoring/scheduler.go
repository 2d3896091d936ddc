// internal/monitoring/scheduler.go
package monitoring

import (
    "context"
    "errors"
    "sync"
    "time"

    "github.com/benbjohnson/clock"
    "github.com/sirupsen/logrus"
)

// Scheduler triggers a batch run on a fixed interval. Runs never overlap; a
// tick that arrives while a run is in progress is skipped.
type Scheduler struct {
    engine   *Engine
    interval time.Duration
    clock    clock.Clock
    running  bool
    mu       sync.Mutex
    quit     chan struct{}
    done     chan struct{}
}

func NewScheduler(engine *Engine, interval time.Duration, clk clock.Clock) *Scheduler {
    if clk == nil {
        clk = clock.New()
    }
    return &Scheduler{
        engine:   engine,
        interval: interval,
        clock:    clk,
    }
}

func (s *Scheduler) Start(ctx context.Context) error {
    s.mu.Lock()
    defer s.mu.Unlock()

    if s.running {
        return nil
    }
    if s.interval <= 0 {
        return errors.New("scheduler interval must be positive")
    }

    s.running = true
    s.quit = make(chan struct{})
    s.done = make(chan struct{})
    logrus.WithField("interval", s.interval).Info("Starting scheduler")

    go s.loop(ctx, s.quit, s.done)
    return nil
}

func (s *Scheduler) Stop() {
    s.mu.Lock()
    if !s.running {
        s.mu.Unlock()
        return
    }
    s.running = false
    quit, done := s.quit, s.done
    s.mu.Unlock()

    logrus.Info("Stopping scheduler")
    close(quit)
    <-done
}

func (s *Scheduler) loop(ctx context.Context, quit, done chan struct{}) {
    defer close(done)

    ticker := s.clock.Ticker(s.interval)
    defer ticker.Stop()

    // Perform an initial run on startup
    s.runOnce(ctx)

    for {
        select {
        case <-ctx.Done():
            return
        case <-quit:
            return
        case <-ticker.C:
            s.runOnce(ctx)
        }
    }
}

func (s *Scheduler) runOnce(ctx context.Context) {
    if _, err := s.engine.RunCycle(ctx); err != nil {
        if errors.Is(err, ErrCycleRunning) {
            logrus.Warn("Previous check cycle still running, skipping tick")
            return
        }
        logrus.WithError(err).Error("Check cycle completed with errors")
    }
}
