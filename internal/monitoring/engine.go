// internal/monitoring/engine.go
package monitoring

import (
    "context"
    "errors"
    "fmt"
    "sync"
    "time"

    "github.com/benbjohnson/clock"
    "github.com/google/uuid"
    "github.com/sirupsen/logrus"
    "go.uber.org/multierr"
    "golang.org/x/sync/errgroup"
    "pingmap/internal/config"
    "pingmap/internal/database"
    "pingmap/internal/metrics"
)

// ErrCycleRunning is returned when a batch run is requested while another
// one is still in progress.
var ErrCycleRunning = errors.New("check cycle already running")

type Engine struct {
    config    *config.Config
    store     database.RecordStore
    registry  database.Registry
    logs      *database.ProbeLogStore
    prober    *RetryingProber
    stats     *StatsAggregator
    metrics   *metrics.Collector
    scheduler *Scheduler
    clock     clock.Clock
    validate  database.AddressValidator
    cycleMu   sync.Mutex
    mu        sync.Mutex
    running   bool

    listenersMu sync.RWMutex
    listeners   []func(ProbeResult)
}

type Option func(*Engine)

func WithClock(clk clock.Clock) Option {
    return func(e *Engine) {
        e.clock = clk
    }
}

func WithAddressValidator(validate database.AddressValidator) Option {
    return func(e *Engine) {
        e.validate = validate
    }
}

// ProbeResult is one recorded probe round for a host.
type ProbeResult struct {
    HostID           int             `json:"host_id"`
    Name             string          `json:"name"`
    Address          string          `json:"address"`
    Status           database.Status `json:"status"`
    ResponseTimeMs   *int            `json:"response_time_ms"`
    CheckedAt        time.Time       `json:"checked_at"`
    UptimePercentage float64         `json:"uptime_percentage"`
    LogID            uint64          `json:"log_id"`
}

// CycleSummary describes one batch run over the active hosts.
type CycleSummary struct {
    RunID     string        `json:"run_id"`
    StartedAt time.Time     `json:"started_at"`
    Duration  time.Duration `json:"duration"`
    Total     int           `json:"total"`
    Checked   int           `json:"checked"`
    Up        int           `json:"up"`
    Down      int           `json:"down"`
    Failed    int           `json:"failed"`
}

// RegisterResult reports a new host and the outcome of its initial probe.
type RegisterResult struct {
    HostID        int             `json:"host_id"`
    InitialStatus database.Status `json:"initial_status"`
}

func NewEngine(cfg *config.Config, store database.RecordStore, prober Prober, metricsCollector *metrics.Collector, opts ...Option) *Engine {
    engine := &Engine{
        config: cfg,
        store:  store,
    }
    for _, opt := range opts {
        opt(engine)
    }
    if engine.clock == nil {
        engine.clock = clock.New()
    }

    engine.registry = database.NewHostRegistry(store, engine.validate, engine.clock)
    engine.logs = database.NewProbeLogStore(store, cfg.Database.LogRetention, engine.clock)
    engine.prober = NewRetryingProber(prober, PolicyFromConfig(cfg.Monitoring), engine.clock)
    engine.stats = NewStatsAggregator(engine.registry, engine.clock)
    engine.metrics = metricsCollector
    if engine.metrics == nil {
        engine.metrics = metrics.NewCollector(engine.registry)
    }
    engine.scheduler = NewScheduler(engine, cfg.Monitoring.Interval, engine.clock)

    return engine
}

func (e *Engine) Registry() database.Registry {
    return e.registry
}

func (e *Engine) Logs() *database.ProbeLogStore {
    return e.logs
}

func (e *Engine) Metrics() *metrics.Collector {
    return e.metrics
}

// Subscribe registers fn to receive every recorded probe result.
func (e *Engine) Subscribe(fn func(ProbeResult)) {
    e.listenersMu.Lock()
    defer e.listenersMu.Unlock()
    e.listeners = append(e.listeners, fn)
}

func (e *Engine) Start(ctx context.Context) error {
    e.mu.Lock()
    if e.running {
        e.mu.Unlock()
        return nil
    }
    e.running = true
    e.mu.Unlock()

    logrus.Info("Starting monitoring engine")

    if err := e.SeedHosts(ctx); err != nil {
        logrus.WithError(err).Error("Failed to seed hosts")
    }
    e.metrics.UpdateSystemMetrics(ctx)

    if e.config.Monitoring.Interval <= 0 {
        logrus.Info("No monitoring interval configured, batch runs are triggered externally")
        return nil
    }
    return e.scheduler.Start(ctx)
}

func (e *Engine) Stop() {
    e.mu.Lock()
    if !e.running {
        e.mu.Unlock()
        return
    }
    e.running = false
    e.mu.Unlock()

    logrus.Info("Stopping monitoring engine")
    e.scheduler.Stop()
}

// SeedHosts registers the configured hosts whose address is not already
// held by an active host.
func (e *Engine) SeedHosts(ctx context.Context) error {
    var errs error
    for _, hostCfg := range e.config.Hosts {
        _, err := e.registry.Create(ctx, database.HostInput{
            Name:        hostCfg.Name,
            Address:     hostCfg.Address,
            Latitude:    hostCfg.Latitude,
            Longitude:   hostCfg.Longitude,
            Description: hostCfg.Description,
        })
        if database.IsValidation(err) {
            logrus.WithError(err).WithField("address", hostCfg.Address).Debug("Skipping seed host")
            continue
        }
        if err != nil {
            errs = multierr.Append(errs, fmt.Errorf("seed host %s: %w", hostCfg.Address, err))
        }
    }
    return errs
}

// Register creates a host and records an initial single-attempt probe.
// A failure to record the initial probe is logged; the host stays created.
func (e *Engine) Register(ctx context.Context, in database.HostInput) (*RegisterResult, error) {
    id, err := e.registry.Create(ctx, in)
    e.metrics.RecordDatabaseOperation("create_host", ignoreValidation(err))
    if err != nil {
        return nil, err
    }

    host, err := e.registry.Get(ctx, id)
    if err != nil {
        return nil, fmt.Errorf("failed to reload host %d: %w", id, err)
    }

    result := &RegisterResult{HostID: id, InitialStatus: database.StatusUnknown}

    start := e.clock.Now()
    outcome := e.prober.Probe(ctx, host.Address)
    probeResult, err := e.record(ctx, host, outcome, e.clock.Since(start))
    if err != nil {
        logrus.WithError(err).WithField("host_id", id).Error("Failed to record initial probe")
        return result, nil
    }

    result.InitialStatus = probeResult.Status
    return result, nil
}

// CheckNow probes an active host once and records the outcome.
func (e *Engine) CheckNow(ctx context.Context, id int) (*ProbeResult, error) {
    host, err := e.registry.Get(ctx, id)
    if err != nil {
        return nil, err
    }
    if !host.IsActive {
        return nil, database.ErrNotFound
    }

    start := e.clock.Now()
    outcome := e.prober.Probe(ctx, host.Address)
    return e.record(ctx, host, outcome, e.clock.Since(start))
}

// CheckHost runs the retry policy against the host and records the single
// terminal outcome of the round. Probing is bounded by the per-host
// deadline; recording is not, so a host that ran out of time is still
// recorded as down.
func (e *Engine) CheckHost(ctx context.Context, host *database.Host) (*ProbeResult, error) {
    probeCtx, cancel := context.WithTimeout(ctx, e.config.Monitoring.EffectiveHostDeadline())
    defer cancel()

    start := e.clock.Now()
    outcome := e.prober.ProbeWithRetry(probeCtx, host.Address)
    return e.record(ctx, host, outcome, e.clock.Since(start))
}

// RunCycle checks every active host. Hosts are checked in parallel, bounded
// by the configured worker count, each under its own deadline so a slow
// host does not hold up the others.
func (e *Engine) RunCycle(ctx context.Context) (*CycleSummary, error) {
    if !e.cycleMu.TryLock() {
        return nil, ErrCycleRunning
    }
    defer e.cycleMu.Unlock()

    return e.runCycle(ctx, uuid.New().String())
}

// StartCycle starts a batch run in the background and returns its run id.
// done, when set, receives the outcome once the run finishes.
func (e *Engine) StartCycle(ctx context.Context, done func(*CycleSummary, error)) (string, error) {
    if !e.cycleMu.TryLock() {
        return "", ErrCycleRunning
    }

    runID := uuid.New().String()
    go func() {
        defer e.cycleMu.Unlock()

        summary, err := e.runCycle(ctx, runID)
        if err != nil {
            logrus.WithError(err).WithField("run_id", runID).Error("Check cycle completed with errors")
        }
        if done != nil {
            done(summary, err)
        }
    }()
    return runID, nil
}

func (e *Engine) runCycle(ctx context.Context, runID string) (*CycleSummary, error) {
    summary := &CycleSummary{
        RunID:     runID,
        StartedAt: e.clock.Now(),
    }
    log := logrus.WithField("run_id", summary.RunID)

    hosts := e.registry.ListActive(ctx)
    summary.Total = len(hosts)
    log.WithField("hosts", summary.Total).Info("Starting check cycle")

    var (
        mu   sync.Mutex
        errs error
        g    errgroup.Group
    )
    workers := e.config.Monitoring.Workers
    if workers < 1 {
        workers = 1
    }
    g.SetLimit(workers)

    for i := range hosts {
        host := hosts[i]
        g.Go(func() error {
            result, err := e.CheckHost(ctx, &host)

            mu.Lock()
            defer mu.Unlock()
            if err != nil {
                summary.Failed++
                errs = multierr.Append(errs, fmt.Errorf("host %d: %w", host.ID, err))
                return nil
            }
            summary.Checked++
            if result.Status == database.StatusUp {
                summary.Up++
            } else {
                summary.Down++
            }
            return nil
        })
    }
    g.Wait()

    summary.Duration = e.clock.Since(summary.StartedAt)
    e.metrics.RecordCycle(summary.Duration, summary.Up, summary.Down, summary.Failed)
    e.metrics.UpdateSystemMetrics(ctx)

    log.WithFields(logrus.Fields{
        "checked":  summary.Checked,
        "total":    summary.Total,
        "up":       summary.Up,
        "down":     summary.Down,
        "failed":   summary.Failed,
        "duration": summary.Duration,
    }).Info("Completed check cycle")

    return summary, errs
}

// UpdateHost applies patch and returns the stored host. A rename moves the
// host's metric series to the new name label.
func (e *Engine) UpdateHost(ctx context.Context, id int, patch database.HostPatch) (*database.Host, error) {
    before, err := e.registry.Get(ctx, id)
    if err != nil {
        return nil, err
    }

    err = e.registry.Update(ctx, id, patch)
    e.metrics.RecordDatabaseOperation("update_host", ignoreValidation(err))
    if err != nil {
        return nil, err
    }

    after, err := e.registry.Get(ctx, id)
    if err != nil {
        return nil, err
    }
    if after.Name != before.Name {
        e.metrics.ForgetHost(before)
        if after.IsActive {
            e.metrics.UpdateHostStatus(after)
        }
    }
    return after, nil
}

// Deactivate soft-deletes a host and drops its live metrics.
func (e *Engine) Deactivate(ctx context.Context, id int) error {
    host, err := e.registry.Get(ctx, id)
    if err != nil {
        return err
    }
    err = e.registry.SoftDelete(ctx, id)
    e.metrics.RecordDatabaseOperation("delete_host", ignoreValidation(err))
    if err != nil {
        return err
    }
    e.metrics.ForgetHost(host)
    return nil
}

// record appends the outcome to the probe log and then folds it into the
// host counters. The log append happens first; if it fails the counters
// are left alone so both stay consistent.
func (e *Engine) record(ctx context.Context, host *database.Host, outcome ProbeOutcome, duration time.Duration) (*ProbeResult, error) {
    entry, err := e.logs.Append(ctx, host.ID, outcome.Status, outcome.ResponseTimeMs)
    e.metrics.RecordDatabaseOperation("append_probe_log", err)
    if err != nil {
        return nil, fmt.Errorf("failed to append probe log: %w", err)
    }

    updated, err := e.stats.Update(ctx, host.ID, outcome.Status, outcome.ResponseTimeMs)
    e.metrics.RecordDatabaseOperation("update_host_stats", err)
    if err != nil {
        return nil, fmt.Errorf("failed to update host stats: %w", err)
    }

    e.metrics.RecordProbe(updated, duration)

    result := ProbeResult{
        HostID:           updated.ID,
        Name:             updated.Name,
        Address:          updated.Address,
        Status:           entry.Status,
        ResponseTimeMs:   entry.ResponseTimeMs,
        CheckedAt:        entry.CheckedAt,
        UptimePercentage: updated.UptimePercentage,
        LogID:            entry.ID,
    }

    fields := logrus.Fields{
        "host_id": updated.ID,
        "host":    updated.DisplayName(),
        "address": updated.Address,
        "status":  result.Status,
    }
    if result.ResponseTimeMs != nil {
        fields["response_ms"] = *result.ResponseTimeMs
    }
    logrus.WithFields(fields).Info("Recorded probe result")

    e.notify(result)
    return &result, nil
}

func (e *Engine) notify(result ProbeResult) {
    e.listenersMu.RLock()
    listeners := e.listeners
    e.listenersMu.RUnlock()

    for _, fn := range listeners {
        fn(result)
    }
}

func ignoreValidation(err error) error {
    if database.IsValidation(err) {
        return nil
    }
    return err
}
