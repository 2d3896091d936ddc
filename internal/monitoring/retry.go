// internal/monitoring/retry.go
package monitoring

import (
    "context"
    "time"

    "github.com/benbjohnson/clock"
    "github.com/sirupsen/logrus"
    "pingmap/internal/config"
)

// RetryPolicy bounds the probe attempts made for one host in one round.
type RetryPolicy struct {
    MaxAttempts int
    Delay       time.Duration
    Timeout     time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
    return RetryPolicy{
        MaxAttempts: 3,
        Delay:       1 * time.Second,
        Timeout:     defaultProbeTimeout,
    }
}

func PolicyFromConfig(cfg config.MonitoringConfig) RetryPolicy {
    return RetryPolicy{
        MaxAttempts: cfg.MaxAttempts,
        Delay:       cfg.RetryDelay,
        Timeout:     cfg.Timeout,
    }.normalize()
}

func (p RetryPolicy) normalize() RetryPolicy {
    def := DefaultRetryPolicy()
    if p.MaxAttempts < 1 {
        p.MaxAttempts = def.MaxAttempts
    }
    if p.Delay < 0 {
        p.Delay = 0
    }
    if p.Timeout <= 0 {
        p.Timeout = def.Timeout
    }
    return p
}

// WorstCase is the longest a ProbeWithRetry call can block.
func (p RetryPolicy) WorstCase() time.Duration {
    p = p.normalize()
    return time.Duration(p.MaxAttempts)*p.Timeout + time.Duration(p.MaxAttempts-1)*p.Delay
}

// RetryingProber smooths over transient packet loss by repeating failed
// probes before reporting a host down.
type RetryingProber struct {
    prober Prober
    policy RetryPolicy
    clock  clock.Clock
}

func NewRetryingProber(prober Prober, policy RetryPolicy, clk clock.Clock) *RetryingProber {
    if clk == nil {
        clk = clock.New()
    }
    return &RetryingProber{
        prober: prober,
        policy: policy.normalize(),
        clock:  clk,
    }
}

func (r *RetryingProber) Policy() RetryPolicy {
    return r.policy
}

// Probe makes a single attempt.
func (r *RetryingProber) Probe(ctx context.Context, address string) ProbeOutcome {
    return r.prober.Probe(ctx, address, r.policy.Timeout)
}

// ProbeWithRetry returns the first up outcome, or the last down outcome
// once every attempt failed. The delay separates attempts and is not
// applied after the last one. A done context stops further attempts.
func (r *RetryingProber) ProbeWithRetry(ctx context.Context, address string) ProbeOutcome {
    var outcome ProbeOutcome

    for attempt := 1; attempt <= r.policy.MaxAttempts; attempt++ {
        outcome = r.prober.Probe(ctx, address, r.policy.Timeout)
        if outcome.Up() {
            return outcome
        }

        logrus.WithFields(logrus.Fields{
            "address": address,
            "attempt": attempt,
            "max":     r.policy.MaxAttempts,
        }).Debug("Probe attempt failed")

        if attempt == r.policy.MaxAttempts {
            break
        }
        if !r.wait(ctx) {
            break
        }
    }

    return outcome
}

func (r *RetryingProber) wait(ctx context.Context) bool {
    if ctx.Err() != nil {
        return false
    }
    if r.policy.Delay == 0 {
        return true
    }

    timer := r.clock.Timer(r.policy.Delay)
    defer timer.Stop()

    select {
    case <-ctx.Done():
        return false
    case <-timer.C:
        return true
    }
}
