// internal/monitoring/stats.go
package monitoring

import (
    "context"
    "math"
    "time"

    "github.com/benbjohnson/clock"
    "pingmap/internal/database"
)

// StatsAggregator folds probe results into the running counters of a host.
type StatsAggregator struct {
    registry database.Registry
    clock    clock.Clock
}

func NewStatsAggregator(registry database.Registry, clk clock.Clock) *StatsAggregator {
    if clk == nil {
        clk = clock.New()
    }
    return &StatsAggregator{registry: registry, clock: clk}
}

// Update records one result against the host and returns the updated host.
func (a *StatsAggregator) Update(ctx context.Context, hostID int, status database.Status, responseTimeMs *int) (*database.Host, error) {
    if status != database.StatusUp && status != database.StatusDown {
        return nil, &database.ValidationError{Field: "status", Message: "must be up or down"}
    }

    var updated database.Host
    err := a.registry.Modify(ctx, hostID, func(host *database.Host) error {
        applyResult(host, status, responseTimeMs, a.clock.Now())
        updated = *host
        return nil
    })
    if err != nil {
        return nil, err
    }
    return &updated, nil
}

func applyResult(host *database.Host, status database.Status, responseTimeMs *int, now time.Time) {
    host.LastStatus = status
    host.LastCheckedAt = &now
    host.LastResponseTimeMs = database.NormalizeLatency(status, responseTimeMs)

    host.TotalChecks++
    if status == database.StatusUp {
        host.TotalUp++
    } else {
        host.TotalDown++
    }

    if host.TotalChecks > 0 {
        host.UptimePercentage = UptimePercentage(host.TotalUp, host.TotalChecks)
    }
}

// UptimePercentage returns 100*up/checks rounded to two decimals, or 0 when
// nothing was checked.
func UptimePercentage(up, checks int) float64 {
    if checks <= 0 {
        return 0
    }
    return math.Round(float64(up)*100/float64(checks)*100) / 100
}
