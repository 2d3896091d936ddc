// internal/metrics/prometheus.go
package metrics

import (
    "context"
    "strconv"
    "time"

    "github.com/prometheus/client_golang/prometheus"
    "github.com/prometheus/client_golang/prometheus/promauto"
    "pingmap/internal/database"
)

// Prometheus metrics
var (
    ProbeDuration = promauto.NewHistogramVec(
        prometheus.HistogramOpts{
            Name:    "pingmap_probe_duration_seconds",
            Help:    "Time spent probing a host, retries included",
            Buckets: prometheus.DefBuckets,
        },
        []string{"status"},
    )

    ProbeTotal = promauto.NewCounterVec(
        prometheus.CounterOpts{
            Name: "pingmap_probes_total",
            Help: "Total number of recorded probe results",
        },
        []string{"status"},
    )

    HostStatus = promauto.NewGaugeVec(
        prometheus.GaugeOpts{
            Name: "pingmap_host_status",
            Help: "Last status of hosts (1=up, 0=down, -1=unknown)",
        },
        []string{"host_id", "name"},
    )

    HostUptime = promauto.NewGaugeVec(
        prometheus.GaugeOpts{
            Name: "pingmap_host_uptime_percentage",
            Help: "Running uptime percentage of hosts",
        },
        []string{"host_id", "name"},
    )

    HostResponseTime = promauto.NewGaugeVec(
        prometheus.GaugeOpts{
            Name: "pingmap_host_response_time_ms",
            Help: "Last measured round trip time of reachable hosts",
        },
        []string{"host_id", "name"},
    )

    ActiveHosts = promauto.NewGauge(
        prometheus.GaugeOpts{
            Name: "pingmap_active_hosts_total",
            Help: "Number of active hosts being monitored",
        },
    )

    CycleDuration = promauto.NewHistogram(
        prometheus.HistogramOpts{
            Name:    "pingmap_cycle_duration_seconds",
            Help:    "Duration of batch check runs",
            Buckets: []float64{1, 5, 10, 20, 30, 60, 120, 300},
        },
    )

    CycleHosts = promauto.NewCounterVec(
        prometheus.CounterOpts{
            Name: "pingmap_cycle_hosts_total",
            Help: "Hosts processed by batch check runs",
        },
        []string{"result"},
    )

    DatabaseOperations = promauto.NewCounterVec(
        prometheus.CounterOpts{
            Name: "pingmap_database_operations_total",
            Help: "Total database operations performed",
        },
        []string{"operation", "status"},
    )

    WebSocketConnections = promauto.NewGauge(
        prometheus.GaugeOpts{
            Name: "pingmap_websocket_connections_active",
            Help: "Number of active WebSocket connections",
        },
    )
)

type Collector struct {
    registry database.Registry
}

func NewCollector(registry database.Registry) *Collector {
    return &Collector{registry: registry}
}

// RecordProbe records one stored probe result and the host figures it produced.
func (c *Collector) RecordProbe(host *database.Host, duration time.Duration) {
    status := string(host.LastStatus)
    ProbeDuration.WithLabelValues(status).Observe(duration.Seconds())
    ProbeTotal.WithLabelValues(status).Inc()
    c.UpdateHostStatus(host)
}

func (c *Collector) UpdateHostStatus(host *database.Host) {
    id := strconv.Itoa(host.ID)
    HostStatus.WithLabelValues(id, host.Name).Set(statusValue(host.LastStatus))
    HostUptime.WithLabelValues(id, host.Name).Set(host.UptimePercentage)
    if host.LastResponseTimeMs != nil {
        HostResponseTime.WithLabelValues(id, host.Name).Set(float64(*host.LastResponseTimeMs))
    }
}

// ForgetHost drops the per-host series of a deactivated host.
func (c *Collector) ForgetHost(host *database.Host) {
    id := strconv.Itoa(host.ID)
    HostStatus.DeleteLabelValues(id, host.Name)
    HostUptime.DeleteLabelValues(id, host.Name)
    HostResponseTime.DeleteLabelValues(id, host.Name)
}

func (c *Collector) RecordCycle(duration time.Duration, up, down, failed int) {
    CycleDuration.Observe(duration.Seconds())
    CycleHosts.WithLabelValues("up").Add(float64(up))
    CycleHosts.WithLabelValues("down").Add(float64(down))
    CycleHosts.WithLabelValues("failed").Add(float64(failed))
}

func (c *Collector) RecordDatabaseOperation(operation string, err error) {
    if err != nil {
        DatabaseOperations.WithLabelValues(operation, "error").Inc()
        return
    }
    DatabaseOperations.WithLabelValues(operation, "success").Inc()
}

func (c *Collector) UpdateSystemMetrics(ctx context.Context) {
    hosts := c.registry.ListActive(ctx)
    ActiveHosts.Set(float64(len(hosts)))
    for i := range hosts {
        c.UpdateHostStatus(&hosts[i])
    }
}

func (c *Collector) RecordWebSocketConnection(delta int) {
    WebSocketConnections.Add(float64(delta))
}

func statusValue(status database.Status) float64 {
    switch status {
    case database.StatusUp:
        return 1
    case database.StatusDown:
        return 0
    default:
        return -1
    }
}
