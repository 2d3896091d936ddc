// internal/database/stats.go
package database

import (
    "context"

    "github.com/dustin/go-humanize"
)

// DatabaseStats provides information about database size and contents
type DatabaseStats struct {
    TotalHosts      int    `json:"total_hosts"`
    ActiveHosts     int    `json:"active_hosts"`
    ProbeLogEntries int    `json:"probe_log_entries"`
    DatabaseSize    int64  `json:"database_size_bytes"`
    DatabaseSizeStr string `json:"database_size"`
}

func GetDatabaseStats(ctx context.Context, store RecordStore, registry Registry, logs *ProbeLogStore) *DatabaseStats {
    stats := &DatabaseStats{
        ProbeLogEntries: logs.Count(ctx),
        DatabaseSize:    store.Size(),
    }

    for _, host := range registry.List(ctx) {
        stats.TotalHosts++
        if host.IsActive {
            stats.ActiveHosts++
        }
    }

    if stats.DatabaseSize > 0 {
        stats.DatabaseSizeStr = humanize.Bytes(uint64(stats.DatabaseSize))
    }
    return stats
}
