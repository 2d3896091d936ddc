// internal/database/probelogs.go
package database

import (
    "context"
    "sort"

    "github.com/benbjohnson/clock"
)

const (
    // DefaultRetention is the number of entries kept per host.
    DefaultRetention = 100
    // DefaultRecentLimit bounds GetRecent when no limit is given.
    DefaultRecentLimit = 100
)

// ProbeLogStore keeps the probe history of every host, trimmed to the most
// recent entries per host on each append.
type ProbeLogStore struct {
    logs      collection[ProbeLogEntry]
    retention int
    clock     clock.Clock
}

func NewProbeLogStore(store RecordStore, retention int, clk clock.Clock) *ProbeLogStore {
    if retention <= 0 {
        retention = DefaultRetention
    }
    if clk == nil {
        clk = clock.New()
    }
    return &ProbeLogStore{
        logs:      collection[ProbeLogEntry]{store: store, name: ProbeLogsCollection},
        retention: retention,
        clock:     clk,
    }
}

// Append records one probe result. Entry ids come from a counter persisted
// with the collection, so they stay unique across trimming and restarts.
func (s *ProbeLogStore) Append(ctx context.Context, hostID int, status Status, responseTimeMs *int) (*ProbeLogEntry, error) {
    if status != StatusUp && status != StatusDown {
        return nil, &ValidationError{Field: "status", Message: "must be up or down"}
    }

    entry := ProbeLogEntry{
        HostID:         hostID,
        Status:         status,
        ResponseTimeMs: NormalizeLatency(status, responseTimeMs),
        CheckedAt:      s.clock.Now(),
    }

    err := s.logs.update(ctx, func(entries []ProbeLogEntry, seq Sequence) ([]ProbeLogEntry, error) {
        if err := seq.Floor(maxEntryID(entries)); err != nil {
            return nil, err
        }
        id, err := seq.Next()
        if err != nil {
            return nil, err
        }
        entry.ID = id
        return trimPerHost(append(entries, entry), s.retention), nil
    })
    if err != nil {
        return nil, err
    }
    return &entry, nil
}

// GetRecent returns up to limit entries for the host, newest first.
func (s *ProbeLogStore) GetRecent(ctx context.Context, hostID int, limit int) []ProbeLogEntry {
    if limit <= 0 {
        limit = DefaultRecentLimit
    }

    var entries []ProbeLogEntry
    for _, entry := range s.logs.load(ctx) {
        if entry.HostID == hostID {
            entries = append(entries, entry)
        }
    }

    sort.SliceStable(entries, func(i, j int) bool {
        if entries[i].CheckedAt.Equal(entries[j].CheckedAt) {
            return entries[i].ID > entries[j].ID
        }
        return entries[i].CheckedAt.After(entries[j].CheckedAt)
    })

    if len(entries) > limit {
        entries = entries[:limit]
    }
    if entries == nil {
        entries = []ProbeLogEntry{}
    }
    return entries
}

// Count returns the number of stored entries across all hosts.
func (s *ProbeLogStore) Count(ctx context.Context) int {
    return len(s.logs.load(ctx))
}

// trimPerHost groups entries by host in order of first appearance and keeps
// the last keep entries of each group, in append order.
func trimPerHost(entries []ProbeLogEntry, keep int) []ProbeLogEntry {
    var order []int
    groups := make(map[int][]ProbeLogEntry)
    for _, entry := range entries {
        if _, ok := groups[entry.HostID]; !ok {
            order = append(order, entry.HostID)
        }
        groups[entry.HostID] = append(groups[entry.HostID], entry)
    }

    trimmed := make([]ProbeLogEntry, 0, len(entries))
    for _, hostID := range order {
        group := groups[hostID]
        if len(group) > keep {
            group = group[len(group)-keep:]
        }
        trimmed = append(trimmed, group...)
    }
    return trimmed
}

func maxEntryID(entries []ProbeLogEntry) uint64 {
    var maxID uint64
    for _, entry := range entries {
        if entry.ID > maxID {
            maxID = entry.ID
        }
    }
    return maxID
}
