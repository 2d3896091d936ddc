// internal/database/models.go
package database

import (
    "strconv"
    "time"
)

// Status is the reachability state recorded for a host or a probe.
type Status string

const (
    StatusUnknown Status = "unknown"
    StatusUp      Status = "up"
    StatusDown    Status = "down"
)

func (s Status) Valid() bool {
    switch s {
    case StatusUnknown, StatusUp, StatusDown:
        return true
    }
    return false
}

type Host struct {
    ID                 int        `json:"id"`
    Name               string     `json:"name"`
    Address            string     `json:"address"`
    Latitude           float64    `json:"latitude"`
    Longitude          float64    `json:"longitude"`
    Description        string     `json:"description"`
    IsActive           bool       `json:"is_active"`
    CreatedAt          time.Time  `json:"created_at"`
    UpdatedAt          time.Time  `json:"updated_at"`
    LastStatus         Status     `json:"last_status"`
    LastCheckedAt      *time.Time `json:"last_checked_at"`
    LastResponseTimeMs *int       `json:"last_response_time_ms"`
    TotalChecks        int        `json:"total_checks"`
    TotalUp            int        `json:"total_up"`
    TotalDown          int        `json:"total_down"`
    UptimePercentage   float64    `json:"uptime_percentage"`
}

// DisplayName falls back to a generated label when the host has no name.
func (h *Host) DisplayName() string {
    if h.Name != "" {
        return h.Name
    }
    return "Server #" + strconv.Itoa(h.ID)
}

// NormalizeLatency returns the latency stored for a probe result: a
// non-negative value for up (0 when unknown), nil otherwise.
func NormalizeLatency(status Status, responseTimeMs *int) *int {
    if status != StatusUp {
        return nil
    }
    ms := 0
    if responseTimeMs != nil && *responseTimeMs > 0 {
        ms = *responseTimeMs
    }
    return &ms
}

type ProbeLogEntry struct {
    ID             uint64    `json:"id"`
    HostID         int       `json:"host_id"`
    Status         Status    `json:"status"`
    ResponseTimeMs *int      `json:"response_time_ms"`
    CheckedAt      time.Time `json:"checked_at"`
}

// HostInput carries the fields accepted when registering a host.
type HostInput struct {
    Name        string
    Address     string
    Latitude    float64
    Longitude   float64
    Description string
}

// HostPatch holds the editable fields of a host. Nil fields are left untouched.
type HostPatch struct {
    Name        *string
    Address     *string
    Latitude    *float64
    Longitude   *float64
    Description *string
}
