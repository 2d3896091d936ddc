// internal/web/handlers.go
package web

import (
    "context"
    "errors"
    "fmt"
    "net/http"
    "strconv"
    "time"

    "github.com/gin-gonic/gin"
    "github.com/sirupsen/logrus"
    "pingmap/internal/database"
    "pingmap/internal/monitoring"
)

type HostRequest struct {
    Name        string  `json:"name"`
    Address     string  `json:"ip_address"`
    Latitude    float64 `json:"latitude"`
    Longitude   float64 `json:"longitude"`
    Description string  `json:"description"`
}

// HostUpdateRequest carries a partial update; omitted fields are kept.
type HostUpdateRequest struct {
    Name        *string  `json:"name"`
    Address     *string  `json:"ip_address"`
    Latitude    *float64 `json:"latitude"`
    Longitude   *float64 `json:"longitude"`
    Description *string  `json:"description"`
}

// HostResponse is the list view of a host used by the map.
type HostResponse struct {
    ID            int             `json:"id"`
    Name          string          `json:"name"`
    Address       string          `json:"ip_address"`
    Latitude      float64         `json:"latitude"`
    Longitude     float64         `json:"longitude"`
    Description   string          `json:"description"`
    Status        database.Status `json:"status"`
    ResponseTime  *int            `json:"response_time"`
    LastCheck     string          `json:"last_check"`
    LastCheckedAt *time.Time      `json:"last_checked_at"`
    Uptime        string          `json:"uptime"`
    TotalChecks   int             `json:"total_checks"`
}

func newHostResponse(host *database.Host) HostResponse {
    status := host.LastStatus
    if status == "" {
        status = database.StatusUnknown
    }

    lastCheck := "Never"
    if host.LastCheckedAt != nil {
        lastCheck = host.LastCheckedAt.Format("15:04:05")
    }

    return HostResponse{
        ID:            host.ID,
        Name:          host.DisplayName(),
        Address:       host.Address,
        Latitude:      host.Latitude,
        Longitude:     host.Longitude,
        Description:   host.Description,
        Status:        status,
        ResponseTime:  host.LastResponseTimeMs,
        LastCheck:     lastCheck,
        LastCheckedAt: host.LastCheckedAt,
        Uptime:        fmt.Sprintf("%.2f", host.UptimePercentage),
        TotalChecks:   host.TotalChecks,
    }
}

// GET /api/hosts
func (s *Server) getHosts(c *gin.Context) {
    hosts := s.engine.Registry().ListActive(c.Request.Context())

    response := make([]HostResponse, 0, len(hosts))
    for i := range hosts {
        response = append(response, newHostResponse(&hosts[i]))
    }

    c.JSON(http.StatusOK, gin.H{
        "data":  response,
        "count": len(response),
    })
}

func (s *Server) getHost(c *gin.Context) {
    id, ok := parseID(c)
    if !ok {
        return
    }

    host, err := s.engine.Registry().Get(c.Request.Context(), id)
    if err != nil {
        respondError(c, err, "get host")
        return
    }

    c.JSON(http.StatusOK, gin.H{"data": host})
}

func (s *Server) createHost(c *gin.Context) {
    var req HostRequest
    if err := c.ShouldBindJSON(&req); err != nil {
        c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
        return
    }

    if req.Latitude == 0 || req.Longitude == 0 {
        c.JSON(http.StatusBadRequest, gin.H{"error": "Please select location on map"})
        return
    }

    result, err := s.engine.Register(c.Request.Context(), database.HostInput{
        Name:        req.Name,
        Address:     req.Address,
        Latitude:    req.Latitude,
        Longitude:   req.Longitude,
        Description: req.Description,
    })
    if err != nil {
        respondError(c, err, "create host")
        return
    }

    c.JSON(http.StatusCreated, gin.H{
        "message": "Host added successfully",
        "data":    result,
    })
}

func (s *Server) updateHost(c *gin.Context) {
    id, ok := parseID(c)
    if !ok {
        return
    }

    var req HostUpdateRequest
    if err := c.ShouldBindJSON(&req); err != nil {
        c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
        return
    }

    if (req.Latitude != nil && *req.Latitude == 0) || (req.Longitude != nil && *req.Longitude == 0) {
        c.JSON(http.StatusBadRequest, gin.H{"error": "Please select location on map"})
        return
    }

    host, err := s.engine.UpdateHost(c.Request.Context(), id, database.HostPatch{
        Name:        req.Name,
        Address:     req.Address,
        Latitude:    req.Latitude,
        Longitude:   req.Longitude,
        Description: req.Description,
    })
    if err != nil {
        respondError(c, err, "update host")
        return
    }

    c.JSON(http.StatusOK, gin.H{"data": host})
}

func (s *Server) deleteHost(c *gin.Context) {
    id, ok := parseID(c)
    if !ok {
        return
    }

    if err := s.engine.Deactivate(c.Request.Context(), id); err != nil {
        respondError(c, err, "delete host")
        return
    }

    c.JSON(http.StatusOK, gin.H{"message": "Host deleted successfully"})
}

// POST /api/hosts/:id/check
func (s *Server) checkHost(c *gin.Context) {
    id, ok := parseID(c)
    if !ok {
        return
    }

    result, err := s.engine.CheckNow(c.Request.Context(), id)
    if err != nil {
        respondError(c, err, "check host")
        return
    }

    c.JSON(http.StatusOK, gin.H{
        "data":       result,
        "checked_at": result.CheckedAt.Format("15:04:05"),
    })
}

// GET /api/hosts/:id/logs?limit=N
func (s *Server) getHostLogs(c *gin.Context) {
    id, ok := parseID(c)
    if !ok {
        return
    }

    limit := database.DefaultRecentLimit
    if limitStr := c.Query("limit"); limitStr != "" {
        n, err := strconv.Atoi(limitStr)
        if err != nil || n < 1 {
            c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit"})
            return
        }
        limit = n
    }

    ctx := c.Request.Context()
    if _, err := s.engine.Registry().Get(ctx, id); err != nil {
        respondError(c, err, "get host")
        return
    }

    entries := s.engine.Logs().GetRecent(ctx, id, limit)
    c.JSON(http.StatusOK, gin.H{
        "data":  entries,
        "count": len(entries),
    })
}

// POST /api/checks/run starts a batch run and answers 202 right away; a
// run over many unreachable hosts outlasts the write timeout. The run is
// detached from the request and its summary goes out on the live feed.
func (s *Server) runChecks(c *gin.Context) {
    runID, err := s.engine.StartCycle(context.WithoutCancel(c.Request.Context()), func(summary *monitoring.CycleSummary, err error) {
        s.hub.Broadcast(WSMessage{Type: "cycle_summary", Data: summary})
    })
    if errors.Is(err, monitoring.ErrCycleRunning) {
        c.JSON(http.StatusConflict, gin.H{"error": "A check cycle is already running"})
        return
    }
    if err != nil {
        respondError(c, err, "start check cycle")
        return
    }

    c.JSON(http.StatusAccepted, gin.H{
        "message": "Check cycle started",
        "data":    gin.H{"run_id": runID},
    })
}

func parseID(c *gin.Context) (int, bool) {
    id, err := strconv.Atoi(c.Param("id"))
    if err != nil || id <= 0 {
        c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid host ID"})
        return 0, false
    }
    return id, true
}

func respondError(c *gin.Context, err error, action string) {
    var validationErr *database.ValidationError
    switch {
    case errors.As(err, &validationErr):
        c.JSON(http.StatusBadRequest, gin.H{"error": validationErr.Error()})
    case database.IsNotFound(err):
        c.JSON(http.StatusNotFound, gin.H{"error": "Host not found"})
    default:
        logrus.WithError(err).Error("Failed to " + action)
        c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to " + action})
    }
}

func formatDuration(d time.Duration) string {
    if d < time.Minute {
        return fmt.Sprintf("%.0fs", d.Seconds())
    } else if d < time.Hour {
        return fmt.Sprintf("%.0fm", d.Minutes())
    } else if d < 24*time.Hour {
        hours := int(d.Hours())
        minutes := int(d.Minutes()) % 60
        if minutes > 0 {
            return fmt.Sprintf("%dh %dm", hours, minutes)
        }
        return fmt.Sprintf("%dh", hours)
    }
    days := int(d.Hours()) / 24
    hours := int(d.Hours()) % 24
    if hours > 0 {
        return fmt.Sprintf("%dd %dh", days, hours)
    }
    return fmt.Sprintf("%dd", days)
}
