// internal/web/client.go
package web

import (
    "context"
    "encoding/json"
    "fmt"
    "net"
    "net/http"
    "strings"

    "pingmap/internal/monitoring"
)

// ServerURL turns a listen address such as ":8000" into a base URL that
// reaches the server from the same machine.
func ServerURL(listen string) string {
    host, port, err := net.SplitHostPort(listen)
    if err != nil {
        return "http://" + listen
    }
    if host == "" || host == "0.0.0.0" || host == "::" {
        host = "127.0.0.1"
    }
    return "http://" + net.JoinHostPort(host, port)
}

// TriggerCycle asks a running server to start a batch run and returns the
// run id. A run already in progress yields monitoring.ErrCycleRunning.
func TriggerCycle(ctx context.Context, client *http.Client, baseURL string) (string, error) {
    if client == nil {
        client = http.DefaultClient
    }

    req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(baseURL, "/")+"/api/checks/run", nil)
    if err != nil {
        return "", fmt.Errorf("failed to build request: %w", err)
    }

    resp, err := client.Do(req)
    if err != nil {
        return "", fmt.Errorf("failed to reach server: %w", err)
    }
    defer resp.Body.Close()

    var body struct {
        Error string `json:"error"`
        Data  struct {
            RunID string `json:"run_id"`
        } `json:"data"`
    }
    decodeErr := json.NewDecoder(resp.Body).Decode(&body)

    switch resp.StatusCode {
    case http.StatusAccepted:
        if decodeErr != nil {
            return "", fmt.Errorf("failed to decode response: %w", decodeErr)
        }
        return body.Data.RunID, nil
    case http.StatusConflict:
        return "", monitoring.ErrCycleRunning
    default:
        return "", fmt.Errorf("server responded %d: %s", resp.StatusCode, body.Error)
    }
}
