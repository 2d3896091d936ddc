// internal/monitoring/prober.go
package monitoring

import (
    "context"
    "math"
    "os/exec"
    "runtime"
    "strconv"
    "time"

    "github.com/sirupsen/logrus"
    "pingmap/internal/database"
)

const defaultProbeTimeout = 5 * time.Second

// ProbeOutcome is the result of one reachability check. ResponseTimeMs is
// nil unless Status is up.
type ProbeOutcome struct {
    Status         database.Status `json:"status"`
    ResponseTimeMs *int            `json:"response_time_ms"`
}

func (o ProbeOutcome) Up() bool {
    return o.Status == database.StatusUp
}

func upOutcome(ms int) ProbeOutcome {
    return ProbeOutcome{Status: database.StatusUp, ResponseTimeMs: &ms}
}

func downOutcome() ProbeOutcome {
    return ProbeOutcome{Status: database.StatusDown}
}

// Prober issues a single reachability check bounded by timeout. Failures
// are reported as a down outcome, never as an error.
type Prober interface {
    Probe(ctx context.Context, address string, timeout time.Duration) ProbeOutcome
}

// CommandRunner runs an external command and returns its combined output.
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
    return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// ExecProber checks reachability by running the system ping utility with a
// single echo request.
type ExecProber struct {
    command string
    goos    string
    run     CommandRunner
}

func NewExecProber(command string) *ExecProber {
    if command == "" {
        command = "ping"
    }
    return &ExecProber{
        command: command,
        goos:    runtime.GOOS,
        run:     execRunner,
    }
}

func (p *ExecProber) Probe(ctx context.Context, address string, timeout time.Duration) ProbeOutcome {
    if timeout <= 0 {
        timeout = defaultProbeTimeout
    }

    // ping enforces the wait itself; the context only guards against a
    // utility that hangs past it.
    ctx, cancel := context.WithTimeout(ctx, timeout+time.Second)
    defer cancel()

    output, err := p.run(ctx, p.command, pingArgs(p.goos, address, timeout)...)
    if err != nil {
        logrus.WithFields(logrus.Fields{
            "address": address,
            "error":   err,
        }).Debug("Ping failed")
        return downOutcome()
    }

    ms, ok := ParseLatency(string(output))
    if !ok {
        logrus.WithField("address", address).Debug("Ping succeeded without latency marker")
    }
    return upOutcome(ms)
}

// pingArgs builds the flags for one request with a bounded wait. Windows
// takes the wait in milliseconds, darwin uses -t for the overall deadline,
// everything else follows iputils.
func pingArgs(goos, address string, timeout time.Duration) []string {
    switch goos {
    case "windows":
        return []string{"-n", "1", "-w", strconv.FormatInt(timeout.Milliseconds(), 10), address}
    case "darwin", "freebsd", "openbsd", "netbsd":
        return []string{"-c", "1", "-t", waitSeconds(timeout), address}
    default:
        return []string{"-c", "1", "-W", waitSeconds(timeout), address}
    }
}

func waitSeconds(timeout time.Duration) string {
    secs := int(math.Ceil(timeout.Seconds()))
    if secs < 1 {
        secs = 1
    }
    return strconv.Itoa(secs)
}
