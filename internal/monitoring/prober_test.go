package monitoring

import (
    "context"
    "errors"
    "testing"
    "time"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
    "pingmap/internal/database"
)

type recordedRun struct {
    name string
    args []string
}

func newTestExecProber(goos string, output string, err error) (*ExecProber, *[]recordedRun) {
    var runs []recordedRun
    p := NewExecProber("")
    p.goos = goos
    p.run = func(ctx context.Context, name string, args ...string) ([]byte, error) {
        runs = append(runs, recordedRun{name: name, args: args})
        return []byte(output), err
    }
    return p, &runs
}

func TestExecProberUp(t *testing.T) {
    p, runs := newTestExecProber("linux", "64 bytes from 10.0.0.5: icmp_seq=1 ttl=64 time=12.3 ms", nil)

    outcome := p.Probe(context.Background(), "10.0.0.5", 5*time.Second)
    assert.Equal(t, database.StatusUp, outcome.Status)
    require.NotNil(t, outcome.ResponseTimeMs)
    assert.Equal(t, 12, *outcome.ResponseTimeMs)

    require.Len(t, *runs, 1)
    assert.Equal(t, "ping", (*runs)[0].name)
    assert.Equal(t, []string{"-c", "1", "-W", "5", "10.0.0.5"}, (*runs)[0].args)
}

func TestExecProberUpWithoutMarker(t *testing.T) {
    p, _ := newTestExecProber("linux", "1 packets transmitted, 1 received", nil)

    outcome := p.Probe(context.Background(), "10.0.0.5", time.Second)
    assert.True(t, outcome.Up())
    require.NotNil(t, outcome.ResponseTimeMs)
    assert.Equal(t, 0, *outcome.ResponseTimeMs)
}

func TestExecProberDown(t *testing.T) {
    p, _ := newTestExecProber("linux", "Request timeout", errors.New("exit status 1"))

    outcome := p.Probe(context.Background(), "10.0.0.5", time.Second)
    assert.Equal(t, database.StatusDown, outcome.Status)
    assert.Nil(t, outcome.ResponseTimeMs)
}

func TestExecProberDeadline(t *testing.T) {
    p := NewExecProber("ping")
    p.run = func(ctx context.Context, name string, args ...string) ([]byte, error) {
        deadline, ok := ctx.Deadline()
        require.True(t, ok)
        assert.WithinDuration(t, time.Now().Add(3*time.Second), deadline, time.Second)
        return nil, ctx.Err()
    }

    p.Probe(context.Background(), "10.0.0.5", 2*time.Second)
}

func TestPingArgs(t *testing.T) {
    testCases := []struct {
        goos    string
        timeout time.Duration
        args    []string
    }{
        {"linux", 5 * time.Second, []string{"-c", "1", "-W", "5", "10.0.0.5"}},
        {"linux", 1500 * time.Millisecond, []string{"-c", "1", "-W", "2", "10.0.0.5"}},
        {"linux", 100 * time.Millisecond, []string{"-c", "1", "-W", "1", "10.0.0.5"}},
        {"windows", 5 * time.Second, []string{"-n", "1", "-w", "5000", "10.0.0.5"}},
        {"darwin", 5 * time.Second, []string{"-c", "1", "-t", "5", "10.0.0.5"}},
    }

    for _, tc := range testCases {
        assert.Equal(t, tc.args, pingArgs(tc.goos, "10.0.0.5", tc.timeout), tc.goos)
    }
}
