package monitoring

import (
    "context"
    "path/filepath"
    "strconv"
    "sync"
    "testing"
    "time"

    "github.com/benbjohnson/clock"
    "github.com/stretchr/testify/suite"
    "pingmap/internal/config"
    "pingmap/internal/database"
    "pingmap/internal/metrics"
)

type EngineTestSuite struct {
    suite.Suite
    ctx    context.Context
    clock  *clock.Mock
    store  *database.BoltStore
    prober *scriptedProber
    cfg    *config.Config
    engine *Engine
}

func (s *EngineTestSuite) SetupTest() {
    s.ctx = context.Background()
    s.clock = clock.NewMock()
    s.clock.Set(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))

    store, err := database.NewBoltStore(filepath.Join(s.T().TempDir(), "engine.db"))
    s.Require().NoError(err)
    s.store = store

    s.cfg = config.Default()
    s.cfg.Monitoring.RetryDelay = 0
    s.prober = newScriptedProber()
    s.engine = NewEngine(s.cfg, s.store, s.prober, nil, WithClock(s.clock))
}

func (s *EngineTestSuite) TearDownTest() {
    s.engine.Stop()
    s.store.Close()
}

func (s *EngineTestSuite) createHost(address string) int {
    id, err := s.engine.Registry().Create(s.ctx, database.HostInput{Address: address})
    s.Require().NoError(err)
    return id
}

func (s *EngineTestSuite) TestRegisterAndCheck() {
    s.prober.set("10.0.0.5", upOutcome(12))

    result, err := s.engine.Register(s.ctx, database.HostInput{
        Address:   "10.0.0.5",
        Latitude:  -6.2,
        Longitude: 106.8,
    })
    s.Require().NoError(err)
    s.Equal(1, result.HostID)
    s.Equal(database.StatusUp, result.InitialStatus)

    host, err := s.engine.Registry().Get(s.ctx, 1)
    s.Require().NoError(err)
    s.Equal(database.StatusUp, host.LastStatus)
    s.Require().NotNil(host.LastResponseTimeMs)
    s.Equal(12, *host.LastResponseTimeMs)
    s.Equal(1, host.TotalChecks)
    s.Equal(100.0, host.UptimePercentage)
    s.Equal(-6.2, host.Latitude)
    s.Require().NotNil(host.LastCheckedAt)
    s.True(host.LastCheckedAt.Equal(s.clock.Now()))

    entries := s.engine.Logs().GetRecent(s.ctx, 1, 0)
    s.Require().Len(entries, 1)
    s.Equal(database.StatusUp, entries[0].Status)
}

func (s *EngineTestSuite) TestRegisterUsesSingleAttempt() {
    s.prober.set("10.0.0.7", downOutcome(), upOutcome(5))

    result, err := s.engine.Register(s.ctx, database.HostInput{Address: "10.0.0.7"})
    s.Require().NoError(err)
    s.Equal(database.StatusDown, result.InitialStatus)
    s.Equal(1, s.prober.callCount("10.0.0.7"))
}

func (s *EngineTestSuite) TestRegisterDuplicateAddress() {
    _, err := s.engine.Register(s.ctx, database.HostInput{Address: "10.0.0.5"})
    s.Require().NoError(err)

    _, err = s.engine.Register(s.ctx, database.HostInput{Address: "10.0.0.5"})
    s.True(database.IsValidation(err))
    s.Len(s.engine.Registry().List(s.ctx), 1)
    s.Equal(1, s.prober.callCount("10.0.0.5"))
}

func (s *EngineTestSuite) TestRegisterInvalidAddress() {
    _, err := s.engine.Register(s.ctx, database.HostInput{Address: "not-an-ip"})
    s.True(database.IsValidation(err))
    s.Empty(s.engine.Registry().List(s.ctx))
}

func (s *EngineTestSuite) TestCheckNow() {
    id := s.createHost("10.0.0.5")
    s.prober.set("10.0.0.5", downOutcome(), upOutcome(8))

    result, err := s.engine.CheckNow(s.ctx, id)
    s.Require().NoError(err)
    s.Equal(database.StatusDown, result.Status)
    s.Nil(result.ResponseTimeMs)
    s.Equal(0.0, result.UptimePercentage)

    result, err = s.engine.CheckNow(s.ctx, id)
    s.Require().NoError(err)
    s.Equal(database.StatusUp, result.Status)
    s.Equal(50.0, result.UptimePercentage)
    s.Equal(2, s.engine.Logs().Count(s.ctx))
}

func (s *EngineTestSuite) TestCheckNowUnknownOrInactive() {
    _, err := s.engine.CheckNow(s.ctx, 42)
    s.True(database.IsNotFound(err))

    id := s.createHost("10.0.0.5")
    s.Require().NoError(s.engine.Deactivate(s.ctx, id))

    _, err = s.engine.CheckNow(s.ctx, id)
    s.True(database.IsNotFound(err))
    s.Equal(0, s.prober.callCount("10.0.0.5"))
}

func (s *EngineTestSuite) TestCheckHostRetries() {
    id := s.createHost("10.0.0.5")
    s.prober.set("10.0.0.5", downOutcome(), downOutcome(), upOutcome(20))

    host, err := s.engine.Registry().Get(s.ctx, id)
    s.Require().NoError(err)

    result, err := s.engine.CheckHost(s.ctx, host)
    s.Require().NoError(err)
    s.Equal(database.StatusUp, result.Status)
    s.Equal(3, s.prober.callCount("10.0.0.5"))

    // one terminal outcome per round
    s.Equal(1, s.engine.Logs().Count(s.ctx))
    host, err = s.engine.Registry().Get(s.ctx, id)
    s.Require().NoError(err)
    s.Equal(1, host.TotalChecks)
    s.Equal(1, host.TotalUp)
}

func (s *EngineTestSuite) TestRunCycle() {
    up := s.createHost("10.0.0.1")
    down := s.createHost("10.0.0.2")
    inactive := s.createHost("10.0.0.3")
    s.Require().NoError(s.engine.Deactivate(s.ctx, inactive))

    s.prober.set("10.0.0.1", upOutcome(4))

    summary, err := s.engine.RunCycle(s.ctx)
    s.Require().NoError(err)
    s.NotEmpty(summary.RunID)
    s.Equal(2, summary.Total)
    s.Equal(2, summary.Checked)
    s.Equal(1, summary.Up)
    s.Equal(1, summary.Down)
    s.Equal(0, summary.Failed)

    s.Len(s.engine.Logs().GetRecent(s.ctx, up, 0), 1)
    s.Len(s.engine.Logs().GetRecent(s.ctx, down, 0), 1)
    s.Empty(s.engine.Logs().GetRecent(s.ctx, inactive, 0))
    s.Equal(s.cfg.Monitoring.MaxAttempts, s.prober.callCount("10.0.0.2"))
    s.Equal(0, s.prober.callCount("10.0.0.3"))
}

func (s *EngineTestSuite) TestRunCycleSlowHostDoesNotBlockOthers() {
    s.cfg.Monitoring.HostDeadline = 50 * time.Millisecond
    s.cfg.Monitoring.Workers = 2

    s.createHost("10.0.0.1")
    s.createHost("10.0.0.2")
    s.createHost("10.0.0.3")
    s.prober.hang["10.0.0.2"] = true
    s.prober.set("10.0.0.1", upOutcome(1))
    s.prober.set("10.0.0.3", upOutcome(2))

    start := time.Now()
    summary, err := s.engine.RunCycle(s.ctx)
    s.Require().NoError(err)
    s.Less(time.Since(start), 5*time.Second)

    s.Equal(3, summary.Checked)
    s.Equal(2, summary.Up)
    s.Equal(1, summary.Down)
}

func (s *EngineTestSuite) TestRunCycleNoOverlap() {
    s.cfg.Monitoring.HostDeadline = 200 * time.Millisecond
    s.createHost("10.0.0.2")
    s.prober.hang["10.0.0.2"] = true

    done := make(chan struct{})
    go func() {
        defer close(done)
        s.engine.RunCycle(s.ctx)
    }()

    s.Eventually(func() bool {
        return s.prober.callCount("10.0.0.2") > 0
    }, time.Second, 5*time.Millisecond)

    _, err := s.engine.RunCycle(s.ctx)
    s.ErrorIs(err, ErrCycleRunning)
    <-done
}

func (s *EngineTestSuite) TestUpdateHostRenameMovesSeries() {
    s.prober.set("10.0.0.5", upOutcome(3))
    result, err := s.engine.Register(s.ctx, database.HostInput{Name: "rename-before", Address: "10.0.0.5"})
    s.Require().NoError(err)
    id := strconv.Itoa(result.HostID)

    name := "rename-after"
    host, err := s.engine.UpdateHost(s.ctx, result.HostID, database.HostPatch{Name: &name})
    s.Require().NoError(err)
    s.Equal("rename-after", host.Name)

    s.False(metrics.HostStatus.DeleteLabelValues(id, "rename-before"))
    s.True(metrics.HostStatus.DeleteLabelValues(id, "rename-after"))

    _, err = s.engine.UpdateHost(s.ctx, 99, database.HostPatch{Name: &name})
    s.True(database.IsNotFound(err))
}

func (s *EngineTestSuite) TestStartCycleRunsInBackground() {
    s.createHost("10.0.0.1")
    s.prober.set("10.0.0.1", upOutcome(2))

    done := make(chan *CycleSummary, 1)
    runID, err := s.engine.StartCycle(s.ctx, func(summary *CycleSummary, err error) {
        s.NoError(err)
        done <- summary
    })
    s.Require().NoError(err)

    select {
    case summary := <-done:
        s.Equal(runID, summary.RunID)
        s.Equal(1, summary.Up)
    case <-time.After(2 * time.Second):
        s.Fail("cycle did not finish")
    }

    // the lock is released once done returns
    s.Eventually(func() bool {
        _, err := s.engine.RunCycle(s.ctx)
        return err == nil
    }, time.Second, 5*time.Millisecond)
}

func (s *EngineTestSuite) TestDeactivateKeepsHistory() {
    id := s.createHost("10.0.0.5")
    s.prober.set("10.0.0.5", upOutcome(3))

    _, err := s.engine.CheckNow(s.ctx, id)
    s.Require().NoError(err)
    s.Require().NoError(s.engine.Deactivate(s.ctx, id))

    host, err := s.engine.Registry().Get(s.ctx, id)
    s.Require().NoError(err)
    s.False(host.IsActive)
    s.Len(s.engine.Logs().GetRecent(s.ctx, id, 0), 1)

    s.True(database.IsNotFound(s.engine.Deactivate(s.ctx, 99)))
}

func (s *EngineTestSuite) TestSubscribe() {
    var (
        mu      sync.Mutex
        results []ProbeResult
    )
    s.engine.Subscribe(func(result ProbeResult) {
        mu.Lock()
        defer mu.Unlock()
        results = append(results, result)
    })

    id := s.createHost("10.0.0.5")
    s.prober.set("10.0.0.5", upOutcome(9))
    _, err := s.engine.CheckNow(s.ctx, id)
    s.Require().NoError(err)

    mu.Lock()
    defer mu.Unlock()
    s.Require().Len(results, 1)
    s.Equal(id, results[0].HostID)
    s.Equal("10.0.0.5", results[0].Address)
    s.Equal(database.StatusUp, results[0].Status)
    s.NotZero(results[0].LogID)
}

func (s *EngineTestSuite) TestSeedHosts() {
    s.createHost("10.0.0.1")
    s.cfg.Hosts = []config.HostConfig{
        {Name: "core", Address: "10.0.0.1"},
        {Name: "edge", Address: "10.0.0.2", Latitude: 51.5, Longitude: -0.1},
        {Name: "broken", Address: "nope"},
    }

    s.Require().NoError(s.engine.SeedHosts(s.ctx))

    hosts := s.engine.Registry().List(s.ctx)
    s.Require().Len(hosts, 2)
    s.Equal("edge", hosts[1].Name)
    s.Equal(51.5, hosts[1].Latitude)

    // seeding twice is a no-op
    s.Require().NoError(s.engine.SeedHosts(s.ctx))
    s.Len(s.engine.Registry().List(s.ctx), 2)
}

func TestEngineSuite(t *testing.T) {
    suite.Run(t, new(EngineTestSuite))
}
