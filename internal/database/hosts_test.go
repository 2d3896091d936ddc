package database

import (
    "context"
    "errors"
    "os"
    "path/filepath"
    "testing"
    "time"

    "github.com/benbjohnson/clock"
    "github.com/stretchr/testify/suite"
)

// HostRegistryTestSuite tests host registration and lifecycle.
type HostRegistryTestSuite struct {
    suite.Suite
    tempDir  string
    store    *BoltStore
    clock    *clock.Mock
    registry *HostRegistry
    ctx      context.Context
}

func (s *HostRegistryTestSuite) SetupTest() {
    var err error
    s.tempDir, err = os.MkdirTemp("", "pingmap-hosts-test-*")
    s.Require().NoError(err)

    s.store, err = NewBoltStore(filepath.Join(s.tempDir, "test.db"))
    s.Require().NoError(err)

    s.clock = clock.NewMock()
    s.clock.Set(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
    s.registry = NewHostRegistry(s.store, nil, s.clock)
    s.ctx = context.Background()
}

func (s *HostRegistryTestSuite) TearDownTest() {
    if s.store != nil {
        s.store.Close()
    }
    os.RemoveAll(s.tempDir)
}

func (s *HostRegistryTestSuite) create(address string) int {
    id, err := s.registry.Create(s.ctx, HostInput{Name: "host " + address, Address: address, Latitude: -6.2, Longitude: 106.8})
    s.Require().NoError(err)
    return id
}

func (s *HostRegistryTestSuite) TestCreateAssignsSequentialIDs() {
    s.Equal(1, s.create("10.0.0.5"))
    s.Equal(2, s.create("10.0.0.6"))
    s.Len(s.registry.ListActive(s.ctx), 2)
}

func (s *HostRegistryTestSuite) TestCreateDefaults() {
    id := s.create("10.0.0.5")

    host, err := s.registry.Get(s.ctx, id)
    s.Require().NoError(err)
    s.True(host.IsActive)
    s.Equal(StatusUnknown, host.LastStatus)
    s.Nil(host.LastCheckedAt)
    s.Nil(host.LastResponseTimeMs)
    s.Zero(host.TotalChecks)
    s.Zero(host.UptimePercentage)
    s.Equal(-6.2, host.Latitude)
    s.Equal(106.8, host.Longitude)
    s.True(host.CreatedAt.Equal(s.clock.Now()))
    s.True(host.UpdatedAt.Equal(s.clock.Now()))
}

func (s *HostRegistryTestSuite) TestCreateRejectsInvalidAddress() {
    testCases := []struct {
        address string
        message string
    }{
        {"", "empty address"},
        {"   ", "blank address"},
        {"not-an-ip", "hostname"},
        {"999.1.1.1", "octet out of range"},
        {"10.0.0", "truncated"},
    }

    for _, tc := range testCases {
        _, err := s.registry.Create(s.ctx, HostInput{Address: tc.address})
        s.True(IsValidation(err), tc.message)
    }
    s.Empty(s.registry.List(s.ctx))
}

func (s *HostRegistryTestSuite) TestCreateAcceptsIPv6() {
    s.Equal(1, s.create("2001:db8::1"))
}

func (s *HostRegistryTestSuite) TestCreateRejectsDuplicateActiveAddress() {
    s.create("10.0.0.5")

    _, err := s.registry.Create(s.ctx, HostInput{Address: "10.0.0.5"})
    s.True(IsValidation(err))
    s.Len(s.registry.ListActive(s.ctx), 1)
    s.Len(s.registry.List(s.ctx), 1)
}

func (s *HostRegistryTestSuite) TestAddressReusableAfterSoftDelete() {
    first := s.create("10.0.0.5")
    s.Require().NoError(s.registry.SoftDelete(s.ctx, first))

    second := s.create("10.0.0.5")
    s.Equal(first+1, second)
}

func (s *HostRegistryTestSuite) TestIDsNeverReused() {
    s.create("10.0.0.1")
    last := s.create("10.0.0.2")
    s.Require().NoError(s.registry.SoftDelete(s.ctx, last))

    s.Equal(last+1, s.create("10.0.0.3"))
}

func (s *HostRegistryTestSuite) TestMalformedRecordSurvivesRewrite() {
    s.create("10.0.0.1")
    s.create("10.0.0.2")
    s.create("10.0.0.3")

    // corrupt the newest host in place
    broken := Record(`{"id":3,"address":"10.0.0.3","latitude":"north"}`)
    s.Require().NoError(s.store.Update(s.ctx, HostsCollection, func(records []Record, _ Sequence) ([]Record, error) {
        records[2] = broken
        return records, nil
    }))
    s.Len(s.registry.List(s.ctx), 2)

    // the id of the unreadable host is not handed out again
    s.Equal(4, s.create("10.0.0.4"))

    records := s.store.Load(s.ctx, HostsCollection)
    s.Require().Len(records, 4)
    s.JSONEq(string(broken), string(records[3]))
}

func (s *HostRegistryTestSuite) TestCustomValidator() {
    registry := NewHostRegistry(s.store, func(address string) error {
        return errors.New("hostnames only")
    }, s.clock)

    _, err := registry.Create(s.ctx, HostInput{Address: "10.0.0.1"})
    s.True(IsValidation(err))
    s.Contains(err.Error(), "hostnames only")
}

func (s *HostRegistryTestSuite) TestSoftDelete() {
    id := s.create("10.0.0.5")
    s.clock.Add(time.Minute)

    s.Require().NoError(s.registry.SoftDelete(s.ctx, id))
    s.Empty(s.registry.ListActive(s.ctx))

    host, err := s.registry.Get(s.ctx, id)
    s.Require().NoError(err)
    s.False(host.IsActive)
    s.True(host.UpdatedAt.Equal(s.clock.Now()))
}

func (s *HostRegistryTestSuite) TestUnknownID() {
    _, err := s.registry.Get(s.ctx, 42)
    s.ErrorIs(err, ErrNotFound)
    s.ErrorIs(s.registry.SoftDelete(s.ctx, 42), ErrNotFound)
    s.ErrorIs(s.registry.Update(s.ctx, 42, HostPatch{}), ErrNotFound)
    s.ErrorIs(s.registry.Modify(s.ctx, 42, func(*Host) error { return nil }), ErrNotFound)
}

func (s *HostRegistryTestSuite) TestUpdateMergesFields() {
    id := s.create("10.0.0.5")
    s.clock.Add(time.Hour)

    name := "core router"
    lat := 1.5
    s.Require().NoError(s.registry.Update(s.ctx, id, HostPatch{Name: &name, Latitude: &lat}))

    host, err := s.registry.Get(s.ctx, id)
    s.Require().NoError(err)
    s.Equal("core router", host.Name)
    s.Equal(1.5, host.Latitude)
    s.Equal(106.8, host.Longitude)
    s.Equal("10.0.0.5", host.Address)
    s.True(host.UpdatedAt.Equal(s.clock.Now()))
}

func (s *HostRegistryTestSuite) TestUpdateAddressConflicts() {
    s.create("10.0.0.5")
    id := s.create("10.0.0.6")

    taken := "10.0.0.5"
    s.True(IsValidation(s.registry.Update(s.ctx, id, HostPatch{Address: &taken})))

    invalid := "nope"
    s.True(IsValidation(s.registry.Update(s.ctx, id, HostPatch{Address: &invalid})))

    free := "10.0.0.7"
    s.NoError(s.registry.Update(s.ctx, id, HostPatch{Address: &free}))
}

func (s *HostRegistryTestSuite) TestModifyErrorRollsBack() {
    id := s.create("10.0.0.5")

    err := s.registry.Modify(s.ctx, id, func(host *Host) error {
        host.TotalChecks = 99
        return errors.New("boom")
    })
    s.Error(err)

    host, err := s.registry.Get(s.ctx, id)
    s.Require().NoError(err)
    s.Zero(host.TotalChecks)
}

func (s *HostRegistryTestSuite) TestDisplayName() {
    host := Host{ID: 7}
    s.Equal("Server #7", host.DisplayName())
    host.Name = "edge"
    s.Equal("edge", host.DisplayName())
}

func TestHostRegistryTestSuite(t *testing.T) {
    suite.Run(t, new(HostRegistryTestSuite))
}
