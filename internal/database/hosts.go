// internal/database/hosts.go
package database

import (
    "context"
    "net/netip"
    "strings"

    "github.com/benbjohnson/clock"
    "github.com/sirupsen/logrus"
)

// Registry defines the host operations exposed to the engine and the API.
// Lookups are linear scans over the hosts collection; an indexed
// implementation can replace HostRegistry without changing callers.
type Registry interface {
    ListActive(ctx context.Context) []Host
    List(ctx context.Context) []Host
    Get(ctx context.Context, id int) (*Host, error)
    Create(ctx context.Context, in HostInput) (int, error)
    Update(ctx context.Context, id int, patch HostPatch) error
    SoftDelete(ctx context.Context, id int) error
    Modify(ctx context.Context, id int, fn func(host *Host) error) error
}

// AddressValidator rejects malformed host addresses.
type AddressValidator func(address string) error

// ValidateIP accepts IPv4 and IPv6 literals.
func ValidateIP(address string) error {
    if _, err := netip.ParseAddr(address); err != nil {
        return &ValidationError{Field: "address", Message: "invalid IP address format"}
    }
    return nil
}

type HostRegistry struct {
    hosts    collection[Host]
    validate AddressValidator
    clock    clock.Clock
}

var _ Registry = (*HostRegistry)(nil)

func NewHostRegistry(store RecordStore, validate AddressValidator, clk clock.Clock) *HostRegistry {
    if validate == nil {
        validate = ValidateIP
    }
    if clk == nil {
        clk = clock.New()
    }
    return &HostRegistry{
        hosts:    collection[Host]{store: store, name: HostsCollection},
        validate: validate,
        clock:    clk,
    }
}

func (r *HostRegistry) List(ctx context.Context) []Host {
    return r.hosts.load(ctx)
}

func (r *HostRegistry) ListActive(ctx context.Context) []Host {
    hosts := r.hosts.load(ctx)
    active := make([]Host, 0, len(hosts))
    for _, host := range hosts {
        if host.IsActive {
            active = append(active, host)
        }
    }
    return active
}

// Get returns the host with the given id, including soft-deleted ones.
func (r *HostRegistry) Get(ctx context.Context, id int) (*Host, error) {
    for _, host := range r.hosts.load(ctx) {
        if host.ID == id {
            h := host
            return &h, nil
        }
    }
    return nil, ErrNotFound
}

func (r *HostRegistry) Create(ctx context.Context, in HostInput) (int, error) {
    if err := r.checkAddress(in.Address); err != nil {
        return 0, err
    }

    var id int
    err := r.hosts.update(ctx, func(hosts []Host, seq Sequence) ([]Host, error) {
        if activeAddressTaken(hosts, in.Address, 0) {
            return nil, &ValidationError{Field: "address", Message: "IP address already exists"}
        }

        next, err := nextHostID(hosts, seq)
        if err != nil {
            return nil, err
        }
        id = next
        now := r.clock.Now()
        return append(hosts, Host{
            ID:          id,
            Name:        in.Name,
            Address:     in.Address,
            Latitude:    in.Latitude,
            Longitude:   in.Longitude,
            Description: in.Description,
            IsActive:    true,
            CreatedAt:   now,
            UpdatedAt:   now,
            LastStatus:  StatusUnknown,
        }), nil
    })
    if err != nil {
        return 0, err
    }

    logrus.WithFields(logrus.Fields{
        "host_id": id,
        "address": in.Address,
    }).Info("Created host")
    return id, nil
}

func (r *HostRegistry) Update(ctx context.Context, id int, patch HostPatch) error {
    if patch.Address != nil {
        if err := r.checkAddress(*patch.Address); err != nil {
            return err
        }
    }

    return r.hosts.update(ctx, func(hosts []Host, _ Sequence) ([]Host, error) {
        i := indexOf(hosts, id)
        if i < 0 {
            return nil, ErrNotFound
        }

        host := &hosts[i]
        if patch.Address != nil && *patch.Address != host.Address {
            if host.IsActive && activeAddressTaken(hosts, *patch.Address, id) {
                return nil, &ValidationError{Field: "address", Message: "IP address already exists"}
            }
            host.Address = *patch.Address
        }
        if patch.Name != nil {
            host.Name = *patch.Name
        }
        if patch.Latitude != nil {
            host.Latitude = *patch.Latitude
        }
        if patch.Longitude != nil {
            host.Longitude = *patch.Longitude
        }
        if patch.Description != nil {
            host.Description = *patch.Description
        }
        host.UpdatedAt = r.clock.Now()
        return hosts, nil
    })
}

// SoftDelete marks the host inactive. Its probe history is left in place.
func (r *HostRegistry) SoftDelete(ctx context.Context, id int) error {
    err := r.hosts.update(ctx, func(hosts []Host, _ Sequence) ([]Host, error) {
        i := indexOf(hosts, id)
        if i < 0 {
            return nil, ErrNotFound
        }
        hosts[i].IsActive = false
        hosts[i].UpdatedAt = r.clock.Now()
        return hosts, nil
    })
    if err != nil {
        return err
    }

    logrus.WithField("host_id", id).Info("Deactivated host")
    return nil
}

// Modify applies fn to the stored host and persists the result in the same
// transaction. An error from fn leaves the collection unchanged.
func (r *HostRegistry) Modify(ctx context.Context, id int, fn func(host *Host) error) error {
    return r.hosts.update(ctx, func(hosts []Host, _ Sequence) ([]Host, error) {
        i := indexOf(hosts, id)
        if i < 0 {
            return nil, ErrNotFound
        }
        if err := fn(&hosts[i]); err != nil {
            return nil, err
        }
        return hosts, nil
    })
}

func (r *HostRegistry) checkAddress(address string) error {
    if strings.TrimSpace(address) == "" {
        return &ValidationError{Field: "address", Message: "is required"}
    }
    if err := r.validate(address); err != nil {
        if IsValidation(err) {
            return err
        }
        return &ValidationError{Field: "address", Message: err.Error()}
    }
    return nil
}

// nextHostID returns the next value of the collection sequence, raised to
// at least max(existing ids) first. Ids are never reused, including those
// of soft deleted hosts and of records that failed to decode.
func nextHostID(hosts []Host, seq Sequence) (int, error) {
    maxID := 0
    for _, host := range hosts {
        if host.ID > maxID {
            maxID = host.ID
        }
    }
    if err := seq.Floor(uint64(maxID)); err != nil {
        return 0, err
    }
    next, err := seq.Next()
    if err != nil {
        return 0, err
    }
    return int(next), nil
}

func activeAddressTaken(hosts []Host, address string, exceptID int) bool {
    for _, host := range hosts {
        if host.IsActive && host.ID != exceptID && host.Address == address {
            return true
        }
    }
    return false
}

func indexOf(hosts []Host, id int) int {
    for i := range hosts {
        if hosts[i].ID == id {
            return i
        }
    }
    return -1
}
