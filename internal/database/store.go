// internal/database/store.go
package database

import (
    "context"
    "encoding/json"
)

// Collection names used by the registry and the probe log.
const (
    HostsCollection     = "hosts"
    ProbeLogsCollection = "probe-logs"
)

// Record is one element of a stored collection, kept in its encoded form.
type Record = json.RawMessage

// Sequence is a counter persisted alongside a collection, independent of
// the collection contents.
type Sequence interface {
    Next() (uint64, error)
    // Floor raises the counter so the next value is greater than n.
    Floor(n uint64) error
}

// MutateFunc receives the current contents of a collection and returns the
// contents that replace them. Returning an error discards the mutation.
type MutateFunc func(records []Record, seq Sequence) ([]Record, error)

// RecordStore loads and replaces named collections as a single unit.
//
// Load never fails: a missing or unparseable collection reads as empty.
// Save replaces the whole collection. Update performs load, mutate and save
// under one exclusive transaction so concurrent callers cannot lose each
// other's writes.
type RecordStore interface {
    Load(ctx context.Context, collection string) []Record
    Save(ctx context.Context, collection string, records []Record) error
    Update(ctx context.Context, collection string, fn MutateFunc) error
    Size() int64
    Close() error
}
