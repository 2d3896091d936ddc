// internal/database/collection.go
package database

import (
    "context"
    "encoding/json"
    "fmt"

    "github.com/sirupsen/logrus"
)

// collection is a typed view over one named collection of a RecordStore.
type collection[T any] struct {
    store RecordStore
    name  string
}

func (c collection[T]) load(ctx context.Context) []T {
    items, _ := decodeRecords[T](c.name, c.store.Load(ctx, c.name))
    return items
}

func (c collection[T]) save(ctx context.Context, items []T) error {
    records, err := encodeRecords(items)
    if err != nil {
        return &PersistenceError{Collection: c.name, Err: err}
    }
    return c.store.Save(ctx, c.name, records)
}

// update rewrites the collection with the items returned by fn. Records
// that could not be decoded are written back untouched after them.
func (c collection[T]) update(ctx context.Context, fn func(items []T, seq Sequence) ([]T, error)) error {
    return c.store.Update(ctx, c.name, func(records []Record, seq Sequence) ([]Record, error) {
        decoded, malformed := decodeRecords[T](c.name, records)
        items, err := fn(decoded, seq)
        if err != nil {
            return nil, err
        }
        out, err := encodeRecords(items)
        if err != nil {
            return nil, &PersistenceError{Collection: c.name, Err: err}
        }
        return append(out, malformed...), nil
    })
}

func decodeRecords[T any](name string, records []Record) ([]T, []Record) {
    items := make([]T, 0, len(records))
    var malformed []Record
    for i, record := range records {
        var item T
        if err := json.Unmarshal(record, &item); err != nil {
            logrus.WithError(err).WithFields(logrus.Fields{
                "collection": name,
                "index":      i,
            }).Error("Malformed record, leaving it in place")
            malformed = append(malformed, record)
            continue
        }
        items = append(items, item)
    }
    return items, malformed
}

func encodeRecords[T any](items []T) ([]Record, error) {
    records := make([]Record, 0, len(items))
    for i := range items {
        data, err := json.Marshal(items[i])
        if err != nil {
            return nil, fmt.Errorf("failed to marshal record %d: %w", i, err)
        }
        records = append(records, data)
    }
    return records, nil
}
