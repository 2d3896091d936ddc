// internal/database/boltstore.go - bbolt backed record store
package database

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "os"
    "path/filepath"
    "time"

    "github.com/sirupsen/logrus"
    "go.etcd.io/bbolt"
)

// Every collection lives in its own bucket; the whole document is stored
// under a single key so a write replaces it atomically.
var documentKey = []byte("document")

type BoltStore struct {
    db   *bbolt.DB
    path string
}

func NewBoltStore(path string) (*BoltStore, error) {
    // Create directory if it doesn't exist
    if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
        return nil, fmt.Errorf("failed to create data directory: %w", err)
    }

    db, err := bbolt.Open(path, 0600, &bbolt.Options{
        Timeout: 1 * time.Second,
    })
    if errors.Is(err, bbolt.ErrTimeout) {
        return nil, fmt.Errorf("%w: %s", ErrStoreLocked, path)
    }
    if err != nil {
        return nil, fmt.Errorf("failed to open BoltDB: %w", err)
    }

    store := &BoltStore{db: db, path: path}

    if err := store.initBuckets(); err != nil {
        db.Close()
        return nil, fmt.Errorf("failed to initialize buckets: %w", err)
    }

    return store, nil
}

func (s *BoltStore) initBuckets() error {
    return s.db.Update(func(tx *bbolt.Tx) error {
        for _, name := range []string{HostsCollection, ProbeLogsCollection} {
            if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
                return fmt.Errorf("failed to create bucket %s: %w", name, err)
            }
        }
        return nil
    })
}

func (s *BoltStore) Load(ctx context.Context, collection string) []Record {
    var records []Record

    err := s.db.View(func(tx *bbolt.Tx) error {
        b := tx.Bucket([]byte(collection))
        if b == nil {
            return nil
        }
        records = decodeDocument(collection, b.Get(documentKey))
        return nil
    })
    if err != nil {
        logrus.WithError(err).WithField("collection", collection).Warn("Failed to read collection, treating as empty")
        return []Record{}
    }
    if records == nil {
        records = []Record{}
    }
    return records
}

func (s *BoltStore) Save(ctx context.Context, collection string, records []Record) error {
    data, err := encodeDocument(records)
    if err != nil {
        return &PersistenceError{Collection: collection, Err: err}
    }

    err = s.db.Update(func(tx *bbolt.Tx) error {
        b, err := tx.CreateBucketIfNotExists([]byte(collection))
        if err != nil {
            return err
        }
        return b.Put(documentKey, data)
    })
    if err != nil {
        return &PersistenceError{Collection: collection, Err: err}
    }
    return nil
}

func (s *BoltStore) Update(ctx context.Context, collection string, fn MutateFunc) error {
    if err := ctx.Err(); err != nil {
        return err
    }

    var fnErr error
    var seq *boltSequence

    err := s.db.Update(func(tx *bbolt.Tx) error {
        b, err := tx.CreateBucketIfNotExists([]byte(collection))
        if err != nil {
            return err
        }

        seq = &boltSequence{bucket: b}
        records, err := fn(decodeDocument(collection, b.Get(documentKey)), seq)
        if err != nil {
            fnErr = err
            return err
        }

        data, err := encodeDocument(records)
        if err != nil {
            return err
        }
        return b.Put(documentKey, data)
    })

    if seq != nil && seq.err != nil {
        return &PersistenceError{Collection: collection, Err: seq.err}
    }
    if fnErr != nil {
        return fnErr
    }
    if err != nil {
        return &PersistenceError{Collection: collection, Err: err}
    }
    return nil
}

// Size reports the size of the database file in bytes.
func (s *BoltStore) Size() int64 {
    var size int64
    if err := s.db.View(func(tx *bbolt.Tx) error {
        size = tx.Size()
        return nil
    }); err != nil {
        if fileInfo, err := os.Stat(s.path); err == nil {
            size = fileInfo.Size()
        }
    }
    return size
}

func (s *BoltStore) Close() error {
    return s.db.Close()
}

type boltSequence struct {
    bucket *bbolt.Bucket
    err    error
}

func (q *boltSequence) Next() (uint64, error) {
    n, err := q.bucket.NextSequence()
    if err != nil {
        q.err = err
    }
    return n, err
}

func (q *boltSequence) Floor(n uint64) error {
    if q.bucket.Sequence() >= n {
        return nil
    }
    if err := q.bucket.SetSequence(n); err != nil {
        q.err = err
        return err
    }
    return nil
}

func decodeDocument(collection string, data []byte) []Record {
    if len(data) == 0 {
        return []Record{}
    }

    var records []Record
    if err := json.Unmarshal(data, &records); err != nil {
        logrus.WithError(err).WithField("collection", collection).Warn("Unparseable collection, treating as empty")
        return []Record{}
    }
    if records == nil {
        records = []Record{}
    }
    return records
}

func encodeDocument(records []Record) ([]byte, error) {
    if records == nil {
        records = []Record{}
    }
    data, err := json.MarshalIndent(records, "", "  ")
    if err != nil {
        return nil, fmt.Errorf("failed to marshal collection: %w", err)
    }
    return data, nil
}
