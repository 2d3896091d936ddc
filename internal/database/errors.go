// internal/database/errors.go
package database

import (
    "errors"
    "fmt"
)

var (
    // ErrNotFound is returned when an operation references an unknown id.
    ErrNotFound = errors.New("not found")

    // ErrStoreLocked is returned when another process holds the database file.
    ErrStoreLocked = errors.New("database is locked by another process")
)

// ValidationError reports input the registry refused to store.
type ValidationError struct {
    Field   string
    Message string
}

func (e *ValidationError) Error() string {
    if e.Field == "" {
        return e.Message
    }
    return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// PersistenceError wraps a failed write. Its message stays generic; the cause
// is available through errors.Unwrap for logging.
type PersistenceError struct {
    Collection string
    Err        error
}

func (e *PersistenceError) Error() string {
    return fmt.Sprintf("failed to persist %s", e.Collection)
}

func (e *PersistenceError) Unwrap() error {
    return e.Err
}

func IsValidation(err error) bool {
    var ve *ValidationError
    return errors.As(err, &ve)
}

func IsNotFound(err error) bool {
    return errors.Is(err, ErrNotFound)
}

func IsPersistence(err error) bool {
    var pe *PersistenceError
    return errors.As(err, &pe)
}
