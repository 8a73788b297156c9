package mediastore

import (
	"errors"
	"fmt"
)

// ErrUnknownHandle is returned when a handle is not (or no longer)
// tracked by the store. Destroy treats it as a no-op; Materialize and
// Metadata surface it.
var ErrUnknownHandle = errors.New("unknown media handle")

// ErrStoreClosed is returned for operations issued after Close.
var ErrStoreClosed = errors.New("media store closed")

// EncryptionError reports a failed cipher step. Ingest guarantees the
// plaintext scratch file has been shredded before this error is returned.
type EncryptionError struct {
	Op  string
	Err error
}

func (e *EncryptionError) Error() string {
	return fmt.Sprintf("media encryption %s: %v", e.Op, e.Err)
}

func (e *EncryptionError) Unwrap() error { return e.Err }

// StorageError reports a filesystem failure in the store.
type StorageError struct {
	Op   string
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("media storage %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }
