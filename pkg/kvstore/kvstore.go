// Package kvstore is the key-value persistence boundary shared by profile and
// artifact records. Backends provide per-key atomic Get/Set only; there are no
// cross-key transactions, and callers must not assume any.
package kvstore

import (
	"context"
	"errors"
)

// ErrNotFound reports that a key has no value. It is deliberately distinct
// from ErrStore: "no such record" and "store unavailable" must never be
// conflated on the way to a caller.
var ErrNotFound = errors.New("kvstore: key not found")

// ErrStore is wrapped by every transport/availability failure a backend
// returns, so callers can discriminate with errors.Is.
var ErrStore = errors.New("kvstore: store unavailable")

// RecordStore is the contract every backend satisfies. Set is atomic per key:
// a concurrent Get observes either the previous value or the new one, never a
// partial write.
type RecordStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

// storeErr tags err as an infrastructure failure while keeping its message.
func storeErr(err error) error {
	return errors.Join(ErrStore, err)
}
