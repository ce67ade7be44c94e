package storage

import (
	"context"
	"errors"
	"log/slog"

	"github.com/dgraph-io/badger/v4"
)

const maxConflictRetries = 16

// update runs fn in a read-write transaction and replays it when Badger
// detects a write conflict with a concurrent transaction. Each attempt sees
// the state committed by the winner.
func update(ctx context.Context, db *badger.DB, log *slog.Logger, fn func(txn *badger.Txn) error) error {
	var err error
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		err = db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		log.Debug("Transaction conflict, retrying", "attempt", attempt+1)
	}
	return err
}

// OpenInMemory opens a throwaway store, mostly for tests.
func OpenInMemory() (*badger.DB, error) {
	return badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
}
