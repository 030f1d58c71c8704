package ledger

import (
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// Postgres is the dialect for github.com/lib/pq. The snapshot row is read
// with FOR UPDATE NOWAIT so a concurrent writer fails immediately.
var Postgres = Dialect{
	Name:       "postgres",
	lockSuffix: " FOR UPDATE NOWAIT",
	classify:   classifyPostgres,
}

const (
	pgUniqueViolation      = "23505"
	pgLockNotAvailable     = "55P03"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
)

func classifyPostgres(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err
	}
	switch string(pqErr.Code) {
	case pgLockNotAvailable, pgSerializationFailure, pgDeadlockDetected:
		return fmt.Errorf("%w: %v", ErrConflict, err)
	case pgUniqueViolation:
		return fmt.Errorf("%w: %v", ErrDuplicate, err)
	}
	return err
}
