package ledger

import (
	"errors"
	"fmt"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// SQLite is the dialect for modernc.org/sqlite. Open the database with
// SQLiteDSN: "_txlock=immediate" makes BeginTx take the write lock up front,
// so writers queue behind it for at most SQLiteBusyTimeout and never
// deadlock at commit. A writer still waiting after that fails with
// SQLITE_BUSY, reported as ErrConflict.
var SQLite = Dialect{
	Name:       "sqlite",
	lockSuffix: "",
	classify:   classifySQLite,
}

// SQLiteBusyTimeout bounds how long a writer waits for the database lock.
const SQLiteBusyTimeout = 2 * time.Second

// SQLiteDSN returns a DSN for path with immediate transactions, WAL journaling
// and a bounded busy wait.
func SQLiteDSN(path string) string {
	return fmt.Sprintf("file:%s?_txlock=immediate&_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)",
		path, SQLiteBusyTimeout.Milliseconds())
}

func classifySQLite(err error) error {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return err
	}
	switch se.Code() & 0xff {
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
		return fmt.Errorf("%w: %v", ErrConflict, err)
	case sqlite3.SQLITE_CONSTRAINT:
		return fmt.Errorf("%w: %v", ErrDuplicate, err)
	}
	return err
}
