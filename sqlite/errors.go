package sqlite

import (
	"errors"

	"github.com/asaidimu/go-anansi-bootstrap/core/persistence"
	"github.com/mattn/go-sqlite3"
)

// mapError classifies a go-sqlite3 error with the persistence sentinels. Errors
// that do not come from SQLite are returned unchanged.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return err
	}

	switch {
	case sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique,
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey:
		return persistence.WrapDriverError(persistence.ErrDuplicateKey, err)
	case sqliteErr.Code == sqlite3.ErrBusy,
		sqliteErr.Code == sqlite3.ErrLocked,
		sqliteErr.Code == sqlite3.ErrCantOpen,
		sqliteErr.Code == sqlite3.ErrIoErr,
		sqliteErr.Code == sqlite3.ErrNotADB:
		return persistence.WrapDriverError(persistence.ErrUnavailable, err)
	}
	return err
}
