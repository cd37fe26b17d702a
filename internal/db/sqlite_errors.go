package db

import (
	"errors"

	sqlite3 "github.com/mattn/go-sqlite3"
)

// IsUniqueConstraintError reports a duplicate id, the only collision the
// random id generators can hit.
func IsUniqueConstraintError(err error) bool {
	return hasConstraintCode(err, sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey)
}

// IsForeignKeyError reports a write that referenced a session removed by
// retention cleanup.
func IsForeignKeyError(err error) bool {
	return hasConstraintCode(err, sqlite3.ErrConstraintForeignKey)
}

func hasConstraintCode(err error, codes ...sqlite3.ErrNoExtended) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) || sqliteErr.Code != sqlite3.ErrConstraint {
		return false
	}
	for _, code := range codes {
		if sqliteErr.ExtendedCode == code {
			return true
		}
	}
	return false
}
