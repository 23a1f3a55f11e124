// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow higher layers such as the
// gateway and handlers to distinguish between different failure scenarios.
// For example, ErrForbidden indicates that the current user is not
// authorized to touch a row owned by someone else, while ErrConflict
// signals that a uniqueness constraint rejected the write.
package repository

import (
	"errors"

	"github.com/go-sql-driver/mysql"
)

// ErrForbidden is returned when the caller attempts an operation
// on a resource they do not own. Handlers should translate this
// into an HTTP 403 response.
var ErrForbidden = errors.New("forbidden")

// ErrConflict is returned when a write violates a unique key, such as a
// duplicate product slug. Handlers should translate this into an HTTP 409
// response.
var ErrConflict = errors.New("conflict")

// ErrNotFound is returned when a lookup or a scoped write matched no row.
var ErrNotFound = errors.New("record not found")

// mysqlDuplicateEntry is the server error number for a unique key violation.
const mysqlDuplicateEntry = 1062

// isDuplicate reports whether err is a MySQL duplicate-entry error.
func isDuplicate(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == mysqlDuplicateEntry
}
