// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow higher layers such as the
// auth service to distinguish between different failure scenarios. For
// example, ErrTokenNotFound signals "no stored token for this user yet",
// which the service treats as a first login rather than a fault.
package repository

import (
	"errors"

	"github.com/go-sql-driver/mysql"
)

// ErrTokenNotFound is returned when no record exists for the given
// token kind and user.
var ErrTokenNotFound = errors.New("token not found")

// ErrTokenExists is returned by Save when a record for the same kind
// and user was inserted concurrently. Callers should upsert instead.
var ErrTokenExists = errors.New("token already exists")

// ErrUserNotFound is returned when a user lookup by username or id
// matches nothing.
var ErrUserNotFound = errors.New("user not found")

// ErrUsernameExists is returned when registering a username that is
// already taken.
var ErrUsernameExists = errors.New("username already exists")

// mysqlDuplicateEntry is the server error number for a unique key violation.
const mysqlDuplicateEntry = 1062

func isDuplicate(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == mysqlDuplicateEntry
}
