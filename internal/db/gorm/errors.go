package gorm

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"net"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/thebtf/placefeed/internal/db"
)

// classify maps driver errors onto the db error taxonomy: failures to reach
// the server become db.ErrUnavailable, errors reported by the server become
// *db.StoreError carrying the SQLSTATE code.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return db.Unavailable(err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// Class 08 is connection exceptions, 57P0x is the server shutting down.
		if strings.HasPrefix(pgErr.Code, "08") || strings.HasPrefix(pgErr.Code, "57P") {
			return db.Unavailable(err)
		}
		return &db.StoreError{Code: pgErr.Code, Message: pgErr.Message}
	}

	var connectErr *pgconn.ConnectError
	var netErr net.Error
	switch {
	case errors.As(err, &connectErr),
		errors.As(err, &netErr),
		errors.Is(err, driver.ErrBadConn),
		errors.Is(err, sql.ErrConnDone):
		return db.Unavailable(err)
	}

	return &db.StoreError{Message: err.Error()}
}
