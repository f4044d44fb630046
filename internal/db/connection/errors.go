package connection

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rebeliceyang/lazyvar/internal/models"
)

// pgQueryCanceled is the SQLSTATE postgres reports for a cancelled statement
const pgQueryCanceled = "57014"

// ErrUnknownSchema is returned when no pool is registered for a schema
var ErrUnknownSchema = errors.New("unknown schema")

// CancelledError reports a statement stopped by the user or the driver. It is
// a normal termination and callers should not report it as a failure.
type CancelledError struct {
	SQL string
}

func (e *CancelledError) Error() string {
	return "query cancelled"
}

// QueryExecutionError wraps any other failure of a statement
type QueryExecutionError struct {
	Schema models.Schema
	SQL    string
	Err    error
}

func (e *QueryExecutionError) Error() string {
	return fmt.Sprintf("query on schema %s failed: %v", e.Schema, e.Err)
}

func (e *QueryExecutionError) Unwrap() error {
	return e.Err
}

// IsCancelled reports whether err is a cancellation, whatever layer raised it
func IsCancelled(err error) bool {
	if err == nil {
		return false
	}
	var ce *CancelledError
	if errors.As(err, &ce) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgQueryCanceled
}

// classify turns a driver error into one of the gateway error kinds
func classify(st *Statement, err error) error {
	if err == nil {
		return nil
	}
	if st.Cancelled() || IsCancelled(err) {
		return &CancelledError{SQL: st.SQL}
	}
	return &QueryExecutionError{Schema: st.Schema, SQL: st.SQL, Err: err}
}
