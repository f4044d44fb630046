package connection

import "sync"

// Cursor is a forward-only view over the rows of one statement. Close must
// always be called and is safe to call more than once. Use Gateway.Cancel
// to stop a cursor from another goroutine.
type Cursor struct {
	rows  Rows
	stmt  *Statement
	gw    *Gateway
	count int64

	once     sync.Once
	closeErr error
}

// Statement returns the handle used to cancel the cursor's statement
func (c *Cursor) Statement() *Statement {
	return c.stmt
}

// Columns returns the column names in select order
func (c *Cursor) Columns() []string {
	return c.rows.Columns()
}

// Next advances to the next row. It returns false once the statement is
// exhausted, failed, or was cancelled.
func (c *Cursor) Next() bool {
	if c.stmt.Cancelled() {
		return false
	}
	if !c.rows.Next() {
		// running out of rows settles the statement, so a late cancel is a no-op
		c.stmt.settle(Completed)
		return false
	}
	c.count++
	return true
}

// Values returns the current row
func (c *Cursor) Values() ([]any, error) {
	values, err := c.rows.Values()
	if err != nil {
		return nil, classify(c.stmt, err)
	}
	return values, nil
}

// Err returns the error that stopped iteration, if any. It reports a
// CancelledError only when cancellation settled the statement first.
func (c *Cursor) Err() error {
	if c.stmt.Cancelled() {
		return &CancelledError{SQL: c.stmt.SQL}
	}
	return classify(c.stmt, c.rows.Err())
}

// Close releases the rows and the connection behind them
func (c *Cursor) Close() error {
	c.once.Do(func() {
		err := c.Err()
		c.rows.Close()
		c.stmt.settle(Completed)
		c.gw.finish(c.stmt, c.count, err)
		c.closeErr = err
	})
	if IsCancelled(c.closeErr) {
		return nil
	}
	return c.closeErr
}
