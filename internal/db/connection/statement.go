package connection

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rebeliceyang/lazyvar/internal/models"
)

// Outcome is the terminal state of a statement
type Outcome int32

const (
	Pending Outcome = iota
	Completed
	Cancelled
)

func (o Outcome) String() string {
	switch o {
	case Completed:
		return "completed"
	case Cancelled:
		return "cancelled"
	default:
		return "pending"
	}
}

// Statement is the handle of one executing SELECT. Completion and
// cancellation race to settle its outcome; the first one wins and the other
// is ignored.
type Statement struct {
	ID        uuid.UUID
	Schema    models.Schema
	SQL       string
	Owner     string
	StartedAt time.Time

	outcome atomic.Int32
	cancel  context.CancelFunc
}

// StatementInfo is a snapshot of a running statement
type StatementInfo struct {
	ID        uuid.UUID
	Schema    models.Schema
	SQL       string
	Owner     string
	StartedAt time.Time
}

func newStatement(schema models.Schema, sql, owner string, cancel context.CancelFunc) *Statement {
	return &Statement{
		ID:        uuid.New(),
		Schema:    schema,
		SQL:       sql,
		Owner:     owner,
		StartedAt: time.Now(),
		cancel:    cancel,
	}
}

// Outcome returns the current state of the statement
func (s *Statement) Outcome() Outcome {
	return Outcome(s.outcome.Load())
}

// Cancelled reports whether cancellation won the race
func (s *Statement) Cancelled() bool {
	return s.Outcome() == Cancelled
}

// settle records the outcome if none is recorded yet
func (s *Statement) settle(o Outcome) bool {
	return s.outcome.CompareAndSwap(int32(Pending), int32(o))
}

func (s *Statement) info() StatementInfo {
	return StatementInfo{
		ID:        s.ID,
		Schema:    s.Schema,
		SQL:       s.SQL,
		Owner:     s.Owner,
		StartedAt: s.StartedAt,
	}
}

type ownerKey struct{}

// WithOwner tags every statement executed with ctx so it can be cancelled as
// a group through CancelOwner
func WithOwner(ctx context.Context, owner string) context.Context {
	return context.WithValue(ctx, ownerKey{}, owner)
}

// OwnerFrom returns the owner tag carried by ctx
func OwnerFrom(ctx context.Context) string {
	owner, _ := ctx.Value(ownerKey{}).(string)
	return owner
}
