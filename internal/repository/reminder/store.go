package reminder

import (
	"context"
	"time"

	"github.com/aliskhannn/reminder-dispatcher/internal/model"
)

// Store is the contract shared by the Postgres repository and MemoryStore.
type Store interface {
	FindDue(ctx context.Context, dueColumn string, status model.Status, now time.Time) ([]model.Reminder, error)
	FindByID(ctx context.Context, dueColumn, id string) (model.Reminder, error)
	ApplyOutcome(ctx context.Context, id string, outcome model.Outcome) error
	ProbeColumn(ctx context.Context, column string) error
}

var (
	_ Store = (*Repository)(nil)
	_ Store = (*MemoryStore)(nil)
)
