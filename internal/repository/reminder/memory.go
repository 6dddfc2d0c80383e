package reminder

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aliskhannn/reminder-dispatcher/internal/model"
)

// MemoryStore keeps reminders in process memory. It follows the same contract
// as Repository, including unknown-column errors for columns it was not
// created with.
type MemoryStore struct {
	mu        sync.RWMutex
	reminders map[string]*model.Reminder
	columns   map[string]bool
	dueColumn string
	updates   int
}

// NewMemoryStore creates an in-memory store with the given columns. With no
// columns it has the full declared schema.
func NewMemoryStore(columns ...string) *MemoryStore {
	if len(columns) == 0 {
		columns = Columns
	}

	s := &MemoryStore{
		reminders: make(map[string]*model.Reminder),
		columns:   make(map[string]bool, len(columns)),
		dueColumn: DefaultDueColumn,
	}
	for _, c := range columns {
		s.columns[c] = true
	}

	return s
}

// WithDueColumn renames the due column, replacing the default one.
func (s *MemoryStore) WithDueColumn(column string) *MemoryStore {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.columns, s.dueColumn)
	s.columns[column] = true
	s.dueColumn = column

	return s
}

// Add stores a copy of rem, assigning an ID when it has none, and returns the ID.
func (s *MemoryStore) Add(rem model.Reminder) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rem.ID == "" {
		rem.ID = uuid.NewString()
	}
	s.reminders[rem.ID] = &rem

	return rem.ID
}

// Get returns a copy of the reminder with the given ID.
func (s *MemoryStore) Get(id string) (model.Reminder, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rem, ok := s.reminders[id]
	if !ok {
		return model.Reminder{}, false
	}

	return *rem, true
}

// Updates returns the number of successful ApplyOutcome calls.
func (s *MemoryStore) Updates() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.updates
}

func (s *MemoryStore) FindDue(ctx context.Context, dueColumn string, status model.Status, now time.Time) ([]model.Reminder, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.columns[dueColumn] {
		return nil, fmt.Errorf("failed to find due reminders: %w", &UnknownColumnError{Column: dueColumn})
	}

	var out []model.Reminder
	for _, rem := range s.reminders {
		if rem.Status != status || rem.DueAt.After(now) {
			continue
		}
		out = append(out, *rem)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].DueAt.Equal(out[j].DueAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].DueAt.Before(out[j].DueAt)
	})

	return out, nil
}

func (s *MemoryStore) FindByID(ctx context.Context, dueColumn, id string) (model.Reminder, error) {
	if err := ctx.Err(); err != nil {
		return model.Reminder{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.columns[dueColumn] {
		return model.Reminder{}, fmt.Errorf("failed to get reminder: %w", &UnknownColumnError{Column: dueColumn})
	}

	rem, ok := s.reminders[id]
	if !ok {
		return model.Reminder{}, ErrReminderNotFound
	}

	return *rem, nil
}

func (s *MemoryStore) ApplyOutcome(ctx context.Context, id string, outcome model.Outcome) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range []string{"status", "attempts", "sent_at", "last_error"} {
		if outcome.Touches(c) && !s.columns[c] {
			return fmt.Errorf("failed to update reminder: %w", &UnknownColumnError{Column: c})
		}
	}

	rem, ok := s.reminders[id]
	if !ok || rem.Status == model.StatusSent {
		return ErrReminderNotFound
	}

	rem.Status = outcome.Status
	if outcome.SentAt != nil {
		t := *outcome.SentAt
		rem.SentAt = &t
	}
	switch {
	case outcome.LastError != nil:
		msg := *outcome.LastError
		rem.LastError = &msg
	case outcome.ClearLastError:
		rem.LastError = nil
	}
	if outcome.IncrementAttempts {
		rem.Attempts++
	}
	s.updates++

	return nil
}

func (s *MemoryStore) ProbeColumn(ctx context.Context, column string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !ValidColumn(column) {
		return fmt.Errorf("%w: %q", ErrInvalidColumn, column)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.columns[column] {
		return fmt.Errorf("failed to probe column %s: %w", column, &UnknownColumnError{Column: column})
	}

	return nil
}
