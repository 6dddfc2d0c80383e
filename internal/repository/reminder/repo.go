package reminder

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/wb-go/wbf/dbpg"

	"github.com/aliskhannn/reminder-dispatcher/internal/model"
)

// Repository provides methods to interact with the reminders table.
type Repository struct {
	db *dbpg.DB
}

// NewRepository creates a new reminder repository.
func NewRepository(db *dbpg.DB) *Repository {
	return &Repository{db: db}
}

func baseSelect(dueColumn string, withOptional bool) string {
	cols := []string{
		"id::text",
		"COALESCE(title, '')",
		"COALESCE(target, '')",
		"COALESCE(channel, '')",
		pq.QuoteIdentifier(dueColumn),
		"COALESCE(status, '')",
		"COALESCE(attempts, 0)",
	}
	if withOptional {
		cols = append(cols, "last_error", "sent_at")
	}

	return fmt.Sprintf("SELECT %s FROM %s", strings.Join(cols, ", "), Table)
}

// FindDue returns reminders with the given status whose due column is at or
// before now. model.StatusUnset selects rows whose status is NULL or empty.
//
// The store filter is limited to equality, IS NULL and <=, so callers emulate
// OR across statuses with several calls.
func (r *Repository) FindDue(ctx context.Context, dueColumn string, status model.Status, now time.Time) ([]model.Reminder, error) {
	if !ValidColumn(dueColumn) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidColumn, dueColumn)
	}

	due := pq.QuoteIdentifier(dueColumn)

	var (
		query string
		args  []any
	)
	if status == model.StatusUnset {
		query = fmt.Sprintf("%s WHERE (status IS NULL OR status = '') AND %s <= $1 ORDER BY %s;", baseSelect(dueColumn, false), due, due)
		args = []any{now}
	} else {
		query = fmt.Sprintf("%s WHERE status = $1 AND %s <= $2 ORDER BY %s;", baseSelect(dueColumn, false), due, due)
		args = []any{string(status), now}
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to find due reminders: %w", translate(err))
	}
	defer rows.Close()

	var reminders []model.Reminder
	for rows.Next() {
		var (
			rem     model.Reminder
			channel string
			st      string
		)
		if err := rows.Scan(&rem.ID, &rem.Title, &rem.Target, &channel, &rem.DueAt, &st, &rem.Attempts); err != nil {
			return nil, fmt.Errorf("failed to scan reminder: %w", err)
		}

		rem.Channel = model.Channel(channel)
		rem.Status = model.Status(st)
		reminders = append(reminders, rem)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate reminders: %w", translate(err))
	}

	return reminders, nil
}

// FindByID retrieves a reminder by its ID. Optional columns are read when the
// table has them.
func (r *Repository) FindByID(ctx context.Context, dueColumn, id string) (model.Reminder, error) {
	if !ValidColumn(dueColumn) {
		return model.Reminder{}, fmt.Errorf("%w: %q", ErrInvalidColumn, dueColumn)
	}

	rem, err := r.findByID(ctx, dueColumn, id, true)
	if _, ok := AsUnknownColumn(err); ok {
		rem, err = r.findByID(ctx, dueColumn, id, false)
	}

	return rem, err
}

func (r *Repository) findByID(ctx context.Context, dueColumn, id string, withOptional bool) (model.Reminder, error) {
	query := baseSelect(dueColumn, withOptional) + " WHERE id = $1;"

	var (
		rem       model.Reminder
		channel   string
		st        string
		lastError sql.NullString
		sentAt    sql.NullTime
	)

	dest := []any{&rem.ID, &rem.Title, &rem.Target, &channel, &rem.DueAt, &st, &rem.Attempts}
	if withOptional {
		dest = append(dest, &lastError, &sentAt)
	}

	err := r.db.Master.QueryRowContext(ctx, query, id).Scan(dest...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Reminder{}, ErrReminderNotFound
		}

		return model.Reminder{}, fmt.Errorf("failed to get reminder: %w", translate(err))
	}

	rem.Channel = model.Channel(channel)
	rem.Status = model.Status(st)
	if lastError.Valid {
		rem.LastError = &lastError.String
	}
	if sentAt.Valid {
		rem.SentAt = &sentAt.Time
	}

	return rem, nil
}

// ApplyOutcome persists a delivery outcome for the reminder with the given ID.
//
// A reminder that is already sent is never updated; in that case, as for an
// unknown ID, ErrReminderNotFound is returned.
func (r *Repository) ApplyOutcome(ctx context.Context, id string, outcome model.Outcome) error {
	sets := []string{"status = $1"}
	args := []any{string(outcome.Status)}

	if outcome.SentAt != nil {
		args = append(args, *outcome.SentAt)
		sets = append(sets, fmt.Sprintf("sent_at = $%d", len(args)))
	}

	switch {
	case outcome.LastError != nil:
		args = append(args, *outcome.LastError)
		sets = append(sets, fmt.Sprintf("last_error = $%d", len(args)))
	case outcome.ClearLastError:
		sets = append(sets, "last_error = NULL")
	}

	if outcome.IncrementAttempts {
		sets = append(sets, "attempts = COALESCE(attempts, 0) + 1")
	}

	args = append(args, id)
	query := fmt.Sprintf(
		"UPDATE %s SET %s WHERE id = $%d AND status IS DISTINCT FROM 'sent';",
		Table, strings.Join(sets, ", "), len(args),
	)

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update reminder: %w", translate(err))
	}

	rows, _ := res.RowsAffected()
	if rows == 0 {
		return ErrReminderNotFound
	}

	return nil
}

// ProbeColumn checks that column exists with a bounded read.
func (r *Repository) ProbeColumn(ctx context.Context, column string) error {
	if !ValidColumn(column) {
		return fmt.Errorf("%w: %q", ErrInvalidColumn, column)
	}

	query := fmt.Sprintf("SELECT %s FROM %s LIMIT 1;", pq.QuoteIdentifier(column), Table)

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to probe column %s: %w", column, translate(err))
	}

	return rows.Close()
}
