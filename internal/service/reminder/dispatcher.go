package reminder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wb-go/wbf/retry"
	"github.com/wb-go/wbf/zlog"
	"golang.org/x/sync/errgroup"

	"github.com/aliskhannn/reminder-dispatcher/internal/errs"
	"github.com/aliskhannn/reminder-dispatcher/internal/metrics"
	"github.com/aliskhannn/reminder-dispatcher/internal/model"
	reminderrepo "github.com/aliskhannn/reminder-dispatcher/internal/repository/reminder"
)

//go:generate mockgen -source=dispatcher.go -destination=../../mocks/service/reminder/mock.go -package=mocks

type reminderStore interface {
	FindDue(ctx context.Context, dueColumn string, status model.Status, now time.Time) ([]model.Reminder, error)
	FindByID(ctx context.Context, dueColumn, id string) (model.Reminder, error)
	ApplyOutcome(ctx context.Context, id string, outcome model.Outcome) error
	ProbeColumn(ctx context.Context, column string) error
}

type deliverer interface {
	Resolve(rem model.Reminder) model.Channel
	Deliver(ctx context.Context, rem model.Reminder) error
}

type cache interface {
	SetWithRetry(ctx context.Context, strategy retry.Strategy, key string, value interface{}) error
	GetWithRetry(ctx context.Context, strategy retry.Strategy, key string) (string, error)
}

type runLocker interface {
	Acquire(ctx context.Context) (string, bool, error)
	Release(ctx context.Context, token string) error
}

// Options tune a Dispatcher.
type Options struct {
	Concurrency     int           // parallel deliveries, 0 is unbounded
	DeliveryTimeout time.Duration // per-delivery deadline
	ErrorPreview    int           // error strings kept in Result.Errors
	RetryFailed     bool          // pick up failed reminders again
	MaxAttempts     int           // skip reminders with this many attempts, 0 is unlimited
	Retry           retry.Strategy
}

// Result summarises one dispatcher run.
type Result struct {
	Checked int      `json:"checked"`
	Sent    int      `json:"sent"`
	Errors  []string `json:"errors"`
	Details []Detail `json:"details"`
}

// Detail is the outcome of a single reminder.
type Detail struct {
	ID      string        `json:"id"`
	Channel model.Channel `json:"channel"`
	Status  model.Status  `json:"status"`
	Error   string        `json:"error,omitempty"`

	delivered bool
}

// Dispatcher finds due reminders, delivers them and records the outcome.
type Dispatcher struct {
	store    reminderStore
	channels deliverer
	columns  *ColumnResolver
	cache    cache
	lock     runLocker
	metrics  *metrics.Recorder
	opts     Options
}

// Option configures optional collaborators of a Dispatcher.
type Option func(*Dispatcher)

// WithCache refreshes the cached status of every reminder the dispatcher updates.
func WithCache(c cache) Option {
	return func(d *Dispatcher) { d.cache = c }
}

// WithRunLock makes Run fail with errs.ErrRunInProgress while another run holds l.
func WithRunLock(l runLocker) Option {
	return func(d *Dispatcher) { d.lock = l }
}

// WithMetrics records deliveries and runs on m.
func WithMetrics(m *metrics.Recorder) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

func NewDispatcher(store reminderStore, channels deliverer, columns *ColumnResolver, opts Options, options ...Option) *Dispatcher {
	if opts.DeliveryTimeout <= 0 {
		opts.DeliveryTimeout = 30 * time.Second
	}
	if opts.Retry.Attempts < 1 {
		opts.Retry.Attempts = 1
	}

	d := &Dispatcher{
		store:    store,
		channels: channels,
		columns:  columns,
		opts:     opts,
	}
	for _, o := range options {
		o(d)
	}

	return d
}

// Run dispatches every reminder due at now.
//
// Only failures to build the due set are returned. Delivery and persistence
// failures are reported per reminder in the Result.
func (d *Dispatcher) Run(ctx context.Context, now time.Time) (res Result, err error) {
	start := time.Now()
	defer func() {
		d.metrics.Run(res.Checked, time.Since(start), err)
	}()

	if d.lock != nil {
		token, ok, err := d.lock.Acquire(ctx)
		if err != nil {
			return Result{}, err
		}
		if !ok {
			return Result{}, errs.ErrRunInProgress
		}
		defer func() {
			if err := d.lock.Release(context.WithoutCancel(ctx), token); err != nil {
				zlog.Logger.Error().Err(err).Msg("failed to release run lock")
			}
		}()
	}

	due, err := d.dueSet(ctx, now)
	if err != nil {
		return Result{}, err
	}

	details := make([]Detail, len(due))

	var g errgroup.Group
	if d.opts.Concurrency > 0 {
		g.SetLimit(d.opts.Concurrency)
	}

	for i := range due {
		i := i
		g.Go(func() error {
			details[i] = d.process(ctx, due[i], now)
			return nil
		})
	}
	_ = g.Wait()

	res = Result{
		Checked: len(due),
		Errors:  []string{},
		Details: details,
	}

	for _, det := range details {
		if det.delivered {
			res.Sent++
		}
		if det.Error != "" && (d.opts.ErrorPreview <= 0 || len(res.Errors) < d.opts.ErrorPreview) {
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %s", det.ID, det.Error))
		}
	}

	zlog.Logger.Info().
		Int("checked", res.Checked).
		Int("sent", res.Sent).
		Dur("took", time.Since(start)).
		Msg("dispatch run finished")

	return res, nil
}

func (d *Dispatcher) dueSet(ctx context.Context, now time.Time) ([]model.Reminder, error) {
	column, err := d.columns.Resolve(ctx)
	if err != nil {
		return nil, err
	}

	statuses := []model.Status{model.StatusUnset, model.StatusPending}
	if d.opts.RetryFailed {
		statuses = append(statuses, model.StatusFailed)
	}

	var (
		due      []model.Reminder
		seen     = make(map[string]struct{})
		reprobed bool
	)

	for _, status := range statuses {
		rows, err := d.findDue(ctx, column, status, now)
		if uc, ok := reminderrepo.AsUnknownColumn(err); ok && !reprobed && d.columns.Probing() {
			zlog.Logger.Warn().Str("column", column).Str("reported", uc.Column).Msg("due column disappeared, probing again")
			reprobed = true
			d.columns.Invalidate()

			column, err = d.columns.Resolve(ctx)
			if err != nil {
				return nil, err
			}
			rows, err = d.findDue(ctx, column, status, now)
		}
		if err != nil {
			return nil, errs.Store(fmt.Sprintf("find due reminders (status %q)", status), err)
		}

		for _, rem := range rows {
			if _, ok := seen[rem.ID]; ok {
				continue
			}
			seen[rem.ID] = struct{}{}

			if d.opts.MaxAttempts > 0 && rem.Attempts >= d.opts.MaxAttempts {
				zlog.Logger.Debug().Str("id", rem.ID).Int("attempts", rem.Attempts).Msg("reminder exhausted its attempts")
				continue
			}

			due = append(due, rem)
		}
	}

	return due, nil
}

// findDue retries transient store failures. An unknown column is not transient.
func (d *Dispatcher) findDue(ctx context.Context, column string, status model.Status, now time.Time) ([]model.Reminder, error) {
	var (
		rows []model.Reminder
		qErr error
	)

	_ = retry.Do(func() error {
		rows, qErr = d.store.FindDue(ctx, column, status, now)
		if _, ok := reminderrepo.AsUnknownColumn(qErr); ok || errors.Is(qErr, reminderrepo.ErrInvalidColumn) || ctx.Err() != nil {
			return nil
		}
		return qErr
	}, d.opts.Retry)

	return rows, qErr
}

func (d *Dispatcher) process(ctx context.Context, rem model.Reminder, now time.Time) Detail {
	channel := d.channels.Resolve(rem)
	det := Detail{ID: rem.ID, Channel: channel}

	deliveryCtx, cancel := context.WithTimeout(ctx, d.opts.DeliveryTimeout)
	deliveryErr := d.channels.Deliver(deliveryCtx, rem)
	cancel()

	d.metrics.Delivery(string(channel), deliveryErr == nil)

	var outcome model.Outcome
	if deliveryErr == nil {
		det.delivered = true
		outcome = model.Delivered(now)
	} else {
		zlog.Logger.Warn().Err(deliveryErr).Str("id", rem.ID).Str("channel", string(channel)).Msg("failed to deliver reminder")
		det.Error = deliveryErr.Error()
		outcome = model.Failed(deliveryErr.Error())
	}

	if err := d.persist(ctx, rem.ID, outcome); err != nil {
		zlog.Logger.Error().Err(err).Str("id", rem.ID).Msg("failed to persist reminder status")
		det.Status = rem.Status
		if det.Error != "" {
			det.Error += "; "
		}
		det.Error += "persist status: " + err.Error()
		return det
	}

	det.Status = outcome.Status
	return det
}

// persist writes outcome, dropping optional columns the store does not have.
func (d *Dispatcher) persist(ctx context.Context, id string, outcome model.Outcome) error {
	for _, column := range reminderrepo.OptionalColumns {
		if d.isMissing(column) {
			outcome = outcome.Without(column)
		}
	}

	for {
		err := d.store.ApplyOutcome(ctx, id, outcome)
		if err == nil {
			break
		}

		uc, ok := reminderrepo.AsUnknownColumn(err)
		if !ok || !reminderrepo.IsOptional(uc.Column) || !outcome.Touches(uc.Column) {
			return err
		}

		zlog.Logger.Warn().Str("column", uc.Column).Msg("optional column missing, updating without it")
		d.markMissing(uc.Column)
		outcome = outcome.Without(uc.Column)
	}

	if d.cache != nil {
		if err := d.cache.SetWithRetry(ctx, d.opts.Retry, statusKey(id), string(outcome.Status)); err != nil {
			zlog.Logger.Error().Err(err).Str("id", id).Msg("failed to cache reminder status")
		}
	}

	return nil
}

func (d *Dispatcher) isMissing(column string) bool {
	_, ok := d.columns.cache.Get(missingKey(column))
	return ok
}

func (d *Dispatcher) markMissing(column string) {
	d.columns.cache.SetDefault(missingKey(column), true)
}

func missingKey(column string) string {
	return "missing_column:" + column
}

func statusKey(id string) string {
	return "reminder:status:" + id
}
