package reminder

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wb-go/wbf/retry"

	"github.com/aliskhannn/reminder-dispatcher/internal/channel"
	"github.com/aliskhannn/reminder-dispatcher/internal/errs"
	chmocks "github.com/aliskhannn/reminder-dispatcher/internal/mocks/channel"
	mocks "github.com/aliskhannn/reminder-dispatcher/internal/mocks/service/reminder"
	"github.com/aliskhannn/reminder-dispatcher/internal/model"
	reminderrepo "github.com/aliskhannn/reminder-dispatcher/internal/repository/reminder"
)

var now = time.Date(2025, 9, 15, 12, 0, 0, 0, time.UTC)

func defaultOptions() Options {
	return Options{
		DeliveryTimeout: time.Second,
		ErrorPreview:    3,
		RetryFailed:     true,
		Retry:           retry.Strategy{Attempts: 1},
	}
}

func setupDispatcher(t *testing.T, store *reminderrepo.MemoryStore, opts Options, options ...Option) (*Dispatcher, *chmocks.MockChannel) {
	ctrl := gomock.NewController(t)
	email := chmocks.NewMockChannel(ctrl)

	registry := channel.NewRegistry(map[model.Channel]channel.Channel{model.ChannelEmail: email}, model.ChannelEmail)
	columns := NewColumnResolver(store, "", false, nil, nil)

	return NewDispatcher(store, registry, columns, opts, options...), email
}

func addDue(store *reminderrepo.MemoryStore, id string, status model.Status) {
	store.Add(model.Reminder{
		ID:     id,
		Title:  "reminder " + id,
		Target: id + "@example.com",
		DueAt:  now.Add(-time.Minute),
		Status: status,
	})
}

func TestDispatcher_Run_MixedOutcomes(t *testing.T) {
	store := reminderrepo.NewMemoryStore()
	addDue(store, "r1", model.StatusPending)
	addDue(store, "r2", model.StatusPending)
	addDue(store, "r3", model.StatusPending)

	d, email := setupDispatcher(t, store, defaultOptions())

	email.EXPECT().
		Deliver(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, rem model.Reminder) error {
			if rem.ID == "r2" {
				return errors.New("mailbox full")
			}
			return nil
		}).Times(3)

	res, err := d.Run(context.Background(), now)
	require.NoError(t, err)

	assert.Equal(t, 3, res.Checked)
	assert.Equal(t, 2, res.Sent)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "r2")
	assert.Contains(t, res.Errors[0], "mailbox full")
	assert.Len(t, res.Details, 3)

	for _, id := range []string{"r1", "r3"} {
		rem, _ := store.Get(id)
		assert.Equal(t, model.StatusSent, rem.Status)
		require.NotNil(t, rem.SentAt)
		assert.True(t, rem.SentAt.Equal(now))
		assert.Nil(t, rem.LastError)
	}

	failed, _ := store.Get("r2")
	assert.Equal(t, model.StatusFailed, failed.Status)
	assert.Equal(t, 1, failed.Attempts)
	require.NotNil(t, failed.LastError)
	assert.Contains(t, *failed.LastError, "mailbox full")
}

func TestDispatcher_Run_NothingDue(t *testing.T) {
	store := reminderrepo.NewMemoryStore()
	store.Add(model.Reminder{ID: "later", DueAt: now.Add(time.Hour), Status: model.StatusPending})

	d, _ := setupDispatcher(t, store, defaultOptions())

	res, err := d.Run(context.Background(), now)
	require.NoError(t, err)

	assert.Equal(t, 0, res.Checked)
	assert.Equal(t, 0, res.Sent)
	assert.NotNil(t, res.Errors)
	assert.Empty(t, res.Errors)
	assert.Equal(t, 0, store.Updates())
}

func TestDispatcher_Run_SelectsEachDueRecordOnce(t *testing.T) {
	store := reminderrepo.NewMemoryStore()
	addDue(store, "unset", model.StatusUnset)
	addDue(store, "pending", model.StatusPending)
	addDue(store, "failed", model.StatusFailed)
	addDue(store, "sent", model.StatusSent)
	store.Add(model.Reminder{ID: "future", DueAt: now.Add(time.Second), Status: model.StatusPending})

	d, email := setupDispatcher(t, store, defaultOptions())

	delivered := make(chan string, 5)
	email.EXPECT().
		Deliver(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, rem model.Reminder) error {
			delivered <- rem.ID
			return nil
		}).Times(3)

	res, err := d.Run(context.Background(), now)
	require.NoError(t, err)
	close(delivered)

	var ids []string
	for id := range delivered {
		ids = append(ids, id)
	}
	assert.ElementsMatch(t, []string{"unset", "pending", "failed"}, ids)
	assert.Equal(t, 3, res.Sent)

	sent, _ := store.Get("sent")
	assert.Nil(t, sent.SentAt)
	future, _ := store.Get("future")
	assert.Equal(t, model.StatusPending, future.Status)
}

func TestDispatcher_Run_SkipsFailedWhenRetryDisabled(t *testing.T) {
	store := reminderrepo.NewMemoryStore()
	addDue(store, "failed", model.StatusFailed)

	opts := defaultOptions()
	opts.RetryFailed = false
	d, _ := setupDispatcher(t, store, opts)

	res, err := d.Run(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Checked)
}

func TestDispatcher_Run_MaxAttempts(t *testing.T) {
	store := reminderrepo.NewMemoryStore()
	store.Add(model.Reminder{ID: "tired", DueAt: now.Add(-time.Hour), Status: model.StatusFailed, Attempts: 3})
	store.Add(model.Reminder{ID: "fresh", DueAt: now.Add(-time.Hour), Status: model.StatusFailed, Attempts: 1})

	opts := defaultOptions()
	opts.MaxAttempts = 3
	d, email := setupDispatcher(t, store, opts)

	email.EXPECT().
		Deliver(gomock.Any(), gomock.AssignableToTypeOf(model.Reminder{})).
		DoAndReturn(func(_ context.Context, rem model.Reminder) error {
			assert.Equal(t, "fresh", rem.ID)
			return errors.New("still down")
		})

	res, err := d.Run(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Checked)

	fresh, _ := store.Get("fresh")
	assert.Equal(t, 2, fresh.Attempts)
}

func TestDispatcher_Run_ErrorPreviewIsBounded(t *testing.T) {
	store := reminderrepo.NewMemoryStore()
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		addDue(store, id, model.StatusPending)
	}

	opts := defaultOptions()
	opts.Concurrency = 2
	d, email := setupDispatcher(t, store, opts)

	email.EXPECT().Deliver(gomock.Any(), gomock.Any()).Return(errors.New("boom")).Times(5)

	res, err := d.Run(context.Background(), now)
	require.NoError(t, err)

	assert.Equal(t, 5, res.Checked)
	assert.Equal(t, 0, res.Sent)
	assert.Len(t, res.Errors, 3)
	assert.Len(t, res.Details, 5)
	for _, det := range res.Details {
		assert.Equal(t, model.StatusFailed, det.Status)
		assert.NotEmpty(t, det.Error)
	}
}

func TestDispatcher_Run_DeliveryTimeout(t *testing.T) {
	store := reminderrepo.NewMemoryStore()
	addDue(store, "slow", model.StatusPending)
	addDue(store, "quick", model.StatusPending)

	opts := defaultOptions()
	opts.DeliveryTimeout = 20 * time.Millisecond
	d, email := setupDispatcher(t, store, opts)

	email.EXPECT().
		Deliver(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, rem model.Reminder) error {
			if rem.ID == "slow" {
				<-ctx.Done()
				return ctx.Err()
			}
			return nil
		}).Times(2)

	res, err := d.Run(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Sent)

	slow, _ := store.Get("slow")
	assert.Equal(t, model.StatusFailed, slow.Status)
	require.NotNil(t, slow.LastError)
	assert.Contains(t, *slow.LastError, context.DeadlineExceeded.Error())
}

func TestDispatcher_Run_UnknownChannelFailsRecord(t *testing.T) {
	store := reminderrepo.NewMemoryStore()
	store.Add(model.Reminder{ID: "pager", Channel: "pager", DueAt: now.Add(-time.Minute)})

	d, _ := setupDispatcher(t, store, defaultOptions())

	res, err := d.Run(context.Background(), now)
	require.NoError(t, err)
	require.Len(t, res.Details, 1)
	assert.Equal(t, model.Channel("pager"), res.Details[0].Channel)
	assert.Contains(t, res.Details[0].Error, errs.ErrUnknownChannel.Error())
}

func TestDispatcher_Run_MissingOptionalColumns(t *testing.T) {
	store := reminderrepo.NewMemoryStore("id", "title", "target", "channel", "due_at", "status", "attempts")
	addDue(store, "ok", model.StatusPending)
	addDue(store, "bad", model.StatusPending)

	d, email := setupDispatcher(t, store, defaultOptions())

	email.EXPECT().
		Deliver(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, rem model.Reminder) error {
			if rem.ID == "bad" {
				return errors.New("rejected")
			}
			return nil
		}).Times(2)

	res, err := d.Run(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Sent)
	assert.Len(t, res.Errors, 1)

	ok, _ := store.Get("ok")
	assert.Equal(t, model.StatusSent, ok.Status)
	assert.Nil(t, ok.SentAt)

	bad, _ := store.Get("bad")
	assert.Equal(t, model.StatusFailed, bad.Status)
	assert.Equal(t, 1, bad.Attempts)
	assert.Nil(t, bad.LastError)
}

func TestDispatcher_Run_RefreshesCachedStatus(t *testing.T) {
	store := reminderrepo.NewMemoryStore()
	addDue(store, "r1", model.StatusPending)

	ctrl := gomock.NewController(t)
	c := mocks.NewMockcache(ctrl)
	opts := defaultOptions()

	d, email := setupDispatcher(t, store, opts, WithCache(c))

	email.EXPECT().Deliver(gomock.Any(), gomock.Any()).Return(nil)
	c.EXPECT().SetWithRetry(gomock.Any(), opts.Retry, "reminder:status:r1", "sent").Return(nil)

	_, err := d.Run(context.Background(), now)
	require.NoError(t, err)
}

func TestDispatcher_Run_LockHeld(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockreminderStore(ctrl)
	lock := mocks.NewMockrunLocker(ctrl)
	deliverer := mocks.NewMockdeliverer(ctrl)

	lock.EXPECT().Acquire(gomock.Any()).Return("", false, nil)

	d := NewDispatcher(store, deliverer, NewColumnResolver(store, "", false, nil, nil), defaultOptions(), WithRunLock(lock))

	_, err := d.Run(context.Background(), now)
	assert.ErrorIs(t, err, errs.ErrRunInProgress)
}

func TestDispatcher_Run_LockReleased(t *testing.T) {
	ctrl := gomock.NewController(t)
	lock := mocks.NewMockrunLocker(ctrl)

	gomock.InOrder(
		lock.EXPECT().Acquire(gomock.Any()).Return("token", true, nil),
		lock.EXPECT().Release(gomock.Any(), "token").Return(nil),
	)

	d, _ := setupDispatcher(t, reminderrepo.NewMemoryStore(), defaultOptions(), WithRunLock(lock))

	_, err := d.Run(context.Background(), now)
	require.NoError(t, err)
}

func TestDispatcher_Run_StoreFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockreminderStore(ctrl)
	deliverer := mocks.NewMockdeliverer(ctrl)

	store.EXPECT().
		FindDue(gomock.Any(), "due_at", model.StatusUnset, now).
		Return(nil, errors.New("connection refused")).
		MinTimes(1)

	opts := defaultOptions()
	opts.Retry = retry.Strategy{Attempts: 2}
	d := NewDispatcher(store, deliverer, NewColumnResolver(store, "", false, nil, nil), opts)

	_, err := d.Run(context.Background(), now)
	assert.ErrorIs(t, err, errs.ErrStore)
	assert.ErrorContains(t, err, "connection refused")
}

func TestDispatcher_Run_ReprobesDueColumn(t *testing.T) {
	store := reminderrepo.NewMemoryStore()
	addDue(store, "r1", model.StatusPending)

	ctrl := gomock.NewController(t)
	email := chmocks.NewMockChannel(ctrl)
	registry := channel.NewRegistry(map[model.Channel]channel.Channel{model.ChannelEmail: email}, model.ChannelEmail)
	columns := NewColumnResolver(store, "", true, []string{"due_at", "remind_at"}, nil)
	d := NewDispatcher(store, registry, columns, defaultOptions())

	email.EXPECT().Deliver(gomock.Any(), gomock.Any()).Return(nil).Times(2)

	res, err := d.Run(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Sent)

	store.WithDueColumn("remind_at")
	addDue(store, "r2", model.StatusPending)

	res, err = d.Run(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Sent)

	column, err := columns.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "remind_at", column)
}

func TestDispatcher_Run_DedupsAcrossStatusQueries(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockreminderStore(ctrl)
	deliverer := mocks.NewMockdeliverer(ctrl)

	rem := model.Reminder{ID: "x", Title: "water plants", Target: "a@example.com", DueAt: now.Add(-time.Minute)}

	for _, status := range []model.Status{model.StatusUnset, model.StatusPending, model.StatusFailed} {
		store.EXPECT().
			FindDue(gomock.Any(), "due_at", status, now).
			Return([]model.Reminder{rem}, nil)
	}

	deliverer.EXPECT().Resolve(rem).Return(model.ChannelEmail).Times(1)
	deliverer.EXPECT().Deliver(gomock.Any(), rem).Return(nil).Times(1)
	store.EXPECT().
		ApplyOutcome(gomock.Any(), "x", gomock.AssignableToTypeOf(model.Outcome{})).
		Return(nil).
		Times(1)

	d := NewDispatcher(store, deliverer, NewColumnResolver(store, "", false, nil, nil), defaultOptions())

	res, err := d.Run(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Checked)
	assert.Equal(t, 1, res.Sent)
	require.Len(t, res.Details, 1)
	assert.Equal(t, "x", res.Details[0].ID)
}
