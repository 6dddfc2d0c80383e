package reminder

import (
	"context"
	"errors"
	"testing"

	"github.com/go-redis/redis/v8"
	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wb-go/wbf/retry"

	mocks "github.com/aliskhannn/reminder-dispatcher/internal/mocks/service/reminder"
	"github.com/aliskhannn/reminder-dispatcher/internal/model"
	reminderrepo "github.com/aliskhannn/reminder-dispatcher/internal/repository/reminder"
)

func setupService(t *testing.T) (*Service, *reminderrepo.MemoryStore, *mocks.Mockcache, retry.Strategy) {
	ctrl := gomock.NewController(t)
	c := mocks.NewMockcache(ctrl)
	store := reminderrepo.NewMemoryStore()
	strategy := retry.Strategy{Attempts: 1}

	return NewService(store, NewColumnResolver(store, "", false, nil, nil), c, strategy), store, c, strategy
}

func TestService_GetStatus_CacheHit(t *testing.T) {
	s, _, c, strategy := setupService(t)

	c.EXPECT().GetWithRetry(gomock.Any(), strategy, "reminder:status:r1").Return("sent", nil)

	status, err := s.GetStatus(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusSent, status)
}

func TestService_GetStatus_CacheMiss(t *testing.T) {
	s, store, c, strategy := setupService(t)
	store.Add(model.Reminder{ID: "r1", Status: model.StatusFailed})

	gomock.InOrder(
		c.EXPECT().GetWithRetry(gomock.Any(), strategy, "reminder:status:r1").Return("", redis.Nil),
		c.EXPECT().SetWithRetry(gomock.Any(), strategy, "reminder:status:r1", "failed").Return(nil),
	)

	status, err := s.GetStatus(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, status)
}

func TestService_GetStatus_CacheDownFallsBackToStore(t *testing.T) {
	s, store, c, _ := setupService(t)
	store.Add(model.Reminder{ID: "r1", Status: model.StatusPending})

	c.EXPECT().GetWithRetry(gomock.Any(), gomock.Any(), gomock.Any()).Return("", errors.New("dial tcp: refused"))
	c.EXPECT().SetWithRetry(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(errors.New("dial tcp: refused"))

	status, err := s.GetStatus(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, status)
}

func TestService_GetReminder_NotFound(t *testing.T) {
	s, _, _, _ := setupService(t)

	_, err := s.GetReminder(context.Background(), "missing")
	assert.ErrorIs(t, err, reminderrepo.ErrReminderNotFound)
}

func TestService_WithoutCache(t *testing.T) {
	store := reminderrepo.NewMemoryStore()
	store.Add(model.Reminder{ID: "r1", Title: "call mom", Status: model.StatusSent})

	s := NewService(store, NewColumnResolver(store, "", false, nil, nil), nil, retry.Strategy{})

	rem, err := s.GetReminder(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, "call mom", rem.Title)

	status, err := s.GetStatus(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusSent, status)
}

func TestService_GetStatus_UnsetReadsAsPending(t *testing.T) {
	s, store, c, strategy := setupService(t)
	store.Add(model.Reminder{ID: "r1", Status: model.StatusUnset})

	gomock.InOrder(
		c.EXPECT().GetWithRetry(gomock.Any(), strategy, "reminder:status:r1").Return("", redis.Nil),
		c.EXPECT().SetWithRetry(gomock.Any(), strategy, "reminder:status:r1", "pending").Return(nil),
	)

	status, err := s.GetStatus(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, status)
}

func TestService_GetStatus_CachedEmptyReadsAsPending(t *testing.T) {
	s, _, c, strategy := setupService(t)

	c.EXPECT().GetWithRetry(gomock.Any(), strategy, "reminder:status:r2").Return("", nil)

	status, err := s.GetStatus(context.Background(), "r2")
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, status)
}
