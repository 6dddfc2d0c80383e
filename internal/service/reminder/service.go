package reminder

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/wb-go/wbf/retry"
	"github.com/wb-go/wbf/zlog"

	"github.com/aliskhannn/reminder-dispatcher/internal/model"
)

// Service answers read queries about reminders.
type Service struct {
	store    reminderStore
	columns  *ColumnResolver
	cache    cache
	strategy retry.Strategy
}

// NewService creates a Service. cache may be nil.
func NewService(store reminderStore, columns *ColumnResolver, c cache, strategy retry.Strategy) *Service {
	return &Service{store: store, columns: columns, cache: c, strategy: strategy}
}

func (s *Service) GetReminder(ctx context.Context, id string) (model.Reminder, error) {
	column, err := s.columns.Resolve(ctx)
	if err != nil {
		return model.Reminder{}, err
	}

	rem, err := s.store.FindByID(ctx, column, id)
	if err != nil {
		return model.Reminder{}, fmt.Errorf("get reminder: %w", err)
	}

	rem.Status = rem.Status.Effective()
	s.cacheStatus(ctx, id, rem.Status)

	return rem, nil
}

// GetStatus returns the delivery status of a reminder, reading through the cache.
func (s *Service) GetStatus(ctx context.Context, id string) (model.Status, error) {
	if s.cache != nil {
		status, err := s.cache.GetWithRetry(ctx, s.strategy, statusKey(id))
		if err == nil {
			return model.Status(status).Effective(), nil
		}
		if !errors.Is(err, redis.Nil) {
			zlog.Logger.Error().Err(err).Str("id", id).Msg("failed to get reminder status from cache")
		}
	}

	rem, err := s.GetReminder(ctx, id)
	if err != nil {
		return "", err
	}

	return rem.Status, nil
}

func (s *Service) cacheStatus(ctx context.Context, id string, status model.Status) {
	if s.cache == nil {
		return
	}
	if err := s.cache.SetWithRetry(ctx, s.strategy, statusKey(id), string(status)); err != nil {
		zlog.Logger.Error().Err(err).Str("id", id).Msg("failed to cache reminder status")
	}
}
