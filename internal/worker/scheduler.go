package worker

import (
	"context"
	"errors"
	"time"

	"github.com/wb-go/wbf/zlog"

	"github.com/aliskhannn/reminder-dispatcher/internal/errs"
	"github.com/aliskhannn/reminder-dispatcher/internal/service/reminder"
)

//go:generate mockgen -source=scheduler.go -destination=../mocks/worker/mock.go -package=mocks

type dispatcher interface {
	Run(ctx context.Context, now time.Time) (reminder.Result, error)
}

// Scheduler triggers the dispatcher on a fixed interval, as an in-process
// alternative to the external periodic caller.
type Scheduler struct {
	dispatcher dispatcher
	interval   time.Duration
	now        func() time.Time
}

func NewScheduler(d dispatcher, interval time.Duration) *Scheduler {
	return &Scheduler{dispatcher: d, interval: interval, now: time.Now}
}

// Run ticks until ctx is done. Runs never overlap within one process.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	zlog.Logger.Info().Dur("interval", s.interval).Msg("scheduler started")

	for {
		select {
		case <-ctx.Done():
			zlog.Logger.Info().Msg("scheduler stopped")
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	res, err := s.dispatcher.Run(ctx, s.now())
	switch {
	case errors.Is(err, errs.ErrRunInProgress):
		zlog.Logger.Debug().Msg("skipping tick, dispatch run in progress elsewhere")
	case err != nil:
		zlog.Logger.Error().Err(err).Msg("scheduled dispatch run failed")
	case res.Checked > 0:
		zlog.Logger.Info().Int("checked", res.Checked).Int("sent", res.Sent).Msg("scheduled dispatch run")
	}
}
