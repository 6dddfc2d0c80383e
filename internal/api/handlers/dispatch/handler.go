package dispatch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/wb-go/wbf/ginext"
	"github.com/wb-go/wbf/zlog"

	"github.com/aliskhannn/reminder-dispatcher/internal/api/respond"
	"github.com/aliskhannn/reminder-dispatcher/internal/errs"
	"github.com/aliskhannn/reminder-dispatcher/internal/service/reminder"
)

//go:generate mockgen -source=handler.go -destination=../../../mocks/api/handlers/dispatch/mock.go -package=mocks

type dispatcher interface {
	Run(ctx context.Context, now time.Time) (reminder.Result, error)
}

type Handler struct {
	dispatcher dispatcher
	now        func() time.Time
}

func NewHandler(d dispatcher) *Handler {
	return &Handler{dispatcher: d, now: time.Now}
}

// Dispatch runs the dispatcher once and reports what it did.
//
// The run is detached from the request context so a caller that hangs up
// does not abort deliveries already in flight.
func (h *Handler) Dispatch(c *ginext.Context) {
	defer func() {
		if r := recover(); r != nil {
			zlog.Logger.Error().Interface("panic", r).Msg("dispatch run panicked")
			respond.FailDetail(c.Writer, http.StatusInternalServerError, errors.New("internal error"), fmt.Sprint(r))
		}
	}()

	res, err := h.dispatcher.Run(context.WithoutCancel(c.Request.Context()), h.now())
	if err != nil {
		if errors.Is(err, errs.ErrRunInProgress) {
			zlog.Logger.Warn().Msg("dispatch run already in progress")
			respond.Fail(c.Writer, http.StatusConflict, err)
			return
		}

		zlog.Logger.Error().Err(err).Msg("dispatch run failed")
		respond.FailDetail(c.Writer, http.StatusInternalServerError, errors.New("dispatch failed"), err.Error())
		return
	}

	respond.OK(c.Writer, res)
}
