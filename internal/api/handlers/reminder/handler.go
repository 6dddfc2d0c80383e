package reminder

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/wb-go/wbf/ginext"
	"github.com/wb-go/wbf/zlog"

	"github.com/aliskhannn/reminder-dispatcher/internal/api/respond"
	"github.com/aliskhannn/reminder-dispatcher/internal/model"
	reminderrepo "github.com/aliskhannn/reminder-dispatcher/internal/repository/reminder"
)

//go:generate mockgen -source=handler.go -destination=../../../mocks/api/handlers/reminder/mock.go -package=mocks

type reminderService interface {
	GetReminder(ctx context.Context, id string) (model.Reminder, error)
	GetStatus(ctx context.Context, id string) (model.Status, error)
}

type Handler struct {
	service reminderService
}

func NewHandler(s reminderService) *Handler {
	return &Handler{service: s}
}

type statusResponse struct {
	ID     string       `json:"id"`
	Status model.Status `json:"status"`
}

func (h *Handler) Get(c *ginext.Context) {
	id := c.Param("id")
	if id == "" {
		zlog.Logger.Warn().Msg("missing id")
		respond.Fail(c.Writer, http.StatusBadRequest, fmt.Errorf("missing id"))
		return
	}

	rem, err := h.service.GetReminder(c.Request.Context(), id)
	if err != nil {
		h.fail(c, id, err)
		return
	}

	respond.OK(c.Writer, rem)
}

func (h *Handler) GetStatus(c *ginext.Context) {
	id := c.Param("id")
	if id == "" {
		zlog.Logger.Warn().Msg("missing id")
		respond.Fail(c.Writer, http.StatusBadRequest, fmt.Errorf("missing id"))
		return
	}

	status, err := h.service.GetStatus(c.Request.Context(), id)
	if err != nil {
		h.fail(c, id, err)
		return
	}

	respond.OK(c.Writer, statusResponse{ID: id, Status: status})
}

func (h *Handler) fail(c *ginext.Context, id string, err error) {
	if errors.Is(err, reminderrepo.ErrReminderNotFound) {
		zlog.Logger.Warn().Str("id", id).Err(err).Msg("reminder not found")
		respond.Fail(c.Writer, http.StatusNotFound, fmt.Errorf("reminder not found"))
		return
	}

	zlog.Logger.Error().Err(err).Str("id", id).Msg("failed to get reminder")
	respond.Fail(c.Writer, http.StatusInternalServerError, fmt.Errorf("internal server error"))
}
