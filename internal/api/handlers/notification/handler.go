package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/wb-go/wbf/ginext"
	"github.com/wb-go/wbf/zlog"

	"github.com/aliskhannn/notify-engine/internal/api/dto"
	"github.com/aliskhannn/notify-engine/internal/api/respond"
	"github.com/aliskhannn/notify-engine/internal/model"
	"github.com/aliskhannn/notify-engine/internal/render"
)

const (
	defaultLimit = 20
	maxLimit     = 100
)

//go:generate mockgen -source=handler.go -destination=../../../mocks/api/handlers/notification/mock.go -package=mocks
type notificationService interface {
	Enqueue(ctx context.Context, req model.SendRequest) (uuid.UUID, error)
	Cancel(ctx context.Context, id uuid.UUID) error
	GetStatus(ctx context.Context, id uuid.UUID) (model.Notification, error)
	List(ctx context.Context, limit, offset int) ([]model.Notification, error)
}

// Handler serves the /api/notify endpoints.
type Handler struct {
	service   notificationService
	validator *validator.Validate
}

// NewHandler creates a Handler that validates request bodies with v.
func NewHandler(s notificationService, v *validator.Validate) *Handler {
	return &Handler{service: s, validator: v}
}

// Create handles POST /api/notify and answers 201 with the new notification id.
func (h *Handler) Create(c *ginext.Context) {
	var req dto.CreateRequest

	if err := json.NewDecoder(c.Request.Body).Decode(&req); err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to decode request body")
		respond.Fail(c.Writer, http.StatusBadRequest, fmt.Errorf("invalid request body"))
		return
	}

	if err := h.validator.Struct(req); err != nil {
		zlog.Logger.Warn().Err(err).Msg("failed to validate request body")
		respond.Fail(c.Writer, http.StatusBadRequest, fmt.Errorf("validation error: %s", err.Error()))
		return
	}

	id, err := h.service.Enqueue(c.Request.Context(), req.ToModel())
	if err != nil {
		switch {
		case errors.Is(err, model.ErrValidation), errors.Is(err, render.ErrMissingVariable):
			zlog.Logger.Warn().Err(err).Msg("notification rejected")
			respond.Fail(c.Writer, http.StatusBadRequest, err)
		case errors.Is(err, model.ErrTemplateNotFound):
			zlog.Logger.Warn().Err(err).Str("template_id", req.TemplateID).Msg("template not found")
			respond.Fail(c.Writer, http.StatusUnprocessableEntity, err)
		default:
			zlog.Logger.Error().Err(err).Str("channel", req.Channel).Msg("failed to enqueue notification")
			respond.Fail(c.Writer, http.StatusInternalServerError, fmt.Errorf("internal server error"))
		}
		return
	}

	respond.Created(c.Writer, dto.IDResponse{ID: id.String()})
}

// GetStatus handles GET /api/notify/:id.
func (h *Handler) GetStatus(c *ginext.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	n, err := h.service.GetStatus(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, model.ErrNotificationNotFound) {
			zlog.Logger.Warn().Interface("id", id).Err(err).Msg("notification not found")
			respond.Fail(c.Writer, http.StatusNotFound, fmt.Errorf("notification not found"))
			return
		}

		zlog.Logger.Error().Err(err).Interface("id", id).Msg("failed to get notification status")
		respond.Fail(c.Writer, http.StatusInternalServerError, fmt.Errorf("internal server error"))
		return
	}

	respond.OK(c.Writer, n)
}

// List handles GET /api/notify with limit and offset query parameters.
func (h *Handler) List(c *ginext.Context) {
	limit, err := queryInt(c, "limit", defaultLimit)
	if err != nil || limit <= 0 || limit > maxLimit {
		respond.Fail(c.Writer, http.StatusBadRequest, fmt.Errorf("limit must be between 1 and %d", maxLimit))
		return
	}

	offset, err := queryInt(c, "offset", 0)
	if err != nil || offset < 0 {
		respond.Fail(c.Writer, http.StatusBadRequest, fmt.Errorf("offset must be a non-negative integer"))
		return
	}

	ns, err := h.service.List(c.Request.Context(), limit, offset)
	if err != nil {
		if errors.Is(err, model.ErrNoNotificationsFound) {
			respond.OK(c.Writer, []model.Notification{})
			return
		}

		zlog.Logger.Error().Err(err).Msg("failed to list notifications")
		respond.Fail(c.Writer, http.StatusInternalServerError, fmt.Errorf("internal server error"))
		return
	}

	respond.OK(c.Writer, ns)
}

// Cancel handles DELETE /api/notify/:id. Notifications past Queued answer 409.
func (h *Handler) Cancel(c *ginext.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	err := h.service.Cancel(c.Request.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, model.ErrNotificationNotFound):
			zlog.Logger.Warn().Interface("id", id).Err(err).Msg("notification not found")
			respond.Fail(c.Writer, http.StatusNotFound, fmt.Errorf("notification not found"))
		case errors.Is(err, model.ErrNotCancelable):
			zlog.Logger.Warn().Interface("id", id).Err(err).Msg("notification is past cancellation")
			respond.Fail(c.Writer, http.StatusConflict, model.ErrNotCancelable)
		default:
			zlog.Logger.Error().Err(err).Interface("id", id).Msg("failed to cancel notification")
			respond.Fail(c.Writer, http.StatusInternalServerError, fmt.Errorf("internal server error"))
		}
		return
	}

	respond.OK(c.Writer, "notification cancelled")
}

func parseID(c *ginext.Context) (uuid.UUID, bool) {
	idStr := c.Param("id")
	id, err := uuid.Parse(idStr)
	if err != nil {
		zlog.Logger.Error().Err(err).Interface("idStr", idStr).Msg("failed to parse id")
		respond.Fail(c.Writer, http.StatusBadRequest, fmt.Errorf("invalid id"))
		return uuid.Nil, false
	}

	if id == uuid.Nil {
		zlog.Logger.Warn().Msg("missing id")
		respond.Fail(c.Writer, http.StatusBadRequest, fmt.Errorf("missing id"))
		return uuid.Nil, false
	}

	return id, true
}

func queryInt(c *ginext.Context, key string, def int) (int, error) {
	v := c.Query(key)
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}
