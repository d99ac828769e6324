package campaign

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/wb-go/wbf/ginext"
	"github.com/wb-go/wbf/zlog"

	"github.com/aliskhannn/notify-engine/internal/api/dto"
	"github.com/aliskhannn/notify-engine/internal/api/respond"
	"github.com/aliskhannn/notify-engine/internal/model"
	"github.com/aliskhannn/notify-engine/internal/render"
)

//go:generate mockgen -source=handler.go -destination=../../../mocks/api/handlers/campaign/mock.go -package=mocks
type campaignService interface {
	EnqueueCampaign(ctx context.Context, templateID string, recipients []model.Recipient, priority int) (uuid.UUID, error)
	GetCampaign(ctx context.Context, id uuid.UUID) (model.Campaign, error)
}

// Handler serves the /api/campaigns endpoints.
type Handler struct {
	service   campaignService
	validator *validator.Validate
}

// NewHandler creates a Handler that validates request bodies with v.
func NewHandler(s campaignService, v *validator.Validate) *Handler {
	return &Handler{service: s, validator: v}
}

// Create handles POST /api/campaigns.
func (h *Handler) Create(c *ginext.Context) {
	var req dto.CampaignRequest

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

	id, err := h.service.EnqueueCampaign(c.Request.Context(), req.TemplateID, req.Recipients, req.Priority)
	if err != nil {
		switch {
		case errors.Is(err, model.ErrValidation), errors.Is(err, render.ErrMissingVariable):
			zlog.Logger.Warn().Err(err).Str("template_id", req.TemplateID).Msg("campaign rejected")
			respond.Fail(c.Writer, http.StatusBadRequest, err)
		case errors.Is(err, model.ErrTemplateNotFound):
			zlog.Logger.Warn().Err(err).Str("template_id", req.TemplateID).Msg("template not found")
			respond.Fail(c.Writer, http.StatusUnprocessableEntity, err)
		default:
			zlog.Logger.Error().Err(err).Str("template_id", req.TemplateID).Msg("failed to create campaign")
			respond.Fail(c.Writer, http.StatusInternalServerError, fmt.Errorf("internal server error"))
		}
		return
	}

	respond.Created(c.Writer, dto.IDResponse{ID: id.String()})
}

// Get handles GET /api/campaigns/:id and reports fresh stats.
func (h *Handler) Get(c *ginext.Context) {
	idStr := c.Param("id")
	id, err := uuid.Parse(idStr)
	if err != nil || id == uuid.Nil {
		zlog.Logger.Warn().Interface("idStr", idStr).Msg("invalid campaign id")
		respond.Fail(c.Writer, http.StatusBadRequest, fmt.Errorf("invalid id"))
		return
	}

	campaign, err := h.service.GetCampaign(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, model.ErrCampaignNotFound) {
			respond.Fail(c.Writer, http.StatusNotFound, fmt.Errorf("campaign not found"))
			return
		}

		zlog.Logger.Error().Err(err).Interface("id", id).Msg("failed to get campaign")
		respond.Fail(c.Writer, http.StatusInternalServerError, fmt.Errorf("internal server error"))
		return
	}

	respond.OK(c.Writer, campaign)
}
