package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/prepquest/prepquest/internal/api/middleware"
	"github.com/prepquest/prepquest/internal/api/models"
	"github.com/prepquest/prepquest/internal/api/response"
	"github.com/prepquest/prepquest/internal/audience"
	"github.com/prepquest/prepquest/internal/campaign"
	"github.com/prepquest/prepquest/internal/rateguard"
)

// Per-admin send budget; the route group's IP limiter covers the
// network-origin side.
const (
	pushSendWindow = time.Minute
	pushSendLimit  = 10
)

// AdminHandler handles campaign administration endpoints.
type AdminHandler struct {
	orchestrator *campaign.Orchestrator
	guard        *rateguard.Guard
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(orchestrator *campaign.Orchestrator, guard *rateguard.Guard) *AdminHandler {
	return &AdminHandler{orchestrator: orchestrator, guard: guard}
}

// EstimateAudience handles POST /v1/admin/audience:estimate.
func (h *AdminHandler) EstimateAudience(w http.ResponseWriter, r *http.Request) {
	var req models.EstimateAudienceRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := req.Audience.Validate(); err != nil {
		response.BadRequest(w, r, "Invalid audience: "+err.Error(), nil)
		return
	}

	matched, err := h.orchestrator.Estimate(r.Context(), &req.Audience)
	if err != nil {
		response.InternalError(w, r, "Failed to estimate audience")
		return
	}

	response.JSON(w, r, http.StatusOK, models.EstimateAudienceResponse{Matched: matched})
}

// SendPush handles POST /v1/admin/push. An immediate campaign is processed
// before the response is written, so the returned campaign already carries
// its delivery counters.
func (h *AdminHandler) SendPush(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req models.SendPushRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.guard.CheckAndConsume(r.Context(), "admin_push_"+userID, pushSendWindow, pushSendLimit); err != nil {
		if errors.Is(err, rateguard.ErrRateLimited) {
			response.TooManyRequests(w, r, "Too many campaign sends. Please try again later.")
			return
		}
		response.InternalError(w, r, "Failed to create campaign")
		return
	}

	in := &campaign.CreateInput{
		Title:     req.Title,
		Body:      req.Body,
		ImageURL:  req.ImageURL,
		Route:     req.Route,
		Audience:  req.Audience,
		SendType:  campaign.SendType(req.SendType),
		CreatedBy: userID,
	}
	if req.ScheduledAt != nil {
		t := req.ScheduledAt.Time()
		in.ScheduledAt = &t
	}

	c, err := h.orchestrator.Create(r.Context(), in)
	if err != nil {
		switch {
		case errors.Is(err, campaign.ErrInvalidCampaign):
			response.BadRequest(w, r, "Invalid campaign: "+err.Error(), nil)
		case errors.Is(err, audience.ErrInvalidSpec):
			response.BadRequest(w, r, "Invalid audience: "+err.Error(), nil)
		default:
			response.InternalError(w, r, "Failed to create campaign")
		}
		return
	}

	response.Created(w, r, "/v1/admin/campaigns/"+c.ID, toCampaignResponse(c))
}

// GetCampaign handles GET /v1/admin/campaigns/{id}.
func (h *AdminHandler) GetCampaign(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	c, err := h.orchestrator.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, campaign.ErrCampaignNotFound) {
			response.NotFound(w, r, "Campaign not found")
			return
		}
		response.InternalError(w, r, "Failed to load campaign")
		return
	}

	response.JSON(w, r, http.StatusOK, toCampaignResponse(c))
}

func toCampaignResponse(c *campaign.Campaign) models.CampaignResponse {
	out := models.CampaignResponse{
		ID:           c.ID,
		Title:        c.Title,
		Body:         c.Body,
		ImageURL:     c.ImageURL,
		Route:        c.Route,
		Audience:     c.Audience,
		SendType:     string(c.SendType),
		Status:       string(c.Status),
		TargetCount:  c.TargetCount,
		SuccessCount: c.SuccessCount,
		FailureCount: c.FailureCount,
		Error:        c.Error,
		CreatedBy:    c.CreatedBy,
		CreatedAt:    models.Timestamp(c.CreatedAt),
		UpdatedAt:    models.Timestamp(c.UpdatedAt),
	}
	if c.ScheduledAt != nil {
		ts := models.Timestamp(*c.ScheduledAt)
		out.ScheduledAt = &ts
	}
	if c.StartedAt != nil {
		ts := models.Timestamp(*c.StartedAt)
		out.StartedAt = &ts
	}
	if c.CompletedAt != nil {
		ts := models.Timestamp(*c.CompletedAt)
		out.CompletedAt = &ts
	}
	return out
}
