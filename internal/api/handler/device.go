package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/prepquest/prepquest/internal/api/middleware"
	"github.com/prepquest/prepquest/internal/api/models"
	"github.com/prepquest/prepquest/internal/api/response"
	"github.com/prepquest/prepquest/internal/device"
	"github.com/prepquest/prepquest/internal/rateguard"
)

// Per-user mutation budget; the edge limiter handles per-IP abuse.
const (
	deviceMutationWindow = time.Minute
	deviceMutationLimit  = 10
)

// DeviceHandler handles device registration endpoints.
type DeviceHandler struct {
	registry *device.Registry
	guard    *rateguard.Guard
}

// NewDeviceHandler creates a new DeviceHandler.
func NewDeviceHandler(registry *device.Registry, guard *rateguard.Guard) *DeviceHandler {
	return &DeviceHandler{
		registry: registry,
		guard:    guard,
	}
}

// RegisterDevice handles POST /v1/me/devices.
func (h *DeviceHandler) RegisterDevice(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req models.RegisterDeviceRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	var fieldErrors []models.FieldError
	if req.Token == "" {
		fieldErrors = append(fieldErrors, models.FieldError{Field: "token", Message: "token is required"})
	}
	platform := device.Platform(req.Platform)
	if platform != device.PlatformIOS && platform != device.PlatformAndroid {
		fieldErrors = append(fieldErrors, models.FieldError{Field: "platform", Message: "platform must be ios or android"})
	}
	if len(fieldErrors) > 0 {
		response.BadRequest(w, r, "Invalid device registration", fieldErrors)
		return
	}

	if err := h.guard.CheckAndConsume(r.Context(), "device_reg_"+userID, deviceMutationWindow, deviceMutationLimit); err != nil {
		if errors.Is(err, rateguard.ErrRateLimited) {
			response.TooManyRequests(w, r, "Too many device registrations. Please try again later.")
			return
		}
		response.InternalError(w, r, "Failed to register device")
		return
	}

	d, err := h.registry.Register(r.Context(), userID, req.Token, platform, req.AppBuild, req.Language)
	if err != nil {
		switch {
		case errors.Is(err, device.ErrInvalidToken):
			response.BadRequest(w, r, "Token must contain alphanumeric characters", nil)
		case errors.Is(err, device.ErrDeviceLimitReached):
			response.TooManyRequests(w, r, "Active device limit reached for this account")
		default:
			response.InternalError(w, r, "Failed to register device")
		}
		return
	}

	response.Created(w, r, "", toDeviceResponse(d))
}

// UnregisterDevice handles DELETE /v1/me/devices. Unregistering an unknown
// token succeeds; the client's goal state (token not active) already holds.
func (h *DeviceHandler) UnregisterDevice(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req models.UnregisterDeviceRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Token == "" {
		response.BadRequest(w, r, "Token is required", []models.FieldError{
			{Field: "token", Message: "token is required"},
		})
		return
	}

	if err := h.registry.Unregister(r.Context(), userID, req.Token); err != nil && !errors.Is(err, device.ErrDeviceNotFound) {
		response.InternalError(w, r, "Failed to unregister device")
		return
	}

	response.NoContent(w, r)
}

func toDeviceResponse(d *device.Device) models.DeviceResponse {
	return models.DeviceResponse{
		ID:        d.ID,
		Platform:  string(d.Platform),
		AppBuild:  d.AppBuild,
		Language:  d.Language,
		CreatedAt: models.Timestamp(d.CreatedAt),
		UpdatedAt: models.Timestamp(d.UpdatedAt),
	}
}
