package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/prepquest/prepquest/internal/api/middleware"
	"github.com/prepquest/prepquest/internal/api/response"
	"github.com/prepquest/prepquest/internal/device"
	"github.com/prepquest/prepquest/internal/notification"
	"github.com/prepquest/prepquest/internal/quest"
	"github.com/prepquest/prepquest/internal/user"
)

// AccountHandler handles account lifecycle endpoints.
type AccountHandler struct {
	users         *user.Service
	devices       *device.Registry
	quests        *quest.Service
	notifications *notification.Service
	logger        zerolog.Logger
}

// NewAccountHandler creates a new AccountHandler.
func NewAccountHandler(users *user.Service, devices *device.Registry, quests *quest.Service, notifications *notification.Service, logger zerolog.Logger) *AccountHandler {
	return &AccountHandler{
		users:         users,
		devices:       devices,
		quests:        quests,
		notifications: notifications,
		logger:        logger,
	}
}

// deleteStep is one unit of the account purge worklist. Every step is
// idempotent, so a failed purge can be retried from the top.
type deleteStep struct {
	name string
	run  func(ctx context.Context, userID string) error
}

// DeleteAccount handles DELETE /v1/me. The owned subtree is walked
// child-first; the profile row goes last so a partial purge leaves the
// account visible and the client can retry.
func (h *AccountHandler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	steps := []deleteStep{
		{name: "notifications", run: h.notifications.DeleteByUser},
		{name: "quests", run: h.quests.DeleteByUser},
		{name: "devices", run: h.devices.DeleteByUser},
		{name: "profile", run: h.users.Delete},
	}

	for _, step := range steps {
		if err := step.run(r.Context(), userID); err != nil {
			if errors.Is(err, user.ErrUserNotFound) {
				// Already gone; the purge goal state holds.
				continue
			}
			h.logger.Error().Err(err).
				Str("user_id", userID).
				Str("step", step.name).
				Msg("Account deletion step failed")
			response.InternalError(w, r, "Failed to delete account")
			return
		}
	}

	h.logger.Info().Str("user_id", userID).Msg("Account deleted")
	response.NoContent(w, r)
}
