package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/prepquest/prepquest/internal/api/middleware"
	"github.com/prepquest/prepquest/internal/api/models"
	"github.com/prepquest/prepquest/internal/api/response"
	"github.com/prepquest/prepquest/internal/quest"
	"github.com/prepquest/prepquest/internal/rateguard"
	"github.com/prepquest/prepquest/internal/user"
)

// Progress reports arrive once per answered question batch; the budget
// covers an unusually fast session with headroom.
const (
	progressWindow = time.Minute
	progressLimit  = 60
)

// QuestHandler handles daily quest endpoints.
type QuestHandler struct {
	quests *quest.Service
	guard  *rateguard.Guard
}

// NewQuestHandler creates a new QuestHandler.
func NewQuestHandler(quests *quest.Service, guard *rateguard.Guard) *QuestHandler {
	return &QuestHandler{
		quests: quests,
		guard:  guard,
	}
}

// ListQuests handles GET /v1/me/quests. Listing refreshes lazily: the
// first read of a new day assigns that day's set.
func (h *QuestHandler) ListQuests(w http.ResponseWriter, r *http.Request) {
	h.checkAndRefresh(w, r)
}

// RefreshQuests handles POST /v1/me/quests:refresh. Same check-and-refresh
// as listing; clients call it explicitly after midnight rollover.
func (h *QuestHandler) RefreshQuests(w http.ResponseWriter, r *http.Request) {
	h.checkAndRefresh(w, r)
}

func (h *QuestHandler) checkAndRefresh(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	instances, err := h.quests.CheckAndRefreshDaily(r.Context(), userID)
	if err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			response.NotFound(w, r, "No profile found for this account")
			return
		}
		response.InternalError(w, r, "Failed to load quests")
		return
	}

	response.JSON(w, r, http.StatusOK, toQuestListResponse(instances))
}

// ReportProgress handles POST /v1/me/progress.
func (h *QuestHandler) ReportProgress(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req models.ProgressRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Category == "" {
		response.BadRequest(w, r, "Category is required", []models.FieldError{
			{Field: "category", Message: "category is required"},
		})
		return
	}

	if err := h.guard.CheckAndConsume(r.Context(), "progress_"+userID, progressWindow, progressLimit); err != nil {
		if errors.Is(err, rateguard.ErrRateLimited) {
			response.TooManyRequests(w, r, "Too many progress reports. Please try again later.")
			return
		}
		response.InternalError(w, r, "Failed to record progress")
		return
	}

	updated, err := h.quests.ReportProgress(r.Context(), userID, req.Category, req.Amount)
	if err != nil {
		if errors.Is(err, quest.ErrInvalidAmount) {
			response.BadRequest(w, r, "Amount must be positive", []models.FieldError{
				{Field: "amount", Message: "amount must be positive"},
			})
			return
		}
		response.InternalError(w, r, "Failed to record progress")
		return
	}

	response.JSON(w, r, http.StatusOK, toQuestListResponse(updated))
}

// CompleteQuest handles POST /v1/me/quests/{questId}:complete.
func (h *QuestHandler) CompleteQuest(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	questID := chi.URLParam(r, "questId")

	inst, err := h.quests.Complete(r.Context(), userID, questID)
	if err != nil {
		h.writeQuestError(w, r, err)
		return
	}

	response.JSON(w, r, http.StatusOK, toQuestResponse(inst))
}

// ClaimReward handles POST /v1/me/quests/{questId}:claim.
func (h *QuestHandler) ClaimReward(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	questID := chi.URLParam(r, "questId")

	inst, err := h.quests.ClaimReward(r.Context(), userID, questID)
	if err != nil {
		h.writeQuestError(w, r, err)
		return
	}

	response.JSON(w, r, http.StatusOK, toQuestResponse(inst))
}

func (h *QuestHandler) writeQuestError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, quest.ErrQuestNotFound):
		response.NotFound(w, r, "Quest not found")
	case errors.Is(err, quest.ErrNotCompleted):
		response.Conflict(w, r, "Quest is not completed yet")
	case errors.Is(err, quest.ErrAlreadyClaimed):
		response.Conflict(w, r, "Quest reward was already claimed")
	default:
		response.InternalError(w, r, "Failed to update quest")
	}
}

func toQuestResponse(inst *quest.Instance) models.QuestResponse {
	return models.QuestResponse{
		ID:            inst.ID,
		Category:      inst.Category,
		Title:         inst.Title,
		Body:          inst.Body,
		Route:         inst.Route,
		Progress:      inst.Progress,
		Goal:          inst.Goal,
		Reward:        inst.Reward,
		Completed:     inst.Completed,
		RewardClaimed: inst.RewardClaimed,
		AssignedDay:   inst.AssignedDay.Format("2006-01-02"),
		UpdatedAt:     models.Timestamp(inst.UpdatedAt),
	}
}

func toQuestListResponse(instances []*quest.Instance) models.QuestListResponse {
	out := models.QuestListResponse{Quests: make([]models.QuestResponse, 0, len(instances))}
	for _, inst := range instances {
		out.Quests = append(out.Quests, toQuestResponse(inst))
	}
	return out
}
