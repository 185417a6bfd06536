package handler

import (
	"errors"
	"net/http"
	"time"

	"pinchat/backend/internal/models"
	"pinchat/backend/internal/storage"

	"github.com/gin-gonic/gin"
)

const maxBatchStatus = 200

type batchStatusRequest struct {
	UserIDs []string `json:"userIds" binding:"required"`
}

// GetPresence returns the public profile of :userId with its presence.
func (h *Handler) GetPresence(c *gin.Context) {
	userID := c.Param("userId")

	user, err := h.Storage.GetUser(c.Request.Context(), userID)
	if errors.Is(err, storage.ErrNotFound) {
		h.fail(c, http.StatusNotFound, "User not found", nil)
		return
	}
	if err != nil {
		h.fail(c, http.StatusInternalServerError, "Failed to load user", err)
		return
	}

	status := h.statusOf(userID, user.LastSeen)
	c.JSON(http.StatusOK, models.UserProfile{
		Name:     user.Name,
		Email:    user.Email,
		LastSeen: status.LastSeen,
		IsOnline: status.IsOnline,
	})
}

// BatchStatus returns a userId -> status map. Unknown users are reported
// offline with no lastSeen.
func (h *Handler) BatchStatus(c *gin.Context) {
	var req batchStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, http.StatusBadRequest, "userIds is required", err)
		return
	}
	if len(req.UserIDs) > maxBatchStatus {
		h.fail(c, http.StatusBadRequest, "Too many userIds", nil)
		return
	}

	users, err := h.Storage.GetUsers(c.Request.Context(), req.UserIDs)
	if err != nil {
		h.fail(c, http.StatusInternalServerError, "Failed to load users", err)
		return
	}
	stored := make(map[string]*time.Time, len(users))
	for _, u := range users {
		stored[u.ID] = u.LastSeen
	}

	out := make(map[string]models.UserStatus, len(req.UserIDs))
	for _, id := range req.UserIDs {
		out[id] = h.statusOf(id, stored[id])
	}
	c.JSON(http.StatusOK, out)
}

// Heartbeat stamps the caller's lastSeen to now. Clients call it when the
// live channel is unavailable, e.g. on tab hide or unload.
func (h *Handler) Heartbeat(c *gin.Context) {
	me := CurrentUserID(c)
	now := time.Now().UTC()
	if err := h.Storage.SetLastSeen(c.Request.Context(), me, &now); err != nil {
		h.fail(c, http.StatusInternalServerError, "Failed to update presence", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// statusOf merges the live registry with the persisted lastSeen. The
// in-memory stamp wins because the stored one is written in the background.
func (h *Handler) statusOf(userID string, stored *time.Time) models.UserStatus {
	if h.Hub.IsOnline(userID) {
		return models.UserStatus{IsOnline: true}
	}
	if ts, ok := h.Hub.Presence.LastSeen(userID); ok {
		return models.UserStatus{LastSeen: &ts}
	}
	return models.UserStatus{LastSeen: stored}
}
