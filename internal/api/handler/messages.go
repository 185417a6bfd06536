package handler

import (
	"errors"
	"net/http"

	"pinchat/backend/internal/config"
	"pinchat/backend/internal/models"
	"pinchat/backend/internal/protocol"
	"pinchat/backend/internal/storage"

	"github.com/gin-gonic/gin"
)

type sendMessageRequest struct {
	ReceiverID string `json:"receiverId" binding:"required"`
	Content    string `json:"content" binding:"required"`
}

// ListMessages returns the caller's conversation with :peerId, oldest first.
func (h *Handler) ListMessages(c *gin.Context) {
	me := CurrentUserID(c)
	peerID := c.Param("peerId")

	history, err := h.Storage.ListMessagesBetween(c.Request.Context(), me, peerID)
	if err != nil {
		h.fail(c, http.StatusInternalServerError, "Failed to load messages", err)
		return
	}
	if history == nil {
		history = []models.Message{}
	}
	c.JSON(http.StatusOK, history)
}

// SendMessage persists an encoded message and echoes it live to both
// participants. The live echo is best effort.
func (h *Handler) SendMessage(c *gin.Context) {
	me := CurrentUserID(c)

	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, http.StatusBadRequest, "receiverId and content are required", err)
		return
	}
	if req.ReceiverID == me {
		h.fail(c, http.StatusBadRequest, "Cannot message yourself", nil)
		return
	}
	if len(req.Content) > config.MaxMessageCiphertext {
		h.fail(c, http.StatusRequestEntityTooLarge, "Message too large", nil)
		return
	}
	// Plaintext must never reach the store.
	if !h.Codec.Valid(req.Content) {
		h.fail(c, http.StatusBadRequest, "content is not a valid encoded message", nil)
		return
	}

	msg, err := h.Storage.AppendMessage(c.Request.Context(), me, req.ReceiverID, req.Content)
	if err != nil {
		h.fail(c, http.StatusInternalServerError, "Failed to save message", err)
		return
	}

	arrived := protocol.MessageArrived{Message: *msg}
	h.Hub.NotifyUser(req.ReceiverID, arrived)
	h.Hub.NotifyUser(me, arrived)

	c.JSON(http.StatusCreated, msg)
}

// DeleteMessage removes one of the caller's own messages.
func (h *Handler) DeleteMessage(c *gin.Context) {
	me := CurrentUserID(c)

	msg, err := h.Storage.DeleteMessage(c.Request.Context(), c.Param("id"), me)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		h.fail(c, http.StatusNotFound, "Message not found", nil)
		return
	case errors.Is(err, storage.ErrForbidden):
		h.fail(c, http.StatusForbidden, "Only the sender can delete a message", nil)
		return
	case err != nil:
		h.fail(c, http.StatusInternalServerError, "Failed to delete message", err)
		return
	}

	deleted := protocol.MessageDeleted{MessageID: msg.ID}
	h.Hub.NotifyUser(msg.ReceiverID, deleted)
	h.Hub.NotifyUser(msg.SenderID, deleted)

	c.Status(http.StatusNoContent)
}
