package handler

import (
	"net/http"

	"pinchat/backend/internal/chathub"
	"pinchat/backend/internal/msgcrypto"
	"pinchat/backend/internal/storage"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Handler serves the REST surface and the live channel upgrade.
type Handler struct {
	Hub        *chathub.ManagerService
	Storage    storage.Storage
	Codec      *msgcrypto.Codec
	Auth       *Authenticator
	Log        *zap.Logger
	SendBuffer int
}

func NewHandler(hub *chathub.ManagerService, s storage.Storage, codec *msgcrypto.Codec, auth *Authenticator, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		Hub:     hub,
		Storage: s,
		Codec:   codec,
		Auth:    auth,
		Log:     log,
	}
}

// Routes mounts every endpoint on r.
func (h *Handler) Routes(r gin.IRouter) {
	r.GET("/healthz", h.Health)

	authed := r.Group("/", h.Auth.Middleware())
	authed.GET("/ws", h.ServeWebSocket)

	authed.GET("/messages/:peerId", h.ListMessages)
	authed.POST("/messages", h.SendMessage)
	authed.DELETE("/messages/:id", h.DeleteMessage)

	authed.GET("/presence/:userId", h.GetPresence)
	authed.POST("/presence/status/batch", h.BatchStatus)
	authed.PUT("/presence/heartbeat", h.Heartbeat)
}

// Health is a liveness probe.
func (h *Handler) Health(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

// fail records err for the request log and writes a JSON error body.
func (h *Handler) fail(c *gin.Context, status int, msg string, err error) {
	if err != nil {
		c.Error(err)
	}
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}
