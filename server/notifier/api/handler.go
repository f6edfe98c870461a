package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	commonauth "reno_server/server/common/auth"
	commonlog "reno_server/server/common/log"
	"reno_server/server/common/middleware"
	"reno_server/server/common/transport/httpresp"
	"reno_server/server/notifier/service"
)

var wsUpgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

type Handler struct {
	notifications *service.NotificationService
	auth          *commonauth.Service
	hub           *service.Hub
}

func NewHandler(notifications *service.NotificationService, auth *commonauth.Service, hub *service.Hub) *Handler {
	return &Handler{notifications: notifications, auth: auth, hub: hub}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ws/notifications", h.handleWS)

	api := r.Group("/api/v1")
	api.Use(middleware.AuthRequired(h.auth))
	{
		api.GET("/notifications", h.listNotifications)
		api.GET("/notifications/unread-count", h.unreadCount)
		api.POST("/notifications/read", h.markRead)
	}
}

func (h *Handler) listNotifications(c *gin.Context) {
	userID := c.GetString(middleware.ContextUserID)
	unreadOnly := c.Query("unread") == "true"

	items, err := h.notifications.List(c.Request.Context(), userID, unreadOnly)
	if err != nil {
		commonlog.Errorf("list notifications for %s: %v", userID, err)
		c.JSON(http.StatusInternalServerError, httpresp.NewErrorResponse(err.Error()))
		return
	}
	c.JSON(http.StatusOK, gin.H{"notifications": items})
}

func (h *Handler) unreadCount(c *gin.Context) {
	userID := c.GetString(middleware.ContextUserID)
	count, err := h.notifications.CountUnread(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, httpresp.NewErrorResponse(err.Error()))
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": count})
}

func (h *Handler) markRead(c *gin.Context) {
	userID := c.GetString(middleware.ContextUserID)
	var req struct {
		IDs []string `json:"ids" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpresp.NewErrorResponse(err.Error()))
		return
	}

	count, err := h.notifications.MarkRead(c.Request.Context(), userID, req.IDs)
	if err != nil {
		if errors.Is(err, service.ErrInvalidInput) {
			c.JSON(http.StatusBadRequest, httpresp.NewErrorResponse(err.Error()))
			return
		}
		commonlog.Errorf("mark notifications read for %s: %v", userID, err)
		c.JSON(http.StatusInternalServerError, httpresp.NewErrorResponse(err.Error()))
		return
	}
	c.JSON(http.StatusOK, gin.H{"marked": count})
}

// handleWS authenticates via a token query parameter since browsers
// cannot set headers on websocket upgrades.
func (h *Handler) handleWS(c *gin.Context) {
	token := strings.TrimSpace(c.Query("token"))
	userID, _, err := h.auth.ParseAuthContext(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, httpresp.NewErrorResponse(httpresp.ErrInvalidToken))
		return
	}

	conn, err := wsUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		c.JSON(http.StatusBadRequest, httpresp.NewErrorResponse(err.Error()))
		return
	}

	client := &service.WSClient{UserID: userID, ConnID: uuid.NewString(), Conn: conn}
	h.hub.Register(client)
	defer h.hub.Unregister(client)

	client.WriteJSON(map[string]any{
		"type":         "notifications.connected",
		"user_id":      userID,
		"connected_at": time.Now().UTC(),
	})

	for {
		if err := conn.SetReadDeadline(time.Now().Add(90 * time.Second)); err != nil {
			return
		}
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
