package notification

import (
	"github.com/gofiber/contrib/websocket"
	"go.uber.org/zap"
)

// Locals copied onto the websocket connection by the upgrade handler.
const (
	localUserID = "ws_user_id"
	localRoles  = "ws_roles"
)

type NotificationController struct {
	hub    *Hub
	logger *zap.Logger
}

func NewNotificationController(hub *Hub, logger *zap.Logger) *NotificationController {
	return &NotificationController{
		hub:    hub,
		logger: logger.Named("notification.ws"),
	}
}

// Stream pushes the caller's notifications until the client disconnects.
func (h *NotificationController) Stream(c *websocket.Conn) {
	userID, _ := c.Locals(localUserID).(string)
	roles, _ := c.Locals(localRoles).([]string)

	sub := h.hub.Register(userID, roles)
	defer h.hub.Unregister(sub)
	h.logger.Info("client connected", zap.String("user_id", userID), zap.Strings("roles", roles))

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			h.logger.Info("client disconnected", zap.String("user_id", userID))
			return
		case n, ok := <-sub.C:
			if !ok {
				return
			}
			if err := c.WriteJSON(n); err != nil {
				h.logger.Warn("write notification", zap.String("user_id", userID), zap.Error(err))
				return
			}
		}
	}
}
