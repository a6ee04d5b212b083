package notification

import (
	"time"

	"go-erp/internal/events"
)

type NotificationType string

const (
	NotificationTypeInfo    NotificationType = "info"
	NotificationTypeSuccess NotificationType = "success"
	NotificationTypeWarning NotificationType = "warning"
	NotificationTypeTask    NotificationType = "task"
)

// Notification is pushed to connected clients. It targets either a role or a
// single user.
type Notification struct {
	ID        string           `json:"id"`
	Event     events.Kind      `json:"event"`
	RequestID string           `json:"request_id"`
	Role      string           `json:"role,omitempty"`
	UserID    string           `json:"user_id,omitempty"`
	Title     string           `json:"title"`
	Message   string           `json:"message"`
	Type      NotificationType `json:"type"`
	Link      string           `json:"link,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
}
