package notification

import (
	"context"
	"fmt"

	"go-erp/internal/events"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

type NotificationService interface {
	// Notify turns an approval event into notifications for its audience.
	Notify(ctx context.Context, ev events.Event) error
}

type NotificationServiceImpl struct {
	Hub    *Hub
	Logger *zap.Logger
}

func NewNotificationService(hub *Hub, logger *zap.Logger) NotificationService {
	return &NotificationServiceImpl{
		Hub:    hub,
		Logger: logger.Named("notification"),
	}
}

// Subscribe routes notify-triggered and resolution events on bus to svc.
func Subscribe(bus *events.Bus, svc NotificationService) {
	bus.Handle(svc.Notify,
		events.KindNotifyTriggered,
		events.KindApproved,
		events.KindRejected,
		events.KindCancelled,
	)
}

func (s *NotificationServiceImpl) Notify(ctx context.Context, ev events.Event) error {
	n, ok := fromEvent(ev)
	if !ok {
		return nil
	}
	delivered := s.Hub.Publish(n)
	s.Logger.Debug("notification published",
		zap.String("request_id", ev.RequestID),
		zap.String("event", string(ev.Kind)),
		zap.Int("delivered", delivered),
	)
	return nil
}

func fromEvent(ev events.Event) (Notification, bool) {
	n := Notification{
		ID:        primitive.NewObjectID().Hex(),
		Event:     ev.Kind,
		RequestID: ev.RequestID,
		Link:      "/api/engine/requests/" + ev.RequestID,
		CreatedAt: ev.Timestamp,
	}
	doc := fmt.Sprintf("%s %s", ev.DocumentType, ev.DocumentID)

	switch ev.Kind {
	case events.KindNotifyTriggered:
		n.Role = ev.Role
		n.Type = NotificationTypeInfo
		n.Title = "Approval notice"
		n.Message = fmt.Sprintf("%s passed step %d of %q", doc, ev.Step, ev.FlowName)
	case events.KindApproved:
		n.UserID = ev.SubmittedBy
		n.Type = NotificationTypeSuccess
		n.Title = "Request approved"
		n.Message = fmt.Sprintf("%s was approved", doc)
	case events.KindRejected:
		n.UserID = ev.SubmittedBy
		n.Type = NotificationTypeWarning
		n.Title = "Request rejected"
		n.Message = fmt.Sprintf("%s was rejected at step %d", doc, ev.Step)
	case events.KindCancelled:
		n.UserID = ev.SubmittedBy
		n.Type = NotificationTypeInfo
		n.Title = "Request cancelled"
		n.Message = fmt.Sprintf("%s was cancelled", doc)
	default:
		return Notification{}, false
	}
	if ev.Comment != "" {
		n.Message += ": " + ev.Comment
	}
	if n.Role == "" && n.UserID == "" {
		return Notification{}, false
	}
	return n, true
}
