package notification

import (
	"slices"
	"sync"

	"go.uber.org/zap"
)

const subscriberBuffer = 32

// Subscriber is one connected client.
type Subscriber struct {
	UserID string
	Roles  []string
	C      chan Notification
}

func (s *Subscriber) wants(n Notification) bool {
	if n.UserID != "" {
		return n.UserID == s.UserID
	}
	return n.Role != "" && slices.Contains(s.Roles, n.Role)
}

// Hub fans notifications out to connected subscribers. A subscriber that
// falls behind loses notifications rather than blocking the others.
type Hub struct {
	mu     sync.RWMutex
	subs   map[*Subscriber]struct{}
	logger *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		subs:   make(map[*Subscriber]struct{}),
		logger: logger.Named("notification.hub"),
	}
}

func (h *Hub) Register(userID string, roles []string) *Subscriber {
	s := &Subscriber{
		UserID: userID,
		Roles:  slices.Clone(roles),
		C:      make(chan Notification, subscriberBuffer),
	}
	h.mu.Lock()
	h.subs[s] = struct{}{}
	h.mu.Unlock()
	return s
}

// Unregister removes s and closes its channel. Safe to call twice.
func (h *Hub) Unregister(s *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[s]; ok {
		delete(h.subs, s)
		close(s.C)
	}
}

// Publish delivers n to every interested subscriber and reports how many got it.
func (h *Hub) Publish(n Notification) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	delivered := 0
	for s := range h.subs {
		if !s.wants(n) {
			continue
		}
		select {
		case s.C <- n:
			delivered++
		default:
			h.logger.Warn("subscriber lagging, notification dropped",
				zap.String("user_id", s.UserID),
				zap.String("request_id", n.RequestID),
			)
		}
	}
	return delivered
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
