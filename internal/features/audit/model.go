package audit

import (
	"time"

	"go-erp/internal/events"
)

// AuditLog is one approval event as recorded in the activity log.
type AuditLog struct {
	ID           string      `json:"id" bson:"_id"`
	Event        events.Kind `json:"event" bson:"event"`
	RequestID    string      `json:"request_id" bson:"request_id"`
	ActorID      string      `json:"actor_id" bson:"actor_id"`
	ActorName    string      `json:"actor_name,omitempty" bson:"-"`
	Step         int         `json:"step,omitempty" bson:"step,omitempty"`
	Role         string      `json:"role,omitempty" bson:"role,omitempty"`
	Outcome      string      `json:"outcome,omitempty" bson:"outcome,omitempty"`
	Comment      string      `json:"comment,omitempty" bson:"comment,omitempty"`
	Module       string      `json:"module,omitempty" bson:"module,omitempty"`
	DocumentType string      `json:"document_type,omitempty" bson:"document_type,omitempty"`
	DocumentID   string      `json:"document_id,omitempty" bson:"document_id,omitempty"`
	FlowName     string      `json:"flow_name,omitempty" bson:"flow_name,omitempty"`
	Timestamp    time.Time   `json:"timestamp" bson:"timestamp"`
}

// Filter narrows a log listing. Zero fields match everything.
type Filter struct {
	RequestID  string
	DocumentID string
	ActorID    string
	Event      events.Kind
	Module     string
}
