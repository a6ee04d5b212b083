// Package events carries approval lifecycle events from the engine to the
// activity log and notification consumers over a watermill topic.
package events

import "time"

// Topic is the watermill topic every approval event is published on.
const Topic = "approval.events"

const kindMetadataKey = "event_kind"

type Kind string

const (
	KindSubmitted       Kind = "submitted"
	KindDecided         Kind = "decided"
	KindApproved        Kind = "approved"
	KindRejected        Kind = "rejected"
	KindCancelled       Kind = "cancelled"
	KindNotifyTriggered Kind = "notify-triggered"
)

// Event is one state transition of an approval request.
type Event struct {
	ID           string    `json:"id"`
	Kind         Kind      `json:"event"`
	RequestID    string    `json:"request_id"`
	Actor        string    `json:"actor"`
	Step         int       `json:"step,omitempty"`
	Role         string    `json:"role,omitempty"`
	Outcome      string    `json:"outcome,omitempty"`
	Comment      string    `json:"comment,omitempty"`
	Module       string    `json:"module,omitempty"`
	DocumentType string    `json:"document_type,omitempty"`
	DocumentID   string    `json:"document_id,omitempty"`
	FlowName     string    `json:"flow_name,omitempty"`
	SubmittedBy  string    `json:"submitted_by,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}
