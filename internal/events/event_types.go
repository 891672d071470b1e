package events

import (
	"time"

	"github.com/bridgedesk/escalation-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated       EventType = "ticket_created"
	EventTicketStatusChanged EventType = "ticket_status_changed"
	EventTicketAssigned      EventType = "ticket_assigned"
	EventAttachmentAdded     EventType = "attachment_added"
	EventAttachmentDeleted   EventType = "attachment_deleted"
	EventDeletionRequested   EventType = "deletion_requested"
	EventDeletionDecided     EventType = "deletion_decided"
)

// Event represents a domain event emitted by services. ActorID is nil for
// system-originated events such as auto-assignment.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TicketID  string      `json:"ticket_id"`
	ActorID   *string     `json:"actor_id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	TicketNumber string                `json:"ticket_number"`
	CreatorRole  domain.Role           `json:"creator_role"`
	Priority     domain.TicketPriority `json:"priority"`
	BrandName    string                `json:"brand_name"`
}

// TicketStatusChangedPayload payload.
type TicketStatusChangedPayload struct {
	OldStatus domain.TicketStatus `json:"old_status"`
	NewStatus domain.TicketStatus `json:"new_status"`
	Forced    bool                `json:"forced,omitempty"`
	Comment   string              `json:"comment,omitempty"`
}

// TicketAssignedPayload payload.
type TicketAssignedPayload struct {
	AssigneeID *string `json:"assignee_id,omitempty"`
	Auto       bool    `json:"auto,omitempty"`
}

// AttachmentPayload payload for attachment add/delete events.
type AttachmentPayload struct {
	AttachmentID string `json:"attachment_id"`
	Filename     string `json:"filename"`
}

// DeletionDecisionPayload payload for approval-protocol outcomes.
type DeletionDecisionPayload struct {
	RequestID string                       `json:"request_id"`
	Status    domain.DeletionRequestStatus `json:"status"`
}
