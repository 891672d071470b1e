package domain

import "time"

// ActivityAction is a short tag naming a ticket mutation.
type ActivityAction string

const (
	ActionCreated           ActivityAction = "created"
	ActionUpdated           ActivityAction = "updated"
	ActionAssigned          ActivityAction = "assigned"
	ActionReassigned        ActivityAction = "reassigned"
	ActionResolutionAdded   ActivityAction = "resolution_added"
	ActionReopened          ActivityAction = "reopened"
	ActionClosed            ActivityAction = "closed"
	ActionStatusForced      ActivityAction = "status_forced"
	ActionAttachmentAdded   ActivityAction = "attachment_added"
	ActionAttachmentDeleted ActivityAction = "attachment_deleted"
	ActionDeletionRequested ActivityAction = "deletion_requested"
	ActionDeletionApproved  ActivityAction = "deletion_approved"
	ActionDeletionRejected  ActivityAction = "deletion_rejected"
)

// TicketActivity is an append-only audit fact. Activities are never updated
// or deleted; ActorID is nil for system-originated events such as auto-assign.
type TicketActivity struct {
	ID        string
	TicketID  string
	ActorID   *string
	Action    ActivityAction
	Comment   *string
	Payload   map[string]any
	CreatedAt time.Time
}
