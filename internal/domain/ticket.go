package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusOpen      TicketStatus = "open"
	TicketStatusProcessed TicketStatus = "processed"
	TicketStatusResolved  TicketStatus = "resolved"
	TicketStatusReopened  TicketStatus = "re-opened"
	TicketStatusClosed    TicketStatus = "closed"
)

// ValidStatus reports whether s is a known ticket status.
func ValidStatus(s TicketStatus) bool {
	switch s {
	case TicketStatusOpen, TicketStatusProcessed, TicketStatusResolved, TicketStatusReopened, TicketStatusClosed:
		return true
	}
	return false
}

// ActiveStatuses are the states counted against a team member's workload.
var ActiveStatuses = []TicketStatus{TicketStatusOpen, TicketStatusProcessed, TicketStatusReopened}

// TicketPriority enumerates urgency buckets.
type TicketPriority string

const (
	TicketPriorityUrgent TicketPriority = "urgent"
	TicketPriorityHigh   TicketPriority = "high"
	TicketPriorityMedium TicketPriority = "medium"
	TicketPriorityLow    TicketPriority = "low"
)

// ValidPriority reports whether p is a known priority.
func ValidPriority(p TicketPriority) bool {
	switch p {
	case TicketPriorityUrgent, TicketPriorityHigh, TicketPriorityMedium, TicketPriorityLow:
		return true
	}
	return false
}

// Ticket is the aggregate for cross-team escalations.
//
// CreatorRole is captured at creation time and never changes; it determines
// which team owns the ticket and which team must resolve it.
// PrimaryResolutionRemarks is written exactly once, on the first resolution,
// and survives later reopen/resolve cycles.
type Ticket struct {
	ID                       string
	TicketNumber             string
	CreatedBy                string
	CreatorRole              Role
	BrandName                string
	Description              *string
	IssueType                *string
	ExpectedOutput           *string
	Priority                 TicketPriority
	Status                   TicketStatus
	CurrentAssignee          *string
	ResolutionRemarks        *string
	PrimaryResolutionRemarks *string
	ReopenReason             *string
	AcceptanceRemarks        *string
	CreatedAt                time.Time
	UpdatedAt                time.Time
	LastStatusChangeAt       *time.Time
	ResolvedAt               *time.Time
}
