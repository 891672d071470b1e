package dto

import (
	"time"

	"github.com/bridgedesk/escalation-service/internal/domain"
)

// UserResponse is the public view of an account.
type UserResponse struct {
	ID                string     `json:"id"`
	Email             string     `json:"email"`
	Name              *string    `json:"name,omitempty"`
	Role              string     `json:"role"`
	IsManager         bool       `json:"is_manager"`
	IsActive          bool       `json:"is_active"`
	AutoAssignEnabled bool       `json:"auto_assign_enabled"`
	CreatedAt         time.Time  `json:"created_at"`
	LastLoginAt       *time.Time `json:"last_login_at,omitempty"`
}

// AuthResponse carries a logged-in principal and its token.
type AuthResponse struct {
	User      UserResponse `json:"user"`
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
}

// TeamMemberResponse is a roster row with workload.
type TeamMemberResponse struct {
	UserResponse
	ActiveTickets int `json:"active_tickets"`
}

// TicketResponse is the full ticket view.
type TicketResponse struct {
	ID                       string     `json:"id"`
	TicketNumber             string     `json:"ticket_number"`
	CreatedBy                string     `json:"created_by"`
	CreatorRole              string     `json:"creator_role"`
	BrandName                string     `json:"brand_name"`
	Description              *string    `json:"description,omitempty"`
	IssueType                *string    `json:"issue_type,omitempty"`
	ExpectedOutput           *string    `json:"expected_output,omitempty"`
	Priority                 string     `json:"priority"`
	Status                   string     `json:"status"`
	CurrentAssignee          *string    `json:"current_assignee,omitempty"`
	ResolutionRemarks        *string    `json:"resolution_remarks,omitempty"`
	PrimaryResolutionRemarks *string    `json:"primary_resolution_remarks,omitempty"`
	ReopenReason             *string    `json:"reopen_reason,omitempty"`
	AcceptanceRemarks        *string    `json:"acceptance_remarks,omitempty"`
	CreatedAt                time.Time  `json:"created_at"`
	UpdatedAt                time.Time  `json:"updated_at"`
	LastStatusChangeAt       *time.Time `json:"last_status_change_at,omitempty"`
	ResolvedAt               *time.Time `json:"resolved_at,omitempty"`
}

// TicketListResponse is a paginated ticket listing.
type TicketListResponse struct {
	Tickets []TicketResponse `json:"tickets"`
	Total   int              `json:"total"`
	Limit   int              `json:"limit,omitempty"`
	Offset  int              `json:"offset,omitempty"`
}

// ActivityResponse is one audit timeline entry.
type ActivityResponse struct {
	ID        string         `json:"id"`
	TicketID  string         `json:"ticket_id"`
	ActorID   *string        `json:"actor_id,omitempty"`
	Action    string         `json:"action"`
	Comment   *string        `json:"comment,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// AttachmentResponse is attachment metadata plus its derived narrative phase.
type AttachmentResponse struct {
	ID            string    `json:"id"`
	TicketID      string    `json:"ticket_id"`
	Filename      string    `json:"filename"`
	MimeType      *string   `json:"mime_type,omitempty"`
	FileSize      int64     `json:"file_size"`
	UploadedBy    string    `json:"uploaded_by"`
	UploadContext string    `json:"upload_context"`
	Phase         string    `json:"phase"`
	CreatedAt     time.Time `json:"created_at"`
}

// DeletionRequestResponse is a deletion request. The OTP code appears only
// when the mapper is told the viewer is the requester of an approved request.
type DeletionRequestResponse struct {
	ID              string     `json:"id"`
	AttachmentID    string     `json:"attachment_id"`
	RequesterID     string     `json:"requester_id"`
	RequesterRole   string     `json:"requester_role"`
	RequesterReason string     `json:"requester_reason"`
	Status          string     `json:"status"`
	ApproverID      *string    `json:"approver_id,omitempty"`
	RejectionReason *string    `json:"rejection_reason,omitempty"`
	OTPCode         *string    `json:"otp_code,omitempty"`
	OTPExpiresAt    *time.Time `json:"otp_expires_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// TeamMetricsResponse is the manager dashboard aggregate.
type TeamMetricsResponse struct {
	TotalTickets           int                  `json:"total_tickets"`
	OpenTickets            int                  `json:"open_tickets"`
	ProcessedTickets       int                  `json:"processed_tickets"`
	ResolvedTickets        int                  `json:"resolved_tickets"`
	ReopenedTickets        int                  `json:"reopened_tickets"`
	AvgResolutionTimeHours float64              `json:"avg_resolution_time_hours"`
	ReopenRate             float64              `json:"reopen_rate"`
	TeamMembers            []TeamMemberResponse `json:"team_members"`
}

// NewUserResponse maps a user.
func NewUserResponse(user *domain.User) UserResponse {
	return UserResponse{
		ID:                user.ID,
		Email:             user.Email,
		Name:              user.Name,
		Role:              string(user.Role),
		IsManager:         user.IsManager,
		IsActive:          user.IsActive,
		AutoAssignEnabled: user.AutoAssignEnabled,
		CreatedAt:         user.CreatedAt,
		LastLoginAt:       user.LastLoginAt,
	}
}

// NewTeamMemberResponse maps a roster row.
func NewTeamMemberResponse(member domain.TeamMember) TeamMemberResponse {
	return TeamMemberResponse{
		UserResponse:  NewUserResponse(&member.User),
		ActiveTickets: member.ActiveTickets,
	}
}

// NewTicketResponse maps a ticket.
func NewTicketResponse(ticket *domain.Ticket) TicketResponse {
	return TicketResponse{
		ID:                       ticket.ID,
		TicketNumber:             ticket.TicketNumber,
		CreatedBy:                ticket.CreatedBy,
		CreatorRole:              string(ticket.CreatorRole),
		BrandName:                ticket.BrandName,
		Description:              ticket.Description,
		IssueType:                ticket.IssueType,
		ExpectedOutput:           ticket.ExpectedOutput,
		Priority:                 string(ticket.Priority),
		Status:                   string(ticket.Status),
		CurrentAssignee:          ticket.CurrentAssignee,
		ResolutionRemarks:        ticket.ResolutionRemarks,
		PrimaryResolutionRemarks: ticket.PrimaryResolutionRemarks,
		ReopenReason:             ticket.ReopenReason,
		AcceptanceRemarks:        ticket.AcceptanceRemarks,
		CreatedAt:                ticket.CreatedAt,
		UpdatedAt:                ticket.UpdatedAt,
		LastStatusChangeAt:       ticket.LastStatusChangeAt,
		ResolvedAt:               ticket.ResolvedAt,
	}
}

// NewTicketListResponse maps a page of tickets.
func NewTicketListResponse(tickets []domain.Ticket, total, limit, offset int) TicketListResponse {
	out := make([]TicketResponse, 0, len(tickets))
	for i := range tickets {
		out = append(out, NewTicketResponse(&tickets[i]))
	}
	return TicketListResponse{Tickets: out, Total: total, Limit: limit, Offset: offset}
}

// NewActivityResponse maps a timeline entry.
func NewActivityResponse(activity domain.TicketActivity) ActivityResponse {
	return ActivityResponse{
		ID:        activity.ID,
		TicketID:  activity.TicketID,
		ActorID:   activity.ActorID,
		Action:    string(activity.Action),
		Comment:   activity.Comment,
		Payload:   activity.Payload,
		CreatedAt: activity.CreatedAt,
	}
}

// NewAttachmentResponse maps an attachment with its derived phase.
func NewAttachmentResponse(attachment domain.Attachment, phase domain.AttachmentPhase) AttachmentResponse {
	return AttachmentResponse{
		ID:            attachment.ID,
		TicketID:      attachment.TicketID,
		Filename:      attachment.Filename,
		MimeType:      attachment.MimeType,
		FileSize:      attachment.FileSize,
		UploadedBy:    attachment.UploadedBy,
		UploadContext: string(attachment.UploadContext),
		Phase:         string(phase),
		CreatedAt:     attachment.CreatedAt,
	}
}

// NewDeletionRequestResponse maps a request, including the OTP only for the
// requester's own approved rows.
func NewDeletionRequestResponse(request domain.DeletionRequest, viewerID string) DeletionRequestResponse {
	resp := DeletionRequestResponse{
		ID:              request.ID,
		AttachmentID:    request.AttachmentID,
		RequesterID:     request.RequesterID,
		RequesterRole:   string(request.RequesterRole),
		RequesterReason: request.RequesterReason,
		Status:          string(request.Status),
		ApproverID:      request.ApproverID,
		RejectionReason: request.RejectionReason,
		CreatedAt:       request.CreatedAt,
	}
	if request.Status == domain.DeletionStatusApproved && request.RequesterID == viewerID {
		resp.OTPCode = request.OTPCode
		resp.OTPExpiresAt = request.OTPExpiresAt
	}
	return resp
}

// NewTeamMetricsResponse maps the dashboard aggregate.
func NewTeamMetricsResponse(metrics *domain.TeamMetrics) TeamMetricsResponse {
	members := make([]TeamMemberResponse, 0, len(metrics.TeamMembers))
	for _, m := range metrics.TeamMembers {
		members = append(members, NewTeamMemberResponse(m))
	}
	return TeamMetricsResponse{
		TotalTickets:           metrics.TotalTickets,
		OpenTickets:            metrics.OpenTickets,
		ProcessedTickets:       metrics.ProcessedTickets,
		ResolvedTickets:        metrics.ResolvedTickets,
		ReopenedTickets:        metrics.ReopenedTickets,
		AvgResolutionTimeHours: metrics.AvgResolutionTimeHours,
		ReopenRate:             metrics.ReopenRate,
		TeamMembers:            members,
	}
}
