package dto

// RegisterRequest creates an account.
type RegisterRequest struct {
	Email    string  `json:"email"`
	Name     *string `json:"name,omitempty"`
	Password string  `json:"password"`
	Role     string  `json:"role"`
}

// LoginRequest authenticates.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// CreateTicketRequest files a ticket.
type CreateTicketRequest struct {
	BrandName      string  `json:"brand_name"`
	Description    *string `json:"description,omitempty"`
	IssueType      *string `json:"issue_type,omitempty"`
	ExpectedOutput *string `json:"expected_output,omitempty"`
	Priority       string  `json:"priority,omitempty"`
}

// UpdateTicketRequest edits classification fields.
type UpdateTicketRequest struct {
	BrandName      *string `json:"brand_name,omitempty"`
	Description    *string `json:"description,omitempty"`
	IssueType      *string `json:"issue_type,omitempty"`
	ExpectedOutput *string `json:"expected_output,omitempty"`
	Priority       *string `json:"priority,omitempty"`
}

// ResolveTicketRequest submits a fix.
type ResolveTicketRequest struct {
	ResolutionRemarks string        `json:"resolution_remarks"`
	Attachments       []FilePayload `json:"attachments,omitempty"`
}

// ReopenTicketRequest sends a fix back.
type ReopenTicketRequest struct {
	Reason      string        `json:"reason"`
	Attachments []FilePayload `json:"attachments,omitempty"`
}

// CloseTicketRequest accepts a fix.
type CloseTicketRequest struct {
	AcceptanceRemarks *string `json:"acceptance_remarks,omitempty"`
}

// ForceStatusRequest is the admin escape hatch.
type ForceStatusRequest struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

// AssignTicketRequest puts a ticket on a member's queue.
type AssignTicketRequest struct {
	AssigneeID string  `json:"assignee_id"`
	Notes      *string `json:"notes,omitempty"`
}

// AutoAssignToggleRequest flips the manager's auto-assignment preference.
type AutoAssignToggleRequest struct {
	Enabled bool `json:"enabled"`
}

// ManagerFlagRequest grants or revokes the manager role.
type ManagerFlagRequest struct {
	IsManager bool `json:"is_manager"`
}

// FilePayload is a base64-encoded file in a JSON body. Multipart uploads use
// the form fields directly instead.
type FilePayload struct {
	Filename string  `json:"filename"`
	MimeType *string `json:"mime_type,omitempty"`
	Content  string  `json:"content"`
}

// RequestDeletionRequest opens a deletion request.
type RequestDeletionRequest struct {
	Reason string `json:"reason"`
}

// RejectDeletionRequest closes a request without approval.
type RejectDeletionRequest struct {
	Reason *string `json:"reason,omitempty"`
}

// RedeemDeletionRequest performs the physical delete.
type RedeemDeletionRequest struct {
	OTPCode string `json:"otp_code"`
}
