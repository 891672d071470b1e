package domain

import "time"

// DeletionRequestStatus enumerates the approval protocol states.
type DeletionRequestStatus string

const (
	DeletionStatusPending  DeletionRequestStatus = "pending"
	DeletionStatusApproved DeletionRequestStatus = "approved"
	DeletionStatusRejected DeletionRequestStatus = "rejected"
	DeletionStatusUsed     DeletionRequestStatus = "used"
)

// DeletionRequest gates destructive attachment deletion behind a two-party
// approval. Approval mints a single-use, time-boxed OTP; redeeming the OTP
// performs the physical delete and moves the request to used.
type DeletionRequest struct {
	ID              string
	AttachmentID    string
	RequesterID     string
	RequesterRole   Role
	RequesterReason string
	Status          DeletionRequestStatus
	ApproverID      *string
	RejectionReason *string
	OTPCode         *string
	OTPExpiresAt    *time.Time
	CreatedAt       time.Time
}
