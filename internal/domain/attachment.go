package domain

import "time"

// UploadContext records which step of the workflow a file was uploaded in.
// Together with the upload timestamp relative to the ticket's first reopen it
// is the only mechanism for placing a file in the ticket narrative; there is
// no stored phase column.
type UploadContext string

const (
	UploadContextInitial    UploadContext = "initial"
	UploadContextResolution UploadContext = "resolution"
	UploadContextReopen     UploadContext = "reopen"
	UploadContextAdditional UploadContext = "additional"
)

// ValidUploadContext reports whether c is a known upload context.
func ValidUploadContext(c UploadContext) bool {
	switch c {
	case UploadContextInitial, UploadContextResolution, UploadContextReopen, UploadContextAdditional:
		return true
	}
	return false
}

// Attachment is file metadata; the bytes live in the blob store under
// StorageKey.
type Attachment struct {
	ID            string
	TicketID      string
	Filename      string
	StorageKey    string
	MimeType      *string
	FileSize      int64
	UploadedBy    string
	UploadContext UploadContext
	CreatedAt     time.Time
}

// AttachmentPhase names the narrative section an attachment belongs to.
type AttachmentPhase string

const (
	PhaseInitial           AttachmentPhase = "initial"
	PhasePrimaryResolution AttachmentPhase = "primary_resolution"
	PhaseReopen            AttachmentPhase = "reopen"
	PhaseUpdatedResolution AttachmentPhase = "updated_resolution"
)
