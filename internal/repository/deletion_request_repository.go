package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bridgedesk/escalation-service/internal/domain"
)

// ErrRequestConflict is returned when a conditional deletion-request update
// finds the row no longer in the expected status.
var ErrRequestConflict = errors.New("deletion request status changed concurrently")

// DeletionRequestRepository persists the attachment-deletion approval protocol.
type DeletionRequestRepository interface {
	Create(ctx context.Context, request *domain.DeletionRequest) error
	GetByID(ctx context.Context, id string) (*domain.DeletionRequest, error)
	// GetOpenByAttachment returns the pending or approved request for an
	// attachment, if any.
	GetOpenByAttachment(ctx context.Context, attachmentID string) (*domain.DeletionRequest, error)
	// GetLatestByAttachment returns the newest request for an attachment in
	// any status.
	GetLatestByAttachment(ctx context.Context, attachmentID string) (*domain.DeletionRequest, error)
	// Approve mints the OTP, conditioned on the row still being pending.
	Approve(ctx context.Context, id, approverID, otpCode string, expiresAt time.Time) error
	// Reject terminates the request, conditioned on the row still being pending.
	Reject(ctx context.Context, id, approverID string, reason *string) error
	// ClaimUsed atomically moves approved to used; exactly one concurrent
	// caller wins, the rest get ErrRequestConflict.
	ClaimUsed(ctx context.Context, id string) error
	ListPendingForRequesterRole(ctx context.Context, requesterRole domain.Role) ([]domain.DeletionRequest, error)
	ListAllPending(ctx context.Context) ([]domain.DeletionRequest, error)
	ListByRequester(ctx context.Context, requesterID string) ([]domain.DeletionRequest, error)
}

type deletionRequestRepository struct {
	pool *pgxpool.Pool
}

// NewDeletionRequestRepository constructs repository.
func NewDeletionRequestRepository(pool *pgxpool.Pool) DeletionRequestRepository {
	return &deletionRequestRepository{pool: pool}
}

const deletionColumns = `id, attachment_id, requester_id, requester_role, requester_reason, status,
           approver_id, rejection_reason, otp_code, otp_expires_at, created_at`

func (r *deletionRequestRepository) Create(ctx context.Context, request *domain.DeletionRequest) error {
	const query = `
        INSERT INTO deletion_requests (attachment_id, requester_id, requester_role, requester_reason, status)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING id, created_at`
	return r.pool.QueryRow(ctx, query,
		request.AttachmentID,
		request.RequesterID,
		request.RequesterRole,
		request.RequesterReason,
		request.Status,
	).Scan(&request.ID, &request.CreatedAt)
}

func (r *deletionRequestRepository) GetByID(ctx context.Context, id string) (*domain.DeletionRequest, error) {
	query := `SELECT ` + deletionColumns + ` FROM deletion_requests WHERE id=$1`
	return r.fetchSingle(ctx, query, id)
}

func (r *deletionRequestRepository) GetOpenByAttachment(ctx context.Context, attachmentID string) (*domain.DeletionRequest, error) {
	query := `SELECT ` + deletionColumns + `
        FROM deletion_requests
        WHERE attachment_id=$1 AND status IN ('pending','approved')
        ORDER BY created_at DESC LIMIT 1`
	return r.fetchSingle(ctx, query, attachmentID)
}

func (r *deletionRequestRepository) GetLatestByAttachment(ctx context.Context, attachmentID string) (*domain.DeletionRequest, error) {
	query := `SELECT ` + deletionColumns + `
        FROM deletion_requests
        WHERE attachment_id=$1
        ORDER BY created_at DESC LIMIT 1`
	return r.fetchSingle(ctx, query, attachmentID)
}

func (r *deletionRequestRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.DeletionRequest, error) {
	var request domain.DeletionRequest
	if err := r.pool.QueryRow(ctx, query, arg).Scan(
		&request.ID,
		&request.AttachmentID,
		&request.RequesterID,
		&request.RequesterRole,
		&request.RequesterReason,
		&request.Status,
		&request.ApproverID,
		&request.RejectionReason,
		&request.OTPCode,
		&request.OTPExpiresAt,
		&request.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &request, nil
}

func (r *deletionRequestRepository) Approve(ctx context.Context, id, approverID, otpCode string, expiresAt time.Time) error {
	const query = `
        UPDATE deletion_requests
        SET status='approved', approver_id=$1, otp_code=$2, otp_expires_at=$3
        WHERE id=$4 AND status='pending'`
	return r.conditionalExec(ctx, query, approverID, otpCode, expiresAt, id)
}

func (r *deletionRequestRepository) Reject(ctx context.Context, id, approverID string, reason *string) error {
	const query = `
        UPDATE deletion_requests
        SET status='rejected', approver_id=$1, rejection_reason=$2
        WHERE id=$3 AND status='pending'`
	return r.conditionalExec(ctx, query, approverID, reason, id)
}

func (r *deletionRequestRepository) ClaimUsed(ctx context.Context, id string) error {
	const query = `UPDATE deletion_requests SET status='used' WHERE id=$1 AND status='approved'`
	return r.conditionalExec(ctx, query, id)
}

func (r *deletionRequestRepository) conditionalExec(ctx context.Context, query string, args ...any) error {
	cmd, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrRequestConflict
	}
	return nil
}

func (r *deletionRequestRepository) ListPendingForRequesterRole(ctx context.Context, requesterRole domain.Role) ([]domain.DeletionRequest, error) {
	query := `SELECT ` + deletionColumns + `
        FROM deletion_requests WHERE status='pending' AND requester_role=$1
        ORDER BY created_at ASC`
	return r.list(ctx, query, requesterRole)
}

func (r *deletionRequestRepository) ListAllPending(ctx context.Context) ([]domain.DeletionRequest, error) {
	query := `SELECT ` + deletionColumns + `
        FROM deletion_requests WHERE status='pending'
        ORDER BY created_at ASC`
	return r.list(ctx, query)
}

func (r *deletionRequestRepository) ListByRequester(ctx context.Context, requesterID string) ([]domain.DeletionRequest, error) {
	query := `SELECT ` + deletionColumns + `
        FROM deletion_requests WHERE requester_id=$1
        ORDER BY created_at DESC`
	return r.list(ctx, query, requesterID)
}

func (r *deletionRequestRepository) list(ctx context.Context, query string, args ...any) ([]domain.DeletionRequest, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.DeletionRequest
	for rows.Next() {
		var request domain.DeletionRequest
		if err := rows.Scan(
			&request.ID,
			&request.AttachmentID,
			&request.RequesterID,
			&request.RequesterRole,
			&request.RequesterReason,
			&request.Status,
			&request.ApproverID,
			&request.RejectionReason,
			&request.OTPCode,
			&request.OTPExpiresAt,
			&request.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, request)
	}
	return result, rows.Err()
}
