package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bridgedesk/escalation-service/internal/domain"
)

// ErrStatusConflict is returned when a compare-and-swap status update loses a
// race: the row's status no longer matches the status the caller read.
var ErrStatusConflict = errors.New("ticket status changed concurrently")

// TicketFilter captures listing parameters.
type TicketFilter struct {
	CreatedBy       *string
	CurrentAssignee *string
	CreatedByTeam   *domain.Role
	Unassigned      bool
	Statuses        []domain.TicketStatus
	ExcludeStatuses []domain.TicketStatus
	Priorities      []domain.TicketPriority
	BrandName       *string
	CreatedFrom     *time.Time
	CreatedTo       *time.Time
	Limit           int
	Offset          int
}

// TicketRepository encapsulates ticket persistence.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	GetByNumber(ctx context.Context, ticketNumber string) (*domain.Ticket, error)
	Update(ctx context.Context, ticket *domain.Ticket) error
	// UpdateStatus writes status plus the narrative/timestamp fields in one
	// statement, conditioned on the row still holding expectedStatus. A lost
	// race returns ErrStatusConflict.
	UpdateStatus(ctx context.Context, ticket *domain.Ticket, expectedStatus domain.TicketStatus) error
	UpdateAssignee(ctx context.Context, ticketID string, assigneeID *string) error
	Delete(ctx context.Context, id string) error
	ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error)
	CountWithFilter(ctx context.Context, filter TicketFilter) (int, error)
	// NextTicketNumber increments and returns the per-team sequence.
	NextTicketNumber(ctx context.Context, prefix string) (int64, error)
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

const ticketColumns = `id, ticket_number, created_by, creator_role, brand_name, description,
           issue_type, expected_output, priority, status, current_assignee,
           resolution_remarks, primary_resolution_remarks, reopen_reason, acceptance_remarks,
           created_at, updated_at, last_status_change_at, resolved_at`

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (ticket_number, created_by, creator_role, brand_name, description,
            issue_type, expected_output, priority, status)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
        RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		ticket.TicketNumber,
		ticket.CreatedBy,
		ticket.CreatorRole,
		ticket.BrandName,
		ticket.Description,
		ticket.IssueType,
		ticket.ExpectedOutput,
		ticket.Priority,
		ticket.Status,
	).Scan(&ticket.ID, &ticket.CreatedAt, &ticket.UpdatedAt)
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE id=$1`, ticketColumns)
	return r.fetchSingle(ctx, query, id)
}

func (r *ticketRepository) GetByNumber(ctx context.Context, ticketNumber string) (*domain.Ticket, error) {
	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE ticket_number=$1`, ticketColumns)
	return r.fetchSingle(ctx, query, ticketNumber)
}

func (r *ticketRepository) Update(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        UPDATE tickets SET brand_name=$1, description=$2, issue_type=$3, expected_output=$4,
            priority=$5, updated_at=NOW()
        WHERE id=$6`
	cmd, err := r.pool.Exec(ctx, query,
		ticket.BrandName,
		ticket.Description,
		ticket.IssueType,
		ticket.ExpectedOutput,
		ticket.Priority,
		ticket.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *ticketRepository) UpdateStatus(ctx context.Context, ticket *domain.Ticket, expectedStatus domain.TicketStatus) error {
	const query = `
        UPDATE tickets SET status=$1, resolution_remarks=$2, primary_resolution_remarks=$3,
            reopen_reason=$4, acceptance_remarks=$5, resolved_at=$6,
            last_status_change_at=$7, updated_at=NOW()
        WHERE id=$8 AND status=$9`
	cmd, err := r.pool.Exec(ctx, query,
		ticket.Status,
		ticket.ResolutionRemarks,
		ticket.PrimaryResolutionRemarks,
		ticket.ReopenReason,
		ticket.AcceptanceRemarks,
		ticket.ResolvedAt,
		ticket.LastStatusChangeAt,
		ticket.ID,
		expectedStatus,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrStatusConflict
	}
	return nil
}

func (r *ticketRepository) UpdateAssignee(ctx context.Context, ticketID string, assigneeID *string) error {
	const query = `UPDATE tickets SET current_assignee=$1, updated_at=NOW() WHERE id=$2`
	cmd, err := r.pool.Exec(ctx, query, assigneeID, ticketID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *ticketRepository) Delete(ctx context.Context, id string) error {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM tickets WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *ticketRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.Ticket, error) {
	var ticket domain.Ticket
	if err := r.pool.QueryRow(ctx, query, arg).Scan(
		&ticket.ID,
		&ticket.TicketNumber,
		&ticket.CreatedBy,
		&ticket.CreatorRole,
		&ticket.BrandName,
		&ticket.Description,
		&ticket.IssueType,
		&ticket.ExpectedOutput,
		&ticket.Priority,
		&ticket.Status,
		&ticket.CurrentAssignee,
		&ticket.ResolutionRemarks,
		&ticket.PrimaryResolutionRemarks,
		&ticket.ReopenReason,
		&ticket.AcceptanceRemarks,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
		&ticket.LastStatusChangeAt,
		&ticket.ResolvedAt,
	); err != nil {
		return nil, err
	}
	return &ticket, nil
}

func buildTicketWhere(filter TicketFilter) (string, []any) {
	clauses := []string{"1=1"}
	args := []any{}

	if filter.CreatedBy != nil {
		args = append(args, *filter.CreatedBy)
		clauses = append(clauses, fmt.Sprintf("t.created_by=$%d", len(args)))
	}
	if filter.CurrentAssignee != nil {
		args = append(args, *filter.CurrentAssignee)
		clauses = append(clauses, fmt.Sprintf("t.current_assignee=$%d", len(args)))
	}
	if filter.CreatedByTeam != nil {
		args = append(args, *filter.CreatedByTeam)
		clauses = append(clauses, fmt.Sprintf("t.creator_role=$%d", len(args)))
	}
	if filter.Unassigned {
		clauses = append(clauses, "t.current_assignee IS NULL")
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("t.status IN (%s)", strings.Join(placeholders, ",")))
	}
	for _, status := range filter.ExcludeStatuses {
		args = append(args, status)
		clauses = append(clauses, fmt.Sprintf("t.status != $%d", len(args)))
	}
	if len(filter.Priorities) > 0 {
		placeholders := make([]string, len(filter.Priorities))
		for i, pr := range filter.Priorities {
			args = append(args, pr)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("t.priority IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.BrandName != nil && strings.TrimSpace(*filter.BrandName) != "" {
		args = append(args, "%"+strings.ToLower(strings.TrimSpace(*filter.BrandName))+"%")
		clauses = append(clauses, fmt.Sprintf("LOWER(t.brand_name) LIKE $%d", len(args)))
	}
	if filter.CreatedFrom != nil {
		args = append(args, *filter.CreatedFrom)
		clauses = append(clauses, fmt.Sprintf("t.created_at >= $%d", len(args)))
	}
	if filter.CreatedTo != nil {
		args = append(args, *filter.CreatedTo)
		clauses = append(clauses, fmt.Sprintf("t.created_at <= $%d", len(args)))
	}
	return strings.Join(clauses, " AND "), args
}

func (r *ticketRepository) ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	where, args := buildTicketWhere(filter)

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`SELECT %s FROM tickets t WHERE %s
        ORDER BY
            CASE t.priority
                WHEN 'urgent' THEN 1
                WHEN 'high' THEN 2
                WHEN 'medium' THEN 3
                WHEN 'low' THEN 4
            END,
            t.created_at DESC
        LIMIT %d OFFSET %d`, ticketColumns, where, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func (r *ticketRepository) CountWithFilter(ctx context.Context, filter TicketFilter) (int, error) {
	where, args := buildTicketWhere(filter)
	var total int
	query := fmt.Sprintf(`SELECT COUNT(*) FROM tickets t WHERE %s`, where)
	if err := r.pool.QueryRow(ctx, query, args...).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

func (r *ticketRepository) NextTicketNumber(ctx context.Context, prefix string) (int64, error) {
	const query = `
        INSERT INTO ticket_sequences (prefix, value) VALUES ($1, 1)
        ON CONFLICT (prefix) DO UPDATE SET value = ticket_sequences.value + 1
        RETURNING value`
	var value int64
	if err := r.pool.QueryRow(ctx, query, prefix).Scan(&value); err != nil {
		return 0, err
	}
	return value, nil
}

func scanTickets(rows pgx.Rows) ([]domain.Ticket, error) {
	var result []domain.Ticket
	for rows.Next() {
		var ticket domain.Ticket
		if err := rows.Scan(
			&ticket.ID,
			&ticket.TicketNumber,
			&ticket.CreatedBy,
			&ticket.CreatorRole,
			&ticket.BrandName,
			&ticket.Description,
			&ticket.IssueType,
			&ticket.ExpectedOutput,
			&ticket.Priority,
			&ticket.Status,
			&ticket.CurrentAssignee,
			&ticket.ResolutionRemarks,
			&ticket.PrimaryResolutionRemarks,
			&ticket.ReopenReason,
			&ticket.AcceptanceRemarks,
			&ticket.CreatedAt,
			&ticket.UpdatedAt,
			&ticket.LastStatusChangeAt,
			&ticket.ResolvedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, ticket)
	}
	return result, rows.Err()
}
