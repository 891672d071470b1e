package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bridgedesk/escalation-service/internal/domain"
)

// UserRepository defines persistence access for users.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	SetActive(ctx context.Context, id string, active bool) error
	SetAutoAssign(ctx context.Context, id string, enabled bool) error
	SetManagerFlag(ctx context.Context, id string, isManager bool) error
	TouchLastLogin(ctx context.Context, id string) error
	// ListTeamMembers returns non-manager members of the given team with
	// their current active-ticket counts.
	ListTeamMembers(ctx context.Context, role domain.Role) ([]domain.TeamMember, error)
	// ListAssignmentCandidates returns active non-manager members of the team
	// ordered by fewest active tickets, then earliest created_at, then lowest
	// id. The ordering is the deterministic auto-assign tie-break.
	ListAssignmentCandidates(ctx context.Context, role domain.Role) ([]domain.TeamMember, error)
	// AutoAssignEnabledForTeam reports whether any active manager of the team
	// has the auto-assign toggle on.
	AutoAssignEnabledForTeam(ctx context.Context, role domain.Role) (bool, error)
}

type userRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository returns a Postgres-backed implementation.
func NewUserRepository(pool *pgxpool.Pool) UserRepository {
	return &userRepository{pool: pool}
}

const userColumns = `id, email, name, password_hash, role, is_manager, is_active,
           managed_by, auto_assign_enabled, created_at, updated_at, last_login_at`

func (r *userRepository) Create(ctx context.Context, user *domain.User) error {
	const query = `
        INSERT INTO users (email, name, password_hash, role, is_manager, is_active, managed_by)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		user.Email,
		user.Name,
		user.PasswordHash,
		user.Role,
		user.IsManager,
		user.IsActive,
		user.ManagedBy,
	).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
}

func (r *userRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE id=$1`, userColumns)
	return r.fetchSingle(ctx, query, id)
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE email=$1`, userColumns)
	return r.fetchSingle(ctx, query, email)
}

func (r *userRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.User, error) {
	var user domain.User
	if err := r.pool.QueryRow(ctx, query, arg).Scan(
		&user.ID,
		&user.Email,
		&user.Name,
		&user.PasswordHash,
		&user.Role,
		&user.IsManager,
		&user.IsActive,
		&user.ManagedBy,
		&user.AutoAssignEnabled,
		&user.CreatedAt,
		&user.UpdatedAt,
		&user.LastLoginAt,
	); err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) SetActive(ctx context.Context, id string, active bool) error {
	return r.execFlag(ctx, `UPDATE users SET is_active=$1, updated_at=NOW() WHERE id=$2`, active, id)
}

func (r *userRepository) SetAutoAssign(ctx context.Context, id string, enabled bool) error {
	return r.execFlag(ctx, `UPDATE users SET auto_assign_enabled=$1, updated_at=NOW() WHERE id=$2`, enabled, id)
}

func (r *userRepository) SetManagerFlag(ctx context.Context, id string, isManager bool) error {
	return r.execFlag(ctx, `UPDATE users SET is_manager=$1, updated_at=NOW() WHERE id=$2`, isManager, id)
}

func (r *userRepository) execFlag(ctx context.Context, query string, flag bool, id string) error {
	cmd, err := r.pool.Exec(ctx, query, flag, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *userRepository) TouchLastLogin(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `UPDATE users SET last_login_at=NOW() WHERE id=$1`, id)
	return err
}

const teamMemberQuery = `
        SELECT u.id, u.email, u.name, u.password_hash, u.role, u.is_manager, u.is_active,
               u.managed_by, u.auto_assign_enabled, u.created_at, u.updated_at, u.last_login_at,
               COUNT(t.id) FILTER (WHERE t.status IN ('open','processed','re-opened')) AS active_tickets
        FROM users u
        LEFT JOIN tickets t ON t.current_assignee = u.id
        WHERE u.role = $1 AND u.is_manager = FALSE%s
        GROUP BY u.id
        ORDER BY %s`

func (r *userRepository) ListTeamMembers(ctx context.Context, role domain.Role) ([]domain.TeamMember, error) {
	query := fmt.Sprintf(teamMemberQuery, "", "u.name")
	return r.listMembers(ctx, query, role)
}

func (r *userRepository) ListAssignmentCandidates(ctx context.Context, role domain.Role) ([]domain.TeamMember, error) {
	query := fmt.Sprintf(teamMemberQuery, " AND u.is_active = TRUE", "active_tickets ASC, u.created_at ASC, u.id ASC")
	return r.listMembers(ctx, query, role)
}

func (r *userRepository) listMembers(ctx context.Context, query string, role domain.Role) ([]domain.TeamMember, error) {
	rows, err := r.pool.Query(ctx, query, role)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.TeamMember
	for rows.Next() {
		var member domain.TeamMember
		if err := rows.Scan(
			&member.ID,
			&member.Email,
			&member.Name,
			&member.PasswordHash,
			&member.Role,
			&member.IsManager,
			&member.IsActive,
			&member.ManagedBy,
			&member.AutoAssignEnabled,
			&member.CreatedAt,
			&member.UpdatedAt,
			&member.LastLoginAt,
			&member.ActiveTickets,
		); err != nil {
			return nil, err
		}
		result = append(result, member)
	}
	return result, rows.Err()
}

func (r *userRepository) AutoAssignEnabledForTeam(ctx context.Context, role domain.Role) (bool, error) {
	const query = `
        SELECT EXISTS (
            SELECT 1 FROM users
            WHERE role=$1 AND is_manager=TRUE AND is_active=TRUE AND auto_assign_enabled=TRUE
        )`
	var enabled bool
	if err := r.pool.QueryRow(ctx, query, role).Scan(&enabled); err != nil {
		return false, err
	}
	return enabled, nil
}
