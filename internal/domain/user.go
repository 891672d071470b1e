package domain

import "time"

// Role identifies which side of the escalation flow a user sits on.
type Role string

const (
	RoleGrowth Role = "growth"
	RoleOps    Role = "ops"
	RoleAdmin  Role = "admin"
)

// IsTeam reports whether the role is one of the two working teams.
func (r Role) IsTeam() bool {
	return r == RoleGrowth || r == RoleOps
}

// Opposite returns the counterpart team. Admin has no counterpart.
func (r Role) Opposite() Role {
	switch r {
	case RoleGrowth:
		return RoleOps
	case RoleOps:
		return RoleGrowth
	default:
		return r
	}
}

// User is a member of the growth or ops team, or an administrator.
type User struct {
	ID                string
	Email             string
	Name              *string
	PasswordHash      string
	Role              Role
	IsManager         bool
	IsActive          bool
	ManagedBy         *string
	AutoAssignEnabled bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
	LastLoginAt       *time.Time
}

// TeamMember is a user joined with their current assignment load.
type TeamMember struct {
	User
	ActiveTickets int
}
