package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bridgedesk/escalation-service/internal/domain"
)

// MetricsRepository computes manager-dashboard aggregates.
type MetricsRepository interface {
	TeamTicketCounts(ctx context.Context, creatorRole domain.Role) (domain.TeamMetrics, error)
	AvgResolutionHours(ctx context.Context, creatorRole domain.Role) (float64, error)
	ReopenRate(ctx context.Context, creatorRole domain.Role) (float64, error)
}

type metricsRepository struct {
	pool *pgxpool.Pool
}

// NewMetricsRepository constructs repository.
func NewMetricsRepository(pool *pgxpool.Pool) MetricsRepository {
	return &metricsRepository{pool: pool}
}

func (r *metricsRepository) TeamTicketCounts(ctx context.Context, creatorRole domain.Role) (domain.TeamMetrics, error) {
	const query = `
        SELECT
            COUNT(*),
            COUNT(*) FILTER (WHERE status = 'open'),
            COUNT(*) FILTER (WHERE status = 'processed'),
            COUNT(*) FILTER (WHERE status = 'resolved' OR status = 'closed'),
            COUNT(*) FILTER (WHERE status = 're-opened')
        FROM tickets WHERE creator_role = $1`
	var metrics domain.TeamMetrics
	if err := r.pool.QueryRow(ctx, query, creatorRole).Scan(
		&metrics.TotalTickets,
		&metrics.OpenTickets,
		&metrics.ProcessedTickets,
		&metrics.ResolvedTickets,
		&metrics.ReopenedTickets,
	); err != nil {
		return domain.TeamMetrics{}, err
	}
	return metrics, nil
}

func (r *metricsRepository) AvgResolutionHours(ctx context.Context, creatorRole domain.Role) (float64, error) {
	const query = `
        SELECT COALESCE(AVG(EXTRACT(EPOCH FROM (resolved_at - created_at))/3600), 0)
        FROM tickets
        WHERE creator_role = $1 AND resolved_at IS NOT NULL
          AND created_at >= NOW() - INTERVAL '30 days'`
	var hours float64
	if err := r.pool.QueryRow(ctx, query, creatorRole).Scan(&hours); err != nil {
		return 0, err
	}
	return hours, nil
}

func (r *metricsRepository) ReopenRate(ctx context.Context, creatorRole domain.Role) (float64, error) {
	const query = `
        SELECT COALESCE(
            COUNT(*) FILTER (WHERE reopen_reason IS NOT NULL) * 100.0 /
            NULLIF(COUNT(*) FILTER (WHERE status IN ('processed','resolved','closed','re-opened')), 0),
        0)
        FROM tickets
        WHERE creator_role = $1 AND created_at >= NOW() - INTERVAL '30 days'`
	var rate float64
	if err := r.pool.QueryRow(ctx, query, creatorRole).Scan(&rate); err != nil {
		return 0, err
	}
	return rate, nil
}
