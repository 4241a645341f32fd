package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"typedrill-backend/internal/models"
)

type StatsRepo struct {
	pool *pgxpool.Pool
}

func NewStatsRepo(pool *pgxpool.Pool) *StatsRepo {
	return &StatsRepo{pool: pool}
}

func (r *StatsRepo) Get(ctx context.Context, userID uuid.UUID) (*models.UserStatistics, error) {
	s := &models.UserStatistics{}
	query := `SELECT user_id, total_sessions, total_key_presses, correct_key_presses,
			average_kpm, best_kpm, average_accuracy, best_accuracy,
			average_response_time_ms, best_response_time_ms, last_session_at
		FROM user_statistics WHERE user_id = $1`

	err := r.pool.QueryRow(ctx, query, userID).Scan(
		&s.UserID, &s.TotalSessions, &s.TotalKeyPresses, &s.CorrectKeyPresses,
		&s.AverageKPM, &s.BestKPM, &s.AverageAccuracy, &s.BestAccuracy,
		&s.AverageResponseTimeMs, &s.BestResponseTimeMs, &s.LastSessionAt,
	)
	if err != nil {
		return nil, err
	}
	return s, nil
}
