package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"typedrill-backend/internal/models"
)

// StatisticsService exposes the per-user aggregate.
type StatisticsService struct {
	statistics StatisticsStore
}

func NewStatisticsService(statistics StatisticsStore) *StatisticsService {
	return &StatisticsService{statistics: statistics}
}

// Get returns the caller's lifetime aggregate. The row is created at
// registration, so its absence is a provisioning bug, not a client error.
func (s *StatisticsService) Get(ctx context.Context, userID uuid.UUID) (*models.UserStatistics, error) {
	agg, err := s.statistics.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &FatalError{Message: fmt.Sprintf("User %s has no statistics row", userID)}
		}
		return nil, err
	}
	return agg, nil
}
