package models

import (
	"time"

	"github.com/google/uuid"
)

// UserStatistics is the lifetime aggregate for one user, one row per user,
// created with zero values at registration. BestResponseTimeMs uses 0 as a
// "never set" sentinel; it is adopted from the first fold and minimized
// afterwards.
type UserStatistics struct {
	UserID                uuid.UUID  `json:"user_id"`
	TotalSessions         int        `json:"total_sessions"`
	TotalKeyPresses       int        `json:"total_key_presses"`
	CorrectKeyPresses     int        `json:"correct_key_presses"`
	AverageKPM            float64    `json:"average_kpm"`
	BestKPM               float64    `json:"best_kpm"`
	AverageAccuracy       float64    `json:"average_accuracy"`
	BestAccuracy          float64    `json:"best_accuracy"`
	AverageResponseTimeMs float64    `json:"average_response_time_ms"`
	BestResponseTimeMs    float64    `json:"best_response_time_ms"`
	LastSessionAt         *time.Time `json:"last_session_at"`
}
