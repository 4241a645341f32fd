package models

import (
	"time"

	"github.com/google/uuid"
)

// Session status values. A session leaves in_progress exactly once, either
// through an explicit end or the stale-session sweeper.
const (
	SessionInProgress = "in_progress"
	SessionCompleted  = "completed"
	SessionAbandoned  = "abandoned"
)

type PracticeSession struct {
	ID                     uuid.UUID  `json:"id"`
	UserID                 uuid.UUID  `json:"user_id"`
	TargetSequence         string     `json:"target_sequence"`
	NominalDurationSeconds int        `json:"nominal_duration_seconds"`
	Status                 string     `json:"status"`
	StartedAt              time.Time  `json:"started_at"`
	EndedAt                *time.Time `json:"ended_at,omitempty"`
}

type KeystrokeResult struct {
	ID             uuid.UUID `json:"id"`
	SessionID      uuid.UUID `json:"session_id"`
	TargetKey      string    `json:"target_key"`
	PressedKey     *string   `json:"pressed_key"`
	IsCorrect      bool      `json:"is_correct"`
	ResponseTimeMs int       `json:"response_time_ms"`
	RecordedAt     time.Time `json:"recorded_at"`
}

// KeystrokeEvent is the client-supplied payload for one keystroke. PressedKey
// is nil when the key timed out. IsCorrect is asserted by the client and
// stored as-is.
type KeystrokeEvent struct {
	TargetKey      string  `json:"target_key"`
	PressedKey     *string `json:"pressed_key"`
	IsCorrect      bool    `json:"is_correct"`
	ResponseTimeMs int     `json:"response_time_ms"`
}

// SessionSummary holds the metrics derived from one completed session.
type SessionSummary struct {
	TotalKeyPresses       int     `json:"total_key_presses"`
	CorrectKeyPresses     int     `json:"correct_key_presses"`
	AccuracyPercent       float64 `json:"accuracy_percent"`
	KPM                   float64 `json:"kpm"`
	AverageResponseTimeMs float64 `json:"average_response_time_ms"`
}

// EndSessionResult is returned by a session close: the session's own metrics
// plus the aggregate after the fold.
type EndSessionResult struct {
	SessionID         uuid.UUID       `json:"session_id"`
	Summary           SessionSummary  `json:"summary"`
	UpdatedStatistics *UserStatistics `json:"updated_statistics"`
}

// HistoryEntry is one row of a user's session history.
type HistoryEntry struct {
	Session        PracticeSession `json:"session"`
	KeystrokeCount int             `json:"keystroke_count"`
}

// SessionDetail is a session with its full ordered keystroke list.
type SessionDetail struct {
	Session    PracticeSession   `json:"session"`
	Keystrokes []KeystrokeResult `json:"keystrokes"`
}
