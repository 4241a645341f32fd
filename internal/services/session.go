package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"

	"typedrill-backend/internal/generator"
	"typedrill-backend/internal/models"
	"typedrill-backend/internal/stats"
)

const (
	defaultHistoryLimit = 10
	maxHistoryLimit     = 100

	uniqueViolation = "23505"
)

// SessionStore is the persistence surface the session lifecycle needs.
type SessionStore interface {
	Create(ctx context.Context, s *models.PracticeSession) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.PracticeSession, error)
	FindActive(ctx context.Context, userID uuid.UUID) (*models.PracticeSession, error)
	InsertKeystroke(ctx context.Context, k *models.KeystrokeResult) error
	ListKeystrokes(ctx context.Context, sessionID uuid.UUID) ([]models.KeystrokeResult, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.HistoryEntry, error)
	CompleteWithStatistics(ctx context.Context, sessionID uuid.UUID, endedAt time.Time, agg *models.UserStatistics) (bool, error)
}

// StatisticsStore reads the per-user aggregate; writes happen inside the
// session close transaction via SessionStore.CompleteWithStatistics.
type StatisticsStore interface {
	Get(ctx context.Context, userID uuid.UUID) (*models.UserStatistics, error)
}

// SessionService orchestrates the practice session lifecycle: start, keystroke
// recording, close with statistics fold, and the read-only accessors.
type SessionService struct {
	sessions        SessionStore
	statistics      StatisticsStore
	gen             *generator.Generator
	pubsub          *redis.Client
	keyCount        int
	durationSeconds int
}

func NewSessionService(sessions SessionStore, statistics StatisticsStore, gen *generator.Generator, pubsub *redis.Client, keyCount, durationSeconds int) *SessionService {
	return &SessionService{
		sessions:        sessions,
		statistics:      statistics,
		gen:             gen,
		pubsub:          pubsub,
		keyCount:        keyCount,
		durationSeconds: durationSeconds,
	}
}

// Start creates a new in_progress session with a freshly generated target
// sequence. A user with an active session must end or abandon it first. The
// existence check is the business-rule gate; the store's partial unique index
// closes the race between concurrent starts.
func (s *SessionService) Start(ctx context.Context, userID uuid.UUID) (*models.PracticeSession, error) {
	_, err := s.sessions.FindActive(ctx, userID)
	if err == nil {
		return nil, &ConflictError{Message: "An active session already exists. End it before starting a new one."}
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	session := &models.PracticeSession{
		UserID:                 userID,
		TargetSequence:         s.gen.Sequence(s.keyCount),
		NominalDurationSeconds: s.durationSeconds,
	}

	if err := s.sessions.Create(ctx, session); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, &ConflictError{Message: "An active session already exists. End it before starting a new one."}
		}
		return nil, err
	}

	return session, nil
}

// RecordKeystroke appends one keystroke result to the caller's in_progress
// session. The session itself is not touched; metrics are computed in bulk
// at End.
func (s *SessionService) RecordKeystroke(ctx context.Context, sessionID, callerID uuid.UUID, event models.KeystrokeEvent) (*models.KeystrokeResult, error) {
	session, err := s.loadOwned(ctx, sessionID, callerID)
	if err != nil {
		return nil, err
	}
	if session.Status != models.SessionInProgress {
		return nil, &InvalidStateError{Message: fmt.Sprintf("Cannot record keystrokes on a %s session", session.Status)}
	}

	if err := validateKeystroke(event); err != nil {
		return nil, err
	}

	result := &models.KeystrokeResult{
		SessionID:      sessionID,
		TargetKey:      event.TargetKey,
		PressedKey:     event.PressedKey,
		IsCorrect:      event.IsCorrect,
		ResponseTimeMs: event.ResponseTimeMs,
	}

	if err := s.sessions.InsertKeystroke(ctx, result); err != nil {
		return nil, err
	}

	return result, nil
}

// End closes the caller's session: derive the summary from the recorded
// keystrokes, mark the session completed and fold the summary into the
// user's aggregate. The completion write and the statistics write share one
// transaction guarded by the in_progress status, so a session folds into the
// aggregate exactly once.
func (s *SessionService) End(ctx context.Context, sessionID, callerID uuid.UUID) (*models.EndSessionResult, error) {
	session, err := s.loadOwned(ctx, sessionID, callerID)
	if err != nil {
		return nil, err
	}
	if session.Status != models.SessionInProgress {
		return nil, &InvalidStateError{Message: fmt.Sprintf("Cannot end a %s session", session.Status)}
	}

	results, err := s.sessions.ListKeystrokes(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, &ValidationError{Fields: map[string]string{"keystrokes": "No keystrokes recorded"}}
	}

	summary := stats.Summarize(results, session.NominalDurationSeconds)

	current, err := s.statistics.Get(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &FatalError{Message: fmt.Sprintf("User %s has no statistics row", session.UserID)}
		}
		return nil, err
	}

	now := time.Now()
	updated := stats.Fold(*current, summary, now)

	closed, err := s.sessions.CompleteWithStatistics(ctx, sessionID, now, &updated)
	if err != nil {
		return nil, err
	}
	if !closed {
		return nil, &InvalidStateError{Message: "Session is no longer in progress"}
	}

	s.publishStatistics(ctx, session.UserID, &updated)

	return &models.EndSessionResult{
		SessionID:         sessionID,
		Summary:           summary,
		UpdatedStatistics: &updated,
	}, nil
}

// Get returns the caller's session with its ordered keystroke list.
func (s *SessionService) Get(ctx context.Context, sessionID, callerID uuid.UUID) (*models.SessionDetail, error) {
	session, err := s.loadOwned(ctx, sessionID, callerID)
	if err != nil {
		return nil, err
	}

	keystrokes, err := s.sessions.ListKeystrokes(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	return &models.SessionDetail{Session: *session, Keystrokes: keystrokes}, nil
}

// History returns the caller's sessions newest-first with keystroke counts.
// limit <= 0 falls back to the default; the cap keeps a single request from
// dragging a user's whole history.
func (s *SessionService) History(ctx context.Context, userID uuid.UUID, limit int) ([]models.HistoryEntry, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	return s.sessions.ListByUser(ctx, userID, limit)
}

func (s *SessionService) loadOwned(ctx context.Context, sessionID, callerID uuid.UUID) (*models.PracticeSession, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &NotFoundError{Message: "Session not found"}
		}
		return nil, err
	}
	if session.UserID != callerID {
		return nil, &ForbiddenError{Message: "Session belongs to another user"}
	}
	return session, nil
}

func (s *SessionService) publishStatistics(ctx context.Context, userID uuid.UUID, agg *models.UserStatistics) {
	if s.pubsub == nil {
		return
	}
	payload, err := json.Marshal(map[string]interface{}{
		"type":       "statistics_updated",
		"statistics": agg,
	})
	if err != nil {
		return
	}
	s.pubsub.Publish(ctx, "user_updates:"+userID.String(), payload)
}

func validateKeystroke(event models.KeystrokeEvent) error {
	fieldErrors := make(map[string]string)

	if len([]rune(event.TargetKey)) != 1 {
		fieldErrors["target_key"] = "Target key must be exactly one character"
	}
	if event.PressedKey != nil && len([]rune(*event.PressedKey)) != 1 {
		fieldErrors["pressed_key"] = "Pressed key must be exactly one character when present"
	}
	if event.ResponseTimeMs <= 0 {
		fieldErrors["response_time_ms"] = "Response time must be a positive number of milliseconds"
	}

	if len(fieldErrors) > 0 {
		return &ValidationError{Fields: fieldErrors}
	}
	return nil
}
