package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"typedrill-backend/internal/models"
)

type SessionRepo struct {
	pool *pgxpool.Pool
}

func NewSessionRepo(pool *pgxpool.Pool) *SessionRepo {
	return &SessionRepo{pool: pool}
}

// Create inserts a new in_progress session. The partial unique index on
// (user_id) WHERE status = 'in_progress' rejects a second active session for
// the same user; callers should treat a unique violation as a conflict.
func (r *SessionRepo) Create(ctx context.Context, s *models.PracticeSession) error {
	s.ID = uuid.New()
	s.Status = models.SessionInProgress

	query := `
		INSERT INTO practice_sessions (id, user_id, target_sequence, nominal_duration_seconds, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING started_at
	`

	return r.pool.QueryRow(ctx, query,
		s.ID, s.UserID, s.TargetSequence, s.NominalDurationSeconds, s.Status,
	).Scan(&s.StartedAt)
}

func (r *SessionRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.PracticeSession, error) {
	s := &models.PracticeSession{}
	query := `SELECT id, user_id, target_sequence, nominal_duration_seconds, status, started_at, ended_at
		FROM practice_sessions WHERE id = $1`

	err := r.pool.QueryRow(ctx, query, id).Scan(
		&s.ID, &s.UserID, &s.TargetSequence, &s.NominalDurationSeconds, &s.Status, &s.StartedAt, &s.EndedAt,
	)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// FindActive returns the user's in_progress session, or pgx.ErrNoRows.
func (r *SessionRepo) FindActive(ctx context.Context, userID uuid.UUID) (*models.PracticeSession, error) {
	s := &models.PracticeSession{}
	query := `SELECT id, user_id, target_sequence, nominal_duration_seconds, status, started_at, ended_at
		FROM practice_sessions WHERE user_id = $1 AND status = $2`

	err := r.pool.QueryRow(ctx, query, userID, models.SessionInProgress).Scan(
		&s.ID, &s.UserID, &s.TargetSequence, &s.NominalDurationSeconds, &s.Status, &s.StartedAt, &s.EndedAt,
	)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (r *SessionRepo) InsertKeystroke(ctx context.Context, k *models.KeystrokeResult) error {
	k.ID = uuid.New()

	query := `
		INSERT INTO keystroke_results (id, session_id, target_key, pressed_key, is_correct, response_time_ms)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING recorded_at
	`

	return r.pool.QueryRow(ctx, query,
		k.ID, k.SessionID, k.TargetKey, k.PressedKey, k.IsCorrect, k.ResponseTimeMs,
	).Scan(&k.RecordedAt)
}

// ListKeystrokes returns the session's results in recording order.
func (r *SessionRepo) ListKeystrokes(ctx context.Context, sessionID uuid.UUID) ([]models.KeystrokeResult, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, session_id, target_key, pressed_key, is_correct, response_time_ms, recorded_at
		FROM keystroke_results
		WHERE session_id = $1
		ORDER BY recorded_at, id
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]models.KeystrokeResult, 0)
	for rows.Next() {
		var k models.KeystrokeResult
		if err := rows.Scan(&k.ID, &k.SessionID, &k.TargetKey, &k.PressedKey, &k.IsCorrect, &k.ResponseTimeMs, &k.RecordedAt); err != nil {
			return nil, err
		}
		results = append(results, k)
	}

	return results, rows.Err()
}

// ListByUser returns the user's sessions newest-first, each with its
// keystroke count.
func (r *SessionRepo) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.HistoryEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT s.id, s.user_id, s.target_sequence, s.nominal_duration_seconds, s.status, s.started_at, s.ended_at,
			(SELECT COUNT(*) FROM keystroke_results k WHERE k.session_id = s.id) AS keystroke_count
		FROM practice_sessions s
		WHERE s.user_id = $1
		ORDER BY s.started_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]models.HistoryEntry, 0)
	for rows.Next() {
		var e models.HistoryEntry
		if err := rows.Scan(
			&e.Session.ID, &e.Session.UserID, &e.Session.TargetSequence, &e.Session.NominalDurationSeconds,
			&e.Session.Status, &e.Session.StartedAt, &e.Session.EndedAt, &e.KeystrokeCount,
		); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// CompleteWithStatistics closes the session and writes the folded aggregate
// in one transaction. The status guard makes the close idempotent at the
// store level: a session already out of in_progress is not flipped again and
// its statistics are not folded twice. Returns false when the guard rejected
// the update.
func (r *SessionRepo) CompleteWithStatistics(ctx context.Context, sessionID uuid.UUID, endedAt time.Time, agg *models.UserStatistics) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE practice_sessions
		SET status = $1, ended_at = $2
		WHERE id = $3 AND status = $4
	`, models.SessionCompleted, endedAt, sessionID, models.SessionInProgress)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	_, err = tx.Exec(ctx, `
		UPDATE user_statistics
		SET total_sessions = $1, total_key_presses = $2, correct_key_presses = $3,
			average_kpm = $4, best_kpm = $5, average_accuracy = $6, best_accuracy = $7,
			average_response_time_ms = $8, best_response_time_ms = $9, last_session_at = $10
		WHERE user_id = $11
	`, agg.TotalSessions, agg.TotalKeyPresses, agg.CorrectKeyPresses,
		agg.AverageKPM, agg.BestKPM, agg.AverageAccuracy, agg.BestAccuracy,
		agg.AverageResponseTimeMs, agg.BestResponseTimeMs, agg.LastSessionAt, agg.UserID)
	if err != nil {
		return false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// SweepStale demotes in_progress sessions older than the cutoff to abandoned.
// Safe to run concurrently with session closes: the status guard on both
// sides means a session transitions out of in_progress exactly once.
func (r *SessionRepo) SweepStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE practice_sessions
		SET status = $1, ended_at = NOW()
		WHERE status = $2 AND started_at < NOW() - ($3 * INTERVAL '1 second')
	`, models.SessionAbandoned, models.SessionInProgress, olderThan.Seconds())
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
