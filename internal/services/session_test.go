package services

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"typedrill-backend/internal/generator"
	"typedrill-backend/internal/models"
)

// fakeStore is an in-memory SessionStore + StatisticsStore mirroring the
// Postgres repo's contract, including the partial unique index on active
// sessions and the status guard on completion.
type fakeStore struct {
	sessions   map[uuid.UUID]*models.PracticeSession
	keystrokes map[uuid.UUID][]models.KeystrokeResult
	stats      map[uuid.UUID]*models.UserStatistics

	// hideActive makes FindActive miss an existing active session, simulating
	// the window between two concurrent existence checks.
	hideActive bool

	lastHistoryLimit int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		sessions:   make(map[uuid.UUID]*models.PracticeSession),
		keystrokes: make(map[uuid.UUID][]models.KeystrokeResult),
		stats:      make(map[uuid.UUID]*models.UserStatistics),
	}
}

func (f *fakeStore) Create(ctx context.Context, s *models.PracticeSession) error {
	for _, existing := range f.sessions {
		if existing.UserID == s.UserID && existing.Status == models.SessionInProgress {
			return &pgconn.PgError{Code: uniqueViolation, ConstraintName: "practice_sessions_one_active_per_user"}
		}
	}
	s.ID = uuid.New()
	s.Status = models.SessionInProgress
	s.StartedAt = time.Now()
	f.sessions[s.ID] = s
	return nil
}

func (f *fakeStore) GetByID(ctx context.Context, id uuid.UUID) (*models.PracticeSession, error) {
	s, ok := f.sessions[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := *s
	return &copied, nil
}

func (f *fakeStore) FindActive(ctx context.Context, userID uuid.UUID) (*models.PracticeSession, error) {
	if f.hideActive {
		return nil, pgx.ErrNoRows
	}
	for _, s := range f.sessions {
		if s.UserID == userID && s.Status == models.SessionInProgress {
			copied := *s
			return &copied, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (f *fakeStore) InsertKeystroke(ctx context.Context, k *models.KeystrokeResult) error {
	k.ID = uuid.New()
	k.RecordedAt = time.Now()
	f.keystrokes[k.SessionID] = append(f.keystrokes[k.SessionID], *k)
	return nil
}

func (f *fakeStore) ListKeystrokes(ctx context.Context, sessionID uuid.UUID) ([]models.KeystrokeResult, error) {
	return append([]models.KeystrokeResult(nil), f.keystrokes[sessionID]...), nil
}

func (f *fakeStore) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.HistoryEntry, error) {
	f.lastHistoryLimit = limit
	entries := make([]models.HistoryEntry, 0)
	for _, s := range f.sessions {
		if s.UserID == userID {
			entries = append(entries, models.HistoryEntry{Session: *s, KeystrokeCount: len(f.keystrokes[s.ID])})
		}
	}
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func (f *fakeStore) CompleteWithStatistics(ctx context.Context, sessionID uuid.UUID, endedAt time.Time, agg *models.UserStatistics) (bool, error) {
	s, ok := f.sessions[sessionID]
	if !ok || s.Status != models.SessionInProgress {
		return false, nil
	}
	s.Status = models.SessionCompleted
	s.EndedAt = &endedAt
	copied := *agg
	f.stats[agg.UserID] = &copied
	return true, nil
}

func (f *fakeStore) Get(ctx context.Context, userID uuid.UUID) (*models.UserStatistics, error) {
	s, ok := f.stats[userID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := *s
	return &copied, nil
}

func newTestService(store *fakeStore) *SessionService {
	return NewSessionService(store, store, generator.NewSeeded(1), nil, 200, 60)
}

func provisionUser(store *fakeStore) uuid.UUID {
	userID := uuid.New()
	store.stats[userID] = &models.UserStatistics{UserID: userID}
	return userID
}

func press(correct bool, responseMs int) models.KeystrokeEvent {
	key := "a"
	return models.KeystrokeEvent{TargetKey: "a", PressedKey: &key, IsCorrect: correct, ResponseTimeMs: responseMs}
}

func TestStartCreatesSession(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)
	userID := provisionUser(store)

	session, err := svc.Start(context.Background(), userID)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if session.Status != models.SessionInProgress {
		t.Errorf("Expected status in_progress, got %q", session.Status)
	}
	if len(session.TargetSequence) != 200 {
		t.Errorf("Expected 200-key target sequence, got %d", len(session.TargetSequence))
	}
	if session.NominalDurationSeconds != 60 {
		t.Errorf("Expected nominal duration 60, got %d", session.NominalDurationSeconds)
	}
}

func TestStartRejectsSecondActiveSession(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)
	userID := provisionUser(store)

	if _, err := svc.Start(context.Background(), userID); err != nil {
		t.Fatalf("First start failed: %v", err)
	}

	_, err := svc.Start(context.Background(), userID)
	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("Expected ConflictError for second start, got %v", err)
	}

	active := 0
	for _, s := range store.sessions {
		if s.UserID == userID && s.Status == models.SessionInProgress {
			active++
		}
	}
	if active != 1 {
		t.Errorf("Expected exactly 1 active session, got %d", active)
	}
}

func TestStartUniqueIndexClosesCheckRace(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)
	userID := provisionUser(store)

	if _, err := svc.Start(context.Background(), userID); err != nil {
		t.Fatalf("First start failed: %v", err)
	}

	// The existence check misses the active session, as under two concurrent
	// starts. The store-level unique index must still reject the insert.
	store.hideActive = true

	_, err := svc.Start(context.Background(), userID)
	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("Expected ConflictError from unique index, got %v", err)
	}
}

func TestRecordKeystrokeValidation(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)
	userID := provisionUser(store)

	session, err := svc.Start(context.Background(), userID)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	long := "ab"
	tests := []struct {
		name  string
		event models.KeystrokeEvent
		field string
	}{
		{"zero response time", models.KeystrokeEvent{TargetKey: "a", ResponseTimeMs: 0}, "response_time_ms"},
		{"negative response time", models.KeystrokeEvent{TargetKey: "a", ResponseTimeMs: -5}, "response_time_ms"},
		{"empty target key", models.KeystrokeEvent{TargetKey: "", ResponseTimeMs: 100}, "target_key"},
		{"multi-char target key", models.KeystrokeEvent{TargetKey: "ab", ResponseTimeMs: 100}, "target_key"},
		{"multi-char pressed key", models.KeystrokeEvent{TargetKey: "a", PressedKey: &long, ResponseTimeMs: 100}, "pressed_key"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.RecordKeystroke(context.Background(), session.ID, userID, tc.event)
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("Expected ValidationError, got %v", err)
			}
			if _, ok := ve.Fields[tc.field]; !ok {
				t.Errorf("Expected field error on %q, got %v", tc.field, ve.Fields)
			}
		})
	}
}

func TestRecordKeystrokeAllowsTimeout(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)
	userID := provisionUser(store)

	session, _ := svc.Start(context.Background(), userID)

	// nil pressed key represents a timed-out prompt
	result, err := svc.RecordKeystroke(context.Background(), session.ID, userID, models.KeystrokeEvent{
		TargetKey:      "q",
		PressedKey:     nil,
		IsCorrect:      false,
		ResponseTimeMs: 2000,
	})
	if err != nil {
		t.Fatalf("RecordKeystroke failed: %v", err)
	}
	if result.PressedKey != nil {
		t.Errorf("Expected nil pressed key, got %v", *result.PressedKey)
	}
}

func TestRecordKeystrokeOwnership(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)
	owner := provisionUser(store)
	intruder := provisionUser(store)

	session, _ := svc.Start(context.Background(), owner)

	_, err := svc.RecordKeystroke(context.Background(), session.ID, intruder, press(true, 100))
	var forbidden *ForbiddenError
	if !errors.As(err, &forbidden) {
		t.Fatalf("Expected ForbiddenError, got %v", err)
	}
}

func TestRecordKeystrokeUnknownSession(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)
	userID := provisionUser(store)

	_, err := svc.RecordKeystroke(context.Background(), uuid.New(), userID, press(true, 100))
	var notFound *NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("Expected NotFoundError, got %v", err)
	}
}

func TestEndRejectsZeroKeystrokes(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)
	userID := provisionUser(store)

	session, _ := svc.Start(context.Background(), userID)

	_, err := svc.End(context.Background(), session.ID, userID)
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("Expected ValidationError for empty session, got %v", err)
	}

	// Nothing may have mutated: session still open, statistics untouched.
	stored := store.sessions[session.ID]
	if stored.Status != models.SessionInProgress {
		t.Errorf("Expected session to remain in_progress, got %q", stored.Status)
	}
	agg, _ := store.Get(context.Background(), userID)
	if agg.TotalSessions != 0 {
		t.Errorf("Expected statistics untouched, got %d sessions", agg.TotalSessions)
	}
}

func TestEndToEndScenario(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)
	userID := provisionUser(store)
	ctx := context.Background()

	session, err := svc.Start(ctx, userID)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// 20 keystrokes: 18 correct, 2 incorrect, response times averaging 250ms.
	for i := 0; i < 20; i++ {
		rt := 250
		if i == 0 {
			rt = 200
		}
		if i == 1 {
			rt = 300
		}
		if _, err := svc.RecordKeystroke(ctx, session.ID, userID, press(i >= 2, rt)); err != nil {
			t.Fatalf("RecordKeystroke %d failed: %v", i, err)
		}
	}

	result, err := svc.End(ctx, session.ID, userID)
	if err != nil {
		t.Fatalf("End failed: %v", err)
	}

	if result.Summary.TotalKeyPresses != 20 {
		t.Errorf("Expected 20 key presses, got %d", result.Summary.TotalKeyPresses)
	}
	if result.Summary.CorrectKeyPresses != 18 {
		t.Errorf("Expected 18 correct presses, got %d", result.Summary.CorrectKeyPresses)
	}
	if math.Abs(result.Summary.AccuracyPercent-90.0) > 1e-9 {
		t.Errorf("Expected accuracy 90.0, got %v", result.Summary.AccuracyPercent)
	}
	if math.Abs(result.Summary.KPM-18) > 1e-9 {
		t.Errorf("Expected KPM 18, got %v", result.Summary.KPM)
	}
	if math.Abs(result.Summary.AverageResponseTimeMs-250) > 1e-9 {
		t.Errorf("Expected average response time 250, got %v", result.Summary.AverageResponseTimeMs)
	}

	agg := result.UpdatedStatistics
	if agg.TotalSessions != 1 {
		t.Errorf("Expected 1 total session in aggregate, got %d", agg.TotalSessions)
	}
	if math.Abs(agg.AverageKPM-18) > 1e-9 {
		t.Errorf("Expected average KPM 18 after first fold, got %v", agg.AverageKPM)
	}

	persisted, _ := store.Get(ctx, userID)
	if persisted.TotalSessions != 1 {
		t.Errorf("Expected persisted aggregate with 1 session, got %d", persisted.TotalSessions)
	}
}

func TestEndFreezesSession(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)
	userID := provisionUser(store)
	ctx := context.Background()

	session, _ := svc.Start(ctx, userID)
	svc.RecordKeystroke(ctx, session.ID, userID, press(true, 100))

	if _, err := svc.End(ctx, session.ID, userID); err != nil {
		t.Fatalf("End failed: %v", err)
	}

	// Further keystrokes must be rejected and the count frozen.
	_, err := svc.RecordKeystroke(ctx, session.ID, userID, press(true, 100))
	var invalid *InvalidStateError
	if !errors.As(err, &invalid) {
		t.Fatalf("Expected InvalidStateError after close, got %v", err)
	}
	if len(store.keystrokes[session.ID]) != 1 {
		t.Errorf("Expected keystroke count frozen at 1, got %d", len(store.keystrokes[session.ID]))
	}

	// A second End must fail and must not fold again.
	_, err = svc.End(ctx, session.ID, userID)
	if !errors.As(err, &invalid) {
		t.Fatalf("Expected InvalidStateError on double end, got %v", err)
	}
	agg, _ := store.Get(ctx, userID)
	if agg.TotalSessions != 1 {
		t.Errorf("Expected exactly one fold, got %d", agg.TotalSessions)
	}
}

func TestEndOwnership(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)
	owner := provisionUser(store)
	intruder := provisionUser(store)
	ctx := context.Background()

	session, _ := svc.Start(ctx, owner)
	svc.RecordKeystroke(ctx, session.ID, owner, press(true, 100))

	_, err := svc.End(ctx, session.ID, intruder)
	var forbidden *ForbiddenError
	if !errors.As(err, &forbidden) {
		t.Fatalf("Expected ForbiddenError, got %v", err)
	}

	if _, err := svc.Get(ctx, session.ID, intruder); !errors.As(err, &forbidden) {
		t.Errorf("Expected ForbiddenError from Get, got %v", err)
	}
}

func TestEndWithoutStatisticsRowIsFatal(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)
	userID := uuid.New() // never provisioned
	ctx := context.Background()

	session, _ := svc.Start(ctx, userID)
	svc.RecordKeystroke(ctx, session.ID, userID, press(true, 100))

	_, err := svc.End(ctx, session.ID, userID)
	var fatal *FatalError
	if !errors.As(err, &fatal) {
		t.Fatalf("Expected FatalError for missing statistics row, got %v", err)
	}
}

func TestHistoryLimits(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)
	userID := provisionUser(store)
	ctx := context.Background()

	if _, err := svc.History(ctx, userID, 0); err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if store.lastHistoryLimit != 10 {
		t.Errorf("Expected default limit 10, got %d", store.lastHistoryLimit)
	}

	if _, err := svc.History(ctx, userID, 5000); err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if store.lastHistoryLimit != 100 {
		t.Errorf("Expected limit capped at 100, got %d", store.lastHistoryLimit)
	}

	if _, err := svc.History(ctx, userID, 25); err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if store.lastHistoryLimit != 25 {
		t.Errorf("Expected caller limit 25, got %d", store.lastHistoryLimit)
	}
}
