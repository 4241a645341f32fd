// Package stats derives per-session typing metrics and folds them into a
// user's lifetime aggregate. All functions are pure; persistence and
// transaction boundaries belong to the caller.
package stats

import (
	"time"

	"typedrill-backend/internal/models"
)

// Summarize computes the metrics for one closed session from its ordered
// keystroke results. KPM counts correct presses only and is normalized
// against the session's nominal duration, not the wall-clock time the client
// actually took. The caller must guarantee results is non-empty; every metric
// has a zero denominator otherwise.
func Summarize(results []models.KeystrokeResult, nominalDurationSeconds int) models.SessionSummary {
	total := len(results)
	correct := 0
	var responseSum float64
	for _, r := range results {
		if r.IsCorrect {
			correct++
		}
		responseSum += float64(r.ResponseTimeMs)
	}

	minutes := float64(nominalDurationSeconds) / 60.0

	return models.SessionSummary{
		TotalKeyPresses:       total,
		CorrectKeyPresses:     correct,
		AccuracyPercent:       100 * float64(correct) / float64(total),
		KPM:                   float64(correct) / minutes,
		AverageResponseTimeMs: responseSum / float64(total),
	}
}

// Fold combines one session summary into the running aggregate and returns
// the updated copy; the input is not mutated. Each session contributes one
// unit to the running means regardless of how many keystrokes it held:
// avg' = (avg*n + x) / (n+1) with n the pre-increment session count.
func Fold(s models.UserStatistics, summary models.SessionSummary, now time.Time) models.UserStatistics {
	n := float64(s.TotalSessions)

	s.TotalSessions++
	s.TotalKeyPresses += summary.TotalKeyPresses
	s.CorrectKeyPresses += summary.CorrectKeyPresses

	s.AverageKPM = (s.AverageKPM*n + summary.KPM) / (n + 1)
	s.AverageAccuracy = (s.AverageAccuracy*n + summary.AccuracyPercent) / (n + 1)
	s.AverageResponseTimeMs = (s.AverageResponseTimeMs*n + summary.AverageResponseTimeMs) / (n + 1)

	if summary.KPM > s.BestKPM {
		s.BestKPM = summary.KPM
	}
	if summary.AccuracyPercent > s.BestAccuracy {
		s.BestAccuracy = summary.AccuracyPercent
	}

	// 0 means no session has ever been folded; the first average becomes the
	// best unconditionally. Lower is better afterwards.
	if s.BestResponseTimeMs == 0 || summary.AverageResponseTimeMs < s.BestResponseTimeMs {
		s.BestResponseTimeMs = summary.AverageResponseTimeMs
	}

	s.LastSessionAt = &now
	return s
}
