package stats

import (
	"math"
	"testing"
	"time"

	"typedrill-backend/internal/models"
)

func result(correct bool, responseMs int) models.KeystrokeResult {
	return models.KeystrokeResult{TargetKey: "a", IsCorrect: correct, ResponseTimeMs: responseMs}
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestSummarize(t *testing.T) {
	results := []models.KeystrokeResult{
		result(true, 100),
		result(false, 200),
		result(true, 300),
	}

	s := Summarize(results, 60)

	if s.TotalKeyPresses != 3 {
		t.Errorf("Expected 3 total key presses, got %d", s.TotalKeyPresses)
	}
	if s.CorrectKeyPresses != 2 {
		t.Errorf("Expected 2 correct key presses, got %d", s.CorrectKeyPresses)
	}
	if !almostEqual(s.AccuracyPercent, 200.0/3.0) {
		t.Errorf("Expected accuracy 66.666..., got %v", s.AccuracyPercent)
	}
	if !almostEqual(s.AverageResponseTimeMs, 200) {
		t.Errorf("Expected average response time 200ms, got %v", s.AverageResponseTimeMs)
	}
	if !almostEqual(s.KPM, 2) {
		t.Errorf("Expected KPM 2, got %v", s.KPM)
	}
}

func TestSummarizeUsesNominalDuration(t *testing.T) {
	results := []models.KeystrokeResult{
		result(true, 100),
		result(true, 100),
		result(true, 100),
	}

	// 3 correct presses over a nominal 30 seconds is 6 per minute, no matter
	// how long the client actually took.
	s := Summarize(results, 30)
	if !almostEqual(s.KPM, 6) {
		t.Errorf("Expected KPM 6 for 30s nominal duration, got %v", s.KPM)
	}
}

func TestFoldFirstSession(t *testing.T) {
	now := time.Now()
	summary := models.SessionSummary{
		TotalKeyPresses:       20,
		CorrectKeyPresses:     18,
		AccuracyPercent:       90,
		KPM:                   18,
		AverageResponseTimeMs: 250,
	}

	updated := Fold(models.UserStatistics{}, summary, now)

	if updated.TotalSessions != 1 {
		t.Errorf("Expected 1 total session, got %d", updated.TotalSessions)
	}
	if updated.TotalKeyPresses != 20 || updated.CorrectKeyPresses != 18 {
		t.Errorf("Expected counters 20/18, got %d/%d", updated.TotalKeyPresses, updated.CorrectKeyPresses)
	}
	if !almostEqual(updated.AverageKPM, 18) || !almostEqual(updated.BestKPM, 18) {
		t.Errorf("Expected average and best KPM 18, got %v/%v", updated.AverageKPM, updated.BestKPM)
	}
	if !almostEqual(updated.AverageAccuracy, 90) || !almostEqual(updated.BestAccuracy, 90) {
		t.Errorf("Expected average and best accuracy 90, got %v/%v", updated.AverageAccuracy, updated.BestAccuracy)
	}
	// First fold adopts the response time even though the sentinel 0 would
	// win a plain minimum.
	if !almostEqual(updated.BestResponseTimeMs, 250) {
		t.Errorf("Expected best response time 250 after first fold, got %v", updated.BestResponseTimeMs)
	}
	if updated.LastSessionAt == nil || !updated.LastSessionAt.Equal(now) {
		t.Errorf("Expected last session timestamp %v, got %v", now, updated.LastSessionAt)
	}
}

func TestFoldDoesNotMutateInput(t *testing.T) {
	prior := models.UserStatistics{TotalSessions: 3, AverageKPM: 40, BestKPM: 55}
	_ = Fold(prior, models.SessionSummary{KPM: 90, AccuracyPercent: 80, AverageResponseTimeMs: 150}, time.Now())

	if prior.TotalSessions != 3 || prior.AverageKPM != 40 || prior.BestKPM != 55 {
		t.Errorf("Fold mutated its input: %+v", prior)
	}
}

func TestFoldIncrementalMeanMatchesDirectMean(t *testing.T) {
	sessions := []models.SessionSummary{
		{KPM: 10, AccuracyPercent: 50, AverageResponseTimeMs: 400},
		{KPM: 30, AccuracyPercent: 90, AverageResponseTimeMs: 200},
		{KPM: 25, AccuracyPercent: 75, AverageResponseTimeMs: 310},
		{KPM: 60, AccuracyPercent: 100, AverageResponseTimeMs: 120},
		{KPM: 5, AccuracyPercent: 20, AverageResponseTimeMs: 900},
	}

	agg := models.UserStatistics{}
	var kpmSum, accSum, rtSum float64
	for i, summary := range sessions {
		agg = Fold(agg, summary, time.Now())
		kpmSum += summary.KPM
		accSum += summary.AccuracyPercent
		rtSum += summary.AverageResponseTimeMs

		k := float64(i + 1)
		if !almostEqual(agg.AverageKPM, kpmSum/k) {
			t.Errorf("After %d folds: average KPM %v, want %v", i+1, agg.AverageKPM, kpmSum/k)
		}
		if !almostEqual(agg.AverageAccuracy, accSum/k) {
			t.Errorf("After %d folds: average accuracy %v, want %v", i+1, agg.AverageAccuracy, accSum/k)
		}
		if !almostEqual(agg.AverageResponseTimeMs, rtSum/k) {
			t.Errorf("After %d folds: average response time %v, want %v", i+1, agg.AverageResponseTimeMs, rtSum/k)
		}
	}
}

func TestFoldBestFieldMonotonicity(t *testing.T) {
	sessions := []models.SessionSummary{
		{KPM: 30, AccuracyPercent: 80, AverageResponseTimeMs: 300},
		{KPM: 10, AccuracyPercent: 95, AverageResponseTimeMs: 500},
		{KPM: 45, AccuracyPercent: 60, AverageResponseTimeMs: 180},
		{KPM: 20, AccuracyPercent: 70, AverageResponseTimeMs: 250},
	}

	agg := models.UserStatistics{}
	for i, summary := range sessions {
		prevBestKPM := agg.BestKPM
		prevBestAcc := agg.BestAccuracy
		prevBestRT := agg.BestResponseTimeMs

		agg = Fold(agg, summary, time.Now())

		if agg.BestKPM < prevBestKPM {
			t.Errorf("Fold %d: best KPM decreased from %v to %v", i+1, prevBestKPM, agg.BestKPM)
		}
		if agg.BestAccuracy < prevBestAcc {
			t.Errorf("Fold %d: best accuracy decreased from %v to %v", i+1, prevBestAcc, agg.BestAccuracy)
		}
		if i > 0 && agg.BestResponseTimeMs > prevBestRT {
			t.Errorf("Fold %d: best response time increased from %v to %v", i+1, prevBestRT, agg.BestResponseTimeMs)
		}
	}

	if !almostEqual(agg.BestKPM, 45) {
		t.Errorf("Expected final best KPM 45, got %v", agg.BestKPM)
	}
	if !almostEqual(agg.BestAccuracy, 95) {
		t.Errorf("Expected final best accuracy 95, got %v", agg.BestAccuracy)
	}
	if !almostEqual(agg.BestResponseTimeMs, 180) {
		t.Errorf("Expected final best response time 180, got %v", agg.BestResponseTimeMs)
	}
}

func TestFoldSlowFirstSessionStillBecomesBestResponseTime(t *testing.T) {
	agg := Fold(models.UserStatistics{}, models.SessionSummary{AverageResponseTimeMs: 5000}, time.Now())
	if !almostEqual(agg.BestResponseTimeMs, 5000) {
		t.Errorf("Expected first fold to set best response time 5000, got %v", agg.BestResponseTimeMs)
	}

	agg = Fold(agg, models.SessionSummary{AverageResponseTimeMs: 6000}, time.Now())
	if !almostEqual(agg.BestResponseTimeMs, 5000) {
		t.Errorf("Expected best response time to stay 5000, got %v", agg.BestResponseTimeMs)
	}
}
