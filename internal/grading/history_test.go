package grading_test

import (
	"errors"
	"testing"

	"github.com/vidpod/vidpod-lms/internal/grading"
)

func threeAttempts() []grading.Record {
	return []grading.Record{
		{AttemptID: "a1", AttemptNumber: 1, PercentageScore: 60, Completed: true},
		{AttemptID: "a2", AttemptNumber: 2, PercentageScore: 80, Passed: true, Completed: true},
		{AttemptID: "a3", AttemptNumber: 3, PercentageScore: 40, Completed: true},
	}
}

func TestCountedScoreMethods(t *testing.T) {
	cases := []struct {
		method  grading.GradingMethod
		score   float64
		basisID string
	}{
		{grading.MethodBest, 80, "a2"},
		{grading.MethodLatest, 40, "a3"},
		{grading.MethodFirst, 60, "a1"},
		{grading.MethodAverage, 60, "a3"}, // basis is the latest attempt
	}
	for _, tc := range cases {
		c, err := grading.CountedScore(tc.method, 70, threeAttempts())
		if err != nil {
			t.Fatalf("%s: %v", tc.method, err)
		}
		if c.PercentageScore != tc.score {
			t.Errorf("%s: score=%v want %v", tc.method, c.PercentageScore, tc.score)
		}
		if c.Basis.AttemptID != tc.basisID {
			t.Errorf("%s: basis=%s want %s", tc.method, c.Basis.AttemptID, tc.basisID)
		}
		if c.CountedAttempts != 3 {
			t.Errorf("%s: counted=%d want 3", tc.method, c.CountedAttempts)
		}
	}
}

func TestCountedScoreBestTieKeepsEarliest(t *testing.T) {
	records := []grading.Record{
		{AttemptID: "a1", AttemptNumber: 1, PercentageScore: 85, Passed: true, Completed: true},
		{AttemptID: "a2", AttemptNumber: 2, PercentageScore: 85, Passed: true, Completed: true},
	}
	c, err := grading.CountedScore(grading.MethodBest, 70, records)
	if err != nil {
		t.Fatalf("counted: %v", err)
	}
	if c.Basis.AttemptID != "a1" {
		t.Fatalf("tie must keep the earliest attempt, got %s", c.Basis.AttemptID)
	}
}

func TestCountedScoreFiltersPracticeAndUnfinished(t *testing.T) {
	records := []grading.Record{
		{AttemptID: "p1", AttemptNumber: 1, PercentageScore: 100, IsPractice: true, Completed: true},
		{AttemptID: "a2", AttemptNumber: 2, PercentageScore: 50},
	}
	_, err := grading.CountedScore(grading.MethodBest, 70, records)
	if !errors.Is(err, grading.ErrNoAttempts) {
		t.Fatalf("want ErrNoAttempts when nothing counts, got %v", err)
	}

	records = append(records, grading.Record{AttemptID: "a3", AttemptNumber: 3, PercentageScore: 55, Completed: true})
	c, err := grading.CountedScore(grading.MethodBest, 70, records)
	if err != nil {
		t.Fatalf("counted: %v", err)
	}
	if c.PercentageScore != 55 || c.CountedAttempts != 1 {
		t.Fatalf("practice 100%% must not win: %+v", c)
	}
}

func TestCountedScoreAveragePassing(t *testing.T) {
	records := []grading.Record{
		{AttemptNumber: 1, PercentageScore: 71, Passed: true, Completed: true},
		{AttemptNumber: 2, PercentageScore: 69, Completed: true},
	}
	c, err := grading.CountedScore(grading.MethodAverage, 70, records)
	if err != nil {
		t.Fatalf("counted: %v", err)
	}
	if c.PercentageScore != 70 || !c.Passed {
		t.Fatalf("average 70 at threshold 70 must pass, got %+v", c)
	}
}

func TestCountedScoreUnknownMethod(t *testing.T) {
	if _, err := grading.CountedScore("median", 70, threeAttempts()); err == nil {
		t.Fatal("want error for unknown method")
	}
}

func TestEnforceLimit(t *testing.T) {
	records := []grading.Record{
		{AttemptNumber: 1},
		{AttemptNumber: 2, IsPractice: true},
	}
	if err := grading.EnforceLimit(2, records); err != nil {
		t.Fatalf("1 of 2 used, want nil, got %v", err)
	}

	records = append(records, grading.Record{AttemptNumber: 3})
	err := grading.EnforceLimit(2, records)
	if !errors.Is(err, grading.ErrAttemptLimit) {
		t.Fatalf("want ErrAttemptLimit, got %v", err)
	}

	if err := grading.EnforceLimit(0, records); err != nil {
		t.Fatalf("0 means unlimited, got %v", err)
	}
	if err := grading.EnforceLimit(-1, records); err != nil {
		t.Fatalf("negative means unlimited, got %v", err)
	}
}
