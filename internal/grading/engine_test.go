package grading_test

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/vidpod/vidpod-lms/internal/grading"
)

func boolPtr(b bool) *bool { return &b }

func almostEqual(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestGradeMultipleChoice(t *testing.T) {
	g := grading.NewDefaultGrader()
	q := grading.Q{ID: "q1", Type: grading.MultipleChoice, Points: 5, Key: grading.AnswerKey{Choice: "b"}}

	res, err := g.Grade(context.Background(), q, "b")
	if err != nil {
		t.Fatalf("grade: %v", err)
	}
	if !res.IsCorrect || res.EarnedPoints != 5 {
		t.Fatalf("want full credit, got %+v", res)
	}

	res, err = g.Grade(context.Background(), q, "c")
	if err != nil {
		t.Fatalf("grade: %v", err)
	}
	if res.IsCorrect || res.EarnedPoints != 0 {
		t.Fatalf("want zero credit, got %+v", res)
	}
}

func TestGradeTrueFalse(t *testing.T) {
	g := grading.NewDefaultGrader()
	q := grading.Q{ID: "q1", Type: grading.TrueFalse, Points: 2, Key: grading.AnswerKey{Bool: boolPtr(true)}}

	for _, resp := range []interface{}{true, "true", "1"} {
		res, err := g.Grade(context.Background(), q, resp)
		if err != nil {
			t.Fatalf("grade(%v): %v", resp, err)
		}
		if !res.IsCorrect {
			t.Fatalf("grade(%v): want correct", resp)
		}
	}

	res, err := g.Grade(context.Background(), q, false)
	if err != nil {
		t.Fatalf("grade: %v", err)
	}
	if res.IsCorrect {
		t.Fatal("want incorrect")
	}

	if _, err := g.Grade(context.Background(), q, "maybe"); err == nil {
		t.Fatal("want error for non-boolean response")
	}
}

func TestGradeMultipleSelectExact(t *testing.T) {
	g := grading.NewDefaultGrader()
	q := grading.Q{ID: "q1", Type: grading.MultipleSelect, Points: 4,
		Key: grading.AnswerKey{Choices: []string{"a", "c"}}}

	cases := []struct {
		name   string
		resp   []string
		earned float64
	}{
		{"exact match any order", []string{"c", "a"}, 4},
		{"subset", []string{"a"}, 0},
		{"superset", []string{"a", "c", "d"}, 0},
		{"wrong pick", []string{"a", "b"}, 0},
		{"empty", []string{}, 0},
	}
	for _, tc := range cases {
		res, err := g.Grade(context.Background(), q, tc.resp)
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if !almostEqual(res.EarnedPoints, tc.earned) {
			t.Errorf("%s: earned=%v want %v", tc.name, res.EarnedPoints, tc.earned)
		}
	}
}

func TestGradeMultipleSelectPartial(t *testing.T) {
	g := grading.NewDefaultGrader(grading.WithPartialSelect(true))
	q := grading.Q{ID: "q1", Type: grading.MultipleSelect, Points: 4,
		Key: grading.AnswerKey{Choices: []string{"a", "b", "c", "d"}}}

	res, err := g.Grade(context.Background(), q, []string{"a", "b"})
	if err != nil {
		t.Fatalf("grade: %v", err)
	}
	if res.IsCorrect || !almostEqual(res.EarnedPoints, 2) {
		t.Fatalf("want 2 points partial, got %+v", res)
	}

	// a single wrong pick forfeits partial credit
	res, err = g.Grade(context.Background(), q, []string{"a", "b", "e"})
	if err != nil {
		t.Fatalf("grade: %v", err)
	}
	if res.EarnedPoints != 0 {
		t.Fatalf("want 0 with wrong pick, got %+v", res)
	}
}

func TestGradeShortAnswer(t *testing.T) {
	g := grading.NewDefaultGrader()
	q := grading.Q{ID: "q1", Type: grading.ShortAnswer, Points: 3,
		Key: grading.AnswerKey{Accepted: []string{"Mitochondria", "mitochondrion"}}}

	for _, resp := range []string{"mitochondria", "  MITOCHONDRIA  ", "Mitochondrion"} {
		res, err := g.Grade(context.Background(), q, resp)
		if err != nil {
			t.Fatalf("grade(%q): %v", resp, err)
		}
		if !res.IsCorrect {
			t.Errorf("grade(%q): want correct", resp)
		}
	}

	qs := q
	qs.Key.CaseSensitive = true
	res, err := g.Grade(context.Background(), qs, "mitochondria")
	if err != nil {
		t.Fatalf("grade: %v", err)
	}
	if res.IsCorrect {
		t.Fatal("case-sensitive key must reject wrong casing")
	}
	res, err = g.Grade(context.Background(), qs, " Mitochondria ")
	if err != nil {
		t.Fatalf("grade: %v", err)
	}
	if !res.IsCorrect {
		t.Fatal("whitespace is trimmed even when case-sensitive")
	}
}

func TestGradeFillBlankProportional(t *testing.T) {
	g := grading.NewDefaultGrader()
	q := grading.Q{ID: "q1", Type: grading.FillBlank, Points: 6,
		Key: grading.AnswerKey{Blanks: [][]string{{"red"}, {"green", "verde"}, {"blue"}}}}

	res, err := g.Grade(context.Background(), q, []string{"red", "verde", "purple"})
	if err != nil {
		t.Fatalf("grade: %v", err)
	}
	if res.IsCorrect || !almostEqual(res.EarnedPoints, 4) {
		t.Fatalf("want 4 of 6, got %+v", res)
	}

	res, err = g.Grade(context.Background(), q, []string{"red", "green", "blue"})
	if err != nil {
		t.Fatalf("grade: %v", err)
	}
	if !res.IsCorrect || !almostEqual(res.EarnedPoints, 6) {
		t.Fatalf("want full credit, got %+v", res)
	}

	// short response: missing blanks score zero, no error
	res, err = g.Grade(context.Background(), q, []string{"red"})
	if err != nil {
		t.Fatalf("grade: %v", err)
	}
	if !almostEqual(res.EarnedPoints, 2) {
		t.Fatalf("want 2 of 6, got %+v", res)
	}
}

func TestGradeMatchingProportional(t *testing.T) {
	g := grading.NewDefaultGrader()
	q := grading.Q{ID: "q1", Type: grading.Matching, Points: 4,
		Key: grading.AnswerKey{Pairs: map[string]string{"fr": "paris", "de": "berlin", "it": "rome", "es": "madrid"}}}

	res, err := g.Grade(context.Background(), q,
		map[string]string{"fr": "paris", "de": "berlin", "it": "madrid", "es": "rome"})
	if err != nil {
		t.Fatalf("grade: %v", err)
	}
	if res.IsCorrect || !almostEqual(res.EarnedPoints, 2) {
		t.Fatalf("want 2 of 4, got %+v", res)
	}
}

func TestGradeEssayNeedsManual(t *testing.T) {
	g := grading.NewDefaultGrader()
	q := grading.Q{ID: "q1", Type: grading.Essay, Points: 10}

	res, err := g.Grade(context.Background(), q, "my essay text")
	if err != nil {
		t.Fatalf("grade: %v", err)
	}
	if !res.NeedsManual || res.EarnedPoints != 0 || res.IsCorrect {
		t.Fatalf("essay must await manual grading, got %+v", res)
	}

	// even with no response, the manual flag is set
	res, err = g.Grade(context.Background(), q, nil)
	if err != nil {
		t.Fatalf("grade: %v", err)
	}
	if !res.NeedsManual {
		t.Fatalf("essay with no response still needs manual review, got %+v", res)
	}
}

func TestGradeNilResponse(t *testing.T) {
	g := grading.NewDefaultGrader()
	q := grading.Q{ID: "q1", Type: grading.MultipleChoice, Points: 5, Key: grading.AnswerKey{Choice: "a"}}

	res, err := g.Grade(context.Background(), q, nil)
	if err != nil {
		t.Fatalf("nil response is a valid state: %v", err)
	}
	if res.EarnedPoints != 0 || res.IsCorrect {
		t.Fatalf("want zero score, got %+v", res)
	}
}

func TestGradeUnknownType(t *testing.T) {
	g := grading.NewDefaultGrader()
	q := grading.Q{ID: "q1", Type: "hotspot", Points: 5}

	_, err := g.Grade(context.Background(), q, "x")
	if !errors.Is(err, grading.ErrInvalidQuestionType) {
		t.Fatalf("want ErrInvalidQuestionType, got %v", err)
	}
}

func TestGradeDeterministic(t *testing.T) {
	g := grading.NewDefaultGrader()
	q := grading.Q{ID: "q1", Type: grading.Matching, Points: 4,
		Key: grading.AnswerKey{Pairs: map[string]string{"a": "1", "b": "2", "c": "3"}}}
	resp := map[string]string{"a": "1", "b": "3", "c": "3"}

	first, err := g.Grade(context.Background(), q, resp)
	if err != nil {
		t.Fatalf("grade: %v", err)
	}
	for i := 0; i < 50; i++ {
		res, err := g.Grade(context.Background(), q, resp)
		if err != nil {
			t.Fatalf("grade: %v", err)
		}
		if res.EarnedPoints != first.EarnedPoints || res.IsCorrect != first.IsCorrect {
			t.Fatalf("run %d diverged: %+v vs %+v", i, res, first)
		}
	}
}
