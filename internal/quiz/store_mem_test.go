package quiz_test

import (
	"context"
	"errors"
	"testing"

	"github.com/vidpod/vidpod-lms/internal/grading"
	"github.com/vidpod/vidpod-lms/internal/quiz"
)

func boolPtr(b bool) *bool { return &b }

func testQuiz() quiz.Quiz {
	return quiz.Quiz{
		ID:                  "quiz-1",
		LessonID:            "lesson-1",
		Title:               "Interview Basics",
		AttemptsAllowed:     2,
		GradingMethod:       grading.MethodBest,
		PassingScorePercent: 70,
		Questions: []quiz.Question{
			{ID: "q1", Type: grading.MultipleChoice, Points: 5,
				Key: &grading.AnswerKey{Choice: "b"}},
			{ID: "q2", Type: grading.TrueFalse, Points: 5,
				Key: &grading.AnswerKey{Bool: boolPtr(true)}},
			{ID: "q3", Type: grading.Essay, Points: 10,
				Rubric: &grading.Rubric{Max: 10, Criteria: []grading.Criterion{
					{Key: "clarity", MaxPoints: 5},
					{Key: "depth", MaxPoints: 5},
				}}},
		},
	}
}

func newStore(t *testing.T) quiz.Store {
	t.Helper()
	s := quiz.NewInMemoryStore(grading.NewDefaultGrader())
	if err := s.PutQuiz(context.Background(), testQuiz()); err != nil {
		t.Fatalf("put quiz: %v", err)
	}
	return s
}

func TestPutQuizValidates(t *testing.T) {
	s := quiz.NewInMemoryStore(grading.NewDefaultGrader())
	bad := testQuiz()
	bad.Questions[0].Key = nil
	if err := s.PutQuiz(context.Background(), bad); err == nil {
		t.Fatal("missing answer key must be rejected")
	}
	bad = testQuiz()
	bad.GradingMethod = "median"
	if err := s.PutQuiz(context.Background(), bad); err == nil {
		t.Fatal("unknown grading method must be rejected")
	}
}

func TestGetQuizStripsKeys(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	z, err := s.GetQuiz(ctx, "quiz-1")
	if err != nil {
		t.Fatalf("get quiz: %v", err)
	}
	for _, q := range z.Questions {
		if q.Key != nil {
			t.Fatalf("student view must not carry keys (question %s)", q.ID)
		}
	}

	// the stored quiz keeps its keys for grading and authoring
	full, err := s.GetQuizAuthoring(ctx, "quiz-1")
	if err != nil {
		t.Fatalf("authoring view: %v", err)
	}
	if full.Questions[0].Key == nil {
		t.Fatal("authoring view lost its keys")
	}
}

func TestAttemptLifecycle(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	a, err := s.NewAttempt(ctx, "quiz-1", "stu-1", false)
	if err != nil {
		t.Fatalf("new attempt: %v", err)
	}
	if a.AttemptNumber != 1 || a.Status != quiz.StatusInProgress {
		t.Fatalf("fresh attempt: %+v", a)
	}

	if _, err := s.SaveResponses(ctx, a.ID, map[string]interface{}{"q1": "b"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	// incremental saves merge
	if _, err := s.SaveResponses(ctx, a.ID, map[string]interface{}{"q2": true, "q3": "essay text"}); err != nil {
		t.Fatalf("save: %v", err)
	}

	a, err = s.Submit(ctx, a.ID)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if a.Status != quiz.StatusSubmitted || a.SubmittedAt == 0 {
		t.Fatalf("submitted attempt: %+v", a)
	}
	// essay pending: 10/10 auto points, manual excluded from the denominator
	if a.EarnedPoints != 10 || a.TotalPoints != 10 || a.PercentageScore != 100 {
		t.Fatalf("interim score: %+v", a)
	}
	if !a.NeedsManual {
		t.Fatal("essay must leave the attempt flagged for review")
	}

	if _, err := s.SaveResponses(ctx, a.ID, map[string]interface{}{"q1": "c"}); err == nil {
		t.Fatal("saving after submit must fail")
	}
}

func TestAttemptLimitAndPractice(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		a, err := s.NewAttempt(ctx, "quiz-1", "stu-1", false)
		if err != nil {
			t.Fatalf("attempt %d: %v", i+1, err)
		}
		if _, err := s.Submit(ctx, a.ID); err != nil {
			t.Fatalf("submit %d: %v", i+1, err)
		}
	}

	if _, err := s.NewAttempt(ctx, "quiz-1", "stu-1", false); !errors.Is(err, grading.ErrAttemptLimit) {
		t.Fatalf("third attempt: want ErrAttemptLimit, got %v", err)
	}

	// practice attempts bypass the limit and get the next number anyway
	p, err := s.NewAttempt(ctx, "quiz-1", "stu-1", true)
	if err != nil {
		t.Fatalf("practice attempt: %v", err)
	}
	if p.AttemptNumber != 3 || !p.IsPractice {
		t.Fatalf("practice attempt: %+v", p)
	}

	// other students are unaffected
	if _, err := s.NewAttempt(ctx, "quiz-1", "stu-2", false); err != nil {
		t.Fatalf("other student: %v", err)
	}
}

func TestCountedScoreExcludesPractice(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	a, _ := s.NewAttempt(ctx, "quiz-1", "stu-1", false)
	_, _ = s.SaveResponses(ctx, a.ID, map[string]interface{}{"q1": "b"})
	if _, err := s.Submit(ctx, a.ID); err != nil {
		t.Fatalf("submit: %v", err)
	}

	p, _ := s.NewAttempt(ctx, "quiz-1", "stu-1", true)
	_, _ = s.SaveResponses(ctx, p.ID, map[string]interface{}{"q1": "b", "q2": true})
	if _, err := s.Submit(ctx, p.ID); err != nil {
		t.Fatalf("submit practice: %v", err)
	}

	c, err := s.CountedScore(ctx, "quiz-1", "stu-1")
	if err != nil {
		t.Fatalf("counted: %v", err)
	}
	if c.PercentageScore != 50 || c.CountedAttempts != 1 {
		t.Fatalf("practice 100%% must not count: %+v", c)
	}

	if _, err := s.CountedScore(ctx, "quiz-1", "stu-nobody"); !errors.Is(err, grading.ErrNoAttempts) {
		t.Fatalf("unattempted: want ErrNoAttempts, got %v", err)
	}
}

func TestApplyManualGradesRescores(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	a, _ := s.NewAttempt(ctx, "quiz-1", "stu-1", false)
	_, _ = s.SaveResponses(ctx, a.ID, map[string]interface{}{"q1": "b", "q2": true, "q3": "essay"})
	if _, err := s.Submit(ctx, a.ID); err != nil {
		t.Fatalf("submit: %v", err)
	}

	// rubric awards drive the points; each criterion clamps to its ceiling
	a, err := s.ApplyManualGrades(ctx, a.ID, map[string]quiz.ManualGradeInput{
		"q3": {RubricAwards: map[string]float64{"clarity": 4, "depth": 9}},
	}, "teacher-1")
	if err != nil {
		t.Fatalf("apply grades: %v", err)
	}
	if a.NeedsManual {
		t.Fatal("fully graded attempt must clear the manual flag")
	}
	// 5 + 5 auto, 4 + 5 rubric = 19/20
	if a.EarnedPoints != 19 || a.TotalPoints != 20 || a.PercentageScore != 95 {
		t.Fatalf("rescored: %+v", a)
	}
	if !a.Passed {
		t.Fatal("95 >= 70 must pass")
	}

	if _, err := s.ApplyManualGrades(ctx, a.ID, map[string]quiz.ManualGradeInput{
		"nope": {ManualPoints: 1},
	}, "teacher-1"); err == nil {
		t.Fatal("grading a question outside the quiz must fail")
	}
}

func TestApplyManualGradesRequiresSubmission(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	a, _ := s.NewAttempt(ctx, "quiz-1", "stu-1", false)
	if _, err := s.ApplyManualGrades(ctx, a.ID, map[string]quiz.ManualGradeInput{
		"q3": {ManualPoints: 5},
	}, "teacher-1"); err == nil {
		t.Fatal("grading an in-progress attempt must fail")
	}
}
