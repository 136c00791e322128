package quiz

import (
	"context"

	"github.com/vidpod/vidpod-lms/internal/grading"
)

type ListOpts struct {
	Q        string
	LessonID string
	Limit    int
	Offset   int
}

type AttemptListOpts struct {
	QuizID    string // filter by quiz
	StudentID string // filter by student
	Status    string // optional: in_progress|submitted
	Limit     int
	Offset    int
	Sort      string // started_at|submitted_at desc (default: started_at desc)
}

// ManualGradeInput carries a teacher's score for one question. When the
// question has a rubric and RubricAwards is set, the total is derived from
// the per-criterion points instead of ManualPoints.
type ManualGradeInput struct {
	ManualPoints float64            `json:"manual_points"`
	RubricAwards map[string]float64 `json:"rubric_awards,omitempty"` // criterion key -> points
	Comment      string             `json:"comment,omitempty"`
}

type QuizSummary struct {
	ID           string `json:"id"`
	LessonID     string `json:"lesson_id,omitempty"`
	Title        string `json:"title"`
	NumQuestions int    `json:"num_questions"`
	CreatedAt    int64  `json:"created_at,omitempty"`
}

type Store interface {
	PutQuiz(ctx context.Context, z Quiz) error
	GetQuiz(ctx context.Context, id string) (Quiz, error)          // student-safe (no answer keys)
	GetQuizAuthoring(ctx context.Context, id string) (Quiz, error) // full quiz, for teachers
	ListQuizzes(ctx context.Context, opts ListOpts) ([]QuizSummary, error)

	// NewAttempt enforces the attempts-allowed limit for non-practice
	// attempts and returns grading.ErrAttemptLimit past it. The unique
	// (quiz_id, student_id, attempt_number) constraint backstops
	// concurrent submissions; callers retry on a constraint violation.
	NewAttempt(ctx context.Context, quizID, studentID string, practice bool) (Attempt, error)
	SaveResponses(ctx context.Context, attemptID string, resp map[string]interface{}) (Attempt, error)
	Submit(ctx context.Context, attemptID string) (Attempt, error)
	GetAttempt(ctx context.Context, id string) (Attempt, error)
	ListAttempts(ctx context.Context, opts AttemptListOpts) ([]Attempt, error)

	// CountedScore applies the quiz's grading method to the student's
	// submitted, non-practice attempts. grading.ErrNoAttempts means
	// "unattempted", not failure.
	CountedScore(ctx context.Context, quizID, studentID string) (grading.Counted, error)

	// ApplyManualGrades records teacher scores (essays, flagged
	// questions) and rescores the attempt with those points folded in.
	ApplyManualGrades(ctx context.Context, attemptID string, updates map[string]ManualGradeInput, gradedBy string) (Attempt, error)
}
