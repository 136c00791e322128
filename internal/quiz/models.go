package quiz

import (
	"errors"
	"fmt"

	"github.com/vidpod/vidpod-lms/internal/grading"
)

type Choice struct {
	ID        string `json:"id,omitempty"`
	LabelHTML string `json:"label_html,omitempty"`
}

// Question is one gradable item inside a quiz. The answer key is nil for
// essays and stripped before a quiz is served to students.
type Question struct {
	ID         string               `json:"id"`
	Type       grading.QuestionType `json:"type"`
	PromptHTML string               `json:"prompt_html,omitempty"`
	Choices    []Choice             `json:"choices,omitempty"`
	Points     float64              `json:"points"`
	Key        *grading.AnswerKey   `json:"answer_key,omitempty"`
	Rubric     *grading.Rubric      `json:"rubric,omitempty"` // essay grading rubric
	SortOrder  int                  `json:"sort_order,omitempty"`
}

// Validate checks the structural invariant that every type except essay
// carries the key material its type needs.
func (q Question) Validate() error {
	if q.ID == "" {
		return errors.New("question id required")
	}
	if q.Points <= 0 {
		return fmt.Errorf("question %s: points must be positive", q.ID)
	}
	if q.Type == grading.Essay {
		return nil
	}
	if q.Key == nil {
		return fmt.Errorf("question %s: answer key required for type %q", q.ID, q.Type)
	}
	k := q.Key
	switch q.Type {
	case grading.MultipleChoice:
		if k.Choice == "" {
			return fmt.Errorf("question %s: multiple_choice key needs a correct choice", q.ID)
		}
	case grading.MultipleSelect:
		if len(k.Choices) == 0 {
			return fmt.Errorf("question %s: multiple_select key needs a choice set", q.ID)
		}
	case grading.TrueFalse:
		if k.Bool == nil {
			return fmt.Errorf("question %s: true_false key needs a boolean", q.ID)
		}
	case grading.ShortAnswer:
		if len(k.Accepted) == 0 {
			return fmt.Errorf("question %s: short_answer key needs accepted answers", q.ID)
		}
	case grading.FillBlank:
		if len(k.Blanks) == 0 {
			return fmt.Errorf("question %s: fill_blank key needs per-blank answers", q.ID)
		}
	case grading.Matching:
		if len(k.Pairs) == 0 {
			return fmt.Errorf("question %s: matching key needs pairs", q.ID)
		}
	default:
		return fmt.Errorf("question %s: %w: %q", q.ID, grading.ErrInvalidQuestionType, q.Type)
	}
	return nil
}

// Quiz is a gradable container owned by a lesson.
type Quiz struct {
	ID                  string                `json:"id"`
	LessonID            string                `json:"lesson_id,omitempty"`
	Title               string                `json:"title"`
	TimeLimitMinutes    int                   `json:"time_limit_minutes,omitempty"` // 0 = untimed
	AttemptsAllowed     int                   `json:"attempts_allowed"`
	GradingMethod       grading.GradingMethod `json:"grading_method"`
	PassingScorePercent float64               `json:"passing_score_percent"`
	Questions           []Question            `json:"questions"`
	CreatedAt           int64                 `json:"created_at,omitempty"`
}

func (z Quiz) Validate() error {
	if z.ID == "" {
		return errors.New("quiz id required")
	}
	if z.AttemptsAllowed < 1 {
		return errors.New("attempts_allowed must be >= 1")
	}
	switch z.GradingMethod {
	case grading.MethodBest, grading.MethodLatest, grading.MethodAverage, grading.MethodFirst:
	default:
		return fmt.Errorf("unknown grading method: %q", z.GradingMethod)
	}
	if z.PassingScorePercent < 0 || z.PassingScorePercent > 100 {
		return errors.New("passing_score_percent must be within 0-100")
	}
	seen := map[string]bool{}
	for _, q := range z.Questions {
		if err := q.Validate(); err != nil {
			return err
		}
		if seen[q.ID] {
			return fmt.Errorf("duplicate question id: %s", q.ID)
		}
		seen[q.ID] = true
	}
	return nil
}

// GradingView converts the quiz into the scorer's minimal view.
func (z Quiz) GradingView() grading.QuizView {
	v := grading.QuizView{
		PassingScorePercent: z.PassingScorePercent,
		Questions:           make([]grading.Q, 0, len(z.Questions)),
	}
	for _, q := range z.Questions {
		gq := grading.Q{ID: q.ID, Type: q.Type, Points: q.Points}
		if q.Key != nil {
			gq.Key = *q.Key
		}
		v.Questions = append(v.Questions, gq)
	}
	return v
}

// StripKeys removes answer keys so the quiz is safe to serve to students.
func (z *Quiz) StripKeys() {
	for i := range z.Questions {
		z.Questions[i].Key = nil
	}
}

const (
	StatusInProgress = "in_progress"
	StatusSubmitted  = "submitted"
)

// Attempt is one student's single try at a quiz. Created in_progress,
// scored atomically on submit, and only ever mutated again when a manual
// essay grade triggers a rescore.
type Attempt struct {
	ID              string                         `json:"id"`
	QuizID          string                         `json:"quiz_id"`
	StudentID       string                         `json:"student_id"`
	AttemptNumber   int                            `json:"attempt_number"`
	Status          string                         `json:"status"`
	IsPractice      bool                           `json:"is_practice,omitempty"`
	EarnedPoints    float64                        `json:"earned_points"`
	TotalPoints     float64                        `json:"total_points"`
	PercentageScore float64                        `json:"percentage_score"`
	Passed          bool                           `json:"passed"`
	NeedsManual     bool                           `json:"needs_manual,omitempty"`
	Responses       map[string]interface{}         `json:"responses"` // questionID -> response payload
	Breakdown       []grading.QuestionScore        `json:"breakdown,omitempty"`
	ManualGrades    map[string]grading.ManualGrade `json:"manual_grades,omitempty"`
	StartedAt       int64                          `json:"started_at"`
	SubmittedAt     int64                          `json:"submitted_at,omitempty"`
}

// Record converts the attempt into the history aggregator's view.
func (a Attempt) Record() grading.Record {
	return grading.Record{
		AttemptID:       a.ID,
		AttemptNumber:   a.AttemptNumber,
		PercentageScore: a.PercentageScore,
		Passed:          a.Passed,
		IsPractice:      a.IsPractice,
		Completed:       a.Status == StatusSubmitted,
	}
}

// Records converts a full history, typically for grading.CountedScore.
func Records(attempts []Attempt) []grading.Record {
	out := make([]grading.Record, 0, len(attempts))
	for _, a := range attempts {
		out = append(out, a.Record())
	}
	return out
}
