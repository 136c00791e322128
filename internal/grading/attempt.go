package grading

import (
	"context"
	"math"
)

// QuizView is the slice of quiz configuration the scorer needs.
type QuizView struct {
	PassingScorePercent float64
	Questions           []Q
}

// ManualGrade is a teacher-entered score for one question, usually an essay.
type ManualGrade struct {
	Points   float64 `json:"points"`
	GradedBy string  `json:"graded_by,omitempty"`
	Comment  string  `json:"comment,omitempty"`
}

// QuestionScore is one entry of the per-question breakdown.
type QuestionScore struct {
	QuestionID     string   `json:"question_id"`
	EarnedPoints   float64  `json:"earned_points"`
	MaxPoints      float64  `json:"max_points"`
	IsCorrect      bool     `json:"is_correct"`
	NeedsManual    bool     `json:"needs_manual"`
	ManuallyGraded bool     `json:"manually_graded,omitempty"`
	Feedback       []string `json:"feedback,omitempty"`
	Error          string   `json:"error,omitempty"`
}

// Score is the aggregate result for one attempt.
type Score struct {
	EarnedPoints    float64         `json:"earned_points"`
	TotalPoints     float64         `json:"total_points"`
	PercentageScore float64         `json:"percentage_score"`
	Passed          bool            `json:"passed"`
	NeedsManual     bool            `json:"needs_manual"`
	PerQuestion     []QuestionScore `json:"per_question"`
}

// ScoreAttempt grades every question of the quiz against the submitted
// responses and rolls the results up into one Score.
//
// TotalPoints counts only questions that have actually been graded:
// ungraded essays are left out of the denominator so an attempt with
// outstanding manual grading still reports a meaningful interim
// percentage. Once a manual grade exists for a question it replaces the
// automatic result, clamped to [0, points].
//
// A question whose config cannot be graded (unknown type, malformed key or
// response payload) contributes zero points, carries the error in its
// breakdown entry, and is flagged for manual review; the rest of the
// attempt is still scored.
func ScoreAttempt(ctx context.Context, grader Grader, quiz QuizView, responses map[string]interface{}, manual map[string]ManualGrade) Score {
	out := Score{PerQuestion: make([]QuestionScore, 0, len(quiz.Questions))}

	for _, q := range quiz.Questions {
		entry := QuestionScore{QuestionID: q.ID, MaxPoints: q.Points}

		if mg, ok := manual[q.ID]; ok {
			pts := mg.Points
			if pts < 0 {
				pts = 0
			}
			if pts > q.Points {
				pts = q.Points
			}
			entry.EarnedPoints = pts
			entry.IsCorrect = pts >= q.Points
			entry.ManuallyGraded = true
			out.EarnedPoints += pts
			out.TotalPoints += q.Points
			out.PerQuestion = append(out.PerQuestion, entry)
			continue
		}

		res, err := grader.Grade(ctx, q, responses[q.ID])
		if err != nil {
			entry.Error = err.Error()
			entry.NeedsManual = true
			out.NeedsManual = true
			out.PerQuestion = append(out.PerQuestion, entry)
			continue
		}
		if res.NeedsManual {
			entry.NeedsManual = true
			entry.Feedback = res.Feedback
			out.NeedsManual = true
			out.PerQuestion = append(out.PerQuestion, entry)
			continue
		}
		entry.EarnedPoints = res.EarnedPoints
		entry.IsCorrect = res.IsCorrect
		entry.Feedback = res.Feedback
		out.EarnedPoints += res.EarnedPoints
		out.TotalPoints += q.Points
		out.PerQuestion = append(out.PerQuestion, entry)
	}

	if out.TotalPoints > 0 {
		out.PercentageScore = round2(100 * out.EarnedPoints / out.TotalPoints)
	}
	if out.PercentageScore < 0 {
		out.PercentageScore = 0
	}
	if out.PercentageScore > 100 {
		out.PercentageScore = 100
	}
	out.Passed = out.TotalPoints > 0 && out.PercentageScore >= quiz.PassingScorePercent
	return out
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}
