// Package progress computes lesson and course progress in-process from
// already-fetched rows, so it is unit-testable without a database and
// independent of the storage engine.
package progress

import "math"

// MaterialKind is the kind of a lesson resource that can be required for
// completion.
type MaterialKind string

const (
	MaterialQuiz      MaterialKind = "quiz"
	MaterialWorksheet MaterialKind = "worksheet"
	MaterialReading   MaterialKind = "reading"
)

// RequiredMaterial is one is_required lesson material together with the
// student's interaction state, fetched by the caller.
type RequiredMaterial struct {
	ID                 string
	Kind               MaterialKind
	QuizAttempted      bool // a counted (non-practice, submitted) attempt exists
	WorksheetSubmitted bool
}

// Complete reports whether this material counts toward lesson completion.
// Quizzes are complete once attempted: passing is a separate signal
// surfaced via the lesson grade. Readings carry no interaction tracking
// and always count.
func (m RequiredMaterial) Complete() bool {
	switch m.Kind {
	case MaterialQuiz:
		return m.QuizAttempted
	case MaterialWorksheet:
		return m.WorksheetSubmitted
	case MaterialReading:
		return true
	default:
		return false
	}
}

// LessonCompletion returns the 0-100 completion percentage for one
// (student, lesson) pair. A lesson with no required materials is complete
// the moment the student opens it. Absent data means "not complete",
// never an error.
func LessonCompletion(required []RequiredMaterial, opened bool) float64 {
	if len(required) == 0 {
		if opened {
			return 100
		}
		return 0
	}
	done := 0
	for _, m := range required {
		if m.Complete() {
			done++
		}
	}
	return round2(100 * float64(done) / float64(len(required)))
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}
