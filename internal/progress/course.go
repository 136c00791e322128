package progress

// LessonStatus mirrors the lesson_progress.status column.
type LessonStatus string

const (
	StatusNotStarted LessonStatus = "not_started"
	StatusInProgress LessonStatus = "in_progress"
	StatusCompleted  LessonStatus = "completed"
	StatusLocked     LessonStatus = "locked"
	StatusPassed     LessonStatus = "passed"
	StatusFailed     LessonStatus = "failed"
	StatusSkipped    LessonStatus = "skipped"
)

// CourseStatus classifies overall course progress.
type CourseStatus string

const (
	CourseNotStarted CourseStatus = "not_started"
	CourseInProgress CourseStatus = "in_progress"
	CourseCompleted  CourseStatus = "completed"
)

// LessonState is the per-lesson input to the course roll-up.
type LessonState struct {
	LessonID   string
	Published  bool
	Completion float64 // 0-100
	Status     LessonStatus
	Grade      *float64 // nil until graded
}

// CourseProgress is the derived aggregate for one (student, course) pair.
// It is computed on demand, never persisted.
type CourseProgress struct {
	TotalLessons           int          `json:"total_lessons"`
	CompletedLessons       int          `json:"completed_lessons"`
	OverallProgressPercent float64      `json:"overall_progress_percent"`
	AverageGrade           float64      `json:"average_grade"`
	Status                 CourseStatus `json:"status"`
}

// AggregateCourse rolls per-lesson completion and grades up into one
// course-level summary. Unpublished lessons are ignored. The inputs are
// read-side snapshots; identical inputs produce identical output.
func AggregateCourse(lessons []LessonState) CourseProgress {
	out := CourseProgress{Status: CourseNotStarted}
	gradeSum := 0.0
	graded := 0
	for _, l := range lessons {
		if !l.Published {
			continue
		}
		out.TotalLessons++
		if l.Completion >= 100 || l.Status == StatusCompleted || l.Status == StatusPassed {
			out.CompletedLessons++
		}
		if l.Grade != nil {
			gradeSum += *l.Grade
			graded++
		}
	}
	if out.TotalLessons > 0 {
		out.OverallProgressPercent = round2(100 * float64(out.CompletedLessons) / float64(out.TotalLessons))
	}
	if graded > 0 {
		out.AverageGrade = round2(gradeSum / float64(graded))
	}
	switch {
	case out.TotalLessons > 0 && out.CompletedLessons == out.TotalLessons:
		out.Status = CourseCompleted
	case out.OverallProgressPercent > 0:
		out.Status = CourseInProgress
	}
	return out
}
