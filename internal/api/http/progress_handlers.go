package http

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	authmw "github.com/vidpod/vidpod-lms/internal/auth/middleware"
	"github.com/vidpod/vidpod-lms/internal/grading"
	"github.com/vidpod/vidpod-lms/internal/progress"
	"github.com/vidpod/vidpod-lms/internal/quiz"
	"github.com/vidpod/vidpod-lms/internal/rbac"
	syncx "github.com/vidpod/vidpod-lms/internal/sync"
)

// ProgressDeps bundles what the progress endpoints read from: raw course
// tables, counted quiz scores via the attempt store, and the event log for
// completion events.
type ProgressDeps struct {
	DB     *sql.DB
	Store  quiz.Store
	Events *syncx.EventRepo
}

type LessonProgressView struct {
	StudentID            string                `json:"student_id"`
	LessonID             string                `json:"lesson_id"`
	CourseID             string                `json:"course_id"`
	Status               progress.LessonStatus `json:"status"`
	CompletionPercentage float64               `json:"completion_percentage"`
	Grade                *float64              `json:"grade,omitempty"`
	Unlocked             bool                  `json:"unlocked"`
	UnlockReason         string                `json:"unlock_reason"`
}

type lessonRow struct {
	ID             string
	CourseID       string
	Published      bool
	PrerequisiteID string
}

func (d ProgressDeps) lesson(ctx context.Context, id string) (lessonRow, error) {
	var l lessonRow
	err := d.DB.QueryRowContext(ctx, `SELECT id, course_id, published,
		COALESCE(prerequisite_id,'') FROM lessons WHERE id=$1`, id).
		Scan(&l.ID, &l.CourseID, &l.Published, &l.PrerequisiteID)
	return l, err
}

func (d ProgressDeps) opened(ctx context.Context, studentID, lessonID string) (bool, error) {
	var one int
	err := d.DB.QueryRowContext(ctx,
		`SELECT 1 FROM lesson_progress WHERE student_id=$1 AND lesson_id=$2`,
		studentID, lessonID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

// requiredMaterials loads the lesson's required materials together with the
// student's interaction state. The returned grade is the mean of the counted
// scores across required quiz materials, nil while none are attempted.
func (d ProgressDeps) requiredMaterials(ctx context.Context, lessonID, studentID string) ([]progress.RequiredMaterial, *float64, error) {
	rows, err := d.DB.QueryContext(ctx, `SELECT id, kind, COALESCE(quiz_id,''), is_required
		FROM lesson_materials WHERE lesson_id=$1 ORDER BY sort_order`, lessonID)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	type mat struct {
		id, kind, quizID string
	}
	var mats []mat
	for rows.Next() {
		var m mat
		var required bool
		if err := rows.Scan(&m.id, &m.kind, &m.quizID, &required); err != nil {
			return nil, nil, err
		}
		if required {
			mats = append(mats, m)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	out := make([]progress.RequiredMaterial, 0, len(mats))
	gradeSum, graded := 0.0, 0
	for _, m := range mats {
		rm := progress.RequiredMaterial{ID: m.id, Kind: progress.MaterialKind(m.kind)}
		switch rm.Kind {
		case progress.MaterialQuiz:
			counted, err := d.Store.CountedScore(ctx, m.quizID, studentID)
			switch {
			case err == nil:
				rm.QuizAttempted = true
				gradeSum += counted.PercentageScore
				graded++
			case errors.Is(err, grading.ErrNoAttempts):
				// unattempted, not an error
			default:
				return nil, nil, err
			}
		case progress.MaterialWorksheet:
			var one int
			err := d.DB.QueryRowContext(ctx,
				`SELECT 1 FROM worksheet_submissions WHERE material_id=$1 AND student_id=$2`,
				m.id, studentID).Scan(&one)
			if err != nil && !errors.Is(err, sql.ErrNoRows) {
				return nil, nil, err
			}
			rm.WorksheetSubmitted = err == nil
		}
		out = append(out, rm)
	}
	var grade *float64
	if graded > 0 {
		g := math.Round(gradeSum/float64(graded)*100) / 100
		grade = &g
	}
	return out, grade, nil
}

// prerequisiteCompletion computes the prerequisite lesson's completion for
// the gate. It is never itself gated: a locked prerequisite simply reads as
// incomplete.
func (d ProgressDeps) prerequisiteCompletion(ctx context.Context, studentID, prereqID string) (float64, error) {
	pl, err := d.lesson(ctx, prereqID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	mats, _, err := d.requiredMaterials(ctx, pl.ID, studentID)
	if err != nil {
		return 0, err
	}
	op, err := d.opened(ctx, studentID, pl.ID)
	if err != nil {
		return 0, err
	}
	return progress.LessonCompletion(mats, op), nil
}

// computeLesson derives the full per-lesson view from current data. It is a
// pure read until persist is called.
func (d ProgressDeps) computeLesson(ctx context.Context, studentID string, l lessonRow) (LessonProgressView, error) {
	v := LessonProgressView{StudentID: studentID, LessonID: l.ID, CourseID: l.CourseID}

	hasPrereq := l.PrerequisiteID != ""
	prereqPct := 0.0
	if hasPrereq {
		var err error
		prereqPct, err = d.prerequisiteCompletion(ctx, studentID, l.PrerequisiteID)
		if err != nil {
			return v, err
		}
	}
	v.Unlocked = progress.Unlocked(hasPrereq, prereqPct)
	v.UnlockReason = progress.UnlockReason(hasPrereq, prereqPct)

	mats, grade, err := d.requiredMaterials(ctx, l.ID, studentID)
	if err != nil {
		return v, err
	}
	op, err := d.opened(ctx, studentID, l.ID)
	if err != nil {
		return v, err
	}
	v.CompletionPercentage = progress.LessonCompletion(mats, op)
	v.Grade = grade

	switch {
	case !v.Unlocked:
		v.Status = progress.StatusLocked
	case v.CompletionPercentage >= 100:
		v.Status = progress.StatusCompleted
	case v.CompletionPercentage > 0 || op:
		v.Status = progress.StatusInProgress
	default:
		v.Status = progress.StatusNotStarted
	}
	return v, nil
}

// persist writes the derived snapshot back to lesson_progress and appends a
// completion event the first time a lesson flips to completed.
func (d ProgressDeps) persist(ctx context.Context, v LessonProgressView) error {
	var prev string
	err := d.DB.QueryRowContext(ctx,
		`SELECT status FROM lesson_progress WHERE student_id=$1 AND lesson_id=$2`,
		v.StudentID, v.LessonID).Scan(&prev)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return err
	}

	now := time.Now().Unix()
	var unlockedAt any
	if v.Unlocked {
		unlockedAt = now
	}
	if _, err := d.DB.ExecContext(ctx, `INSERT INTO lesson_progress
		(student_id, lesson_id, course_id, status, completion_percentage, grade, unlocked_at, unlock_reason, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (student_id, lesson_id) DO UPDATE SET
			status=EXCLUDED.status,
			completion_percentage=EXCLUDED.completion_percentage,
			grade=EXCLUDED.grade,
			unlocked_at=COALESCE(lesson_progress.unlocked_at, EXCLUDED.unlocked_at),
			unlock_reason=EXCLUDED.unlock_reason,
			updated_at=EXCLUDED.updated_at`,
		v.StudentID, v.LessonID, v.CourseID, string(v.Status), v.CompletionPercentage,
		v.Grade, unlockedAt, v.UnlockReason, now); err != nil {
		return err
	}

	if d.Events != nil && v.Status == progress.StatusCompleted && prev != string(progress.StatusCompleted) {
		_ = d.Events.Append(ctx, syncx.EventLessonCompleted, v.StudentID+":"+v.LessonID, map[string]any{
			"student_id":            v.StudentID,
			"lesson_id":             v.LessonID,
			"course_id":             v.CourseID,
			"completion_percentage": v.CompletionPercentage,
		})
	}
	return nil
}

// targetStudent resolves which student the request is about. Roles without
// progress:view-all are always scoped to themselves.
func targetStudent(r *http.Request, checker *rbac.Checker) string {
	sub := authmw.SubjectFromContext(r.Context())
	studentID := r.URL.Query().Get("student_id")
	if studentID == "" || !checker.Has(rbac.RoleFromContext(r.Context()), "progress:view-all") {
		studentID = sub
	}
	return studentID
}

// GET /lessons/{lessonID}/progress?student_id=...
func LessonProgressHandler(d ProgressDeps) http.HandlerFunc {
	checker := rbac.NewChecker(nil)
	return func(w http.ResponseWriter, r *http.Request) {
		studentID := targetStudent(r, checker)
		if studentID == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		l, err := d.lesson(r.Context(), chi.URLParam(r, "lessonID"))
		if errors.Is(err, sql.ErrNoRows) {
			http.Error(w, "lesson not found", http.StatusNotFound)
			return
		}
		if err != nil {
			http.Error(w, "db error", http.StatusInternalServerError)
			return
		}
		v, err := d.computeLesson(r.Context(), studentID, l)
		if err != nil {
			http.Error(w, "progress: "+err.Error(), http.StatusInternalServerError)
			return
		}
		if err := d.persist(r.Context(), v); err != nil {
			http.Error(w, "progress: "+err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(v)
	}
}

// GET /lessons/{lessonID}/access
// The gate verdict only. Checked on demand so a prerequisite regraded above
// the threshold unlocks dependents immediately.
func LessonAccessHandler(d ProgressDeps) http.HandlerFunc {
	checker := rbac.NewChecker(nil)
	return func(w http.ResponseWriter, r *http.Request) {
		studentID := targetStudent(r, checker)
		if studentID == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		l, err := d.lesson(r.Context(), chi.URLParam(r, "lessonID"))
		if errors.Is(err, sql.ErrNoRows) {
			http.Error(w, "lesson not found", http.StatusNotFound)
			return
		}
		if err != nil {
			http.Error(w, "db error", http.StatusInternalServerError)
			return
		}
		hasPrereq := l.PrerequisiteID != ""
		prereqPct := 0.0
		if hasPrereq {
			prereqPct, err = d.prerequisiteCompletion(r.Context(), studentID, l.PrerequisiteID)
			if err != nil {
				http.Error(w, "progress: "+err.Error(), http.StatusInternalServerError)
				return
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"lesson_id":               l.ID,
			"unlocked":                progress.Unlocked(hasPrereq, prereqPct),
			"reason":                  progress.UnlockReason(hasPrereq, prereqPct),
			"prerequisite_completion": prereqPct,
		})
	}
}

// GET /courses/{courseID}/progress?student_id=...
// Per-lesson views for every published lesson plus the course roll-up.
func CourseProgressHandler(d ProgressDeps) http.HandlerFunc {
	checker := rbac.NewChecker(nil)
	return func(w http.ResponseWriter, r *http.Request) {
		studentID := targetStudent(r, checker)
		if studentID == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		courseID := chi.URLParam(r, "courseID")
		rows, err := d.DB.QueryContext(r.Context(), `SELECT id, course_id, published,
			COALESCE(prerequisite_id,'') FROM lessons WHERE course_id=$1 ORDER BY sort_order, created_at`, courseID)
		if err != nil {
			http.Error(w, "db error", http.StatusInternalServerError)
			return
		}
		var lessons []lessonRow
		for rows.Next() {
			var l lessonRow
			if err := rows.Scan(&l.ID, &l.CourseID, &l.Published, &l.PrerequisiteID); err != nil {
				rows.Close()
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			lessons = append(lessons, l)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		views := []LessonProgressView{}
		states := make([]progress.LessonState, 0, len(lessons))
		for _, l := range lessons {
			if !l.Published {
				states = append(states, progress.LessonState{LessonID: l.ID})
				continue
			}
			v, err := d.computeLesson(r.Context(), studentID, l)
			if err != nil {
				http.Error(w, "progress: "+err.Error(), http.StatusInternalServerError)
				return
			}
			views = append(views, v)
			states = append(states, progress.LessonState{
				LessonID:   l.ID,
				Published:  true,
				Completion: v.CompletionPercentage,
				Status:     v.Status,
				Grade:      v.Grade,
			})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"course_id":  courseID,
			"student_id": studentID,
			"lessons":    views,
			"summary":    progress.AggregateCourse(states),
		})
	}
}
