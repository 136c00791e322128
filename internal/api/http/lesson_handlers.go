package http

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	authmw "github.com/vidpod/vidpod-lms/internal/auth/middleware"
	"github.com/vidpod/vidpod-lms/internal/progress"
)

type Lesson struct {
	ID             string `json:"id"`
	CourseID       string `json:"course_id"`
	Title          string `json:"title"`
	SortOrder      int    `json:"sort_order,omitempty"`
	Published      bool   `json:"published"`
	PrerequisiteID string `json:"prerequisite_id,omitempty"`
}

type Material struct {
	ID         string `json:"id"`
	LessonID   string `json:"lesson_id"`
	Kind       string `json:"kind"` // quiz|worksheet|reading
	Title      string `json:"title,omitempty"`
	IsRequired bool   `json:"is_required"`
	QuizID     string `json:"quiz_id,omitempty"`
	BlobKey    string `json:"blob_key,omitempty"`
	SortOrder  int    `json:"sort_order,omitempty"`
}

// POST /courses/{courseID}/lessons
func CreateLessonHandler(dbh *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		courseID := chi.URLParam(r, "courseID")
		var req Lesson
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Title) == "" {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		req.ID = uuid.NewString()
		req.CourseID = courseID
		if req.PrerequisiteID != "" {
			// the prerequisite must exist in the same course; self-references
			// and cross-course edges are authoring errors
			var prereqCourse string
			err := dbh.QueryRowContext(r.Context(),
				`SELECT course_id FROM lessons WHERE id=$1`, req.PrerequisiteID).Scan(&prereqCourse)
			if err != nil && !errors.Is(err, sql.ErrNoRows) {
				http.Error(w, "db error", http.StatusInternalServerError)
				return
			}
			if errors.Is(err, sql.ErrNoRows) || prereqCourse != courseID {
				http.Error(w, "unknown prerequisite lesson", http.StatusUnprocessableEntity)
				return
			}
		}
		var prereq any
		if req.PrerequisiteID != "" {
			prereq = req.PrerequisiteID
		}
		if _, err := dbh.ExecContext(r.Context(), `INSERT INTO lessons
			(id, course_id, title, sort_order, published, prerequisite_id, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			req.ID, courseID, req.Title, req.SortOrder, req.Published, prereq, time.Now().Unix()); err != nil {
			http.Error(w, "db error", http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(req)
	}
}

// GET /courses/{courseID}/lessons
func ListLessonsHandler(dbh *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		courseID := chi.URLParam(r, "courseID")
		rows, err := dbh.QueryContext(r.Context(), `SELECT id, course_id, title, sort_order, published,
			COALESCE(prerequisite_id,'') FROM lessons WHERE course_id=$1 ORDER BY sort_order, created_at`, courseID)
		if err != nil {
			http.Error(w, "db error", http.StatusInternalServerError)
			return
		}
		defer rows.Close()
		out := []Lesson{}
		for rows.Next() {
			var l Lesson
			if err := rows.Scan(&l.ID, &l.CourseID, &l.Title, &l.SortOrder, &l.Published, &l.PrerequisiteID); err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			out = append(out, l)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(out)
	}
}

// POST /lessons/{lessonID}/materials
func AddMaterialHandler(dbh *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		lessonID := chi.URLParam(r, "lessonID")
		var req Material
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		switch progress.MaterialKind(req.Kind) {
		case progress.MaterialQuiz:
			if req.QuizID == "" {
				http.Error(w, "quiz_id required for quiz materials", http.StatusUnprocessableEntity)
				return
			}
		case progress.MaterialWorksheet, progress.MaterialReading:
		default:
			http.Error(w, "unknown material kind: "+req.Kind, http.StatusUnprocessableEntity)
			return
		}
		req.ID = uuid.NewString()
		req.LessonID = lessonID
		if _, err := dbh.ExecContext(r.Context(), `INSERT INTO lesson_materials
			(id, lesson_id, kind, title, is_required, quiz_id, blob_key, sort_order)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
			req.ID, lessonID, req.Kind, req.Title, req.IsRequired, req.QuizID, req.BlobKey, req.SortOrder); err != nil {
			http.Error(w, "db error", http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(req)
	}
}

// POST /lessons/{lessonID}/open
// Records that the student has opened the lesson. For lessons with no
// required materials this row is what makes them count as complete.
func OpenLessonHandler(dbh *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sub := authmw.SubjectFromContext(r.Context())
		if sub == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		lessonID := chi.URLParam(r, "lessonID")
		var courseID string
		err := dbh.QueryRowContext(r.Context(),
			`SELECT course_id FROM lessons WHERE id=$1`, lessonID).Scan(&courseID)
		if errors.Is(err, sql.ErrNoRows) {
			http.Error(w, "lesson not found", http.StatusNotFound)
			return
		}
		if err != nil {
			http.Error(w, "db error", http.StatusInternalServerError)
			return
		}
		now := time.Now().Unix()
		if _, err := dbh.ExecContext(r.Context(), `INSERT INTO lesson_progress
			(student_id, lesson_id, course_id, status, completion_percentage, updated_at)
			VALUES ($1,$2,$3,$4,0,$5)
			ON CONFLICT (student_id, lesson_id) DO NOTHING`,
			sub, lessonID, courseID, string(progress.StatusInProgress), now); err != nil {
			http.Error(w, "db error", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
