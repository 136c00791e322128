package http

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	authmw "github.com/vidpod/vidpod-lms/internal/auth/middleware"
	"github.com/vidpod/vidpod-lms/internal/quiz"
	syncx "github.com/vidpod/vidpod-lms/internal/sync"
)

type applyGradesReq struct {
	Items map[string]quiz.ManualGradeInput `json:"items"` // question_id -> grade
}

// GET /attempts/{attemptID}/grading
// Returns the per-question breakdown so a teacher can see which entries
// still need a manual score.
func GetAttemptGradingHandler(store quiz.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		attemptID := strings.TrimSpace(chi.URLParam(r, "attemptID"))
		if attemptID == "" {
			http.Error(w, "attemptID required", http.StatusBadRequest)
			return
		}
		a, err := store.GetAttempt(r.Context(), attemptID)
		if err != nil {
			http.Error(w, "attempt: "+err.Error(), http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"attempt_id":   a.ID,
			"needs_manual": a.NeedsManual,
			"breakdown":    a.Breakdown,
		})
	}
}

// POST /attempts/{attemptID}/grading
// Records manual scores (essay questions, flagged entries) and rescores
// the attempt with those points folded in.
func ApplyAttemptGradingHandler(store quiz.Store, events *syncx.EventRepo) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		attemptID := strings.TrimSpace(chi.URLParam(r, "attemptID"))
		if attemptID == "" {
			http.Error(w, "attemptID required", http.StatusBadRequest)
			return
		}
		var req applyGradesReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json: "+err.Error(), http.StatusBadRequest)
			return
		}
		gradedBy := authmw.SubjectFromContext(r.Context())
		a, err := store.ApplyManualGrades(r.Context(), attemptID, req.Items, gradedBy)
		if err != nil {
			http.Error(w, "apply grades: "+err.Error(), http.StatusInternalServerError)
			return
		}
		if events != nil {
			_ = events.Append(r.Context(), syncx.EventAttemptGraded, a.ID, map[string]any{
				"quiz_id":          a.QuizID,
				"student_id":       a.StudentID,
				"graded_by":        gradedBy,
				"percentage_score": a.PercentageScore,
				"passed":           a.Passed,
			})
		}
		_ = json.NewEncoder(w).Encode(a)
	}
}
