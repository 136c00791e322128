package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	authmw "github.com/vidpod/vidpod-lms/internal/auth/middleware"
	"github.com/vidpod/vidpod-lms/internal/grading"
	"github.com/vidpod/vidpod-lms/internal/quiz"
	"github.com/vidpod/vidpod-lms/internal/rbac"
	syncx "github.com/vidpod/vidpod-lms/internal/sync"
)

// POST /attempts  { "quiz_id": "...", "practice": false }
// The student comes from the token; a request past the attempts-allowed
// limit gets 409 with a distinct message, not a generic error.
func CreateAttemptHandler(store quiz.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sub := authmw.SubjectFromContext(r.Context())
		if sub == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		var req struct {
			QuizID   string `json:"quiz_id"`
			Practice bool   `json:"practice"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", 400)
			return
		}
		if req.QuizID == "" {
			http.Error(w, "quiz_id required", 400)
			return
		}
		a, err := store.NewAttempt(r.Context(), req.QuizID, sub, req.Practice)
		if err != nil {
			switch {
			case errors.Is(err, grading.ErrAttemptLimit):
				http.Error(w, "no attempts remaining", http.StatusConflict)
			case errors.Is(err, quiz.ErrQuizNotFound):
				http.Error(w, err.Error(), http.StatusNotFound)
			default:
				http.Error(w, err.Error(), 400)
			}
			return
		}
		_ = json.NewEncoder(w).Encode(a)
	}
}

// POST /attempts/{attemptID}/responses
func SaveResponsesHandler(store quiz.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "attemptID")
		var resp map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&resp); err != nil {
			http.Error(w, "bad json", 400)
			return
		}
		a, err := store.SaveResponses(r.Context(), id, resp)
		if err != nil {
			http.Error(w, err.Error(), 400)
			return
		}
		_ = json.NewEncoder(w).Encode(a)
	}
}

// POST /attempts/{attemptID}/submit
func SubmitAttemptHandler(store quiz.Store, events *syncx.EventRepo) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "attemptID")
		a, err := store.Submit(r.Context(), id)
		if err != nil {
			http.Error(w, err.Error(), 400)
			return
		}
		if events != nil {
			_ = events.Append(r.Context(), syncx.EventAttemptSubmitted, a.ID, map[string]any{
				"quiz_id":          a.QuizID,
				"student_id":       a.StudentID,
				"attempt_number":   a.AttemptNumber,
				"percentage_score": a.PercentageScore,
				"passed":           a.Passed,
			})
		}
		_ = json.NewEncoder(w).Encode(a)
	}
}

// GET /attempts/{attemptID}
// Students may only read their own attempts.
func GetAttemptHandler(store quiz.Store) http.HandlerFunc {
	checker := rbac.NewChecker(nil)
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "attemptID")
		a, err := store.GetAttempt(r.Context(), id)
		if err != nil {
			http.Error(w, err.Error(), 404)
			return
		}
		role := rbac.RoleFromContext(r.Context())
		sub := authmw.SubjectFromContext(r.Context())
		if a.StudentID != sub && !checker.Has(role, "attempt:view-all") {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		_ = json.NewEncoder(w).Encode(a)
	}
}
