package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	authmw "github.com/vidpod/vidpod-lms/internal/auth/middleware"
	"github.com/vidpod/vidpod-lms/internal/grading"
	"github.com/vidpod/vidpod-lms/internal/quiz"
	"github.com/vidpod/vidpod-lms/internal/rbac"
)

// GET /attempts?quiz_id=...&student_id=...&status=...&limit=50&offset=0&sort=started_at
// RBAC:
// - role with attempt:view-all can list any filters
// - role with attempt:view-own only sees their own attempts (student_id is forced to subject)
func ListAttemptsHandler(store quiz.Store) http.HandlerFunc {
	checker := rbac.NewChecker(nil)
	return func(w http.ResponseWriter, r *http.Request) {
		role := rbac.RoleFromContext(r.Context())
		sub := authmw.SubjectFromContext(r.Context())
		if role == "" {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}

		studentID := strings.TrimSpace(r.URL.Query().Get("student_id"))
		if !checker.Has(role, "attempt:view-all") {
			studentID = sub
		}

		list, err := store.ListAttempts(r.Context(), quiz.AttemptListOpts{
			QuizID:    strings.TrimSpace(r.URL.Query().Get("quiz_id")),
			StudentID: studentID,
			Status:    strings.TrimSpace(r.URL.Query().Get("status")),
			Limit:     parseIntDefault(r.URL.Query().Get("limit"), 50),
			Offset:    parseIntDefault(r.URL.Query().Get("offset"), 0),
			Sort:      strings.TrimSpace(r.URL.Query().Get("sort")),
		})
		if err != nil {
			http.Error(w, err.Error(), 500)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(list)
	}
}

// GET /quizzes/{quizID}/score?student_id=...
// The counted score under the quiz's grading method. A student with no
// counted attempts gets status "unattempted", not an error or a 0%.
func CountedScoreHandler(store quiz.Store) http.HandlerFunc {
	checker := rbac.NewChecker(nil)
	return func(w http.ResponseWriter, r *http.Request) {
		sub := authmw.SubjectFromContext(r.Context())
		studentID := strings.TrimSpace(r.URL.Query().Get("student_id"))
		if studentID == "" || !checker.Has(rbac.RoleFromContext(r.Context()), "attempt:view-all") {
			studentID = sub
		}
		quizID := chi.URLParam(r, "quizID")

		c, err := store.CountedScore(r.Context(), quizID, studentID)
		w.Header().Set("Content-Type", "application/json")
		switch {
		case errors.Is(err, grading.ErrNoAttempts):
			_ = json.NewEncoder(w).Encode(map[string]any{
				"quiz_id": quizID, "student_id": studentID, "status": "unattempted",
			})
		case errors.Is(err, quiz.ErrQuizNotFound):
			http.Error(w, err.Error(), http.StatusNotFound)
		case err != nil:
			http.Error(w, err.Error(), http.StatusInternalServerError)
		default:
			_ = json.NewEncoder(w).Encode(map[string]any{
				"quiz_id":          quizID,
				"student_id":       studentID,
				"status":           "scored",
				"method":           c.Method,
				"percentage_score": c.PercentageScore,
				"passed":           c.Passed,
				"counted_attempts": c.CountedAttempts,
				"basis_attempt_id": c.Basis.AttemptID,
			})
		}
	}
}
