package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/vidpod/vidpod-lms/internal/quiz"
	"github.com/vidpod/vidpod-lms/internal/rbac"
)

// POST /quizzes
func UploadQuizHandler(store quiz.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var z quiz.Quiz
		if err := json.NewDecoder(r.Body).Decode(&z); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		if z.ID == "" {
			http.Error(w, "id required", http.StatusBadRequest)
			return
		}
		if err := store.PutQuiz(r.Context(), z); err != nil {
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok", "id": z.ID})
	}
}

// GET /quizzes/{quizID}
// Students get the key-stripped view; graders get the full quiz.
func GetQuizHandler(store quiz.Store) http.HandlerFunc {
	checker := rbac.NewChecker(nil)
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "quizID")
		role := rbac.RoleFromContext(r.Context())

		var z quiz.Quiz
		var err error
		if checker.Has(role, "quiz:view-keys") {
			z, err = store.GetQuizAuthoring(r.Context(), id)
		} else {
			z, err = store.GetQuiz(r.Context(), id)
		}
		if err != nil {
			if errors.Is(err, quiz.ErrQuizNotFound) {
				http.Error(w, err.Error(), http.StatusNotFound)
				return
			}
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(z)
	}
}

// GET /quizzes?q=...&lesson_id=...&limit=50&offset=0
func ListQuizzesHandler(store quiz.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := store.ListQuizzes(r.Context(), quiz.ListOpts{
			Q:        strings.TrimSpace(r.URL.Query().Get("q")),
			LessonID: strings.TrimSpace(r.URL.Query().Get("lesson_id")),
			Limit:    parseIntDefault(r.URL.Query().Get("limit"), 50),
			Offset:   parseIntDefault(r.URL.Query().Get("offset"), 0),
		})
		if err != nil {
			http.Error(w, err.Error(), 500)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(list)
	}
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if v, err := strconv.Atoi(s); err == nil && v >= 0 {
		return v
	}
	return def
}
