package http

import (
	"database/sql"
	"encoding/json"
	"errors"
	"math/rand"
	"strings"
	"time"

	nethttp "net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	authmw "github.com/vidpod/vidpod-lms/internal/auth/middleware"
	"github.com/vidpod/vidpod-lms/internal/rbac"
)

// Handlers only — routes remain in main.go

type Course struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	JoinCode string `json:"join_code,omitempty"`
}

// 4-character class codes, the way students join a course.
const joinCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789" // no 0/O/1/I

func newJoinCode() string {
	b := make([]byte, 4)
	for i := range b {
		b[i] = joinCodeAlphabet[rand.Intn(len(joinCodeAlphabet))]
	}
	return string(b)
}

// POST /courses  { "name": "..." }
func CreateCourseHandler(dbh *sql.DB) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		sub := authmw.SubjectFromContext(r.Context())
		if sub == "" {
			nethttp.Error(w, "unauthorized", nethttp.StatusUnauthorized)
			return
		}
		var req struct {
			Name string `json:"name"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Name) == "" {
			nethttp.Error(w, "bad json", nethttp.StatusBadRequest)
			return
		}
		courseID := uuid.NewString()

		// retry on the unlikely join-code collision
		var code string
		var err error
		for i := 0; i < 5; i++ {
			code = newJoinCode()
			_, err = dbh.ExecContext(r.Context(),
				`INSERT INTO courses (id, name, join_code, created_by, created_at) VALUES ($1,$2,$3,$4,$5)`,
				courseID, req.Name, code, sub, time.Now().Unix())
			if err == nil {
				break
			}
		}
		if err != nil {
			nethttp.Error(w, "db error", nethttp.StatusInternalServerError)
			return
		}
		// creator becomes owner teacher
		_, _ = dbh.ExecContext(r.Context(),
			`INSERT INTO course_teachers (course_id, teacher_id, role) VALUES ($1, $2, 'owner') ON CONFLICT DO NOTHING`,
			courseID, sub)
		_ = json.NewEncoder(w).Encode(Course{ID: courseID, Name: req.Name, JoinCode: code})
	}
}

// POST /courses/join  { "join_code": "ABCD" }
func JoinCourseHandler(dbh *sql.DB) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		sub := authmw.SubjectFromContext(r.Context())
		if sub == "" {
			nethttp.Error(w, "unauthorized", nethttp.StatusUnauthorized)
			return
		}
		var req struct {
			JoinCode string `json:"join_code"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			nethttp.Error(w, "bad json", nethttp.StatusBadRequest)
			return
		}
		code := strings.ToUpper(strings.TrimSpace(req.JoinCode))
		var courseID, name string
		err := dbh.QueryRowContext(r.Context(),
			`SELECT id, name FROM courses WHERE join_code=$1`, code).Scan(&courseID, &name)
		if errors.Is(err, sql.ErrNoRows) {
			nethttp.Error(w, "unknown class code", nethttp.StatusNotFound)
			return
		}
		if err != nil {
			nethttp.Error(w, "db error", nethttp.StatusInternalServerError)
			return
		}
		if _, err := dbh.ExecContext(r.Context(),
			`INSERT INTO enrollments (course_id, student_id, enrolled_at) VALUES ($1,$2,$3) ON CONFLICT DO NOTHING`,
			courseID, sub, time.Now().Unix()); err != nil {
			nethttp.Error(w, "db error", nethttp.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(Course{ID: courseID, Name: name})
	}
}

// DELETE /courses/{courseID} for owners; admins may delete any course.
// Lessons, materials and progress rows go with it via FK cascade.
func DeleteCourseHandler(dbh *sql.DB) nethttp.HandlerFunc {
	checker := rbac.NewChecker(nil)
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		sub := authmw.SubjectFromContext(r.Context())
		role := rbac.RoleFromContext(r.Context())
		courseID := chi.URLParam(r, "courseID")

		if !checker.Has(role, "course:delete_any") {
			var one int
			err := dbh.QueryRowContext(r.Context(),
				`SELECT 1 FROM course_teachers WHERE course_id=$1 AND teacher_id=$2 AND role='owner'`,
				courseID, sub).Scan(&one)
			if errors.Is(err, sql.ErrNoRows) {
				nethttp.Error(w, "forbidden", nethttp.StatusForbidden)
				return
			}
			if err != nil {
				nethttp.Error(w, "db error", nethttp.StatusInternalServerError)
				return
			}
		}
		res, err := dbh.ExecContext(r.Context(), `DELETE FROM courses WHERE id=$1`, courseID)
		if err != nil {
			nethttp.Error(w, "db error", nethttp.StatusInternalServerError)
			return
		}
		if n, _ := res.RowsAffected(); n == 0 {
			nethttp.Error(w, "course not found", nethttp.StatusNotFound)
			return
		}
		w.WriteHeader(nethttp.StatusNoContent)
	}
}

// GET /courses — admin sees all, teachers their own, students their enrollments.
func ListCoursesHandler(dbh *sql.DB) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		sub := authmw.SubjectFromContext(r.Context())
		role := rbac.RoleFromContext(r.Context())
		if sub == "" {
			nethttp.Error(w, "unauthorized", nethttp.StatusUnauthorized)
			return
		}

		var (
			rows *sql.Rows
			err  error
		)
		switch role {
		case "admin":
			rows, err = dbh.QueryContext(r.Context(),
				`SELECT id, name, join_code FROM courses ORDER BY created_at DESC`)
		case "teacher":
			rows, err = dbh.QueryContext(r.Context(), `
				SELECT c.id, c.name, c.join_code
				  FROM courses c
				  JOIN course_teachers t ON t.course_id=c.id
				 WHERE t.teacher_id=$1
				 ORDER BY c.created_at DESC`, sub)
		default:
			rows, err = dbh.QueryContext(r.Context(), `
				SELECT c.id, c.name, ''
				  FROM courses c
				  JOIN enrollments e ON e.course_id=c.id
				 WHERE e.student_id=$1
				 ORDER BY c.created_at DESC`, sub)
		}
		if err != nil {
			nethttp.Error(w, "db error", nethttp.StatusInternalServerError)
			return
		}
		defer rows.Close()
		out := []Course{}
		for rows.Next() {
			var c Course
			if err := rows.Scan(&c.ID, &c.Name, &c.JoinCode); err != nil {
				nethttp.Error(w, err.Error(), nethttp.StatusInternalServerError)
				return
			}
			out = append(out, c)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(out)
	}
}
