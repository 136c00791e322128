package http

import (
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	authmw "github.com/vidpod/vidpod-lms/internal/auth/middleware"
	"github.com/vidpod/vidpod-lms/internal/rbac"
	"github.com/vidpod/vidpod-lms/internal/storage"
)

// POST /materials/{materialID}/submission
// Multipart upload of a completed worksheet; the stored row is what marks
// the material complete for lesson progress.
func SubmitWorksheetHandler(dbh *sql.DB, bs storage.BlobStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sub := authmw.SubjectFromContext(r.Context())
		if sub == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		materialID := chi.URLParam(r, "materialID")

		var kind string
		err := dbh.QueryRowContext(r.Context(),
			`SELECT kind FROM lesson_materials WHERE id=$1`, materialID).Scan(&kind)
		if errors.Is(err, sql.ErrNoRows) {
			http.Error(w, "material not found", http.StatusNotFound)
			return
		}
		if err != nil {
			http.Error(w, "db error", http.StatusInternalServerError)
			return
		}
		if kind != "worksheet" {
			http.Error(w, "material is not a worksheet", http.StatusUnprocessableEntity)
			return
		}

		f, _, err := r.FormFile("file")
		if err != nil {
			http.Error(w, "file required", http.StatusBadRequest)
			return
		}
		defer f.Close()

		key := "worksheets/" + materialID + "/" + sub + ".bin"
		if _, err := bs.Put(key, f); err != nil {
			http.Error(w, "store error: "+err.Error(), http.StatusInternalServerError)
			return
		}
		if _, err := dbh.ExecContext(r.Context(), `INSERT INTO worksheet_submissions
			(material_id, student_id, blob_key, status, submitted_at)
			VALUES ($1,$2,$3,'submitted',$4)
			ON CONFLICT (material_id, student_id) DO UPDATE SET
				blob_key=EXCLUDED.blob_key, status='submitted', submitted_at=EXCLUDED.submitted_at`,
			materialID, sub, key, time.Now().Unix()); err != nil {
			http.Error(w, "db error", http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"key": key, "status": "submitted"})
	}
}

// GET /materials/{materialID}/submission?student_id=...
// Streams the stored worksheet file. Students only get their own.
func GetWorksheetSubmissionHandler(dbh *sql.DB, bs storage.BlobStore) http.HandlerFunc {
	checker := rbac.NewChecker(nil)
	return func(w http.ResponseWriter, r *http.Request) {
		sub := authmw.SubjectFromContext(r.Context())
		role := rbac.RoleFromContext(r.Context())
		materialID := chi.URLParam(r, "materialID")

		studentID := r.URL.Query().Get("student_id")
		if studentID == "" || !checker.Has(role, "attempt:view-all") {
			studentID = sub
		}

		var key string
		err := dbh.QueryRowContext(r.Context(),
			`SELECT blob_key FROM worksheet_submissions WHERE material_id=$1 AND student_id=$2`,
			materialID, studentID).Scan(&key)
		if errors.Is(err, sql.ErrNoRows) {
			http.Error(w, "no submission", http.StatusNotFound)
			return
		}
		if err != nil {
			http.Error(w, "db error", http.StatusInternalServerError)
			return
		}
		rc, err := bs.Get(key)
		if err != nil {
			http.Error(w, "not found: "+err.Error(), http.StatusNotFound)
			return
		}
		defer rc.Close()
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = io.Copy(w, rc)
	}
}
