package http_test

import (
	"context"
	"database/sql"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	api "github.com/vidpod/vidpod-lms/internal/api/http"
	"github.com/vidpod/vidpod-lms/internal/db"
)

func newUserDB(t *testing.T) *sql.DB {
	t.Helper()
	dbh, err := db.Open(context.Background(), db.DriverSQLite,
		"file:"+filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { dbh.Close() })

	hash, err := bcrypt.GenerateFromPassword([]byte("old-secret"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if _, err := dbh.Exec(`INSERT INTO users (id, username, name, password_hash, role, created_at)
		VALUES ('stu-1','ana','Ana',$1,'student',$2)`, string(hash), time.Now().Unix()); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return dbh
}

func passwordRouter(dbh *sql.DB, sub string) chi.Router {
	r := chi.NewRouter()
	r.Use(as(sub, "student"))
	r.Post("/users/change-password", api.ChangePasswordHandler(dbh))
	return r
}

func TestChangePassword(t *testing.T) {
	dbh := newUserDB(t)
	r := passwordRouter(dbh, "stu-1")

	w := postJSON(t, r, "/users/change-password",
		map[string]any{"old_password": "wrong", "new_password": "brand-new-pass"})
	if w.Code != http.StatusForbidden {
		t.Fatalf("wrong old password: want 403, got %d", w.Code)
	}

	w = postJSON(t, r, "/users/change-password",
		map[string]any{"old_password": "old-secret", "new_password": "short"})
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("short password: want 422, got %d", w.Code)
	}

	w = postJSON(t, r, "/users/change-password",
		map[string]any{"old_password": "old-secret", "new_password": "brand-new-pass"})
	if w.Code != http.StatusNoContent {
		t.Fatalf("change: want 204, got %d %s", w.Code, w.Body.String())
	}

	var stored string
	if err := dbh.QueryRow(`SELECT password_hash FROM users WHERE id='stu-1'`).Scan(&stored); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(stored), []byte("brand-new-pass")) != nil {
		t.Fatal("new password does not verify against the stored hash")
	}
	if bcrypt.CompareHashAndPassword([]byte(stored), []byte("old-secret")) == nil {
		t.Fatal("old password still verifies")
	}
}

func TestChangePasswordUnknownUser(t *testing.T) {
	dbh := newUserDB(t)
	r := passwordRouter(dbh, "nobody")
	w := postJSON(t, r, "/users/change-password",
		map[string]any{"old_password": "x", "new_password": "brand-new-pass"})
	if w.Code != http.StatusNotFound {
		t.Fatalf("want 404, got %d", w.Code)
	}
}
