package http_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	api "github.com/vidpod/vidpod-lms/internal/api/http"
	"github.com/vidpod/vidpod-lms/internal/db"
	"github.com/vidpod/vidpod-lms/internal/grading"
	"github.com/vidpod/vidpod-lms/internal/quiz"
	syncx "github.com/vidpod/vidpod-lms/internal/sync"
)

type progressEnv struct {
	dbh    *sql.DB
	store  *quiz.SQLStore
	events *syncx.EventRepo
	r      chi.Router
}

// newProgressEnv opens a throwaway sqlite database and seeds one course:
// "intro" (required quiz, worksheet and two readings), "editing" gated on
// intro, and "wrap" with no materials at all.
func newProgressEnv(t *testing.T, sub string) progressEnv {
	t.Helper()
	dbh, err := db.Open(context.Background(), db.DriverSQLite,
		"file:"+filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { dbh.Close() })

	store := quiz.NewSQLStore(dbh, "sqlite", grading.NewDefaultGrader())
	events := syncx.NewEventRepo(dbh, "test-site")
	d := api.ProgressDeps{DB: dbh, Store: store, Events: events}

	r := chi.NewRouter()
	r.Use(as(sub, "student"))
	r.Get("/lessons/{lessonID}/progress", api.LessonProgressHandler(d))
	r.Get("/lessons/{lessonID}/access", api.LessonAccessHandler(d))
	r.Get("/courses/{courseID}/progress", api.CourseProgressHandler(d))
	r.Post("/lessons/{lessonID}/open", api.OpenLessonHandler(dbh))

	now := time.Now().Unix()
	exec := func(q string, args ...any) {
		t.Helper()
		if _, err := dbh.Exec(q, args...); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	exec(`INSERT INTO courses (id, name, join_code, created_by, created_at)
		VALUES ('c1','Podcasting','ABCD','teach-1',$1)`, now)
	exec(`INSERT INTO lessons (id, course_id, title, sort_order, published, prerequisite_id, created_at)
		VALUES ('intro','c1','Intro',1,$1,NULL,$2)`, true, now)
	exec(`INSERT INTO lessons (id, course_id, title, sort_order, published, prerequisite_id, created_at)
		VALUES ('editing','c1','Editing',2,$1,'intro',$2)`, true, now)
	exec(`INSERT INTO lessons (id, course_id, title, sort_order, published, prerequisite_id, created_at)
		VALUES ('wrap','c1','Wrap Up',3,$1,NULL,$2)`, true, now)
	exec(`INSERT INTO lesson_materials (id, lesson_id, kind, title, is_required, quiz_id, blob_key, sort_order)
		VALUES ('m-quiz','intro','quiz','Intro Quiz',$1,'quiz-1','',1)`, true)
	exec(`INSERT INTO lesson_materials (id, lesson_id, kind, title, is_required, quiz_id, blob_key, sort_order)
		VALUES ('m-sheet','intro','worksheet','Intro Worksheet',$1,'','',2)`, true)
	exec(`INSERT INTO lesson_materials (id, lesson_id, kind, title, is_required, quiz_id, blob_key, sort_order)
		VALUES ('m-read1','intro','reading','Handout A',$1,'','',3)`, true)
	exec(`INSERT INTO lesson_materials (id, lesson_id, kind, title, is_required, quiz_id, blob_key, sort_order)
		VALUES ('m-read2','intro','reading','Handout B',$1,'','',4)`, true)
	exec(`INSERT INTO lesson_materials (id, lesson_id, kind, title, is_required, quiz_id, blob_key, sort_order)
		VALUES ('m-edit-sheet','editing','worksheet','Edit Log',$1,'','',1)`, true)

	err = store.PutQuiz(context.Background(), quiz.Quiz{
		ID:                  "quiz-1",
		Title:               "Intro Quiz",
		AttemptsAllowed:     3,
		GradingMethod:       grading.MethodBest,
		PassingScorePercent: 70,
		Questions: []quiz.Question{
			{ID: "q1", Type: grading.MultipleChoice, Points: 10, Key: &grading.AnswerKey{Choice: "a"}},
		},
	})
	if err != nil {
		t.Fatalf("seed quiz: %v", err)
	}
	return progressEnv{dbh: dbh, store: store, events: events, r: r}
}

func (e progressEnv) getJSON(t *testing.T, path string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest("GET", path, nil)
	w := httptest.NewRecorder()
	e.r.ServeHTTP(w, req)
	var m map[string]any
	if w.Body.Len() > 0 {
		_ = json.Unmarshal(w.Body.Bytes(), &m)
	}
	return w.Code, m
}

func (e progressEnv) takeQuiz(t *testing.T, studentID string) {
	t.Helper()
	ctx := context.Background()
	a, err := e.store.NewAttempt(ctx, "quiz-1", studentID, false)
	if err != nil {
		t.Fatalf("attempt: %v", err)
	}
	if _, err := e.store.SaveResponses(ctx, a.ID, map[string]interface{}{"q1": "a"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := e.store.Submit(ctx, a.ID); err != nil {
		t.Fatalf("submit: %v", err)
	}
}

func (e progressEnv) completedEvents(t *testing.T) int {
	t.Helper()
	evs, err := e.events.ListSince(context.Background(), 0, 100)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	n := 0
	for _, ev := range evs {
		if ev.Type == syncx.EventLessonCompleted {
			n++
		}
	}
	return n
}

func TestLessonLockedUntilPrerequisiteMet(t *testing.T) {
	e := newProgressEnv(t, "stu-1")

	// the two readings count on their own: intro sits at 50, below the gate
	code, body := e.getJSON(t, "/lessons/editing/access")
	if code != 200 {
		t.Fatalf("access: %d", code)
	}
	if body["unlocked"] != false || body["reason"] != "prerequisite_incomplete" {
		t.Fatalf("want locked, got %+v", body)
	}
	if body["prerequisite_completion"] != 50.0 {
		t.Fatalf("want prerequisite at 50, got %v", body["prerequisite_completion"])
	}

	code, body = e.getJSON(t, "/lessons/editing/progress")
	if code != 200 {
		t.Fatalf("progress: %d", code)
	}
	if body["status"] != "locked" || body["unlocked"] != false {
		t.Fatalf("want status locked, got %+v", body)
	}

	// a counted quiz attempt lifts intro to 75, past the 70 threshold
	e.takeQuiz(t, "stu-1")

	code, body = e.getJSON(t, "/lessons/editing/access")
	if code != 200 {
		t.Fatalf("access after quiz: %d", code)
	}
	if body["unlocked"] != true || body["reason"] != "prerequisite_met" {
		t.Fatalf("want unlocked, got %+v", body)
	}
	if body["prerequisite_completion"] != 75.0 {
		t.Fatalf("want prerequisite at 75, got %v", body["prerequisite_completion"])
	}

	// the earlier view recorded the lesson row, so it now reads as opened
	code, body = e.getJSON(t, "/lessons/editing/progress")
	if code != 200 {
		t.Fatalf("progress after quiz: %d", code)
	}
	if body["status"] != "in_progress" || body["unlocked"] != true {
		t.Fatalf("want in_progress, got %+v", body)
	}
}

func TestOpenCompletesLessonWithoutRequirements(t *testing.T) {
	e := newProgressEnv(t, "stu-1")

	if w := postJSON(t, e.r, "/lessons/wrap/open", nil); w.Code != http.StatusNoContent {
		t.Fatalf("open: %d %s", w.Code, w.Body.String())
	}

	code, body := e.getJSON(t, "/lessons/wrap/progress")
	if code != 200 {
		t.Fatalf("progress: %d", code)
	}
	if body["status"] != "completed" || body["completion_percentage"] != 100.0 {
		t.Fatalf("want completed at 100, got %+v", body)
	}
	if got := e.completedEvents(t); got != 1 {
		t.Fatalf("want one lesson.completed event, got %d", got)
	}

	// a second view must not append a second completion event
	if code, _ := e.getJSON(t, "/lessons/wrap/progress"); code != 200 {
		t.Fatalf("second view: %d", code)
	}
	if got := e.completedEvents(t); got != 1 {
		t.Fatalf("completion event repeated: got %d", got)
	}
}

func TestLessonProgressUnknownLesson(t *testing.T) {
	e := newProgressEnv(t, "stu-1")
	if code, _ := e.getJSON(t, "/lessons/ghost/progress"); code != http.StatusNotFound {
		t.Fatalf("want 404, got %d", code)
	}
}

func TestCourseProgressRollup(t *testing.T) {
	e := newProgressEnv(t, "stu-1")

	if w := postJSON(t, e.r, "/lessons/wrap/open", nil); w.Code != http.StatusNoContent {
		t.Fatalf("open: %d", w.Code)
	}

	code, body := e.getJSON(t, "/courses/c1/progress")
	if code != 200 {
		t.Fatalf("course progress: %d", code)
	}
	lessons, ok := body["lessons"].([]any)
	if !ok || len(lessons) != 3 {
		t.Fatalf("want 3 lesson views, got %v", body["lessons"])
	}
	summary, ok := body["summary"].(map[string]any)
	if !ok {
		t.Fatalf("missing summary: %+v", body)
	}
	if summary["total_lessons"] != 3.0 || summary["completed_lessons"] != 1.0 {
		t.Fatalf("want 1 of 3 complete, got %+v", summary)
	}
	if summary["overall_progress_percent"] != 33.33 || summary["status"] != "in_progress" {
		t.Fatalf("roll-up: %+v", summary)
	}
}
