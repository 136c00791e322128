package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"time"

	api "github.com/vidpod/vidpod-lms/internal/api/http"
	auth "github.com/vidpod/vidpod-lms/internal/auth/middleware"
	"github.com/vidpod/vidpod-lms/internal/config"
	"github.com/vidpod/vidpod-lms/internal/db"
	"github.com/vidpod/vidpod-lms/internal/grading"
	"github.com/vidpod/vidpod-lms/internal/quiz"
	rbac "github.com/vidpod/vidpod-lms/internal/rbac"
	storage "github.com/vidpod/vidpod-lms/internal/storage"
	syncx "github.com/vidpod/vidpod-lms/internal/sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	_ "github.com/joho/godotenv/autoload"
)

func main() {
	cfg := config.FromEnv()

	// --- DB ---
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	dbh, err := db.Open(ctx, db.Driver(cfg.DBDriver), cfg.DBDSN)
	if err != nil {
		log.Fatalf("db open failed: %v", err)
	}

	grader := grading.NewDefaultGrader(grading.WithPartialSelect(cfg.PartialSelectCredit))
	store := quiz.NewSQLStore(dbh, cfg.DBDriver, grader)
	events := syncx.NewEventRepo(dbh, cfg.SiteID)

	// --- Auth (local JWT; bcrypt against the users table) ---
	secret := getenvOr("AUTH_HMAC_SECRET", "supersecret-dev-key")
	authSvc := auth.NewAuthService(secret)

	// --- Router ---
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	origins := cfg.CORSOriginsOffline
	if cfg.Mode == config.ModeOnline {
		origins = cfg.CORSOriginsOnline
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if cfg.EnableLocalAuth {
		r.Post("/auth/login", auth.LoginHandler(authSvc, dbh))
	}

	bs, err := storage.NewFSStore(cfg.BlobBasePath)
	if err != nil {
		log.Fatalf("blob store: %v", err)
	}

	pd := api.ProgressDeps{DB: dbh, Store: store, Events: events}

	// Protected API (JWT → subject+role in context → RBAC)
	r.Group(func(pr chi.Router) {
		pr.Use(auth.JWTMiddleware(authSvc))
		// roles come from the users table; the claim is a dev fallback offline
		pr.Use(auth.AttachRoleFromDB(dbh, cfg.Mode == config.ModeOffline))

		// Quizzes
		pr.With(rbac.Require("quiz:create")).
			Post("/quizzes", api.UploadQuizHandler(store))
		pr.With(rbac.Require("quiz:view")).
			Get("/quizzes", api.ListQuizzesHandler(store))
		pr.With(rbac.Require("quiz:view")).
			Get("/quizzes/{quizID}", api.GetQuizHandler(store))
		pr.With(rbac.RequireAny("attempt:view-own", "attempt:view-all")).
			Get("/quizzes/{quizID}/score", api.CountedScoreHandler(store))

		// Student attempt flow
		pr.With(rbac.Require("attempt:create")).
			Post("/attempts", api.CreateAttemptHandler(store))
		pr.With(rbac.Require("attempt:save")).
			Post("/attempts/{attemptID}/responses", api.SaveResponsesHandler(store))
		pr.With(rbac.Require("attempt:submit")).
			Post("/attempts/{attemptID}/submit", api.SubmitAttemptHandler(store, events))
		pr.With(rbac.RequireAny("attempt:view-own", "attempt:view-all")).
			Get("/attempts", api.ListAttemptsHandler(store))
		pr.With(rbac.RequireAny("attempt:view-own", "attempt:view-all")).
			Get("/attempts/{attemptID}", api.GetAttemptHandler(store))

		// Manual grading (essays, flagged questions)
		pr.With(rbac.Require("attempt:grade")).
			Get("/attempts/{attemptID}/grading", api.GetAttemptGradingHandler(store))
		pr.With(rbac.Require("attempt:grade")).
			Post("/attempts/{attemptID}/grading", api.ApplyAttemptGradingHandler(store, events))

		// Courses
		pr.With(rbac.Require("course:create")).
			Post("/courses", api.CreateCourseHandler(dbh))
		pr.With(rbac.Require("course:join")).
			Post("/courses/join", api.JoinCourseHandler(dbh))
		pr.With(rbac.Require("course:delete_own")).
			Delete("/courses/{courseID}", api.DeleteCourseHandler(dbh))
		pr.With(rbac.RequireAny("course:join", "course:create")).
			Get("/courses", api.ListCoursesHandler(dbh))

		// Lessons and materials
		pr.With(rbac.Require("lesson:create")).
			Post("/courses/{courseID}/lessons", api.CreateLessonHandler(dbh))
		pr.With(rbac.Require("lesson:view")).
			Get("/courses/{courseID}/lessons", api.ListLessonsHandler(dbh))
		pr.With(rbac.Require("material:create")).
			Post("/lessons/{lessonID}/materials", api.AddMaterialHandler(dbh))
		pr.With(rbac.Require("lesson:view")).
			Post("/lessons/{lessonID}/open", api.OpenLessonHandler(dbh))

		// Worksheet submissions
		pr.With(rbac.Require("material:submit")).
			Post("/materials/{materialID}/submission", api.SubmitWorksheetHandler(dbh, bs))
		pr.With(rbac.RequireAny("material:submit", "attempt:view-all")).
			Get("/materials/{materialID}/submission", api.GetWorksheetSubmissionHandler(dbh, bs))

		// Progress
		pr.With(rbac.RequireAny("progress:view-own", "progress:view-all")).
			Get("/lessons/{lessonID}/progress", api.LessonProgressHandler(pd))
		pr.With(rbac.RequireAny("progress:view-own", "progress:view-all")).
			Get("/lessons/{lessonID}/access", api.LessonAccessHandler(pd))
		pr.With(rbac.RequireAny("progress:view-own", "progress:view-all")).
			Get("/courses/{courseID}/progress", api.CourseProgressHandler(pd))

		// Sync pull feed (admin only; matched via the wildcard role)
		pr.With(rbac.Require("sync:read")).
			Get("/events", api.ListEventsHandler(events))

		// Users (teacher/admin)
		pr.With(rbac.Require("users:bulk_upsert")).
			Post("/users/bulk", api.BulkUpsertUsersHandler(dbh))
		pr.With(rbac.Require("users:list")).
			Get("/users", api.ListUsersHandler(dbh))
		pr.With(rbac.Require("user:change_password")).
			Post("/users/change-password", api.ChangePasswordHandler(dbh))
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })

	log.Printf("listening on %s (mode=%s, db=%s, site=%s)", cfg.HTTPAddr, cfg.Mode, cfg.DBDriver, cfg.SiteID)
	log.Fatal(http.ListenAndServe(cfg.HTTPAddr, r))
}

func getenvOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
