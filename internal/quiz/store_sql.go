package quiz

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vidpod/vidpod-lms/internal/grading"
)

var (
	ErrQuizNotFound    = errors.New("quiz not found")
	ErrAttemptNotFound = errors.New("attempt not found")
)

type SQLStore struct {
	db     *sql.DB
	driver string // "sqlite" or "postgres"
	grader grading.Grader
}

func NewSQLStore(db *sql.DB, driver string, grader grading.Grader) *SQLStore {
	return &SQLStore{db: db, driver: driver, grader: grader}
}

func (s *SQLStore) PutQuiz(ctx context.Context, z Quiz) error {
	if err := z.Validate(); err != nil {
		return err
	}
	qj, err := json.Marshal(z.Questions)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO quizzes
		(id,lesson_id,title,time_limit_minutes,attempts_allowed,grading_method,passing_score_percent,questions_json,created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (id) DO UPDATE SET
			lesson_id=EXCLUDED.lesson_id,
			title=EXCLUDED.title,
			time_limit_minutes=EXCLUDED.time_limit_minutes,
			attempts_allowed=EXCLUDED.attempts_allowed,
			grading_method=EXCLUDED.grading_method,
			passing_score_percent=EXCLUDED.passing_score_percent,
			questions_json=EXCLUDED.questions_json`,
		z.ID, z.LessonID, z.Title, z.TimeLimitMinutes, z.AttemptsAllowed,
		string(z.GradingMethod), z.PassingScorePercent, string(qj), time.Now().Unix())
	return err
}

func (s *SQLStore) getQuiz(ctx context.Context, id string) (Quiz, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id,lesson_id,title,time_limit_minutes,attempts_allowed,
		grading_method,passing_score_percent,questions_json,created_at FROM quizzes WHERE id=$1`, id)
	var z Quiz
	var method, qjson string
	if err := row.Scan(&z.ID, &z.LessonID, &z.Title, &z.TimeLimitMinutes, &z.AttemptsAllowed,
		&method, &z.PassingScorePercent, &qjson, &z.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Quiz{}, ErrQuizNotFound
		}
		return Quiz{}, err
	}
	z.GradingMethod = grading.GradingMethod(method)
	if err := json.Unmarshal([]byte(qjson), &z.Questions); err != nil {
		return Quiz{}, err
	}
	return z, nil
}

// GetQuiz serves the student view: answer keys stripped.
func (s *SQLStore) GetQuiz(ctx context.Context, id string) (Quiz, error) {
	z, err := s.getQuiz(ctx, id)
	if err != nil {
		return Quiz{}, err
	}
	z.StripKeys()
	return z, nil
}

func (s *SQLStore) GetQuizAuthoring(ctx context.Context, id string) (Quiz, error) {
	return s.getQuiz(ctx, id)
}

func (s *SQLStore) ListQuizzes(ctx context.Context, opts ListOpts) ([]QuizSummary, error) {
	limit := opts.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	sqlStr := `SELECT id,lesson_id,title,questions_json,created_at FROM quizzes WHERE 1=1`
	args := []any{}
	if opts.LessonID != "" {
		args = append(args, opts.LessonID)
		sqlStr += fmt.Sprintf(" AND lesson_id=$%d", len(args))
	}
	if q := strings.TrimSpace(opts.Q); q != "" {
		args = append(args, "%"+strings.ToLower(q)+"%")
		sqlStr += fmt.Sprintf(" AND LOWER(title) LIKE $%d", len(args))
	}
	args = append(args, limit, opts.Offset)
	sqlStr += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []QuizSummary{}
	for rows.Next() {
		var sm QuizSummary
		var qjson string
		if err := rows.Scan(&sm.ID, &sm.LessonID, &sm.Title, &qjson, &sm.CreatedAt); err != nil {
			return nil, err
		}
		var qs []Question
		if err := json.Unmarshal([]byte(qjson), &qs); err == nil {
			sm.NumQuestions = len(qs)
		}
		out = append(out, sm)
	}
	return out, rows.Err()
}

func (s *SQLStore) NewAttempt(ctx context.Context, quizID, studentID string, practice bool) (Attempt, error) {
	z, err := s.getQuiz(ctx, quizID)
	if err != nil {
		return Attempt{}, err
	}
	history, err := s.ListAttempts(ctx, AttemptListOpts{QuizID: quizID, StudentID: studentID, Limit: -1})
	if err != nil {
		return Attempt{}, err
	}
	if !practice {
		if err := grading.EnforceLimit(z.AttemptsAllowed, Records(history)); err != nil {
			return Attempt{}, err
		}
	}
	next := 1
	for _, a := range history {
		if a.AttemptNumber >= next {
			next = a.AttemptNumber + 1
		}
	}

	a := Attempt{
		ID:            uuid.NewString(),
		QuizID:        quizID,
		StudentID:     studentID,
		AttemptNumber: next,
		Status:        StatusInProgress,
		IsPractice:    practice,
		Responses:     map[string]interface{}{},
		StartedAt:     time.Now().Unix(),
	}
	respJSON, _ := json.Marshal(a.Responses)
	// UNIQUE(quiz_id,student_id,attempt_number) serializes concurrent
	// creates; the caller retries on a constraint violation.
	_, err = s.db.ExecContext(ctx, `INSERT INTO attempts
		(id,quiz_id,student_id,attempt_number,status,is_practice,earned_points,total_points,percentage_score,passed,responses_json,breakdown_json,manual_json,started_at)
		VALUES ($1,$2,$3,$4,$5,$6,0,0,0,$7,$8,'','',$9)`,
		a.ID, a.QuizID, a.StudentID, a.AttemptNumber, a.Status, a.IsPractice, false, string(respJSON), a.StartedAt)
	if err != nil {
		return Attempt{}, err
	}
	return a, nil
}

func (s *SQLStore) SaveResponses(ctx context.Context, attemptID string, resp map[string]interface{}) (Attempt, error) {
	a, err := s.GetAttempt(ctx, attemptID)
	if err != nil {
		return Attempt{}, err
	}
	if a.Status == StatusSubmitted {
		return Attempt{}, errors.New("attempt already submitted")
	}
	if a.Responses == nil {
		a.Responses = map[string]interface{}{}
	}
	for k, v := range resp {
		a.Responses[k] = v
	}
	buf, _ := json.Marshal(a.Responses)
	if _, err = s.db.ExecContext(ctx, `UPDATE attempts SET responses_json=$1 WHERE id=$2`, string(buf), attemptID); err != nil {
		return Attempt{}, err
	}
	return s.GetAttempt(ctx, attemptID)
}

// Submit grades the attempt and persists responses and score in one write.
func (s *SQLStore) Submit(ctx context.Context, attemptID string) (Attempt, error) {
	a, err := s.GetAttempt(ctx, attemptID)
	if err != nil {
		return Attempt{}, err
	}
	if a.Status == StatusSubmitted {
		return a, nil
	}
	z, err := s.getQuiz(ctx, a.QuizID)
	if err != nil {
		return Attempt{}, err
	}

	score := grading.ScoreAttempt(ctx, s.grader, z.GradingView(), a.Responses, a.ManualGrades)

	respJSON, _ := json.Marshal(a.Responses)
	bdJSON, _ := json.Marshal(score.PerQuestion)
	now := time.Now().Unix()
	_, err = s.db.ExecContext(ctx, `UPDATE attempts SET
		status=$1, earned_points=$2, total_points=$3, percentage_score=$4, passed=$5,
		needs_manual=$6, responses_json=$7, breakdown_json=$8, submitted_at=$9
		WHERE id=$10`,
		StatusSubmitted, score.EarnedPoints, score.TotalPoints, score.PercentageScore, score.Passed,
		score.NeedsManual, string(respJSON), string(bdJSON), now, attemptID)
	if err != nil {
		return Attempt{}, err
	}
	return s.GetAttempt(ctx, attemptID)
}

func (s *SQLStore) GetAttempt(ctx context.Context, id string) (Attempt, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id,quiz_id,student_id,attempt_number,status,is_practice,
		earned_points,total_points,percentage_score,passed,needs_manual,
		responses_json,breakdown_json,manual_json,started_at,submitted_at
		FROM attempts WHERE id=$1`, id)
	a, err := scanAttempt(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Attempt{}, ErrAttemptNotFound
		}
		return Attempt{}, err
	}
	return a, nil
}

func (s *SQLStore) ListAttempts(ctx context.Context, opts AttemptListOpts) ([]Attempt, error) {
	sqlStr := `SELECT id,quiz_id,student_id,attempt_number,status,is_practice,
		earned_points,total_points,percentage_score,passed,needs_manual,
		responses_json,breakdown_json,manual_json,started_at,submitted_at
		FROM attempts WHERE 1=1`
	args := []any{}
	if opts.QuizID != "" {
		args = append(args, opts.QuizID)
		sqlStr += fmt.Sprintf(" AND quiz_id=$%d", len(args))
	}
	if opts.StudentID != "" {
		args = append(args, opts.StudentID)
		sqlStr += fmt.Sprintf(" AND student_id=$%d", len(args))
	}
	if opts.Status != "" {
		args = append(args, opts.Status)
		sqlStr += fmt.Sprintf(" AND status=$%d", len(args))
	}
	switch opts.Sort {
	case "submitted_at":
		sqlStr += " ORDER BY submitted_at DESC"
	default:
		sqlStr += " ORDER BY started_at DESC"
	}
	// Limit < 0 means the full history (internal callers).
	if opts.Limit >= 0 {
		limit := opts.Limit
		if limit == 0 || limit > 200 {
			limit = 50
		}
		args = append(args, limit, opts.Offset)
		sqlStr += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	}

	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Attempt{}
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *SQLStore) CountedScore(ctx context.Context, quizID, studentID string) (grading.Counted, error) {
	z, err := s.getQuiz(ctx, quizID)
	if err != nil {
		return grading.Counted{}, err
	}
	history, err := s.ListAttempts(ctx, AttemptListOpts{QuizID: quizID, StudentID: studentID, Limit: -1})
	if err != nil {
		return grading.Counted{}, err
	}
	return grading.CountedScore(z.GradingMethod, z.PassingScorePercent, Records(history))
}

// ApplyManualGrades folds teacher-entered points into the attempt and
// rescores it through the same scorer used at submit time.
func (s *SQLStore) ApplyManualGrades(ctx context.Context, attemptID string, updates map[string]ManualGradeInput, gradedBy string) (Attempt, error) {
	a, err := s.GetAttempt(ctx, attemptID)
	if err != nil {
		return Attempt{}, err
	}
	if a.Status != StatusSubmitted {
		return Attempt{}, errors.New("attempt not submitted")
	}
	z, err := s.getQuiz(ctx, a.QuizID)
	if err != nil {
		return Attempt{}, err
	}
	byID := make(map[string]Question, len(z.Questions))
	for _, q := range z.Questions {
		byID[q.ID] = q
	}

	if a.ManualGrades == nil {
		a.ManualGrades = map[string]grading.ManualGrade{}
	}
	for qid, in := range updates {
		q, ok := byID[qid]
		if !ok {
			return Attempt{}, fmt.Errorf("question %s not in quiz %s", qid, z.ID)
		}
		pts := in.ManualPoints
		comment := in.Comment
		if q.Rubric != nil && len(in.RubricAwards) > 0 {
			total, notes := grading.ScoreRubric(*q.Rubric, in.RubricAwards)
			pts = total
			if comment == "" {
				comment = strings.Join(notes, " ")
			}
		}
		a.ManualGrades[qid] = grading.ManualGrade{Points: pts, GradedBy: gradedBy, Comment: comment}
	}

	score := grading.ScoreAttempt(ctx, s.grader, z.GradingView(), a.Responses, a.ManualGrades)
	bdJSON, _ := json.Marshal(score.PerQuestion)
	mgJSON, _ := json.Marshal(a.ManualGrades)
	_, err = s.db.ExecContext(ctx, `UPDATE attempts SET
		earned_points=$1, total_points=$2, percentage_score=$3, passed=$4,
		needs_manual=$5, breakdown_json=$6, manual_json=$7
		WHERE id=$8`,
		score.EarnedPoints, score.TotalPoints, score.PercentageScore, score.Passed,
		score.NeedsManual, string(bdJSON), string(mgJSON), attemptID)
	if err != nil {
		return Attempt{}, err
	}
	return s.GetAttempt(ctx, attemptID)
}

type rowScanner interface{ Scan(dest ...any) error }

func scanAttempt(row rowScanner) (Attempt, error) {
	var a Attempt
	var rjson, bjson, mjson string
	var submitted sql.NullInt64
	if err := row.Scan(&a.ID, &a.QuizID, &a.StudentID, &a.AttemptNumber, &a.Status, &a.IsPractice,
		&a.EarnedPoints, &a.TotalPoints, &a.PercentageScore, &a.Passed, &a.NeedsManual,
		&rjson, &bjson, &mjson, &a.StartedAt, &submitted); err != nil {
		return Attempt{}, err
	}
	if submitted.Valid {
		a.SubmittedAt = submitted.Int64
	}
	if err := json.Unmarshal([]byte(rjson), &a.Responses); err != nil {
		a.Responses = map[string]interface{}{}
	}
	if bjson != "" {
		_ = json.Unmarshal([]byte(bjson), &a.Breakdown)
	}
	if mjson != "" {
		_ = json.Unmarshal([]byte(mjson), &a.ManualGrades)
	}
	return a, nil
}
