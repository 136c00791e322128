package quiz

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vidpod/vidpod-lms/internal/grading"
)

// memoryStore backs tests and single-process dev runs.
type memoryStore struct {
	mu       sync.RWMutex
	grader   grading.Grader
	quizzes  map[string]Quiz
	attempts map[string]Attempt
}

func NewInMemoryStore(grader grading.Grader) Store {
	return &memoryStore{
		grader:   grader,
		quizzes:  map[string]Quiz{},
		attempts: map[string]Attempt{},
	}
}

func (m *memoryStore) PutQuiz(_ context.Context, z Quiz) error {
	if err := z.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if z.CreatedAt == 0 {
		z.CreatedAt = time.Now().Unix()
	}
	m.quizzes[z.ID] = z
	return nil
}

func (m *memoryStore) GetQuiz(_ context.Context, id string) (Quiz, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	z, ok := m.quizzes[id]
	if !ok {
		return Quiz{}, ErrQuizNotFound
	}
	// copy before stripping so the stored quiz keeps its keys
	z.Questions = append([]Question(nil), z.Questions...)
	z.StripKeys()
	return z, nil
}

func (m *memoryStore) GetQuizAuthoring(_ context.Context, id string) (Quiz, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	z, ok := m.quizzes[id]
	if !ok {
		return Quiz{}, ErrQuizNotFound
	}
	return z, nil
}

func (m *memoryStore) ListQuizzes(_ context.Context, opts ListOpts) ([]QuizSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []QuizSummary{}
	q := strings.ToLower(strings.TrimSpace(opts.Q))
	for _, z := range m.quizzes {
		if opts.LessonID != "" && z.LessonID != opts.LessonID {
			continue
		}
		if q != "" && !strings.Contains(strings.ToLower(z.Title), q) {
			continue
		}
		out = append(out, QuizSummary{
			ID: z.ID, LessonID: z.LessonID, Title: z.Title,
			NumQuestions: len(z.Questions), CreatedAt: z.CreatedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt > out[j].CreatedAt })
	return out, nil
}

func (m *memoryStore) NewAttempt(_ context.Context, quizID, studentID string, practice bool) (Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	z, ok := m.quizzes[quizID]
	if !ok {
		return Attempt{}, ErrQuizNotFound
	}
	history := m.historyLocked(quizID, studentID)
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
	m.attempts[a.ID] = a
	return a, nil
}

func (m *memoryStore) SaveResponses(_ context.Context, attemptID string, resp map[string]interface{}) (Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.attempts[attemptID]
	if !ok {
		return Attempt{}, ErrAttemptNotFound
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
	m.attempts[attemptID] = a
	return a, nil
}

func (m *memoryStore) Submit(ctx context.Context, attemptID string) (Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.attempts[attemptID]
	if !ok {
		return Attempt{}, ErrAttemptNotFound
	}
	if a.Status == StatusSubmitted {
		return a, nil
	}
	z, ok := m.quizzes[a.QuizID]
	if !ok {
		return Attempt{}, ErrQuizNotFound
	}
	m.applyScoreLocked(&a, grading.ScoreAttempt(ctx, m.grader, z.GradingView(), a.Responses, a.ManualGrades))
	a.Status = StatusSubmitted
	a.SubmittedAt = time.Now().Unix()
	m.attempts[attemptID] = a
	return a, nil
}

func (m *memoryStore) GetAttempt(_ context.Context, id string) (Attempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.attempts[id]
	if !ok {
		return Attempt{}, ErrAttemptNotFound
	}
	return a, nil
}

func (m *memoryStore) ListAttempts(_ context.Context, opts AttemptListOpts) ([]Attempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []Attempt{}
	for _, a := range m.attempts {
		if opts.QuizID != "" && a.QuizID != opts.QuizID {
			continue
		}
		if opts.StudentID != "" && a.StudentID != opts.StudentID {
			continue
		}
		if opts.Status != "" && a.Status != opts.Status {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt > out[j].StartedAt })
	return out, nil
}

func (m *memoryStore) CountedScore(_ context.Context, quizID, studentID string) (grading.Counted, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	z, ok := m.quizzes[quizID]
	if !ok {
		return grading.Counted{}, ErrQuizNotFound
	}
	history := m.historyLocked(quizID, studentID)
	return grading.CountedScore(z.GradingMethod, z.PassingScorePercent, Records(history))
}

func (m *memoryStore) ApplyManualGrades(ctx context.Context, attemptID string, updates map[string]ManualGradeInput, gradedBy string) (Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.attempts[attemptID]
	if !ok {
		return Attempt{}, ErrAttemptNotFound
	}
	if a.Status != StatusSubmitted {
		return Attempt{}, errors.New("attempt not submitted")
	}
	z, ok := m.quizzes[a.QuizID]
	if !ok {
		return Attempt{}, ErrQuizNotFound
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
			return Attempt{}, errors.New("question not in quiz: " + qid)
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
	m.applyScoreLocked(&a, grading.ScoreAttempt(ctx, m.grader, z.GradingView(), a.Responses, a.ManualGrades))
	m.attempts[attemptID] = a
	return a, nil
}

func (m *memoryStore) historyLocked(quizID, studentID string) []Attempt {
	out := []Attempt{}
	for _, a := range m.attempts {
		if a.QuizID == quizID && a.StudentID == studentID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AttemptNumber < out[j].AttemptNumber })
	return out
}

func (m *memoryStore) applyScoreLocked(a *Attempt, score grading.Score) {
	a.EarnedPoints = score.EarnedPoints
	a.TotalPoints = score.TotalPoints
	a.PercentageScore = score.PercentageScore
	a.Passed = score.Passed
	a.NeedsManual = score.NeedsManual
	a.Breakdown = score.PerQuestion
}
