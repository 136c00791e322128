package grading

import (
	"context"
	"errors"
	"fmt"
	"strconv"
)

// QuestionType identifies one of the gradable item kinds.
type QuestionType string

const (
	MultipleChoice QuestionType = "multiple_choice"
	MultipleSelect QuestionType = "multiple_select"
	TrueFalse      QuestionType = "true_false"
	ShortAnswer    QuestionType = "short_answer"
	FillBlank      QuestionType = "fill_blank"
	Matching       QuestionType = "matching"
	Essay          QuestionType = "essay"
)

// ErrInvalidQuestionType signals an unknown type string in question config.
// This is a data-integrity problem for the authoring side, not a student error.
var ErrInvalidQuestionType = errors.New("invalid question type")

// AnswerKey holds the per-type key material. Only the fields for the
// question's type are consulted; every type except essay must populate its
// variant.
type AnswerKey struct {
	Choice        string            `json:"choice,omitempty"`         // multiple_choice: the correct option id
	Choices       []string          `json:"choices,omitempty"`        // multiple_select: the correct option set
	Bool          *bool             `json:"bool,omitempty"`           // true_false
	Accepted      []string          `json:"accepted,omitempty"`       // short_answer: accepted answers
	CaseSensitive bool              `json:"case_sensitive,omitempty"` // short_answer / fill_blank
	Blanks        [][]string        `json:"blanks,omitempty"`         // fill_blank: accepted answers per blank, positional
	Pairs         map[string]string `json:"pairs,omitempty"`          // matching: left id -> right id
}

// Q is a minimal view of a question needed for grading.
// Keep this in sync with whatever fields your store uses.
type Q struct {
	ID     string
	Type   QuestionType
	Points float64
	Key    AnswerKey
}

// Result is the outcome of grading a single question response.
type Result struct {
	IsCorrect    bool     // full-credit answer; always false while NeedsManual
	EarnedPoints float64  // points awarded automatically
	MaxPoints    float64  // the question's max points
	NeedsManual  bool     // true if teacher review is required
	Feedback     []string // optional notes
}

// Strategy grades a single question.
type Strategy interface {
	Grade(ctx context.Context, q Q, response interface{}) (Result, error)
}

// Grader routes by question type to the correct Strategy.
type Grader interface {
	Grade(ctx context.Context, q Q, response interface{}) (Result, error)
}

type defaultGrader struct {
	strategies map[QuestionType]Strategy
}

func (g *defaultGrader) Grade(ctx context.Context, q Q, response interface{}) (Result, error) {
	s, ok := g.strategies[q.Type]
	if !ok {
		return Result{MaxPoints: q.Points}, fmt.Errorf("%w: %q", ErrInvalidQuestionType, q.Type)
	}
	// A missing answer is a valid submission state: zero points, no error.
	// Essays still route through their strategy so the manual flag is set.
	if response == nil && q.Type != Essay {
		return Result{MaxPoints: q.Points}, nil
	}
	return s.Grade(ctx, q, response)
}

// Engine options

type Option func(*config)

type config struct {
	AllowPartialSelect bool // partial credit for multiple_select without false positives
}

// WithPartialSelect enables proportional credit on multiple_select answers
// that contain no wrong options. Off by default: an exact-match set is the
// only way to score.
func WithPartialSelect(b bool) Option { return func(c *config) { c.AllowPartialSelect = b } }

// NewDefaultGrader installs built-in strategies.
func NewDefaultGrader(opts ...Option) Grader {
	cfg := &config{}
	for _, o := range opts {
		o(cfg)
	}
	return &defaultGrader{
		strategies: map[QuestionType]Strategy{
			MultipleChoice: singleChoiceStrategy{},
			TrueFalse:      trueFalseStrategy{},
			MultipleSelect: multiSelectStrategy{allowPartial: cfg.AllowPartialSelect},
			ShortAnswer:    shortAnswerStrategy{},
			FillBlank:      fillBlankStrategy{},
			Matching:       matchingStrategy{},
			Essay:          essayStrategy{},
		},
	}
}

// --- Strategies ---

type singleChoiceStrategy struct{}

func (singleChoiceStrategy) Grade(_ context.Context, q Q, response interface{}) (Result, error) {
	res := Result{MaxPoints: q.Points}
	resp, ok := response.(string)
	if !ok {
		return res, errors.New("response must be string")
	}
	if q.Key.Choice != "" && resp == q.Key.Choice {
		res.IsCorrect = true
		res.EarnedPoints = q.Points
	}
	return res, nil
}

type trueFalseStrategy struct{}

func (trueFalseStrategy) Grade(_ context.Context, q Q, response interface{}) (Result, error) {
	res := Result{MaxPoints: q.Points}
	if q.Key.Bool == nil {
		return res, errors.New("true_false key missing")
	}
	var v bool
	switch t := response.(type) {
	case bool:
		v = t
	case string:
		b, err := strconv.ParseBool(t)
		if err != nil {
			return res, errors.New("response must be boolean")
		}
		v = b
	default:
		return res, errors.New("response must be boolean")
	}
	if v == *q.Key.Bool {
		res.IsCorrect = true
		res.EarnedPoints = q.Points
	}
	return res, nil
}

type multiSelectStrategy struct{ allowPartial bool }

func (s multiSelectStrategy) Grade(_ context.Context, q Q, response interface{}) (Result, error) {
	res := Result{MaxPoints: q.Points}
	respSlice, ok := toStringSlice(response)
	if !ok {
		return res, errors.New("response must be []string")
	}
	correct := toSet(q.Key.Choices)
	resp := toSet(respSlice)

	if len(correct) > 0 && setEqual(correct, resp) {
		res.IsCorrect = true
		res.EarnedPoints = q.Points
		return res, nil
	}
	if !s.allowPartial || len(correct) == 0 {
		return res, nil
	}
	for r := range resp {
		if _, ok := correct[r]; !ok {
			// any wrong pick forfeits partial credit
			return res, nil
		}
	}
	inter := 0
	for k := range resp {
		if _, ok := correct[k]; ok {
			inter++
		}
	}
	res.EarnedPoints = q.Points * (float64(inter) / float64(len(correct)))
	return res, nil
}

type shortAnswerStrategy struct{}

func (shortAnswerStrategy) Grade(_ context.Context, q Q, response interface{}) (Result, error) {
	res := Result{MaxPoints: q.Points}
	resp, ok := response.(string)
	if !ok {
		return res, errors.New("response must be string")
	}
	if matchesAny(resp, q.Key.Accepted, q.Key.CaseSensitive) {
		res.IsCorrect = true
		res.EarnedPoints = q.Points
	}
	return res, nil
}

// fillBlankStrategy scores each blank independently; credit is proportional
// to the fraction of blanks answered correctly.
type fillBlankStrategy struct{}

func (fillBlankStrategy) Grade(_ context.Context, q Q, response interface{}) (Result, error) {
	res := Result{MaxPoints: q.Points}
	blanks, ok := toStringSlice(response)
	if !ok {
		return res, errors.New("response must be []string, one entry per blank")
	}
	n := len(q.Key.Blanks)
	if n == 0 {
		return res, errors.New("fill_blank key missing")
	}
	hit := 0
	for i, accepted := range q.Key.Blanks {
		if i >= len(blanks) {
			break
		}
		if matchesAny(blanks[i], accepted, q.Key.CaseSensitive) {
			hit++
		}
	}
	res.EarnedPoints = q.Points * (float64(hit) / float64(n))
	res.IsCorrect = hit == n
	if hit > 0 && hit < n {
		res.Feedback = append(res.Feedback, fmt.Sprintf("blanks correct: %d/%d", hit, n))
	}
	return res, nil
}

// matchingStrategy scores each pair independently, mirroring fill_blank.
type matchingStrategy struct{}

func (matchingStrategy) Grade(_ context.Context, q Q, response interface{}) (Result, error) {
	res := Result{MaxPoints: q.Points}
	pairs, ok := toStringMap(response)
	if !ok {
		return res, errors.New("response must be map[string]string")
	}
	n := len(q.Key.Pairs)
	if n == 0 {
		return res, errors.New("matching key missing")
	}
	hit := 0
	for left, right := range q.Key.Pairs {
		if pairs[left] == right {
			hit++
		}
	}
	res.EarnedPoints = q.Points * (float64(hit) / float64(n))
	res.IsCorrect = hit == n
	if hit > 0 && hit < n {
		res.Feedback = append(res.Feedback, fmt.Sprintf("pairs correct: %d/%d", hit, n))
	}
	return res, nil
}

type essayStrategy struct{}

func (essayStrategy) Grade(_ context.Context, q Q, response interface{}) (Result, error) {
	return Result{MaxPoints: q.Points, NeedsManual: true, Feedback: []string{"manual grading required"}}, nil
}

// helpers

func toStringSlice(v interface{}) ([]string, bool) {
	switch t := v.(type) {
	case []string:
		return t, true
	case []interface{}:
		out := make([]string, 0, len(t))
		for _, e := range t {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out, true
	default:
		return nil, false
	}
}

func toStringMap(v interface{}) (map[string]string, bool) {
	switch t := v.(type) {
	case map[string]string:
		return t, true
	case map[string]interface{}:
		out := make(map[string]string, len(t))
		for k, e := range t {
			if s, ok := e.(string); ok {
				out[k] = s
			}
		}
		return out, true
	default:
		return nil, false
	}
}

func toSet(arr []string) map[string]struct{} {
	m := make(map[string]struct{}, len(arr))
	for _, s := range arr {
		m[s] = struct{}{}
	}
	return m
}

func setEqual(a, b map[string]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}
