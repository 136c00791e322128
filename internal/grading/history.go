package grading

import (
	"errors"
	"fmt"
)

// GradingMethod is the policy for turning multiple attempts into one
// counted score.
type GradingMethod string

const (
	MethodBest    GradingMethod = "best"
	MethodLatest  GradingMethod = "latest"
	MethodAverage GradingMethod = "average"
	MethodFirst   GradingMethod = "first"
)

// ErrNoAttempts means no counted attempts exist yet. Callers must treat
// this as "not yet attempted", not as a failure or a 0% score.
var ErrNoAttempts = errors.New("no counted attempts")

// ErrAttemptLimit rejects a new attempt past the quiz's allowance.
var ErrAttemptLimit = errors.New("attempt limit exceeded")

// Record is one attempt of a (student, quiz) history as the aggregator
// sees it.
type Record struct {
	AttemptID       string
	AttemptNumber   int
	PercentageScore float64
	Passed          bool
	IsPractice      bool
	Completed       bool // submitted, with a stored score
}

// Counted is the single score chosen to represent a student's performance
// on a quiz.
type Counted struct {
	Method          GradingMethod
	PercentageScore float64
	Passed          bool
	Basis           Record // the attempt the score derives from; latest one for average
	CountedAttempts int
}

// EnforceLimit rejects a new-attempt request once the student has used up
// the quiz's allowance. Practice attempts never count against the limit.
// attemptsAllowed <= 0 means unlimited.
func EnforceLimit(attemptsAllowed int, records []Record) error {
	if attemptsAllowed <= 0 {
		return nil
	}
	used := 0
	for _, r := range records {
		if !r.IsPractice {
			used++
		}
	}
	if used >= attemptsAllowed {
		return fmt.Errorf("%w: %d of %d used", ErrAttemptLimit, used, attemptsAllowed)
	}
	return nil
}

// CountedScore applies the grading method to the student's attempt
// history. Practice and unfinished attempts are filtered out first; they
// exist purely for rehearsal and never influence the counted score.
func CountedScore(method GradingMethod, passingPercent float64, records []Record) (Counted, error) {
	counted := make([]Record, 0, len(records))
	for _, r := range records {
		if r.IsPractice || !r.Completed {
			continue
		}
		counted = append(counted, r)
	}
	if len(counted) == 0 {
		return Counted{}, ErrNoAttempts
	}

	out := Counted{Method: method, CountedAttempts: len(counted)}
	switch method {
	case MethodBest:
		best := counted[0]
		for _, r := range counted[1:] {
			// ties keep the earliest attempt: first-try mastery wins
			if r.PercentageScore > best.PercentageScore ||
				(r.PercentageScore == best.PercentageScore && r.AttemptNumber < best.AttemptNumber) {
				best = r
			}
		}
		out.Basis = best
	case MethodLatest:
		latest := counted[0]
		for _, r := range counted[1:] {
			if r.AttemptNumber > latest.AttemptNumber {
				latest = r
			}
		}
		out.Basis = latest
	case MethodFirst:
		first := counted[0]
		for _, r := range counted[1:] {
			if r.AttemptNumber < first.AttemptNumber {
				first = r
			}
		}
		out.Basis = first
	case MethodAverage:
		sum := 0.0
		latest := counted[0]
		for _, r := range counted {
			sum += r.PercentageScore
			if r.AttemptNumber > latest.AttemptNumber {
				latest = r
			}
		}
		out.Basis = latest
		out.PercentageScore = round2(sum / float64(len(counted)))
		out.Passed = out.PercentageScore >= passingPercent
		return out, nil
	default:
		return Counted{}, fmt.Errorf("unknown grading method: %q", method)
	}

	out.PercentageScore = out.Basis.PercentageScore
	out.Passed = out.Basis.Passed
	return out, nil
}
