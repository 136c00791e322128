package grading

import "strings"

// foldAnswer trims leading/trailing whitespace and, unless the question is
// case-sensitive, lowercases for comparison.
func foldAnswer(s string, caseSensitive bool) string {
	s = strings.TrimSpace(s)
	if !caseSensitive {
		s = strings.ToLower(s)
	}
	return s
}

// matchesAny reports whether the submission matches one of the accepted
// answers under the question's case policy.
func matchesAny(submission string, accepted []string, caseSensitive bool) bool {
	got := foldAnswer(submission, caseSensitive)
	for _, a := range accepted {
		if got == foldAnswer(a, caseSensitive) {
			return true
		}
	}
	return false
}
