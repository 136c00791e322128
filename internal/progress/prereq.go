package progress

// PrerequisiteThreshold is the completion percentage a prerequisite lesson
// must reach before its dependents unlock. Boundary inclusive.
const PrerequisiteThreshold = 70.0

// Unlocked decides whether a lesson is accessible. Lessons without a
// prerequisite are always unlocked.
//
// This is evaluated lazily per access check rather than persisted, so a
// retroactive change to the prerequisite's completion (a manually graded
// essay, say) takes effect on the next check.
func Unlocked(hasPrerequisite bool, prerequisiteCompletion float64) bool {
	if !hasPrerequisite {
		return true
	}
	return prerequisiteCompletion >= PrerequisiteThreshold
}

// UnlockReason names why a lesson is (or is not) accessible, for the
// presentation side.
func UnlockReason(hasPrerequisite bool, prerequisiteCompletion float64) string {
	switch {
	case !hasPrerequisite:
		return "no_prerequisite"
	case prerequisiteCompletion >= PrerequisiteThreshold:
		return "prerequisite_met"
	default:
		return "prerequisite_incomplete"
	}
}
