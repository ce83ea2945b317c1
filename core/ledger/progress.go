package ledger

import "math"

// Progress derives the percent-complete of an enrollment from its counters.
// Totals below 1 count as 1 so an empty course is either 0 or 100, never a
// division by zero. The result is clamped to 0-100.
func Progress(completedLessons, completedExams, totalLessons, totalExams int) int {
	total := totalLessons + totalExams
	if total < 1 {
		total = 1
	}
	done := completedLessons + completedExams
	if done < 0 {
		done = 0
	}

	pct := int(math.Round(float64(done) / float64(total) * 100))
	if pct > 100 {
		pct = 100
	}
	return pct
}

// IsComplete reports whether a course is fully complete at the given
// progress percentage.
func IsComplete(progress int) bool { return progress >= 100 }
