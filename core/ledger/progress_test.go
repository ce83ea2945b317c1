package ledger

import "testing"

func TestProgress(t *testing.T) {
	tests := []struct {
		name                             string
		completedLessons, completedExams int
		totalLessons, totalExams         int
		want                             int
	}{
		{name: "nothing done", totalLessons: 10, want: 0},
		{name: "half done", completedLessons: 1, totalLessons: 2, want: 50},
		{name: "all done", completedLessons: 2, totalLessons: 2, want: 100},
		{name: "rounds up", completedLessons: 2, totalLessons: 3, want: 67},
		{name: "rounds down", completedLessons: 1, totalLessons: 3, want: 33},
		{name: "empty course", want: 0},
		{name: "empty course with stale completion", completedLessons: 1, want: 100},
		{name: "clamped at 100", completedLessons: 5, totalLessons: 2, want: 100},
		{name: "negative done clamped", completedLessons: -3, totalLessons: 2, want: 0},
		{name: "exams count as units", completedLessons: 1, completedExams: 1, totalLessons: 2, totalExams: 2, want: 50},
		{name: "exams complete the course", completedLessons: 2, completedExams: 1, totalLessons: 2, totalExams: 1, want: 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Progress(tt.completedLessons, tt.completedExams, tt.totalLessons, tt.totalExams); got != tt.want {
				t.Errorf("Progress() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsComplete(t *testing.T) {
	if IsComplete(99) {
		t.Error("IsComplete(99) = true, want false")
	}
	if !IsComplete(100) {
		t.Error("IsComplete(100) = false, want true")
	}
	if !IsComplete(101) {
		t.Error("IsComplete(101) = false, want true")
	}
}
