package ledger

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// Analytics are read-only derivatives of the event log, recomputed on each
// request; nothing here is persisted.

const (
	// MinutesPerLesson is the fixed per-lesson time estimate; no real
	// duration tracking exists.
	MinutesPerLesson = 15

	// StreakDisplayCap caps the streak for display purposes.
	StreakDisplayCap = 7

	monthlyBuckets = 4
)

var weekdayNames = [7]string{"Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"}

type (
	// DayBucket is one weekday of lesson activity (Mon=0 .. Sun=6).
	DayBucket struct {
		Day     string `json:"day"`
		Lessons int    `json:"lessons"`
		Minutes int    `json:"minutes"`
	}

	// WeekBucket is one synthetic week of the monthly rollup.
	WeekBucket struct {
		Week     int `json:"week"`
		Lessons  int `json:"lessons"`
		Progress int `json:"progress"`
	}
)

// WeeklyProgress returns the student's lesson completions bucketed by
// day-of-week.
func (svc *Service) WeeklyProgress(ctx context.Context, studentID string) ([]DayBucket, error) {
	events, err := svc.repo.ListStudentEvents(ctx, studentID)
	if err != nil {
		return nil, errors.Wrap(err, "listing events")
	}
	return WeeklyBuckets(events), nil
}

// Streak returns the student's consecutive-day study streak.
func (svc *Service) Streak(ctx context.Context, studentID string) (int, error) {
	events, err := svc.repo.ListStudentEvents(ctx, studentID)
	if err != nil {
		return 0, errors.Wrap(err, "listing events")
	}
	return StreakDays(events, svc.now()), nil
}

// MonthlyProgress returns the 4-bucket monthly rollup over the student's
// lesson completions and average enrollment progress.
func (svc *Service) MonthlyProgress(ctx context.Context, studentID string) ([]WeekBucket, error) {
	events, err := svc.repo.ListStudentEvents(ctx, studentID)
	if err != nil {
		return nil, errors.Wrap(err, "listing events")
	}
	enrs, err := svc.repo.ListEnrollments(ctx, studentID)
	if err != nil {
		return nil, errors.Wrap(err, "listing enrollments")
	}

	var avg int
	if len(enrs) > 0 {
		var sum int
		for _, enr := range enrs {
			sum += enr.Progress
		}
		avg = sum / len(enrs)
	}
	return MonthlyBuckets(events, avg), nil
}

// WeeklyBuckets buckets lesson completions by day-of-week (Mon=0 .. Sun=6)
// using each event's completion time; minutes are the fixed per-lesson
// estimate.
func WeeklyBuckets(events []CompletionEvent) []DayBucket {
	buckets := make([]DayBucket, 7)
	for i := range buckets {
		buckets[i].Day = weekdayNames[i]
	}
	for _, ev := range events {
		if ev.Kind != EventLesson {
			continue
		}
		buckets[mondayIndexed(ev.CompletedAt.UTC().Weekday())].Lessons++
	}
	for i := range buckets {
		buckets[i].Minutes = buckets[i].Lessons * MinutesPerLesson
	}
	return buckets
}

// StreakDays counts consecutive calendar days with at least one completion
// event, walking backward from today. A student who studied yesterday but
// not yet today still has an active streak; anything older yields 0. The
// count is capped for display.
func StreakDays(events []CompletionEvent, now time.Time) int {
	if len(events) == 0 {
		return 0
	}

	days := make(map[string]bool, len(events))
	for _, ev := range events {
		days[dayKey(ev.CompletedAt)] = true
	}

	anchor := now.UTC()
	if !days[dayKey(anchor)] {
		anchor = anchor.AddDate(0, 0, -1) // yesterday still counts
		if !days[dayKey(anchor)] {
			return 0
		}
	}

	streak := 0
	for days[dayKey(anchor)] {
		streak++
		if streak >= StreakDisplayCap {
			return StreakDisplayCap
		}
		anchor = anchor.AddDate(0, 0, -1)
	}
	return streak
}

// MonthlyBuckets distributes the total completed-lesson count evenly across
// 4 synthetic week buckets and shows progress as a cumulative ramp toward
// the student's average. This is an approximation, not a true calendar
// aggregation.
func MonthlyBuckets(events []CompletionEvent, avgProgress int) []WeekBucket {
	var total int
	for _, ev := range events {
		if ev.Kind == EventLesson {
			total++
		}
	}

	buckets := make([]WeekBucket, monthlyBuckets)
	for i := range buckets {
		buckets[i] = WeekBucket{
			Week:     i + 1,
			Lessons:  total*(i+1)/monthlyBuckets - total*i/monthlyBuckets,
			Progress: avgProgress * (i + 1) / monthlyBuckets,
		}
	}
	return buckets
}

func mondayIndexed(d time.Weekday) int {
	// time.Weekday has Sunday=0; the dashboard week starts on Monday
	return (int(d) + 6) % 7
}

func dayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
