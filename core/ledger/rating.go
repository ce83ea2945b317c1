package ledger

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// RatingSummary is the course-level rollup of student ratings.
type RatingSummary struct {
	CourseID string  `json:"course_id"`
	Average  float64 `json:"average"`
	Count    int     `json:"count"`
}

// RateCourse appends a rating. Earlier ratings by the same student are not
// deleted; the latest one wins for display and duplicates only feed the
// average.
func (svc *Service) RateCourse(ctx context.Context, studentID, courseID string, stars int, comment string) (Rating, error) {
	if _, err := svc.courses.GetCourse(ctx, courseID); err != nil {
		return Rating{}, errors.Wrap(err, "getting course")
	}

	rating := Rating{
		ID:        uuid.New().String(),
		StudentID: studentID,
		CourseID:  courseID,
		Stars:     stars,
		Comment:   comment,
		CreatedAt: svc.now(),
	}
	if err := svc.repo.CreateRating(ctx, rating); err != nil {
		return Rating{}, errors.Wrap(err, "creating rating")
	}
	return rating, nil
}

// CourseRating averages the latest rating per student.
func (svc *Service) CourseRating(ctx context.Context, courseID string) (RatingSummary, error) {
	ratings, err := svc.repo.ListCourseRatings(ctx, courseID)
	if err != nil {
		return RatingSummary{}, errors.Wrap(err, "listing ratings")
	}

	latest := make(map[string]Rating)
	for _, r := range ratings {
		if prev, ok := latest[r.StudentID]; !ok || r.CreatedAt.After(prev.CreatedAt) {
			latest[r.StudentID] = r
		}
	}

	summary := RatingSummary{CourseID: courseID, Count: len(latest)}
	if len(latest) == 0 {
		return summary, nil
	}
	var sum int
	for _, r := range latest {
		sum += r.Stars
	}
	summary.Average = float64(sum) / float64(len(latest))
	return summary, nil
}
