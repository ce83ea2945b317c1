package ledger

import (
	"context"

	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core/course"
)

// RepairResult reports what a Consistency Repair run changed.
type RepairResult struct {
	DuplicatesRemoved int  `json:"duplicates_removed"`
	OrphansRemoved    int  `json:"orphans_removed"`
	AggregateRebuilt  bool `json:"aggregate_rebuilt"`
}

func (r RepairResult) Clean() bool {
	return r.DuplicatesRemoved == 0 && r.OrphansRemoved == 0 && !r.AggregateRebuilt
}

// Repair runs the duplicate-event and orphan-event passes over the
// (student, course) event log, then rebuilds the enrollment aggregate from
// whatever survived. It is safe to run repeatedly and without exclusive
// access: re-running after a partial failure converges to the same state.
func (svc *Service) Repair(ctx context.Context, studentID, courseID string) (RepairResult, error) {
	var res RepairResult

	crs, err := svc.courses.GetCourse(ctx, courseID)
	if err != nil {
		return res, errors.Wrap(err, "getting course")
	}
	events, err := svc.repo.ListEvents(ctx, studentID, courseID)
	if err != nil {
		return res, errors.Wrap(err, "listing events")
	}

	events, removed, err := svc.removeDuplicates(ctx, events)
	if err != nil {
		return res, err
	}
	res.DuplicatesRemoved = removed

	events, removed, err = svc.removeOrphans(ctx, crs, events)
	if err != nil {
		return res, err
	}
	res.OrphansRemoved = removed

	rebuilt, err := svc.rebuildAggregate(ctx, crs, studentID, events)
	if err != nil {
		return res, err
	}
	res.AggregateRebuilt = rebuilt
	return res, nil
}

// removeDuplicates keeps, for every logical lesson/part key with more than
// one event, the event carrying the latest timestamp and deletes the rest.
// Duplicates only arise from retried writes racing the idempotent check;
// they are never semantically meaningful.
func (svc *Service) removeDuplicates(ctx context.Context, events []CompletionEvent) ([]CompletionEvent, int, error) {
	latest := make(map[string]CompletionEvent)
	for _, ev := range events {
		if ev.Kind == EventExam {
			// exam results are keyed upserts; retakes are legitimate
			continue
		}
		key := ev.LogicalKey()
		if prev, ok := latest[key]; !ok || ev.Timestamp.After(prev.Timestamp) {
			latest[key] = ev
		}
	}

	var removed int
	kept := events[:0]
	for _, ev := range events {
		if ev.Kind != EventExam {
			if winner := latest[ev.LogicalKey()]; winner.ID != ev.ID {
				if err := svc.repo.DeleteEvent(ctx, ev.ID); err != nil {
					return nil, removed, errors.Wrap(err, "deleting duplicate event")
				}
				svc.logger.Info("removed duplicate completion event", ev.ID)
				removed++
				continue
			}
		}
		kept = append(kept, ev)
	}
	return kept, removed, nil
}

// removeOrphans deletes lesson/part events whose referenced content no
// longer exists in the current course definition; course authors may edit
// lessons after students completed them, and stale references must not
// count toward progress.
func (svc *Service) removeOrphans(ctx context.Context, crs course.Course, events []CompletionEvent) ([]CompletionEvent, int, error) {
	var removed int
	kept := events[:0]
	for _, ev := range events {
		if svc.isOrphan(crs, ev) {
			if err := svc.repo.DeleteEvent(ctx, ev.ID); err != nil {
				return nil, removed, errors.Wrap(err, "deleting orphaned event")
			}
			svc.logger.Info("removed orphaned completion event", ev.ID)
			removed++
			continue
		}
		kept = append(kept, ev)
	}
	return kept, removed, nil
}

func (svc *Service) isOrphan(crs course.Course, ev CompletionEvent) bool {
	switch ev.Kind {
	case EventLesson:
		_, ok := crs.Lesson(ev.LessonID)
		return !ok
	case EventPart:
		lsn, ok := crs.Lesson(ev.LessonID)
		return !ok || !lsn.HasPart(ev.PartIndex)
	default:
		return false
	}
}

// rebuildAggregate re-derives the enrollment counters from the repaired
// log; reports whether anything actually changed. A missing enrollment is
// fine (unenrolled students keep their history).
func (svc *Service) rebuildAggregate(ctx context.Context, crs course.Course, studentID string, events []CompletionEvent) (bool, error) {
	enr, err := svc.repo.GetEnrollment(ctx, studentID, crs.ID)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return false, nil
		}
		return false, errors.Wrap(err, "getting enrollment")
	}

	set := lessonSetFromEvents(events)
	exams := []string{}
	for _, ev := range events {
		if ev.Kind == EventExam {
			exams, _ = addToSet(exams, ev.ExamID)
		}
	}
	progress := Progress(set.Len(), len(exams), enr.TotalLessons, len(crs.Exams))

	if !enr.CompletedLessons.IsLegacy() &&
		equalStrings(enr.CompletedLessons.IDs(), set.IDs()) &&
		equalStrings(enr.CompletedExams, exams) &&
		enr.Progress == progress {
		return false, nil
	}

	enr.CompletedLessons = set
	enr.CompletedExams = exams
	enr.Progress = progress
	if err = svc.repo.UpdateEnrollment(ctx, enr); err != nil {
		return false, errors.Wrap(err, "rebuilding enrollment")
	}
	return true, nil
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
