package ledger

import (
	"context"
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/course"
)

var (
	// errors
	ErrNotFound         = errors.New("enrollment not found")
	ErrAlreadyEnrolled  = errors.New("student is already enrolled in this course")
	ErrAlreadyExists    = errors.New("record already exists")
	ErrInvalidReference = errors.New("referenced course content does not exist")
)

type (
	Repository interface {
		CreateEnrollment(ctx context.Context, enr Enrollment) error
		GetEnrollment(ctx context.Context, studentID, courseID string) (Enrollment, error)
		UpdateEnrollment(ctx context.Context, enr Enrollment) error
		DeleteEnrollment(ctx context.Context, studentID, courseID string) error
		ListEnrollments(ctx context.Context, studentID string) ([]Enrollment, error)

		// CreateEvent is create-if-absent on the event's deterministic id.
		CreateEvent(ctx context.Context, ev CompletionEvent) error
		// SaveExamResult overwrites any previous result for the key; exam
		// retakes are legitimate and the latest write is authoritative for
		// display.
		SaveExamResult(ctx context.Context, ev CompletionEvent) error
		ListEvents(ctx context.Context, studentID, courseID string) ([]CompletionEvent, error)
		ListStudentEvents(ctx context.Context, studentID string) ([]CompletionEvent, error)
		DeleteEvent(ctx context.Context, id string) error

		CreateCertificate(ctx context.Context, cert Certificate) error
		// FindCertificate matches on (student, course|exam, type); subjectID
		// is the course id for course certificates and the exam id otherwise.
		FindCertificate(ctx context.Context, studentID, subjectID, certType string) (Certificate, error)
		ListCertificates(ctx context.Context, studentID string) ([]Certificate, error)

		CreateRating(ctx context.Context, rating Rating) error
		ListCourseRatings(ctx context.Context, courseID string) ([]Rating, error)
	}

	Service struct {
		repo    Repository
		courses course.Provider
		logger  core.Logger
		mailSvc core.EmailService

		now func() time.Time
	}
)

func NewService(repo Repository, courses course.Provider, logger core.Logger, mailSvc core.EmailService) *Service {
	return &Service{
		repo:    repo,
		courses: courses,
		logger:  logger,
		mailSvc: mailSvc,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Enroll creates the (student, course) aggregate exactly once.
func (svc *Service) Enroll(ctx context.Context, studentID, courseID string) (Enrollment, error) {
	crs, err := svc.courses.GetCourse(ctx, courseID)
	if err != nil {
		return Enrollment{}, errors.Wrap(err, "getting course")
	}

	now := svc.now()
	enr := Enrollment{
		StudentID:        studentID,
		CourseID:         courseID,
		Progress:         0,
		CompletedLessons: NewLessonSet(),
		CompletedExams:   []string{},
		TotalLessons:     len(crs.Lessons),
		Status:           StatusActive,
		EnrolledAt:       now,
		LastAccessedAt:   now,
	}
	if err = svc.repo.CreateEnrollment(ctx, enr); err != nil {
		if errors.Cause(err) == ErrAlreadyExists {
			return Enrollment{}, ErrAlreadyEnrolled
		}
		return Enrollment{}, errors.Wrap(err, "creating enrollment")
	}
	return enr, nil
}

// Unenroll deletes the aggregate only; completion events and certificates
// are history and survive.
func (svc *Service) Unenroll(ctx context.Context, studentID, courseID string) error {
	return svc.repo.DeleteEnrollment(ctx, studentID, courseID)
}

// RecordLessonCompletion appends a lesson completion event if none exists
// for the key, then re-derives the enrollment aggregate from the log.
func (svc *Service) RecordLessonCompletion(ctx context.Context, studentID, courseID, lessonID string) (Enrollment, error) {
	crs, err := svc.courses.GetCourse(ctx, courseID)
	if err != nil {
		return Enrollment{}, errors.Wrap(err, "getting course")
	}
	if _, ok := crs.Lesson(lessonID); !ok {
		svc.logger.Warn("completion for unknown lesson rejected", studentID, courseID, lessonID)
		return Enrollment{}, errors.Wrapf(ErrInvalidReference, "lesson %q", lessonID)
	}
	return svc.recordLesson(ctx, crs, studentID, lessonID)
}

// RecordPartCompletion appends a part completion event after bounds-checking
// the index against the current lesson definition. When every part of the
// lesson has a completion event, the lesson itself is promoted to complete.
func (svc *Service) RecordPartCompletion(ctx context.Context, studentID, courseID, lessonID string, partIndex int) (Enrollment, error) {
	crs, err := svc.courses.GetCourse(ctx, courseID)
	if err != nil {
		return Enrollment{}, errors.Wrap(err, "getting course")
	}
	lsn, ok := crs.Lesson(lessonID)
	if !ok {
		svc.logger.Warn("part completion for unknown lesson rejected", studentID, courseID, lessonID)
		return Enrollment{}, errors.Wrapf(ErrInvalidReference, "lesson %q", lessonID)
	}
	if !lsn.HasPart(partIndex) {
		svc.logger.Warn("part completion out of range rejected", studentID, courseID, lessonID, partIndex)
		return Enrollment{}, errors.Wrapf(ErrInvalidReference, "lesson %q part %d", lessonID, partIndex)
	}

	now := svc.now()
	ev := CompletionEvent{
		ID:          PartEventID(studentID, courseID, lessonID, partIndex),
		Kind:        EventPart,
		StudentID:   studentID,
		CourseID:    courseID,
		LessonID:    lessonID,
		PartIndex:   partIndex,
		CompletedAt: now,
		Timestamp:   now,
	}
	if err = svc.repo.CreateEvent(ctx, ev); err != nil && errors.Cause(err) != ErrAlreadyExists {
		return Enrollment{}, errors.Wrap(err, "recording part completion")
	}

	done, err := svc.lessonPartsComplete(ctx, lsn, studentID, courseID)
	if err != nil {
		return Enrollment{}, err
	}
	if done {
		return svc.recordLesson(ctx, crs, studentID, lessonID)
	}

	enr, err := svc.loadEnrollment(ctx, studentID, courseID)
	if err != nil {
		return Enrollment{}, err
	}
	enr.LastAccessedAt = now
	if err = svc.repo.UpdateEnrollment(ctx, enr); err != nil {
		return Enrollment{}, errors.Wrap(err, "touching enrollment")
	}
	return enr, nil
}

// RecordExamResult records (or overwrites, for retakes) an exam result.
// The first completion is what triggers certification, enforced by the
// issuer's idempotence rather than by this log.
func (svc *Service) RecordExamResult(ctx context.Context, studentID, courseID, examID string, score Score) (CompletionEvent, error) {
	crs, err := svc.courses.GetCourse(ctx, courseID)
	if err != nil {
		return CompletionEvent{}, errors.Wrap(err, "getting course")
	}
	exam, ok := crs.Exam(examID)
	if !ok {
		svc.logger.Warn("result for unknown exam rejected", studentID, courseID, examID)
		return CompletionEvent{}, errors.Wrapf(ErrInvalidReference, "exam %q", examID)
	}

	now := svc.now()
	ev := CompletionEvent{
		ID:          ExamEventID(studentID, courseID, examID),
		Kind:        EventExam,
		StudentID:   studentID,
		CourseID:    courseID,
		ExamID:      examID,
		Score:       &score,
		Percentage:  score.Percent(),
		CompletedAt: now,
		Timestamp:   now,
	}
	if err = svc.repo.SaveExamResult(ctx, ev); err != nil {
		return CompletionEvent{}, errors.Wrap(err, "recording exam result")
	}

	enr, err := svc.loadEnrollment(ctx, studentID, courseID)
	if err != nil {
		return CompletionEvent{}, err
	}
	enr.CompletedExams, _ = addToSet(enr.CompletedExams, examID)
	enr.Progress = Progress(enr.CompletedLessons.Len(), len(enr.CompletedExams), enr.TotalLessons, len(crs.Exams))
	enr.LastAccessedAt = now
	if err = svc.repo.UpdateEnrollment(ctx, enr); err != nil {
		return CompletionEvent{}, errors.Wrap(err, "updating enrollment")
	}

	// certificates are a best-effort derivative; issuance failures never
	// roll back or block the recorded result
	if _, err = svc.IssueExamCertificate(ctx, studentID, courseID, examID, exam.Title, score); err != nil {
		svc.logger.Error("issuing exam certificate", errors.Wrap(err, "issuing exam certificate"))
	}
	if IsComplete(enr.Progress) {
		if _, err = svc.IssueCourseCertificate(ctx, studentID, crs.ID, crs.Title); err != nil {
			svc.logger.Error("issuing course certificate", errors.Wrap(err, "issuing course certificate"))
		}
	}
	return ev, nil
}

// GetProgress returns the aggregate, migrating any legacy counter shape
// before it is read downstream.
func (svc *Service) GetProgress(ctx context.Context, studentID, courseID string) (Enrollment, error) {
	return svc.loadEnrollment(ctx, studentID, courseID)
}

// ListEvents returns all completion events for a pair, ordered by the
// timestamp they carry.
func (svc *Service) ListEvents(ctx context.Context, studentID, courseID string) ([]CompletionEvent, error) {
	events, err := svc.repo.ListEvents(ctx, studentID, courseID)
	if err != nil {
		return nil, errors.Wrap(err, "listing events")
	}
	SortEventsByTimestamp(events)
	return events, nil
}

// GetAchievements returns all certificates issued to a student.
func (svc *Service) GetAchievements(ctx context.Context, studentID string) ([]Certificate, error) {
	certs, err := svc.repo.ListCertificates(ctx, studentID)
	if err != nil {
		return nil, errors.Wrap(err, "listing certificates")
	}
	sort.Slice(certs, func(i, j int) bool { return certs[i].IssuedAt.Before(certs[j].IssuedAt) })
	return certs, nil
}

// recordLesson appends the lesson event (idempotent) and re-derives the
// aggregate; a fully complete course triggers best-effort certification.
func (svc *Service) recordLesson(ctx context.Context, crs course.Course, studentID, lessonID string) (Enrollment, error) {
	now := svc.now()
	ev := CompletionEvent{
		ID:          LessonEventID(studentID, crs.ID, lessonID),
		Kind:        EventLesson,
		StudentID:   studentID,
		CourseID:    crs.ID,
		LessonID:    lessonID,
		CompletedAt: now,
		Timestamp:   now,
	}
	if err := svc.repo.CreateEvent(ctx, ev); err != nil && errors.Cause(err) != ErrAlreadyExists {
		return Enrollment{}, errors.Wrap(err, "recording lesson completion")
	}

	enr, err := svc.applyLessonCompletion(ctx, crs, studentID, lessonID)
	if err != nil {
		return Enrollment{}, err
	}

	if IsComplete(enr.Progress) {
		if _, err = svc.IssueCourseCertificate(ctx, studentID, crs.ID, crs.Title); err != nil {
			svc.logger.Error("issuing course certificate", errors.Wrap(err, "issuing course certificate"))
		}
	}
	return enr, nil
}

// applyLessonCompletion is the authoritative aggregate path: completed
// lessons are always reconstructed from the event log rather than trusted
// from whatever was cached, which keeps the aggregate correct across
// partial writes and the legacy numeric shape.
func (svc *Service) applyLessonCompletion(ctx context.Context, crs course.Course, studentID, lessonID string) (Enrollment, error) {
	enr, err := svc.loadEnrollment(ctx, studentID, crs.ID)
	if err != nil {
		return Enrollment{}, err
	}

	events, err := svc.repo.ListEvents(ctx, studentID, crs.ID)
	if err != nil {
		return Enrollment{}, errors.Wrap(err, "listing events")
	}
	set := lessonSetFromEvents(events)
	set.Add(lessonID)

	enr.CompletedLessons = set
	enr.Progress = Progress(set.Len(), len(enr.CompletedExams), enr.TotalLessons, len(crs.Exams))
	enr.LastAccessedAt = svc.now()
	if err = svc.repo.UpdateEnrollment(ctx, enr); err != nil {
		return Enrollment{}, errors.Wrap(err, "updating enrollment")
	}
	return enr, nil
}

// loadEnrollment resolves the stored completedLessons shape eagerly: a
// legacy bare count is rebuilt into the true id set from the event log and
// persisted in set form before anything else sees it.
func (svc *Service) loadEnrollment(ctx context.Context, studentID, courseID string) (Enrollment, error) {
	enr, err := svc.repo.GetEnrollment(ctx, studentID, courseID)
	if err != nil {
		return Enrollment{}, errors.Wrap(err, "getting enrollment")
	}
	if !enr.CompletedLessons.IsLegacy() {
		return enr, nil
	}

	events, err := svc.repo.ListEvents(ctx, studentID, courseID)
	if err != nil {
		return Enrollment{}, errors.Wrap(err, "listing events")
	}
	enr.CompletedLessons = lessonSetFromEvents(events)

	totalExams := 0
	if crs, cerr := svc.courses.GetCourse(ctx, courseID); cerr == nil {
		totalExams = len(crs.Exams)
	}
	enr.Progress = Progress(enr.CompletedLessons.Len(), len(enr.CompletedExams), enr.TotalLessons, totalExams)

	if err = svc.repo.UpdateEnrollment(ctx, enr); err != nil {
		return Enrollment{}, errors.Wrap(err, "migrating enrollment")
	}
	return enr, nil
}

// lessonPartsComplete reports whether every part of the lesson, as defined
// right now, has a completion event recorded.
func (svc *Service) lessonPartsComplete(ctx context.Context, lsn course.Lesson, studentID, courseID string) (bool, error) {
	events, err := svc.repo.ListEvents(ctx, studentID, courseID)
	if err != nil {
		return false, errors.Wrap(err, "listing events")
	}

	recorded := make(map[int]bool)
	for _, ev := range events {
		if ev.Kind == EventPart && ev.LessonID == lsn.ID {
			recorded[ev.PartIndex] = true
		}
	}
	if len(lsn.Parts) == 0 {
		return false, nil
	}
	for i := range lsn.Parts {
		if !recorded[i] {
			return false, nil
		}
	}
	return true, nil
}

func lessonSetFromEvents(events []CompletionEvent) LessonSet {
	set := NewLessonSet()
	for _, ev := range events {
		if ev.Kind == EventLesson {
			set.Add(ev.LessonID)
		}
	}
	return set
}

func addToSet(set []string, v string) ([]string, bool) {
	i := sort.SearchStrings(set, v)
	if i < len(set) && set[i] == v {
		return set, false
	}
	set = append(set, v)
	sort.Strings(set)
	return set, true
}
