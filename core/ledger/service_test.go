package ledger_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/course"
	"github.com/trezcool/darasa/core/ledger"
	emailsvc "github.com/trezcool/darasa/services/email"
	"github.com/trezcool/darasa/storage/docstore/memstore"
	"github.com/trezcool/darasa/storage/ledgerdb"
)

var testNow = time.Date(2021, 6, 15, 12, 0, 0, 0, time.UTC)

type testLogger struct{}

func (testLogger) Enable(bool)                  {}
func (testLogger) Debug(string, ...interface{}) {}
func (testLogger) Info(string, ...interface{})  {}
func (testLogger) Warn(string, ...interface{})  {}
func (testLogger) Error(string, ...interface{}) {}
func (testLogger) Fatal(string, ...interface{}) {}

var _ core.Logger = (*testLogger)(nil)

type testEnv struct {
	svc   *ledger.Service
	repo  ledger.Repository
	store *memstore.Store
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	emailsvc.SentMessages = emailsvc.SentMessages[:0]

	store := memstore.Open()
	repo := ledgerdb.NewLedgerRepository(store)
	svc := ledger.NewServiceMock(
		repo,
		ledgerdb.NewCourseProvider(store),
		testLogger{},
		emailsvc.NewConsoleServiceMock(),
		func() time.Time { return testNow },
	)
	return &testEnv{svc: svc, repo: repo, store: store}
}

func seedCourse(t *testing.T, env *testEnv, crs course.Course) {
	t.Helper()
	require.NoError(t, ledgerdb.PutCourse(context.Background(), env.store, crs))
}

// twoLessonCourse is the canonical fixture: two lessons, the second split in
// three parts, no exams.
func twoLessonCourse() course.Course {
	return course.Course{
		ID:    "c1",
		Title: "Intro to Programming",
		Lessons: []course.Lesson{
			{ID: "l1", Title: "Basics", Parts: []course.Part{{ID: "p0", Index: 0}}},
			{ID: "l2", Title: "Control Flow", Parts: []course.Part{
				{ID: "p0", Index: 0}, {ID: "p1", Index: 1}, {ID: "p2", Index: 2},
			}},
		},
	}
}

func TestService_Enroll(t *testing.T) {
	env := newTestEnv(t)
	seedCourse(t, env, twoLessonCourse())
	ctx := context.Background()

	enr, err := env.svc.Enroll(ctx, "s1", "c1")
	require.NoError(t, err)
	assert.Equal(t, "s1", enr.StudentID)
	assert.Equal(t, "c1", enr.CourseID)
	assert.Equal(t, 0, enr.Progress)
	assert.Equal(t, 2, enr.TotalLessons)
	assert.Equal(t, ledger.StatusActive, enr.Status)
	assert.Equal(t, testNow, enr.EnrolledAt)

	// exactly-once
	_, err = env.svc.Enroll(ctx, "s1", "c1")
	assert.Equal(t, ledger.ErrAlreadyEnrolled, err)

	// unknown course
	_, err = env.svc.Enroll(ctx, "s1", "nope")
	assert.Equal(t, course.ErrNotFound, errors.Cause(err))
}

func TestService_RecordLessonCompletion(t *testing.T) {
	env := newTestEnv(t)
	seedCourse(t, env, twoLessonCourse())
	ctx := context.Background()

	_, err := env.svc.Enroll(ctx, "s1", "c1")
	require.NoError(t, err)

	enr, err := env.svc.RecordLessonCompletion(ctx, "s1", "c1", "l1")
	require.NoError(t, err)
	assert.Equal(t, 50, enr.Progress)
	assert.Equal(t, []string{"l1"}, enr.CompletedLessons.IDs())

	// idempotent: re-recording changes nothing
	enr, err = env.svc.RecordLessonCompletion(ctx, "s1", "c1", "l1")
	require.NoError(t, err)
	assert.Equal(t, 50, enr.Progress)
	assert.Equal(t, []string{"l1"}, enr.CompletedLessons.IDs())

	events, err := env.svc.ListEvents(ctx, "s1", "c1")
	require.NoError(t, err)
	assert.Len(t, events, 1)

	// unknown lesson is rejected
	_, err = env.svc.RecordLessonCompletion(ctx, "s1", "c1", "nope")
	assert.Equal(t, ledger.ErrInvalidReference, errors.Cause(err))
}

func TestService_RecordPartCompletion_promotesLesson(t *testing.T) {
	env := newTestEnv(t)
	seedCourse(t, env, twoLessonCourse())
	ctx := context.Background()

	_, err := env.svc.Enroll(ctx, "s1", "c1")
	require.NoError(t, err)

	// two of three parts: no promotion yet
	enr, err := env.svc.RecordPartCompletion(ctx, "s1", "c1", "l2", 0)
	require.NoError(t, err)
	assert.Equal(t, 0, enr.Progress)
	enr, err = env.svc.RecordPartCompletion(ctx, "s1", "c1", "l2", 1)
	require.NoError(t, err)
	assert.Equal(t, 0, enr.Progress)
	assert.False(t, enr.CompletedLessons.Contains("l2"))

	// the last part promotes the whole lesson
	enr, err = env.svc.RecordPartCompletion(ctx, "s1", "c1", "l2", 2)
	require.NoError(t, err)
	assert.True(t, enr.CompletedLessons.Contains("l2"))
	assert.Equal(t, 50, enr.Progress)

	// out-of-range index is rejected
	_, err = env.svc.RecordPartCompletion(ctx, "s1", "c1", "l2", 3)
	assert.Equal(t, ledger.ErrInvalidReference, errors.Cause(err))
	_, err = env.svc.RecordPartCompletion(ctx, "s1", "c1", "l2", -1)
	assert.Equal(t, ledger.ErrInvalidReference, errors.Cause(err))
}

// The end-to-end completion scenario: a two-lesson course goes 0 -> 50 ->
// 100, issues exactly one certificate and stays stable under replays.
func TestService_courseCompletionScenario(t *testing.T) {
	env := newTestEnv(t)
	seedCourse(t, env, twoLessonCourse())
	ctx := ledger.WithStudentEmail(context.Background(), "s1@student.test")

	_, err := env.svc.Enroll(ctx, "s1", "c1")
	require.NoError(t, err)

	enr, err := env.svc.RecordLessonCompletion(ctx, "s1", "c1", "l1")
	require.NoError(t, err)
	assert.Equal(t, 50, enr.Progress)

	enr, err = env.svc.RecordLessonCompletion(ctx, "s1", "c1", "l2")
	require.NoError(t, err)
	assert.Equal(t, 100, enr.Progress)

	certs, err := env.svc.GetAchievements(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, certs, 1)
	assert.Equal(t, ledger.CertCourseCompletion, certs[0].Type)
	assert.Contains(t, certs[0].Title, "Intro to Programming")
	assert.NotEmpty(t, certs[0].Serial)

	// replaying the last completion must not duplicate anything
	enr, err = env.svc.RecordLessonCompletion(ctx, "s1", "c1", "l2")
	require.NoError(t, err)
	assert.Equal(t, 100, enr.Progress)

	certs, err = env.svc.GetAchievements(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, certs, 1)

	// one congratulations email went out
	assert.Len(t, emailsvc.SentMessages, 1)
}

func TestService_RecordExamResult(t *testing.T) {
	crs := twoLessonCourse()
	crs.Exams = []course.Exam{{ID: "e1", Title: "Final Exam"}}

	env := newTestEnv(t)
	seedCourse(t, env, crs)
	ctx := context.Background()

	_, err := env.svc.Enroll(ctx, "s1", "c1")
	require.NoError(t, err)

	ev, err := env.svc.RecordExamResult(ctx, "s1", "c1", "e1", ledger.RawScore(80))
	require.NoError(t, err)
	assert.Equal(t, float64(80), ev.Percentage)

	enr, err := env.svc.GetProgress(ctx, "s1", "c1")
	require.NoError(t, err)
	assert.Equal(t, []string{"e1"}, enr.CompletedExams)
	assert.Equal(t, 33, enr.Progress) // 1 of 3 units

	// a retake overwrites the displayed result but not the certificate
	ev, err = env.svc.RecordExamResult(ctx, "s1", "c1", "e1", ledger.DetailedScore(18, 20, 90))
	require.NoError(t, err)
	assert.Equal(t, float64(90), ev.Percentage)

	events, err := env.svc.ListEvents(ctx, "s1", "c1")
	require.NoError(t, err)
	assert.Len(t, events, 1)

	certs, err := env.svc.GetAchievements(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, certs, 1)
	assert.Equal(t, ledger.CertExamCompletion, certs[0].Type)
	assert.Equal(t, float64(80), certs[0].Score, "first result is certified")

	// unknown exam is rejected
	_, err = env.svc.RecordExamResult(ctx, "s1", "c1", "nope", ledger.RawScore(80))
	assert.Equal(t, ledger.ErrInvalidReference, errors.Cause(err))
}

func TestService_Unenroll_preservesHistory(t *testing.T) {
	env := newTestEnv(t)
	seedCourse(t, env, twoLessonCourse())
	ctx := context.Background()

	_, err := env.svc.Enroll(ctx, "s1", "c1")
	require.NoError(t, err)
	_, err = env.svc.RecordLessonCompletion(ctx, "s1", "c1", "l1")
	require.NoError(t, err)

	require.NoError(t, env.svc.Unenroll(ctx, "s1", "c1"))

	_, err = env.svc.GetProgress(ctx, "s1", "c1")
	assert.Equal(t, ledger.ErrNotFound, errors.Cause(err))

	// the event log survives
	events, err := env.svc.ListEvents(ctx, "s1", "c1")
	require.NoError(t, err)
	assert.Len(t, events, 1)

	// unenrolling again is a no-op
	assert.NoError(t, env.svc.Unenroll(ctx, "s1", "c1"))
}

func TestService_legacyEnrollmentMigration(t *testing.T) {
	env := newTestEnv(t)
	seedCourse(t, env, twoLessonCourse())
	ctx := context.Background()

	// a legacy record stored completed_lessons as a bare count
	raw := []byte(`{
		"student_id": "s1",
		"course_id": "c1",
		"progress": 50,
		"completed_lessons": 1,
		"completed_exams": [],
		"total_lessons": 2,
		"status": "active"
	}`)
	require.NoError(t, env.store.Put(ctx, "enrollments", "s1_c1", json.RawMessage(raw)))
	require.NoError(t, env.repo.CreateEvent(ctx, ledger.CompletionEvent{
		ID:          ledger.LessonEventID("s1", "c1", "l1"),
		Kind:        ledger.EventLesson,
		StudentID:   "s1",
		CourseID:    "c1",
		LessonID:    "l1",
		CompletedAt: testNow,
		Timestamp:   testNow,
	}))

	// any read migrates the shape to the true id set
	enr, err := env.svc.GetProgress(ctx, "s1", "c1")
	require.NoError(t, err)
	assert.False(t, enr.CompletedLessons.IsLegacy())
	assert.Equal(t, []string{"l1"}, enr.CompletedLessons.IDs())
	assert.Equal(t, 50, enr.Progress)

	// the migrated shape is persisted
	enr, err = env.repo.GetEnrollment(ctx, "s1", "c1")
	require.NoError(t, err)
	assert.False(t, enr.CompletedLessons.IsLegacy())
}

func TestService_RateCourse(t *testing.T) {
	env := newTestEnv(t)
	seedCourse(t, env, twoLessonCourse())
	ctx := context.Background()

	_, err := env.svc.RateCourse(ctx, "s1", "c1", 4, "solid")
	require.NoError(t, err)
	_, err = env.svc.RateCourse(ctx, "s2", "c1", 2, "")
	require.NoError(t, err)

	summary, err := env.svc.CourseRating(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Count)
	assert.Equal(t, 3.0, summary.Average)

	// rating an unknown course fails
	_, err = env.svc.RateCourse(ctx, "s1", "nope", 5, "")
	assert.Equal(t, course.ErrNotFound, errors.Cause(err))
}
