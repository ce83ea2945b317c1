package ledger

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

// Enrollment statuses
const (
	StatusActive   = "active"
	StatusInactive = "inactive"
)

// Completion event kinds
const (
	EventLesson = "lesson"
	EventPart   = "part"
	EventExam   = "exam"
)

// Certificate types
const (
	CertCourseCompletion = "course_completion"
	CertExamCompletion   = "exam_completion"
)

type (
	// Enrollment is the per-(student, course) aggregate holding derived
	// progress. It is created exactly once per pair and rebuilt from the
	// event log whenever its counters cannot be trusted.
	Enrollment struct {
		StudentID        string    `json:"student_id"`
		CourseID         string    `json:"course_id"`
		Progress         int       `json:"progress"`
		CompletedLessons LessonSet `json:"completed_lessons"`
		CompletedExams   []string  `json:"completed_exams"`
		TotalLessons     int       `json:"total_lessons"`
		Status           string    `json:"status"`
		EnrolledAt       time.Time `json:"enrolled_at"`       // UTC
		LastAccessedAt   time.Time `json:"last_accessed_at"`  // UTC
	}

	// CompletionEvent is an immutable record asserting a single lesson,
	// lesson part or exam was finished at a point in time. Events are
	// ordered by their Timestamp field, never by store scan order.
	CompletionEvent struct {
		ID          string    `json:"id"`
		Kind        string    `json:"kind"`
		StudentID   string    `json:"student_id"`
		CourseID    string    `json:"course_id"`
		LessonID    string    `json:"lesson_id,omitempty"`
		PartIndex   int       `json:"part_index"`
		ExamID      string    `json:"exam_id,omitempty"`
		Score       *Score    `json:"score,omitempty"`
		Percentage  float64   `json:"percentage,omitempty"`
		CompletedAt time.Time `json:"completed_at"` // UTC
		Timestamp   time.Time `json:"timestamp"`    // UTC
	}

	// Certificate is an achievement record, issued at most once per
	// (student, course|exam, type) tuple.
	Certificate struct {
		ID          string    `json:"id"`
		Serial      string    `json:"serial"`
		StudentID   string    `json:"student_id"`
		CourseID    string    `json:"course_id"`
		ExamID      string    `json:"exam_id,omitempty"`
		Type        string    `json:"type"`
		Title       string    `json:"title"`
		Description string    `json:"description"`
		Score       float64   `json:"score,omitempty"`
		IssuedAt    time.Time `json:"issued_at"` // UTC
	}

	// Rating is append-only per (student, course); duplicates only feed an
	// average so they are tolerated.
	Rating struct {
		ID        string    `json:"id"`
		StudentID string    `json:"student_id"`
		CourseID  string    `json:"course_id"`
		Stars     int       `json:"stars"`
		Comment   string    `json:"comment,omitempty"`
		CreatedAt time.Time `json:"created_at"` // UTC
	}
)

// Deterministic document ids; these are what make event and enrollment
// writes idempotent against the store.

func EnrollmentID(studentID, courseID string) string {
	return studentID + "_" + courseID
}

func LessonEventID(studentID, courseID, lessonID string) string {
	return studentID + "_" + courseID + "_" + lessonID
}

func PartEventID(studentID, courseID, lessonID string, partIndex int) string {
	return fmt.Sprintf("%s_%s_%s_part_%d", studentID, courseID, lessonID, partIndex)
}

func ExamEventID(studentID, courseID, examID string) string {
	return studentID + "_" + courseID + "_" + examID
}

func CertificateID(studentID, subjectID, certType string) string {
	return studentID + "_" + subjectID + "_" + certType
}

// LogicalKey identifies the event within its (student, course) pair;
// duplicate documents sharing a logical key are a store artifact to be
// reconciled, never a valid domain state.
func (e CompletionEvent) LogicalKey() string {
	switch e.Kind {
	case EventPart:
		return e.LessonID + "_part_" + strconv.Itoa(e.PartIndex)
	case EventExam:
		return "exam_" + e.ExamID
	default:
		return e.LessonID
	}
}

// LessonSet holds an Enrollment's completed lesson ids. Legacy records
// stored a bare count instead of a set; the union shape is resolved eagerly
// here at the aggregate boundary and persisted back as a set.
type LessonSet struct {
	ids []string

	legacy      bool
	legacyCount int
}

func NewLessonSet(ids ...string) LessonSet {
	var s LessonSet
	for _, id := range ids {
		s.Add(id)
	}
	return s
}

func (s *LessonSet) Add(id string) bool {
	if id == "" || s.Contains(id) {
		return false
	}
	s.ids = append(s.ids, id)
	sort.Strings(s.ids)
	return true
}

func (s LessonSet) Contains(id string) bool {
	i := sort.SearchStrings(s.ids, id)
	return i < len(s.ids) && s.ids[i] == id
}

func (s LessonSet) Len() int { return len(s.ids) }

func (s LessonSet) IDs() []string {
	out := make([]string, len(s.ids))
	copy(out, s.ids)
	return out
}

// IsLegacy reports whether the stored value was a bare count; the true set
// must then be reconstructed from the event log before any further mutation.
func (s LessonSet) IsLegacy() bool { return s.legacy }

func (s LessonSet) LegacyCount() int { return s.legacyCount }

func (s LessonSet) MarshalJSON() ([]byte, error) {
	ids := s.ids
	if ids == nil {
		ids = []string{}
	}
	return json.Marshal(ids)
}

func (s *LessonSet) UnmarshalJSON(data []byte) error {
	var ids []string
	if err := json.Unmarshal(data, &ids); err == nil {
		*s = NewLessonSet(ids...)
		return nil
	}
	var count float64
	if err := json.Unmarshal(data, &count); err == nil {
		*s = LessonSet{legacy: true, legacyCount: int(count)}
		return nil
	}
	if string(data) == "null" {
		*s = LessonSet{}
		return nil
	}
	return errors.Errorf("completed_lessons: unsupported shape %s", data)
}

// Score is an exam score as submitted by callers: either a raw number
// (taken as a percentage) or a detailed {earned, total, percentage} value.
type Score struct {
	Raw float64

	Detailed   bool
	Earned     float64
	Total      float64
	Percentage float64
}

func RawScore(v float64) Score { return Score{Raw: v} }

func DetailedScore(earned, total, percentage float64) Score {
	return Score{Detailed: true, Earned: earned, Total: total, Percentage: percentage}
}

// Percent normalizes the score to a single 0-100 percentage, the only form
// stored or displayed.
func (s Score) Percent() float64 {
	if s.Detailed {
		if s.Percentage > 0 {
			return clampPct(s.Percentage)
		}
		if s.Total > 0 {
			return clampPct(s.Earned / s.Total * 100)
		}
		return 0
	}
	return clampPct(s.Raw)
}

func clampPct(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func (s Score) MarshalJSON() ([]byte, error) {
	if s.Detailed {
		return json.Marshal(struct {
			Earned     float64 `json:"earned"`
			Total      float64 `json:"total"`
			Percentage float64 `json:"percentage"`
		}{s.Earned, s.Total, s.Percentage})
	}
	return json.Marshal(s.Raw)
}

func (s *Score) UnmarshalJSON(data []byte) error {
	var raw float64
	if err := json.Unmarshal(data, &raw); err == nil {
		*s = RawScore(raw)
		return nil
	}
	var detailed struct {
		Earned     float64 `json:"earned"`
		Total      float64 `json:"total"`
		Percentage float64 `json:"percentage"`
	}
	if err := json.Unmarshal(data, &detailed); err != nil {
		return errors.Wrap(err, "score: unsupported shape")
	}
	*s = DetailedScore(detailed.Earned, detailed.Total, detailed.Percentage)
	return nil
}

// SortEventsByTimestamp orders events by the timestamp they carry; the
// store may not preserve write order under concurrent writers.
func SortEventsByTimestamp(events []CompletionEvent) {
	sort.Slice(events, func(i, j int) bool {
		return events[i].Timestamp.Before(events[j].Timestamp)
	})
}
