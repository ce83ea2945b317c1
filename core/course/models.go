package course

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("course not found")

type (
	// Part is one atomic piece of a Lesson, addressed by its position.
	Part struct {
		ID    string `json:"id"`
		Index int    `json:"index"`
		Title string `json:"title,omitempty"`
	}

	Lesson struct {
		ID    string `json:"id"`
		Title string `json:"title,omitempty"`
		Parts []Part `json:"parts"`
	}

	Exam struct {
		ID    string `json:"id"`
		Title string `json:"title,omitempty"`
	}

	// Course is the authoritative definition of a course's content.
	// It is owned by the course-authoring side and read-only here; it may
	// shrink after completion events were recorded against it.
	Course struct {
		ID      string   `json:"id"`
		Title   string   `json:"title,omitempty"`
		Lessons []Lesson `json:"lessons"`
		Exams   []Exam   `json:"exams,omitempty"`
	}

	// Provider supplies current course definitions.
	Provider interface {
		GetCourse(ctx context.Context, courseID string) (Course, error)
	}
)

func (c Course) Lesson(id string) (Lesson, bool) {
	for _, l := range c.Lessons {
		if l.ID == id {
			return l, true
		}
	}
	return Lesson{}, false
}

func (c Course) Exam(id string) (Exam, bool) {
	for _, e := range c.Exams {
		if e.ID == id {
			return e, true
		}
	}
	return Exam{}, false
}

// HasPart reports whether idx is a valid part position in the lesson's
// current part list.
func (l Lesson) HasPart(idx int) bool {
	return idx >= 0 && idx < len(l.Parts)
}
