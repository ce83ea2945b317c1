package ledgerdb

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core/course"
	"github.com/trezcool/darasa/storage/docstore"
)

type courseProvider struct {
	store docstore.Store
}

var _ course.Provider = (*courseProvider)(nil)

// NewCourseProvider reads course definitions from the shared document
// store. Definitions are authored elsewhere and read-only here.
func NewCourseProvider(store docstore.Store) course.Provider {
	return &courseProvider{store: store}
}

// PutCourse loads or replaces a course definition; used by the admin CLI
// and test fixtures.
func PutCourse(ctx context.Context, store docstore.Store, crs course.Course) error {
	return errors.Wrap(store.Put(ctx, courseColl, crs.ID, crs), "putting course")
}

func (p *courseProvider) GetCourse(ctx context.Context, courseID string) (course.Course, error) {
	raw, err := p.store.Get(ctx, courseColl, courseID)
	if err != nil {
		if errors.Cause(err) == docstore.ErrNotFound {
			return course.Course{}, course.ErrNotFound
		}
		return course.Course{}, errors.Wrap(err, "getting course")
	}
	var crs course.Course
	if err = json.Unmarshal(raw, &crs); err != nil {
		return course.Course{}, errors.Wrap(err, "decoding course")
	}
	if crs.ID == "" {
		crs.ID = courseID
	}
	return crs, nil
}
