// Package ledgerdb implements the ledger and course repositories on top of
// any docstore.Store backend.
package ledgerdb

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core/ledger"
	"github.com/trezcool/darasa/storage/docstore"
)

// Collections
const (
	enrollmentColl  = "enrollments"
	completionColl  = "completions"
	certificateColl = "certificates"
	ratingColl      = "ratings"
	courseColl      = "courses"
)

type ledgerRepository struct {
	store docstore.Store
}

var _ ledger.Repository = (*ledgerRepository)(nil)

func NewLedgerRepository(store docstore.Store) ledger.Repository {
	return &ledgerRepository{store: store}
}

// Enrollments

func (r *ledgerRepository) CreateEnrollment(ctx context.Context, enr ledger.Enrollment) error {
	err := r.store.Create(ctx, enrollmentColl, ledger.EnrollmentID(enr.StudentID, enr.CourseID), enr)
	return mapErr(err, "creating enrollment")
}

func (r *ledgerRepository) GetEnrollment(ctx context.Context, studentID, courseID string) (ledger.Enrollment, error) {
	raw, err := r.store.Get(ctx, enrollmentColl, ledger.EnrollmentID(studentID, courseID))
	if err != nil {
		return ledger.Enrollment{}, mapErr(err, "getting enrollment")
	}
	var enr ledger.Enrollment
	if err = json.Unmarshal(raw, &enr); err != nil {
		return ledger.Enrollment{}, errors.Wrap(err, "decoding enrollment")
	}
	return enr, nil
}

func (r *ledgerRepository) UpdateEnrollment(ctx context.Context, enr ledger.Enrollment) error {
	err := r.store.Put(ctx, enrollmentColl, ledger.EnrollmentID(enr.StudentID, enr.CourseID), enr)
	return mapErr(err, "updating enrollment")
}

func (r *ledgerRepository) DeleteEnrollment(ctx context.Context, studentID, courseID string) error {
	err := r.store.Delete(ctx, enrollmentColl, ledger.EnrollmentID(studentID, courseID))
	return mapErr(err, "deleting enrollment")
}

func (r *ledgerRepository) ListEnrollments(ctx context.Context, studentID string) ([]ledger.Enrollment, error) {
	raws, err := r.store.Scan(ctx, enrollmentColl, docstore.Filter{Field: "student_id", Value: studentID})
	if err != nil {
		return nil, mapErr(err, "scanning enrollments")
	}
	enrs := make([]ledger.Enrollment, 0, len(raws))
	for _, raw := range raws {
		var enr ledger.Enrollment
		if err = json.Unmarshal(raw, &enr); err != nil {
			return nil, errors.Wrap(err, "decoding enrollment")
		}
		enrs = append(enrs, enr)
	}
	return enrs, nil
}

// Completion events

func (r *ledgerRepository) CreateEvent(ctx context.Context, ev ledger.CompletionEvent) error {
	return mapErr(r.store.Create(ctx, completionColl, ev.ID, ev), "creating event")
}

func (r *ledgerRepository) SaveExamResult(ctx context.Context, ev ledger.CompletionEvent) error {
	return mapErr(r.store.Put(ctx, completionColl, ev.ID, ev), "saving exam result")
}

func (r *ledgerRepository) ListEvents(ctx context.Context, studentID, courseID string) ([]ledger.CompletionEvent, error) {
	return r.scanEvents(ctx,
		docstore.Filter{Field: "student_id", Value: studentID},
		docstore.Filter{Field: "course_id", Value: courseID},
	)
}

func (r *ledgerRepository) ListStudentEvents(ctx context.Context, studentID string) ([]ledger.CompletionEvent, error) {
	return r.scanEvents(ctx, docstore.Filter{Field: "student_id", Value: studentID})
}

func (r *ledgerRepository) scanEvents(ctx context.Context, filters ...docstore.Filter) ([]ledger.CompletionEvent, error) {
	raws, err := r.store.Scan(ctx, completionColl, filters...)
	if err != nil {
		return nil, mapErr(err, "scanning events")
	}
	events := make([]ledger.CompletionEvent, 0, len(raws))
	for _, raw := range raws {
		var ev ledger.CompletionEvent
		if err = json.Unmarshal(raw, &ev); err != nil {
			return nil, errors.Wrap(err, "decoding event")
		}
		events = append(events, ev)
	}
	return events, nil
}

func (r *ledgerRepository) DeleteEvent(ctx context.Context, id string) error {
	return mapErr(r.store.Delete(ctx, completionColl, id), "deleting event")
}

// Certificates

func (r *ledgerRepository) CreateCertificate(ctx context.Context, cert ledger.Certificate) error {
	return mapErr(r.store.Create(ctx, certificateColl, cert.ID, cert), "creating certificate")
}

// FindCertificate scans rather than keying on the deterministic id so that
// certificates written by older clients with store-assigned ids still match.
func (r *ledgerRepository) FindCertificate(ctx context.Context, studentID, subjectID, certType string) (ledger.Certificate, error) {
	filters := []docstore.Filter{
		{Field: "student_id", Value: studentID},
		{Field: "type", Value: certType},
	}
	if certType == ledger.CertExamCompletion {
		filters = append(filters, docstore.Filter{Field: "exam_id", Value: subjectID})
	} else {
		filters = append(filters, docstore.Filter{Field: "course_id", Value: subjectID})
	}

	raws, err := r.store.Scan(ctx, certificateColl, filters...)
	if err != nil {
		return ledger.Certificate{}, mapErr(err, "scanning certificates")
	}
	if len(raws) == 0 {
		return ledger.Certificate{}, ledger.ErrNotFound
	}
	var cert ledger.Certificate
	if err = json.Unmarshal(raws[0], &cert); err != nil {
		return ledger.Certificate{}, errors.Wrap(err, "decoding certificate")
	}
	return cert, nil
}

func (r *ledgerRepository) ListCertificates(ctx context.Context, studentID string) ([]ledger.Certificate, error) {
	raws, err := r.store.Scan(ctx, certificateColl, docstore.Filter{Field: "student_id", Value: studentID})
	if err != nil {
		return nil, mapErr(err, "scanning certificates")
	}
	certs := make([]ledger.Certificate, 0, len(raws))
	for _, raw := range raws {
		var cert ledger.Certificate
		if err = json.Unmarshal(raw, &cert); err != nil {
			return nil, errors.Wrap(err, "decoding certificate")
		}
		certs = append(certs, cert)
	}
	return certs, nil
}

// Ratings

func (r *ledgerRepository) CreateRating(ctx context.Context, rating ledger.Rating) error {
	return mapErr(r.store.Create(ctx, ratingColl, rating.ID, rating), "creating rating")
}

func (r *ledgerRepository) ListCourseRatings(ctx context.Context, courseID string) ([]ledger.Rating, error) {
	raws, err := r.store.Scan(ctx, ratingColl, docstore.Filter{Field: "course_id", Value: courseID})
	if err != nil {
		return nil, mapErr(err, "scanning ratings")
	}
	ratings := make([]ledger.Rating, 0, len(raws))
	for _, raw := range raws {
		var rating ledger.Rating
		if err = json.Unmarshal(raw, &rating); err != nil {
			return nil, errors.Wrap(err, "decoding rating")
		}
		ratings = append(ratings, rating)
	}
	return ratings, nil
}

// mapErr translates store errors into domain errors, keeping the store
// failure as context for everything else.
func mapErr(err error, msg string) error {
	switch errors.Cause(err) {
	case nil:
		return nil
	case docstore.ErrNotFound:
		return ledger.ErrNotFound
	case docstore.ErrExists:
		return ledger.ErrAlreadyExists
	default:
		return errors.Wrap(err, msg)
	}
}
