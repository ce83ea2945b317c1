package ledger

import (
	"context"
	"fmt"
	"net/mail"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core"
)

// genericCourseLabel is used when a course or exam title is missing;
// issuance never fails over a title.
const genericCourseLabel = "your course"

// IssueCourseCertificate certifies a course completion at most once per
// (student, course) pair. The existence check runs before every write; the
// deterministic document id additionally closes the window where two
// concurrent issuers both miss each other's in-flight write.
func (svc *Service) IssueCourseCertificate(ctx context.Context, studentID, courseID, courseTitle string) (Certificate, error) {
	if cert, err := svc.repo.FindCertificate(ctx, studentID, courseID, CertCourseCompletion); err == nil {
		return cert, nil
	} else if errors.Cause(err) != ErrNotFound {
		return Certificate{}, errors.Wrap(err, "checking existing certificate")
	}

	title := core.CleanString(courseTitle)
	if title == "" {
		title = genericCourseLabel
	}
	cert := Certificate{
		ID:          CertificateID(studentID, courseID, CertCourseCompletion),
		Serial:      uuid.New().String(),
		StudentID:   studentID,
		CourseID:    courseID,
		Type:        CertCourseCompletion,
		Title:       fmt.Sprintf("Certificate of Completion — %s", title),
		Description: fmt.Sprintf("Awarded for completing %s.", title),
		IssuedAt:    svc.now(),
	}
	if err := svc.createCertificate(ctx, &cert); err != nil {
		return Certificate{}, err
	}
	return cert, nil
}

// IssueExamCertificate certifies an exam completion at most once per
// (student, exam) pair; retakes change the displayed result, never the
// certificate.
func (svc *Service) IssueExamCertificate(ctx context.Context, studentID, courseID, examID, examTitle string, score Score) (Certificate, error) {
	if cert, err := svc.repo.FindCertificate(ctx, studentID, examID, CertExamCompletion); err == nil {
		return cert, nil
	} else if errors.Cause(err) != ErrNotFound {
		return Certificate{}, errors.Wrap(err, "checking existing certificate")
	}

	title := core.CleanString(examTitle)
	if title == "" {
		title = "your exam"
	}
	cert := Certificate{
		ID:          CertificateID(studentID, examID, CertExamCompletion),
		Serial:      uuid.New().String(),
		StudentID:   studentID,
		CourseID:    courseID,
		ExamID:      examID,
		Type:        CertExamCompletion,
		Title:       fmt.Sprintf("Exam Achievement — %s", title),
		Description: fmt.Sprintf("Awarded for completing %s with a score of %.0f%%.", title, score.Percent()),
		Score:       score.Percent(),
		IssuedAt:    svc.now(),
	}
	if err := svc.createCertificate(ctx, &cert); err != nil {
		return Certificate{}, err
	}
	return cert, nil
}

func (svc *Service) createCertificate(ctx context.Context, cert *Certificate) error {
	if err := svc.repo.CreateCertificate(ctx, *cert); err != nil {
		if errors.Cause(err) == ErrAlreadyExists {
			// another writer won the race; theirs is the certificate
			existing, ferr := svc.repo.FindCertificate(ctx, cert.StudentID, certSubject(*cert), cert.Type)
			if ferr != nil {
				return errors.Wrap(ferr, "resolving certificate race")
			}
			*cert = existing
			return nil
		}
		return errors.Wrap(err, "creating certificate")
	}

	svc.notify(ctx, cert)
	return nil
}

type ctxKey int

const studentEmailKey ctxKey = 1

// WithStudentEmail stashes the caller's email (as supplied by the identity
// provider) for best-effort notifications.
func WithStudentEmail(ctx context.Context, email string) context.Context {
	return context.WithValue(ctx, studentEmailKey, email)
}

// notify sends the congratulations email; delivery is fire-and-forget and
// only happens when the caller's identity carried an address.
func (svc *Service) notify(ctx context.Context, cert *Certificate) {
	if svc.mailSvc == nil {
		return
	}
	email, _ := ctx.Value(studentEmailKey).(string)
	if email == "" {
		return
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:      []mail.Address{{Address: email}},
		Subject: cert.Title,
		BodyStr: cert.Description,
	})
}

func certSubject(cert Certificate) string {
	if cert.Type == CertExamCompletion {
		return cert.ExamID
	}
	return cert.CourseID
}
