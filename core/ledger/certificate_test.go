package ledger_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/darasa/core/ledger"
	emailsvc "github.com/trezcool/darasa/services/email"
)

func TestService_IssueCourseCertificate_idempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	cert1, err := env.svc.IssueCourseCertificate(ctx, "s1", "c1", "Intro to Programming")
	require.NoError(t, err)
	assert.Equal(t, ledger.CertificateID("s1", "c1", ledger.CertCourseCompletion), cert1.ID)

	// a second invocation returns the existing certificate, same serial
	cert2, err := env.svc.IssueCourseCertificate(ctx, "s1", "c1", "Intro to Programming")
	require.NoError(t, err)
	assert.Equal(t, cert1.Serial, cert2.Serial)

	certs, err := env.svc.GetAchievements(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, certs, 1)
}

func TestService_IssueCourseCertificate_titleFallback(t *testing.T) {
	env := newTestEnv(t)

	cert, err := env.svc.IssueCourseCertificate(context.Background(), "s1", "c1", "   ")
	require.NoError(t, err)
	assert.Contains(t, cert.Title, "your course")
	assert.Contains(t, cert.Description, "your course")
}

func TestService_IssueExamCertificate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	cert, err := env.svc.IssueExamCertificate(ctx, "s1", "c1", "e1", "Final Exam", ledger.RawScore(85))
	require.NoError(t, err)
	assert.Equal(t, ledger.CertExamCompletion, cert.Type)
	assert.Equal(t, "e1", cert.ExamID)
	assert.Equal(t, float64(85), cert.Score)

	// retakes never re-certify
	cert2, err := env.svc.IssueExamCertificate(ctx, "s1", "c1", "e1", "Final Exam", ledger.RawScore(95))
	require.NoError(t, err)
	assert.Equal(t, cert.Serial, cert2.Serial)
	assert.Equal(t, float64(85), cert2.Score)
}

// A certificate written by an older client with a store-assigned id must
// still be found by the scan and block re-issuance.
func TestService_IssueCourseCertificate_legacyID(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	legacy := ledger.Certificate{
		ID:        "some-random-uuid",
		Serial:    "legacy-serial",
		StudentID: "s1",
		CourseID:  "c1",
		Type:      ledger.CertCourseCompletion,
		Title:     "Certificate of Completion",
		IssuedAt:  testNow,
	}
	require.NoError(t, env.repo.CreateCertificate(ctx, legacy))

	cert, err := env.svc.IssueCourseCertificate(ctx, "s1", "c1", "Intro")
	require.NoError(t, err)
	assert.Equal(t, "legacy-serial", cert.Serial)

	certs, err := env.svc.GetAchievements(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, certs, 1)
}

func TestService_certificateNotification(t *testing.T) {
	env := newTestEnv(t)

	// no email in context: nothing sent
	_, err := env.svc.IssueCourseCertificate(context.Background(), "s1", "c1", "Intro")
	require.NoError(t, err)
	assert.Empty(t, emailsvc.SentMessages)

	ctx := ledger.WithStudentEmail(context.Background(), "s2@student.test")
	cert, err := env.svc.IssueCourseCertificate(ctx, "s2", "c1", "Intro")
	require.NoError(t, err)

	require.Len(t, emailsvc.SentMessages, 1)
	msg := emailsvc.SentMessages[0]
	assert.Equal(t, "s2@student.test", msg.To[0].Address)
	assert.Equal(t, cert.Title, msg.Subject)
}
