package service

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"
	"testing"

	"lms/internal/learning"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var serialPattern = regexp.MustCompile(`^LMS-\d{4}-[0-9A-F]{12}$`)

func finishCourse(t *testing.T, env *testEnv) {
	t.Helper()
	readyForSubmission(t, env)
	sub := upload(t, env, pdfBytes)
	_, err := env.submission.Review(context.Background(), adminID, sub.ID, learning.ActionApprove, "")
	require.NoError(t, err)
}

func TestCertificate_Eligibility(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.enroll(t, studentID, freeCourseID)

	el, err := env.certificate.Eligibility(ctx, studentID, freeCourseID)
	require.NoError(t, err)
	assert.False(t, el.Eligible)
	assert.NotEmpty(t, el.Missing)

	_, _, err = env.certificate.Issue(ctx, studentID, freeCourseID)
	assert.ErrorIs(t, err, ErrNotEligible)

	_, err = env.certificate.Eligibility(ctx, studentID, paidCourseID)
	assert.ErrorIs(t, err, ErrNotEnrolled)
}

func TestCertificate_IssueOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	finishCourse(t, env)

	el, err := env.certificate.Eligibility(ctx, studentID, freeCourseID)
	require.NoError(t, err)
	assert.True(t, el.Eligible)
	assert.Empty(t, el.Missing)

	cert, created, err := env.certificate.Issue(ctx, studentID, freeCourseID)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Regexp(t, serialPattern, cert.Serial)
	assert.Len(t, cert.VerificationCode, verificationCodeLen)

	again, created, err := env.certificate.Issue(ctx, studentID, freeCourseID)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, cert.ID, again.ID)

	var issued []CertificateEvent
	for _, m := range env.publisher.messages() {
		if m.Topic == "certificate-events" {
			var ev CertificateEvent
			require.NoError(t, json.Unmarshal(m.Payload, &ev))
			issued = append(issued, ev)
		}
	}
	require.Len(t, issued, 1)
	assert.Equal(t, cert.Serial, issued[0].Serial)

	list, err := env.certificate.ListForUser(ctx, studentID)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	got, err := env.certificate.Get(ctx, studentID, freeCourseID)
	require.NoError(t, err)
	assert.Equal(t, cert.Serial, got.Serial)
}

func TestCertificate_Verify(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	finishCourse(t, env)
	cert, _, err := env.certificate.Issue(ctx, studentID, freeCourseID)
	require.NoError(t, err)

	got, err := env.certificate.Verify(ctx, strings.ToLower(cert.Serial), strings.ToLower(cert.VerificationCode))
	require.NoError(t, err)
	assert.Equal(t, cert.ID, got.ID)

	_, err = env.certificate.Verify(ctx, cert.Serial, "0000000000")
	assert.ErrorIs(t, err, ErrCertificateNotFound)

	_, err = env.certificate.Verify(ctx, "LMS-2025-000000000000", cert.VerificationCode)
	assert.ErrorIs(t, err, ErrCertificateNotFound)
}

func TestCertificate_EnqueueWithoutQueueIssuesInline(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	finishCourse(t, env)

	inline := NewCertificateService(CertificateDeps{
		Repo:       env.certRepo,
		Courses:    env.courses,
		Progress:   env.local,
		Access:     env.enrollment,
		SigningKey: []byte("k"),
	}, testLogger)
	require.NoError(t, inline.EnqueueEvaluation(ctx, studentID, freeCourseID))

	_, err := inline.Get(ctx, studentID, freeCourseID)
	assert.NoError(t, err)
}

func TestCertificate_ClaimChecksAccess(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, _, err := env.certificate.Claim(ctx, studentID, paidCourseID)
	assert.ErrorIs(t, err, ErrNotEnrolled)

	// Enrollment alone does not reveal a draft.
	env.enroll(t, studentID, draftCourseID)
	_, _, err = env.certificate.Claim(ctx, studentID, draftCourseID)
	assert.ErrorIs(t, err, ErrCourseNotFound)

	finishCourse(t, env)
	cert, created, err := env.certificate.Claim(ctx, studentID, freeCourseID)
	require.NoError(t, err)
	assert.True(t, created)

	again, created, err := env.certificate.Claim(ctx, studentID, freeCourseID)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, cert.ID, again.ID)
}
