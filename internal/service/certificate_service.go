package service

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"lms/internal/learning"
	"lms/internal/model"
	"lms/internal/pubsub"
	"lms/internal/repository"

	"github.com/rs/zerolog"
)

const verificationCodeLen = 20

// JobQueue is the subset of the pgmq client used to schedule background work.
type JobQueue interface {
	Send(ctx context.Context, queue string, payload []byte) error
}

// CertificateScheduler defers certificate evaluation to the certificate worker.
type CertificateScheduler interface {
	EnqueueEvaluation(ctx context.Context, userID, courseID string) error
}

// CertificateJob is the payload placed on the certificate queue.
type CertificateJob struct {
	UserID   string `json:"user_id"`
	CourseID string `json:"course_id"`
}

// Eligibility reports whether a student may receive a certificate and what is still missing.
type Eligibility struct {
	Eligible bool     `json:"eligible"`
	Missing  []string `json:"missing"`
}

type CertificateEvent struct {
	Type          string    `json:"type"`
	CertificateID string    `json:"certificate_id"`
	UserID        string    `json:"user_id"`
	CourseID      string    `json:"course_id"`
	Serial        string    `json:"serial"`
	IssuedAt      time.Time `json:"issued_at"`
}

type CertificateService interface {
	CertificateScheduler
	Eligibility(ctx context.Context, userID, courseID string) (*Eligibility, error)
	// Issue creates the certificate when every requirement is met. It is idempotent:
	// an existing certificate is returned with created=false.
	Issue(ctx context.Context, userID, courseID string) (cert *model.Certificate, created bool, err error)
	// Claim is Issue on a student's own request: it requires enrollment and
	// hides draft courses from non-admins.
	Claim(ctx context.Context, userID, courseID string) (cert *model.Certificate, created bool, err error)
	Get(ctx context.Context, userID, courseID string) (*model.Certificate, error)
	ListForUser(ctx context.Context, userID string) ([]model.Certificate, error)
	// Verify checks a serial and verification code pair from a printed certificate.
	Verify(ctx context.Context, serial, code string) (*model.Certificate, error)
}

type certificateService struct {
	repo      repository.CertificateRepository
	loader    *learnerLoader
	queue     JobQueue
	queueName string
	publisher pubsub.Publisher
	topic     string
	key       []byte
	now       func() time.Time
	logger    zerolog.Logger
}

// CertificateDeps groups the collaborators of the certificate service.
type CertificateDeps struct {
	Repo       repository.CertificateRepository
	Courses    CourseService
	Progress   repository.ProgressRepository
	Access     EnrollmentService
	Queue      JobQueue
	QueueName  string
	Publisher  pubsub.Publisher
	Topic      string
	SigningKey []byte
}

func NewCertificateService(deps CertificateDeps, logger zerolog.Logger) CertificateService {
	return &certificateService{
		repo:      deps.Repo,
		loader:    &learnerLoader{courses: deps.Courses, progress: deps.Progress, access: deps.Access},
		queue:     deps.Queue,
		queueName: deps.QueueName,
		publisher: deps.Publisher,
		topic:     deps.Topic,
		key:       deps.SigningKey,
		now:       time.Now,
		logger:    logger.With().Str("service", "CertificateService").Logger(),
	}
}

func (s *certificateService) EnqueueEvaluation(ctx context.Context, userID, courseID string) error {
	if s.queue == nil {
		_, _, err := s.Issue(ctx, userID, courseID)
		return err
	}
	payload, err := json.Marshal(CertificateJob{UserID: userID, CourseID: courseID})
	if err != nil {
		return err
	}
	return s.queue.Send(ctx, s.queueName, payload)
}

func (s *certificateService) Eligibility(ctx context.Context, userID, courseID string) (*Eligibility, error) {
	course, progress, err := s.loader.load(ctx, userID, courseID)
	if err != nil {
		return nil, err
	}
	missing := learning.Missing(course, progress)
	if missing == nil {
		missing = []string{}
	}
	return &Eligibility{Eligible: learning.IsEligible(course, progress), Missing: missing}, nil
}

func (s *certificateService) Issue(ctx context.Context, userID, courseID string) (*model.Certificate, bool, error) {
	// The worker evaluates on behalf of the student, so drafts still count.
	return s.issue(ctx, userID, courseID, true)
}

func (s *certificateService) Claim(ctx context.Context, userID, courseID string) (*model.Certificate, bool, error) {
	isAdmin, err := s.loader.access.RequireAccess(ctx, userID, courseID)
	if err != nil {
		return nil, false, err
	}
	return s.issue(ctx, userID, courseID, isAdmin)
}

func (s *certificateService) issue(ctx context.Context, userID, courseID string, includeDrafts bool) (*model.Certificate, bool, error) {
	course, progress, err := s.loader.loadUnchecked(ctx, userID, courseID, includeDrafts)
	if err != nil {
		return nil, false, err
	}
	existing, err := s.repo.GetByUserCourse(ctx, userID, courseID)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}
	if !learning.IsEligible(course, progress) {
		return nil, false, ErrNotEligible
	}

	issuedAt := s.now().UTC().Truncate(time.Second)
	serial, err := newSerial(issuedAt)
	if err != nil {
		return nil, false, err
	}
	cert := &model.Certificate{
		UserID:   userID,
		CourseID: courseID,
		Serial:   serial,
		IssuedAt: issuedAt,
	}
	cert.VerificationCode = s.code(cert)

	stored, created, err := s.repo.CreateIfAbsent(ctx, cert)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Str("course_id", courseID).Msg("Failed to store certificate")
		return nil, false, err
	}
	if created {
		s.logger.Info().Str("user_id", userID).Str("course_id", courseID).Str("serial", stored.Serial).Msg("Certificate issued")
		s.publish(ctx, stored)
	}
	return stored, created, nil
}

func (s *certificateService) publish(ctx context.Context, c *model.Certificate) {
	if s.publisher == nil || s.topic == "" {
		return
	}
	ev := CertificateEvent{
		Type:          "certificate.issued",
		CertificateID: c.ID,
		UserID:        c.UserID,
		CourseID:      c.CourseID,
		Serial:        c.Serial,
		IssuedAt:      c.IssuedAt,
	}
	if _, err := pubsub.PublishJSON(ctx, s.publisher, s.topic, ev); err != nil {
		s.logger.Warn().Err(err).Str("serial", c.Serial).Msg("Failed to publish certificate event")
	}
}

func (s *certificateService) Get(ctx context.Context, userID, courseID string) (*model.Certificate, error) {
	c, err := s.repo.GetByUserCourse(ctx, userID, courseID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, ErrCertificateNotFound
	}
	return c, nil
}

func (s *certificateService) ListForUser(ctx context.Context, userID string) ([]model.Certificate, error) {
	return s.repo.ListByUser(ctx, userID)
}

func (s *certificateService) Verify(ctx context.Context, serial, code string) (*model.Certificate, error) {
	c, err := s.repo.GetBySerial(ctx, strings.ToUpper(strings.TrimSpace(serial)))
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, ErrCertificateNotFound
	}
	given := strings.ToUpper(strings.TrimSpace(code))
	if !hmac.Equal([]byte(given), []byte(s.code(c))) {
		return nil, ErrCertificateNotFound
	}
	return c, nil
}

// code derives the verification code from the certificate's identifying fields.
func (s *certificateService) code(c *model.Certificate) string {
	mac := hmac.New(sha256.New, s.key)
	fmt.Fprintf(mac, "%s|%s|%s|%d", c.Serial, c.UserID, c.CourseID, c.IssuedAt.Unix())
	return strings.ToUpper(hex.EncodeToString(mac.Sum(nil)))[:verificationCodeLen]
}

// newSerial returns a serial of the form LMS-2025-1A2B3C4D5E6F.
func newSerial(at time.Time) (string, error) {
	b := make([]byte, 6)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate serial: %w", err)
	}
	return fmt.Sprintf("LMS-%d-%s", at.Year(), strings.ToUpper(hex.EncodeToString(b))), nil
}
