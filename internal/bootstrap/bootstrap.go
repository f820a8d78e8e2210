// Package bootstrap builds the repositories and services shared by the API
// server and the orchestrators.
package bootstrap

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"lms/internal/config"
	"lms/internal/pgmq"
	"lms/internal/pubsub"
	"lms/internal/repository"
	"lms/internal/service"
	"lms/internal/storage"

	"github.com/rs/zerolog"
)

// Services is the wired service graph.
type Services struct {
	Users        service.UserService
	Courses      service.CourseService
	Enrollment   service.EnrollmentService
	Transactions service.TransactionService
	Progress     service.ProgressService
	Quiz         service.QuizService
	Submissions  service.SubmissionService
	Certificates service.CertificateService
	DLQ          service.DLQService
	// Stripe is nil when STRIPE_SECRET_KEY is unset.
	Stripe *service.StripeService
	Queue  *pgmq.Client
}

// Build wires every service over db. The returned close function releases
// the Pub/Sub client; the caller still owns db.
func Build(ctx context.Context, cfg *config.Config, db *sql.DB, logger zerolog.Logger) (*Services, func(), error) {
	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	local, err := repository.NewLocalStore()
	if err != nil {
		return nil, nil, fmt.Errorf("loading local catalog: %w", err)
	}

	s3Client, err := storage.NewS3Client(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	store := storage.NewS3Store(s3Client, cfg.S3Bucket)

	var publisher pubsub.Publisher
	if cfg.GCPProjectID == "" {
		logger.Warn().Msg("GCP_PROJECT_ID not set; domain events are logged instead of published")
		publisher = pubsub.NewNopPublisher(logger)
	} else {
		p, err := pubsub.NewPublisher(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		closers = append(closers, func() { _ = p.Close() })
		publisher = p
	}

	signingKey, err := SigningKey(ctx, cfg, logger)
	if err != nil {
		closeAll()
		return nil, nil, err
	}

	userRepo := repository.NewUserRepo(db)
	courseRepo := repository.NewCourseRepo(db, logger)
	enrollmentRepo := repository.NewEnrollmentRepo(db)
	txRepo := repository.NewTransactionRepo(db)
	submissionRepo := repository.NewSubmissionRepo(db)
	certificateRepo := repository.NewCertificateRepo(db)
	attemptRepo := repository.NewQuizAttemptRepo(db)
	dlqRepo := repository.NewDLQRepository(db)

	// Local mode keeps progress next to the in-memory catalog it refers to.
	var progressRepo repository.ProgressRepository = repository.NewProgressRepo(db)
	if cfg.CatalogSource == config.CatalogSourceLocal {
		progressRepo = local
	}

	queue := pgmq.New(db)

	var authAdmin service.AuthAdmin
	if cfg.SupabaseURL != "" && cfg.SupabaseServiceRoleKey != "" {
		authAdmin = service.NewSupabaseAuthAdmin(cfg.SupabaseURL, cfg.SupabaseServiceRoleKey)
	} else {
		logger.Warn().Msg("Supabase admin credentials not set; ban and password reset are disabled")
	}

	var stripeSvc *service.StripeService
	var checkout service.CheckoutProvider
	if cfg.StripeSecretKey != "" {
		stripeSvc = service.NewStripeService(cfg, userRepo, txRepo, logger)
		checkout = stripeSvc
	} else {
		logger.Warn().Msg("STRIPE_SECRET_KEY not set; paid enrollment is disabled")
	}

	svc := &Services{Stripe: stripeSvc, Queue: queue}
	svc.Users = service.NewUserService(userRepo, authAdmin, logger)
	svc.Courses = service.NewCourseService(courseRepo, local, cfg.CatalogSource, store, cfg.PublicObjectURL, logger)
	svc.Enrollment = service.NewEnrollmentService(enrollmentRepo, txRepo, userRepo, svc.Courses, checkout, logger)
	svc.Transactions = service.NewTransactionService(txRepo)
	svc.Certificates = service.NewCertificateService(service.CertificateDeps{
		Repo:       certificateRepo,
		Courses:    svc.Courses,
		Progress:   progressRepo,
		Access:     svc.Enrollment,
		Queue:      queue,
		QueueName:  cfg.CertificateQueueName,
		Publisher:  publisher,
		Topic:      cfg.PubSubCertificateTopic,
		SigningKey: signingKey,
	}, logger)
	svc.Progress = service.NewProgressService(svc.Courses, progressRepo, svc.Enrollment, svc.Certificates, logger)
	svc.Quiz = service.NewQuizService(svc.Courses, progressRepo, attemptRepo, svc.Enrollment, svc.Certificates, cfg.QuizPassThreshold, logger)
	svc.Submissions = service.NewSubmissionService(service.SubmissionDeps{
		Repo:      submissionRepo,
		Progress:  progressRepo,
		Users:     userRepo,
		Courses:   svc.Courses,
		Access:    svc.Enrollment,
		Store:     store,
		URLTTL:    time.Duration(cfg.UploadURLTTL) * time.Minute,
		Publisher: publisher,
		Topic:     cfg.PubSubSubmissionTopic,
		Certs:     svc.Certificates,
	}, logger)
	svc.DLQ = service.NewDLQService(dlqRepo, logger)

	return svc, closeAll, nil
}

// SigningKey resolves the certificate signing key. Secret Manager wins over
// CERTIFICATE_SIGNING_KEY. Development falls back to a random per-process key.
func SigningKey(ctx context.Context, cfg *config.Config, logger zerolog.Logger) ([]byte, error) {
	if cfg.CertificateSecretName != "" {
		secrets, err := service.NewSecretManagerService(ctx, cfg)
		if err != nil {
			return nil, err
		}
		defer secrets.Close()
		key, err := secrets.GetSecret(ctx, cfg.CertificateSecretName)
		if err != nil {
			return nil, fmt.Errorf("reading certificate signing key: %w", err)
		}
		return []byte(key), nil
	}
	if cfg.CertificateSigningKey != "" {
		return []byte(cfg.CertificateSigningKey), nil
	}
	if cfg.Environment != "development" {
		return nil, errors.New("CERTIFICATE_SIGNING_KEY or CERTIFICATE_SECRET_NAME is required outside development")
	}
	logger.Warn().Msg("No certificate signing key configured; using a random key, verification codes will not survive restarts")
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	return key, nil
}
