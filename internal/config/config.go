package config

import (
	"fmt"
	"strings"

	"github.com/kelseyhightower/envconfig"
)

// Catalog sources understood by CATALOG_SOURCE.
const (
	CatalogSourcePostgres = "postgres"
	CatalogSourceLocal    = "local"
	CatalogSourceAuto     = "auto"
)

type Config struct {
	Environment string `envconfig:"ENV" default:"development"`
	Port        string `envconfig:"PORT" default:"8080"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	DBConnectionString string `envconfig:"DB_CONNECTION_STRING" required:"true"`
	JWTSecret          string `envconfig:"SUPABASE_JWT_SECRET" required:"true"`

	// Supabase Auth admin API
	SupabaseURL            string `envconfig:"SUPABASE_URL"`
	SupabaseServiceRoleKey string `envconfig:"SUPABASE_SERVICE_ROLE_KEY"`
	PasswordResetRedirect  string `envconfig:"PASSWORD_RESET_REDIRECT_URL"`

	// Object storage (Supabase Storage S3 endpoint)
	S3URL        string `envconfig:"S3_URL" required:"true"`
	S3Bucket     string `envconfig:"S3_BUCKET" required:"true"`
	S3Region     string `envconfig:"S3_REGION" required:"true"`
	S3AccessKey  string `envconfig:"S3_ACCESS_KEY" required:"true"`
	S3SecretKey  string `envconfig:"S3_SECRET_KEY" required:"true"`
	S3PublicURL  string `envconfig:"S3_PUBLIC_URL"`
	UploadURLTTL int    `envconfig:"UPLOAD_URL_TTL_MIN" default:"15"`

	// Google Cloud
	GCPProjectID                  string `envconfig:"GCP_PROJECT_ID"`
	PubSubEmulatorHost            string `envconfig:"PUBSUB_EMULATOR_HOST"`
	PubSubSubmissionTopic         string `envconfig:"PUBSUB_SUBMISSION_TOPIC" default:"submission-events"`
	PubSubCertificateTopic        string `envconfig:"PUBSUB_CERTIFICATE_TOPIC" default:"certificate-events"`
	DLQEndpointURL                string `envconfig:"DLQ_ENDPOINT_URL"`
	PubSubPushServiceAccountEmail string `envconfig:"PUBSUB_PUSH_SERVICE_ACCOUNT_EMAIL"`

	// Stripe
	StripeSecretKey     string `envconfig:"STRIPE_SECRET_KEY"`
	StripeWebhookSecret string `envconfig:"STRIPE_WEBHOOK_SECRET"`
	StripeReturnURL     string `envconfig:"STRIPE_RETURN_URL" default:"http://localhost:3000/courses"`

	// Learning rules
	CatalogSource     string `envconfig:"CATALOG_SOURCE" default:"postgres"`
	QuizPassThreshold int    `envconfig:"QUIZ_PASS_THRESHOLD" default:"70"`

	// Certificates
	CertificateSigningKey string `envconfig:"CERTIFICATE_SIGNING_KEY"`
	CertificateSecretName string `envconfig:"CERTIFICATE_SECRET_NAME"`

	// Certificate orchestrator settings
	CertificateQueueName           string `envconfig:"CERTIFICATE_QUEUE_NAME" default:"certificate_queue"`
	CertificatePollTimeoutSec      int    `envconfig:"CERTIFICATE_POLL_TIMEOUT_SEC" default:"30"`
	CertificateVisibilitySec       int    `envconfig:"CERTIFICATE_VISIBILITY_SEC" default:"120"`
	CertificatePollMaxMsg          int    `envconfig:"CERTIFICATE_POLL_MAX_MSG" default:"1"`
	CertificateMaxRetries          int    `envconfig:"CERTIFICATE_MAX_RETRIES" default:"5"`
	CertificateBackoffInitialSec   int    `envconfig:"CERTIFICATE_BACKOFF_INITIAL_SEC" default:"1"`
	CertificateBackoffMaxSec       int    `envconfig:"CERTIFICATE_BACKOFF_MAX_SEC" default:"60"`
	CertificateDeadLetterQueueName string `envconfig:"CERTIFICATE_DEAD_LETTER_QUEUE_NAME" default:"certificate_queue_dlq"`

	// Upload reaper settings
	ReaperSchedule     string `envconfig:"REAPER_SCHEDULE" default:"*/15 * * * *"`
	ReaperUploadTTLMin int    `envconfig:"REAPER_UPLOAD_TTL_MIN" default:"60"`
	ReaperBatchSize    int    `envconfig:"REAPER_BATCH_SIZE" default:"100"`
	ReaperDryRun       bool   `envconfig:"REAPER_DRY_RUN" default:"false"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.CatalogSource {
	case CatalogSourcePostgres, CatalogSourceLocal, CatalogSourceAuto:
	default:
		return fmt.Errorf("invalid CATALOG_SOURCE %q: want postgres, local or auto", c.CatalogSource)
	}
	if c.QuizPassThreshold < 0 || c.QuizPassThreshold > 100 {
		return fmt.Errorf("QUIZ_PASS_THRESHOLD must be between 0 and 100, got %d", c.QuizPassThreshold)
	}
	return nil
}

// PublicObjectURL returns the public URL for an object in the storage bucket.
func (c *Config) PublicObjectURL(key string) string {
	base := c.S3PublicURL
	if base == "" {
		base = strings.TrimRight(c.SupabaseURL, "/") + "/storage/v1/object/public/" + c.S3Bucket
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(key, "/")
}
