package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"lms/internal/config"
	"lms/internal/model"
	"lms/internal/repository"

	"github.com/rs/zerolog"
	"github.com/stripe/stripe-go/v82"
	checkoutsession "github.com/stripe/stripe-go/v82/checkout/session"
	customerpkg "github.com/stripe/stripe-go/v82/customer"
	"github.com/stripe/stripe-go/v82/webhook"
)

// maxWebhookBody bounds the webhook payload read from Stripe.
const maxWebhookBody = 1 << 16

// StripeService manages Stripe integration
type StripeService struct {
	cfg      *config.Config
	userRepo repository.UserRepository
	txRepo   repository.TransactionRepository
	logger   zerolog.Logger
}

// NewStripeService initializes Stripe key and returns service with a scoped logger
func NewStripeService(cfg *config.Config, userRepo repository.UserRepository, txRepo repository.TransactionRepository, logger zerolog.Logger) *StripeService {
	stripe.Key = cfg.StripeSecretKey
	lg := logger.With().Str("service", "StripeService").Logger()
	return &StripeService{cfg: cfg, userRepo: userRepo, txRepo: txRepo, logger: lg}
}

// GetOrCreateCustomer ensures a Stripe Customer exists for a user
func (s *StripeService) GetOrCreateCustomer(ctx context.Context, user *model.User) (string, error) {
	if user.StripeCustomerID != nil && *user.StripeCustomerID != "" {
		return *user.StripeCustomerID, nil
	}
	return s.CreateCustomer(ctx, user)
}

// CreateCustomer creates a new Stripe customer for a user
func (s *StripeService) CreateCustomer(ctx context.Context, user *model.User) (string, error) {
	params := &stripe.CustomerParams{
		Email:    stripe.String(user.Email),
		Name:     stripe.String(user.Name),
		Metadata: map[string]string{"user_id": user.UserID},
	}
	cust, err := customerpkg.New(params)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", user.UserID).Msg("Failed to create Stripe customer")
		return "", fmt.Errorf("create stripe customer: %w", err)
	}
	if err := s.userRepo.UpdateStripeCustomerID(ctx, user.UserID, cust.ID); err != nil {
		s.logger.Error().Err(err).Str("user_id", user.UserID).Msg("Failed to store stripe customer id in user_profiles")
		return "", fmt.Errorf("store stripe customer id: %w", err)
	}
	return cust.ID, nil
}

// CreateCourseCheckout opens a one-off payment Checkout session for a course.
// The pending transaction id travels in the session metadata.
func (s *StripeService) CreateCourseCheckout(ctx context.Context, user *model.User, course *model.Course, tx *model.Transaction) (string, string, error) {
	customerID, err := s.GetOrCreateCustomer(ctx, user)
	if err != nil {
		return "", "", err
	}
	returnURL := strings.TrimRight(s.cfg.StripeReturnURL, "/") + "/" + course.ID
	metadata := map[string]string{
		"transaction_id": tx.ID,
		"user_id":        user.UserID,
		"course_id":      course.ID,
	}
	sessParams := &stripe.CheckoutSessionParams{
		Customer:          stripe.String(customerID),
		ClientReferenceID: stripe.String(tx.ID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(strings.ToLower(tx.Currency)),
				UnitAmount: stripe.Int64(tx.AmountCents),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(course.Name),
				},
			},
			Quantity: stripe.Int64(1),
		}},
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(returnURL + "?status=success"),
		CancelURL:  stripe.String(returnURL + "?status=cancel"),
		Metadata:   metadata,
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: metadata,
		},
	}
	sess, err := checkoutsession.New(sessParams)
	if err != nil {
		s.logger.Error().Err(err).Str("course_id", course.ID).Msg("Failed to create Stripe checkout session")
		return "", "", fmt.Errorf("create checkout session: %w", err)
	}
	return sess.ID, sess.URL, nil
}

// HandleWebhook processes Stripe webhook events
func (s *StripeService) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to read Stripe webhook payload")
		http.Error(w, "failed to read payload", http.StatusBadRequest)
		return
	}
	sig := r.Header.Get("Stripe-Signature")
	event, err := webhook.ConstructEvent(payload, sig, s.cfg.StripeWebhookSecret)
	if err != nil {
		s.logger.Error().Err(err).Msg("Signature verification failed for Stripe webhook")
		http.Error(w, "signature verification failed", http.StatusBadRequest)
		return
	}
	s.logger.Info().Str("event_type", string(event.Type)).Msg("Stripe webhook received")

	ctx := r.Context()
	switch event.Type {
	case "checkout.session.completed", "checkout.session.async_payment_succeeded":
		cs, ok := s.decodeSession(w, event)
		if !ok {
			return
		}
		if cs.PaymentStatus == stripe.CheckoutSessionPaymentStatusUnpaid {
			// Delayed payment methods report completion before funds arrive.
			s.logger.Info().Str("session_id", cs.ID).Msg("Checkout completed with payment pending")
			break
		}
		txID := cs.Metadata["transaction_id"]
		tx, err := s.txRepo.CompletePurchase(ctx, txID)
		if err != nil {
			s.logger.Error().Err(err).Str("transaction_id", txID).Msg("Failed to complete purchase")
			http.Error(w, "failed to complete purchase", http.StatusInternalServerError)
			return
		}
		if tx == nil {
			s.logger.Info().Str("transaction_id", txID).Msg("Transaction already settled; ignoring duplicate event")
			break
		}
		s.logger.Info().Str("transaction_id", tx.ID).Str("user_id", tx.UserID).Str("course_id", tx.CourseID).Msg("Course purchase completed")
	case "checkout.session.expired", "checkout.session.async_payment_failed":
		cs, ok := s.decodeSession(w, event)
		if !ok {
			return
		}
		txID := cs.Metadata["transaction_id"]
		if err := s.txRepo.MarkFailed(ctx, txID); err != nil {
			s.logger.Error().Err(err).Str("transaction_id", txID).Msg("Failed to mark transaction failed")
			http.Error(w, "failed to update transaction", http.StatusInternalServerError)
			return
		}
	default:
		s.logger.Warn().Str("event_type", string(event.Type)).Msg("Unhandled Stripe webhook event")
	}
	w.WriteHeader(http.StatusOK)
}

func (s *StripeService) decodeSession(w http.ResponseWriter, event stripe.Event) (*stripe.CheckoutSession, bool) {
	var cs stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &cs); err != nil {
		s.logger.Error().Err(err).Msg("Invalid checkout.session data")
		http.Error(w, "invalid checkout.session data", http.StatusBadRequest)
		return nil, false
	}
	if cs.Metadata["transaction_id"] == "" {
		s.logger.Error().Str("session_id", cs.ID).Msg("Missing transaction_id in checkout session metadata")
		http.Error(w, "missing transaction_id in metadata", http.StatusBadRequest)
		return nil, false
	}
	return &cs, true
}
