package service

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"lms/internal/config"
	"lms/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

const testWebhookSecret = "whsec_test"

func signedWebhook(t *testing.T, eventType string, session map[string]any) *http.Request {
	t.Helper()
	payload, err := json.Marshal(map[string]any{
		"id":          "evt_test",
		"object":      "event",
		"api_version": stripe.APIVersion,
		"type":        eventType,
		"data":        map[string]any{"object": session},
	})
	require.NoError(t, err)
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{Payload: payload, Secret: testWebhookSecret})
	req := httptest.NewRequest(http.MethodPost, "/stripe/webhook", bytes.NewReader(signed.Payload))
	req.Header.Set("Stripe-Signature", signed.Header)
	return req
}

func newStripeFixture(t *testing.T) (*StripeService, *fakeTransactions, *fakeEnrollments, string) {
	t.Helper()
	enrollments := newFakeEnrollments()
	txs := newFakeTransactions(enrollments)
	tx := &model.Transaction{UserID: studentID, CourseID: paidCourseID, AmountCents: 4900, Currency: "usd", Status: model.TransactionPending, Provider: "stripe"}
	require.NoError(t, txs.Create(context.Background(), tx))
	cfg := &config.Config{StripeWebhookSecret: testWebhookSecret}
	svc := NewStripeService(cfg, newFakeUsers(), txs, testLogger)
	return svc, txs, enrollments, tx.ID
}

func TestStripeWebhook_CompletedEnrolls(t *testing.T) {
	svc, txs, enrollments, txID := newStripeFixture(t)
	session := map[string]any{
		"id":             "cs_test",
		"object":         "checkout.session",
		"payment_status": "paid",
		"metadata":       map[string]string{"transaction_id": txID},
	}

	for range 2 {
		rec := httptest.NewRecorder()
		svc.HandleWebhook(rec, signedWebhook(t, "checkout.session.completed", session))
		assert.Equal(t, http.StatusOK, rec.Code)
	}

	tx, err := txs.GetByID(context.Background(), txID)
	require.NoError(t, err)
	assert.Equal(t, model.TransactionSucceeded, tx.Status)
	ok, err := enrollments.Exists(context.Background(), studentID, paidCourseID)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestStripeWebhook_UnpaidCompletionWaits(t *testing.T) {
	svc, txs, _, txID := newStripeFixture(t)
	rec := httptest.NewRecorder()
	svc.HandleWebhook(rec, signedWebhook(t, "checkout.session.completed", map[string]any{
		"id":             "cs_test",
		"object":         "checkout.session",
		"payment_status": "unpaid",
		"metadata":       map[string]string{"transaction_id": txID},
	}))
	assert.Equal(t, http.StatusOK, rec.Code)

	tx, err := txs.GetByID(context.Background(), txID)
	require.NoError(t, err)
	assert.Equal(t, model.TransactionPending, tx.Status)
}

func TestStripeWebhook_ExpiredFails(t *testing.T) {
	svc, txs, _, txID := newStripeFixture(t)
	rec := httptest.NewRecorder()
	svc.HandleWebhook(rec, signedWebhook(t, "checkout.session.expired", map[string]any{
		"id":       "cs_test",
		"object":   "checkout.session",
		"metadata": map[string]string{"transaction_id": txID},
	}))
	assert.Equal(t, http.StatusOK, rec.Code)

	tx, err := txs.GetByID(context.Background(), txID)
	require.NoError(t, err)
	assert.Equal(t, model.TransactionFailed, tx.Status)
}

func TestStripeWebhook_Rejects(t *testing.T) {
	svc, _, _, _ := newStripeFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/stripe/webhook", bytes.NewReader([]byte(`{}`)))
	req.Header.Set("Stripe-Signature", "t=1,v1=bad")
	rec := httptest.NewRecorder()
	svc.HandleWebhook(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	svc.HandleWebhook(rec, signedWebhook(t, "checkout.session.completed", map[string]any{
		"id":     "cs_test",
		"object": "checkout.session",
	}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
