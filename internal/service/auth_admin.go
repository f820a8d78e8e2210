package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// permanentBan is how Supabase Auth expresses an indefinite ban.
const permanentBan = "876000h"

// AuthAdmin performs account actions against the identity provider.
type AuthAdmin interface {
	SetBanned(ctx context.Context, userID string, banned bool) error
	SendPasswordReset(ctx context.Context, email, redirectTo string) error
}

type supabaseAuthAdmin struct {
	client *resty.Client
}

// NewSupabaseAuthAdmin returns a client for the Supabase Auth admin API using the service role key.
func NewSupabaseAuthAdmin(baseURL, serviceRoleKey string) AuthAdmin {
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")+"/auth/v1").
		SetHeader("apikey", serviceRoleKey).
		SetAuthToken(serviceRoleKey).
		SetTimeout(10 * time.Second)
	return &supabaseAuthAdmin{client: client}
}

func (a *supabaseAuthAdmin) SetBanned(ctx context.Context, userID string, banned bool) error {
	duration := "none"
	if banned {
		duration = permanentBan
	}
	resp, err := a.client.R().
		SetContext(ctx).
		SetPathParam("id", userID).
		SetBody(map[string]string{"ban_duration": duration}).
		Put("/admin/users/{id}")
	if err != nil {
		return fmt.Errorf("auth admin update user: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("auth admin update user: status %d: %s", resp.StatusCode(), resp.String())
	}
	return nil
}

func (a *supabaseAuthAdmin) SendPasswordReset(ctx context.Context, email, redirectTo string) error {
	req := a.client.R().
		SetContext(ctx).
		SetBody(map[string]string{"email": email})
	if redirectTo != "" {
		req.SetQueryParam("redirect_to", redirectTo)
	}
	resp, err := req.Post("/recover")
	if err != nil {
		return fmt.Errorf("auth recover: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("auth recover: status %d: %s", resp.StatusCode(), resp.String())
	}
	return nil
}
