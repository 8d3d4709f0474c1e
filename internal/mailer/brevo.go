// Package mailer sends transactional email through the Brevo API.
package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Brevo sends email via the Brevo transactional API.
type Brevo struct {
	apiKey    string
	fromEmail string
	fromName  string
	baseURL   string
	client    *http.Client
}

type Options struct {
	APIKey     string
	FromEmail  string
	FromName   string
	BaseURL    string
	HTTPClient *http.Client
}

func NewBrevo(opts Options) *Brevo {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.brevo.com"
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Brevo{
		apiKey:    opts.APIKey,
		fromEmail: opts.FromEmail,
		fromName:  opts.FromName,
		baseURL:   baseURL,
		client:    client,
	}
}

type emailRequest struct {
	Sender      emailAddress   `json:"sender"`
	To          []emailAddress `json:"to"`
	Subject     string         `json:"subject"`
	HTMLContent string         `json:"htmlContent"`
	TextContent string         `json:"textContent"`
}

type emailAddress struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// SendSubscriptionCancelled notifies an account that their subscription was
// cancelled and when access ends.
func (b *Brevo) SendSubscriptionCancelled(ctx context.Context, email, name, endsAt string) error {
	subject := "Your Palmtell subscription has been cancelled"
	html := fmt.Sprintf(`
		<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto; padding: 20px;">
			<h2>Sorry to see you go, %s</h2>
			<p>Your subscription has been cancelled. You keep full access until <strong>%s</strong>.</p>
			<p>Your readings stay saved, and you can resubscribe any time to pick up where you left off.</p>
		</div>`, name, endsAt)
	text := fmt.Sprintf(
		"Sorry to see you go, %s.\n\nYour subscription has been cancelled. You keep full access until %s.\n\nYour readings stay saved, and you can resubscribe any time.",
		name, endsAt)

	return b.send(ctx, emailRequest{
		Sender:      emailAddress{Email: b.fromEmail, Name: b.fromName},
		To:          []emailAddress{{Email: email, Name: name}},
		Subject:     subject,
		HTMLContent: html,
		TextContent: text,
	})
}

func (b *Brevo) send(ctx context.Context, req emailRequest) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("mailer: encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/v3/smtp/email", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("mailer: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("api-key", b.apiKey)

	resp, err := b.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("mailer: send email: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("mailer: brevo status %d", resp.StatusCode)
	}
	return nil
}
