package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"palmtell/internal/domain"
)

// Checkout creates hosted checkout sessions against the Lemon Squeezy API.
type Checkout struct {
	apiKey      string
	storeID     string
	variants    *VariantMap
	redirectURL string
	portalURL   string
	baseURL     string
	client      *http.Client
}

type CheckoutOptions struct {
	APIKey      string
	StoreID     string
	Variants    *VariantMap
	RedirectURL string
	PortalURL   string
	BaseURL     string
	HTTPClient  *http.Client
}

func NewCheckout(opts CheckoutOptions) *Checkout {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.lemonsqueezy.com"
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &Checkout{
		apiKey:      opts.APIKey,
		storeID:     opts.StoreID,
		variants:    opts.Variants,
		redirectURL: opts.RedirectURL,
		portalURL:   opts.PortalURL,
		baseURL:     baseURL,
		client:      client,
	}
}

type checkoutRequest struct {
	Data struct {
		Type       string `json:"type"`
		Attributes struct {
			CheckoutData struct {
				Email  string `json:"email,omitempty"`
				Custom struct {
					UserID string `json:"user_id"`
				} `json:"custom"`
			} `json:"checkout_data"`
			ProductOptions struct {
				RedirectURL string `json:"redirect_url,omitempty"`
			} `json:"product_options"`
		} `json:"attributes"`
		Relationships struct {
			Store   relationship `json:"store"`
			Variant relationship `json:"variant"`
		} `json:"relationships"`
	} `json:"data"`
}

type relationship struct {
	Data struct {
		Type string `json:"type"`
		ID   string `json:"id"`
	} `json:"data"`
}

type checkoutResponse struct {
	Data struct {
		Attributes struct {
			URL string `json:"url"`
		} `json:"attributes"`
	} `json:"data"`
}

// CreateSession returns a hosted checkout URL for the given plan and
// interval. The account ID travels as custom data so the webhook can link
// the purchase back.
func (c *Checkout) CreateSession(ctx context.Context, plan domain.Plan, interval, accountID, email string) (string, error) {
	variantID, err := c.variants.VariantFor(plan, interval)
	if err != nil {
		return "", err
	}

	var payload checkoutRequest
	payload.Data.Type = "checkouts"
	payload.Data.Attributes.CheckoutData.Email = email
	payload.Data.Attributes.CheckoutData.Custom.UserID = accountID
	payload.Data.Attributes.ProductOptions.RedirectURL = c.redirectURL
	payload.Data.Relationships.Store.Data.Type = "stores"
	payload.Data.Relationships.Store.Data.ID = c.storeID
	payload.Data.Relationships.Variant.Data.Type = "variants"
	payload.Data.Relationships.Variant.Data.ID = variantID

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("billing: encode checkout: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/checkouts", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("billing: build checkout request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.api+json")
	req.Header.Set("Content-Type", "application/vnd.api+json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("billing: create checkout: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("billing: checkout status %d", resp.StatusCode)
	}

	var out checkoutResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("billing: decode checkout: %w", err)
	}
	if out.Data.Attributes.URL == "" {
		return "", fmt.Errorf("billing: checkout response missing url")
	}
	return out.Data.Attributes.URL, nil
}

// PortalURL returns the customer self-service portal.
func (c *Checkout) PortalURL() string {
	return c.portalURL
}
