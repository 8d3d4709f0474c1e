// Package vision talks to an OpenAI-compatible chat completions API for palm
// photo validation and analysis.
package vision

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const defaultTimeout = 60 * time.Second

const validationPrompt = `You are a palm reading expert. Analyze this image and determine if it's suitable for palm reading.

Check for:
1. Is this a human palm (not back of hand)?
2. Is the palm facing the camera?
3. Is the image clear enough to see palm lines?
4. Is this a real hand (not a drawing, not a photo of a screen)?

Return ONLY valid JSON with this exact structure:
{
  "is_valid": true/false,
  "reason": "explanation if invalid"
}`

const analysisPrompt = `You are a master palm reader. Study the palm in this image and produce a warm, specific reading.

Return ONLY valid JSON with this exact structure:
{
  "personality": "...",
  "life_path": "...",
  "career": "...",
  "relationships": "...",
  "health": "...",
  "lucky": "..."
}

Each section should be two to four sentences grounded in visible palm features. Respond in %s.`

// ErrUpstream indicates the vision API could not be reached or returned a
// server error; callers treat it as retryable.
var ErrUpstream = errors.New("vision: upstream unavailable")

type Options struct {
	APIKey     string
	Model      string
	BaseURL    string
	HTTPClient *http.Client
}

type Client struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

// ValidationResult reports whether an image is usable for a reading.
type ValidationResult struct {
	Valid  bool   `json:"is_valid"`
	Reason string `json:"reason,omitempty"`
}

// Analysis is the structured palm reading returned by the model.
type Analysis struct {
	Personality   string `json:"personality"`
	LifePath      string `json:"life_path"`
	Career        string `json:"career"`
	Relationships string `json:"relationships"`
	Health        string `json:"health"`
	Lucky         string `json:"lucky"`
}

func NewClient(opts Options) (*Client, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, errors.New("vision: api key is required")
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = "gpt-4o-mini"
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{
		apiKey:  strings.TrimSpace(opts.APIKey),
		model:   model,
		baseURL: baseURL,
		client:  client,
	}, nil
}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	Temperature    float64       `json:"temperature"`
	MaxTokens      int           `json:"max_tokens,omitempty"`
	ResponseFormat *chatFormat   `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string        `json:"role"`
	Content []contentPart `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

type chatFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Validate asks the model whether the image at imageURL contains a readable
// palm. A transport or server failure returns ErrUpstream; a model verdict of
// "not a palm" returns a result with Valid=false and no error.
func (c *Client) Validate(ctx context.Context, url string) (*ValidationResult, error) {
	raw, err := c.complete(ctx, chatRequest{
		Model:          c.model,
		Temperature:    0.1,
		MaxTokens:      150,
		ResponseFormat: &chatFormat{Type: "json_object"},
		Messages: []chatMessage{{
			Role: "user",
			Content: []contentPart{
				{Type: "image_url", ImageURL: &imageURL{URL: url, Detail: "low"}},
				{Type: "text", Text: validationPrompt},
			},
		}},
	})
	if err != nil {
		return nil, err
	}
	var result ValidationResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return nil, fmt.Errorf("vision: decode validation: %w", err)
	}
	return &result, nil
}

// Analyze produces a full palm reading for a validated image.
func (c *Client) Analyze(ctx context.Context, url, locale string) (*Analysis, error) {
	raw, err := c.complete(ctx, chatRequest{
		Model:          c.model,
		Temperature:    0.7,
		ResponseFormat: &chatFormat{Type: "json_object"},
		Messages: []chatMessage{{
			Role: "user",
			Content: []contentPart{
				{Type: "image_url", ImageURL: &imageURL{URL: url, Detail: "high"}},
				{Type: "text", Text: fmt.Sprintf(analysisPrompt, localeName(locale))},
			},
		}},
	})
	if err != nil {
		return nil, err
	}
	var analysis Analysis
	if err := json.Unmarshal([]byte(raw), &analysis); err != nil {
		return nil, fmt.Errorf("vision: decode analysis: %w", err)
	}
	if analysis.Personality == "" {
		return nil, fmt.Errorf("vision: analysis missing sections")
	}
	return &analysis, nil
}

// MonthlyHoroscope is the structured month-ahead forecast for one sign.
type MonthlyHoroscope struct {
	Overview string   `json:"overview"`
	Career   string   `json:"career"`
	Love     string   `json:"love"`
	Health   string   `json:"health"`
	Finance  string   `json:"finance"`
	KeyDates []string `json:"keyDates"`
	Theme    string   `json:"theme"`
}

const monthlyPrompt = `Generate a personalized monthly horoscope for %s for someone with the zodiac sign %s.

Include specific predictions for career, love, health, finances, key dates to watch, and an overall theme.

Return ONLY valid JSON with this exact structure:
{
  "overview": "string",
  "career": "string",
  "love": "string",
  "health": "string",
  "finance": "string",
  "keyDates": ["string"],
  "theme": "string"
}

Respond in %s.`

// Monthly generates a structured month-ahead horoscope.
func (c *Client) Monthly(ctx context.Context, sign, locale string, month time.Time) (*MonthlyHoroscope, error) {
	raw, err := c.complete(ctx, chatRequest{
		Model:          c.model,
		Temperature:    0.7,
		MaxTokens:      800,
		ResponseFormat: &chatFormat{Type: "json_object"},
		Messages: []chatMessage{{
			Role: "user",
			Content: []contentPart{{
				Type: "text",
				Text: fmt.Sprintf(monthlyPrompt, month.Format("January 2006"), sign, localeName(locale)),
			}},
		}},
	})
	if err != nil {
		return nil, err
	}
	var horoscope MonthlyHoroscope
	if err := json.Unmarshal([]byte(raw), &horoscope); err != nil {
		return nil, fmt.Errorf("vision: decode monthly horoscope: %w", err)
	}
	return &horoscope, nil
}

// Horoscope generates a short daily horoscope for the given zodiac sign.
func (c *Client) Horoscope(ctx context.Context, sign, locale string, date time.Time) (string, error) {
	prompt := fmt.Sprintf(
		"Write a daily horoscope for %s on %s. Three to four sentences, warm and specific. Respond in %s with plain text only.",
		sign, date.Format("January 2, 2006"), localeName(locale))
	raw, err := c.complete(ctx, chatRequest{
		Model:       c.model,
		Temperature: 0.8,
		MaxTokens:   300,
		Messages: []chatMessage{{
			Role:    "user",
			Content: []contentPart{{Type: "text", Text: prompt}},
		}},
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(raw), nil
}

func (c *Client) complete(ctx context.Context, payload chatRequest) (string, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(payload); err != nil {
		return "", fmt.Errorf("vision: encode request: %w", err)
	}
	endpoint := fmt.Sprintf("%s/chat/completions", c.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &buf)
	if err != nil {
		return "", fmt.Errorf("vision: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return "", fmt.Errorf("%w: status %d", ErrUpstream, resp.StatusCode)
	}
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("vision: status %d", resp.StatusCode)
	}
	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("vision: decode response: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", errors.New("vision: no choices in response")
	}
	content := strings.TrimSpace(out.Choices[0].Message.Content)
	if content == "" {
		return "", errors.New("vision: empty response")
	}
	return content, nil
}

func localeName(locale string) string {
	if strings.HasPrefix(strings.ToLower(locale), "es") {
		return "Spanish"
	}
	return "English"
}
