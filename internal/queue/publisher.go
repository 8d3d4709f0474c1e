// Package queue publishes analysis jobs to a QStash-style HTTP message queue
// and verifies the signatures on delivered callbacks. Delivery is
// at-least-once; consumers must tolerate duplicates.
package queue

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// publishDelay gives the image upload a moment to settle before the worker
// fetches it.
const publishDelay = 2 * time.Second

// AnalysisJob is the payload delivered to the analyze-palm callback.
type AnalysisJob struct {
	ReadingID string `json:"readingId"`
	ImageKey  string `json:"imageKey"`
	AccountID string `json:"accountId"`
	Locale    string `json:"locale,omitempty"`
}

type Publisher struct {
	queueURL    string
	token       string
	callbackURL string
	client      *http.Client
}

// NewPublisher builds a publisher that enqueues jobs for delivery to
// publicBaseURL's analyze-palm endpoint.
func NewPublisher(queueURL, token, publicBaseURL string, client *http.Client) *Publisher {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Publisher{
		queueURL:    strings.TrimRight(queueURL, "/"),
		token:       token,
		callbackURL: strings.TrimRight(publicBaseURL, "/") + "/v1/jobs/analyze-palm",
		client:      client,
	}
}

// Enqueue publishes an analysis job. The queue delivers it to the callback
// URL after a short delay, retrying on non-2xx responses.
func (p *Publisher) Enqueue(ctx context.Context, job AnalysisJob) error {
	if job.ReadingID == "" {
		return errors.New("queue: reading id is required")
	}
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("queue: encode job: %w", err)
	}

	endpoint := p.queueURL + "/" + p.callbackURL
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("queue: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.token)
	req.Header.Set("Upstash-Delay", strconv.Itoa(int(publishDelay.Seconds()))+"s")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("queue: publish: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("queue: publish status %d", resp.StatusCode)
	}
	return nil
}
