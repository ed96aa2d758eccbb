// Package webhook delivers alerts as JSON POSTs to a configured
// endpoint, rate limited to protect the receiver.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/quintal-io/responder/internal/domain"
)

const defaultTimeout = 10 * time.Second

// Config holds webhook sender configuration.
type Config struct {
	URL     string
	Token   string        // optional bearer token
	Timeout time.Duration // request timeout
	// RatePerSecond bounds outbound POSTs; 0 means unlimited.
	RatePerSecond float64
	Burst         int
}

// Sender posts alert payloads to a single webhook endpoint.
type Sender struct {
	config     Config
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewSender creates a webhook sender.
func NewSender(config Config) (*Sender, error) {
	if config.URL == "" {
		return nil, errors.New("webhook sender: URL is required")
	}
	if config.Timeout == 0 {
		config.Timeout = defaultTimeout
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if config.RatePerSecond > 0 {
		burst := config.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(config.RatePerSecond), burst)
	}

	return &Sender{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		limiter:    limiter,
	}, nil
}

// Type returns the channel type.
func (s *Sender) Type() domain.ChannelType {
	return domain.ChannelTypeWebhook
}

type payload struct {
	AlertID     string   `json:"alert_id"`
	IncidentID  string   `json:"incident_id"`
	Severity    string   `json:"severity"`
	Recipients  []string `json:"recipients"`
	AckRequired bool     `json:"ack_required"`
	CreatedAt   string   `json:"created_at"`
}

// Deliver posts the alert, waiting on the rate limiter first.
func (s *Sender) Deliver(ctx context.Context, alert *domain.Alert) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	body, err := json.Marshal(payload{
		AlertID:     alert.ID,
		IncidentID:  alert.IncidentID,
		Severity:    alert.Severity.String(),
		Recipients:  alert.Recipients,
		AckRequired: alert.AckRequired,
		CreatedAt:   alert.CreatedAt.Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+s.config.Token)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("webhook returned %d: %s", resp.StatusCode, string(detail))
	}

	slog.Debug("webhook alert posted", "alert_id", alert.ID, "status", resp.StatusCode)
	return nil
}
