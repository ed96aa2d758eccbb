// Package sms delivers alerts as text messages through an HTTP SMS
// gateway.
package sms

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/quintal-io/responder/internal/domain"
)

const defaultTimeout = 10 * time.Second

// Config holds SMS gateway configuration. Recipients map to phone
// numbers through the gateway's directory, so the sender only passes
// the recipient names along.
type Config struct {
	Enabled    bool
	GatewayURL string
	APIKey     string
	Timeout    time.Duration
}

// Sender delivers alert texts through the configured gateway.
type Sender struct {
	config     Config
	httpClient *http.Client
}

// NewSender creates an SMS sender. Returns an error when enabled but
// the gateway URL is missing.
func NewSender(config Config) (*Sender, error) {
	if config.Enabled && config.GatewayURL == "" {
		return nil, errors.New("sms sender: gateway URL is required when enabled")
	}
	if config.Timeout == 0 {
		config.Timeout = defaultTimeout
	}

	slog.Info("sms sender configured",
		"enabled", config.Enabled,
		"gateway_url", config.GatewayURL,
	)

	return &Sender{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
	}, nil
}

// Type returns the channel type.
func (s *Sender) Type() domain.ChannelType {
	return domain.ChannelTypeSMS
}

type gatewayRequest struct {
	Recipients []string `json:"recipients"`
	Message    string   `json:"message"`
}

// Deliver sends one gateway request covering all recipients.
func (s *Sender) Deliver(ctx context.Context, alert *domain.Alert) error {
	if !s.config.Enabled {
		slog.Warn("sms sender disabled, skipping delivery", "alert_id", alert.ID)
		return nil
	}

	message := fmt.Sprintf("%s incident %s, alert %s",
		alert.Severity, alert.IncidentID, alert.ID)
	if alert.AckRequired {
		message += fmt.Sprintf(", ack within %s", alert.EscalateAfter)
	}

	body, err := json.Marshal(gatewayRequest{
		Recipients: alert.Recipients,
		Message:    message,
	})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.GatewayURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.config.APIKey != "" {
		req.Header.Set("X-API-Key", s.config.APIKey)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("gateway returned %d", resp.StatusCode)
	}

	slog.Debug("sms alert sent", "alert_id", alert.ID, "recipients", len(alert.Recipients))
	return nil
}
