// Package pager delivers alerts to an on-call paging service using an
// events API.
package pager

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

// Config holds paging service configuration.
type Config struct {
	Enabled    bool
	EventsURL  string
	RoutingKey string
	Timeout    time.Duration
}

// Sender triggers pages via the events API.
type Sender struct {
	config     Config
	httpClient *http.Client
}

// NewSender creates a pager sender. Returns an error when enabled but
// required config is missing.
func NewSender(config Config) (*Sender, error) {
	if config.Enabled {
		if config.EventsURL == "" {
			return nil, errors.New("pager sender: events URL is required when enabled")
		}
		if config.RoutingKey == "" {
			return nil, errors.New("pager sender: routing key is required when enabled")
		}
	}
	if config.Timeout == 0 {
		config.Timeout = defaultTimeout
	}

	slog.Info("pager sender configured", "enabled", config.Enabled)

	return &Sender{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
	}, nil
}

// Type returns the channel type.
func (s *Sender) Type() domain.ChannelType {
	return domain.ChannelTypePager
}

type event struct {
	RoutingKey string       `json:"routing_key"`
	Action     string       `json:"event_action"`
	DedupKey   string       `json:"dedup_key"`
	Payload    eventPayload `json:"payload"`
}

type eventPayload struct {
	Summary  string `json:"summary"`
	Source   string `json:"source"`
	Severity string `json:"severity"`
}

// Deliver triggers one page keyed by alert ID, so a repeated delivery
// of the same alert deduplicates on the service side.
func (s *Sender) Deliver(ctx context.Context, alert *domain.Alert) error {
	if !s.config.Enabled {
		slog.Warn("pager sender disabled, skipping delivery", "alert_id", alert.ID)
		return nil
	}

	body, err := json.Marshal(event{
		RoutingKey: s.config.RoutingKey,
		Action:     "trigger",
		DedupKey:   alert.ID,
		Payload: eventPayload{
			Summary:  fmt.Sprintf("%s incident %s", alert.Severity, alert.IncidentID),
			Source:   "responder",
			Severity: alert.Severity.String(),
		},
	})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.EventsURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("events API returned %d", resp.StatusCode)
	}

	slog.Debug("page triggered", "alert_id", alert.ID)
	return nil
}
