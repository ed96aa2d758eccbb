package domain

import "time"

// ChannelType identifies a delivery channel kind.
type ChannelType string

// Channel types.
const (
	ChannelTypeEmail   ChannelType = "email"
	ChannelTypeSMS     ChannelType = "sms"
	ChannelTypePager   ChannelType = "pager"
	ChannelTypeWebhook ChannelType = "webhook"
)

// IsValid checks if the channel type is known.
func (c ChannelType) IsValid() bool {
	return c == ChannelTypeEmail || c == ChannelTypeSMS ||
		c == ChannelTypePager || c == ChannelTypeWebhook
}

// AlertStatus is the delivery state of an alert.
type AlertStatus string

// Alert statuses.
const (
	AlertStatusPending      AlertStatus = "pending"
	AlertStatusDelivered    AlertStatus = "delivered"
	AlertStatusAcknowledged AlertStatus = "acknowledged"
	AlertStatusEscalated    AlertStatus = "escalated"
)

// Alert is a notification derived from an incident's severity. The
// distributor owns it from creation until it is acknowledged or its
// escalation timer has fired; the timer fires at most once.
type Alert struct {
	ID            string        `json:"id"`
	IncidentID    string        `json:"incident_id"`
	Severity      Severity      `json:"severity"`
	Recipients    []string      `json:"recipients"`
	Channels      []ChannelType `json:"channels"`
	CreatedAt     time.Time     `json:"created_at"`
	AckRequired   bool          `json:"ack_required"`
	EscalateAfter time.Duration `json:"escalate_after"`
	AckReceived   bool          `json:"ack_received"`
	Tier          int           `json:"tier"`
	Status        AlertStatus   `json:"status"`
}
