package alerts

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/quintal-io/responder/internal/domain"
)

var errNoSender = errors.New("no sender registered for channel")

// Sender delivers an alert over one channel kind. Implementations are
// supplied by the integration layer.
type Sender interface {
	Type() domain.ChannelType
	Deliver(ctx context.Context, alert *domain.Alert) error
}

// Result aggregates one distribution fan-out.
type Result struct {
	AlertID   string        `json:"alert_id"`
	Delivered int           `json:"delivered"`
	Failed    int           `json:"failed"`
	Latency   time.Duration `json:"latency"`
}

// Distributor owns alerts from creation until they are acknowledged or
// escalated. A missed acknowledgment triggers exactly one re-broadcast
// to the next tier; the escalation timer fires at most once per alert.
type Distributor struct {
	table   TierTable
	senders map[domain.ChannelType]Sender

	mu      sync.Mutex
	pending map[string]*pendingAck
	stopped bool

	// onEscalated, when set, observes terminal escalations.
	onEscalated func(*domain.Alert)
}

type pendingAck struct {
	alert *domain.Alert
	timer *time.Timer
}

// NewDistributor creates a distributor over the given channel senders.
func NewDistributor(table TierTable, senders ...Sender) *Distributor {
	senderMap := make(map[domain.ChannelType]Sender, len(senders))
	for _, s := range senders {
		senderMap[s.Type()] = s
	}
	return &Distributor{
		table:   table,
		senders: senderMap,
		pending: make(map[string]*pendingAck),
	}
}

// SetEscalationHook registers a callback invoked after an alert
// escalates. Must be called before the first Distribute.
func (d *Distributor) SetEscalationHook(fn func(*domain.Alert)) {
	d.onEscalated = fn
}

// CreateAlert derives an alert purely from the incident's severity:
// recipients and channels accumulate across every tier the severity
// reaches, and severities from critical upward get the short timer.
func (d *Distributor) CreateAlert(inc *domain.Incident) *domain.Alert {
	level := d.table.levelFor(inc.Severity)
	recipients, channels := d.table.audience(level)

	return &domain.Alert{
		ID:            uuid.New().String(),
		IncidentID:    inc.ID,
		Severity:      inc.Severity,
		Recipients:    recipients,
		Channels:      channels,
		CreatedAt:     time.Now().UTC(),
		AckRequired:   inc.Severity >= domain.SeverityHigh,
		EscalateAfter: d.table.timerFor(inc.Severity),
		Tier:          level,
		Status:        domain.AlertStatusPending,
	}
}

// Distribute fans out delivery to every channel concurrently, isolating
// per-channel failure, and returns aggregate counts. When the alert
// requires acknowledgment, the escalation timer is armed.
func (d *Distributor) Distribute(ctx context.Context, alert *domain.Alert) Result {
	start := time.Now()
	res := Result{AlertID: alert.ID}

	outcomes := make(chan error, len(alert.Channels))
	var wg sync.WaitGroup
	for _, ch := range alert.Channels {
		wg.Add(1)
		go func(ch domain.ChannelType) {
			defer wg.Done()
			outcomes <- d.deliverChannel(ctx, ch, alert)
		}(ch)
	}
	wg.Wait()
	close(outcomes)

	for err := range outcomes {
		if err != nil {
			res.Failed++
		} else {
			res.Delivered++
		}
	}
	res.Latency = time.Since(start)

	alert.Status = domain.AlertStatusDelivered
	if alert.AckRequired && !alert.AckReceived {
		d.armEscalation(alert)
	}

	slog.Info("alert distributed",
		"alert_id", alert.ID,
		"incident_id", alert.IncidentID,
		"severity", alert.Severity.String(),
		"delivered", res.Delivered,
		"failed", res.Failed,
		"latency_ms", res.Latency.Milliseconds(),
	)
	recordDistribution(alert, res)
	return res
}

func (d *Distributor) deliverChannel(ctx context.Context, ch domain.ChannelType, alert *domain.Alert) error {
	sender, ok := d.senders[ch]
	if !ok {
		slog.Warn("no sender for channel", "channel", ch, "alert_id", alert.ID)
		recordDelivery(ch, "unbound")
		return errNoSender
	}

	if err := sender.Deliver(ctx, alert); err != nil {
		slog.Error("channel delivery failed",
			"channel", ch,
			"alert_id", alert.ID,
			"error", err,
		)
		recordDelivery(ch, "failed")
		return err
	}
	recordDelivery(ch, "delivered")
	return nil
}

// Acknowledge records an acknowledgment and disarms the escalation
// timer. It returns false when the alert is unknown, already
// acknowledged, or already escalated.
func (d *Distributor) Acknowledge(alertID string) bool {
	d.mu.Lock()
	p, ok := d.pending[alertID]
	if ok {
		delete(d.pending, alertID)
	}
	d.mu.Unlock()

	if !ok {
		return false
	}
	p.timer.Stop()
	p.alert.AckReceived = true
	p.alert.Status = domain.AlertStatusAcknowledged
	slog.Info("alert acknowledged", "alert_id", alertID, "incident_id", p.alert.IncidentID)
	recordAck()
	return true
}

// Pending returns the alert IDs still awaiting acknowledgment.
func (d *Distributor) Pending() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	ids := make([]string, 0, len(d.pending))
	for id := range d.pending {
		ids = append(ids, id)
	}
	return ids
}

// Stop disarms all outstanding escalation timers.
func (d *Distributor) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	for id, p := range d.pending {
		p.timer.Stop()
		delete(d.pending, id)
	}
}

func (d *Distributor) armEscalation(alert *domain.Alert) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	if _, exists := d.pending[alert.ID]; exists {
		return
	}
	p := &pendingAck{alert: alert}
	p.timer = time.AfterFunc(alert.EscalateAfter, func() { d.escalate(alert.ID) })
	d.pending[alert.ID] = p
}

// escalate performs the single re-broadcast to the next tier. Removal
// from pending under the lock guarantees at-most-once semantics even if
// the timer races an acknowledgment.
func (d *Distributor) escalate(alertID string) {
	d.mu.Lock()
	p, ok := d.pending[alertID]
	if ok {
		delete(d.pending, alertID)
	}
	d.mu.Unlock()

	if !ok {
		return
	}

	alert := p.alert
	nextLevel := alert.Tier + 1
	if nextLevel > d.table.maxLevel() {
		nextLevel = d.table.maxLevel()
	}
	alert.Tier = nextLevel
	alert.Recipients, alert.Channels = d.table.audience(nextLevel)
	alert.Status = domain.AlertStatusEscalated

	slog.Warn("alert escalated after missed acknowledgment",
		"alert_id", alert.ID,
		"incident_id", alert.IncidentID,
		"tier", nextLevel,
	)
	recordEscalation()

	// One bounded re-broadcast; the alert is terminal afterwards and
	// never re-armed.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	for _, ch := range alert.Channels {
		wg.Add(1)
		go func(ch domain.ChannelType) {
			defer wg.Done()
			_ = d.deliverChannel(ctx, ch, alert)
		}(ch)
	}
	wg.Wait()

	if d.onEscalated != nil {
		d.onEscalated(alert)
	}
}
