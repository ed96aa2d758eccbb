package monitor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/quintal-io/responder/internal/alerts"
	"github.com/quintal-io/responder/internal/domain"
	"github.com/quintal-io/responder/internal/history"
	"github.com/quintal-io/responder/internal/pkg/ctxlog"
	"github.com/quintal-io/responder/internal/respond"
)

// Metric names recorded into the trailing window.
const (
	MetricResponseTime    = "response_time_seconds"
	MetricEffectiveness   = "effectiveness"
	MetricDeliverySuccess = "delivery_success_ratio"
)

// Detector finds at most one incident per cycle.
type Detector interface {
	Detect(ctx context.Context) *domain.Incident
}

// Coordinator drives an incident through its response.
type Coordinator interface {
	Initiate(ctx context.Context, inc *domain.Incident) (*respond.Result, error)
}

// Distributor derives and fans out alerts.
type Distributor interface {
	CreateAlert(inc *domain.Incident) *domain.Alert
	Distribute(ctx context.Context, alert *domain.Alert) alerts.Result
}

// Config bounds the loop cadence and dashboard history.
type Config struct {
	// MinInterval and MaxInterval clamp the dynamic cycle interval.
	MinInterval time.Duration
	MaxInterval time.Duration
	// TrailingWindow is how long a high-severity detection keeps
	// shortening the interval.
	TrailingWindow time.Duration
	// WindowCapacity is the per-metric ring-buffer size.
	WindowCapacity int
	// RecentIncidents is the dashboard history length.
	RecentIncidents int
}

// Loop supervises detection, response and alerting. Each detected
// incident runs its own response concurrently; the loop itself only
// paces detection.
type Loop struct {
	cfg         Config
	detector    Detector
	coordinator Coordinator
	distributor Distributor
	store       history.Store
	window      *Window

	mu       sync.RWMutex
	active   map[string]*domain.Incident
	highSeen []time.Time

	wg sync.WaitGroup
}

// New creates a loop over the given subsystems.
func New(cfg Config, det Detector, coord Coordinator, dist Distributor, store history.Store) *Loop {
	if cfg.WindowCapacity < 1 {
		cfg.WindowCapacity = 256
	}
	if cfg.RecentIncidents < 1 {
		cfg.RecentIncidents = 20
	}
	return &Loop{
		cfg:         cfg,
		detector:    det,
		coordinator: coord,
		distributor: dist,
		store:       store,
		window:      NewWindow(cfg.WindowCapacity),
	}
}

// Window exposes the trailing metrics window.
func (l *Loop) Window() *Window { return l.window }

// Run drives detection cycles until ctx is cancelled, then waits for
// in-flight responses. A panicking cycle is logged and the loop pauses
// briefly before resuming.
func (l *Loop) Run(ctx context.Context) {
	log := ctxlog.FromContext(ctx)
	log.Info("monitoring loop started",
		"min_interval", l.cfg.MinInterval,
		"max_interval", l.cfg.MaxInterval,
	)

	for {
		interval := l.interval(time.Now())
		recordInterval(interval)

		select {
		case <-ctx.Done():
			log.Info("monitoring loop stopping")
			l.wg.Wait()
			return
		case <-time.After(interval):
		}

		l.cycle(ctx, log)
	}
}

func (l *Loop) cycle(ctx context.Context, log *slog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("monitoring cycle panicked, pausing", "panic", r)
			recordCycle("panic")
			select {
			case <-ctx.Done():
			case <-time.After(l.cfg.MinInterval):
			}
		}
	}()

	inc := l.detector.Detect(ctx)
	if inc == nil {
		recordCycle("quiet")
		return
	}
	recordCycle("detected")

	l.register(inc)
	if err := l.store.SaveIncident(ctx, inc); err != nil {
		log.Error("failed to persist detected incident", "incident_id", inc.ID, "error", err)
	}

	l.wg.Add(1)
	go l.handle(ctx, inc)
}

// handle runs one incident's full response lifecycle. Incidents are
// fully independent; nothing here touches another incident's state.
func (l *Loop) handle(ctx context.Context, inc *domain.Incident) {
	ctx = ctxlog.With(ctx, "incident_id", inc.ID)
	log := ctxlog.FromContext(ctx)

	defer l.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			log.Error("incident handling panicked", "panic", r)
		}
		l.unregister(inc.ID)
	}()

	start := time.Now()
	res, err := l.coordinator.Initiate(ctx, inc)
	if err != nil {
		log.Error("coordination failed", "error", err)
		return
	}

	alert := l.distributor.CreateAlert(inc)
	dres := l.distributor.Distribute(ctx, alert)

	l.window.Record(MetricResponseTime, time.Since(start).Seconds())
	l.window.Record(MetricEffectiveness, res.Effectiveness)
	if total := dres.Delivered + dres.Failed; total > 0 {
		l.window.Record(MetricDeliverySuccess, float64(dres.Delivered)/float64(total))
	}

	if err := l.store.SaveIncident(ctx, inc); err != nil {
		log.Error("failed to persist incident outcome", "error", err)
	}

	log.Info("incident handled",
		"type", inc.Type,
		"severity", inc.Severity.String(),
		"status", inc.Status,
		"effectiveness", res.Effectiveness,
		"escalated", res.Escalated,
	)
}

func (l *Loop) register(inc *domain.Incident) {
	l.mu.Lock()
	if l.active == nil {
		l.active = make(map[string]*domain.Incident)
	}
	l.active[inc.ID] = inc
	if inc.Severity >= domain.SeverityHigh {
		l.highSeen = append(l.highSeen, time.Now())
	}
	recordActive(len(l.active))
	l.mu.Unlock()
}

func (l *Loop) unregister(id string) {
	l.mu.Lock()
	delete(l.active, id)
	recordActive(len(l.active))
	l.mu.Unlock()
}

// interval shortens the cycle interval in proportion to the number of
// high-severity detections in the trailing window, clamped to the
// configured bounds.
func (l *Loop) interval(now time.Time) time.Duration {
	n := l.pruneHighSeen(now)

	iv := l.cfg.MaxInterval / time.Duration(n+1)
	if iv < l.cfg.MinInterval {
		iv = l.cfg.MinInterval
	}
	if iv > l.cfg.MaxInterval {
		iv = l.cfg.MaxInterval
	}
	return iv
}

func (l *Loop) pruneHighSeen(now time.Time) int {
	cutoff := now.Add(-l.cfg.TrailingWindow)

	l.mu.Lock()
	defer l.mu.Unlock()
	kept := l.highSeen[:0]
	for _, t := range l.highSeen {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	l.highSeen = kept
	return len(kept)
}
