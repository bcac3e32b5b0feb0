package relay

import (
	"context"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/oklog/ulid/v2"

	"github.com/wolfman30/cashoffer-funnel/internal/leads"
	"github.com/wolfman30/cashoffer-funnel/pkg/logging"
)

// Event types published after a lead is synced.
const (
	EventLeadPartial  = "lead.partial"
	EventLeadComplete = "lead.complete"
)

// Event is the envelope delivered to every sink.
type Event struct {
	EventID    string      `json:"eventId"`
	Type       string      `json:"type"`
	OccurredAt time.Time   `json:"occurredAt"`
	Lead       *leads.Lead `json:"lead"`
	Warning    string      `json:"warning,omitempty"`
}

// NewEvent wraps a lead snapshot.
func NewEvent(lead *leads.Lead, warning string) Event {
	typ := EventLeadPartial
	if lead.IsComplete() {
		typ = EventLeadComplete
	}
	return Event{
		EventID:    "evt_" + ulid.Make().String(),
		Type:       typ,
		OccurredAt: time.Now().UTC(),
		Lead:       lead.Clone(),
		Warning:    warning,
	}
}

// Sink delivers events to one downstream system.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, evt Event) error
}

// Relay fans events out to sinks in the background. Delivery failures are
// logged and never reach the caller.
type Relay struct {
	sinks   []Sink
	timeout time.Duration
	pool    pond.Pool
	logger  *logging.Logger
}

// New builds a Relay. A zero timeout defaults to ten seconds.
func New(timeout time.Duration, logger *logging.Logger, sinks ...Sink) *Relay {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Relay{
		sinks:   sinks,
		timeout: timeout,
		pool:    pond.NewPool(4, pond.WithQueueSize(1024), pond.WithNonBlocking(true)),
		logger:  logger,
	}
}

// Enabled reports whether any sink is configured.
func (r *Relay) Enabled() bool {
	return r != nil && len(r.sinks) > 0
}

// Publish schedules delivery of evt to every sink and returns immediately.
func (r *Relay) Publish(evt Event) {
	if !r.Enabled() {
		return
	}
	for _, sink := range r.sinks {
		s := sink
		task := r.pool.Submit(func() {
			ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
			defer cancel()
			if err := s.Deliver(ctx, evt); err != nil {
				r.logger.Warn("lead relay delivery failed",
					"sink", s.Name(),
					"event_id", evt.EventID,
					"lead_id", evt.Lead.ID,
					"error", err,
				)
				return
			}
			r.logger.Debug("lead relayed", "sink", s.Name(), "event_id", evt.EventID, "lead_id", evt.Lead.ID)
		})
		go func() {
			if err := task.Wait(); err != nil {
				r.logger.Warn("lead relay dropped", "sink", s.Name(), "event_id", evt.EventID, "error", err)
			}
		}()
	}
}

// Close waits for queued deliveries.
func (r *Relay) Close() {
	if r == nil {
		return
	}
	r.pool.StopAndWait()
}
