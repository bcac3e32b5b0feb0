package conversion

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/wolfman30/cashoffer-funnel/internal/observability/metrics"
	"github.com/wolfman30/cashoffer-funnel/pkg/logging"
)

// Kind is the conversion being reported.
type Kind string

const (
	KindPartial Kind = "partial"
	KindFull    Kind = "full"
)

// ParseKind accepts partial, full and complete (an alias for full).
func ParseKind(s string) (Kind, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "partial":
		return KindPartial, true
	case "full", "complete":
		return KindFull, true
	}
	return "", false
}

// State is where a session sits in the conversion state machine.
type State string

const (
	StateNotFired     State = "not_fired"
	StatePartialFired State = "partial_fired"
	StateFullFired    State = "full_fired"
)

var (
	ErrSessionRequired = errors.New("conversion: session id required")
	ErrUnknownKind     = errors.New("conversion: unknown kind")
)

// Store persists per-session conversion state. Both transitions must be
// atomic so concurrent reports fire at most once.
type Store interface {
	// FirePartial moves NotFired to PartialFired and reports whether it did.
	FirePartial(ctx context.Context, sessionID string) (bool, error)
	// FireFull moves any non-terminal state to FullFired and reports whether it did.
	FireFull(ctx context.Context, sessionID string) (bool, error)
	State(ctx context.Context, sessionID string) (State, error)
}

// Tracker decides whether a conversion event should fire.
type Tracker struct {
	store   Store
	logger  *logging.Logger
	metrics *metrics.LeadMetrics
}

func NewTracker(store Store, logger *logging.Logger, m *metrics.LeadMetrics) *Tracker {
	if logger == nil {
		logger = logging.Default()
	}
	return &Tracker{store: store, logger: logger, metrics: m}
}

// MarkConversion records a conversion for the session. fired is true only for
// the first partial of a session and the first full.
func (t *Tracker) MarkConversion(ctx context.Context, sessionID string, kind Kind, leadID string) (bool, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return false, ErrSessionRequired
	}
	var (
		fired bool
		err   error
	)
	switch kind {
	case KindPartial:
		fired, err = t.store.FirePartial(ctx, sessionID)
	case KindFull:
		fired, err = t.store.FireFull(ctx, sessionID)
	default:
		return false, fmt.Errorf("%w %q", ErrUnknownKind, kind)
	}
	if err != nil {
		return false, fmt.Errorf("conversion: mark %s: %w", kind, err)
	}
	if fired {
		t.metrics.ObserveConversion(string(kind))
		t.logger.Info("conversion fired",
			"session_id", sessionID,
			"kind", string(kind),
			"lead_id", leadID,
		)
	}
	return fired, nil
}

// State returns the session's current state.
func (t *Tracker) State(ctx context.Context, sessionID string) (State, error) {
	return t.store.State(ctx, sessionID)
}
