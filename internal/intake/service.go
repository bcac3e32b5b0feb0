package intake

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wolfman30/cashoffer-funnel/internal/leads"
	"github.com/wolfman30/cashoffer-funnel/internal/leadsync"
	"github.com/wolfman30/cashoffer-funnel/internal/observability/metrics"
	"github.com/wolfman30/cashoffer-funnel/internal/relay"
	"github.com/wolfman30/cashoffer-funnel/pkg/logging"
)

// Loader reads a previously stored lead.
type Loader interface {
	Load(ctx context.Context, leadID string) (*leads.Lead, error)
}

// Syncer writes a lead to the external record stores.
type Syncer interface {
	Upsert(ctx context.Context, lead *leads.Lead, targets ...leadsync.Target) leadsync.Result
}

// Publisher receives lead events after a successful sync.
type Publisher interface {
	Publish(evt relay.Event)
}

// Config wires optional collaborators into the Service.
type Config struct {
	Identity  leads.Identity
	Publisher Publisher
	Metrics   *metrics.LeadMetrics
	Logger    *logging.Logger
	Now       func() time.Time
}

// Service turns one submission into a merged, synced lead.
type Service struct {
	loader    Loader
	syncer    Syncer
	identity  leads.Identity
	publisher Publisher
	metrics   *metrics.LeadMetrics
	logger    *logging.Logger
	now       func() time.Time
}

// NewService builds a Service. loader may be nil, in which case every
// submission starts from an empty record.
func NewService(loader Loader, syncer Syncer, cfg Config) *Service {
	if syncer == nil {
		panic("intake: syncer cannot be nil")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		loader:    loader,
		syncer:    syncer,
		identity:  cfg.Identity,
		publisher: cfg.Publisher,
		metrics:   cfg.Metrics,
		logger:    logger,
		now:       now,
	}
}

// Submission is one inbound request.
type Submission struct {
	Payload leads.Payload
	// Kind is empty when it should be inferred from the accumulated record.
	Kind leads.Kind
	IP   string
}

// Outcome is what the caller reports back to the client.
type Outcome struct {
	Lead *leads.Lead
	Sync leadsync.Result
	Kind leads.Kind
}

// Warning is set when some, but not all, sync targets failed.
func (o *Outcome) Warning() string {
	if o == nil {
		return ""
	}
	return o.Sync.Warning()
}

// Submit validates, merges and syncs a submission.
//
// A *leads.ValidationError or *LoadError is returned with a nil Outcome.
// When every sync target fails the Outcome is still returned, together with
// the *leadsync.AggregateSyncFailure, so the caller can hand the lead id back.
func (s *Service) Submit(ctx context.Context, sub Submission) (*Outcome, error) {
	start := s.now()
	payload := leads.Normalize(sub.Payload)

	existing, err := s.load(ctx, payload.LeadID)
	if err != nil {
		label := string(sub.Kind)
		if label == "" {
			label = "inferred"
		}
		s.metrics.ObserveSubmission(label, "load_failed", s.since(start))
		return nil, err
	}
	effective := leads.Overlay(existing.Payload(), payload)

	kind := sub.Kind
	if kind == "" {
		kind = leads.KindPartial
		if existing.IsComplete() || s.identity.IsComplete(effective) {
			kind = leads.KindComplete
		}
	}
	if err := s.identity.Validate(effective, kind); err != nil {
		s.metrics.ObserveSubmission(string(kind), "invalid", s.since(start))
		return nil, err
	}

	lead := leads.Merge(existing, payload, s.identity, s.now()).WithProvenance(sub.IP)
	logger := s.logger.WithLead(lead.ID)

	// Writes finish even if the client hangs up; the gateway bounds them.
	res := s.syncer.Upsert(context.WithoutCancel(ctx), lead)
	if res.CRMContactID != "" {
		lead.CRMContactID = res.CRMContactID
	}
	out := &Outcome{Lead: lead, Sync: res, Kind: kind}

	if err := res.Err(); err != nil {
		s.metrics.ObserveSubmission(string(kind), "sync_failed", s.since(start))
		return out, err
	}

	outcome := "ok"
	if res.Warning() != "" {
		outcome = "warning"
	}
	s.metrics.ObserveSubmission(string(kind), outcome, s.since(start))
	if s.publisher != nil {
		s.publisher.Publish(relay.NewEvent(lead, res.Warning()))
	}
	logger.Info("lead accepted",
		"kind", kind,
		"submission_type", lead.SubmissionType,
		"new_lead", existing == nil,
	)
	return out, nil
}

// load returns nil for new leads. Any other lookup failure is returned as a
// *LoadError: starting from an empty record would overwrite the stored row.
func (s *Service) load(ctx context.Context, leadID string) (*leads.Lead, error) {
	if s.loader == nil || leadID == "" || !leads.ValidID(leadID) {
		return nil, nil
	}
	l, err := s.loader.Load(ctx, leadID)
	if errors.Is(err, leads.ErrLeadNotFound) {
		return nil, nil
	}
	if err != nil {
		s.logger.WithLead(leadID).Warn("failed to load existing lead", "error", err)
		return nil, &LoadError{LeadID: leadID, Err: err}
	}
	return l, nil
}

// LoadError reports that a lead's stored record could not be read, so the
// submission was not merged or synced.
type LoadError struct {
	LeadID string
	Err    error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("intake: load lead %s: %v", e.LeadID, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

func (s *Service) since(start time.Time) float64 {
	return s.now().Sub(start).Seconds()
}
