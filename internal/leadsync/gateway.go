package leadsync

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/wolfman30/cashoffer-funnel/internal/crm"
	"github.com/wolfman30/cashoffer-funnel/internal/leads"
	"github.com/wolfman30/cashoffer-funnel/internal/ledger"
	"github.com/wolfman30/cashoffer-funnel/internal/observability/metrics"
	"github.com/wolfman30/cashoffer-funnel/pkg/logging"
)

var tracer = otel.Tracer("cashoffer.internal.leadsync")

// Target names an external record store.
type Target string

const (
	TargetLedger Target = "ledger"
	TargetCRM    Target = "crm"
)

// ParseTargets maps configured names onto targets, dropping unknown ones.
func ParseTargets(names []string) []Target {
	var out []Target
	for _, n := range names {
		switch t := Target(strings.ToLower(strings.TrimSpace(n))); t {
		case TargetLedger, TargetCRM:
			out = append(out, t)
		}
	}
	return out
}

// CRM is the contact store the crm target writes to.
type CRM interface {
	Create(ctx context.Context, c crm.Contact) (string, error)
	Update(ctx context.Context, id string, c crm.Contact) error
	FindByEmail(ctx context.Context, email string) (string, error)
}

// Config tunes the gateway.
type Config struct {
	Targets        []Target
	Timeout        time.Duration
	MaxRetries     int
	RetryBaseDelay time.Duration
	Workers        int
	Logger         *logging.Logger
	Metrics        *metrics.SyncMetrics
}

// Gateway upserts leads into every configured target concurrently, with one
// retry policy shared by all of them.
type Gateway struct {
	ledger     ledger.Store
	crm        CRM
	targets    []Target
	timeout    time.Duration
	maxRetries int
	baseDelay  time.Duration
	pool       pond.ResultPool[TargetResult]
	logger     *logging.Logger
	metrics    *metrics.SyncMetrics
}

// New builds a Gateway. A nil store disables its target.
func New(ledgerStore ledger.Store, crmStore CRM, cfg Config) *Gateway {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	baseDelay := cfg.RetryBaseDelay
	if baseDelay <= 0 {
		baseDelay = 500 * time.Millisecond
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = 16
	}
	targets := cfg.Targets
	if len(targets) == 0 {
		targets = []Target{TargetLedger, TargetCRM}
	}
	return &Gateway{
		ledger:     ledgerStore,
		crm:        crmStore,
		targets:    targets,
		timeout:    timeout,
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		pool:       pond.NewResultPool[TargetResult](workers),
		logger:     logger,
		metrics:    cfg.Metrics,
	}
}

// Close waits for in-flight upserts and stops the worker pool.
func (g *Gateway) Close() {
	g.pool.StopAndWait()
}

// Upsert writes lead to the given targets, or to every configured target when
// none are named. It never returns an error: failures are reported per target
// in the Result.
func (g *Gateway) Upsert(ctx context.Context, lead *leads.Lead, targets ...Target) Result {
	if len(targets) == 0 {
		targets = g.targets
	}
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	ctx, span := tracer.Start(ctx, "leadsync.upsert")
	defer span.End()
	span.SetAttributes(
		attribute.String("lead.id", lead.ID),
		attribute.String("lead.submission_type", string(lead.SubmissionType)),
	)

	snapshot := lead.Clone()
	tasks := make(map[Target]pond.Result[TargetResult], len(targets))
	for _, t := range targets {
		if _, dup := tasks[t]; dup {
			continue
		}
		target := t
		tasks[target] = g.pool.Submit(func() TargetResult {
			return g.syncTarget(ctx, target, snapshot)
		})
	}

	res := Result{LeadID: lead.ID, PerTarget: make(map[Target]TargetResult, len(tasks)), CRMContactID: lead.CRMContactID}
	for t, task := range tasks {
		tr, err := task.Wait()
		if err != nil {
			tr = TargetResult{Target: t, Err: &TargetTransportError{Target: t, Attempts: 1, Err: err}}
		}
		res.PerTarget[t] = tr
		if tr.OK() {
			res.Success = true
		}
	}

	if crmRes, ok := res.PerTarget[TargetCRM]; ok && crmRes.OK() && crmRes.RemoteID != "" {
		res.CRMContactID = crmRes.RemoteID
		if crmRes.RemoteID != lead.CRMContactID {
			g.backfillLedger(ctx, snapshot, crmRes.RemoteID, res)
		}
	}

	if !res.Success {
		span.SetStatus(codes.Error, "sync failed")
		g.logger.WithLead(lead.ID).Error("lead sync failed", "error", res.Err())
	} else if w := res.Warning(); w != "" {
		g.logger.WithLead(lead.ID).Warn("lead partially synced", "failed_targets", res.FailedTargets())
	}
	return res
}

// backfillLedger rewrites the ledger row once so it carries the CRM contact
// id. Failures are logged and otherwise ignored.
func (g *Gateway) backfillLedger(ctx context.Context, lead *leads.Lead, contactID string, res Result) {
	ledgerRes, ok := res.PerTarget[TargetLedger]
	if !ok || !ledgerRes.OK() || g.ledger == nil {
		return
	}
	updated := lead.Clone()
	updated.CRMContactID = contactID
	if _, err := ledger.Upsert(ctx, g.ledger, ledger.RowFromLead(updated)); err != nil {
		g.logger.WithLead(lead.ID).Warn("ledger contact id backfill failed", "error", err)
	}
}

func (g *Gateway) syncTarget(ctx context.Context, t Target, lead *leads.Lead) TargetResult {
	ctx, span := tracer.Start(ctx, "leadsync.target")
	defer span.End()
	span.SetAttributes(attribute.String("sync.target", string(t)))

	start := time.Now()
	var op func(context.Context) (string, error)
	switch {
	case t == TargetLedger && g.ledger != nil:
		op = func(ctx context.Context) (string, error) {
			ref, err := ledger.Upsert(ctx, g.ledger, ledger.RowFromLead(lead))
			return string(ref), err
		}
	case t == TargetCRM && g.crm != nil:
		op = func(ctx context.Context) (string, error) {
			return g.upsertContact(ctx, lead)
		}
	default:
		err := &TargetRejectionError{Target: t, Err: ErrTargetNotConfigured}
		span.SetStatus(codes.Error, err.Error())
		return TargetResult{Target: t, Err: err}
	}

	remoteID, attempts, err := g.withRetry(ctx, t, lead.ID, op)
	tr := TargetResult{
		Target:   t,
		Attempts: attempts,
		Duration: time.Since(start),
		RemoteID: remoteID,
		Err:      err,
	}
	outcome := "ok"
	var rejected *TargetRejectionError
	switch {
	case err == nil:
	case errors.As(err, &rejected):
		outcome = "rejected"
	default:
		outcome = "transport"
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
	}
	span.SetAttributes(attribute.Int("sync.attempts", attempts))
	g.metrics.ObserveTarget(string(t), outcome, attempts, tr.Duration.Seconds())
	return tr
}

// withRetry runs op until it succeeds, is rejected, or the retry budget is
// spent. Delays grow linearly: base, 2*base, ...
func (g *Gateway) withRetry(ctx context.Context, t Target, leadID string, op func(context.Context) (string, error)) (string, int, error) {
	var (
		attempts int
		remoteID string
		lastErr  error
	)
	operation := func() error {
		attempts++
		id, err := op(ctx)
		if err == nil {
			remoteID = id
			return nil
		}
		lastErr = err
		if isPermanent(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, next time.Duration) {
		g.logger.Warn("sync target failed, retrying",
			"lead_id", leadID,
			"target", string(t),
			"attempt", attempts,
			"next_retry_in", next.String(),
			"error", err,
		)
	}

	b := backoff.WithContext(backoff.WithMaxRetries(&linearBackOff{base: g.baseDelay}, uint64(g.maxRetries)), ctx)
	err := backoff.RetryNotify(operation, b, notify)
	if err == nil {
		return remoteID, attempts, nil
	}
	if lastErr == nil {
		lastErr = err
	}
	if isPermanent(lastErr) {
		return "", attempts, &TargetRejectionError{Target: t, Err: lastErr}
	}
	if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(lastErr, ctxErr) {
		lastErr = fmt.Errorf("%w (last error: %v)", ctxErr, lastErr)
	}
	return "", attempts, &TargetTransportError{Target: t, Attempts: attempts, Err: lastErr}
}

// upsertContact updates the known contact, else adopts a contact with the same
// email, else creates one. It returns the contact id.
func (g *Gateway) upsertContact(ctx context.Context, lead *leads.Lead) (string, error) {
	contact := crm.ContactFromLead(lead)
	if id := lead.CRMContactID; id != "" {
		err := g.crm.Update(ctx, id, contact)
		if err == nil {
			return id, nil
		}
		var apiErr *crm.APIError
		if !errors.As(err, &apiErr) || apiErr.StatusCode != 404 {
			return "", err
		}
		g.logger.WithLead(lead.ID).Warn("crm contact vanished, relinking", "crm_contact_id", id)
	}
	if lead.Contact.Email != "" {
		id, err := g.crm.FindByEmail(ctx, lead.Contact.Email)
		if err != nil {
			return "", err
		}
		if id != "" {
			if err := g.crm.Update(ctx, id, contact); err != nil {
				return "", err
			}
			return id, nil
		}
	}
	return g.crm.Create(ctx, contact)
}

// linearBackOff waits attempt*base before each retry.
type linearBackOff struct {
	base    time.Duration
	attempt int
}

func (b *linearBackOff) NextBackOff() time.Duration {
	b.attempt++
	return time.Duration(b.attempt) * b.base
}

func (b *linearBackOff) Reset() { b.attempt = 0 }

// TargetResult is the outcome for one target.
type TargetResult struct {
	Target   Target
	Err      error
	Attempts int
	Duration time.Duration
	RemoteID string
}

// OK reports whether the target accepted the lead.
func (r TargetResult) OK() bool { return r.Err == nil }

// Result aggregates every target's outcome.
type Result struct {
	LeadID       string
	Success      bool
	PerTarget    map[Target]TargetResult
	CRMContactID string
}

// FailedTargets lists failed targets in name order.
func (r Result) FailedTargets() []Target {
	var failed []Target
	for t, tr := range r.PerTarget {
		if !tr.OK() {
			failed = append(failed, t)
		}
	}
	sort.Slice(failed, func(i, j int) bool { return failed[i] < failed[j] })
	return failed
}

// Warning describes a partial failure, or returns "" when nothing failed or
// everything did.
func (r Result) Warning() string {
	failed := r.FailedTargets()
	if !r.Success || len(failed) == 0 {
		return ""
	}
	names := make([]string, len(failed))
	for i, t := range failed {
		names[i] = string(t)
	}
	return "lead saved, but sync to " + strings.Join(names, ", ") + " failed"
}

// Err returns an AggregateSyncFailure when no target succeeded.
func (r Result) Err() error {
	if r.Success {
		return nil
	}
	failures := make(map[Target]error, len(r.PerTarget))
	for t, tr := range r.PerTarget {
		failures[t] = tr.Err
	}
	return &AggregateSyncFailure{LeadID: r.LeadID, Failures: failures}
}
