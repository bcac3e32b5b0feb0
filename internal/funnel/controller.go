package funnel

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/cashoffer-funnel/internal/leads"
	"github.com/wolfman30/cashoffer-funnel/pkg/logging"
)

// DefaultInactivity is how long a started funnel may sit idle before the
// partial record is flushed once more.
const DefaultInactivity = 15 * time.Minute

// ErrFinished is returned once the funnel reached the thank-you step.
var ErrFinished = errors.New("funnel: already finished")

// Option configures a Controller.
type Option func(*Controller)

func WithInactivity(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.inactivity = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		if now != nil {
			c.now = now
		}
	}
}

func WithLogger(logger *logging.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Controller walks one visitor through the funnel. Answers are kept locally
// and only sent to the server when a step is completed.
type Controller struct {
	api        API
	store      Storage
	logger     *logging.Logger
	inactivity time.Duration
	now        func() time.Time

	mu    sync.Mutex
	draft *Draft
}

// NewController resumes the stored draft or starts a new session.
func NewController(ctx context.Context, api API, store Storage, opts ...Option) (*Controller, error) {
	c := &Controller{
		api:        api,
		store:      store,
		logger:     logging.Default(),
		inactivity: DefaultInactivity,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	d, err := store.Load(ctx)
	if err != nil {
		return nil, err
	}
	if d == nil || !d.Step.Valid() {
		d = &Draft{SessionID: uuid.NewString(), Step: StepInitial}
	}
	if d.SessionID == "" {
		d.SessionID = uuid.NewString()
	}
	c.draft = d
	return c, nil
}

// State returns a copy of the current draft.
func (c *Controller) State() Draft {
	c.mu.Lock()
	defer c.mu.Unlock()
	return *c.draft
}

// Update merges answers into the draft and persists it. Nothing is sent.
func (c *Controller) Update(ctx context.Context, fields leads.Payload) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.draft.Step == StepThankYou {
		return ErrFinished
	}
	fields.LeadID = ""
	fields.CRMContactID = ""
	c.draft.Fields = leads.Normalize(leads.Overlay(c.draft.Fields, fields))
	c.draft.UpdatedAt = c.now().UTC()
	return c.store.Save(ctx, c.draft)
}

// Advance completes the current step. On failure the step is unchanged and
// the error describes what to show inline.
func (c *Controller) Advance(ctx context.Context) (Step, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d := c.draft
	if d.Step == StepThankYou {
		return d.Step, ErrFinished
	}
	if err := checkStep(d.Step, d.Fields); err != nil {
		return d.Step, err
	}

	payload := c.payload()
	logger := c.logger.With("session_id", d.SessionID, "step", string(d.Step))

	switch d.Step {
	case StepInitial:
		res, err := c.api.SubmitPartial(ctx, payload)
		if err != nil {
			c.keepLeadID(err)
			return d.Step, err
		}
		if res.LeadID == "" {
			return d.Step, fmt.Errorf("funnel: server returned no lead id")
		}
		c.adopt(res)
		c.markConversion(ctx, "partial")

	case StepPropertyListed, StepTimeline:
		res, err := c.api.SubmitPartial(ctx, payload)
		var reqErr *RequestError
		if errors.As(err, &reqErr) {
			return d.Step, err
		}
		if err != nil {
			// The answers stay in the draft and go out with the next step.
			logger.Warn("step flush failed, advancing anyway", "error", err)
			d.Warning = err.Error()
		} else {
			c.adopt(res)
		}

	case StepContact:
		res, err := c.api.SubmitComplete(ctx, payload)
		if err != nil {
			c.keepLeadID(err)
			return d.Step, err
		}
		c.adopt(res)
		c.markConversion(ctx, "full")
	}

	d.Step = d.Step.Next()
	d.CheckpointAt = c.now().UTC()
	d.UpdatedAt = d.CheckpointAt
	d.AbandonFlushed = false

	if d.Step == StepThankYou {
		logger.Info("funnel completed", "lead_id", d.LeadID)
		return d.Step, c.store.Clear(ctx)
	}
	return d.Step, c.store.Save(ctx, d)
}

// CheckAbandoned flushes the partial record once when the visitor went idle
// after the first submission without giving contact details. It reports
// whether a flush was sent.
func (c *Controller) CheckAbandoned(ctx context.Context) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d := c.draft
	if d.LeadID == "" || d.Step == StepInitial || d.Step == StepThankYou {
		return false, nil
	}
	if d.AbandonFlushed || !d.contactEmpty() {
		return false, nil
	}
	if c.now().Sub(d.CheckpointAt) < c.inactivity {
		return false, nil
	}

	res, err := c.api.SubmitPartial(ctx, c.payload())
	if err != nil {
		return false, err
	}
	c.adopt(res)
	d.AbandonFlushed = true
	c.logger.Info("flushed idle funnel", "session_id", d.SessionID, "lead_id", d.LeadID, "step", string(d.Step))
	return true, c.store.Save(ctx, d)
}

// Watch runs CheckAbandoned every interval until ctx is done.
func (c *Controller) Watch(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := c.CheckAbandoned(ctx); err != nil {
				c.logger.Warn("idle flush failed", "error", err)
			}
		}
	}
}

func (c *Controller) payload() leads.Payload {
	p := c.draft.Fields
	p.LeadID = c.draft.LeadID
	p.CRMContactID = c.draft.CRMContactID
	return p
}

func (c *Controller) adopt(res *SubmitResult) {
	if res == nil {
		return
	}
	if res.LeadID != "" {
		c.draft.LeadID = res.LeadID
	}
	if res.CRMContactID != "" {
		c.draft.CRMContactID = res.CRMContactID
	}
	c.draft.Warning = res.Warning
}

// keepLeadID holds on to an id the server assigned even though it failed to
// save, so the retry upserts the same lead.
func (c *Controller) keepLeadID(err error) {
	var syncErr *SyncError
	if errors.As(err, &syncErr) && syncErr.LeadID != "" && c.draft.LeadID == "" {
		c.draft.LeadID = syncErr.LeadID
	}
}

func (c *Controller) markConversion(ctx context.Context, kind string) {
	fired, err := c.api.MarkConversion(ctx, c.draft.SessionID, kind, c.draft.LeadID)
	if err != nil {
		c.logger.Warn("conversion not recorded", "kind", kind, "error", err)
		return
	}
	if fired {
		c.logger.Info("conversion fired", "kind", kind, "lead_id", c.draft.LeadID)
	}
}
