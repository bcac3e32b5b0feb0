package leadsync

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrTargetNotConfigured is returned for targets the gateway has no store for.
var ErrTargetNotConfigured = errors.New("leadsync: target not configured")

// TargetTransportError is a failure that survived every retry: network
// errors, timeouts, 5xx answers.
type TargetTransportError struct {
	Target   Target
	Attempts int
	Err      error
}

func (e *TargetTransportError) Error() string {
	return fmt.Sprintf("leadsync: %s unreachable after %d attempt(s): %v", e.Target, e.Attempts, e.Err)
}

func (e *TargetTransportError) Unwrap() error { return e.Err }

// TargetRejectionError is a definitive refusal by the target. It is never
// retried.
type TargetRejectionError struct {
	Target Target
	Err    error
}

func (e *TargetRejectionError) Error() string {
	return fmt.Sprintf("leadsync: %s rejected the lead: %v", e.Target, e.Err)
}

func (e *TargetRejectionError) Unwrap() error { return e.Err }

// AggregateSyncFailure means no target accepted the lead.
type AggregateSyncFailure struct {
	LeadID   string
	Failures map[Target]error
}

func (e *AggregateSyncFailure) Error() string {
	if len(e.Failures) == 0 {
		return fmt.Sprintf("leadsync: lead %s: no sync targets configured", e.LeadID)
	}
	targets := make([]string, 0, len(e.Failures))
	for t := range e.Failures {
		targets = append(targets, string(t))
	}
	sort.Strings(targets)
	parts := make([]string, 0, len(targets))
	for _, t := range targets {
		parts = append(parts, fmt.Sprintf("%s: %v", t, e.Failures[Target(t)]))
	}
	return fmt.Sprintf("leadsync: lead %s: every target failed (%s)", e.LeadID, strings.Join(parts, "; "))
}

// permanent is implemented by store errors that know whether a retry helps.
type permanent interface {
	Permanent() bool
}

func isPermanent(err error) bool {
	var p permanent
	return errors.As(err, &p) && p.Permanent()
}
