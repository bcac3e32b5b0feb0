package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	appconfig "github.com/wolfman30/cashoffer-funnel/internal/config"
	"github.com/wolfman30/cashoffer-funnel/pkg/logging"
)

func TestSetupMetricsExposesMetrics(t *testing.T) {
	handler, leadMetrics, syncMetrics := setupMetrics()
	if handler == nil || leadMetrics == nil || syncMetrics == nil {
		t.Fatalf("expected non-nil handler and metrics")
	}

	leadMetrics.ObserveSubmission("partial", "ok", 0.01)
	syncMetrics.ObserveTarget("ledger", "ok", 1, 0.01)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	for _, name := range []string{"cashoffer_leads_submissions_total", "cashoffer_sync_target_outcomes_total"} {
		if !strings.Contains(rr.Body.String(), name) {
			t.Fatalf("expected %s to be exported", name)
		}
	}
}

func TestSetupAWSSkippedWithoutQueueOrSES(t *testing.T) {
	sqsClient, sesClient := setupAWS(context.Background(), &appconfig.Config{AWSRegion: "us-east-1"}, logging.Discard())
	if sqsClient != nil || sesClient != nil {
		t.Fatalf("expected no AWS clients")
	}
}

func TestSetupAWSBuildsClients(t *testing.T) {
	t.Setenv("AWS_EC2_METADATA_DISABLED", "true")
	cfg := &appconfig.Config{
		AWSRegion:          "us-east-1",
		AWSAccessKeyID:     "test",
		AWSSecretAccessKey: "test",
		LeadEventsQueueURL: "http://localhost:4566/000000000000/lead-events",
		SESFromEmail:       "leads@example.com",
	}
	sqsClient, sesClient := setupAWS(context.Background(), cfg, logging.Discard())
	if sqsClient == nil || sesClient == nil {
		t.Fatalf("expected SQS and SES clients")
	}
}

func TestBuildAppInMemory(t *testing.T) {
	cfg := &appconfig.Config{
		RateLimitBackend:            "memory",
		RateLimitWindow:             time.Minute,
		RateLimitCapacity:           5,
		ConversionRateLimitCapacity: 10,
		SyncTargets:                 []string{"ledger", "crm"},
		SyncTimeout:                 2 * time.Second,
		SyncMaxRetries:              0,
		SyncRetryBaseDelay:          time.Millisecond,
		LedgerBackend:               "memory",
		ConversionBackend:           "memory",
		ConversionSessionTTL:        time.Hour,
	}
	a, err := buildApp(context.Background(), cfg, logging.Discard())
	if err != nil {
		t.Fatalf("build app: %v", err)
	}
	defer a.close()

	body := []byte(`{"address":"1 Main St","phone":"(555) 123-4567"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/leads/partial", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	a.handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), `"leadId":"lead_`) {
		t.Fatalf("expected lead id in response: %s", rr.Body.String())
	}
}

func TestBuildAppRejectsUnknownTargets(t *testing.T) {
	cfg := &appconfig.Config{SyncTargets: []string{"mailchimp"}, LedgerBackend: "memory"}
	if _, err := buildApp(context.Background(), cfg, logging.Discard()); err == nil {
		t.Fatalf("expected error for unknown sync targets")
	}
}

func TestBuildAppRejectsUnknownCompletionField(t *testing.T) {
	cfg := &appconfig.Config{CompletionFields: []string{"shoeSize"}}
	if _, err := buildApp(context.Background(), cfg, logging.Discard()); err == nil {
		t.Fatalf("expected error for unknown completion field")
	}
}
