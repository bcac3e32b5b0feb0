package relay

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Sign returns the X-Signature value for body: sha256=<hex> of an HMAC over
// "{timestamp}.{leadId}.{body}".
func Sign(secret string, timestamp int64, leadID string, body []byte) string {
	h := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(h, "%d.%s.", timestamp, leadID)
	h.Write(body)
	return "sha256=" + hex.EncodeToString(h.Sum(nil))
}

// WebhookSink POSTs signed events to a URL.
type WebhookSink struct {
	url         string
	secret      string
	client      *http.Client
	maxInterval time.Duration
	now         func() time.Time
}

// NewWebhookSink targets url. An empty secret sends unsigned requests.
func NewWebhookSink(url, secret string, client *http.Client) *WebhookSink {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &WebhookSink{url: url, secret: secret, client: client, maxInterval: 2 * time.Second, now: time.Now}
}

func (s *WebhookSink) Name() string { return "webhook" }

// Deliver retries transport errors and 5xx answers with exponential backoff
// until ctx expires. 4xx answers stop immediately.
func (s *WebhookSink) Deliver(ctx context.Context, evt Event) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("relay: marshal event: %w", err)
	}
	ts := s.now().Unix()
	leadID := ""
	if evt.Lead != nil {
		leadID = evt.Lead.ID
	}

	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("relay: build request: %w", err))
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Event-ID", evt.EventID)
		req.Header.Set("X-Event-Type", evt.Type)
		req.Header.Set("X-Lead-ID", leadID)
		req.Header.Set("X-Timestamp", strconv.FormatInt(ts, 10))
		if s.secret != "" {
			req.Header.Set("X-Signature", Sign(s.secret, ts, leadID, body))
		}
		resp, err := s.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return nil
		case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
			return fmt.Errorf("relay: webhook status %d", resp.StatusCode)
		default:
			return backoff.Permanent(fmt.Errorf("relay: webhook rejected event with status %d", resp.StatusCode))
		}
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = s.maxInterval
	b.MaxElapsedTime = 0
	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("relay: webhook delivery timed out: %w", err)
		}
		return err
	}
	return nil
}
