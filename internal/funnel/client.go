package funnel

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/wolfman30/cashoffer-funnel/internal/leads"
)

// API is the server surface the controller talks to.
type API interface {
	SubmitPartial(ctx context.Context, p leads.Payload) (*SubmitResult, error)
	SubmitComplete(ctx context.Context, p leads.Payload) (*SubmitResult, error)
	MarkConversion(ctx context.Context, sessionID, kind, leadID string) (bool, error)
}

// SubmitResult is the server's answer to a lead submission.
type SubmitResult struct {
	Success        bool   `json:"success"`
	LeadID         string `json:"leadId,omitempty"`
	CRMContactID   string `json:"crmContactId,omitempty"`
	SubmissionType string `json:"submissionType,omitempty"`
	Error          string `json:"error,omitempty"`
	Field          string `json:"field,omitempty"`
	RetryAfter     int    `json:"retryAfter,omitempty"`
	Warning        string `json:"warning,omitempty"`
}

// RequestError is a 4xx answer: the input or the caller was refused.
type RequestError struct {
	StatusCode int
	Message    string
	Field      string
	RetryAfter int
}

func (e *RequestError) Error() string {
	switch {
	case e.StatusCode == http.StatusTooManyRequests:
		return fmt.Sprintf("funnel: too many requests, retry in %ds", e.RetryAfter)
	case e.Field != "":
		return fmt.Sprintf("funnel: %s (%s)", e.Message, e.Field)
	}
	return fmt.Sprintf("funnel: %s (status=%d)", e.Message, e.StatusCode)
}

// SyncError is a 5xx answer. LeadID is set when the server still assigned one.
type SyncError struct {
	StatusCode int
	Message    string
	LeadID     string
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("funnel: server could not save lead: %s (status=%d)", e.Message, e.StatusCode)
}

// ClientConfig configures APIClient.
type ClientConfig struct {
	BaseURL    string
	SessionID  string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// APIClient calls the lead and conversion endpoints.
type APIClient struct {
	baseURL    string
	sessionID  string
	httpClient *http.Client
}

func NewAPIClient(cfg ClientConfig) (*APIClient, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("funnel: base URL is required")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &APIClient{baseURL: baseURL, sessionID: cfg.SessionID, httpClient: httpClient}, nil
}

func (c *APIClient) SubmitPartial(ctx context.Context, p leads.Payload) (*SubmitResult, error) {
	return c.submit(ctx, "/api/leads/partial", p)
}

func (c *APIClient) SubmitComplete(ctx context.Context, p leads.Payload) (*SubmitResult, error) {
	return c.submit(ctx, "/api/leads/complete", p)
}

func (c *APIClient) submit(ctx context.Context, path string, p leads.Payload) (*SubmitResult, error) {
	status, data, err := c.invoke(ctx, path, p)
	if err != nil {
		return nil, err
	}
	var res SubmitResult
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("funnel: decode response (status=%d): %w", status, err)
	}
	switch {
	case status >= 200 && status < 300:
		return &res, nil
	case status >= 500:
		return &res, &SyncError{StatusCode: status, Message: res.Error, LeadID: res.LeadID}
	default:
		return &res, &RequestError{StatusCode: status, Message: res.Error, Field: res.Field, RetryAfter: res.RetryAfter}
	}
}

// MarkConversion records a conversion and reports whether it fired.
func (c *APIClient) MarkConversion(ctx context.Context, sessionID, kind, leadID string) (bool, error) {
	status, data, err := c.invoke(ctx, "/api/conversions", map[string]string{
		"sessionId": sessionID,
		"kind":      kind,
		"leadId":    leadID,
	})
	if err != nil {
		return false, err
	}
	var res struct {
		Success bool   `json:"success"`
		Fired   bool   `json:"fired"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(data, &res); err != nil {
		return false, fmt.Errorf("funnel: decode conversion response (status=%d): %w", status, err)
	}
	if status < 200 || status >= 300 {
		return false, &RequestError{StatusCode: status, Message: res.Error}
	}
	return res.Fired, nil
}

func (c *APIClient) invoke(ctx context.Context, path string, payload any) (int, []byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, fmt.Errorf("funnel: marshal body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return 0, nil, fmt.Errorf("funnel: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.sessionID != "" {
		req.Header.Set("X-Session-ID", c.sessionID)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("funnel: http error: %w", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, nil, fmt.Errorf("funnel: read response: %w", err)
	}
	return resp.StatusCode, data, nil
}
