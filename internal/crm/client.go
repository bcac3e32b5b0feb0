package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/wolfman30/cashoffer-funnel/pkg/logging"
)

const (
	defaultBaseURL   = "https://rest.gohighlevel.com/v1"
	defaultUserAgent = "cashoffer-funnel/0.1"
)

// Config controls how the CRM client behaves.
type Config struct {
	BaseURL    string
	APIKey     string
	LocationID string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *logging.Logger
	UserAgent  string
}

// Client talks to the CRM contacts API. It makes exactly one attempt per
// call; retries belong to the caller.
type Client struct {
	apiKey     string
	baseURL    string
	locationID string
	httpClient *http.Client
	logger     *logging.Logger
	userAgent  string
}

// New creates a configured Client with sane defaults.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("crm: API key is required")
	}
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	userAgent := strings.TrimSpace(cfg.UserAgent)
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	return &Client{
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
		locationID: strings.TrimSpace(cfg.LocationID),
		httpClient: httpClient,
		logger:     logger,
		userAgent:  userAgent,
	}, nil
}

type contactEnvelope struct {
	Contact struct {
		ID string `json:"id"`
	} `json:"contact"`
}

// Create adds a contact and returns the id the CRM assigned.
func (c *Client) Create(ctx context.Context, contact Contact) (string, error) {
	contact.LocationID = c.locationID
	data, err := c.invoke(ctx, http.MethodPost, "/contacts/", nil, contact)
	if err != nil {
		return "", err
	}
	var env contactEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", fmt.Errorf("crm: decode create response: %w", err)
	}
	if env.Contact.ID == "" {
		return "", errors.New("crm: create response missing contact id")
	}
	return env.Contact.ID, nil
}

// Update overwrites the contact's fields.
func (c *Client) Update(ctx context.Context, id string, contact Contact) error {
	if strings.TrimSpace(id) == "" {
		return &APIError{StatusCode: http.StatusBadRequest, Message: "contact id required"}
	}
	contact.LocationID = c.locationID
	_, err := c.invoke(ctx, http.MethodPut, "/contacts/"+url.PathEscape(id), nil, contact)
	return err
}

// FindByEmail returns the id of the first contact with the email, or "" when
// there is none.
func (c *Client) FindByEmail(ctx context.Context, email string) (string, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return "", nil
	}
	q := url.Values{}
	q.Set("email", email)
	if c.locationID != "" {
		q.Set("locationId", c.locationID)
	}
	data, err := c.invoke(ctx, http.MethodGet, "/contacts/search", q, nil)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return "", nil
		}
		return "", err
	}
	var resp struct {
		Contacts []struct {
			ID string `json:"id"`
		} `json:"contacts"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", fmt.Errorf("crm: decode search response: %w", err)
	}
	if len(resp.Contacts) == 0 {
		return "", nil
	}
	return resp.Contacts[0].ID, nil
}

func (c *Client) invoke(ctx context.Context, method, path string, query url.Values, payload any) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("crm: marshal body: %w", err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.buildURL(path, query), body)
	if err != nil {
		return nil, fmt.Errorf("crm: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("crm: http error: %w", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("crm: read response: %w", err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return data, nil
	}
	apiErr := decodeAPIError(resp.StatusCode, data)
	c.logger.Warn("crm request failed",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"error", apiErr,
	)
	return nil, apiErr
}

func (c *Client) buildURL(path string, query url.Values) string {
	full := c.baseURL + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		full += "?" + query.Encode()
	}
	return full
}

// APIError is a non-2xx answer from the CRM.
type APIError struct {
	StatusCode int    `json:"-"`
	Message    string `json:"message,omitempty"`
	Msg        string `json:"msg,omitempty"`
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Msg
	}
	if msg != "" {
		return fmt.Sprintf("crm: %s (status=%d)", msg, e.StatusCode)
	}
	return fmt.Sprintf("crm: http status %d", e.StatusCode)
}

// Permanent reports whether the CRM refused the request. 4xx answers are
// refusals; 5xx answers are worth another attempt.
func (e *APIError) Permanent() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500 && e.StatusCode != http.StatusRequestTimeout
}

func decodeAPIError(status int, body []byte) error {
	var parsed APIError
	if err := json.Unmarshal(body, &parsed); err != nil {
		return &APIError{StatusCode: status, Message: strings.TrimSpace(string(body))}
	}
	parsed.StatusCode = status
	return &parsed
}
