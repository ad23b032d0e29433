// Package twilio is a minimal client for the Twilio REST API: outbound SMS
// and outbound calls driven by inline TwiML.
package twilio

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultBaseURL = "https://api.twilio.com/2010-04-01"

// Client talks to one Twilio account.
type Client struct {
	accountSID string
	authToken  string
	from       string
	baseURL    string
	httpClient *http.Client
}

// Option customizes a Client.
type Option func(*Client)

// WithBaseURL overrides the API root.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// New returns a client that sends from the given number.
func New(accountSID, authToken, from string, opts ...Option) *Client {
	c := &Client{
		accountSID: strings.TrimSpace(accountSID),
		authToken:  strings.TrimSpace(authToken),
		from:       strings.TrimSpace(from),
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configured reports whether credentials and a sender number are present.
func (c *Client) Configured() bool {
	return c != nil && c.accountSID != "" && c.authToken != "" && c.from != ""
}

// Resource is the subset of a created Message or Call that callers use.
type Resource struct {
	SID    string `json:"sid"`
	Status string `json:"status"`
}

// APIError is a Twilio error response.
type APIError struct {
	Status   int    `json:"status"`
	Code     int    `json:"code"`
	Message  string `json:"message"`
	MoreInfo string `json:"more_info"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("twilio: %d (code %d): %s", e.Status, e.Code, e.Message)
}

// StatusCode returns the HTTP status.
func (e *APIError) StatusCode() int { return e.Status }

// SendSMS sends body to the given number.
func (c *Client) SendSMS(ctx context.Context, to, body string) (Resource, error) {
	form := url.Values{}
	form.Set("To", to)
	form.Set("From", c.from)
	form.Set("Body", body)
	return c.post(ctx, "Messages.json", form)
}

// Call places an outbound call that executes twiml when answered.
func (c *Client) Call(ctx context.Context, to, twiml string) (Resource, error) {
	form := url.Values{}
	form.Set("To", to)
	form.Set("From", c.from)
	form.Set("Twiml", twiml)
	return c.post(ctx, "Calls.json", form)
}

func (c *Client) post(ctx context.Context, resource string, form url.Values) (Resource, error) {
	endpoint := fmt.Sprintf("%s/Accounts/%s/%s", c.baseURL, url.PathEscape(c.accountSID), resource)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return Resource{}, err
	}
	req.SetBasicAuth(c.accountSID, c.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Resource{}, fmt.Errorf("twilio: %s: %w", resource, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Resource{}, fmt.Errorf("twilio: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		if json.Unmarshal(body, apiErr) != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(body))
		}
		apiErr.Status = resp.StatusCode
		return Resource{}, apiErr
	}
	var out Resource
	if err := json.Unmarshal(body, &out); err != nil {
		return Resource{}, fmt.Errorf("twilio: decode response: %w", err)
	}
	return out, nil
}
