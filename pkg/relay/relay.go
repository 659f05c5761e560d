// Package relay delivers a contact submission to the external form relay.
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/payback159/contactgate/pkg/config"
	"github.com/payback159/contactgate/pkg/logging"
)

// ErrRejected is wrapped by every non-2xx answer from the relay
var ErrRejected = errors.New("relay rejected submission")

// maxExcerpt bounds how much of an error body is kept for logging
const maxExcerpt = 512

// StatusError carries the relay's HTTP status and the start of its body.
// The body is meant for logs only, never for the visitor.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("relay answered %d", e.StatusCode)
}

func (e *StatusError) Unwrap() error { return ErrRejected }

// Submission is one sanitized form payload
type Submission struct {
	Name    string
	Email   string
	Company string
	Message string
	Token   string
}

// payload is the JSON body the relay expects
type payload struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Company  string `json:"company"`
	Message  string `json:"message"`
	Subject  string `json:"_subject"`
	Captcha  string `json:"_captcha"`
	Template string `json:"_template"`
	CSRF     string `json:"_csrf,omitempty"`
}

// Client posts submissions to a relay endpoint
type Client struct {
	Endpoint      string
	SubjectPrefix string
	HTTP          *http.Client
}

// New creates a client from the process configuration. A zero
// RelayTimeout leaves the request without a deadline.
func New(cfg config.Config) *Client {
	return &Client{
		Endpoint:      cfg.RelayEndpoint,
		SubjectPrefix: cfg.RelaySubjectPrefix,
		HTTP:          &http.Client{Timeout: cfg.RelayTimeout},
	}
}

// Subject builds the mail subject for a sender name
func (c *Client) Subject(name string) string {
	return c.SubjectPrefix + " " + name
}

// Send performs exactly one POST. Only a 2xx status counts as delivered.
func (c *Client) Send(ctx context.Context, s Submission) error {
	body, err := json.Marshal(payload{
		Name:     s.Name,
		Email:    s.Email,
		Company:  s.Company,
		Message:  s.Message,
		Subject:  c.Subject(s.Name),
		Captcha:  "false",
		Template: "table",
		CSRF:     s.Token,
	})
	if err != nil {
		return fmt.Errorf("encoding relay payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building relay request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if s.Token != "" {
		req.Header.Set("X-CSRF-Token", s.Token)
	}

	client := c.HTTP
	if client == nil {
		client = http.DefaultClient
	}

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("posting to relay: %w", err)
	}
	defer resp.Body.Close()

	logging.LogPerformance("relay_post", time.Since(start),
		"status_code", resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, maxExcerpt))
		return &StatusError{StatusCode: resp.StatusCode, Body: string(excerpt)}
	}

	// Drain so the connection can be reused
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
