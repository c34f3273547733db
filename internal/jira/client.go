// Package jira files issues through the Jira Cloud REST API.
package jira

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/h1v3-io/jirabot/pkg/protocol"
)

// ErrCreateFailed is wrapped by every issue-creation failure.
var ErrCreateFailed = errors.New("jira: create issue failed")

// CreateError carries the tracker's raw answer for a rejected request.
type CreateError struct {
	Status int    // 0 when no response was received
	Body   string // raw response body or transport error text
}

func (e *CreateError) Error() string {
	if e.Status == 0 {
		return "jira: create issue: " + e.Body
	}
	return fmt.Sprintf("jira: create issue (status %d): %s", e.Status, e.Body)
}

func (e *CreateError) Unwrap() error { return ErrCreateFailed }

// Detail returns the raw response body (or transport error) for display.
func (e *CreateError) Detail() string { return e.Body }

// Client is a minimal Jira REST client.
type Client struct {
	http    *http.Client
	baseURL string
	email   string
	token   string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

// New creates a Client for the Jira site at baseURL.
func New(baseURL, email, token string, opts ...Option) *Client {
	c := &Client{
		http:    &http.Client{Timeout: 30 * time.Second},
		baseURL: strings.TrimSuffix(baseURL, "/"),
		email:   email,
		token:   token,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// authHeader returns "Basic base64(email:token)".
func (c *Client) authHeader() string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(c.email+":"+c.token))
}

// CreateIssue files req and returns the new issue key. Any status other
// than 201 Created is returned as a *CreateError with the raw body.
func (c *Client) CreateIssue(ctx context.Context, req protocol.TicketRequest) (protocol.IssueKey, error) {
	payload, err := json.Marshal(toCreateRequest(req))
	if err != nil {
		return "", fmt.Errorf("jira: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/rest/api/3/issue", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("jira: create request: %w", err)
	}
	httpReq.Header.Set("Authorization", c.authHeader())
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", &CreateError{Body: err.Error()}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", &CreateError{Status: resp.StatusCode, Body: "read response: " + err.Error()}
	}

	if resp.StatusCode != http.StatusCreated {
		return "", &CreateError{Status: resp.StatusCode, Body: string(body)}
	}

	var created createResponse
	if err := json.Unmarshal(body, &created); err != nil || created.Key == "" {
		return "", &CreateError{Status: resp.StatusCode, Body: string(body)}
	}
	return protocol.IssueKey(created.Key), nil
}

// --- Jira wire format types ---

type createRequest struct {
	Fields issueFields `json:"fields"`
}

type issueFields struct {
	Project   keyRef  `json:"project"`
	Summary   string  `json:"summary"`
	DueDate   string  `json:"duedate"`
	Priority  nameRef `json:"priority"`
	IssueType nameRef `json:"issuetype"`
}

type keyRef struct {
	Key string `json:"key"`
}

type nameRef struct {
	Name string `json:"name"`
}

type createResponse struct {
	ID   string `json:"id"`
	Key  string `json:"key"`
	Self string `json:"self"`
}

func toCreateRequest(req protocol.TicketRequest) createRequest {
	return createRequest{Fields: issueFields{
		Project:   keyRef{Key: req.ProjectKey},
		Summary:   req.Summary,
		DueDate:   req.Due(),
		Priority:  nameRef{Name: req.Priority},
		IssueType: nameRef{Name: req.IssueType},
	}}
}
