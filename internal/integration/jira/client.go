// Package jira talks to a Jira Cloud site through the Atlassian Connect
// request helper.
package jira

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/splax/peep/internal/integration/atlassian"
)

const (
	IssueURL   = "/rest/api/2/issue/%s"
	CommentURL = "/rest/api/2/issue/%s/comment"

	appKeySuffix = ".jira"
)

// AppKey derives the Connect app key from the host's public URL: its
// hostname followed by ".jira".
func AppKey(publicURL string) (string, error) {
	parsed, err := url.Parse(strings.TrimSpace(publicURL))
	if err != nil {
		return "", fmt.Errorf("parse public url: %w", err)
	}
	host := parsed.Hostname()
	if host == "" {
		return "", fmt.Errorf("public url %q has no hostname", publicURL)
	}
	return host + appKeySuffix, nil
}

// Requester performs signed requests against the Jira site.
type Requester interface {
	Do(ctx context.Context, method, path string, query url.Values, body any) (*atlassian.Response, error)
}

// Client exposes the Jira operations used by the integration.
type Client struct {
	baseURL   string
	requester Requester
}

// NewClient builds a client for the site at baseURL signing with sharedSecret.
func NewClient(baseURL, sharedSecret, appKey string, opts ...atlassian.Option) (*Client, error) {
	requester, err := atlassian.New(baseURL, sharedSecret, appKey, opts...)
	if err != nil {
		return nil, err
	}
	return &Client{baseURL: baseURL, requester: requester}, nil
}

// NewClientWithRequester wires a custom requester, mainly for tests.
func NewClientWithRequester(baseURL string, requester Requester) (*Client, error) {
	if requester == nil {
		return nil, errors.New("jira: nil requester")
	}
	return &Client{baseURL: baseURL, requester: requester}, nil
}

// BaseURL reports the Jira site this client targets.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// GetIssue fetches an issue by id or key.
func (c *Client) GetIssue(ctx context.Context, issueID string) (*atlassian.Response, error) {
	return c.requester.Do(ctx, http.MethodGet, fmt.Sprintf(IssueURL, issueID), nil, nil)
}

// CreateComment adds a comment to the issue.
func (c *Client) CreateComment(ctx context.Context, issueKey, comment string) (*atlassian.Response, error) {
	return c.requester.Do(ctx, http.MethodPost, fmt.Sprintf(CommentURL, issueKey), nil, commentPayload{Body: comment})
}

type commentPayload struct {
	Body string `json:"body"`
}
