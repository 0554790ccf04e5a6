// Package jira provides a minimal Jira Cloud client used to delete the
// demo Jira project created for a session's integration walkthrough.
package jira

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client deletes demo projects from a Jira Cloud site using basic auth
// with an API token.
type Client struct {
	baseURL    string
	email      string
	apiToken   string
	httpClient *http.Client
}

// NewClient creates a Jira client. baseURL is the site root, e.g.
// https://example.atlassian.net.
func NewClient(baseURL, email, apiToken string) *Client {
	return &Client{
		baseURL:  baseURL,
		email:    email,
		apiToken: apiToken,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// Enabled reports whether the client has credentials configured. Sessions
// created without the Jira integration have no project to delete.
func (c *Client) Enabled() bool {
	return c.baseURL != "" && c.apiToken != ""
}

// DeleteProject deletes a Jira project by key. A 404 is treated as success:
// the project is gone either way.
func (c *Client) DeleteProject(ctx context.Context, projectKey string) error {
	url := fmt.Sprintf("%s/rest/api/3/project/%s", c.baseURL, projectKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.SetBasicAuth(c.email, c.apiToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("delete jira project %s: %w", projectKey, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 && resp.StatusCode != http.StatusNotFound {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("delete jira project %s: status %d: %s", projectKey, resp.StatusCode, body)
	}
	return nil
}
