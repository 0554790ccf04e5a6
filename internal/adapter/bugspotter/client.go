// Package bugspotter provides an HTTP client for the external bug-tracking
// product's admin API, used to provision per-session resources and clean
// them up again.
package bugspotter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bugspotter/demo-platform/internal/domain"
	"github.com/bugspotter/demo-platform/internal/domain/bug"
	"github.com/bugspotter/demo-platform/internal/domain/session"
	"github.com/bugspotter/demo-platform/internal/resilience"
)

// Client talks to the collaborator admin API.
type Client struct {
	baseURL    string
	adminEmail string
	adminPass  string
	httpClient *http.Client
	breaker    *resilience.Breaker

	mu    sync.Mutex
	token string
}

// NewClient creates an admin client for the collaborator API.
func NewClient(baseURL, adminEmail, adminPass string) *Client {
	return &Client{
		baseURL:    baseURL,
		adminEmail: adminEmail,
		adminPass:  adminPass,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// SetBreaker attaches a circuit breaker to all outgoing HTTP calls.
func (c *Client) SetBreaker(b *resilience.Breaker) {
	c.breaker = b
}

// login authenticates with admin credentials and caches the access token.
func (c *Client) login(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.token != "" {
		token := c.token
		c.mu.Unlock()
		return token, nil
	}
	c.mu.Unlock()

	body, _ := json.Marshal(map[string]string{
		"email":    c.adminEmail,
		"password": c.adminPass,
	})
	resp, err := c.doRequest(ctx, http.MethodPost, "/api/v1/auth/login", "", body)
	if err != nil {
		return "", fmt.Errorf("login: %w", err)
	}

	var result struct {
		Data struct {
			AccessToken string `json:"access_token"`
		} `json:"data"`
	}
	if err := json.Unmarshal(resp, &result); err != nil {
		return "", fmt.Errorf("login: unmarshal: %w", err)
	}

	c.mu.Lock()
	c.token = result.Data.AccessToken
	c.mu.Unlock()
	return result.Data.AccessToken, nil
}

// ProvisionSession creates the per-session collaborator resources: a demo
// user and one project (with capture API key) per demo site. Any failure
// aborts the whole provisioning so no tenant is left half-provisioned;
// already-created resources are reaped by the next cleanup run once the
// session is tracked.
func (c *Client) ProvisionSession(ctx context.Context, sessionID, company string) (*session.Provisioning, error) {
	token, err := c.login(ctx)
	if err != nil {
		return nil, collaborator(err)
	}

	email := fmt.Sprintf("demo-%s@demo.invalid", sessionID)
	userID, err := c.createUser(ctx, token, email, company)
	if err != nil {
		return nil, collaborator(err)
	}

	meta := &session.Provisioning{UserID: userID, Email: email}
	for _, site := range []bug.DemoSite{bug.SiteKazBank, bug.SiteTalentFlow, bug.SiteQuickMart} {
		name := fmt.Sprintf("%s %s", company, site)
		project, err := c.createProject(ctx, token, name, userID)
		if err != nil {
			return nil, collaborator(err)
		}
		meta.Projects = append(meta.Projects, project)
	}
	return meta, nil
}

func (c *Client) createUser(ctx context.Context, token, email, name string) (string, error) {
	body, _ := json.Marshal(map[string]string{
		"email":    email,
		"name":     name,
		"password": uuid.NewString(),
		"role":     "member",
	})
	resp, err := c.doRequest(ctx, http.MethodPost, "/api/v1/admin/users", token, body)
	if err != nil {
		return "", fmt.Errorf("create user %s: %w", email, err)
	}
	var result struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(resp, &result); err != nil {
		return "", fmt.Errorf("create user %s: unmarshal: %w", email, err)
	}
	return result.Data.ID, nil
}

func (c *Client) createProject(ctx context.Context, token, name, ownerID string) (session.Project, error) {
	body, _ := json.Marshal(map[string]string{
		"name":     name,
		"owner_id": ownerID,
	})
	resp, err := c.doRequest(ctx, http.MethodPost, "/api/v1/projects", token, body)
	if err != nil {
		return session.Project{}, fmt.Errorf("create project %s: %w", name, err)
	}
	var result struct {
		Data struct {
			ID     string `json:"id"`
			APIKey struct {
				ID  string `json:"id"`
				Key string `json:"key"`
			} `json:"api_key"`
		} `json:"data"`
	}
	if err := json.Unmarshal(resp, &result); err != nil {
		return session.Project{}, fmt.Errorf("create project %s: unmarshal: %w", name, err)
	}
	return session.Project{
		ID:       result.Data.ID,
		Name:     name,
		APIKey:   result.Data.APIKey.Key,
		APIKeyID: result.Data.APIKey.ID,
	}, nil
}

// DeleteProject removes a collaborator project.
func (c *Client) DeleteProject(ctx context.Context, projectID string) error {
	return c.authedDelete(ctx, "/api/v1/projects/"+projectID)
}

// DeleteAPIKey removes a capture API key.
func (c *Client) DeleteAPIKey(ctx context.Context, apiKeyID string) error {
	return c.authedDelete(ctx, "/api/v1/api-keys/"+apiKeyID)
}

// DeleteUser removes a demo user.
func (c *Client) DeleteUser(ctx context.Context, userID string) error {
	return c.authedDelete(ctx, "/api/v1/admin/users/"+userID)
}

func (c *Client) authedDelete(ctx context.Context, path string) error {
	token, err := c.login(ctx)
	if err != nil {
		return collaborator(err)
	}
	if _, err := c.doRequest(ctx, http.MethodDelete, path, token, nil); err != nil {
		return collaborator(fmt.Errorf("delete %s: %w", path, err))
	}
	return nil
}

func (c *Client) doRequest(ctx context.Context, method, path, token string, body []byte) ([]byte, error) {
	var result []byte
	call := func() error {
		var bodyReader io.Reader
		if body != nil {
			bodyReader = bytes.NewReader(body)
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("http request: %w", err)
		}
		defer func() { _ = resp.Body.Close() }()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}
		if resp.StatusCode == http.StatusUnauthorized {
			// Token may have expired; force a fresh login next call.
			c.mu.Lock()
			c.token = ""
			c.mu.Unlock()
		}
		if resp.StatusCode >= 400 {
			return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, data)
		}
		result = data
		return nil
	}

	if c.breaker != nil {
		if err := c.breaker.Execute(call); err != nil {
			return nil, err
		}
		return result, nil
	}
	if err := call(); err != nil {
		return nil, err
	}
	return result, nil
}

func collaborator(err error) error {
	return fmt.Errorf("%w: %w", domain.ErrCollaborator, err)
}
