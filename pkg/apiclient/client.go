// Package apiclient provides a small REST client for chronovmctl's
// governance commands, talking to a running chronovmd over the
// /api/v1/projects/{projectId} surface.
package apiclient

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/chronolab/chronovm/pkg/governance/audit"
	"github.com/chronolab/chronovm/pkg/governance/override"
	"github.com/chronolab/chronovm/pkg/governance/panel"
	"github.com/chronolab/chronovm/pkg/governance/template"
)

// Client is the ChronoVM governance API client.
type Client struct {
	baseURL    string
	httpClient *http.Client
	token      string
}

// New creates a new API client against baseURL.
func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// WithToken returns a copy of c authenticated with token.
func (c *Client) WithToken(token string) *Client {
	return &Client{baseURL: c.baseURL, httpClient: c.httpClient, token: token}
}

type envelope struct {
	Status    string          `json:"status"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
	Error     string          `json:"error,omitempty"`
}

func (c *Client) do(method, path string, body, result any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if resp.StatusCode >= 400 || env.Status == "error" {
		return &APIError{StatusCode: resp.StatusCode, Message: env.Error}
	}

	if result != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, result); err != nil {
			return fmt.Errorf("failed to decode response data: %w", err)
		}
	}
	return nil
}

// GetLayout fetches the cascaded layout for projectId, resolving against
// deviceId's override when deviceId is non-empty.
func (c *Client) GetLayout(projectId, deviceId string) (panel.ModeMap, error) {
	path := fmt.Sprintf("/api/v1/projects/%s/layout", projectId)
	if deviceId != "" {
		path += "?deviceId=" + deviceId
	}
	var result panel.ModeMap
	if err := c.do(http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// UpdateTemplateRequest mirrors the server's update request body.
type UpdateTemplateRequest struct {
	ModeChanges  panel.ModeMap `json:"modeChanges"`
	LockedPanels []panel.Id    `json:"lockedPanels"`
}

// UpdateTemplate applies modeChanges and lockedPanels to projectId's shared
// template and returns the resulting layout.
func (c *Client) UpdateTemplate(projectId string, req UpdateTemplateRequest) (*template.Layout, error) {
	path := fmt.Sprintf("/api/v1/projects/%s/template", projectId)
	var result template.Layout
	if err := c.do(http.MethodPut, path, req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// SetOverrideRequest mirrors the server's set-override request body.
type SetOverrideRequest struct {
	PanelId     panel.Id       `json:"panelId"`
	Mode        panel.ViewMode `json:"mode"`
	DeviceId    string         `json:"deviceId"`
	BaseVersion int            `json:"baseVersion"`
}

// SetOverride sets a single panel override for the authenticated caller.
func (c *Client) SetOverride(projectId string, req SetOverrideRequest) (*override.Override, error) {
	path := fmt.Sprintf("/api/v1/projects/%s/overrides", projectId)
	var result override.Override
	if err := c.do(http.MethodPut, path, req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ListAudit returns projectId's full audit log.
func (c *Client) ListAudit(projectId string) ([]audit.Entry, error) {
	path := fmt.Sprintf("/api/v1/projects/%s/audit", projectId)
	var result []audit.Entry
	if err := c.do(http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// Rollback republishes targetVersion's panel modes as the project's newest
// layout version.
func (c *Client) Rollback(projectId string, targetVersion int) (*template.Layout, error) {
	path := fmt.Sprintf("/api/v1/projects/%s/rollback", projectId)
	var result template.Layout
	if err := c.do(http.MethodPost, path, struct {
		TargetVersion int `json:"targetVersion"`
	}{TargetVersion: targetVersion}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
