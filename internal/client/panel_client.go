package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
)

// PanelClient is a thin authenticated wrapper over the external proxy
// panel's admin API. Every server group carries its own API URL and key.
//
// All failures (network errors, non-2xx statuses, undecodable bodies) are
// normalized into the returned result value. This layer never surfaces an
// error to the caller.
type PanelClient struct {
	httpClient *http.Client
}

// NewPanelClient creates a new panel client.
func NewPanelClient() *PanelClient {
	return &PanelClient{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Panel holds the per-group connection details for one panel instance.
type Panel struct {
	APIURL string
	APIKey string
}

// Configured reports whether both the URL and the key are present. Callers
// should skip panel operations entirely for unconfigured panels.
func (p Panel) Configured() bool {
	return p.APIURL != "" && p.APIKey != ""
}

// Result is the uniform outcome of a panel call. Success=false means the
// call itself failed; operation-specific verdicts ride on the embedding
// types.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// ValidateResult reports whether a credential is still present on the panel.
// Valid is only meaningful when Success is true: Success=false means the
// panel could not be asked, which is a different condition from the panel
// reporting the credential absent.
type ValidateResult struct {
	Result
	Valid bool `json:"valid"`
}

// ListResult carries the credentials currently registered on the panel.
type ListResult struct {
	Result
	UUIDs []string `json:"uuids,omitempty"`
}

// StatusResult carries panel health details.
type StatusResult struct {
	Result
	Version string `json:"version,omitempty"`
	Users   int    `json:"users,omitempty"`
}

type uuidPayload struct {
	UUID string `json:"uuid"`
}

// Status checks panel health. GET /api/status
func (c *PanelClient) Status(ctx context.Context, panel Panel) StatusResult {
	var out StatusResult
	body, res := c.call(ctx, panel, http.MethodGet, "/api/status", nil)
	if !res.Success {
		out.Result = res
		return out
	}
	if err := json.Unmarshal(body, &out); err != nil {
		out.Result = failure(fmt.Sprintf("decode status response: %v", err))
	}
	return out
}

// ListUUIDs lists the credentials registered on the panel. GET /api/uuids
func (c *PanelClient) ListUUIDs(ctx context.Context, panel Panel) ListResult {
	var out ListResult
	body, res := c.call(ctx, panel, http.MethodGet, "/api/uuids", nil)
	if !res.Success {
		out.Result = res
		return out
	}
	if err := json.Unmarshal(body, &out); err != nil {
		out.Result = failure(fmt.Sprintf("decode uuid list: %v", err))
	}
	return out
}

// AddUUID registers a credential with the panel. POST /api/uuid/add
func (c *PanelClient) AddUUID(ctx context.Context, panel Panel, uuid string) Result {
	log.Printf("[PanelClient] Registering credential with panel (uuid: %s)", uuid)
	return c.post(ctx, panel, "/api/uuid/add", uuid)
}

// RemoveUUID removes a credential from the panel. POST /api/uuid/remove
func (c *PanelClient) RemoveUUID(ctx context.Context, panel Panel, uuid string) Result {
	log.Printf("[PanelClient] Removing credential from panel (uuid: %s)", uuid)
	return c.post(ctx, panel, "/api/uuid/remove", uuid)
}

// ValidateUUID asks the panel whether a credential is still present and
// enabled. POST /api/uuid/validate
func (c *PanelClient) ValidateUUID(ctx context.Context, panel Panel, uuid string) ValidateResult {
	var out ValidateResult
	body, res := c.call(ctx, panel, http.MethodPost, "/api/uuid/validate", uuidPayload{UUID: uuid})
	if !res.Success {
		out.Result = res
		return out
	}
	if err := json.Unmarshal(body, &out); err != nil {
		out.Result = failure(fmt.Sprintf("decode validate response: %v", err))
	}
	return out
}

func (c *PanelClient) post(ctx context.Context, panel Panel, path, uuid string) Result {
	body, res := c.call(ctx, panel, http.MethodPost, path, uuidPayload{UUID: uuid})
	if !res.Success {
		return res
	}
	var out Result
	if err := json.Unmarshal(body, &out); err != nil {
		return failure(fmt.Sprintf("decode response: %v", err))
	}
	return out
}

// call performs a single request (one attempt, no retry) and normalizes
// every transport-level failure into the returned Result. On success the
// raw body is returned for operation-specific decoding.
func (c *PanelClient) call(ctx context.Context, panel Panel, method, path string, payload interface{}) ([]byte, Result) {
	if !panel.Configured() {
		return nil, failure("panel api url or key not configured")
	}

	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, failure(fmt.Sprintf("marshal request: %v", err))
		}
		reqBody = bytes.NewReader(data)
	}

	url := strings.TrimSuffix(panel.APIURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return nil, failure(fmt.Sprintf("create request: %v", err))
	}
	req.Header.Set("X-API-Key", panel.APIKey)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, failure(fmt.Sprintf("panel unreachable: %v", err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, failure(fmt.Sprintf("read response: %v", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, failure(fmt.Sprintf("panel returned status %d: %s", resp.StatusCode, errorMessage(respBody)))
	}

	return respBody, Result{Success: true}
}

func failure(message string) Result {
	return Result{Success: false, Message: message}
}

// errorMessage extracts a human-readable message from an error-shaped body
// ({message} or {error}), falling back to the raw body.
func errorMessage(body []byte) string {
	var e struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &e); err == nil {
		if e.Message != "" {
			return e.Message
		}
		if e.Error != "" {
			return e.Error
		}
	}
	return strings.TrimSpace(string(body))
}
