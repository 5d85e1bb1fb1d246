package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestAddUUIDSendsAPIKey(t *testing.T) {
	var gotKey, gotPath string
	var gotBody uuidPayload

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("X-API-Key")
		gotPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode(Result{Success: true})
	}))
	defer ts.Close()

	c := NewPanelClient()
	panel := Panel{APIURL: ts.URL, APIKey: "test-key"}

	res := c.AddUUID(context.Background(), panel, "abc-123")
	if !res.Success {
		t.Fatalf("AddUUID failed: %s", res.Message)
	}
	if gotKey != "test-key" {
		t.Errorf("X-API-Key = %q, want test-key", gotKey)
	}
	if gotPath != "/api/uuid/add" {
		t.Errorf("path = %q, want /api/uuid/add", gotPath)
	}
	if gotBody.UUID != "abc-123" {
		t.Errorf("payload uuid = %q, want abc-123", gotBody.UUID)
	}
}

func TestValidateUUIDSuccessAndValidAreIndependent(t *testing.T) {
	// The panel answers, but reports the credential absent: the call
	// succeeded while the verdict is negative.
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success": true,
			"valid":   false,
		})
	}))
	defer ts.Close()

	c := NewPanelClient()
	res := c.ValidateUUID(context.Background(), Panel{APIURL: ts.URL, APIKey: "k"}, "abc")
	if !res.Success {
		t.Fatalf("expected Success=true, got message %q", res.Message)
	}
	if res.Valid {
		t.Error("expected Valid=false")
	}
}

func TestUnreachablePanelReturnsFailure(t *testing.T) {
	c := NewPanelClient()
	panel := Panel{APIURL: "http://127.0.0.1:1", APIKey: "k"}

	res := c.AddUUID(context.Background(), panel, "abc")
	if res.Success {
		t.Error("expected Success=false for unreachable panel")
	}
	if res.Message == "" {
		t.Error("expected a failure message")
	}
}

func TestNon2xxIsNormalizedToFailure(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{"error": "panel exploded"})
	}))
	defer ts.Close()

	c := NewPanelClient()
	res := c.RemoveUUID(context.Background(), Panel{APIURL: ts.URL, APIKey: "k"}, "abc")
	if res.Success {
		t.Error("expected Success=false for 500 response")
	}
	if res.Message == "" {
		t.Error("expected the error body to be surfaced in the message")
	}
}

func TestUnconfiguredPanelRefusedLocally(t *testing.T) {
	c := NewPanelClient()

	tests := []struct {
		name  string
		panel Panel
	}{
		{"no url", Panel{APIKey: "k"}},
		{"no key", Panel{APIURL: "http://example.com"}},
		{"neither", Panel{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := c.AddUUID(context.Background(), tt.panel, "abc")
			if res.Success {
				t.Error("expected Success=false for unconfigured panel")
			}
		})
	}
}

func TestListUUIDs(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/uuids" {
			t.Errorf("path = %q, want /api/uuids", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success": true,
			"uuids":   []string{"a", "b"},
		})
	}))
	defer ts.Close()

	c := NewPanelClient()
	res := c.ListUUIDs(context.Background(), Panel{APIURL: ts.URL, APIKey: "k"})
	if !res.Success {
		t.Fatalf("ListUUIDs failed: %s", res.Message)
	}
	if len(res.UUIDs) != 2 {
		t.Errorf("got %d uuids, want 2", len(res.UUIDs))
	}
}

func TestTrailingSlashInAPIURL(t *testing.T) {
	var gotPath string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewEncoder(w).Encode(Result{Success: true})
	}))
	defer ts.Close()

	c := NewPanelClient()
	res := c.Status(context.Background(), Panel{APIURL: ts.URL + "/", APIKey: "k"})
	if !res.Success {
		t.Fatalf("Status failed: %s", res.Message)
	}
	if gotPath != "/api/status" {
		t.Errorf("path = %q, want /api/status (no double slash)", gotPath)
	}
}
