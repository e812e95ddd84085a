package httpc

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestAPI_GetJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/status" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Write([]byte(`{"cycle":12}`))
	}))
	defer srv.Close()

	var out struct {
		Cycle int `json:"cycle"`
	}
	if err := NewAPI(srv.URL+"/").GetJSON(context.Background(), "/api/status", &out); err != nil {
		t.Fatalf("GetJSON error: %v", err)
	}
	if out.Cycle != 12 {
		t.Errorf("Cycle = %d, want 12", out.Cycle)
	}
}

func TestAPI_SendJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("request = %s %s", r.Method, r.Header.Get("Content-Type"))
		}
		var in map[string]bool
		json.NewDecoder(r.Body).Decode(&in)
		json.NewEncoder(w).Encode(map[string]bool{"echo": in["enabled"]})
	}))
	defer srv.Close()

	var out map[string]bool
	err := NewAPI(srv.URL).SendJSON(context.Background(), http.MethodPost, "/api/eyes", map[string]bool{"enabled": true}, &out)
	if err != nil {
		t.Fatalf("SendJSON error: %v", err)
	}
	if !out["echo"] {
		t.Errorf("out = %v", out)
	}
}

func TestAPI_StatusError(t *testing.T) {
	tests := []struct {
		name    string
		code    int
		body    string
		wantMsg string
	}{
		{"json error", 409, `{"error":"session: transport endpoint incomplete"}`, "session: transport endpoint incomplete"},
		{"plain text", 400, "invalid body\n", "invalid body"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.code)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			err := NewAPI(srv.URL).SendJSON(context.Background(), http.MethodPost, "/x", nil, nil)
			var se *StatusError
			if !errors.As(err, &se) {
				t.Fatalf("error = %v, want *StatusError", err)
			}
			if se.Code != tt.code || se.Message != tt.wantMsg {
				t.Errorf("StatusError = %+v, want %d %q", se, tt.code, tt.wantMsg)
			}
		})
	}
}

func TestNewClient(t *testing.T) {
	c := NewClient(DefaultTimeout)
	if c.Timeout != DefaultTimeout {
		t.Errorf("Timeout = %v, want %v", c.Timeout, DefaultTimeout)
	}
	if c.Transport == nil {
		t.Error("Transport should be set")
	}
}
