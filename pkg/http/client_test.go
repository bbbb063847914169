package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestPostJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.Header.Get("Content-Type") != "application/json" {
			http.Error(w, "bad request shape", http.StatusBadRequest)
			return
		}
		var in struct {
			Method string `json:"method"`
		}
		_ = json.NewDecoder(r.Body).Decode(&in)
		_ = json.NewEncoder(w).Encode(map[string]string{"echo": in.Method})
	}))
	defer srv.Close()

	c := NewClient(WithTimeout(time.Second))
	var out struct {
		Echo string `json:"echo"`
	}
	if err := c.PostJSON(context.Background(), srv.URL, map[string]string{"method": "getHealth"}, &out); err != nil {
		t.Fatalf("post: %v", err)
	}
	if out.Echo != "getHealth" {
		t.Fatalf("reply %+v", out)
	}
}

func TestPostJSONStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	err := NewClient().PostJSON(context.Background(), srv.URL, struct{}{}, nil)
	if err == nil || !strings.Contains(err.Error(), "429") || !strings.Contains(err.Error(), "rate limited") {
		t.Fatalf("err %v", err)
	}
}
