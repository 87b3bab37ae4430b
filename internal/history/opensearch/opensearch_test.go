package opensearch

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/loykin/drowsy/internal/history"
)

func TestOpenSearchSink_Send(t *testing.T) {
	var receivedBody []byte
	var receivedURL string
	var receivedMethod string
	var contentType string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		receivedMethod = r.Method
		receivedURL = r.URL.Path
		contentType = r.Header.Get("Content-Type")
		receivedBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"_id":"test","_index":"test-index","result":"created"}`))
	}))
	defer server.Close()

	sink := New(server.URL, "test-index")

	closedAt := time.Now().Add(-time.Second).UTC()
	event := history.Event{
		Type:       history.EventSlowClosure,
		OccurredAt: time.Now().UTC(),
		Record:     history.Record{SessionID: "cabin-3", ClosedAt: closedAt, DurationMS: 900},
	}
	if err := sink.Send(context.Background(), event); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if receivedMethod != http.MethodPost {
		t.Errorf("Expected POST method, got: %s", receivedMethod)
	}
	if receivedURL != "/test-index/_doc" {
		t.Errorf("Expected URL path /test-index/_doc, got: %s", receivedURL)
	}
	if contentType != "application/json" {
		t.Errorf("Expected JSON content type, got: %s", contentType)
	}

	var receivedEvent map[string]any
	if err := json.Unmarshal(receivedBody, &receivedEvent); err != nil {
		t.Fatalf("Failed to parse received JSON: %v", err)
	}
	if receivedEvent["type"] != string(history.EventSlowClosure) {
		t.Errorf("Expected type %s, got: %v", history.EventSlowClosure, receivedEvent["type"])
	}
	record, ok := receivedEvent["record"].(map[string]any)
	if !ok {
		t.Fatalf("Expected record in event, got: %v", receivedEvent)
	}
	if record["session_id"] != "cabin-3" || record["duration_ms"] != float64(900) {
		t.Errorf("unexpected record: %v", record)
	}
	if _, ok := record["closed_at"]; !ok {
		t.Errorf("closed_at missing: %v", record)
	}
	if _, ok := record["state"]; ok {
		t.Errorf("empty state should be omitted: %v", record)
	}
}

func TestOpenSearchSink_OmitsZeroClosedAt(t *testing.T) {
	var body []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	e := history.Event{Type: history.EventPresence, OccurredAt: time.Now(), Record: history.Record{SessionID: "x", State: "idle"}}
	if err := New(server.URL, "").Send(context.Background(), e); err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(body), "closed_at") {
		t.Fatalf("zero closed_at should be omitted: %s", body)
	}
}

func TestOpenSearchSink_SendError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"bad request"}`))
	}))
	defer server.Close()

	sink := New(server.URL, "test-index")
	event := history.Event{
		Type:       history.EventStateChange,
		OccurredAt: time.Now().UTC(),
		Record:     history.Record{SessionID: "x", State: "drowsy"},
	}
	err := sink.Send(context.Background(), event)
	if err == nil {
		t.Fatal("Expected error, got nil")
	}
	if !strings.Contains(err.Error(), "opensearch sink status 400") {
		t.Errorf("Expected status error message, got: %v", err)
	}
}

func TestOpenSearchSink_URLConstruction(t *testing.T) {
	tests := []struct {
		name    string
		baseURL string
		index   string
		want    string
	}{
		{"Basic URL", "http://localhost:9200", "logs", "/logs/_doc"},
		{"Default index", "http://localhost:9200", "", "/" + DefaultIndex + "/_doc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var receivedURL string
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				receivedURL = r.URL.String()
				w.WriteHeader(http.StatusCreated)
			}))
			defer server.Close()

			sink := New(tt.baseURL+"/", tt.index)
			if strings.HasSuffix(sink.baseURL, "/") {
				t.Fatalf("trailing slash not trimmed: %s", sink.baseURL)
			}
			sink.baseURL = server.URL

			event := history.Event{Type: history.EventPresence, OccurredAt: time.Now()}
			_ = sink.Send(context.Background(), event)

			if receivedURL != tt.want {
				t.Errorf("Expected URL path %s, got: %s", tt.want, receivedURL)
			}
		})
	}
}
