package generate

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestOllamaClient_CompleteWithSystem_SendsOptions(t *testing.T) {
	var captured OllamaRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("Expected POST, got %s", r.Method)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("Failed to decode request body: %v", err)
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"model": "codellama", "response": "import bpy\n", "done": true}`))
	}))
	defer server.Close()

	client := NewOllamaClientWithConfig(OllamaConfig{
		URL:         server.URL,
		Model:       "codellama",
		Temperature: 0.5,
		MaxTokens:   2048,
		Timeout:     5 * time.Second,
	})

	resp, err := client.CompleteWithSystem(context.Background(), "sys", "make a cube")
	if err != nil {
		t.Fatalf("CompleteWithSystem failed: %v", err)
	}
	if resp != "import bpy" {
		t.Errorf("Expected trimmed response, got %q", resp)
	}

	if captured.Stream {
		t.Error("Expected stream to be false")
	}
	if captured.System != "sys" {
		t.Errorf("Expected system prompt %q, got %q", "sys", captured.System)
	}
	if got := captured.Options["temperature"]; got != 0.5 {
		t.Errorf("Expected temperature 0.5, got %v", got)
	}
	// JSON numbers decode as float64.
	if got := captured.Options["num_predict"]; got != float64(2048) {
		t.Errorf("Expected num_predict 2048, got %v", got)
	}
}

func TestOllamaClient_Complete_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"model": "codellama", "error": "model not found"}`))
	}))
	defer server.Close()

	cfg := DefaultOllamaConfig()
	cfg.URL = server.URL
	client := NewOllamaClientWithConfig(cfg)

	_, err := client.Complete(context.Background(), "make a cube")
	if err == nil {
		t.Fatal("Expected error for API error response")
	}
}
