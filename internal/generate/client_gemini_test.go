package generate

import (
	"context"
	"testing"
	"time"
)

func TestGeminiClient_RequiresAPIKey(t *testing.T) {
	_, err := NewGeminiClientWithConfig(context.Background(), GeminiConfig{})
	if err == nil {
		t.Fatal("Expected error for empty API key")
	}
}

func TestGeminiClient_WithDeadline(t *testing.T) {
	cfg := DefaultGeminiConfig("test-key")
	cfg.Timeout = 30 * time.Second
	client, err := NewGeminiClientWithConfig(context.Background(), cfg)
	if err != nil {
		t.Fatalf("NewGeminiClientWithConfig failed: %v", err)
	}

	// A bare context gets the configured timeout applied.
	ctx, cancel := client.withDeadline(context.Background())
	defer cancel()
	deadline, ok := ctx.Deadline()
	if !ok {
		t.Fatal("Expected a deadline on the returned context")
	}
	if remaining := time.Until(deadline); remaining > 30*time.Second || remaining < 25*time.Second {
		t.Errorf("Deadline %v from now, want about 30s", remaining)
	}

	// A caller-supplied deadline is left alone.
	parent, parentCancel := context.WithTimeout(context.Background(), time.Minute)
	defer parentCancel()
	ctx2, cancel2 := client.withDeadline(parent)
	defer cancel2()
	d2, ok := ctx2.Deadline()
	if !ok {
		t.Fatal("Expected the parent deadline to survive")
	}
	pd, _ := parent.Deadline()
	if !d2.Equal(pd) {
		t.Errorf("Deadline = %v, want parent deadline %v", d2, pd)
	}
}
