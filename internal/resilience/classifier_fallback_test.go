package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/parlance-ai/parlance/pkg/provider/llm"
	llmmock "github.com/parlance-ai/parlance/pkg/provider/llm/mock"
)

func TestClassifierFallback_PrimaryHealthy(t *testing.T) {
	primary := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: "OPT_OUT"},
	}
	f := NewClassifierFallback(primary, "primary", FallbackConfig{})

	resp, err := f.Complete(context.Background(), llm.CompletionRequest{
		Messages: []llm.Message{{Role: "user", Content: "STOP"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "OPT_OUT" {
		t.Errorf("content = %q, want OPT_OUT", resp.Content)
	}
	if len(primary.CompleteCalls) != 1 {
		t.Errorf("primary calls = %d, want 1", len(primary.CompleteCalls))
	}
}

func TestClassifierFallback_FailsOver(t *testing.T) {
	primary := &llmmock.Provider{CompleteErr: errors.New("rate limited")}
	backup := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: "INTERESTED"},
	}

	f := NewClassifierFallback(primary, "primary", FallbackConfig{})
	f.AddFallback("backup", backup)

	resp, err := f.Complete(context.Background(), llm.CompletionRequest{
		Messages: []llm.Message{{Role: "user", Content: "tell me more"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "INTERESTED" {
		t.Errorf("content = %q, want INTERESTED", resp.Content)
	}
}

func TestClassifierFallback_AllFail(t *testing.T) {
	primary := &llmmock.Provider{CompleteErr: errors.New("down")}
	f := NewClassifierFallback(primary, "primary", FallbackConfig{})

	_, err := f.Complete(context.Background(), llm.CompletionRequest{
		Messages: []llm.Message{{Role: "user", Content: "hi"}},
	})
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("error = %v, want ErrAllFailed", err)
	}
}
