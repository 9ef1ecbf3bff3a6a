package resilience

import (
	"errors"
	"testing"
	"time"
)

func twoProviderGroup() *FallbackGroup[string] {
	fg := NewFallbackGroup("openai", "openai", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fg.AddFallback("backup", "backup")
	return fg
}

func TestFallbackGroup_PrimaryServes(t *testing.T) {
	fg := twoProviderGroup()

	var served string
	err := fg.Execute(func(v string) error {
		served = v
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if served != "openai" {
		t.Fatalf("served by %q, want the primary", served)
	}
}

func TestFallbackGroup_PrimaryFailureFallsBack(t *testing.T) {
	fg := twoProviderGroup()

	var served string
	err := fg.Execute(func(v string) error {
		if v == "openai" {
			return errProviderDown
		}
		served = v
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if served != "backup" {
		t.Fatalf("served by %q, want the fallback", served)
	}
}

func TestFallbackGroup_AllFail(t *testing.T) {
	fg := twoProviderGroup()

	err := fg.Execute(func(string) error {
		return errProviderDown
	})
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}

func TestFallbackGroup_OpenBreakerSkipsPrimary(t *testing.T) {
	fg := NewFallbackGroup("openai", "openai", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{
			MaxFailures:  2,
			ResetTimeout: time.Hour,
		},
	})
	fg.AddFallback("backup", "backup")

	// Trip the primary's breaker.
	for range 2 {
		_ = fg.Execute(func(v string) error {
			if v == "openai" {
				return errProviderDown
			}
			return nil
		})
	}

	// With the primary open, the group must route straight to the fallback.
	var served string
	err := fg.Execute(func(v string) error {
		served = v
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if served != "backup" {
		t.Fatalf("served by %q, want backup while the primary circuit is open", served)
	}
}

func TestExecuteWithResult_Primary(t *testing.T) {
	fg := twoProviderGroup()

	handle, err := ExecuteWithResult(fg, func(v string) (string, error) {
		return "handle-" + v, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if handle != "handle-openai" {
		t.Fatalf("handle = %q, want handle-openai", handle)
	}
}

func TestExecuteWithResult_Failover(t *testing.T) {
	fg := twoProviderGroup()

	handle, err := ExecuteWithResult(fg, func(v string) (string, error) {
		if v == "openai" {
			return "", errProviderDown
		}
		return "handle-" + v, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if handle != "handle-backup" {
		t.Fatalf("handle = %q, want handle-backup", handle)
	}
}

func TestExecuteWithResult_AllFail(t *testing.T) {
	fg := NewFallbackGroup("openai", "openai", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})

	_, err := ExecuteWithResult(fg, func(string) (string, error) {
		return "", errProviderDown
	})
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}
