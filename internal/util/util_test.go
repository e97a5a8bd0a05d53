package util

import (
	"context"
	"errors"
	"testing"
)

func TestRetryReturnsFirstSuccess(t *testing.T) {
	calls := 0
	got, err := Retry(3, func() (int, error) {
		calls++
		if calls < 2 {
			return 0, errors.New("transient")
		}
		return 42, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 42 || calls != 2 {
		t.Errorf("got %d after %d calls", got, calls)
	}
}

func TestRetryErrExhaustsAttempts(t *testing.T) {
	calls := 0
	wantErr := errors.New("still broken")
	err := RetryErr(3, func() error {
		calls++
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Errorf("err = %v, want %v", err, wantErr)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetryErrWithContextStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := RetryErrWithContext(ctx, 5, func(context.Context) error {
		calls++
		cancel()
		return errors.New("transient")
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestSanitizePostgresText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"clean", "Strategic Plan 2026", "Strategic Plan 2026"},
		{"nul bytes", "plan\x00text", "plantext"},
		{"invalid utf8", "plan\xff\xfetext", "plantext"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizePostgresText(tt.in); got != tt.want {
				t.Errorf("SanitizePostgresText(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
