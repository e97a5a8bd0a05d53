package oracle

import (
	"context"
	"testing"
)

type stubClient struct {
	calls    int
	response string
}

func (s *stubClient) GenerateCompletion(
	ctx context.Context,
	prompt string,
	opts ...GenerateOption,
) (string, error) {
	s.calls++
	return s.response, nil
}

func (s *stubClient) GenerateCompletionWithFormat(
	ctx context.Context,
	name string,
	description string,
	prompt string,
	out any,
	opts ...GenerateOption,
) error {
	s.calls++
	return nil
}

func TestCachedClientReplaysCompletions(t *testing.T) {
	stub := &stubClient{response: `{"relevance": "direct"}`}
	client := NewCachedClient(stub)
	ctx := context.Background()

	first, err := client.GenerateCompletion(ctx, "judge this pair", WithModel("gpt-4o-mini"))
	if err != nil {
		t.Fatalf("GenerateCompletion() error = %v", err)
	}
	second, err := client.GenerateCompletion(ctx, "judge this pair", WithModel("gpt-4o-mini"))
	if err != nil {
		t.Fatalf("GenerateCompletion() error = %v", err)
	}

	if first != second || first != stub.response {
		t.Fatalf("responses differ: %q vs %q", first, second)
	}
	if stub.calls != 1 {
		t.Fatalf("backend calls = %d, want 1", stub.calls)
	}
	if hits, misses := client.HitRate(); hits != 1 || misses != 1 {
		t.Fatalf("HitRate() = %d/%d, want 1/1", hits, misses)
	}
	if !client.WasCached("gpt-4o-mini", "judge this pair") {
		t.Fatalf("WasCached() = false after a completed call")
	}
}

func TestCachedClientKeysOnModelAndPrompt(t *testing.T) {
	stub := &stubClient{response: "ok"}
	client := NewCachedClient(stub)
	ctx := context.Background()

	if _, err := client.GenerateCompletion(ctx, "p", WithModel("a")); err != nil {
		t.Fatalf("GenerateCompletion() error = %v", err)
	}
	if _, err := client.GenerateCompletion(ctx, "p", WithModel("b")); err != nil {
		t.Fatalf("GenerateCompletion() error = %v", err)
	}
	if _, err := client.GenerateCompletion(ctx, "q", WithModel("a")); err != nil {
		t.Fatalf("GenerateCompletion() error = %v", err)
	}

	if stub.calls != 3 {
		t.Fatalf("backend calls = %d, want 3 distinct keys", stub.calls)
	}
}

func TestCachedClientFormatCallsPassThrough(t *testing.T) {
	stub := &stubClient{}
	client := NewCachedClient(stub)
	ctx := context.Background()

	var out struct{}
	for i := 0; i < 2; i++ {
		if err := client.GenerateCompletionWithFormat(ctx, "n", "d", "p", &out); err != nil {
			t.Fatalf("GenerateCompletionWithFormat() error = %v", err)
		}
	}
	if stub.calls != 2 {
		t.Fatalf("backend calls = %d, want 2 (format calls are not cached)", stub.calls)
	}
}
