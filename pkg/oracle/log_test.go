package oracle

import (
	"testing"
)

func TestCallLogStats(t *testing.T) {
	log := NewCallLog()
	log.Record(CallEntry{
		Caller:       "alignment",
		Layer:        2,
		Model:        "gpt-4o-mini",
		InputTokens:  1000,
		OutputTokens: 500,
		LatencyMs:    200,
	})
	log.Record(CallEntry{
		Caller:       "alignment",
		Layer:        2,
		Model:        "gpt-4o-mini",
		InputTokens:  1000,
		OutputTokens: 500,
		LatencyMs:    1,
		Cached:       true,
	})
	log.Record(CallEntry{
		Caller:       "benchmark",
		Layer:        4,
		Model:        "llama3.1",
		InputTokens:  300,
		OutputTokens: 100,
		LatencyMs:    400,
		Error:        "context deadline exceeded",
	})

	stats := log.Stats()

	if stats.TotalCalls != 3 {
		t.Fatalf("TotalCalls = %d, want 3", stats.TotalCalls)
	}
	if stats.CachedCalls != 1 {
		t.Fatalf("CachedCalls = %d, want 1", stats.CachedCalls)
	}
	if stats.TotalInputTokens != 2300 || stats.TotalOutput != 1100 {
		t.Fatalf("token totals = %d/%d, want 2300/1100", stats.TotalInputTokens, stats.TotalOutput)
	}
	if stats.TotalTokens != 3400 {
		t.Fatalf("TotalTokens = %d, want 3400", stats.TotalTokens)
	}
	if stats.TotalLatencyMs != 601 {
		t.Fatalf("TotalLatencyMs = %d, want 601", stats.TotalLatencyMs)
	}
	// Average latency skips cached replays: (200 + 400) / 2.
	if stats.AvgLatencyMs != 300.0 {
		t.Fatalf("AvgLatencyMs = %v, want 300", stats.AvgLatencyMs)
	}
	// Two gpt-4o-mini calls at 0.00015/1K in, 0.0006/1K out; llama is free.
	wantCost := 2 * (1.0*0.00015 + 0.5*0.0006)
	if stats.EstimatedCostUSD != wantCost {
		t.Fatalf("EstimatedCostUSD = %v, want %v", stats.EstimatedCostUSD, wantCost)
	}

	layer2 := stats.PerLayer[2]
	if layer2.Calls != 2 || layer2.Errors != 0 {
		t.Fatalf("layer 2 stats = %+v", layer2)
	}
	layer4 := stats.PerLayer[4]
	if layer4.Calls != 1 || layer4.Errors != 1 {
		t.Fatalf("layer 4 stats = %+v", layer4)
	}
	mini := stats.PerModel["gpt-4o-mini"]
	if mini.Calls != 2 || mini.InputTokens != 2000 {
		t.Fatalf("gpt-4o-mini stats = %+v", mini)
	}
}

func TestCallLogEntriesNewestFirst(t *testing.T) {
	log := NewCallLog()
	log.Record(CallEntry{Caller: "first"})
	log.Record(CallEntry{Caller: "second"})

	entries := log.Entries()
	if len(entries) != 2 {
		t.Fatalf("len(entries) = %d, want 2", len(entries))
	}
	if entries[0].Caller != "second" || entries[1].Caller != "first" {
		t.Fatalf("entries out of order: %q, %q", entries[0].Caller, entries[1].Caller)
	}
	if entries[0].Timestamp.IsZero() {
		t.Fatalf("Record() should fill a zero timestamp")
	}
}

func TestCostOfPrefixMatch(t *testing.T) {
	// gpt-4o-mini must match before the shorter gpt-4o prefix.
	mini := costOf("gpt-4o-mini-2024-07-18", 1000, 1000)
	if mini != 0.00015+0.0006 {
		t.Fatalf("gpt-4o-mini cost = %v", mini)
	}
	full := costOf("gpt-4o-2024-08-06", 1000, 1000)
	if full != 0.0025+0.01 {
		t.Fatalf("gpt-4o cost = %v", full)
	}
	if c := costOf("llama3.1:8b", 1000, 1000); c != 0 {
		t.Fatalf("unknown model cost = %v, want 0", c)
	}
}
