package oracle

import (
	"math"
	"sync"
	"time"

	"github.com/pkoukk/tiktoken-go"
)

// Estimated cost per 1K tokens (USD) by model family, prefix-matched.
var modelCostPer1K = []struct {
	prefix string
	input  float64
	output float64
}{
	{"gpt-4o-mini", 0.00015, 0.0006},
	{"gpt-4o", 0.0025, 0.01},
	{"gpt-4-turbo", 0.01, 0.03},
	{"gpt-4", 0.03, 0.06},
}

// CallEntry records one oracle call for later inspection.
type CallEntry struct {
	Timestamp    time.Time `json:"timestamp"`
	Caller       string    `json:"caller"`
	Prompt       string    `json:"prompt"`
	Response     string    `json:"response"`
	Error        string    `json:"error,omitempty"`
	Layer        int       `json:"layer"`
	InputTokens  int       `json:"input_tokens"`
	OutputTokens int       `json:"output_tokens"`
	LatencyMs    int64     `json:"latency_ms"`
	Model        string    `json:"model"`
	Cached       bool      `json:"cached"`
}

// LayerStats aggregates calls for one pipeline layer.
type LayerStats struct {
	Calls        int   `json:"calls"`
	InputTokens  int   `json:"input_tokens"`
	OutputTokens int   `json:"output_tokens"`
	LatencyMs    int64 `json:"latency_ms"`
	Errors       int   `json:"errors"`
}

// ModelStats aggregates calls for one model.
type ModelStats struct {
	Calls        int `json:"calls"`
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Stats is the aggregate view over all logged calls.
type Stats struct {
	TotalCalls       int                   `json:"total_calls"`
	CachedCalls      int                   `json:"cached_calls"`
	TotalInputTokens int                   `json:"total_input_tokens"`
	TotalOutput      int                   `json:"total_output_tokens"`
	TotalTokens      int                   `json:"total_tokens"`
	EstimatedCostUSD float64               `json:"estimated_cost_usd"`
	TotalLatencyMs   int64                 `json:"total_latency_ms"`
	AvgLatencyMs     float64               `json:"avg_latency_ms"`
	PerLayer         map[int]LayerStats    `json:"per_layer"`
	PerModel         map[string]ModelStats `json:"per_model"`
}

// CallLog is an in-memory record of every oracle call made during one
// analysis session. It is created per session and injected where needed,
// never shared across sessions.
type CallLog struct {
	mu      sync.Mutex
	entries []CallEntry
}

// NewCallLog creates an empty call log.
func NewCallLog() *CallLog {
	return &CallLog{}
}

// Record appends an entry. A zero Timestamp is filled with the current time.
func (l *CallLog) Record(e CallEntry) {
	if l == nil {
		return
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, e)
}

// Entries returns all recorded calls, newest first.
func (l *CallLog) Entries() []CallEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]CallEntry, len(l.entries))
	for i, e := range l.entries {
		out[len(l.entries)-1-i] = e
	}
	return out
}

// Stats aggregates token, latency and cost figures across all calls.
func (l *CallLog) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	stats := Stats{
		PerLayer: make(map[int]LayerStats),
		PerModel: make(map[string]ModelStats),
	}
	var nonCachedLatency int64
	nonCachedCalls := 0

	for _, e := range l.entries {
		stats.TotalCalls++
		if e.Cached {
			stats.CachedCalls++
		} else {
			nonCachedCalls++
			nonCachedLatency += e.LatencyMs
		}
		stats.TotalInputTokens += e.InputTokens
		stats.TotalOutput += e.OutputTokens
		stats.TotalLatencyMs += e.LatencyMs
		stats.EstimatedCostUSD += costOf(e.Model, e.InputTokens, e.OutputTokens)

		if e.Layer > 0 {
			ls := stats.PerLayer[e.Layer]
			ls.Calls++
			ls.InputTokens += e.InputTokens
			ls.OutputTokens += e.OutputTokens
			ls.LatencyMs += e.LatencyMs
			if e.Error != "" {
				ls.Errors++
			}
			stats.PerLayer[e.Layer] = ls
		}
		if e.Model != "" {
			ms := stats.PerModel[e.Model]
			ms.Calls++
			ms.InputTokens += e.InputTokens
			ms.OutputTokens += e.OutputTokens
			stats.PerModel[e.Model] = ms
		}
	}

	stats.TotalTokens = stats.TotalInputTokens + stats.TotalOutput
	if nonCachedCalls > 0 {
		stats.AvgLatencyMs = math.Round(float64(nonCachedLatency)/float64(nonCachedCalls)*10) / 10
	}
	stats.EstimatedCostUSD = math.Round(stats.EstimatedCostUSD*1e6) / 1e6
	return stats
}

func costOf(model string, inputTokens, outputTokens int) float64 {
	for _, entry := range modelCostPer1K {
		if len(model) >= len(entry.prefix) && model[:len(entry.prefix)] == entry.prefix {
			return float64(inputTokens)/1000.0*entry.input + float64(outputTokens)/1000.0*entry.output
		}
	}
	return 0
}

// EstimateTokens counts tokens with the o200k_base encoding, used when the
// backend reports no usage figures. Falls back to a length/4 estimate if the
// encoding cannot be loaded.
func EstimateTokens(text string) int {
	enc, err := tiktoken.GetEncoding("o200k_base")
	if err != nil {
		return len(text) / 4
	}
	return len(enc.Encode(text, nil, nil))
}
