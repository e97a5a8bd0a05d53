package oracle

import (
	"testing"
)

func TestStripCodeFences(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "no fences",
			input: `{"relevance": "direct"}`,
			want:  `{"relevance": "direct"}`,
		},
		{
			name:  "plain fences",
			input: "```\n{\"relevance\": \"direct\"}\n```",
			want:  `{"relevance": "direct"}`,
		},
		{
			name:  "json language tag",
			input: "```json\n{\"relevance\": \"direct\"}\n```",
			want:  `{"relevance": "direct"}`,
		},
		{
			name:  "surrounding whitespace",
			input: "\n\n```json\n{\"a\": 1}\n```\n\n",
			want:  `{"a": 1}`,
		},
		{
			name:  "prose outside fence is dropped",
			input: "```json\n{\"a\": 1}\n```\nHope this helps!",
			want:  `{"a": 1}`,
		},
		{
			name:  "multi-line body",
			input: "```json\n{\n  \"a\": 1\n}\n```",
			want:  "{\n  \"a\": 1\n}",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := StripCodeFences(tc.input); got != tc.want {
				t.Fatalf("StripCodeFences() got = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestUnmarshalFlexible_ObjectVariants(t *testing.T) {
	type judgment struct {
		Relevance string `json:"relevance"`
		Reasoning string `json:"reasoning,omitempty"`
	}

	tests := []struct {
		name  string
		input string
		want  judgment
	}{
		{
			name:  "valid json object",
			input: `{"relevance":"direct"}`,
			want:  judgment{Relevance: "direct"},
		},
		{
			name:  "unquoted key and single quotes",
			input: `{relevance: 'direct'}`,
			want:  judgment{Relevance: "direct"},
		},
		{
			name:  "trailing comma",
			input: `{"relevance":"direct",}`,
			want:  judgment{Relevance: "direct"},
		},
		{
			name:  "missing endbracket",
			input: `{"relevance":"direct`,
			want:  judgment{Relevance: "direct"},
		},
		{
			name:  "stringified invalid json object",
			input: `"{relevance: 'direct'}"`,
			want:  judgment{Relevance: "direct"},
		},
		{
			name:  "duplicate leading brace",
			input: "{\n{\n  \"relevance\": \"direct\"\n}\n",
			want:  judgment{Relevance: "direct"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var got judgment
			if err := UnmarshalFlexible(tc.input, &got); err != nil {
				t.Fatalf("UnmarshalFlexible() error = %v", err)
			}
			if got != tc.want {
				t.Fatalf("UnmarshalFlexible() got = %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestUnmarshalFlexible_Unrecoverable(t *testing.T) {
	type judgment struct {
		Relevance string `json:"relevance"`
	}

	var got judgment
	if err := UnmarshalFlexible("the task group supports the objective", &got); err == nil {
		t.Fatalf("UnmarshalFlexible() expected error for unrecoverable input")
	}
}

func TestDecode_FencedSloppyResponse(t *testing.T) {
	type judgment struct {
		Relevance string `json:"relevance"`
		Strength  string `json:"contribution_strength"`
	}

	raw := "```json\n{relevance: 'partial', contribution_strength: 'supporting',}\n```"
	var got judgment
	if err := Decode(raw, &got); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if got.Relevance != "partial" || got.Strength != "supporting" {
		t.Fatalf("Decode() got = %+v", got)
	}
}
