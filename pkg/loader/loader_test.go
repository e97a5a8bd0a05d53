package loader

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeDoc(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadDocument(t *testing.T) {
	dir := t.TempDir()
	loader := NewPlanLoader()
	ctx := context.Background()

	txt := writeDoc(t, dir, "plan.txt", "Our five year strategy.")
	md := writeDoc(t, dir, "plan.md", "# Roadmap\n\nQ1 tasks.")

	got, err := loader.LoadDocument(ctx, txt)
	if err != nil {
		t.Fatalf("load txt: %v", err)
	}
	if got != "Our five year strategy." {
		t.Errorf("txt content = %q", got)
	}

	got, err = loader.LoadDocument(ctx, md)
	if err != nil {
		t.Fatalf("load md: %v", err)
	}
	if !strings.HasPrefix(got, "# Roadmap") {
		t.Errorf("md content = %q", got)
	}
}

func TestLoadDocumentErrors(t *testing.T) {
	dir := t.TempDir()
	loader := NewPlanLoader()
	ctx := context.Background()

	if _, err := loader.LoadDocument(ctx, filepath.Join(dir, "missing.txt")); err == nil {
		t.Error("expected error for missing file")
	}

	xlsx := writeDoc(t, dir, "plan.xlsx", "binary")
	if _, err := loader.LoadDocument(ctx, xlsx); err == nil {
		t.Error("expected error for unsupported type")
	} else if !strings.Contains(err.Error(), "unsupported document type") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestLoadDocumentCaches(t *testing.T) {
	dir := t.TempDir()
	loader := NewPlanLoader()
	ctx := context.Background()

	path := writeDoc(t, dir, "plan.txt", "original")
	if _, err := loader.LoadDocument(ctx, path); err != nil {
		t.Fatalf("first load: %v", err)
	}

	// The second load must come from the cache, not the filesystem.
	if err := os.Remove(path); err != nil {
		t.Fatalf("remove: %v", err)
	}
	got, err := loader.LoadDocument(ctx, path)
	if err != nil {
		t.Fatalf("cached load: %v", err)
	}
	if got != "original" {
		t.Errorf("cached content = %q", got)
	}
}

func TestLoadPlansCombinesActionDocuments(t *testing.T) {
	dir := t.TempDir()
	loader := NewPlanLoader()
	ctx := context.Background()

	strategic := writeDoc(t, dir, "strategy.md", "Grow revenue by 20%.")
	a1 := writeDoc(t, dir, "sales.txt", "Sales action plan.")
	a2 := writeDoc(t, dir, "it.txt", "IT action plan.")

	strategicText, actionText, err := loader.LoadPlans(ctx, strategic, []string{a1, a2})
	if err != nil {
		t.Fatalf("LoadPlans: %v", err)
	}
	if strategicText != "Grow revenue by 20%." {
		t.Errorf("strategic = %q", strategicText)
	}
	want := "Sales action plan." + ActionPlanSeparator + "IT action plan."
	if actionText != want {
		t.Errorf("action = %q, want %q", actionText, want)
	}
}

func TestLoadPlansReportsFailingDocument(t *testing.T) {
	dir := t.TempDir()
	loader := NewPlanLoader()

	strategic := writeDoc(t, dir, "strategy.txt", "Strategy.")
	_, _, err := loader.LoadPlans(context.Background(), strategic, []string{
		filepath.Join(dir, "gone.txt"),
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "action plan gone.txt") {
		t.Errorf("error should name the failing document: %v", err)
	}
}

func TestDetectSectionBoundaries(t *testing.T) {
	tests := []struct {
		name          string
		text          string
		wantStrategic int
		wantAction    int
	}{
		{
			name:          "both sections",
			text:          "Acme Corp\nStrategic Plan 2026\nGoals follow\nAction Plan\nTask list",
			wantStrategic: 1,
			wantAction:    3,
		},
		{
			name:          "keyword inside sentence",
			text:          "Our mission is growth.\nThe implementation starts in Q2.",
			wantStrategic: 0,
			wantAction:    1,
		},
		{
			name:          "no action section",
			text:          "Vision statement\nMore vision",
			wantStrategic: 0,
			wantAction:    -1,
		},
		{
			name:          "nothing detected",
			text:          "Unrelated preamble\nBudget tables",
			wantStrategic: -1,
			wantAction:    -1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DetectSectionBoundaries(tt.text)
			if got.StrategicStart != tt.wantStrategic {
				t.Errorf("StrategicStart = %d, want %d", got.StrategicStart, tt.wantStrategic)
			}
			if got.ActionStart != tt.wantAction {
				t.Errorf("ActionStart = %d, want %d", got.ActionStart, tt.wantAction)
			}
		})
	}
}

func TestSplitCombined(t *testing.T) {
	t.Run("splits at detected action heading", func(t *testing.T) {
		text := "Strategic Plan\nGrow revenue.\nAction Plan\nHire two reps."
		strategic, action := SplitCombined(text)
		if strategic != "Strategic Plan\nGrow revenue." {
			t.Errorf("strategic = %q", strategic)
		}
		if action != "Action Plan\nHire two reps." {
			t.Errorf("action = %q", action)
		}
	})

	t.Run("falls back to halfway split", func(t *testing.T) {
		text := "line one\nline two\nline three\nline four"
		strategic, action := SplitCombined(text)
		if strategic != "line one\nline two" {
			t.Errorf("strategic = %q", strategic)
		}
		if action != "line three\nline four" {
			t.Errorf("action = %q", action)
		}
	})
}
