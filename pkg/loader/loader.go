// Package loader reads strategic and action plan documents from disk
// and prepares their text for analysis. Plain text and markdown files
// are read directly; PDF files are extracted via pdftotext.
package loader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"
)

// ActionPlanSeparator joins the text of multiple action plan documents
// into a single body while keeping the document boundaries visible.
const ActionPlanSeparator = "\n\n--- ACTION PLAN DOCUMENT SEPARATOR ---\n\n"

// PlanLoader loads plan documents with per-path caching. Concurrent
// loads of the same path are collapsed into a single read.
type PlanLoader struct {
	cache   map[string]string
	cacheMu sync.RWMutex
	group   singleflight.Group
}

// NewPlanLoader creates a new document loader.
func NewPlanLoader() *PlanLoader {
	return &PlanLoader{
		cache: make(map[string]string),
	}
}

// LoadDocument returns the text content of a single plan document.
// Supported extensions are .txt, .md and .pdf.
func (l *PlanLoader) LoadDocument(ctx context.Context, path string) (string, error) {
	l.cacheMu.RLock()
	if cached, ok := l.cache[path]; ok {
		l.cacheMu.RUnlock()
		return cached, nil
	}
	l.cacheMu.RUnlock()

	result, err, _ := l.group.Do(path, func() (any, error) {
		l.cacheMu.RLock()
		if cached, ok := l.cache[path]; ok {
			l.cacheMu.RUnlock()
			return cached, nil
		}
		l.cacheMu.RUnlock()

		text, err := readDocument(ctx, path)
		if err != nil {
			return "", err
		}

		l.cacheMu.Lock()
		l.cache[path] = text
		l.cacheMu.Unlock()
		return text, nil
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

// LoadPlans loads the strategic plan and all action plan documents.
// Action plan texts are joined with ActionPlanSeparator.
func (l *PlanLoader) LoadPlans(ctx context.Context, strategicPath string, actionPaths []string) (string, string, error) {
	strategicText, err := l.LoadDocument(ctx, strategicPath)
	if err != nil {
		return "", "", fmt.Errorf("strategic plan: %w", err)
	}

	actionTexts := make([]string, 0, len(actionPaths))
	for _, path := range actionPaths {
		text, err := l.LoadDocument(ctx, path)
		if err != nil {
			return "", "", fmt.Errorf("action plan %s: %w", filepath.Base(path), err)
		}
		actionTexts = append(actionTexts, text)
	}

	return strategicText, strings.Join(actionTexts, ActionPlanSeparator), nil
}

func readDocument(ctx context.Context, path string) (string, error) {
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("document not found: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".md":
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("read document: %w", err)
		}
		return string(data), nil
	case ".pdf":
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("read document: %w", err)
		}
		text, err := extractPDFText(ctx, data)
		if err != nil {
			return "", fmt.Errorf("extract pdf text: %w", err)
		}
		return text, nil
	default:
		return "", fmt.Errorf("unsupported document type: %s", filepath.Ext(path))
	}
}
