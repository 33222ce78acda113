// Package template merges submitted code into stored per-language harnesses.
package template

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/Harsh-BH/sentinel-judge/internal/domain"
	"github.com/Harsh-BH/sentinel-judge/internal/repository"
)

// Markers are the accepted placeholder spellings, one per comment syntax.
var Markers = []string{
	"// USER_CODE_PLACEHOLDER",
	"# USER_CODE_PLACEHOLDER",
	"/* USER_CODE_PLACEHOLDER */",
}

// Merger combines stored templates with user code.
type Merger struct {
	snippets repository.SnippetStore
	logger   *zap.Logger
}

// NewMerger creates a Merger backed by the given snippet store.
func NewMerger(snippets repository.SnippetStore, logger *zap.Logger) *Merger {
	return &Merger{
		snippets: snippets,
		logger:   logger,
	}
}

// Merge returns the final compilable unit for (problem, lang).
// Without a stored template the user code is returned unchanged. A template
// without any marker is returned as is and the user code is dropped.
func (m *Merger) Merge(ctx context.Context, userCode string, lang domain.Language, problemID int64) (string, error) {
	tpl, found, err := m.snippets.FindTemplate(ctx, problemID, lang)
	if err != nil {
		return "", fmt.Errorf("find template: %w", err)
	}
	if !found {
		return userCode, nil
	}

	merged, ok := Substitute(tpl, userCode)
	if !ok {
		m.logger.Warn("Template has no placeholder marker, user code dropped",
			zap.Int64("problem_id", problemID),
			zap.String("language", string(lang)),
		)
	}
	return merged, nil
}

// Substitute replaces the earliest marker occurrence in tpl with code.
// It reports false, returning tpl untouched, when no marker is present.
func Substitute(tpl, code string) (string, bool) {
	at, marker := -1, ""
	for _, m := range Markers {
		i := strings.Index(tpl, m)
		if i >= 0 && (at < 0 || i < at) {
			at, marker = i, m
		}
	}
	if at < 0 {
		return tpl, false
	}
	return tpl[:at] + code + tpl[at+len(marker):], true
}
