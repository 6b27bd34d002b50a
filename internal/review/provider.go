// Package review asks a language model for a short QA note about a
// previewed page.
package review

import (
	"context"
	"fmt"

	"github.com/v0xg/mppreview/internal/preview"
)

// Provider writes a QA note for an inspected page.
type Provider interface {
	Review(ctx context.Context, in preview.ReviewInput) (string, error)
}

// NewProvider creates a review provider by name.
func NewProvider(name, model string) (Provider, error) {
	switch name {
	case "claude", "anthropic":
		return NewClaudeProvider(model)
	case "openai", "gpt":
		return NewOpenAIProvider(model)
	default:
		return nil, fmt.Errorf("unknown provider: %s (supported: claude, openai)", name)
	}
}
