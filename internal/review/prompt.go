package review

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/v0xg/mppreview/internal/preview"
)

const maxPageDataBytes = 8 << 10

const systemPrompt = `You are a QA reviewer for WeChat mini-programs. You receive the route of a
page, the number of view, text, button and image components rendered on it, and
the page's data object as JSON.

Write at most three short sentences for a human tester:
- what the page appears to show,
- anything that looks wrong (empty lists, placeholder text, null fields that are
  probably rendered, zero buttons on a page that needs interaction),
- one thing worth checking by hand.

Plain text only. No markdown, no preamble.`

func buildUserPrompt(in preview.ReviewInput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Page: %s\n\n", in.PagePath)
	fmt.Fprintf(&b, "Components: view=%d text=%d button=%d image=%d total=%d\n\n",
		in.Stats.View, in.Stats.Text, in.Stats.Button, in.Stats.Image, in.Stats.Total)

	data := string(in.PageData)
	if data == "" {
		data = "null"
	} else if pretty, err := json.MarshalIndent(in.PageData, "", "  "); err == nil {
		data = string(pretty)
	}
	if len(data) > maxPageDataBytes {
		data = truncate(data, maxPageDataBytes) + "\n... (truncated)"
	}
	fmt.Fprintf(&b, "Page data:\n%s\n", data)
	return b.String()
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
