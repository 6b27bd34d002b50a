package preview

import (
	"encoding/json"

	"github.com/v0xg/mppreview/internal/errs"
)

// Selectors counted on every page, in report order.
var Selectors = []string{"view", "text", "button", "image"}

// ElementStats counts component instances on a page.
type ElementStats struct {
	View   int `json:"view"`
	Text   int `json:"text"`
	Button int `json:"button"`
	Image  int `json:"image"`
	Total  int `json:"total"`
}

// NewElementStats builds stats from per-category counts. Total is derived.
func NewElementStats(view, text, button, image int) ElementStats {
	return ElementStats{
		View:   view,
		Text:   text,
		Button: button,
		Image:  image,
		Total:  view + text + button + image,
	}
}

// Result is the outcome of previewing one page. ScreenshotPath and DataPath
// are set only on success; Error and Stack only on failure.
type Result struct {
	Success        bool            `json:"success"`
	PagePath       string          `json:"pagePath"`
	ScreenshotPath string          `json:"screenshotPath,omitempty"`
	DataPath       string          `json:"dataPath,omitempty"`
	ElementStats   *ElementStats   `json:"elementStats,omitempty"`
	PageData       json.RawMessage `json:"pageData,omitempty"`
	Review         string          `json:"review,omitempty"`
	Error          string          `json:"error,omitempty"`
	Stack          string          `json:"stack,omitempty"`
	Kind           errs.Kind       `json:"-"`
}

// BatchReport holds the results of a batch run in request order.
type BatchReport struct {
	Results []Result
}

// SuccessCount returns the number of successful previews.
func (b *BatchReport) SuccessCount() int {
	n := 0
	for _, r := range b.Results {
		if r.Success {
			n++
		}
	}
	return n
}

// FailCount returns the number of failed previews.
func (b *BatchReport) FailCount() int {
	return len(b.Results) - b.SuccessCount()
}

// AllSucceeded reports whether every preview succeeded.
func (b *BatchReport) AllSucceeded() bool {
	return b.FailCount() == 0
}

// Screenshots returns the screenshot paths of successful previews.
func (b *BatchReport) Screenshots() []string {
	var paths []string
	for _, r := range b.Results {
		if r.Success {
			paths = append(paths, r.ScreenshotPath)
		}
	}
	return paths
}
