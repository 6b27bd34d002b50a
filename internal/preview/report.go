package preview

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/v0xg/mppreview/internal/errs"
)

// isoMillis matches JavaScript's Date.prototype.toISOString.
const isoMillis = "2006-01-02T15:04:05.000Z07:00"

// Report is the JSON document written next to each screenshot.
type Report struct {
	Timestamp      string          `json:"timestamp"`
	PagePath       string          `json:"pagePath"`
	ScreenshotPath string          `json:"screenshotPath"`
	PageData       json.RawMessage `json:"pageData"`
	ElementStats   ElementStats    `json:"elementStats"`
	Review         string          `json:"review,omitempty"`
}

// NewReport stamps a report with at, in UTC.
func NewReport(at time.Time, pagePath, screenshotPath string, data json.RawMessage, stats ElementStats) Report {
	if len(data) == 0 {
		data = json.RawMessage("null")
	}
	return Report{
		Timestamp:      at.UTC().Format(isoMillis),
		PagePath:       pagePath,
		ScreenshotPath: screenshotPath,
		PageData:       data,
		ElementStats:   stats,
	}
}

// writeReport stores r as indented JSON at <outputDir>/<name>.json.
func (p *Previewer) writeReport(r Report, outputDir, name string) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return "", errs.New(errs.CaptureFailure, "encode report", err)
	}

	path := filepath.Join(outputDir, name+".json")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return "", errs.New(errs.CaptureFailure, "write report", err)
	}
	p.logger.Debug("report written", zap.String("path", path))
	return path, nil
}
