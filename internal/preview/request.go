package preview

import (
	"strings"

	"github.com/v0xg/mppreview/internal/errs"
)

// Request asks for one page to be previewed.
type Request struct {
	PagePath  string
	OutputDir string
	WSPort    int
}

// NewRequest validates pagePath and returns the request.
func NewRequest(pagePath, outputDir string, wsPort int) (Request, error) {
	if pagePath == "" {
		return Request{}, errs.New(errs.InvalidInput, "empty page path", nil)
	}
	if !strings.HasPrefix(pagePath, "/") {
		return Request{}, errs.New(errs.InvalidInput, "page path must start with \"/\": "+pagePath, nil)
	}
	return Request{PagePath: pagePath, OutputDir: outputDir, WSPort: wsPort}, nil
}

// IsBatch reports whether arg names several comma separated pages.
func IsBatch(arg string) bool {
	return strings.Contains(arg, ",")
}

// ParseBatch splits a comma separated page list into requests. Whitespace
// around each path is trimmed; an empty or invalid entry fails the whole list.
func ParseBatch(list, outputDir string, wsPort int) ([]Request, error) {
	parts := strings.Split(list, ",")
	reqs := make([]Request, 0, len(parts))
	for _, part := range parts {
		req, err := NewRequest(strings.TrimSpace(part), outputDir, wsPort)
		if err != nil {
			return nil, err
		}
		reqs = append(reqs, req)
	}
	return reqs, nil
}
