package preview

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/v0xg/mppreview/internal/errs"
)

// capture writes a screenshot of the current page to <outputDir>/<name>.png.
func (p *Previewer) capture(ctx context.Context, session Session, outputDir, name string) (string, error) {
	p.step(4, "Capturing screenshot")

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		p.stepFailed()
		return "", errs.New(errs.CaptureFailure, "create output directory", err)
	}

	data, err := session.Screenshot(ctx)
	if err != nil {
		p.stepFailed()
		return "", errs.New(errs.CaptureFailure, "capture screenshot", err)
	}

	path := filepath.Join(outputDir, name+".png")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		p.stepFailed()
		return "", errs.New(errs.CaptureFailure, "write screenshot", err)
	}

	fmt.Fprintf(p.out, "done (%s)\n", path)
	return path, nil
}
