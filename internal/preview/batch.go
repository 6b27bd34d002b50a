package preview

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/v0xg/mppreview/internal/errs"
)

// Batch previews reqs one after another with the configured pause between
// pages. A failed page never stops the batch; once ctx is done the
// remaining pages are recorded as interrupted. The report always holds one
// result per request, in order.
func (p *Previewer) Batch(ctx context.Context, reqs []Request) *BatchReport {
	fmt.Fprintf(p.out, "Previewing %d pages...\n", len(reqs))

	report := &BatchReport{Results: make([]Result, 0, len(reqs))}
	for i, req := range reqs {
		if err := ctx.Err(); err != nil {
			report.Results = append(report.Results, p.fail(req, errs.New(errs.Unknown, "batch interrupted", err)))
			continue
		}

		fmt.Fprintf(p.out, "\n[%d/%d] %s\n", i+1, len(reqs), req.PagePath)
		report.Results = append(report.Results, p.Preview(ctx, req))

		if i < len(reqs)-1 {
			if err := p.sleep(ctx, p.opts.Pause); err != nil {
				p.logger.Debug("pause interrupted", zap.Error(err))
			}
		}
	}

	p.summary(report)
	return report
}

func (p *Previewer) summary(report *BatchReport) {
	line := strings.Repeat("=", 60)
	fmt.Fprintln(p.out)
	fmt.Fprintln(p.out, line)
	fmt.Fprintln(p.out, "Batch preview finished")
	fmt.Fprintln(p.out, line)
	fmt.Fprintf(p.out, "Pages:     %d\n", len(report.Results))
	fmt.Fprintf(p.out, "Succeeded: %d\n", report.SuccessCount())
	fmt.Fprintf(p.out, "Failed:    %d\n", report.FailCount())
	fmt.Fprintln(p.out, line)
}
