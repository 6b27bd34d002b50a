// Package preview navigates mini-program pages through the DevTools
// automation endpoint, captures screenshots and writes page reports.
package preview

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/v0xg/mppreview/internal/automator"
	"github.com/v0xg/mppreview/internal/config"
	"github.com/v0xg/mppreview/internal/errs"
)

const totalSteps = 5

// Reviewer produces a short QA note for an inspected page.
type Reviewer interface {
	Review(ctx context.Context, in ReviewInput) (string, error)
}

// ReviewInput is what a Reviewer sees of a page.
type ReviewInput struct {
	PagePath string
	Stats    ElementStats
	PageData json.RawMessage
}

// Options configures the preview pipeline.
type Options struct {
	Host          string
	Settle        time.Duration // fixed wait after navigation
	Pause         time.Duration // wait between pages of a batch
	ReadySelector string        // optional selector polled after the settle delay
	ReadyInterval time.Duration
	ReadyTimeout  time.Duration
	CloseTool     bool
	Reviewer      Reviewer
	Out           io.Writer
	Logger        *zap.Logger
}

// Previewer runs the single-page pipeline and the batch orchestrator.
type Previewer struct {
	opts   Options
	dial   Dialer
	namer  *Namer
	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error
	out    io.Writer
	logger *zap.Logger
}

// New returns a Previewer talking to the DevTools automation endpoint.
func New(opts Options) *Previewer {
	if opts.Host == "" {
		opts.Host = config.DefaultHost
	}
	if opts.ReadyTimeout == 0 {
		opts.ReadyTimeout = 10 * time.Second
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	return &Previewer{
		opts:   opts,
		dial:   RemoteDialer(opts.Logger, opts.CloseTool),
		namer:  NewNamer(time.Now),
		now:    time.Now,
		sleep:  automator.Sleep,
		out:    opts.Out,
		logger: opts.Logger,
	}
}

// Preview runs the pipeline for one page. It never returns an error: any
// failure is reported in the result. The session is always released.
func (p *Previewer) Preview(ctx context.Context, req Request) Result {
	endpoint := automator.Endpoint(p.opts.Host, req.WSPort)
	p.banner(req, endpoint)

	p.step(1, "Connecting to %s", endpoint)
	session, err := p.dial(ctx, endpoint)
	if err != nil {
		p.stepFailed()
		return p.fail(req, classifyDial(ctx, err))
	}
	p.stepDone()
	defer p.release(ctx, session)

	page, err := p.navigate(ctx, session, req.PagePath)
	if err != nil {
		return p.fail(req, err)
	}

	name := p.namer.Name(req.PagePath)
	screenshotPath, err := p.capture(ctx, session, req.OutputDir, name)
	if err != nil {
		return p.fail(req, err)
	}

	stats, data, err := p.inspect(ctx, page)
	if err != nil {
		return p.fail(req, err)
	}

	report := NewReport(p.now(), req.PagePath, screenshotPath, data, stats)
	report.Review = p.review(ctx, req.PagePath, stats, data)

	dataPath, err := p.writeReport(report, req.OutputDir, name)
	if err != nil {
		return p.fail(req, err)
	}
	fmt.Fprintf(p.out, "✓ Page data saved to %s\n", dataPath)

	return Result{
		Success:        true,
		PagePath:       req.PagePath,
		ScreenshotPath: screenshotPath,
		DataPath:       dataPath,
		ElementStats:   &stats,
		PageData:       report.PageData,
		Review:         report.Review,
	}
}

func (p *Previewer) review(ctx context.Context, pagePath string, stats ElementStats, data json.RawMessage) string {
	if p.opts.Reviewer == nil {
		return ""
	}
	fmt.Fprintf(p.out, "→ Reviewing page... ")
	note, err := p.opts.Reviewer.Review(ctx, ReviewInput{PagePath: pagePath, Stats: stats, PageData: data})
	if err != nil {
		fmt.Fprintln(p.out, "skipped")
		p.logger.Warn("page review failed", zap.String("page", pagePath), zap.Error(err))
		return ""
	}
	fmt.Fprintln(p.out, "done")
	return note
}

// release closes the session. Failures are logged and swallowed.
func (p *Previewer) release(ctx context.Context, session Session) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := session.Release(ctx); err != nil {
		p.logger.Warn("release automation session",
			zap.Stringer("kind", errs.CleanupFailure), zap.Error(err))
		return
	}
	p.logger.Debug("automation session released")
}

func (p *Previewer) fail(req Request, err error) Result {
	fmt.Fprintf(p.out, "✗ Preview failed: %v\n", err)
	p.logger.Debug("preview failed",
		zap.String("page", req.PagePath),
		zap.Stringer("kind", errs.KindOf(err)),
		zap.Error(err))

	if errs.KindOf(err) == errs.ConnectionRefused {
		fmt.Fprint(p.out, connectHints)
	}

	return Result{
		Success:  false,
		PagePath: req.PagePath,
		Error:    err.Error(),
		Stack:    errs.StackOf(err),
		Kind:     errs.KindOf(err),
	}
}

// classifyDial tells a refused connection apart from a failed handshake or
// an interrupted dial.
func classifyDial(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, syscall.ECONNREFUSED):
		return errs.New(errs.ConnectionRefused, "automation endpoint unreachable", err)
	case ctx.Err() != nil:
		return errs.New(errs.Unknown, "connect interrupted", err)
	default:
		return errs.New(errs.ConnectionFailure, "automation connection failed", err)
	}
}

const connectHints = `  Possible causes:
    1. WeChat DevTools is not running
    2. the automation port is not enabled
    3. the port number is wrong
  To fix:
    1. open WeChat DevTools
    2. Settings -> Security -> enable the service port
    3. start it with: cli --auto <project path> --auto-port 9420
`

func (p *Previewer) banner(req Request, endpoint string) {
	line := strings.Repeat("=", 60)
	fmt.Fprintln(p.out, line)
	fmt.Fprintf(p.out, "Page:     %s\n", req.PagePath)
	fmt.Fprintf(p.out, "Output:   %s\n", req.OutputDir)
	fmt.Fprintf(p.out, "Endpoint: %s\n", endpoint)
	fmt.Fprintln(p.out, line)
}

func (p *Previewer) step(n int, format string, args ...any) {
	fmt.Fprintf(p.out, "→ [%d/%d] %s... ", n, totalSteps, fmt.Sprintf(format, args...))
}

func (p *Previewer) stepDone() {
	fmt.Fprintln(p.out, "done")
}

func (p *Previewer) stepFailed() {
	fmt.Fprintln(p.out, "failed")
}
