package preview

import (
	"context"
	"fmt"

	"github.com/v0xg/mppreview/internal/errs"
)

// navigate opens pagePath and waits for it to settle.
func (p *Previewer) navigate(ctx context.Context, session Session, pagePath string) (PageHandle, error) {
	p.step(2, "Opening page %s", pagePath)
	page, err := session.Navigate(ctx, pagePath)
	if err != nil {
		p.stepFailed()
		return nil, errs.New(errs.NavigationFailure, "navigate to "+pagePath, err)
	}
	p.stepDone()

	p.step(3, "Waiting %s for render", p.opts.Settle)
	if err := page.WaitFor(ctx, p.opts.Settle); err != nil {
		p.stepFailed()
		return nil, errs.New(errs.Unknown, "settle interrupted", err)
	}

	if p.opts.ReadySelector != "" {
		err := page.WaitForSelector(ctx, p.opts.ReadySelector, p.opts.ReadyInterval, p.opts.ReadyTimeout)
		if err != nil {
			p.stepFailed()
			return nil, errs.New(errs.NavigationFailure, fmt.Sprintf("page not ready (%s)", p.opts.ReadySelector), err)
		}
	}
	p.stepDone()
	return page, nil
}
