package automator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrWaitTimeout is returned when a waited-for selector never appears.
var ErrWaitTimeout = errors.New("automator: wait timed out")

// Page is a page instance inside the mini-program.
type Page struct {
	ID    int            `json:"pageId"`
	Path  string         `json:"path"`
	Query map[string]any `json:"query"`

	conn *Conn
}

// Element is a component instance found on a page.
type Element struct {
	ID      string `json:"elementId"`
	TagName string `json:"tagName"`
}

// Data returns the page's data object, or the value at path when path is
// not empty.
func (p *Page) Data(ctx context.Context, path string) (json.RawMessage, error) {
	params := map[string]any{"pageId": p.ID}
	if path != "" {
		params["path"] = path
	}
	var resp struct {
		Data json.RawMessage `json:"data"`
	}
	if err := p.conn.Call(ctx, "Page.getData", params, &resp); err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return json.RawMessage("null"), nil
	}
	return resp.Data, nil
}

// Elements returns every element matching selector.
func (p *Page) Elements(ctx context.Context, selector string) ([]Element, error) {
	var resp struct {
		Elements []Element `json:"elements"`
	}
	params := map[string]any{"pageId": p.ID, "selector": selector}
	if err := p.conn.Call(ctx, "Page.getElements", params, &resp); err != nil {
		return nil, err
	}
	return resp.Elements, nil
}

// Element returns the first element matching selector, or nil when none does.
func (p *Page) Element(ctx context.Context, selector string) (*Element, error) {
	var el Element
	params := map[string]any{"pageId": p.ID, "selector": selector}
	if err := p.conn.Call(ctx, "Page.getElement", params, &el); err != nil {
		return nil, err
	}
	if el.ID == "" {
		return nil, nil
	}
	return &el, nil
}

// WaitFor sleeps for d or until ctx is done.
func (p *Page) WaitFor(ctx context.Context, d time.Duration) error {
	return Sleep(ctx, d)
}

// Sleep waits for d or until ctx is done, returning ctx's error in the
// latter case.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// WaitForSelector polls every interval until selector matches an element or
// timeout elapses. The deadline is only checked between polls.
func (p *Page) WaitForSelector(ctx context.Context, selector string, interval, timeout time.Duration) error {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	deadline := time.Now().Add(timeout)
	for {
		el, err := p.Element(ctx, selector)
		if err != nil {
			return err
		}
		if el != nil {
			return nil
		}
		if !time.Now().Before(deadline) {
			return fmt.Errorf("%w: %s after %s", ErrWaitTimeout, selector, timeout)
		}
		if err := p.WaitFor(ctx, interval); err != nil {
			return err
		}
	}
}
