// Package automator is a client for the WeChat DevTools automation endpoint.
//
// The DevTools expose a WebSocket server (enabled with
// `cli --auto <project> --auto-port 9420`) speaking a small JSON protocol:
// requests carry an id, a method such as "App.callWxMethod" and params, and
// the tool answers with the same id and either a result or an error.
package automator

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"
)

// MiniProgram is a connected mini-program running inside the DevTools.
type MiniProgram struct {
	conn   *Conn
	logger *zap.Logger
}

// Connect dials the automation endpoint and returns the mini-program handle.
func Connect(ctx context.Context, endpoint string, logger *zap.Logger) (*MiniProgram, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	conn, err := Dial(ctx, endpoint, logger)
	if err != nil {
		return nil, err
	}
	return &MiniProgram{conn: conn, logger: logger}, nil
}

// NavigateTo opens url on top of the page stack and returns the new page.
func (m *MiniProgram) NavigateTo(ctx context.Context, url string) (*Page, error) {
	return m.changeRoute(ctx, "navigateTo", url)
}

// RedirectTo replaces the current page with url.
func (m *MiniProgram) RedirectTo(ctx context.Context, url string) (*Page, error) {
	return m.changeRoute(ctx, "redirectTo", url)
}

func (m *MiniProgram) changeRoute(ctx context.Context, method, url string) (*Page, error) {
	if _, err := m.CallWxMethod(ctx, method, map[string]string{"url": url}); err != nil {
		return nil, err
	}
	return m.CurrentPage(ctx)
}

// CurrentPage returns the page on top of the page stack.
func (m *MiniProgram) CurrentPage(ctx context.Context) (*Page, error) {
	var page Page
	if err := m.conn.Call(ctx, "App.getCurrentPage", nil, &page); err != nil {
		return nil, err
	}
	page.conn = m.conn
	return &page, nil
}

// CallWxMethod invokes wx.<method>(args...) inside the mini-program and
// returns its raw result.
func (m *MiniProgram) CallWxMethod(ctx context.Context, method string, args ...any) (json.RawMessage, error) {
	if args == nil {
		args = []any{}
	}
	var resp struct {
		Result json.RawMessage `json:"result"`
	}
	params := map[string]any{"method": method, "args": args}
	if err := m.conn.Call(ctx, "App.callWxMethod", params, &resp); err != nil {
		return nil, err
	}
	return resp.Result, nil
}

// Evaluate runs the JavaScript function declaration fn in the app service
// layer with args and returns its raw result.
func (m *MiniProgram) Evaluate(ctx context.Context, fn string, args ...any) (json.RawMessage, error) {
	if args == nil {
		args = []any{}
	}
	var resp struct {
		Result json.RawMessage `json:"result"`
	}
	params := map[string]any{"functionDeclaration": fn, "args": args}
	if err := m.conn.Call(ctx, "App.callFunction", params, &resp); err != nil {
		return nil, err
	}
	return resp.Result, nil
}

// Screenshot captures the simulator viewport and returns PNG bytes.
func (m *MiniProgram) Screenshot(ctx context.Context) ([]byte, error) {
	var resp struct {
		Data string `json:"data"`
	}
	if err := m.conn.Call(ctx, "App.captureScreenshot", nil, &resp); err != nil {
		return nil, err
	}
	data, err := base64.StdEncoding.DecodeString(resp.Data)
	if err != nil {
		return nil, fmt.Errorf("decode screenshot: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("empty screenshot")
	}
	return data, nil
}

// Disconnect releases the connection and leaves the DevTools project open.
func (m *MiniProgram) Disconnect() error {
	return m.conn.Close()
}

// Close asks the DevTools to close the project, then disconnects. A failed
// close request is logged and does not prevent the disconnect.
func (m *MiniProgram) Close(ctx context.Context) error {
	if err := m.conn.Call(ctx, "Tool.close", nil, nil); err != nil {
		m.logger.Debug("Tool.close failed", zap.Error(err))
	}
	return m.Disconnect()
}
