package preview

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/v0xg/mppreview/internal/automator"
)

// Session is an exclusive handle on the automation endpoint for one page run.
type Session interface {
	Navigate(ctx context.Context, pagePath string) (PageHandle, error)
	Screenshot(ctx context.Context) ([]byte, error)
	Release(ctx context.Context) error
}

// PageHandle is the page opened by Navigate.
type PageHandle interface {
	WaitFor(ctx context.Context, d time.Duration) error
	WaitForSelector(ctx context.Context, selector string, interval, timeout time.Duration) error
	Data(ctx context.Context) (json.RawMessage, error)
	Count(ctx context.Context, selector string) (int, error)
}

// Dialer opens a Session on the endpoint.
type Dialer func(ctx context.Context, endpoint string) (Session, error)

// RemoteDialer returns a Dialer backed by the DevTools automation client.
// With closeTool set, releasing the session also closes the DevTools project.
func RemoteDialer(logger *zap.Logger, closeTool bool) Dialer {
	return func(ctx context.Context, endpoint string) (Session, error) {
		mp, err := automator.Connect(ctx, endpoint, logger)
		if err != nil {
			return nil, err
		}
		return &remoteSession{mp: mp, closeTool: closeTool}, nil
	}
}

type remoteSession struct {
	mp        *automator.MiniProgram
	closeTool bool
}

func (s *remoteSession) Navigate(ctx context.Context, pagePath string) (PageHandle, error) {
	page, err := s.mp.NavigateTo(ctx, pagePath)
	if err != nil {
		return nil, err
	}
	return remotePage{page}, nil
}

func (s *remoteSession) Screenshot(ctx context.Context) ([]byte, error) {
	return s.mp.Screenshot(ctx)
}

func (s *remoteSession) Release(ctx context.Context) error {
	if s.closeTool {
		return s.mp.Close(ctx)
	}
	return s.mp.Disconnect()
}

type remotePage struct {
	*automator.Page
}

func (p remotePage) Data(ctx context.Context) (json.RawMessage, error) {
	return p.Page.Data(ctx, "")
}

func (p remotePage) Count(ctx context.Context, selector string) (int, error) {
	els, err := p.Elements(ctx, selector)
	if err != nil {
		return 0, err
	}
	return len(els), nil
}
