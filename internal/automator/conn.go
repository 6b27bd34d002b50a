package automator

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/go-rod/rod/lib/cdp"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrClosed is returned by calls made after the connection was released.
var ErrClosed = errors.New("automator: connection closed")

// RemoteError is an error reported by the automation endpoint for a call.
type RemoteError struct {
	Method  string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s: %s", e.Method, e.Message)
}

type request struct {
	ID     string `json:"id"`
	Method string `json:"method"`
	Params any    `json:"params"`
}

type message struct {
	ID     string          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Conn is a request/response connection to the DevTools automation endpoint.
// Calls are serialized; events received while waiting for a response are
// logged and dropped.
type Conn struct {
	ws     *cdp.WebSocket
	logger *zap.Logger

	mu     sync.Mutex
	closed atomic.Bool
}

// Endpoint builds the automation WebSocket address for host and port.
func Endpoint(host string, port int) string {
	return "ws://" + net.JoinHostPort(host, strconv.Itoa(port))
}

// Dial opens a connection to the automation endpoint.
func Dial(ctx context.Context, endpoint string, logger *zap.Logger) (*Conn, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	ws := &cdp.WebSocket{}
	if err := ws.Connect(ctx, endpoint, handshakeHeader()); err != nil {
		var bad *cdp.BadHandshakeError
		if errors.As(err, &bad) {
			_ = ws.Close()
		}
		return nil, fmt.Errorf("connect %s: %w", endpoint, err)
	}
	logger.Debug("automation connected", zap.String("endpoint", endpoint))

	return &Conn{ws: ws, logger: logger}, nil
}

// handshakeHeader returns a fresh base64 encoded 16-byte Sec-WebSocket-Key.
// cdp.WebSocket only honours the key under this exact, non-canonical name.
func handshakeHeader() http.Header {
	nonce := uuid.New()
	return http.Header{"Sec-WebSocket-Key": {base64.StdEncoding.EncodeToString(nonce[:])}}
}

// Call sends method with params and decodes the response result into result,
// which may be nil. Cancelling ctx closes the connection.
func (c *Conn) Call(ctx context.Context, method string, params any, result any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return ErrClosed
	}
	if params == nil {
		params = struct{}{}
	}

	id := uuid.NewString()
	data, err := json.Marshal(request{ID: id, Method: method, Params: params})
	if err != nil {
		return fmt.Errorf("encode %s: %w", method, err)
	}

	stop := context.AfterFunc(ctx, func() {
		_ = c.Close()
	})
	defer stop()

	c.logger.Debug("automation call", zap.String("method", method), zap.String("id", id))
	if err := c.ws.Send(data); err != nil {
		return c.abort(ctx, fmt.Errorf("send %s: %w", method, err))
	}

	for {
		raw, err := c.ws.Read()
		if err != nil {
			return c.abort(ctx, fmt.Errorf("read %s: %w", method, err))
		}

		var msg message
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.logger.Debug("undecodable automation message", zap.Error(err))
			continue
		}
		if msg.ID == "" {
			c.logger.Debug("automation event", zap.String("method", msg.Method))
			continue
		}
		if msg.ID != id {
			c.logger.Debug("stale automation response", zap.String("id", msg.ID))
			continue
		}

		if msg.Error != nil {
			return &RemoteError{Method: method, Message: msg.Error.Message}
		}
		if result == nil || len(msg.Result) == 0 {
			return nil
		}
		if err := json.Unmarshal(msg.Result, result); err != nil {
			return fmt.Errorf("decode %s result: %w", method, err)
		}
		return nil
	}
}

func (c *Conn) abort(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return err
}

// Close releases the underlying socket. Closing twice is a no-op.
func (c *Conn) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	return c.ws.Close()
}
