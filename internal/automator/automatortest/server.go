// Package automatortest provides an in-process automation endpoint for tests,
// in the spirit of net/http/httptest.
package automatortest

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"

	"golang.org/x/net/websocket"
)

// Handler answers one automation method. A non-nil error is sent back as the
// response's error message.
type Handler func(params json.RawMessage) (any, error)

// Call records a request received by the server.
type Call struct {
	Method string
	Params json.RawMessage
}

// Server is a WebSocket automation endpoint dispatching methods to handlers.
type Server struct {
	srv *httptest.Server

	mu       sync.Mutex
	handlers map[string]Handler
	calls    []Call
	conns    map[*websocket.Conn]struct{}
	noise    bool
}

// NewServer starts a server with no handlers. Callers must Close it.
func NewServer() *Server {
	s := &Server{
		handlers: make(map[string]Handler),
		conns:    make(map[*websocket.Conn]struct{}),
	}
	s.srv = httptest.NewServer(websocket.Server{Handler: s.serve, Handshake: checkKey})
	return s
}

// checkKey rejects handshakes whose Sec-WebSocket-Key is not a base64
// encoded 16-byte nonce. The DevTools server answers those with an error.
func checkKey(_ *websocket.Config, req *http.Request) error {
	key := req.Header.Get("Sec-WebSocket-Key")
	nonce, err := base64.StdEncoding.DecodeString(key)
	if err != nil || len(nonce) != 16 {
		return fmt.Errorf("invalid Sec-WebSocket-Key %q", key)
	}
	return nil
}

// Handle registers h for method, replacing any previous handler.
func (s *Server) Handle(method string, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[method] = h
}

// Fail makes method answer with an error carrying message.
func (s *Server) Fail(method, message string) {
	s.Handle(method, func(json.RawMessage) (any, error) {
		return nil, fmt.Errorf("%s", message)
	})
}

// SetNoise makes the server send an event and a response with an unknown id
// before every real response.
func (s *Server) SetNoise(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.noise = on
}

// Calls returns the requests received so far.
func (s *Server) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// Methods returns the method names of the requests received so far.
func (s *Server) Methods() []string {
	calls := s.Calls()
	methods := make([]string, len(calls))
	for i, c := range calls {
		methods[i] = c.Method
	}
	return methods
}

// Count returns how many requests for method were received.
func (s *Server) Count(method string) int {
	n := 0
	for _, c := range s.Calls() {
		if c.Method == method {
			n++
		}
	}
	return n
}

// Host returns the listening host.
func (s *Server) Host() string {
	host, _, _ := net.SplitHostPort(s.srv.Listener.Addr().String())
	return host
}

// Port returns the listening port.
func (s *Server) Port() int {
	_, port, _ := net.SplitHostPort(s.srv.Listener.Addr().String())
	p, _ := strconv.Atoi(port)
	return p
}

// Endpoint returns the ws:// address of the server.
func (s *Server) Endpoint() string {
	return "ws://" + s.srv.Listener.Addr().String()
}

// Close drops open connections and stops the server.
func (s *Server) Close() {
	s.mu.Lock()
	for c := range s.conns {
		_ = c.Close()
	}
	s.mu.Unlock()
	s.srv.Close()
}

func (s *Server) serve(ws *websocket.Conn) {
	s.mu.Lock()
	s.conns[ws] = struct{}{}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.conns, ws)
		s.mu.Unlock()
		_ = ws.Close()
	}()

	for {
		var raw string
		if err := websocket.Message.Receive(ws, &raw); err != nil {
			return
		}

		var req struct {
			ID     string          `json:"id"`
			Method string          `json:"method"`
			Params json.RawMessage `json:"params"`
		}
		if err := json.Unmarshal([]byte(raw), &req); err != nil {
			continue
		}

		s.mu.Lock()
		s.calls = append(s.calls, Call{Method: req.Method, Params: req.Params})
		h := s.handlers[req.Method]
		noise := s.noise
		s.mu.Unlock()

		if noise {
			_ = send(ws, map[string]any{
				"method": "App.logAdded",
				"params": map[string]any{"type": "log", "args": []string{"noise"}},
			})
			_ = send(ws, map[string]any{"id": "stale-" + req.ID, "result": map[string]any{}})
		}

		resp := map[string]any{"id": req.ID}
		switch {
		case h == nil:
			resp["error"] = map[string]string{"message": "unknown method " + req.Method}
		default:
			result, err := h(req.Params)
			if err != nil {
				resp["error"] = map[string]string{"message": err.Error()}
			} else {
				if result == nil {
					result = map[string]any{}
				}
				resp["result"] = result
			}
		}
		if err := send(ws, resp); err != nil {
			return
		}
	}
}

func send(ws *websocket.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return websocket.Message.Send(ws, string(data))
}
