package automatortest

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"strings"
	"sync"
)

// PageFixture describes a page the fake mini-program can navigate to.
type PageFixture struct {
	Path     string
	Data     map[string]any
	Elements map[string]int
	// ReadyAfter makes Page.getElement report no match for the first
	// ReadyAfter polls.
	ReadyAfter int
}

// MiniProgram is a Server pre-wired with the methods of a running
// mini-program: routing, page data, element queries and screenshots.
type MiniProgram struct {
	*Server

	mu         sync.Mutex
	pages      map[string]*PageFixture
	current    *PageFixture
	pageID     int
	polls      int
	systemInfo map[string]any
	wx         map[string]Handler
	screenshot []byte
}

// NewMiniProgram starts a fake mini-program serving pages. Callers must
// Close it.
func NewMiniProgram(pages ...PageFixture) *MiniProgram {
	m := &MiniProgram{
		Server: NewServer(),
		pages:  make(map[string]*PageFixture),
		systemInfo: map[string]any{
			"brand":        "devtools",
			"model":        "iPhone 12/13 (Pro)",
			"platform":     "devtools",
			"SDKVersion":   "3.3.4",
			"screenWidth":  390,
			"screenHeight": 844,
		},
		wx:         make(map[string]Handler),
		screenshot: PNG(4, 8, color.RGBA{R: 7, G: 193, B: 96, A: 255}),
	}
	for i := range pages {
		p := pages[i]
		m.pages[normalize(p.Path)] = &p
	}

	m.Handle("App.callWxMethod", m.callWxMethod)
	m.Handle("App.getCurrentPage", m.currentPage)
	m.Handle("Page.getData", m.pageData)
	m.Handle("Page.getElements", m.elements)
	m.Handle("Page.getElement", m.element)
	m.Handle("App.captureScreenshot", m.captureScreenshot)
	m.Handle("Tool.close", func(json.RawMessage) (any, error) { return nil, nil })
	return m
}

// HandleWx registers h for wx.<method>. h receives the JSON array of args.
func (m *MiniProgram) HandleWx(method string, h Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.wx[method] = h
}

// SetSystemInfo replaces the value returned by wx.getSystemInfoSync.
func (m *MiniProgram) SetSystemInfo(info map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.systemInfo = info
}

// SetScreenshot replaces the PNG returned by App.captureScreenshot.
func (m *MiniProgram) SetScreenshot(data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.screenshot = data
}

// Screenshot returns the PNG served by App.captureScreenshot.
func (m *MiniProgram) Screenshot() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.screenshot
}

// CurrentPath returns the path of the current page, or "" before any route.
func (m *MiniProgram) CurrentPath() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return ""
	}
	return "/" + normalize(m.current.Path)
}

func (m *MiniProgram) callWxMethod(params json.RawMessage) (any, error) {
	var req struct {
		Method string            `json:"method"`
		Args   []json.RawMessage `json:"args"`
	}
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, err
	}

	switch req.Method {
	case "navigateTo", "redirectTo", "reLaunch":
		var opt struct {
			URL string `json:"url"`
		}
		if len(req.Args) > 0 {
			_ = json.Unmarshal(req.Args[0], &opt)
		}
		return m.route(req.Method, opt.URL)
	case "getSystemInfoSync":
		m.mu.Lock()
		defer m.mu.Unlock()
		return map[string]any{"result": m.systemInfo}, nil
	}

	m.mu.Lock()
	h := m.wx[req.Method]
	m.mu.Unlock()
	if h == nil {
		return nil, fmt.Errorf("wx.%s is not supported", req.Method)
	}
	args, _ := json.Marshal(req.Args)
	result, err := h(args)
	if err != nil {
		return nil, err
	}
	return map[string]any{"result": result}, nil
}

func (m *MiniProgram) route(method, url string) (any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	path := normalize(url)
	page, ok := m.pages[path]
	if !ok {
		return nil, fmt.Errorf("%s:fail page %q is not found", method, path)
	}
	m.current = page
	m.pageID++
	m.polls = 0
	return map[string]any{"result": map[string]string{"errMsg": method + ":ok"}}, nil
}

func (m *MiniProgram) currentPage(json.RawMessage) (any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return nil, fmt.Errorf("no page is open")
	}
	return map[string]any{
		"pageId": m.pageID,
		"path":   normalize(m.current.Path),
		"query":  map[string]any{},
	}, nil
}

func (m *MiniProgram) pageData(json.RawMessage) (any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return nil, fmt.Errorf("no page is open")
	}
	data := m.current.Data
	if data == nil {
		data = map[string]any{}
	}
	return map[string]any{"data": data}, nil
}

func (m *MiniProgram) count(params json.RawMessage) (string, int, error) {
	var req struct {
		Selector string `json:"selector"`
	}
	if err := json.Unmarshal(params, &req); err != nil {
		return "", 0, err
	}
	if m.current == nil {
		return "", 0, fmt.Errorf("no page is open")
	}
	return req.Selector, m.current.Elements[req.Selector], nil
}

func (m *MiniProgram) elements(params json.RawMessage) (any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	selector, n, err := m.count(params)
	if err != nil {
		return nil, err
	}
	els := make([]map[string]string, n)
	for i := range els {
		els[i] = map[string]string{"elementId": fmt.Sprintf("%s-%d", selector, i), "tagName": selector}
	}
	return map[string]any{"elements": els}, nil
}

func (m *MiniProgram) element(params json.RawMessage) (any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	selector, n, err := m.count(params)
	if err != nil {
		return nil, err
	}
	m.polls++
	if m.polls <= m.current.ReadyAfter || n == 0 {
		return map[string]any{}, nil
	}
	return map[string]string{"elementId": selector + "-0", "tagName": selector}, nil
}

func (m *MiniProgram) captureScreenshot(json.RawMessage) (any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return map[string]string{"data": base64.StdEncoding.EncodeToString(m.screenshot)}, nil
}

func normalize(url string) string {
	if i := strings.IndexByte(url, '?'); i >= 0 {
		url = url[:i]
	}
	return strings.TrimPrefix(url, "/")
}

// PNG encodes a w×h image filled with c.
func PNG(w, h int, c color.Color) []byte {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	_ = png.Encode(&buf, img)
	return buf.Bytes()
}
