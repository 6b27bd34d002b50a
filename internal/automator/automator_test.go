package automator

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-rod/rod/lib/cdp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/v0xg/mppreview/internal/automator/automatortest"
)

var indexPage = automatortest.PageFixture{
	Path:     "/pages/index/index",
	Data:     map[string]any{"title": "言值", "count": 3},
	Elements: map[string]int{"view": 5, "text": 3, "button": 1},
}

func connect(t *testing.T, fake *automatortest.MiniProgram) *MiniProgram {
	t.Helper()
	mp, err := Connect(context.Background(), fake.Endpoint(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = mp.Disconnect() })
	return mp
}

func TestEndpoint(t *testing.T) {
	assert.Equal(t, "ws://localhost:9420", Endpoint("localhost", 9420))
	assert.Equal(t, "ws://[::1]:9420", Endpoint("::1", 9420))
}

func TestDial_SendsNonceKey(t *testing.T) {
	keys := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		keys <- r.Header.Get("Sec-WebSocket-Key")
		http.Error(w, "no upgrade", http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := Dial(context.Background(), "ws"+srv.URL[len("http"):], nil)
	require.Error(t, err)

	nonce, err := base64.StdEncoding.DecodeString(<-keys)
	require.NoError(t, err)
	assert.Len(t, nonce, 16)
}

func TestDial_KeyDiffersPerConnection(t *testing.T) {
	a := handshakeHeader()["Sec-WebSocket-Key"]
	b := handshakeHeader()["Sec-WebSocket-Key"]
	require.Len(t, a, 1)
	require.Len(t, b, 1)
	assert.NotEqual(t, a[0], b[0])
}

func TestDial_StrictServer(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	fake := automatortest.NewMiniProgram(indexPage)
	defer fake.Close()

	ws := &cdp.WebSocket{}
	err := ws.Connect(context.Background(), fake.Endpoint(), nil)
	var bad *cdp.BadHandshakeError
	require.ErrorAs(t, err, &bad)
	assert.Contains(t, bad.Status, "403")
	_ = ws.Close()

	conn, err := Dial(context.Background(), fake.Endpoint(), nil)
	require.NoError(t, err)
	require.NoError(t, conn.Close())
	fake.Close()
}

func TestConnect_Refused(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().(*net.TCPAddr)
	require.NoError(t, l.Close())

	_, err = Connect(context.Background(), Endpoint("127.0.0.1", addr.Port), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestMiniProgram_NavigateAndInspect(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	fake := automatortest.NewMiniProgram(indexPage)
	defer fake.Close()

	mp, err := Connect(context.Background(), fake.Endpoint(), nil)
	require.NoError(t, err)
	defer func() { _ = mp.Disconnect() }()

	ctx := context.Background()
	page, err := mp.NavigateTo(ctx, "/pages/index/index")
	require.NoError(t, err)
	assert.Equal(t, "pages/index/index", page.Path)
	assert.Equal(t, 1, page.ID)

	data, err := page.Data(ctx, "")
	require.NoError(t, err)
	assert.JSONEq(t, `{"title":"言值","count":3}`, string(data))

	views, err := page.Elements(ctx, "view")
	require.NoError(t, err)
	assert.Len(t, views, 5)
	assert.Equal(t, "view", views[0].TagName)

	images, err := page.Elements(ctx, "image")
	require.NoError(t, err)
	assert.Empty(t, images)

	assert.Equal(t, []string{
		"App.callWxMethod", "App.getCurrentPage", "Page.getData", "Page.getElements", "Page.getElements",
	}, fake.Methods())
}

func TestMiniProgram_NavigateUnknownPage(t *testing.T) {
	fake := automatortest.NewMiniProgram(indexPage)
	defer fake.Close()
	mp := connect(t, fake)

	_, err := mp.NavigateTo(context.Background(), "/pages/missing/missing")
	require.Error(t, err)

	var remote *RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, "App.callWxMethod", remote.Method)
	assert.Contains(t, remote.Message, "is not found")
}

func TestMiniProgram_Screenshot(t *testing.T) {
	fake := automatortest.NewMiniProgram(indexPage)
	defer fake.Close()
	mp := connect(t, fake)

	data, err := mp.Screenshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, fake.Screenshot(), data)
}

func TestMiniProgram_ScreenshotEmpty(t *testing.T) {
	fake := automatortest.NewMiniProgram(indexPage)
	defer fake.Close()
	fake.SetScreenshot(nil)
	mp := connect(t, fake)

	_, err := mp.Screenshot(context.Background())
	assert.Error(t, err)
}

func TestConn_SkipsEventsAndStaleResponses(t *testing.T) {
	fake := automatortest.NewMiniProgram(indexPage)
	defer fake.Close()
	fake.SetNoise(true)
	mp := connect(t, fake)

	page, err := mp.NavigateTo(context.Background(), "/pages/index/index")
	require.NoError(t, err)
	assert.Equal(t, "pages/index/index", page.Path)
}

func TestMiniProgram_CallWxMethodAndEvaluate(t *testing.T) {
	fake := automatortest.NewMiniProgram(indexPage)
	defer fake.Close()
	fake.HandleWx("login", func(json.RawMessage) (any, error) {
		return map[string]string{"code": "0a1b"}, nil
	})
	fake.Handle("App.callFunction", func(params json.RawMessage) (any, error) {
		var req struct {
			Args []string `json:"args"`
		}
		_ = json.Unmarshal(params, &req)
		return map[string]any{"result": len(req.Args)}, nil
	})
	mp := connect(t, fake)
	ctx := context.Background()

	raw, err := mp.CallWxMethod(ctx, "login")
	require.NoError(t, err)
	assert.JSONEq(t, `{"code":"0a1b"}`, string(raw))

	info, err := mp.CallWxMethod(ctx, "getSystemInfoSync")
	require.NoError(t, err)
	assert.Contains(t, string(info), `"platform":"devtools"`)

	raw, err = mp.Evaluate(ctx, "function(a, b) { return 2 }", "a", "b")
	require.NoError(t, err)
	assert.Equal(t, "2", string(raw))

	_, err = mp.CallWxMethod(ctx, "scanCode")
	assert.Error(t, err)
}

func TestPage_WaitForSelector(t *testing.T) {
	page := indexPage
	page.ReadyAfter = 2
	fake := automatortest.NewMiniProgram(page)
	defer fake.Close()
	mp := connect(t, fake)
	ctx := context.Background()

	p, err := mp.NavigateTo(ctx, "/pages/index/index")
	require.NoError(t, err)

	require.NoError(t, p.WaitForSelector(ctx, "button", time.Millisecond, time.Second))
	assert.Equal(t, 3, fake.Count("Page.getElement"))

	err = p.WaitForSelector(ctx, "image", time.Millisecond, 5*time.Millisecond)
	assert.ErrorIs(t, err, ErrWaitTimeout)
}

func TestPage_WaitForHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := &Page{}
	assert.ErrorIs(t, p.WaitFor(ctx, time.Hour), context.Canceled)
	assert.ErrorIs(t, p.WaitFor(ctx, 0), context.Canceled)
}

func TestSleep(t *testing.T) {
	assert.NoError(t, Sleep(context.Background(), time.Millisecond))
	assert.NoError(t, Sleep(context.Background(), 0))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, Sleep(ctx, time.Hour), context.DeadlineExceeded)
}

func TestConn_CancelClosesConnection(t *testing.T) {
	release := make(chan struct{})
	fake := automatortest.NewMiniProgram(indexPage)
	defer fake.Close()
	defer close(release)
	fake.Handle("App.captureScreenshot", func(json.RawMessage) (any, error) {
		<-release
		return nil, nil
	})
	mp := connect(t, fake)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := mp.Screenshot(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	_, err = mp.CurrentPage(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestMiniProgram_CloseSendsToolClose(t *testing.T) {
	fake := automatortest.NewMiniProgram(indexPage)
	defer fake.Close()

	mp, err := Connect(context.Background(), fake.Endpoint(), nil)
	require.NoError(t, err)
	require.NoError(t, mp.Close(context.Background()))
	assert.Equal(t, 1, fake.Count("Tool.close"))

	assert.NoError(t, mp.Disconnect())
	_, err = mp.CurrentPage(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}
