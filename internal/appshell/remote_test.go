package appshell

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/v0xg/mppreview/internal/automator"
	"github.com/v0xg/mppreview/internal/automator/automatortest"
)

func connect(t *testing.T, srv *automatortest.MiniProgram) *automator.MiniProgram {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	mp, err := automator.Connect(ctx, srv.Endpoint(), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = mp.Disconnect() })
	return mp
}

func declaration(t *testing.T, params json.RawMessage) string {
	var req struct {
		FunctionDeclaration string `json:"functionDeclaration"`
	}
	assert.NoError(t, json.Unmarshal(params, &req))
	return req.FunctionDeclaration
}

func TestRemotePlatform_Launch(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	srv := automatortest.NewMiniProgram(automatortest.PageFixture{Path: "/pages/index/index"})
	defer srv.Close()

	srv.HandleWx("canIUse", func(json.RawMessage) (any, error) { return true, nil })
	srv.HandleWx("showModal", func(json.RawMessage) (any, error) {
		return map[string]bool{"confirm": true}, nil
	})
	srv.Handle("App.callFunction", func(params json.RawMessage) (any, error) {
		switch declaration(t, params) {
		case checkUpdateFn:
			return map[string]any{"result": map[string]any{"status": "checked", "hasUpdate": true}}, nil
		case waitUpdateReadyFn:
			return map[string]any{"result": "ready"}, nil
		}
		return map[string]any{}, nil
	})

	mp := connect(t, srv)
	app := New(testConfig(true), NewRemotePlatform(mp), zap.NewNop())
	app.OnLaunch(context.Background(), LaunchOptions{Path: HomePage})

	var info map[string]any
	require.NoError(t, json.Unmarshal(app.SystemInfo(), &info))
	assert.Equal(t, "devtools", info["platform"])
	assert.Equal(t, UpdateStatus{Checked: true, HasUpdate: true, Ready: true, Applied: true}, app.Update())
	assert.True(t, app.CloudReady())

	var functions []string
	for _, call := range srv.Calls() {
		if call.Method == "App.callFunction" {
			functions = append(functions, declaration(t, call.Params))
		}
	}
	assert.Equal(t, []string{checkUpdateFn, waitUpdateReadyFn, applyUpdateFn, initCloudFn}, functions)

	require.NoError(t, mp.Disconnect())
	srv.Close()
}

func TestRemotePlatform_UserInfo(t *testing.T) {
	srv := automatortest.NewMiniProgram()
	defer srv.Close()

	srv.HandleWx("login", func(json.RawMessage) (any, error) {
		return map[string]string{"code": "081abc"}, nil
	})
	srv.HandleWx("getUserInfo", func(json.RawMessage) (any, error) {
		return map[string]any{"userInfo": map[string]any{"nickName": "QA", "language": "zh_CN"}}, nil
	})

	p := NewRemotePlatform(connect(t, srv))
	code, err := p.Login(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "081abc", code)

	info, err := p.UserInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "QA", info.NickName)
	assert.Equal(t, "zh_CN", info.Language)
}

func TestRemotePlatform_CanIUseUnsupported(t *testing.T) {
	srv := automatortest.NewMiniProgram()
	defer srv.Close()

	p := NewRemotePlatform(connect(t, srv))
	_, err := p.CanIUse(context.Background(), "getUpdateManager")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "wx.canIUse is not supported")
}

func TestRemotePlatform_RedirectTo(t *testing.T) {
	srv := automatortest.NewMiniProgram(
		automatortest.PageFixture{Path: "/pages/index/index"},
	)
	defer srv.Close()

	app := New(testConfig(false), NewRemotePlatform(connect(t, srv)), nil)
	require.NoError(t, app.OnPageNotFound(context.Background(), PageNotFound{Path: "pages/gone/gone"}))
	assert.Equal(t, HomePage, srv.CurrentPath())
}

func TestRemotePlatform_UpdateTimeouts(t *testing.T) {
	srv := automatortest.NewMiniProgram()
	defer srv.Close()

	var waits []float64
	srv.Handle("App.callFunction", func(params json.RawMessage) (any, error) {
		var req struct {
			FunctionDeclaration string    `json:"functionDeclaration"`
			Args                []float64 `json:"args"`
		}
		if err := json.Unmarshal(params, &req); err != nil {
			return nil, err
		}
		waits = append(waits, req.Args...)
		switch req.FunctionDeclaration {
		case checkUpdateFn:
			return map[string]any{"result": map[string]any{"status": "timeout", "hasUpdate": false}}, nil
		case waitUpdateReadyFn:
			return map[string]any{"result": "failed"}, nil
		}
		return nil, fmt.Errorf("unexpected function")
	})

	p := NewRemotePlatform(connect(t, srv))
	_, err := p.CheckForUpdate(context.Background(), 1500*time.Millisecond)
	require.ErrorIs(t, err, ErrUpdateTimeout)

	err = p.WaitUpdateReady(context.Background(), 1500*time.Millisecond)
	require.ErrorIs(t, err, ErrUpdateFailed)

	assert.Equal(t, []float64{1500, 1500}, waits)
}
