package appshell

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/v0xg/mppreview/internal/automator"
)

const (
	// The update manager events are not replayed to late listeners, so the
	// check also records ready and failed for waitUpdateReadyFn and every
	// wait resolves on its own timeout.
	checkUpdateFn = `function (timeoutMs) {
  var state = globalThis.__mppreviewUpdate = { ready: false, failed: false }
  var manager = wx.getUpdateManager()
  manager.onUpdateReady(function () { state.ready = true })
  manager.onUpdateFailed(function () { state.failed = true })
  return new Promise(function (resolve) {
    manager.onCheckForUpdate(function (res) { resolve({ status: 'checked', hasUpdate: res.hasUpdate }) })
    setTimeout(function () { resolve({ status: 'timeout', hasUpdate: false }) }, timeoutMs)
  })
}`
	waitUpdateReadyFn = `function (timeoutMs) {
  var state = globalThis.__mppreviewUpdate || {}
  var deadline = Date.now() + timeoutMs
  return new Promise(function (resolve) {
    var poll = function () {
      if (state.ready) { return resolve('ready') }
      if (state.failed) { return resolve('failed') }
      if (Date.now() >= deadline) { return resolve('timeout') }
      setTimeout(poll, 100)
    }
    poll()
  })
}`
	applyUpdateFn = `function () { wx.getUpdateManager().applyUpdate() }`
	initCloudFn   = `function (env, traceUser) {
  if (!wx.cloud) { throw new Error('wx.cloud is not supported by this base library') }
  wx.cloud.init({ env: env, traceUser: traceUser })
}`
)

// RemotePlatform drives the wx APIs of a mini-program running in the
// DevTools through the automation endpoint.
type RemotePlatform struct {
	mp *automator.MiniProgram
}

// NewRemotePlatform wraps a connected mini-program.
func NewRemotePlatform(mp *automator.MiniProgram) *RemotePlatform {
	return &RemotePlatform{mp: mp}
}

func (p *RemotePlatform) SystemInfo(ctx context.Context) (json.RawMessage, error) {
	return p.mp.CallWxMethod(ctx, "getSystemInfoSync")
}

func (p *RemotePlatform) CanIUse(ctx context.Context, api string) (bool, error) {
	raw, err := p.mp.CallWxMethod(ctx, "canIUse", api)
	if err != nil {
		return false, err
	}
	var ok bool
	if err := json.Unmarshal(raw, &ok); err != nil {
		return false, fmt.Errorf("decode canIUse: %w", err)
	}
	return ok, nil
}

func (p *RemotePlatform) CheckForUpdate(ctx context.Context, wait time.Duration) (bool, error) {
	raw, err := p.mp.Evaluate(ctx, checkUpdateFn, wait.Milliseconds())
	if err != nil {
		return false, err
	}
	var res struct {
		Status    string `json:"status"`
		HasUpdate bool   `json:"hasUpdate"`
	}
	if err := json.Unmarshal(raw, &res); err != nil {
		return false, fmt.Errorf("decode update check: %w", err)
	}
	if res.Status != "checked" {
		return false, fmt.Errorf("%w: no check result after %s", ErrUpdateTimeout, wait)
	}
	return res.HasUpdate, nil
}

func (p *RemotePlatform) WaitUpdateReady(ctx context.Context, wait time.Duration) error {
	raw, err := p.mp.Evaluate(ctx, waitUpdateReadyFn, wait.Milliseconds())
	if err != nil {
		return err
	}
	var status string
	if err := json.Unmarshal(raw, &status); err != nil {
		return fmt.Errorf("decode update status: %w", err)
	}
	switch status {
	case "ready":
		return nil
	case "failed":
		return ErrUpdateFailed
	default:
		return fmt.Errorf("%w: new version not downloaded after %s", ErrUpdateTimeout, wait)
	}
}

func (p *RemotePlatform) ConfirmRestart(ctx context.Context, title, content string) (bool, error) {
	raw, err := p.mp.CallWxMethod(ctx, "showModal", map[string]string{"title": title, "content": content})
	if err != nil {
		return false, err
	}
	var res struct {
		Confirm bool `json:"confirm"`
	}
	if err := json.Unmarshal(raw, &res); err != nil {
		return false, fmt.Errorf("decode showModal: %w", err)
	}
	return res.Confirm, nil
}

func (p *RemotePlatform) ApplyUpdate(ctx context.Context) error {
	_, err := p.mp.Evaluate(ctx, applyUpdateFn)
	return err
}

func (p *RemotePlatform) InitCloud(ctx context.Context, envID string, traceUser bool) error {
	_, err := p.mp.Evaluate(ctx, initCloudFn, envID, traceUser)
	return err
}

func (p *RemotePlatform) Login(ctx context.Context) (string, error) {
	raw, err := p.mp.CallWxMethod(ctx, "login")
	if err != nil {
		return "", err
	}
	var res struct {
		Code string `json:"code"`
	}
	if err := json.Unmarshal(raw, &res); err != nil {
		return "", fmt.Errorf("decode login: %w", err)
	}
	return res.Code, nil
}

func (p *RemotePlatform) UserInfo(ctx context.Context) (*UserInfo, error) {
	raw, err := p.mp.CallWxMethod(ctx, "getUserInfo")
	if err != nil {
		return nil, err
	}
	var res struct {
		UserInfo *UserInfo `json:"userInfo"`
	}
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("decode getUserInfo: %w", err)
	}
	if res.UserInfo == nil {
		return nil, fmt.Errorf("getUserInfo returned no profile")
	}
	return res.UserInfo, nil
}

func (p *RemotePlatform) RedirectTo(ctx context.Context, url string) error {
	_, err := p.mp.RedirectTo(ctx, url)
	return err
}
