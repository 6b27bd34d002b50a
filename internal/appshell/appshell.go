// Package appshell holds the mini-program application context: lifecycle
// hooks, process-wide state and environment configuration.
package appshell

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/v0xg/mppreview/internal/config"
)

// HomePage is where unknown routes are redirected.
const HomePage = "/pages/index/index"

// DefaultUpdateTimeout bounds each wait on the update manager.
const DefaultUpdateTimeout = 10 * time.Second

// updateGrace is added to the platform-side wait so a platform timeout is
// reported before the context deadline cuts the call.
const updateGrace = 2 * time.Second

var (
	// ErrUpdateTimeout is returned when the update manager reports nothing
	// within the wait.
	ErrUpdateTimeout = errors.New("appshell: update manager timed out")
	// ErrUpdateFailed is returned when the new version failed to download.
	ErrUpdateFailed = errors.New("appshell: new version download failed")
)

// Platform is the subset of wx APIs the application shell relies on.
type Platform interface {
	SystemInfo(ctx context.Context) (json.RawMessage, error)
	CanIUse(ctx context.Context, api string) (bool, error)
	// CheckForUpdate waits up to wait for the update check result.
	CheckForUpdate(ctx context.Context, wait time.Duration) (bool, error)
	// WaitUpdateReady waits up to wait for the new version to download. It
	// returns ErrUpdateFailed or ErrUpdateTimeout when it does not.
	WaitUpdateReady(ctx context.Context, wait time.Duration) error
	ConfirmRestart(ctx context.Context, title, content string) (bool, error)
	ApplyUpdate(ctx context.Context) error
	InitCloud(ctx context.Context, envID string, traceUser bool) error
	Login(ctx context.Context) (string, error)
	UserInfo(ctx context.Context) (*UserInfo, error)
	RedirectTo(ctx context.Context, url string) error
}

// UserInfo is the profile returned by wx.getUserInfo.
type UserInfo struct {
	NickName  string `json:"nickName"`
	AvatarURL string `json:"avatarUrl"`
	Gender    int    `json:"gender"`
	Country   string `json:"country"`
	Province  string `json:"province"`
	City      string `json:"city"`
	Language  string `json:"language"`
}

// LaunchOptions are passed to OnLaunch and OnShow.
type LaunchOptions struct {
	Path  string            `json:"path"`
	Query map[string]string `json:"query"`
	Scene int               `json:"scene"`
}

// PageNotFound describes a route that does not exist.
type PageNotFound struct {
	Path        string            `json:"path"`
	Query       map[string]string `json:"query"`
	IsEntryPage bool              `json:"isEntryPage"`
}

// UpdateStatus records the outcome of the launch-time update check.
type UpdateStatus struct {
	Checked   bool
	HasUpdate bool
	Ready     bool
	Failed    bool
	Applied   bool
}

// AppContext is created at launch and lives for the whole process.
type AppContext struct {
	config   *config.App
	platform Platform
	logger   *zap.Logger

	updateTimeout time.Duration

	mu         sync.Mutex
	systemInfo json.RawMessage
	userInfo   *UserInfo
	hasLogin   bool
	cloudReady bool
	update     UpdateStatus
}

// New returns the application context for cfg.
func New(cfg *config.App, platform Platform, logger *zap.Logger) *AppContext {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AppContext{config: cfg, platform: platform, logger: logger, updateTimeout: DefaultUpdateTimeout}
}

// WithUpdateTimeout sets how long each update manager step may take.
func (a *AppContext) WithUpdateTimeout(d time.Duration) *AppContext {
	if d > 0 {
		a.updateTimeout = d
	}
	return a
}

// OnLaunch runs once when the mini-program starts: it records system info,
// checks for an update and initializes cloud development when enabled.
// Failures are logged and never abort the launch.
func (a *AppContext) OnLaunch(ctx context.Context, opts LaunchOptions) {
	a.logger.Info("app launched", zap.String("path", opts.Path), zap.Int("scene", opts.Scene))

	a.loadSystemInfo(ctx)
	a.checkUpdate(ctx)
	if a.config.Cloud.Enabled {
		a.initCloud(ctx)
	}
}

// OnShow runs when the mini-program enters the foreground.
func (a *AppContext) OnShow(_ context.Context, opts LaunchOptions) {
	a.logger.Info("app shown", zap.String("path", opts.Path), zap.Int("scene", opts.Scene))
}

// OnHide runs when the mini-program enters the background.
func (a *AppContext) OnHide(context.Context) {
	a.logger.Info("app hidden")
}

// OnError runs on script errors and failed API calls.
func (a *AppContext) OnError(_ context.Context, msg string) {
	a.logger.Error("app error", zap.String("message", msg))
}

// OnPageNotFound redirects unknown routes to the home page.
func (a *AppContext) OnPageNotFound(ctx context.Context, res PageNotFound) error {
	a.logger.Warn("page not found", zap.String("path", res.Path))
	if err := a.platform.RedirectTo(ctx, HomePage); err != nil {
		return fmt.Errorf("redirect to %s: %w", HomePage, err)
	}
	return nil
}

func (a *AppContext) loadSystemInfo(ctx context.Context) {
	info, err := a.platform.SystemInfo(ctx)
	if err != nil {
		a.logger.Error("failed to get system info", zap.Error(err))
		return
	}
	a.mu.Lock()
	a.systemInfo = info
	a.mu.Unlock()
	a.logger.Debug("system info", zap.ByteString("info", info))
}

func (a *AppContext) checkUpdate(ctx context.Context) {
	ok, err := a.platform.CanIUse(ctx, "getUpdateManager")
	if err != nil || !ok {
		a.logger.Debug("update manager unavailable", zap.Error(err))
		return
	}

	status := a.runUpdate(ctx)
	a.mu.Lock()
	a.update = status
	a.mu.Unlock()
}

// runUpdate follows the update manager events: check, then ready or
// failed, and only restarts once the new version is ready.
func (a *AppContext) runUpdate(ctx context.Context) UpdateStatus {
	var status UpdateStatus

	err := a.withUpdateDeadline(ctx, func(ctx context.Context) error {
		var err error
		status.HasUpdate, err = a.platform.CheckForUpdate(ctx, a.updateTimeout)
		return err
	})
	if err != nil {
		a.logger.Warn("update check skipped", zap.Error(err))
		return UpdateStatus{}
	}
	status.Checked = true
	a.logger.Info("update checked", zap.Bool("hasUpdate", status.HasUpdate))
	if !status.HasUpdate {
		return status
	}

	err = a.withUpdateDeadline(ctx, func(ctx context.Context) error {
		return a.platform.WaitUpdateReady(ctx, a.updateTimeout)
	})
	switch {
	case errors.Is(err, ErrUpdateFailed):
		status.Failed = true
		a.logger.Error("new version download failed", zap.Error(err))
		return status
	case err != nil:
		a.logger.Warn("new version not ready", zap.Error(err))
		return status
	}
	status.Ready = true

	confirm, err := a.platform.ConfirmRestart(ctx, "Update available", "A new version is ready. Restart the app now?")
	switch {
	case err != nil:
		a.logger.Error("update prompt failed", zap.Error(err))
	case confirm:
		if err := a.platform.ApplyUpdate(ctx); err != nil {
			a.logger.Error("apply update failed", zap.Error(err))
		} else {
			status.Applied = true
		}
	}
	return status
}

func (a *AppContext) withUpdateDeadline(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, a.updateTimeout+updateGrace)
	defer cancel()
	return fn(ctx)
}

func (a *AppContext) initCloud(ctx context.Context) {
	if err := a.platform.InitCloud(ctx, a.config.Cloud.EnvID, true); err != nil {
		a.logger.Warn("cloud development unavailable", zap.Error(err))
		return
	}
	a.mu.Lock()
	a.cloudReady = true
	a.mu.Unlock()
	a.logger.Info("cloud development initialized", zap.String("env", a.config.Cloud.EnvID))
}

// UserInfo returns the cached profile, logging in first when needed.
func (a *AppContext) UserInfo(ctx context.Context) (*UserInfo, error) {
	a.mu.Lock()
	cached := a.userInfo
	a.mu.Unlock()
	if cached != nil {
		return cached, nil
	}

	if _, err := a.platform.Login(ctx); err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	info, err := a.platform.UserInfo(ctx)
	if err != nil {
		a.logger.Error("failed to get user info", zap.Error(err))
		return nil, fmt.Errorf("get user info: %w", err)
	}

	a.mu.Lock()
	a.userInfo = info
	a.hasLogin = true
	a.mu.Unlock()
	return info, nil
}

// EnvConfig returns the settings of the configured environment.
func (a *AppContext) EnvConfig() (config.EnvConfig, error) {
	return a.config.EnvConfig()
}

// Config returns the app configuration.
func (a *AppContext) Config() *config.App {
	return a.config
}

// SystemInfo returns the system info captured at launch, or nil.
func (a *AppContext) SystemInfo() json.RawMessage {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.systemInfo
}

// HasLogin reports whether a user has logged in.
func (a *AppContext) HasLogin() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.hasLogin
}

// CloudReady reports whether cloud development was initialized.
func (a *AppContext) CloudReady() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cloudReady
}

// Update returns the outcome of the launch-time update check.
func (a *AppContext) Update() UpdateStatus {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.update
}
