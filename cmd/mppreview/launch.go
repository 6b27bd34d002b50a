package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/v0xg/mppreview/internal/appshell"
	"github.com/v0xg/mppreview/internal/automator"
	"github.com/v0xg/mppreview/internal/config"
)

type launchFlags struct {
	configPath    string
	port          int
	login         bool
	updateTimeout time.Duration
}

func newLaunchCmd(c *cli) *cobra.Command {
	f := &launchFlags{}
	cmd := &cobra.Command{
		Use:   "launch",
		Short: "Run the app launch sequence against the running mini-program",
		Long: `launch connects to the DevTools automation endpoint, runs the
application launch hooks (system info, update check, cloud init) inside the
running mini-program and prints the resulting application state.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.launch(cmd, f)
		},
	}
	cmd.Flags().StringVar(&f.configPath, "config", "app.config.yaml", "Mini-program app configuration")
	cmd.Flags().IntVar(&f.port, "port", c.cfg.WSPort, "DevTools automation port")
	cmd.Flags().BoolVar(&f.login, "login", false, "Also log in and fetch the user profile")
	cmd.Flags().DurationVar(&f.updateTimeout, "update-timeout", appshell.DefaultUpdateTimeout, "Wait for each update manager event")
	return cmd
}

func (c *cli) launch(cmd *cobra.Command, f *launchFlags) error {
	appCfg, err := config.LoadApp(f.configPath)
	if err != nil {
		return err
	}
	if !config.ValidPort(f.port) {
		return fmt.Errorf("invalid port: %d", f.port)
	}

	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	endpoint := automator.Endpoint(c.host, f.port)

	fmt.Fprintf(out, "→ Connecting to %s... ", endpoint)
	mp, err := automator.Connect(ctx, endpoint, c.logger)
	if err != nil {
		fmt.Fprintln(out, "failed")
		return fmt.Errorf("connect failed: %w", err)
	}
	fmt.Fprintln(out, "done")
	defer func() { _ = mp.Disconnect() }()

	app := appshell.New(appCfg, appshell.NewRemotePlatform(mp), c.logger).WithUpdateTimeout(f.updateTimeout)
	opts := appshell.LaunchOptions{Path: appshell.HomePage, Scene: 1001}

	fmt.Fprint(out, "→ Running launch hooks... ")
	app.OnLaunch(ctx, opts)
	app.OnShow(ctx, opts)
	fmt.Fprintln(out, "done")

	var user *appshell.UserInfo
	if f.login {
		fmt.Fprint(out, "→ Logging in... ")
		if user, err = app.UserInfo(ctx); err != nil {
			fmt.Fprintln(out, "failed")
			return err
		}
		fmt.Fprintln(out, "done")
	}

	return printState(out, app, user)
}

func printState(out io.Writer, app *appshell.AppContext, user *appshell.UserInfo) error {
	cfg := app.Config()
	line := strings.Repeat("=", 60)

	fmt.Fprintln(out, line)
	fmt.Fprintf(out, "App:      %s (%s)\n", cfg.ProjectName, cfg.AppID)
	if cfg.Version != "" {
		fmt.Fprintf(out, "Version:  %s\n", cfg.Version)
	}

	env, err := app.EnvConfig()
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Env:      %s (%s, debug=%t)\n", cfg.EnvName(), env.APIBaseURL, env.Debug)

	if raw := app.SystemInfo(); raw != nil {
		var info struct {
			Brand      string `json:"brand"`
			Model      string `json:"model"`
			Platform   string `json:"platform"`
			SDKVersion string `json:"SDKVersion"`
		}
		if err := json.Unmarshal(raw, &info); err == nil {
			fmt.Fprintf(out, "Device:   %s %s (%s, base library %s)\n", info.Brand, info.Model, info.Platform, info.SDKVersion)
		}
	} else {
		fmt.Fprintln(out, "Device:   unknown")
	}

	update := app.Update()
	switch {
	case update.Applied:
		fmt.Fprintln(out, "Update:   applied")
	case update.Failed:
		fmt.Fprintln(out, "Update:   download failed")
	case update.Ready:
		fmt.Fprintln(out, "Update:   ready, restart declined")
	case update.HasUpdate:
		fmt.Fprintln(out, "Update:   available, not downloaded")
	case update.Checked:
		fmt.Fprintln(out, "Update:   up to date")
	default:
		fmt.Fprintln(out, "Update:   not checked")
	}

	switch {
	case !cfg.Cloud.Enabled:
		fmt.Fprintln(out, "Cloud:    disabled")
	case app.CloudReady():
		fmt.Fprintf(out, "Cloud:    ready (%s)\n", cfg.Cloud.EnvID)
	default:
		fmt.Fprintln(out, "Cloud:    unavailable")
	}

	if user != nil {
		fmt.Fprintf(out, "User:     %s\n", user.NickName)
	}
	fmt.Fprintln(out, line)
	return nil
}
