package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Defaults used when neither the environment nor the command line set a value.
const (
	DefaultHost      = "localhost"
	DefaultWSPort    = 9420
	DefaultOutputDir = "./screenshots"
	DefaultSettle    = 1500 * time.Millisecond
	DefaultPause     = 1000 * time.Millisecond
)

var (
	errInvalidPort     = errors.New("config: invalid MPPREVIEW_WS_PORT number")
	errNegativeSettle  = errors.New("config: MPPREVIEW_SETTLE_MS must not be negative")
	errNegativePause   = errors.New("config: MPPREVIEW_PAUSE_MS must not be negative")
	errUnknownReviewer = errors.New("config: MPPREVIEW_REVIEW_PROVIDER must be claude or openai")
)

// Tool holds the preview tool configuration loaded from environment variables.
type Tool struct {
	Host           string
	WSPort         int
	OutputDir      string
	Settle         time.Duration
	Pause          time.Duration
	LogLevel       string
	ReviewProvider string
}

// LoadTool reads the tool configuration from the environment with defaults.
func LoadTool() (Tool, error) {
	cfg := Tool{
		Host:           getEnv("MPPREVIEW_HOST", DefaultHost),
		WSPort:         getEnvAsInt("MPPREVIEW_WS_PORT", DefaultWSPort),
		OutputDir:      getEnv("MPPREVIEW_OUTPUT_DIR", DefaultOutputDir),
		Settle:         getEnvAsMillis("MPPREVIEW_SETTLE_MS", DefaultSettle),
		Pause:          getEnvAsMillis("MPPREVIEW_PAUSE_MS", DefaultPause),
		LogLevel:       getEnv("MPPREVIEW_LOG_LEVEL", "info"),
		ReviewProvider: os.Getenv("MPPREVIEW_REVIEW_PROVIDER"),
	}

	return cfg, cfg.Validate()
}

// Validate reports the first invalid field.
func (c Tool) Validate() error {
	if !ValidPort(c.WSPort) {
		return fmt.Errorf("%w: %d", errInvalidPort, c.WSPort)
	}
	if c.Settle < 0 {
		return fmt.Errorf("%w: %s", errNegativeSettle, c.Settle)
	}
	if c.Pause < 0 {
		return fmt.Errorf("%w: %s", errNegativePause, c.Pause)
	}
	switch c.ReviewProvider {
	case "", "claude", "anthropic", "openai", "gpt":
	default:
		return fmt.Errorf("%w: %q", errUnknownReviewer, c.ReviewProvider)
	}
	return nil
}

// ValidPort reports whether port is a usable TCP port.
func ValidPort(port int) bool {
	return port >= 1 && port <= 65535
}

// ParsePort parses s as a port, returning fallback when s is empty or not a
// valid port. The boolean is false when s was set but unusable.
func ParsePort(s string, fallback int) (int, bool) {
	if s == "" {
		return fallback, true
	}
	v, err := strconv.Atoi(s)
	if err != nil || !ValidPort(v) {
		return fallback, false
	}
	return v, true
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	s := os.Getenv(key)
	if s == "" {
		return fallback
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return v
}

func getEnvAsMillis(key string, fallback time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return fallback
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return time.Duration(v) * time.Millisecond
}
