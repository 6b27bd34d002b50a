package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultEnv is used when the app configuration names no current environment.
const DefaultEnv = "development"

var errUnknownEnv = errors.New("config: unknown environment")

// App mirrors the mini-program's app configuration file.
type App struct {
	AppID         string               `yaml:"appId"`
	ProjectName   string               `yaml:"projectName"`
	ProjectNameEn string               `yaml:"projectNameEn"`
	Description   string               `yaml:"description"`
	Version       string               `yaml:"version"`
	Env           map[string]EnvConfig `yaml:"env"`
	CurrentEnv    string               `yaml:"currentEnv"`
	Cloud         CloudConfig          `yaml:"cloud"`
	Services      ServicesConfig       `yaml:"services"`
}

// EnvConfig is one entry of the environment-keyed API settings.
type EnvConfig struct {
	APIBaseURL string `yaml:"apiBaseUrl" json:"apiBaseUrl"`
	Debug      bool   `yaml:"debug" json:"debug"`
}

// CloudConfig toggles WeChat cloud development.
type CloudConfig struct {
	EnvID   string `yaml:"envId"`
	Enabled bool   `yaml:"enabled"`
}

// ServicesConfig holds third-party service toggles.
type ServicesConfig struct {
	COS COSConfig `yaml:"cos"`
}

// COSConfig configures Tencent Cloud object storage.
type COSConfig struct {
	Enabled bool   `yaml:"enabled"`
	Bucket  string `yaml:"bucket"`
	Region  string `yaml:"region"`
}

// LoadApp reads and parses the app configuration at path.
func LoadApp(path string) (*App, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read app config: %w", err)
	}
	return ParseApp(data)
}

// ParseApp parses YAML app configuration.
func ParseApp(data []byte) (*App, error) {
	var app App
	if err := yaml.Unmarshal(data, &app); err != nil {
		return nil, fmt.Errorf("parse app config: %w", err)
	}
	return &app, nil
}

// EnvName returns the configured environment name, defaulting to development.
func (a *App) EnvName() string {
	if a.CurrentEnv == "" {
		return DefaultEnv
	}
	return a.CurrentEnv
}

// EnvConfig returns the settings of the current environment.
func (a *App) EnvConfig() (EnvConfig, error) {
	name := a.EnvName()
	env, ok := a.Env[name]
	if !ok {
		return EnvConfig{}, fmt.Errorf("%w: %q", errUnknownEnv, name)
	}
	return env, nil
}
