package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/titanous/json5"
)

// Load reads config from a JSON5 file, then overlays env vars.
// A missing file is not an error: defaults + env apply.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides overlays env vars onto the config.
// Env vars take precedence over file values.
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	envStr("STOAT_BOT_TOKEN", &c.Platform.Token)
	envStr("STOAT_API_URL", &c.Platform.APIURL)
	envStr("STOAT_WS_URL", &c.Platform.WSURL)
	envStr("STOAT_GATEWAY_URL", &c.Gateway.URL)
	envStr("STOAT_GATEWAY_TOKEN", &c.Gateway.Token)
	envStr("STOAT_GATEWAY_AGENT", &c.Gateway.Agent)
	envStr("STOAT_COMMAND_PREFIX", &c.Bridge.CommandPrefix)
	envStr("STOAT_SETTINGS_PATH", &c.Settings.Path)

	envMs := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				*dst = n
			}
		}
	}
	envMs("STOAT_POLL_INTERVAL_MS", &c.Bridge.PollIntervalMs)
	envMs("STOAT_QUIET_WINDOW_MS", &c.Bridge.QuietWindowMs)
	envMs("STOAT_MAX_TURN_MS", &c.Bridge.MaxTurnMs)
}

// SettingsPath returns the settings file path with "~" expanded.
func (c *Config) SettingsPath() string {
	return expandHome(c.Settings.Path)
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}
