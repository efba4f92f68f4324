// Package config holds the bridge configuration: platform credentials,
// gateway endpoint, trigger/command behavior, and turn timing tunables.
package config

// Config is the root configuration for the Stoat AI bridge.
type Config struct {
	Platform PlatformConfig `json:"platform"`
	Gateway  GatewayConfig  `json:"gateway"`
	Bridge   BridgeConfig   `json:"bridge"`
	Settings SettingsConfig `json:"settings"`
}

// PlatformConfig configures the Stoat connection.
// Token is never persisted to the config file — env STOAT_BOT_TOKEN only.
type PlatformConfig struct {
	APIURL string `json:"api_url"` // REST base, e.g. "https://api.stoat.chat"
	WSURL  string `json:"ws_url"`  // event socket, e.g. "wss://ws.stoat.chat"
	Token  string `json:"-"`

	// SendRatePerSec bounds outbound REST calls (send/react/edit).
	SendRatePerSec float64 `json:"send_rate_per_sec,omitempty"`
	SendBurst      int     `json:"send_burst,omitempty"`
}

// GatewayConfig configures the agent gateway the bridge dispatches prompts to.
// Token from env STOAT_GATEWAY_TOKEN only.
type GatewayConfig struct {
	URL   string `json:"url"` // e.g. "ws://127.0.0.1:18790/ws"
	Token string `json:"-"`
	Agent string `json:"agent,omitempty"` // routing key agent segment (default "default")
}

// BridgeConfig controls trigger and turn behavior.
type BridgeConfig struct {
	CommandPrefix string `json:"command_prefix,omitempty"` // default "!"

	// Turn timing (quiescence detection). All in milliseconds.
	// A turn is finished once no reply has arrived for QuietWindowMs,
	// checked every PollIntervalMs; MaxTurnMs is the hard ceiling.
	PollIntervalMs int `json:"poll_interval_ms,omitempty"` // default 500
	QuietWindowMs  int `json:"quiet_window_ms,omitempty"`  // default 3000
	MaxTurnMs      int `json:"max_turn_ms,omitempty"`      // default 180000

	// InteractiveTTLMs is how long reaction-button messages stay live.
	InteractiveTTLMs int `json:"interactive_ttl_ms,omitempty"` // default 600000

	Reactions ReactionConfig `json:"reactions,omitempty"`
}

// ReactionConfig maps turn states to the emoji shown on the triggering
// message. The Cancel symbol doubles as the stop button: a reaction-add
// with this symbol on a tracked message requests cancellation.
type ReactionConfig struct {
	Queued     string `json:"queued,omitempty"`     // default "⏳"
	Processing string `json:"processing,omitempty"` // default "⚙️"
	Complete   string `json:"complete,omitempty"`   // default "✅"
	Cancelled  string `json:"cancelled,omitempty"`  // default "🛑"
	Failed     string `json:"failed,omitempty"`     // default "❌"
	Cancel     string `json:"cancel,omitempty"`     // default "🛑"
}

// SettingsConfig configures per-conversation settings persistence.
type SettingsConfig struct {
	Path string `json:"path,omitempty"` // default "~/.stoat-bridge/settings.json"
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Platform: PlatformConfig{
			APIURL:         "https://api.stoat.chat",
			WSURL:          "wss://ws.stoat.chat",
			SendRatePerSec: 5,
			SendBurst:      10,
		},
		Gateway: GatewayConfig{
			URL:   "ws://127.0.0.1:18790/ws",
			Agent: "default",
		},
		Bridge: BridgeConfig{
			CommandPrefix:    "!",
			PollIntervalMs:   500,
			QuietWindowMs:    3000,
			MaxTurnMs:        180000,
			InteractiveTTLMs: 600000,
			Reactions: ReactionConfig{
				Queued:     "⏳",
				Processing: "⚙️",
				Complete:   "✅",
				Cancelled:  "🛑",
				Failed:     "❌",
				Cancel:     "🛑",
			},
		},
		Settings: SettingsConfig{
			Path: "~/.stoat-bridge/settings.json",
		},
	}
}
