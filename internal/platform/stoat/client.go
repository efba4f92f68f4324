// Package stoat implements platform.Client against the Stoat API: REST for
// outbound operations and a WebSocket event feed for inbound events.
package stoat

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/Thalpy/stoat-ai-interface/internal/config"
	"github.com/Thalpy/stoat-ai-interface/internal/platform"
)

const (
	handshakeTimeout = 10 * time.Second
	readyTimeout     = 15 * time.Second
	pingInterval     = 30 * time.Second
)

// Client talks to Stoat: REST for send/react/edit/fetch, WebSocket for the
// event feed and typing indicators.
type Client struct {
	cfg     config.PlatformConfig
	http    *http.Client
	limiter *rate.Limiter

	mu       sync.Mutex
	conn     *websocket.Conn
	identity platform.Identity
	ready    chan struct{}

	onMessage  platform.MessageHandler
	onReaction platform.ReactionHandler

	userNames   sync.Map // userID → display name
	directChans sync.Map // channelID → bool

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates an unconnected client from config.
func New(cfg config.PlatformConfig) *Client {
	rps := cfg.SendRatePerSec
	if rps <= 0 {
		rps = 5
	}
	burst := cfg.SendBurst
	if burst <= 0 {
		burst = 10
	}
	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: 30 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		ready:   make(chan struct{}),
	}
}

// HandleMessage registers the message-created handler. Must be called
// before Connect.
func (c *Client) HandleMessage(h platform.MessageHandler) { c.onMessage = h }

// HandleReaction registers the reaction-added handler. Must be called
// before Connect.
func (c *Client) HandleReaction(h platform.ReactionHandler) { c.onReaction = h }

// Identity returns the connected bot account. Valid after Connect.
func (c *Client) Identity() platform.Identity {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.identity
}

// Connect authenticates against the REST API, opens the event socket, and
// starts the listen/ping loops. Any failure here is returned to the caller;
// the bridge treats it as fatal.
func (c *Client) Connect(ctx context.Context) error {
	if c.cfg.Token == "" {
		return fmt.Errorf("stoat: bot token not configured")
	}

	var me struct {
		ID       string `json:"_id"`
		Username string `json:"username"`
	}
	if err := c.rest(ctx, http.MethodGet, "/users/@me", nil, &me); err != nil {
		return fmt.Errorf("stoat login: %w", err)
	}

	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, c.cfg.WSURL, nil)
	if err != nil {
		return fmt.Errorf("dial stoat event socket %s: %w", c.cfg.WSURL, err)
	}

	c.mu.Lock()
	c.conn = conn
	c.identity = platform.Identity{ID: me.ID, Username: me.Username}
	c.mu.Unlock()

	if err := c.writeFrame(map[string]any{"type": "Authenticate", "token": c.cfg.Token}); err != nil {
		conn.Close()
		return fmt.Errorf("stoat authenticate: %w", err)
	}

	c.ctx, c.cancel = context.WithCancel(context.Background())
	go c.listenLoop()
	go c.pingLoop()

	select {
	case <-c.ready:
	case <-time.After(readyTimeout):
		c.Close()
		return fmt.Errorf("stoat: no Ready event within %s", readyTimeout)
	case <-ctx.Done():
		c.Close()
		return ctx.Err()
	}

	slog.Info("stoat connected", "bot_id", me.ID, "username", me.Username)
	return nil
}

// Close tears down the event socket.
func (c *Client) Close() error {
	if c.cancel != nil {
		c.cancel()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		err := c.conn.Close()
		c.conn = nil
		return err
	}
	return nil
}

func (c *Client) writeFrame(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return fmt.Errorf("stoat event socket not connected")
	}
	return c.conn.WriteJSON(v)
}

func (c *Client) pingLoop() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			if err := c.writeFrame(map[string]any{"type": "Ping", "data": time.Now().UnixMilli()}); err != nil {
				slog.Warn("stoat ping failed", "error", err)
			}
		}
	}
}

func (c *Client) listenLoop() {
	for {
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn == nil {
			return
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			if c.ctx.Err() == nil {
				slog.Error("stoat event socket read failed", "error", err)
			}
			return
		}
		c.handleFrame(data)
	}
}

func (c *Client) handleFrame(data []byte) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		slog.Debug("stoat: undecodable frame", "error", err)
		return
	}

	switch envelope.Type {
	case "Ready":
		var ev readyEvent
		if err := json.Unmarshal(data, &ev); err == nil {
			for _, ch := range ev.Channels {
				c.directChans.Store(ch.ID, ch.ChannelType == "DirectMessage")
			}
			for _, u := range ev.Users {
				c.userNames.Store(u.ID, u.Username)
			}
		}
		select {
		case <-c.ready:
		default:
			close(c.ready)
		}

	case "Message":
		var ev messageEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			slog.Debug("stoat: bad message event", "error", err)
			return
		}
		if c.onMessage != nil {
			c.onMessage(c.normalizeMessage(ev))
		}

	case "MessageReact":
		var ev reactEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			slog.Debug("stoat: bad reaction event", "error", err)
			return
		}
		if c.onReaction != nil {
			c.onReaction(platform.Reaction{
				MessageID: ev.ID,
				ChannelID: ev.ChannelID,
				UserID:    ev.UserID,
				Symbol:    ev.EmojiID,
				IsDirect:  c.isDirect(ev.ChannelID),
			})
		}

	case "ChannelCreate":
		var ev channelInfo
		if err := json.Unmarshal(data, &ev); err == nil && ev.ID != "" {
			c.directChans.Store(ev.ID, ev.ChannelType == "DirectMessage")
		}
	}
}

// StartTyping begins a typing indicator. Typing is signaled over the event
// socket, not REST.
func (c *Client) StartTyping(_ context.Context, channelID string) error {
	return c.writeFrame(map[string]any{"type": "BeginTyping", "channel": channelID})
}

// StopTyping ends a typing indicator.
func (c *Client) StopTyping(_ context.Context, channelID string) error {
	return c.writeFrame(map[string]any{"type": "EndTyping", "channel": channelID})
}

func (c *Client) isDirect(channelID string) bool {
	if v, ok := c.directChans.Load(channelID); ok {
		return v.(bool)
	}
	// Unknown channel: fetch and cache. Best-effort — default to non-direct.
	var ch channelInfo
	ctx, cancelFn := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelFn()
	if err := c.rest(ctx, http.MethodGet, "/channels/"+channelID, nil, &ch); err != nil {
		slog.Debug("stoat: channel lookup failed", "channel", channelID, "error", err)
		return false
	}
	direct := ch.ChannelType == "DirectMessage"
	c.directChans.Store(channelID, direct)
	return direct
}

func (c *Client) resolveUsername(ctx context.Context, userID string) string {
	if v, ok := c.userNames.Load(userID); ok {
		return v.(string)
	}
	var u struct {
		Username string `json:"username"`
	}
	if err := c.rest(ctx, http.MethodGet, "/users/"+userID, nil, &u); err != nil || u.Username == "" {
		return userID
	}
	c.userNames.Store(userID, u.Username)
	return u.Username
}
