package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/Thalpy/stoat-ai-interface/internal/config"
	"github.com/Thalpy/stoat-ai-interface/pkg/protocol"
)

// GatewayClient speaks the agent gateway's WebSocket protocol. One socket
// carries all conversations; reply events are demultiplexed by session key.
type GatewayClient struct {
	cfg config.GatewayConfig

	mu   sync.Mutex
	conn *websocket.Conn

	onReply   ReplyHandler
	onFailure FailureHandler

	ctx    context.Context
	cancel context.CancelFunc
}

// NewGatewayClient creates an unconnected gateway client.
func NewGatewayClient(cfg config.GatewayConfig) *GatewayClient {
	return &GatewayClient{cfg: cfg}
}

// HandleReply registers the reply delivery handler. Must precede Connect.
func (g *GatewayClient) HandleReply(h ReplyHandler) { g.onReply = h }

// HandleFailure registers the run failure handler. Must precede Connect.
func (g *GatewayClient) HandleFailure(h FailureHandler) { g.onFailure = h }

// ResolveRoutingKey maps a conversation to its gateway session key.
func (g *GatewayClient) ResolveRoutingKey(d Descriptor) string {
	agent := g.cfg.Agent
	if agent == "" {
		agent = "default"
	}
	return RoutingKey(agent, d.ChannelID, d.IsDirect)
}

// Connect dials the gateway and starts the read loop. Fatal on failure.
func (g *GatewayClient) Connect(ctx context.Context) error {
	header := http.Header{}
	if g.cfg.Token != "" {
		header.Set("Authorization", "Bearer "+g.cfg.Token)
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, g.cfg.URL, header)
	if err != nil {
		return fmt.Errorf("dial agent gateway %s: %w", g.cfg.URL, err)
	}

	g.mu.Lock()
	g.conn = conn
	g.mu.Unlock()

	if err := g.write(protocol.Frame{Method: protocol.MethodConnect, ID: uuid.NewString()}); err != nil {
		conn.Close()
		return fmt.Errorf("gateway connect frame: %w", err)
	}

	g.ctx, g.cancel = context.WithCancel(context.Background())
	go g.readLoop()

	slog.Info("agent gateway connected", "url", g.cfg.URL)
	return nil
}

// Close tears down the gateway socket.
func (g *GatewayClient) Close() error {
	if g.cancel != nil {
		g.cancel()
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.conn != nil {
		err := g.conn.Close()
		g.conn = nil
		return err
	}
	return nil
}

// Dispatch submits a prompt for a routing key. The gateway streams replies
// back as events; this returns as soon as the frame is written.
func (g *GatewayClient) Dispatch(ctx context.Context, routingKey, prompt string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return g.write(protocol.Frame{
		Method:     protocol.MethodDispatch,
		ID:         uuid.NewString(),
		SessionKey: routingKey,
		Content:    prompt,
	})
}

func (g *GatewayClient) write(f protocol.Frame) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.conn == nil {
		return fmt.Errorf("agent gateway not connected")
	}
	return g.conn.WriteJSON(f)
}

func (g *GatewayClient) readLoop() {
	for {
		g.mu.Lock()
		conn := g.conn
		g.mu.Unlock()
		if conn == nil {
			return
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			if g.ctx.Err() == nil {
				slog.Error("agent gateway read failed", "error", err)
			}
			return
		}

		var f protocol.Frame
		if err := json.Unmarshal(data, &f); err != nil {
			slog.Debug("gateway: undecodable frame", "error", err)
			continue
		}

		switch f.Event {
		case protocol.EventReply:
			if g.onReply != nil && f.SessionKey != "" {
				g.onReply(f.SessionKey, f.Content)
			}
		case protocol.EventRunFailed:
			slog.Warn("gateway run failed", "session", f.SessionKey, "error", f.Error)
			if g.onFailure != nil && f.SessionKey != "" {
				g.onFailure(f.SessionKey, f.Error)
			}
		case protocol.EventConnected, protocol.EventPong:
			// acknowledgements, nothing to do
		}
	}
}
