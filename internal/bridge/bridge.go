// Package bridge wires the platform event feed to the trigger classifier,
// the per-conversation queue, the settings store, and the interactive
// registry. It owns the bridge lifecycle: Start connects the platform and
// fails fatally if that connect fails; Stop drains running turns.
package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Thalpy/stoat-ai-interface/internal/config"
	"github.com/Thalpy/stoat-ai-interface/internal/dispatch"
	"github.com/Thalpy/stoat-ai-interface/internal/interactive"
	"github.com/Thalpy/stoat-ai-interface/internal/platform"
	"github.com/Thalpy/stoat-ai-interface/internal/queue"
	"github.com/Thalpy/stoat-ai-interface/internal/settings"
	"github.com/Thalpy/stoat-ai-interface/internal/trigger"
)

// botMessageHistory is how many recently sent bot message ids are kept for
// reply-to-bot detection.
const botMessageHistory = 256

// Bridge is the top-level coordinator.
type Bridge struct {
	platform   platform.Client
	dispatcher dispatch.Dispatcher
	settings   *settings.Store
	registry   *interactive.Registry
	queue      *queue.Processor

	agent          string
	commandPrefix  string
	reactions      config.ReactionConfig
	interactiveTTL time.Duration

	sentIDs *messageRing

	ctx context.Context
}

// New builds the bridge and registers its handlers on the platform client
// and dispatcher. Call Start to connect.
func New(pc platform.Client, d dispatch.Dispatcher, store *settings.Store, cfg *config.Config) *Bridge {
	b := &Bridge{
		platform:       pc,
		dispatcher:     d,
		settings:       store,
		registry:       interactive.New(),
		agent:          cfg.Gateway.Agent,
		commandPrefix:  cfg.Bridge.CommandPrefix,
		reactions:      cfg.Bridge.Reactions,
		interactiveTTL: time.Duration(cfg.Bridge.InteractiveTTLMs) * time.Millisecond,
		sentIDs:        newMessageRing(botMessageHistory),
		ctx:            context.Background(),
	}

	b.queue = queue.New(pc, d, queue.Config{
		Reactions:    cfg.Bridge.Reactions,
		PollInterval: time.Duration(cfg.Bridge.PollIntervalMs) * time.Millisecond,
		QuietWindow:  time.Duration(cfg.Bridge.QuietWindowMs) * time.Millisecond,
		MaxTurn:      time.Duration(cfg.Bridge.MaxTurnMs) * time.Millisecond,
	}, b.sentIDs.Add)

	d.HandleReply(b.queue.HandleReply)
	d.HandleFailure(b.queue.HandleFailure)
	pc.HandleMessage(b.onMessage)
	pc.HandleReaction(b.onReaction)
	return b
}

// Registry exposes the interactive registry so callers sending rich replies
// can bind reaction actions to them.
func (b *Bridge) Registry() *interactive.Registry { return b.registry }

// Start connects the platform. A connect failure is returned as-is; there
// is no retry.
func (b *Bridge) Start(ctx context.Context) error {
	b.ctx = ctx
	if err := b.platform.Connect(ctx); err != nil {
		return fmt.Errorf("platform connect: %w", err)
	}
	id := b.platform.Identity()
	slog.Info("bridge started", "bot_id", id.ID, "username", id.Username)
	return nil
}

// Stop cancels running turns and closes the platform connection.
func (b *Bridge) Stop() {
	b.queue.Stop()
	if err := b.platform.Close(); err != nil {
		slog.Warn("platform close", "error", err)
	}
	slog.Info("bridge stopped")
}

func (b *Bridge) onMessage(msg platform.Message) {
	bot := b.platform.Identity()
	cs := b.settings.Get(msg.ChannelID)

	dec := trigger.Classify(msg, bot, trigger.Options{
		CommandPrefix: b.commandPrefix,
		RespondToAll:  cs.RespondToAll,
		BotMessageIDs: b.sentIDs.Snapshot(),
	})
	if !dec.Process {
		slog.Debug("message ignored", "channel", msg.ChannelID, "message", msg.ID)
		return
	}
	slog.Debug("message accepted",
		"channel", msg.ChannelID, "message", msg.ID, "reason", dec.Reason)

	text := trigger.StripMentions(msg.Content, bot.ID)

	if dec.Reason == trigger.ReasonCommand {
		b.runCommand(msg, text)
		return
	}

	b.queue.Submit(queue.Trigger{
		ID:             msg.ID,
		ConversationID: msg.ChannelID,
		AuthorID:       msg.AuthorID,
		AuthorName:     msg.AuthorName,
		Text:           text,
		ReceivedAt:     msg.ReceivedAt,
		IsDirect:       msg.IsDirect,
	})
}

func (b *Bridge) onReaction(r platform.Reaction) {
	// The bridge's own indicator reactions come back as events too.
	if r.UserID == b.platform.Identity().ID {
		return
	}

	// Stop button: the cancel symbol on a submitted trigger message.
	if r.Symbol == b.reactions.Cancel && b.queue.IsTracked(r.ChannelID, r.MessageID) {
		stopped := b.queue.RequestCancel(r.ChannelID, r.MessageID)
		slog.Info("cancellation requested",
			"channel", r.ChannelID, "message", r.MessageID,
			"user", r.UserID, "stopped_running", stopped)
		return
	}

	if action, routingKey, ok := b.registry.Resolve(r.MessageID, r.Symbol); ok {
		b.runAction(action, routingKey, r)
		return
	}

	// Unregistered message: global emoji bindings, routing key re-derived
	// from the message's conversation.
	if action, ok := interactive.GlobalAction(r.Symbol); ok {
		key := dispatch.RoutingKey(b.agent, r.ChannelID, r.IsDirect)
		b.runAction(action, key, r)
	}
}

// runAction forwards a resolved reaction action to the agent gateway as a
// directive prompt on the resolved routing key.
func (b *Bridge) runAction(action, routingKey string, r platform.Reaction) {
	slog.Info("interactive action",
		"action", action, "message", r.MessageID, "user", r.UserID)
	if err := b.dispatcher.Dispatch(b.ctx, routingKey, "/"+action); err != nil {
		slog.Warn("interactive action dispatch failed", "action", action, "error", err)
	}
}

// reply sends a channel message quoting src and records the sent id for
// reply-to-bot detection. Errors are logged and swallowed.
func (b *Bridge) reply(src platform.Message, content string) {
	id, err := b.platform.Send(b.ctx, src.ChannelID, content, src.ID)
	if err != nil {
		slog.Warn("reply send failed", "channel", src.ChannelID, "error", err)
		return
	}
	b.sentIDs.Add(id)
}

func fields2(s string) (string, string) {
	f := strings.Fields(s)
	switch len(f) {
	case 0:
		return "", ""
	case 1:
		return f[0], ""
	default:
		return f[0], strings.Join(f[1:], " ")
	}
}
