package bridge

import (
	"log/slog"
	"strings"

	"github.com/Thalpy/stoat-ai-interface/internal/platform"
)

const helpText = `Commands:
!readall on|off|toggle - respond to every message in this channel
!stop - cancel the current turn in this channel
!ping - liveness check
!help - this text`

// runCommand handles a prefix command. text arrives with mention tokens
// already stripped and is known to start with the command prefix.
func (b *Bridge) runCommand(msg platform.Message, text string) {
	name, args := fields2(strings.TrimPrefix(text, b.commandPrefix))
	slog.Info("command", "name", name, "channel", msg.ChannelID, "user", msg.AuthorID)

	switch strings.ToLower(name) {
	case "readall":
		b.cmdReadAll(msg, args)
	case "stop":
		b.cmdStop(msg)
	case "ping":
		b.reply(msg, "pong")
	case "help":
		b.reply(msg, helpText)
	default:
		b.reply(msg, "Unknown command. Try !help.")
	}
}

func (b *Bridge) cmdReadAll(msg platform.Message, args string) {
	cs := b.settings.Get(msg.ChannelID)

	switch strings.ToLower(strings.TrimSpace(args)) {
	case "on":
		cs.RespondToAll = true
	case "off":
		cs.RespondToAll = false
	case "toggle", "":
		cs.RespondToAll = !cs.RespondToAll
	default:
		b.reply(msg, "Usage: !readall on|off|toggle")
		return
	}

	if err := b.settings.Set(msg.ChannelID, cs); err != nil {
		slog.Error("settings write failed", "channel", msg.ChannelID, "error", err)
		b.reply(msg, "Could not save the setting.")
		return
	}
	if cs.RespondToAll {
		b.reply(msg, "Read-all is now ON: I will respond to every message here.")
	} else {
		b.reply(msg, "Read-all is now OFF: mention me or reply to me.")
	}
}

func (b *Bridge) cmdStop(msg platform.Message) {
	if b.queue.CancelActive(msg.ChannelID) {
		b.reply(msg, "Stopping the current turn.")
		return
	}
	b.reply(msg, "Nothing is running here.")
}
