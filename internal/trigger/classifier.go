// Package trigger decides whether an inbound message should start an AI
// turn, and why. Classification is a pure function over its inputs: no I/O,
// no side effects, and it never fails — malformed input degrades to "do not
// process".
package trigger

import (
	"strings"

	"github.com/Thalpy/stoat-ai-interface/internal/platform"
)

// Reason explains why a message was (or was not) accepted.
type Reason string

const (
	ReasonNone      Reason = "none"
	ReasonDM        Reason = "dm"
	ReasonMentioned Reason = "mentioned"
	ReasonReply     Reason = "reply-to-bot"
	ReasonReadAll   Reason = "read-all"
	ReasonCommand   Reason = "command"
)

// Decision is the classification result.
type Decision struct {
	Process bool
	Reason  Reason
}

// Options carries the per-conversation context classification depends on.
type Options struct {
	// CommandPrefix marks explicit bot commands, e.g. "!".
	CommandPrefix string
	// RespondToAll is the conversation's read-all setting.
	RespondToAll bool
	// BotMessageIDs is the set of message ids the bot has sent and still
	// tracks, used for reply-to-bot detection.
	BotMessageIDs map[string]bool
}

// Classify applies the trigger rules in order. See Options for the inputs
// beyond the message and bot identity.
func Classify(msg platform.Message, bot platform.Identity, opts Options) Decision {
	// The bot's own messages and system messages never trigger, even in
	// read-all mode.
	if msg.AuthorID == bot.ID || msg.IsSystem {
		return Decision{Process: false, Reason: ReasonNone}
	}

	mentioned := IsMention(msg, bot.ID)
	replied := isReplyToBot(msg.ReplyRefs, opts.BotMessageIDs)

	// Commands bypass the mention gate entirely.
	if opts.CommandPrefix != "" &&
		strings.HasPrefix(StripMentions(msg.Content, bot.ID), opts.CommandPrefix) {
		return Decision{Process: true, Reason: ReasonCommand}
	}

	if msg.IsDirect {
		return Decision{Process: true, Reason: ReasonDM}
	}

	if opts.RespondToAll {
		return Decision{Process: true, Reason: ReasonReadAll}
	}

	if mentioned {
		return Decision{Process: true, Reason: ReasonMentioned}
	}
	if replied {
		return Decision{Process: true, Reason: ReasonReply}
	}

	// Steady state for channel traffic: silently ignored, not an error.
	return Decision{Process: false, Reason: ReasonNone}
}

// IsMention reports whether the message mentions the bot, either via the
// structured mention list or via a mention token in the raw text. Both
// token forms count: "<@id>" and the silent form "<@!id>". Treating these
// as distinct caused missed triggers before; keep them together.
func IsMention(msg platform.Message, botID string) bool {
	for _, id := range msg.MentionIDs {
		if id == botID {
			return true
		}
	}
	return strings.Contains(msg.Content, "<@"+botID+">") ||
		strings.Contains(msg.Content, "<@!"+botID+">")
}

// StripMentions removes the bot's mention tokens from text and trims the
// result, so command detection sees the text the user actually typed.
func StripMentions(text, botID string) string {
	text = strings.ReplaceAll(text, "<@!"+botID+">", "")
	text = strings.ReplaceAll(text, "<@"+botID+">", "")
	return strings.TrimSpace(text)
}

// isReplyToBot checks reply references against the tracked bot message ids.
// The platform delivers partially-typed entries here (nulls, numbers,
// objects without an id); anything unusable is skipped, never an error.
func isReplyToBot(refs []any, botMessageIDs map[string]bool) bool {
	if len(botMessageIDs) == 0 {
		return false
	}
	for _, ref := range refs {
		switch v := ref.(type) {
		case string:
			if botMessageIDs[v] {
				return true
			}
		case map[string]any:
			if id, ok := v["id"].(string); ok && botMessageIDs[id] {
				return true
			}
		}
	}
	return false
}
