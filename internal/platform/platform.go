// Package platform defines the narrow surface the bridge consumes from the
// Stoat messaging platform: an event feed of message/reaction events and a
// handful of best-effort outbound operations. The concrete client lives in
// platform/stoat; everything else in the bridge depends only on this
// interface so tests can run against fakes.
package platform

import (
	"context"
	"time"
)

// Identity describes the bot account the bridge is connected as.
type Identity struct {
	ID       string
	Username string
}

// Message is an inbound message-created event, normalized from the wire.
type Message struct {
	ID         string
	ChannelID  string
	AuthorID   string
	AuthorName string
	Content    string

	// MentionIDs is the structured mention list attached to the message.
	MentionIDs []string

	// ReplyRefs carries the raw reply-reference entries as decoded JSON.
	// Entries may be malformed (non-string ids, nulls, objects); consumers
	// must tolerate and skip anything that is not a usable message id.
	ReplyRefs []any

	IsBot      bool // authored by any bot account
	IsSystem   bool // platform system/service message
	IsDirect   bool // DM channel rather than a server channel
	ReceivedAt time.Time
}

// Reaction is a reaction-added event.
type Reaction struct {
	MessageID string
	ChannelID string
	UserID    string
	Symbol    string
	IsDirect  bool
}

// MessageHandler receives message-created events.
type MessageHandler func(Message)

// ReactionHandler receives reaction-added events.
type ReactionHandler func(Reaction)

// Client is the operation surface of the Stoat platform. All operations
// except Connect are best-effort from the bridge's point of view: callers
// log and swallow errors rather than aborting a turn.
type Client interface {
	// Connect authenticates and starts the event feed. A failure here is
	// fatal to bridge startup; there is no automatic retry.
	Connect(ctx context.Context) error
	Close() error

	// Identity is valid after Connect returns.
	Identity() Identity

	HandleMessage(h MessageHandler)
	HandleReaction(h ReactionHandler)

	// Send posts content to a channel, optionally quoting a message.
	// Returns the id of the created message.
	Send(ctx context.Context, channelID, content, quoteMessageID string) (string, error)
	React(ctx context.Context, channelID, messageID, symbol string) error
	Unreact(ctx context.Context, channelID, messageID, symbol string) error
	EditMessage(ctx context.Context, channelID, messageID, content string) error
	DeleteMessage(ctx context.Context, channelID, messageID string) error

	// FetchMessage retrieves a single message. Best-effort: the message may
	// be gone or inaccessible.
	FetchMessage(ctx context.Context, channelID, messageID string) (*Message, error)

	StartTyping(ctx context.Context, channelID string) error
	StopTyping(ctx context.Context, channelID string) error
}
