package stoat

import (
	"context"
	"time"

	"github.com/Thalpy/stoat-ai-interface/internal/platform"
)

// Wire shapes for event socket frames. Only the fields the bridge consumes
// are decoded; replies are kept raw because the platform has shipped
// partially-typed entries there before.

type readyEvent struct {
	Users []struct {
		ID       string `json:"_id"`
		Username string `json:"username"`
	} `json:"users"`
	Channels []channelInfo `json:"channels"`
}

type channelInfo struct {
	ID          string `json:"_id"`
	ChannelType string `json:"channel_type"`
}

type messageEvent struct {
	ID         string   `json:"_id"`
	ChannelID  string   `json:"channel"`
	AuthorID   string   `json:"author"`
	Content    string   `json:"content"`
	Mentions   []string `json:"mentions"`
	Replies    []any    `json:"replies"`
	System     any      `json:"system"`
	Bot        bool     `json:"bot"`
	Masquerade *struct {
		Name string `json:"name"`
	} `json:"masquerade"`
}

type reactEvent struct {
	ID        string `json:"id"`
	ChannelID string `json:"channel_id"`
	UserID    string `json:"user_id"`
	EmojiID   string `json:"emoji_id"`
}

func (c *Client) normalizeMessage(ev messageEvent) platform.Message {
	name := ""
	if ev.Masquerade != nil {
		name = ev.Masquerade.Name
	}
	if name == "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		name = c.resolveUsername(ctx, ev.AuthorID)
		cancel()
	}

	return platform.Message{
		ID:         ev.ID,
		ChannelID:  ev.ChannelID,
		AuthorID:   ev.AuthorID,
		AuthorName: name,
		Content:    ev.Content,
		MentionIDs: ev.Mentions,
		ReplyRefs:  ev.Replies,
		IsBot:      ev.Bot,
		IsSystem:   ev.System != nil,
		IsDirect:   c.isDirect(ev.ChannelID),
		ReceivedAt: time.Now(),
	}
}
