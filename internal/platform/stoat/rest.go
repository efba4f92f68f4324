package stoat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/Thalpy/stoat-ai-interface/internal/platform"
)

// rest performs an authenticated REST call, honoring the outbound rate
// limiter. out may be nil when the response body is not needed.
func (c *Client) rest(ctx context.Context, method, path string, body, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.APIURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("X-Bot-Token", c.cfg.Token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("stoat %s %s: status %d: %s", method, path, resp.StatusCode, string(data))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// Send posts a message to a channel, optionally quoting another message.
func (c *Client) Send(ctx context.Context, channelID, content, quoteMessageID string) (string, error) {
	payload := map[string]any{"content": content}
	if quoteMessageID != "" {
		payload["replies"] = []map[string]any{{"id": quoteMessageID, "mention": false}}
	}

	var created struct {
		ID string `json:"_id"`
	}
	if err := c.rest(ctx, http.MethodPost, "/channels/"+channelID+"/messages", payload, &created); err != nil {
		return "", err
	}
	return created.ID, nil
}

// React adds a reaction to a message.
func (c *Client) React(ctx context.Context, channelID, messageID, symbol string) error {
	return c.rest(ctx, http.MethodPut,
		"/channels/"+channelID+"/messages/"+messageID+"/reactions/"+url.PathEscape(symbol), nil, nil)
}

// Unreact removes the bot's reaction from a message.
func (c *Client) Unreact(ctx context.Context, channelID, messageID, symbol string) error {
	return c.rest(ctx, http.MethodDelete,
		"/channels/"+channelID+"/messages/"+messageID+"/reactions/"+url.PathEscape(symbol), nil, nil)
}

// EditMessage replaces the content of a bot-sent message.
func (c *Client) EditMessage(ctx context.Context, channelID, messageID, content string) error {
	return c.rest(ctx, http.MethodPatch,
		"/channels/"+channelID+"/messages/"+messageID,
		map[string]any{"content": content}, nil)
}

// DeleteMessage removes a bot-sent message.
func (c *Client) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	return c.rest(ctx, http.MethodDelete, "/channels/"+channelID+"/messages/"+messageID, nil, nil)
}

// FetchMessage retrieves a single message by id.
func (c *Client) FetchMessage(ctx context.Context, channelID, messageID string) (*platform.Message, error) {
	var ev messageEvent
	if err := c.rest(ctx, http.MethodGet, "/channels/"+channelID+"/messages/"+messageID, nil, &ev); err != nil {
		return nil, err
	}
	msg := c.normalizeMessage(ev)
	return &msg, nil
}
