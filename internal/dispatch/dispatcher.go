// Package dispatch is the bridge's view of the AI subsystem: resolve a
// routing key for a conversation, send a prompt, and receive streamed reply
// deliveries. A Dispatch call returning is not a completion signal — replies
// keep arriving until the turn goes quiet.
package dispatch

import "context"

// Descriptor identifies a conversation for routing purposes.
type Descriptor struct {
	ChannelID string
	IsDirect  bool
}

// ReplyHandler receives each reply delivery for a routing key.
type ReplyHandler func(routingKey, content string)

// FailureHandler receives asynchronous run failures for a routing key.
type FailureHandler func(routingKey, errMsg string)

// Dispatcher sends prompts to the AI subsystem.
type Dispatcher interface {
	// ResolveRoutingKey maps a conversation to its stable routing key.
	ResolveRoutingKey(d Descriptor) string

	// Dispatch submits a prompt. Replies are pushed to the registered
	// ReplyHandler; an error here means the prompt never reached the AI
	// subsystem.
	Dispatch(ctx context.Context, routingKey, prompt string) error

	// HandleReply and HandleFailure register the push handlers. Must be
	// called before Connect/Dispatch.
	HandleReply(h ReplyHandler)
	HandleFailure(h FailureHandler)
}

// RoutingKey builds the canonical key for a conversation:
//
//	agent:{agent}:stoat:direct:{channelId}
//	agent:{agent}:stoat:group:{channelId}
func RoutingKey(agent, channelID string, direct bool) string {
	kind := "group"
	if direct {
		kind = "direct"
	}
	return "agent:" + agent + ":stoat:" + kind + ":" + channelID
}
