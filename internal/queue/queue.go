// Package queue serializes AI turns per conversation. Each conversation
// owns one mutable state record: at most one turn runs at a time, triggers
// arriving while busy are queued and batched into the next turn, and the
// running turn carries a cancellation token driven by the stop button.
package queue

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/Thalpy/stoat-ai-interface/internal/config"
	"github.com/Thalpy/stoat-ai-interface/internal/dispatch"
	"github.com/Thalpy/stoat-ai-interface/internal/platform"
)

// Trigger is an inbound message that passed classification and is eligible
// for processing. Immutable; consumed once.
type Trigger struct {
	ID             string
	ConversationID string
	AuthorID       string
	AuthorName     string
	Text           string
	ReceivedAt     time.Time
	IsDirect       bool
}

// pendingEntry wraps a queued trigger with its cancellation mark. Cancelled
// entries stay enumerable for bookkeeping but are never batched.
type pendingEntry struct {
	trigger   Trigger
	cancelled bool
}

// conversationState is the per-conversation record. Mutated only under
// Processor.mu; the running turn's goroutine reads its own snapshot.
type conversationState struct {
	processing       bool
	currentTriggerID string
	ctx              context.Context
	cancel           context.CancelFunc
	pending          []*pendingEntry

	routingKey string
	turnStart  time.Time
	lastReply  time.Time
	failed     bool

	// batch of the running turn, kept for indicator updates on completion
	batch []Trigger
}

// Config tunes turn timing and indicator symbols.
type Config struct {
	Reactions    config.ReactionConfig
	PollInterval time.Duration // quiescence poll cadence
	QuietWindow  time.Duration // no-reply window that ends a turn
	MaxTurn      time.Duration // hard ceiling per turn
}

// Processor owns all conversation state and runs turns.
type Processor struct {
	platform   platform.Client
	dispatcher dispatch.Dispatcher
	cfg        Config

	mu            sync.Mutex
	conversations map[string]*conversationState
	byRouting     map[string]string // routing key → conversation id

	// onBotMessage reports ids of messages the processor sent, so the
	// bridge can feed reply-to-bot classification.
	onBotMessage func(messageID string)

	wg  sync.WaitGroup
	now func() time.Time
}

// New creates a Processor. onBotMessage may be nil.
func New(pc platform.Client, d dispatch.Dispatcher, cfg Config, onBotMessage func(string)) *Processor {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}
	if cfg.QuietWindow <= 0 {
		cfg.QuietWindow = 3 * time.Second
	}
	if cfg.MaxTurn <= 0 {
		cfg.MaxTurn = 180 * time.Second
	}
	return &Processor{
		platform:      pc,
		dispatcher:    d,
		cfg:           cfg,
		conversations: make(map[string]*conversationState),
		byRouting:     make(map[string]string),
		onBotMessage:  onBotMessage,
		now:           time.Now,
	}
}

// Submit accepts a trigger for processing. Fire-and-forget: if the
// conversation is idle a turn starts immediately, otherwise the trigger is
// queued with a visible "queued" indicator and the stop affordance.
func (p *Processor) Submit(t Trigger) {
	p.mu.Lock()
	st := p.state(t.ConversationID)

	if st.processing {
		st.pending = append(st.pending, &pendingEntry{trigger: t})
		p.mu.Unlock()

		slog.Debug("trigger queued", "conversation", t.ConversationID, "trigger", t.ID, "author", t.AuthorName)
		p.react(t.ConversationID, t.ID, p.cfg.Reactions.Queued)
		p.react(t.ConversationID, t.ID, p.cfg.Reactions.Cancel)
		return
	}

	p.startTurnLocked(st, t.ConversationID, []Trigger{t})
	p.mu.Unlock()
}

// RequestCancel signals the running turn to stop when triggerID matches the
// current trigger, returning true. For a queued trigger it only marks that
// entry cancelled (with its own indicator) and returns false; the running
// turn is untouched.
func (p *Processor) RequestCancel(conversationID, triggerID string) bool {
	p.mu.Lock()
	st, ok := p.conversations[conversationID]
	if !ok {
		p.mu.Unlock()
		return false
	}

	if st.processing && st.currentTriggerID == triggerID {
		cancelFn := st.cancel
		p.mu.Unlock()
		slog.Info("turn cancel requested", "conversation", conversationID, "trigger", triggerID)
		if cancelFn != nil {
			cancelFn()
			return true
		}
		return false
	}

	for _, e := range st.pending {
		if e.trigger.ID == triggerID && !e.cancelled {
			e.cancelled = true
			p.mu.Unlock()
			slog.Debug("queued trigger cancelled", "conversation", conversationID, "trigger", triggerID)
			p.unreact(conversationID, triggerID, p.cfg.Reactions.Queued)
			p.react(conversationID, triggerID, p.cfg.Reactions.Cancelled)
			return false
		}
	}
	p.mu.Unlock()
	return false
}

// CancelActive cancels whatever turn is currently running for the
// conversation, regardless of trigger id.
func (p *Processor) CancelActive(conversationID string) bool {
	p.mu.Lock()
	st, ok := p.conversations[conversationID]
	if !ok || !st.processing {
		p.mu.Unlock()
		return false
	}
	id := st.currentTriggerID
	p.mu.Unlock()
	return p.RequestCancel(conversationID, id)
}

// IsTracked reports whether triggerID is the running or a queued trigger
// for the conversation. The bridge uses this to scope the stop button.
func (p *Processor) IsTracked(conversationID, triggerID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	st, ok := p.conversations[conversationID]
	if !ok {
		return false
	}
	if st.processing && st.currentTriggerID == triggerID {
		return true
	}
	for _, e := range st.pending {
		if e.trigger.ID == triggerID {
			return true
		}
	}
	return false
}

// HandleReply delivers one AI reply for a routing key. Suppressed when the
// turn has been cancelled; otherwise sent to the conversation quoting the
// first trigger of the running batch.
func (p *Processor) HandleReply(routingKey, content string) {
	p.mu.Lock()
	convID, ok := p.byRouting[routingKey]
	if !ok {
		p.mu.Unlock()
		slog.Debug("reply for unknown routing key", "routing_key", routingKey)
		return
	}
	st := p.conversations[convID]
	if st == nil || !st.processing {
		p.mu.Unlock()
		slog.Debug("reply outside a turn", "conversation", convID)
		return
	}
	turnCtx := st.ctx
	quote := ""
	if len(st.batch) > 0 {
		quote = st.batch[0].ID
	}
	p.mu.Unlock()

	// Token check immediately before the side effect.
	if turnCtx != nil && turnCtx.Err() != nil {
		slog.Debug("reply suppressed by cancellation", "conversation", convID)
		return
	}

	msgID, err := p.platform.Send(context.Background(), convID, content, quote)
	if err != nil {
		slog.Warn("reply send failed", "conversation", convID, "error", err)
		return
	}
	if p.onBotMessage != nil {
		p.onBotMessage(msgID)
	}

	p.mu.Lock()
	st.lastReply = p.now()
	p.mu.Unlock()
}

// HandleFailure records an asynchronous run failure; the turn finishes with
// the failed indicator instead of waiting out the quiet window.
func (p *Processor) HandleFailure(routingKey, errMsg string) {
	p.mu.Lock()
	convID, ok := p.byRouting[routingKey]
	if ok {
		if st := p.conversations[convID]; st != nil && st.processing {
			st.failed = true
		}
	}
	p.mu.Unlock()
	if ok {
		slog.Error("turn failed", "conversation", convID, "error", errMsg)
	}
}

// Stop cancels all running turns and waits for them to settle.
func (p *Processor) Stop() {
	p.mu.Lock()
	for _, st := range p.conversations {
		if st.processing && st.cancel != nil {
			st.cancel()
		}
	}
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *Processor) state(conversationID string) *conversationState {
	st, ok := p.conversations[conversationID]
	if !ok {
		st = &conversationState{}
		p.conversations[conversationID] = st
	}
	return st
}

// BuildPrompt combines a batch into one prompt: a single message is used
// verbatim; a burst is collapsed into attributed lines in arrival order so
// the AI sees one coherent turn.
func BuildPrompt(batch []Trigger) string {
	if len(batch) == 1 {
		return batch[0].Text
	}
	var b strings.Builder
	for i, t := range batch {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("[")
		b.WriteString(t.AuthorName)
		b.WriteString("]: ")
		b.WriteString(t.Text)
	}
	return b.String()
}
