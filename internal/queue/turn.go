package queue

import (
	"context"
	"log/slog"
	"time"

	"github.com/Thalpy/stoat-ai-interface/internal/dispatch"
)

// startTurnLocked transitions the conversation into a running turn and
// spawns its goroutine. Caller holds p.mu.
func (p *Processor) startTurnLocked(st *conversationState, conversationID string, batch []Trigger) {
	ctx, cancel := context.WithCancel(context.Background())

	st.processing = true
	st.currentTriggerID = batch[0].ID
	st.ctx = ctx
	st.cancel = cancel
	st.batch = batch
	st.failed = false
	st.turnStart = p.now()
	st.lastReply = time.Time{}

	key := p.dispatcher.ResolveRoutingKey(dispatch.Descriptor{
		ChannelID: conversationID,
		IsDirect:  batch[0].IsDirect,
	})
	st.routingKey = key
	p.byRouting[key] = conversationID

	p.wg.Add(1)
	go p.runTurn(ctx, st, conversationID, key, batch)
}

// runTurn executes one dispatch-and-reply cycle for a batch, then drains
// the pending queue into the next turn.
func (p *Processor) runTurn(ctx context.Context, st *conversationState, conversationID, routingKey string, batch []Trigger) {
	defer p.wg.Done()

	slog.Info("turn started",
		"conversation", conversationID,
		"trigger", batch[0].ID,
		"batch_size", len(batch),
		"routing_key", routingKey,
	)

	// Queued → processing on every batch item; the stop affordance rides
	// along so the user can cancel mid-turn.
	for _, t := range batch {
		p.unreact(conversationID, t.ID, p.cfg.Reactions.Queued)
		p.react(conversationID, t.ID, p.cfg.Reactions.Processing)
		p.react(conversationID, t.ID, p.cfg.Reactions.Cancel)
	}

	if err := p.platform.StartTyping(ctx, conversationID); err != nil {
		slog.Debug("start typing failed", "conversation", conversationID, "error", err)
	}

	prompt := BuildPrompt(batch)
	dispatchErr := p.dispatcher.Dispatch(ctx, routingKey, prompt)
	if dispatchErr != nil {
		slog.Error("dispatch failed", "conversation", conversationID, "error", dispatchErr)
	} else {
		p.waitQuiescence(ctx, st)
	}

	if err := p.platform.StopTyping(context.Background(), conversationID); err != nil {
		slog.Debug("stop typing failed", "conversation", conversationID, "error", err)
	}

	// Terminal indicator: cancelled beats failed beats complete.
	p.mu.Lock()
	failed := st.failed || dispatchErr != nil
	p.mu.Unlock()

	terminal := p.cfg.Reactions.Complete
	switch {
	case ctx.Err() != nil:
		terminal = p.cfg.Reactions.Cancelled
	case failed:
		terminal = p.cfg.Reactions.Failed
	}

	for _, t := range batch {
		p.unreact(conversationID, t.ID, p.cfg.Reactions.Processing)
		if p.cfg.Reactions.Cancel != terminal {
			p.unreact(conversationID, t.ID, p.cfg.Reactions.Cancel)
		}
		p.react(conversationID, t.ID, terminal)
	}

	slog.Info("turn finished",
		"conversation", conversationID,
		"trigger", batch[0].ID,
		"outcome", terminal,
	)

	// Reset state, then atomically take the non-cancelled pending triggers
	// and start the next turn without blocking this one's caller.
	p.mu.Lock()
	st.processing = false
	st.currentTriggerID = ""
	st.ctx = nil
	st.cancel = nil
	st.batch = nil
	st.failed = false
	delete(p.byRouting, routingKey)

	var next []Trigger
	for _, e := range st.pending {
		if !e.cancelled {
			next = append(next, e.trigger)
		}
	}
	st.pending = nil

	if len(next) > 0 {
		p.startTurnLocked(st, conversationID, next)
	}
	p.mu.Unlock()
}

// waitQuiescence blocks until the turn is quiet: no delivery for the quiet
// window measured from the later of turn-start and the latest reply, or the
// hard ceiling elapses, or the turn is cancelled — whichever comes first.
// Asynchronous run failures also end the wait.
func (p *Processor) waitQuiescence(ctx context.Context, st *conversationState) {
	deadline := p.now().Add(p.cfg.MaxTurn)
	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.mu.Lock()
			last := st.lastReply
			start := st.turnStart
			failed := st.failed
			p.mu.Unlock()

			if failed {
				return
			}

			now := p.now()
			if !now.Before(deadline) {
				slog.Warn("turn hit hard ceiling", "ceiling", p.cfg.MaxTurn)
				return
			}

			anchor := start
			if last.After(anchor) {
				anchor = last
			}
			if now.Sub(anchor) >= p.cfg.QuietWindow {
				return
			}
		}
	}
}

// react adds an indicator reaction. Transient platform errors are logged
// and swallowed; indicators never abort a turn.
func (p *Processor) react(conversationID, messageID, symbol string) {
	if symbol == "" {
		return
	}
	if err := p.platform.React(context.Background(), conversationID, messageID, symbol); err != nil {
		slog.Debug("react failed", "message", messageID, "symbol", symbol, "error", err)
	}
}

func (p *Processor) unreact(conversationID, messageID, symbol string) {
	if symbol == "" {
		return
	}
	if err := p.platform.Unreact(context.Background(), conversationID, messageID, symbol); err != nil {
		slog.Debug("unreact failed", "message", messageID, "symbol", symbol, "error", err)
	}
}
