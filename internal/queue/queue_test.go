package queue

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Thalpy/stoat-ai-interface/internal/config"
	"github.com/Thalpy/stoat-ai-interface/internal/dispatch"
	"github.com/Thalpy/stoat-ai-interface/internal/platform"
)

// fakePlatform records outbound operations.
type fakePlatform struct {
	mu        sync.Mutex
	sent      []sentMsg
	reactions []string // "msgID/symbol"
	removed   []string
}

type sentMsg struct {
	channel, content, quote string
}

func (f *fakePlatform) Connect(context.Context) error           { return nil }
func (f *fakePlatform) Close() error                            { return nil }
func (f *fakePlatform) Identity() platform.Identity             { return platform.Identity{ID: "BOT"} }
func (f *fakePlatform) HandleMessage(platform.MessageHandler)   {}
func (f *fakePlatform) HandleReaction(platform.ReactionHandler) {}

func (f *fakePlatform) Send(_ context.Context, channelID, content, quote string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMsg{channelID, content, quote})
	return fmt.Sprintf("bot-msg-%d", len(f.sent)), nil
}

func (f *fakePlatform) React(_ context.Context, _, messageID, symbol string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reactions = append(f.reactions, messageID+"/"+symbol)
	return nil
}

func (f *fakePlatform) Unreact(_ context.Context, _, messageID, symbol string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, messageID+"/"+symbol)
	return nil
}

func (f *fakePlatform) EditMessage(context.Context, string, string, string) error { return nil }
func (f *fakePlatform) DeleteMessage(context.Context, string, string) error       { return nil }
func (f *fakePlatform) StartTyping(context.Context, string) error                 { return nil }
func (f *fakePlatform) StopTyping(context.Context, string) error                  { return nil }
func (f *fakePlatform) FetchMessage(context.Context, string, string) (*platform.Message, error) {
	return nil, fmt.Errorf("not found")
}

func (f *fakePlatform) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func (f *fakePlatform) hasReaction(messageID, symbol string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.reactions {
		if r == messageID+"/"+symbol {
			return true
		}
	}
	return false
}

// fakeDispatcher records dispatches and signals each call.
type fakeDispatcher struct {
	mu     sync.Mutex
	calls  []dispatchCall
	err    error
	notify chan dispatchCall
}

type dispatchCall struct {
	routingKey, prompt string
}

func newFakeDispatcher() *fakeDispatcher {
	return &fakeDispatcher{notify: make(chan dispatchCall, 16)}
}

func (f *fakeDispatcher) ResolveRoutingKey(d dispatch.Descriptor) string {
	return dispatch.RoutingKey("default", d.ChannelID, d.IsDirect)
}

func (f *fakeDispatcher) Dispatch(_ context.Context, routingKey, prompt string) error {
	f.mu.Lock()
	call := dispatchCall{routingKey, prompt}
	f.calls = append(f.calls, call)
	err := f.err
	f.mu.Unlock()
	f.notify <- call
	return err
}

func (f *fakeDispatcher) HandleReply(dispatch.ReplyHandler)     {}
func (f *fakeDispatcher) HandleFailure(dispatch.FailureHandler) {}

func (f *fakeDispatcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

var testReactions = config.ReactionConfig{
	Queued:     "Q",
	Processing: "P",
	Complete:   "OK",
	Cancelled:  "X",
	Failed:     "F",
	Cancel:     "STOP",
}

func newProcessor(fp *fakePlatform, fd *fakeDispatcher, onBot func(string)) *Processor {
	return New(fp, fd, Config{
		Reactions:    testReactions,
		PollInterval: 5 * time.Millisecond,
		QuietWindow:  30 * time.Millisecond,
		MaxTurn:      2 * time.Second,
	}, onBot)
}

func trig(id, conv, author, text string) Trigger {
	return Trigger{ID: id, ConversationID: conv, AuthorID: author, AuthorName: author, Text: text, ReceivedAt: time.Now()}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func awaitCall(t *testing.T, fd *fakeDispatcher) dispatchCall {
	t.Helper()
	select {
	case c := <-fd.notify:
		return c
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for dispatch")
		return dispatchCall{}
	}
}

func TestSubmit_QueuesWhileBusyAndBatches(t *testing.T) {
	fp := &fakePlatform{}
	fd := newFakeDispatcher()
	p := newProcessor(fp, fd, nil)
	defer p.Stop()

	p.Submit(trig("T1", "C1", "alice", "first"))
	first := awaitCall(t, fd)
	if first.prompt != "first" {
		t.Errorf("single-trigger prompt = %q, want verbatim text", first.prompt)
	}

	// Arrives while T1's turn is still inside its quiet window.
	p.Submit(trig("T2", "C1", "bob", "second"))
	p.Submit(trig("T3", "C1", "carol", "third"))

	waitFor(t, "queued indicator on T2", func() bool { return fp.hasReaction("T2", "Q") })

	second := awaitCall(t, fd)
	want := "[bob]: second\n[carol]: third"
	if second.prompt != want {
		t.Errorf("batch prompt = %q, want %q", second.prompt, want)
	}
	if got := fd.callCount(); got != 2 {
		t.Errorf("dispatch calls = %d, want 2 (one per turn)", got)
	}

	waitFor(t, "terminal indicator on T3", func() bool { return fp.hasReaction("T3", "OK") })
	if !fp.hasReaction("T1", "OK") || !fp.hasReaction("T2", "OK") {
		t.Error("complete indicator missing on batch items")
	}
}

func TestTurns_NeverInterleaveWithinConversation(t *testing.T) {
	fp := &fakePlatform{}
	fd := newFakeDispatcher()
	p := newProcessor(fp, fd, nil)
	defer p.Stop()

	p.Submit(trig("T1", "C1", "alice", "one"))
	awaitCall(t, fd)
	p.Submit(trig("T2", "C1", "alice", "two"))

	// T2 must not dispatch until T1's turn finished (complete indicator set).
	second := awaitCall(t, fd)
	if second.prompt != "two" {
		t.Errorf("second dispatch prompt = %q, want %q", second.prompt, "two")
	}
	if !fp.hasReaction("T1", "OK") {
		t.Error("second turn dispatched before first turn completed")
	}
}

func TestConversations_RunIndependently(t *testing.T) {
	fp := &fakePlatform{}
	fd := newFakeDispatcher()
	p := newProcessor(fp, fd, nil)
	defer p.Stop()

	p.Submit(trig("T1", "C1", "alice", "one"))
	p.Submit(trig("T2", "C2", "bob", "two"))

	keys := map[string]bool{}
	for i := 0; i < 2; i++ {
		keys[awaitCall(t, fd).routingKey] = true
	}
	if len(keys) != 2 {
		t.Errorf("expected concurrent dispatches for 2 conversations, got %v", keys)
	}
}

func TestHandleReply_DeliversQuotingFirstTrigger(t *testing.T) {
	fp := &fakePlatform{}
	fd := newFakeDispatcher()
	var botIDs []string
	var botMu sync.Mutex
	p := newProcessor(fp, fd, func(id string) {
		botMu.Lock()
		botIDs = append(botIDs, id)
		botMu.Unlock()
	})
	defer p.Stop()

	p.Submit(trig("T1", "C1", "alice", "question"))
	call := awaitCall(t, fd)

	p.HandleReply(call.routingKey, "answer part 1")
	p.HandleReply(call.routingKey, "answer part 2")

	waitFor(t, "both replies sent", func() bool { return fp.sentCount() == 2 })
	fp.mu.Lock()
	defer fp.mu.Unlock()
	for _, m := range fp.sent {
		if m.quote != "T1" || m.channel != "C1" {
			t.Errorf("reply = %+v, want quote T1 in C1", m)
		}
	}
	botMu.Lock()
	if len(botIDs) != 2 {
		t.Errorf("bot message tracking: got %d ids, want 2", len(botIDs))
	}
	botMu.Unlock()
}

func TestRequestCancel_RunningTurn(t *testing.T) {
	fp := &fakePlatform{}
	fd := newFakeDispatcher()
	p := newProcessor(fp, fd, nil)
	defer p.Stop()

	p.Submit(trig("T1", "C1", "alice", "slow question"))
	call := awaitCall(t, fd)

	if !p.RequestCancel("C1", "T1") {
		t.Fatal("RequestCancel on running trigger returned false")
	}

	// Deliveries after cancellation are suppressed.
	p.HandleReply(call.routingKey, "late reply")
	waitFor(t, "cancelled terminal indicator", func() bool { return fp.hasReaction("T1", "X") })

	if fp.sentCount() != 0 {
		t.Errorf("suppressed reply was sent (%d sends)", fp.sentCount())
	}
	if fp.hasReaction("T1", "OK") {
		t.Error("cancelled turn got the complete indicator")
	}
}

func TestRequestCancel_QueuedTrigger(t *testing.T) {
	fp := &fakePlatform{}
	fd := newFakeDispatcher()
	p := newProcessor(fp, fd, nil)
	defer p.Stop()

	p.Submit(trig("T1", "C1", "alice", "one"))
	awaitCall(t, fd)
	p.Submit(trig("T2", "C1", "bob", "two"))
	waitFor(t, "T2 queued", func() bool { return fp.hasReaction("T2", "Q") })

	if p.RequestCancel("C1", "T2") {
		t.Error("cancelling a queued trigger must not report a stopped turn")
	}
	waitFor(t, "T2 cancelled indicator", func() bool { return fp.hasReaction("T2", "X") })

	// T1's turn runs to completion, and the cancelled entry never batches.
	waitFor(t, "T1 complete", func() bool { return fp.hasReaction("T1", "OK") })
	time.Sleep(50 * time.Millisecond)
	if got := fd.callCount(); got != 1 {
		t.Errorf("dispatch calls = %d, want 1 (cancelled entry must not start a turn)", got)
	}
}

func TestRequestCancel_WrongIDLeavesTurnAlone(t *testing.T) {
	fp := &fakePlatform{}
	fd := newFakeDispatcher()
	p := newProcessor(fp, fd, nil)
	defer p.Stop()

	p.Submit(trig("T1", "C1", "alice", "one"))
	awaitCall(t, fd)

	if p.RequestCancel("C1", "T99") {
		t.Error("cancel with unknown trigger id returned true")
	}
	waitFor(t, "T1 completes normally", func() bool { return fp.hasReaction("T1", "OK") })
}

func TestDispatchError_FailedIndicator(t *testing.T) {
	fp := &fakePlatform{}
	fd := newFakeDispatcher()
	fd.err = fmt.Errorf("gateway unavailable")
	p := newProcessor(fp, fd, nil)
	defer p.Stop()

	p.Submit(trig("T1", "C1", "alice", "hello"))
	awaitCall(t, fd)

	waitFor(t, "failed indicator", func() bool { return fp.hasReaction("T1", "F") })
	if fp.hasReaction("T1", "OK") || fp.hasReaction("T1", "X") {
		t.Error("failed turn carries a complete/cancelled indicator")
	}
}

func TestHandleFailure_EndsTurnFailed(t *testing.T) {
	fp := &fakePlatform{}
	fd := newFakeDispatcher()
	p := newProcessor(fp, fd, nil)
	defer p.Stop()

	p.Submit(trig("T1", "C1", "alice", "hello"))
	call := awaitCall(t, fd)

	p.HandleFailure(call.routingKey, "model exploded")
	waitFor(t, "failed indicator", func() bool { return fp.hasReaction("T1", "F") })
}

func TestQuiescence_CompletesAfterQuietWindow(t *testing.T) {
	fp := &fakePlatform{}
	fd := newFakeDispatcher()
	p := newProcessor(fp, fd, nil)
	defer p.Stop()

	start := time.Now()
	p.Submit(trig("T1", "C1", "alice", "hello"))
	call := awaitCall(t, fd)

	// A reply mid-window restarts the quiet clock.
	time.Sleep(15 * time.Millisecond)
	p.HandleReply(call.routingKey, "reply")

	waitFor(t, "turn complete", func() bool { return fp.hasReaction("T1", "OK") })
	elapsed := time.Since(start)

	// Bounded: well past quiet-window-from-reply, well short of the ceiling.
	if elapsed < 40*time.Millisecond {
		t.Errorf("turn finished in %v, before the quiet window after the reply", elapsed)
	}
	if elapsed > 500*time.Millisecond {
		t.Errorf("turn took %v, quiescence did not bound it", elapsed)
	}
}

func TestQuiescence_HardCeiling(t *testing.T) {
	fp := &fakePlatform{}
	fd := newFakeDispatcher()
	p := New(fp, fd, Config{
		Reactions:    testReactions,
		PollInterval: 5 * time.Millisecond,
		QuietWindow:  time.Hour, // never quiet
		MaxTurn:      60 * time.Millisecond,
	}, nil)
	defer p.Stop()

	p.Submit(trig("T1", "C1", "alice", "hello"))
	awaitCall(t, fd)

	waitFor(t, "ceiling termination", func() bool { return fp.hasReaction("T1", "OK") })
}

func TestBuildPrompt(t *testing.T) {
	one := []Trigger{trig("T1", "C1", "alice", "  raw text kept verbatim ")}
	if got := BuildPrompt(one); got != "  raw text kept verbatim " {
		t.Errorf("BuildPrompt(single) = %q", got)
	}

	batch := []Trigger{
		trig("T1", "C1", "alice", "first"),
		trig("T2", "C1", "bob", "second"),
		trig("T3", "C1", "carol", "third"),
	}
	got := BuildPrompt(batch)
	lines := strings.Split(got, "\n")
	want := []string{"[alice]: first", "[bob]: second", "[carol]: third"}
	if len(lines) != 3 {
		t.Fatalf("BuildPrompt(batch) = %q", got)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, lines[i], want[i])
		}
	}
}

func TestIsTracked(t *testing.T) {
	fp := &fakePlatform{}
	fd := newFakeDispatcher()
	p := newProcessor(fp, fd, nil)
	defer p.Stop()

	if p.IsTracked("C1", "T1") {
		t.Error("tracked before submit")
	}
	p.Submit(trig("T1", "C1", "alice", "one"))
	awaitCall(t, fd)
	if !p.IsTracked("C1", "T1") {
		t.Error("running trigger not tracked")
	}
	p.Submit(trig("T2", "C1", "bob", "two"))
	if !p.IsTracked("C1", "T2") {
		t.Error("queued trigger not tracked")
	}
}
