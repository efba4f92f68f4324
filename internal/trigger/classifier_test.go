package trigger

import (
	"testing"

	"github.com/Thalpy/stoat-ai-interface/internal/platform"
)

var bot = platform.Identity{ID: "B1", Username: "stoatbot"}

func classify(msg platform.Message, opts Options) Decision {
	return Classify(msg, bot, opts)
}

func TestClassify_SelfAndSystemAlwaysRejected(t *testing.T) {
	cases := []struct {
		name string
		msg  platform.Message
		opts Options
	}{
		{"own message", platform.Message{AuthorID: "B1", Content: "hi <@B1>"}, Options{}},
		{"own message in dm", platform.Message{AuthorID: "B1", IsDirect: true}, Options{}},
		{"own message read-all", platform.Message{AuthorID: "B1"}, Options{RespondToAll: true}},
		{"system message", platform.Message{AuthorID: "U1", IsSystem: true}, Options{}},
		{"system in dm", platform.Message{AuthorID: "U1", IsSystem: true, IsDirect: true}, Options{}},
		{"system read-all", platform.Message{AuthorID: "U1", IsSystem: true}, Options{RespondToAll: true}},
		{"system with command", platform.Message{AuthorID: "U1", IsSystem: true, Content: "!help"}, Options{CommandPrefix: "!"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := classify(tc.msg, tc.opts)
			if d.Process {
				t.Errorf("Classify() accepted, want rejected")
			}
			if d.Reason != ReasonNone {
				t.Errorf("Reason = %q, want %q", d.Reason, ReasonNone)
			}
		})
	}
}

func TestClassify_MentionForms(t *testing.T) {
	cases := []struct {
		name     string
		content  string
		mentions []string
		want     bool
	}{
		{"bare token", "hi <@B1>", nil, true},
		{"silent token", "hi <@!B1>", nil, true},
		{"structured id only", "hi", []string{"B1"}, true},
		{"no mention at all", "hi", nil, false},
		{"other user token", "hi <@U9>", nil, false},
		{"other structured id", "hi", []string{"U9"}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			msg := platform.Message{AuthorID: "U1", Content: tc.content, MentionIDs: tc.mentions}
			d := classify(msg, Options{})
			if d.Process != tc.want {
				t.Errorf("Process = %v, want %v", d.Process, tc.want)
			}
			if tc.want && d.Reason != ReasonMentioned {
				t.Errorf("Reason = %q, want %q", d.Reason, ReasonMentioned)
			}
		})
	}
}

func TestClassify_ReplyToBotToleratesMalformedRefs(t *testing.T) {
	refs := []any{nil, float64(42), map[string]any{"nope": true}, map[string]any{"id": float64(9)}, map[string]any{"id": "R1"}}

	msg := platform.Message{AuthorID: "U1", Content: "what about this?", ReplyRefs: refs}

	d := classify(msg, Options{BotMessageIDs: map[string]bool{"R2": true}})
	if d.Process {
		t.Errorf("no tracked id matches, want rejected; got %+v", d)
	}

	d = classify(msg, Options{BotMessageIDs: map[string]bool{"R1": true}})
	if !d.Process || d.Reason != ReasonReply {
		t.Errorf("Classify() = %+v, want reply-to-bot accept", d)
	}
}

func TestClassify_DMAlwaysAccepted(t *testing.T) {
	msg := platform.Message{AuthorID: "U1", Content: "plain text, no mention", IsDirect: true}
	d := classify(msg, Options{})
	if !d.Process || d.Reason != ReasonDM {
		t.Errorf("Classify() = %+v, want dm accept", d)
	}
}

func TestClassify_ReadAll(t *testing.T) {
	msg := platform.Message{AuthorID: "U1", Content: "channel chatter"}

	if d := classify(msg, Options{}); d.Process {
		t.Errorf("read-all off: accepted channel chatter: %+v", d)
	}
	if d := classify(msg, Options{RespondToAll: true}); !d.Process || d.Reason != ReasonReadAll {
		t.Errorf("read-all on: Classify() = %+v, want read-all accept", d)
	}
}

func TestClassify_CommandBypassesMentionGate(t *testing.T) {
	cases := []struct {
		name    string
		content string
		direct  bool
	}{
		{"bare command in channel", "!readall on", false},
		{"command in dm", "!help", true},
		{"command behind mention token", "<@B1> !help", false},
		{"command behind silent mention", "<@!B1>  !stop", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			msg := platform.Message{AuthorID: "U1", Content: tc.content, IsDirect: tc.direct}
			d := classify(msg, Options{CommandPrefix: "!"})
			if !d.Process || d.Reason != ReasonCommand {
				t.Errorf("Classify() = %+v, want command accept", d)
			}
		})
	}

	// Without a prefix match the text is ordinary channel traffic.
	msg := platform.Message{AuthorID: "U1", Content: "hello there"}
	if d := classify(msg, Options{CommandPrefix: "!"}); d.Process {
		t.Errorf("non-command accepted: %+v", d)
	}
}

func TestStripMentions(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"<@B1> hello", "hello"},
		{"<@!B1> hello", "hello"},
		{"hello", "hello"},
		{"  <@B1>  !cmd  ", "!cmd"},
	}
	for _, tc := range cases {
		if got := StripMentions(tc.in, "B1"); got != tc.want {
			t.Errorf("StripMentions(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
