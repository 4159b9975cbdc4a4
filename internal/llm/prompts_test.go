package llm

import (
	"fmt"
	"strings"
	"testing"

	"pmbot/internal/github"
)

func TestConverseMessagesShape(t *testing.T) {
	t.Parallel()
	history := []Message{
		{Role: "user", Content: "earlier question"},
		{Role: "assistant", Content: "earlier answer"},
	}
	msgs := ConverseMessages("What's overdue?", "Tasks:\n- Fix navbar", history)

	if len(msgs) != 4 {
		t.Fatalf("messages = %d, want system + 2 history + question", len(msgs))
	}
	if msgs[0].Role != "system" {
		t.Fatalf("first role = %s, want system", msgs[0].Role)
	}
	last := msgs[len(msgs)-1]
	if last.Role != "user" {
		t.Fatalf("last role = %s, want user", last.Role)
	}
	if !strings.Contains(last.Content, "What's overdue?") || !strings.Contains(last.Content, "--- Available Data ---") {
		t.Fatalf("question message malformed:\n%s", last.Content)
	}
}

func TestConverseMessagesTrimsHistory(t *testing.T) {
	t.Parallel()
	history := make([]Message, 0, 25)
	for i := 0; i < 25; i++ {
		history = append(history, Message{Role: "user", Content: fmt.Sprintf("m%d", i)})
	}

	msgs := ConverseMessages("q", "d", history)
	if len(msgs) != 12 { // system + 10 history + question
		t.Fatalf("messages = %d, want 12", len(msgs))
	}
	if msgs[1].Content != "m15" {
		t.Fatalf("oldest kept = %q, want m15", msgs[1].Content)
	}
}

func TestReviewPromptIncludesDiffs(t *testing.T) {
	t.Parallel()
	d := &github.PullDetail{RepoFullName: "acme/api"}
	d.Number = 7
	d.Title = "Add widget"
	d.User.Login = "alice"
	d.Files = []github.PullFile{
		{Filename: "widget.go", Status: "added", Patch: "+func Widget() {}"},
	}

	p := ReviewPrompt(d)
	for _, want := range []string{"Add widget", "widget.go", "+func Widget() {}"} {
		if !strings.Contains(p, want) {
			t.Fatalf("ReviewPrompt missing %q", want)
		}
	}

	sec := SecurityPrompt(d)
	if !strings.Contains(sec, "widget.go") {
		t.Fatal("SecurityPrompt missing file diff")
	}
}

func TestOptionTemperatures(t *testing.T) {
	t.Parallel()
	if o := ReviewOptions(); o.Temperature >= ConverseOptions().Temperature {
		t.Fatal("review generation should be less creative than conversation")
	}
	if o := SecurityOptions(); o.Temperature >= ReviewOptions().Temperature {
		t.Fatal("security scanning should be the most conservative")
	}
}
