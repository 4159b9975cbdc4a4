package convstore

import (
	"context"
	"fmt"
	"testing"

	"pmbot/pkg/logx"
)

func TestAppendTrimsToBound(t *testing.T) {
	t.Parallel()
	s := New(nil, 3, logx.Nop()) // bound: 6 messages

	for i := 0; i < 11; i++ {
		s.Append(context.Background(), "u1", "user", fmt.Sprintf("msg-%d", i))
	}

	got := s.History("u1")
	if len(got) != 6 {
		t.Fatalf("history length = %d, want 6", len(got))
	}
	// Oldest first, and the oldest survivors are the most recent six.
	if got[0].Content != "msg-5" {
		t.Fatalf("first message = %q, want msg-5", got[0].Content)
	}
	if got[5].Content != "msg-10" {
		t.Fatalf("last message = %q, want msg-10", got[5].Content)
	}
}

func TestHistoryIsolatesUsersAndCopies(t *testing.T) {
	t.Parallel()
	s := New(nil, 10, logx.Nop())
	s.Append(context.Background(), "u1", "user", "hello")

	if h := s.History("u2"); len(h) != 0 {
		t.Fatalf("unknown user history = %d messages, want 0", len(h))
	}

	h := s.History("u1")
	h[0].Content = "mutated"
	if s.History("u1")[0].Content != "hello" {
		t.Fatal("History returned a shared slice")
	}
}

func TestUpdateContextMergesOnlyProvidedFields(t *testing.T) {
	t.Parallel()
	s := New(nil, 10, logx.Nop())
	ctx := context.Background()

	proj, task := "website", "navbar"
	s.UpdateContext(ctx, "u1", ContextUpdate{Project: &proj, Task: &task})

	topic := "deadlines"
	s.UpdateContext(ctx, "u1", ContextUpdate{Topic: &topic})

	cc := s.GetContext("u1")
	if cc.Project != "website" || cc.Task != "navbar" || cc.Topic != "deadlines" {
		t.Fatalf("context = %+v, want earlier fields preserved", cc)
	}

	// Explicitly clearing one field leaves the rest alone.
	empty := ""
	s.UpdateContext(ctx, "u1", ContextUpdate{Task: &empty})
	cc = s.GetContext("u1")
	if cc.Task != "" || cc.Project != "website" {
		t.Fatalf("context after clear = %+v", cc)
	}
}

func TestResetDropsEverything(t *testing.T) {
	t.Parallel()
	s := New(nil, 10, logx.Nop())
	ctx := context.Background()

	proj := "website"
	s.Append(ctx, "u1", "user", "hello")
	s.UpdateContext(ctx, "u1", ContextUpdate{Project: &proj})
	s.Reset(ctx, "u1")

	if h := s.History("u1"); len(h) != 0 {
		t.Fatalf("history after reset = %d messages", len(h))
	}
	if cc := s.GetContext("u1"); cc != (Context{}) {
		t.Fatalf("context after reset = %+v", cc)
	}
}
