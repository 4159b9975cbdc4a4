package poller

import (
	"context"
	"errors"
	"testing"
	"time"

	"pmbot/internal/github"
	"pmbot/pkg/logx"
)

type fakeLister struct {
	pulls map[string][]github.Pull
	errs  map[string]error
	calls int
}

func (f *fakeLister) ClosedPulls(_ context.Context, repo string, _ int) ([]github.Pull, error) {
	f.calls++
	if err := f.errs[repo]; err != nil {
		return nil, err
	}
	return f.pulls[repo], nil
}

func mergedPull(number int, author string, mergedAt time.Time) github.Pull {
	var p github.Pull
	p.Number = number
	p.State = "closed"
	p.Merged = true
	p.MergedAt = &mergedAt
	p.User.Login = author
	return p
}

func closedPull(number int) github.Pull {
	var p github.Pull
	p.Number = number
	p.State = "closed"
	return p
}

func TestPollEmitsEachMergeOnce(t *testing.T) {
	t.Parallel()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	lister := &fakeLister{pulls: map[string][]github.Pull{
		"acme/api": {
			mergedPull(42, "alice", now.Add(-5*time.Minute)),
			mergedPull(41, "bob", now.Add(-10*time.Minute)),
		},
	}}
	s := New(lister, []string{"acme/api"}, logx.Nop())
	s.now = func() time.Time { return now }

	events := s.Poll(context.Background(), time.Hour)
	if len(events) != 2 {
		t.Fatalf("first poll emitted %d events, want 2", len(events))
	}
	if events[0].Number != 42 || events[0].Author != "alice" {
		t.Fatalf("unexpected first event: %+v", events[0])
	}

	// Same results again: the watermark must suppress both.
	if events := s.Poll(context.Background(), time.Hour); len(events) != 0 {
		t.Fatalf("second poll emitted %d events, want 0", len(events))
	}
}

func TestPollWatermarkAdvancesToMaxSeen(t *testing.T) {
	t.Parallel()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	// Out of numeric order: #42 listed before #41.
	lister := &fakeLister{pulls: map[string][]github.Pull{
		"acme/api": {
			mergedPull(42, "alice", now.Add(-5*time.Minute)),
			mergedPull(41, "bob", now.Add(-8*time.Minute)),
		},
	}}
	s := New(lister, []string{"acme/api"}, logx.Nop())
	s.now = func() time.Time { return now }

	if events := s.Poll(context.Background(), time.Hour); len(events) != 2 {
		t.Fatalf("emitted %d events, want 2", len(events))
	}

	// A stale #41 reappearing later must stay suppressed by watermark 42.
	lister.pulls["acme/api"] = []github.Pull{mergedPull(41, "bob", now.Add(-8 * time.Minute))}
	if events := s.Poll(context.Background(), time.Hour); len(events) != 0 {
		t.Fatalf("stale PR re-emitted: %d events", len(events))
	}
}

func TestPollSkipsUnmergedAndOld(t *testing.T) {
	t.Parallel()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	cutoff := now.Add(-time.Hour)
	lister := &fakeLister{pulls: map[string][]github.Pull{
		"acme/api": {
			closedPull(50),                                    // closed without merging
			mergedPull(49, "carol", cutoff),                   // exactly at the cutoff
			mergedPull(48, "dave", cutoff.Add(-time.Minute)),  // before the window
			mergedPull(47, "erin", now.Add(-30*time.Minute)),  // in the window
		},
	}}
	s := New(lister, []string{"acme/api"}, logx.Nop())
	s.now = func() time.Time { return now }

	events := s.Poll(context.Background(), time.Hour)
	if len(events) != 1 || events[0].Number != 47 {
		t.Fatalf("events = %+v, want only #47", events)
	}
}

func TestPollRepoErrorDoesNotAbortOthers(t *testing.T) {
	t.Parallel()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	lister := &fakeLister{
		pulls: map[string][]github.Pull{
			"acme/web": {mergedPull(7, "alice", now.Add(-time.Minute))},
		},
		errs: map[string]error{"acme/api": errors.New("boom")},
	}
	s := New(lister, []string{"acme/api", "acme/web"}, logx.Nop())
	s.now = func() time.Time { return now }

	events := s.Poll(context.Background(), time.Hour)
	if len(events) != 1 || events[0].Repo != "acme/web" {
		t.Fatalf("events = %+v, want one from acme/web", events)
	}
}

func TestUnwatchKeepsWatermark(t *testing.T) {
	t.Parallel()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	lister := &fakeLister{pulls: map[string][]github.Pull{
		"acme/api": {mergedPull(10, "alice", now.Add(-time.Minute))},
	}}
	s := New(lister, []string{"acme/api"}, logx.Nop())
	s.now = func() time.Time { return now }

	if events := s.Poll(context.Background(), time.Hour); len(events) != 1 {
		t.Fatalf("expected one event before unwatch, got %d", len(events))
	}
	if !s.Unwatch("acme/api") {
		t.Fatal("Unwatch = false, want true")
	}
	if s.Unwatch("acme/api") {
		t.Fatal("second Unwatch = true, want false")
	}

	s.Watch("acme/api")
	if events := s.Poll(context.Background(), time.Hour); len(events) != 0 {
		t.Fatalf("re-watching replayed %d old events", len(events))
	}
}

func TestPollWithoutListerOrRepos(t *testing.T) {
	t.Parallel()
	s := New(nil, []string{"acme/api"}, logx.Nop())
	if events := s.Poll(context.Background(), time.Hour); events != nil {
		t.Fatalf("nil lister produced events: %+v", events)
	}

	s2 := New(&fakeLister{}, nil, logx.Nop())
	if events := s2.Poll(context.Background(), time.Hour); events != nil {
		t.Fatalf("empty watch list produced events: %+v", events)
	}
}
