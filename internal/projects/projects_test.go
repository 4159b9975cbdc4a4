package projects

import (
	"context"
	"testing"

	"pmbot/internal/store"
	"pmbot/pkg/logx"
)

func TestEnabledSet(t *testing.T) {
	t.Parallel()
	s := New(nil, logx.Nop())
	ctx := context.Background()

	if s.EnabledCount() != 0 || s.IsEnabled("p1") {
		t.Fatal("fresh service has enabled projects")
	}

	s.Enable(ctx, "p1")
	s.Enable(ctx, "p1") // idempotent
	s.Enable(ctx, "p2")
	if s.EnabledCount() != 2 || !s.IsEnabled("p1") {
		t.Fatalf("count = %d, IsEnabled(p1) = %v", s.EnabledCount(), s.IsEnabled("p1"))
	}

	if !s.Disable(ctx, "p1") {
		t.Fatal("Disable = false for enabled project")
	}
	if s.Disable(ctx, "p1") {
		t.Fatal("Disable = true for already-disabled project")
	}
}

func TestProjectAndTaskLifecycle(t *testing.T) {
	t.Parallel()
	s := New(nil, logx.Nop())
	ctx := context.Background()

	p := s.CreateProject(ctx, "Website Redesign", "refresh the landing page")
	if p.ID == "" {
		t.Fatal("project created without id")
	}
	if got := s.ProjectByName("website redesign"); got == nil || got.ID != p.ID {
		t.Fatal("ProjectByName is not case-insensitive")
	}

	task := s.AddTask(ctx, p.ID, "Fix navbar", "", "2025-07-01")
	if task == nil || task.Status != StatusTodo {
		t.Fatalf("task = %+v, want status todo", task)
	}
	if s.AddTask(ctx, "no-such-project", "x", "", "") != nil {
		t.Fatal("AddTask accepted an unknown project")
	}

	if !s.SetTaskStatus(ctx, task.ID, StatusInProgress) {
		t.Fatal("SetTaskStatus = false")
	}
	if s.SetTaskStatus(ctx, task.ID, "blocked") {
		t.Fatal("SetTaskStatus accepted an invalid status")
	}
	if !s.AssignTask(ctx, task.ID, "alice") {
		t.Fatal("AssignTask = false")
	}

	got := s.ProjectByName("Website Redesign")
	if got.Tasks[0].Status != StatusInProgress || got.Tasks[0].AssigneeID != "alice" {
		t.Fatalf("task after updates = %+v", got.Tasks[0])
	}
}

func TestStateSurvivesRestart(t *testing.T) {
	t.Parallel()
	st, err := store.Open(store.Config{Path: t.TempDir()}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	ctx := context.Background()

	s := New(st, logx.Nop())
	p := s.CreateProject(ctx, "Mobile App", "")
	s.AddTask(ctx, p.ID, "Push notifications", "bob", "")
	s.Enable(ctx, "hub-project-1")

	s2 := New(st, logx.Nop())
	if got := s2.ProjectByName("Mobile App"); got == nil || len(got.Tasks) != 1 {
		t.Fatalf("reloaded project = %+v", got)
	}
	if !s2.IsEnabled("hub-project-1") || s2.EnabledCount() != 1 {
		t.Fatal("enabled set not reloaded")
	}
}
