package query

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"pmbot/internal/backend"
	"pmbot/internal/cache"
	"pmbot/internal/convstore"
	"pmbot/internal/github"
	"pmbot/pkg/logx"
)

type fakeBackend struct {
	projects []backend.Project
	tasks    []backend.Task

	projectCalls int
	taskCalls    int
}

func (f *fakeBackend) ActiveProjects(context.Context) ([]backend.Project, error) {
	f.projectCalls++
	return f.projects, nil
}

func (f *fakeBackend) RecentTasks(context.Context, int) ([]backend.Task, error) {
	f.taskCalls++
	return f.tasks, nil
}

type fakeGitHub struct {
	pulls    []github.Pull
	commits  []github.Commit
	infoErrs map[string]error

	infoCalls   int
	pullCalls   int
	commitCalls int
}

func (f *fakeGitHub) RepoInfo(_ context.Context, repo string) (*github.Repo, error) {
	f.infoCalls++
	if err := f.infoErrs[repo]; err != nil {
		return nil, err
	}
	return &github.Repo{Name: repo, FullName: repo, Language: "Go"}, nil
}

func (f *fakeGitHub) OpenPulls(context.Context, string, int) ([]github.Pull, error) {
	f.pullCalls++
	return f.pulls, nil
}

func (f *fakeGitHub) RecentCommits(context.Context, string, int) ([]github.Commit, error) {
	f.commitCalls++
	return f.commits, nil
}

func testData() *fakeBackend {
	return &fakeBackend{
		projects: []backend.Project{
			{RawID: "p1", Name: "Website Redesign", Status: "active"},
			{RawID: "p2", Name: "Mobile App", Status: "active"},
		},
		tasks: []backend.Task{
			{Title: "Fix navbar", ProjectName: "Website Redesign", Assignee: backend.Assignee{Name: "Alice"}},
			{Title: "Push notifications", ProjectName: "Mobile App", Assignee: backend.Assignee{Name: "Bob"}},
		},
	}
}

func TestCategories(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		question string
		want     []string
	}{
		{"projects", "What's the next project milestone?", []string{CatProjects}},
		{"tasks", "Any overdue todo items?", []string{CatTasks}},
		{"team", "Who is on the team?", []string{CatTeam}},
		{"stats", "Give me an overview", []string{CatStats}},
		{"mixed", "How many tasks is the team working on per project?", []string{CatProjects, CatTasks, CatTeam, CatStats}},
		{"no match", "hello there", nil},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got := Categories(tt.question)
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("Categories(%q) = %v, want %v", tt.question, got, tt.want)
			}
		})
	}
}

func TestSections(t *testing.T) {
	t.Parallel()
	withGH := New(testData(), &fakeGitHub{}, nil, cache.New[any](time.Minute), logx.Nop())
	noGH := New(testData(), nil, nil, cache.New[any](time.Minute), logx.Nop())

	tests := []struct {
		name     string
		router   *Router
		question string
		want     []string
	}{
		{"project status", withGH, "What's the status of our projects?", []string{KeyProjects}},
		{"deadlines", withGH, "Any tasks due this week?", []string{KeyTasks}},
		{"both", withGH, "Show project progress and overdue tasks", []string{KeyProjects, KeyTasks}},
		{"team reads tasks", withGH, "Who is assigned to what?", []string{KeyTasks}},
		{"stats reads both", withGH, "Give me a summary", []string{KeyProjects, KeyTasks}},
		{"default to projects", withGH, "How are things going?", []string{KeyProjects}},
		{"github gated in", withGH, "Any open PRs to review?", []string{KeyProjects, KeyGitHub}},
		{"github needs a client", noGH, "Any open PRs to review?", []string{KeyProjects}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got := tt.router.Sections(tt.question)
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("Sections(%q) = %v, want %v", tt.question, got, tt.want)
			}
		})
	}
}

func TestResolveSharesCacheAcrossUsers(t *testing.T) {
	t.Parallel()
	be := testData()
	r := New(be, nil, nil, cache.New[any](time.Minute), logx.Nop())

	// Two users, different contexts, same cache entry.
	r.Resolve(context.Background(), "project status?", convstore.Context{})
	b := r.Resolve(context.Background(), "project status?", convstore.Context{Project: "mobile"})

	if be.projectCalls != 1 {
		t.Fatalf("backend fetched %d times, want 1", be.projectCalls)
	}
	if len(b.Projects) != 1 || b.Projects[0].Name != "Mobile App" {
		t.Fatalf("narrowed projects = %+v, want only Mobile App", b.Projects)
	}
}

func TestResolveNarrowsTasksByContext(t *testing.T) {
	t.Parallel()
	r := New(testData(), nil, nil, cache.New[any](time.Minute), logx.Nop())

	b := r.Resolve(context.Background(), "what tasks are pending?", convstore.Context{User: "alice"})
	if len(b.Tasks) != 1 || b.Tasks[0].Title != "Fix navbar" {
		t.Fatalf("tasks = %+v, want only Alice's", b.Tasks)
	}

	// A context matching nothing leaves the section unfiltered.
	b = r.Resolve(context.Background(), "what tasks are pending?", convstore.Context{User: "zed"})
	if len(b.Tasks) != 2 {
		t.Fatalf("tasks = %d, want unfiltered 2", len(b.Tasks))
	}
}

func TestResolveFetchesSummaryPerWatchedRepo(t *testing.T) {
	t.Parallel()
	gh := &fakeGitHub{
		pulls:   []github.Pull{{Number: 12, Title: "Add caching"}},
		commits: []github.Commit{{SHA: "abc123"}},
	}

	repos := func() []string { return []string{"acme/api", "acme/web"} }
	r := New(testData(), gh, repos, cache.New[any](time.Minute), logx.Nop())

	b := r.Resolve(context.Background(), "any open PRs?", convstore.Context{})
	if gh.infoCalls != 2 || gh.pullCalls != 2 || gh.commitCalls != 2 {
		t.Fatalf("fetches = %d/%d/%d, want once per repo each", gh.infoCalls, gh.pullCalls, gh.commitCalls)
	}
	if len(b.Repos) != 2 || len(b.Pulls) != 2 || len(b.Commits) != 2 {
		t.Fatalf("summary = %d repos, %d pulls, %d commits, want 2 of each", len(b.Repos), len(b.Pulls), len(b.Commits))
	}

	// Cached on the second question.
	r.Resolve(context.Background(), "any open PRs?", convstore.Context{})
	if gh.infoCalls != 2 {
		t.Fatalf("RepoInfo called %d times after cached resolve, want 2", gh.infoCalls)
	}
}

func TestResolveSummaryCapsReposAndSkipsFailures(t *testing.T) {
	t.Parallel()
	gh := &fakeGitHub{
		infoErrs: map[string]error{"acme/web": errors.New("boom")},
	}

	repos := func() []string { return []string{"acme/api", "acme/web", "acme/cli", "acme/extra"} }
	r := New(testData(), gh, repos, cache.New[any](time.Minute), logx.Nop())

	b := r.Resolve(context.Background(), "any open PRs?", convstore.Context{})
	if gh.infoCalls != 3 {
		t.Fatalf("RepoInfo called %d times, want capped at 3", gh.infoCalls)
	}
	// The failing repo is skipped entirely, the others still summarized.
	if len(b.Repos) != 2 {
		t.Fatalf("repos = %+v, want 2 surviving", b.Repos)
	}
	if gh.pullCalls != 2 || gh.commitCalls != 2 {
		t.Fatalf("pull/commit fetches = %d/%d, want 2 each", gh.pullCalls, gh.commitCalls)
	}
}

func TestFormat(t *testing.T) {
	t.Parallel()
	var empty Bundle
	if got := empty.Format(); got != "No relevant data found." {
		t.Fatalf("empty Format = %q", got)
	}

	b := Bundle{
		Projects: []backend.Project{{Name: "Website Redesign", Status: "active"}},
		Tasks:    []backend.Task{{Title: "Fix navbar", Status: "in_progress", Assignee: backend.Assignee{Name: "Alice"}}},
		Repos:    []github.Repo{{FullName: "acme/api", Language: "Go", Description: "REST API"}},
	}
	got := b.Format()
	for _, want := range []string{"Website Redesign", "[active]", "Fix navbar", "Alice", "Repositories:", "acme/api", "REST API"} {
		if !strings.Contains(got, want) {
			t.Fatalf("Format missing %q:\n%s", want, got)
		}
	}
}
