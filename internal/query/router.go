// Package query decides which data sources a free-text question needs and
// assembles the data context handed to the language model.
package query

import (
	"context"
	"fmt"
	"strings"

	"pmbot/internal/backend"
	"pmbot/internal/cache"
	"pmbot/internal/convstore"
	"pmbot/internal/github"
	"pmbot/pkg/logx"
)

// Cache keys are shared across users: context narrowing happens after the
// fetch, never in the key, so every user hits the same cached payloads.
const (
	KeyProjects = "projects"
	KeyTasks    = "tasks"
	KeyGitHub   = "github"
)

// Question categories. A question can match any subset; each matched
// category pulls in one or more cache keys via categorySources.
const (
	CatProjects = "projects"
	CatTasks    = "tasks"
	CatTeam     = "team"
	CatStats    = "stats"
)

// catOrder fixes the category evaluation order so Sections output is stable.
var catOrder = []string{CatProjects, CatTasks, CatTeam, CatStats}

// taskHoursWindow bounds the recent-tasks fetch behind KeyTasks.
const taskHoursWindow = 72

// Caps on the source-control summary, per watched repository.
const (
	summaryRepoCap = 3
	pullsPerRepo   = 5
	commitsPerRepo = 10
)

// rules maps each question category to the keywords that trigger it.
// Matching is substring over the lowercased question.
var rules = map[string][]string{
	CatProjects: {"project", "status", "progress", "milestone"},
	CatTasks:    {"task", "todo", "deadline", "due", "overdue", "pending", "complete"},
	CatTeam:     {"team", "who", "assigned", "working on"},
	CatStats:    {"how many", "statistics", "stats", "summary", "overview"},
}

// categorySources maps a matched category to the cache keys it needs. Team
// questions read the task list (it carries the assignees); aggregate-stats
// questions need both superset fetches.
var categorySources = map[string][]string{
	CatProjects: {KeyProjects},
	CatTasks:    {KeyTasks},
	CatTeam:     {KeyTasks},
	CatStats:    {KeyProjects, KeyTasks},
}

// githubKeywords gate the source-control summary. It is fetched only when
// both a keyword matches and a GitHub client is configured.
var githubKeywords = []string{"pr", "pull request", "commit", "merge", "branch", "review", "github", "repo", "code"}

// Backend is the slice of the project hub the router reads.
type Backend interface {
	ActiveProjects(ctx context.Context) ([]backend.Project, error)
	RecentTasks(ctx context.Context, hours int) ([]backend.Task, error)
}

// SourceControl is the slice of the GitHub client the summary needs.
type SourceControl interface {
	RepoInfo(ctx context.Context, repo string) (*github.Repo, error)
	OpenPulls(ctx context.Context, repo string, limit int) ([]github.Pull, error)
	RecentCommits(ctx context.Context, repo string, limit int) ([]github.Commit, error)
}

// Bundle is the resolved data for one question.
type Bundle struct {
	Projects []backend.Project
	Tasks    []backend.Task
	Repos    []github.Repo
	Pulls    []github.Pull
	Commits  []github.Commit
}

func (b Bundle) Empty() bool {
	return len(b.Projects) == 0 && len(b.Tasks) == 0 &&
		len(b.Repos) == 0 && len(b.Pulls) == 0 && len(b.Commits) == 0
}

// summary is the cached payload behind KeyGitHub.
type summary struct {
	repos   []github.Repo
	pulls   []github.Pull
	commits []github.Commit
}

// Router routes questions to data sections through a shared TTL cache.
type Router struct {
	be    Backend
	gh    SourceControl
	repos func() []string
	cache *cache.TTL[any]
	log   logx.Logger
}

// New builds a Router. gh may be nil when no GitHub token is configured;
// the source-control summary is then never fetched regardless of keywords.
// repos supplies the currently watched repositories.
func New(be Backend, gh SourceControl, repos func() []string, c *cache.TTL[any], log logx.Logger) *Router {
	if log.IsZero() {
		log = logx.Nop()
	}
	if repos == nil {
		repos = func() []string { return nil }
	}
	return &Router{be: be, gh: gh, repos: repos, cache: c, log: log}
}

// Categories reports which question categories match, in a stable order.
// Each category is keyed solely on its own keyword set.
func Categories(question string) []string {
	q := strings.ToLower(question)
	var out []string
	for _, cat := range catOrder {
		if matchAny(q, rules[cat]) {
			out = append(out, cat)
		}
	}
	return out
}

// Sections reports which cache keys a question would pull in, in a stable
// order. A question matching no category still gets the projects section so
// the model has something to ground on. Exposed for the status command and
// for tests.
func (r *Router) Sections(question string) []string {
	want := make(map[string]bool)
	for _, cat := range Categories(question) {
		for _, key := range categorySources[cat] {
			want[key] = true
		}
	}
	var out []string
	for _, key := range []string{KeyProjects, KeyTasks} {
		if want[key] {
			out = append(out, key)
		}
	}
	if len(out) == 0 {
		out = append(out, KeyProjects)
	}
	if r.gh != nil && matchAny(strings.ToLower(question), githubKeywords) {
		out = append(out, KeyGitHub)
	}
	return out
}

// Resolve fetches the sections the question needs and narrows them by the
// user's conversational context. Section fetch failures are logged and the
// section left empty; a partially filled bundle is still useful.
func (r *Router) Resolve(ctx context.Context, question string, cc convstore.Context) Bundle {
	var b Bundle
	for _, key := range r.Sections(question) {
		switch key {
		case KeyProjects:
			v, err := r.cache.GetOrFetch(ctx, KeyProjects, func(ctx context.Context) (any, error) {
				return r.be.ActiveProjects(ctx)
			})
			if err != nil {
				r.log.Warn("project fetch failed", logx.Err(err))
				continue
			}
			b.Projects, _ = v.([]backend.Project)
		case KeyTasks:
			v, err := r.cache.GetOrFetch(ctx, KeyTasks, func(ctx context.Context) (any, error) {
				return r.be.RecentTasks(ctx, taskHoursWindow)
			})
			if err != nil {
				r.log.Warn("task fetch failed", logx.Err(err))
				continue
			}
			b.Tasks, _ = v.([]backend.Task)
		case KeyGitHub:
			v, err := r.cache.GetOrFetch(ctx, KeyGitHub, func(ctx context.Context) (any, error) {
				return r.fetchSummary(ctx), nil
			})
			if err != nil {
				continue
			}
			if s, ok := v.(summary); ok {
				b.Repos = s.repos
				b.Pulls = s.pulls
				b.Commits = s.commits
			}
		}
	}
	return narrow(b, cc)
}

// fetchSummary aggregates repo metadata, open PRs and recent commits across
// the watched repos. Per-repo errors are logged and skipped so one bad repo
// cannot blank the section.
func (r *Router) fetchSummary(ctx context.Context) summary {
	var s summary
	repos := r.repos()
	if len(repos) > summaryRepoCap {
		repos = repos[:summaryRepoCap]
	}
	for _, repo := range repos {
		info, err := r.gh.RepoInfo(ctx, repo)
		if err != nil {
			r.log.Warn("repo info fetch failed", logx.String("repo", repo), logx.Err(err))
			continue
		}
		s.repos = append(s.repos, *info)
		if pulls, err := r.gh.OpenPulls(ctx, repo, pullsPerRepo); err != nil {
			r.log.Warn("open PR fetch failed", logx.String("repo", repo), logx.Err(err))
		} else {
			s.pulls = append(s.pulls, pulls...)
		}
		if commits, err := r.gh.RecentCommits(ctx, repo, commitsPerRepo); err != nil {
			r.log.Warn("commit fetch failed", logx.String("repo", repo), logx.Err(err))
		} else {
			s.commits = append(s.commits, commits...)
		}
	}
	return s
}

// narrow applies conversational context as a post-filter. A context value
// that matches nothing leaves the section unfiltered rather than empty.
func narrow(b Bundle, cc convstore.Context) Bundle {
	if cc.Project != "" {
		if ps := filterProjects(b.Projects, cc.Project); len(ps) > 0 {
			b.Projects = ps
		}
		if ts := filterTasksByProject(b.Tasks, cc.Project); len(ts) > 0 {
			b.Tasks = ts
		}
	}
	if cc.User != "" {
		if ts := filterTasksByUser(b.Tasks, cc.User); len(ts) > 0 {
			b.Tasks = ts
		}
	}
	return b
}

func filterProjects(ps []backend.Project, name string) []backend.Project {
	var out []backend.Project
	for _, p := range ps {
		if strings.Contains(strings.ToLower(p.Name), strings.ToLower(name)) {
			out = append(out, p)
		}
	}
	return out
}

func filterTasksByProject(ts []backend.Task, name string) []backend.Task {
	var out []backend.Task
	for _, t := range ts {
		if strings.Contains(strings.ToLower(t.ProjectName), strings.ToLower(name)) {
			out = append(out, t)
		}
	}
	return out
}

func filterTasksByUser(ts []backend.Task, user string) []backend.Task {
	var out []backend.Task
	for _, t := range ts {
		if strings.Contains(strings.ToLower(t.Assignee.Name), strings.ToLower(user)) {
			out = append(out, t)
		}
	}
	return out
}

// Format renders the bundle as the plain-text data context for the model.
func (b Bundle) Format() string {
	if b.Empty() {
		return "No relevant data found."
	}
	var sb strings.Builder
	if len(b.Projects) > 0 {
		sb.WriteString("Projects:\n")
		for _, p := range b.Projects {
			fmt.Fprintf(&sb, "- %s", p.Name)
			if p.Status != "" {
				fmt.Fprintf(&sb, " [%s]", p.Status)
			}
			sb.WriteString("\n")
		}
	}
	if len(b.Tasks) > 0 {
		sb.WriteString("Tasks:\n")
		for _, t := range b.Tasks {
			fmt.Fprintf(&sb, "- %s", t.Title)
			if t.Status != "" {
				fmt.Fprintf(&sb, " (%s)", t.Status)
			}
			if t.Assignee.Name != "" {
				fmt.Fprintf(&sb, " -> %s", t.Assignee.Name)
			}
			if t.DueDate != "" {
				fmt.Fprintf(&sb, ", due %s", t.DueDate)
			}
			sb.WriteString("\n")
		}
	}
	if len(b.Repos) > 0 {
		sb.WriteString("Repositories:\n")
		for _, rp := range b.Repos {
			fmt.Fprintf(&sb, "- %s", rp.FullName)
			if rp.Language != "" {
				fmt.Fprintf(&sb, " (%s)", rp.Language)
			}
			if rp.Description != "" {
				fmt.Fprintf(&sb, ": %s", rp.Description)
			}
			sb.WriteString("\n")
		}
	}
	if len(b.Pulls) > 0 {
		sb.WriteString("Open pull requests:\n")
		for _, p := range b.Pulls {
			fmt.Fprintf(&sb, "- #%d %s (%s)\n", p.Number, p.Title, p.User.Login)
		}
	}
	if len(b.Commits) > 0 {
		sb.WriteString("Recent commits:\n")
		for _, c := range b.Commits {
			fmt.Fprintf(&sb, "- %s (%s)\n", c.Subject(), c.AuthorName())
		}
	}
	return sb.String()
}

func matchAny(q string, words []string) bool {
	for _, w := range words {
		if strings.Contains(q, w) {
			return true
		}
	}
	return false
}
