// Package github is a minimal GitHub REST client: closed pulls for the
// merge poller, pull detail with capped diffs for reviews, and repo
// summaries for the query router.
package github

import (
	"context"
	"fmt"
	"strings"
	"time"

	"pmbot/internal/httpx"
	"pmbot/pkg/logx"
)

const (
	// maxReviewFiles caps how many file diffs feed one review prompt.
	maxReviewFiles = 20
	// maxPatchChars truncates pathological single-file patches.
	maxPatchChars = 5000
)

type User struct {
	Login string `json:"login"`
}

type Pull struct {
	Number    int        `json:"number"`
	Title     string     `json:"title"`
	Body      string     `json:"body"`
	State     string     `json:"state"`
	Merged    bool       `json:"merged"`
	MergedAt  *time.Time `json:"merged_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	User      User       `json:"user"`
	HTMLURL   string     `json:"html_url"`

	ChangedFiles int `json:"changed_files"`
	Additions    int `json:"additions"`
	Deletions    int `json:"deletions"`
	Commits      int `json:"commits"`
}

// IsMerged also covers the list endpoint, which omits the "merged" flag and
// only sets merged_at.
func (p Pull) IsMerged() bool {
	return p.Merged || p.MergedAt != nil
}

type PullFile struct {
	Filename  string `json:"filename"`
	Status    string `json:"status"`
	Additions int    `json:"additions"`
	Deletions int    `json:"deletions"`
	Changes   int    `json:"changes"`
	Patch     string `json:"patch"`
}

// PullDetail is everything a review prompt needs about one merged PR.
type PullDetail struct {
	Pull
	RepoFullName string
	RepoOwner    string
	Files        []PullFile
}

type Repo struct {
	Name        string `json:"name"`
	FullName    string `json:"full_name"`
	Description string `json:"description"`
	Owner       User   `json:"owner"`
	HTMLURL     string `json:"html_url"`
	Language    string `json:"language"`
	Stars       int    `json:"stargazers_count"`
	Forks       int    `json:"forks_count"`
}

type CommitAuthor struct {
	Name string `json:"name"`
}

type CommitDetail struct {
	Message string       `json:"message"`
	Author  CommitAuthor `json:"author"`
}

type Commit struct {
	SHA    string       `json:"sha"`
	Commit CommitDetail `json:"commit"`
	Author *User        `json:"author"`
}

func (c Commit) Subject() string {
	msg := c.Commit.Message
	if i := strings.IndexByte(msg, '\n'); i >= 0 {
		msg = msg[:i]
	}
	return msg
}

func (c Commit) AuthorName() string {
	if c.Commit.Author.Name != "" {
		return c.Commit.Author.Name
	}
	if c.Author != nil {
		return c.Author.Login
	}
	return "unknown"
}

type Client struct {
	baseURL string
	fetch   *httpx.Fetcher
	log     logx.Logger
}

// NewClient builds a GitHub client. token is required; the caller degrades
// to a nil client when no credential is configured.
func NewClient(baseURL, token string, timeout time.Duration, log logx.Logger) *Client {
	if baseURL == "" {
		baseURL = "https://api.github.com"
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	fetch := httpx.New(httpx.Config{
		Timeout:     timeout,
		MaxAttempts: 3,
		Headers: map[string]string{
			"Authorization":        "Bearer " + token,
			"X-GitHub-Api-Version": "2022-11-28",
		},
	}, log)
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		fetch:   fetch,
		log:     log,
	}
}

// ClosedPulls returns up to limit recently closed PRs for repo ("owner/name"),
// most recently updated first.
func (c *Client) ClosedPulls(ctx context.Context, repo string, limit int) ([]Pull, error) {
	if limit <= 0 {
		limit = 10
	}
	url := fmt.Sprintf("%s/repos/%s/pulls?state=closed&sort=updated&direction=desc&per_page=%d", c.baseURL, repo, limit)
	var pulls []Pull
	if err := c.fetch.GetJSON(ctx, url, &pulls); err != nil {
		return nil, err
	}
	return pulls, nil
}

// OpenPulls returns up to limit open PRs for repo.
func (c *Client) OpenPulls(ctx context.Context, repo string, limit int) ([]Pull, error) {
	if limit <= 0 {
		limit = 5
	}
	url := fmt.Sprintf("%s/repos/%s/pulls?state=open&per_page=%d", c.baseURL, repo, limit)
	var pulls []Pull
	if err := c.fetch.GetJSON(ctx, url, &pulls); err != nil {
		return nil, err
	}
	return pulls, nil
}

// PullDetail fetches one PR's metadata and file diffs, skipping generated
// and binary files, truncating oversized patches and capping the file count.
func (c *Client) PullDetail(ctx context.Context, repo string, number int) (*PullDetail, error) {
	var p Pull
	if err := c.fetch.GetJSON(ctx, fmt.Sprintf("%s/repos/%s/pulls/%d", c.baseURL, repo, number), &p); err != nil {
		return nil, err
	}

	var files []PullFile
	if err := c.fetch.GetJSON(ctx, fmt.Sprintf("%s/repos/%s/pulls/%d/files?per_page=100", c.baseURL, repo, number), &files); err != nil {
		return nil, err
	}

	owner := repo
	if i := strings.IndexByte(repo, '/'); i > 0 {
		owner = repo[:i]
	}
	d := &PullDetail{Pull: p, RepoFullName: repo, RepoOwner: owner}
	for _, f := range files {
		if shouldSkipFile(f.Filename) {
			continue
		}
		if f.Patch == "" {
			f.Patch = "Binary file or no changes"
		} else if len(f.Patch) > maxPatchChars {
			f.Patch = f.Patch[:maxPatchChars] + "\n\n... (truncated)"
		}
		d.Files = append(d.Files, f)
		if len(d.Files) >= maxReviewFiles {
			c.log.Warn("pull has too many files, capping diff set",
				logx.String("repo", repo), logx.Int("pr", number), logx.Int("cap", maxReviewFiles))
			break
		}
	}
	return d, nil
}

// RepoInfo fetches basic repository metadata.
func (c *Client) RepoInfo(ctx context.Context, repo string) (*Repo, error) {
	var r Repo
	if err := c.fetch.GetJSON(ctx, fmt.Sprintf("%s/repos/%s", c.baseURL, repo), &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// RecentCommits returns up to limit commits on the default branch.
func (c *Client) RecentCommits(ctx context.Context, repo string, limit int) ([]Commit, error) {
	if limit <= 0 {
		limit = 10
	}
	url := fmt.Sprintf("%s/repos/%s/commits?per_page=%d", c.baseURL, repo, limit)
	var commits []Commit
	if err := c.fetch.GetJSON(ctx, url, &commits); err != nil {
		return nil, err
	}
	return commits, nil
}

var skipPatterns = []string{
	"package-lock.json", "yarn.lock", "pnpm-lock.yaml", "go.sum",
	".min.js", ".min.css", ".map",
	"dist/", "build/", "node_modules/", "vendor/", "__pycache__/",
	".pyc", ".png", ".jpg", ".jpeg", ".gif", ".svg", ".ico",
	".pdf", ".zip", ".tar", ".gz",
}

// shouldSkipFile filters files that add noise, not signal, to a review.
func shouldSkipFile(filename string) bool {
	lower := strings.ToLower(filename)
	for _, p := range skipPatterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}
