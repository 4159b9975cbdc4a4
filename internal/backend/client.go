// Package backend is the client for the project-hub REST API that feeds
// the scheduled reports and the query router.
package backend

import (
	"context"
	"encoding/json"
	"strings"

	"pmbot/internal/httpx"
	"pmbot/pkg/logx"
)

type Client struct {
	baseURL string
	fetch   *httpx.Fetcher
	log     logx.Logger
}

func NewClient(baseURL string, fetch *httpx.Fetcher, log logx.Logger) *Client {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		fetch:   fetch,
		log:     log,
	}
}

// ActiveProjects fetches all active projects. An unexpected response shape
// decodes to an empty list rather than an error.
func (c *Client) ActiveProjects(ctx context.Context) ([]Project, error) {
	var raw json.RawMessage
	if err := c.fetch.GetJSON(ctx, c.baseURL+"/api/chat/projects", &raw); err != nil {
		return nil, err
	}
	return list[Project](raw, "projects"), nil
}

// RecentTasks fetches tasks updated in the last hours.
func (c *Client) RecentTasks(ctx context.Context, hours int) ([]Task, error) {
	var raw json.RawMessage
	body := map[string]any{"hours": hours}
	if err := c.fetch.PostJSON(ctx, c.baseURL+"/api/chat/tasks/recent", body, &raw); err != nil {
		return nil, err
	}
	return list[Task](raw, "tasks"), nil
}

// UserStats fetches per-user completion counts for one project.
func (c *Client) UserStats(ctx context.Context, projectID string, hours int) ([]UserStat, error) {
	var raw json.RawMessage
	body := map[string]any{"projectId": projectID, "hours": hours}
	if err := c.fetch.PostJSON(ctx, c.baseURL+"/api/chat/stats", body, &raw); err != nil {
		return nil, err
	}
	return list[UserStat](raw, "stats"), nil
}

// IncompleteTasks fetches pending/overdue tasks for one project.
func (c *Client) IncompleteTasks(ctx context.Context, projectID string) ([]Task, error) {
	var raw json.RawMessage
	body := map[string]any{"projectId": projectID}
	if err := c.fetch.PostJSON(ctx, c.baseURL+"/api/chat/incomplete", body, &raw); err != nil {
		return nil, err
	}
	return list[Task](raw, "tasks"), nil
}

// RecentCommits fetches commits the hub has mirrored for one project.
func (c *Client) RecentCommits(ctx context.Context, projectID string, hours int) ([]Commit, error) {
	var raw json.RawMessage
	body := map[string]any{"projectId": projectID, "hours": hours}
	if err := c.fetch.PostJSON(ctx, c.baseURL+"/api/chat/commits", body, &raw); err != nil {
		return nil, err
	}
	return list[Commit](raw, "commits"), nil
}

// LinkAccount links a chat identity to a hub account by email.
func (c *Client) LinkAccount(ctx context.Context, chatUserID, email string) error {
	body := map[string]any{"chatId": chatUserID, "email": email}
	return c.fetch.PostJSON(ctx, c.baseURL+"/api/chat/link", body, nil)
}
