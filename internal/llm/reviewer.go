package llm

import (
	"context"

	"pmbot/internal/github"
)

// Reviewer runs the two single-shot analysis passes over a merged PR.
type Reviewer struct {
	c *Client
}

func NewReviewer(c *Client) *Reviewer {
	if c == nil {
		return nil
	}
	return &Reviewer{c: c}
}

func (r *Reviewer) Review(ctx context.Context, d *github.PullDetail) (string, error) {
	return r.c.Generate(ctx, ReviewPrompt(d), ReviewOptions())
}

func (r *Reviewer) SecurityScan(ctx context.Context, d *github.PullDetail) (string, error) {
	return r.c.Generate(ctx, SecurityPrompt(d), SecurityOptions())
}
