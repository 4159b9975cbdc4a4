// Package review turns merged-PR events into delivered code reviews:
// generate the AI review, resolve a recipient, attempt direct delivery,
// escalate to the shared fallback channel when that fails.
package review

import (
	"context"
	"fmt"
	"strings"

	"pmbot/internal/github"
	"pmbot/internal/poller"
	"pmbot/internal/transport"
	"pmbot/pkg/logx"
)

// Status is the terminal state of one event's delivery.
type Status int

const (
	StatusDelivered Status = iota
	StatusFallbackDelivered
	StatusLost
)

func (s Status) String() string {
	switch s {
	case StatusDelivered:
		return "delivered"
	case StatusFallbackDelivered:
		return "fallback_delivered"
	default:
		return "lost"
	}
}

type Outcome struct {
	Status      Status
	RecipientID string
}

// PullFetcher supplies the diff detail the review prompt needs.
type PullFetcher interface {
	PullDetail(ctx context.Context, repo string, number int) (*github.PullDetail, error)
}

// Generator produces the two analysis passes. Both are best-effort.
type Generator interface {
	Review(ctx context.Context, d *github.PullDetail) (string, error)
	SecurityScan(ctx context.Context, d *github.PullDetail) (string, error)
}

type Config struct {
	Strategy Strategy
	FixedID  string

	// FallbackChatID is the shared destination for undeliverable reviews.
	// 0 means unconfigured: such reviews are lost (logged at error).
	FallbackChatID int64
}

// Router is the delivery pipeline for merged-PR events. Each event is
// delivered at most once through the primary path and exactly once through
// either the primary or the fallback path, never both.
type Router struct {
	cfg     Config
	adapter transport.Adapter
	pulls   PullFetcher
	gen     Generator
	lookup  Lookup
	log     logx.Logger
}

func NewRouter(cfg Config, adapter transport.Adapter, pulls PullFetcher, gen Generator, lookup Lookup, log logx.Logger) *Router {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.Strategy == "" {
		cfg.Strategy = StrategyAuthor
	}
	return &Router{
		cfg:     cfg,
		adapter: adapter,
		pulls:   pulls,
		gen:     gen,
		lookup:  lookup,
		log:     log,
	}
}

// Handle processes one merged-PR event to a terminal state.
func (r *Router) Handle(ctx context.Context, ev poller.MergedPREvent) Outcome {
	log := r.log.With(logx.String("repo", ev.Repo), logx.Int("pr", ev.Number))
	log.Info("processing merged PR")

	detail := r.fetchDetail(ctx, ev, log)
	reviewText, securityText := r.generate(ctx, detail, log)
	body := renderReview(detail, reviewText, securityText)

	res := Resolve(r.cfg.Strategy, r.cfg.FixedID, ev, r.lookup)
	if res.Kind == Unresolved {
		// no primary attempt at all
		log.Warn("no recipient resolved for PR author", logx.String("author", ev.Author))
		return r.fallback(ctx, body, referenceFor(res), log)
	}

	_, err := r.adapter.SendDirect(ctx, res.RecipientID, body, &transport.SendOptions{DisablePreview: true})
	if err == nil {
		log.Info("review delivered", logx.String("recipient", res.RecipientID))
		return Outcome{Status: StatusDelivered, RecipientID: res.RecipientID}
	}

	switch transport.KindOf(err) {
	case transport.KindUnreachable:
		log.Warn("recipient unreachable, escalating to fallback",
			logx.String("recipient", res.RecipientID), logx.Err(err))
		return r.fallback(ctx, body, r.adapter.Mention(res.RecipientID), log)
	default:
		log.Warn("direct delivery failed, escalating to fallback",
			logx.String("recipient", res.RecipientID), logx.Err(err))
		return r.fallback(ctx, body, "", log)
	}
}

// fetchDetail pulls diff data; when that fails the notification still goes
// out with whatever the event itself carries.
func (r *Router) fetchDetail(ctx context.Context, ev poller.MergedPREvent, log logx.Logger) *github.PullDetail {
	if r.pulls != nil {
		d, err := r.pulls.PullDetail(ctx, ev.Repo, ev.Number)
		if err == nil {
			return d
		}
		log.Warn("failed to fetch PR detail", logx.Err(err))
	}
	d := &github.PullDetail{RepoFullName: ev.Repo}
	d.Number = ev.Number
	d.User.Login = ev.Author
	d.Title = fmt.Sprintf("PR #%d", ev.Number)
	return d
}

// generate runs the review pass and, only after a successful review, the
// security pass. Either failing is non-fatal to delivery.
func (r *Router) generate(ctx context.Context, d *github.PullDetail, log logx.Logger) (reviewText, securityText string) {
	if r.gen == nil {
		return "", ""
	}
	var err error
	reviewText, err = r.gen.Review(ctx, d)
	if err != nil {
		log.Warn("AI review generation failed", logx.Err(err))
		return "", ""
	}
	securityText, err = r.gen.SecurityScan(ctx, d)
	if err != nil {
		log.Warn("security analysis failed", logx.Err(err))
		securityText = ""
	}
	return reviewText, securityText
}

// fallback delivers to the shared destination, optionally referencing the
// intended recipient. An unconfigured or failing fallback loses the event.
func (r *Router) fallback(ctx context.Context, body, reference string, log logx.Logger) Outcome {
	if r.cfg.FallbackChatID == 0 {
		log.Error("no fallback channel configured, review lost")
		return Outcome{Status: StatusLost}
	}

	text := body
	if reference != "" {
		text = reference + " here is the review for your PR (it could not be delivered directly):\n\n" + body
	}
	_, err := r.adapter.SendText(ctx, transport.ChatTarget{ChatID: r.cfg.FallbackChatID}, text, &transport.SendOptions{DisablePreview: true})
	if err != nil {
		log.Error("fallback delivery failed, review lost", logx.Err(err))
		return Outcome{Status: StatusLost}
	}
	log.Info("review delivered to fallback channel")
	return Outcome{Status: StatusFallbackDelivered}
}

// referenceFor names the intended recipient for unresolved events, where
// no platform id exists to mention.
func referenceFor(res Resolution) string {
	if res.Username == "" {
		return ""
	}
	return "@" + res.Username
}

func renderReview(d *github.PullDetail, reviewText, securityText string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🔍 Code review: %s #%d: %s\n", d.RepoFullName, d.Number, d.Title)
	if d.User.Login != "" {
		fmt.Fprintf(&b, "Author: %s\n", d.User.Login)
	}
	if d.Additions > 0 || d.Deletions > 0 {
		fmt.Fprintf(&b, "Changes: %d files, +%d/-%d\n", d.ChangedFiles, d.Additions, d.Deletions)
	}
	b.WriteString("\n")

	if strings.TrimSpace(reviewText) == "" {
		b.WriteString("⚠️ AI review could not be generated for this merge; see the diff on the platform.\n")
	} else {
		b.WriteString(reviewText)
		b.WriteString("\n")
	}
	if strings.TrimSpace(securityText) != "" {
		b.WriteString("\n🔒 Security notes:\n")
		b.WriteString(securityText)
		b.WriteString("\n")
	}
	if d.HTMLURL != "" {
		b.WriteString("\n" + d.HTMLURL)
	}
	return b.String()
}
