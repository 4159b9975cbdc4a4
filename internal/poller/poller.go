// Package poller detects newly merged pull requests across the watched
// repositories, emitting each (repo, number) pair at most once per process
// lifetime via a per-repo high watermark.
package poller

import (
	"context"
	"sync"
	"time"

	"pmbot/internal/github"
	"pmbot/pkg/logx"
)

// scanDepth bounds how many recently closed PRs are inspected per repo per
// tick. A repo with more merges than this between two ticks silently
// misses the older ones within that tick; acceptable at short intervals.
const scanDepth = 10

// MergedPREvent is produced once per (repo, number) pair and consumed
// exactly once by the delivery pipeline.
type MergedPREvent struct {
	Repo     string
	Number   int
	Author   string
	MergedAt time.Time
}

// PullLister is the slice of the GitHub client the poller needs.
type PullLister interface {
	ClosedPulls(ctx context.Context, repo string, limit int) ([]github.Pull, error)
}

// Service tracks a per-repository high watermark. Watermarks are in-memory
// only: after a restart the lookback window alone bounds replays.
type Service struct {
	log    logx.Logger
	lister PullLister

	mu         sync.Mutex
	repos      []string
	watermarks map[string]int

	// now is swapped out in tests.
	now func() time.Time
}

func New(lister PullLister, repos []string, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		log:        log,
		lister:     lister,
		repos:      append([]string(nil), repos...),
		watermarks: map[string]int{},
		now:        time.Now,
	}
}

// Watch adds a repository to the watch list.
func (s *Service) Watch(repo string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.repos {
		if r == repo {
			return
		}
	}
	s.repos = append(s.repos, repo)
	s.log.Info("now watching repo", logx.String("repo", repo))
}

// Unwatch removes a repository; reports whether it was watched. The
// watermark is kept so re-watching does not replay old merges.
func (s *Service) Unwatch(repo string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, r := range s.repos {
		if r == repo {
			s.repos = append(s.repos[:i], s.repos[i+1:]...)
			s.log.Info("stopped watching repo", logx.String("repo", repo))
			return true
		}
	}
	return false
}

// Repos returns a snapshot of the watch list.
func (s *Service) Repos() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.repos...)
}

// Poll scans every watched repository once and returns the newly merged
// PRs. Per-repo fetch failures are logged and do not abort the remaining
// repositories. A nil lister or empty watch list yields no events.
func (s *Service) Poll(ctx context.Context, lookback time.Duration) []MergedPREvent {
	if s.lister == nil {
		return nil
	}
	repos := s.Repos()
	if len(repos) == 0 {
		return nil
	}

	cutoff := s.now().Add(-lookback)
	var events []MergedPREvent

	for _, repo := range repos {
		pulls, err := s.lister.ClosedPulls(ctx, repo, scanDepth)
		if err != nil {
			s.log.Warn("failed to check repo for merged PRs", logx.String("repo", repo), logx.Err(err))
			continue
		}

		s.mu.Lock()
		watermark := s.watermarks[repo]
		s.mu.Unlock()

		// The new watermark is computed from this tick's results alone and
		// stored once, so results arriving out of numeric order still move
		// it monotonically.
		maxSeen := watermark
		for _, p := range pulls {
			if !p.IsMerged() || p.MergedAt == nil {
				continue
			}
			// merged exactly at the cutoff is also excluded
			if !p.MergedAt.After(cutoff) {
				continue
			}
			if p.Number <= watermark {
				continue
			}
			s.log.Info("found newly merged PR", logx.String("repo", repo), logx.Int("pr", p.Number))
			events = append(events, MergedPREvent{
				Repo:     repo,
				Number:   p.Number,
				Author:   p.User.Login,
				MergedAt: *p.MergedAt,
			})
			if p.Number > maxSeen {
				maxSeen = p.Number
			}
		}

		if maxSeen > watermark {
			s.mu.Lock()
			// never decreases, even if interleaved writers raced us here
			if maxSeen > s.watermarks[repo] {
				s.watermarks[repo] = maxSeen
			}
			s.mu.Unlock()
		}
	}
	return events
}

// Run polls on a fixed interval until ctx is done, handing each event to
// emit. It is the long-lived driver task; its cadence is independent of
// the report scheduler.
func (s *Service) Run(ctx context.Context, interval, lookback time.Duration, emit func(MergedPREvent)) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.log.Info("merge poller started",
		logx.Duration("interval", interval),
		logx.Duration("lookback", lookback),
		logx.Int("repos", len(s.Repos())))

	for {
		select {
		case <-ctx.Done():
			s.log.Info("merge poller stopped")
			return
		case <-ticker.C:
			for _, ev := range s.Poll(ctx, lookback) {
				emit(ev)
			}
		}
	}
}
