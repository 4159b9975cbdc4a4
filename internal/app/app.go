// Package app wires the services together and runs the main loop that
// consumes chat updates and bus events.
package app

import (
	"context"
	"sync"
	"time"

	"pmbot/internal/backend"
	"pmbot/internal/cache"
	"pmbot/internal/config"
	"pmbot/internal/convstore"
	"pmbot/internal/eventbus"
	"pmbot/internal/github"
	"pmbot/internal/httpx"
	"pmbot/internal/llm"
	"pmbot/internal/mapping"
	"pmbot/internal/poller"
	"pmbot/internal/projects"
	"pmbot/internal/query"
	"pmbot/internal/review"
	"pmbot/internal/scheduler"
	"pmbot/internal/store"
	"pmbot/internal/transport"
	"pmbot/internal/transport/telegram"
	"pmbot/pkg/logx"
)

type App struct {
	cfgm *config.Manager
	log  logx.Logger
	bus  eventbus.Bus
	st   store.Store

	adapter transport.Adapter

	be *backend.Client
	gh *github.Client
	ai *llm.Client

	maps  *mapping.Service
	convs *convstore.Store
	local *projects.Service

	sched   *scheduler.Service
	poll    *poller.Service
	reviews *review.Router
	queries *query.Router

	startedAt time.Time
	updates   chan transport.Update

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	console := true
	if cfg.Logging.Console != nil {
		console = *cfg.Logging.Console
	}
	log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}).With(logx.String("comp", "app"))
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	ad, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
		RatePerSec:  cfg.Telegram.RatePerSec,
	}, log.With(logx.String("comp", "telegram")))
	if err != nil {
		return nil, err
	}

	st, err := store.Open(store.Config{
		Driver: cfg.Storage.Driver,
		Path:   cfg.Storage.Path,
	}, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}

	bus := eventbus.New()

	beTimeout, err := config.ParseDurationOrDefault("backend.timeout", cfg.Backend.Timeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	beBackoff, err := config.ParseDurationOrDefault("backend.backoff", cfg.Backend.Backoff, time.Second)
	if err != nil {
		return nil, err
	}
	be := backend.NewClient(cfg.Backend.BaseURL, httpx.New(httpx.Config{
		Timeout:     beTimeout,
		MaxAttempts: cfg.Backend.Retries,
		Backoff:     beBackoff,
	}, log.With(logx.String("comp", "backend"))), log.With(logx.String("comp", "backend")))

	// GitHub is optional; without a token the poller and reviews stay idle.
	var gh *github.Client
	if cfg.GitHub.Token != "" {
		ghTimeout, err := config.ParseDurationOrDefault("github.timeout", cfg.GitHub.Timeout, 15*time.Second)
		if err != nil {
			return nil, err
		}
		gh = github.NewClient(cfg.GitHub.BaseURL, cfg.GitHub.Token, ghTimeout, log.With(logx.String("comp", "github")))
	} else {
		log.Warn("no GitHub token configured; PR polling and reviews disabled")
	}

	aiTimeout, err := config.ParseDurationOrDefault("ollama.timeout", cfg.Ollama.Timeout, 90*time.Second)
	if err != nil {
		return nil, err
	}
	ai := llm.NewClient(cfg.Ollama.BaseURL, cfg.Ollama.Model, aiTimeout)

	maps := mapping.New(st, log.With(logx.String("comp", "mapping")))
	convs := convstore.New(st, cfg.Query.MaxHistory, log.With(logx.String("comp", "conversations")))
	local := projects.New(st, log.With(logx.String("comp", "projects")))

	sched := scheduler.New(log.With(logx.String("comp", "scheduler")))

	var lister poller.PullLister
	if gh != nil {
		lister = gh
	}
	poll := poller.New(lister, cfg.Poller.Repos, log.With(logx.String("comp", "poller")))

	var pulls review.PullFetcher
	if gh != nil {
		pulls = gh
	}
	reviews := review.NewRouter(review.Config{
		Strategy:       review.Strategy(cfg.Review.RecipientMode),
		FixedID:        cfg.Review.RecipientID,
		FallbackChatID: cfg.Review.FallbackChatID,
	}, ad, pulls, llm.NewReviewer(ai), maps, log.With(logx.String("comp", "review")))

	cacheTTL, err := config.ParseDurationOrDefault("query.cache_ttl", cfg.Query.CacheTTL, 5*time.Minute)
	if err != nil {
		return nil, err
	}
	var src query.SourceControl
	if gh != nil {
		src = gh
	}
	queries := query.New(be, src, poll.Repos, cache.New[any](cacheTTL), log.With(logx.String("comp", "query")))

	return &App{
		cfgm:    cfgm,
		log:     log,
		bus:     bus,
		st:      st,
		adapter: ad,
		be:      be,
		gh:      gh,
		ai:      ai,
		maps:    maps,
		convs:   convs,
		local:   local,
		sched:   sched,
		poll:    poll,
		reviews: reviews,
		queries: queries,
		updates: make(chan transport.Update, 256),
	}, nil
}

func (a *App) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	a.mu.Lock()
	a.cancel = cancel
	a.startedAt = time.Now()
	a.mu.Unlock()

	cfg := a.cfgm.Get()

	if err := a.adapter.Start(runCtx, a.updates); err != nil {
		cancel()
		return err
	}

	// Report schedule: cron fires publish report.due, the app loop renders.
	if err := a.sched.Schedule(func(context.Context) error {
		a.bus.Publish(eventbus.Event{Type: eventbus.TypeReportDue})
		return nil
	}, cfg.Reports.Hours, cfg.Reports.Timezone); err != nil {
		cancel()
		return err
	}
	a.sched.Start(runCtx)

	pollInterval, _ := config.ParseDurationOrDefault("poller.interval", cfg.Poller.Interval, 5*time.Minute)
	pollLookback, _ := config.ParseDurationOrDefault("poller.lookback", cfg.Poller.Lookback, time.Hour)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.poll.Run(runCtx, pollInterval, pollLookback, func(ev poller.MergedPREvent) {
			a.bus.Publish(eventbus.Event{Type: eventbus.TypePRMerged, Data: ev})
		})
	}()

	events, unsub := a.bus.Subscribe(64)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer unsub()
		a.eventLoop(runCtx, events)
	}()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.updateLoop(runCtx)
	}()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.cfgm.Watch(runCtx); err != nil && runCtx.Err() == nil {
			a.log.Warn("config watcher stopped", logx.Err(err))
		}
	}()

	sub := a.cfgm.Subscribe(8)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(runCtx, sub)
	}()

	a.log.Info("app started",
		logx.Int("report_hours", len(cfg.Reports.Hours)),
		logx.Int("watched_repos", len(cfg.Poller.Repos)),
		logx.Bool("github", a.gh != nil))
	return nil
}

// eventLoop dispatches bus events: merged PRs go through the review router,
// report.due renders and sends the scheduled report.
func (a *App) eventLoop(ctx context.Context, events <-chan eventbus.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			switch e.Type {
			case eventbus.TypePRMerged:
				ev, ok := e.Data.(poller.MergedPREvent)
				if !ok {
					continue
				}
				out := a.reviews.Handle(ctx, ev)
				a.log.Info("review outcome",
					logx.String("repo", ev.Repo), logx.Int("pr", ev.Number),
					logx.String("status", out.Status.String()))
			case eventbus.TypeReportDue:
				a.runReport(ctx)
			}
		}
	}
}

// reloadLoop applies hot config changes. The report schedule and watched
// repos update live; transport and storage changes need a restart.
func (a *App) reloadLoop(ctx context.Context, sub chan *config.Config) {
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-sub:
			if !ok {
				return
			}
			if err := a.sched.Schedule(func(context.Context) error {
				a.bus.Publish(eventbus.Event{Type: eventbus.TypeReportDue})
				return nil
			}, cfg.Reports.Hours, cfg.Reports.Timezone); err != nil {
				a.log.Warn("invalid report schedule; keeping previous", logx.Err(err))
			}

			current := map[string]bool{}
			for _, r := range a.poll.Repos() {
				current[r] = true
			}
			for _, r := range cfg.Poller.Repos {
				if !current[r] {
					a.poll.Watch(r)
				}
				delete(current, r)
			}
			for r := range current {
				a.poll.Unwatch(r)
			}

			a.log.Info("config reloaded")
		}
	}
}

func (a *App) Stop(ctx context.Context) error {
	a.mu.Lock()
	cancel := a.cancel
	a.cancel = nil
	a.mu.Unlock()
	if cancel == nil {
		return nil
	}
	a.log.Info("stopping")
	cancel()

	step := func(name string, max time.Duration, fn func(context.Context) error) {
		stepCtx, stepCancel := context.WithTimeout(ctx, max)
		defer stepCancel()
		if err := fn(stepCtx); err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
	}

	step("scheduler", 2*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	step("adapter", 2*time.Second, func(c context.Context) error { return a.adapter.Stop(c) })
	step("storage", time.Second, func(context.Context) error { return a.st.Close() })

	done := make(chan struct{})
	go func() { a.wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-ctx.Done():
		a.log.Warn("timed out waiting for background loops")
	}

	a.log.Info("stopped")
	return nil
}
