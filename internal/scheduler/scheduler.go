// Package scheduler fires the daily report callback at configured hours of
// day in a configured timezone.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"pmbot/pkg/logx"
)

// Callback runs when a job fires. Errors are logged and never unschedule
// the job; the next daily occurrence still fires.
type Callback func(ctx context.Context) error

type jobDef struct {
	id   string
	hour int
	cb   Callback
}

// Service is the recurring report scheduler. One job per hour of day, each
// firing daily at minute 0 in the configured location. Start and Stop are
// idempotent.
type Service struct {
	log logx.Logger

	mu      sync.Mutex
	loc     *time.Location
	jobs    map[int]jobDef // keyed by fire hour
	c       *cron.Cron
	parser  cron.Parser
	runCtx  context.Context
	cancel  context.CancelFunc
	running bool

	// now is swapped out in tests.
	now func() time.Time
}

func New(log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		log:    log,
		jobs:   map[int]jobDef{},
		loc:    time.Local,
		parser: cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
		now:    time.Now,
	}
}

// Schedule registers one job per hour, firing daily at HH:00 in tz.
// A job with an already-registered hour replaces the existing one. Invalid
// hours are rejected; a bad timezone falls back to the previous location.
func (s *Service) Schedule(cb Callback, hours []int, tz string) error {
	loc, err := loadLocation(tz)
	if err != nil {
		return err
	}
	for _, h := range hours {
		if h < 0 || h > 23 {
			return fmt.Errorf("scheduler: hour %d out of range 0-23", h)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.loc = loc
	for _, h := range hours {
		s.jobs[h] = jobDef{id: fmt.Sprintf("report_%d", h), hour: h, cb: cb}
		s.log.Info("scheduled report", logx.Int("hour", h), logx.String("tz", loc.String()))
	}
	if s.running {
		s.restartLocked()
	}
	return nil
}

// Start activates firing. Calling Start when already running is a no-op.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.runCtx, s.cancel = context.WithCancel(ctx)
	s.startCronLocked()
	s.log.Info("scheduler started", logx.Int("jobs", len(s.jobs)), logx.String("tz", s.loc.String()))
}

// Stop cancels pending firings and prevents new ones. In-flight callbacks
// finish. Calling Stop when not running is a no-op.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.running = false
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	if s.c != nil {
		stopped := s.c.Stop()
		s.c = nil
		select {
		case <-stopped.Done():
		case <-ctx.Done():
		}
	}
	s.log.Info("scheduler stopped")
}

func (s *Service) startCronLocked() {
	s.c = cron.New(cron.WithParser(s.parser), cron.WithLocation(s.loc))
	runCtx := s.runCtx
	for _, d := range s.jobs {
		d := d
		spec := fmt.Sprintf("0 %d * * *", d.hour)
		_, err := s.c.AddFunc(spec, func() { s.fire(runCtx, d) })
		if err != nil {
			s.log.Error("failed to register job", logx.String("job", d.id), logx.Err(err))
		}
	}
	s.c.Start()
}

func (s *Service) restartLocked() {
	if s.c != nil {
		<-s.c.Stop().Done()
	}
	s.startCronLocked()
}

func (s *Service) fire(ctx context.Context, d jobDef) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("report callback panicked", logx.String("job", d.id), logx.Any("panic", r))
		}
	}()
	s.log.Info("report job firing", logx.String("job", d.id))
	if err := d.cb(ctx); err != nil {
		// fire-and-forget: the job stays scheduled, no backoff
		s.log.Error("report callback failed", logx.String("job", d.id), logx.Err(err))
	}
}

// NextRunIn returns the duration until the soonest job's next occurrence,
// split into whole hours and remaining minutes. ok is false when no jobs
// are scheduled.
func (s *Service) NextRunIn() (hours int, minutes int, ok bool) {
	d, ok := s.nextDelta()
	if !ok {
		return 0, 0, false
	}
	return int(d / time.Hour), int(d % time.Hour / time.Minute), true
}

func (s *Service) nextDelta() (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.jobs) == 0 {
		return 0, false
	}
	now := s.now().In(s.loc)
	var best time.Duration
	first := true
	for h := range s.jobs {
		next := time.Date(now.Year(), now.Month(), now.Day(), h, 0, 0, 0, s.loc)
		if !next.After(now) {
			next = next.AddDate(0, 0, 1)
		}
		d := next.Sub(now)
		if first || d < best {
			best = d
			first = false
		}
	}
	return best, true
}

// Hours returns the registered fire hours, sorted.
func (s *Service) Hours() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int, 0, len(s.jobs))
	for h := range s.jobs {
		out = append(out, h)
	}
	sort.Ints(out)
	return out
}

func loadLocation(tz string) (*time.Location, error) {
	tz = strings.TrimSpace(tz)
	if tz == "" {
		return time.Local, nil
	}
	return time.LoadLocation(tz)
}
