// Package convstore keeps per-user conversation history and context slots
// for the conversational AI, bounded and durably persisted.
package convstore

import (
	"context"
	"sync"
	"time"

	"pmbot/internal/store"
	"pmbot/pkg/logx"
)

const docName = "conversations"

type Message struct {
	Role      string    `json:"role"` // "user" or "assistant"
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Context holds the remembered conversational state for one user. Fields
// stay empty until explicitly set.
type Context struct {
	Project string `json:"project,omitempty"`
	Task    string `json:"task,omitempty"`
	User    string `json:"user,omitempty"`
	Topic   string `json:"topic,omitempty"`
}

// ContextUpdate merges only the fields that are non-nil.
type ContextUpdate struct {
	Project *string
	Task    *string
	User    *string
	Topic   *string
}

type record struct {
	Messages    []Message `json:"messages"`
	Context     Context   `json:"context"`
	LastUpdated time.Time `json:"last_updated"`
}

// Store is the bounded per-user conversation store. After any mutation a
// user's history holds at most 2×maxHistory messages, oldest dropped first.
type Store struct {
	st         store.Store
	log        logx.Logger
	maxHistory int

	mu    sync.Mutex
	users map[string]*record

	now func() time.Time
}

func New(st store.Store, maxHistory int, log logx.Logger) *Store {
	if maxHistory <= 0 {
		maxHistory = 10
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Store{
		st:         st,
		log:        log,
		maxHistory: maxHistory,
		users:      map[string]*record{},
		now:        time.Now,
	}

	if st != nil {
		users := map[string]*record{}
		if found, err := st.Load(context.Background(), docName, &users); err != nil {
			log.Warn("failed to load conversations", logx.Err(err))
		} else if found {
			s.users = users
			log.Info("loaded conversation histories", logx.Int("count", len(users)))
		}
	}
	return s
}

// Append adds a timestamped message, trims the history to the bound and
// persists before returning.
func (s *Store) Append(ctx context.Context, userID, role, content string) {
	s.mu.Lock()
	r := s.users[userID]
	if r == nil {
		r = &record{}
		s.users[userID] = r
	}
	r.Messages = append(r.Messages, Message{Role: role, Content: content, Timestamp: s.now()})
	if limit := s.maxHistory * 2; len(r.Messages) > limit {
		r.Messages = append([]Message(nil), r.Messages[len(r.Messages)-limit:]...)
	}
	r.LastUpdated = s.now()
	s.mu.Unlock()

	s.persist(ctx)
}

// History returns a copy of the user's messages, oldest first. Unknown
// users get an empty history without being initialized.
func (s *Store) History(userID string) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.users[userID]
	if r == nil {
		return nil
	}
	return append([]Message(nil), r.Messages...)
}

// GetContext returns the user's context slots; the zero Context for
// unknown users.
func (s *Store) GetContext(userID string) Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.users[userID]
	if r == nil {
		return Context{}
	}
	return r.Context
}

// UpdateContext merges the provided fields only and persists.
func (s *Store) UpdateContext(ctx context.Context, userID string, upd ContextUpdate) {
	s.mu.Lock()
	r := s.users[userID]
	if r == nil {
		r = &record{}
		s.users[userID] = r
	}
	if upd.Project != nil {
		r.Context.Project = *upd.Project
	}
	if upd.Task != nil {
		r.Context.Task = *upd.Task
	}
	if upd.User != nil {
		r.Context.User = *upd.User
	}
	if upd.Topic != nil {
		r.Context.Topic = *upd.Topic
	}
	r.LastUpdated = s.now()
	s.mu.Unlock()

	s.persist(ctx)
}

// Reset fully removes the user's record.
func (s *Store) Reset(ctx context.Context, userID string) {
	s.mu.Lock()
	_, ok := s.users[userID]
	delete(s.users, userID)
	s.mu.Unlock()
	if ok {
		s.persist(ctx)
		s.log.Info("conversation reset", logx.String("user", userID))
	}
}

// persist rewrites the whole document. Failures are logged; the in-memory
// state keeps the mutation, so at most one document write can be lost.
func (s *Store) persist(ctx context.Context) {
	if s.st == nil {
		return
	}
	s.mu.Lock()
	cp := make(map[string]*record, len(s.users))
	for k, v := range s.users {
		rc := *v
		rc.Messages = append([]Message(nil), v.Messages...)
		cp[k] = &rc
	}
	s.mu.Unlock()

	if err := s.st.Save(ctx, docName, cp); err != nil {
		s.log.Error("failed to persist conversations", logx.Err(err))
	}
}
