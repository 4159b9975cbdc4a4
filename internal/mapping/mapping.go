// Package mapping owns the GitHub-username → chat-recipient-id table used
// by recipient resolution. Usernames are case-sensitive.
package mapping

import (
	"context"
	"sync"

	"pmbot/internal/store"
	"pmbot/pkg/logx"
)

const docName = "user_mappings"

type Service struct {
	store store.Store
	log   logx.Logger

	mu sync.Mutex
	m  map[string]string
}

func New(st store.Store, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{store: st, log: log, m: map[string]string{}}

	if st != nil {
		m := map[string]string{}
		if found, err := st.Load(context.Background(), docName, &m); err != nil {
			log.Warn("failed to load user mappings", logx.Err(err))
		} else if found {
			s.m = m
			log.Info("loaded user mappings", logx.Int("count", len(m)))
		}
	}
	return s
}

// Get returns the recipient id mapped to username.
func (s *Service) Get(username string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.m[username]
	return id, ok
}

// Add creates or replaces a mapping.
func (s *Service) Add(ctx context.Context, username, recipientID string) {
	s.mu.Lock()
	s.m[username] = recipientID
	s.mu.Unlock()
	s.persist(ctx)
	s.log.Info("mapping added", logx.String("username", username))
}

// Remove deletes a mapping; reports whether it existed.
func (s *Service) Remove(ctx context.Context, username string) bool {
	s.mu.Lock()
	_, ok := s.m[username]
	delete(s.m, username)
	s.mu.Unlock()
	if ok {
		s.persist(ctx)
		s.log.Info("mapping removed", logx.String("username", username))
	}
	return ok
}

// All returns a copy of the table.
func (s *Service) All() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make(map[string]string, len(s.m))
	for k, v := range s.m {
		cp[k] = v
	}
	return cp
}

// persist writes the whole table. Write failures keep the in-memory state:
// a durability gap is better than losing the mutation entirely.
func (s *Service) persist(ctx context.Context) {
	if s.store == nil {
		return
	}
	s.mu.Lock()
	cp := make(map[string]string, len(s.m))
	for k, v := range s.m {
		cp[k] = v
	}
	s.mu.Unlock()
	if err := s.store.Save(ctx, docName, cp); err != nil {
		s.log.Error("failed to persist user mappings", logx.Err(err))
	}
}
