// Package projects owns the locally managed project/task records and the
// enabled-project set the scheduled reports are filtered by.
package projects

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"pmbot/internal/store"
	"pmbot/pkg/logx"
)

const (
	docLocal   = "local_projects"
	docEnabled = "enabled_projects"
)

// Valid task statuses.
const (
	StatusTodo       = "todo"
	StatusInProgress = "in_progress"
	StatusDone       = "done"
)

type Task struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Status     string    `json:"status"`
	AssigneeID string    `json:"assignee_id,omitempty"`
	DueDate    string    `json:"due_date,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

type Project struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	Tasks       []Task    `json:"tasks"`
}

type Service struct {
	store store.Store
	log   logx.Logger

	mu       sync.Mutex
	projects []*Project
	enabled  map[string]bool
}

func New(st store.Store, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{store: st, log: log, enabled: map[string]bool{}}

	if st != nil {
		var local []*Project
		if found, err := st.Load(context.Background(), docLocal, &local); err != nil {
			log.Warn("failed to load local projects", logx.Err(err))
		} else if found {
			s.projects = local
		}

		var enabled []string
		if found, err := st.Load(context.Background(), docEnabled, &enabled); err != nil {
			log.Warn("failed to load enabled project set", logx.Err(err))
		} else if found {
			for _, id := range enabled {
				s.enabled[id] = true
			}
		}
	}
	return s
}

// ---- enabled-project set ----

// Enable marks a project id for scheduled reporting.
func (s *Service) Enable(ctx context.Context, projectID string) {
	s.mu.Lock()
	s.enabled[projectID] = true
	s.mu.Unlock()
	s.persistEnabled(ctx)
}

// Disable removes a project id from scheduled reporting; reports whether it
// was present.
func (s *Service) Disable(ctx context.Context, projectID string) bool {
	s.mu.Lock()
	_, ok := s.enabled[projectID]
	delete(s.enabled, projectID)
	s.mu.Unlock()
	if ok {
		s.persistEnabled(ctx)
	}
	return ok
}

// IsEnabled reports membership. An empty set means "nothing enabled":
// scheduled reports then cover every active project the hub returns.
func (s *Service) IsEnabled(projectID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled[projectID]
}

// EnabledCount returns the size of the set.
func (s *Service) EnabledCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.enabled)
}

// ---- local project/task records ----

// CreateProject records a new local project.
func (s *Service) CreateProject(ctx context.Context, name, description string) *Project {
	p := &Project{
		ID:          uuid.NewString(),
		Name:        name,
		Description: description,
		CreatedAt:   time.Now().UTC(),
	}
	s.mu.Lock()
	s.projects = append(s.projects, p)
	s.mu.Unlock()
	s.persistLocal(ctx)
	return p
}

// ProjectByName finds a local project case-insensitively.
func (s *Service) ProjectByName(name string) *Project {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.projects {
		if strings.EqualFold(p.Name, name) {
			return p
		}
	}
	return nil
}

// Projects returns a snapshot of all local projects.
func (s *Service) Projects() []*Project {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Project(nil), s.projects...)
}

// AddTask appends a task to a project; nil if the project is unknown.
func (s *Service) AddTask(ctx context.Context, projectID, title, assigneeID, dueDate string) *Task {
	s.mu.Lock()
	var added *Task
	for _, p := range s.projects {
		if p.ID == projectID {
			t := Task{
				ID:         uuid.NewString(),
				Title:      title,
				Status:     StatusTodo,
				AssigneeID: assigneeID,
				DueDate:    dueDate,
				CreatedAt:  time.Now().UTC(),
			}
			p.Tasks = append(p.Tasks, t)
			added = &p.Tasks[len(p.Tasks)-1]
			break
		}
	}
	s.mu.Unlock()
	if added != nil {
		s.persistLocal(ctx)
	}
	return added
}

// SetTaskStatus updates a task's status; false for unknown tasks or
// invalid statuses.
func (s *Service) SetTaskStatus(ctx context.Context, taskID, status string) bool {
	switch status {
	case StatusTodo, StatusInProgress, StatusDone:
	default:
		return false
	}
	s.mu.Lock()
	ok := false
	for _, p := range s.projects {
		for i := range p.Tasks {
			if p.Tasks[i].ID == taskID {
				p.Tasks[i].Status = status
				ok = true
			}
		}
	}
	s.mu.Unlock()
	if ok {
		s.persistLocal(ctx)
	}
	return ok
}

// AssignTask sets a task's assignee; false for unknown tasks.
func (s *Service) AssignTask(ctx context.Context, taskID, assigneeID string) bool {
	s.mu.Lock()
	ok := false
	for _, p := range s.projects {
		for i := range p.Tasks {
			if p.Tasks[i].ID == taskID {
				p.Tasks[i].AssigneeID = assigneeID
				ok = true
			}
		}
	}
	s.mu.Unlock()
	if ok {
		s.persistLocal(ctx)
	}
	return ok
}

func (s *Service) persistEnabled(ctx context.Context) {
	if s.store == nil {
		return
	}
	s.mu.Lock()
	ids := make([]string, 0, len(s.enabled))
	for id := range s.enabled {
		ids = append(ids, id)
	}
	s.mu.Unlock()
	if err := s.store.Save(ctx, docEnabled, ids); err != nil {
		s.log.Error("failed to persist enabled project set", logx.Err(err))
	}
}

func (s *Service) persistLocal(ctx context.Context) {
	if s.store == nil {
		return
	}
	s.mu.Lock()
	cp := make([]*Project, len(s.projects))
	for i, p := range s.projects {
		pc := *p
		pc.Tasks = append([]Task(nil), p.Tasks...)
		cp[i] = &pc
	}
	s.mu.Unlock()
	if err := s.store.Save(ctx, docLocal, cp); err != nil {
		s.log.Error("failed to persist local projects", logx.Err(err))
	}
}
