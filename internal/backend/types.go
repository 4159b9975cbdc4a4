package backend

import "encoding/json"

// Project as reported by the project hub. The hub's store exposes ids as
// either "_id" or "id" depending on the collection; ID() papers over it.
type Project struct {
	RawID    string `json:"_id,omitempty"`
	AltID    string `json:"id,omitempty"`
	Name     string `json:"name"`
	Status   string `json:"status,omitempty"`
	TeamCode string `json:"teamCode,omitempty"`
}

func (p Project) ID() string {
	if p.RawID != "" {
		return p.RawID
	}
	return p.AltID
}

type Assignee struct {
	Name   string `json:"name,omitempty"`
	ChatID string `json:"chatId,omitempty"`
	Email  string `json:"email,omitempty"`
}

type Task struct {
	ID          string   `json:"id,omitempty"`
	Title       string   `json:"title"`
	Status      string   `json:"status,omitempty"`
	Priority    string   `json:"priority,omitempty"`
	ProjectID   string   `json:"projectId,omitempty"`
	ProjectName string   `json:"projectName,omitempty"`
	DueDate     string   `json:"dueDate,omitempty"`
	Assignee    Assignee `json:"assignee,omitempty"`
}

type UserStat struct {
	UserName  string `json:"userName"`
	Completed int    `json:"completed"`
}

type Commit struct {
	SHA     string `json:"sha,omitempty"`
	Message string `json:"message"`
	Author  string `json:"author,omitempty"`
}

// list tolerates both a bare JSON array and an object wrapping the array
// under a named field, which the hub emits inconsistently across endpoints.
func list[T any](raw json.RawMessage, wrapper string) []T {
	var direct []T
	if err := json.Unmarshal(raw, &direct); err == nil {
		return direct
	}
	var wrapped map[string]json.RawMessage
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil
	}
	inner, ok := wrapped[wrapper]
	if !ok {
		return nil
	}
	if err := json.Unmarshal(inner, &direct); err != nil {
		return nil
	}
	return direct
}
