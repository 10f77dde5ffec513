// Package store persists projects and threads as plain directories and JSON
// files under a data root. The layout is shared with external tools, so file
// and field names are part of the contract.
package store

import "time"

const (
	// ThreadsDirName is the hidden per-project directory holding thread metadata.
	ThreadsDirName = ".threads"
	// IndexFileName is the project metadata + thread index inside ThreadsDirName.
	IndexFileName = "threads.json"

	// TimeLayout is the fixed-width UTC layout used for every stored timestamp,
	// so string order matches chronological order.
	TimeLayout = "2006-01-02T15:04:05.000000Z07:00"
)

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Thread status values reported by ThreadStore.Status.
const (
	StatusReady           = "ready"
	StatusProjectNotFound = "project_not_found"
	StatusThreadNotFound  = "thread_not_found"
	StatusError           = "error"
)

// ProjectIndex is the content of .threads/threads.json.
type ProjectIndex struct {
	Name          string               `json:"name"`
	SanitizedName string               `json:"sanitized_name"`
	Created       string               `json:"created"`
	Threads       map[string]ThreadRef `json:"threads"`
}

// ThreadRef is a thread entry in the project index.
type ThreadRef struct {
	Name    string `json:"name"`
	Created string `json:"created"`
}

// ProjectSummary is one entry of a project listing.
type ProjectSummary struct {
	Name          string `json:"name"`
	SanitizedName string `json:"sanitized_name"`
	Created       string `json:"created"`
	ThreadCount   int    `json:"thread_count"`
}

// Message is one entry of a thread's conversation history.
type Message struct {
	Role      Role   `json:"role"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

// Thread is the content of .threads/<id>.json.
type Thread struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Created      string    `json:"created"`
	SessionID    *string   `json:"session_id"`
	MessageCount int       `json:"message_count"`
	LastActivity string    `json:"last_activity,omitempty"`
	Messages     []Message `json:"messages"`
}

// Session returns the stored collaborator session id, or "" if none.
func (t *Thread) Session() string {
	if t.SessionID == nil {
		return ""
	}
	return *t.SessionID
}

// Summary converts the thread into its listing form.
func (t *Thread) Summary() ThreadSummary {
	return ThreadSummary{
		ID:           t.ID,
		Name:         t.Name,
		Created:      t.Created,
		MessageCount: t.MessageCount,
		SessionID:    t.SessionID,
		LastActivity: t.LastActivity,
	}
}

// ThreadSummary is one entry of a thread listing.
type ThreadSummary struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Created      string  `json:"created"`
	MessageCount int     `json:"message_count"`
	SessionID    *string `json:"session_id"`
	LastActivity string  `json:"last_activity,omitempty"`
}

// StatusRecord describes a thread's state without its message history.
// The thread detail fields are only set when Status is StatusReady.
type StatusRecord struct {
	Status       string `json:"status"`
	Error        string `json:"error,omitempty"`
	ProjectName  string `json:"project_name"`
	ThreadID     string `json:"thread_id"`
	Name         string `json:"name,omitempty"`
	Created      string `json:"created,omitempty"`
	SessionID    string `json:"session_id,omitempty"`
	MessageCount *int   `json:"message_count,omitempty"`
	LastActivity string `json:"last_activity,omitempty"`
}

// FormatTime renders t in TimeLayout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}
