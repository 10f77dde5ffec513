package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	apperrors "github.com/liamgwallace/claude-web/internal/errors"
)

var threadIDRe = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// maxIDAttempts bounds thread id generation when ids collide.
const maxIDAttempts = 16

// ThreadStore manages thread metadata files inside project directories.
type ThreadStore struct {
	projects *ProjectStore
	logger   zerolog.Logger
}

// NewThreadStore creates a thread store over the given projects.
func NewThreadStore(projects *ProjectStore, logger zerolog.Logger) *ThreadStore {
	return &ThreadStore{
		projects: projects,
		logger:   logger.With().Str("component", "thread_store").Logger(),
	}
}

// Projects returns the underlying project store.
func (s *ThreadStore) Projects() *ProjectStore {
	return s.projects
}

func (s *ThreadStore) threadPath(project, threadID string) string {
	return filepath.Join(s.projects.threadsDir(project), threadID+".json")
}

// Create adds a thread to a project and returns its id. An empty name
// defaults to "Thread <id>".
func (s *ThreadStore) Create(project, name string) (string, error) {
	if !s.projects.Exists(project) {
		return "", apperrors.NotFoundf("Project %s not found", project)
	}

	unlock := s.projects.locks.Lock(project)
	defer unlock()

	dir := s.projects.threadsDir(project)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create threads dir: %w", err)
	}

	threadID, err := s.newThreadID(project)
	if err != nil {
		return "", err
	}

	name = strings.TrimSpace(name)
	if name == "" {
		name = "Thread " + threadID
	}

	created := FormatTime(s.projects.now())
	thread := Thread{
		ID:       threadID,
		Name:     name,
		Created:  created,
		Messages: []Message{},
	}
	if err := writeJSONAtomic(s.threadPath(project, threadID), thread); err != nil {
		return "", fmt.Errorf("write thread metadata: %w", err)
	}

	index := s.loadIndex(project)
	index.Threads[threadID] = ThreadRef{Name: name, Created: created}
	if err := writeJSONAtomic(s.projects.indexPath(project), index); err != nil {
		return "", fmt.Errorf("write project metadata: %w", err)
	}

	s.logger.Info().Str("project", project).Str("thread_id", threadID).Msg("thread created")
	return threadID, nil
}

func (s *ThreadStore) newThreadID(project string) (string, error) {
	for i := 0; i < maxIDAttempts; i++ {
		id := uuid.New().String()[:8]
		if _, err := os.Stat(s.threadPath(project, id)); errors.Is(err, os.ErrNotExist) {
			return id, nil
		}
	}
	return "", fmt.Errorf("could not allocate a unique thread id in project %s", project)
}

// loadIndex reads the project index, falling back to a fresh one when it is
// missing or unreadable. Callers hold the project lock.
func (s *ThreadStore) loadIndex(project string) ProjectIndex {
	var index ProjectIndex
	err := readJSON(s.projects.indexPath(project), &index)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn().Err(err).Str("project", project).Msg("rebuilding unreadable project metadata")
		}
		index = ProjectIndex{
			Name:          project,
			SanitizedName: project,
			Created:       FormatTime(s.projects.now()),
		}
	}
	if index.Threads == nil {
		index.Threads = map[string]ThreadRef{}
	}
	return index
}

// List returns the threads of a project, newest first. A missing project
// yields an empty list.
func (s *ThreadStore) List(project string) ([]ThreadSummary, error) {
	threads := []ThreadSummary{}
	if !s.projects.Exists(project) {
		return threads, nil
	}

	entries, err := os.ReadDir(s.projects.threadsDir(project))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return threads, nil
		}
		return nil, fmt.Errorf("read threads dir: %w", err)
	}

	for _, entry := range entries {
		fileName := entry.Name()
		if entry.IsDir() || fileName == IndexFileName || filepath.Ext(fileName) != ".json" {
			continue
		}
		var thread Thread
		if err := readJSON(filepath.Join(s.projects.threadsDir(project), fileName), &thread); err != nil {
			s.logger.Warn().Err(err).Str("project", project).Str("file", fileName).Msg("invalid thread file")
			continue
		}
		stem := strings.TrimSuffix(fileName, ".json")
		if thread.ID == "" {
			thread.ID = stem
		}
		if thread.Name == "" {
			thread.Name = stem
		}
		threads = append(threads, thread.Summary())
	}

	sort.SliceStable(threads, func(i, j int) bool {
		if threads[i].Created != threads[j].Created {
			return threads[i].Created > threads[j].Created
		}
		return threads[i].ID < threads[j].ID
	})
	return threads, nil
}

// Get loads a thread. Errors wrap ErrNotFound or ErrCorrupt.
func (s *ThreadStore) Get(project, threadID string) (*Thread, error) {
	if !s.projects.Exists(project) {
		return nil, apperrors.NotFoundf("Project %s not found", project)
	}
	if !threadIDRe.MatchString(threadID) {
		return nil, apperrors.NotFoundf("Thread %s not found in project %s", threadID, project)
	}

	var thread Thread
	if err := readJSON(s.threadPath(project, threadID), &thread); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperrors.NotFoundf("Thread %s not found in project %s", threadID, project)
		}
		var ce *corruptError
		if errors.As(err, &ce) {
			return nil, apperrors.Newf(apperrors.ErrCorrupt, "Invalid thread metadata for %s", threadID)
		}
		return nil, fmt.Errorf("read thread %s: %w", threadID, err)
	}
	if thread.ID == "" {
		thread.ID = threadID
	}
	if thread.Messages == nil {
		thread.Messages = []Message{}
	}
	return &thread, nil
}

// AppendExchange records one user message and the assistant reply under a
// single timestamp. The stored session id is replaced only when sessionID is
// non-empty.
func (s *ThreadStore) AppendExchange(project, threadID, userMsg, assistantMsg, sessionID string) (*Thread, error) {
	unlock := s.projects.locks.Lock(project)
	defer unlock()

	thread, err := s.Get(project, threadID)
	if err != nil {
		return nil, err
	}

	ts := FormatTime(s.projects.now())
	thread.Messages = append(thread.Messages,
		Message{Role: RoleUser, Content: userMsg, Timestamp: ts},
		Message{Role: RoleAssistant, Content: assistantMsg, Timestamp: ts},
	)
	thread.MessageCount++
	thread.LastActivity = ts
	if sessionID != "" {
		thread.SessionID = &sessionID
	}

	if err := writeJSONAtomic(s.threadPath(project, threadID), thread); err != nil {
		return nil, fmt.Errorf("write thread metadata: %w", err)
	}
	return thread, nil
}

// Messages returns a thread's history. Threads that carry a session but no
// stored history yield a single system message explaining the gap.
func (s *ThreadStore) Messages(project, threadID string) ([]Message, error) {
	thread, err := s.Get(project, threadID)
	if err != nil {
		return nil, err
	}
	if len(thread.Messages) == 0 && thread.Session() != "" {
		return []Message{{
			Role: RoleSystem,
			Content: fmt.Sprintf("Thread has %d messages but history not stored in this format. Future messages will be saved.",
				thread.MessageCount),
			Timestamp: thread.Created,
		}}, nil
	}
	return thread.Messages, nil
}

// Delete removes a thread file and its index entry.
func (s *ThreadStore) Delete(project, threadID string) error {
	if !s.projects.Exists(project) {
		return apperrors.NotFoundf("Project %s not found", project)
	}
	if !threadIDRe.MatchString(threadID) {
		return apperrors.NotFoundf("Thread %s not found in project %s", threadID, project)
	}

	unlock := s.projects.locks.Lock(project)
	defer unlock()

	if err := os.Remove(s.threadPath(project, threadID)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return apperrors.NotFoundf("Thread %s not found in project %s", threadID, project)
		}
		return fmt.Errorf("delete thread %s: %w", threadID, err)
	}

	var index ProjectIndex
	switch err := readJSON(s.projects.indexPath(project), &index); {
	case err == nil:
		if _, ok := index.Threads[threadID]; ok {
			delete(index.Threads, threadID)
			if err := writeJSONAtomic(s.projects.indexPath(project), index); err != nil {
				s.logger.Warn().Err(err).Str("thread_id", threadID).Msg("could not update project metadata")
			}
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		s.logger.Warn().Err(err).Str("thread_id", threadID).Msg("could not update project metadata")
	}

	s.logger.Info().Str("project", project).Str("thread_id", threadID).Msg("thread deleted")
	return nil
}

// Status reports a thread's state without loading it into the caller.
func (s *ThreadStore) Status(project, threadID string) StatusRecord {
	rec := StatusRecord{ProjectName: project, ThreadID: threadID}

	thread, err := s.Get(project, threadID)
	switch {
	case err == nil:
	case !s.projects.Exists(project):
		rec.Status = StatusProjectNotFound
		return rec
	case apperrors.IsNotFound(err):
		rec.Status = StatusThreadNotFound
		return rec
	default:
		rec.Status = StatusError
		rec.Error = "Invalid thread metadata"
		return rec
	}

	count := thread.MessageCount
	rec.Status = StatusReady
	rec.Name = thread.Name
	if rec.Name == "" {
		rec.Name = threadID
	}
	rec.Created = thread.Created
	rec.SessionID = thread.Session()
	if rec.SessionID == "" {
		rec.SessionID = "No session started"
	}
	rec.MessageCount = &count
	rec.LastActivity = thread.LastActivity
	if rec.LastActivity == "" {
		rec.LastActivity = "Never"
	}
	return rec
}
