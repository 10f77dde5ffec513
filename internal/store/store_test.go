package store

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/liamgwallace/claude-web/internal/errors"
)

func newTestStores(t *testing.T) (*ProjectStore, *ThreadStore) {
	t.Helper()
	ps, err := NewProjectStore(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)
	return ps, NewThreadStore(ps, zerolog.Nop())
}

// steppingClock returns a clock that advances one second per call.
func steppingClock(start time.Time) func() time.Time {
	var mu sync.Mutex
	current := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		current = current.Add(time.Second)
		return current
	}
}

type fakeSeeder struct {
	calls []string
	err   error
}

func (f *fakeSeeder) Seed(dir, projectName string, _ time.Time) error {
	f.calls = append(f.calls, projectName)
	if f.err != nil {
		return f.err
	}
	return os.WriteFile(filepath.Join(dir, "README.md"), []byte("# "+projectName), 0o644)
}

func TestSanitizeName(t *testing.T) {
	cases := map[string]string{
		"My Project!":       "My-Project",
		"  spaced out  ":    "spaced-out",
		"a/b\\c..d":         "abcd",
		"under_score-dash":  "under_score-dash",
		"café über":         "café-über",
		"!!!":               "",
		"two  spaces":       "two--spaces",
		"../../etc/passwd":  "etcpasswd",
	}
	for in, want := range cases {
		assert.Equal(t, want, SanitizeName(in), "input %q", in)
	}
}

func TestProjectStore_CreateAndList(t *testing.T) {
	ps, ts := newTestStores(t)

	name, err := ps.Create("My Project!")
	require.NoError(t, err)
	assert.Equal(t, "My-Project", name)
	assert.DirExists(t, filepath.Join(ps.Root(), "My-Project", ThreadsDirName))

	projects, err := ps.List()
	require.NoError(t, err)
	require.Len(t, projects, 1)
	assert.Equal(t, "My Project!", projects[0].Name)
	assert.Equal(t, "My-Project", projects[0].SanitizedName)
	assert.Equal(t, 0, projects[0].ThreadCount)
	assert.NotEmpty(t, projects[0].Created)

	_, err = ts.Create(name, "")
	require.NoError(t, err)
	projects, err = ps.List()
	require.NoError(t, err)
	assert.Equal(t, 1, projects[0].ThreadCount)
}

func TestProjectStore_CreateCollision(t *testing.T) {
	ps, _ := newTestStores(t)

	first, err := ps.Create("foo")
	require.NoError(t, err)
	second, err := ps.Create("foo")
	require.NoError(t, err)
	third, err := ps.Create("foo!")
	require.NoError(t, err)

	assert.Equal(t, "foo", first)
	assert.Equal(t, "foo-1", second)
	assert.Equal(t, "foo-2", third)
}

func TestProjectStore_CreateConcurrentUnique(t *testing.T) {
	ps, _ := newTestStores(t)

	const n = 10
	names := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name, err := ps.Create("same")
			assert.NoError(t, err)
			names[i] = name
		}(i)
	}
	wg.Wait()

	seen := map[string]bool{}
	for _, name := range names {
		assert.False(t, seen[name], "duplicate name %s", name)
		seen[name] = true
	}
}

func TestProjectStore_CreateEmptyAfterSanitize(t *testing.T) {
	ps, _ := newTestStores(t)

	name, err := ps.Create("!!!")
	require.NoError(t, err)
	assert.Regexp(t, `^project-[0-9a-f]{8}$`, name)
}

func TestProjectStore_CreateRequiresName(t *testing.T) {
	ps, _ := newTestStores(t)

	_, err := ps.Create("")
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestProjectStore_CreateWhitespaceName(t *testing.T) {
	ps, _ := newTestStores(t)

	name, err := ps.Create("   ")
	require.NoError(t, err)
	assert.Regexp(t, `^project-[0-9a-f]{8}$`, name)

	list, err := ps.List()
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "   ", list[0].Name)
	assert.Equal(t, name, list[0].SanitizedName)
}

func TestProjectStore_CreateKeepsRawDisplayName(t *testing.T) {
	ps, _ := newTestStores(t)

	name, err := ps.Create("  My App! ")
	require.NoError(t, err)
	assert.Equal(t, "My-App", name)

	list, err := ps.List()
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "  My App! ", list[0].Name)
}

func TestProjectStore_Seeder(t *testing.T) {
	ps, _ := newTestStores(t)
	seeder := &fakeSeeder{}
	ps.SetSeeder(seeder)

	name, err := ps.Create("Seeded")
	require.NoError(t, err)
	assert.Equal(t, []string{"Seeded"}, seeder.calls)
	assert.FileExists(t, filepath.Join(ps.Dir(name), "README.md"))
}

func TestProjectStore_SeederFailureIsNotFatal(t *testing.T) {
	ps, _ := newTestStores(t)
	ps.SetSeeder(&fakeSeeder{err: os.ErrPermission})

	name, err := ps.Create("Still works")
	require.NoError(t, err)
	assert.True(t, ps.Exists(name))
}

func TestProjectStore_ListOrderingAndLegacy(t *testing.T) {
	ps, _ := newTestStores(t)
	ps.now = steppingClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))

	_, err := ps.Create("older")
	require.NoError(t, err)
	_, err = ps.Create("newer")
	require.NoError(t, err)

	// A directory created by hand has no metadata.
	require.NoError(t, os.Mkdir(filepath.Join(ps.Root(), "handmade"), 0o755))

	// Corrupt metadata is still listed with defaults.
	require.NoError(t, os.MkdirAll(filepath.Join(ps.Root(), "broken", ThreadsDirName), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(ps.Root(), "broken", ThreadsDirName, IndexFileName), []byte("{nope"), 0o644))

	// Hidden directories and plain files are ignored.
	require.NoError(t, os.Mkdir(filepath.Join(ps.Root(), ".cache"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(ps.Root(), "notes.txt"), []byte("x"), 0o644))

	projects, err := ps.List()
	require.NoError(t, err)
	require.Len(t, projects, 4)

	assert.Equal(t, "newer", projects[0].SanitizedName)
	assert.Equal(t, "older", projects[1].SanitizedName)
	assert.Equal(t, ProjectSummary{Name: "broken", SanitizedName: "broken"}, projects[2])
	assert.Equal(t, ProjectSummary{Name: "handmade", SanitizedName: "handmade"}, projects[3])
}

func TestProjectStore_Delete(t *testing.T) {
	ps, ts := newTestStores(t)

	name, err := ps.Create("doomed")
	require.NoError(t, err)
	threadID, err := ts.Create(name, "t")
	require.NoError(t, err)

	require.NoError(t, ps.Delete(name))
	assert.NoDirExists(t, ps.Dir(name))
	assert.Equal(t, StatusProjectNotFound, ts.Status(name, threadID).Status)

	assert.ErrorIs(t, ps.Delete(name), apperrors.ErrNotFound)
	assert.ErrorIs(t, ps.Delete(".."), apperrors.ErrNotFound)
	assert.ErrorIs(t, ps.Delete("a/b"), apperrors.ErrNotFound)
}

func TestThreadStore_CreateFresh(t *testing.T) {
	ps, ts := newTestStores(t)
	project, err := ps.Create("p")
	require.NoError(t, err)

	threadID, err := ts.Create(project, "")
	require.NoError(t, err)
	assert.Regexp(t, `^[0-9a-f]{8}$`, threadID)

	threads, err := ts.List(project)
	require.NoError(t, err)
	require.Len(t, threads, 1)
	assert.Equal(t, threadID, threads[0].ID)
	assert.Equal(t, "Thread "+threadID, threads[0].Name)
	assert.Equal(t, 0, threads[0].MessageCount)
	assert.Nil(t, threads[0].SessionID)

	// session_id is written as JSON null.
	raw, err := os.ReadFile(ts.threadPath(project, threadID))
	require.NoError(t, err)
	var fields map[string]any
	require.NoError(t, json.Unmarshal(raw, &fields))
	assert.Contains(t, fields, "session_id")
	assert.Nil(t, fields["session_id"])
	assert.Equal(t, []any{}, fields["messages"])
}

func TestThreadStore_CreateMissingProject(t *testing.T) {
	_, ts := newTestStores(t)

	_, err := ts.Create("ghost", "x")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.Equal(t, "Project ghost not found", err.Error())
}

func TestThreadStore_CreateRebuildsMissingIndex(t *testing.T) {
	ps, ts := newTestStores(t)
	require.NoError(t, os.MkdirAll(filepath.Join(ps.Root(), "legacy"), 0o755))

	threadID, err := ts.Create("legacy", "first")
	require.NoError(t, err)

	var index ProjectIndex
	require.NoError(t, readJSON(ps.indexPath("legacy"), &index))
	assert.Equal(t, "legacy", index.SanitizedName)
	assert.Equal(t, "first", index.Threads[threadID].Name)
}

func TestThreadStore_ListSkipsCorruptAndSorts(t *testing.T) {
	ps, ts := newTestStores(t)
	ps.now = steppingClock(time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC))
	project, err := ps.Create("p")
	require.NoError(t, err)

	a, err := ts.Create(project, "a")
	require.NoError(t, err)
	b, err := ts.Create(project, "b")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(ps.threadsDir(project), "bad.json"), []byte("not json"), 0o644))

	threads, err := ts.List(project)
	require.NoError(t, err)
	require.Len(t, threads, 2)
	assert.Equal(t, b, threads[0].ID)
	assert.Equal(t, a, threads[1].ID)

	missing, err := ts.List("ghost")
	require.NoError(t, err)
	assert.Empty(t, missing)
	assert.NotNil(t, missing)
}

func TestThreadStore_AppendExchange(t *testing.T) {
	ps, ts := newTestStores(t)
	project, err := ps.Create("p")
	require.NoError(t, err)
	threadID, err := ts.Create(project, "")
	require.NoError(t, err)

	thread, err := ts.AppendExchange(project, threadID, "hi", "hello", "S1")
	require.NoError(t, err)
	require.Len(t, thread.Messages, 2)
	assert.Equal(t, RoleUser, thread.Messages[0].Role)
	assert.Equal(t, "hi", thread.Messages[0].Content)
	assert.Equal(t, RoleAssistant, thread.Messages[1].Role)
	assert.Equal(t, "hello", thread.Messages[1].Content)
	assert.Equal(t, thread.Messages[0].Timestamp, thread.Messages[1].Timestamp)
	assert.Equal(t, thread.Messages[0].Timestamp, thread.LastActivity)
	assert.Equal(t, 1, thread.MessageCount)
	assert.Equal(t, "S1", thread.Session())

	// An empty session id keeps the stored one.
	thread, err = ts.AppendExchange(project, threadID, "again", "sure", "")
	require.NoError(t, err)
	assert.Equal(t, "S1", thread.Session())
	assert.Equal(t, 2, thread.MessageCount)

	thread, err = ts.AppendExchange(project, threadID, "third", "ok", "S2")
	require.NoError(t, err)
	assert.Equal(t, "S2", thread.Session())

	reloaded, err := ts.Get(project, threadID)
	require.NoError(t, err)
	assert.Len(t, reloaded.Messages, 6)
	assert.Equal(t, "S2", reloaded.Session())

	// No temp files are left behind.
	entries, err := os.ReadDir(ps.threadsDir(project))
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestThreadStore_MessagesLegacyShim(t *testing.T) {
	ps, ts := newTestStores(t)
	project, err := ps.Create("p")
	require.NoError(t, err)

	session := "legacy-session"
	legacy := Thread{ID: "abc12345", Name: "old", Created: "2023-06-01T10:00:00.000000", SessionID: &session, MessageCount: 5}
	require.NoError(t, writeJSONAtomic(ts.threadPath(project, legacy.ID), legacy))

	messages, err := ts.Messages(project, legacy.ID)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, RoleSystem, messages[0].Role)
	assert.Equal(t, "Thread has 5 messages but history not stored in this format. Future messages will be saved.", messages[0].Content)
	assert.Equal(t, "2023-06-01T10:00:00.000000", messages[0].Timestamp)
}

func TestThreadStore_MessagesEmpty(t *testing.T) {
	ps, ts := newTestStores(t)
	project, err := ps.Create("p")
	require.NoError(t, err)
	threadID, err := ts.Create(project, "")
	require.NoError(t, err)

	messages, err := ts.Messages(project, threadID)
	require.NoError(t, err)
	assert.Empty(t, messages)

	_, err = ts.Messages(project, "missing1")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	_, err = ts.Messages(project, "../../x")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestThreadStore_GetCorrupt(t *testing.T) {
	ps, ts := newTestStores(t)
	project, err := ps.Create("p")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(ts.threadPath(project, "deadbeef"), []byte("{"), 0o644))

	_, err = ts.Get(project, "deadbeef")
	assert.ErrorIs(t, err, apperrors.ErrCorrupt)

	rec := ts.Status(project, "deadbeef")
	assert.Equal(t, StatusError, rec.Status)
	assert.Equal(t, "Invalid thread metadata", rec.Error)
}

func TestThreadStore_Status(t *testing.T) {
	ps, ts := newTestStores(t)
	project, err := ps.Create("p")
	require.NoError(t, err)
	threadID, err := ts.Create(project, "named")
	require.NoError(t, err)

	rec := ts.Status(project, threadID)
	assert.Equal(t, StatusReady, rec.Status)
	assert.Equal(t, "named", rec.Name)
	assert.Equal(t, "No session started", rec.SessionID)
	assert.Equal(t, "Never", rec.LastActivity)
	require.NotNil(t, rec.MessageCount)
	assert.Equal(t, 0, *rec.MessageCount)

	_, err = ts.AppendExchange(project, threadID, "q", "a", "S9")
	require.NoError(t, err)
	rec = ts.Status(project, threadID)
	assert.Equal(t, "S9", rec.SessionID)
	assert.NotEqual(t, "Never", rec.LastActivity)

	assert.Equal(t, StatusThreadNotFound, ts.Status(project, "nope1234").Status)
	assert.Equal(t, StatusProjectNotFound, ts.Status("ghost", threadID).Status)
}

func TestThreadStore_Delete(t *testing.T) {
	ps, ts := newTestStores(t)
	project, err := ps.Create("p")
	require.NoError(t, err)
	threadID, err := ts.Create(project, "")
	require.NoError(t, err)

	require.NoError(t, ts.Delete(project, threadID))
	assert.NoFileExists(t, ts.threadPath(project, threadID))

	var index ProjectIndex
	require.NoError(t, readJSON(ps.indexPath(project), &index))
	assert.NotContains(t, index.Threads, threadID)

	assert.ErrorIs(t, ts.Delete(project, threadID), apperrors.ErrNotFound)
	assert.ErrorIs(t, ts.Delete("ghost", threadID), apperrors.ErrNotFound)
}

func TestThreadStore_ConcurrentCreateKeepsIndex(t *testing.T) {
	ps, ts := newTestStores(t)
	project, err := ps.Create("busy")
	require.NoError(t, err)

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := ts.Create(project, "")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	var index ProjectIndex
	require.NoError(t, readJSON(ps.indexPath(project), &index))
	assert.Len(t, index.Threads, n)
}
