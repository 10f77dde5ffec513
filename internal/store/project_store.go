package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	apperrors "github.com/liamgwallace/claude-web/internal/errors"
)

// Seeder populates a freshly created project directory.
type Seeder interface {
	Seed(dir, projectName string, created time.Time) error
}

// ProjectStore manages project directories under a root.
type ProjectStore struct {
	root   string
	seeder Seeder
	locks  *keyedMutex
	now    func() time.Time
	logger zerolog.Logger
}

// NewProjectStore creates a project store rooted at root, creating it if needed.
func NewProjectStore(root string, logger zerolog.Logger) (*ProjectStore, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve data dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &ProjectStore{
		root:   abs,
		locks:  &keyedMutex{},
		now:    time.Now,
		logger: logger.With().Str("component", "project_store").Logger(),
	}, nil
}

// SetSeeder sets the optional seeder applied to new projects.
func (s *ProjectStore) SetSeeder(seeder Seeder) {
	s.seeder = seeder
}

// Root returns the absolute data root.
func (s *ProjectStore) Root() string {
	return s.root
}

// Dir returns the directory of the named project. It does not check existence.
func (s *ProjectStore) Dir(name string) string {
	return filepath.Join(s.root, name)
}

// Exists returns true if name addresses an existing project directory.
func (s *ProjectStore) Exists(name string) bool {
	if !validName(name) {
		return false
	}
	info, err := os.Stat(s.Dir(name))
	return err == nil && info.IsDir()
}

// SanitizeName reduces a display name to a directory-safe name: letters,
// digits, spaces, '-' and '_' are kept, the result is trimmed and spaces
// become '-'. It returns "" when nothing survives.
func SanitizeName(name string) string {
	var b strings.Builder
	for _, r := range name {
		if unicode.IsLetter(r) || unicode.IsNumber(r) || r == ' ' || r == '-' || r == '_' {
			b.WriteRune(r)
		}
	}
	return strings.ReplaceAll(strings.TrimSpace(b.String()), " ", "-")
}

// Create makes a new project and returns its sanitized name. The display
// name is stored as given; a name with nothing left after sanitizing gets a
// generated directory name.
func (s *ProjectStore) Create(name string) (string, error) {
	if name == "" {
		return "", apperrors.InvalidInputf("Project name is required")
	}

	base := SanitizeName(name)
	if base == "" {
		base = "project-" + uuid.New().String()[:8]
	}

	sanitized, err := s.reserveDir(base)
	if err != nil {
		return "", err
	}
	dir := s.Dir(sanitized)

	if err := os.MkdirAll(filepath.Join(dir, ThreadsDirName), 0o755); err != nil {
		return "", fmt.Errorf("create threads dir: %w", err)
	}

	now := s.now()
	if s.seeder != nil {
		if err := s.seeder.Seed(dir, name, now); err != nil {
			s.logger.Warn().Err(err).Str("project", sanitized).Msg("project template seeding failed")
		}
	}

	index := ProjectIndex{
		Name:          name,
		SanitizedName: sanitized,
		Created:       FormatTime(now),
		Threads:       map[string]ThreadRef{},
	}
	if err := writeJSONAtomic(s.indexPath(sanitized), index); err != nil {
		return "", fmt.Errorf("write project metadata: %w", err)
	}

	s.logger.Info().Str("project", sanitized).Str("dir", dir).Msg("project created")
	return sanitized, nil
}

// reserveDir creates the first free directory among base, base-1, base-2, ...
// os.Mkdir fails on an existing entry, so two concurrent creations never
// claim the same name.
func (s *ProjectStore) reserveDir(base string) (string, error) {
	candidate := base
	for counter := 1; ; counter++ {
		err := os.Mkdir(s.Dir(candidate), 0o755)
		if err == nil {
			return candidate, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return "", fmt.Errorf("create project dir: %w", err)
		}
		candidate = fmt.Sprintf("%s-%d", base, counter)
	}
}

// List returns every project under the root, newest first. Projects without
// readable metadata are reported with the directory name and no threads.
func (s *ProjectStore) List() ([]ProjectSummary, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []ProjectSummary{}, nil
		}
		return nil, fmt.Errorf("read data dir: %w", err)
	}

	projects := make([]ProjectSummary, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		projects = append(projects, s.summarize(entry.Name()))
	}

	sort.SliceStable(projects, func(i, j int) bool {
		if projects[i].Created != projects[j].Created {
			return projects[i].Created > projects[j].Created
		}
		return projects[i].SanitizedName < projects[j].SanitizedName
	})
	return projects, nil
}

func (s *ProjectStore) summarize(dirName string) ProjectSummary {
	summary := ProjectSummary{Name: dirName, SanitizedName: dirName}

	var index ProjectIndex
	err := readJSON(s.indexPath(dirName), &index)
	switch {
	case err == nil:
	case errors.Is(err, os.ErrNotExist):
		return summary
	default:
		s.logger.Warn().Err(err).Str("project", dirName).Msg("invalid project metadata")
		return summary
	}

	if index.Name != "" {
		summary.Name = index.Name
	}
	summary.Created = index.Created
	summary.ThreadCount = len(index.Threads)
	return summary
}

// Delete removes a project directory and everything in it.
func (s *ProjectStore) Delete(name string) error {
	if !s.Exists(name) {
		return apperrors.NotFoundf("Project %s not found", name)
	}

	unlock := s.locks.Lock(name)
	defer unlock()

	if err := os.RemoveAll(s.Dir(name)); err != nil {
		return fmt.Errorf("delete project %s: %w", name, err)
	}
	s.logger.Info().Str("project", name).Msg("project deleted")
	return nil
}

func (s *ProjectStore) threadsDir(project string) string {
	return filepath.Join(s.Dir(project), ThreadsDirName)
}

func (s *ProjectStore) indexPath(project string) string {
	return filepath.Join(s.threadsDir(project), IndexFileName)
}
