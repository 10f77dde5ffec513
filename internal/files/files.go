// Package files exposes a project's directory tree and lets callers read and
// write files inside it without escaping the project directory.
package files

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"

	apperrors "github.com/liamgwallace/claude-web/internal/errors"
)

// Node types.
const (
	TypeDirectory = "directory"
	TypeFile      = "file"
)

// reservedDir holds thread metadata and is never exposed through this service.
const reservedDir = ".threads"

// Projects resolves project names to directories.
type Projects interface {
	Exists(name string) bool
	Dir(name string) string
}

// Node is one entry of a file tree.
type Node struct {
	Name     string  `json:"name"`
	Type     string  `json:"type"`
	Children []*Node `json:"children"`
}

// File is the content of a file read from a project.
type File struct {
	Path     string `json:"path"`
	Content  string `json:"content"`
	Language string `json:"language"`
	Size     int64  `json:"size"`
}

// Service reads and writes project files.
type Service struct {
	projects Projects
	logger   zerolog.Logger
}

// NewService creates a file service over the given projects.
func NewService(projects Projects, logger zerolog.Logger) *Service {
	return &Service{
		projects: projects,
		logger:   logger.With().Str("component", "files").Logger(),
	}
}

// Tree returns the project's directory tree. Entries whose name starts with
// a dot are omitted at every level.
func (s *Service) Tree(project string) (*Node, error) {
	if !s.projects.Exists(project) {
		return nil, apperrors.NotFoundf("Project %s not found", project)
	}
	return s.buildTree(s.projects.Dir(project), true), nil
}

func (s *Service) buildTree(path string, isDir bool) *Node {
	node := &Node{Name: filepath.Base(path), Type: TypeFile, Children: []*Node{}}
	if !isDir {
		return node
	}
	node.Type = TypeDirectory

	entries, err := os.ReadDir(path)
	if err != nil {
		s.logger.Debug().Err(err).Str("path", path).Msg("skipping unreadable directory")
		return node
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		child := filepath.Join(path, entry.Name())
		childIsDir := entry.IsDir()
		if entry.Type()&os.ModeSymlink != 0 {
			// Symlinked directories are listed but not descended into.
			childIsDir = false
			if info, err := os.Stat(child); err == nil && info.IsDir() {
				node.Children = append(node.Children, &Node{Name: entry.Name(), Type: TypeDirectory, Children: []*Node{}})
				continue
			}
		}
		node.Children = append(node.Children, s.buildTree(child, childIsDir))
	}
	return node
}

// Read returns a text file inside the project. Every failure, including
// paths that escape the project, is reported as ErrNotFound.
func (s *Service) Read(project, rel string) (*File, error) {
	notFound := apperrors.NotFoundf("File %s not found", rel)
	if !s.projects.Exists(project) {
		return nil, notFound
	}

	target, ok := s.resolve(project, rel)
	if !ok {
		s.logger.Warn().Str("project", project).Str("path", rel).Msg("attempted access outside project directory")
		return nil, notFound
	}

	info, err := os.Stat(target)
	if err != nil || !info.Mode().IsRegular() {
		return nil, notFound
	}

	data, err := os.ReadFile(target)
	if err != nil {
		s.logger.Error().Err(err).Str("project", project).Str("path", rel).Msg("error reading file")
		return nil, notFound
	}
	if !utf8.Valid(data) {
		s.logger.Info().Str("project", project).Str("path", rel).Msg("refusing to read non-UTF-8 file")
		return nil, notFound
	}

	return &File{
		Path:     filepath.ToSlash(rel),
		Content:  string(data),
		Language: LanguageFor(rel),
		Size:     info.Size(),
	}, nil
}

// Write creates or replaces a file inside the project, creating parent
// directories as needed.
func (s *Service) Write(project, rel, content string) error {
	if !s.projects.Exists(project) {
		return apperrors.NotFoundf("Project '%s' not found", project)
	}

	target, ok := s.resolve(project, rel)
	if !ok {
		s.logger.Warn().Str("project", project).Str("path", rel).Msg("attempted write outside project directory")
		return apperrors.Deniedf("Access denied: file path outside project directory")
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return s.writeError(project, rel, err)
	}
	if err := os.WriteFile(target, []byte(content), 0o644); err != nil {
		return s.writeError(project, rel, err)
	}

	s.logger.Info().Str("project", project).Str("path", rel).Msg("file written")
	return nil
}

func (s *Service) writeError(project, rel string, err error) error {
	if errors.Is(err, os.ErrPermission) {
		s.logger.Error().Err(err).Str("project", project).Str("path", rel).Msg("permission error writing file")
		return apperrors.Newf(apperrors.ErrPermission, "Permission denied: unable to write file")
	}
	s.logger.Error().Err(err).Str("project", project).Str("path", rel).Msg("error writing file")
	return fmt.Errorf("Error saving file: %w", err)
}

func (s *Service) resolve(project, rel string) (string, bool) {
	base := s.projects.Dir(project)
	target, inner, ok := resolveWithin(base, rel)
	if !ok {
		return "", false
	}
	first := strings.SplitN(filepath.ToSlash(inner), "/", 2)[0]
	if first == reservedDir {
		return "", false
	}
	return target, true
}
