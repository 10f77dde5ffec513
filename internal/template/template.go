// Package template seeds new projects from a template directory.
package template

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// ManifestFile is the optional template manifest; it is never copied.
const ManifestFile = "template.yaml"

// Placeholders substituted in the manifest's substitute list.
const (
	PlaceholderName        = "{{PROJECT_NAME}}"
	PlaceholderDescription = "{{PROJECT_DESCRIPTION}}"
	PlaceholderDate        = "{{CREATION_DATE}}"
)

const defaultDescription = "A project created with Claude Code"

var defaultSubstitute = []string{"README.md", ".claude/settings.json", "CLAUDE.md"}

// Manifest describes how a template is applied.
type Manifest struct {
	Description  string   `yaml:"description"`
	Substitute   []string `yaml:"substitute"`
	Instructions string   `yaml:"instructions"` // appended to CLAUDE.md
}

// Seeder copies a template directory into new projects.
type Seeder struct {
	dir      string
	manifest Manifest
	logger   zerolog.Logger
}

// New loads the template at dir.
func New(dir string, logger zerolog.Logger) (*Seeder, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("template directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("template directory %s is not a directory", dir)
	}

	manifest, err := loadManifest(filepath.Join(dir, ManifestFile))
	if err != nil {
		return nil, err
	}

	return &Seeder{
		dir:      dir,
		manifest: manifest,
		logger:   logger.With().Str("component", "template").Logger(),
	}, nil
}

func loadManifest(path string) (Manifest, error) {
	m := Manifest{}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return m, fmt.Errorf("read template manifest: %w", err)
	default:
		if err := yaml.Unmarshal(data, &m); err != nil {
			return m, fmt.Errorf("parse template manifest: %w", err)
		}
	}
	if m.Description == "" {
		m.Description = defaultDescription
	}
	if len(m.Substitute) == 0 {
		m.Substitute = defaultSubstitute
	}
	return m, nil
}

// Manifest returns the effective manifest.
func (s *Seeder) Manifest() Manifest {
	return s.manifest
}

// Seed copies the template into dir and fills in placeholders.
func (s *Seeder) Seed(dir, projectName string, created time.Time) error {
	copied := 0
	err := filepath.WalkDir(s.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(s.dir, path)
		if err != nil {
			return err
		}
		if rel == "." || d.IsDir() || rel == ManifestFile || !d.Type().IsRegular() {
			return nil
		}
		if err := copyFile(path, filepath.Join(dir, rel)); err != nil {
			return fmt.Errorf("copy %s: %w", rel, err)
		}
		copied++
		return nil
	})
	if err != nil {
		return fmt.Errorf("copy template files: %w", err)
	}

	replacer := strings.NewReplacer(
		PlaceholderName, projectName,
		PlaceholderDescription, s.manifest.Description,
		PlaceholderDate, created.UTC().Format(time.RFC3339),
	)
	for _, rel := range s.manifest.Substitute {
		if err := substitute(filepath.Join(dir, filepath.FromSlash(rel)), replacer); err != nil {
			return fmt.Errorf("substitute %s: %w", rel, err)
		}
	}

	if s.manifest.Instructions != "" {
		if err := AppendInstructions(dir, s.manifest.Instructions); err != nil {
			return err
		}
	}

	s.logger.Debug().Str("dir", dir).Int("files", copied).Msg("project seeded from template")
	return nil
}

// AppendInstructions adds a custom instructions section to a project's CLAUDE.md.
func AppendInstructions(dir, instructions string) error {
	path := filepath.Join(dir, "CLAUDE.md")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("open CLAUDE.md: %w", err)
	}
	defer f.Close()
	if _, err := fmt.Fprintf(f, "\n\n## Custom Instructions\n\n%s\n", strings.TrimSpace(instructions)); err != nil {
		return fmt.Errorf("append instructions: %w", err)
	}
	return nil
}

func substitute(path string, r *strings.Replacer) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, []byte(r.Replace(string(data))), 0o644)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
