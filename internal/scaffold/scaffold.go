// Package scaffold writes a starter microbundle project.
package scaffold

import (
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dyluth/microbundle/internal/config"
	"github.com/dyluth/microbundle/internal/library"
)

//go:embed templates/*
var templatesFS embed.FS

// ConfigFile is the name of the generated configuration file.
const ConfigFile = "microbundle.yml"

// file is one file written by Initialize.
type file struct {
	template string
	path     string
}

var files = []file{
	{template: "templates/microbundle.yml", path: ConfigFile},
	{template: "templates/micro-capsule-templates.json", path: config.DefaultLibrary},
}

// ErrExists is returned when a scaffolded file is already present and force is false.
var ErrExists = errors.New("project already initialized")

// Initialize writes microbundle.yml and a sample template library under dir and returns the
// paths written. Existing files are replaced only when force is true.
func Initialize(dir string, force bool) ([]string, error) {
	if !force {
		for _, f := range files {
			path := filepath.Join(dir, f.path)
			if _, err := os.Stat(path); err == nil {
				return nil, fmt.Errorf("%w: %s exists", ErrExists, path)
			}
		}
	}

	written := make([]string, 0, len(files))
	for _, f := range files {
		content, err := templatesFS.ReadFile(f.template)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s template: %w", f.path, err)
		}

		path := filepath.Join(dir, f.path)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory for %s: %w", path, err)
		}
		if err := os.WriteFile(path, content, 0644); err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", path, err)
		}
		written = append(written, path)
	}

	if err := validate(dir); err != nil {
		return nil, err
	}
	return written, nil
}

// validate loads what was written the same way generate will.
func validate(dir string) error {
	if _, err := config.Load(filepath.Join(dir, ConfigFile)); err != nil {
		return fmt.Errorf("generated %s is invalid: %w", ConfigFile, err)
	}

	lib, err := library.Load(filepath.Join(dir, config.DefaultLibrary))
	if err != nil {
		return fmt.Errorf("generated library is invalid: %w", err)
	}
	for i := range lib.Templates {
		if err := lib.Templates[i].Validate(); err != nil {
			return fmt.Errorf("generated library is invalid: %w", err)
		}
	}
	return nil
}
