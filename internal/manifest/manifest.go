// Package manifest reads the YAML file listing each task and the locators of
// the sources that demonstrate it.
//
//	tasks:
//	  lemonade:
//	    title: Make lemonade
//	    sources:
//	      - https://www.youtube.com/watch?v=abc
//	      - /srv/media/def
package manifest

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"stepweave/internal/model"
	"stepweave/internal/services"
)

// Entry is one task as written in the manifest.
type Entry struct {
	Title   string   `yaml:"title"`
	Sources []string `yaml:"sources"`
}

// Manifest maps task ids to their entries.
type Manifest struct {
	Tasks map[string]Entry `yaml:"tasks"`
}

// Load parses the manifest at path. A missing file is a configuration error.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, services.Wrap(services.ErrConfiguration, "manifest", "load",
				fmt.Sprintf("manifest %s does not exist", path), nil)
		}
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	return Parse(data)
}

// Parse decodes manifest YAML and validates every entry.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "manifest", "parse", "invalid YAML", err)
	}
	if m.Tasks == nil {
		m.Tasks = map[string]Entry{}
	}
	for id, entry := range m.Tasks {
		if strings.TrimSpace(id) == "" {
			return nil, services.Wrap(services.ErrConfiguration, "manifest", "validate", "task with empty id", nil)
		}
		if strings.TrimSpace(entry.Title) == "" {
			return nil, services.Wrap(services.ErrConfiguration, "manifest", "validate",
				fmt.Sprintf("task %q has no title", id), nil)
		}
	}
	return &m, nil
}

// IDs returns the task ids in sorted order.
func (m *Manifest) IDs() []string {
	ids := make([]string, 0, len(m.Tasks))
	for id := range m.Tasks {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Task resolves a task by id. Blank and repeated locators are dropped.
func (m *Manifest) Task(id string) (model.Task, error) {
	entry, ok := m.Tasks[id]
	if !ok {
		return model.Task{}, services.Wrap(services.ErrNotFound, "manifest", "lookup",
			fmt.Sprintf("task %q is not in the manifest", id), nil)
	}
	locators := make([]string, 0, len(entry.Sources))
	for _, locator := range entry.Sources {
		locator = strings.TrimSpace(locator)
		if locator != "" && !slices.Contains(locators, locator) {
			locators = append(locators, locator)
		}
	}
	return model.Task{ID: id, Title: strings.TrimSpace(entry.Title), Locators: locators}, nil
}
