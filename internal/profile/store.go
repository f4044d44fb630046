package profile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"github.com/rebeliceyang/lazyvar/internal/export"
	"github.com/rebeliceyang/lazyvar/internal/filter"
	"github.com/rebeliceyang/lazyvar/internal/models"
	"github.com/rebeliceyang/lazyvar/internal/switcher"
	"gopkg.in/yaml.v3"
)

// Store keeps the saved profiles of one user in a YAML file
type Store struct {
	mu      sync.Mutex
	path    string
	entries []models.ProfileEntry
}

// NewStore opens the profile file of user under dir, creating nothing until
// the first save
func NewStore(dir, user string) (*Store, error) {
	name := slug.Make(user)
	if name == "" {
		return nil, fmt.Errorf("invalid user name %q", user)
	}
	s := &Store{
		path:    filepath.Join(dir, "profiles", name+".yaml"),
		entries: []models.ProfileEntry{},
	}

	if _, err := os.Stat(s.path); err == nil {
		if err := s.load(); err != nil {
			return nil, fmt.Errorf("failed to load profiles: %w", err)
		}
	}
	return s, nil
}

// Path returns the backing file
func (s *Store) Path() string {
	return s.path
}

func (s *Store) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("failed to read profiles file: %w", err)
	}
	if err := yaml.Unmarshal(data, &s.entries); err != nil {
		return fmt.Errorf("failed to parse profiles: %w", err)
	}
	return nil
}

func (s *Store) save() error {
	data, err := yaml.Marshal(s.entries)
	if err != nil {
		return fmt.Errorf("failed to marshal profiles: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create profiles directory: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write profiles file: %w", err)
	}
	return nil
}

// Save stores ws under a new name. Names are unique, ignoring case.
func (s *Store) Save(name, description string, tags []string, a models.Analysis, ws switcher.Workspace) (*models.ProfileEntry, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("profile name cannot be empty")
	}
	body, err := Serialize(ws)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkName("", name); err != nil {
		return nil, err
	}

	now := time.Now()
	entry := models.ProfileEntry{
		ID:          uuid.New().String(),
		Name:        name,
		Description: strings.TrimSpace(description),
		Tags:        tags,
		Analysis:    a.Name,
		Body:        string(body),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.entries = append(s.entries, entry)
	if err := s.save(); err != nil {
		s.entries = s.entries[:len(s.entries)-1]
		return nil, fmt.Errorf("failed to save profile: %w", err)
	}
	return &entry, nil
}

// Update replaces the workspace and metadata of an entry
func (s *Store) Update(id, name, description string, tags []string, a models.Analysis, ws switcher.Workspace) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("profile name cannot be empty")
	}
	body, err := Serialize(ws)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkName(id, name); err != nil {
		return err
	}
	i, err := s.index(id)
	if err != nil {
		return err
	}
	e := &s.entries[i]
	e.Name = name
	e.Description = strings.TrimSpace(description)
	e.Tags = tags
	e.Analysis = a.Name
	e.Body = string(body)
	e.UpdatedAt = time.Now()
	if err := s.save(); err != nil {
		return fmt.Errorf("failed to save profile: %w", err)
	}
	return nil
}

// Delete removes an entry
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, err := s.index(id)
	if err != nil {
		return err
	}
	s.entries = append(s.entries[:i], s.entries[i+1:]...)
	if err := s.save(); err != nil {
		return fmt.Errorf("failed to save profiles after deletion: %w", err)
	}
	return nil
}

// Get returns an entry by id
func (s *Store) Get(id string) (*models.ProfileEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, err := s.index(id)
	if err != nil {
		return nil, err
	}
	e := s.entries[i]
	return &e, nil
}

// All returns every entry in creation order
func (s *Store) All() []models.ProfileEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.ProfileEntry(nil), s.entries...)
}

// Search matches name, description, analysis and tags, ignoring case
func (s *Store) Search(query string) []models.ProfileEntry {
	if query == "" {
		return s.All()
	}
	query = strings.ToLower(query)

	var results []models.ProfileEntry
	for _, e := range s.All() {
		if strings.Contains(strings.ToLower(e.Name), query) ||
			strings.Contains(strings.ToLower(e.Description), query) ||
			strings.Contains(strings.ToLower(e.Analysis), query) {
			results = append(results, e)
			continue
		}
		for _, tag := range e.Tags {
			if strings.Contains(strings.ToLower(tag), query) {
				results = append(results, e)
				break
			}
		}
	}
	return results
}

// Open decodes an entry for analysis a and records the use. Like
// Deserialize, it returns the full workspace along with any
// IncompatibleFieldError.
func (s *Store) Open(id string, fields filter.FieldSource, a models.Analysis) (switcher.Workspace, error) {
	entry, err := s.Get(id)
	if err != nil {
		return switcher.Workspace{}, err
	}
	ws, decodeErr := Deserialize([]byte(entry.Body), fields, a)
	var incompatible *filter.IncompatibleFieldError
	if decodeErr != nil && !errors.As(decodeErr, &incompatible) {
		return switcher.Workspace{}, decodeErr
	}
	if err := s.RecordUsage(id); err != nil {
		return switcher.Workspace{}, err
	}
	return ws, decodeErr
}

// RecordUsage bumps the usage statistics of an entry
func (s *Store) RecordUsage(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, err := s.index(id)
	if err != nil {
		return err
	}
	s.entries[i].UsageCount++
	s.entries[i].LastUsed = time.Now()
	if err := s.save(); err != nil {
		return fmt.Errorf("failed to save usage statistics: %w", err)
	}
	return nil
}

// MostUsed returns up to limit entries, most used first
func (s *Store) MostUsed(limit int) []models.ProfileEntry {
	sorted := s.All()
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].UsageCount > sorted[j].UsageCount
	})
	return truncate(sorted, limit)
}

// Recent returns up to limit entries, most recently used first
func (s *Store) Recent(limit int) []models.ProfileEntry {
	sorted := s.All()
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].LastUsed.After(sorted[j].LastUsed)
	})
	return truncate(sorted, limit)
}

// ExportToCSV writes every entry next to the profile file, or to path
func (s *Store) ExportToCSV(path string) (string, error) {
	return s.export(path, ".csv", export.ExportToCSV)
}

// ExportToJSON writes every entry next to the profile file, or to path
func (s *Store) ExportToJSON(path string) (string, error) {
	return s.export(path, ".json", export.ExportToJSON)
}

func (s *Store) export(path, ext string, write func([]models.ProfileEntry, string) error) (string, error) {
	entries := s.All()
	if len(entries) == 0 {
		return "", fmt.Errorf("no profiles to export")
	}
	if path == "" {
		path = strings.TrimSuffix(s.path, filepath.Ext(s.path)) + ext
	}
	if err := write(entries, path); err != nil {
		return "", fmt.Errorf("failed to export profiles: %w", err)
	}
	return path, nil
}

func (s *Store) checkName(id, name string) error {
	for _, e := range s.entries {
		if e.ID != id && strings.EqualFold(e.Name, name) {
			return fmt.Errorf("a profile named '%s' already exists (names are case-insensitive)", name)
		}
	}
	return nil
}

func (s *Store) index(id string) (int, error) {
	for i, e := range s.entries {
		if e.ID == id {
			return i, nil
		}
	}
	return -1, fmt.Errorf("profile with ID '%s' was not found", id)
}

func truncate(entries []models.ProfileEntry, limit int) []models.ProfileEntry {
	if limit > 0 && limit < len(entries) {
		return entries[:limit]
	}
	return entries
}
