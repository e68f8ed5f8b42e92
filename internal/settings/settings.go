// Package settings persists engine configuration as JSON under the data
// directory. Loads backfill defaults so older files keep working.
package settings

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
)

const schemaVersion = 1

const (
	defaultModelID       = "gpt-4o"
	defaultMaxMessages   = 30
	defaultMaxToolRounds = 8
	defaultTemperature   = 0.2
	defaultBodyCapChars  = 60_000
)

// Settings is the persisted engine configuration.
type Settings struct {
	SchemaVersion int     `json:"schema_version"`
	ModelID       string  `json:"model_id"`
	Temperature   float64 `json:"temperature"`
	MaxMessages   int     `json:"max_messages"`
	MaxToolRounds int     `json:"max_tool_rounds"`
	BodyCapChars  int     `json:"body_cap_chars"`
	PlaybookPath  string  `json:"playbook_path,omitempty"`
}

// Store loads and saves settings behind a mutex.
type Store struct {
	path string
	mu   sync.Mutex
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

func (s *Store) Load() (*Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return defaultSettings(), nil
		}
		return nil, err
	}
	var settings Settings
	if err := json.Unmarshal(data, &settings); err != nil {
		return nil, err
	}
	backfill(&settings)
	return &settings, nil
}

func (s *Store) Save(settings *Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	backfill(settings)
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0o600)
}

func (s *Store) Update(fn func(*Settings)) (*Settings, error) {
	settings, err := s.Load()
	if err != nil {
		return nil, err
	}
	fn(settings)
	return settings, s.Save(settings)
}

func defaultSettings() *Settings {
	return &Settings{
		SchemaVersion: schemaVersion,
		ModelID:       defaultModelID,
		Temperature:   defaultTemperature,
		MaxMessages:   defaultMaxMessages,
		MaxToolRounds: defaultMaxToolRounds,
		BodyCapChars:  defaultBodyCapChars,
	}
}

func backfill(settings *Settings) {
	if settings.SchemaVersion == 0 {
		settings.SchemaVersion = schemaVersion
	}
	if settings.ModelID == "" {
		settings.ModelID = defaultModelID
	}
	if settings.Temperature <= 0 {
		settings.Temperature = defaultTemperature
	}
	if settings.MaxMessages < 2 {
		settings.MaxMessages = defaultMaxMessages
	}
	if settings.MaxToolRounds < 1 {
		settings.MaxToolRounds = defaultMaxToolRounds
	}
	if settings.BodyCapChars < 1 {
		settings.BodyCapChars = defaultBodyCapChars
	}
}
