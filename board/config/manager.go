package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

var (
	ErrLanguageNotFound = errors.New("language not found")
	ErrInvalidCatalog   = errors.New("invalid language catalog")
)

// CatalogFile is the file name read from the configuration directory
const CatalogFile = "languages.json"

// Language is one entry of the editor's language menu
type Language struct {
	Name    string `json:"name"`
	Label   string `json:"label,omitempty"`
	Version string `json:"version"`
}

// Catalog is the on-disk shape of languages.json
type Catalog struct {
	Default   string     `json:"default"`
	Languages []Language `json:"languages"`
}

// Manager handles loading and caching of the language catalog
type Manager struct {
	configDir string
	catalog   Catalog
	index     map[string]Language
	mu        sync.RWMutex
}

// NewManager creates a catalog manager for configDir. An empty configDir
// serves the built-in catalog only.
func NewManager(configDir string) (*Manager, error) {
	if configDir != "" {
		if _, err := os.Stat(configDir); os.IsNotExist(err) {
			return nil, fmt.Errorf("config directory does not exist: %s", configDir)
		}
	}

	m := &Manager{configDir: configDir}
	if err := m.Reload(); err != nil {
		return nil, err
	}
	return m, nil
}

// Reload reads the catalog file again, falling back to the built-in
// catalog when it does not exist.
func (m *Manager) Reload() error {
	catalog, err := m.readCatalog()
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.setLocked(catalog)
	return nil
}

func (m *Manager) readCatalog() (Catalog, error) {
	if m.configDir == "" {
		return BuiltinCatalog(), nil
	}

	data, err := os.ReadFile(filepath.Join(m.configDir, CatalogFile))
	if err != nil {
		if os.IsNotExist(err) {
			return BuiltinCatalog(), nil
		}
		return Catalog{}, fmt.Errorf("failed to read language catalog: %w", err)
	}

	var catalog Catalog
	if err := json.Unmarshal(data, &catalog); err != nil {
		return Catalog{}, fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
	}
	normalize(&catalog)
	if err := ValidateCatalog(&catalog); err != nil {
		return Catalog{}, err
	}
	return catalog, nil
}

func (m *Manager) setLocked(catalog Catalog) {
	m.catalog = catalog
	m.index = make(map[string]Language, len(catalog.Languages))
	for _, lang := range catalog.Languages {
		m.index[lang.Name] = lang
	}
}

// List returns the languages in catalog order
func (m *Manager) List() []Language {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Language(nil), m.catalog.Languages...)
}

// Lookup finds a language by name, ignoring case
func (m *Manager) Lookup(name string) (Language, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	lang, ok := m.index[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Language{}, fmt.Errorf("%w: %s", ErrLanguageNotFound, name)
	}
	return lang, nil
}

// Default returns the language a new editor starts with
func (m *Manager) Default() Language {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.index[m.catalog.Default]
}

// Save validates catalog, writes it to the configuration directory and
// makes it current.
func (m *Manager) Save(catalog Catalog) error {
	normalize(&catalog)
	if err := ValidateCatalog(&catalog); err != nil {
		return err
	}
	if m.configDir == "" {
		return fmt.Errorf("no config directory to save to")
	}

	data, err := json.MarshalIndent(catalog, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal catalog: %w", err)
	}
	if err := os.WriteFile(filepath.Join(m.configDir, CatalogFile), data, 0644); err != nil {
		return fmt.Errorf("failed to write catalog: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.setLocked(catalog)
	return nil
}

// ValidateCatalog checks that every entry has a unique name and a version,
// and that the default names one of them.
func ValidateCatalog(catalog *Catalog) error {
	if len(catalog.Languages) == 0 {
		return fmt.Errorf("%w: no languages", ErrInvalidCatalog)
	}

	seen := make(map[string]bool, len(catalog.Languages))
	for i, lang := range catalog.Languages {
		if lang.Name == "" {
			return fmt.Errorf("%w: language %d has no name", ErrInvalidCatalog, i)
		}
		if lang.Version == "" {
			return fmt.Errorf("%w: language %s has no version", ErrInvalidCatalog, lang.Name)
		}
		if seen[lang.Name] {
			return fmt.Errorf("%w: duplicate language %s", ErrInvalidCatalog, lang.Name)
		}
		seen[lang.Name] = true
	}

	if !seen[catalog.Default] {
		return fmt.Errorf("%w: default language %q is not in the catalog", ErrInvalidCatalog, catalog.Default)
	}
	return nil
}

func normalize(catalog *Catalog) {
	for i := range catalog.Languages {
		catalog.Languages[i].Name = strings.ToLower(strings.TrimSpace(catalog.Languages[i].Name))
	}
	catalog.Default = strings.ToLower(strings.TrimSpace(catalog.Default))
	if catalog.Default == "" && len(catalog.Languages) > 0 {
		catalog.Default = catalog.Languages[0].Name
	}
}
