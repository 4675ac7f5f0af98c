package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/wricardo/mediatracker/media/state"
)

var (
	ErrPresetNotFound = errors.New("preset not found")
	ErrInvalidPreset  = errors.New("invalid preset")
)

// Preset is a named shared-state document.
type Preset struct {
	Name        string         `json:"name" yaml:"name"`
	Description string         `json:"description,omitempty" yaml:"description,omitempty"`
	State       map[string]any `json:"state" yaml:"state"`
}

// PresetInfo describes a preset file without its state.
type PresetInfo struct {
	Filename    string `json:"filename"`
	PresetID    string `json:"preset_id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Channel     string `json:"channel,omitempty"`
	Keys        int    `json:"keys"`
}

// presetExts lists the recognised extensions in lookup order.
var presetExts = []string{".json", ".yaml", ".yml"}

// Manager loads and caches shared-state presets from a directory.
type Manager struct {
	presetDir     string
	defaultName   string
	defaultPreset *Preset
	presets       map[string]*Preset
	mu            sync.RWMutex
}

// NewManager creates a preset manager over presetDir. defaultName is tried
// first when picking the default preset.
func NewManager(presetDir, defaultName string) (*Manager, error) {
	if _, err := os.Stat(presetDir); os.IsNotExist(err) {
		return nil, fmt.Errorf("preset directory does not exist: %s", presetDir)
	}

	m := &Manager{
		presetDir:   presetDir,
		defaultName: defaultName,
		presets:     make(map[string]*Preset),
	}

	if err := m.loadDefaultPreset(); err != nil {
		return nil, fmt.Errorf("failed to load default preset: %w", err)
	}

	return m, nil
}

// LoadPreset loads a preset by name. The extension may be omitted.
func (m *Manager) LoadPreset(name string) (*Preset, error) {
	id := presetID(name)

	m.mu.RLock()
	if p, exists := m.presets[id]; exists {
		m.mu.RUnlock()
		return p, nil
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	if p, exists := m.presets[id]; exists {
		return p, nil
	}

	p, err := m.readPreset(name)
	if err != nil {
		return nil, err
	}

	m.presets[id] = p
	return p, nil
}

// ListPresets returns every readable preset in the directory, sorted by ID.
// Invalid files are skipped.
func (m *Manager) ListPresets() ([]*PresetInfo, error) {
	entries, err := os.ReadDir(m.presetDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read preset directory: %w", err)
	}

	var presets []*PresetInfo
	for _, entry := range entries {
		if entry.IsDir() || !hasPresetExt(entry.Name()) {
			continue
		}

		p, err := m.LoadPreset(entry.Name())
		if err != nil {
			continue
		}

		channel, _ := p.State[state.KeyChannel].(string)
		presets = append(presets, &PresetInfo{
			Filename:    entry.Name(),
			PresetID:    presetID(entry.Name()),
			Name:        p.Name,
			Description: p.Description,
			Channel:     channel,
			Keys:        len(p.State),
		})
	}

	sort.Slice(presets, func(i, j int) bool {
		return presets[i].PresetID < presets[j].PresetID
	})
	return presets, nil
}

// GetDefault returns the default preset.
func (m *Manager) GetDefault() *Preset {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.defaultPreset
}

// SetDefault makes the named preset the default.
func (m *Manager) SetDefault(name string) error {
	p, err := m.LoadPreset(name)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.defaultPreset = p
	return nil
}

// RefreshCache drops cached presets so the next load rereads the files.
func (m *Manager) RefreshCache() error {
	m.mu.Lock()
	m.presets = make(map[string]*Preset)
	m.mu.Unlock()

	return m.loadDefaultPreset()
}

// SavePreset writes p as JSON and caches it.
func (m *Manager) SavePreset(name string, p *Preset) error {
	if err := ValidatePreset(p); err != nil {
		return err
	}

	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal preset: %w", err)
	}

	id := presetID(name)
	path := filepath.Join(m.presetDir, id+".json")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write preset file: %w", err)
	}

	m.mu.Lock()
	m.presets[id] = p
	m.mu.Unlock()

	return nil
}

// ValidatePreset checks that p can be applied as shared state.
func ValidatePreset(p *Preset) error {
	if p == nil {
		return fmt.Errorf("%w: preset is nil", ErrInvalidPreset)
	}
	if len(p.State) == 0 {
		return fmt.Errorf("%w: state is empty", ErrInvalidPreset)
	}
	if v, ok := p.State[state.KeyChannel]; ok {
		if s, isString := v.(string); !isString || s == "" {
			return fmt.Errorf("%w: %s must be a non-empty string", ErrInvalidPreset, state.KeyChannel)
		}
	}
	return nil
}

// readPreset must be called with m.mu held.
func (m *Manager) readPreset(name string) (*Preset, error) {
	path, err := m.resolve(name)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read preset file: %w", err)
	}

	p, err := ParsePreset(data, filepath.Ext(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}

	if p.Name == "" {
		p.Name = presetID(name)
	}
	if err := ValidatePreset(p); err != nil {
		return nil, err
	}
	return p, nil
}

// ParsePreset decodes a preset document. ext selects JSON for ".json" and
// YAML otherwise. The result is not validated.
func ParsePreset(data []byte, ext string) (*Preset, error) {
	var p Preset
	var err error
	switch ext {
	case ".json":
		err = json.Unmarshal(data, &p)
	default:
		err = yaml.Unmarshal(data, &p)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPreset, err)
	}
	return &p, nil
}

func (m *Manager) resolve(name string) (string, error) {
	if hasPresetExt(name) {
		path := filepath.Join(m.presetDir, name)
		if _, err := os.Stat(path); err != nil {
			if os.IsNotExist(err) {
				return "", ErrPresetNotFound
			}
			return "", fmt.Errorf("failed to stat preset file: %w", err)
		}
		return path, nil
	}

	for _, ext := range presetExts {
		path := filepath.Join(m.presetDir, name+ext)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", ErrPresetNotFound
}

// loadDefaultPreset falls back to the first listed preset, then to an empty
// one, when the named default is missing.
func (m *Manager) loadDefaultPreset() error {
	if m.defaultName != "" {
		if p, err := m.LoadPreset(m.defaultName); err == nil {
			m.setDefault(p)
			return nil
		}
	}

	presets, err := m.ListPresets()
	if err != nil || len(presets) == 0 {
		m.setDefault(m.createMinimalPreset())
		return nil
	}

	p, err := m.LoadPreset(presets[0].Filename)
	if err != nil {
		m.setDefault(m.createMinimalPreset())
		return nil
	}
	m.setDefault(p)
	return nil
}

func (m *Manager) setDefault(p *Preset) {
	m.mu.Lock()
	m.defaultPreset = p
	m.mu.Unlock()
}

func (m *Manager) createMinimalPreset() *Preset {
	return &Preset{
		Name:        "default",
		Description: "Empty shared state",
		State:       map[string]any{},
	}
}

func presetID(name string) string {
	for _, ext := range presetExts {
		if strings.HasSuffix(name, ext) {
			return strings.TrimSuffix(name, ext)
		}
	}
	return name
}

func hasPresetExt(name string) bool {
	return presetID(name) != name
}
