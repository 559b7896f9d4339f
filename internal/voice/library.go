// Package voice resolves client-facing voice names to reference audio used to condition
// the engine.
package voice

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

var ErrNotFound = errors.New("voice not found")

type Info struct {
	Name     string `json:"name"`
	Path     string `json:"path,omitempty"`
	Language string `json:"language,omitempty"`
}

type Resolver interface {
	Resolve(name string) (Info, error)
}

type entry struct {
	Name     string   `yaml:"name"`
	Path     string   `yaml:"path"`
	Language string   `yaml:"language"`
	Aliases  []string `yaml:"aliases"`
}

type libraryFile struct {
	Default string  `yaml:"default"`
	Voices  []entry `yaml:"voices"`
}

// Library is a named set of voices loaded from a YAML file. Paths in the file are relative
// to the voice directory unless absolute.
type Library struct {
	mu       sync.RWMutex
	byName   map[string]Info
	names    []string
	fallback string
}

func NewLibrary() *Library {
	return &Library{byName: make(map[string]Info)}
}

// Builtin returns a library with the stock voice names and no reference audio, so the
// engine uses its default speaker for each.
func Builtin() *Library {
	l := NewLibrary()
	for _, name := range []string{"alloy", "echo", "fable", "onyx", "nova", "shimmer"} {
		_ = l.Add(Info{Name: name})
	}
	l.fallback = "alloy"
	return l
}

func LoadFile(path, voiceDir string) (*Library, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read voice library: %w", err)
	}
	return Parse(data, voiceDir)
}

func Parse(data []byte, voiceDir string) (*Library, error) {
	var file libraryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse voice library: %w", err)
	}

	l := NewLibrary()
	for _, v := range file.Voices {
		if v.Name == "" {
			return nil, errors.New("voice entry missing name")
		}
		p := v.Path
		if p != "" && !filepath.IsAbs(p) && voiceDir != "" {
			p = filepath.Join(voiceDir, p)
		}
		info := Info{Name: v.Name, Path: p, Language: v.Language}
		if err := l.Add(info); err != nil {
			return nil, err
		}
		for _, alias := range v.Aliases {
			if err := l.alias(alias, info); err != nil {
				return nil, err
			}
		}
	}

	if file.Default != "" {
		if _, ok := l.byName[key(file.Default)]; !ok {
			return nil, fmt.Errorf("default voice %q not defined", file.Default)
		}
		l.fallback = file.Default
	}
	return l, nil
}

func (l *Library) Add(info Info) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	k := key(info.Name)
	if k == "" {
		return errors.New("voice name empty")
	}
	if _, exists := l.byName[k]; exists {
		return fmt.Errorf("duplicate voice %q", info.Name)
	}
	l.byName[k] = info
	l.names = append(l.names, info.Name)
	return nil
}

func (l *Library) alias(name string, info Info) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	k := key(name)
	if _, exists := l.byName[k]; exists {
		return fmt.Errorf("duplicate voice %q", name)
	}
	l.byName[k] = info
	return nil
}

// Resolve looks a voice up by name or alias, case-insensitively. An empty name resolves
// to the library default. Voices with reference audio must exist on disk.
func (l *Library) Resolve(name string) (Info, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if strings.TrimSpace(name) == "" {
		name = l.fallback
	}
	info, ok := l.byName[key(name)]
	if !ok {
		return Info{}, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	if info.Path != "" {
		if _, err := os.Stat(info.Path); err != nil {
			return Info{}, fmt.Errorf("voice %q reference audio unavailable: %w", info.Name, err)
		}
	}
	return info, nil
}

func (l *Library) Names() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]string, len(l.names))
	copy(out, l.names)
	return out
}

func key(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
