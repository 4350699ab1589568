package sources

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Package sources contains source descriptors (YAML/JSON) and the adapters
// that translate generic queries into provider-specific requests.

// RateLimitPolicy declares the per-source request budget: MaxRequests per
// sliding window of WindowSeconds, plus Burst extra tokens replenished
// continuously at MaxRequests/Window.
type RateLimitPolicy struct {
	WindowSeconds int `json:"window_seconds" yaml:"window_seconds"`
	MaxRequests   int `json:"max_requests" yaml:"max_requests"`
	Burst         int `json:"burst" yaml:"burst"`
}

// Window returns the policy window as a duration.
func (p RateLimitPolicy) Window() time.Duration {
	return time.Duration(p.WindowSeconds) * time.Second
}

// Descriptor describes one external news provider. Loaded at configuration
// time and immutable during a run.
type Descriptor struct {
	ID            string            `json:"id" yaml:"id"`
	Name          string            `json:"name" yaml:"name"`
	Type          string            `json:"type" yaml:"type"`
	BaseURL       string            `json:"base_url" yaml:"base_url"`
	CredentialRef string            `json:"credential_ref" yaml:"credential_ref"`
	Enabled       *bool             `json:"enabled" yaml:"enabled"`
	MaxPageSize   int               `json:"max_page_size" yaml:"max_page_size"`
	RateLimit     RateLimitPolicy   `json:"rate_limit" yaml:"rate_limit"`
	Dialect       map[string]string `json:"dialect" yaml:"dialect"`
}

// EnabledValue returns the enabled flag defaulting to true.
func (d Descriptor) EnabledValue() bool {
	if d.Enabled == nil {
		return true
	}
	return *d.Enabled
}

// APIKey resolves the provider credential from the environment variable named
// by credential_ref. Empty when unset.
func (d Descriptor) APIKey() string {
	if strings.TrimSpace(d.CredentialRef) == "" {
		return ""
	}
	return strings.TrimSpace(os.Getenv(d.CredentialRef))
}

type registryFile struct {
	Sources []Descriptor `json:"sources" yaml:"sources"`
}

// Registry materializes source descriptors loaded from config files.
type Registry struct {
	mu      sync.RWMutex
	sources []Descriptor
	idx     map[string]Descriptor
}

// LoadRegistry loads the source registry from a YAML/JSON file.
func LoadRegistry(path string) (*Registry, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("sources file path is empty")
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open sources file: %w", err)
	}
	defer file.Close()

	raw, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("read sources file: %w", err)
	}

	fileReg, err := parseRegistry(raw, filepath.Ext(path))
	if err != nil {
		return nil, err
	}
	if len(fileReg.Sources) == 0 {
		return nil, errors.New("sources file contains no sources entries")
	}

	reg := &Registry{
		sources: make([]Descriptor, len(fileReg.Sources)),
		idx:     make(map[string]Descriptor, len(fileReg.Sources)),
	}

	for i := range fileReg.Sources {
		d := sanitizeDescriptor(fileReg.Sources[i])
		if err := validateDescriptor(d); err != nil {
			return nil, fmt.Errorf("sources[%d]: %w", i, err)
		}
		if _, exists := reg.idx[d.ID]; exists {
			return nil, fmt.Errorf("duplicate source id %q", d.ID)
		}
		reg.sources[i] = d
		reg.idx[d.ID] = d
	}

	return reg, nil
}

func parseRegistry(data []byte, ext string) (registryFile, error) {
	ext = strings.ToLower(strings.TrimSpace(ext))

	decoders := []struct {
		name string
		ext  string
		fn   func([]byte, any) error
	}{
		{name: "yaml", ext: ".yaml", fn: yaml.Unmarshal},
		{name: "yaml", ext: ".yml", fn: yaml.Unmarshal},
		{name: "json", ext: ".json", fn: json.Unmarshal},
	}

	for _, d := range decoders {
		if ext != "" && ext != d.ext {
			continue
		}
		var reg registryFile
		if err := d.fn(data, &reg); err == nil {
			return reg, nil
		}
	}

	return registryFile{}, errors.New("sources file format not recognized (expected YAML or JSON)")
}

func sanitizeDescriptor(d Descriptor) Descriptor {
	d.ID = strings.TrimSpace(d.ID)
	d.Name = strings.TrimSpace(d.Name)
	d.Type = strings.ToLower(strings.TrimSpace(d.Type))
	d.BaseURL = strings.TrimSpace(d.BaseURL)
	d.CredentialRef = strings.TrimSpace(d.CredentialRef)

	if d.Dialect == nil {
		d.Dialect = map[string]string{}
	}
	if d.MaxPageSize <= 0 {
		d.MaxPageSize = defaultMaxPageSize
	}
	if d.RateLimit.WindowSeconds <= 0 {
		d.RateLimit.WindowSeconds = defaultWindowSeconds
	}
	if d.RateLimit.MaxRequests <= 0 {
		d.RateLimit.MaxRequests = defaultMaxRequests
	}
	if d.RateLimit.Burst < 0 {
		d.RateLimit.Burst = 0
	}

	return d
}

func validateDescriptor(d Descriptor) error {
	if d.ID == "" {
		return errors.New("id is required")
	}
	if d.Name == "" {
		return fmt.Errorf("name is required for source %q", d.ID)
	}
	if d.Type == "" {
		return fmt.Errorf("type is required for source %q", d.ID)
	}
	if d.BaseURL == "" {
		return fmt.Errorf("base_url is required for source %q", d.ID)
	}
	return nil
}

const (
	defaultMaxPageSize   = 100
	defaultWindowSeconds = 60
	defaultMaxRequests   = 10
)

// ByID returns the descriptor for the given id, if loaded.
func (r *Registry) ByID(id string) (Descriptor, bool) {
	if r == nil {
		return Descriptor{}, false
	}

	id = strings.TrimSpace(id)
	if id == "" {
		return Descriptor{}, false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.idx[id]
	return d, ok
}

// All returns a copy of all configured sources.
func (r *Registry) All() []Descriptor {
	if r == nil {
		return nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Descriptor, len(r.sources))
	copy(out, r.sources)
	return out
}

// Enabled returns sources that are enabled.
func (r *Registry) Enabled() []Descriptor {
	all := r.All()
	if len(all) == 0 {
		return nil
	}

	out := make([]Descriptor, 0, len(all))
	for _, d := range all {
		if d.EnabledValue() {
			out = append(out, d)
		}
	}
	return out
}
