package sources

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadRegistryYAML(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "sources.yaml")
	content := `
sources:
  - id: newsapi-main
    name: NewsAPI
    type: newsapi
    base_url: https://newsapi.org/v2
    credential_ref: NEWSAPI_KEY
    max_page_size: 100
    rate_limit:
      window_seconds: 3600
      max_requests: 100
      burst: 5
  - id: guardian-main
    name: The Guardian
    type: guardian
    base_url: https://content.guardianapis.com
    enabled: false
`
	if err := os.WriteFile(file, []byte(content), 0o644); err != nil {
		t.Fatalf("write sources file: %v", err)
	}

	reg, err := LoadRegistry(file)
	if err != nil {
		t.Fatalf("LoadRegistry returned error: %v", err)
	}

	if got := len(reg.All()); got != 2 {
		t.Fatalf("expected 2 sources, got %d", got)
	}

	d, ok := reg.ByID("newsapi-main")
	if !ok {
		t.Fatalf("expected source id newsapi-main to be loaded")
	}
	if d.BaseURL != "https://newsapi.org/v2" {
		t.Fatalf("unexpected base_url: %s", d.BaseURL)
	}
	if d.RateLimit.MaxRequests != 100 || d.RateLimit.Burst != 5 {
		t.Fatalf("unexpected rate limit policy: %+v", d.RateLimit)
	}
	if d.RateLimit.Window() != time.Hour {
		t.Fatalf("unexpected window: %v", d.RateLimit.Window())
	}

	enabled := reg.Enabled()
	if len(enabled) != 1 || enabled[0].ID != "newsapi-main" {
		t.Fatalf("expected only newsapi-main enabled, got %#v", enabled)
	}
}

func TestLoadRegistryDefaultsPolicy(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "sources.yaml")
	content := `
sources:
  - id: gnews-main
    name: GNews
    type: gnews
    base_url: https://gnews.io/api/v4
`
	if err := os.WriteFile(file, []byte(content), 0o644); err != nil {
		t.Fatalf("write sources file: %v", err)
	}

	reg, err := LoadRegistry(file)
	if err != nil {
		t.Fatalf("LoadRegistry: %v", err)
	}
	d, _ := reg.ByID("gnews-main")
	if d.RateLimit.WindowSeconds != defaultWindowSeconds || d.RateLimit.MaxRequests != defaultMaxRequests {
		t.Fatalf("expected default rate limit policy, got %+v", d.RateLimit)
	}
	if d.MaxPageSize != defaultMaxPageSize {
		t.Fatalf("expected default max page size, got %d", d.MaxPageSize)
	}
	if !d.EnabledValue() {
		t.Fatalf("expected enabled to default to true")
	}
}

func TestLoadRegistryDuplicateID(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "sources.yaml")
	content := `
sources:
  - id: duplicate
    name: One
    type: newsapi
    base_url: https://p1.example
  - id: duplicate
    name: Two
    type: gnews
    base_url: https://p2.example
`
	if err := os.WriteFile(file, []byte(content), 0o644); err != nil {
		t.Fatalf("write sources file: %v", err)
	}

	if _, err := LoadRegistry(file); err == nil {
		t.Fatalf("expected duplicate source error, got nil")
	}
}

func TestAdapterRegistryResolvesByIDThenType(t *testing.T) {
	byID := &stubAdapter{id: "special"}
	byType := &stubAdapter{id: TypeNewsAPI}

	reg := NewAdapterRegistry(map[string]Adapter{TypeNewsAPI: byType}, byID)

	a, err := reg.AdapterFor(Descriptor{ID: "special", Type: TypeNewsAPI})
	if err != nil {
		t.Fatalf("AdapterFor: %v", err)
	}
	if a != byID {
		t.Fatalf("expected id-keyed adapter to win")
	}

	a, err = reg.AdapterFor(Descriptor{ID: "other", Type: TypeNewsAPI})
	if err != nil {
		t.Fatalf("AdapterFor by type: %v", err)
	}
	if a != byType {
		t.Fatalf("expected type-keyed adapter")
	}

	if _, err := reg.AdapterFor(Descriptor{ID: "unknown", Type: "nope"}); err == nil {
		t.Fatalf("expected error for unregistered source")
	}
}
