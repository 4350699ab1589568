package sources

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/newsfuse-hq/newsfuse-ingest/internal/domain"
	"github.com/newsfuse-hq/newsfuse-ingest/pkg/httpclient"
)

// Query is the provider-independent search request.
type Query struct {
	Text     string
	Page     int
	PageSize int
}

// Result carries one page of normalized articles plus a pagination hint.
type Result struct {
	Articles []domain.CandidateArticle
	HasMore  bool
}

// Adapter translates a generic query into a provider-specific request and
// normalizes the response. Concrete implementations live in per-provider
// files (newsapi.go, guardian.go, gnews.go). Adapters never mutate rate-limit
// state; the limiter is consulted before Fetch is issued.
type Adapter interface {
	ID() string
	Fetch(ctx context.Context, desc Descriptor, q Query) (Result, error)
}

// AdapterRegistry resolves the adapter implementation for a descriptor.
type AdapterRegistry interface {
	AdapterFor(desc Descriptor) (Adapter, error)
}

// HTTPClient aliases the shared httpclient.Client interface for clarity within sources.
type HTTPClient = httpclient.Client

// adapterRegistry implements AdapterRegistry keyed by source id, then type.
type adapterRegistry struct {
	adaptersByID   map[string]Adapter
	adaptersByType map[string]Adapter
	mu             sync.RWMutex
}

// NewAdapterRegistry builds a registry with optional type-based adapters and
// source-specific adapters keyed by id.
func NewAdapterRegistry(typeAdapters map[string]Adapter, adapters ...Adapter) AdapterRegistry {
	reg := &adapterRegistry{
		adaptersByID:   make(map[string]Adapter),
		adaptersByType: make(map[string]Adapter),
	}

	for _, a := range adapters {
		reg.registerIDAdapter(a)
	}
	for typ, a := range typeAdapters {
		reg.registerTypeAdapter(typ, a)
	}

	return reg
}

func (r *adapterRegistry) registerIDAdapter(a Adapter) {
	if a == nil {
		return
	}
	key := strings.ToLower(strings.TrimSpace(a.ID()))
	if key == "" {
		return
	}

	r.mu.Lock()
	r.adaptersByID[key] = a
	r.mu.Unlock()
}

func (r *adapterRegistry) registerTypeAdapter(typ string, a Adapter) {
	if a == nil {
		return
	}
	key := strings.ToLower(strings.TrimSpace(typ))
	if key == "" {
		return
	}

	r.mu.Lock()
	r.adaptersByType[key] = a
	r.mu.Unlock()
}

// AdapterFor selects the adapter for the given source based on its id or type.
func (r *adapterRegistry) AdapterFor(desc Descriptor) (Adapter, error) {
	if r == nil {
		return nil, fmt.Errorf("adapter registry is nil")
	}
	if strings.TrimSpace(desc.ID) == "" {
		return nil, fmt.Errorf("source id is empty")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	idKey := strings.ToLower(strings.TrimSpace(desc.ID))
	if a, ok := r.adaptersByID[idKey]; ok {
		return a, nil
	}

	typeKey := strings.ToLower(strings.TrimSpace(desc.Type))
	if typeKey != "" {
		if a, ok := r.adaptersByType[typeKey]; ok {
			return a, nil
		}
	}

	return nil, fmt.Errorf("no adapter registered for source %q (type %q)", desc.ID, desc.Type)
}

// Supported provider types.
const (
	TypeNewsAPI  = "newsapi"
	TypeGuardian = "guardian"
	TypeGNews    = "gnews"
)

// DefaultHTTPClient returns a tuned http client for source adapters.
func DefaultHTTPClient() HTTPClient { return httpclient.NewRestyClient(15 * time.Second) }

// DefaultAdapterRegistry wires up known provider adapters.
func DefaultAdapterRegistry(client HTTPClient) AdapterRegistry {
	if client == nil {
		client = DefaultHTTPClient()
	}

	typeAdapters := map[string]Adapter{
		TypeNewsAPI:  NewNewsAPIAdapter(client),
		TypeGuardian: NewGuardianAdapter(client),
		TypeGNews:    NewGNewsAdapter(client),
	}

	return NewAdapterRegistry(typeAdapters)
}
