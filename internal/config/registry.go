package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/parlance-ai/parlance/pkg/provider/llm"
	"github.com/parlance-ai/parlance/pkg/provider/realtime"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Registry maps provider names to their constructor functions for each
// provider type. It is safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	realtime   map[string]func(ProviderEntry) (realtime.Provider, error)
	speech     map[string]func(ProviderEntry) (realtime.SpeechProvider, error)
	classifier map[string]func(ProviderEntry) (llm.Provider, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		realtime:   make(map[string]func(ProviderEntry) (realtime.Provider, error)),
		speech:     make(map[string]func(ProviderEntry) (realtime.SpeechProvider, error)),
		classifier: make(map[string]func(ProviderEntry) (llm.Provider, error)),
	}
}

// RegisterRealtime registers a combined speech-to-speech provider factory
// under name. Subsequent calls with the same name overwrite the previous
// registration.
func (r *Registry) RegisterRealtime(name string, factory func(ProviderEntry) (realtime.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.realtime[name] = factory
}

// RegisterSpeech registers a streaming text-to-speech provider factory under
// name.
func (r *Registry) RegisterSpeech(name string, factory func(ProviderEntry) (realtime.SpeechProvider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.speech[name] = factory
}

// RegisterClassifier registers a text-completion provider factory under name.
func (r *Registry) RegisterClassifier(name string, factory func(ProviderEntry) (llm.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.classifier[name] = factory
}

// CreateRealtime instantiates the realtime provider configured in entry.
func (r *Registry) CreateRealtime(entry ProviderEntry) (realtime.Provider, error) {
	r.mu.RLock()
	factory, ok := r.realtime[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: realtime %q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateSpeech instantiates the speech provider configured in entry.
func (r *Registry) CreateSpeech(entry ProviderEntry) (realtime.SpeechProvider, error) {
	r.mu.RLock()
	factory, ok := r.speech[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: speech %q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateClassifier instantiates the classifier provider configured in entry.
func (r *Registry) CreateClassifier(entry ProviderEntry) (llm.Provider, error) {
	r.mu.RLock()
	factory, ok := r.classifier[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: classifier %q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}
