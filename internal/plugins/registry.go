package plugins

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"vpo/internal/services"
)

// APIVersion is the plugin API version this build speaks.
const APIVersion = 1

// Event names dispatched by the core.
const (
	EventFileScanned         = "file.scanned"
	EventBeforeEvaluate      = "policy.before_evaluate"
	EventAfterEvaluate       = "policy.after_evaluate"
	EventBeforeExecute       = "plan.before_execute"
	EventAfterExecute        = "plan.after_execute"
	EventExecutionFailed     = "plan.execution_failed"
	EventTranscriptionNeeded = "transcription.requested"
)

// Manifest declares a plugin's identity and subscriptions.
type Manifest struct {
	Name          string   `json:"name"`
	Version       string   `json:"version"`
	Events        []string `json:"events"`
	MinAPIVersion int      `json:"min_api_version,omitempty"`
	MaxAPIVersion int      `json:"max_api_version,omitempty"`
}

// Event is one dispatched occurrence.
type Event struct {
	Name    string
	Payload any
}

// Handler receives events a plugin subscribed to.
type Handler interface {
	HandleEvent(event Event) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(event Event) error

func (f HandlerFunc) HandleEvent(event Event) error { return f(event) }

// LoadedPlugin tracks one registered plugin and its runtime state.
type LoadedPlugin struct {
	Manifest Manifest
	Handler  Handler
	Enabled  bool
	LoadedAt time.Time
}

// Registry maps plugin names to loaded plugins.
type Registry struct {
	mu      sync.RWMutex
	plugins map[string]*LoadedPlugin
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{plugins: map[string]*LoadedPlugin{}}
}

// Register installs a plugin. Duplicate names and API version mismatches are
// rejected.
func (r *Registry) Register(manifest Manifest, handler Handler) error {
	if manifest.Name == "" {
		return services.Wrap(services.ErrValidation, "plugins", "register", "plugin name required", nil)
	}
	if handler == nil {
		return services.Wrap(services.ErrValidation, "plugins", "register", manifest.Name+": handler required", nil)
	}
	if manifest.MinAPIVersion > 0 && APIVersion < manifest.MinAPIVersion {
		return services.Wrap(services.ErrConfiguration, "plugins", "register",
			fmt.Sprintf("%s requires api >= %d, have %d", manifest.Name, manifest.MinAPIVersion, APIVersion), nil)
	}
	if manifest.MaxAPIVersion > 0 && APIVersion > manifest.MaxAPIVersion {
		return services.Wrap(services.ErrConfiguration, "plugins", "register",
			fmt.Sprintf("%s requires api <= %d, have %d", manifest.Name, manifest.MaxAPIVersion, APIVersion), nil)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.plugins[manifest.Name]; exists {
		return services.Wrap(services.ErrValidation, "plugins", "register",
			manifest.Name+" is already registered", nil)
	}
	r.plugins[manifest.Name] = &LoadedPlugin{
		Manifest: manifest,
		Handler:  handler,
		Enabled:  true,
		LoadedAt: time.Now().UTC(),
	}
	return nil
}

// SetEnabled toggles a plugin without unregistering it.
func (r *Registry) SetEnabled(name string, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	plugin, ok := r.plugins[name]
	if !ok {
		return services.Wrap(services.ErrNotFound, "plugins", "toggle", name, nil)
	}
	plugin.Enabled = enabled
	return nil
}

// Plugins returns a snapshot of the loaded plugins.
func (r *Registry) Plugins() []*LoadedPlugin {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*LoadedPlugin, 0, len(r.plugins))
	for _, plugin := range r.plugins {
		copied := *plugin
		out = append(out, &copied)
	}
	return out
}

// subscribers returns enabled handlers for an event name, sorted by plugin
// name so dispatch order is deterministic.
func (r *Registry) subscribers(event string) []*LoadedPlugin {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*LoadedPlugin
	for _, plugin := range r.plugins {
		if !plugin.Enabled {
			continue
		}
		for _, name := range plugin.Manifest.Events {
			if name == event {
				out = append(out, plugin)
				break
			}
		}
	}
	sort.Slice(out, func(a, b int) bool {
		return out[a].Manifest.Name < out[b].Manifest.Name
	})
	return out
}
