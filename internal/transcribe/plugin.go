package transcribe

import (
	"context"
	"os/exec"
	"sort"
	"sync"

	"vpo/internal/config"
	"vpo/internal/services"
)

// Feature names a plugin can be asked about via SupportsFeature.
const (
	FeatureDetectLanguage = "detect_language"
	FeatureTranscribe     = "transcribe"
)

// Detection is a plugin's language verdict for one audio chunk.
type Detection struct {
	Language         string
	Confidence       float64
	TranscriptSample string
}

// Segment is one timed span of transcribed speech.
type Segment struct {
	Start    float64 `json:"start"`
	End      float64 `json:"end"`
	Text     string  `json:"text"`
	Language string  `json:"language,omitempty"`
}

// Transcription is a plugin's full transcript for one audio chunk.
type Transcription struct {
	Language         string
	Confidence       float64
	Segments         []Segment
	TranscriptSample string
}

// Plugin is the transcription provider contract. Audio is handed over as
// mono 16kHz signed 16-bit PCM WAV bytes.
type Plugin interface {
	Name() string
	SupportsFeature(feature string) bool
	DetectLanguage(ctx context.Context, audio []byte) (*Detection, error)
	Transcribe(ctx context.Context, audio []byte) (*Transcription, error)
}

// Factory constructs a plugin instance from the transcription settings.
type Factory func(cfg config.Transcription) (Plugin, error)

var (
	registryMu sync.Mutex
	registry   = map[string]Factory{}
)

// Register installs a plugin factory under a name. Registering a name twice
// replaces the earlier factory.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = factory
}

// RegisteredPlugins returns the registered plugin names, sorted.
func RegisteredPlugins() []string {
	registryMu.Lock()
	defer registryMu.Unlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Load resolves a plugin by name. Registered factories win; otherwise a
// helper binary named vpo-transcribe-<name> is looked up on PATH and wrapped
// in a command plugin. A missing provider is reported as an error so callers
// can log it and continue without transcription.
func Load(name string, cfg config.Transcription) (Plugin, error) {
	registryMu.Lock()
	factory, ok := registry[name]
	registryMu.Unlock()
	if ok {
		plugin, err := factory(cfg)
		if err != nil {
			return nil, services.Wrap(services.ErrConfiguration, "transcribe", "load", "plugin "+name, err)
		}
		return plugin, nil
	}

	command := "vpo-transcribe-" + name
	path, err := exec.LookPath(command)
	if err != nil {
		return nil, services.Wrap(services.ErrNotFound, "transcribe", "load",
			"no registered plugin or "+command+" binary for "+name, err)
	}
	return NewCommandPlugin(name, path), nil
}
