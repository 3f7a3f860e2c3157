package policy

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"vpo/internal/services"
)

// MinSchemaVersion is the oldest accepted policy document version. Flat
// documents without a phases key predate this version and are rejected.
const MinSchemaVersion = 12

// Phase names accepted in a policy document.
const (
	PhaseAnalyze    = "analyze"
	PhaseApply      = "apply"
	PhaseTranscode  = "transcode"
	PhaseSynthesize = "synthesize"
	PhaseMove       = "move"
	PhaseTimestamp  = "timestamp"
)

// OnError modes controlling how a failed phase affects the rest of the file.
const (
	OnErrorSkip     = "skip"
	OnErrorContinue = "continue"
	OnErrorFail     = "fail"
)

// Policy is an immutable parsed policy document.
type Policy struct {
	SchemaVersion int          `yaml:"schema_version"`
	Name          string       `yaml:"name"`
	Config        Config       `yaml:"config"`
	Phases        []Phase      `yaml:"phases"`
	Workflow      WorkflowSpec `yaml:"workflow"`
}

// Config holds the preferences shared by every phase.
type Config struct {
	AudioLanguagePreference    []string      `yaml:"audio_language_preference"`
	SubtitleLanguagePreference []string      `yaml:"subtitle_language_preference"`
	TrackOrder                 []string      `yaml:"track_order"`
	CommentaryPatterns         []string      `yaml:"commentary_patterns"`
	MusicPatterns              []string      `yaml:"music_patterns"`
	SFXPatterns                []string      `yaml:"sfx_patterns"`
	DefaultFlags               DefaultFlags  `yaml:"default_flags"`
	Transcription              Transcription `yaml:"transcription"`
	RemoveUnpreferredTracks    bool          `yaml:"remove_unpreferred_tracks"`
	OnError                    string        `yaml:"on_error"`
}

// DefaultFlags controls which track gets the default disposition.
type DefaultFlags struct {
	SetPreferredAudioDefault    bool `yaml:"set_preferred_audio_default"`
	SetPreferredSubtitleDefault bool `yaml:"set_preferred_subtitle_default"`
	ClearOtherDefaults          bool `yaml:"clear_other_defaults"`
	SubtitleDefaultOnNoAudio    bool `yaml:"subtitle_default_when_no_audio_match"`
}

// Transcription holds the policy-level language detection settings.
type Transcription struct {
	UpdateLanguage              bool    `yaml:"update_language_from_transcription"`
	ConfidenceThreshold         float64 `yaml:"confidence_threshold"`
	CommentaryFromTranscription bool    `yaml:"commentary_from_transcription"`
}

// Phase is one named step of the workflow with its own gates and settings.
type Phase struct {
	Name          string           `yaml:"name"`
	SkipWhen      []Condition      `yaml:"skip_when"`
	Rules         *Rules           `yaml:"rules"`
	OnError       string           `yaml:"on_error"`
	Transcode     *TranscodeSpec   `yaml:"transcode"`
	Synthesize    []SynthesisSpec  `yaml:"synthesize"`
	Move          *MoveSpec        `yaml:"move"`
	FileTimestamp *FileTimestamp   `yaml:"file_timestamp"`
}

// WorkflowSpec selects which phases run and the default error mode.
type WorkflowSpec struct {
	Phases  []string `yaml:"phases"`
	OnError string   `yaml:"on_error"`
}

// TranscodeSpec configures the transcode phase.
type TranscodeSpec struct {
	Video *VideoTranscode `yaml:"video"`
	Audio *AudioTranscode `yaml:"audio"`
}

// VideoTranscode configures video re-encoding. Exactly one of CRF and
// Bitrate may be set.
type VideoTranscode struct {
	Codec         string         `yaml:"codec"`
	CRF           *float64       `yaml:"crf"`
	Bitrate       string         `yaml:"bitrate"`
	Preset        string         `yaml:"preset"`
	Tune          string         `yaml:"tune"`
	MaxResolution string         `yaml:"max_resolution"`
	FFmpegArgs    []string       `yaml:"ffmpeg_args"`
	SkipIf        *TranscodeSkip `yaml:"skip_if"`
}

// TranscodeSkip short-circuits video transcoding when the source already
// satisfies every listed bound.
type TranscodeSkip struct {
	CodecMatches     []string `yaml:"codec_matches"`
	ResolutionWithin string   `yaml:"resolution_within"`
	BitrateUnder     string   `yaml:"bitrate_under"`
}

// AudioTranscode configures audio re-encoding.
type AudioTranscode struct {
	Codec          string   `yaml:"codec"`
	Bitrate        string   `yaml:"bitrate"`
	PreserveCodecs []string `yaml:"preserve_codecs"`
	FFmpegArgs     []string `yaml:"ffmpeg_args"`
}

// SynthesisSpec derives a new audio track from an existing one.
type SynthesisSpec struct {
	SourceLanguage   string `yaml:"source_language"`
	SourceTrackIndex *int   `yaml:"source_track_index"`
	Codec            string `yaml:"codec"`
	Channels         int    `yaml:"channels"`
	Bitrate          string `yaml:"bitrate"`
	FilterChain      string `yaml:"filter_chain"`
	Language         string `yaml:"language"`
	Title            string `yaml:"title"`
}

// MoveSpec renders a destination path from filename metadata.
type MoveSpec struct {
	DestinationTemplate string `yaml:"destination_template"`
	Fallback            string `yaml:"fallback"`
}

// FileTimestamp sets the file's modification time after processing.
type FileTimestamp struct {
	Mode     string `yaml:"mode"`
	Date     string `yaml:"date"`
	Fallback string `yaml:"fallback"`
}

// Load reads and validates a policy document from disk.
func Load(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, services.Wrap(services.ErrNotFound, "policy", "load", fmt.Sprintf("read %s", path), err)
	}
	pol, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return pol, nil
}

// Parse decodes and validates a policy document. Unknown keys are rejected
// so typos fail loudly instead of silently disabling behavior.
func Parse(data []byte) (*Policy, error) {
	var pol Policy
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&pol); err != nil {
		return nil, services.Wrap(services.ErrValidation, "policy", "parse", "decode yaml", err)
	}
	if err := pol.Validate(); err != nil {
		return nil, err
	}
	return &pol, nil
}

// PhaseByName returns the definition for a named phase, or nil.
func (p *Policy) PhaseByName(name string) *Phase {
	for i := range p.Phases {
		if p.Phases[i].Name == name {
			return &p.Phases[i]
		}
	}
	return nil
}

// EffectivePhases returns the ordered phase names the workflow will run.
// When workflow.phases is empty every declared phase runs in document order.
func (p *Policy) EffectivePhases() []string {
	if len(p.Workflow.Phases) > 0 {
		cp := make([]string, len(p.Workflow.Phases))
		copy(cp, p.Workflow.Phases)
		return cp
	}
	names := make([]string, 0, len(p.Phases))
	for _, phase := range p.Phases {
		names = append(names, phase.Name)
	}
	return names
}

// EffectiveOnError resolves the error mode for a phase, falling back to the
// workflow default and finally to fail.
func (p *Policy) EffectiveOnError(phase *Phase) string {
	if phase != nil && phase.OnError != "" {
		return phase.OnError
	}
	if p.Workflow.OnError != "" {
		return p.Workflow.OnError
	}
	if p.Config.OnError != "" {
		return p.Config.OnError
	}
	return OnErrorFail
}
