package transcribe

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"vpo/internal/services"
)

// CommandPlugin adapts an external helper binary to the Plugin contract.
// The helper receives a subcommand and a WAV path and prints one JSON object
// on stdout: {"language": ..., "confidence": ..., "transcript_sample": ...,
// "segments": [...]}.
type CommandPlugin struct {
	name    string
	command string
}

// NewCommandPlugin wraps the helper binary at command under the given name.
func NewCommandPlugin(name, command string) *CommandPlugin {
	return &CommandPlugin{name: name, command: command}
}

func (p *CommandPlugin) Name() string { return p.name }

func (p *CommandPlugin) SupportsFeature(feature string) bool {
	switch feature {
	case FeatureDetectLanguage, FeatureTranscribe:
		return true
	}
	return false
}

type commandPayload struct {
	Language         string    `json:"language"`
	Confidence       float64   `json:"confidence"`
	TranscriptSample string    `json:"transcript_sample"`
	Segments         []Segment `json:"segments"`
}

func (p *CommandPlugin) DetectLanguage(ctx context.Context, audio []byte) (*Detection, error) {
	payload, err := p.invoke(ctx, "detect-language", audio)
	if err != nil {
		return nil, err
	}
	return &Detection{
		Language:         payload.Language,
		Confidence:       payload.Confidence,
		TranscriptSample: payload.TranscriptSample,
	}, nil
}

func (p *CommandPlugin) Transcribe(ctx context.Context, audio []byte) (*Transcription, error) {
	payload, err := p.invoke(ctx, "transcribe", audio)
	if err != nil {
		return nil, err
	}
	return &Transcription{
		Language:         payload.Language,
		Confidence:       payload.Confidence,
		Segments:         payload.Segments,
		TranscriptSample: payload.TranscriptSample,
	}, nil
}

func (p *CommandPlugin) invoke(ctx context.Context, subcommand string, audio []byte) (*commandPayload, error) {
	dir, err := os.MkdirTemp("", "vpo-transcribe-")
	if err != nil {
		return nil, fmt.Errorf("transcribe %s: %w", p.name, err)
	}
	defer os.RemoveAll(dir)

	wavPath := filepath.Join(dir, "sample.wav")
	if err := os.WriteFile(wavPath, audio, 0o644); err != nil {
		return nil, fmt.Errorf("transcribe %s: write sample: %w", p.name, err)
	}

	cmd := exec.CommandContext(ctx, p.command, subcommand, wavPath) //nolint:gosec
	var stderr strings.Builder
	cmd.Stderr = &stderr
	output, err := cmd.Output()
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "transcribe", subcommand,
			p.name+": "+strings.TrimSpace(stderr.String()), err)
	}

	var payload commandPayload
	if err := json.Unmarshal(output, &payload); err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "transcribe", subcommand,
			p.name+": malformed plugin output", err)
	}
	return &payload, nil
}
