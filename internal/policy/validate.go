package policy

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"vpo/internal/services"
)

var validPhases = map[string]struct{}{
	PhaseAnalyze: {}, PhaseApply: {}, PhaseTranscode: {},
	PhaseSynthesize: {}, PhaseMove: {}, PhaseTimestamp: {},
}

var validOnError = map[string]struct{}{
	"": {}, OnErrorSkip: {}, OnErrorContinue: {}, OnErrorFail: {},
}

var validResolutions = map[string]struct{}{
	"480p": {}, "720p": {}, "1080p": {}, "1440p": {}, "2160p": {}, "4k": {}, "8k": {},
}

var validVideoCodecs = map[string]struct{}{
	"h264": {}, "avc": {}, "hevc": {}, "h265": {}, "av1": {},
}

var validAudioCodecs = map[string]struct{}{
	"aac": {}, "ac3": {}, "eac3": {}, "opus": {}, "flac": {},
}

var validPresets = map[string]struct{}{
	"ultrafast": {}, "superfast": {}, "veryfast": {}, "faster": {}, "fast": {},
	"medium": {}, "slow": {}, "slower": {}, "veryslow": {}, "placebo": {},
}

var validTunes = map[string]struct{}{
	"film": {}, "animation": {}, "grain": {}, "stillimage": {},
	"fastdecode": {}, "zerolatency": {}, "psnr": {}, "ssim": {},
}

var bitratePattern = regexp.MustCompile(`^\d+(\.\d+)?(M|k)$|^\d+$`)

const (
	maxFFmpegArgs     = 50
	maxFFmpegArgBytes = 1024
)

// ffmpegArgForbidden covers shell metacharacters that must never reach a
// subprocess argument list, even though args are passed without a shell.
const ffmpegArgForbidden = ";|&$(){}`<>\n"

func validationError(format string, args ...any) error {
	return services.Wrap(services.ErrValidation, "policy", "validate", fmt.Sprintf(format, args...), nil)
}

// ParseBitrate converts a bitrate token ("10M", "320k" or raw bits per
// second) into bits per second.
func ParseBitrate(token string) (int64, error) {
	if !bitratePattern.MatchString(token) {
		return 0, validationError("invalid bitrate %q", token)
	}
	multiplier := 1.0
	switch {
	case strings.HasSuffix(token, "M"):
		multiplier = 1_000_000
		token = strings.TrimSuffix(token, "M")
	case strings.HasSuffix(token, "k"):
		multiplier = 1_000
		token = strings.TrimSuffix(token, "k")
	}
	value, err := strconv.ParseFloat(token, 64)
	if err != nil {
		return 0, validationError("invalid bitrate %q", token)
	}
	return int64(value * multiplier), nil
}

// Validate checks the whole document. It is called by Parse; standalone
// callers (the CLI validate command) may invoke it directly.
func (p *Policy) Validate() error {
	if p.SchemaVersion < MinSchemaVersion {
		return validationError("schema_version %d is older than the minimum %d", p.SchemaVersion, MinSchemaVersion)
	}
	if len(p.Phases) == 0 {
		return validationError("phases is mandatory; flat policies are not supported")
	}
	if _, ok := validOnError[p.Config.OnError]; !ok {
		return validationError("config.on_error %q is not skip, continue, or fail", p.Config.OnError)
	}
	if _, ok := validOnError[p.Workflow.OnError]; !ok {
		return validationError("workflow.on_error %q is not skip, continue, or fail", p.Workflow.OnError)
	}

	seen := map[string]struct{}{}
	for i := range p.Phases {
		phase := &p.Phases[i]
		if _, ok := validPhases[phase.Name]; !ok {
			return validationError("phase %q is not a known phase", phase.Name)
		}
		if _, dup := seen[phase.Name]; dup {
			return validationError("phase %q is declared twice", phase.Name)
		}
		seen[phase.Name] = struct{}{}
		if _, ok := validOnError[phase.OnError]; !ok {
			return validationError("phase %q on_error %q is not skip, continue, or fail", phase.Name, phase.OnError)
		}
		if err := phase.validate(); err != nil {
			return err
		}
	}

	for _, name := range p.Workflow.Phases {
		if _, ok := seen[name]; !ok {
			return validationError("workflow phase %q is not declared in phases", name)
		}
	}

	if tc := p.Config.Transcription.ConfidenceThreshold; tc < 0 || tc > 1 {
		return validationError("transcription confidence_threshold %v is outside [0,1]", tc)
	}
	return nil
}

func (ph *Phase) validate() error {
	if ph.Rules != nil {
		mode := strings.ToUpper(ph.Rules.Match)
		if mode != "" && mode != MatchFirst && mode != MatchAll {
			return validationError("phase %q rules.match %q is not FIRST or ALL", ph.Name, ph.Rules.Match)
		}
		for i := range ph.Rules.Items {
			if ph.Rules.Items[i].Name == "" {
				return validationError("phase %q rule %d has no name", ph.Name, i)
			}
		}
	}
	if ph.Transcode != nil {
		if err := ph.Transcode.validate(ph.Name); err != nil {
			return err
		}
	}
	for i := range ph.Synthesize {
		if err := ph.Synthesize[i].validate(ph.Name, i); err != nil {
			return err
		}
	}
	if ph.Move != nil && ph.Move.DestinationTemplate == "" {
		return validationError("phase %q move needs destination_template", ph.Name)
	}
	if ph.FileTimestamp != nil {
		switch ph.FileTimestamp.Mode {
		case "metadata_date", "now", "fixed":
		default:
			return validationError("phase %q file_timestamp.mode %q is not metadata_date, now, or fixed", ph.Name, ph.FileTimestamp.Mode)
		}
	}
	return nil
}

func (tc *TranscodeSpec) validate(phaseName string) error {
	if tc.Video != nil {
		v := tc.Video
		if v.Codec != "" {
			if _, ok := validVideoCodecs[strings.ToLower(v.Codec)]; !ok {
				return validationError("phase %q video codec %q is unsupported", phaseName, v.Codec)
			}
		}
		if v.CRF != nil && v.Bitrate != "" {
			return validationError("phase %q video sets both crf and bitrate", phaseName)
		}
		if v.CRF != nil && (*v.CRF < 0 || *v.CRF > 63) {
			return validationError("phase %q video crf %v is outside [0,63]", phaseName, *v.CRF)
		}
		if v.Bitrate != "" && !bitratePattern.MatchString(v.Bitrate) {
			return validationError("phase %q video bitrate %q is malformed", phaseName, v.Bitrate)
		}
		if v.Preset != "" {
			if _, ok := validPresets[strings.ToLower(v.Preset)]; !ok {
				return validationError("phase %q video preset %q is unsupported", phaseName, v.Preset)
			}
		}
		if v.Tune != "" {
			if _, ok := validTunes[strings.ToLower(v.Tune)]; !ok {
				return validationError("phase %q video tune %q is unsupported", phaseName, v.Tune)
			}
		}
		if v.MaxResolution != "" {
			if _, ok := validResolutions[strings.ToLower(v.MaxResolution)]; !ok {
				return validationError("phase %q video max_resolution %q is unsupported", phaseName, v.MaxResolution)
			}
		}
		if err := ValidateFFmpegArgs(v.FFmpegArgs); err != nil {
			return err
		}
		if v.SkipIf != nil {
			if v.SkipIf.ResolutionWithin != "" {
				if _, ok := validResolutions[strings.ToLower(v.SkipIf.ResolutionWithin)]; !ok {
					return validationError("phase %q skip_if resolution_within %q is unsupported", phaseName, v.SkipIf.ResolutionWithin)
				}
			}
			if v.SkipIf.BitrateUnder != "" && !bitratePattern.MatchString(v.SkipIf.BitrateUnder) {
				return validationError("phase %q skip_if bitrate_under %q is malformed", phaseName, v.SkipIf.BitrateUnder)
			}
		}
	}
	if tc.Audio != nil {
		a := tc.Audio
		if a.Codec != "" {
			if _, ok := validAudioCodecs[strings.ToLower(a.Codec)]; !ok {
				return validationError("phase %q audio codec %q is unsupported", phaseName, a.Codec)
			}
		}
		if a.Bitrate != "" && !bitratePattern.MatchString(a.Bitrate) {
			return validationError("phase %q audio bitrate %q is malformed", phaseName, a.Bitrate)
		}
		if err := ValidateFFmpegArgs(a.FFmpegArgs); err != nil {
			return err
		}
	}
	return nil
}

func (sp *SynthesisSpec) validate(phaseName string, index int) error {
	if sp.Codec == "" {
		return validationError("phase %q synthesize[%d] needs a codec", phaseName, index)
	}
	if _, ok := validAudioCodecs[strings.ToLower(sp.Codec)]; !ok {
		return validationError("phase %q synthesize[%d] codec %q is unsupported", phaseName, index, sp.Codec)
	}
	if sp.Bitrate != "" && !bitratePattern.MatchString(sp.Bitrate) {
		return validationError("phase %q synthesize[%d] bitrate %q is malformed", phaseName, index, sp.Bitrate)
	}
	if sp.SourceLanguage == "" && sp.SourceTrackIndex == nil {
		return validationError("phase %q synthesize[%d] needs source_language or source_track_index", phaseName, index)
	}
	return nil
}

// ValidateFFmpegArgs enforces the hard security guard on free-form tool
// argument lists: bounded count, bounded length, no shell metacharacters.
func ValidateFFmpegArgs(args []string) error {
	if len(args) > maxFFmpegArgs {
		return validationError("ffmpeg_args has %d entries, maximum is %d", len(args), maxFFmpegArgs)
	}
	for i, arg := range args {
		if len(arg) > maxFFmpegArgBytes {
			return validationError("ffmpeg_args[%d] is %d bytes, maximum is %d", i, len(arg), maxFFmpegArgBytes)
		}
		if idx := strings.IndexAny(arg, ffmpegArgForbidden); idx >= 0 {
			return validationError("ffmpeg_args[%d] contains forbidden character %q", i, arg[idx])
		}
	}
	return nil
}
