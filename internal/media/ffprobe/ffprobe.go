package ffprobe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"vpo/internal/language"
)

// DefaultTimeout bounds a single probe invocation.
const DefaultTimeout = 60 * time.Second

// ProbeError indicates the probe tool failed or returned unusable output.
type ProbeError struct {
	Path   string
	Stderr string
	Err    error
}

func (e *ProbeError) Error() string {
	msg := fmt.Sprintf("probe %s: %v", e.Path, e.Err)
	if excerpt := strings.TrimSpace(e.Stderr); excerpt != "" {
		if len(excerpt) > 300 {
			excerpt = excerpt[:300]
		}
		msg += ": " + excerpt
	}
	return msg
}

func (e *ProbeError) Unwrap() error { return e.Err }

// TrackInfo describes one stream of the container.
type TrackInfo struct {
	Index           int
	Type            string // video, audio, subtitle, attachment, other
	Codec           string
	Language        string // canonical ISO 639-2/B
	Title           string
	Default         bool
	Forced          bool
	Channels        int
	ChannelLayout   string
	Width           int
	Height          int
	FrameRate       float64
	ColorTransfer   string
	ColorPrimaries  string
	ColorSpace      string
	ColorRange      string
	DurationSeconds float64
	BitRate         int64
}

// IntrospectionResult is the typed view of one probed container.
type IntrospectionResult struct {
	ContainerFormat   string
	ContainerDuration float64
	ContainerTags     map[string]string
	Tracks            []TrackInfo
	Warnings          []string
}

type rawResult struct {
	Streams []rawStream `json:"streams"`
	Format  rawFormat   `json:"format"`
}

type rawStream struct {
	Index        int               `json:"index"`
	CodecName    string            `json:"codec_name"`
	CodecType    string            `json:"codec_type"`
	Duration     string            `json:"duration"`
	BitRate      string            `json:"bit_rate"`
	Width        json.Number       `json:"width"`
	Height       json.Number       `json:"height"`
	Channels     json.Number       `json:"channels"`
	ChannelLay   string            `json:"channel_layout"`
	RFrameRate   string            `json:"r_frame_rate"`
	AvgFrameRate string            `json:"avg_frame_rate"`
	ColorTrans   string            `json:"color_transfer"`
	ColorPrim    string            `json:"color_primaries"`
	ColorSpace   string            `json:"color_space"`
	ColorRange   string            `json:"color_range"`
	Disposition  map[string]int    `json:"disposition"`
	Tags         map[string]string `json:"tags"`
}

type rawFormat struct {
	FormatName string            `json:"format_name"`
	Duration   string            `json:"duration"`
	Tags       map[string]string `json:"tags"`
}

// Inspect executes the probe tool against path and returns the sanitized result.
func Inspect(ctx context.Context, binary, path string) (IntrospectionResult, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ffprobe"
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return IntrospectionResult{}, &ProbeError{Path: path, Err: errors.New("empty path")}
	}

	probeCtx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()

	cmd := exec.CommandContext(probeCtx, binary,
		"-v", "error", "-hide_banner",
		"-show_format", "-show_streams",
		"-of", "json", "--", path)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if probeCtx.Err() != nil {
			err = fmt.Errorf("%w: %w", err, probeCtx.Err())
		}
		return IntrospectionResult{}, &ProbeError{Path: path, Stderr: stderr.String(), Err: err}
	}

	var raw rawResult
	decoder := json.NewDecoder(bytes.NewReader(stdout.Bytes()))
	decoder.UseNumber()
	if err := decoder.Decode(&raw); err != nil {
		return IntrospectionResult{}, &ProbeError{Path: path, Stderr: stderr.String(), Err: fmt.Errorf("parse output: %w", err)}
	}

	return Convert(raw.Format, raw.Streams), nil
}

// Convert builds the sanitized IntrospectionResult from decoded tool output.
// Split from Inspect so tests can exercise sanitization without a binary.
func Convert(format rawFormat, streams []rawStream) IntrospectionResult {
	result := IntrospectionResult{
		ContainerFormat: sanitizeString(format.FormatName),
	}

	if duration, ok := parseNonNegativeFloat(format.Duration); ok {
		result.ContainerDuration = duration
	} else if strings.TrimSpace(format.Duration) != "" {
		result.warn("container duration %q invalid; dropped", format.Duration)
	}

	result.ContainerTags = sanitizeTags(format.Tags, &result)

	seen := make(map[int]struct{}, len(streams))
	for _, stream := range streams {
		if _, dup := seen[stream.Index]; dup {
			result.warn("duplicate stream index %d ignored", stream.Index)
			continue
		}
		seen[stream.Index] = struct{}{}
		result.Tracks = append(result.Tracks, convertStream(stream, &result))
	}
	return result
}

func convertStream(stream rawStream, result *IntrospectionResult) TrackInfo {
	track := TrackInfo{
		Index: stream.Index,
		Type:  normalizeTrackType(stream.CodecType),
		Codec: strings.ToLower(sanitizeString(stream.CodecName)),
	}

	tags := sanitizeTags(stream.Tags, result)
	track.Language = language.ExtractFromTags(tags)
	track.Title = tags["title"]
	track.Default = stream.Disposition["default"] != 0
	track.Forced = stream.Disposition["forced"] != 0

	if channels, ok := parseNonNegativeInt(stream.Channels); ok {
		track.Channels = channels
	} else if stream.Channels.String() != "" {
		result.warn("stream %d channels %q invalid; dropped", stream.Index, stream.Channels.String())
	}
	track.ChannelLayout = channelLayout(track.Channels, sanitizeString(stream.ChannelLay))

	if width, ok := parseNonNegativeInt(stream.Width); ok {
		track.Width = width
	} else if stream.Width.String() != "" {
		result.warn("stream %d width %q invalid; dropped", stream.Index, stream.Width.String())
	}
	if height, ok := parseNonNegativeInt(stream.Height); ok {
		track.Height = height
	} else if stream.Height.String() != "" {
		result.warn("stream %d height %q invalid; dropped", stream.Index, stream.Height.String())
	}

	if duration, ok := parseNonNegativeFloat(stream.Duration); ok && duration > 0 {
		track.DurationSeconds = duration
	} else {
		// Streams frequently omit per-stream duration; fall back to the container.
		track.DurationSeconds = result.ContainerDuration
	}

	if rate, ok := parseBitRate(stream.BitRate); ok {
		track.BitRate = rate
	}

	if track.Type == "video" {
		track.FrameRate = pickFrameRate(stream.RFrameRate, stream.AvgFrameRate, stream.Index, result)
		track.ColorTransfer = sanitizeString(stream.ColorTrans)
		track.ColorPrimaries = sanitizeString(stream.ColorPrim)
		track.ColorSpace = sanitizeString(stream.ColorSpace)
		track.ColorRange = sanitizeString(stream.ColorRange)
	}

	return track
}

func normalizeTrackType(codecType string) string {
	switch strings.ToLower(strings.TrimSpace(codecType)) {
	case "video":
		return "video"
	case "audio":
		return "audio"
	case "subtitle":
		return "subtitle"
	case "attachment":
		return "attachment"
	default:
		return "other"
	}
}

// pickFrameRate prefers the real frame rate, falls back to the average, and
// rejects the degenerate "0/0" form.
func pickFrameRate(real, avg string, index int, result *IntrospectionResult) float64 {
	if rate, ok := parseRational(real); ok {
		return rate
	}
	if rate, ok := parseRational(avg); ok {
		return rate
	}
	if strings.TrimSpace(real) != "" || strings.TrimSpace(avg) != "" {
		result.warn("stream %d frame rate %q/%q invalid; dropped", index, real, avg)
	}
	return 0
}

func channelLayout(channels int, reported string) string {
	if reported != "" {
		return strings.ToLower(reported)
	}
	switch channels {
	case 0:
		return ""
	case 1:
		return "mono"
	case 2:
		return "stereo"
	case 6:
		return "5.1"
	case 8:
		return "7.1"
	default:
		return fmt.Sprintf("%dch", channels)
	}
}

func (r *IntrospectionResult) warn(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}
