package policy

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"vpo/internal/catalog"
	"vpo/internal/language"
)

// Condition kinds.
const (
	CondTrackExists       = "track_exists"
	CondContainer         = "container"
	CondResolution        = "resolution"
	CondResolutionUnder   = "resolution_under"
	CondFileSizeUnder     = "file_size_under"
	CondFileSizeOver      = "file_size_over"
	CondDurationUnder     = "duration_under"
	CondDurationOver      = "duration_over"
	CondCodecMatches      = "codec_matches"
	CondSubtitleLangExists = "subtitle_language_exists"
	CondAudioCodecExists  = "audio_codec_exists"
	CondPluginMetadata    = "plugin_metadata"
	CondAnd               = "and"
	CondOr                = "or"
	CondNot               = "not"
)

// Condition is one decoded predicate: a single leaf or a combinator.
// The YAML form is a one-key mapping naming the kind.
type Condition struct {
	Kind string

	TrackExists    *TrackExistsCond
	Strings        []string // container, resolution, codec_matches
	Token          string   // resolution_under, subtitle_language_exists, audio_codec_exists
	Size           string   // file_size_under / file_size_over
	Seconds        float64  // duration_under / duration_over
	PluginMetadata *PluginMetadataCond
	Children       []Condition // and / or; not uses Children[0]
}

// TrackExistsCond matches when any track satisfies every set field.
type TrackExistsCond struct {
	Type       string `yaml:"type"`
	Language   string `yaml:"language"`
	Codec      string `yaml:"codec"`
	TitleRegex string `yaml:"title_regex"`

	titlePattern *regexp.Regexp
}

// PluginMetadataCond compares one field of a plugin's metadata blob.
type PluginMetadataCond struct {
	Plugin   string `yaml:"plugin"`
	Field    string `yaml:"field"`
	Value    string `yaml:"value"`
	Operator string `yaml:"operator"`
}

var conditionKinds = map[string]struct{}{
	CondTrackExists: {}, CondContainer: {}, CondResolution: {},
	CondResolutionUnder: {}, CondFileSizeUnder: {}, CondFileSizeOver: {},
	CondDurationUnder: {}, CondDurationOver: {}, CondCodecMatches: {},
	CondSubtitleLangExists: {}, CondAudioCodecExists: {}, CondPluginMetadata: {},
	CondAnd: {}, CondOr: {}, CondNot: {},
}

// UnmarshalYAML decodes the one-key mapping form.
func (c *Condition) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode || len(node.Content) != 2 {
		return fmt.Errorf("condition must be a single-key mapping, got %s", node.Tag)
	}
	key := node.Content[0].Value
	value := node.Content[1]
	if _, ok := conditionKinds[key]; !ok {
		return fmt.Errorf("unknown condition %q", key)
	}
	c.Kind = key

	switch key {
	case CondTrackExists:
		c.TrackExists = &TrackExistsCond{}
		return value.Decode(c.TrackExists)
	case CondContainer, CondResolution, CondCodecMatches:
		return value.Decode(&c.Strings)
	case CondResolutionUnder, CondSubtitleLangExists, CondAudioCodecExists:
		return value.Decode(&c.Token)
	case CondFileSizeUnder, CondFileSizeOver:
		return value.Decode(&c.Size)
	case CondDurationUnder, CondDurationOver:
		return value.Decode(&c.Seconds)
	case CondPluginMetadata:
		c.PluginMetadata = &PluginMetadataCond{}
		return value.Decode(c.PluginMetadata)
	case CondAnd, CondOr:
		return value.Decode(&c.Children)
	case CondNot:
		var child Condition
		if err := value.Decode(&child); err != nil {
			return err
		}
		c.Children = []Condition{child}
		return nil
	}
	return nil
}

// EvalInput is the file state a condition is evaluated against.
type EvalInput struct {
	File           *catalog.File
	Tracks         []*catalog.Track
	ContainerTags  map[string]string
	PluginMetadata map[string]map[string]string
}

// Matches evaluates the condition. The second return is a short human
// explanation used in traces and skip reasons.
func (c *Condition) Matches(input EvalInput) (bool, string) {
	switch c.Kind {
	case CondTrackExists:
		return c.TrackExists.matches(input)
	case CondContainer:
		format := ""
		if input.File != nil {
			format = input.File.ContainerFormat
		}
		for _, want := range c.Strings {
			if containerMatches(format, want) {
				return true, fmt.Sprintf("container %s", want)
			}
		}
		return false, "container"
	case CondResolution:
		res := fileResolution(input)
		for _, want := range c.Strings {
			if strings.EqualFold(res, normalizeResolutionToken(want)) {
				return true, fmt.Sprintf("resolution %s", want)
			}
		}
		return false, "resolution"
	case CondResolutionUnder:
		return resolutionRank(fileResolution(input)) < resolutionRank(normalizeResolutionToken(c.Token)),
			fmt.Sprintf("resolution under %s", c.Token)
	case CondFileSizeUnder:
		limit, err := ParseSize(c.Size)
		return err == nil && input.File != nil && input.File.Size < limit, fmt.Sprintf("size under %s", c.Size)
	case CondFileSizeOver:
		limit, err := ParseSize(c.Size)
		return err == nil && input.File != nil && input.File.Size > limit, fmt.Sprintf("size over %s", c.Size)
	case CondDurationUnder:
		return input.File != nil && input.File.DurationSeconds < c.Seconds, fmt.Sprintf("duration under %gs", c.Seconds)
	case CondDurationOver:
		return input.File != nil && input.File.DurationSeconds > c.Seconds, fmt.Sprintf("duration over %gs", c.Seconds)
	case CondCodecMatches:
		for _, track := range input.Tracks {
			if track.TrackType != "video" {
				continue
			}
			for _, want := range c.Strings {
				if strings.EqualFold(track.Codec, want) {
					return true, fmt.Sprintf("codec %s", want)
				}
			}
		}
		return false, "codec"
	case CondSubtitleLangExists:
		for _, track := range input.Tracks {
			if track.TrackType == "subtitle" && language.Match(track.Language, c.Token) {
				return true, fmt.Sprintf("subtitle %s exists", c.Token)
			}
		}
		return false, fmt.Sprintf("subtitle %s", c.Token)
	case CondAudioCodecExists:
		for _, track := range input.Tracks {
			if track.TrackType == "audio" && strings.EqualFold(track.Codec, c.Token) {
				return true, fmt.Sprintf("audio codec %s exists", c.Token)
			}
		}
		return false, fmt.Sprintf("audio codec %s", c.Token)
	case CondPluginMetadata:
		return c.PluginMetadata.matches(input)
	case CondAnd:
		var parts []string
		for i := range c.Children {
			ok, why := c.Children[i].Matches(input)
			if !ok {
				return false, why
			}
			parts = append(parts, why)
		}
		return true, strings.Join(parts, " and ")
	case CondOr:
		for i := range c.Children {
			if ok, why := c.Children[i].Matches(input); ok {
				return true, why
			}
		}
		return false, "or"
	case CondNot:
		if len(c.Children) != 1 {
			return false, "not"
		}
		ok, why := c.Children[0].Matches(input)
		return !ok, "not " + why
	}
	return false, "unknown"
}

func (tc *TrackExistsCond) matches(input EvalInput) (bool, string) {
	for _, track := range input.Tracks {
		if tc.Type != "" && !strings.EqualFold(track.TrackType, tc.Type) {
			continue
		}
		if tc.Language != "" && !language.Match(track.Language, tc.Language) {
			continue
		}
		if tc.Codec != "" && !strings.EqualFold(track.Codec, tc.Codec) {
			continue
		}
		if tc.TitleRegex != "" {
			if tc.titlePattern == nil {
				pattern, err := regexp.Compile("(?i)" + tc.TitleRegex)
				if err != nil {
					continue
				}
				tc.titlePattern = pattern
			}
			if !tc.titlePattern.MatchString(track.Title) {
				continue
			}
		}
		return true, fmt.Sprintf("track %s exists", tc.Type)
	}
	return false, fmt.Sprintf("track %s", tc.Type)
}

func (pc *PluginMetadataCond) matches(input EvalInput) (bool, string) {
	why := fmt.Sprintf("plugin %s.%s %s %s", pc.Plugin, pc.Field, pc.Operator, pc.Value)
	fields, ok := input.PluginMetadata[pc.Plugin]
	if !ok {
		return false, why
	}
	actual, ok := fields[pc.Field]
	if !ok {
		return false, why
	}
	op := pc.Operator
	if op == "" {
		op = "eq"
	}
	switch op {
	case "eq":
		return strings.EqualFold(actual, pc.Value), why
	case "ne":
		return !strings.EqualFold(actual, pc.Value), why
	case "contains":
		return strings.Contains(strings.ToLower(actual), strings.ToLower(pc.Value)), why
	case "lt", "lte", "gt", "gte":
		a, errA := strconv.ParseFloat(actual, 64)
		b, errB := strconv.ParseFloat(pc.Value, 64)
		if errA != nil || errB != nil {
			return false, why
		}
		switch op {
		case "lt":
			return a < b, why
		case "lte":
			return a <= b, why
		case "gt":
			return a > b, why
		default:
			return a >= b, why
		}
	}
	return false, why
}

func containerMatches(format, want string) bool {
	format = strings.ToLower(format)
	want = strings.ToLower(want)
	if format == want {
		return true
	}
	// ffprobe reports matroska files as "matroska,webm".
	for _, part := range strings.Split(format, ",") {
		if strings.TrimSpace(part) == want {
			return true
		}
	}
	return false
}

func fileResolution(input EvalInput) string {
	if input.File != nil && input.File.Resolution != "" {
		return input.File.Resolution
	}
	for _, track := range input.Tracks {
		if track.TrackType == "video" && track.Height > 0 {
			return resolutionLabelForHeight(track.Height)
		}
	}
	return ""
}

var resolutionRanks = map[string]int{
	"480p": 1, "720p": 2, "1080p": 3, "1440p": 4, "2160p": 5, "8k": 6,
}

func normalizeResolutionToken(token string) string {
	token = strings.ToLower(strings.TrimSpace(token))
	if token == "4k" {
		return "2160p"
	}
	return token
}

func resolutionRank(label string) int {
	return resolutionRanks[normalizeResolutionToken(label)]
}

func resolutionLabelForHeight(height int) string {
	switch {
	case height <= 0:
		return ""
	case height <= 576:
		return "480p"
	case height <= 720:
		return "720p"
	case height <= 1080:
		return "1080p"
	case height <= 1440:
		return "1440p"
	case height <= 2160:
		return "2160p"
	default:
		return "8k"
	}
}

var sizePattern = regexp.MustCompile(`^(\d+(?:\.\d+)?)\s*([kKmMgGtT]?)[bB]?$`)

// ParseSize converts "700M", "4.5G", or a raw byte count into bytes.
func ParseSize(value string) (int64, error) {
	match := sizePattern.FindStringSubmatch(strings.TrimSpace(value))
	if match == nil {
		return 0, fmt.Errorf("malformed size %q", value)
	}
	amount, err := strconv.ParseFloat(match[1], 64)
	if err != nil {
		return 0, err
	}
	switch strings.ToLower(match[2]) {
	case "k":
		amount *= 1 << 10
	case "m":
		amount *= 1 << 20
	case "g":
		amount *= 1 << 30
	case "t":
		amount *= 1 << 40
	}
	return int64(amount), nil
}
