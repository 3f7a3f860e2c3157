package namemeta

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// FileMeta holds metadata parsed from a release filename.
type FileMeta struct {
	Title      string
	Year       int
	Season     int
	Episode    int
	Resolution string // normalized label, e.g. "1080p"
	Codec      string // lowercased codec token, e.g. "hevc"
	Extension  string // without the leading dot
}

var (
	whitespacePattern = regexp.MustCompile(`\s+`)
	yearPattern       = regexp.MustCompile(`(?:^|[\s._(\[])((?:19|20)\d{2})(?:[\s._)\]]|$)`)
	episodePattern    = regexp.MustCompile(`(?i)\bS(\d{1,2})[\s._]?E(\d{1,3})\b`)
	seasonOnlyPattern = regexp.MustCompile(`(?i)\bseason[\s._]?(\d{1,2})\b`)
	xEpisodePattern   = regexp.MustCompile(`(?i)\b(\d{1,2})x(\d{2,3})\b`)
	resolutionPattern = regexp.MustCompile(`(?i)\b(480p|576p|720p|1080[pi]|1440p|2160p|4320p|4k|8k)\b`)
	codecPattern      = regexp.MustCompile(`(?i)\b(hevc|x265|h[\s._-]?265|x264|h[\s._-]?264|avc|av1|vp9|xvid|divx|mpeg2)\b`)
)

var separatorReplacer = strings.NewReplacer("_", " ", ".", " ", "-", " ")

var titleCaser = cases.Title(language.English)

// Parse extracts metadata from the final path element of name.
func Parse(name string) FileMeta {
	base := filepath.Base(strings.TrimSpace(name))
	ext := strings.TrimPrefix(filepath.Ext(base), ".")
	stem := strings.TrimSuffix(base, filepath.Ext(base))

	meta := FileMeta{Extension: strings.ToLower(ext)}

	cutoff := len(stem)

	if m := episodePattern.FindStringSubmatchIndex(stem); m != nil {
		meta.Season = atoiSubmatch(stem, m, 1)
		meta.Episode = atoiSubmatch(stem, m, 2)
		cutoff = min(cutoff, m[0])
	} else if m := xEpisodePattern.FindStringSubmatchIndex(stem); m != nil {
		meta.Season = atoiSubmatch(stem, m, 1)
		meta.Episode = atoiSubmatch(stem, m, 2)
		cutoff = min(cutoff, m[0])
	} else if m := seasonOnlyPattern.FindStringSubmatchIndex(stem); m != nil {
		meta.Season = atoiSubmatch(stem, m, 1)
		cutoff = min(cutoff, m[0])
	}

	if m := yearPattern.FindStringSubmatchIndex(stem); m != nil {
		meta.Year = atoiSubmatch(stem, m, 1)
		cutoff = min(cutoff, m[0])
	}

	if m := resolutionPattern.FindStringSubmatchIndex(stem); m != nil {
		meta.Resolution = NormalizeResolution(stem[m[2]:m[3]])
		cutoff = min(cutoff, m[0])
	}

	if m := codecPattern.FindStringSubmatchIndex(stem); m != nil {
		meta.Codec = normalizeCodecToken(stem[m[2]:m[3]])
		cutoff = min(cutoff, m[0])
	}

	meta.Title = cleanTitle(stem[:cutoff])
	if meta.Title == "" {
		meta.Title = cleanTitle(stem)
	}
	return meta
}

// NormalizeResolution maps a resolution token to its canonical label.
func NormalizeResolution(token string) string {
	lowered := strings.ToLower(strings.TrimSpace(token))
	switch lowered {
	case "4k":
		return "2160p"
	case "8k":
		return "4320p"
	case "1080i":
		return "1080p"
	default:
		return lowered
	}
}

// ResolutionLabel maps pixel dimensions to the nearest standard label.
func ResolutionLabel(width, height int) string {
	if width <= 0 && height <= 0 {
		return ""
	}
	// Widths are more stable than heights for cropped content.
	switch {
	case width >= 7000 || height >= 4000:
		return "4320p"
	case width >= 3500 || height >= 2000:
		return "2160p"
	case width >= 2400 || height >= 1300:
		return "1440p"
	case width >= 1800 || height >= 1000:
		return "1080p"
	case width >= 1200 || height >= 700:
		return "720p"
	case width >= 1000 || height >= 570:
		return "576p"
	default:
		return "480p"
	}
}

// ResolutionRank orders resolution labels; larger means more pixels.
// Unknown labels rank lowest.
func ResolutionRank(label string) int {
	switch NormalizeResolution(label) {
	case "480p":
		return 1
	case "576p":
		return 2
	case "720p":
		return 3
	case "1080p":
		return 4
	case "1440p":
		return 5
	case "2160p":
		return 6
	case "4320p":
		return 7
	default:
		return 0
	}
}

func cleanTitle(value string) string {
	cleaned := separatorReplacer.Replace(value)
	cleaned = strings.NewReplacer("(", " ", ")", " ", "[", " ", "]", " ").Replace(cleaned)
	cleaned = whitespacePattern.ReplaceAllString(cleaned, " ")
	cleaned = strings.TrimSpace(cleaned)
	if cleaned == "" {
		return ""
	}
	return titleCaser.String(strings.ToLower(cleaned))
}

func normalizeCodecToken(token string) string {
	lowered := strings.ToLower(strings.TrimSpace(token))
	lowered = strings.NewReplacer(" ", "", ".", "", "_", "", "-", "").Replace(lowered)
	switch lowered {
	case "x265", "h265":
		return "hevc"
	case "x264", "h264", "avc":
		return "h264"
	default:
		return lowered
	}
}

func atoiSubmatch(s string, idx []int, group int) int {
	start, end := idx[2*group], idx[2*group+1]
	if start < 0 || end > len(s) {
		return 0
	}
	n, err := strconv.Atoi(s[start:end])
	if err != nil {
		return 0
	}
	return n
}

// Render substitutes parsed fields into a destination template. Recognized
// placeholders: {title} {year} {season} {episode} {resolution} {codec} {ext}.
// Fields that are unset render as fallback; season and episode are
// zero-padded to two digits.
func Render(template string, meta FileMeta, fallback string) string {
	if strings.TrimSpace(fallback) == "" {
		fallback = "unknown"
	}
	pick := func(value string) string {
		if strings.TrimSpace(value) == "" {
			return fallback
		}
		return value
	}
	pickInt := func(value int, format string) string {
		if value <= 0 {
			return fallback
		}
		return fmt.Sprintf(format, value)
	}
	replacer := strings.NewReplacer(
		"{title}", pick(meta.Title),
		"{year}", pickInt(meta.Year, "%d"),
		"{season}", pickInt(meta.Season, "%02d"),
		"{episode}", pickInt(meta.Episode, "%02d"),
		"{resolution}", pick(meta.Resolution),
		"{codec}", pick(meta.Codec),
		"{ext}", pick(meta.Extension),
	)
	return replacer.Replace(template)
}
