package ffprobe

import (
	"encoding/json"
	"strconv"
	"strings"
	"unicode/utf8"
)

const (
	maxTagKeyBytes   = 256
	maxTagValueBytes = 4096
)

// sanitizeString replaces invalid UTF-8 sequences and strips NUL bytes.
func sanitizeString(value string) string {
	value = strings.ReplaceAll(value, "\x00", "")
	if utf8.ValidString(value) {
		return strings.TrimSpace(value)
	}
	return strings.TrimSpace(strings.ToValidUTF8(value, "�"))
}

// sanitizeTags case-folds keys, sanitizes values, and drops entries whose key
// or value exceeds the size limits, recording a warning for each drop.
func sanitizeTags(tags map[string]string, result *IntrospectionResult) map[string]string {
	if len(tags) == 0 {
		return nil
	}
	sanitized := make(map[string]string, len(tags))
	for key, value := range tags {
		folded := strings.ToLower(sanitizeString(key))
		if folded == "" {
			continue
		}
		if len(folded) > maxTagKeyBytes {
			result.warn("tag key over %d bytes dropped", maxTagKeyBytes)
			continue
		}
		cleaned := sanitizeString(value)
		if len(cleaned) > maxTagValueBytes {
			result.warn("tag %q value over %d bytes dropped", folded, maxTagValueBytes)
			continue
		}
		sanitized[folded] = cleaned
	}
	if len(sanitized) == 0 {
		return nil
	}
	return sanitized
}

func parseNonNegativeFloat(value string) (float64, bool) {
	cleaned := strings.TrimSpace(value)
	if cleaned == "" {
		return 0, false
	}
	parsed, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || parsed < 0 {
		return 0, false
	}
	return parsed, true
}

func parseNonNegativeInt(value json.Number) (int, bool) {
	cleaned := strings.TrimSpace(value.String())
	if cleaned == "" {
		return 0, false
	}
	parsed, err := strconv.Atoi(cleaned)
	if err != nil || parsed < 0 {
		return 0, false
	}
	return parsed, true
}

func parseBitRate(value string) (int64, bool) {
	cleaned := strings.TrimSpace(value)
	if cleaned == "" {
		return 0, false
	}
	parsed, err := strconv.ParseInt(cleaned, 10, 64)
	if err != nil || parsed < 0 {
		return 0, false
	}
	return parsed, true
}

// parseRational parses ffprobe's "num/den" frame-rate form, also accepting a
// bare decimal. Zero denominators and non-positive results are rejected.
func parseRational(value string) (float64, bool) {
	cleaned := strings.TrimSpace(value)
	if cleaned == "" {
		return 0, false
	}
	if num, den, found := strings.Cut(cleaned, "/"); found {
		n, errN := strconv.ParseFloat(strings.TrimSpace(num), 64)
		d, errD := strconv.ParseFloat(strings.TrimSpace(den), 64)
		if errN != nil || errD != nil || d == 0 || n <= 0 {
			return 0, false
		}
		return n / d, true
	}
	parsed, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || parsed <= 0 {
		return 0, false
	}
	return parsed, true
}
