package language

import "strings"

// Undefined is the canonical code for unknown or unset languages.
const Undefined = "und"

type entry struct {
	code1   string   // ISO 639-1 (2-letter)
	code2B  string   // ISO 639-2/B bibliographic (canonical form)
	code2T  string   // ISO 639-2/T terminological, when it differs from 2/B
	display string   // Human-readable name
	words   []string // Full word forms (e.g. "english")
}

var languages = []entry{
	{"en", "eng", "", "English", []string{"english"}},
	{"es", "spa", "", "Spanish", []string{"spanish"}},
	{"fr", "fre", "fra", "French", []string{"french"}},
	{"de", "ger", "deu", "German", []string{"german"}},
	{"it", "ita", "", "Italian", []string{"italian"}},
	{"pt", "por", "", "Portuguese", []string{"portuguese"}},
	{"ja", "jpn", "", "Japanese", []string{"japanese"}},
	{"ko", "kor", "", "Korean", []string{"korean"}},
	{"zh", "chi", "zho", "Chinese", []string{"chinese", "mandarin"}},
	{"ru", "rus", "", "Russian", []string{"russian"}},
	{"ar", "ara", "", "Arabic", []string{"arabic"}},
	{"hi", "hin", "", "Hindi", []string{"hindi"}},
	{"nl", "dut", "nld", "Dutch", []string{"dutch"}},
	{"pl", "pol", "", "Polish", []string{"polish"}},
	{"sv", "swe", "", "Swedish", []string{"swedish"}},
	{"da", "dan", "", "Danish", []string{"danish"}},
	{"no", "nor", "", "Norwegian", []string{"norwegian"}},
	{"fi", "fin", "", "Finnish", []string{"finnish"}},
	{"cs", "cze", "ces", "Czech", []string{"czech"}},
	{"el", "gre", "ell", "Greek", []string{"greek"}},
	{"he", "heb", "", "Hebrew", []string{"hebrew"}},
	{"hu", "hun", "", "Hungarian", []string{"hungarian"}},
	{"ro", "rum", "ron", "Romanian", []string{"romanian"}},
	{"sk", "slo", "slk", "Slovak", []string{"slovak"}},
	{"th", "tha", "", "Thai", []string{"thai"}},
	{"tr", "tur", "", "Turkish", []string{"turkish"}},
	{"uk", "ukr", "", "Ukrainian", []string{"ukrainian"}},
	{"vi", "vie", "", "Vietnamese", []string{"vietnamese"}},
	{"is", "ice", "isl", "Icelandic", []string{"icelandic"}},
	{"fa", "per", "fas", "Persian", []string{"persian", "farsi"}},
	{"ms", "may", "msa", "Malay", []string{"malay"}},
	{"sq", "alb", "sqi", "Albanian", []string{"albanian"}},
	{"hy", "arm", "hye", "Armenian", []string{"armenian"}},
	{"eu", "baq", "eus", "Basque", []string{"basque"}},
	{"my", "bur", "mya", "Burmese", []string{"burmese"}},
	{"ka", "geo", "kat", "Georgian", []string{"georgian"}},
	{"mk", "mac", "mkd", "Macedonian", []string{"macedonian"}},
	{"mi", "mao", "mri", "Maori", []string{"maori"}},
	{"cy", "wel", "cym", "Welsh", []string{"welsh"}},
}

// Index maps built at init time.
var (
	byCode1 map[string]*entry
	byCode3 map[string]*entry
	byWord  map[string]*entry
)

func init() {
	byCode1 = make(map[string]*entry, len(languages))
	byCode3 = make(map[string]*entry, len(languages)*2)
	byWord = make(map[string]*entry, len(languages))
	for i := range languages {
		e := &languages[i]
		byCode1[e.code1] = e
		byCode3[e.code2B] = e
		if e.code2T != "" {
			byCode3[e.code2T] = e
		}
		for _, w := range e.words {
			byWord[w] = e
		}
	}
}

func lookup(code string) *entry {
	code = strings.ToLower(strings.TrimSpace(code))
	if code == "" {
		return nil
	}
	if e, ok := byCode1[code]; ok {
		return e
	}
	if e, ok := byCode3[code]; ok {
		return e
	}
	if e, ok := byWord[code]; ok {
		return e
	}
	return nil
}

// Normalize converts any recognized language code or word to the canonical
// ISO 639-2/B form. Unrecognized three-letter codes pass through lowercased so
// rare languages survive a round trip; everything else becomes Undefined.
func Normalize(code string) string {
	code = strings.ToLower(strings.TrimSpace(code))
	if code == "" || code == Undefined {
		return Undefined
	}
	if e := lookup(code); e != nil {
		return e.code2B
	}
	if len(code) == 3 && isAlpha(code) {
		return code
	}
	return Undefined
}

// IsCrossStandard reports whether normalizing code changed its spelling, i.e.
// the input used 639-1 or 639-2/T rather than the canonical bibliographic form.
func IsCrossStandard(code string) bool {
	trimmed := strings.ToLower(strings.TrimSpace(code))
	if trimmed == "" {
		return false
	}
	return Normalize(trimmed) != trimmed && Normalize(trimmed) != Undefined
}

// Match reports whether two language codes identify the same language after
// canonicalization. Empty and "und" inputs are undefined; undefined matches
// only undefined.
func Match(a, b string) bool {
	return Normalize(a) == Normalize(b)
}

// Display returns a human-readable language name for any recognized code.
// Returns "Unknown" for empty or undefined input, or the uppercased code for
// unrecognized input.
func Display(code string) string {
	trimmed := strings.TrimSpace(code)
	if trimmed == "" || strings.EqualFold(trimmed, Undefined) {
		return "Unknown"
	}
	if e := lookup(trimmed); e != nil {
		return e.display
	}
	return strings.ToUpper(trimmed)
}

// NormalizeList canonicalizes and deduplicates a list of language codes,
// dropping entries that normalize to Undefined.
func NormalizeList(codes []string) []string {
	if len(codes) == 0 {
		return nil
	}
	normalized := make([]string, 0, len(codes))
	seen := make(map[string]struct{}, len(codes))
	for _, code := range codes {
		canonical := Normalize(code)
		if canonical == Undefined {
			continue
		}
		if _, ok := seen[canonical]; ok {
			continue
		}
		seen[canonical] = struct{}{}
		normalized = append(normalized, canonical)
	}
	return normalized
}

// ExtractFromTags extracts and normalizes the language from stream metadata tags.
// Checks common tag keys: language, language_ietf, lang.
func ExtractFromTags(tags map[string]string) string {
	if len(tags) == 0 {
		return Undefined
	}
	for _, key := range []string{"language", "language_ietf", "lang"} {
		if value, ok := tags[key]; ok {
			value = strings.TrimSpace(strings.ReplaceAll(value, "\x00", ""))
			if value != "" {
				return Normalize(value)
			}
		}
	}
	return Undefined
}

func isAlpha(value string) bool {
	for _, r := range value {
		if r < 'a' || r > 'z' {
			return false
		}
	}
	return true
}
