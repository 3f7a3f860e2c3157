package plan

import (
	"strings"

	"vpo/internal/catalog"
	"vpo/internal/language"
	"vpo/internal/policy"
)

// TrackType is the resolved role of a track within a policy evaluation.
type TrackType string

const (
	TypeVideo              TrackType = "video"
	TypeAudioMain          TrackType = "audio_main"
	TypeAudioAlternate     TrackType = "audio_alternate"
	TypeAudioCommentary    TrackType = "audio_commentary"
	TypeAudioMusic         TrackType = "audio_music"
	TypeAudioSFX           TrackType = "audio_sfx"
	TypeAudioNonSpeech     TrackType = "audio_non_speech"
	TypeSubtitleMain       TrackType = "subtitle_main"
	TypeSubtitleForced     TrackType = "subtitle_forced"
	TypeSubtitleCommentary TrackType = "subtitle_commentary"
	TypeAttachment         TrackType = "attachment"
)

// DetectionMethod names the signal source that decided a classification.
type DetectionMethod string

const (
	MethodMetadata      DetectionMethod = "metadata"
	MethodTranscription DetectionMethod = "transcription"
	MethodHeuristic     DetectionMethod = "heuristic"
)

// Signals carries the optional analysis inputs for one evaluation.
type Signals struct {
	Transcriptions  map[int64]*catalog.TranscriptionResult
	Classifications map[int64]*catalog.TrackClassification
	Analyses        map[int64]*catalog.LanguageAnalysis
	ContainerTags   map[string]string
	PluginMetadata  map[string]map[string]string
}

// Classification is one track's resolved role plus how it was decided.
type Classification struct {
	Type   TrackType
	Method DetectionMethod
}

// transcriptionTypeMap accepts both the bare verdicts emitted by transcription
// plugins and the resolved track-type values the analyze phase persists.
var transcriptionTypeMap = map[string]TrackType{
	"commentary":                TypeAudioCommentary,
	"music":                     TypeAudioMusic,
	"sfx":                       TypeAudioSFX,
	"non_speech":                TypeAudioNonSpeech,
	string(TypeAudioCommentary): TypeAudioCommentary,
	string(TypeAudioMusic):      TypeAudioMusic,
	string(TypeAudioSFX):        TypeAudioSFX,
	string(TypeAudioNonSpeech):  TypeAudioNonSpeech,
}

// ClassifyTrack resolves the role of a single track. Title keywords win over
// transcription verdicts, which win over language-preference heuristics.
func ClassifyTrack(track *catalog.Track, pol *policy.Policy, signals Signals) Classification {
	switch strings.ToLower(track.TrackType) {
	case "video":
		return Classification{Type: TypeVideo, Method: MethodMetadata}
	case "attachment", "other":
		return Classification{Type: TypeAttachment, Method: MethodMetadata}
	case "subtitle":
		return classifySubtitle(track, pol)
	case "audio":
		return classifyAudio(track, pol, signals)
	}
	return Classification{Type: TypeAttachment, Method: MethodHeuristic}
}

func classifySubtitle(track *catalog.Track, pol *policy.Policy) Classification {
	if titleMatchesAny(track.Title, pol.Config.CommentaryPatterns) {
		return Classification{Type: TypeSubtitleCommentary, Method: MethodMetadata}
	}
	if track.Forced {
		return Classification{Type: TypeSubtitleForced, Method: MethodMetadata}
	}
	return Classification{Type: TypeSubtitleMain, Method: MethodHeuristic}
}

func classifyAudio(track *catalog.Track, pol *policy.Policy, signals Signals) Classification {
	if titleMatchesAny(track.Title, pol.Config.CommentaryPatterns) {
		return Classification{Type: TypeAudioCommentary, Method: MethodMetadata}
	}
	if titleMatchesAny(track.Title, pol.Config.MusicPatterns) {
		return Classification{Type: TypeAudioMusic, Method: MethodMetadata}
	}
	if titleMatchesAny(track.Title, pol.Config.SFXPatterns) {
		return Classification{Type: TypeAudioSFX, Method: MethodMetadata}
	}

	if pol.Config.Transcription.CommentaryFromTranscription {
		if stored, ok := signals.Classifications[track.ID]; ok {
			if mapped, known := transcriptionTypeMap[strings.ToLower(stored.TrackType)]; known {
				return Classification{Type: mapped, Method: MethodTranscription}
			}
		}
	}

	for _, preferred := range pol.Config.AudioLanguagePreference {
		if language.Match(track.Language, preferred) {
			return Classification{Type: TypeAudioMain, Method: MethodHeuristic}
		}
	}
	if len(pol.Config.AudioLanguagePreference) == 0 {
		return Classification{Type: TypeAudioMain, Method: MethodHeuristic}
	}
	return Classification{Type: TypeAudioAlternate, Method: MethodHeuristic}
}

func titleMatchesAny(title string, patterns []string) bool {
	if title == "" {
		return false
	}
	lowered := strings.ToLower(title)
	for _, pattern := range patterns {
		if pattern == "" {
			continue
		}
		if strings.Contains(lowered, strings.ToLower(pattern)) {
			return true
		}
	}
	return false
}
