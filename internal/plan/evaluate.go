package plan

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"vpo/internal/catalog"
	"vpo/internal/language"
	"vpo/internal/policy"
)

// Evaluate computes the plan that brings a file's track layout in line with
// the policy. It is pure: no I/O, no clock reads besides the CreatedAt
// stamp, deterministic tie-breaking throughout.
func Evaluate(file *catalog.File, tracks []*catalog.Track, pol *policy.Policy, signals Signals) (*Plan, error) {
	if pol == nil {
		return nil, fmt.Errorf("policy is nil")
	}

	result := &Plan{
		PolicyName:    pol.Name,
		PolicyVersion: pol.SchemaVersion,
		CreatedAt:     time.Now().UTC(),
	}
	if len(tracks) == 0 {
		return result, nil
	}

	classByIndex := make(map[int]Classification, len(tracks))
	for _, track := range tracks {
		classByIndex[track.TrackIndex] = ClassifyTrack(track, pol, signals)
	}

	dispositions := computeDispositions(tracks, classByIndex, pol)
	result.Dispositions = dispositions

	kept := make([]*catalog.Track, 0, len(tracks))
	for i, track := range tracks {
		if dispositions[i].Keep {
			kept = append(kept, track)
		}
	}

	for _, d := range dispositions {
		if !d.Keep {
			result.Actions = append(result.Actions, Action{
				Kind:   ActionRemoveTrack,
				Track:  d.Track,
				Reason: d.Reason,
			})
		}
	}

	ordered := desiredOrder(kept, classByIndex, pol)
	if orderChanged(kept, ordered) {
		refs := make([]TrackRef, len(ordered))
		for i, track := range ordered {
			refs[i] = ref(track)
		}
		result.Actions = append(result.Actions, Action{Kind: ActionReorder, Order: refs})
	}

	result.Actions = append(result.Actions, defaultFlagActions(ordered, classByIndex, pol)...)
	result.Actions = append(result.Actions, languageActions(kept, pol, signals)...)

	result.RequiresRemux = result.HasStructuralChange()
	if file != nil && !result.RequiresRemux && len(result.Actions) > 0 && !editableContainer(file.ContainerFormat) {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("container %s does not support in-place metadata edits", file.ContainerFormat))
	}
	return result, nil
}

// editableContainer reports whether the probed container supports in-place
// metadata edits. Probe output lists aliases comma-separated.
func editableContainer(containerFormat string) bool {
	if containerFormat == "" {
		return true
	}
	for _, token := range strings.Split(containerFormat, ",") {
		switch strings.TrimSpace(strings.ToLower(token)) {
		case "matroska", "webm", "mkv":
			return true
		}
	}
	return false
}

func ref(track *catalog.Track) TrackRef {
	return TrackRef{ID: track.ID, TrackIndex: track.TrackIndex}
}

// computeDispositions marks unpreferred-language tracks for removal, unless
// exempt: commentary and forced tracks stay, and the last track of a type is
// never removed.
func computeDispositions(tracks []*catalog.Track, classes map[int]Classification, pol *policy.Policy) []Disposition {
	dispositions := make([]Disposition, len(tracks))
	for i, track := range tracks {
		dispositions[i] = Disposition{Track: ref(track), Keep: true}
	}
	if !pol.Config.RemoveUnpreferredTracks {
		return dispositions
	}

	countByType := map[string]int{}
	for _, track := range tracks {
		countByType[strings.ToLower(track.TrackType)]++
	}
	keptByType := map[string]int{}
	for k, v := range countByType {
		keptByType[k] = v
	}

	for i, track := range tracks {
		baseType := strings.ToLower(track.TrackType)
		var prefs []string
		switch baseType {
		case "audio":
			prefs = pol.Config.AudioLanguagePreference
		case "subtitle":
			prefs = pol.Config.SubtitleLanguagePreference
		default:
			continue
		}
		if len(prefs) == 0 {
			continue
		}
		if languageInPrefs(track.Language, prefs) {
			continue
		}
		class := classes[track.TrackIndex]
		if class.Type == TypeAudioCommentary || class.Type == TypeSubtitleCommentary {
			continue
		}
		if track.Forced || class.Type == TypeSubtitleForced {
			continue
		}
		if keptByType[baseType] <= 1 {
			continue
		}
		keptByType[baseType]--
		dispositions[i].Keep = false
		dispositions[i].Reason = fmt.Sprintf("language %s not in preference %v",
			language.Normalize(track.Language), prefs)
	}
	return dispositions
}

func languageInPrefs(lang string, prefs []string) bool {
	for _, pref := range prefs {
		if language.Match(lang, pref) {
			return true
		}
	}
	return false
}

func preferenceIndex(lang string, prefs []string) int {
	for i, pref := range prefs {
		if language.Match(lang, pref) {
			return i
		}
	}
	return len(prefs)
}

// desiredOrder sorts tracks by (track_order position, language preference
// index, original index). Only audio_main sorts by the audio preference and
// subtitle_main by the subtitle preference; everything else keeps relative
// order within its slot.
func desiredOrder(tracks []*catalog.Track, classes map[int]Classification, pol *policy.Policy) []*catalog.Track {
	orderPos := map[TrackType]int{}
	for i, name := range pol.Config.TrackOrder {
		orderPos[TrackType(name)] = i
	}
	unlisted := len(pol.Config.TrackOrder)

	type keyed struct {
		track    *catalog.Track
		slot     int
		prefIdx  int
		original int
	}
	items := make([]keyed, len(tracks))
	for i, track := range tracks {
		class := classes[track.TrackIndex]
		slot, ok := orderPos[class.Type]
		if !ok {
			slot = unlisted
		}
		prefIdx := 0
		switch class.Type {
		case TypeAudioMain:
			prefIdx = preferenceIndex(track.Language, pol.Config.AudioLanguagePreference)
		case TypeSubtitleMain:
			prefIdx = preferenceIndex(track.Language, pol.Config.SubtitleLanguagePreference)
		}
		items[i] = keyed{track: track, slot: slot, prefIdx: prefIdx, original: i}
	}

	sort.SliceStable(items, func(a, b int) bool {
		if items[a].slot != items[b].slot {
			return items[a].slot < items[b].slot
		}
		if items[a].prefIdx != items[b].prefIdx {
			return items[a].prefIdx < items[b].prefIdx
		}
		return items[a].original < items[b].original
	})

	ordered := make([]*catalog.Track, len(items))
	for i, item := range items {
		ordered[i] = item.track
	}
	return ordered
}

func orderChanged(current, desired []*catalog.Track) bool {
	if len(current) != len(desired) {
		return true
	}
	for i := range current {
		if current[i].TrackIndex != desired[i].TrackIndex {
			return true
		}
	}
	return false
}

// defaultFlagActions picks the default track per policy and clears stray
// defaults. The preferred audio is the first non-commentary track matching
// the preference list in preference order; fall back to the first
// non-commentary track, then the first audio track.
func defaultFlagActions(ordered []*catalog.Track, classes map[int]Classification, pol *policy.Policy) []Action {
	var actions []Action
	flags := pol.Config.DefaultFlags

	var audio []*catalog.Track
	var subs []*catalog.Track
	for _, track := range ordered {
		switch strings.ToLower(track.TrackType) {
		case "audio":
			audio = append(audio, track)
		case "subtitle":
			subs = append(subs, track)
		}
	}

	audioMatched := false
	if flags.SetPreferredAudioDefault && len(audio) > 0 {
		preferred := pickPreferredAudio(audio, classes, pol)
		if languageInPrefs(preferred.Language, pol.Config.AudioLanguagePreference) {
			audioMatched = true
		}
		if !preferred.Default {
			actions = append(actions, Action{Kind: ActionSetDefault, Track: ref(preferred), Flag: true})
		}
		if flags.ClearOtherDefaults {
			for _, track := range audio {
				if track != preferred && track.Default {
					actions = append(actions, Action{Kind: ActionSetDefault, Track: ref(track), Flag: false})
				}
			}
		}
	}

	wantSubtitleDefault := flags.SetPreferredSubtitleDefault ||
		(flags.SubtitleDefaultOnNoAudio && flags.SetPreferredAudioDefault && !audioMatched)
	if wantSubtitleDefault && len(subs) > 0 {
		preferred := pickPreferredSubtitle(subs, classes, pol)
		if !preferred.Default {
			actions = append(actions, Action{Kind: ActionSetDefault, Track: ref(preferred), Flag: true})
		}
		if flags.ClearOtherDefaults {
			for _, track := range subs {
				if track != preferred && track.Default {
					actions = append(actions, Action{Kind: ActionSetDefault, Track: ref(track), Flag: false})
				}
			}
		}
	}
	return actions
}

func pickPreferredAudio(audio []*catalog.Track, classes map[int]Classification, pol *policy.Policy) *catalog.Track {
	var firstNonCommentary *catalog.Track
	for _, pref := range pol.Config.AudioLanguagePreference {
		for _, track := range audio {
			if classes[track.TrackIndex].Type == TypeAudioCommentary {
				continue
			}
			if language.Match(track.Language, pref) {
				return track
			}
		}
	}
	for _, track := range audio {
		if classes[track.TrackIndex].Type != TypeAudioCommentary {
			firstNonCommentary = track
			break
		}
	}
	if firstNonCommentary != nil {
		return firstNonCommentary
	}
	return audio[0]
}

func pickPreferredSubtitle(subs []*catalog.Track, classes map[int]Classification, pol *policy.Policy) *catalog.Track {
	var firstMain *catalog.Track
	for _, pref := range pol.Config.SubtitleLanguagePreference {
		for _, track := range subs {
			if classes[track.TrackIndex].Type != TypeSubtitleMain {
				continue
			}
			if language.Match(track.Language, pref) {
				return track
			}
		}
	}
	for _, track := range subs {
		if classes[track.TrackIndex].Type == TypeSubtitleMain {
			firstMain = track
			break
		}
	}
	if firstMain != nil {
		return firstMain
	}
	return subs[0]
}

// languageActions relabels tracks from high-confidence transcription
// verdicts, skipping tracks already labeled with a matching code.
func languageActions(tracks []*catalog.Track, pol *policy.Policy, signals Signals) []Action {
	if !pol.Config.Transcription.UpdateLanguage {
		return nil
	}
	threshold := pol.Config.Transcription.ConfidenceThreshold
	var actions []Action
	for _, track := range tracks {
		result, ok := signals.Transcriptions[track.ID]
		if !ok || result.Confidence < threshold {
			continue
		}
		detected := language.Normalize(result.Language)
		if detected == language.Undefined {
			continue
		}
		if language.Match(track.Language, detected) {
			continue
		}
		actions = append(actions, Action{
			Kind:   ActionSetLanguage,
			Track:  ref(track),
			Value:  detected,
			Reason: fmt.Sprintf("transcription %s at %.2f", detected, result.Confidence),
		})
	}
	return actions
}
