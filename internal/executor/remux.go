package executor

import (
	"fmt"
	"strconv"
	"strings"

	"vpo/internal/catalog"
	"vpo/internal/plan"
)

// TempSuffix marks in-progress output files next to the source.
const TempSuffix = ".vpo-tmp"

// BuildRemuxArgs translates reorder and removal actions into one mkvmerge
// invocation writing to tmpPath. Track selection flags are grouped per track
// type because mkvmerge selects by type-scoped index lists.
func BuildRemuxArgs(source, tmpPath string, tracks []*catalog.Track, actions []plan.Action) []string {
	removed := map[int]bool{}
	var order []plan.TrackRef
	for _, action := range actions {
		switch action.Kind {
		case plan.ActionRemoveTrack:
			removed[action.Track.TrackIndex] = true
		case plan.ActionReorder:
			order = action.Order
		}
	}

	args := []string{"-o", tmpPath}

	keptByType := map[string][]string{}
	for _, track := range tracks {
		if removed[track.TrackIndex] {
			continue
		}
		trackType := strings.ToLower(track.TrackType)
		keptByType[trackType] = append(keptByType[trackType], strconv.Itoa(track.TrackIndex))
	}
	if len(removed) > 0 {
		if ids, ok := keptByType["audio"]; ok {
			args = append(args, "--audio-tracks", strings.Join(ids, ","))
		} else {
			args = append(args, "--no-audio")
		}
		if ids, ok := keptByType["subtitle"]; ok {
			args = append(args, "--subtitle-tracks", strings.Join(ids, ","))
		} else {
			args = append(args, "--no-subtitles")
		}
	}

	if len(order) > 0 {
		pairs := make([]string, len(order))
		for i, ref := range order {
			pairs[i] = fmt.Sprintf("0:%d", ref.TrackIndex)
		}
		args = append(args, "--track-order", strings.Join(pairs, ","))
	}

	return append(args, source)
}

// buildMuxAddArgs merges a synthesized elementary stream into the container,
// preserving every existing track.
func buildMuxAddArgs(source, streamPath, tmpPath, lang, title string) []string {
	args := []string{"-o", tmpPath, source}
	if lang != "" {
		args = append(args, "--language", "0:"+lang)
	}
	if title != "" {
		args = append(args, "--track-name", "0:"+title)
	}
	return append(args, streamPath)
}
