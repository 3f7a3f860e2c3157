package executor

import (
	"fmt"
	"strings"

	"vpo/internal/catalog"
	"vpo/internal/plan"
)

// mkvContainers holds the container formats the metadata-edit tool accepts.
var mkvContainers = map[string]bool{
	"matroska": true,
	"webm":     true,
	"mkv":      true,
}

// IsMKVFamily reports whether a probed container format supports in-place
// metadata editing. Probe output lists aliases comma-separated.
func IsMKVFamily(containerFormat string) bool {
	for _, token := range strings.Split(containerFormat, ",") {
		if mkvContainers[strings.TrimSpace(strings.ToLower(token))] {
			return true
		}
	}
	return false
}

// metadataActionKinds are the plan actions the metadata-edit tool can apply
// without rewriting the container.
func isMetadataAction(kind plan.ActionKind) bool {
	switch kind {
	case plan.ActionSetDefault, plan.ActionSetForced, plan.ActionSetLanguage,
		plan.ActionSetTitle, plan.ActionSetContainerTag:
		return true
	}
	return false
}

// postRemuxPositions maps an original container track index to the track's
// position after the structural step. mkvpropedit selectors are positional
// in the current file, so metadata edits that follow a reorder or removal
// must target the new layout, not the probed one.
func postRemuxPositions(tracks []*catalog.Track, structural []plan.Action) map[int]int {
	removed := map[int]bool{}
	var order []plan.TrackRef
	for _, action := range structural {
		switch action.Kind {
		case plan.ActionRemoveTrack:
			removed[action.Track.TrackIndex] = true
		case plan.ActionReorder:
			order = action.Order
		}
	}

	positions := make(map[int]int, len(tracks))
	if len(order) > 0 {
		pos := 0
		for _, ref := range order {
			if removed[ref.TrackIndex] {
				continue
			}
			positions[ref.TrackIndex] = pos
			pos++
		}
		return positions
	}
	pos := 0
	for _, track := range tracks {
		if removed[track.TrackIndex] {
			continue
		}
		positions[track.TrackIndex] = pos
		pos++
	}
	return positions
}

// buildPropeditArgs translates metadata actions into one mkvpropedit
// invocation. Track selectors are 1-based in mkvpropedit and resolve against
// the post-remux positions.
func buildPropeditArgs(path string, actions []plan.Action, positions map[int]int) []string {
	args := []string{path}
	for _, action := range actions {
		position, ok := positions[action.Track.TrackIndex]
		if !ok {
			position = action.Track.TrackIndex
		}
		selector := fmt.Sprintf("track:%d", position+1)
		switch action.Kind {
		case plan.ActionSetDefault:
			args = append(args, "--edit", selector, "--set", "flag-default="+boolFlag(action.Flag))
		case plan.ActionSetForced:
			args = append(args, "--edit", selector, "--set", "flag-forced="+boolFlag(action.Flag))
		case plan.ActionSetLanguage:
			args = append(args, "--edit", selector, "--set", "language="+action.Value)
		case plan.ActionSetTitle:
			args = append(args, "--edit", selector, "--set", "name="+action.Value)
		case plan.ActionSetContainerTag:
			if strings.EqualFold(action.Key, "title") {
				args = append(args, "--edit", "info", "--set", "title="+action.Value)
			}
		}
	}
	return args
}

func boolFlag(v bool) string {
	if v {
		return "1"
	}
	return "0"
}
