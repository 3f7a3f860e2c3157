// Package plan defines the typed contract between policy evaluation and
// execution: an immutable sequence of actions computed from a file's track
// layout. Evaluation is pure; the same inputs always produce the same plan.
package plan

import (
	"time"

	"vpo/internal/policy"
)

// ActionKind tags one plan action variant.
type ActionKind string

const (
	ActionSetDefault       ActionKind = "set_default"
	ActionSetForced        ActionKind = "set_forced"
	ActionSetLanguage      ActionKind = "set_language"
	ActionSetTitle         ActionKind = "set_title"
	ActionReorder          ActionKind = "reorder"
	ActionRemoveTrack      ActionKind = "remove_track"
	ActionSynthesizeAudio  ActionKind = "synthesize_audio"
	ActionTranscode        ActionKind = "transcode"
	ActionRemux            ActionKind = "remux"
	ActionMove             ActionKind = "move"
	ActionSetContainerTag  ActionKind = "set_container_tag"
	ActionSetFileTimestamp ActionKind = "set_file_timestamp"
)

// TrackRef names a track by catalog id when the track is cataloged, and
// always by container index. The id keeps analysis caches addressable; the
// index is what external tools understand.
type TrackRef struct {
	ID         int64 `json:"id,omitempty"`
	TrackIndex int   `json:"track_index"`
}

// Action is one typed step of a plan. Only the fields relevant to Kind are
// set.
type Action struct {
	Kind  ActionKind `json:"kind"`
	Track TrackRef   `json:"track,omitempty"`

	Flag     bool   `json:"flag,omitempty"`     // set_default / set_forced
	Value    string `json:"value,omitempty"`    // set_language / set_title / tag value
	Key      string `json:"key,omitempty"`      // set_container_tag
	Reason   string `json:"reason,omitempty"`
	Order    []TrackRef `json:"order,omitempty"` // reorder

	Synthesis *policy.SynthesisSpec `json:"synthesis,omitempty"`
	Transcode *policy.TranscodeSpec `json:"transcode,omitempty"`
	Move      *policy.MoveSpec      `json:"move,omitempty"`
	Timestamp *policy.FileTimestamp `json:"timestamp,omitempty"`
}

// Disposition records the keep-or-remove verdict for one track.
type Disposition struct {
	Track  TrackRef `json:"track"`
	Keep   bool     `json:"keep"`
	Reason string   `json:"reason,omitempty"`
}

// Plan is the immutable output of one policy evaluation.
type Plan struct {
	PolicyName    string        `json:"policy_name,omitempty"`
	PolicyVersion int           `json:"policy_version"`
	CreatedAt     time.Time     `json:"created_at"`
	Actions       []Action      `json:"actions"`
	Dispositions  []Disposition `json:"dispositions,omitempty"`
	RequiresRemux bool          `json:"requires_remux"`
	Warnings      []string      `json:"warnings,omitempty"`
}

// IsEmpty reports whether executing the plan would change nothing.
func (p *Plan) IsEmpty() bool {
	return p == nil || len(p.Actions) == 0
}

// HasStructuralChange reports whether any action rewrites the container
// rather than editing metadata in place.
func (p *Plan) HasStructuralChange() bool {
	if p == nil {
		return false
	}
	for _, action := range p.Actions {
		switch action.Kind {
		case ActionReorder, ActionRemoveTrack, ActionSynthesizeAudio,
			ActionTranscode, ActionRemux:
			return true
		}
	}
	return false
}
