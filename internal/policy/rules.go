package policy

import (
	"fmt"
	"strings"

	"vpo/internal/services"
)

// Rule match modes.
const (
	MatchFirst = "FIRST"
	MatchAll   = "ALL"
)

// Rules is an ordered conditional rule set gating a phase.
type Rules struct {
	Match string `yaml:"match"`
	Items []Rule `yaml:"items"`
}

// Rule pairs a condition with the actions to run when it matches. The else
// branch only ever fires on the last rule of a set.
type Rule struct {
	Name string       `yaml:"name"`
	When Condition    `yaml:"when"`
	Then *RuleActions `yaml:"then"`
	Else *RuleActions `yaml:"else"`
}

// RuleActions is the action block of a rule branch.
type RuleActions struct {
	SkipVideoTranscode bool                  `yaml:"skip_video_transcode"`
	SkipAudioTranscode bool                  `yaml:"skip_audio_transcode"`
	SkipTrackFilter    bool                  `yaml:"skip_track_filter"`
	Warn               string                `yaml:"warn"`
	SetTrackFlags      []TrackFlagChange     `yaml:"set_track_flags"`
	SetTrackLanguages  []TrackLanguageChange `yaml:"set_track_languages"`
	SetContainerTags   []ContainerTagChange  `yaml:"set_container_tags"`
	Fail               string                `yaml:"fail"`
}

// TrackFlagChange flips a disposition flag on one track.
type TrackFlagChange struct {
	TrackIndex int    `yaml:"track_index"`
	Flag       string `yaml:"flag"`
	Value      bool   `yaml:"value"`
}

// TrackLanguageChange relabels one track's language.
type TrackLanguageChange struct {
	TrackIndex int    `yaml:"track_index"`
	Language   string `yaml:"language"`
}

// ContainerTagChange sets one container-level tag.
type ContainerTagChange struct {
	Key   string `yaml:"key"`
	Value string `yaml:"value"`
}

// ActionContext accumulates the effects of every fired rule branch.
type ActionContext struct {
	SkipVideoTranscode bool
	SkipAudioTranscode bool
	SkipTrackFilter    bool
	Warnings           []string
	TrackFlagChanges   []TrackFlagChange
	TrackLanguageChanges []TrackLanguageChange
	ContainerTagChanges  []ContainerTagChange
}

func (ac *ActionContext) apply(actions *RuleActions) error {
	if actions == nil {
		return nil
	}
	if actions.Fail != "" {
		return services.Wrap(services.ErrValidation, "policy", "rules", actions.Fail, nil)
	}
	ac.SkipVideoTranscode = ac.SkipVideoTranscode || actions.SkipVideoTranscode
	ac.SkipAudioTranscode = ac.SkipAudioTranscode || actions.SkipAudioTranscode
	ac.SkipTrackFilter = ac.SkipTrackFilter || actions.SkipTrackFilter
	if actions.Warn != "" {
		ac.Warnings = append(ac.Warnings, actions.Warn)
	}
	ac.TrackFlagChanges = append(ac.TrackFlagChanges, actions.SetTrackFlags...)
	ac.TrackLanguageChanges = append(ac.TrackLanguageChanges, actions.SetTrackLanguages...)
	ac.ContainerTagChanges = append(ac.ContainerTagChanges, actions.SetContainerTags...)
	return nil
}

// TraceEntry records one rule's outcome for observability.
type TraceEntry struct {
	Rule    string
	Matched bool
	Reason  string
}

// Evaluate runs the rule set against the file state. FIRST stops at the
// first matching rule; ALL merges every match. When nothing matches, only
// the last rule's else branch fires.
func (r *Rules) Evaluate(input EvalInput) (*ActionContext, []TraceEntry, error) {
	ctx := &ActionContext{}
	if r == nil || len(r.Items) == 0 {
		return ctx, nil, nil
	}

	mode := strings.ToUpper(r.Match)
	if mode == "" {
		mode = MatchFirst
	}

	trace := make([]TraceEntry, 0, len(r.Items))
	anyMatched := false
	for i := range r.Items {
		rule := &r.Items[i]
		matched, reason := rule.When.Matches(input)
		trace = append(trace, TraceEntry{Rule: rule.Name, Matched: matched, Reason: reason})
		if matched {
			anyMatched = true
			if err := ctx.apply(rule.Then); err != nil {
				return nil, trace, fmt.Errorf("rule %q: %w", rule.Name, err)
			}
			if mode == MatchFirst {
				return ctx, trace, nil
			}
			continue
		}
		if mode == MatchAll && rule.Else != nil && i != len(r.Items)-1 {
			ctx.Warnings = append(ctx.Warnings,
				fmt.Sprintf("rule %q: else on a non-final rule is ignored", rule.Name))
		}
	}

	if !anyMatched {
		last := &r.Items[len(r.Items)-1]
		if last.Else != nil {
			if err := ctx.apply(last.Else); err != nil {
				return nil, trace, fmt.Errorf("rule %q else: %w", last.Name, err)
			}
		}
	}
	return ctx, trace, nil
}
