package policy_test

import (
	"errors"
	"testing"

	"gopkg.in/yaml.v3"

	"vpo/internal/policy"
	"vpo/internal/services"
)

func decodeRules(t *testing.T, doc string) *policy.Rules {
	t.Helper()
	var rules policy.Rules
	if err := yaml.Unmarshal([]byte(doc), &rules); err != nil {
		t.Fatalf("decode rules: %v", err)
	}
	return &rules
}

func TestRulesFirstStopsAtFirstMatch(t *testing.T) {
	rules := decodeRules(t, `
match: FIRST
items:
  - name: already-hevc
    when:
      codec_matches: [hevc]
    then:
      skip_video_transcode: true
  - name: big-file
    when:
      file_size_over: 1k
    then:
      warn: "large file"
`)
	ctx, trace, err := rules.Evaluate(sampleInput())
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if !ctx.SkipVideoTranscode {
		t.Error("first rule's skip flag must apply")
	}
	if len(ctx.Warnings) != 0 {
		t.Errorf("second rule must not run in FIRST mode: %v", ctx.Warnings)
	}
	if len(trace) != 1 || !trace[0].Matched || trace[0].Rule != "already-hevc" {
		t.Errorf("unexpected trace: %#v", trace)
	}
}

func TestRulesFirstFallsBackToLastElse(t *testing.T) {
	rules := decodeRules(t, `
match: FIRST
items:
  - name: av1-only
    when:
      codec_matches: [av1]
    then:
      skip_video_transcode: true
  - name: fallback
    when:
      container: [avi]
    then:
      warn: "avi"
    else:
      warn: "no rule matched"
`)
	ctx, trace, err := rules.Evaluate(sampleInput())
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if ctx.SkipVideoTranscode {
		t.Error("no rule matched, no skip flag expected")
	}
	if len(ctx.Warnings) != 1 || ctx.Warnings[0] != "no rule matched" {
		t.Errorf("last rule's else must fire: %v", ctx.Warnings)
	}
	if len(trace) != 2 {
		t.Errorf("both rules should be traced: %#v", trace)
	}
}

func TestRulesAllMergesMatches(t *testing.T) {
	rules := decodeRules(t, `
match: ALL
items:
  - name: skip-video
    when:
      codec_matches: [hevc]
    then:
      skip_video_transcode: true
      warn: "video fine"
  - name: skip-audio
    when:
      audio_codec_exists: aac
    then:
      skip_audio_transcode: true
      warn: "audio fine"
  - name: no-match
    when:
      container: [avi]
    then:
      skip_track_filter: true
`)
	ctx, _, err := rules.Evaluate(sampleInput())
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if !ctx.SkipVideoTranscode || !ctx.SkipAudioTranscode {
		t.Errorf("matched skip flags must OR-combine: %+v", ctx)
	}
	if ctx.SkipTrackFilter {
		t.Error("unmatched rule must not contribute")
	}
	if len(ctx.Warnings) != 2 || ctx.Warnings[0] != "video fine" || ctx.Warnings[1] != "audio fine" {
		t.Errorf("warnings must concatenate in rule order: %v", ctx.Warnings)
	}
}

func TestRulesAllNoMatchOnlyLastElse(t *testing.T) {
	rules := decodeRules(t, `
match: ALL
items:
  - name: first
    when:
      container: [avi]
    then:
      warn: "avi"
    else:
      warn: "first else"
  - name: last
    when:
      container: [mp4]
    then:
      warn: "mp4"
    else:
      warn: "last else"
`)
	ctx, _, err := rules.Evaluate(sampleInput())
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	var fired []string
	for _, w := range ctx.Warnings {
		if w == "first else" || w == "last else" {
			fired = append(fired, w)
		}
	}
	if len(fired) != 1 || fired[0] != "last else" {
		t.Errorf("only the last rule's else may fire: %v", ctx.Warnings)
	}
}

func TestRulesFailAction(t *testing.T) {
	rules := decodeRules(t, `
match: FIRST
items:
  - name: reject-avi
    when:
      container: [matroska]
    then:
      fail: "matroska not allowed here"
`)
	_, _, err := rules.Evaluate(sampleInput())
	if err == nil {
		t.Fatal("fail action must surface an error")
	}
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestRulesEmpty(t *testing.T) {
	var rules *policy.Rules
	ctx, trace, err := rules.Evaluate(sampleInput())
	if err != nil || ctx == nil || len(trace) != 0 {
		t.Fatalf("nil rules must be a no-op: %v %#v %#v", err, ctx, trace)
	}
}
