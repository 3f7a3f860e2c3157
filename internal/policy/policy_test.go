package policy_test

import (
	"errors"
	"strings"
	"testing"

	"vpo/internal/policy"
	"vpo/internal/services"
)

const validDoc = `
schema_version: 12
name: default
config:
  audio_language_preference: [eng, fre]
  subtitle_language_preference: [eng]
  track_order: [video, audio_main, audio_alternate, subtitle_main]
  commentary_patterns: [commentary, director]
  default_flags:
    set_preferred_audio_default: true
    clear_other_defaults: true
  transcription:
    update_language_from_transcription: true
    confidence_threshold: 0.85
phases:
  - name: analyze
  - name: apply
  - name: transcode
    transcode:
      video:
        codec: hevc
        crf: 22
        preset: slow
        max_resolution: 1080p
        skip_if:
          codec_matches: [hevc, h265]
          resolution_within: 1080p
          bitrate_under: 10M
  - name: move
    move:
      destination_template: "{title} ({year})/{title} ({year}).{ext}"
      fallback: unsorted
workflow:
  phases: [analyze, apply, transcode, move]
  on_error: skip
`

func TestParseValidDocument(t *testing.T) {
	pol, err := policy.Parse([]byte(validDoc))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if pol.SchemaVersion != 12 {
		t.Errorf("schema_version = %d", pol.SchemaVersion)
	}
	if got := pol.EffectivePhases(); len(got) != 4 || got[0] != "analyze" {
		t.Errorf("effective phases = %v", got)
	}
	transcode := pol.PhaseByName("transcode")
	if transcode == nil || transcode.Transcode == nil || transcode.Transcode.Video == nil {
		t.Fatal("transcode phase not decoded")
	}
	if transcode.Transcode.Video.SkipIf.BitrateUnder != "10M" {
		t.Errorf("skip_if not decoded: %+v", transcode.Transcode.Video.SkipIf)
	}
	if pol.EffectiveOnError(transcode) != policy.OnErrorSkip {
		t.Errorf("on_error should inherit workflow default")
	}
}

func TestParseRejections(t *testing.T) {
	cases := []struct {
		name string
		doc  string
		want string
	}{
		{
			"old schema",
			"schema_version: 11\nphases:\n  - name: apply\n",
			"schema_version",
		},
		{
			"missing phases",
			"schema_version: 12\n",
			"phases",
		},
		{
			"unknown phase",
			"schema_version: 12\nphases:\n  - name: shuffle\n",
			"not a known phase",
		},
		{
			"crf and bitrate",
			"schema_version: 12\nphases:\n  - name: transcode\n    transcode:\n      video:\n        codec: hevc\n        crf: 22\n        bitrate: 5M\n",
			"both crf and bitrate",
		},
		{
			"malformed bitrate",
			"schema_version: 12\nphases:\n  - name: transcode\n    transcode:\n      video:\n        codec: hevc\n        bitrate: fast\n",
			"malformed",
		},
		{
			"bad preset",
			"schema_version: 12\nphases:\n  - name: transcode\n    transcode:\n      video:\n        codec: hevc\n        preset: warp9\n",
			"preset",
		},
		{
			"bad resolution",
			"schema_version: 12\nphases:\n  - name: transcode\n    transcode:\n      video:\n        max_resolution: 540p\n",
			"max_resolution",
		},
		{
			"shell metacharacters",
			"schema_version: 12\nphases:\n  - name: transcode\n    transcode:\n      video:\n        ffmpeg_args: [\"-vf\", \"scale=-2:720; rm -rf /\"]\n",
			"forbidden character",
		},
		{
			"workflow names undeclared phase",
			"schema_version: 12\nphases:\n  - name: apply\nworkflow:\n  phases: [apply, move]\n",
			"not declared",
		},
		{
			"unknown key",
			"schema_version: 12\nphasez:\n  - name: apply\n",
			"",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := policy.Parse([]byte(tc.doc))
			if err == nil {
				t.Fatal("expected rejection")
			}
			if !errors.Is(err, services.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if tc.want != "" && !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestValidateFFmpegArgs(t *testing.T) {
	if err := policy.ValidateFFmpegArgs([]string{"-vf", "scale=-2:1080", "-x265-params", "aq-mode=3"}); err != nil {
		t.Fatalf("benign args rejected: %v", err)
	}

	tooMany := make([]string, 51)
	for i := range tooMany {
		tooMany[i] = "-v"
	}
	if err := policy.ValidateFFmpegArgs(tooMany); err == nil {
		t.Fatal("expected rejection of 51 args")
	}

	if err := policy.ValidateFFmpegArgs([]string{strings.Repeat("a", 1025)}); err == nil {
		t.Fatal("expected rejection of oversized arg")
	}

	for _, bad := range []string{"a;b", "a|b", "a&b", "a$(b)", "a`b", "a>b", "a<b", "a\nb"} {
		if err := policy.ValidateFFmpegArgs([]string{bad}); err == nil {
			t.Fatalf("expected rejection of %q", bad)
		}
	}
}

func TestParseSize(t *testing.T) {
	cases := []struct {
		in   string
		want int64
	}{
		{"1024", 1024},
		{"700M", 700 << 20},
		{"4.5G", int64(4.5 * float64(1<<30))},
		{"2k", 2048},
	}
	for _, tc := range cases {
		got, err := policy.ParseSize(tc.in)
		if err != nil {
			t.Fatalf("ParseSize(%q): %v", tc.in, err)
		}
		if got != tc.want {
			t.Errorf("ParseSize(%q) = %d, want %d", tc.in, got, tc.want)
		}
	}
	if _, err := policy.ParseSize("lots"); err == nil {
		t.Fatal("expected error for malformed size")
	}
}
