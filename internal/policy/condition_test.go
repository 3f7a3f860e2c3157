package policy_test

import (
	"testing"

	"gopkg.in/yaml.v3"

	"vpo/internal/catalog"
	"vpo/internal/policy"
)

func decodeCondition(t *testing.T, doc string) policy.Condition {
	t.Helper()
	var cond policy.Condition
	if err := yaml.Unmarshal([]byte(doc), &cond); err != nil {
		t.Fatalf("decode condition: %v", err)
	}
	return cond
}

func sampleInput() policy.EvalInput {
	return policy.EvalInput{
		File: &catalog.File{
			Path:            "/library/movie.mkv",
			Size:            6 << 30,
			ContainerFormat: "matroska,webm",
			DurationSeconds: 5400,
			Resolution:      "1080p",
		},
		Tracks: []*catalog.Track{
			{TrackIndex: 0, TrackType: "video", Codec: "hevc", Width: 1920, Height: 1080},
			{TrackIndex: 1, TrackType: "audio", Codec: "ac3", Language: "fre"},
			{TrackIndex: 2, TrackType: "audio", Codec: "aac", Language: "eng", Title: "Director's Commentary"},
			{TrackIndex: 3, TrackType: "subtitle", Codec: "subrip", Language: "eng"},
		},
		PluginMetadata: map[string]map[string]string{
			"mediainfo": {"bit_depth": "10", "source": "bluray"},
		},
	}
}

func TestConditionLeaves(t *testing.T) {
	input := sampleInput()
	cases := []struct {
		name string
		doc  string
		want bool
	}{
		{"track exists by type", "track_exists:\n  type: audio\n", true},
		{"track exists by language", "track_exists:\n  type: audio\n  language: fr\n", true},
		{"track exists title regex", "track_exists:\n  type: audio\n  title_regex: commentary\n", true},
		{"track missing", "track_exists:\n  type: attachment\n", false},
		{"container matroska", "container: [mkv, matroska]\n", true},
		{"container mp4", "container: [mp4]\n", false},
		{"resolution", "resolution: [1080p]\n", true},
		{"resolution 4k alias", "resolution: [4k]\n", false},
		{"resolution under", "resolution_under: 2160p\n", true},
		{"resolution not under itself", "resolution_under: 1080p\n", false},
		{"size under", "file_size_under: 10G\n", true},
		{"size over", "file_size_over: 10G\n", false},
		{"duration over", "duration_over: 3600\n", true},
		{"codec matches", "codec_matches: [hevc, h265]\n", true},
		{"codec matches case fold", "codec_matches: [HEVC]\n", true},
		{"codec no match", "codec_matches: [av1]\n", false},
		{"subtitle language", "subtitle_language_exists: en\n", true},
		{"audio codec exists", "audio_codec_exists: ac3\n", true},
		{"plugin eq", "plugin_metadata:\n  plugin: mediainfo\n  field: source\n  value: bluray\n  operator: eq\n", true},
		{"plugin ne", "plugin_metadata:\n  plugin: mediainfo\n  field: source\n  value: dvd\n  operator: ne\n", true},
		{"plugin gte", "plugin_metadata:\n  plugin: mediainfo\n  field: bit_depth\n  value: \"8\"\n  operator: gte\n", true},
		{"plugin lt", "plugin_metadata:\n  plugin: mediainfo\n  field: bit_depth\n  value: \"8\"\n  operator: lt\n", false},
		{"plugin contains", "plugin_metadata:\n  plugin: mediainfo\n  field: source\n  value: blu\n  operator: contains\n", true},
		{"plugin unknown field", "plugin_metadata:\n  plugin: mediainfo\n  field: hdr\n  value: \"1\"\n", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cond := decodeCondition(t, tc.doc)
			got, _ := cond.Matches(input)
			if got != tc.want {
				t.Fatalf("Matches = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestConditionCombinators(t *testing.T) {
	input := sampleInput()

	and := decodeCondition(t, "and:\n  - codec_matches: [hevc]\n  - resolution: [1080p]\n")
	if ok, _ := and.Matches(input); !ok {
		t.Fatal("and of two true leaves must match")
	}

	or := decodeCondition(t, "or:\n  - codec_matches: [av1]\n  - container: [matroska]\n")
	if ok, _ := or.Matches(input); !ok {
		t.Fatal("or with one true leaf must match")
	}

	not := decodeCondition(t, "not:\n  codec_matches: [av1]\n")
	if ok, _ := not.Matches(input); !ok {
		t.Fatal("not of a false leaf must match")
	}

	nested := decodeCondition(t, "and:\n  - not:\n      container: [mp4]\n  - or:\n      - codec_matches: [hevc]\n      - codec_matches: [av1]\n")
	if ok, _ := nested.Matches(input); !ok {
		t.Fatal("nested combinators must match")
	}
}

func TestConditionUnknownKind(t *testing.T) {
	var cond policy.Condition
	if err := yaml.Unmarshal([]byte("phase_of_moon: full\n"), &cond); err == nil {
		t.Fatal("unknown condition must fail to decode")
	}
}
