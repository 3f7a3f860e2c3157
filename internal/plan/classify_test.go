package plan_test

import (
	"context"
	"testing"

	"vpo/internal/catalog"
	"vpo/internal/plan"
	"vpo/internal/policy"
	"vpo/internal/testsupport"
)

func classifyPolicy() *policy.Policy {
	return &policy.Policy{
		Name:          "library-default",
		SchemaVersion: 12,
		Config: policy.Config{
			AudioLanguagePreference:    []string{"eng", "fre"},
			SubtitleLanguagePreference: []string{"eng"},
			CommentaryPatterns:         []string{"commentary", "director"},
			MusicPatterns:              []string{"isolated score"},
			SFXPatterns:                []string{"effects only"},
		},
	}
}

func TestClassifyTrackByTitle(t *testing.T) {
	pol := classifyPolicy()

	tests := []struct {
		name   string
		track  catalog.Track
		want   plan.TrackType
		method plan.DetectionMethod
	}{
		{
			name:   "video",
			track:  catalog.Track{TrackType: "video", Codec: "h264"},
			want:   plan.TypeVideo,
			method: plan.MethodMetadata,
		},
		{
			name:   "commentary title",
			track:  catalog.Track{TrackType: "audio", Language: "eng", Title: "Director's Commentary"},
			want:   plan.TypeAudioCommentary,
			method: plan.MethodMetadata,
		},
		{
			name:   "music title",
			track:  catalog.Track{TrackType: "audio", Language: "eng", Title: "Isolated Score (5.1)"},
			want:   plan.TypeAudioMusic,
			method: plan.MethodMetadata,
		},
		{
			name:   "sfx title",
			track:  catalog.Track{TrackType: "audio", Language: "und", Title: "Effects Only Mix"},
			want:   plan.TypeAudioSFX,
			method: plan.MethodMetadata,
		},
		{
			name:   "preferred language audio",
			track:  catalog.Track{TrackType: "audio", Language: "fre"},
			want:   plan.TypeAudioMain,
			method: plan.MethodHeuristic,
		},
		{
			name:   "unpreferred language audio",
			track:  catalog.Track{TrackType: "audio", Language: "jpn"},
			want:   plan.TypeAudioAlternate,
			method: plan.MethodHeuristic,
		},
		{
			name:   "forced subtitle",
			track:  catalog.Track{TrackType: "subtitle", Language: "eng", Forced: true},
			want:   plan.TypeSubtitleForced,
			method: plan.MethodMetadata,
		},
		{
			name:   "plain subtitle",
			track:  catalog.Track{TrackType: "subtitle", Language: "eng"},
			want:   plan.TypeSubtitleMain,
			method: plan.MethodHeuristic,
		},
		{
			name:   "attachment",
			track:  catalog.Track{TrackType: "attachment"},
			want:   plan.TypeAttachment,
			method: plan.MethodMetadata,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := plan.ClassifyTrack(&tc.track, pol, plan.Signals{})
			if got.Type != tc.want {
				t.Fatalf("type = %s, want %s", got.Type, tc.want)
			}
			if got.Method != tc.method {
				t.Fatalf("method = %s, want %s", got.Method, tc.method)
			}
		})
	}
}

func TestClassifyTrackUsesStoredTranscription(t *testing.T) {
	pol := classifyPolicy()
	pol.Config.Transcription.CommentaryFromTranscription = true

	track := &catalog.Track{ID: 7, TrackType: "audio", Language: "eng", Title: "Surround Mix"}
	signals := plan.Signals{
		Classifications: map[int64]*catalog.TrackClassification{
			7: {TrackID: 7, TrackType: "commentary", DetectionMethod: "transcription"},
		},
	}

	got := plan.ClassifyTrack(track, pol, signals)
	if got.Type != plan.TypeAudioCommentary {
		t.Fatalf("type = %s, want %s", got.Type, plan.TypeAudioCommentary)
	}
	if got.Method != plan.MethodTranscription {
		t.Fatalf("method = %s, want %s", got.Method, plan.MethodTranscription)
	}

	// Stored verdicts are ignored when the policy does not opt in.
	pol.Config.Transcription.CommentaryFromTranscription = false
	got = plan.ClassifyTrack(track, pol, signals)
	if got.Type != plan.TypeAudioMain {
		t.Fatalf("type = %s, want %s", got.Type, plan.TypeAudioMain)
	}
}

func TestClassifyTrackRoundTripsStoredVerdicts(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	file := testsupport.NewFile(t, store, "/library/roundtrip.mkv")
	tracks, err := store.TracksForFile(ctx, file.ID)
	if err != nil {
		t.Fatalf("tracks: %v", err)
	}
	var audio *catalog.Track
	for _, track := range tracks {
		if track.TrackType == "audio" {
			audio = track
		}
	}
	if audio == nil {
		t.Fatal("fixture has no audio track")
	}

	// The analyze phase persists resolved roles like "audio_commentary";
	// re-evaluation must honor them, not just the bare plugin verdicts.
	if err := store.SaveClassification(ctx, &catalog.TrackClassification{
		TrackID:         audio.ID,
		TrackType:       string(plan.TypeAudioCommentary),
		DetectionMethod: string(plan.MethodTranscription),
	}); err != nil {
		t.Fatalf("save classification: %v", err)
	}
	classes, err := store.ClassificationsForFile(ctx, file.ID)
	if err != nil {
		t.Fatalf("load classifications: %v", err)
	}

	pol := classifyPolicy()
	pol.Config.Transcription.CommentaryFromTranscription = true
	got := plan.ClassifyTrack(audio, pol, plan.Signals{Classifications: classes})
	if got.Type != plan.TypeAudioCommentary {
		t.Fatalf("type = %s, want %s", got.Type, plan.TypeAudioCommentary)
	}
	if got.Method != plan.MethodTranscription {
		t.Fatalf("method = %s, want %s", got.Method, plan.MethodTranscription)
	}
}

func TestClassifyTrackTitleBeatsTranscription(t *testing.T) {
	pol := classifyPolicy()
	pol.Config.Transcription.CommentaryFromTranscription = true

	track := &catalog.Track{ID: 3, TrackType: "audio", Language: "eng", Title: "Commentary with the crew"}
	signals := plan.Signals{
		Classifications: map[int64]*catalog.TrackClassification{
			3: {TrackID: 3, TrackType: "music", DetectionMethod: "transcription"},
		},
	}

	got := plan.ClassifyTrack(track, pol, signals)
	if got.Type != plan.TypeAudioCommentary {
		t.Fatalf("type = %s, want %s", got.Type, plan.TypeAudioCommentary)
	}
	if got.Method != plan.MethodMetadata {
		t.Fatalf("method = %s, want %s", got.Method, plan.MethodMetadata)
	}
}

func TestClassifyTrackEmptyPreferenceKeepsAudioMain(t *testing.T) {
	pol := classifyPolicy()
	pol.Config.AudioLanguagePreference = nil

	got := plan.ClassifyTrack(&catalog.Track{TrackType: "audio", Language: "kor"}, pol, plan.Signals{})
	if got.Type != plan.TypeAudioMain {
		t.Fatalf("type = %s, want %s", got.Type, plan.TypeAudioMain)
	}
}
