package analysis_test

import (
	"context"
	"errors"
	"testing"

	"vpo/internal/analysis"
	"vpo/internal/catalog"
	"vpo/internal/config"
	"vpo/internal/testsupport"
	"vpo/internal/transcribe"
)

type fakeDetector struct {
	samples []transcribe.Sample
	err     error
	bonus   float64
	calls   int
}

func (d *fakeDetector) CollectSamples(context.Context, string, int, float64) ([]transcribe.Sample, error) {
	d.calls++
	return d.samples, d.err
}

func (d *fakeDetector) IncumbentBonus() float64 { return d.bonus }
func (d *fakeDetector) PluginName() string      { return "fake" }

func audioTrack(tracks []*catalog.Track) *catalog.Track {
	for _, track := range tracks {
		if track.TrackType == "audio" {
			return track
		}
	}
	return nil
}

func TestAnalyzeTrackPersistsAndCaches(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	file := testsupport.NewFile(t, store, "/library/show.mkv")

	ctx := context.Background()
	tracks, err := store.TracksForFile(ctx, file.ID)
	if err != nil {
		t.Fatalf("tracks: %v", err)
	}
	track := audioTrack(tracks)
	if track == nil {
		t.Fatal("fixture has no audio track")
	}

	detector := &fakeDetector{samples: []transcribe.Sample{
		{Language: "eng", Confidence: 0.9, Transcript: "hello"},
	}}
	analyzer := analysis.New(store, detector, nil, config.Transcription{MinTrackSeconds: 10})

	result, err := analyzer.AnalyzeTrack(ctx, file, track)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if result.Language != "eng" {
		t.Fatalf("language = %s, want eng", result.Language)
	}
	if result.ResultType != catalog.AnalysisSingleLanguage {
		t.Fatalf("result type = %s, want SINGLE_LANGUAGE", result.ResultType)
	}

	stored, err := store.TranscriptionFor(ctx, track.ID, file.FileHash)
	if err != nil {
		t.Fatalf("transcription lookup: %v", err)
	}
	if stored == nil || stored.Language != "eng" {
		t.Fatalf("stored transcription = %+v, want eng", stored)
	}
	if stored.TranscriptSample != "hello" {
		t.Fatalf("transcript sample = %q, want winning sample text", stored.TranscriptSample)
	}
	if stored.SegmentsJSON == "" {
		t.Fatal("segments should be persisted alongside the verdict")
	}

	// Second run must come from the cache without another detector call.
	if _, err := analyzer.AnalyzeTrack(ctx, file, track); err != nil {
		t.Fatalf("cached analyze: %v", err)
	}
	if detector.calls != 1 {
		t.Fatalf("detector calls = %d, want 1", detector.calls)
	}
}

func TestAnalyzeTrackMultiLanguage(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	file := testsupport.NewFile(t, store, "/library/dual.mkv")

	ctx := context.Background()
	tracks, _ := store.TracksForFile(ctx, file.ID)
	track := audioTrack(tracks)

	detector := &fakeDetector{samples: []transcribe.Sample{
		{Language: "eng", Confidence: 0.5},
		{Language: "jpn", Confidence: 0.5},
	}}
	analyzer := analysis.New(store, detector, nil, config.Transcription{MinTrackSeconds: 10})

	result, err := analyzer.AnalyzeTrack(ctx, file, track)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if result.ResultType != catalog.AnalysisMultiLanguage {
		t.Fatalf("result type = %s, want MULTI_LANGUAGE", result.ResultType)
	}
}

func TestAnalyzeFileCountsSkips(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	file := testsupport.NewFile(t, store, "/library/short.mkv")

	ctx := context.Background()
	tracks, _ := store.TracksForFile(ctx, file.ID)

	// Duration floor above the fixture's duration forces a skip.
	detector := &fakeDetector{err: transcribe.ErrNoSamples}
	analyzer := analysis.New(store, detector, nil, config.Transcription{MinTrackSeconds: 999999})

	summary, err := analyzer.AnalyzeFile(ctx, file, tracks)
	if err != nil {
		t.Fatalf("analyze file: %v", err)
	}
	if summary.Skipped != 1 || summary.Analyzed != 0 {
		t.Fatalf("summary = %+v, want one skipped audio track", summary)
	}
}

func TestAnalyzeTrackInsufficientSpeech(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	file := testsupport.NewFile(t, store, "/library/silent.mkv")

	ctx := context.Background()
	tracks, _ := store.TracksForFile(ctx, file.ID)
	track := audioTrack(tracks)

	detector := &fakeDetector{err: transcribe.ErrNoSamples}
	analyzer := analysis.New(store, detector, nil, config.Transcription{MinTrackSeconds: 10})

	_, err := analyzer.AnalyzeTrack(ctx, file, track)
	if !errors.Is(err, analysis.ErrInsufficientSpeech) {
		t.Fatalf("err = %v, want ErrInsufficientSpeech", err)
	}
}
