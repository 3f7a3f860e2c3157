package catalog_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"vpo/internal/catalog"
	"vpo/internal/testsupport"
)

func TestOpenCreatesSchema(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	file := testsupport.NewFile(t, store, "/library/Movie (2020)/movie.mkv")
	if file.ID == 0 {
		t.Fatal("expected file ID to be assigned")
	}

	fetched, err := store.FileByPath(ctx, "/library/Movie (2020)/movie.mkv")
	if err != nil {
		t.Fatalf("FileByPath failed: %v", err)
	}
	if fetched == nil || fetched.ID != file.ID {
		t.Fatalf("unexpected fetched file: %#v", fetched)
	}
	if fetched.Status != catalog.FileStatusPresent {
		t.Fatalf("expected present status, got %q", fetched.Status)
	}
}

func TestOpenRejectsSchemaMismatch(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	store.Close()

	db, err := sql.Open("sqlite", cfg.Paths.DatabasePath)
	if err != nil {
		t.Fatalf("open raw db: %v", err)
	}
	if _, err := db.Exec("UPDATE schema_version SET version = 999"); err != nil {
		t.Fatalf("bump version: %v", err)
	}
	db.Close()

	if _, err := catalog.OpenPath(cfg.Paths.DatabasePath); !errors.Is(err, catalog.ErrSchemaMismatch) {
		t.Fatalf("expected ErrSchemaMismatch, got %v", err)
	}
}

func TestUpsertFileReplacesTracks(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	file := testsupport.NewFile(t, store, "/library/show.mkv",
		&catalog.Track{TrackIndex: 0, TrackType: "video", Codec: "h264"},
		&catalog.Track{TrackIndex: 1, TrackType: "audio", Codec: "ac3", Language: "eng"},
		&catalog.Track{TrackIndex: 2, TrackType: "audio", Codec: "aac", Language: "fre"},
	)

	tracks, err := store.TracksForFile(ctx, file.ID)
	if err != nil {
		t.Fatalf("TracksForFile failed: %v", err)
	}
	if len(tracks) != 3 {
		t.Fatalf("expected 3 tracks, got %d", len(tracks))
	}

	updated, err := store.UpsertFile(ctx, &catalog.File{
		Path:    "/library/show.mkv",
		Size:    2048,
		ModTime: time.Now().UTC(),
	}, []*catalog.Track{
		{TrackIndex: 0, TrackType: "video", Codec: "hevc"},
		{TrackIndex: 1, TrackType: "audio", Codec: "opus", Language: "eng"},
	})
	if err != nil {
		t.Fatalf("second UpsertFile failed: %v", err)
	}
	if updated.ID != file.ID {
		t.Fatalf("upsert must keep identity: %d != %d", updated.ID, file.ID)
	}
	if updated.Size != 2048 {
		t.Fatalf("expected refreshed size, got %d", updated.Size)
	}

	tracks, err = store.TracksForFile(ctx, file.ID)
	if err != nil {
		t.Fatalf("TracksForFile after replace: %v", err)
	}
	if len(tracks) != 2 {
		t.Fatalf("expected replaced track set of 2, got %d", len(tracks))
	}
	if tracks[0].Codec != "hevc" {
		t.Fatalf("expected refreshed codec, got %q", tracks[0].Codec)
	}
}

func TestMarkFileMissingAndRemove(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	file := testsupport.NewFile(t, store, "/library/gone.mkv")

	if err := store.MarkFileMissing(ctx, file.ID); err != nil {
		t.Fatalf("MarkFileMissing failed: %v", err)
	}
	fetched, err := store.FileByID(ctx, file.ID)
	if err != nil {
		t.Fatalf("FileByID failed: %v", err)
	}
	if fetched.Status != catalog.FileStatusMissing {
		t.Fatalf("expected missing status, got %q", fetched.Status)
	}

	missing, err := store.ListFiles(ctx, catalog.FileStatusMissing)
	if err != nil {
		t.Fatalf("ListFiles failed: %v", err)
	}
	if len(missing) != 1 {
		t.Fatalf("expected one missing file, got %d", len(missing))
	}

	removed, err := store.RemoveFile(ctx, file.ID)
	if err != nil {
		t.Fatalf("RemoveFile failed: %v", err)
	}
	if !removed {
		t.Fatal("expected removal")
	}

	tracks, err := store.TracksForFile(ctx, file.ID)
	if err != nil {
		t.Fatalf("TracksForFile after delete: %v", err)
	}
	if len(tracks) != 0 {
		t.Fatalf("expected cascade to delete tracks, got %d", len(tracks))
	}
}

func TestUpdateFilePath(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	file := testsupport.NewFile(t, store, "/library/old-name.mkv")
	if err := store.UpdateFilePath(ctx, file.ID, "/library/New Name (2021).mkv"); err != nil {
		t.Fatalf("UpdateFilePath failed: %v", err)
	}
	fetched, err := store.FileByPath(ctx, "/library/New Name (2021).mkv")
	if err != nil {
		t.Fatalf("FileByPath failed: %v", err)
	}
	if fetched == nil || fetched.ID != file.ID {
		t.Fatalf("expected renamed row, got %#v", fetched)
	}
}

func TestTranscriptionCacheKeyedByHash(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	file := testsupport.NewFile(t, store, "/library/cache.mkv")
	tracks, err := store.TracksForFile(ctx, file.ID)
	if err != nil {
		t.Fatalf("TracksForFile failed: %v", err)
	}
	audio := tracks[1]

	if err := store.SaveTranscription(ctx, &catalog.TranscriptionResult{
		TrackID:          audio.ID,
		FileHash:         "hash-a",
		Language:         "eng",
		Confidence:       0.93,
		TrackType:        "main",
		TranscriptSample: "previously on",
		SegmentsJSON:     `[{"language":"eng","confidence":0.93}]`,
		Plugin:           "whisper",
	}); err != nil {
		t.Fatalf("SaveTranscription failed: %v", err)
	}

	hit, err := store.TranscriptionFor(ctx, audio.ID, "hash-a")
	if err != nil {
		t.Fatalf("TranscriptionFor failed: %v", err)
	}
	if hit == nil || hit.Language != "eng" || hit.Confidence != 0.93 {
		t.Fatalf("unexpected cache hit: %#v", hit)
	}
	if hit.TrackType != "main" || hit.TranscriptSample != "previously on" || hit.SegmentsJSON == "" {
		t.Fatalf("analysis detail not persisted: %#v", hit)
	}

	miss, err := store.TranscriptionFor(ctx, audio.ID, "hash-b")
	if err != nil {
		t.Fatalf("TranscriptionFor miss failed: %v", err)
	}
	if miss != nil {
		t.Fatalf("different hash must miss the cache, got %#v", miss)
	}
}

func TestClassificationUpsert(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	file := testsupport.NewFile(t, store, "/library/roles.mkv")
	tracks, err := store.TracksForFile(ctx, file.ID)
	if err != nil {
		t.Fatalf("TracksForFile failed: %v", err)
	}
	audio := tracks[1]

	if err := store.SaveClassification(ctx, &catalog.TrackClassification{
		TrackID:         audio.ID,
		TrackType:       "commentary",
		DetectionMethod: "title_keyword",
		Confidence:      0.5,
	}); err != nil {
		t.Fatalf("SaveClassification failed: %v", err)
	}
	if err := store.SaveClassification(ctx, &catalog.TrackClassification{
		TrackID:         audio.ID,
		TrackType:       "main",
		DetectionMethod: "transcription",
		Confidence:      0.88,
	}); err != nil {
		t.Fatalf("re-save failed: %v", err)
	}

	classes, err := store.ClassificationsForFile(ctx, file.ID)
	if err != nil {
		t.Fatalf("ClassificationsForFile failed: %v", err)
	}
	got := classes[audio.ID]
	if got == nil || got.TrackType != "main" || got.DetectionMethod != "transcription" {
		t.Fatalf("expected replaced classification, got %#v", classes[audio.ID])
	}
	if got.Confidence != 0.88 {
		t.Fatalf("confidence = %v, want 0.88", got.Confidence)
	}
	if got.UpdatedAt.IsZero() {
		t.Fatal("updated_at should be recorded on upsert")
	}
}

func TestFilesFilteredPaging(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	testsupport.NewFile(t, store, "/library/a.mkv")
	testsupport.NewFile(t, store, "/library/b.mkv")
	testsupport.NewFile(t, store, "/other/c.mkv")

	page, err := store.FilesFiltered(ctx, catalog.FileFilter{PathPrefix: "/library/"}, catalog.Page{Limit: 1})
	if err != nil {
		t.Fatalf("FilesFiltered failed: %v", err)
	}
	if page.Total != 2 {
		t.Fatalf("expected total 2, got %d", page.Total)
	}
	if len(page.Files) != 1 || page.Files[0].Path != "/library/a.mkv" {
		t.Fatalf("unexpected page contents: %#v", page.Files)
	}
}

func TestFilesFilteredBySearchAndLanguage(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	dual := testsupport.NewFile(t, store, "/library/anime/akira.mkv",
		&catalog.Track{TrackIndex: 0, TrackType: "video", Codec: "h264"},
		&catalog.Track{TrackIndex: 1, TrackType: "audio", Codec: "aac", Language: "jpn"},
		&catalog.Track{TrackIndex: 2, TrackType: "audio", Codec: "ac3", Language: "eng"},
		&catalog.Track{TrackIndex: 3, TrackType: "subtitle", Codec: "srt", Language: "eng"})
	testsupport.NewFile(t, store, "/library/movies/heat.mkv")

	page, err := store.FilesFiltered(ctx, catalog.FileFilter{AudioLanguage: "jpn"}, catalog.Page{})
	if err != nil {
		t.Fatalf("FilesFiltered by audio language failed: %v", err)
	}
	if page.Total != 1 || len(page.Files) != 1 || page.Files[0].ID != dual.ID {
		t.Fatalf("expected only the jpn-audio file, got %#v", page.Files)
	}
	if langs := page.AudioLanguages[dual.ID]; len(langs) != 2 || langs[0] != "eng" || langs[1] != "jpn" {
		t.Fatalf("expected distinct audio languages [eng jpn], got %v", langs)
	}

	page, err = store.FilesFiltered(ctx, catalog.FileFilter{SubtitleLanguage: "eng"}, catalog.Page{})
	if err != nil {
		t.Fatalf("FilesFiltered by subtitle language failed: %v", err)
	}
	if page.Total != 1 || page.Files[0].ID != dual.ID {
		t.Fatalf("expected only the subtitled file, got %#v", page.Files)
	}

	page, err = store.FilesFiltered(ctx, catalog.FileFilter{Search: "heat"}, catalog.Page{})
	if err != nil {
		t.Fatalf("FilesFiltered by search failed: %v", err)
	}
	if page.Total != 1 || page.Files[0].Path != "/library/movies/heat.mkv" {
		t.Fatalf("expected search hit on heat.mkv, got %#v", page.Files)
	}
}

func TestJobsFilteredSinceSearchAndSort(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	first := testsupport.NewFile(t, store, "/library/alpha.mkv")
	second := testsupport.NewFile(t, store, "/library/beta.mkv")
	testsupport.NewJob(t, store, first.ID, first.Path)
	testsupport.NewJob(t, store, second.ID, second.Path)

	page, err := store.JobsFiltered(ctx, catalog.JobFilter{Search: "beta"}, catalog.Page{})
	if err != nil {
		t.Fatalf("JobsFiltered by search failed: %v", err)
	}
	if page.Total != 1 || len(page.Jobs) != 1 || page.Jobs[0].FilePath != second.Path {
		t.Fatalf("expected search hit on beta job, got %#v", page.Jobs)
	}

	page, err = store.JobsFiltered(ctx, catalog.JobFilter{Sort: "file_path", Order: "asc"}, catalog.Page{})
	if err != nil {
		t.Fatalf("JobsFiltered sorted failed: %v", err)
	}
	if len(page.Jobs) != 2 || page.Jobs[0].FilePath != first.Path {
		t.Fatalf("expected alpha job first with ascending path sort, got %#v", page.Jobs)
	}

	page, err = store.JobsFiltered(ctx, catalog.JobFilter{Since: time.Now().Add(time.Hour)}, catalog.Page{})
	if err != nil {
		t.Fatalf("JobsFiltered since failed: %v", err)
	}
	if page.Total != 0 {
		t.Fatalf("future since cutoff should match nothing, got %d", page.Total)
	}
}

func TestTranscriptionsFilteredHidesStaleHashes(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	file := testsupport.NewFile(t, store, "/library/stale.mkv")
	tracks, err := store.TracksForFile(ctx, file.ID)
	if err != nil {
		t.Fatalf("TracksForFile failed: %v", err)
	}
	audio := tracks[1]

	if err := store.SaveTranscription(ctx, &catalog.TranscriptionResult{
		TrackID:    audio.ID,
		FileHash:   file.FileHash,
		Language:   "eng",
		Confidence: 0.91,
	}); err != nil {
		t.Fatalf("SaveTranscription current failed: %v", err)
	}
	if err := store.SaveTranscription(ctx, &catalog.TranscriptionResult{
		TrackID:    audio.ID,
		FileHash:   "superseded-hash",
		Language:   "ger",
		Confidence: 0.4,
	}); err != nil {
		t.Fatalf("SaveTranscription stale failed: %v", err)
	}

	page, err := store.TranscriptionsFiltered(ctx, 0, false, catalog.Page{})
	if err != nil {
		t.Fatalf("TranscriptionsFiltered failed: %v", err)
	}
	if page.Total != 1 || len(page.Results) != 1 || page.Results[0].Language != "eng" {
		t.Fatalf("expected only the current-hash result, got %#v", page.Results)
	}

	page, err = store.TranscriptionsFiltered(ctx, 0, true, catalog.Page{})
	if err != nil {
		t.Fatalf("TranscriptionsFiltered show-all failed: %v", err)
	}
	if page.Total != 2 {
		t.Fatalf("show-all should include superseded hashes, got total %d", page.Total)
	}
}
