package testsupport

import (
	"context"
	"testing"
	"time"

	"vpo/internal/catalog"
	"vpo/internal/config"
)

// MustOpenStore opens a catalog.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *catalog.Store {
	t.Helper()

	store, err := catalog.Open(cfg)
	if err != nil {
		t.Fatalf("catalog.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewFile catalogs a file with a small default track layout for tests.
func NewFile(t testing.TB, store *catalog.Store, path string, tracks ...*catalog.Track) *catalog.File {
	t.Helper()

	if len(tracks) == 0 {
		tracks = []*catalog.Track{
			{TrackIndex: 0, TrackType: "video", Codec: "h264", Width: 1920, Height: 1080},
			{TrackIndex: 1, TrackType: "audio", Codec: "aac", Language: "eng", Channels: 2, Default: true},
		}
	}
	file, err := store.UpsertFile(context.Background(), &catalog.File{
		Path:            path,
		Size:            1024,
		ModTime:         time.Now().UTC(),
		FileHash:        "hash-" + path,
		ContainerFormat: "matroska",
		DurationSeconds: 5400,
		Resolution:      "1080p",
	}, tracks)
	if err != nil {
		t.Fatalf("store.UpsertFile: %v", err)
	}
	return file
}

// NewJob enqueues a process job for tests.
func NewJob(t testing.TB, store *catalog.Store, fileID int64, filePath string) *catalog.Job {
	t.Helper()

	job, err := store.NewJob(context.Background(), &catalog.Job{
		Type:     catalog.JobTypeProcess,
		FileID:   fileID,
		FilePath: filePath,
	})
	if err != nil {
		t.Fatalf("store.NewJob: %v", err)
	}
	return job
}
