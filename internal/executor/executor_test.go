package executor_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"vpo/internal/catalog"
	"vpo/internal/executor"
	"vpo/internal/plan"
	"vpo/internal/policy"
	"vpo/internal/services"
	"vpo/internal/testsupport"
)

func mediaFile(t *testing.T, name string) *catalog.File {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	testsupport.WriteFile(t, path, 4096)
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	return &catalog.File{
		ID:              1,
		Path:            path,
		Size:            info.Size(),
		ModTime:         info.ModTime(),
		ContainerFormat: "matroska,webm",
		DurationSeconds: 100,
		Resolution:      "1080p",
	}
}

func metadataPlan() *plan.Plan {
	return &plan.Plan{
		PolicyName: "test",
		Actions: []plan.Action{
			{Kind: plan.ActionSetDefault, Track: plan.TrackRef{TrackIndex: 2}, Flag: true},
			{Kind: plan.ActionSetDefault, Track: plan.TrackRef{TrackIndex: 1}, Flag: false},
		},
	}
}

func TestAcquireFileLockConflict(t *testing.T) {
	path := filepath.Join(t.TempDir(), "movie.mkv")
	testsupport.WriteFile(t, path, 64)

	lock, err := executor.AcquireFileLock(path)
	if err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	defer lock.Release()

	if _, err := executor.AcquireFileLock(path); !errors.Is(err, services.ErrLocked) {
		t.Fatalf("second acquire err = %v, want ErrLocked", err)
	}

	lock.Release()
	if _, err := os.Stat(path + executor.LockSuffix); !os.IsNotExist(err) {
		t.Fatalf("lock file should be removed after release, stat err = %v", err)
	}
}

func TestExecuteMetadataEdit(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	file := mediaFile(t, "movie.mkv")

	var gotTool string
	var gotArgs []string
	exec := executor.New(cfg, nil, nil)
	exec.WithCommandRunner(
		func(_ context.Context, _ int, name string, args ...string) (string, error) {
			gotTool = name
			gotArgs = args
			return "", nil
		},
		nil,
	)

	result, err := exec.Execute(context.Background(), "", file, nil, metadataPlan(), nil)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !result.Success {
		t.Fatalf("result = %+v, want success", result)
	}
	if result.ChangesMade != 2 {
		t.Fatalf("changes = %d, want 2", result.ChangesMade)
	}
	if gotTool != cfg.Tools.Propedit {
		t.Fatalf("tool = %q, want propedit", gotTool)
	}
	joined := strings.Join(gotArgs, " ")
	if !strings.Contains(joined, "track:3 --set flag-default=1") {
		t.Fatalf("args missing default-set edit: %s", joined)
	}
	if !strings.Contains(joined, "track:2 --set flag-default=0") {
		t.Fatalf("args missing default-clear edit: %s", joined)
	}
	if _, err := os.Stat(file.Path + executor.BackupSuffix); !os.IsNotExist(err) {
		t.Fatalf("backup should be discarded on success, stat err = %v", err)
	}
	if _, err := os.Stat(file.Path + executor.LockSuffix); !os.IsNotExist(err) {
		t.Fatal("lock file should be removed after execution")
	}
}

func TestExecuteReorderRepositionsMetadataEdits(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	file := mediaFile(t, "movie.mkv")
	tracks := []*catalog.Track{
		{TrackIndex: 0, TrackType: "video"},
		{TrackIndex: 1, TrackType: "audio", Language: "eng"},
		{TrackIndex: 2, TrackType: "audio", Language: "jpn"},
		{TrackIndex: 3, TrackType: "subtitle", Language: "eng"},
	}
	p := &plan.Plan{
		PolicyName: "test",
		Actions: []plan.Action{
			{Kind: plan.ActionReorder, Order: []plan.TrackRef{
				{TrackIndex: 0}, {TrackIndex: 2}, {TrackIndex: 1}, {TrackIndex: 3},
			}},
			{Kind: plan.ActionSetDefault, Track: plan.TrackRef{TrackIndex: 2}, Flag: true},
			{Kind: plan.ActionSetDefault, Track: plan.TrackRef{TrackIndex: 1}, Flag: false},
		},
		RequiresRemux: true,
	}

	var propeditArgs []string
	exec := executor.New(cfg, nil, nil)
	exec.WithCommandRunner(
		func(_ context.Context, _ int, name string, args ...string) (string, error) {
			switch name {
			case cfg.Tools.Mux:
				if len(args) > 1 && args[0] == "-o" {
					if err := os.WriteFile(args[1], []byte("remuxed"), 0o644); err != nil {
						return "", err
					}
				}
			case cfg.Tools.Propedit:
				propeditArgs = args
			}
			return "", nil
		},
		nil,
	)

	result, err := exec.Execute(context.Background(), "", file, tracks, p, nil)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !result.Success {
		t.Fatalf("result = %+v, want success", result)
	}

	// The jpn track moves to position 1 and eng drops to position 2, so the
	// propedit selectors must follow the rewritten layout.
	joined := strings.Join(propeditArgs, " ")
	if !strings.Contains(joined, "track:2 --set flag-default=1") {
		t.Fatalf("default flag should target the promoted track: %s", joined)
	}
	if !strings.Contains(joined, "track:3 --set flag-default=0") {
		t.Fatalf("default clear should target the demoted track: %s", joined)
	}
}

func TestExecuteFailureRestoresBackup(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	file := mediaFile(t, "movie.mkv")
	original, err := os.ReadFile(file.Path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	exec := executor.New(cfg, nil, nil)
	exec.WithCommandRunner(
		func(_ context.Context, _ int, name string, args ...string) (string, error) {
			// Simulate a tool corrupting the file before failing.
			if err := os.WriteFile(file.Path, []byte("garbage"), 0o644); err != nil {
				t.Fatalf("corrupt: %v", err)
			}
			return "", errors.New("tool blew up")
		},
		nil,
	)

	result, err := exec.Execute(context.Background(), "", file, nil, metadataPlan(), nil)
	if err == nil {
		t.Fatal("expected execution failure")
	}
	if result.Success {
		t.Fatalf("result = %+v, want failure", result)
	}

	restored, err := os.ReadFile(file.Path)
	if err != nil {
		t.Fatalf("read restored: %v", err)
	}
	if string(restored) != string(original) {
		t.Fatal("file was not restored from backup")
	}
}

func TestExecuteKeepsBackupWhenConfigured(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Processing.KeepBackups = true
	file := mediaFile(t, "movie.mkv")

	exec := executor.New(cfg, nil, nil)
	exec.WithCommandRunner(
		func(context.Context, int, string, ...string) (string, error) { return "", nil },
		nil,
	)

	result, err := exec.Execute(context.Background(), "", file, nil, metadataPlan(), nil)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if result.BackupPath == "" {
		t.Fatal("backup path should be reported when backups are kept")
	}
	if _, err := os.Stat(result.BackupPath); err != nil {
		t.Fatalf("backup should remain: %v", err)
	}
}

func TestExecuteRejectsMetadataOnNonMKV(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	file := mediaFile(t, "movie.avi")
	file.ContainerFormat = "avi"

	exec := executor.New(cfg, nil, nil)
	_, err := exec.Execute(context.Background(), "", file, nil, metadataPlan(), nil)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}

func TestExecuteEmptyPlan(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	file := mediaFile(t, "movie.mkv")

	exec := executor.New(cfg, nil, nil)
	result, err := exec.Execute(context.Background(), "", file, nil, &plan.Plan{}, nil)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !result.Success || result.ChangesMade != 0 {
		t.Fatalf("result = %+v, want trivial success", result)
	}
}

func TestBuildRemuxArgs(t *testing.T) {
	tracks := []*catalog.Track{
		{TrackIndex: 0, TrackType: "video"},
		{TrackIndex: 1, TrackType: "audio"},
		{TrackIndex: 2, TrackType: "audio"},
		{TrackIndex: 3, TrackType: "subtitle"},
	}
	p := &plan.Plan{Actions: []plan.Action{
		{Kind: plan.ActionRemoveTrack, Track: plan.TrackRef{TrackIndex: 1}},
		{Kind: plan.ActionReorder, Order: []plan.TrackRef{
			{TrackIndex: 0}, {TrackIndex: 2}, {TrackIndex: 3},
		}},
	}}

	args := executor.BuildRemuxArgs("/in.mkv", "/tmp/out.mkv", tracks, p.Actions)
	joined := strings.Join(args, " ")
	if !strings.Contains(joined, "--audio-tracks 2") {
		t.Fatalf("args should keep only audio track 2: %s", joined)
	}
	if !strings.Contains(joined, "--track-order 0:0,0:2,0:3") {
		t.Fatalf("args missing track order: %s", joined)
	}
	if args[len(args)-1] != "/in.mkv" {
		t.Fatalf("source must be the last argument: %s", joined)
	}
}

func TestShouldSkipTranscode(t *testing.T) {
	tracks := []*catalog.Track{
		{TrackIndex: 0, TrackType: "video", Codec: "hevc", Height: 1080, BitRate: 6_000_000},
	}
	skip := &policy.TranscodeSkip{
		CodecMatches:     []string{"hevc", "h265"},
		ResolutionWithin: "1080p",
		BitrateUnder:     "10M",
	}

	ok, matched := executor.ShouldSkipTranscode(skip, tracks, "1080p")
	if !ok {
		t.Fatal("expected skip for compliant file")
	}
	if len(matched) != 3 {
		t.Fatalf("matched = %v, want all three leaves", matched)
	}

	// A 4k source exceeds resolution_within and must not skip.
	tracks[0].Height = 2160
	if ok, _ := executor.ShouldSkipTranscode(skip, tracks, "2160p"); ok {
		t.Fatal("4k source should not skip")
	}

	// Above the bitrate ceiling.
	tracks[0].Height = 1080
	tracks[0].BitRate = 20_000_000
	if ok, _ := executor.ShouldSkipTranscode(skip, tracks, "1080p"); ok {
		t.Fatal("high-bitrate source should not skip")
	}
}

func TestParseBitrate(t *testing.T) {
	cases := map[string]int64{
		"10M":  10_000_000,
		"1.5M": 1_500_000,
		"320k": 320_000,
		"8000": 8000,
	}
	for token, want := range cases {
		got, err := policy.ParseBitrate(token)
		if err != nil {
			t.Fatalf("%s: %v", token, err)
		}
		if got != want {
			t.Fatalf("%s = %d, want %d", token, got, want)
		}
	}
	if _, err := policy.ParseBitrate("fast"); err == nil {
		t.Fatal("expected error for invalid token")
	}
}

func TestResolveDestinationAndTimestamp(t *testing.T) {
	dest, err := executor.ResolveDestination("/library/The.Movie.2021.1080p.mkv", &policy.MoveSpec{
		DestinationTemplate: "/sorted/{title}/{title} ({year})",
		Fallback:            "Unknown",
	})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !strings.HasPrefix(dest, "/sorted/") || !strings.HasSuffix(dest, ".mkv") {
		t.Fatalf("dest = %q", dest)
	}

	path := filepath.Join(t.TempDir(), "ts.mkv")
	testsupport.WriteFile(t, path, 16)
	spec := &policy.FileTimestamp{Mode: executor.TimestampFixed, Date: "2020-01-02"}
	if err := executor.ApplyTimestamp(path, spec, mustStatTime(t, path)); err != nil {
		t.Fatalf("timestamp: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.ModTime().UTC().Format("2006-01-02") != "2020-01-02" {
		t.Fatalf("mtime = %v, want 2020-01-02", info.ModTime())
	}
}

func mustStatTime(t *testing.T, path string) time.Time {
	t.Helper()
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	return info.ModTime()
}
