package scanner

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"vpo/internal/catalog"
	"vpo/internal/config"
	"vpo/internal/logging"
	"vpo/internal/media/ffprobe"
	"vpo/internal/namemeta"
	"vpo/internal/plugins"
	"vpo/internal/services"
	"vpo/internal/worker"
)

// PruneDelete removes vanished files from the catalog; the default mode
// only marks them missing.
const PruneDelete = "delete"

var defaultExtensions = []string{
	"mkv", "mp4", "avi", "mov", "m4v", "webm", "ts", "m2ts", "wmv", "flv",
}

// Summary is the outcome of one scan run.
type Summary struct {
	TotalDiscovered int `json:"total_discovered"`
	Scanned         int `json:"scanned"`
	Skipped         int `json:"skipped"`
	Added           int `json:"added"`
	Removed         int `json:"removed"`
	Errors          int `json:"errors"`
}

// Scanner keeps the catalog in sync with the library roots.
type Scanner struct {
	cfg    *config.Config
	store  *catalog.Store
	bus    *plugins.Bus
	logger *slog.Logger

	inspect func(ctx context.Context, binary, path string) (ffprobe.IntrospectionResult, error)
}

// New builds a scanner. The bus may be nil.
func New(cfg *config.Config, store *catalog.Store, bus *plugins.Bus, logger *slog.Logger) *Scanner {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Scanner{
		cfg:     cfg,
		store:   store,
		bus:     bus,
		logger:  logging.NewComponentLogger(logger, "scanner"),
		inspect: ffprobe.Inspect,
	}
}

// WithInspector replaces the probe call (for testing).
func (s *Scanner) WithInspector(fn func(ctx context.Context, binary, path string) (ffprobe.IntrospectionResult, error)) {
	s.inspect = fn
}

func (s *Scanner) extensions() map[string]struct{} {
	list := s.cfg.Scanner.Extensions
	if len(list) == 0 {
		list = defaultExtensions
	}
	set := make(map[string]struct{}, len(list))
	for _, ext := range list {
		set[strings.ToLower(strings.TrimPrefix(ext, "."))] = struct{}{}
	}
	return set
}

// Scan walks the given roots (the configured roots when none are given)
// and returns the run summary. Per-file probe failures are counted, not
// fatal; only an unusable configuration or walk setup error aborts.
func (s *Scanner) Scan(ctx context.Context, roots ...string) (*Summary, error) {
	if len(roots) == 0 {
		roots = s.cfg.Scanner.Roots
	}
	if len(roots) == 0 {
		return nil, services.Wrap(services.ErrConfiguration, "scanner", "scan", "no library roots configured", nil)
	}

	summary := &Summary{}
	allowed := s.extensions()
	seen := make(map[string]struct{})

	for _, root := range roots {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				summary.Errors++
				s.logger.WarnContext(ctx, "walk error", logging.String("path", path), logging.Error(walkErr))
				if d != nil && d.IsDir() {
					return fs.SkipDir
				}
				return nil
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			if d.IsDir() {
				if strings.HasPrefix(d.Name(), ".") && path != root {
					return fs.SkipDir
				}
				return nil
			}
			ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(d.Name()), "."))
			if _, ok := allowed[ext]; !ok {
				return nil
			}

			summary.TotalDiscovered++
			seen[path] = struct{}{}
			s.scanFile(ctx, path, d, summary)
			return nil
		})
		if err != nil {
			return summary, err
		}
	}

	s.prune(ctx, roots, seen, summary)

	s.logger.InfoContext(ctx, "scan finished",
		logging.Int("discovered", summary.TotalDiscovered),
		logging.Int("scanned", summary.Scanned),
		logging.Int("skipped", summary.Skipped),
		logging.Int("added", summary.Added),
		logging.Int("removed", summary.Removed),
		logging.Int("errors", summary.Errors))
	return summary, nil
}

func (s *Scanner) scanFile(ctx context.Context, path string, d fs.DirEntry, summary *Summary) {
	info, err := d.Info()
	if err != nil {
		summary.Errors++
		s.logger.WarnContext(ctx, "stat failed", logging.String("path", path), logging.Error(err))
		return
	}

	existing, err := s.store.FileByPath(ctx, path)
	if err != nil {
		summary.Errors++
		s.logger.WarnContext(ctx, "catalog lookup failed", logging.String("path", path), logging.Error(err))
		return
	}

	if s.cfg.Scanner.Incremental && existing != nil &&
		existing.Status == catalog.FileStatusPresent &&
		existing.Size == info.Size() &&
		existing.ModTime.Equal(info.ModTime().UTC()) {
		summary.Skipped++
		return
	}

	probed, err := s.inspect(ctx, s.cfg.Tools.Probe, path)
	if err != nil {
		summary.Errors++
		s.logger.WarnContext(ctx, "probe failed", logging.String("path", path), logging.Error(err))
		return
	}
	for _, warning := range probed.Warnings {
		s.logger.DebugContext(ctx, "probe warning",
			logging.String("path", path),
			logging.String("warning", warning))
	}

	hash, err := Fingerprint(path)
	if err != nil {
		summary.Errors++
		s.logger.WarnContext(ctx, "fingerprint failed", logging.String("path", path), logging.Error(err))
		return
	}

	file, tracks := convertProbe(path, info, hash, probed)
	stored, err := s.store.UpsertFile(ctx, file, tracks)
	if err != nil {
		summary.Errors++
		s.logger.WarnContext(ctx, "catalog update failed", logging.String("path", path), logging.Error(err))
		return
	}

	summary.Scanned++
	if existing == nil {
		summary.Added++
	}
	s.dispatchScanned(ctx, stored, len(tracks))
}

func (s *Scanner) dispatchScanned(ctx context.Context, file *catalog.File, trackCount int) {
	if s.bus == nil {
		return
	}
	s.bus.Dispatch(ctx, plugins.EventFileScanned, map[string]any{
		"path":    file.Path,
		"file_id": file.ID,
		"tracks":  trackCount,
	})
}

// prune handles catalog rows under the scanned roots whose files are gone.
func (s *Scanner) prune(ctx context.Context, roots []string, seen map[string]struct{}, summary *Summary) {
	files, err := s.store.ListFiles(ctx, catalog.FileStatusPresent)
	if err != nil {
		summary.Errors++
		s.logger.WarnContext(ctx, "prune listing failed", logging.Error(err))
		return
	}

	for _, file := range files {
		if _, ok := seen[file.Path]; ok {
			continue
		}
		if !underAnyRoot(file.Path, roots) {
			continue
		}
		if _, err := os.Stat(file.Path); err == nil || !os.IsNotExist(err) {
			continue
		}

		if s.cfg.Scanner.PruneMode == PruneDelete {
			if _, err := s.store.RemoveFile(ctx, file.ID); err != nil {
				summary.Errors++
				s.logger.WarnContext(ctx, "prune failed", logging.String("path", file.Path), logging.Error(err))
				continue
			}
		} else {
			if err := s.store.MarkFileMissing(ctx, file.ID); err != nil {
				summary.Errors++
				s.logger.WarnContext(ctx, "missing mark failed", logging.String("path", file.Path), logging.Error(err))
				continue
			}
		}
		summary.Removed++
		s.logger.InfoContext(ctx, "file removed from library",
			logging.String("path", file.Path),
			logging.String("mode", s.cfg.Scanner.PruneMode))
	}
}

func underAnyRoot(path string, roots []string) bool {
	for _, root := range roots {
		rel, err := filepath.Rel(root, path)
		if err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// convertProbe maps a probe result onto catalog rows.
func convertProbe(path string, info fs.FileInfo, hash string, probed ffprobe.IntrospectionResult) (*catalog.File, []*catalog.Track) {
	file := &catalog.File{
		Path:            path,
		Size:            info.Size(),
		ModTime:         info.ModTime().UTC(),
		FileHash:        hash,
		ContainerFormat: probed.ContainerFormat,
		DurationSeconds: probed.ContainerDuration,
		Status:          catalog.FileStatusPresent,
	}

	tracks := make([]*catalog.Track, 0, len(probed.Tracks))
	for _, t := range probed.Tracks {
		if t.Type == "video" && file.Resolution == "" {
			file.Resolution = namemeta.ResolutionLabel(t.Width, t.Height)
		}
		tracks = append(tracks, &catalog.Track{
			TrackIndex:      t.Index,
			TrackType:       t.Type,
			Codec:           t.Codec,
			Language:        t.Language,
			Title:           t.Title,
			Default:         t.Default,
			Forced:          t.Forced,
			Channels:        t.Channels,
			ChannelLayout:   t.ChannelLayout,
			Width:           t.Width,
			Height:          t.Height,
			FrameRate:       t.FrameRate,
			DurationSeconds: t.DurationSeconds,
			BitRate:         t.BitRate,
		})
	}
	return file, tracks
}

// Handler adapts the scanner to the job queue so a scan runs as a job.
func Handler(s *Scanner) worker.Handler {
	return func(ctx context.Context, job *catalog.Job, progress worker.ProgressFunc) (string, string, error) {
		progress(0, "scanning")
		var roots []string
		if job.FilePath != "" {
			roots = []string{job.FilePath}
		}
		summary, err := s.Scan(ctx, roots...)
		if summary == nil {
			return "", "", err
		}
		return worker.SummaryJSON(summary), "", err
	}
}
