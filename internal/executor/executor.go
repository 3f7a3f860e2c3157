package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"vpo/internal/catalog"
	"vpo/internal/config"
	"vpo/internal/fileutil"
	"vpo/internal/logging"
	"vpo/internal/plan"
	"vpo/internal/policy"
	"vpo/internal/services"
)

// Executor applies plans to files using the configured external tools.
type Executor struct {
	cfg    *config.Config
	store  *catalog.Store
	logger *slog.Logger

	run       func(ctx context.Context, timeoutSec int, name string, args ...string) (string, error)
	runStream func(ctx context.Context, timeoutSec int, totalSeconds float64, encoderType string, fn ProgressFunc, name string, args ...string) error
}

// New builds an executor. The store may be nil for lock-and-run usage
// without operation records.
func New(cfg *config.Config, store *catalog.Store, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Executor{
		cfg:       cfg,
		store:     store,
		logger:    logging.NewComponentLogger(logger, "executor"),
		run:       runTool,
		runStream: runToolProgress,
	}
}

// WithCommandRunner replaces the tool runners (for testing).
func (e *Executor) WithCommandRunner(
	run func(ctx context.Context, timeoutSec int, name string, args ...string) (string, error),
	runStream func(ctx context.Context, timeoutSec int, totalSeconds float64, encoderType string, fn ProgressFunc, name string, args ...string) error,
) {
	e.run = run
	e.runStream = runStream
}

// Execute applies the plan inside the file's critical section. The returned
// result is populated on failure paths too, so callers always have a
// message to persist.
func (e *Executor) Execute(ctx context.Context, jobID string, file *catalog.File, tracks []*catalog.Track, p *plan.Plan, progress ProgressFunc) (*Result, error) {
	result := &Result{}
	if p == nil || p.IsEmpty() {
		result.Success = true
		result.Message = "no changes required"
		result.OutputPath = file.Path
		return result, nil
	}

	lock, err := AcquireFileLock(file.Path)
	if err != nil {
		result.Message = err.Error()
		return result, err
	}
	defer lock.Release()

	info, err := os.Stat(file.Path)
	if err != nil {
		err = services.Wrap(services.ErrNotFound, "executor", "stat", file.Path, err)
		result.Message = err.Error()
		return result, err
	}
	result.SizeBefore = info.Size()

	steps := splitPlan(p)
	if err := e.checkSpace(file, steps); err != nil {
		result.Message = err.Error()
		return result, err
	}

	var backupPath string
	fail := func(cause error) (*Result, error) {
		RestoreBackup(backupPath, file.Path, e.logger)
		result.Success = false
		result.Message = cause.Error()
		result.BackupPath = ""
		return result, cause
	}

	if steps.rewritesFile() {
		if !IsMKVFamily(file.ContainerFormat) && steps.metadataOnly() {
			err := services.Wrap(services.ErrValidation, "executor", "metadata",
				"container "+file.ContainerFormat+" does not support in-place metadata edits", nil)
			result.Message = err.Error()
			return result, err
		}
		backupPath, err = CreateBackup(file.Path)
		if err != nil {
			result.Message = err.Error()
			return result, err
		}
		result.BackupPath = backupPath
	}

	if steps.structural {
		if err := e.execStep(ctx, jobID, file, "remux", func() error {
			return e.remux(ctx, file, tracks, steps.structuralActions)
		}, backupPath); err != nil {
			return fail(err)
		}
		result.ChangesMade += len(steps.structuralActions)
	}

	if steps.transcode != nil {
		if err := e.execStep(ctx, jobID, file, "transcode", func() error {
			return e.transcode(ctx, file, tracks, steps.transcode, progress, result)
		}, backupPath); err != nil {
			return fail(err)
		}
		result.ChangesMade++
	}

	for i := range steps.synthesize {
		spec := steps.synthesize[i]
		if err := e.execStep(ctx, jobID, file, "synthesize", func() error {
			return e.synthesize(ctx, file, tracks, spec)
		}, backupPath); err != nil {
			return fail(err)
		}
		result.TracksCreated++
		result.ChangesMade++
	}

	if len(steps.metadata) > 0 {
		if err := e.execStep(ctx, jobID, file, "metadata", func() error {
			positions := postRemuxPositions(tracks, steps.structuralActions)
			args := buildPropeditArgs(file.Path, steps.metadata, positions)
			_, err := e.run(ctx, e.cfg.Tools.MetadataTimeout, e.cfg.Tools.Propedit, args...)
			return err
		}, backupPath); err != nil {
			return fail(err)
		}
		result.ChangesMade += len(steps.metadata)
	}

	outputPath := file.Path
	if steps.move != nil {
		dest, err := ResolveDestination(file.Path, steps.move)
		if err != nil {
			return fail(err)
		}
		if err := e.execStep(ctx, jobID, file, "move", func() error {
			return MoveFile(file.Path, dest)
		}, backupPath); err != nil {
			return fail(err)
		}
		outputPath = dest
		result.ChangesMade++
	}

	if steps.timestamp != nil {
		if err := e.execStep(ctx, jobID, file, "timestamp", func() error {
			return ApplyTimestamp(outputPath, steps.timestamp, file.ModTime)
		}, backupPath); err != nil {
			return fail(err)
		}
		result.ChangesMade++
	}

	DiscardBackup(backupPath, e.cfg.Processing.KeepBackups)
	if !e.cfg.Processing.KeepBackups {
		result.BackupPath = ""
	}

	if info, err := os.Stat(outputPath); err == nil {
		result.SizeAfter = info.Size()
	}
	result.Success = true
	result.OutputPath = outputPath
	result.Message = fmt.Sprintf("applied %d changes", result.ChangesMade)
	e.logger.InfoContext(ctx, "plan executed",
		logging.String("path", file.Path),
		logging.Int("changes", result.ChangesMade),
		logging.String("output", outputPath))
	return result, nil
}

// planSteps partitions a plan into executable stages.
type planSteps struct {
	metadata          []plan.Action
	structuralActions []plan.Action
	structural        bool
	transcode         *policy.TranscodeSpec
	synthesize        []*policy.SynthesisSpec
	move              *policy.MoveSpec
	timestamp         *policy.FileTimestamp
}

func splitPlan(p *plan.Plan) planSteps {
	var steps planSteps
	for _, action := range p.Actions {
		switch action.Kind {
		case plan.ActionReorder, plan.ActionRemoveTrack, plan.ActionRemux:
			steps.structural = true
			steps.structuralActions = append(steps.structuralActions, action)
		case plan.ActionTranscode:
			steps.transcode = action.Transcode
		case plan.ActionSynthesizeAudio:
			steps.synthesize = append(steps.synthesize, action.Synthesis)
		case plan.ActionMove:
			steps.move = action.Move
		case plan.ActionSetFileTimestamp:
			steps.timestamp = action.Timestamp
		default:
			if isMetadataAction(action.Kind) {
				steps.metadata = append(steps.metadata, action)
			}
		}
	}
	return steps
}

func (s planSteps) rewritesFile() bool {
	return s.structural || s.transcode != nil || len(s.synthesize) > 0 || len(s.metadata) > 0
}

func (s planSteps) metadataOnly() bool {
	return !s.structural && s.transcode == nil && len(s.synthesize) == 0 && len(s.metadata) > 0
}

func (e *Executor) checkSpace(file *catalog.File, steps planSteps) error {
	var estimate uint64
	switch {
	case steps.transcode != nil:
		estimate = EstimateTranscodeBytes(file.Size)
	case steps.structural || len(steps.synthesize) > 0:
		estimate = EstimateRemuxBytes(file.Size)
	default:
		return nil
	}
	return CheckDiskSpace(filepath.Dir(file.Path), estimate, e.cfg.Processing.MinFreePercent)
}

// execStep wraps one stage in an operation record when a store is attached.
func (e *Executor) execStep(ctx context.Context, jobID string, file *catalog.File, opType string, fn func() error, backupPath string) error {
	var opID int64
	if e.store != nil && jobID != "" {
		detail, _ := json.Marshal(map[string]string{"path": file.Path})
		id, err := e.store.BeginOperation(ctx, jobID, file.ID, opType, string(detail))
		if err != nil {
			e.logger.WarnContext(ctx, "operation record failed", logging.Error(err))
		} else {
			opID = id
			if backupPath != "" {
				_ = e.store.SetOperationBackup(ctx, opID, backupPath)
			}
		}
	}

	start := time.Now()
	err := fn()
	if opID != 0 {
		status := catalog.OperationStatusCompleted
		message := ""
		if err != nil {
			status = catalog.OperationStatusFailed
			message = err.Error()
		}
		if finishErr := e.store.FinishOperation(ctx, opID, status, message); finishErr != nil {
			e.logger.WarnContext(ctx, "operation finish failed", logging.Error(finishErr))
		}
	}
	if err != nil {
		e.logger.ErrorContext(ctx, "step failed",
			logging.String("step", opType),
			logging.String("path", file.Path),
			logging.Duration("elapsed", time.Since(start)),
			logging.Error(err))
	}
	return err
}

func (e *Executor) remux(ctx context.Context, file *catalog.File, tracks []*catalog.Track, actions []plan.Action) error {
	tmpPath := file.Path + TempSuffix + ".mkv"
	defer os.Remove(tmpPath)

	args := BuildRemuxArgs(file.Path, tmpPath, tracks, actions)
	if _, err := e.run(ctx, e.cfg.Tools.RemuxTimeout, e.cfg.Tools.Mux, args...); err != nil {
		return err
	}
	if err := fileutil.SyncFile(tmpPath); err != nil {
		return services.Wrap(services.ErrTransient, "executor", "remux", tmpPath, err)
	}
	if err := fileutil.ReplaceFile(tmpPath, file.Path); err != nil {
		return services.Wrap(services.ErrTransient, "executor", "remux", file.Path, err)
	}
	return nil
}

func (e *Executor) transcode(ctx context.Context, file *catalog.File, tracks []*catalog.Track, spec *policy.TranscodeSpec, progress ProgressFunc, result *Result) error {
	encoderType := "copy"
	if spec.Video != nil {
		encoderType = videoEncoder(spec.Video.Codec)
	}
	result.EncoderType = encoderType

	tmpPath := file.Path + TempSuffix + filepath.Ext(file.Path)
	defer os.Remove(tmpPath)

	wrapped := func(update FFmpegProgress) {
		if update.FPS > 0 {
			result.EncodingFPS = update.FPS
		}
		if progress != nil {
			progress(update)
		}
	}

	args := buildTranscodeArgs(file.Path, tmpPath, tracks, spec)
	if err := e.runStream(ctx, e.cfg.Tools.TranscodeTimeout, file.DurationSeconds, encoderType, wrapped, e.cfg.Tools.Transcode, args...); err != nil {
		return err
	}
	if err := fileutil.SyncFile(tmpPath); err != nil {
		return services.Wrap(services.ErrTransient, "executor", "transcode", tmpPath, err)
	}
	if err := fileutil.ReplaceFile(tmpPath, file.Path); err != nil {
		return services.Wrap(services.ErrTransient, "executor", "transcode", file.Path, err)
	}
	return nil
}

func (e *Executor) synthesize(ctx context.Context, file *catalog.File, tracks []*catalog.Track, spec *policy.SynthesisSpec) error {
	sourceIndex, err := synthesisSource(tracks, spec)
	if err != nil {
		return err
	}

	streamPath := file.Path + TempSuffix + ".mka"
	defer os.Remove(streamPath)

	encodeArgs := []string{
		"-y",
		"-hide_banner",
		"-i", file.Path,
		"-map", fmt.Sprintf("0:%d", sourceIndex),
	}
	if spec.FilterChain != "" {
		encodeArgs = append(encodeArgs, "-filter:a", spec.FilterChain)
	}
	encodeArgs = append(encodeArgs, "-c:a", audioEncoder(spec.Codec))
	if spec.Channels > 0 {
		encodeArgs = append(encodeArgs, "-ac", fmt.Sprintf("%d", spec.Channels))
	}
	if spec.Bitrate != "" {
		encodeArgs = append(encodeArgs, "-b:a", spec.Bitrate)
	}
	encodeArgs = append(encodeArgs, streamPath)
	if _, err := e.run(ctx, e.cfg.Tools.TranscodeTimeout, e.cfg.Tools.Transcode, encodeArgs...); err != nil {
		return err
	}

	tmpPath := file.Path + TempSuffix + ".mkv"
	defer os.Remove(tmpPath)
	muxArgs := buildMuxAddArgs(file.Path, streamPath, tmpPath, spec.Language, spec.Title)
	if _, err := e.run(ctx, e.cfg.Tools.RemuxTimeout, e.cfg.Tools.Mux, muxArgs...); err != nil {
		return err
	}
	if err := fileutil.SyncFile(tmpPath); err != nil {
		return services.Wrap(services.ErrTransient, "executor", "synthesize", tmpPath, err)
	}
	if err := fileutil.ReplaceFile(tmpPath, file.Path); err != nil {
		return services.Wrap(services.ErrTransient, "executor", "synthesize", file.Path, err)
	}
	return nil
}

// synthesisSource resolves the source audio track for a synthesis spec,
// preferring an explicit index over a language lookup.
func synthesisSource(tracks []*catalog.Track, spec *policy.SynthesisSpec) (int, error) {
	if spec.SourceTrackIndex != nil {
		return *spec.SourceTrackIndex, nil
	}
	for _, track := range tracks {
		if track.TrackType == "audio" && track.Language == spec.SourceLanguage {
			return track.TrackIndex, nil
		}
	}
	return 0, services.Wrap(services.ErrValidation, "executor", "synthesize",
		"no audio track with language "+spec.SourceLanguage, nil)
}
