package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"vpo/internal/analysis"
	"vpo/internal/catalog"
	"vpo/internal/executor"
	"vpo/internal/logging"
	"vpo/internal/plan"
	"vpo/internal/plugins"
	"vpo/internal/policy"
	"vpo/internal/services"
)

// PlanExecutor applies a plan to a file on disk.
type PlanExecutor interface {
	Execute(ctx context.Context, jobID string, file *catalog.File, tracks []*catalog.Track, p *plan.Plan, progress executor.ProgressFunc) (*executor.Result, error)
}

// LanguageAnalyzer runs transcription-based language analysis for a file.
type LanguageAnalyzer interface {
	AnalyzeFile(ctx context.Context, file *catalog.File, tracks []*catalog.Track) (*analysis.Summary, error)
	StoreClassification(ctx context.Context, trackID int64, trackType, method string, confidence float64) error
}

// Processor runs the policy's phases against one file at a time.
type Processor struct {
	store    *catalog.Store
	exec     PlanExecutor
	analyzer LanguageAnalyzer
	bus      *plugins.Bus
	logger   *slog.Logger
}

// New builds a processor. The analyzer may be nil when transcription is
// disabled; the bus may be nil when no plugins are loaded.
func New(store *catalog.Store, exec PlanExecutor, analyzer LanguageAnalyzer, bus *plugins.Bus, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Processor{
		store:    store,
		exec:     exec,
		analyzer: analyzer,
		bus:      bus,
		logger:   logging.NewComponentLogger(logger, "workflow"),
	}
}

// fileState is the mutable per-file context threaded through the phases.
type fileState struct {
	jobID    string
	file     *catalog.File
	tracks   []*catalog.Track
	pol      *policy.Policy
	signals  plan.Signals
	progress executor.ProgressFunc
}

// phaseOutcome is what a phase body reports back to the driver.
type phaseOutcome struct {
	changes int
	output  string
	skip    *SkipReason
}

// ProcessFile runs every effective phase for the file in order. The result
// is always populated; the returned error is non-nil only when a phase
// failed under on_error mode fail.
func (p *Processor) ProcessFile(ctx context.Context, jobID string, file *catalog.File, pol *policy.Policy, progress executor.ProgressFunc) (*FileProcessingResult, error) {
	result := &FileProcessingResult{Path: file.Path, StartedAt: time.Now().UTC()}
	defer func() { result.FinishedAt = time.Now().UTC() }()

	tracks, err := p.loadTracks(ctx, file)
	if err != nil {
		result.ErrorMessage = err.Error()
		return result, err
	}

	st := &fileState{
		jobID:    jobID,
		file:     file,
		tracks:   tracks,
		pol:      pol,
		progress: progress,
	}
	st.signals = p.loadSignals(ctx, file, tracks)

	for _, name := range pol.EffectivePhases() {
		phase := pol.PhaseByName(name)
		pr, phaseErr := p.runPhase(ctx, st, name, phase)
		if phaseErr != nil {
			mode := pol.EffectiveOnError(phase)
			pr.Success = false
			pr.ErrorMessage = phaseErr.Error()
			p.logger.ErrorContext(ctx, "phase failed",
				logging.String("path", file.Path),
				logging.String("phase", name),
				logging.String("on_error", mode),
				logging.String("class", string(services.Classify(phaseErr))),
				logging.Error(phaseErr))
			result.record(pr)
			if result.ErrorMessage == "" {
				result.ErrorMessage = fmt.Sprintf("phase %s: %v", name, phaseErr)
			}
			if mode == policy.OnErrorFail {
				return result, phaseErr
			}
			continue
		}
		result.record(pr)
	}

	result.Success = true
	return result, nil
}

// runPhase applies skip_when and rule gating, then dispatches to the phase
// body. Phase timing covers gating and body together.
func (p *Processor) runPhase(ctx context.Context, st *fileState, name string, phase *policy.Phase) (pr PhaseResult, err error) {
	start := time.Now()
	pr = PhaseResult{Name: name, Success: true}
	defer func() { pr.DurationSeconds = time.Since(start).Seconds() }()

	if phase == nil {
		return pr, services.Wrap(services.ErrConfiguration, "workflow", name, "phase not declared in policy", nil)
	}

	input := policy.EvalInput{
		File:           st.file,
		Tracks:         st.tracks,
		ContainerTags:  st.signals.ContainerTags,
		PluginMetadata: st.signals.PluginMetadata,
	}

	for i := range phase.SkipWhen {
		cond := &phase.SkipWhen[i]
		if ok, why := cond.Matches(input); ok {
			pr.SkipReason = &SkipReason{
				Type:          SkipCondition,
				Message:       why,
				ConditionName: cond.Kind,
			}
			p.logger.DebugContext(ctx, "phase skipped",
				logging.String("phase", name),
				logging.String("reason", why))
			return pr, nil
		}
	}

	actx, trace, err := phase.Rules.Evaluate(input)
	if err != nil {
		return pr, err
	}
	pr.Warnings = append(pr.Warnings, actx.Warnings...)
	for _, entry := range trace {
		p.logger.DebugContext(ctx, "rule evaluated",
			logging.String("phase", name),
			logging.String("rule", entry.Rule),
			logging.Bool("matched", entry.Matched),
			logging.String("reason", entry.Reason))
	}

	outcome, err := p.dispatchPhase(ctx, st, name, phase, actx)
	if err != nil {
		return pr, err
	}
	pr.SkipReason = outcome.skip
	pr.ChangesMade = outcome.changes
	pr.OutputPath = outcome.output
	return pr, nil
}

func (p *Processor) dispatchPhase(ctx context.Context, st *fileState, name string, phase *policy.Phase, actx *policy.ActionContext) (phaseOutcome, error) {
	switch name {
	case policy.PhaseAnalyze:
		return p.phaseAnalyze(ctx, st)
	case policy.PhaseApply:
		return p.phaseApply(ctx, st, actx)
	case policy.PhaseTranscode:
		return p.phaseTranscode(ctx, st, phase, actx)
	case policy.PhaseSynthesize:
		return p.phaseSynthesize(ctx, st, phase)
	case policy.PhaseMove:
		return p.phaseMove(ctx, st, phase)
	case policy.PhaseTimestamp:
		return p.phaseTimestamp(ctx, st, phase)
	}
	return phaseOutcome{}, services.Wrap(services.ErrConfiguration, "workflow", name, "unknown phase", nil)
}

func (p *Processor) phaseAnalyze(ctx context.Context, st *fileState) (phaseOutcome, error) {
	if p.analyzer == nil {
		return phaseOutcome{skip: &SkipReason{
			Type:    SkipPrecondition,
			Message: "transcription analysis not configured",
		}}, nil
	}

	summary, err := p.analyzer.AnalyzeFile(ctx, st.file, st.tracks)
	if err != nil {
		return phaseOutcome{}, err
	}
	// Fresh transcriptions feed classification and later phases.
	st.signals = p.loadSignals(ctx, st.file, st.tracks)

	for _, track := range st.tracks {
		class := plan.ClassifyTrack(track, st.pol, st.signals)
		confidence := 0.0
		if a := st.signals.Analyses[track.ID]; a != nil {
			confidence = a.Confidence
		}
		if err := p.analyzer.StoreClassification(ctx, track.ID, string(class.Type), string(class.Method), confidence); err != nil {
			p.logger.WarnContext(ctx, "classification record failed",
				logging.Int64("track", track.ID),
				logging.Error(err))
		}
	}
	st.signals = p.loadSignals(ctx, st.file, st.tracks)

	p.logger.InfoContext(ctx, "analysis complete",
		logging.String("path", st.file.Path),
		logging.Int("analyzed", summary.Analyzed),
		logging.Int("cached", summary.Cached),
		logging.Int("skipped", summary.Skipped),
		logging.Int("failed", summary.Failed))
	return phaseOutcome{}, nil
}

func (p *Processor) phaseApply(ctx context.Context, st *fileState, actx *policy.ActionContext) (phaseOutcome, error) {
	effPol := st.pol
	if actx.SkipTrackFilter && effPol.Config.RemoveUnpreferredTracks {
		cp := *effPol
		cp.Config.RemoveUnpreferredTracks = false
		effPol = &cp
	}

	p.dispatch(ctx, plugins.EventBeforeEvaluate, map[string]any{
		"path":   st.file.Path,
		"policy": effPol.Name,
	})

	pl, err := plan.Evaluate(st.file, st.tracks, effPol, st.signals)
	if err != nil {
		return phaseOutcome{}, err
	}
	pl.Actions = append(pl.Actions, ruleActions(st.tracks, actx)...)

	p.dispatch(ctx, plugins.EventAfterEvaluate, map[string]any{
		"path":    st.file.Path,
		"policy":  effPol.Name,
		"actions": len(pl.Actions),
	})

	if pl.IsEmpty() {
		return phaseOutcome{skip: &SkipReason{
			Type:    SkipNoop,
			Message: "file already satisfies policy",
		}}, nil
	}

	return p.executePlan(ctx, st, pl)
}

func (p *Processor) phaseTranscode(ctx context.Context, st *fileState, phase *policy.Phase, actx *policy.ActionContext) (phaseOutcome, error) {
	if phase.Transcode == nil || (phase.Transcode.Video == nil && phase.Transcode.Audio == nil) {
		return phaseOutcome{skip: &SkipReason{
			Type:    SkipPrecondition,
			Message: "no transcode configured",
		}}, nil
	}

	eff := *phase.Transcode
	if actx.SkipVideoTranscode {
		eff.Video = nil
	}
	if actx.SkipAudioTranscode {
		eff.Audio = nil
	}

	var videoSkip *SkipReason
	if eff.Video != nil && eff.Video.SkipIf != nil {
		if skip, matched := executor.ShouldSkipTranscode(eff.Video.SkipIf, st.tracks, st.file.Resolution); skip {
			videoSkip = &SkipReason{
				Type:          SkipCondition,
				Message:       "source already satisfies " + strings.Join(matched, ", "),
				ConditionName: strings.Join(matched, " and "),
			}
			eff.Video = nil
		}
	}

	if eff.Video == nil && eff.Audio == nil {
		if videoSkip != nil {
			return phaseOutcome{skip: videoSkip}, nil
		}
		return phaseOutcome{skip: &SkipReason{
			Type:    SkipPrecondition,
			Message: "transcoding disabled by rules",
		}}, nil
	}

	pl := &plan.Plan{
		PolicyName:    st.pol.Name,
		PolicyVersion: st.pol.SchemaVersion,
		CreatedAt:     time.Now().UTC(),
		Actions:       []plan.Action{{Kind: plan.ActionTranscode, Transcode: &eff}},
		RequiresRemux: true,
	}
	return p.executePlan(ctx, st, pl)
}

func (p *Processor) phaseSynthesize(ctx context.Context, st *fileState, phase *policy.Phase) (phaseOutcome, error) {
	if len(phase.Synthesize) == 0 {
		return phaseOutcome{skip: &SkipReason{
			Type:    SkipPrecondition,
			Message: "no synthesis configured",
		}}, nil
	}

	pl := &plan.Plan{
		PolicyName:    st.pol.Name,
		PolicyVersion: st.pol.SchemaVersion,
		CreatedAt:     time.Now().UTC(),
		RequiresRemux: true,
	}
	for i := range phase.Synthesize {
		pl.Actions = append(pl.Actions, plan.Action{
			Kind:      plan.ActionSynthesizeAudio,
			Synthesis: &phase.Synthesize[i],
		})
	}
	return p.executePlan(ctx, st, pl)
}

func (p *Processor) phaseMove(ctx context.Context, st *fileState, phase *policy.Phase) (phaseOutcome, error) {
	if phase.Move == nil || phase.Move.DestinationTemplate == "" {
		return phaseOutcome{skip: &SkipReason{
			Type:    SkipPrecondition,
			Message: "no move destination configured",
		}}, nil
	}

	dest, err := executor.ResolveDestination(st.file.Path, phase.Move)
	if err != nil {
		return phaseOutcome{}, err
	}
	if dest == st.file.Path {
		return phaseOutcome{skip: &SkipReason{
			Type:    SkipNoop,
			Message: "file already at destination",
		}}, nil
	}

	pl := &plan.Plan{
		PolicyName:    st.pol.Name,
		PolicyVersion: st.pol.SchemaVersion,
		CreatedAt:     time.Now().UTC(),
		Actions:       []plan.Action{{Kind: plan.ActionMove, Move: phase.Move}},
	}
	return p.executePlan(ctx, st, pl)
}

func (p *Processor) phaseTimestamp(ctx context.Context, st *fileState, phase *policy.Phase) (phaseOutcome, error) {
	if phase.FileTimestamp == nil {
		return phaseOutcome{skip: &SkipReason{
			Type:    SkipPrecondition,
			Message: "no file timestamp configured",
		}}, nil
	}

	pl := &plan.Plan{
		PolicyName:    st.pol.Name,
		PolicyVersion: st.pol.SchemaVersion,
		CreatedAt:     time.Now().UTC(),
		Actions:       []plan.Action{{Kind: plan.ActionSetFileTimestamp, Timestamp: phase.FileTimestamp}},
	}
	return p.executePlan(ctx, st, pl)
}

// executePlan runs the plan through the executor with the plugin events
// around it, and keeps the catalog path current after a move.
func (p *Processor) executePlan(ctx context.Context, st *fileState, pl *plan.Plan) (phaseOutcome, error) {
	p.dispatch(ctx, plugins.EventBeforeExecute, map[string]any{
		"path":    st.file.Path,
		"actions": len(pl.Actions),
	})

	res, err := p.exec.Execute(ctx, st.jobID, st.file, st.tracks, pl, st.progress)
	if err != nil {
		p.dispatch(ctx, plugins.EventExecutionFailed, map[string]any{
			"path":  st.file.Path,
			"error": err.Error(),
		})
		return phaseOutcome{}, err
	}

	p.dispatch(ctx, plugins.EventAfterExecute, map[string]any{
		"path":    st.file.Path,
		"changes": res.ChangesMade,
	})

	if res.OutputPath != "" && res.OutputPath != st.file.Path {
		if p.store != nil {
			if err := p.store.UpdateFilePath(ctx, st.file.ID, res.OutputPath); err != nil {
				p.logger.WarnContext(ctx, "path update failed",
					logging.String("path", res.OutputPath),
					logging.Error(err))
			}
		}
		st.file.Path = res.OutputPath
	}
	return phaseOutcome{changes: res.ChangesMade, output: res.OutputPath}, nil
}

// ruleActions converts the metadata mutations fired by conditional rules
// into plan actions. Track indices are container indices.
func ruleActions(tracks []*catalog.Track, actx *policy.ActionContext) []plan.Action {
	var actions []plan.Action
	refFor := func(index int) plan.TrackRef {
		for _, track := range tracks {
			if track.TrackIndex == index {
				return plan.TrackRef{ID: track.ID, TrackIndex: index}
			}
		}
		return plan.TrackRef{TrackIndex: index}
	}

	for _, change := range actx.TrackFlagChanges {
		kind := plan.ActionSetDefault
		if strings.EqualFold(change.Flag, "forced") {
			kind = plan.ActionSetForced
		}
		actions = append(actions, plan.Action{
			Kind:   kind,
			Track:  refFor(change.TrackIndex),
			Flag:   change.Value,
			Reason: "rule action",
		})
	}
	for _, change := range actx.TrackLanguageChanges {
		actions = append(actions, plan.Action{
			Kind:   plan.ActionSetLanguage,
			Track:  refFor(change.TrackIndex),
			Value:  change.Language,
			Reason: "rule action",
		})
	}
	for _, change := range actx.ContainerTagChanges {
		actions = append(actions, plan.Action{
			Kind:   plan.ActionSetContainerTag,
			Key:    change.Key,
			Value:  change.Value,
			Reason: "rule action",
		})
	}
	return actions
}

func (p *Processor) loadTracks(ctx context.Context, file *catalog.File) ([]*catalog.Track, error) {
	if p.store == nil {
		return nil, nil
	}
	return p.store.TracksForFile(ctx, file.ID)
}

// loadSignals gathers the stored analysis results keyed for evaluation.
// Missing rows are normal; lookup errors only suppress the signal.
func (p *Processor) loadSignals(ctx context.Context, file *catalog.File, tracks []*catalog.Track) plan.Signals {
	signals := plan.Signals{
		Transcriptions: make(map[int64]*catalog.TranscriptionResult),
		Analyses:       make(map[int64]*catalog.LanguageAnalysis),
	}
	if p.store == nil {
		return signals
	}
	if classes, err := p.store.ClassificationsForFile(ctx, file.ID); err == nil {
		signals.Classifications = classes
	}
	for _, track := range tracks {
		if track.TrackType != "audio" {
			continue
		}
		if tr, err := p.store.TranscriptionFor(ctx, track.ID, file.FileHash); err == nil && tr != nil {
			signals.Transcriptions[track.ID] = tr
		}
		if la, err := p.store.LanguageAnalysisFor(ctx, track.ID, file.FileHash); err == nil && la != nil {
			signals.Analyses[track.ID] = la
		}
	}
	return signals
}

func (p *Processor) dispatch(ctx context.Context, event string, payload any) {
	if p.bus == nil {
		return
	}
	p.bus.Dispatch(ctx, event, payload)
}
