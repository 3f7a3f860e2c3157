package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"vpo/internal/catalog"
	"vpo/internal/config"
	"vpo/internal/language"
	"vpo/internal/logging"
	"vpo/internal/transcribe"
)

// Skip conditions. Both are non-fatal: callers count them as skipped tracks
// instead of failing the file.
var (
	ErrShortTrack         = errors.New("analysis: track below minimum duration")
	ErrInsufficientSpeech = errors.New("analysis: no usable speech in samples")
)

// defaultMinTrackSeconds is the duration floor when the config leaves
// min_track_seconds unset.
const defaultMinTrackSeconds = 30

// multiLanguageShare is the winning-language vote share below which a track
// is reported as MULTI_LANGUAGE.
const multiLanguageShare = 0.8

// Detector is the sampling surface the analyzer consumes.
type Detector interface {
	CollectSamples(ctx context.Context, source string, trackIndex int, durationSec float64) ([]transcribe.Sample, error)
	IncumbentBonus() float64
	PluginName() string
}

// Analyzer runs language analysis for audio tracks and persists the results.
type Analyzer struct {
	store    *catalog.Store
	detector Detector
	logger   *slog.Logger
	minSecs  float64
}

// New builds an analyzer over the given catalog store and detector.
func New(store *catalog.Store, detector Detector, logger *slog.Logger, cfg config.Transcription) *Analyzer {
	if logger == nil {
		logger = logging.NewNop()
	}
	minSecs := cfg.MinTrackSeconds
	if minSecs <= 0 {
		minSecs = defaultMinTrackSeconds
	}
	return &Analyzer{
		store:    store,
		detector: detector,
		logger:   logging.NewComponentLogger(logger, "analysis"),
		minSecs:  minSecs,
	}
}

// Summary counts the outcome of analyzing one file's audio tracks.
type Summary struct {
	Analyzed int
	Cached   int
	Skipped  int
	Failed   int
}

// AnalyzeTrack produces the language verdict for one audio track, consulting
// the cache first. The cache key is (track id, file hash) so an unchanged
// file never re-extracts audio.
func (a *Analyzer) AnalyzeTrack(ctx context.Context, file *catalog.File, track *catalog.Track) (*catalog.LanguageAnalysis, error) {
	if file.FileHash != "" {
		cached, err := a.store.LanguageAnalysisFor(ctx, track.ID, file.FileHash)
		if err != nil {
			return nil, err
		}
		if cached != nil {
			return cached, nil
		}
	}

	duration := track.DurationSeconds
	if duration <= 0 {
		duration = file.DurationSeconds
	}
	if duration < a.minSecs {
		return nil, fmt.Errorf("%w: %.0fs < %.0fs", ErrShortTrack, duration, a.minSecs)
	}

	samples, err := a.detector.CollectSamples(ctx, file.Path, track.TrackIndex, duration)
	if err != nil {
		if errors.Is(err, transcribe.ErrNoSamples) {
			return nil, ErrInsufficientSpeech
		}
		return nil, err
	}

	winner, err := transcribe.Aggregate(samples, track.Language, a.detector.IncumbentBonus())
	if err != nil {
		if errors.Is(err, transcribe.ErrNoSamples) {
			return nil, ErrInsufficientSpeech
		}
		return nil, err
	}

	result := &catalog.LanguageAnalysis{
		TrackID:         track.ID,
		FileHash:        file.FileHash,
		ResultType:      resultType(samples, winner.Language),
		Language:        winner.Language,
		Confidence:      winner.Confidence,
		DetectionMethod: a.detector.PluginName(),
		CreatedAt:       time.Now().UTC(),
	}
	if encoded, err := json.Marshal(samples); err == nil {
		result.SamplesJSON = string(encoded)
	}

	if file.FileHash != "" {
		if err := a.store.SaveLanguageAnalysis(ctx, result); err != nil {
			return nil, err
		}
		transcription := &catalog.TranscriptionResult{
			TrackID:          track.ID,
			FileHash:         file.FileHash,
			Language:         winner.Language,
			Confidence:       winner.Confidence,
			TranscriptSample: winner.Transcript,
			SegmentsJSON:     result.SamplesJSON,
			Plugin:           a.detector.PluginName(),
			CreatedAt:        result.CreatedAt,
		}
		if err := a.store.SaveTranscription(ctx, transcription); err != nil {
			return nil, err
		}
	}

	a.logger.InfoContext(ctx, "track language analyzed",
		logging.Int64("track_id", track.ID),
		logging.String("language", result.Language),
		logging.Float64("confidence", result.Confidence),
		logging.String("result", string(result.ResultType)))
	return result, nil
}

// AnalyzeFile walks every audio track of a file. Skip conditions count as
// skipped; other per-track failures count as failed and do not stop the
// remaining tracks.
func (a *Analyzer) AnalyzeFile(ctx context.Context, file *catalog.File, tracks []*catalog.Track) (*Summary, error) {
	summary := &Summary{}
	for _, track := range tracks {
		if !strings.EqualFold(track.TrackType, "audio") {
			continue
		}
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		cached := false
		if file.FileHash != "" {
			existing, err := a.store.LanguageAnalysisFor(ctx, track.ID, file.FileHash)
			if err != nil {
				return summary, err
			}
			cached = existing != nil
		}

		_, err := a.AnalyzeTrack(ctx, file, track)
		switch {
		case err == nil && cached:
			summary.Cached++
		case err == nil:
			summary.Analyzed++
		case errors.Is(err, ErrShortTrack), errors.Is(err, ErrInsufficientSpeech):
			summary.Skipped++
			a.logger.InfoContext(ctx, "track analysis skipped",
				logging.Int64("track_id", track.ID),
				logging.String("reason", err.Error()))
		default:
			summary.Failed++
			a.logger.WarnContext(ctx, "track analysis failed",
				logging.Int64("track_id", track.ID),
				logging.Error(err))
		}
	}
	return summary, nil
}

// StoreClassification persists a resolved track role so later evaluations
// can reuse it without re-deriving the signal.
func (a *Analyzer) StoreClassification(ctx context.Context, trackID int64, trackType, method string, confidence float64) error {
	return a.store.SaveClassification(ctx, &catalog.TrackClassification{
		TrackID:         trackID,
		TrackType:       trackType,
		DetectionMethod: method,
		Confidence:      confidence,
		CreatedAt:       time.Now().UTC(),
	})
}

// resultType reports MULTI_LANGUAGE when the winner's confidence-weighted
// vote share falls below the multi-language threshold.
func resultType(samples []transcribe.Sample, winner string) catalog.AnalysisResultType {
	var total, winning float64
	for _, sample := range samples {
		canonical := language.Normalize(sample.Language)
		if canonical == language.Undefined || sample.Confidence <= 0 {
			continue
		}
		total += sample.Confidence
		if canonical == winner {
			winning += sample.Confidence
		}
	}
	if total > 0 && winning/total < multiLanguageShare {
		return catalog.AnalysisMultiLanguage
	}
	return catalog.AnalysisSingleLanguage
}
