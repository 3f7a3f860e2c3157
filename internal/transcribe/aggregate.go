package transcribe

import (
	"context"
	"errors"
	"sort"

	"vpo/internal/config"
	"vpo/internal/language"
	"vpo/internal/services"
)

// ErrNoSamples reports that no sample produced a usable verdict.
var ErrNoSamples = errors.New("transcribe: no usable samples")

// Sample is one canonicalized per-position verdict.
type Sample struct {
	Language   string
	Confidence float64
	Transcript string
}

// Options control the multi-sample detection strategy.
type Options struct {
	MaxSamples          int
	SampleDuration      float64
	ConfidenceThreshold float64
	IncumbentBonus      float64
}

// OptionsFromConfig copies the transcription settings into detector options,
// filling zero values with workable defaults.
func OptionsFromConfig(cfg config.Transcription) Options {
	opts := Options{
		MaxSamples:          cfg.MaxSamples,
		SampleDuration:      cfg.SampleDuration,
		ConfidenceThreshold: cfg.ConfidenceThreshold,
		IncumbentBonus:      cfg.IncumbentBonus,
	}
	if opts.MaxSamples <= 0 {
		opts.MaxSamples = 4
	}
	if opts.SampleDuration <= 0 {
		opts.SampleDuration = 30
	}
	return opts
}

// SamplePositions computes start offsets for up to maxSamples probes into a
// track of the given duration. Start, midpoint, quarter and three-quarter
// positions are tried first; any remaining slots are filled evenly. Offsets
// are clamped so a full sample fits before the end of the track.
func SamplePositions(durationSec, sampleDurationSec float64, maxSamples int) []float64 {
	if maxSamples <= 0 || durationSec <= 0 {
		return nil
	}
	usable := durationSec - sampleDurationSec
	if usable <= 0 {
		return []float64{0}
	}

	seeds := []float64{0, durationSec / 2, durationSec / 4, 3 * durationSec / 4}
	positions := make([]float64, 0, maxSamples)
	add := func(pos float64) {
		if len(positions) >= maxSamples {
			return
		}
		if pos > usable {
			pos = usable
		}
		if pos < 0 {
			pos = 0
		}
		for _, existing := range positions {
			if abs(existing-pos) < sampleDurationSec/2 {
				return
			}
		}
		positions = append(positions, pos)
	}

	for _, seed := range seeds {
		add(seed)
	}
	step := durationSec / float64(maxSamples+1)
	for i := 1; len(positions) < maxSamples && i <= maxSamples; i++ {
		add(step * float64(i))
	}
	return positions
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// Aggregate combines per-position verdicts into one. Votes are weighted by
// confidence; the incumbent language receives the bonus when it collected any
// votes. The winner's confidence is the mean of its samples, and the reported
// transcript comes from the winner's highest-confidence sample.
func Aggregate(samples []Sample, incumbent string, bonus float64) (Sample, error) {
	byLanguage := map[string][]Sample{}
	for _, sample := range samples {
		canonical := language.Normalize(sample.Language)
		if canonical == language.Undefined || sample.Confidence <= 0 {
			continue
		}
		sample.Language = canonical
		byLanguage[canonical] = append(byLanguage[canonical], sample)
	}
	if len(byLanguage) == 0 {
		return Sample{}, ErrNoSamples
	}

	weights := map[string]float64{}
	for lang, votes := range byLanguage {
		for _, vote := range votes {
			weights[lang] += vote.Confidence
		}
	}
	canonicalIncumbent := language.Normalize(incumbent)
	if canonicalIncumbent != language.Undefined {
		if _, voted := weights[canonicalIncumbent]; voted {
			weights[canonicalIncumbent] += bonus
		}
	}

	langs := make([]string, 0, len(weights))
	for lang := range weights {
		langs = append(langs, lang)
	}
	sort.Strings(langs)
	winner := langs[0]
	for _, lang := range langs[1:] {
		if weights[lang] > weights[winner] {
			winner = lang
		}
	}

	winning := byLanguage[winner]
	var sum float64
	best := winning[0]
	for _, vote := range winning {
		sum += vote.Confidence
		if vote.Confidence > best.Confidence {
			best = vote
		}
	}
	return Sample{
		Language:   winner,
		Confidence: sum / float64(len(winning)),
		Transcript: best.Transcript,
	}, nil
}

// Detector runs the multi-sample strategy against one plugin.
type Detector struct {
	plugin  Plugin
	ffmpeg  string
	opts    Options
	extract func(ctx context.Context, source string, trackIndex int, startSec, durationSec float64) ([]byte, error)
}

// NewDetector builds a detector using the given ffmpeg binary for sample
// extraction.
func NewDetector(plugin Plugin, ffmpegBinary string, opts Options) *Detector {
	d := &Detector{plugin: plugin, ffmpeg: ffmpegBinary, opts: opts}
	d.extract = func(ctx context.Context, source string, trackIndex int, startSec, durationSec float64) ([]byte, error) {
		return extractSampleBytes(ctx, d.ffmpeg, source, trackIndex, startSec, durationSec)
	}
	return d
}

// WithExtractor replaces the sample extractor (for testing).
func (d *Detector) WithExtractor(fn func(ctx context.Context, source string, trackIndex int, startSec, durationSec float64) ([]byte, error)) {
	d.extract = fn
}

// CollectSamples probes the track at several positions and returns the raw
// per-position verdicts. A single verdict at or above the confidence
// threshold ends the probing early.
func (d *Detector) CollectSamples(ctx context.Context, source string, trackIndex int, durationSec float64) ([]Sample, error) {
	positions := SamplePositions(durationSec, d.opts.SampleDuration, d.opts.MaxSamples)
	if len(positions) == 0 {
		return nil, ErrNoSamples
	}

	var samples []Sample
	var lastErr error
	for _, pos := range positions {
		if err := ctx.Err(); err != nil {
			return nil, services.Wrap(services.ErrCancelled, "transcribe", "detect", d.plugin.Name(), err)
		}
		audio, err := d.extract(ctx, source, trackIndex, pos, d.opts.SampleDuration)
		if err != nil {
			lastErr = err
			continue
		}
		verdict, err := d.plugin.DetectLanguage(ctx, audio)
		if err != nil {
			lastErr = err
			continue
		}
		samples = append(samples, Sample{
			Language:   verdict.Language,
			Confidence: verdict.Confidence,
			Transcript: verdict.TranscriptSample,
		})
		if verdict.Confidence >= d.opts.ConfidenceThreshold && d.opts.ConfidenceThreshold > 0 {
			break
		}
	}
	if len(samples) == 0 {
		if lastErr != nil {
			return nil, services.Wrap(services.ErrExternalTool, "transcribe", "detect", d.plugin.Name(), lastErr)
		}
		return nil, ErrNoSamples
	}
	return samples, nil
}

// DetectTrackLanguage probes the track and aggregates the verdicts into one.
// The incumbent is the track's current language tag.
func (d *Detector) DetectTrackLanguage(ctx context.Context, source string, trackIndex int, durationSec float64, incumbent string) (*Detection, error) {
	samples, err := d.CollectSamples(ctx, source, trackIndex, durationSec)
	if err != nil {
		return nil, err
	}
	combined, err := Aggregate(samples, incumbent, d.opts.IncumbentBonus)
	if err != nil {
		return nil, err
	}
	return &Detection{
		Language:         combined.Language,
		Confidence:       combined.Confidence,
		TranscriptSample: combined.Transcript,
	}, nil
}

// IncumbentBonus exposes the configured bonus for callers that aggregate the
// raw samples themselves.
func (d *Detector) IncumbentBonus() float64 { return d.opts.IncumbentBonus }

// PluginName reports the wrapped plugin's name.
func (d *Detector) PluginName() string { return d.plugin.Name() }
