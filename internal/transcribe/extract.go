package transcribe

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// ExtractSegment extracts a time-range audio segment from a source file.
// The output is a mono 16kHz WAV file suitable for language detection.
func ExtractSegment(ctx context.Context, ffmpegBinary, source string, trackIndex int, startSec, durationSec float64, dest string) error {
	if trackIndex < 0 {
		return fmt.Errorf("extract segment: invalid track index %d", trackIndex)
	}
	if durationSec <= 0 {
		return fmt.Errorf("extract segment: invalid duration %g", durationSec)
	}
	args := []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-ss", fmt.Sprintf("%.3f", startSec),
		"-t", fmt.Sprintf("%.3f", durationSec),
		"-i", source,
		"-map", fmt.Sprintf("0:%d", trackIndex),
		"-vn",
		"-sn",
		"-dn",
		"-ac", "1",
		"-ar", "16000",
		"-c:a", "pcm_s16le",
		dest,
	}
	cmd := exec.CommandContext(ctx, ffmpegBinary, args...) //nolint:gosec
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("ffmpeg extract segment: %w: %s", err, strings.TrimSpace(string(output)))
	}
	return nil
}

// extractSampleBytes extracts one segment into a scratch file and returns its
// contents.
func extractSampleBytes(ctx context.Context, ffmpegBinary, source string, trackIndex int, startSec, durationSec float64) ([]byte, error) {
	dir, err := os.MkdirTemp("", "vpo-sample-")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)

	dest := filepath.Join(dir, "sample.wav")
	if err := ExtractSegment(ctx, ffmpegBinary, source, trackIndex, startSec, durationSec, dest); err != nil {
		return nil, err
	}
	return os.ReadFile(dest)
}
