package executor

import (
	"fmt"

	"vpo/internal/fileutil"
	"vpo/internal/services"
)

// Output size heuristics per operation type. Remux needs room for the backup
// copy plus the rewritten container; a transcode to HEVC lands well under the
// source size.
const (
	transcodeHeadroomFactor = 0.5
	remuxHeadroomFactor     = 2.5
)

// EstimateTranscodeBytes returns the free-space headroom required to
// transcode a file of the given size.
func EstimateTranscodeBytes(inputSize int64) uint64 {
	return uint64(float64(inputSize) * transcodeHeadroomFactor)
}

// EstimateRemuxBytes returns the free-space headroom required to remux a
// file of the given size.
func EstimateRemuxBytes(inputSize int64) uint64 {
	return uint64(float64(inputSize) * remuxHeadroomFactor)
}

// CheckDiskSpace verifies the filesystem holding path keeps at least
// minFreePercent free after writing estimatedBytes. It runs before any
// destructive work, so a refusal leaves the file untouched.
func CheckDiskSpace(path string, estimatedBytes uint64, minFreePercent float64) error {
	free, total, err := fileutil.FreeSpace(path)
	if err != nil {
		return services.Wrap(services.ErrTransient, "executor", "disk-check", path, err)
	}
	if free < estimatedBytes {
		return services.Wrap(services.ErrDiskSpace, "executor", "disk-check",
			fmt.Sprintf("need %d bytes, %d free", estimatedBytes, free), nil)
	}
	if total > 0 && minFreePercent > 0 {
		remaining := float64(free-estimatedBytes) / float64(total) * 100
		if remaining < minFreePercent {
			return services.Wrap(services.ErrDiskSpace, "executor", "disk-check",
				fmt.Sprintf("%.1f%% free after write, minimum %.1f%%", remaining, minFreePercent), nil)
		}
	}
	return nil
}
