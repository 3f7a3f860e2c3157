package executor

import (
	"bufio"
	"io"
	"regexp"
	"strconv"
	"strings"
)

// FFmpegProgress is one decoded progress line from the transcode tool.
type FFmpegProgress struct {
	Percent     float64
	FPS         float64
	EncoderType string
}

// ProgressFunc receives progress updates while a media tool runs.
type ProgressFunc func(FFmpegProgress)

var (
	timePattern = regexp.MustCompile(`time=(\d+):(\d+):(\d+(?:\.\d+)?)`)
	fpsPattern  = regexp.MustCompile(`fps=\s*(\d+(?:\.\d+)?)`)
)

// parseProgressLine extracts the elapsed media time and fps from one ffmpeg
// stderr line. Returns false when the line carries no progress.
func parseProgressLine(line string, totalSeconds float64) (FFmpegProgress, bool) {
	match := timePattern.FindStringSubmatch(line)
	if match == nil {
		return FFmpegProgress{}, false
	}
	hours, _ := strconv.ParseFloat(match[1], 64)
	minutes, _ := strconv.ParseFloat(match[2], 64)
	seconds, _ := strconv.ParseFloat(match[3], 64)
	elapsed := hours*3600 + minutes*60 + seconds

	progress := FFmpegProgress{}
	if totalSeconds > 0 {
		progress.Percent = elapsed / totalSeconds * 100
		if progress.Percent > 100 {
			progress.Percent = 100
		}
	}
	if fpsMatch := fpsPattern.FindStringSubmatch(line); fpsMatch != nil {
		progress.FPS, _ = strconv.ParseFloat(fpsMatch[1], 64)
	}
	return progress, true
}

// watchProgress reads ffmpeg stderr line by line, forwarding progress to fn
// and returning the tail of the output for error reporting. ffmpeg ends
// status lines with carriage returns, so both separators split lines.
func watchProgress(r io.Reader, totalSeconds float64, encoderType string, fn ProgressFunc) string {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 512*1024)
	scanner.Split(scanCRLines)

	var tail []string
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if progress, ok := parseProgressLine(line, totalSeconds); ok {
			if fn != nil {
				progress.EncoderType = encoderType
				fn(progress)
			}
			continue
		}
		tail = append(tail, line)
		if len(tail) > 20 {
			tail = tail[1:]
		}
	}
	return strings.Join(tail, "\n")
}

// scanCRLines splits on both \n and \r so ffmpeg's in-place status updates
// arrive as separate lines.
func scanCRLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	for i, b := range data {
		if b == '\n' || b == '\r' {
			return i + 1, data[:i], nil
		}
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}
