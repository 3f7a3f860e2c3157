package executor

import (
	"context"
	"errors"
	"os/exec"
	"strings"
	"time"

	"vpo/internal/services"
)

// runTool executes an external tool with a per-operation timeout and returns
// the trimmed combined output. Timeouts and non-zero exits are wrapped with
// the tool name and an output excerpt.
func runTool(ctx context.Context, timeoutSec int, name string, args ...string) (string, error) {
	if timeoutSec > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(timeoutSec)*time.Second)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	output, err := cmd.CombinedOutput()
	text := strings.TrimSpace(string(output))
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return text, services.Wrap(services.ErrTimeout, "executor", name, excerpt(text), err)
		}
		if errors.Is(ctx.Err(), context.Canceled) {
			return text, services.Wrap(services.ErrCancelled, "executor", name, excerpt(text), err)
		}
		return text, services.Wrap(services.ErrExternalTool, "executor", name, excerpt(text), err)
	}
	return text, nil
}

// runToolProgress executes the transcode tool with stderr streamed through
// the progress parser.
func runToolProgress(ctx context.Context, timeoutSec int, totalSeconds float64, encoderType string, fn ProgressFunc, name string, args ...string) error {
	if timeoutSec > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(timeoutSec)*time.Second)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return services.Wrap(services.ErrExternalTool, "executor", name, "stderr pipe", err)
	}
	if err := cmd.Start(); err != nil {
		return services.Wrap(services.ErrExternalTool, "executor", name, "start", err)
	}

	tail := watchProgress(stderr, totalSeconds, encoderType, fn)
	if err := cmd.Wait(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return services.Wrap(services.ErrTimeout, "executor", name, excerpt(tail), err)
		}
		if errors.Is(ctx.Err(), context.Canceled) {
			return services.Wrap(services.ErrCancelled, "executor", name, excerpt(tail), err)
		}
		return services.Wrap(services.ErrExternalTool, "executor", name, excerpt(tail), err)
	}
	return nil
}

// excerpt trims tool output to a loggable size.
func excerpt(output string) string {
	const limit = 500
	if len(output) <= limit {
		return output
	}
	return output[len(output)-limit:]
}
