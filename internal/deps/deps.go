// Package deps discovers the external media tools the orchestrator drives
// and caches their capabilities between runs.
package deps

import (
	"fmt"
	"os/exec"
	"strings"
)

// Requirement defines an external tool the orchestrator relies on.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status reports the availability of a tool.
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	Path        string
	Detail      string
}

// Requirements returns the tool set for the configured binaries. Empty
// binary values fall back to PATH lookup of the conventional names.
func Requirements(probe, transcode, mux, propedit string) []Requirement {
	pick := func(configured, fallback string) string {
		if trimmed := strings.TrimSpace(configured); trimmed != "" {
			return trimmed
		}
		return fallback
	}
	return []Requirement{
		{Name: "probe", Command: pick(probe, "ffprobe"), Description: "container and track introspection"},
		{Name: "transcode", Command: pick(transcode, "ffmpeg"), Description: "video/audio transcoding and sample extraction"},
		{Name: "mux", Command: pick(mux, "mkvmerge"), Description: "container remux and track selection"},
		{Name: "propedit", Command: pick(propedit, "mkvpropedit"), Description: "in-place MKV metadata edits", Optional: true},
	}
}

// CheckBinaries evaluates the provided requirements and reports availability.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		cmd := strings.TrimSpace(req.Command)
		status := Status{
			Name:        req.Name,
			Command:     cmd,
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		if cmd == "" {
			status.Detail = "command not configured"
			results = append(results, status)
			continue
		}
		path, err := exec.LookPath(cmd)
		if err != nil {
			status.Detail = fmt.Sprintf("binary %q not found", cmd)
			results = append(results, status)
			continue
		}
		status.Available = true
		status.Path = path
		results = append(results, status)
	}
	return results
}

// MissingRequired returns the names of required tools that are unavailable.
func MissingRequired(statuses []Status) []string {
	var missing []string
	for _, status := range statuses {
		if !status.Optional && !status.Available {
			missing = append(missing, status.Name)
		}
	}
	return missing
}
