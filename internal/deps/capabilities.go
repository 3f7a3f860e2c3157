package deps

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"os/exec"
	"strings"
	"time"

	"vpo/internal/fileutil"
)

// Capabilities records what the discovered tool set can do. Cached to disk so
// daemon startup does not re-probe every binary.
type Capabilities struct {
	ProbePath       string    `json:"probe_path"`
	TranscodePath   string    `json:"transcode_path"`
	MuxPath         string    `json:"mux_path"`
	PropeditPath    string    `json:"propedit_path"`
	MetadataInPlace bool      `json:"metadata_in_place"` // mkvpropedit present
	Encoders        []string  `json:"encoders"`
	RefreshedAt     time.Time `json:"refreshed_at"`
}

// HasEncoder reports whether the transcode tool advertises the named encoder.
func (c Capabilities) HasEncoder(name string) bool {
	for _, encoder := range c.Encoders {
		if strings.EqualFold(encoder, name) {
			return true
		}
	}
	return false
}

// LoadCapabilities reads the cache file, returning ok=false when absent or
// unreadable (callers then rebuild).
func LoadCapabilities(path string) (Capabilities, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Capabilities{}, false
	}
	var caps Capabilities
	if err := json.Unmarshal(data, &caps); err != nil {
		return Capabilities{}, false
	}
	if caps.ProbePath == "" || caps.TranscodePath == "" {
		return Capabilities{}, false
	}
	return caps, true
}

// DiscoverCapabilities probes the tool set and writes the cache via an atomic
// temp-file rename.
func DiscoverCapabilities(ctx context.Context, cachePath string, requirements []Requirement) (Capabilities, error) {
	statuses := CheckBinaries(requirements)
	if missing := MissingRequired(statuses); len(missing) > 0 {
		return Capabilities{}, errors.New("required tools unavailable: " + strings.Join(missing, ", "))
	}

	caps := Capabilities{RefreshedAt: time.Now().UTC()}
	for _, status := range statuses {
		switch status.Name {
		case "probe":
			caps.ProbePath = status.Path
		case "transcode":
			caps.TranscodePath = status.Path
		case "mux":
			caps.MuxPath = status.Path
		case "propedit":
			caps.PropeditPath = status.Path
			caps.MetadataInPlace = status.Available
		}
	}

	caps.Encoders = listEncoders(ctx, caps.TranscodePath)

	if strings.TrimSpace(cachePath) != "" {
		data, err := json.MarshalIndent(caps, "", "  ")
		if err == nil {
			// Cache write failure is not fatal; next startup re-probes.
			_ = fileutil.WriteFileAtomic(cachePath, data, 0o644)
		}
	}
	return caps, nil
}

// listEncoders asks the transcode tool for its encoder table and extracts the
// names this orchestrator cares about.
func listEncoders(ctx context.Context, binary string) []string {
	if binary == "" {
		return nil
	}
	listCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	out, err := exec.CommandContext(listCtx, binary, "-hide_banner", "-encoders").Output()
	if err != nil {
		return nil
	}
	wanted := []string{"libx264", "libx265", "libsvtav1", "aac", "ac3", "eac3", "libopus", "flac"}
	var found []string
	text := string(out)
	for _, name := range wanted {
		if strings.Contains(text, " "+name+" ") || strings.Contains(text, " "+name+"\n") {
			found = append(found, name)
		}
	}
	return found
}
