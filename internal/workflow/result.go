package workflow

import "time"

// SkipType says why a phase did not run.
type SkipType string

const (
	// SkipCondition: a skip_when condition or transcode skip_if matched.
	SkipCondition SkipType = "CONDITION"
	// SkipPrecondition: the phase has nothing configured or a required
	// component is unavailable.
	SkipPrecondition SkipType = "PRECONDITION"
	// SkipNoop: the phase ran its evaluation and found nothing to change.
	SkipNoop SkipType = "NOOP"
)

// SkipReason records why a phase was skipped.
type SkipReason struct {
	Type           SkipType `json:"type"`
	Message        string   `json:"message"`
	ConditionName  string   `json:"condition_name,omitempty"`
	ConditionValue string   `json:"condition_value,omitempty"`
}

// PhaseResult is the outcome of one phase for one file.
type PhaseResult struct {
	Name            string      `json:"name"`
	Success         bool        `json:"success"`
	DurationSeconds float64     `json:"duration_seconds"`
	SkipReason      *SkipReason `json:"skip_reason,omitempty"`
	ChangesMade     int         `json:"changes_made"`
	OutputPath      string      `json:"output_path,omitempty"`
	Warnings        []string    `json:"warnings,omitempty"`
	ErrorMessage    string      `json:"error_message,omitempty"`
}

// Skipped reports whether the phase was bypassed rather than run.
func (r *PhaseResult) Skipped() bool { return r.SkipReason != nil }

// FileProcessingResult aggregates every phase outcome for one file.
type FileProcessingResult struct {
	Path            string        `json:"path"`
	PhaseResults    []PhaseResult `json:"phase_results"`
	TotalChanges    int           `json:"total_changes"`
	PhasesCompleted int           `json:"phases_completed"`
	PhasesFailed    int           `json:"phases_failed"`
	PhasesSkipped   int           `json:"phases_skipped"`
	ErrorMessage    string        `json:"error_message,omitempty"`
	Success         bool          `json:"success"`
	StartedAt       time.Time     `json:"started_at"`
	FinishedAt      time.Time     `json:"finished_at"`
}

func (r *FileProcessingResult) record(pr PhaseResult) {
	r.PhaseResults = append(r.PhaseResults, pr)
	r.TotalChanges += pr.ChangesMade
	switch {
	case pr.Skipped():
		r.PhasesSkipped++
	case pr.Success:
		r.PhasesCompleted++
	default:
		r.PhasesFailed++
	}
}

// PhaseResultByName returns the recorded result for a phase, or nil.
func (r *FileProcessingResult) PhaseResultByName(name string) *PhaseResult {
	for i := range r.PhaseResults {
		if r.PhaseResults[i].Name == name {
			return &r.PhaseResults[i]
		}
	}
	return nil
}
