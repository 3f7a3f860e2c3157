package catalog

import (
	"strings"
	"time"
)

// FileStatus tracks whether a cataloged file is still on disk.
type FileStatus string

const (
	FileStatusPresent FileStatus = "present"
	FileStatusMissing FileStatus = "missing"
)

// File is one cataloged media file.
type File struct {
	ID              int64
	Path            string
	Size            int64
	ModTime         time.Time
	FileHash        string
	ContainerFormat string
	DurationSeconds float64
	Resolution      string
	Status          FileStatus
	ScannedAt       time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Track is one stream inside a cataloged file, in container order.
type Track struct {
	ID              int64
	FileID          int64
	TrackIndex      int
	TrackType       string
	Codec           string
	Language        string
	Title           string
	Default         bool
	Forced          bool
	Channels        int
	ChannelLayout   string
	Width           int
	Height          int
	FrameRate       float64
	DurationSeconds float64
	BitRate         int64
}

// JobStatus represents the lifecycle of a queued job.
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

var allJobStatuses = []JobStatus{
	JobStatusQueued,
	JobStatusRunning,
	JobStatusCompleted,
	JobStatusFailed,
	JobStatusCancelled,
}

var jobStatusSet = func() map[JobStatus]struct{} {
	set := make(map[JobStatus]struct{}, len(allJobStatuses))
	for _, status := range allJobStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// AllJobStatuses returns the ordered list of known job statuses.
func AllJobStatuses() []JobStatus {
	cp := make([]JobStatus, len(allJobStatuses))
	copy(cp, allJobStatuses)
	return cp
}

// ParseJobStatus converts a string into a known JobStatus.
func ParseJobStatus(value string) (JobStatus, bool) {
	normalized := JobStatus(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := jobStatusSet[normalized]
	return normalized, ok
}

// IsTerminal reports whether a job can no longer change state.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	default:
		return false
	}
}

// JobType identifies the work a job performs.
type JobType string

const (
	JobTypeScan      JobType = "scan"
	JobTypeProcess   JobType = "process"
	JobTypeTranscode JobType = "transcode"
	JobTypeMove      JobType = "move"
)

// DefaultJobPriority is the priority applied when callers leave it unset.
// Lower numbers claim first.
const DefaultJobPriority = 100

// Job is one unit of queued work.
type Job struct {
	ID              string
	Type            JobType
	Status          JobStatus
	Priority        int
	FileID          int64
	FilePath        string
	PolicyPath      string
	PayloadJSON     string
	ProgressPercent float64
	ProgressMessage string
	ErrorMessage    string
	ErrorClass      string
	SummaryJSON     string
	OutputPath      string
	WorkerID        string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	StartedAt       *time.Time
	FinishedAt      *time.Time
}

// OperationStatus tracks a single executed plan action.
type OperationStatus string

const (
	OperationStatusStarted   OperationStatus = "started"
	OperationStatusCompleted OperationStatus = "completed"
	OperationStatusFailed    OperationStatus = "failed"
)

// Operation is one executed (or attempted) action within a job.
type Operation struct {
	ID           int64
	JobID        string
	FileID       int64
	OpType       string
	DetailJSON   string
	Status       OperationStatus
	BackupPath   string
	StartedAt    time.Time
	FinishedAt   *time.Time
	ErrorMessage string
}

// TranscriptionResult caches one plugin language verdict for a track.
// Results are keyed by (track_id, file_hash) so a re-encoded file never
// reuses stale transcriptions.
type TranscriptionResult struct {
	ID               int64
	TrackID          int64
	FileHash         string
	Language         string
	Confidence       float64
	TrackType        string
	TranscriptSample string
	SegmentsJSON     string
	Plugin           string
	CreatedAt        time.Time
}

// AnalysisResultType distinguishes single-language tracks from mixed ones.
type AnalysisResultType string

const (
	AnalysisSingleLanguage AnalysisResultType = "SINGLE_LANGUAGE"
	AnalysisMultiLanguage  AnalysisResultType = "MULTI_LANGUAGE"
)

// LanguageAnalysis is the aggregated multi-sample verdict for a track.
type LanguageAnalysis struct {
	ID              int64
	TrackID         int64
	FileHash        string
	ResultType      AnalysisResultType
	Language        string
	Confidence      float64
	SamplesJSON     string
	DetectionMethod string
	CreatedAt       time.Time
}

// TrackClassification records the resolved role of a track.
type TrackClassification struct {
	ID              int64
	TrackID         int64
	TrackType       string
	DetectionMethod string
	Confidence      float64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// JobCounts aggregates queue totals per lifecycle state.
type JobCounts struct {
	Queued    int
	Running   int
	Completed int
	Failed    int
	Cancelled int
}

// Total returns the sum across all states.
func (c JobCounts) Total() int {
	return c.Queued + c.Running + c.Completed + c.Failed + c.Cancelled
}
