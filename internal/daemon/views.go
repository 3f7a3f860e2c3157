package daemon

import (
	"encoding/json"
	"time"

	"vpo/internal/catalog"
)

type fileJSON struct {
	ID              int64       `json:"id"`
	Path            string      `json:"path"`
	Size            int64       `json:"size"`
	ModTime         time.Time   `json:"mtime"`
	FileHash        string      `json:"file_hash,omitempty"`
	ContainerFormat string      `json:"container_format,omitempty"`
	DurationSeconds float64     `json:"duration_seconds"`
	Resolution      string      `json:"resolution,omitempty"`
	Status          string      `json:"status"`
	ScannedAt       time.Time   `json:"scanned_at"`
	AudioLanguages  []string    `json:"audio_languages,omitempty"`
	Tracks          []trackJSON `json:"tracks,omitempty"`
}

type trackJSON struct {
	ID            int64   `json:"id"`
	TrackIndex    int     `json:"track_index"`
	TrackType     string  `json:"track_type"`
	Codec         string  `json:"codec,omitempty"`
	Language      string  `json:"language,omitempty"`
	Title         string  `json:"title,omitempty"`
	Default       bool    `json:"default"`
	Forced        bool    `json:"forced"`
	Channels      int     `json:"channels,omitempty"`
	ChannelLayout string  `json:"channel_layout,omitempty"`
	Width         int     `json:"width,omitempty"`
	Height        int     `json:"height,omitempty"`
	FrameRate     float64 `json:"frame_rate,omitempty"`
	BitRate       int64   `json:"bit_rate,omitempty"`
}

func toFileJSON(file *catalog.File, tracks []*catalog.Track) fileJSON {
	out := fileJSON{
		ID:              file.ID,
		Path:            file.Path,
		Size:            file.Size,
		ModTime:         file.ModTime,
		FileHash:        file.FileHash,
		ContainerFormat: file.ContainerFormat,
		DurationSeconds: file.DurationSeconds,
		Resolution:      file.Resolution,
		Status:          string(file.Status),
		ScannedAt:       file.ScannedAt,
	}
	for _, track := range tracks {
		out.Tracks = append(out.Tracks, trackJSON{
			ID:            track.ID,
			TrackIndex:    track.TrackIndex,
			TrackType:     track.TrackType,
			Codec:         track.Codec,
			Language:      track.Language,
			Title:         track.Title,
			Default:       track.Default,
			Forced:        track.Forced,
			Channels:      track.Channels,
			ChannelLayout: track.ChannelLayout,
			Width:         track.Width,
			Height:        track.Height,
			FrameRate:     track.FrameRate,
			BitRate:       track.BitRate,
		})
	}
	return out
}

type jobJSON struct {
	ID              string     `json:"id"`
	Type            string     `json:"type"`
	Status          string     `json:"status"`
	Priority        int        `json:"priority"`
	FileID          int64      `json:"file_id,omitempty"`
	FilePath        string     `json:"file_path,omitempty"`
	PolicyPath      string     `json:"policy_path,omitempty"`
	ProgressPercent float64    `json:"progress_percent"`
	ProgressMessage string     `json:"progress_message,omitempty"`
	ErrorMessage    string     `json:"error_message,omitempty"`
	ErrorClass      string     `json:"error_class,omitempty"`
	SummaryJSON     string     `json:"summary_json,omitempty"`
	OutputPath      string     `json:"output_path,omitempty"`
	WorkerID        string     `json:"worker_id,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	FinishedAt      *time.Time `json:"finished_at,omitempty"`
}

func toJobJSON(job *catalog.Job) jobJSON {
	return jobJSON{
		ID:              job.ID,
		Type:            string(job.Type),
		Status:          string(job.Status),
		Priority:        job.Priority,
		FileID:          job.FileID,
		FilePath:        job.FilePath,
		PolicyPath:      job.PolicyPath,
		ProgressPercent: job.ProgressPercent,
		ProgressMessage: job.ProgressMessage,
		ErrorMessage:    job.ErrorMessage,
		ErrorClass:      job.ErrorClass,
		SummaryJSON:     job.SummaryJSON,
		OutputPath:      job.OutputPath,
		WorkerID:        job.WorkerID,
		CreatedAt:       job.CreatedAt,
		StartedAt:       job.StartedAt,
		FinishedAt:      job.FinishedAt,
	}
}

type transcriptionJSON struct {
	ID               int64           `json:"id"`
	TrackID          int64           `json:"track_id"`
	FileID           int64           `json:"file_id"`
	FilePath         string          `json:"file_path"`
	TrackIndex       int             `json:"track_index"`
	Language         string          `json:"language"`
	Confidence       float64         `json:"confidence"`
	TrackType        string          `json:"track_type,omitempty"`
	TranscriptSample string          `json:"transcript_sample,omitempty"`
	Segments         json.RawMessage `json:"segments,omitempty"`
	Plugin           string          `json:"plugin,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
}

func toTranscriptionJSON(view *catalog.TranscriptionView) transcriptionJSON {
	out := transcriptionJSON{
		ID:               view.ID,
		TrackID:          view.TrackID,
		FileID:           view.FileID,
		FilePath:         view.FilePath,
		TrackIndex:       view.TrackIndex,
		Language:         view.Language,
		Confidence:       view.Confidence,
		TrackType:        view.TrackType,
		TranscriptSample: view.TranscriptSample,
		Plugin:           view.Plugin,
		CreatedAt:        view.CreatedAt,
	}
	if view.SegmentsJSON != "" {
		out.Segments = json.RawMessage(view.SegmentsJSON)
	}
	return out
}

type operationJSON struct {
	ID           int64      `json:"id"`
	FileID       int64      `json:"file_id"`
	OpType       string     `json:"op_type"`
	Status       string     `json:"status"`
	DetailJSON   string     `json:"detail_json,omitempty"`
	BackupPath   string     `json:"backup_path,omitempty"`
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
}

func toOperationJSON(op *catalog.Operation) operationJSON {
	return operationJSON{
		ID:           op.ID,
		FileID:       op.FileID,
		OpType:       op.OpType,
		Status:       string(op.Status),
		DetailJSON:   op.DetailJSON,
		BackupPath:   op.BackupPath,
		StartedAt:    op.StartedAt,
		FinishedAt:   op.FinishedAt,
		ErrorMessage: op.ErrorMessage,
	}
}
