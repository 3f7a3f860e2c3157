package executor

// Result reports the outcome of executing one plan.
type Result struct {
	Success       bool    `json:"success"`
	Message       string  `json:"message"`
	OutputPath    string  `json:"output_path,omitempty"`
	BackupPath    string  `json:"backup_path,omitempty"`
	TracksCreated int     `json:"tracks_created,omitempty"`
	SizeBefore    int64   `json:"size_before,omitempty"`
	SizeAfter     int64   `json:"size_after,omitempty"`
	EncoderType   string  `json:"encoder_type,omitempty"`
	EncodingFPS   float64 `json:"encoding_fps,omitempty"`
	ChangesMade   int     `json:"changes_made"`
}
