package executor

import (
	"os"
	"time"

	"vpo/internal/policy"
	"vpo/internal/services"
)

// Timestamp modes accepted in file_timestamp specs.
const (
	TimestampMetadataDate = "metadata_date"
	TimestampNow          = "now"
	TimestampFixed        = "fixed"
)

// ApplyTimestamp sets the file's mtime per the timestamp spec. metadataDate
// is the container's creation date when the probe found one; the zero value
// falls through to the spec's fallback mode.
func ApplyTimestamp(path string, spec *policy.FileTimestamp, metadataDate time.Time) error {
	when, err := resolveTimestamp(spec, metadataDate)
	if err != nil {
		return err
	}
	if err := os.Chtimes(path, when, when); err != nil {
		return services.Wrap(services.ErrTransient, "executor", "timestamp", path, err)
	}
	return nil
}

func resolveTimestamp(spec *policy.FileTimestamp, metadataDate time.Time) (time.Time, error) {
	if spec == nil {
		return time.Time{}, services.Wrap(services.ErrValidation, "executor", "timestamp", "no timestamp spec", nil)
	}
	switch spec.Mode {
	case TimestampNow:
		return time.Now(), nil
	case TimestampFixed:
		when, err := time.Parse(time.RFC3339, spec.Date)
		if err != nil {
			when, err = time.Parse("2006-01-02", spec.Date)
		}
		if err != nil {
			return time.Time{}, services.Wrap(services.ErrValidation, "executor", "timestamp", spec.Date, err)
		}
		return when, nil
	case TimestampMetadataDate:
		if !metadataDate.IsZero() {
			return metadataDate, nil
		}
		if spec.Fallback == TimestampNow {
			return time.Now(), nil
		}
		return time.Time{}, services.Wrap(services.ErrValidation, "executor", "timestamp",
			"no metadata date and no usable fallback", nil)
	}
	return time.Time{}, services.Wrap(services.ErrValidation, "executor", "timestamp",
		"unknown mode "+spec.Mode, nil)
}
