package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const fileColumns = "id, path, size, mtime, file_hash, container_format, duration_seconds, resolution, status, scanned_at, created_at, updated_at"

func scanFile(scanner rowScanner) (*File, error) {
	var (
		id         int64
		path       string
		size       sql.NullInt64
		mtimeRaw   sql.NullString
		fileHash   sql.NullString
		container  sql.NullString
		duration   sql.NullFloat64
		resolution sql.NullString
		statusStr  string
		scannedRaw sql.NullString
		createdRaw sql.NullString
		updatedRaw sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&path,
		&size,
		&mtimeRaw,
		&fileHash,
		&container,
		&duration,
		&resolution,
		&statusStr,
		&scannedRaw,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	file := &File{
		ID:              id,
		Path:            path,
		Size:            size.Int64,
		FileHash:        fileHash.String,
		ContainerFormat: container.String,
		DurationSeconds: duration.Float64,
		Resolution:      resolution.String,
		Status:          FileStatus(statusStr),
	}
	if mtime, err := parseTimeString(mtimeRaw.String); err == nil {
		file.ModTime = mtime
	}
	if scanned, err := parseTimeString(scannedRaw.String); err == nil {
		file.ScannedAt = scanned
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		file.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		file.UpdatedAt = updated
	}
	return file, nil
}

const trackColumns = "id, file_id, track_index, track_type, codec, language, title, is_default, is_forced, channels, channel_layout, width, height, frame_rate, duration_seconds, bit_rate"

func scanTrack(scanner rowScanner) (*Track, error) {
	var (
		id         int64
		fileID     int64
		trackIndex int
		trackType  string
		codec      sql.NullString
		language   sql.NullString
		title      sql.NullString
		isDefault  sql.NullInt64
		isForced   sql.NullInt64
		channels   sql.NullInt64
		layout     sql.NullString
		width      sql.NullInt64
		height     sql.NullInt64
		frameRate  sql.NullFloat64
		duration   sql.NullFloat64
		bitRate    sql.NullInt64
	)

	if err := scanner.Scan(
		&id,
		&fileID,
		&trackIndex,
		&trackType,
		&codec,
		&language,
		&title,
		&isDefault,
		&isForced,
		&channels,
		&layout,
		&width,
		&height,
		&frameRate,
		&duration,
		&bitRate,
	); err != nil {
		return nil, err
	}

	return &Track{
		ID:              id,
		FileID:          fileID,
		TrackIndex:      trackIndex,
		TrackType:       trackType,
		Codec:           codec.String,
		Language:        language.String,
		Title:           title.String,
		Default:         isDefault.Int64 != 0,
		Forced:          isForced.Int64 != 0,
		Channels:        int(channels.Int64),
		ChannelLayout:   layout.String,
		Width:           int(width.Int64),
		Height:          int(height.Int64),
		FrameRate:       frameRate.Float64,
		DurationSeconds: duration.Float64,
		BitRate:         bitRate.Int64,
	}, nil
}

// UpsertFile inserts or refreshes a file row keyed by path and replaces its
// track rows in the same transaction so readers never observe a half-updated
// file.
func (s *Store) UpsertFile(ctx context.Context, file *File, tracks []*Track) (*File, error) {
	if file == nil {
		return nil, errors.New("file is nil")
	}
	now := time.Now().UTC()
	timestamp := now.Format(time.RFC3339Nano)
	if file.Status == "" {
		file.Status = FileStatusPresent
	}

	var fileID int64
	err := s.Transaction(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx,
			`INSERT INTO files (
                path, size, mtime, file_hash, container_format, duration_seconds,
                resolution, status, scanned_at, created_at, updated_at
            ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
            ON CONFLICT (path) DO UPDATE SET
                size = excluded.size, mtime = excluded.mtime,
                file_hash = excluded.file_hash, container_format = excluded.container_format,
                duration_seconds = excluded.duration_seconds, resolution = excluded.resolution,
                status = excluded.status, scanned_at = excluded.scanned_at,
                updated_at = excluded.updated_at
            RETURNING id`,
			file.Path,
			file.Size,
			file.ModTime.UTC().Format(time.RFC3339Nano),
			nullableString(file.FileHash),
			nullableString(file.ContainerFormat),
			file.DurationSeconds,
			nullableString(file.Resolution),
			file.Status,
			timestamp,
			timestamp,
			timestamp,
		)
		if err := row.Scan(&fileID); err != nil {
			return fmt.Errorf("upsert file: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM tracks WHERE file_id = ?`, fileID); err != nil {
			return fmt.Errorf("clear tracks: %w", err)
		}
		for _, track := range tracks {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO tracks (
                    file_id, track_index, track_type, codec, language, title,
                    is_default, is_forced, channels, channel_layout, width, height,
                    frame_rate, duration_seconds, bit_rate
                ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				fileID,
				track.TrackIndex,
				track.TrackType,
				nullableString(track.Codec),
				nullableString(track.Language),
				nullableString(track.Title),
				boolToInt(track.Default),
				boolToInt(track.Forced),
				track.Channels,
				nullableString(track.ChannelLayout),
				track.Width,
				track.Height,
				track.FrameRate,
				track.DurationSeconds,
				track.BitRate,
			); err != nil {
				return fmt.Errorf("insert track %d: %w", track.TrackIndex, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.FileByID(ctx, fileID)
}

// FileByID fetches a cataloged file by identifier.
func (s *Store) FileByID(ctx context.Context, id int64) (*File, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+fileColumns+` FROM files WHERE id = ?`, id)
	file, err := scanFile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get file: %w", err)
	}
	return file, nil
}

// FileByPath fetches a cataloged file by absolute path.
func (s *Store) FileByPath(ctx context.Context, path string) (*File, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+fileColumns+` FROM files WHERE path = ?`, path)
	file, err := scanFile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get file by path: %w", err)
	}
	return file, nil
}

// TracksForFile returns a file's tracks in container order.
func (s *Store) TracksForFile(ctx context.Context, fileID int64) ([]*Track, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+trackColumns+` FROM tracks WHERE file_id = ? ORDER BY track_index`, fileID)
	if err != nil {
		return nil, fmt.Errorf("query tracks: %w", err)
	}
	defer rows.Close()

	var tracks []*Track
	for rows.Next() {
		track, err := scanTrack(rows)
		if err != nil {
			return nil, err
		}
		tracks = append(tracks, track)
	}
	return tracks, rows.Err()
}

// TrackByID fetches a single track row.
func (s *Store) TrackByID(ctx context.Context, id int64) (*Track, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+trackColumns+` FROM tracks WHERE id = ?`, id)
	track, err := scanTrack(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get track: %w", err)
	}
	return track, nil
}

// MarkFileMissing flags a file whose path no longer exists on disk.
func (s *Store) MarkFileMissing(ctx context.Context, id int64) error {
	if err := s.execWithoutResultRetry(ctx,
		`UPDATE files SET status = ?, updated_at = ? WHERE id = ?`,
		FileStatusMissing,
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
	); err != nil {
		return fmt.Errorf("mark file missing: %w", err)
	}
	return nil
}

// UpdateFilePath records a rename produced by a move action.
func (s *Store) UpdateFilePath(ctx context.Context, id int64, newPath string) error {
	if err := s.execWithoutResultRetry(ctx,
		`UPDATE files SET path = ?, updated_at = ? WHERE id = ?`,
		newPath,
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
	); err != nil {
		return fmt.Errorf("update file path: %w", err)
	}
	return nil
}

// RemoveFile deletes a file and, through cascading foreign keys, its tracks
// and cached analysis rows.
func (s *Store) RemoveFile(ctx context.Context, id int64) (bool, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM files WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete file: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// ListFiles returns files filtered by status (or all files when no status is provided).
func (s *Store) ListFiles(ctx context.Context, statuses ...FileStatus) ([]*File, error) {
	baseQuery := `SELECT ` + fileColumns + ` FROM files`
	orderClause := ` ORDER BY path`

	var (
		rows *sql.Rows
		err  error
	)
	if len(statuses) == 0 {
		rows, err = s.db.QueryContext(ctx, baseQuery+orderClause)
	} else {
		placeholders := makePlaceholders(len(statuses))
		args := make([]any, len(statuses))
		for i, status := range statuses {
			args[i] = status
		}
		rows, err = s.db.QueryContext(ctx, baseQuery+` WHERE status IN (`+placeholders+`)`+orderClause, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	defer rows.Close()

	var files []*File
	for rows.Next() {
		file, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		files = append(files, file)
	}
	return files, rows.Err()
}
