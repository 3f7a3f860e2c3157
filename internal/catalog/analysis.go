package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SaveTranscription caches one plugin verdict keyed by (track, file hash).
// Re-saving for the same key overwrites the previous result.
func (s *Store) SaveTranscription(ctx context.Context, result *TranscriptionResult) error {
	if result == nil {
		return errors.New("result is nil")
	}
	if err := s.execWithoutResultRetry(ctx,
		`INSERT INTO transcription_results (
            track_id, file_hash, language, confidence,
            track_type, transcript_sample, segments_json, plugin, created_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT (track_id, file_hash) DO UPDATE SET
             language = excluded.language, confidence = excluded.confidence,
             track_type = excluded.track_type,
             transcript_sample = excluded.transcript_sample,
             segments_json = excluded.segments_json,
             plugin = excluded.plugin, created_at = excluded.created_at`,
		result.TrackID,
		result.FileHash,
		result.Language,
		result.Confidence,
		nullableString(result.TrackType),
		nullableString(result.TranscriptSample),
		nullableString(result.SegmentsJSON),
		nullableString(result.Plugin),
		time.Now().UTC().Format(time.RFC3339Nano),
	); err != nil {
		return fmt.Errorf("save transcription: %w", err)
	}
	return nil
}

// TranscriptionFor returns the cached verdict for a track at a specific file
// hash, or nil when no verdict is cached.
func (s *Store) TranscriptionFor(ctx context.Context, trackID int64, fileHash string) (*TranscriptionResult, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, track_id, file_hash, language, confidence,
                track_type, transcript_sample, segments_json, plugin, created_at
         FROM transcription_results WHERE track_id = ? AND file_hash = ?`,
		trackID, fileHash)
	result, err := scanTranscription(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get transcription: %w", err)
	}
	return result, nil
}

func scanTranscription(scanner rowScanner) (*TranscriptionResult, error) {
	var (
		id         int64
		trackID    int64
		fileHash   string
		language   string
		confidence float64
		trackType  sql.NullString
		transcript sql.NullString
		segments   sql.NullString
		plugin     sql.NullString
		createdRaw sql.NullString
	)
	if err := scanner.Scan(&id, &trackID, &fileHash, &language, &confidence,
		&trackType, &transcript, &segments, &plugin, &createdRaw); err != nil {
		return nil, err
	}
	result := &TranscriptionResult{
		ID:               id,
		TrackID:          trackID,
		FileHash:         fileHash,
		Language:         language,
		Confidence:       confidence,
		TrackType:        trackType.String,
		TranscriptSample: transcript.String,
		SegmentsJSON:     segments.String,
		Plugin:           plugin.String,
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		result.CreatedAt = created
	}
	return result, nil
}

// SaveLanguageAnalysis stores the aggregated multi-sample verdict for a track.
func (s *Store) SaveLanguageAnalysis(ctx context.Context, analysis *LanguageAnalysis) error {
	if analysis == nil {
		return errors.New("analysis is nil")
	}
	if err := s.execWithoutResultRetry(ctx,
		`INSERT INTO language_analysis_results (
            track_id, file_hash, result_type, language, confidence,
            samples_json, detection_method, created_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT (track_id, file_hash) DO UPDATE SET
            result_type = excluded.result_type, language = excluded.language,
            confidence = excluded.confidence, samples_json = excluded.samples_json,
            detection_method = excluded.detection_method, created_at = excluded.created_at`,
		analysis.TrackID,
		analysis.FileHash,
		analysis.ResultType,
		analysis.Language,
		analysis.Confidence,
		nullableString(analysis.SamplesJSON),
		nullableString(analysis.DetectionMethod),
		time.Now().UTC().Format(time.RFC3339Nano),
	); err != nil {
		return fmt.Errorf("save language analysis: %w", err)
	}
	return nil
}

// LanguageAnalysisFor returns the cached analysis for a track at a specific
// file hash, or nil when none is cached.
func (s *Store) LanguageAnalysisFor(ctx context.Context, trackID int64, fileHash string) (*LanguageAnalysis, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, track_id, file_hash, result_type, language, confidence, samples_json, detection_method, created_at
         FROM language_analysis_results WHERE track_id = ? AND file_hash = ?`,
		trackID, fileHash)

	var (
		id         int64
		tID        int64
		hash       string
		resultType string
		language   string
		confidence float64
		samples    sql.NullString
		method     sql.NullString
		createdRaw sql.NullString
	)
	err := row.Scan(&id, &tID, &hash, &resultType, &language, &confidence, &samples, &method, &createdRaw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get language analysis: %w", err)
	}

	analysis := &LanguageAnalysis{
		ID:              id,
		TrackID:         tID,
		FileHash:        hash,
		ResultType:      AnalysisResultType(resultType),
		Language:        language,
		Confidence:      confidence,
		SamplesJSON:     samples.String,
		DetectionMethod: method.String,
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		analysis.CreatedAt = created
	}
	return analysis, nil
}

// SaveClassification stores the resolved role of a track, replacing any
// previous classification.
func (s *Store) SaveClassification(ctx context.Context, c *TrackClassification) error {
	if c == nil {
		return errors.New("classification is nil")
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	if err := s.execWithoutResultRetry(ctx,
		`INSERT INTO track_classifications (track_id, track_type, detection_method, confidence_score, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?)
         ON CONFLICT (track_id) DO UPDATE SET
             track_type = excluded.track_type,
             detection_method = excluded.detection_method,
             confidence_score = excluded.confidence_score,
             updated_at = excluded.updated_at`,
		c.TrackID,
		c.TrackType,
		c.DetectionMethod,
		c.Confidence,
		now,
		now,
	); err != nil {
		return fmt.Errorf("save classification: %w", err)
	}
	return nil
}

// ClassificationsForFile returns the stored classifications for a file's
// tracks keyed by track id.
func (s *Store) ClassificationsForFile(ctx context.Context, fileID int64) (map[int64]*TrackClassification, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT c.id, c.track_id, c.track_type, c.detection_method, c.confidence_score, c.created_at, c.updated_at
         FROM track_classifications c
         JOIN tracks t ON t.id = c.track_id
         WHERE t.file_id = ?`,
		fileID)
	if err != nil {
		return nil, fmt.Errorf("query classifications: %w", err)
	}
	defer rows.Close()

	result := make(map[int64]*TrackClassification)
	for rows.Next() {
		var (
			id         int64
			trackID    int64
			trackType  string
			method     string
			confidence float64
			createdRaw sql.NullString
			updatedRaw sql.NullString
		)
		if err := rows.Scan(&id, &trackID, &trackType, &method, &confidence, &createdRaw, &updatedRaw); err != nil {
			return nil, err
		}
		c := &TrackClassification{ID: id, TrackID: trackID, TrackType: trackType, DetectionMethod: method, Confidence: confidence}
		if created, err := parseTimeString(createdRaw.String); err == nil {
			c.CreatedAt = created
		}
		if updated, err := parseTimeString(updatedRaw.String); err == nil {
			c.UpdatedAt = updated
		}
		result[trackID] = c
	}
	return result, rows.Err()
}
