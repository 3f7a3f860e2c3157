package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Page bounds a filtered listing.
type Page struct {
	Limit  int
	Offset int
}

func (p Page) normalized() Page {
	if p.Limit <= 0 || p.Limit > 500 {
		p.Limit = 100
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

// FileFilter narrows library listings. AudioLanguage and SubtitleLanguage
// match files carrying at least one track of that type in that language.
type FileFilter struct {
	Status           FileStatus
	PathPrefix       string
	Search           string
	Resolution       string
	AudioLanguage    string
	SubtitleLanguage string
}

// FilePage is one page of library results plus the unpaged total.
// AudioLanguages carries each file's distinct audio languages keyed by file id.
type FilePage struct {
	Files          []*File
	AudioLanguages map[int64][]string
	Total          int
}

// FilesFiltered returns one page of cataloged files matching the filter.
// The total count ignores paging so callers can render page controls.
func (s *Store) FilesFiltered(ctx context.Context, filter FileFilter, page Page) (*FilePage, error) {
	page = page.normalized()

	var (
		conditions []string
		args       []any
	)
	if filter.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.PathPrefix != "" {
		conditions = append(conditions, "path LIKE ? || '%'")
		args = append(args, filter.PathPrefix)
	}
	if filter.Search != "" {
		conditions = append(conditions, "path LIKE '%' || ? || '%'")
		args = append(args, filter.Search)
	}
	if filter.Resolution != "" {
		conditions = append(conditions, "resolution = ?")
		args = append(args, filter.Resolution)
	}
	if filter.AudioLanguage != "" {
		conditions = append(conditions,
			"EXISTS (SELECT 1 FROM tracks t WHERE t.file_id = files.id AND t.track_type = 'audio' AND t.language = ?)")
		args = append(args, filter.AudioLanguage)
	}
	if filter.SubtitleLanguage != "" {
		conditions = append(conditions,
			"EXISTS (SELECT 1 FROM tracks t WHERE t.file_id = files.id AND t.track_type = 'subtitle' AND t.language = ?)")
		args = append(args, filter.SubtitleLanguage)
	}

	countQuery := `SELECT COUNT(*) FROM files`
	listQuery := `SELECT ` + fileColumns + ` FROM files`
	if len(conditions) > 0 {
		clause := ` WHERE ` + strings.Join(conditions, " AND ")
		countQuery += clause
		listQuery += clause
	}
	listQuery += ` ORDER BY path LIMIT ? OFFSET ?`

	result := &FilePage{}
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&result.Total); err != nil {
		return nil, fmt.Errorf("count library page: %w", err)
	}

	args = append(args, page.Limit, page.Offset)
	rows, err := s.db.QueryContext(ctx, listQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("query library page: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		file, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		result.Files = append(result.Files, file)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	result.AudioLanguages, err = s.audioLanguagesFor(ctx, result.Files)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// audioLanguagesFor collects the distinct audio languages for each listed file.
func (s *Store) audioLanguagesFor(ctx context.Context, files []*File) (map[int64][]string, error) {
	languages := make(map[int64][]string, len(files))
	if len(files) == 0 {
		return languages, nil
	}

	placeholders := make([]string, 0, len(files))
	args := make([]any, 0, len(files))
	for _, file := range files {
		placeholders = append(placeholders, "?")
		args = append(args, file.ID)
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT file_id, language FROM tracks
         WHERE track_type = 'audio' AND language != ''
           AND file_id IN (`+strings.Join(placeholders, ",")+`)
         ORDER BY file_id, language`,
		args...)
	if err != nil {
		return nil, fmt.Errorf("query audio languages: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var fileID int64
		var lang string
		if err := rows.Scan(&fileID, &lang); err != nil {
			return nil, err
		}
		languages[fileID] = append(languages[fileID], lang)
	}
	return languages, rows.Err()
}

// JobFilter narrows job listings. Sort accepts created_at, updated_at, status,
// type and file_path; Order accepts asc and desc. Unknown values fall back to
// newest first.
type JobFilter struct {
	Status JobStatus
	Type   JobType
	FileID int64
	Since  time.Time
	Search string
	Sort   string
	Order  string
}

var jobSortColumns = map[string]string{
	"created_at": "created_at",
	"updated_at": "updated_at",
	"status":     "status",
	"type":       "type",
	"file_path":  "file_path",
}

// ValidJobSort reports whether the column is an accepted job sort key.
func ValidJobSort(column string) bool {
	_, ok := jobSortColumns[column]
	return ok
}

func (f JobFilter) orderClause() string {
	column, ok := jobSortColumns[f.Sort]
	if !ok {
		column = "created_at"
	}
	direction := "DESC"
	if strings.EqualFold(f.Order, "asc") {
		direction = "ASC"
	}
	return ` ORDER BY ` + column + ` ` + direction + ` LIMIT ? OFFSET ?`
}

// JobPage is one page of job results plus the unpaged total.
type JobPage struct {
	Jobs  []*Job
	Total int
}

// JobsFiltered returns one page of jobs matching the filter, newest first.
func (s *Store) JobsFiltered(ctx context.Context, filter JobFilter, page Page) (*JobPage, error) {
	page = page.normalized()

	var (
		conditions []string
		args       []any
	)
	if filter.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.Type != "" {
		conditions = append(conditions, "type = ?")
		args = append(args, filter.Type)
	}
	if filter.FileID != 0 {
		conditions = append(conditions, "file_id = ?")
		args = append(args, filter.FileID)
	}
	if !filter.Since.IsZero() {
		conditions = append(conditions, "created_at >= ?")
		args = append(args, filter.Since.UTC().Format(time.RFC3339Nano))
	}
	if filter.Search != "" {
		conditions = append(conditions, "file_path LIKE '%' || ? || '%'")
		args = append(args, filter.Search)
	}

	countQuery := `SELECT COUNT(*) FROM jobs`
	listQuery := `SELECT ` + jobColumns + ` FROM jobs`
	if len(conditions) > 0 {
		clause := ` WHERE ` + strings.Join(conditions, " AND ")
		countQuery += clause
		listQuery += clause
	}
	listQuery += filter.orderClause()

	result := &JobPage{}
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&result.Total); err != nil {
		return nil, fmt.Errorf("count jobs page: %w", err)
	}

	args = append(args, page.Limit, page.Offset)
	rows, err := s.db.QueryContext(ctx, listQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("query jobs page: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		result.Jobs = append(result.Jobs, job)
	}
	return result, rows.Err()
}

// TranscriptionView joins a cached transcription with its file context for
// API listings.
type TranscriptionView struct {
	TranscriptionResult
	FileID     int64
	FilePath   string
	TrackIndex int
}

// TranscriptionPage is one page of transcription results plus the unpaged total.
type TranscriptionPage struct {
	Results []*TranscriptionView
	Total   int
}

const transcriptionViewColumns = `r.id, r.track_id, r.file_hash, r.language, r.confidence,
                r.track_type, r.transcript_sample, r.segments_json, r.plugin, r.created_at,
                t.file_id, f.path, t.track_index`

func scanTranscriptionView(scanner rowScanner) (*TranscriptionView, error) {
	view := &TranscriptionView{}
	var (
		trackType  sql.NullString
		transcript sql.NullString
		segments   sql.NullString
		plugin     sql.NullString
		createdRaw sql.NullString
	)
	if err := scanner.Scan(
		&view.ID, &view.TrackID, &view.FileHash, &view.Language, &view.Confidence,
		&trackType, &transcript, &segments, &plugin, &createdRaw,
		&view.FileID, &view.FilePath, &view.TrackIndex,
	); err != nil {
		return nil, err
	}
	view.TrackType = trackType.String
	view.TranscriptSample = transcript.String
	view.SegmentsJSON = segments.String
	view.Plugin = plugin.String
	if t, err := parseTimeString(createdRaw.String); err == nil {
		view.CreatedAt = t
	}
	return view, nil
}

// TranscriptionsFiltered returns one page of cached transcriptions, newest
// first, optionally restricted to one file. Results from superseded file
// hashes are hidden unless showAll is set.
func (s *Store) TranscriptionsFiltered(ctx context.Context, fileID int64, showAll bool, page Page) (*TranscriptionPage, error) {
	page = page.normalized()

	baseFrom := ` FROM transcription_results r
         JOIN tracks t ON t.id = r.track_id
         JOIN files f ON f.id = t.file_id`
	var (
		conditions []string
		args       []any
	)
	if fileID != 0 {
		conditions = append(conditions, "t.file_id = ?")
		args = append(args, fileID)
	}
	if !showAll {
		conditions = append(conditions, "r.file_hash = f.file_hash")
	}
	var clause string
	if len(conditions) > 0 {
		clause = ` WHERE ` + strings.Join(conditions, " AND ")
	}

	result := &TranscriptionPage{}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*)`+baseFrom+clause, args...).Scan(&result.Total); err != nil {
		return nil, fmt.Errorf("count transcriptions page: %w", err)
	}

	args = append(args, page.Limit, page.Offset)
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+transcriptionViewColumns+baseFrom+clause+` ORDER BY r.created_at DESC LIMIT ? OFFSET ?`,
		args...)
	if err != nil {
		return nil, fmt.Errorf("query transcriptions page: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		view, err := scanTranscriptionView(rows)
		if err != nil {
			return nil, err
		}
		result.Results = append(result.Results, view)
	}
	return result, rows.Err()
}

// TranscriptionByID fetches one cached transcription with file context.
func (s *Store) TranscriptionByID(ctx context.Context, id int64) (*TranscriptionView, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+transcriptionViewColumns+`
         FROM transcription_results r
         JOIN tracks t ON t.id = r.track_id
         JOIN files f ON f.id = t.file_id
         WHERE r.id = ?`, id)
	view, err := scanTranscriptionView(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get transcription view: %w", err)
	}
	return view, nil
}
