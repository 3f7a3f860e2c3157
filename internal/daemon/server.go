package daemon

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"vpo/internal/catalog"
	"vpo/internal/logging"
	"vpo/internal/services"
)

// Handler builds the HTTP API. Everything under /api requires Basic auth
// when an auth token is configured; /health is always open.
func (d *Daemon) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", d.handleHealth)
	mux.HandleFunc("GET /api/library", d.auth(d.handleLibrary))
	mux.HandleFunc("GET /api/library/{id}", d.auth(d.handleLibraryFile))
	mux.HandleFunc("GET /api/transcriptions", d.auth(d.handleTranscriptions))
	mux.HandleFunc("GET /api/transcriptions/{id}", d.auth(d.handleTranscription))
	mux.HandleFunc("GET /api/jobs", d.auth(d.handleJobs))
	mux.HandleFunc("GET /api/jobs/{id}", d.auth(d.handleJob))
	mux.HandleFunc("GET /api/jobs/{id}/logs", d.auth(d.handleJobLogs))
	return mux
}

func (d *Daemon) auth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := d.Config().API.AuthToken
		if token != "" {
			_, password, ok := r.BasicAuth()
			if !ok || subtle.ConstantTimeCompare([]byte(password), []byte(token)) != 1 {
				w.Header().Set("WWW-Authenticate", `Basic realm="vpo"`)
				writeError(w, http.StatusUnauthorized, "authentication required")
				return
			}
		}
		next(w, r)
	}
}

// checkParams enforces the query-parameter contract: unknown parameters are
// a 400 in strict mode and a logged warning otherwise. Returns false when
// the request was already answered.
func (d *Daemon) checkParams(w http.ResponseWriter, r *http.Request, allowed ...string) bool {
	allowedSet := make(map[string]struct{}, len(allowed))
	for _, name := range allowed {
		allowedSet[name] = struct{}{}
	}
	for name := range r.URL.Query() {
		if _, ok := allowedSet[name]; ok {
			continue
		}
		if d.Config().API.StrictQuery {
			writeError(w, http.StatusBadRequest, "unknown query parameter "+name)
			return false
		}
		d.logger.WarnContext(r.Context(), "ignoring unknown query parameter",
			logging.String("param", name),
			logging.String("path", r.URL.Path))
	}
	return true
}

type healthResponse struct {
	Status        string  `json:"status"`
	Database      string  `json:"database"`
	UptimeSeconds float64 `json:"uptime_seconds"`
	Version       string  `json:"version"`
	ShuttingDown  bool    `json:"shutting_down"`
	JobsQueued    int     `json:"jobs_queued"`
	JobsRunning   int     `json:"jobs_running"`
	ActiveWorkers int     `json:"active_workers"`
	RecentErrors  int     `json:"recent_errors"`
}

func (d *Daemon) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:        "ok",
		Database:      "ok",
		UptimeSeconds: time.Since(d.startedAt).Seconds(),
		Version:       d.version,
		ShuttingDown:  d.shutting.Load(),
		ActiveWorkers: d.pool.WorkerCount(),
	}
	counts, err := d.store.CountJobs(r.Context())
	if err != nil {
		resp.Status = "degraded"
		resp.Database = "error"
	} else {
		resp.JobsQueued = counts.Queued
		resp.JobsRunning = counts.Running
		resp.RecentErrors = counts.Failed
	}

	code := http.StatusOK
	if resp.Status != "ok" || resp.ShuttingDown {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

func (d *Daemon) handleLibrary(w http.ResponseWriter, r *http.Request) {
	if !d.checkParams(w, r, "status", "path_prefix", "search", "resolution", "audio_lang", "subtitles", "limit", "offset") {
		return
	}
	filter := catalog.FileFilter{
		PathPrefix:       r.URL.Query().Get("path_prefix"),
		Search:           r.URL.Query().Get("search"),
		Resolution:       r.URL.Query().Get("resolution"),
		AudioLanguage:    r.URL.Query().Get("audio_lang"),
		SubtitleLanguage: r.URL.Query().Get("subtitles"),
	}
	if status := r.URL.Query().Get("status"); status != "" {
		filter.Status = catalog.FileStatus(status)
	}

	page, err := d.store.FilesFiltered(r.Context(), filter, pageFromQuery(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	files := make([]fileJSON, 0, len(page.Files))
	for _, file := range page.Files {
		entry := toFileJSON(file, nil)
		entry.AudioLanguages = page.AudioLanguages[file.ID]
		files = append(files, entry)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"files": files,
		"total": page.Total,
	})
}

func (d *Daemon) handleLibraryFile(w http.ResponseWriter, r *http.Request) {
	if !d.checkParams(w, r) {
		return
	}
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "malformed file id")
		return
	}
	file, err := d.store.FileByID(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if file == nil {
		writeError(w, http.StatusNotFound, "file not found")
		return
	}
	tracks, err := d.store.TracksForFile(r.Context(), file.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, toFileJSON(file, tracks))
}

func (d *Daemon) handleTranscriptions(w http.ResponseWriter, r *http.Request) {
	if !d.checkParams(w, r, "file_id", "show_all", "limit", "offset") {
		return
	}
	var fileID int64
	if raw := r.URL.Query().Get("file_id"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "malformed file_id")
			return
		}
		fileID = parsed
	}
	var showAll bool
	if raw := r.URL.Query().Get("show_all"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "malformed show_all")
			return
		}
		showAll = parsed
	}

	page, err := d.store.TranscriptionsFiltered(r.Context(), fileID, showAll, pageFromQuery(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	results := make([]transcriptionJSON, 0, len(page.Results))
	for _, view := range page.Results {
		results = append(results, toTranscriptionJSON(view))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"transcriptions": results,
		"total":          page.Total,
	})
}

func (d *Daemon) handleTranscription(w http.ResponseWriter, r *http.Request) {
	if !d.checkParams(w, r) {
		return
	}
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "malformed transcription id")
		return
	}
	view, err := d.store.TranscriptionByID(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if view == nil {
		writeError(w, http.StatusNotFound, "transcription not found")
		return
	}
	writeJSON(w, http.StatusOK, toTranscriptionJSON(view))
}

func (d *Daemon) handleJobs(w http.ResponseWriter, r *http.Request) {
	if !d.checkParams(w, r, "status", "type", "file_id", "since", "search", "sort", "order", "limit", "offset") {
		return
	}
	filter := catalog.JobFilter{
		Search: r.URL.Query().Get("search"),
	}
	if raw := r.URL.Query().Get("status"); raw != "" {
		status, ok := catalog.ParseJobStatus(raw)
		if !ok {
			writeError(w, http.StatusBadRequest, "unknown job status "+raw)
			return
		}
		filter.Status = status
	}
	if raw := r.URL.Query().Get("type"); raw != "" {
		filter.Type = catalog.JobType(raw)
	}
	if raw := r.URL.Query().Get("file_id"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "malformed file_id")
			return
		}
		filter.FileID = parsed
	}
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "malformed since timestamp")
			return
		}
		filter.Since = parsed
	}
	if raw := r.URL.Query().Get("sort"); raw != "" {
		if !catalog.ValidJobSort(raw) {
			writeError(w, http.StatusBadRequest, "unknown sort column "+raw)
			return
		}
		filter.Sort = raw
	}
	if raw := r.URL.Query().Get("order"); raw != "" {
		switch raw {
		case "asc", "desc":
			filter.Order = raw
		default:
			writeError(w, http.StatusBadRequest, "order must be asc or desc")
			return
		}
	}

	page, err := d.store.JobsFiltered(r.Context(), filter, pageFromQuery(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	jobs := make([]jobJSON, 0, len(page.Jobs))
	for _, job := range page.Jobs {
		jobs = append(jobs, toJobJSON(job))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"jobs":  jobs,
		"total": page.Total,
	})
}

func (d *Daemon) handleJob(w http.ResponseWriter, r *http.Request) {
	if !d.checkParams(w, r) {
		return
	}
	job, ok := d.resolveJob(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toJobJSON(job))
}

// resolveJob answers the request itself on lookup failure.
func (d *Daemon) resolveJob(w http.ResponseWriter, r *http.Request) (*catalog.Job, bool) {
	job, err := d.store.ResolveJobID(r.Context(), r.PathValue("id"))
	switch {
	case errors.Is(err, services.ErrNotFound):
		writeError(w, http.StatusNotFound, "job not found")
		return nil, false
	case errors.Is(err, services.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
		return nil, false
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
		return nil, false
	}
	return job, true
}

func (d *Daemon) handleJobLogs(w http.ResponseWriter, r *http.Request) {
	if !d.checkParams(w, r, "limit", "offset") {
		return
	}
	job, ok := d.resolveJob(w, r)
	if !ok {
		return
	}
	ops, err := d.store.OperationsForJob(r.Context(), job.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if page := pageFromQuery(r); page.Limit > 0 || page.Offset > 0 {
		if page.Offset >= len(ops) {
			ops = nil
		} else {
			ops = ops[page.Offset:]
		}
		if page.Limit > 0 && page.Limit < len(ops) {
			ops = ops[:page.Limit]
		}
	}
	operations := make([]operationJSON, 0, len(ops))
	for _, op := range ops {
		operations = append(operations, toOperationJSON(op))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"job_id":     job.ID,
		"operations": operations,
	})
}

func pageFromQuery(r *http.Request) catalog.Page {
	var page catalog.Page
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			page.Limit = parsed
		}
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			page.Offset = parsed
		}
	}
	return page
}

func writeJSON(w http.ResponseWriter, code int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(value)
}

func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, map[string]string{"error": message})
}
