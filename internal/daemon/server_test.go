package daemon

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"vpo/internal/catalog"
	"vpo/internal/config"
	"vpo/internal/logging"
	"vpo/internal/testsupport"
	"vpo/internal/worker"
)

func newTestDaemon(t *testing.T) (*Daemon, *catalog.Store, *config.Config) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	return daemonFor(cfg, store), store, cfg
}

func daemonFor(cfg *config.Config, store *catalog.Store) *Daemon {
	pool := worker.NewPool(cfg, store, logging.NewNop())
	return New(cfg, "", store, pool, "test", logging.NewNop())
}

func getJSON(t *testing.T, server *httptest.Server, path string, auth string, out any) int {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, server.URL+path, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if auth != "" {
		req.SetBasicAuth("vpo", auth)
	}
	resp, err := server.Client().Do(req)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", path, err)
		}
	}
	return resp.StatusCode
}

func TestHealthEndpoint(t *testing.T) {
	d, store, cfg := newTestDaemon(t)
	file := testsupport.NewFile(t, store, filepath.Join(testsupport.BaseDir(cfg), "Health (2021).mkv"))
	testsupport.NewJob(t, store, file.ID, file.Path)

	server := httptest.NewServer(d.Handler())
	defer server.Close()

	var health healthResponse
	if code := getJSON(t, server, "/health", "", &health); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if health.Status != "ok" || health.Database != "ok" {
		t.Fatalf("health = %+v", health)
	}
	if health.JobsQueued != 1 || health.Version != "test" || health.ShuttingDown {
		t.Fatalf("health = %+v", health)
	}
	if health.ActiveWorkers == 0 {
		t.Fatal("active_workers should report the configured pool size")
	}
}

func TestLibraryEndpoints(t *testing.T) {
	d, store, cfg := newTestDaemon(t)
	file := testsupport.NewFile(t, store, filepath.Join(testsupport.BaseDir(cfg), "Library (2020).mkv"))

	server := httptest.NewServer(d.Handler())
	defer server.Close()

	var listing struct {
		Files []fileJSON `json:"files"`
		Total int        `json:"total"`
	}
	if code := getJSON(t, server, "/api/library", "", &listing); code != http.StatusOK {
		t.Fatalf("list status = %d", code)
	}
	if listing.Total != 1 || len(listing.Files) != 1 || listing.Files[0].Path != file.Path {
		t.Fatalf("listing = %+v", listing)
	}
	if len(listing.Files[0].AudioLanguages) != 1 || listing.Files[0].AudioLanguages[0] != "eng" {
		t.Fatalf("audio languages = %v, want [eng]", listing.Files[0].AudioLanguages)
	}

	if code := getJSON(t, server, "/api/library?search=Library&audio_lang=eng", "", &listing); code != http.StatusOK {
		t.Fatalf("filtered list status = %d", code)
	}
	if listing.Total != 1 {
		t.Fatalf("filtered total = %d, want 1", listing.Total)
	}
	if code := getJSON(t, server, "/api/library?audio_lang=jpn", "", &listing); code != http.StatusOK {
		t.Fatalf("language miss status = %d", code)
	}
	if listing.Total != 0 {
		t.Fatalf("jpn filter total = %d, want 0", listing.Total)
	}

	var detail fileJSON
	if code := getJSON(t, server, fmt.Sprintf("/api/library/%d", file.ID), "", &detail); code != http.StatusOK {
		t.Fatalf("detail status = %d", code)
	}
	if len(detail.Tracks) != 2 {
		t.Fatalf("detail tracks = %d, want 2", len(detail.Tracks))
	}

	if code := getJSON(t, server, "/api/library/99999", "", nil); code != http.StatusNotFound {
		t.Fatalf("missing file status = %d, want 404", code)
	}
	if code := getJSON(t, server, "/api/library/not-a-number", "", nil); code != http.StatusBadRequest {
		t.Fatalf("malformed id status = %d, want 400", code)
	}
}

func TestJobEndpoints(t *testing.T) {
	d, store, cfg := newTestDaemon(t)
	file := testsupport.NewFile(t, store, filepath.Join(testsupport.BaseDir(cfg), "Jobs (2019).mkv"))
	job := testsupport.NewJob(t, store, file.ID, file.Path)

	server := httptest.NewServer(d.Handler())
	defer server.Close()

	var listing struct {
		Jobs  []jobJSON `json:"jobs"`
		Total int       `json:"total"`
	}
	if code := getJSON(t, server, "/api/jobs?status=queued", "", &listing); code != http.StatusOK {
		t.Fatalf("list status = %d", code)
	}
	if listing.Total != 1 || listing.Jobs[0].ID != job.ID {
		t.Fatalf("listing = %+v", listing)
	}

	if code := getJSON(t, server, "/api/jobs?status=bogus", "", nil); code != http.StatusBadRequest {
		t.Fatalf("bogus status filter = %d, want 400", code)
	}

	if code := getJSON(t, server, "/api/jobs?search=Jobs&sort=file_path&order=asc", "", &listing); code != http.StatusOK {
		t.Fatalf("sorted list status = %d", code)
	}
	if listing.Total != 1 {
		t.Fatalf("search total = %d, want 1", listing.Total)
	}
	if code := getJSON(t, server, "/api/jobs?sort=bogus", "", nil); code != http.StatusBadRequest {
		t.Fatalf("bogus sort = %d, want 400", code)
	}
	if code := getJSON(t, server, "/api/jobs?order=sideways", "", nil); code != http.StatusBadRequest {
		t.Fatalf("bogus order = %d, want 400", code)
	}
	if code := getJSON(t, server, "/api/jobs?since=not-a-time", "", nil); code != http.StatusBadRequest {
		t.Fatalf("malformed since = %d, want 400", code)
	}
	if code := getJSON(t, server, "/api/jobs?since=2030-01-01T00:00:00Z", "", &listing); code != http.StatusOK {
		t.Fatalf("since list status = %d", code)
	}
	if listing.Total != 0 {
		t.Fatalf("future since total = %d, want 0", listing.Total)
	}

	var detail jobJSON
	if code := getJSON(t, server, "/api/jobs/"+job.ID, "", &detail); code != http.StatusOK {
		t.Fatalf("detail status = %d", code)
	}
	if detail.Status != string(catalog.JobStatusQueued) {
		t.Fatalf("detail = %+v", detail)
	}

	var logs struct {
		JobID string `json:"job_id"`
	}
	if code := getJSON(t, server, "/api/jobs/"+job.ID+"/logs", "", &logs); code != http.StatusOK {
		t.Fatalf("logs status = %d", code)
	}
	if logs.JobID != job.ID {
		t.Fatalf("logs = %+v", logs)
	}
}

func TestTranscriptionEndpointShowAll(t *testing.T) {
	d, _, _ := newTestDaemon(t)

	server := httptest.NewServer(d.Handler())
	defer server.Close()

	var listing struct {
		Total int `json:"total"`
	}
	if code := getJSON(t, server, "/api/transcriptions?show_all=true", "", &listing); code != http.StatusOK {
		t.Fatalf("show_all status = %d", code)
	}
	if code := getJSON(t, server, "/api/transcriptions?show_all=banana", "", nil); code != http.StatusBadRequest {
		t.Fatalf("malformed show_all = %d, want 400", code)
	}
}

func TestStrictQueryRejectsUnknownParams(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	cfg.API.StrictQuery = true
	strict := httptest.NewServer(daemonFor(cfg, store).Handler())
	defer strict.Close()

	var body map[string]string
	if code := getJSON(t, strict, "/api/library?bogus=1", "", &body); code != http.StatusBadRequest {
		t.Fatalf("strict status = %d, want 400", code)
	}
	if body["error"] == "" {
		t.Fatal("error body missing")
	}

	lenientCfg := testsupport.NewConfig(t)
	lenient := httptest.NewServer(daemonFor(lenientCfg, testsupport.MustOpenStore(t, lenientCfg)).Handler())
	defer lenient.Close()

	if code := getJSON(t, lenient, "/api/library?bogus=1", "", nil); code != http.StatusOK {
		t.Fatal("lenient mode must ignore unknown params")
	}
}

func TestBasicAuthGuardsAPI(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.API.AuthToken = "sekrit"
	d := daemonFor(cfg, testsupport.MustOpenStore(t, cfg))

	server := httptest.NewServer(d.Handler())
	defer server.Close()

	if code := getJSON(t, server, "/api/library", "", nil); code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated status = %d, want 401", code)
	}
	if code := getJSON(t, server, "/api/library", "wrong", nil); code != http.StatusUnauthorized {
		t.Fatalf("wrong token status = %d, want 401", code)
	}
	if code := getJSON(t, server, "/api/library", "sekrit", nil); code != http.StatusOK {
		t.Fatalf("authenticated status = %d, want 200", code)
	}
	if code := getJSON(t, server, "/health", "", nil); code != http.StatusOK {
		t.Fatal("/health must stay open")
	}
}
