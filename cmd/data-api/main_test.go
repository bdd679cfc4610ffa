package main

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"

	"github.com/htrc/data-api/internal/testutil"
	"github.com/htrc/data-api/pkg/archive"
	"github.com/htrc/data-api/pkg/audit"
	"github.com/htrc/data-api/pkg/config"
	"github.com/htrc/data-api/pkg/volume"
)

func setupTestServer(t *testing.T, mutate func(*config.Config)) (*httptest.Server, *testutil.FakeBackend) {
	t.Helper()

	cfg := config.Default()
	cfg.AsyncWorkerCount = 4
	cfg.MaxPagesPerRetrieval = 2
	cfg.AccessFailInitDelay = 1
	cfg.AccessFailMaxDelay = 2
	if mutate != nil {
		mutate(cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Invalid test configuration: %v", err)
	}

	backend := testutil.NewFakeBackend()
	svc, pool := newService(cfg, backend, nil, audit.Nop())
	srv := httptest.NewServer(newServer(svc, audit.Nop(), cfg.Compression()).routes())

	t.Cleanup(func() {
		srv.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := pool.Shutdown(ctx); err != nil {
			t.Errorf("Pool shutdown failed: %v", err)
		}
	})

	return srv, backend
}

func get(t *testing.T, srv *httptest.Server, path string, query url.Values) (*http.Response, []byte) {
	t.Helper()

	resp, err := http.Get(srv.URL + path + "?" + query.Encode())
	if err != nil {
		t.Fatalf("GET %s failed: %v", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read body: %v", err)
	}
	return resp, body
}

func readZip(t *testing.T, body []byte) map[string]string {
	t.Helper()

	zr, err := zip.NewReader(bytes.NewReader(body), int64(len(body)))
	if err != nil {
		t.Fatalf("Response is not a zip: %v", err)
	}
	entries := make(map[string]string, len(zr.File))
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("Failed to open %s: %v", f.Name, err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			t.Fatalf("Failed to read %s: %v", f.Name, err)
		}
		entries[f.Name] = string(data)
	}
	return entries
}

func names(entries map[string]string) []string {
	out := make([]string, 0, len(entries))
	for name := range entries {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func TestHealthEndpoint(t *testing.T) {
	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()

	healthHandler(w, req)

	resp := w.Result()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	if string(body) != "OK" {
		t.Errorf("Expected body 'OK', got %s", string(body))
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv, backend := setupTestServer(t, nil)
	backend.AddVolume("test.vol1", 1, volume.PublicDomain)

	get(t, srv, "/volumes", url.Values{"volumeIDs": {"test.vol1"}})

	resp, body := get(t, srv, "/metrics", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), "dataapi_readers_yielded_total") {
		t.Error("Expected retrieval metrics in /metrics output")
	}
}

func TestVolumesEndpoint(t *testing.T) {
	srv, backend := setupTestServer(t, nil)
	backend.AddVolume("test.vol1", 3, volume.PublicDomain, "mets.xml")

	resp, body := get(t, srv, "/volumes", url.Values{"volumeIDs": {"test.vol1"}})

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", resp.StatusCode, body)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/zip" {
		t.Errorf("Expected application/zip, got %q", ct)
	}
	if cd := resp.Header.Get("Content-Disposition"); !strings.Contains(cd, "volumes.zip") {
		t.Errorf("Expected volumes.zip attachment, got %q", cd)
	}

	entries := readZip(t, body)
	want := []string{
		"test.vol1/00000001.txt",
		"test.vol1/00000002.txt",
		"test.vol1/00000003.txt",
		"test.vol1/mets.xml",
	}
	got := names(entries)
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("Expected entries %v, got %v", want, got)
	}
	if entries["test.vol1/00000002.txt"] != testutil.PageText("test.vol1", 2) {
		t.Errorf("Unexpected page 2 content %q", entries["test.vol1/00000002.txt"])
	}
	if entries["test.vol1/mets.xml"] != "mets.xml of test.vol1" {
		t.Errorf("Unexpected metadata content %q", entries["test.vol1/mets.xml"])
	}
}

func TestVolumesEndpoint_Concat(t *testing.T) {
	srv, backend := setupTestServer(t, nil)
	backend.AddVolume("test.vol1", 3, volume.PublicDomain)

	resp, body := get(t, srv, "/volumes", url.Values{
		"volumeIDs": {"test.vol1<3,1,2>"},
		"concat":    {"true"},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", resp.StatusCode, body)
	}

	entries := readZip(t, body)
	want := testutil.PageText("test.vol1", 1) + testutil.PageText("test.vol1", 2) + testutil.PageText("test.vol1", 3)
	if entries["test.vol1.txt"] != want {
		t.Errorf("Expected pages concatenated in order, got %q", entries["test.vol1.txt"])
	}
}

func TestVolumesEndpoint_Post(t *testing.T) {
	srv, backend := setupTestServer(t, nil)
	backend.AddVolume("test.vol1", 1, volume.PublicDomain)

	resp, err := http.PostForm(srv.URL+"/volumes", url.Values{"volumeIDs": {"test.vol1"}})
	if err != nil {
		t.Fatalf("POST failed: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", resp.StatusCode, body)
	}
	if _, ok := readZip(t, body)["test.vol1/00000001.txt"]; !ok {
		t.Error("Expected page entry in POST response")
	}
}

func TestPagesEndpoint(t *testing.T) {
	srv, backend := setupTestServer(t, nil)
	backend.AddVolume("test.vol1", 5, volume.PublicDomain)
	backend.AddVolume("test.vol2", 5, volume.PublicDomain)

	resp, body := get(t, srv, "/pages", url.Values{"pageIDs": {"test.vol1<2>|test.vol2<4,5>"}})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", resp.StatusCode, body)
	}

	want := []string{
		"test.vol1/00000002.txt",
		"test.vol2/00000004.txt",
		"test.vol2/00000005.txt",
	}
	got := names(readZip(t, body))
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("Expected entries %v, got %v", want, got)
	}
}

func TestRejectedRequests(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		query      url.Values
		wantStatus int
	}{
		{
			name:       "empty list",
			path:       "/volumes",
			query:      url.Values{"volumeIDs": {""}},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "malformed identifier",
			path:       "/volumes",
			query:      url.Values{"volumeIDs": {"novolume"}},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "metadata name leaving the volume",
			path:       "/pages",
			query:      url.Values{"pageIDs": {"test.vol1<1>[../../test.vol2/pages/00000001]"}},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "pages without sequences",
			path:       "/pages",
			query:      url.Values{"pageIDs": {"test.vol1"}},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "too many volumes",
			path:       "/volumes",
			query:      url.Values{"volumeIDs": {"test.vol1|test.vol2|test.vol3"}},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "unknown volume",
			path:       "/volumes",
			query:      url.Values{"volumeIDs": {"test.missing"}},
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "unknown page",
			path:       "/pages",
			query:      url.Values{"pageIDs": {"test.vol1<9>"}},
			wantStatus: http.StatusNotFound,
		},
	}

	srv, backend := setupTestServer(t, func(c *config.Config) {
		c.MaxVolumesAllowed = 2
	})
	backend.AddVolume("test.vol1", 2, volume.PublicDomain)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := get(t, srv, tt.path, tt.query)
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("Expected status %d, got %d: %s", tt.wantStatus, resp.StatusCode, body)
			}
			if ct := resp.Header.Get("Content-Type"); ct == "application/zip" {
				t.Error("Rejected request should not be served as a zip")
			}
		})
	}
}

func TestRepositoryFailureStatus(t *testing.T) {
	srv, backend := setupTestServer(t, func(c *config.Config) {
		c.AccessMaxAttempts = 2
	})
	backend.AddVolume("test.vol1", 2, volume.PublicDomain)
	backend.Script("test.vol1", testutil.Behavior{AlwaysFail: true})

	resp, body := get(t, srv, "/volumes", url.Values{"volumeIDs": {"test.vol1"}})
	if resp.StatusCode != http.StatusFailedDependency {
		t.Errorf("Expected status 424, got %d: %s", resp.StatusCode, body)
	}
}

func TestFailureAfterArchiveStarted(t *testing.T) {
	srv, backend := setupTestServer(t, nil)
	backend.AddVolume("test.vol1", 2, volume.PublicDomain)

	resp, body := get(t, srv, "/volumes", url.Values{"volumeIDs": {"test.vol1|test.missing"}})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200 once the archive started, got %d", resp.StatusCode)
	}

	entries := readZip(t, body)
	if _, ok := entries["test.vol1/00000001.txt"]; !ok {
		t.Errorf("Expected good volume in archive, got %v", names(entries))
	}
	errText, ok := entries[archive.ErrorEntry]
	if !ok {
		t.Fatalf("Expected %s entry, got %v", archive.ErrorEntry, names(entries))
	}
	if !strings.Contains(errText, "test.missing") {
		t.Errorf("Expected error entry to name the missing volume, got %q", errText)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	srv, _ := setupTestServer(t, nil)

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/volumes", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE failed: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("Expected status 405, got %d", resp.StatusCode)
	}
	if allow := resp.Header.Get("Allow"); allow != "GET, POST" {
		t.Errorf("Expected Allow header, got %q", allow)
	}
}

func TestOpenBackend(t *testing.T) {
	ctx := context.Background()

	t.Run("memory", func(t *testing.T) {
		cfg := config.Default()
		backend, closeFn, err := openBackend(ctx, cfg, nil)
		if err != nil {
			t.Fatalf("openBackend failed: %v", err)
		}
		defer closeFn()
		if backend == nil {
			t.Fatal("Expected a backend")
		}
	})

	t.Run("blob", func(t *testing.T) {
		cfg := config.Default()
		cfg.StorageBackend = config.BackendBlob
		cfg.BlobURL = "mem://"
		backend, closeFn, err := openBackend(ctx, cfg, nil)
		if err != nil {
			t.Fatalf("openBackend failed: %v", err)
		}
		defer closeFn()

		if _, err := backend.VolumeInfo(ctx, "test.vol1"); err == nil {
			t.Error("Expected an error for a volume absent from an empty bucket")
		}
	})

	t.Run("unknown", func(t *testing.T) {
		cfg := config.Default()
		cfg.StorageBackend = "cassandra"
		if _, _, err := openBackend(ctx, cfg, nil); err == nil {
			t.Error("Expected an error for an unknown backend")
		}
	})
}
