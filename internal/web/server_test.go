package web

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/zetlen/csvstream/internal/config"
	"github.com/zetlen/csvstream/internal/core"
	"github.com/zetlen/csvstream/internal/validate"
)

func newTestServer(t *testing.T) (*Server, *core.MemoryStore) {
	t.Helper()
	core.ClearDatasets()
	t.Cleanup(core.ClearDatasets)

	store := core.NewMemoryStore()
	svc := core.NewService(store, nil, core.Options{
		MaxConcurrent: 2,
		BatchSize:     10,
		Timeout:       5 * time.Second,
		CleanupDelay:  time.Hour,
	})

	cfg := &config.Config{
		Server: config.ServerConfig{
			Port:           8080,
			RequestTimeout: 5 * time.Second,
		},
		Ingest: config.IngestConfig{
			MaxBodySize: 1 << 20,
		},
		Rate: config.RateLimitConfig{Enabled: false},
	}

	return NewServer(svc, cfg), store
}

func mustRegister(t *testing.T, ds core.Dataset) {
	t.Helper()
	if err := core.Register(ds); err != nil {
		t.Fatalf("Register(%s): %v", ds.Key, err)
	}
}

func TestHandleIngest(t *testing.T) {
	srv, store := newTestServer(t)
	mustRegister(t, core.Dataset{Key: "people", Label: "People"})

	body := "name,age\nAlice,30\nBob,25\n"
	req := httptest.NewRequest(http.MethodPost, "/api/ingest/people", strings.NewReader(body))
	req.Header.Set("X-File-Name", "people.csv")
	rec := httptest.NewRecorder()

	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var result core.IngestResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result.Rows != 2 || result.Stored != 2 {
		t.Errorf("result = %+v, want 2 rows stored", result)
	}
	if result.FileName != "people.csv" {
		t.Errorf("FileName = %q, want people.csv", result.FileName)
	}
	if got := store.Rows(result.ID); len(got) != 2 {
		t.Errorf("stored rows = %d, want 2", len(got))
	}
}

func TestHandleIngest_Gzip(t *testing.T) {
	srv, _ := newTestServer(t)
	mustRegister(t, core.Dataset{Key: "people"})

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write([]byte("name\nAlice\nBob\nCarol\n")); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/ingest/people", &buf)
	req.Header.Set("Content-Encoding", "gzip")
	rec := httptest.NewRecorder()

	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var result core.IngestResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatal(err)
	}
	if result.Rows != 3 {
		t.Errorf("Rows = %d, want 3", result.Rows)
	}
}

func TestHandleIngest_UnknownDataset(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/ingest/nope", strings.NewReader("a\n1\n"))
	rec := httptest.NewRecorder()

	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestHandleIngest_UnsupportedEncoding(t *testing.T) {
	srv, _ := newTestServer(t)
	mustRegister(t, core.Dataset{Key: "people"})

	req := httptest.NewRequest(http.MethodPost, "/api/ingest/people", strings.NewReader("a\n1\n"))
	req.Header.Set("Content-Encoding", "br")
	rec := httptest.NewRecorder()

	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnsupportedMediaType {
		t.Errorf("status = %d, want 415", rec.Code)
	}
}

func TestHandleIngest_HeaderMismatch(t *testing.T) {
	srv, _ := newTestServer(t)
	mustRegister(t, core.Dataset{Key: "orders", Columns: []string{"id", "total"}})

	req := httptest.NewRequest(http.MethodPost, "/api/ingest/orders", strings.NewReader("id,amount\n1,5\n"))
	rec := httptest.NewRecorder()

	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422; body = %s", rec.Code, rec.Body.String())
	}

	var result core.IngestResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(result.Error, "header") {
		t.Errorf("Error = %q, want header mismatch", result.Error)
	}
}

func TestHandleIngest_BadDelimiter(t *testing.T) {
	srv, _ := newTestServer(t)
	mustRegister(t, core.Dataset{Key: "people"})

	req := httptest.NewRequest(http.MethodPost, "/api/ingest/people?delimiter=ab", strings.NewReader("a\n1\n"))
	rec := httptest.NewRecorder()

	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestHandleIngest_TabDelimiter(t *testing.T) {
	srv, _ := newTestServer(t)
	mustRegister(t, core.Dataset{Key: "people"})

	req := httptest.NewRequest(http.MethodPost, "/api/ingest/people?delimiter=tab",
		strings.NewReader("name\tage\nAlice\t30\n"))
	rec := httptest.NewRecorder()

	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var result core.IngestResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatal(err)
	}
	if result.Rows != 1 {
		t.Errorf("Rows = %d, want 1", result.Rows)
	}
}

func TestHandleListDatasets(t *testing.T) {
	srv, _ := newTestServer(t)
	mustRegister(t, core.Dataset{Key: "a", Label: "A"})
	mustRegister(t, core.Dataset{Key: "b", Label: "B"})

	req := httptest.NewRequest(http.MethodGet, "/api/datasets", nil)
	rec := httptest.NewRecorder()

	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var resp struct {
		Datasets []core.Dataset `json:"datasets"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Datasets) != 2 {
		t.Errorf("datasets = %d, want 2", len(resp.Datasets))
	}
}

func TestHandleHealth(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()

	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"status":"ok"`) {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestHandleIngestResult_NotFound(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet,
		"/api/ingests/00000000-0000-0000-0000-000000000001/result", nil)
	rec := httptest.NewRecorder()

	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestHandleCancel_InvalidID(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/ingests/not-a-uuid/cancel", nil)
	rec := httptest.NewRecorder()

	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestHandleExportFailedRows(t *testing.T) {
	srv, _ := newTestServer(t)
	mustRegister(t, core.Dataset{
		Key:     "accounts",
		Columns: []string{"id", "balance"},
		Specs: []validate.FieldSpec{
			{Name: "id", Type: validate.FieldNumeric, Required: true},
			{Name: "balance", Type: validate.FieldNumeric, Required: true},
		},
	})

	ingest := httptest.NewRequest(http.MethodPost, "/api/ingest/accounts",
		strings.NewReader("id,balance\n1,100\nx,oops\n"))
	ingestRec := httptest.NewRecorder()
	srv.Router().ServeHTTP(ingestRec, ingest)

	if ingestRec.Code != http.StatusOK {
		t.Fatalf("ingest status = %d, body = %s", ingestRec.Code, ingestRec.Body.String())
	}
	var result core.IngestResult
	if err := json.Unmarshal(ingestRec.Body.Bytes(), &result); err != nil {
		t.Fatal(err)
	}
	if result.Invalid != 1 {
		t.Fatalf("Invalid = %d, want 1", result.Invalid)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/ingests/"+result.ID.String()+"/failed-rows", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("Content-Type"); got != "text/csv" {
		t.Errorf("Content-Type = %q, want text/csv", got)
	}

	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("csv lines = %d, want header + 1 row: %q", len(lines), rec.Body.String())
	}
	if !strings.HasPrefix(lines[0], "_line,_error,id,balance") {
		t.Errorf("header = %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "3,") || !strings.Contains(lines[1], "x") {
		t.Errorf("row = %q", lines[1])
	}
}

func TestHandleIngestProgress_Finished(t *testing.T) {
	srv, _ := newTestServer(t)
	mustRegister(t, core.Dataset{Key: "people"})

	ingest := httptest.NewRequest(http.MethodPost, "/api/ingest/people",
		strings.NewReader("name\nAlice\n"))
	ingestRec := httptest.NewRecorder()
	srv.Router().ServeHTTP(ingestRec, ingest)

	var result core.IngestResult
	if err := json.Unmarshal(ingestRec.Body.Bytes(), &result); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/ingests/"+result.ID.String()+"/progress", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "event: progress") {
		t.Errorf("missing progress event: %q", body)
	}
	if !strings.Contains(body, "event: complete") {
		t.Errorf("missing complete event: %q", body)
	}
	if got := rec.Header().Get("Content-Type"); got != "text/event-stream" {
		t.Errorf("Content-Type = %q", got)
	}
}

func TestHandleIngestProgress_Unknown(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet,
		"/api/ingests/00000000-0000-0000-0000-000000000002/progress", nil)
	rec := httptest.NewRecorder()

	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestRateLimiter(t *testing.T) {
	rl := newRateLimiter(2, time.Minute)

	if !rl.allow("1.2.3.4") || !rl.allow("1.2.3.4") {
		t.Fatal("first two requests should pass")
	}
	if rl.allow("1.2.3.4") {
		t.Error("third request should be limited")
	}
	if !rl.allow("5.6.7.8") {
		t.Error("other IPs are limited independently")
	}
}
