package web

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/JonMunkholm/csvtable/internal/cache"
	"github.com/JonMunkholm/csvtable/internal/config"
	_ "github.com/JonMunkholm/csvtable/internal/core/tables"
	"github.com/JonMunkholm/csvtable/internal/logging"
	"github.com/JonMunkholm/csvtable/internal/metrics"
)

const birdsCSV = "species,count,observed_on,weight_kg\n" +
	"Red-tailed Hawk,1027,2024-03-01,1.1\n" +
	"Osprey,many,,\n" +
	"Kestrel,4,,0.12\n"

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.LoadFrom(func(string) string { return "" })
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	cfg.Rate.Enabled = false
	return cfg
}

func newTestServer(t *testing.T, cfg *config.Config, opts ...Option) *Server {
	t.Helper()
	if cfg == nil {
		cfg = testConfig(t)
	}
	opts = append([]Option{WithLogger(logging.NewNop())}, opts...)
	s, err := NewServer(cfg, opts...)
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}
	t.Cleanup(func() { s.Shutdown(context.Background()) })
	return s
}

func do(t *testing.T, s *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "text/csv")
	}
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("response is not JSON: %v\n%s", err, rec.Body.String())
	}
	return v
}

// ----------------------------------------------------------------------------
// Catalog
// ----------------------------------------------------------------------------

func TestHealth(t *testing.T) {
	s := newTestServer(t, nil)
	rec := do(t, s, http.MethodGet, "/healthz", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	got := decode[map[string]any](t, rec)
	if got["status"] != "ok" {
		t.Errorf("status = %v, want ok", got["status"])
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("security headers missing")
	}
}

func TestListSchemas(t *testing.T) {
	s := newTestServer(t, nil)
	rec := do(t, s, http.MethodGet, "/api/schemas", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	found := false
	for _, sch := range decode[[]schemaSummary](t, rec) {
		if sch.Name == "birds" {
			found = true
			if strings.Join(sch.Columns, ",") != "species,count,observed_on,weight_kg" {
				t.Errorf("birds columns = %v", sch.Columns)
			}
		}
	}
	if !found {
		t.Error("birds schema not listed")
	}
}

func TestGetSchema(t *testing.T) {
	s := newTestServer(t, nil)
	rec := do(t, s, http.MethodGet, "/api/schemas/birds", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	got := decode[schemaDetail](t, rec)
	if len(got.Columns) != 4 {
		t.Fatalf("len(Columns) = %d, want 4", len(got.Columns))
	}
	if c := got.Columns[1]; c.Name != "count" || c.Type != "int" || c.Nullable {
		t.Errorf("Columns[1] = %+v, want required int count", c)
	}
	if c := got.Columns[2]; c.Type != "date" || !c.Nullable {
		t.Errorf("Columns[2] = %+v, want nullable date", c)
	}
	if got.Grammar.Delimiter != "," {
		t.Errorf("Grammar.Delimiter = %q, want ,", got.Grammar.Delimiter)
	}
}

func TestGetSchema_NotFound(t *testing.T) {
	s := newTestServer(t, nil)
	rec := do(t, s, http.MethodGet, "/api/schemas/ledger", "")

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
	if got := decode[ErrorResponse](t, rec); got.Code != "SCH001" {
		t.Errorf("Code = %q, want SCH001", got.Code)
	}
}

func TestTemplate(t *testing.T) {
	s := newTestServer(t, nil)
	rec := do(t, s, http.MethodGet, "/api/schemas/birds/template", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if got := rec.Body.String(); got != "species,count,observed_on,weight_kg\n" {
		t.Errorf("body = %q", got)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "birds_template.csv") {
		t.Errorf("Content-Disposition = %q", cd)
	}
}

// ----------------------------------------------------------------------------
// Parse
// ----------------------------------------------------------------------------

func TestParse_Forgiving(t *testing.T) {
	s := newTestServer(t, nil)
	rec := do(t, s, http.MethodPost, "/api/schemas/birds/parse", birdsCSV)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusOK, rec.Body.String())
	}
	got := decode[struct {
		Header   []string         `json:"header"`
		Rows     []map[string]any `json:"rows"`
		Failures []failureJSON    `json:"failures"`
		Stats    buildStats       `json:"stats"`
	}](t, rec)

	if got.Stats.Rows != 3 || got.Stats.Converted != 2 || got.Stats.Failed != 1 {
		t.Errorf("Stats = %+v, want 3 rows, 2 converted, 1 failed", got.Stats)
	}
	if len(got.Rows) != 2 || got.Rows[1]["species"] != "Kestrel" {
		t.Errorf("Rows = %v", got.Rows)
	}
	if len(got.Failures) != 1 {
		t.Fatalf("len(Failures) = %d, want 1", len(got.Failures))
	}
	f := got.Failures[0]
	if f.Row != 1 || f.Line != 3 || f.Column != "count" || f.Raw != "many" || f.Kind != "invalid_cell" {
		t.Errorf("Failure = %+v", f)
	}
	if len(got.Header) != 4 {
		t.Errorf("Header = %v, want 4 names", got.Header)
	}
}

func TestParse_Strict(t *testing.T) {
	s := newTestServer(t, nil)
	rec := do(t, s, http.MethodPost, "/api/schemas/birds/parse?forgiving=false", birdsCSV)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusUnprocessableEntity)
	}
	got := decode[ErrorResponse](t, rec)
	if got.Code != "VAL002" || got.Kind != "invalid_cell" {
		t.Errorf("ErrorResponse = %+v, want VAL002 invalid_cell", got)
	}
	if got.Failure == nil || got.Failure.Row != 1 || got.Failure.Column != "count" {
		t.Errorf("Failure = %+v, want row 1 column count", got.Failure)
	}
}

func TestParse_Options(t *testing.T) {
	s := newTestServer(t, nil)
	body := "Red-tailed Hawk,1027,,\nOsprey,3,,\nKestrel,4,,\n"
	rec := do(t, s, http.MethodPost, "/api/schemas/birds/parse?header=species,count,observed_on,weight_kg&sample=2", body)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusOK, rec.Body.String())
	}
	got := decode[parseResponse](t, rec)
	if got.Stats.Converted != 2 || got.Stats.Skipped != 1 {
		t.Errorf("Stats = %+v, want 2 converted and 1 skipped", got.Stats)
	}
}

func TestParse_Multipart(t *testing.T) {
	s := newTestServer(t, nil)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "birds.csv")
	if err != nil {
		t.Fatal(err)
	}
	fw.Write([]byte(birdsCSV))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/schemas/birds/parse", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusOK, rec.Body.String())
	}
	if got := decode[parseResponse](t, rec); got.Stats.Converted != 2 {
		t.Errorf("Converted = %d, want 2", got.Stats.Converted)
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name     string
		target   string
		body     string
		wantCode int
		wantErr  string
	}{
		{"empty body", "/api/schemas/birds/parse", "  \n", http.StatusBadRequest, "FILE005"},
		{"bad integer option", "/api/schemas/birds/parse?max_failures=-1", birdsCSV, http.StatusBadRequest, "REQ001"},
		{"bad boolean option", "/api/schemas/birds/parse?forgiving=maybe", birdsCSV, http.StatusBadRequest, "REQ001"},
		{"bad header style", "/api/schemas/birds/parse?synthesize=roman", birdsCSV, http.StatusBadRequest, "REQ001"},
		{"unknown schema", "/api/schemas/ledger/parse", birdsCSV, http.StatusNotFound, "SCH001"},
		{"missing column", "/api/schemas/birds/parse?forgiving=false", "species\nOsprey\n", http.StatusUnprocessableEntity, "VAL001"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, nil)
			rec := do(t, s, http.MethodPost, tt.target, tt.body)
			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.wantCode, rec.Body.String())
			}
			if got := decode[ErrorResponse](t, rec); got.Code != tt.wantErr {
				t.Errorf("Code = %q, want %q", got.Code, tt.wantErr)
			}
		})
	}
}

func TestParse_TooLarge(t *testing.T) {
	cfg := testConfig(t)
	cfg.Upload.MaxFileSize = 16
	s := newTestServer(t, cfg)

	rec := do(t, s, http.MethodPost, "/api/schemas/birds/parse", birdsCSV)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusRequestEntityTooLarge)
	}
	if got := decode[ErrorResponse](t, rec); got.Code != "FILE001" {
		t.Errorf("Code = %q, want FILE001", got.Code)
	}
}

func TestParse_Busy(t *testing.T) {
	cfg := testConfig(t)
	cfg.Upload.MaxConcurrent = 1
	cfg.Upload.MaxWaitTime = 20 * time.Millisecond
	s := newTestServer(t, cfg)

	if !s.Limiter().TryAcquire() {
		t.Fatal("TryAcquire should succeed")
	}
	defer s.Limiter().Release()

	rec := do(t, s, http.MethodPost, "/api/schemas/birds/parse", birdsCSV)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
	if got := decode[ErrorResponse](t, rec); got.Code != "UPL002" {
		t.Errorf("Code = %q, want UPL002", got.Code)
	}
}

// ----------------------------------------------------------------------------
// Normalize and Parquet
// ----------------------------------------------------------------------------

func TestNormalize(t *testing.T) {
	s := newTestServer(t, nil)
	body := "Count,Species,weight_kg,observed_on\n3,Osprey,,\n4,Kestrel,0.12,2024-03-02\n"
	rec := do(t, s, http.MethodPost, "/api/schemas/birds/normalize", body)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusOK, rec.Body.String())
	}
	want := "species,count,observed_on,weight_kg\nOsprey,3,,\nKestrel,4,2024-03-02,0.12\n"
	if got := rec.Body.String(); got != want {
		t.Errorf("body = %q, want %q", got, want)
	}
	if rec.Header().Get("X-Cache") != "" {
		t.Error("X-Cache set without a cache")
	}
	if rec.Header().Get("X-Rows-Converted") != "2" {
		t.Errorf("X-Rows-Converted = %q, want 2", rec.Header().Get("X-Rows-Converted"))
	}
}

func TestNormalize_CacheKeyedByGrammar(t *testing.T) {
	mr := miniredis.RunT(t)

	s := newTestServer(t, nil, WithCache(cache.New(mr.Addr(), "", 0)))
	if rec := do(t, s, http.MethodPost, "/api/schemas/birds/normalize", birdsCSV); rec.Header().Get("X-Cache") != "MISS" {
		t.Fatalf("first X-Cache = %q, want MISS", rec.Header().Get("X-Cache"))
	}

	// Same schema, options and body under another grammar.
	cfg := testConfig(t)
	cfg.Grammar.Multiline = true
	other := newTestServer(t, cfg, WithCache(cache.New(mr.Addr(), "", 0)))
	if rec := do(t, other, http.MethodPost, "/api/schemas/birds/normalize", birdsCSV); rec.Header().Get("X-Cache") != "MISS" {
		t.Errorf("other grammar X-Cache = %q, want MISS", rec.Header().Get("X-Cache"))
	}
	if rec := do(t, s, http.MethodPost, "/api/schemas/birds/normalize", birdsCSV); rec.Header().Get("X-Cache") != "HIT" {
		t.Errorf("original grammar X-Cache = %q, want HIT", rec.Header().Get("X-Cache"))
	}
}

func TestNormalize_Cached(t *testing.T) {
	mr := miniredis.RunT(t)
	store := cache.New(mr.Addr(), "", 0)
	m := metrics.New()
	s := newTestServer(t, nil, WithCache(store), WithMetrics(m))

	first := do(t, s, http.MethodPost, "/api/schemas/birds/normalize", birdsCSV)
	if first.Code != http.StatusOK || first.Header().Get("X-Cache") != "MISS" {
		t.Fatalf("first status = %d, X-Cache = %q, want 200 MISS", first.Code, first.Header().Get("X-Cache"))
	}
	second := do(t, s, http.MethodPost, "/api/schemas/birds/normalize", birdsCSV)
	if second.Header().Get("X-Cache") != "HIT" {
		t.Fatalf("second X-Cache = %q, want HIT", second.Header().Get("X-Cache"))
	}
	if second.Body.String() != first.Body.String() {
		t.Errorf("cached body = %q, want %q", second.Body.String(), first.Body.String())
	}
	if second.Header().Get("X-Rows-Failed") != "1" {
		t.Errorf("cached X-Rows-Failed = %q, want 1", second.Header().Get("X-Rows-Failed"))
	}

	// Different options are a different entry.
	strict := do(t, s, http.MethodPost, "/api/schemas/birds/normalize?forgiving=false", birdsCSV)
	if strict.Code != http.StatusUnprocessableEntity {
		t.Errorf("strict status = %d, want %d", strict.Code, http.StatusUnprocessableEntity)
	}

	inv := do(t, s, http.MethodDelete, "/api/cache/birds", "")
	if inv.Code != http.StatusOK {
		t.Fatalf("invalidate status = %d, want %d", inv.Code, http.StatusOK)
	}
	if got := decode[map[string]any](t, inv); got["removed"] != float64(1) {
		t.Errorf("removed = %v, want 1", got["removed"])
	}
}

func TestInvalidateCache_Disabled(t *testing.T) {
	s := newTestServer(t, nil)
	rec := do(t, s, http.MethodDelete, "/api/cache/birds", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}

func TestParquet(t *testing.T) {
	s := newTestServer(t, nil)
	rec := do(t, s, http.MethodPost, "/api/schemas/birds/parquet", birdsCSV)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusOK, rec.Body.String())
	}
	body := rec.Body.Bytes()
	if !bytes.HasPrefix(body, []byte("PAR1")) || !bytes.HasSuffix(body, []byte("PAR1")) {
		t.Error("response is not a parquet file")
	}
	if rec.Header().Get("Content-Type") != "application/vnd.apache.parquet" {
		t.Errorf("Content-Type = %q", rec.Header().Get("Content-Type"))
	}
}

// ----------------------------------------------------------------------------
// Load
// ----------------------------------------------------------------------------

type fakeDB struct {
	tx *fakeTx
}

func (db *fakeDB) Begin(context.Context) (pgx.Tx, error) { return db.tx, nil }
func (db *fakeDB) Ping(context.Context) error            { return nil }

type fakeTx struct {
	pgx.Tx

	table     pgx.Identifier
	rows      int
	created   bool
	committed bool
}

func (tx *fakeTx) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	tx.created = true
	return pgconn.NewCommandTag("CREATE TABLE"), nil
}

func (tx *fakeTx) CopyFrom(_ context.Context, table pgx.Identifier, _ []string, src pgx.CopyFromSource) (int64, error) {
	tx.table = table
	for src.Next() {
		if _, err := src.Values(); err != nil {
			return 0, err
		}
		tx.rows++
	}
	return int64(tx.rows), src.Err()
}

func (tx *fakeTx) Commit(context.Context) error   { tx.committed = true; return nil }
func (tx *fakeTx) Rollback(context.Context) error { return nil }

func TestLoad(t *testing.T) {
	db := &fakeDB{tx: &fakeTx{}}
	s := newTestServer(t, nil, WithDatabase(db))

	rec := do(t, s, http.MethodPost, "/api/schemas/birds/load?table=survey.birds", birdsCSV)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusOK, rec.Body.String())
	}
	got := decode[loadResponse](t, rec)
	if got.Load == nil || got.Load.Rows != 2 {
		t.Errorf("Load = %+v, want 2 rows", got.Load)
	}
	if len(got.Failures) != 1 {
		t.Errorf("len(Failures) = %d, want 1", len(got.Failures))
	}
	if !db.tx.created || !db.tx.committed {
		t.Error("expected CREATE TABLE and a commit")
	}
	if db.tx.table.Sanitize() != `"survey"."birds"` {
		t.Errorf("table = %s, want survey.birds", db.tx.table.Sanitize())
	}
}

func TestLoad_Disabled(t *testing.T) {
	s := newTestServer(t, nil)
	rec := do(t, s, http.MethodPost, "/api/schemas/birds/load", birdsCSV)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
	if got := decode[ErrorResponse](t, rec); got.Code != "DB008" {
		t.Errorf("Code = %q, want DB008", got.Code)
	}
}

// ----------------------------------------------------------------------------
// Middleware wiring
// ----------------------------------------------------------------------------

func TestAPIKeyRequired(t *testing.T) {
	cfg := testConfig(t)
	cfg.Security.RequireAPIKey = true
	cfg.Security.APIKeys = []string{"k1"}
	s := newTestServer(t, cfg)

	if rec := do(t, s, http.MethodGet, "/api/schemas", ""); rec.Code != http.StatusUnauthorized {
		t.Errorf("no key: status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/schemas", nil)
	req.Header.Set("X-API-Key", "k1")
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("valid key: status = %d, want %d", rec.Code, http.StatusOK)
	}

	// Health stays public.
	if rec := do(t, s, http.MethodGet, "/healthz", ""); rec.Code != http.StatusOK {
		t.Errorf("healthz: status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestRateLimit(t *testing.T) {
	cfg := testConfig(t)
	cfg.Rate.Enabled = true
	cfg.Rate.UploadLimit = 1
	s := newTestServer(t, cfg)

	if rec := do(t, s, http.MethodPost, "/api/schemas/birds/parse", birdsCSV); rec.Code != http.StatusOK {
		t.Fatalf("first status = %d, want %d", rec.Code, http.StatusOK)
	}
	rec := do(t, s, http.MethodPost, "/api/schemas/birds/parse", birdsCSV)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second status = %d, want %d", rec.Code, http.StatusTooManyRequests)
	}
	if got := decode[ErrorResponse](t, rec); got.Code != "RATE001" {
		t.Errorf("Code = %q, want RATE001", got.Code)
	}

	// Catalog requests use the general limit.
	if rec := do(t, s, http.MethodGet, "/api/schemas", ""); rec.Code != http.StatusOK {
		t.Errorf("catalog status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, nil, WithMetrics(metrics.New()))
	do(t, s, http.MethodPost, "/api/schemas/birds/parse", birdsCSV)

	rec := do(t, s, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	body := rec.Body.String()
	for _, want := range []string{
		`csvtable_builds_total{mode="forgiving",outcome="partial",schema="birds"} 1`,
		`route="/api/schemas/{name}/parse"`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics missing %s", want)
		}
	}
}
