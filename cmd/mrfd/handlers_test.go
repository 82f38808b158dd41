package main

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/fedimod/mrf/mrf"
	"github.com/fedimod/mrf/mrf/config"
	"github.com/fedimod/mrf/mrf/keyword"
	"github.com/fedimod/mrf/mrf/pattern"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAdminPassword = "hunter2"

func testServer(t *testing.T) (*Server, *config.Store) {
	t.Helper()
	cfg := config.Default()
	cfg.Keyword.Reject = []pattern.Pattern{pattern.MustParse("spam")}
	store := config.NewStore(cfg)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	pipeline := &mrf.Pipeline{
		Logger:   logger,
		Config:   store,
		Policies: []mrf.Policy{keyword.Policy{}},
	}
	srv := NewServer(pipeline, store, Config{
		Logger:        logger,
		AdminPassword: testAdminPassword,
		Registerer:    prometheus.NewRegistry(),
	})
	return srv, store
}

func doRequest(srv *Server, method, path, body string, prep ...func(*http.Request)) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for _, fn := range prep {
		fn(req)
	}
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func asAdmin(req *http.Request) {
	req.SetBasicAuth("admin", testAdminPassword)
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

const createNote = `{
	"id": "https://example.com/activities/1",
	"type": "Create",
	"actor": "https://example.com/users/alice",
	"to": ["https://www.w3.org/ns/activitystreams#Public"],
	"object": {"type": "Note", "content": %q}
}`

func noteWith(content string) string {
	b, _ := json.Marshal(content)
	return strings.Replace(createNote, "%q", string(b), 1)
}

func TestHealthCheck(t *testing.T) {
	assert := assert.New(t)
	srv, _ := testServer(t)

	rec := doRequest(srv, http.MethodGet, "/_health", "")
	assert.Equal(http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal("ok", body["status"])
	assert.Equal("mrfd", body["daemon"])
}

func TestHandleFilter(t *testing.T) {
	assert := assert.New(t)
	srv, _ := testServer(t)

	rec := doRequest(srv, http.MethodPost, "/mrf/filter", noteWith("hello world"))
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	act, ok := body["activity"].(map[string]any)
	require.True(t, ok)
	assert.Equal("https://example.com/activities/1", act["id"])
	obj := act["object"].(map[string]any)
	assert.Equal("hello world", obj["content"])

	rec = doRequest(srv, http.MethodPost, "/mrf/filter", noteWith("buy spam now"))
	assert.Equal(http.StatusUnprocessableEntity, rec.Code)
	body = decodeBody(t, rec)
	assert.Equal("Rejected", body["error"])
	assert.Equal(keyword.RejectReason, body["message"])

	for _, bad := range []string{"", "not json", `["array"]`, `"string"`} {
		rec = doRequest(srv, http.MethodPost, "/mrf/filter", bad)
		assert.Equal(http.StatusBadRequest, rec.Code, bad)
		assert.Equal("InvalidActivity", decodeBody(t, rec)["error"], bad)
	}

	rec = doRequest(srv, http.MethodGet, "/mrf/filter", "")
	assert.Equal(http.StatusMethodNotAllowed, rec.Code)
}

func TestHandleDescribe(t *testing.T) {
	assert := assert.New(t)
	srv, _ := testServer(t)

	rec := doRequest(srv, http.MethodGet, "/mrf/describe", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal([]any{"keyword"}, body["mrf_policies"])
	assert.Contains(body, "mrf_keyword")

	rec = doRequest(srv, http.MethodGet, "/mrf/config-description", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var cds []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cds))
	require.Len(t, cds, 1)
	assert.Equal("mrf_keyword", cds[0]["key"])
}

func TestAdminAuth(t *testing.T) {
	assert := assert.New(t)
	srv, _ := testServer(t)

	rec := doRequest(srv, http.MethodGet, "/admin/mrf/config", "")
	assert.Equal(http.StatusUnauthorized, rec.Code)

	rec = doRequest(srv, http.MethodGet, "/admin/mrf/config", "", func(req *http.Request) {
		req.SetBasicAuth("admin", "wrong")
	})
	assert.Equal(http.StatusUnauthorized, rec.Code)

	rec = doRequest(srv, http.MethodGet, "/admin/mrf/config", "", asAdmin)
	assert.Equal(http.StatusOK, rec.Code)

	// admin API is refused entirely without a configured password
	srv.adminPassword = ""
	rec = doRequest(srv, http.MethodGet, "/admin/mrf/config", "", func(req *http.Request) {
		req.SetBasicAuth("admin", "")
	})
	assert.Equal(http.StatusUnauthorized, rec.Code)
}

func TestAdminConfig(t *testing.T) {
	assert := assert.New(t)
	srv, store := testServer(t)

	rec := doRequest(srv, http.MethodGet, "/admin/mrf/config", "", asAdmin)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	kc := body["mrf_keyword"].(map[string]any)
	assert.Equal([]any{"spam"}, kc["reject"])

	// replacing the config takes effect on the next filter request
	rec = doRequest(srv, http.MethodPut, "/admin/mrf/config", `{"mrf_keyword": {"reject": ["eggs"]}}`, asAdmin)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = doRequest(srv, http.MethodPost, "/mrf/filter", noteWith("buy spam now"))
	assert.Equal(http.StatusOK, rec.Code)
	rec = doRequest(srv, http.MethodPost, "/mrf/filter", noteWith("green eggs"))
	assert.Equal(http.StatusUnprocessableEntity, rec.Code)

	yamlBody := "mrf_nsfw_api:\n  threshold: 0.9\n"
	rec = doRequest(srv, http.MethodPut, "/admin/mrf/config", yamlBody, asAdmin, func(req *http.Request) {
		req.Header.Set("Content-Type", "application/yaml")
	})
	require.Equal(t, http.StatusOK, rec.Code)
	cfg, err := store.Config(t.Context())
	require.NoError(t, err)
	assert.Equal(0.9, cfg.NSFWAPI.Threshold)
	// a full replacement: unspecified sections are back at defaults
	assert.Empty(cfg.Keyword.Reject)

	for _, bad := range []string{
		`{"mrf_nsfw_api": {"threshold": 2}}`,
		`{"mrf_unknown": {}}`,
		`{"mrf_keyword": {"reject": ["~r/unclosed(/"]}}`,
		`not json`,
	} {
		rec = doRequest(srv, http.MethodPut, "/admin/mrf/config", bad, asAdmin)
		assert.Equal(http.StatusBadRequest, rec.Code, bad)
		assert.Equal("InvalidConfig", decodeBody(t, rec)["error"], bad)
	}
	cfg, err = store.Config(t.Context())
	require.NoError(t, err)
	assert.Equal(0.9, cfg.NSFWAPI.Threshold)

	rec = doRequest(srv, http.MethodPut, "/admin/mrf/config", `{}`)
	assert.Equal(http.StatusUnauthorized, rec.Code)
}
