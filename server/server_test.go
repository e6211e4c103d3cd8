package server_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"feedhound/db"
	"feedhound/models"
	"feedhound/server"
)

func newTestApp(t *testing.T) (*fiber.App, *db.Store) {
	t.Helper()
	store, err := db.Open(filepath.Join(t.TempDir(), "feeds.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return server.Server(server.Config{Store: store}), store
}

func decodeBody(t *testing.T, res *http.Response, v any) {
	t.Helper()
	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(body, v))
}

func seedItems(t *testing.T, store *db.Store) int64 {
	t.Helper()
	id, err := store.AddSource("https://example.com/feed", "news", "Example", false)
	require.NoError(t, err)

	old := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	recent := time.Now().UTC().Add(-time.Hour)
	_, _, err = store.UpsertItems(id, []models.Candidate{
		{DedupKey: "https://example.com/a", Title: "Old", Link: "https://example.com/a", PublishedAt: &old},
		{DedupKey: "https://example.com/b", Title: "Recent", Link: "https://example.com/b", PublishedAt: &recent},
	})
	require.NoError(t, err)
	return id
}

func TestHealthEndpoint(t *testing.T) {
	app, _ := newTestApp(t)

	res, err := app.Test(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, res.StatusCode)
}

func TestSourcesEndpoint(t *testing.T) {
	app, store := newTestApp(t)
	id := seedItems(t, store)
	require.NoError(t, store.SetSourceEnabled(id, false))

	// Disabled sources are hidden by default.
	res, err := app.Test(httptest.NewRequest(http.MethodGet, "/sources", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, res.StatusCode)
	var sources []models.Source
	decodeBody(t, res, &sources)
	assert.Empty(t, sources)

	res, err = app.Test(httptest.NewRequest(http.MethodGet, "/sources?all=true", nil))
	require.NoError(t, err)
	decodeBody(t, res, &sources)
	require.Len(t, sources, 1)
	assert.Equal(t, "https://example.com/feed", sources[0].URL)
	assert.False(t, sources[0].Enabled)
}

func TestItemsEndpoint(t *testing.T) {
	app, store := newTestApp(t)
	seedItems(t, store)

	res, err := app.Test(httptest.NewRequest(http.MethodGet, "/items", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, res.StatusCode)
	var items []models.Item
	decodeBody(t, res, &items)
	require.Len(t, items, 2)
	assert.Equal(t, "Recent", items[0].Title)
	assert.Equal(t, "Example", items[0].Source)

	// since is expressed in hours.
	res, err = app.Test(httptest.NewRequest(http.MethodGet, "/items?since=24", nil))
	require.NoError(t, err)
	decodeBody(t, res, &items)
	require.Len(t, items, 1)
	assert.Equal(t, "Recent", items[0].Title)

	res, err = app.Test(httptest.NewRequest(http.MethodGet, "/items?category=sports", nil))
	require.NoError(t, err)
	decodeBody(t, res, &items)
	assert.Empty(t, items)

	res, err = app.Test(httptest.NewRequest(http.MethodGet, "/items?limit=1", nil))
	require.NoError(t, err)
	decodeBody(t, res, &items)
	assert.Len(t, items, 1)
}

func TestMetricsEndpoint(t *testing.T) {
	app, store := newTestApp(t)
	seedItems(t, store)

	res, err := app.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, res.StatusCode)
	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "feedhound_sources")
	assert.Contains(t, string(body), "feedhound_items")
}
