package fetch_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"feedhound/fetch"
)

func TestFetchFresh(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("If-None-Match"))
		assert.Empty(t, r.Header.Get("If-Modified-Since"))
		assert.Contains(t, r.Header.Get("Accept"), "application/rss+xml")
		assert.NotEmpty(t, r.Header.Get("User-Agent"))

		w.Header().Set("Etag", `"v1"`)
		w.Header().Set("Last-Modified", "Mon, 01 Jan 2024 10:00:00 GMT")
		w.Header().Set("Content-Type", "application/rss+xml")
		w.Write([]byte("<rss/>"))
	}))
	defer srv.Close()

	client := fetch.NewClient(5 * time.Second)
	res := client.Fetch(context.Background(), srv.URL, fetch.Validators{})

	require.Equal(t, fetch.StatusFresh, res.Status)
	assert.Equal(t, []byte("<rss/>"), res.Body)
	assert.Equal(t, "application/rss+xml", res.ContentType)
	assert.Equal(t, `"v1"`, res.Validators.ETag)
	assert.Equal(t, "Mon, 01 Jan 2024 10:00:00 GMT", res.Validators.LastModified)
}

func TestFetchConditionalNotModified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, `"v1"`, r.Header.Get("If-None-Match"))
		assert.Equal(t, "Mon, 01 Jan 2024 10:00:00 GMT", r.Header.Get("If-Modified-Since"))
		w.WriteHeader(http.StatusNotModified)
	}))
	defer srv.Close()

	client := fetch.NewClient(5 * time.Second)
	cached := fetch.Validators{ETag: `"v1"`, LastModified: "Mon, 01 Jan 2024 10:00:00 GMT"}
	res := client.Fetch(context.Background(), srv.URL, cached)

	require.Equal(t, fetch.StatusNotModified, res.Status)
	assert.Empty(t, res.Body)
	// The cached validators carry forward when the 304 omits them.
	assert.Equal(t, cached, res.Validators)
}

func TestFetchStatusClassification(t *testing.T) {
	tests := []struct {
		name   string
		code   int
		status fetch.Status
	}{
		{name: "not found", code: http.StatusNotFound, status: fetch.StatusPermanent},
		{name: "gone", code: http.StatusGone, status: fetch.StatusPermanent},
		{name: "forbidden", code: http.StatusForbidden, status: fetch.StatusPermanent},
		{name: "server error", code: http.StatusInternalServerError, status: fetch.StatusTransient},
		{name: "bad gateway", code: http.StatusBadGateway, status: fetch.StatusTransient},
		{name: "service unavailable", code: http.StatusServiceUnavailable, status: fetch.StatusTransient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.code)
			}))
			defer srv.Close()

			client := fetch.NewClient(5 * time.Second)
			res := client.Fetch(context.Background(), srv.URL, fetch.Validators{})

			assert.Equal(t, tt.status, res.Status)
			assert.Error(t, res.Err)
		})
	}
}

func TestFetchInvalidURLIsPermanent(t *testing.T) {
	tests := []struct {
		name string
		url  string
	}{
		{name: "garbage", url: "://not-a-url"},
		{name: "unsupported scheme", url: "ftp://example.com/feed"},
		{name: "no host", url: "https://"},
	}

	client := fetch.NewClient(time.Second)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := client.Fetch(context.Background(), tt.url, fetch.Validators{})
			assert.Equal(t, fetch.StatusPermanent, res.Status)
			assert.Error(t, res.Err)
		})
	}
}

func TestFetchConnectionRefusedIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	client := fetch.NewClient(time.Second)
	res := client.Fetch(context.Background(), url, fetch.Validators{})

	assert.Equal(t, fetch.StatusTransient, res.Status)
	assert.Error(t, res.Err)
}

func TestFetchTimeoutIsTransient(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer func() {
		close(release)
		srv.Close()
	}()

	client := fetch.NewClient(100 * time.Millisecond)
	res := client.Fetch(context.Background(), srv.URL, fetch.Validators{})

	assert.Equal(t, fetch.StatusTransient, res.Status)
	assert.Error(t, res.Err)
}

func TestFetchTimeoutBoundsRetriesToo(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer func() {
		close(release)
		srv.Close()
	}()

	// The timeout covers the whole call: a hanging server must not cost
	// one timeout per retry attempt plus backoff sleeps.
	client := fetch.NewClient(200 * time.Millisecond)
	start := time.Now()
	res := client.Fetch(context.Background(), srv.URL, fetch.Validators{})
	elapsed := time.Since(start)

	assert.Equal(t, fetch.StatusTransient, res.Status)
	assert.Less(t, elapsed, 600*time.Millisecond)
}
