package feed_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"feedhound/feed"
)

const rssPayload = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <title>Example News</title>
    <link>https://example.com</link>
    <item>
      <title>First post</title>
      <link>https://example.com/a</link>
      <description>Alpha</description>
      <pubDate>Mon, 01 Jan 2024 10:00:00 GMT</pubDate>
    </item>
    <item>
      <title>Second post</title>
      <link>https://example.com/b</link>
      <description>Beta</description>
      <pubDate>Tue, 02 Jan 2024 10:00:00 GMT</pubDate>
    </item>
  </channel>
</rss>`

const atomPayload = `<?xml version="1.0" encoding="utf-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>Example Blog</title>
  <link rel="alternate" href="https://blog.example.com"/>
  <entry>
    <title>Atom entry</title>
    <link rel="alternate" href="https://blog.example.com/c"/>
    <summary>Gamma</summary>
    <updated>2024-01-03T10:00:00Z</updated>
  </entry>
</feed>`

func TestParseRSS(t *testing.T) {
	meta, candidates, err := feed.Parse([]byte(rssPayload), "application/rss+xml", "https://example.com/feed")
	require.NoError(t, err)

	assert.Equal(t, "Example News", meta.Title)
	assert.Equal(t, "https://example.com", meta.SiteLink)

	require.Len(t, candidates, 2)
	assert.Equal(t, "https://example.com/a", candidates[0].DedupKey)
	assert.Equal(t, "First post", candidates[0].Title)
	assert.Equal(t, "Alpha", candidates[0].Summary)
	require.NotNil(t, candidates[0].PublishedAt)
	assert.Equal(t, time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC), candidates[0].PublishedAt.UTC())
	assert.Equal(t, "https://example.com/b", candidates[1].DedupKey)
}

func TestParseAtom(t *testing.T) {
	meta, candidates, err := feed.Parse([]byte(atomPayload), "application/atom+xml", "https://blog.example.com/feed")
	require.NoError(t, err)

	assert.Equal(t, "Example Blog", meta.Title)
	require.Len(t, candidates, 1)
	assert.Equal(t, "https://blog.example.com/c", candidates[0].DedupKey)
	assert.Equal(t, "Gamma", candidates[0].Summary)
	require.NotNil(t, candidates[0].UpdatedAt)
	assert.Equal(t, time.Date(2024, 1, 3, 10, 0, 0, 0, time.UTC), candidates[0].UpdatedAt.UTC())
	// The updated timestamp doubles as the publication time when the
	// entry declares no published element.
	require.NotNil(t, candidates[0].PublishedAt)
	assert.Equal(t, time.Date(2024, 1, 3, 10, 0, 0, 0, time.UTC), candidates[0].PublishedAt.UTC())
}

func TestParseRejectsNonFeedPayloads(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{
			name:    "empty",
			payload: "",
		},
		{
			name:    "html",
			payload: "<html><body>not a feed</body></html>",
		},
		{
			name:    "truncated xml",
			payload: "<rss version=\"2.0\"><chan",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := feed.Parse([]byte(tt.payload), "text/html", "https://example.com/feed")
			require.Error(t, err)
			var parseErr *feed.ParseError
			assert.ErrorAs(t, err, &parseErr)
		})
	}
}

func TestParseToleratesEntryProblems(t *testing.T) {
	payload := `<?xml version="1.0"?>
<rss version="2.0">
  <channel>
    <title>Odd Feed</title>
    <item>
      <title>Bad date</title>
      <link>https://example.com/bad-date</link>
      <pubDate>not a date at all</pubDate>
    </item>
    <item>
      <description>No title and no link, only a description</description>
    </item>
    <item>
      <title>No link</title>
      <description>Hash fallback</description>
    </item>
  </channel>
</rss>`

	_, candidates, err := feed.Parse([]byte(payload), "", "https://example.com/feed")
	require.NoError(t, err)
	require.Len(t, candidates, 2)

	// Unparseable timestamps degrade to nil, not to an entry failure.
	assert.Equal(t, "https://example.com/bad-date", candidates[0].DedupKey)
	assert.Nil(t, candidates[0].PublishedAt)

	// A linkless entry gets a content-hash key.
	assert.Contains(t, candidates[1].DedupKey, "sha256:")
	assert.NotEmpty(t, candidates[1].DedupKey)
}

func TestParseEmptyChannelIsNotAnError(t *testing.T) {
	payload := `<?xml version="1.0"?>
<rss version="2.0"><channel><title>Empty</title></channel></rss>`

	meta, candidates, err := feed.Parse([]byte(payload), "", "https://example.com/feed")
	require.NoError(t, err)
	assert.Equal(t, "Empty", meta.Title)
	assert.Empty(t, candidates)
}

func TestDedupKey(t *testing.T) {
	tests := []struct {
		name     string
		link     string
		title    string
		summary  string
		wantLink bool
	}{
		{
			name:     "link wins",
			link:     "https://example.com/x",
			title:    "ignored",
			wantLink: true,
		},
		{
			name:    "hash fallback",
			title:   "a title",
			summary: "a summary",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := feed.DedupKey(tt.link, tt.title, tt.summary)
			if tt.wantLink {
				assert.Equal(t, tt.link, key)
			} else {
				assert.Contains(t, key, "sha256:")
				// Deterministic for identical content.
				assert.Equal(t, key, feed.DedupKey(tt.link, tt.title, tt.summary))
				// Different content, different key.
				assert.NotEqual(t, key, feed.DedupKey(tt.link, tt.title+"!", tt.summary))
			}
		})
	}
}
