// Package feed converts raw feed payloads into normalized item
// candidates. Parsing is pure: nothing here touches the network or the
// store.
package feed

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"strings"

	"github.com/mmcdole/gofeed"
	log "github.com/sirupsen/logrus"

	"feedhound/models"
)

// ParseError reports a payload that is neither valid RSS nor valid
// Atom. Per-entry problems never produce a ParseError; broken entries
// are skipped and an empty feed parses to zero candidates.
type ParseError struct {
	URL         string
	ContentType string
	Err         error
}

func (e *ParseError) Error() string {
	if e.ContentType != "" {
		return fmt.Sprintf("parse feed %s (%s): %v", e.URL, e.ContentType, e.Err)
	}
	return fmt.Sprintf("parse feed %s: %v", e.URL, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Parse normalizes a feed document into item candidates plus feed-level
// metadata. gofeed inspects the root element to pick the RSS or Atom
// branch; the content type only travels along for diagnostics.
func Parse(payload []byte, contentType, feedURL string) (models.FeedMeta, []models.Candidate, error) {
	parsed, err := gofeed.NewParser().Parse(bytes.NewReader(payload))
	if err != nil {
		return models.FeedMeta{}, nil, &ParseError{URL: feedURL, ContentType: contentType, Err: err}
	}

	meta := models.FeedMeta{
		Title:    strings.TrimSpace(parsed.Title),
		SiteLink: strings.TrimSpace(parsed.Link),
	}

	candidates := make([]models.Candidate, 0, len(parsed.Items))
	for _, entry := range parsed.Items {
		if entry == nil {
			continue
		}
		candidate, ok := normalize(entry)
		if !ok {
			log.WithFields(log.Fields{
				"feed": feedURL,
			}).Warn("Skipping entry without title or link")
			continue
		}
		candidates = append(candidates, candidate)
	}

	return meta, candidates, nil
}

// normalize maps one gofeed entry onto the shared candidate shape.
// Missing optional fields become empty or nil; timestamps gofeed could
// not parse stay nil rather than failing the entry.
func normalize(entry *gofeed.Item) (models.Candidate, bool) {
	title := strings.TrimSpace(entry.Title)
	link := strings.TrimSpace(entry.Link)
	if title == "" && link == "" {
		return models.Candidate{}, false
	}

	summary := strings.TrimSpace(entry.Description)
	if summary == "" {
		summary = strings.TrimSpace(entry.Content)
	}

	// Atom feeds often carry only an updated timestamp; treat it as the
	// publication time rather than leaving the entry undated.
	published := entry.PublishedParsed
	if published == nil {
		published = entry.UpdatedParsed
	}

	return models.Candidate{
		DedupKey:    DedupKey(link, title, summary),
		Title:       title,
		Summary:     summary,
		Link:        link,
		PublishedAt: published,
		UpdatedAt:   entry.UpdatedParsed,
	}, true
}

// DedupKey decides whether an incoming entry is new or an update to an
// existing one. The link is the natural key; entries without one fall
// back to a hash of their content.
func DedupKey(link, title, summary string) string {
	if link != "" {
		return link
	}
	sum := sha256.Sum256([]byte(title + "\x00" + summary))
	return fmt.Sprintf("sha256:%x", sum[:16])
}
