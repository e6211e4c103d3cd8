package models

import "time"

// Fetch status values recorded on sources and in cycle reports.
const (
	StatusFresh       = "fresh"
	StatusNotModified = "not_modified"
	StatusTransient   = "transient_failure"
	StatusPermanent   = "permanent_failure"
	StatusParseError  = "parse_error"
	StatusStoreError  = "store_error"
)

// Source is a configured feed origin. The id is assigned on insert and
// never changes; the fetch cycle only touches the cache validators and
// the last-fetch bookkeeping fields.
type Source struct {
	ID              int64      `json:"id"`
	URL             string     `json:"url"`
	Label           string     `json:"label,omitempty"`
	Category        string     `json:"category,omitempty"`
	Title           string     `json:"title,omitempty"`
	SiteLink        string     `json:"siteLink,omitempty"`
	Builtin         bool       `json:"builtin"`
	Enabled         bool       `json:"enabled"`
	ETag            string     `json:"etag,omitempty"`
	LastModified    string     `json:"lastModified,omitempty"`
	LastFetchStatus string     `json:"lastFetchStatus,omitempty"`
	LastFetchAt     *time.Time `json:"lastFetchAt,omitempty"`
}

// DisplayName prefers the user supplied label, then the title discovered
// in the feed itself, then the raw URL.
func (s Source) DisplayName() string {
	if s.Label != "" {
		return s.Label
	}
	if s.Title != "" {
		return s.Title
	}
	return s.URL
}

// Item is a single entry discovered in a source's feed.
type Item struct {
	ID          int64      `json:"id"`
	SourceID    int64      `json:"sourceId"`
	DedupKey    string     `json:"dedupKey"`
	Title       string     `json:"title"`
	Summary     string     `json:"summary,omitempty"`
	Link        string     `json:"link,omitempty"`
	PublishedAt *time.Time `json:"publishedAt,omitempty"`
	UpdatedAt   *time.Time `json:"updatedAt,omitempty"`
	FirstSeenAt time.Time  `json:"firstSeenAt"`
	LastSeenAt  time.Time  `json:"lastSeenAt"`

	// Source display name joined in by queries, for rendering only.
	Source string `json:"source,omitempty"`
}

// EffectiveTime is the timestamp items sort by: published when the feed
// declared one, first-seen otherwise.
func (i Item) EffectiveTime() time.Time {
	if i.PublishedAt != nil {
		return *i.PublishedAt
	}
	return i.FirstSeenAt
}

// Candidate is a parsed entry that has not been reconciled against the
// store yet.
type Candidate struct {
	DedupKey    string
	Title       string
	Summary     string
	Link        string
	PublishedAt *time.Time
	UpdatedAt   *time.Time
}

// FeedMeta is feed-level metadata picked up alongside the entries.
type FeedMeta struct {
	Title    string
	SiteLink string
}

// SourceOutcome records how a single source fared during a cycle.
type SourceOutcome struct {
	SourceID int64  `json:"sourceId,omitempty"`
	URL      string `json:"url"`
	Status   string `json:"status"`
	Created  int    `json:"created,omitempty"`
	Updated  int    `json:"updated,omitempty"`
	Error    string `json:"error,omitempty"`
}

// CycleReport is the per-source breakdown of one fetch cycle. A failed
// source shows up here instead of aborting the run.
type CycleReport struct {
	StartedAt  time.Time       `json:"startedAt"`
	FinishedAt time.Time       `json:"finishedAt"`
	Outcomes   []SourceOutcome `json:"outcomes"`
}

// Created sums newly stored items across all sources.
func (r CycleReport) Created() int {
	total := 0
	for _, o := range r.Outcomes {
		total += o.Created
	}
	return total
}
