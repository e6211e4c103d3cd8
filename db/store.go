// Package db is the embedded persistence layer: sources, items and the
// per-source cache validators live in a single SQLite file.
package db

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	sqlbuilder "github.com/huandu/go-sqlbuilder"
	log "github.com/sirupsen/logrus"

	"feedhound/models"
)

// ErrNotFound is returned when a source id does not exist.
var ErrNotFound = errors.New("source not found")

// Store wraps the SQLite database.
type Store struct {
	db *sql.DB
}

// Open migrates the database at path and returns a store handle. This
// is the only fatal failure point of a run: an unwritable path aborts
// everything, whereas later per-source errors stay per-source.
func Open(path string) (*Store, error) {
	// The directory has to exist before golang-migrate touches the file.
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}
	if err := Migrate(path); err != nil {
		return nil, fmt.Errorf("migrate %s: %w", path, err)
	}
	db, err := connection(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

const sourceColumns = "id, url, label, category, title, site_link, builtin, enabled, etag, last_modified, last_fetch_status, last_fetch_at"

// ListSources returns sources ordered by category then URL.
func (s *Store) ListSources(enabledOnly bool) ([]models.Source, error) {
	sb := sqlbuilder.NewSelectBuilder()
	sb.Select(sourceColumns).From("sources")
	if enabledOnly {
		sb.Where(sb.Equal("enabled", 1))
	}
	sb.OrderBy("category", "url")

	query, args := sb.Build()
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	defer rows.Close()

	var sources []models.Source
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}
	return sources, rows.Err()
}

// GetSource looks up a single source by id.
func (s *Store) GetSource(id int64) (models.Source, error) {
	sb := sqlbuilder.NewSelectBuilder()
	sb.Select(sourceColumns).From("sources")
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	src, err := scanSource(s.db.QueryRow(query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Source{}, ErrNotFound
	}
	return src, err
}

// AddSource inserts a source by URL, or updates category/label when the
// URL already exists. Returns the id either way.
func (s *Store) AddSource(url, category, label string, builtin bool) (int64, error) {
	res, err := s.db.Exec(`
		INSERT INTO sources (url, label, category, builtin, enabled)
		VALUES (?, ?, ?, ?, 1)
		ON CONFLICT (url) DO NOTHING`,
		url, label, category, boolToInt(builtin))
	if err != nil {
		return 0, fmt.Errorf("add source %s: %w", url, err)
	}

	affected, _ := res.RowsAffected()
	if affected == 0 {
		// Existing source: an explicit add may retag or relabel it.
		ub := sqlbuilder.NewUpdateBuilder()
		ub.Update("sources")
		var assigns []string
		if category != "" {
			assigns = append(assigns, ub.Assign("category", category))
		}
		if label != "" {
			assigns = append(assigns, ub.Assign("label", label))
		}
		if len(assigns) > 0 {
			ub.Set(assigns...).Where(ub.Equal("url", url))
			query, args := ub.Build()
			if _, err := s.db.Exec(query, args...); err != nil {
				return 0, fmt.Errorf("update source %s: %w", url, err)
			}
		}
	}

	var id int64
	if err := s.db.QueryRow("SELECT id FROM sources WHERE url = ?", url).Scan(&id); err != nil {
		return 0, fmt.Errorf("resolve source id for %s: %w", url, err)
	}
	return id, nil
}

// UpsertSource inserts or fully replaces a source by id.
func (s *Store) UpsertSource(src models.Source) error {
	_, err := s.db.Exec(`
		INSERT INTO sources (id, url, label, category, title, site_link, builtin, enabled, etag, last_modified, last_fetch_status, last_fetch_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			url = excluded.url,
			label = excluded.label,
			category = excluded.category,
			title = excluded.title,
			site_link = excluded.site_link,
			builtin = excluded.builtin,
			enabled = excluded.enabled,
			etag = excluded.etag,
			last_modified = excluded.last_modified,
			last_fetch_status = excluded.last_fetch_status,
			last_fetch_at = excluded.last_fetch_at`,
		src.ID, src.URL, src.Label, src.Category, src.Title, src.SiteLink,
		boolToInt(src.Builtin), boolToInt(src.Enabled),
		src.ETag, src.LastModified, src.LastFetchStatus, utcPtr(src.LastFetchAt))
	if err != nil {
		return fmt.Errorf("upsert source %d: %w", src.ID, err)
	}
	return nil
}

// RemoveSource deletes a source; its items go with it via the foreign
// key cascade.
func (s *Store) RemoveSource(id int64) error {
	res, err := s.db.Exec("DELETE FROM sources WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("remove source %d: %w", id, err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

// SetSourceEnabled flips the enabled flag.
func (s *Store) SetSourceEnabled(id int64, enabled bool) error {
	res, err := s.db.Exec("UPDATE sources SET enabled = ? WHERE id = ?", boolToInt(enabled), id)
	if err != nil {
		return fmt.Errorf("set source %d enabled=%v: %w", id, enabled, err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

// SeedSources inserts the given sources only into an empty sources
// table, so built-in defaults never fight with user edits. Returns how
// many rows were seeded.
func (s *Store) SeedSources(sources []models.Source) (int, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("seed sources: %w", err)
	}
	defer tx.Rollback()

	var count int
	if err := tx.QueryRow("SELECT COUNT(*) FROM sources").Scan(&count); err != nil {
		return 0, fmt.Errorf("seed sources: %w", err)
	}
	if count > 0 {
		return 0, nil
	}

	seeded := 0
	for _, src := range sources {
		_, err := tx.Exec(`
			INSERT INTO sources (url, label, category, builtin, enabled)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (url) DO NOTHING`,
			src.URL, src.Label, src.Category, boolToInt(src.Builtin), boolToInt(src.Enabled))
		if err != nil {
			return 0, fmt.Errorf("seed source %s: %w", src.URL, err)
		}
		seeded++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("seed sources: %w", err)
	}
	log.WithField("count", seeded).Info("Seeded built-in sources")
	return seeded, nil
}

// RecordFetchOutcome updates a source's fetch bookkeeping atomically.
// Validators are only replaced when the response carried them.
func (s *Store) RecordFetchOutcome(id int64, status, etag, lastModified string) error {
	ub := sqlbuilder.NewUpdateBuilder()
	ub.Update("sources")
	assigns := []string{
		ub.Assign("last_fetch_status", status),
		ub.Assign("last_fetch_at", time.Now().UTC()),
	}
	if etag != "" {
		assigns = append(assigns, ub.Assign("etag", etag))
	}
	if lastModified != "" {
		assigns = append(assigns, ub.Assign("last_modified", lastModified))
	}
	ub.Set(assigns...).Where(ub.Equal("id", id))

	query, args := ub.Build()
	if _, err := s.db.Exec(query, args...); err != nil {
		return fmt.Errorf("record outcome for source %d: %w", id, err)
	}
	return nil
}

// UpsertItems reconciles parsed candidates in one transaction. New
// (source, dedup key) pairs are inserted; existing ones get their
// mutable fields refreshed while first_seen_at stays untouched.
func (s *Store) UpsertItems(sourceID int64, candidates []models.Candidate) (created, updated int, err error) {
	if len(candidates) == 0 {
		return 0, 0, nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return 0, 0, fmt.Errorf("upsert items for source %d: %w", sourceID, err)
	}
	defer tx.Rollback()

	created, updated, err = upsertItemsTx(tx, sourceID, candidates, time.Now().UTC())
	if err != nil {
		return 0, 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("upsert items for source %d: %w", sourceID, err)
	}
	return created, updated, nil
}

// ReconcileFresh applies one source's fresh fetch outcome as a single
// atomic unit: items, feed metadata, validators and bookkeeping either
// all land or none do.
func (s *Store) ReconcileFresh(sourceID int64, meta models.FeedMeta, candidates []models.Candidate, etag, lastModified string) (created, updated int, err error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, 0, fmt.Errorf("reconcile source %d: %w", sourceID, err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	created, updated, err = upsertItemsTx(tx, sourceID, candidates, now)
	if err != nil {
		return 0, 0, err
	}

	ub := sqlbuilder.NewUpdateBuilder()
	ub.Update("sources")
	assigns := []string{
		ub.Assign("last_fetch_status", models.StatusFresh),
		ub.Assign("last_fetch_at", now),
	}
	if meta.Title != "" {
		assigns = append(assigns, ub.Assign("title", meta.Title))
	}
	if meta.SiteLink != "" {
		assigns = append(assigns, ub.Assign("site_link", meta.SiteLink))
	}
	if etag != "" {
		assigns = append(assigns, ub.Assign("etag", etag))
	}
	if lastModified != "" {
		assigns = append(assigns, ub.Assign("last_modified", lastModified))
	}
	ub.Set(assigns...).Where(ub.Equal("id", sourceID))

	query, args := ub.Build()
	if _, err := tx.Exec(query, args...); err != nil {
		return 0, 0, fmt.Errorf("reconcile source %d: %w", sourceID, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("reconcile source %d: %w", sourceID, err)
	}
	return created, updated, nil
}

func upsertItemsTx(tx *sql.Tx, sourceID int64, candidates []models.Candidate, now time.Time) (created, updated int, err error) {
	check, err := tx.Prepare("SELECT 1 FROM items WHERE source_id = ? AND dedup_key = ?")
	if err != nil {
		return 0, 0, fmt.Errorf("upsert items for source %d: %w", sourceID, err)
	}
	defer check.Close()

	upsert, err := tx.Prepare(`
		INSERT INTO items (source_id, dedup_key, title, summary, link, published_at, updated_at, first_seen_at, last_seen_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (source_id, dedup_key) DO UPDATE SET
			title = excluded.title,
			summary = excluded.summary,
			link = excluded.link,
			published_at = excluded.published_at,
			updated_at = excluded.updated_at,
			last_seen_at = excluded.last_seen_at`)
	if err != nil {
		return 0, 0, fmt.Errorf("upsert items for source %d: %w", sourceID, err)
	}
	defer upsert.Close()

	for _, c := range candidates {
		var one int
		exists := true
		if err := check.QueryRow(sourceID, c.DedupKey).Scan(&one); err != nil {
			if !errors.Is(err, sql.ErrNoRows) {
				return 0, 0, fmt.Errorf("upsert items for source %d: %w", sourceID, err)
			}
			exists = false
		}

		_, err := upsert.Exec(sourceID, c.DedupKey, c.Title, c.Summary, c.Link,
			utcPtr(c.PublishedAt), utcPtr(c.UpdatedAt), now, now)
		if err != nil {
			return 0, 0, fmt.Errorf("upsert item %s for source %d: %w", c.DedupKey, sourceID, err)
		}
		if exists {
			updated++
		} else {
			created++
		}
	}
	return created, updated, nil
}

// QueryOptions filter and bound a read query over accumulated items.
type QueryOptions struct {
	// Since keeps items whose published timestamp is at or after the
	// cutoff; items without one are kept rather than dropped.
	Since *time.Time
	// Category restricts to sources with the given category tag.
	Category string
	Limit    int
}

// QueryItems reads the accumulated history, newest effective timestamp
// first. Ties break on (source id, dedup key) so the ordering is
// deterministic regardless of ingestion order.
func (s *Store) QueryItems(opts QueryOptions) ([]models.Item, error) {
	sb := sqlbuilder.NewSelectBuilder()
	sb.Select(
		"items.id", "items.source_id", "items.dedup_key", "items.title",
		"items.summary", "items.link", "items.published_at", "items.updated_at",
		"items.first_seen_at", "items.last_seen_at",
		"sources.label", "sources.title", "sources.url",
	).From("items")
	sb.Join("sources", "sources.id = items.source_id")

	if opts.Category != "" {
		sb.Where(sb.Equal("sources.category", opts.Category))
	}
	if opts.Since != nil {
		sb.Where(sb.Or(
			sb.IsNull("items.published_at"),
			sb.GreaterEqualThan("items.published_at", opts.Since.UTC()),
		))
	}

	sb.OrderBy(
		"COALESCE(items.published_at, items.first_seen_at) DESC",
		"items.source_id ASC",
		"items.dedup_key ASC",
	)
	if opts.Limit > 0 {
		sb.Limit(opts.Limit)
	}

	query, args := sb.Build()
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	defer rows.Close()

	var items []models.Item
	for rows.Next() {
		var it models.Item
		var published, updatedAt sql.NullTime
		var label, title, url string
		if err := rows.Scan(
			&it.ID, &it.SourceID, &it.DedupKey, &it.Title,
			&it.Summary, &it.Link, &published, &updatedAt,
			&it.FirstSeenAt, &it.LastSeenAt,
			&label, &title, &url,
		); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		if published.Valid {
			t := published.Time
			it.PublishedAt = &t
		}
		if updatedAt.Valid {
			t := updatedAt.Time
			it.UpdatedAt = &t
		}
		it.Source = models.Source{Label: label, Title: title, URL: url}.DisplayName()
		items = append(items, it)
	}
	return items, rows.Err()
}

// CountSources and CountItems back the serve API's gauges.
func (s *Store) CountSources() (int64, error) {
	var n int64
	err := s.db.QueryRow("SELECT COUNT(*) FROM sources").Scan(&n)
	return n, err
}

func (s *Store) CountItems() (int64, error) {
	var n int64
	err := s.db.QueryRow("SELECT COUNT(*) FROM items").Scan(&n)
	return n, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSource(row rowScanner) (models.Source, error) {
	var src models.Source
	var builtin, enabled int
	var lastFetchAt sql.NullTime
	err := row.Scan(
		&src.ID, &src.URL, &src.Label, &src.Category, &src.Title, &src.SiteLink,
		&builtin, &enabled, &src.ETag, &src.LastModified, &src.LastFetchStatus,
		&lastFetchAt,
	)
	if err != nil {
		return models.Source{}, err
	}
	src.Builtin = builtin != 0
	src.Enabled = enabled != 0
	if lastFetchAt.Valid {
		t := lastFetchAt.Time
		src.LastFetchAt = &t
	}
	return src, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// utcPtr normalizes optional timestamps to UTC before storage so the
// text representation sorts chronologically.
func utcPtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return u
}
