package aggregator

import (
	"context"
	"net/url"
	"sort"
	"time"

	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"

	"feedhound/config"
	"feedhound/feed"
	"feedhound/fetch"
	"feedhound/models"
)

// FetchStatic is file-source mode: one unconditional fetch-and-parse
// pass over a declarative source list, with in-memory dedup and no
// persistence or conditional caching. It deliberately shares no state
// with the store-backed cycle; the two paths give different guarantees.
func FetchStatic(ctx context.Context, client *fetch.Client, sources []config.StaticSource, opts Options) ([]models.Item, models.CycleReport) {
	report := models.CycleReport{StartedAt: time.Now().UTC()}

	if opts.Category != "" {
		sources = lo.Filter(sources, func(s config.StaticSource, _ int) bool {
			return s.Category == opts.Category
		})
	}

	now := time.Now().UTC()
	seen := make(map[string]bool)
	var items []models.Item

	for _, src := range sources {
		outcome := models.SourceOutcome{URL: src.URL}

		res := client.Fetch(ctx, src.URL, fetch.Validators{})
		if res.Status != fetch.StatusFresh {
			log.WithFields(log.Fields{
				"source": src.URL,
				"error":  res.Err,
			}).Warn("Skipping source")
			outcome.Status = res.Status.String()
			if res.Err != nil {
				outcome.Error = res.Err.Error()
			}
			report.Outcomes = append(report.Outcomes, outcome)
			continue
		}

		_, candidates, err := feed.Parse(res.Body, res.ContentType, src.URL)
		if err != nil {
			log.WithFields(log.Fields{
				"source": src.URL,
				"error":  err,
			}).Warn("Feed did not parse, skipping")
			outcome.Status = models.StatusParseError
			outcome.Error = err.Error()
			report.Outcomes = append(report.Outcomes, outcome)
			continue
		}

		label := src.Label
		if label == "" {
			label = hostOf(src.URL)
		}
		for _, c := range candidates {
			if seen[c.DedupKey] {
				continue
			}
			seen[c.DedupKey] = true
			items = append(items, models.Item{
				DedupKey:    c.DedupKey,
				Title:       c.Title,
				Summary:     c.Summary,
				Link:        c.Link,
				PublishedAt: c.PublishedAt,
				UpdatedAt:   c.UpdatedAt,
				FirstSeenAt: now,
				LastSeenAt:  now,
				Source:      label,
			})
			outcome.Created++
		}
		outcome.Status = models.StatusFresh
		report.Outcomes = append(report.Outcomes, outcome)
	}

	if opts.Since != nil {
		cutoff := opts.Since.UTC()
		items = lo.Filter(items, func(it models.Item, _ int) bool {
			return it.PublishedAt == nil || !it.PublishedAt.Before(cutoff)
		})
	}

	sort.Slice(items, func(i, j int) bool {
		ti, tj := items[i].EffectiveTime(), items[j].EffectiveTime()
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return items[i].DedupKey < items[j].DedupKey
	})

	if opts.Limit > 0 && len(items) > opts.Limit {
		items = items[:opts.Limit]
	}

	report.FinishedAt = time.Now().UTC()
	return items, report
}

func hostOf(feedURL string) string {
	u, err := url.Parse(feedURL)
	if err != nil || u.Host == "" {
		return feedURL
	}
	return u.Host
}
