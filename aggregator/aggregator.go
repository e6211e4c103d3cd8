// Package aggregator drives fetch cycles: fan out over enabled
// sources with bounded concurrency, reconcile each outcome against the
// store, and answer the caller's filtered query.
package aggregator

import (
	"context"
	"sort"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"feedhound/db"
	"feedhound/feed"
	"feedhound/fetch"
	"feedhound/models"
)

// DefaultConcurrency bounds in-flight fetches when the caller does not
// say otherwise.
const DefaultConcurrency = 8

// Options tune one fetch cycle and the query that closes it.
type Options struct {
	Since       *time.Time
	Category    string
	Limit       int
	Concurrency int
}

// Aggregator wires the fetch client, the parser and the store together.
type Aggregator struct {
	store  *db.Store
	client *fetch.Client
}

func New(store *db.Store, client *fetch.Client) *Aggregator {
	return &Aggregator{store: store, client: client}
}

// RunCycle performs one complete pass over all enabled sources and
// returns the merged, filtered item history plus a per-source outcome
// report. A single source failing never aborts the cycle; the report
// makes failures visible instead. Result ordering comes solely from the
// store query, never from fetch completion order.
func (a *Aggregator) RunCycle(ctx context.Context, opts Options) ([]models.Item, models.CycleReport, error) {
	report := models.CycleReport{StartedAt: time.Now().UTC()}

	sources, err := a.store.ListSources(true)
	if err != nil {
		return nil, report, err
	}

	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	if concurrency > len(sources) && len(sources) > 0 {
		concurrency = len(sources)
	}

	jobs := make(chan models.Source)
	results := make(chan models.SourceOutcome, len(sources))

	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for src := range jobs {
				results <- a.reconcile(ctx, src)
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, src := range sources {
			select {
			case <-ctx.Done():
				return
			case jobs <- src:
			}
		}
	}()

	wg.Wait()
	close(results)

	settled := make(map[int64]bool, len(sources))
	for outcome := range results {
		report.Outcomes = append(report.Outcomes, outcome)
		settled[outcome.SourceID] = true
	}
	// A cycle deadline can cancel sources before they were dispatched;
	// they still belong in the report, as transient failures.
	for _, src := range sources {
		if !settled[src.ID] {
			report.Outcomes = append(report.Outcomes, models.SourceOutcome{
				SourceID: src.ID,
				URL:      src.URL,
				Status:   models.StatusTransient,
				Error:    ctx.Err().Error(),
			})
		}
	}
	// Completion order is nondeterministic; the report is not.
	sort.Slice(report.Outcomes, func(i, j int) bool {
		return report.Outcomes[i].SourceID < report.Outcomes[j].SourceID
	})
	report.FinishedAt = time.Now().UTC()
	cycleDuration.Observe(report.FinishedAt.Sub(report.StartedAt).Seconds())

	items, err := a.store.QueryItems(db.QueryOptions{
		Since:    opts.Since,
		Category: opts.Category,
		Limit:    opts.Limit,
	})
	if err != nil {
		return nil, report, err
	}
	return items, report, nil
}

// reconcile applies one source's fetch outcome to the store. Fresh
// content flows through the parser into an item upsert; everything else
// only touches the bookkeeping fields. All failure modes end up in the
// returned outcome rather than as errors.
func (a *Aggregator) reconcile(ctx context.Context, src models.Source) models.SourceOutcome {
	outcome := models.SourceOutcome{SourceID: src.ID, URL: src.URL}

	res := a.client.Fetch(ctx, src.URL, fetch.Validators{
		ETag:         src.ETag,
		LastModified: src.LastModified,
	})

	switch res.Status {
	case fetch.StatusFresh:
		meta, candidates, err := feed.Parse(res.Body, res.ContentType, src.URL)
		if err != nil {
			log.WithFields(log.Fields{
				"source": src.URL,
				"error":  err,
			}).Warn("Feed did not parse, skipping for this cycle")
			outcome.Status = models.StatusParseError
			outcome.Error = err.Error()
			a.record(src.ID, &outcome, models.StatusParseError, "", "")
			return outcome
		}

		created, updated, err := a.store.ReconcileFresh(src.ID, meta, candidates,
			res.Validators.ETag, res.Validators.LastModified)
		if err != nil {
			// Store failure aborts this source's write only; the
			// transaction rolled back, nothing was half applied.
			log.WithFields(log.Fields{
				"source": src.URL,
				"error":  err,
			}).Error("Store reconciliation failed")
			outcome.Status = models.StatusStoreError
			outcome.Error = err.Error()
			return outcome
		}
		outcome.Status = models.StatusFresh
		outcome.Created = created
		outcome.Updated = updated
		itemsCreated.Add(float64(created))
		itemsUpdated.Add(float64(updated))
		log.WithFields(log.Fields{
			"source":  src.URL,
			"created": created,
			"updated": updated,
		}).Info("Reconciled source")

	case fetch.StatusNotModified:
		outcome.Status = models.StatusNotModified
		a.record(src.ID, &outcome, models.StatusNotModified,
			res.Validators.ETag, res.Validators.LastModified)

	case fetch.StatusTransient:
		log.WithFields(log.Fields{
			"source": src.URL,
			"error":  res.Err,
		}).Warn("Transient fetch failure, will retry next cycle")
		outcome.Status = models.StatusTransient
		outcome.Error = res.Err.Error()
		a.record(src.ID, &outcome, models.StatusTransient, "", "")

	case fetch.StatusPermanent:
		log.WithFields(log.Fields{
			"source": src.URL,
			"error":  res.Err,
		}).Warn("Permanent fetch failure")
		outcome.Status = models.StatusPermanent
		outcome.Error = res.Err.Error()
		a.record(src.ID, &outcome, models.StatusPermanent, "", "")
	}

	fetchOutcomes.WithLabelValues(outcome.Status).Inc()
	return outcome
}

// record updates bookkeeping for the no-new-content paths. A failure to
// record demotes the outcome to a store error but stays per-source.
func (a *Aggregator) record(sourceID int64, outcome *models.SourceOutcome, status, etag, lastModified string) {
	if err := a.store.RecordFetchOutcome(sourceID, status, etag, lastModified); err != nil {
		log.WithFields(log.Fields{
			"sourceId": sourceID,
			"error":    err,
		}).Error("Recording fetch outcome failed")
		outcome.Status = models.StatusStoreError
		outcome.Error = err.Error()
	}
}
