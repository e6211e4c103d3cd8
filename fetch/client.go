// Package fetch performs conditional HTTP retrieval of feed documents.
// The client classifies every fetch into exactly one of four outcomes
// and never writes anywhere; reconciling the result against the store
// is the orchestrator's job.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	log "github.com/sirupsen/logrus"
)

// Status classifies the outcome of a single conditional fetch.
type Status int

const (
	// StatusFresh means the server returned new content (HTTP 200).
	StatusFresh Status = iota
	// StatusNotModified means the cached validators still hold (HTTP 304).
	StatusNotModified
	// StatusTransient covers transport errors, timeouts and 5xx. The
	// source stays eligible for the next cycle.
	StatusTransient
	// StatusPermanent covers malformed URLs and 4xx other than 304.
	StatusPermanent
)

func (s Status) String() string {
	switch s {
	case StatusFresh:
		return "fresh"
	case StatusNotModified:
		return "not_modified"
	case StatusTransient:
		return "transient_failure"
	case StatusPermanent:
		return "permanent_failure"
	}
	return "unknown"
}

// Validators carries the conditional-request state cached for a source.
type Validators struct {
	ETag         string
	LastModified string
}

// Result is the outcome of one fetch. Body and ContentType are set only
// for StatusFresh; Validators holds the values to cache for the next
// request on StatusFresh and StatusNotModified; Err explains failures.
type Result struct {
	Status      Status
	Body        []byte
	ContentType string
	Validators  Validators
	Err         error
}

const (
	defaultTimeout = 20 * time.Second
	userAgent      = "feedhound/1.0"
	acceptHeader   = "application/rss+xml, application/atom+xml, text/xml;q=0.9, */*;q=0.8"

	// maxBodyBytes caps how much of a feed document we are willing to
	// read. Anything larger is not a feed we want.
	maxBodyBytes = 10 << 20

	// transportRetries is how often a transport-level error is retried
	// within a single fetch before it becomes a TransientFailure.
	transportRetries = 2
)

// Client fetches feed documents with conditional requests.
type Client struct {
	http    *http.Client
	timeout time.Duration
}

// NewClient returns a client with the given per-request timeout. Zero
// means the default of 20s. The timeout bounds one whole Fetch call,
// transport retries and backoff sleeps included.
func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		http:    &http.Client{},
		timeout: timeout,
	}
}

// Fetch performs one conditional GET. The request carries If-None-Match
// and If-Modified-Since when the validators hold values; with neither
// it degrades to an unconditional GET.
func (c *Client) Fetch(ctx context.Context, feedURL string, v Validators) Result {
	parsed, err := url.Parse(feedURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		if err == nil {
			err = fmt.Errorf("unsupported URL %q", feedURL)
		}
		return Result{Status: StatusPermanent, Err: fmt.Errorf("invalid feed URL: %w", err)}
	}

	// One deadline covers the request, any retries and the body read.
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.do(ctx, feedURL, v)
	if err != nil {
		// DNS errors, refused connections and timeouts all land here.
		return Result{Status: StatusTransient, Err: fmt.Errorf("fetch %s: %w", feedURL, err)}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if err != nil {
			return Result{Status: StatusTransient, Err: fmt.Errorf("read body of %s: %w", feedURL, err)}
		}
		return Result{
			Status:      StatusFresh,
			Body:        body,
			ContentType: resp.Header.Get("Content-Type"),
			Validators: Validators{
				ETag:         resp.Header.Get("Etag"),
				LastModified: resp.Header.Get("Last-Modified"),
			},
		}
	case resp.StatusCode == http.StatusNotModified:
		// A 304 rarely repeats the validators; carry the cached ones
		// forward unless the server sent replacements.
		next := v
		if etag := resp.Header.Get("Etag"); etag != "" {
			next.ETag = etag
		}
		if lm := resp.Header.Get("Last-Modified"); lm != "" {
			next.LastModified = lm
		}
		return Result{Status: StatusNotModified, Validators: next}
	case resp.StatusCode >= 500:
		return Result{Status: StatusTransient, Err: fmt.Errorf("fetch %s: status %d", feedURL, resp.StatusCode)}
	default:
		return Result{Status: StatusPermanent, Err: fmt.Errorf("fetch %s: status %d", feedURL, resp.StatusCode)}
	}
}

// do issues the GET, retrying transport-level errors a couple of times
// with exponential backoff inside the caller's deadline. HTTP error
// statuses are not retried here; their retry policy lives in the cycle
// semantics.
func (c *Client) do(ctx context.Context, feedURL string, v Validators) (*http.Response, error) {
	operation := func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		req.Header.Set("User-Agent", userAgent)
		req.Header.Set("Accept", acceptHeader)
		if v.ETag != "" {
			req.Header.Set("If-None-Match", v.ETag)
		}
		if v.LastModified != "" {
			req.Header.Set("If-Modified-Since", v.LastModified)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			log.WithFields(log.Fields{
				"url":   feedURL,
				"error": err,
			}).Debug("Transport error, may retry")
			return nil, err
		}
		return resp, nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 200 * time.Millisecond
	policy.MaxInterval = 2 * time.Second
	policy.Multiplier = 2

	return backoff.RetryWithData(operation, backoff.WithContext(backoff.WithMaxRetries(policy, transportRetries), ctx))
}
