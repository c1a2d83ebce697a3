// Package scrape implements the scrape loop: one Job executes one URL
// into zero or more records, a Queue dedupes and filters the URL
// frontier, and a Scraper drains the queue serially, turning follow
// records into child jobs.
package scrape

import (
	"context"
	"fmt"
	"net/url"

	"github.com/nickheyer/sitemapscraper/internal/fetch"
	"github.com/nickheyer/sitemapscraper/internal/query"
	"github.com/nickheyer/sitemapscraper/internal/selector"
	"github.com/nickheyer/sitemapscraper/internal/sitemap"
)

// Job is one unit of work: a URL plus the selector id it was spawned
// under (sitemap.RootID for a seed job) and scalar context inherited
// from the page where its follow-link was found.
type Job struct {
	URL      string
	ParentID string
	BaseData selector.Record
}

// NewJob builds a seed job (no parent).
func NewJob(rawURL, parentID string, baseData selector.Record) *Job {
	return &Job{URL: rawURL, ParentID: parentID, BaseData: baseData}
}

// NewChildJob builds a job whose URL resolves relative to parent's URL
// using standard URL-join semantics, per spec §4.4.
func NewChildJob(rawURL, parentID string, baseData selector.Record, parent *Job) (*Job, error) {
	resolved := rawURL
	if parent != nil && parent.URL != "" {
		base, err := url.Parse(parent.URL)
		if err != nil {
			return nil, fmt.Errorf("parsing parent job URL %q: %w", parent.URL, err)
		}
		ref, err := url.Parse(rawURL)
		if err != nil {
			return nil, fmt.Errorf("parsing follow URL %q: %w", rawURL, err)
		}
		resolved = base.ResolveReference(ref).String()
	}
	return &Job{URL: resolved, ParentID: parentID, BaseData: baseData}, nil
}

// Execute fetches the job's URL, runs the sitemap's extraction algorithm
// rooted at the job's ParentID against the parsed document, and merges
// the job's own BaseData into every produced record — BaseData wins on
// conflict, since it represents link-context the user already chose.
func (j *Job) Execute(ctx context.Context, fetcher fetch.Fetcher, sm *sitemap.Sitemap, img selector.ImageDownloader) ([]selector.Record, error) {
	body, err := fetcher.Fetch(ctx, j.URL)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", j.URL, err)
	}

	doc := query.Parse(body)
	records := sm.Extract(doc, j.ParentID, img)

	for i, rec := range records {
		merged := make(selector.Record, len(rec)+len(j.BaseData))
		for k, v := range rec {
			merged[k] = v
		}
		for k, v := range j.BaseData {
			merged[k] = v
		}
		records[i] = merged
	}
	return records, nil
}
