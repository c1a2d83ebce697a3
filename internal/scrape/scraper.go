package scrape

import (
	"context"
	"time"

	"github.com/nickheyer/sitemapscraper/internal/fetch"
	"github.com/nickheyer/sitemapscraper/internal/scrapeutil"
	"github.com/nickheyer/sitemapscraper/internal/selector"
	"github.com/nickheyer/sitemapscraper/internal/sitemap"
)

// RecordSink is the persistence boundary a Scraper saves accepted
// records to — satisfied by internal/store.Store.
type RecordSink interface {
	SaveRecord(sitemapID string, record selector.Record) error
}

// Scraper seeds a Queue from a sitemap's start URLs, then drains it
// serially: every produced record either spawns a child Job (when it
// carries a follow signal for a selector with at least one direct
// child and the queue accepts the child's URL) or is persisted, never
// both.
type Scraper struct {
	Sitemap *sitemap.Sitemap
	Fetcher fetch.Fetcher
	Sink    RecordSink
	Images  selector.ImageDownloader

	RequestInterval time.Duration
	PageloadDelay   time.Duration
}

// Run expands the sitemap's start URLs into seed jobs and drains the
// queue to completion. A per-job fetch failure is logged and the job
// simply produces no records; it does not abort the run.
func (s *Scraper) Run(ctx context.Context) error {
	queue := NewQueue()

	seeds, err := s.Sitemap.ExpandStartURLs()
	if err != nil {
		return err
	}
	for _, u := range seeds {
		queue.Add(NewJob(u, sitemap.RootID, selector.Record{}))
	}

	first := true
	for {
		job, ok := queue.GetNextJob()
		if !ok {
			break
		}

		if !first {
			if err := sleepCtx(ctx, s.RequestInterval); err != nil {
				return err
			}
		}
		first = false

		records, err := job.Execute(ctx, s.Fetcher, s.Sitemap, s.Images)
		if err != nil {
			scrapeutil.GetLogger().LogScraperError(
				scrapeutil.NewTemporaryScraperError(err.Error(), job.URL, job.ParentID, job.ParentID, "fetch", 0),
			)
			continue
		}

		if s.PageloadDelay > 0 {
			if err := sleepCtx(ctx, s.PageloadDelay); err != nil {
				return err
			}
		}

		for _, rec := range records {
			s.handleRecord(job, rec, queue)
		}
	}
	return nil
}

func (s *Scraper) handleRecord(job *Job, rec selector.Record, queue *Queue) {
	followURL, hasFollow := rec[selector.ControlFollow].(string)
	followID, hasFollowID := rec[selector.ControlFollowID].(string)

	if hasFollow && hasFollowID && followURL != "" {
		if len(s.Sitemap.GetDirectChilds(followID)) > 0 {
			child, err := NewChildJob(followURL, followID, withoutControlFields(rec), job)
			if err != nil {
				scrapeutil.GetLogger().LogScraperError(
					scrapeutil.NewScraperError(err.Error(), job.URL, followID, followID, "follow"),
				)
				return
			}
			if queue.Add(child) {
				return
			}
		}
	}

	if err := s.Sink.SaveRecord(s.Sitemap.ID, withoutControlFields(rec)); err != nil {
		scrapeutil.GetLogger().LogScraperError(
			scrapeutil.NewScraperError(err.Error(), job.URL, s.Sitemap.ID, s.Sitemap.ID, "store"),
		)
	}
}

func withoutControlFields(rec selector.Record) selector.Record {
	out := make(selector.Record, len(rec))
	for k, v := range rec {
		if k == selector.ControlFollow || k == selector.ControlFollowID {
			continue
		}
		out[k] = v
	}
	return out
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
