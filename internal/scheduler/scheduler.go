// Package scheduler drives periodic rescrapes via gocron, grounded on the
// teacher's package-level scheduler: one shared gocron.Scheduler, one cron
// entry per sitemap, and a mutex-guarded already-running check so a slow
// scrape never overlaps its own next tick.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/nickheyer/sitemapscraper/internal/fetch"
	"github.com/nickheyer/sitemapscraper/internal/scrape"
	"github.com/nickheyer/sitemapscraper/internal/scrapeutil"
	"github.com/nickheyer/sitemapscraper/internal/store"
)

// Scheduler owns a gocron instance and tracks which sitemaps currently
// have a rescrape in flight, so a scheduled tick for a sitemap still
// running is simply skipped rather than queued.
type Scheduler struct {
	cron *gocron.Scheduler

	store   *store.Store
	fetcher fetch.Fetcher

	requestInterval time.Duration
	pageloadDelay   time.Duration

	mu      sync.Mutex
	running map[string]bool

	pool *scrapeutil.WorkerPool
}

// New builds a Scheduler backed by the given store and fetcher. poolSize
// bounds how many sitemaps may rescrape concurrently — this is the one
// place the worker pool runs, never inside a single Scraper's own job
// loop (spec §5 keeps that strictly serial).
func New(st *store.Store, fetcher fetch.Fetcher, requestInterval, pageloadDelay time.Duration, poolSize int) *Scheduler {
	return &Scheduler{
		cron:            gocron.NewScheduler(time.UTC),
		store:           st,
		fetcher:         fetcher,
		requestInterval: requestInterval,
		pageloadDelay:   pageloadDelay,
		running:         map[string]bool{},
		pool:            scrapeutil.NewWorkerPool(poolSize),
	}
}

// Start begins running scheduled jobs asynchronously.
func (s *Scheduler) Start() {
	s.cron.StartAsync()
}

// Stop halts the scheduler and waits for in-flight rescrapes to drain.
func (s *Scheduler) Stop() {
	s.cron.Stop()
	s.pool.Stop()
	s.pool.Wait()
}

// ScheduleSitemap registers a cron-triggered rescrape for sitemapID. An
// empty cron expression is a no-op (the sitemap is rescraped only on
// explicit `rescrape` CLI/HTTP calls).
func (s *Scheduler) ScheduleSitemap(sitemapID, cronExpr string) error {
	if cronExpr == "" {
		return nil
	}
	_, err := s.cron.Cron(cronExpr).Do(func() {
		s.triggerRescrape(sitemapID)
	})
	return err
}

func (s *Scheduler) triggerRescrape(sitemapID string) {
	s.mu.Lock()
	if s.running[sitemapID] {
		s.mu.Unlock()
		return
	}
	s.running[sitemapID] = true
	s.mu.Unlock()

	s.pool.Submit(func() error {
		defer func() {
			s.mu.Lock()
			delete(s.running, sitemapID)
			s.mu.Unlock()
		}()
		err := s.Rescrape(context.Background(), sitemapID)
		if err != nil {
			scrapeutil.GetLogger().LogScraperError(
				scrapeutil.NewScraperError(err.Error(), "", sitemapID, sitemapID, "scheduled-rescrape"),
			)
		}
		return err
	})
}

// Rescrape clears a sitemap's stored records and runs it end-to-end,
// shared by both the scheduler and the `rescrape` CLI/HTTP operation.
func (s *Scheduler) Rescrape(ctx context.Context, sitemapID string) error {
	sm, err := s.store.GetSitemap(sitemapID)
	if err != nil {
		return err
	}
	if err := s.store.ClearRecords(sitemapID); err != nil {
		return err
	}

	scraper := &scrape.Scraper{
		Sitemap:         sm,
		Fetcher:         s.fetcher,
		Sink:            s.store,
		RequestInterval: s.requestInterval,
		PageloadDelay:   s.pageloadDelay,
	}
	return scraper.Run(ctx)
}
