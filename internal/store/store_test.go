package store

import (
	"path/filepath"
	"testing"

	"github.com/nickheyer/sitemapscraper/internal/selector"
	"github.com/nickheyer/sitemapscraper/internal/sitemap"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveAndGetSitemapRoundTrip(t *testing.T) {
	s := openTestStore(t)

	sm := sitemap.New("s1")
	sm.StartURLs = []string{"http://x.y/"}
	if err := sm.Append(&selector.Selector{ID: "a", Kind: selector.KindText, CSS: "p", Parents: []string{sitemap.RootID}}); err != nil {
		t.Fatalf("append: %v", err)
	}

	if err := s.SaveSitemap(sm, "0 * * * *"); err != nil {
		t.Fatalf("save: %v", err)
	}

	ids, err := s.ListSitemaps()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(ids) != 1 || ids[0] != "s1" {
		t.Fatalf("expected [s1], got %v", ids)
	}

	got, err := s.GetSitemap("s1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ID != "s1" || got.Len() != 1 {
		t.Fatalf("round trip mismatch: %+v", got)
	}

	cron, err := s.GetSitemapCron("s1")
	if err != nil {
		t.Fatalf("get cron: %v", err)
	}
	if cron != "0 * * * *" {
		t.Fatalf("expected cron to survive, got %q", cron)
	}
}

func TestSaveRecordStripsControlFields(t *testing.T) {
	s := openTestStore(t)
	sm := sitemap.New("s2")
	if err := s.SaveSitemap(sm, ""); err != nil {
		t.Fatalf("save sitemap: %v", err)
	}

	rec := selector.Record{
		"title":                "hello",
		selector.ControlFollow:   "a",
		selector.ControlFollowID: "link",
	}
	if err := s.SaveRecord("s2", rec); err != nil {
		t.Fatalf("save record: %v", err)
	}

	got, err := s.GetRecords("s2")
	if err != nil {
		t.Fatalf("get records: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 record, got %d", len(got))
	}
	if _, ok := got[0][selector.ControlFollow]; ok {
		t.Fatalf("expected control field stripped, got %+v", got[0])
	}
	if got[0]["title"] != "hello" {
		t.Fatalf("expected title preserved, got %+v", got[0])
	}
}

func TestClearRecords(t *testing.T) {
	s := openTestStore(t)
	sm := sitemap.New("s3")
	if err := s.SaveSitemap(sm, ""); err != nil {
		t.Fatalf("save sitemap: %v", err)
	}
	if err := s.SaveRecord("s3", selector.Record{"a": "1"}); err != nil {
		t.Fatalf("save record: %v", err)
	}
	if err := s.ClearRecords("s3"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	got, err := s.GetRecords("s3")
	if err != nil {
		t.Fatalf("get records: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no records after clear, got %d", len(got))
	}
}
