package scrape

import (
	"testing"

	"github.com/nickheyer/sitemapscraper/internal/selector"
)

func TestQueueDedupAndDocFilter(t *testing.T) {
	q := NewQueue()

	if !q.Add(NewJob("http://x/a", "_root", selector.Record{})) {
		t.Fatal("expected first add to be accepted")
	}
	if q.Add(NewJob("http://x/a", "_root", selector.Record{})) {
		t.Fatal("expected duplicate URL to be rejected")
	}
	if q.Add(NewJob("http://x/b.pdf", "_root", selector.Record{})) {
		t.Fatal("expected document extension to be rejected")
	}

	if q.Len() != 1 {
		t.Fatalf("expected queue length 1, got %d", q.Len())
	}
	job, ok := q.GetNextJob()
	if !ok || job.URL != "http://x/a" {
		t.Fatalf("expected the first URL present, got %+v", job)
	}
}
