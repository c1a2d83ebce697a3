package sitemap

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/nickheyer/sitemapscraper/internal/selector"
)

func textSel(id string, parents ...string) *selector.Selector {
	if len(parents) == 0 {
		parents = []string{RootID}
	}
	return &selector.Selector{ID: id, Kind: selector.KindText, CSS: id, Parents: parents}
}

func TestIDUniquenessRejectsDuplicates(t *testing.T) {
	sm := New("s")
	if err := sm.Append(textSel("a")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := sm.Append(textSel("a")); err == nil {
		t.Fatal("expected duplicate id to be rejected")
	}
}

func TestDeleteCascadesOrphans(t *testing.T) {
	sm := New("s")
	_ = sm.Append(textSel("a"))
	_ = sm.Append(textSel("b", "a"))
	_ = sm.Append(textSel("c", "b"))

	if err := sm.Delete("a"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sm.Len() != 0 {
		t.Fatalf("expected cascading delete to remove every descendant, got %d remaining", sm.Len())
	}
}

func TestDeleteSelfEdgeNotOrphaned(t *testing.T) {
	sm := New("s")
	_ = sm.Append(textSel("a"))
	sel, _ := sm.Get("a")
	sel.Parents = append(sel.Parents, "a")

	_ = sm.Append(textSel("b", "a"))
	if err := sm.Delete("b"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sm.Len() != 1 {
		t.Fatalf("expected self-edged selector to survive, got %d remaining", sm.Len())
	}
}

func TestColumnsOrderStability(t *testing.T) {
	sm := New("s")
	_ = sm.Append(textSel("b"))
	_ = sm.Append(textSel("a"))

	got := sm.Columns()
	want := []string{"b", "a"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestStartURLRangeExpansion(t *testing.T) {
	sm := New("s")
	sm.StartURLs = []string{"http://a.b/[001-003]/"}

	got, err := sm.ExpandStartURLs()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"http://a.b/001/", "http://a.b/002/", "http://a.b/003/"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestJSONRoundTrip(t *testing.T) {
	sm := New("s")
	_ = sm.Append(&selector.Selector{ID: "a", Kind: selector.KindText, CSS: "p", Parents: []string{RootID}, Many: true})
	sm.StartURLs = []string{"http://x.y/"}

	data, err := sm.MarshalJSON()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	out := &Sitemap{}
	if err := out.UnmarshalJSON(data); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if out.ID != sm.ID || !reflect.DeepEqual(out.StartURLs, sm.StartURLs) {
		t.Fatalf("round trip mismatch: got %+v", out)
	}
	if out.Len() != 1 {
		t.Fatalf("expected one selector after round trip, got %d", out.Len())
	}
	gotSel, _ := out.Get("a")
	if gotSel.CSS != "p" || !gotSel.Many {
		t.Fatalf("selector fields lost in round trip: %+v", gotSel)
	}
}

func TestUnmarshalRejectsUnknownParentReference(t *testing.T) {
	sm := New("s")
	_ = sm.Append(textSel("a"))

	data, err := sm.MarshalJSON()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	// Corrupt the serialized parent reference to an id that doesn't exist.
	corrupted := strings.Replace(string(data), `"parentSelectors":["_root"]`, `"parentSelectors":["ghost"]`, 1)
	if corrupted == string(data) {
		t.Fatal("expected to find and corrupt the parentSelectors field")
	}

	out := &Sitemap{}
	err = out.UnmarshalJSON([]byte(corrupted))
	if err == nil {
		t.Fatal("expected referential integrity violation to be rejected")
	}
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected a *ValidationError, got %T: %v", err, err)
	}
}

func TestGetOnePageCSSSkipsNonItemBreadcrumbs(t *testing.T) {
	sm := New("s")
	_ = sm.Append(itemSel("list", "ul.list", false))
	_ = sm.Append(&selector.Selector{ID: "link", Kind: selector.KindLink, CSS: "a.next", Parents: []string{"list"}})
	_ = sm.Append(textSel("title", "link"))

	got := sm.GetOnePageCSS("title", []string{"list", "link"})
	want := "ul.list title"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestHasRecursiveSelectorsDetectsItemSelfLoop(t *testing.T) {
	sm := New("s")
	_ = sm.Append(itemSel("item", "div.item", true))
	sel, _ := sm.Get("item")
	sel.Parents = append(sel.Parents, "item")

	if !sm.HasRecursiveSelectors() {
		t.Fatal("expected a self-referencing Item to be detected as recursive")
	}
}

func TestGetOnePageChildsGatesOnLinkBoundary(t *testing.T) {
	sm := New("s")
	_ = sm.Append(&selector.Selector{ID: "link", Kind: selector.KindLink, CSS: "a.next", Parents: []string{RootID}})
	_ = sm.Append(textSel("title", "link"))

	if got := sm.GetOnePageChilds("link"); got != nil {
		t.Fatalf("expected no one-page childs across a Link boundary, got %v", got)
	}
}

func TestGetOnePageSelectorsWalksItemAncestors(t *testing.T) {
	sm := New("s")
	_ = sm.Append(itemSel("list", "ul.list", false))
	_ = sm.Append(itemSel("row", "li.row", true, "list"))
	_ = sm.Append(textSel("title", "row"))

	got := sm.GetOnePageSelectors("title")
	var ids []string
	for _, s := range got {
		ids = append(ids, s.ID)
	}
	want := []string{"list", "row", "title"}
	if !reflect.DeepEqual(ids, want) {
		t.Fatalf("got %v, want %v", ids, want)
	}
}

func TestTreeCoverage(t *testing.T) {
	sm := New("s")
	_ = sm.Append(textSel("a"))
	_ = sm.Append(textSel("b"))

	trees := sm.findTrees(RootID, nil)
	seen := map[string]bool{}
	for _, tree := range trees {
		for _, id := range tree {
			seen[id] = true
		}
	}
	for _, s := range sm.All() {
		if !seen[s.ID] {
			t.Fatalf("selector %q missing from every tree", s.ID)
		}
	}
}
