package sitemap

import (
	"reflect"
	"testing"

	"github.com/nickheyer/sitemapscraper/internal/query"
	"github.com/nickheyer/sitemapscraper/internal/selector"
)

func itemSel(id, css string, many bool, parents ...string) *selector.Selector {
	if len(parents) == 0 {
		parents = []string{RootID}
	}
	return &selector.Selector{ID: id, Kind: selector.KindItem, CSS: css, Many: many, Parents: parents}
}

func TestExtractChainedMany(t *testing.T) {
	html := `<div><table><tr><td>result1</td></tr><tr><td>result2</td></tr></table>` +
		`<table><tr><td>result3</td></tr><tr><td>result4</td></tr></table></div>`
	doc := query.Parse([]byte(html))

	sm := New("s")
	_ = sm.Append(itemSel("div", "div", false))
	_ = sm.Append(itemSel("table", "table", true, "div"))
	_ = sm.Append(itemSel("tr", "tr", true, "table"))
	_ = sm.Append(&selector.Selector{ID: "td", Kind: selector.KindText, CSS: "td", Parents: []string{"tr"}})

	got := sm.Extract(doc, RootID, nil)
	want := []selector.Record{
		{"td": "result1"},
		{"td": "result2"},
		{"td": "result3"},
		{"td": "result4"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestExtractCommonData(t *testing.T) {
	html := `<a href="x">A</a><a>B</a><span class="c">C</span>`
	doc := query.Parse([]byte(html))

	sm := New("s")
	_ = sm.Append(&selector.Selector{ID: "a", Kind: selector.KindText, CSS: "a", Many: true, Parents: []string{RootID}})
	_ = sm.Append(&selector.Selector{ID: "c", Kind: selector.KindText, CSS: ".c", Parents: []string{RootID}})

	got := sm.Extract(doc, RootID, nil)
	want := []selector.Record{
		{"a": "A", "c": "C"},
		{"a": "B", "c": "C"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}
