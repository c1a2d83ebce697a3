package selector

import (
	"errors"
	"reflect"
	"testing"

	"github.com/nickheyer/sitemapscraper/internal/query"
)

var errFetchBoom = errors.New("fetch boom")

func TestTextSingle(t *testing.T) {
	doc := query.Parse([]byte(`<p>a</p><p>b</p>`))
	sel := &Selector{ID: "a", Kind: KindText, CSS: "p"}

	got := sel.GetData(doc, nil)
	want := []Record{{"a": "a"}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestLinkFollow(t *testing.T) {
	doc := query.Parse([]byte(`<a href="http://te.st/a">a</a><a href="http://te.st/b">b</a>`))
	sel := &Selector{ID: "a", Kind: KindLink, CSS: "a", Many: true}

	got := sel.GetData(doc, nil)
	want := []Record{
		{"a": "a", "a-href": "http://te.st/a", ControlFollow: "http://te.st/a", ControlFollowID: "a"},
		{"a": "b", "a-href": "http://te.st/b", ControlFollow: "http://te.st/b", ControlFollowID: "a"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestNoItemsContract(t *testing.T) {
	empty := query.Parse(nil)

	cases := []struct {
		kind Kind
		want []Record
	}{
		{KindText, []Record{{"x": nil}}},
		{KindHtml, []Record{{"x": nil}}},
		{KindImage, []Record{{"x-src": nil}}},
		{KindLink, nil},
	}

	for _, c := range cases {
		sel := &Selector{ID: "x", Kind: c.kind, CSS: "p"}
		got := sel.GetData(empty, nil)
		if !reflect.DeepEqual(got, c.want) {
			t.Fatalf("kind %s: got %v, want %v", c.kind, got, c.want)
		}
	}
}

func TestGroupInlineManyAlwaysYieldsOneRecord(t *testing.T) {
	empty := query.Parse(nil)
	sel := &Selector{ID: "g", Kind: KindGroup, CSS: "li", Many: true}

	got := sel.GetData(empty, nil)
	want := []Record{{"g": []Record(nil)}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestGroupInlineManyWithItems(t *testing.T) {
	doc := query.Parse([]byte(`<li>one</li><li>two</li>`))
	sel := &Selector{ID: "g", Kind: KindGroup, CSS: "li", Many: true}

	got := sel.GetData(doc, nil)
	if len(got) != 1 {
		t.Fatalf("expected exactly one record, got %d", len(got))
	}
	inline, ok := got[0]["g"].([]Record)
	if !ok || len(inline) != 2 {
		t.Fatalf("expected two inlined records, got %v", got[0]["g"])
	}
}

func TestRegexNullsOnNoMatch(t *testing.T) {
	doc := query.Parse([]byte(`<p>hello</p>`))
	sel := &Selector{ID: "a", Kind: KindText, CSS: "p", Regex: `[0-9]+`}

	got := sel.GetData(doc, nil)
	want := []Record{{"a": nil}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestExcludeFiltersMatchedItems(t *testing.T) {
	doc := query.Parse([]byte(`<div class="keep">a</div><div class="skip">b</div>`))
	sel := &Selector{ID: "a", Kind: KindText, CSS: "div", Exclude: ".skip", Many: true}

	got := sel.GetData(doc, nil)
	want := []Record{{"a": "a"}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestImageDownloadBase64(t *testing.T) {
	doc := query.Parse([]byte(`<img src="http://te.st/a.png">`))
	sel := &Selector{ID: "a", Kind: KindImage, CSS: "img", DownloadImage: true}

	fetch := func(url string) ([]byte, error) {
		if url != "http://te.st/a.png" {
			t.Fatalf("unexpected fetch url %q", url)
		}
		return []byte("bytes"), nil
	}

	got := sel.GetData(doc, fetch)
	want := []Record{{"a-src": "http://te.st/a.png", ControlImage: []byte("bytes")}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestImageDownloadSkippedOnFetchError(t *testing.T) {
	doc := query.Parse([]byte(`<img src="http://te.st/a.png">`))
	sel := &Selector{ID: "a", Kind: KindImage, CSS: "img", DownloadImage: true}

	fetch := func(url string) ([]byte, error) {
		return nil, errFetchBoom
	}

	got := sel.GetData(doc, fetch)
	want := []Record{{"a-src": "http://te.st/a.png"}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestColumns(t *testing.T) {
	cases := []struct {
		sel  *Selector
		want []string
	}{
		{&Selector{ID: "a", Kind: KindText}, []string{"a"}},
		{&Selector{ID: "a", Kind: KindImage}, []string{"a-src"}},
		{&Selector{ID: "a", Kind: KindLink}, []string{"a", "a-href"}},
		{&Selector{ID: "a", Kind: KindItem}, nil},
	}
	for _, c := range cases {
		if got := c.sel.Columns(); !reflect.DeepEqual(got, c.want) {
			t.Fatalf("kind %s: got %v, want %v", c.sel.Kind, got, c.want)
		}
	}
}
