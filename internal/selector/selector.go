// Package selector implements the closed Selector family — Text, Html,
// Image, Link, Group, Item — each turning one parent element into zero or
// more data records under a uniform get_items/get_data contract.
package selector

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/nickheyer/sitemapscraper/internal/query"
)

// Kind names one of the six closed selector variants.
type Kind string

const (
	KindText  Kind = "text"
	KindHtml  Kind = "html"
	KindImage Kind = "image"
	KindLink  Kind = "link"
	KindGroup Kind = "group"
	KindItem  Kind = "item"
)

// Capabilities are fixed per Kind and never vary per instance.
type Capabilities struct {
	CanReturnMany      bool
	InlineMany         bool
	CanHaveChilds      bool
	CanHaveLocalChilds bool
	CanCreateNewJobs   bool
	WillReturnItems    bool
}

var capsByKind = map[Kind]Capabilities{
	KindText:  {CanReturnMany: true},
	KindHtml:  {CanReturnMany: true},
	KindImage: {CanReturnMany: true},
	KindGroup: {CanReturnMany: false, InlineMany: true},
	KindLink:  {CanReturnMany: true, CanHaveChilds: true, CanCreateNewJobs: true},
	KindItem:  {CanReturnMany: true, CanHaveChilds: true, CanHaveLocalChilds: true, WillReturnItems: true},
}

// Record is one produced data record: column name -> scalar, tuple-of-
// records (inline_many), or nil.
type Record map[string]any

// Control field names the scraper consumes and the store strips.
const (
	ControlFollow   = "_follow"
	ControlFollowID = "_follow_id"
	ControlImage    = "_image_base64"
)

// Selector is a single node in the sitemap graph. Only fields relevant to
// its Kind are meaningful; JSON (de)serialization (package sitemap) omits
// fields holding their zero value, mirroring the browser-extension schema.
type Selector struct {
	ID      string
	Kind    Kind
	CSS     string
	Exclude string
	Parents []string
	Many    bool
	Delay   int // milliseconds
	Regex   string

	// Extract is Group-only: an extra attribute to capture per item.
	Extract string

	// DownloadImage is Image-only: fetch the image bytes into the
	// _image_base64 field as a []byte, which encoding/json writes as a
	// base64 string when the record is persisted.
	DownloadImage bool
}

// Capabilities returns this selector's fixed, per-kind capability flags.
func (s *Selector) Capabilities() Capabilities {
	return capsByKind[s.Kind]
}

// WillReturnMany is CanReturnMany AND the instance's Many flag.
func (s *Selector) WillReturnMany() bool {
	return s.Capabilities().CanReturnMany && s.Many
}

// Columns names the output columns this selector contributes.
func (s *Selector) Columns() []string {
	switch s.Kind {
	case KindImage:
		return []string{s.ID + "-src"}
	case KindLink:
		return []string{s.ID, s.ID + "-href"}
	case KindItem:
		return nil
	default:
		return []string{s.ID}
	}
}

// ImageDownloader fetches raw bytes for a URL, used by Image selectors
// configured with DownloadImage.
type ImageDownloader func(url string) ([]byte, error)

// GetItems runs CSS against parent, applies Exclude, then caps the result
// to a single element unless Many is set. Empty, whitespace-only, or
// unparseable input (handled by package query) yields no items.
func (s *Selector) GetItems(parent query.Node) []query.Node {
	items := parent.Find(s.CSS)
	items = parent.Not(items, s.Exclude)
	if !s.Many && len(items) > 1 {
		items = items[:1]
	}
	return items
}

// GetData runs the full per-kind extraction pipeline. Item selectors
// don't participate in this contract — the sitemap engine calls GetItems
// on them directly to walk into nested scopes — so GetData on an Item
// selector returns nil.
func (s *Selector) GetData(parent query.Node, imgFetch ImageDownloader) []Record {
	if s.Kind == KindItem {
		return nil
	}
	if s.Delay > 0 {
		time.Sleep(time.Duration(s.Delay) * time.Millisecond)
	}

	caps := s.Capabilities()
	var re *regexp.Regexp
	if s.Regex != "" {
		re, _ = regexp.Compile(s.Regex)
	}

	var inline []Record
	var out []Record
	yielded := false

	for _, item := range s.GetItems(parent) {
		for _, data := range s.itemData(item, imgFetch) {
			if re != nil {
				if raw, ok := data[s.ID].(string); ok {
					if m := re.FindString(raw); m != "" {
						data[s.ID] = m
					} else {
						data[s.ID] = nil
					}
				}
			}
			if caps.InlineMany {
				inline = append(inline, data)
			} else {
				out = append(out, data)
				yielded = true
			}
		}
		if yielded && !s.Many {
			break
		}
	}

	if caps.InlineMany {
		return []Record{{s.ID: inline}}
	}
	if !yielded {
		return s.noItemsData()
	}
	return out
}

// itemData is the per-kind _get_item_data: zero or more raw records for
// one matched element, before regex/inline-many post-processing.
func (s *Selector) itemData(item query.Node, imgFetch ImageDownloader) []Record {
	switch s.Kind {
	case KindText:
		cloned := item.Clone().RemoveMatching("script, style").MarkLineBreaks(`\n`)
		text := cloned.Text()
		text = strings.ReplaceAll(text, `\n `, "\n")
		text = strings.ReplaceAll(text, `\n`, "\n")
		return []Record{{s.ID: text}}

	case KindHtml:
		return []Record{{s.ID: item.Html()}}

	case KindImage:
		src, _ := item.Attr("src")
		rec := Record{s.ID + "-src": src}
		if src != "" && s.DownloadImage && imgFetch != nil {
			if b, err := imgFetch(src); err == nil {
				rec[ControlImage] = b
			}
		}
		return []Record{rec}

	case KindLink:
		href, _ := item.Attr("href")
		return []Record{{
			s.ID:            item.Text(),
			s.ID + "-href":  href,
			ControlFollowID: s.ID,
			ControlFollow:   href,
		}}

	case KindGroup:
		rec := Record{s.ID: item.Text()}
		if s.Extract != "" {
			if v, ok := item.Attr(s.Extract); ok {
				rec[fmt.Sprintf("%s-%s", s.ID, s.Extract)] = v
			}
		}
		return []Record{rec}

	default:
		return nil
	}
}

// noItemsData is _get_noitems_data: the fallback when nothing was yielded
// and the selector isn't inline_many.
func (s *Selector) noItemsData() []Record {
	switch s.Kind {
	case KindImage:
		return []Record{{s.ID + "-src": nil}}
	case KindLink:
		// The Python original raises a stop marker here; this port
		// crystallizes that as "emit nothing" (spec Open Question a).
		return nil
	default:
		return []Record{{s.ID: nil}}
	}
}
