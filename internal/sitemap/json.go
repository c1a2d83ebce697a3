package sitemap

import (
	"encoding/json"
	"fmt"

	"github.com/nickheyer/sitemapscraper/internal/selector"
)

// wireSitemap mirrors the webscraper-extension JSON schema (camelCase,
// selector type names capitalized) plus the `exclude` supplement. Fields
// holding their zero value are omitted on output, matching the extension's
// own serializer.
type wireSitemap struct {
	ID        string         `json:"_id"`
	StartURLs startURLField  `json:"startUrl"`
	Selectors []wireSelector `json:"selectors"`
}

// startURLField accepts the schema's `startUrl` as either a bare string
// or a string array on input, and always emits an array on output.
type startURLField []string

func (f startURLField) MarshalJSON() ([]byte, error) {
	return json.Marshal([]string(f))
}

func (f *startURLField) UnmarshalJSON(data []byte) error {
	var asSlice []string
	if err := json.Unmarshal(data, &asSlice); err == nil {
		*f = asSlice
		return nil
	}
	var asString string
	if err := json.Unmarshal(data, &asString); err != nil {
		return fmt.Errorf("startUrl must be a string or string array: %w", err)
	}
	*f = []string{asString}
	return nil
}

type wireSelector struct {
	ID            string `json:"id"`
	Type          string `json:"type"`
	Selector      string `json:"selector,omitempty"`
	Exclude       string `json:"exclude,omitempty"`
	ParentSelectors []string `json:"parentSelectors"`
	Multiple      bool   `json:"multiple,omitempty"`
	Delay         int    `json:"delay,omitempty"`
	Regex         string `json:"regex,omitempty"`
	ExtractAttribute string `json:"extractAttribute,omitempty"`
	DownloadImage bool   `json:"downloadImage,omitempty"`
}

var wireTypeByKind = map[selector.Kind]string{
	selector.KindText:  "SelectorText",
	selector.KindHtml:  "SelectorHTML",
	selector.KindImage: "SelectorImage",
	selector.KindLink:  "SelectorLink",
	selector.KindGroup: "SelectorGroup",
	selector.KindItem:  "SelectorItem",
}

var kindByWireType = func() map[string]selector.Kind {
	m := map[string]selector.Kind{}
	for k, v := range wireTypeByKind {
		m[v] = k
	}
	return m
}()

// MarshalJSON serializes the sitemap in the extension-compatible schema.
func (sm *Sitemap) MarshalJSON() ([]byte, error) {
	w := wireSitemap{
		ID:        sm.ID,
		StartURLs: startURLField(sm.StartURLs),
	}
	for _, s := range sm.order {
		typ, ok := wireTypeByKind[s.Kind]
		if !ok {
			return nil, fmt.Errorf("unknown selector kind %q", s.Kind)
		}
		w.Selectors = append(w.Selectors, wireSelector{
			ID:               s.ID,
			Type:             typ,
			Selector:         s.CSS,
			Exclude:          s.Exclude,
			ParentSelectors:  s.Parents,
			Multiple:         s.Many,
			Delay:            s.Delay,
			Regex:            s.Regex,
			ExtractAttribute: s.Extract,
			DownloadImage:    s.DownloadImage,
		})
	}
	return json.Marshal(w)
}

// UnmarshalJSON parses the extension-compatible schema into a fresh
// Sitemap, validating ids and parent references as it goes.
func (sm *Sitemap) UnmarshalJSON(data []byte) error {
	var w wireSitemap
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	fresh := New(w.ID)
	fresh.StartURLs = []string(w.StartURLs)

	for _, ws := range w.Selectors {
		kind, ok := kindByWireType[ws.Type]
		if !ok {
			return validationErrorf("unknown selector type %q for id %q", ws.Type, ws.ID)
		}
		sel := &selector.Selector{
			ID:            ws.ID,
			Kind:          kind,
			CSS:           ws.Selector,
			Exclude:       ws.Exclude,
			Parents:       ws.ParentSelectors,
			Many:          ws.Multiple,
			Delay:         ws.Delay,
			Regex:         ws.Regex,
			Extract:       ws.ExtractAttribute,
			DownloadImage: ws.DownloadImage,
		}
		if err := fresh.Append(sel); err != nil {
			return err
		}
	}

	for _, s := range fresh.order {
		for _, p := range s.Parents {
			if p == RootID {
				continue
			}
			if _, ok := fresh.index[p]; !ok {
				return validationErrorf("selector %q references unknown parent %q", s.ID, p)
			}
		}
	}

	*sm = *fresh
	return nil
}
