// Package sitemap implements the ordered selector graph: traversal and
// cycle-detection queries, id-addressed mutation, start-URL expansion, and
// the tree-split + common-data extraction algorithm that turns one parsed
// document into a stream of records.
package sitemap

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/nickheyer/sitemapscraper/internal/selector"
)

// RootID is the reserved parent id denoting the document root. It is
// never a real selector id.
const RootID = "_root"

// ValidationError reports a sitemap invariant violation caught at load or
// mutation time — never during a scrape (spec §7).
type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string { return e.msg }

func validationErrorf(format string, args ...any) error {
	return &ValidationError{msg: fmt.Sprintf(format, args...)}
}

// Sitemap is an ordered collection of selectors plus a list of start-URL
// patterns. Order is preserved across (de)serialization and used as the
// tie-break for output ordering.
type Sitemap struct {
	ID        string
	StartURLs []string

	order []*selector.Selector
	index map[string]int
}

// New creates an empty sitemap with the given id.
func New(id string) *Sitemap {
	return &Sitemap{ID: id, index: map[string]int{}}
}

// Len returns the number of selectors.
func (sm *Sitemap) Len() int { return len(sm.order) }

// All returns the selectors in sitemap (declaration) order. The returned
// slice must not be mutated.
func (sm *Sitemap) All() []*selector.Selector { return sm.order }

// Get looks up a selector by id.
func (sm *Sitemap) Get(id string) (*selector.Selector, bool) {
	i, ok := sm.index[id]
	if !ok {
		return nil, false
	}
	return sm.order[i], true
}

// Insert adds a selector at position pos, rejecting a duplicate id.
func (sm *Sitemap) Insert(pos int, sel *selector.Selector) error {
	if sel.ID == RootID {
		return validationErrorf("selector id %q is reserved", RootID)
	}
	if len(sel.Parents) == 0 {
		return validationErrorf("selector %q must have at least one parent", sel.ID)
	}
	if _, exists := sm.index[sel.ID]; exists {
		return validationErrorf("duplicate selector id %q", sel.ID)
	}
	if pos < 0 {
		pos = 0
	}
	if pos > len(sm.order) {
		pos = len(sm.order)
	}

	sm.order = append(sm.order, nil)
	copy(sm.order[pos+1:], sm.order[pos:])
	sm.order[pos] = sel
	sm.reindex()
	return nil
}

// Append is a convenience wrapper over Insert at the end.
func (sm *Sitemap) Append(sel *selector.Selector) error {
	return sm.Insert(len(sm.order), sel)
}

// Set replaces the selector currently at id with sel (the "__setitem__"
// mutation). If sel.ID differs from id, this is a rename: every other
// selector's Parents referencing id are rewritten to sel.ID. Rejects a
// rename that collides with an existing, different selector.
func (sm *Sitemap) Set(id string, sel *selector.Selector) error {
	i, ok := sm.index[id]
	if !ok {
		return validationErrorf("no such selector %q", id)
	}
	if sel.ID != id {
		if _, exists := sm.index[sel.ID]; exists {
			return validationErrorf("duplicate selector id %q", sel.ID)
		}
	}
	if len(sel.Parents) == 0 {
		return validationErrorf("selector %q must have at least one parent", sel.ID)
	}

	sm.order[i] = sel
	if sel.ID != id {
		sm.renameParentRefs(id, sel.ID)
	}
	sm.reindex()
	return nil
}

// Delete removes the selector identified by id, strips it from every
// other selector's Parents, then transitively deletes any selector that
// became orphaned (empty Parents). A selector referencing itself as a
// parent never empties out from that removal alone, so self-edges are
// naturally exempt from the cascade.
func (sm *Sitemap) Delete(id string) error {
	if _, ok := sm.index[id]; !ok {
		return validationErrorf("no such selector %q", id)
	}

	toDelete := map[string]bool{id: true}
	for {
		sm.removeFromOrder(toDelete)
		sm.stripParentRefs(toDelete)

		newlyOrphaned := map[string]bool{}
		for _, s := range sm.order {
			if len(s.Parents) == 0 {
				newlyOrphaned[s.ID] = true
			}
		}
		if len(newlyOrphaned) == 0 {
			break
		}
		toDelete = newlyOrphaned
	}
	sm.reindex()
	return nil
}

// DeleteAt removes the selector at a given position.
func (sm *Sitemap) DeleteAt(pos int) error {
	if pos < 0 || pos >= len(sm.order) {
		return validationErrorf("index %d out of range", pos)
	}
	return sm.Delete(sm.order[pos].ID)
}

func (sm *Sitemap) removeFromOrder(ids map[string]bool) {
	kept := sm.order[:0]
	for _, s := range sm.order {
		if !ids[s.ID] {
			kept = append(kept, s)
		}
	}
	sm.order = kept
}

func (sm *Sitemap) stripParentRefs(ids map[string]bool) {
	for _, s := range sm.order {
		kept := s.Parents[:0]
		for _, p := range s.Parents {
			if !ids[p] {
				kept = append(kept, p)
			}
		}
		s.Parents = kept
	}
}

func (sm *Sitemap) renameParentRefs(oldID, newID string) {
	for _, s := range sm.order {
		for i, p := range s.Parents {
			if p == oldID {
				s.Parents[i] = newID
			}
		}
	}
}

func (sm *Sitemap) reindex() {
	sm.index = make(map[string]int, len(sm.order))
	for i, s := range sm.order {
		sm.index[s.ID] = i
	}
}

// IDs is ("_root",) followed by every selector id, in sitemap order.
func (sm *Sitemap) IDs() []string {
	ids := make([]string, 0, len(sm.order)+1)
	ids = append(ids, RootID)
	for _, s := range sm.order {
		ids = append(ids, s.ID)
	}
	return ids
}

// PossibleParentIDs is ("_root",) followed by ids of selectors that
// CanHaveChilds, in sitemap order.
func (sm *Sitemap) PossibleParentIDs() []string {
	ids := []string{RootID}
	for _, s := range sm.order {
		if s.Capabilities().CanHaveChilds {
			ids = append(ids, s.ID)
		}
	}
	return ids
}

// Columns concatenates every selector's Columns(), in sitemap order.
func (sm *Sitemap) Columns() []string {
	var cols []string
	for _, s := range sm.order {
		cols = append(cols, s.Columns()...)
	}
	return cols
}

// GetDirectChilds returns selectors whose Parents contains parentID, in
// sitemap order. No-such-id yields an empty slice.
func (sm *Sitemap) GetDirectChilds(parentID string) []*selector.Selector {
	var out []*selector.Selector
	for _, s := range sm.order {
		if hasParent(s, parentID) {
			out = append(out, s)
		}
	}
	return out
}

func hasParent(s *selector.Selector, id string) bool {
	for _, p := range s.Parents {
		if p == id {
			return true
		}
	}
	return false
}

// GetAll returns selectors reachable from parentID (depth-first, each
// visited at most once), yielded in sitemap order. An empty parentID
// means "no filter": every selector, in sitemap order.
func (sm *Sitemap) GetAll(parentID string) []*selector.Selector {
	if parentID == "" {
		return append([]*selector.Selector{}, sm.order...)
	}

	visited := map[string]bool{}
	var visit func(string)
	visit = func(id string) {
		for _, child := range sm.GetDirectChilds(id) {
			if visited[child.ID] {
				continue
			}
			visited[child.ID] = true
			visit(child.ID)
		}
	}
	visit(parentID)

	var out []*selector.Selector
	for _, s := range sm.order {
		if visited[s.ID] {
			out = append(out, s)
		}
	}
	return out
}

// WillReturnMany reports whether the selector or any transitive descendant
// will_return_many.
func (sm *Sitemap) WillReturnMany(id string) bool {
	sel, ok := sm.Get(id)
	if ok && sel.WillReturnMany() {
		return true
	}
	for _, child := range sm.GetDirectChilds(id) {
		if sm.WillReturnMany(child.ID) {
			return true
		}
	}
	return false
}

// HasRecursiveSelectors reports whether, traversing from any top-level
// selector through edges whose source will_return_items, a selector is
// reached twice on the same path. Link selectors never satisfy
// will_return_items, so a link self-loop is not recursive.
func (sm *Sitemap) HasRecursiveSelectors() bool {
	for _, top := range sm.GetDirectChilds(RootID) {
		if sm.hasRecursivePath(top.ID, nil) {
			return true
		}
	}
	return false
}

func (sm *Sitemap) hasRecursivePath(id string, stack []string) bool {
	sel, ok := sm.Get(id)
	if !ok {
		return false
	}
	if sel.Capabilities().WillReturnItems {
		for _, s := range stack {
			if s == id {
				return true
			}
		}
		stack = append(stack, id)
	}
	for _, child := range sm.GetDirectChilds(id) {
		if sm.hasRecursivePath(child.ID, stack) {
			return true
		}
	}
	return false
}

// GetOnePageChilds returns descendants of id reachable without crossing a
// page boundary: it recurses into a child's own children only when that
// child will_return_items (an Item selector, which nests scope on the
// same document rather than following a link to a new page). Ported from
// get_one_page_childs's add_childs, which likewise gates its very first
// call on parent.will_return_items — calling this with a Link's id (a
// selector that never will_return_items) yields nothing, since a Link's
// children live on the page it follows to, not this one. _root is
// treated as always in-scope, since top-level selectors are always on
// the first page.
func (sm *Sitemap) GetOnePageChilds(id string) []*selector.Selector {
	var out []*selector.Selector
	seen := map[string]bool{}
	var visit func(string)
	visit = func(parentID string) {
		for _, child := range sm.GetDirectChilds(parentID) {
			if seen[child.ID] {
				continue
			}
			seen[child.ID] = true
			out = append(out, child)
			if child.Capabilities().WillReturnItems {
				visit(child.ID)
			}
		}
	}
	if sel, ok := sm.Get(id); ok && !sel.Capabilities().WillReturnItems {
		return nil
	}
	visit(id)
	sm.sortByDeclOrder(out)
	return out
}

// GetOnePageSelectors is id's own selector, every will_return_items
// ancestor reachable from it (stopping at _root or the first ancestor
// that doesn't will_return_items), and GetOnePageChilds — the full set of
// selectors resolvable on the one page id's selector is evaluated
// against. Ported from get_one_page_selectors's find_parents.
func (sm *Sitemap) GetOnePageSelectors(id string) []*selector.Selector {
	sel, ok := sm.Get(id)
	if !ok {
		return sm.GetOnePageChilds(id)
	}

	seen := map[string]bool{id: true}
	out := []*selector.Selector{sel}

	var findParents func(*selector.Selector)
	findParents = func(s *selector.Selector) {
		for _, parentID := range s.Parents {
			if parentID == RootID {
				return
			}
			parent, ok := sm.Get(parentID)
			if !ok || seen[parent.ID] || !parent.Capabilities().WillReturnItems {
				continue
			}
			seen[parent.ID] = true
			out = append(out, parent)
			findParents(parent)
		}
	}
	findParents(sel)

	for _, child := range sm.GetOnePageChilds(id) {
		if !seen[child.ID] {
			seen[child.ID] = true
			out = append(out, child)
		}
	}
	sm.sortByDeclOrder(out)
	return out
}

// sortByDeclOrder reorders sels in place to match their position in
// sm.order, mirroring get_one_page_childs/get_one_page_selectors'
// `sorted(self.index(s) for s in results)` final step.
func (sm *Sitemap) sortByDeclOrder(sels []*selector.Selector) {
	sort.Slice(sels, func(i, j int) bool {
		return sm.index[sels[i].ID] < sm.index[sels[j].ID]
	})
}

// GetOnePageCSS concatenates, with single spaces, the css of every
// breadcrumb selector that will_return_items, then the target selector's
// own css. Breadcrumb entries that don't will_return_items are skipped.
func (sm *Sitemap) GetOnePageCSS(id string, breadcrumb []string) string {
	var parts []string
	for _, bID := range breadcrumb {
		sel, ok := sm.Get(bID)
		if !ok || !sel.Capabilities().WillReturnItems {
			continue
		}
		if sel.CSS != "" {
			parts = append(parts, sel.CSS)
		}
	}
	if sel, ok := sm.Get(id); ok && sel.CSS != "" {
		parts = append(parts, sel.CSS)
	}
	return strings.Join(parts, " ")
}

// startURLRangePattern matches a "[start-stop]" or "[start-stop:step]"
// numeric range embedded in a start-URL template.
var startURLRangePattern = regexp.MustCompile(`^(.*?)\[(\d+)-(\d+)(:(\d+))?\](.*)$`)

// ExpandStartURLs expands every configured start-URL template. A URL with
// no embedded range is returned unchanged.
func (sm *Sitemap) ExpandStartURLs() ([]string, error) {
	var out []string
	for _, raw := range sm.StartURLs {
		expanded, err := expandOne(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, expanded...)
	}
	return out, nil
}

func expandOne(raw string) ([]string, error) {
	m := startURLRangePattern.FindStringSubmatch(raw)
	if m == nil {
		return []string{raw}, nil
	}

	prefix, startStr, stopStr, stepStr, suffix := m[1], m[2], m[3], m[5], m[6]

	start, err := strconv.Atoi(startStr)
	if err != nil {
		return nil, validationErrorf("malformed start-URL range in %q: %v", raw, err)
	}
	stop, err := strconv.Atoi(stopStr)
	if err != nil {
		return nil, validationErrorf("malformed start-URL range in %q: %v", raw, err)
	}
	step := 1
	if stepStr != "" {
		step, err = strconv.Atoi(stepStr)
		if err != nil || step <= 0 {
			return nil, validationErrorf("malformed start-URL range step in %q", raw)
		}
	}

	lpad := 1
	if len(startStr) == len(stopStr) {
		lpad = len(startStr)
	}

	var out []string
	for i := start; i <= stop; i += step {
		out = append(out, fmt.Sprintf("%s%0*d%s", prefix, lpad, i, suffix))
	}
	return out, nil
}
