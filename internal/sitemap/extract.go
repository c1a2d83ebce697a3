package sitemap

import (
	"github.com/nickheyer/sitemapscraper/internal/query"
	"github.com/nickheyer/sitemapscraper/internal/selector"
)

// Extract runs the full tree-split and data-merge algorithm against one
// parsed document, rooted at parentID (RootID for a fresh page, or a
// selector id when recursing into a nested scope). Ordering is
// depth-first by extraction tree, then by matched-element order within
// each tree — matching the order selectors were declared.
func (sm *Sitemap) Extract(doc query.Node, parentID string, img selector.ImageDownloader) []selector.Record {
	var out []selector.Record
	for _, tree := range sm.findTrees(parentID, nil) {
		out = append(out, sm.getSelectorTreeData(tree, parentID, doc, selector.Record{}, img)...)
	}
	return out
}

// isCommonToAllTrees reports whether a selector (and everything beneath
// it) belongs in every extraction tree under its parent: it must not
// will_return_many, and it must not both can_create_new_jobs and have
// children (a Link with children always starts its own tree, since those
// children are resolved on the followed page's own job, not here).
func (sm *Sitemap) isCommonToAllTrees(id string) bool {
	sel, ok := sm.Get(id)
	if !ok {
		return true
	}
	if sel.WillReturnMany() {
		return false
	}
	if sel.Capabilities().CanCreateNewJobs && len(sm.GetDirectChilds(id)) > 0 {
		return false
	}
	for _, child := range sm.GetDirectChilds(id) {
		if !sm.isCommonToAllTrees(child.ID) {
			return false
		}
	}
	return true
}

// commonClosure is id plus every transitive descendant, used to fold a
// whole common subtree into a tree's local selector set at once.
func (sm *Sitemap) commonClosure(id string) []string {
	result := []string{id}
	for _, child := range sm.GetDirectChilds(id) {
		result = append(result, sm.commonClosure(child.ID)...)
	}
	return result
}

func (sm *Sitemap) commonChildrenOf(parentID string) []string {
	var out []string
	for _, child := range sm.GetDirectChilds(parentID) {
		if sm.isCommonToAllTrees(child.ID) {
			out = append(out, sm.commonClosure(child.ID)...)
		}
	}
	return out
}

// findTrees partitions parentID's descendants into extraction trees: a
// flat set of selector ids that co-occur in one record stream. Only Item
// selectors (can_have_local_childs) recurse into their own children here —
// a Link's children belong to a different job's extraction entirely.
func (sm *Sitemap) findTrees(parentID string, inheritedCommons []string) [][]string {
	locals := append(append([]string{}, inheritedCommons...), sm.commonChildrenOf(parentID)...)

	var splitting []*selector.Selector
	for _, child := range sm.GetDirectChilds(parentID) {
		if !sm.isCommonToAllTrees(child.ID) {
			splitting = append(splitting, child)
		}
	}

	if len(splitting) == 0 {
		return [][]string{locals}
	}

	var trees [][]string
	for _, s := range splitting {
		provisional := append(append([]string{}, locals...), s.ID)
		if s.Capabilities().CanHaveLocalChilds {
			trees = append(trees, sm.findTrees(s.ID, provisional)...)
		} else {
			trees = append(trees, provisional)
		}
	}
	return trees
}

// getSelectorTreeData walks one extraction tree from parentElem, merging
// every non-will_return_many direct child's single record into a common
// map (recursing through Item children to flatten nested scopes), then
// yields one output record per match of every will_return_many direct
// child, with that common map as a base the child's own fields override.
// If nothing was yielded and the common map is non-empty, it yields that
// map once — mirroring an inline_many Group's "always exactly one record"
// behavior at the tree level.
func (sm *Sitemap) getSelectorTreeData(tree []string, parentID string, parentElem query.Node, commonData selector.Record, img selector.ImageDownloader) []selector.Record {
	inTree := make(map[string]bool, len(tree))
	for _, id := range tree {
		inTree[id] = true
	}

	var treeChildren []*selector.Selector
	for _, c := range sm.GetDirectChilds(parentID) {
		if inTree[c.ID] {
			treeChildren = append(treeChildren, c)
		}
	}

	childCommon := selector.Record{}
	for _, c := range treeChildren {
		// sm.WillReturnMany, not c.WillReturnMany: an Item whose own
		// `many` is false but that contains a many descendant (e.g. a
		// single containing <div> wrapping a `many` table) still fans
		// out through that descendant, so it belongs in the yield loop
		// below, not merged here as a single scalar.
		if sm.WillReturnMany(c.ID) {
			continue
		}
		if c.Capabilities().WillReturnItems {
			items := c.GetItems(parentElem)
			if len(items) == 0 {
				continue
			}
			nested := sm.getSelectorTreeData(tree, c.ID, items[0], selector.Record{}, img)
			if len(nested) > 0 {
				for k, v := range nested[0] {
					childCommon[k] = v
				}
			}
			continue
		}
		recs := c.GetData(parentElem, img)
		if len(recs) > 0 {
			for k, v := range recs[0] {
				childCommon[k] = v
			}
		}
	}

	merged := selector.Record{}
	for k, v := range commonData {
		merged[k] = v
	}
	for k, v := range childCommon {
		merged[k] = v
	}

	var out []selector.Record
	for _, c := range treeChildren {
		if !sm.WillReturnMany(c.ID) {
			continue
		}
		if c.Capabilities().WillReturnItems {
			for _, item := range c.GetItems(parentElem) {
				base := cloneRecord(merged)
				out = append(out, sm.getSelectorTreeData(tree, c.ID, item, base, img)...)
			}
			continue
		}
		for _, rec := range c.GetData(parentElem, img) {
			final := cloneRecord(merged)
			for k, v := range rec {
				final[k] = v
			}
			out = append(out, final)
		}
	}

	if len(out) == 0 && len(merged) > 0 {
		out = append(out, merged)
	}
	return out
}

func cloneRecord(r selector.Record) selector.Record {
	out := make(selector.Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}
