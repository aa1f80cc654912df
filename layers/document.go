package layers

import (
	"fmt"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// DocumentModel is an immutable snapshot of one document's layer tree,
// mirroring the host's flat-with-markers representation. Slice order is
// the host z-order, bottom up. Group membership is derived by scanning
// between group start/end markers, never stored as parent pointers.
//
// Every update produces a new model. The id index is rebuilt whenever
// the collection changes so id lookup stays O(1) amortized.
type DocumentModel struct {
	documentId DocumentId

	nodes []*LayerNode
	// id -> position in `nodes`
	index map[LayerId]int
	hasBackground bool
	// order-preserving. the host cares about order for some
	// selection modifiers
	selection []LayerId
}

func NewDocumentModel(documentId DocumentId, nodes []*LayerNode) *DocumentModel {
	model := &DocumentModel{
		documentId: documentId,
		nodes: nodes,
	}
	model.reindex()
	return model
}

// recompute the id index, derived nesting depth, the background flag,
// and the default selection from node flags
func (self *DocumentModel) reindex() {
	self.index = make(map[LayerId]int, len(self.nodes))
	self.hasBackground = false
	selection := []LayerId{}
	// the slice runs bottom up, so a group reads
	// [groupEnd, members..., groupStart] in ascending position
	depth := 0
	for position, node := range self.nodes {
		if node.IsGroupStart() {
			depth -= 1
		}
		if node.Depth != depth {
			// nodes may be shared with a previous model version
			node = node.Clone()
			node.Depth = depth
			self.nodes[position] = node
		}
		if node.IsGroupEnd() {
			depth += 1
		}
		self.index[node.Id] = position
		if node.IsBackground() {
			self.hasBackground = true
		}
		if node.Selected {
			selection = append(selection, node.Id)
		}
	}
	if self.selection == nil {
		self.selection = selection
	}
}

func (self *DocumentModel) DocumentId() DocumentId {
	return self.documentId
}

func (self *DocumentModel) Len() int {
	return len(self.nodes)
}

func (self *DocumentModel) HasBackground() bool {
	return self.hasBackground
}

func (self *DocumentModel) Layers() []*LayerNode {
	return slices.Clone(self.nodes)
}

func (self *DocumentModel) Layer(layerId LayerId) *LayerNode {
	position, ok := self.index[layerId]
	if !ok {
		return nil
	}
	return self.nodes[position]
}

func (self *DocumentModel) Position(layerId LayerId) (int, bool) {
	position, ok := self.index[layerId]
	return position, ok
}

func (self *DocumentModel) SelectedIds() []LayerId {
	return slices.Clone(self.selection)
}

func (self *DocumentModel) Selected() []*LayerNode {
	selected := make([]*LayerNode, 0, len(self.selection))
	for _, layerId := range self.selection {
		if node := self.Layer(layerId); node != nil {
			selected = append(selected, node)
		}
	}
	return selected
}

// a flat document has no groupable structure. selectAll/deselectAll on
// a flat or empty document resolve as no-ops.
func (self *DocumentModel) Flat() bool {
	if len(self.nodes) == 0 {
		return true
	}
	return len(self.nodes) == 1 && self.nodes[0].IsBackground()
}

// host layer indices are 1-based and shifted by the background layer.
// without a background the host expects position+1, with a background
// the position is already aligned.
func (self *DocumentModel) HostIndex(position int) int {
	if self.hasBackground {
		return position
	}
	return position + 1
}

func (self *DocumentModel) PositionForHostIndex(hostIndex int) int {
	if self.hasBackground {
		return hostIndex
	}
	return hostIndex - 1
}

// members of a group, derived by scanning to the matching end marker.
// for a non-group layer the subtree is the layer itself.
func (self *DocumentModel) Subtree(layerId LayerId) []*LayerNode {
	position, ok := self.index[layerId]
	if !ok {
		return nil
	}
	node := self.nodes[position]
	if !node.IsGroupStart() {
		return []*LayerNode{node}
	}
	// members sit below the start marker, so scan down to the
	// matching end marker
	subtree := []*LayerNode{node}
	depth := 1
	for i := position - 1; 0 <= i; i -= 1 {
		next := self.nodes[i]
		subtree = append(subtree, next)
		if next.IsGroupStart() {
			depth += 1
		} else if next.IsGroupEnd() {
			depth -= 1
			if depth == 0 {
				break
			}
		}
	}
	return subtree
}

func (self *DocumentModel) GroupMembers(layerId LayerId) []*LayerNode {
	subtree := self.Subtree(layerId)
	if len(subtree) <= 2 {
		return []*LayerNode{}
	}
	return subtree[1 : len(subtree)-1]
}

// the deepest nesting the current selection would reach if wrapped in
// one new group. used to guard the host's depth ceiling before any
// request is issued.
func (self *DocumentModel) GroupedNestingDepth(layerIds []LayerId) int {
	maxDepth := 0
	for _, layerId := range layerIds {
		for _, node := range self.Subtree(layerId) {
			relative := node.Depth
			if node.IsGroupStart() {
				// the start marker's content nests one deeper
				relative += 1
			}
			if maxDepth < relative {
				maxDepth = relative
			}
		}
	}
	return maxDepth + 1
}

// the index stays valid until a builder changes the node collection,
// so id lookups between clone and reindex resolve against it
func (self *DocumentModel) clone() *DocumentModel {
	return &DocumentModel{
		documentId: self.documentId,
		nodes: slices.Clone(self.nodes),
		index: maps.Clone(self.index),
		hasBackground: self.hasBackground,
		selection: slices.Clone(self.selection),
	}
}

func (self *DocumentModel) WithSelection(layerIds []LayerId) *DocumentModel {
	next := self.clone()
	selected := map[LayerId]bool{}
	for _, layerId := range layerIds {
		selected[layerId] = true
	}
	for position, node := range next.nodes {
		if node.Selected != selected[node.Id] {
			update := node.Clone()
			update.Selected = selected[node.Id]
			next.nodes[position] = update
		}
	}
	next.selection = slices.Clone(layerIds)
	next.reindex()
	return next
}

// add layers on top of the z-order. when `replaceIds` is non-empty the
// named placeholder layers vanish in the same update.
func (self *DocumentModel) WithLayersAdded(nodes []*LayerNode, replaceIds []LayerId, selected bool) *DocumentModel {
	next := self.clone()
	if 0 < len(replaceIds) {
		next.nodes = removeIds(next.nodes, replaceIds)
	}
	for _, node := range nodes {
		// fetched nodes can carry the host's targeted flag. an
		// unselected add must not diverge from the selection list.
		if !selected && node.Selected {
			node = node.Clone()
			node.Selected = false
		}
		next.nodes = append(next.nodes, node)
	}
	next.reindex()
	if selected {
		layerIds := make([]LayerId, len(nodes))
		for i, node := range nodes {
			layerIds[i] = node.Id
		}
		return next.WithSelection(layerIds)
	}
	return next
}

func (self *DocumentModel) WithLayersRemoved(layerIds []LayerId) *DocumentModel {
	next := self.clone()
	next.nodes = removeIds(next.nodes, layerIds)
	removed := map[LayerId]bool{}
	for _, layerId := range layerIds {
		removed[layerId] = true
	}
	next.selection = slices.DeleteFunc(next.selection, func(layerId LayerId) bool {
		return removed[layerId]
	})
	next.reindex()
	return next
}

// replace nodes wholesale by id, keeping position. unknown ids are
// appended on top, which covers a reset racing a create notification.
func (self *DocumentModel) WithLayersReset(nodes []*LayerNode) *DocumentModel {
	next := self.clone()
	for _, node := range nodes {
		if position, ok := next.index[node.Id]; ok {
			next.nodes[position] = node
		} else {
			next.nodes = append(next.nodes, node)
		}
	}
	next.reindex()
	return next
}

func (self *DocumentModel) WithReorder(layerIds []LayerId) (*DocumentModel, error) {
	if len(layerIds) != len(self.nodes) {
		return nil, fmt.Errorf("reorder must name all %d layers, got %d", len(self.nodes), len(layerIds))
	}
	next := self.clone()
	nodes := make([]*LayerNode, 0, len(layerIds))
	for _, layerId := range layerIds {
		node := self.Layer(layerId)
		if node == nil {
			return nil, fmt.Errorf("reorder names unknown layer %d", layerId)
		}
		nodes = append(nodes, node)
	}
	next.nodes = nodes
	next.reindex()
	return next, nil
}

func (self *DocumentModel) WithTranslation(dx float64, dy float64) *DocumentModel {
	next := self.clone()
	for position, node := range next.nodes {
		if node.Bounds == nil {
			continue
		}
		update := node.Clone()
		bounds := node.Bounds.Translate(dx, dy)
		update.Bounds = &bounds
		next.nodes[position] = update
	}
	next.reindex()
	return next
}

func (self *DocumentModel) WithBounds(layerId LayerId, bounds *Bounds) *DocumentModel {
	next := self.clone()
	if position, ok := next.index[layerId]; ok {
		update := next.nodes[position].Clone()
		update.Bounds = bounds
		next.nodes[position] = update
	}
	next.reindex()
	return next
}

func (self *DocumentModel) withEach(layerIds []LayerId, update func(node *LayerNode)) *DocumentModel {
	next := self.clone()
	for _, layerId := range layerIds {
		if position, ok := next.index[layerId]; ok {
			node := next.nodes[position].Clone()
			update(node)
			next.nodes[position] = node
		}
	}
	next.reindex()
	return next
}

func (self *DocumentModel) WithVisibility(layerIds []LayerId, visible bool) *DocumentModel {
	return self.withEach(layerIds, func(node *LayerNode) {
		node.Visible = visible
	})
}

func (self *DocumentModel) WithLocked(layerIds []LayerId, locked bool) *DocumentModel {
	return self.withEach(layerIds, func(node *LayerNode) {
		node.Locked = locked
	})
}

func (self *DocumentModel) WithOpacity(layerIds []LayerId, opacity int) *DocumentModel {
	return self.withEach(layerIds, func(node *LayerNode) {
		node.Opacity = opacity
	})
}

func (self *DocumentModel) WithBlendMode(layerIds []LayerId, mode BlendMode) *DocumentModel {
	return self.withEach(layerIds, func(node *LayerNode) {
		node.Mode = mode
	})
}

func (self *DocumentModel) WithProportional(layerIds []LayerId, proportional bool) *DocumentModel {
	return self.withEach(layerIds, func(node *LayerNode) {
		node.Proportional = proportional
	})
}

func (self *DocumentModel) WithName(layerId LayerId, name string) *DocumentModel {
	return self.withEach([]LayerId{layerId}, func(node *LayerNode) {
		node.Name = name
	})
}

// wrap the current selection span in a new group. the span runs from
// the bottom-most to the top-most selected position including the
// layers between, which matches how the host groups a selection.
func (self *DocumentModel) WithSelectionGrouped(groupId LayerId, endId LayerId, name string) *DocumentModel {
	if len(self.selection) == 0 {
		return self
	}
	low := len(self.nodes)
	high := -1
	for _, layerId := range self.selection {
		for _, node := range self.Subtree(layerId) {
			position := self.index[node.Id]
			if position < low {
				low = position
			}
			if high < position {
				high = position
			}
		}
	}
	next := self.clone()
	start := &LayerNode{
		Id: groupId,
		Kind: LayerKindGroup,
		Name: name,
		Visible: true,
		Opacity: 100,
		Mode: BlendPassThrough,
	}
	end := &LayerNode{
		Id: endId,
		Kind: LayerKindGroupEnd,
		Name: "</Layer group>",
	}
	nodes := make([]*LayerNode, 0, len(next.nodes)+2)
	nodes = append(nodes, next.nodes[:low]...)
	nodes = append(nodes, end)
	nodes = append(nodes, next.nodes[low:high+1]...)
	nodes = append(nodes, start)
	nodes = append(nodes, next.nodes[high+1:]...)
	next.nodes = nodes
	next.reindex()
	return next.WithSelection([]LayerId{groupId})
}

func removeIds(nodes []*LayerNode, layerIds []LayerId) []*LayerNode {
	removed := map[LayerId]bool{}
	for _, layerId := range layerIds {
		removed[layerId] = true
	}
	return slices.DeleteFunc(slices.Clone(nodes), func(node *LayerNode) bool {
		return removed[node.Id]
	})
}
