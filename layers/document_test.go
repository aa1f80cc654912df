package layers

import (
	"testing"

	"github.com/go-playground/assert/v2"
)

func TestHostIndexRoundTrip(t *testing.T) {
	withBackground := NewDocumentModel(1, []*LayerNode{
		backgroundLayer(1),
		pixelLayer(2, "a"),
		pixelLayer(3, "b"),
	})
	withoutBackground := NewDocumentModel(2, []*LayerNode{
		pixelLayer(2, "a"),
		pixelLayer(3, "b"),
	})

	assert.Equal(t, true, withBackground.HasBackground())
	assert.Equal(t, false, withoutBackground.HasBackground())

	// without a background the host index is shifted by one
	assert.Equal(t, 0, withBackground.HostIndex(0))
	assert.Equal(t, 1, withoutBackground.HostIndex(0))

	for position := 0; position < withBackground.Len(); position += 1 {
		assert.Equal(t, position, withBackground.PositionForHostIndex(withBackground.HostIndex(position)))
	}
	for position := 0; position < withoutBackground.Len(); position += 1 {
		assert.Equal(t, position, withoutBackground.PositionForHostIndex(withoutBackground.HostIndex(position)))
	}
}

func TestDerivedDepth(t *testing.T) {
	// bottom up: a group reads [end, members..., start] ascending
	model := NewDocumentModel(1, []*LayerNode{
		groupEnd(4),
		pixelLayer(3, "inner"),
		groupStart(2, "group"),
		pixelLayer(1, "top"),
	})

	assert.Equal(t, 0, model.Layer(2).Depth)
	assert.Equal(t, 1, model.Layer(3).Depth)
	assert.Equal(t, 0, model.Layer(4).Depth)
	assert.Equal(t, 0, model.Layer(1).Depth)
}

func TestSubtree(t *testing.T) {
	model := NewDocumentModel(1, []*LayerNode{
		groupEnd(6),
		groupEnd(5),
		pixelLayer(4, "inner"),
		groupStart(3, "nested"),
		groupStart(2, "outer"),
		pixelLayer(1, "top"),
	})

	subtree := model.Subtree(2)
	ids := make([]LayerId, len(subtree))
	for i, node := range subtree {
		ids[i] = node.Id
	}
	assert.Equal(t, []LayerId{2, 3, 4, 5, 6}, ids)

	assert.Equal(t, 1, len(model.Subtree(1)))
	assert.Equal(t, 3, len(model.GroupMembers(2)))
	assert.Equal(t, 0, len(model.GroupMembers(1)))
}

func TestGroupedNestingDepth(t *testing.T) {
	flat := NewDocumentModel(1, []*LayerNode{
		pixelLayer(1, "a"),
		pixelLayer(2, "b"),
	})
	assert.Equal(t, 1, flat.GroupedNestingDepth([]LayerId{1, 2}))

	nested := NewDocumentModel(1, []*LayerNode{
		groupEnd(4),
		pixelLayer(3, "inner"),
		groupStart(2, "group"),
	})
	// wrapping the group nests its content one deeper
	assert.Equal(t, 2, nested.GroupedNestingDepth([]LayerId{2}))
	// wrapping only the inner layer counts its existing depth
	assert.Equal(t, 2, nested.GroupedNestingDepth([]LayerId{3}))
}

func TestWithSelectionGrouped(t *testing.T) {
	model := NewDocumentModel(1, []*LayerNode{
		pixelLayer(1, "bottom"),
		pixelLayer(2, "a"),
		pixelLayer(3, "b"),
		pixelLayer(4, "top"),
	})
	model = model.WithSelection([]LayerId{2, 3})

	grouped := model.WithSelectionGrouped(10, -10, "group")

	assert.Equal(t, 6, grouped.Len())
	ids := make([]LayerId, 0, grouped.Len())
	for _, node := range grouped.Layers() {
		ids = append(ids, node.Id)
	}
	assert.Equal(t, []LayerId{1, -10, 2, 3, 10, 4}, ids)
	assert.Equal(t, []LayerId{10}, grouped.SelectedIds())
	assert.Equal(t, 1, grouped.Layer(2).Depth)
	assert.Equal(t, 0, grouped.Layer(10).Depth)
}

func TestWithLayersAddedReplace(t *testing.T) {
	model := NewDocumentModel(1, []*LayerNode{
		emptyLayer(5, "placeholder"),
	})

	next := model.WithLayersAdded([]*LayerNode{pixelLayer(10, "content")}, []LayerId{5}, true)

	assert.Equal(t, 1, next.Len())
	assert.Equal(t, (*LayerNode)(nil), next.Layer(5))
	assert.Equal(t, []LayerId{10}, next.SelectedIds())

	// the original version is untouched
	assert.Equal(t, 1, model.Len())
	assert.Equal(t, "placeholder", model.Layer(5).Name)
}

func TestBuildersResolveExistingPositions(t *testing.T) {
	model := NewDocumentModel(1, []*LayerNode{
		pixelLayer(1, "a"),
		pixelLayer(2, "b"),
	})

	// every builder below looks up positions on the cloned version
	// before the reindex runs
	next := model.WithVisibility([]LayerId{1}, false)
	assert.Equal(t, false, next.Layer(1).Visible)

	next = next.WithOpacity([]LayerId{2}, 30)
	assert.Equal(t, 30, next.Layer(2).Opacity)

	next = next.WithName(1, "renamed")
	assert.Equal(t, "renamed", next.Layer(1).Name)

	next = next.WithBounds(1, &Bounds{Top: 5, Left: 5, Bottom: 10, Right: 10})
	assert.Equal(t, 5.0, next.Layer(1).Bounds.Top)

	// a reset of a known id replaces in place, never appends
	next = next.WithLayersReset([]*LayerNode{pixelLayer(2, "reset")})
	assert.Equal(t, 2, next.Len())
	assert.Equal(t, "reset", next.Layer(2).Name)
}

func TestWithLayersAddedUnselectedClearsTargetFlag(t *testing.T) {
	model := NewDocumentModel(1, []*LayerNode{
		pixelLayer(1, "a"),
	})

	// a fetched node can carry the host's targeted flag
	added := pixelLayer(2, "b")
	added.Selected = true
	next := model.WithLayersAdded([]*LayerNode{added}, nil, false)

	assert.Equal(t, false, next.Layer(2).Selected)
	assert.Equal(t, 0, len(next.SelectedIds()))
}

func TestWithReorderValidates(t *testing.T) {
	model := NewDocumentModel(1, []*LayerNode{
		pixelLayer(1, "a"),
		pixelLayer(2, "b"),
	})

	_, err := model.WithReorder([]LayerId{2})
	assert.NotEqual(t, nil, err)

	_, err = model.WithReorder([]LayerId{2, 99})
	assert.NotEqual(t, nil, err)

	next, err := model.WithReorder([]LayerId{2, 1})
	assert.Equal(t, nil, err)
	assert.Equal(t, LayerId(2), next.Layers()[0].Id)
	assert.Equal(t, LayerId(1), next.Layers()[1].Id)
}

func TestWithTranslation(t *testing.T) {
	model := NewDocumentModel(1, []*LayerNode{
		pixelLayer(1, "a"),
		groupStart(2, "empty group"),
	})

	next := model.WithTranslation(10, -5)

	bounds := next.Layer(1).Bounds
	assert.Equal(t, 10.0, bounds.Left)
	assert.Equal(t, -5.0, bounds.Top)
	// layers without bounds are untouched
	assert.Equal(t, (*Bounds)(nil), next.Layer(2).Bounds)
}
