package layers

import (
	"testing"
	"time"

	"github.com/go-playground/assert/v2"
)

func newTestTextTool(h *testHarness) (*TextTool, *HostEventReconciler) {
	reconciler := NewHostEventReconciler(h.ctx, h.host, h.commands, h.store, h.dispatcher, h.scheduler)
	tool := NewTextToolWithDefaults(h.ctx, h.host, h.commands, h.store, h.dispatcher, h.scheduler, reconciler)
	return tool, reconciler
}

func TestTextToolSelectInstallsListenersOnce(t *testing.T) {
	h := newTestHarness(t)
	h.seedDocument(1, []*LayerNode{
		pixelLayer(1, "a"),
	})
	tool, reconciler := newTestTextTool(h)
	defer reconciler.Close()

	tool.Select()
	tool.Select()
	tool.Select()

	// re-selecting replaces, never stacks
	assert.Equal(t, 1, h.host.listenerCounts[HostEventTextStyleChanged])
	assert.Equal(t, 1, h.host.listenerCounts[HostEventTextLayerCreated])
	assert.Equal(t, 1, h.host.listenerCounts[HostEventTextLayerDeleted])
	assert.Equal(t, 1, h.host.listenerCounts[HostEventToolModalState])

	tool.Deselect()
	assert.Equal(t, 0, h.host.listenerCounts[HostEventTextLayerCreated])
	assert.Equal(t, TextToolIdle, tool.State())
}

func TestTextToolCreateEnterEditing(t *testing.T) {
	h := newTestHarness(t)
	h.seedDocument(1, []*LayerNode{
		pixelLayer(1, "a"),
	})
	tool, reconciler := newTestTextTool(h)
	defer reconciler.Close()
	tool.Select()

	text := pixelLayer(10, "Lorem ipsum")
	text.Kind = LayerKindText
	h.host.seedLayer(text)
	h.host.fire(HostEventTextLayerCreated, map[string]any{
		"documentID": float64(1),
		"layerID": float64(10),
	})

	assert.Equal(t, TextToolEditing, tool.State())
	model := h.waitForDocument(t, 1, func(model *DocumentModel) bool {
		return model.Layer(10) != nil
	})
	assert.Equal(t, LayerKindText, model.Layer(10).Kind)
	assert.Equal(t, []LayerId{10}, model.SelectedIds())
}

func TestTextToolReplacedPlaceholderDeleteResyncs(t *testing.T) {
	h := newTestHarness(t)
	h.seedDocument(1, []*LayerNode{
		emptyLayer(5, "placeholder"),
	})
	tool, reconciler := newTestTextTool(h)
	defer reconciler.Close()
	tool.Select()

	text := pixelLayer(10, "Lorem ipsum")
	text.Kind = LayerKindText
	h.host.seedLayer(text)
	h.host.fire(HostEventTextLayerCreated, map[string]any{
		"documentID": float64(1),
		"layerID": float64(10),
	})
	h.waitForDocument(t, 1, func(model *DocumentModel) bool {
		return model.Layer(10) != nil && model.Layer(5) == nil
	})

	// deleting the text layer undoes the placeholder replacement,
	// which only a full resync can reconstruct
	h.host.docProps["numberOfLayers"] = float64(1)
	h.host.docProps["hasBackgroundLayer"] = false
	h.host.docProps["targetLayers"] = []any{}
	restored := emptyLayer(42, "restored placeholder")
	h.host.seedLayer(restored)
	h.host.layerPropsByIndex[1] = h.host.layerProps[42]

	h.host.fire(HostEventTextLayerDeleted, map[string]any{
		"documentID": float64(1),
		"layerID": float64(10),
	})

	model := h.waitForDocument(t, 1, func(model *DocumentModel) bool {
		return model.Layer(42) != nil
	})
	assert.Equal(t, 1, model.Len())
	assert.Equal(t, (*LayerNode)(nil), model.Layer(10))
}

func TestTextToolPlainDeleteDispatches(t *testing.T) {
	h := newTestHarness(t)
	h.seedDocument(1, []*LayerNode{
		pixelLayer(1, "a"),
		pixelLayer(10, "text"),
	})
	tool, reconciler := newTestTextTool(h)
	defer reconciler.Close()
	tool.Select()

	h.host.fire(HostEventTextLayerDeleted, map[string]any{
		"documentID": float64(1),
		"layerID": float64(10),
	})

	model := h.waitForDocument(t, 1, func(model *DocumentModel) bool {
		return model.Layer(10) == nil
	})
	// no placeholder was replaced this session, so no resync
	assert.Equal(t, 1, model.Len())
	assert.Equal(t, 0, h.host.getCount())
}

func TestTextToolCancelAfterDeleteSkipsReset(t *testing.T) {
	h := newTestHarness(t)
	h.seedDocument(1, []*LayerNode{
		pixelLayer(1, "a"),
		pixelLayer(10, "text"),
	})
	tool, reconciler := newTestTextTool(h)
	defer reconciler.Close()
	tool.Select()

	h.host.fire(HostEventTextLayerDeleted, map[string]any{
		"documentID": float64(1),
		"layerID": float64(10),
	})
	h.waitForDocument(t, 1, func(model *DocumentModel) bool {
		return model.Layer(10) == nil
	})

	// the delete already reconciled this session's teardown; the
	// cancel must not trigger a second reset
	h.host.fire(HostEventToolModalState, map[string]any{
		"documentID": float64(1),
		"state": "cancel",
	})

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, TextToolCanceled, tool.State())
	assert.Equal(t, 0, h.host.getCount())
}

func TestTextToolCancelResetsBoundsAndSelection(t *testing.T) {
	h := newTestHarness(t)
	model := h.seedDocument(1, []*LayerNode{
		pixelLayer(1, "a"),
	})
	h.store.ReplaceDocument(model.WithSelection([]LayerId{1}))
	tool, reconciler := newTestTextTool(h)
	defer reconciler.Close()
	tool.Select()

	h.host.layerProps[1] = LayerProperties{
		"bounds": map[string]any{
			"top": float64(7),
			"left": float64(7),
			"bottom": float64(70),
			"right": float64(70),
		},
	}
	h.host.docProps["targetLayers"] = []any{float64(1)}

	h.host.fire(HostEventToolModalState, map[string]any{
		"documentID": float64(1),
		"state": "cancel",
	})

	next := h.waitForDocument(t, 1, func(model *DocumentModel) bool {
		return model.Layer(1).Bounds.Top == 7
	})
	assert.Equal(t, TextToolCanceled, tool.State())
	assert.Equal(t, []LayerId{1}, next.SelectedIds())
}

func TestTextToolCommitClearsDeleteMemo(t *testing.T) {
	h := newTestHarness(t)
	h.seedDocument(1, []*LayerNode{
		pixelLayer(1, "a"),
	})
	tool, reconciler := newTestTextTool(h)
	defer reconciler.Close()
	tool.Select()

	h.host.fire(HostEventToolModalState, map[string]any{
		"documentID": float64(1),
		"state": "enter",
	})
	assert.Equal(t, TextToolEditing, tool.State())

	h.host.fire(HostEventToolModalState, map[string]any{
		"documentID": float64(1),
		"state": "commit",
	})
	assert.Equal(t, TextToolCommitted, tool.State())
}

func TestTextToolStyleChangeResetsSelection(t *testing.T) {
	h := newTestHarness(t)
	model := h.seedDocument(1, []*LayerNode{
		pixelLayer(1, "styled"),
	})
	h.store.ReplaceDocument(model.WithSelection([]LayerId{1}))
	tool, reconciler := newTestTextTool(h)
	defer reconciler.Close()
	tool.Select()

	restyled := pixelLayer(1, "styled")
	restyled.Opacity = 80
	h.host.seedLayer(restyled)
	// no layer ids in the body, falls back to the selection
	h.host.fire(HostEventTextStyleChanged, map[string]any{
		"documentID": float64(1),
	})

	h.waitForDocument(t, 1, func(model *DocumentModel) bool {
		return model.Layer(1).Opacity == 80
	})
}

func TestTextToolFirstSelectArmsDefaultStyle(t *testing.T) {
	h := newTestHarness(t)
	h.seedDocument(1, []*LayerNode{
		pixelLayer(1, "a"),
	})
	tool, reconciler := newTestTextTool(h)
	defer reconciler.Close()

	tool.Select()
	tool.Deselect()
	// the default style arms once per process, not once per select
	tool.Select()

	h.host.seedLayer(pixelLayer(10, "text"))
	h.host.fire(HostEventLayerCreated, map[string]any{
		"documentID": float64(1),
		"layerID": float64(10),
	})
	h.waitFor(t, "default style applied", func() bool {
		return h.host.playCount() == 1
	})
	assert.Equal(t, []string{"set"}, h.host.playNames())
}
