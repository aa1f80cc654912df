package layers

import (
	"testing"

	"github.com/go-playground/assert/v2"
)

func TestStoreAppliesDispatchedEvents(t *testing.T) {
	dispatcher := NewDispatcher()
	store := NewDocumentStore(dispatcher)
	defer store.Close()

	store.ReplaceDocument(NewDocumentModel(1, []*LayerNode{
		pixelLayer(1, "a"),
	}))

	dispatcher.Dispatch(&AddLayersEvent{
		DocumentId: 1,
		Layers: []*LayerNode{pixelLayer(2, "b")},
		Selected: true,
	})

	model := store.Document(1)
	assert.Equal(t, 2, model.Len())
	assert.Equal(t, []LayerId{2}, model.SelectedIds())
}

func TestStoreIgnoresUnknownDocument(t *testing.T) {
	dispatcher := NewDispatcher()
	store := NewDocumentStore(dispatcher)
	defer store.Close()

	// must not panic or create a document
	dispatcher.Dispatch(&DeleteLayersEvent{
		DocumentId: 404,
		LayerIds: []LayerId{1},
	})
	assert.Equal(t, (*DocumentModel)(nil), store.Document(404))
}

func TestStoreActiveDocument(t *testing.T) {
	dispatcher := NewDispatcher()
	store := NewDocumentStore(dispatcher)
	defer store.Close()

	store.ReplaceDocument(NewDocumentModel(1, []*LayerNode{pixelLayer(1, "a")}))
	store.ReplaceDocument(NewDocumentModel(2, []*LayerNode{pixelLayer(1, "b")}))

	assert.Equal(t, (*DocumentModel)(nil), store.ActiveDocument())
	store.SetActiveDocument(2)
	assert.Equal(t, DocumentId(2), store.ActiveDocument().DocumentId())

	store.CloseDocument(2)
	assert.Equal(t, (*DocumentModel)(nil), store.ActiveDocument())
	assert.Equal(t, 1, len(store.DocumentIds()))
}

func TestStoreSelectByIndexTranslates(t *testing.T) {
	dispatcher := NewDispatcher()
	store := NewDocumentStore(dispatcher)
	defer store.Close()

	store.ReplaceDocument(NewDocumentModel(1, []*LayerNode{
		backgroundLayer(1),
		pixelLayer(2, "a"),
	}))

	// with a background the host index equals the position
	dispatcher.Dispatch(&SelectLayersByIndexEvent{
		DocumentId: 1,
		HostIndexes: []int{1},
	})
	assert.Equal(t, []LayerId{2}, store.Document(1).SelectedIds())
}

func TestStoreRejectsBadReorder(t *testing.T) {
	dispatcher := NewDispatcher()
	store := NewDocumentStore(dispatcher)
	defer store.Close()

	store.ReplaceDocument(NewDocumentModel(1, []*LayerNode{
		pixelLayer(1, "a"),
		pixelLayer(2, "b"),
	}))

	dispatcher.Dispatch(&ReorderLayersEvent{
		DocumentId: 1,
		LayerIds: []LayerId{2},
	})
	// the model keeps the last consistent version
	assert.Equal(t, LayerId(1), store.Document(1).Layers()[0].Id)
}
