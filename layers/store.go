package layers

import (
	"sync"

	"golang.org/x/exp/maps"

	"github.com/golang/glog"
)

// DocumentStore exclusively owns the document models. Models are
// replaced, never mutated: each applied event produces a new
// DocumentModel version. Readers get the last-known-consistent
// snapshot, never a partially-updated instance.
type DocumentStore struct {
	dispatcher *Dispatcher

	mutex sync.Mutex
	documents map[DocumentId]*DocumentModel
	activeDocumentId DocumentId

	updateMonitor *Monitor

	unsub func()
}

func NewDocumentStore(dispatcher *Dispatcher) *DocumentStore {
	store := &DocumentStore{
		dispatcher: dispatcher,
		documents: map[DocumentId]*DocumentModel{},
		updateMonitor: NewMonitor(),
	}
	store.unsub = dispatcher.AddCallback(store.apply)
	return store
}

func (self *DocumentStore) Document(documentId DocumentId) *DocumentModel {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	return self.documents[documentId]
}

func (self *DocumentStore) ActiveDocument() *DocumentModel {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	return self.documents[self.activeDocumentId]
}

func (self *DocumentStore) DocumentIds() []DocumentId {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	return maps.Keys(self.documents)
}

func (self *DocumentStore) SetActiveDocument(documentId DocumentId) {
	self.mutex.Lock()
	self.activeDocumentId = documentId
	self.mutex.Unlock()

	self.updateMonitor.NotifyAll()
}

// a model is created when a document becomes active and replaced
// wholesale on a full resync
func (self *DocumentStore) ReplaceDocument(model *DocumentModel) {
	self.mutex.Lock()
	self.documents[model.DocumentId()] = model
	self.mutex.Unlock()

	self.updateMonitor.NotifyAll()
}

func (self *DocumentStore) CloseDocument(documentId DocumentId) {
	self.mutex.Lock()
	delete(self.documents, documentId)
	if self.activeDocumentId == documentId {
		self.activeDocumentId = 0
	}
	self.mutex.Unlock()

	self.updateMonitor.NotifyAll()
}

func (self *DocumentStore) UpdateMonitor() *Monitor {
	return self.updateMonitor
}

func (self *DocumentStore) Close() {
	self.unsub()
}

// DispatchFunction
func (self *DocumentStore) apply(event Event) {
	self.mutex.Lock()
	defer func() {
		self.mutex.Unlock()
		self.updateMonitor.NotifyAll()
	}()

	model, ok := self.documents[event.EventDocumentId()]
	if !ok {
		// a logic defect rather than a runtime condition
		glog.Warningf("[store]%s for unknown document %d\n", event.EventType(), event.EventDocumentId())
		return
	}

	switch v := event.(type) {
	case *AddLayersEvent:
		replaceIds := v.ReplaceIds
		if !v.Replace {
			replaceIds = nil
		}
		model = model.WithLayersAdded(v.Layers, replaceIds, v.Selected)
	case *ResetLayersEvent:
		model = model.WithLayersReset(v.Layers)
	case *ResetLayersByIndexEvent:
		model = model.WithLayersReset(v.Layers)
	case *ResetBoundsEvent:
		for layerId, bounds := range v.Bounds {
			model = model.WithBounds(layerId, bounds)
		}
	case *SelectLayersByIdEvent:
		model = model.WithSelection(v.LayerIds)
	case *SelectLayersByIndexEvent:
		layerIds := make([]LayerId, 0, len(v.HostIndexes))
		for _, hostIndex := range v.HostIndexes {
			position := model.PositionForHostIndex(hostIndex)
			if 0 <= position && position < model.Len() {
				layerIds = append(layerIds, model.Layers()[position].Id)
			}
		}
		model = model.WithSelection(layerIds)
	case *DeleteLayersEvent:
		model = model.WithLayersRemoved(v.LayerIds)
	case *VisibilityChangedEvent:
		model = model.WithVisibility(v.LayerIds, v.Visible)
	case *LockChangedEvent:
		model = model.WithLocked(v.LayerIds, v.Locked)
	case *OpacityChangedEvent:
		model = model.WithOpacity(v.LayerIds, v.Opacity)
	case *BlendModeChangedEvent:
		model = model.WithBlendMode(v.LayerIds, v.Mode)
	case *ReorderLayersEvent:
		next, err := model.WithReorder(v.LayerIds)
		if err != nil {
			glog.Warningf("[store]reorder rejected = %s\n", err)
			return
		}
		model = next
	case *GroupSelectedEvent:
		model = model.WithSelectionGrouped(v.GroupId, v.GroupEndId, v.Name)
	case *SetLayersProportionalEvent:
		model = model.WithProportional(v.LayerIds, v.Proportional)
	case *TranslateLayersEvent:
		model = model.WithTranslation(v.DeltaX, v.DeltaY)
	default:
		glog.V(2).Infof("[store]ignore %s\n", event.EventType())
		return
	}

	self.documents[event.EventDocumentId()] = model
}
