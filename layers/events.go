package layers

type EventType string

const (
	EventAddLayers EventType = "ADD_LAYERS"
	EventResetLayers EventType = "RESET_LAYERS"
	EventResetLayersByIndex EventType = "RESET_LAYERS_BY_INDEX"
	EventResetBounds EventType = "RESET_BOUNDS"
	EventSelectLayersById EventType = "SELECT_LAYERS_BY_ID"
	EventSelectLayersByIndex EventType = "SELECT_LAYERS_BY_INDEX"
	EventDeleteLayers EventType = "DELETE_LAYERS"
	EventVisibilityChanged EventType = "VISIBILITY_CHANGED"
	EventLockChanged EventType = "LOCK_CHANGED"
	EventOpacityChanged EventType = "OPACITY_CHANGED"
	EventBlendModeChanged EventType = "BLEND_MODE_CHANGED"
	EventReorderLayers EventType = "REORDER_LAYERS"
	EventGroupSelected EventType = "GROUP_SELECTED"
	EventSetLayersProportional EventType = "SET_LAYERS_PROPORTIONAL"
	EventTranslateLayers EventType = "TRANSLATE_LAYERS"
)

// each event carries the document id and the minimal changed fields
type Event interface {
	EventType() EventType
	EventDocumentId() DocumentId
}

type AddLayersEvent struct {
	DocumentId DocumentId `json:"documentID"`
	Layers []*LayerNode `json:"layers"`
	// ids of placeholder layers replaced by this add
	ReplaceIds []LayerId `json:"replaceIDs,omitempty"`
	Replace bool `json:"replace"`
	Selected bool `json:"selected"`
}

func (self *AddLayersEvent) EventType() EventType { return EventAddLayers }
func (self *AddLayersEvent) EventDocumentId() DocumentId { return self.DocumentId }

type ResetLayersEvent struct {
	DocumentId DocumentId `json:"documentID"`
	Layers []*LayerNode `json:"layers"`
}

func (self *ResetLayersEvent) EventType() EventType { return EventResetLayers }
func (self *ResetLayersEvent) EventDocumentId() DocumentId { return self.DocumentId }

type ResetLayersByIndexEvent struct {
	DocumentId DocumentId `json:"documentID"`
	HostIndexes []int `json:"hostIndexes"`
	Layers []*LayerNode `json:"layers"`
}

func (self *ResetLayersByIndexEvent) EventType() EventType { return EventResetLayersByIndex }
func (self *ResetLayersByIndexEvent) EventDocumentId() DocumentId { return self.DocumentId }

type ResetBoundsEvent struct {
	DocumentId DocumentId `json:"documentID"`
	Bounds map[LayerId]*Bounds `json:"bounds"`
}

func (self *ResetBoundsEvent) EventType() EventType { return EventResetBounds }
func (self *ResetBoundsEvent) EventDocumentId() DocumentId { return self.DocumentId }

type SelectLayersByIdEvent struct {
	DocumentId DocumentId `json:"documentID"`
	// caller order is preserved
	LayerIds []LayerId `json:"layerIDs"`
}

func (self *SelectLayersByIdEvent) EventType() EventType { return EventSelectLayersById }
func (self *SelectLayersByIdEvent) EventDocumentId() DocumentId { return self.DocumentId }

type SelectLayersByIndexEvent struct {
	DocumentId DocumentId `json:"documentID"`
	HostIndexes []int `json:"hostIndexes"`
}

func (self *SelectLayersByIndexEvent) EventType() EventType { return EventSelectLayersByIndex }
func (self *SelectLayersByIndexEvent) EventDocumentId() DocumentId { return self.DocumentId }

type DeleteLayersEvent struct {
	DocumentId DocumentId `json:"documentID"`
	LayerIds []LayerId `json:"layerIDs"`
}

func (self *DeleteLayersEvent) EventType() EventType { return EventDeleteLayers }
func (self *DeleteLayersEvent) EventDocumentId() DocumentId { return self.DocumentId }

type VisibilityChangedEvent struct {
	DocumentId DocumentId `json:"documentID"`
	LayerIds []LayerId `json:"layerIDs"`
	Visible bool `json:"visible"`
}

func (self *VisibilityChangedEvent) EventType() EventType { return EventVisibilityChanged }
func (self *VisibilityChangedEvent) EventDocumentId() DocumentId { return self.DocumentId }

type LockChangedEvent struct {
	DocumentId DocumentId `json:"documentID"`
	LayerIds []LayerId `json:"layerIDs"`
	Locked bool `json:"locked"`
}

func (self *LockChangedEvent) EventType() EventType { return EventLockChanged }
func (self *LockChangedEvent) EventDocumentId() DocumentId { return self.DocumentId }

type OpacityChangedEvent struct {
	DocumentId DocumentId `json:"documentID"`
	LayerIds []LayerId `json:"layerIDs"`
	Opacity int `json:"opacity"`
}

func (self *OpacityChangedEvent) EventType() EventType { return EventOpacityChanged }
func (self *OpacityChangedEvent) EventDocumentId() DocumentId { return self.DocumentId }

type BlendModeChangedEvent struct {
	DocumentId DocumentId `json:"documentID"`
	LayerIds []LayerId `json:"layerIDs"`
	Mode BlendMode `json:"mode"`
}

func (self *BlendModeChangedEvent) EventType() EventType { return EventBlendModeChanged }
func (self *BlendModeChangedEvent) EventDocumentId() DocumentId { return self.DocumentId }

type ReorderLayersEvent struct {
	DocumentId DocumentId `json:"documentID"`
	// full new z-order, bottom up
	LayerIds []LayerId `json:"layerIDs"`
}

func (self *ReorderLayersEvent) EventType() EventType { return EventReorderLayers }
func (self *ReorderLayersEvent) EventDocumentId() DocumentId { return self.DocumentId }

type GroupSelectedEvent struct {
	DocumentId DocumentId `json:"documentID"`
	GroupId LayerId `json:"groupID"`
	GroupEndId LayerId `json:"groupEndID"`
	Name string `json:"name"`
}

func (self *GroupSelectedEvent) EventType() EventType { return EventGroupSelected }
func (self *GroupSelectedEvent) EventDocumentId() DocumentId { return self.DocumentId }

type SetLayersProportionalEvent struct {
	DocumentId DocumentId `json:"documentID"`
	LayerIds []LayerId `json:"layerIDs"`
	Proportional bool `json:"proportional"`
}

func (self *SetLayersProportionalEvent) EventType() EventType { return EventSetLayersProportional }
func (self *SetLayersProportionalEvent) EventDocumentId() DocumentId { return self.DocumentId }

type TranslateLayersEvent struct {
	DocumentId DocumentId `json:"documentID"`
	DeltaX float64 `json:"deltaX"`
	DeltaY float64 `json:"deltaY"`
}

func (self *TranslateLayersEvent) EventType() EventType { return EventTranslateLayers }
func (self *TranslateLayersEvent) EventDocumentId() DocumentId { return self.DocumentId }

type DispatchFunction func(event Event)

// Dispatcher fans dispatched events out to subscribers. The document
// store is the principal subscriber; the UI layer subscribes through
// the same interface.
type Dispatcher struct {
	callbacks *CallbackList[DispatchFunction]
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		callbacks: NewCallbackList[DispatchFunction](),
	}
}

func (self *Dispatcher) AddCallback(callback DispatchFunction) func() {
	return self.callbacks.Add(callback)
}

func (self *Dispatcher) Dispatch(event Event) {
	for _, callback := range self.callbacks.Get() {
		HandleError(func() {
			callback(event)
		})
	}
}
