package layers

import (
	"context"
	"sync"

	"github.com/golang/glog"
)

// host notification names translated by the reconciler. These cover
// edits the user did not initiate through the command set, e.g. a
// host-native tool.
const (
	HostEventLayerCreated = "make"
	HostEventLayerSet = "set"
	HostEventSelectionChanged = "select"
	HostEventLayerDeleted = "delete"
	HostEventCanvasShifted = "autoCanvasResizeShifted"
	HostEventPathAdd = "addTo"
	HostEventPathSubtract = "subtractFrom"
	HostEventPathIntersect = "intersectWith"
	// the host fires "interfaceWhite" where "intersectWith" is
	// documented. Known host protocol quirk, kept as-is; both names
	// are subscribed in case a host fix lands.
	HostEventPathIntersectQuirk = "interfaceWhite"
	HostEventPathNew = "newPath"
)

// HostEventReconciler converts host-originated notifications into the
// same dispatch vocabulary used by direct commands. Subscriptions are
// installed once at startup and removed only at Close. Handlers run
// through the scheduler under the host-event locks, so they observe
// the same serialization as direct commands.
type HostEventReconciler struct {
	ctx context.Context
	host Host
	commands *LayerCommands
	store *DocumentStore
	dispatcher *Dispatcher
	scheduler *Scheduler

	mutex sync.Mutex
	// document id -> style properties to apply to the next layer
	// created in that document
	pendingStyles map[DocumentId]map[string]any

	unsubs []func()
}

func NewHostEventReconciler(
	ctx context.Context,
	host Host,
	commands *LayerCommands,
	store *DocumentStore,
	dispatcher *Dispatcher,
	scheduler *Scheduler,
) *HostEventReconciler {
	reconciler := &HostEventReconciler{
		ctx: ctx,
		host: host,
		commands: commands,
		store: store,
		dispatcher: dispatcher,
		scheduler: scheduler,
		pendingStyles: map[DocumentId]map[string]any{},
	}
	reconciler.unsubs = []func(){
		host.AddListener(HostEventLayerCreated, reconciler.layerCreated),
		host.AddListener(HostEventLayerSet, reconciler.layerSet),
		host.AddListener(HostEventSelectionChanged, reconciler.selectionChanged),
		host.AddListener(HostEventLayerDeleted, reconciler.layerDeleted),
		host.AddListener(HostEventCanvasShifted, reconciler.canvasShifted),
		host.AddListener(HostEventPathAdd, reconciler.pathEdited),
		host.AddListener(HostEventPathSubtract, reconciler.pathEdited),
		host.AddListener(HostEventPathIntersect, reconciler.pathEdited),
		host.AddListener(HostEventPathIntersectQuirk, reconciler.pathEdited),
	}
	return reconciler
}

func (self *HostEventReconciler) Close() {
	for _, unsub := range self.unsubs {
		unsub()
	}
	self.unsubs = nil
}

// RegisterPendingStyle arms a one-shot style application for the next
// layer created in the document, e.g. a default text style.
func (self *HostEventReconciler) RegisterPendingStyle(documentId DocumentId, style map[string]any) {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	self.pendingStyles[documentId] = style
}

func (self *HostEventReconciler) takePendingStyle(documentId DocumentId) map[string]any {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	style, ok := self.pendingStyles[documentId]
	if !ok {
		return nil
	}
	delete(self.pendingStyles, documentId)
	return style
}

// resolve the document an event applies to. An event lacking a
// document where one is required indicates a logic defect.
func (self *HostEventReconciler) eventDocument(event string, body map[string]any) (DocumentId, *DocumentModel, bool) {
	if value, ok := asInt64(body["documentID"]); ok {
		model := self.store.Document(value)
		if model == nil {
			glog.Warningf("[reconcile]%s for unknown document %d\n", event, value)
			return 0, nil, false
		}
		return value, model, true
	}
	model := self.store.ActiveDocument()
	if model == nil {
		glog.Warningf("[reconcile]%s without an active document\n", event)
		return 0, nil, false
	}
	return model.DocumentId(), model, true
}

func eventLayerIds(body map[string]any) []LayerId {
	layerIds := []LayerId{}
	if value, ok := asInt64(body["layerID"]); ok {
		layerIds = append(layerIds, value)
	}
	if values, ok := body["layerIDs"].([]any); ok {
		for _, value := range values {
			if layerId, ok := asInt64(value); ok {
				layerIds = append(layerIds, layerId)
			}
		}
	}
	return layerIds
}

func (self *HostEventReconciler) run(operation string, body func(ctx context.Context, execution *Execution) error) {
	// reserve the ticket synchronously so events for the same
	// document are admitted in host arrival order
	pending, err := self.scheduler.Enqueue(operation)
	if err != nil {
		glog.Warningf("[reconcile]%s = %s\n", operation, err)
		return
	}
	// handlers must not block the transport's listener dispatch
	go HandleError(func() {
		if err := pending.Run(self.ctx, body); err != nil {
			glog.Infof("[reconcile]%s = %s\n", operation, err)
		}
	})
}

// ListenerFunction
func (self *HostEventReconciler) layerCreated(event string, body map[string]any) {
	documentId, model, ok := self.eventDocument(event, body)
	if !ok {
		return
	}
	layerIds := eventLayerIds(body)
	if len(layerIds) == 0 {
		glog.Warningf("[reconcile]%s without layer ids\n", event)
		return
	}

	self.run(OpHostEvent, func(ctx context.Context, execution *Execution) error {
		// re-read under the held locks, the pre-dispatch snapshot can
		// be stale by the time this handler is admitted
		if current := self.store.Document(documentId); current != nil {
			model = current
		}
		known := []LayerId{}
		unknown := []LayerId{}
		for _, layerId := range layerIds {
			if model.Layer(layerId) != nil {
				known = append(known, layerId)
			} else {
				unknown = append(unknown, layerId)
			}
		}

		// duplicate create notifications are re-fetched, not re-added
		if 0 < len(known) {
			err := execution.Transfer(ctx, OpResetLayers, func(ctx context.Context, execution *Execution) error {
				return self.commands.resetLayers(ctx, execution, documentId, known)
			})
			if err != nil {
				return err
			}
		}
		if len(unknown) == 0 {
			return nil
		}

		err := execution.Transfer(ctx, OpAddLayers, func(ctx context.Context, execution *Execution) error {
			return self.commands.addLayers(ctx, execution, documentId, unknown, true, nil)
		})
		if err != nil {
			return err
		}

		if style := self.takePendingStyle(documentId); style != nil {
			refs := make([]*Reference, len(unknown))
			for i, layerId := range unknown {
				refs[i] = LayerRef(documentId, layerId)
			}
			_, err := self.host.PlayObject(ctx, &PlayDescriptor{
				Name: "set",
				Params: map[string]any{
					"ref": refs,
					"to": style,
				},
			})
			if err != nil {
				return hostCommandError(execution.Operation(), err)
			}
			return execution.Transfer(ctx, OpResetLayers, func(ctx context.Context, execution *Execution) error {
				return self.commands.resetLayers(ctx, execution, documentId, unknown)
			})
		}
		return nil
	})
}

// ListenerFunction
func (self *HostEventReconciler) layerSet(event string, body map[string]any) {
	documentId, _, ok := self.eventDocument(event, body)
	if !ok {
		return
	}
	layerIds := eventLayerIds(body)
	if len(layerIds) == 0 {
		return
	}

	self.run(OpHostEvent, func(ctx context.Context, execution *Execution) error {
		return execution.Transfer(ctx, OpResetLayers, func(ctx context.Context, execution *Execution) error {
			return self.commands.resetLayers(ctx, execution, documentId, layerIds)
		})
	})
}

// ListenerFunction
func (self *HostEventReconciler) selectionChanged(event string, body map[string]any) {
	documentId, _, ok := self.eventDocument(event, body)
	if !ok {
		return
	}
	layerIds := eventLayerIds(body)

	self.run(OpHostEvent, func(ctx context.Context, execution *Execution) error {
		self.dispatcher.Dispatch(&SelectLayersByIdEvent{
			DocumentId: documentId,
			LayerIds: layerIds,
		})
		return nil
	})
}

// ListenerFunction
func (self *HostEventReconciler) layerDeleted(event string, body map[string]any) {
	documentId, _, ok := self.eventDocument(event, body)
	if !ok {
		return
	}
	layerIds := eventLayerIds(body)
	if len(layerIds) == 0 {
		return
	}

	self.run(OpHostEvent, func(ctx context.Context, execution *Execution) error {
		self.dispatcher.Dispatch(&DeleteLayersEvent{
			DocumentId: documentId,
			LayerIds: layerIds,
		})
		// the host's post-delete selection is not locally predictable
		return execution.Transfer(ctx, OpResetSelection, func(ctx context.Context, execution *Execution) error {
			return self.commands.resetSelection(ctx, execution, documentId)
		})
	})
}

// ListenerFunction
func (self *HostEventReconciler) canvasShifted(event string, body map[string]any) {
	documentId, _, ok := self.eventDocument(event, body)
	if !ok {
		return
	}
	deltaX, _ := asFloat64(body["deltaX"])
	deltaY, _ := asFloat64(body["deltaY"])
	if deltaX == 0 && deltaY == 0 {
		return
	}

	self.run(OpHostEvent, func(ctx context.Context, execution *Execution) error {
		self.dispatcher.Dispatch(&TranslateLayersEvent{
			DocumentId: documentId,
			DeltaX: deltaX,
			DeltaY: deltaY,
		})
		return nil
	})
}

// ListenerFunction
func (self *HostEventReconciler) pathEdited(event string, body map[string]any) {
	// a new path is followed by a create notification that
	// re-initializes state, so no reset is needed here
	if kind, ok := body["kind"].(string); ok && kind == HostEventPathNew {
		glog.V(2).Infof("[reconcile]%s skip newPath\n", event)
		return
	}

	documentId, _, ok := self.eventDocument(event, body)
	if !ok {
		return
	}
	layerIds := eventLayerIds(body)
	if len(layerIds) == 0 {
		return
	}

	self.run(OpHostEvent, func(ctx context.Context, execution *Execution) error {
		// bounds only, never a full resync
		return execution.Transfer(ctx, OpResetBounds, func(ctx context.Context, execution *Execution) error {
			return self.commands.resetBounds(ctx, execution, documentId, layerIds)
		})
	})
}
