package layers

import (
	"context"
	"sync"

	"github.com/golang/glog"
)

// host notifications scoped to the text tool's modal editing session
const (
	HostEventTextStyleChanged = "updateTextProperties"
	HostEventTextLayerCreated = "makeTextLayer"
	HostEventTextLayerDeleted = "deleteTextLayer"
	HostEventToolModalState = "toolModalStateChanged"
)

type TextToolState string

const (
	TextToolIdle TextToolState = "idle"
	TextToolEditing TextToolState = "editing"
	TextToolCommitted TextToolState = "committed"
	TextToolCanceled TextToolState = "canceled"
)

type TextToolSettings struct {
	// applied once per process, on first tool activation
	DefaultStyle map[string]any
}

func DefaultTextToolSettings() *TextToolSettings {
	return &TextToolSettings{
		DefaultStyle: map[string]any{
			"textStyle": map[string]any{
				"size": 16,
				"fontName": "Source Sans Pro",
			},
		},
	}
}

// TextTool layers a nested state machine on top of the command set for
// the host-side modal text editing session. Host events arriving during
// the session must be deduplicated against locally-issued actions.
type TextTool struct {
	ctx context.Context
	host Host
	commands *LayerCommands
	store *DocumentStore
	dispatcher *Dispatcher
	scheduler *Scheduler
	reconciler *HostEventReconciler

	settings *TextToolSettings

	mutex sync.Mutex
	state TextToolState
	unsubs map[string]func()
	// whether an add during this session replaced a placeholder
	// layer. persists for the whole session.
	layersReplaced bool
	// the layer removed by a delete notification, remembered so the
	// session's cancel notification is recognized as already handled
	deletedLayerId LayerId
	// one-time process-wide flag, reset on process restart
	defaultStyleApplied bool
}

func NewTextToolWithDefaults(
	ctx context.Context,
	host Host,
	commands *LayerCommands,
	store *DocumentStore,
	dispatcher *Dispatcher,
	scheduler *Scheduler,
	reconciler *HostEventReconciler,
) *TextTool {
	return NewTextTool(ctx, host, commands, store, dispatcher, scheduler, reconciler, DefaultTextToolSettings())
}

func NewTextTool(
	ctx context.Context,
	host Host,
	commands *LayerCommands,
	store *DocumentStore,
	dispatcher *Dispatcher,
	scheduler *Scheduler,
	reconciler *HostEventReconciler,
	settings *TextToolSettings,
) *TextTool {
	return &TextTool{
		ctx: ctx,
		host: host,
		commands: commands,
		store: store,
		dispatcher: dispatcher,
		scheduler: scheduler,
		reconciler: reconciler,
		settings: settings,
		state: TextToolIdle,
		unsubs: map[string]func(){},
	}
}

func (self *TextTool) State() TextToolState {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	return self.state
}

// Select activates the tool. Listener installation is idempotent: any
// previously-installed instance of each listener is replaced first.
func (self *TextTool) Select() {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	install := func(event string, listener ListenerFunction) {
		if unsub, ok := self.unsubs[event]; ok {
			unsub()
		}
		self.unsubs[event] = self.host.AddListener(event, listener)
	}
	install(HostEventTextStyleChanged, self.styleChanged)
	install(HostEventTextLayerCreated, self.layerCreated)
	install(HostEventTextLayerDeleted, self.layerDeleted)
	install(HostEventToolModalState, self.modalStateChanged)

	if !self.defaultStyleApplied {
		self.defaultStyleApplied = true
		if model := self.store.ActiveDocument(); model != nil {
			self.reconciler.RegisterPendingStyle(model.DocumentId(), self.settings.DefaultStyle)
		}
	}
}

// Deselect removes all four listeners and clears the session flags.
// The process-wide first-activation flag is not cleared.
func (self *TextTool) Deselect() {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	for _, unsub := range self.unsubs {
		unsub()
	}
	self.unsubs = map[string]func(){}
	self.state = TextToolIdle
	self.layersReplaced = false
	self.deletedLayerId = 0
}

func (self *TextTool) run(body func(ctx context.Context, execution *Execution) error) {
	// ticket reserved synchronously, session events keep arrival order
	pending, err := self.scheduler.Enqueue(OpTextModalSession)
	if err != nil {
		glog.Warningf("[texttool]session = %s\n", err)
		return
	}
	go HandleError(func() {
		if err := pending.Run(self.ctx, body); err != nil {
			glog.Infof("[texttool]session = %s\n", err)
		}
	})
}

// ListenerFunction
func (self *TextTool) styleChanged(event string, body map[string]any) {
	documentId, model, ok := self.eventDocument(event, body)
	if !ok {
		return
	}
	layerIds := eventLayerIds(body)
	if len(layerIds) == 0 {
		layerIds = model.SelectedIds()
	}
	if len(layerIds) == 0 {
		return
	}

	self.run(func(ctx context.Context, execution *Execution) error {
		return execution.Transfer(ctx, OpResetLayers, func(ctx context.Context, execution *Execution) error {
			return self.commands.resetLayers(ctx, execution, documentId, layerIds)
		})
	})
}

// ListenerFunction
func (self *TextTool) layerCreated(event string, body map[string]any) {
	documentId, model, ok := self.eventDocument(event, body)
	if !ok {
		return
	}
	layerIds := eventLayerIds(body)
	if len(layerIds) == 0 {
		return
	}

	self.mutex.Lock()
	self.state = TextToolEditing
	self.mutex.Unlock()

	self.run(func(ctx context.Context, execution *Execution) error {
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

		// the session saw this id already, treat as a correction
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

		replaced, _ := shouldReplaceOnAdd(model, len(unknown))
		if replaced {
			self.mutex.Lock()
			self.layersReplaced = true
			self.mutex.Unlock()
		}

		// the fetch in the add flow picks up any text-style
		// properties the creation event carried
		return execution.Transfer(ctx, OpAddLayers, func(ctx context.Context, execution *Execution) error {
			return self.commands.addLayers(ctx, execution, documentId, unknown, true, nil)
		})
	})
}

// ListenerFunction
func (self *TextTool) layerDeleted(event string, body map[string]any) {
	documentId, _, ok := self.eventDocument(event, body)
	if !ok {
		return
	}
	layerIds := eventLayerIds(body)
	if len(layerIds) == 0 {
		return
	}

	self.mutex.Lock()
	replaced := self.layersReplaced
	self.deletedLayerId = layerIds[0]
	self.mutex.Unlock()

	self.run(func(ctx context.Context, execution *Execution) error {
		if replaced {
			// the delete undid an add that replaced a placeholder.
			// the resulting state is not locally derivable.
			return execution.Transfer(ctx, OpResetDocument, func(ctx context.Context, execution *Execution) error {
				return self.commands.resetDocument(ctx, execution, documentId)
			})
		}
		self.dispatcher.Dispatch(&DeleteLayersEvent{
			DocumentId: documentId,
			LayerIds: layerIds,
		})
		return nil
	})
}

// ListenerFunction
func (self *TextTool) modalStateChanged(event string, body map[string]any) {
	state, _ := body["state"].(string)
	switch state {
	case "enter":
		self.mutex.Lock()
		self.state = TextToolEditing
		self.mutex.Unlock()
	case "commit":
		self.mutex.Lock()
		self.state = TextToolCommitted
		self.deletedLayerId = 0
		self.mutex.Unlock()
	case "cancel":
		self.canceled(event, body)
	default:
		glog.V(2).Infof("[texttool]modal state %q\n", state)
	}
}

func (self *TextTool) canceled(event string, body map[string]any) {
	documentId, model, ok := self.eventDocument(event, body)
	if !ok {
		return
	}

	self.mutex.Lock()
	self.state = TextToolCanceled
	handled := self.deletedLayerId != 0
	self.deletedLayerId = 0
	self.mutex.Unlock()

	// a delete notification in the same session already reconciled
	// this cancel. A second reset here would race the delete-driven
	// one.
	if handled {
		glog.V(2).Infof("[texttool]cancel already handled by delete\n")
		return
	}

	// a cancel can leave layer geometry host-side without a
	// corresponding notification
	selection := model.SelectedIds()
	self.run(func(ctx context.Context, execution *Execution) error {
		if 0 < len(selection) {
			err := execution.Transfer(ctx, OpResetBounds, func(ctx context.Context, execution *Execution) error {
				return self.commands.resetBounds(ctx, execution, documentId, selection)
			})
			if err != nil {
				return err
			}
		}
		return execution.Transfer(ctx, OpResetSelection, func(ctx context.Context, execution *Execution) error {
			return self.commands.resetSelection(ctx, execution, documentId)
		})
	})
}

func (self *TextTool) eventDocument(event string, body map[string]any) (DocumentId, *DocumentModel, bool) {
	if value, ok := asInt64(body["documentID"]); ok {
		model := self.store.Document(value)
		if model == nil {
			glog.Warningf("[texttool]%s for unknown document %d\n", event, value)
			return 0, nil, false
		}
		return value, model, true
	}
	model := self.store.ActiveDocument()
	if model == nil {
		glog.Warningf("[texttool]%s without an active document\n", event)
		return 0, nil, false
	}
	return model.DocumentId(), model, true
}
