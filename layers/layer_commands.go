package layers

import (
	"context"
	"time"
)

// operation names for the layer command set
const (
	OpSelectLayers = "layers.select"
	OpSelectAll = "layers.selectAll"
	OpDeselectAll = "layers.deselectAll"
	OpRenameLayer = "layers.rename"
	OpSetVisibility = "layers.setVisibility"
	OpSetLocking = "layers.setLocking"
	OpSetOpacity = "layers.setOpacity"
	OpSetBlendMode = "layers.setBlendMode"
	OpReorderLayers = "layers.reorder"
	OpSetProportional = "layers.setProportional"
	OpDeleteSelected = "layers.deleteSelected"
	OpGroupSelected = "layers.groupSelected"
	OpCreateArtboard = "layers.createArtboard"
	OpDuplicateLayers = "layers.duplicate"
	OpAddLayers = "layers.add"
	OpResetLayers = "layers.reset"
	OpResetLayersByIndex = "layers.resetByIndex"
	OpResetBounds = "layers.resetBounds"
	OpResetSelection = "layers.resetSelection"
	OpResetDocument = "layers.resetDocument"
	OpHostEvent = "layers.hostEvent"
	OpTextModalSession = "tool.type.modalSession"
)

// RegisterLayerCommands declares the read/write lock sets for every
// layer operation. The registry validates the transfer rule once at
// composition; see CommandRegistry.Validate.
func RegisterLayerCommands(registry *CommandRegistry) error {
	readsApp := []Lock{LockAppState}
	writesDocument := []Lock{LockHostDocument, LockDocumentModel}

	descriptors := []*CommandDescriptor{
		{Operation: OpSelectLayers, Reads: readsApp, Writes: writesDocument},
		{Operation: OpSelectAll, Reads: readsApp, Writes: writesDocument},
		{Operation: OpDeselectAll, Reads: readsApp, Writes: writesDocument},
		{Operation: OpRenameLayer, Reads: readsApp, Writes: writesDocument},
		{Operation: OpSetVisibility, Reads: readsApp, Writes: writesDocument},
		{Operation: OpSetLocking, Reads: readsApp, Writes: writesDocument},
		{Operation: OpSetOpacity, Reads: readsApp, Writes: writesDocument},
		{Operation: OpSetBlendMode, Reads: readsApp, Writes: writesDocument},
		{Operation: OpReorderLayers, Reads: readsApp, Writes: writesDocument},
		{Operation: OpSetProportional, Reads: readsApp, Writes: writesDocument},
		{
			Operation: OpDeleteSelected,
			Reads: readsApp,
			Writes: writesDocument,
			// the host's selection after a delete is not locally
			// predictable
			Transfers: []string{OpResetSelection},
		},
		{Operation: OpGroupSelected, Reads: readsApp, Writes: writesDocument},
		{
			Operation: OpCreateArtboard,
			Reads: readsApp,
			Writes: writesDocument,
			Transfers: []string{OpAddLayers},
		},
		{Operation: OpDuplicateLayers, Reads: readsApp, Writes: writesDocument},
		{
			Operation: OpAddLayers,
			Reads: readsApp,
			Writes: writesDocument,
			Transfers: []string{OpResetLayers},
		},
		{Operation: OpResetLayers, Reads: readsApp, Writes: writesDocument},
		{Operation: OpResetLayersByIndex, Reads: readsApp, Writes: writesDocument},
		{Operation: OpResetBounds, Reads: readsApp, Writes: writesDocument},
		{Operation: OpResetSelection, Reads: readsApp, Writes: writesDocument},
		{Operation: OpResetDocument, Reads: readsApp, Writes: writesDocument},
		{
			Operation: OpHostEvent,
			Reads: readsApp,
			Writes: []Lock{LockHostDocument, LockDocumentModel, LockAppState},
			Transfers: []string{
				OpAddLayers,
				OpResetLayers,
				OpResetBounds,
				OpResetSelection,
				OpResetDocument,
			},
		},
		{
			Operation: OpTextModalSession,
			Reads: readsApp,
			Writes: []Lock{LockHostDocument, LockDocumentModel, LockAppState, LockTool},
			Transfers: []string{
				OpAddLayers,
				OpResetLayers,
				OpResetBounds,
				OpResetSelection,
				OpResetDocument,
			},
			Modal: true,
		},
	}

	for _, descriptor := range descriptors {
		if err := registry.Register(descriptor); err != nil {
			return err
		}
	}
	return registry.Validate()
}

type LayerCommandSettings struct {
	// bound on how long a host round trip may take before the
	// transport surfaces a failure. enforced via context deadline,
	// surfaced as an ordinary call failure.
	HostCallTimeout time.Duration
}

func DefaultLayerCommandSettings() *LayerCommandSettings {
	return &LayerCommandSettings{
		HostCallTimeout: 30 * time.Second,
	}
}

// LayerCommands is the command set exposed to the UI/store layer. Each
// command blocks until both the local dispatch and the host
// confirmation complete, returning the host failure when one occurs.
type LayerCommands struct {
	ctx context.Context
	host Host
	store *DocumentStore
	dispatcher *Dispatcher
	scheduler *Scheduler

	settings *LayerCommandSettings
}

func NewLayerCommandsWithDefaults(
	ctx context.Context,
	host Host,
	store *DocumentStore,
	dispatcher *Dispatcher,
	scheduler *Scheduler,
) *LayerCommands {
	return NewLayerCommands(ctx, host, store, dispatcher, scheduler, DefaultLayerCommandSettings())
}

func NewLayerCommands(
	ctx context.Context,
	host Host,
	store *DocumentStore,
	dispatcher *Dispatcher,
	scheduler *Scheduler,
	settings *LayerCommandSettings,
) *LayerCommands {
	return &LayerCommands{
		ctx: ctx,
		host: host,
		store: store,
		dispatcher: dispatcher,
		scheduler: scheduler,
		settings: settings,
	}
}

func (self *LayerCommands) Store() *DocumentStore {
	return self.store
}

func (self *LayerCommands) document(documentId DocumentId) (*DocumentModel, error) {
	if documentId == 0 {
		return nil, &ValidationError{Field: "documentID", Message: "required"}
	}
	model := self.store.Document(documentId)
	if model == nil {
		return nil, &ValidationError{Field: "documentID", Message: "unknown document"}
	}
	return model, nil
}

func (self *LayerCommands) hostCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if self.settings.HostCallTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, self.settings.HostCallTimeout)
}

// the fire-and-reconcile shape: dispatch the optimistic local update
// and issue the host request concurrently. The two race with no
// defined order, but both complete before the command returns. A host
// failure propagates; the optimistic update is not rolled back here,
// reconciliation on the next resync is the recovery path.
func (self *LayerCommands) fireAndReconcile(
	ctx context.Context,
	execution *Execution,
	event Event,
	descriptors []*PlayDescriptor,
) error {
	hostCtx, cancel := self.hostCtx(ctx)
	defer cancel()

	result := make(chan error, 1)
	go func() {
		var err error
		if len(descriptors) == 1 {
			_, err = self.host.PlayObject(hostCtx, descriptors[0])
		} else {
			_, err = self.host.BatchPlayObjects(hostCtx, descriptors)
		}
		result <- err
	}()

	self.dispatcher.Dispatch(event)

	if err := <-result; err != nil {
		return hostCommandError(execution.Operation(), err)
	}
	return nil
}

// the replacement-on-add heuristic. A host-side new document always
// holds one placeholder empty layer (or three when the artboard
// convention is in play) that should vanish once real content lands.
// Replace exactly when one layer is being added, the document holds
// only the minimal empty-canvas set, and the candidate has zero
// bounding area, is not the background, and (artboard case) is
// currently selected.
func shouldReplaceOnAdd(model *DocumentModel, addedCount int) (bool, []LayerId) {
	if addedCount != 1 {
		return false, nil
	}

	nodes := model.Layers()
	var candidate *LayerNode
	artboard := false
	switch len(nodes) {
	case 1:
		candidate = nodes[0]
	case 3:
		for _, node := range nodes {
			switch {
			case node.Kind == LayerKindArtboard:
				artboard = true
			case node.IsGroupEnd():
			case candidate == nil:
				candidate = node
			default:
				// more than one content layer
				return false, nil
			}
		}
		if !artboard {
			return false, nil
		}
	default:
		return false, nil
	}

	if candidate == nil {
		return false, nil
	}
	if candidate.IsBackground() {
		return false, nil
	}
	if !candidate.ZeroArea() {
		return false, nil
	}
	if artboard && !candidate.Selected {
		return false, nil
	}
	return true, []LayerId{candidate.Id}
}
