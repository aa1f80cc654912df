package layers

import (
	"context"
	"fmt"

	"github.com/golang/glog"
)

// AddLayers pulls the descriptors for newly-created layers from the
// host and dispatches a single local add. Used whenever the new layer
// state cannot be predicted locally. With replace nil the
// replacement-on-add heuristic decides whether the empty-canvas
// placeholder vanishes.
func (self *LayerCommands) AddLayers(ctx context.Context, documentId DocumentId, layerIds []LayerId, selected bool, replace *bool) error {
	return self.scheduler.Run(ctx, OpAddLayers, func(ctx context.Context, execution *Execution) error {
		return self.addLayers(ctx, execution, documentId, layerIds, selected, replace)
	})
}

func (self *LayerCommands) addLayers(
	ctx context.Context,
	execution *Execution,
	documentId DocumentId,
	layerIds []LayerId,
	selected bool,
	replace *bool,
) error {
	model, err := self.document(documentId)
	if err != nil {
		return err
	}
	if len(layerIds) == 0 {
		return &ValidationError{Field: "layerIDs", Message: "required"}
	}

	nodes, err := self.fetchLayers(ctx, execution, documentId, layerIds)
	if err != nil {
		return err
	}

	var replaceIds []LayerId
	useReplace := false
	if replace != nil {
		useReplace = *replace
		if useReplace {
			_, replaceIds = shouldReplaceOnAdd(model, 1)
		}
	} else {
		useReplace, replaceIds = shouldReplaceOnAdd(model, len(layerIds))
	}

	self.dispatcher.Dispatch(&AddLayersEvent{
		DocumentId: documentId,
		Layers: nodes,
		ReplaceIds: replaceIds,
		Replace: useReplace && 0 < len(replaceIds),
		Selected: selected,
	})
	return nil
}

// ResetLayers re-fetches the named layers from the host and replaces
// them wholesale in the local model.
func (self *LayerCommands) ResetLayers(ctx context.Context, documentId DocumentId, layerIds []LayerId) error {
	return self.scheduler.Run(ctx, OpResetLayers, func(ctx context.Context, execution *Execution) error {
		return self.resetLayers(ctx, execution, documentId, layerIds)
	})
}

func (self *LayerCommands) resetLayers(ctx context.Context, execution *Execution, documentId DocumentId, layerIds []LayerId) error {
	if _, err := self.document(documentId); err != nil {
		return err
	}
	if len(layerIds) == 0 {
		return &ValidationError{Field: "layerIDs", Message: "required"}
	}

	nodes, err := self.fetchLayers(ctx, execution, documentId, layerIds)
	if err != nil {
		return err
	}
	self.dispatcher.Dispatch(&ResetLayersEvent{
		DocumentId: documentId,
		Layers: nodes,
	})
	return nil
}

// ResetLayersByIndex addresses layers by host index, for host events
// that do not carry stable ids.
func (self *LayerCommands) ResetLayersByIndex(ctx context.Context, documentId DocumentId, hostIndexes []int) error {
	return self.scheduler.Run(ctx, OpResetLayersByIndex, func(ctx context.Context, execution *Execution) error {
		if _, err := self.document(documentId); err != nil {
			return err
		}
		if len(hostIndexes) == 0 {
			return &ValidationError{Field: "hostIndexes", Message: "required"}
		}

		refs := make([]*Reference, len(hostIndexes))
		for i, hostIndex := range hostIndexes {
			refs[i] = LayerIndexRef(documentId, hostIndex)
		}
		nodes, err := self.fetchLayerRefs(ctx, execution, refs)
		if err != nil {
			return err
		}
		self.dispatcher.Dispatch(&ResetLayersByIndexEvent{
			DocumentId: documentId,
			HostIndexes: hostIndexes,
			Layers: nodes,
		})
		return nil
	})
}

// ResetBounds re-fetches bounds only, never the full layer state.
func (self *LayerCommands) ResetBounds(ctx context.Context, documentId DocumentId, layerIds []LayerId) error {
	return self.scheduler.Run(ctx, OpResetBounds, func(ctx context.Context, execution *Execution) error {
		return self.resetBounds(ctx, execution, documentId, layerIds)
	})
}

func (self *LayerCommands) resetBounds(ctx context.Context, execution *Execution, documentId DocumentId, layerIds []LayerId) error {
	if _, err := self.document(documentId); err != nil {
		return err
	}
	if len(layerIds) == 0 {
		return &ValidationError{Field: "layerIDs", Message: "required"}
	}

	hostCtx, cancel := self.hostCtx(ctx)
	defer cancel()

	refs := make([]*Reference, len(layerIds))
	for i, layerId := range layerIds {
		refs[i] = LayerRef(documentId, layerId)
	}
	values, err := self.host.BatchGetProperty(hostCtx, refs, "bounds")
	if err != nil {
		return hostCommandError(execution.Operation(), err)
	}
	if len(values) != len(refs) {
		return &InvariantViolation{
			Message: fmt.Sprintf("bounds query returned %d values for %d refs", len(values), len(refs)),
		}
	}

	bounds := map[LayerId]*Bounds{}
	for i, layerId := range layerIds {
		if descriptor, ok := values[i].(map[string]any); ok {
			bounds[layerId] = boundsFromDescriptor(descriptor)
		}
	}
	self.dispatcher.Dispatch(&ResetBoundsEvent{
		DocumentId: documentId,
		Bounds: bounds,
	})
	return nil
}

// ResetSelection queries the host's authoritative current selection
// and dispatches it by id.
func (self *LayerCommands) ResetSelection(ctx context.Context, documentId DocumentId) error {
	return self.scheduler.Run(ctx, OpResetSelection, func(ctx context.Context, execution *Execution) error {
		return self.resetSelection(ctx, execution, documentId)
	})
}

func (self *LayerCommands) resetSelection(ctx context.Context, execution *Execution, documentId DocumentId) error {
	model, err := self.document(documentId)
	if err != nil {
		return err
	}

	hostCtx, cancel := self.hostCtx(ctx)
	defer cancel()

	values, err := self.host.BatchGetProperty(hostCtx, []*Reference{DocumentRef(documentId)}, "targetLayers")
	if err != nil {
		return hostCommandError(execution.Operation(), err)
	}

	layerIds := []LayerId{}
	if 0 < len(values) {
		if hostIndexes, ok := values[0].([]any); ok {
			nodes := model.Layers()
			for _, value := range hostIndexes {
				hostIndex, ok := asInt64(value)
				if !ok {
					continue
				}
				position := model.PositionForHostIndex(int(hostIndex))
				if 0 <= position && position < len(nodes) {
					layerIds = append(layerIds, nodes[position].Id)
				}
			}
		}
	}
	self.dispatcher.Dispatch(&SelectLayersByIdEvent{
		DocumentId: documentId,
		LayerIds: layerIds,
	})
	return nil
}

// ResetDocument is the full resync: rebuild the model from the host
// and replace the stored version wholesale. This is the explicit
// recovery path for divergence that reconciliation cannot heal.
func (self *LayerCommands) ResetDocument(ctx context.Context, documentId DocumentId) error {
	return self.scheduler.Run(ctx, OpResetDocument, func(ctx context.Context, execution *Execution) error {
		return self.resetDocument(ctx, execution, documentId)
	})
}

func (self *LayerCommands) resetDocument(ctx context.Context, execution *Execution, documentId DocumentId) error {
	if documentId == 0 {
		return &ValidationError{Field: "documentID", Message: "required"}
	}

	hostCtx, cancel := self.hostCtx(ctx)
	defer cancel()

	documentValues, err := self.host.BatchGetProperties(
		hostCtx,
		[]*Reference{DocumentRef(documentId)},
		[]string{"numberOfLayers", "hasBackgroundLayer", "targetLayers"},
		&BatchGetOptions{},
	)
	if err != nil {
		return hostCommandError(execution.Operation(), err)
	}
	if len(documentValues) != 3 {
		return &InvariantViolation{
			Message: fmt.Sprintf("document query returned %d values", len(documentValues)),
		}
	}
	layerCount64, ok := asInt64(documentValues[0].Value)
	if !ok {
		return &InvariantViolation{Message: "document query missing numberOfLayers"}
	}
	layerCount := int(layerCount64)
	hasBackground, _ := documentValues[1].Value.(bool)

	refs := make([]*Reference, 0, layerCount)
	for position := 0; position < layerCount; position += 1 {
		hostIndex := position
		if !hasBackground {
			hostIndex = position + 1
		}
		refs = append(refs, LayerIndexRef(documentId, hostIndex))
	}
	nodes, err := self.fetchLayerRefs(ctx, execution, refs)
	if err != nil {
		return err
	}

	model := NewDocumentModel(documentId, nodes)
	if hostIndexes, ok := documentValues[2].Value.([]any); ok {
		layerIds := []LayerId{}
		for _, value := range hostIndexes {
			hostIndex, ok := asInt64(value)
			if !ok {
				continue
			}
			position := model.PositionForHostIndex(int(hostIndex))
			if 0 <= position && position < model.Len() {
				layerIds = append(layerIds, model.Layers()[position].Id)
			}
		}
		model = model.WithSelection(layerIds)
	}

	self.store.ReplaceDocument(model)
	glog.V(2).Infof("[layers]resync %d, %d layers\n", documentId, layerCount)
	return nil
}

// CreateArtboard makes a new artboard on the host and transfers to the
// add flow for the created layer, since artboard state cannot be
// predicted locally.
func (self *LayerCommands) CreateArtboard(ctx context.Context, documentId DocumentId, name string, bounds Bounds) error {
	return self.scheduler.Run(ctx, OpCreateArtboard, func(ctx context.Context, execution *Execution) error {
		if _, err := self.document(documentId); err != nil {
			return err
		}
		if bounds.Area() <= 0 {
			return &ValidationError{Field: "bounds", Message: "artboard requires a positive area"}
		}

		hostCtx, cancel := self.hostCtx(ctx)
		defer cancel()

		result, err := self.host.PlayObject(hostCtx, &PlayDescriptor{
			Name: "make",
			Params: map[string]any{
				"ref": []*Reference{DocumentRef(documentId)},
				"using": map[string]any{
					"artboard": true,
					"name": name,
					"artboardRect": map[string]any{
						"top": bounds.Top,
						"left": bounds.Left,
						"bottom": bounds.Bottom,
						"right": bounds.Right,
					},
				},
			},
		})
		if err != nil {
			return hostCommandError(execution.Operation(), err)
		}
		layerId, ok := asInt64(result["layerID"])
		if !ok {
			return &InvariantViolation{Message: "make artboard result missing layerID"}
		}

		return execution.Transfer(ctx, OpAddLayers, func(ctx context.Context, execution *Execution) error {
			return self.addLayers(ctx, execution, documentId, []LayerId{layerId}, true, nil)
		})
	})
}

// Duplicate copies layers into another (or the same) document. The
// duplicated layer state is fetched from the target document before
// the local add; new layer ids are host assigned.
func (self *LayerCommands) Duplicate(ctx context.Context, sourceDocumentId DocumentId, targetDocumentId DocumentId, layerIds []LayerId) error {
	return self.scheduler.Run(ctx, OpDuplicateLayers, func(ctx context.Context, execution *Execution) error {
		sourceModel, err := self.document(sourceDocumentId)
		if err != nil {
			return err
		}
		targetModel, err := self.document(targetDocumentId)
		if err != nil {
			return err
		}
		if len(layerIds) == 0 {
			layerIds = sourceModel.SelectedIds()
		}
		if len(layerIds) == 0 {
			glog.V(2).Infof("[layers]duplicate skip, empty selection %d\n", sourceDocumentId)
			return nil
		}

		hostCtx, cancel := self.hostCtx(ctx)
		defer cancel()

		refs := make([]*Reference, len(layerIds))
		for i, layerId := range layerIds {
			refs[i] = LayerRef(sourceDocumentId, layerId)
		}
		result, err := self.host.PlayObject(hostCtx, &PlayDescriptor{
			Name: "duplicate",
			Params: map[string]any{
				"ref": refs,
				"to": []*Reference{DocumentRef(targetDocumentId)},
			},
		})
		if err != nil {
			return hostCommandError(execution.Operation(), err)
		}

		newIds := []LayerId{}
		if values, ok := result["layerIDs"].([]any); ok {
			for _, value := range values {
				if layerId, ok := asInt64(value); ok {
					newIds = append(newIds, layerId)
				}
			}
		}
		if len(newIds) == 0 {
			return &InvariantViolation{Message: "duplicate result missing layerIDs"}
		}

		nodes, err := self.fetchLayers(ctx, execution, targetDocumentId, newIds)
		if err != nil {
			return err
		}
		replace, replaceIds := shouldReplaceOnAdd(targetModel, len(newIds))
		self.dispatcher.Dispatch(&AddLayersEvent{
			DocumentId: targetDocumentId,
			Layers: nodes,
			ReplaceIds: replaceIds,
			Replace: replace,
			Selected: false,
		})
		return nil
	})
}

func (self *LayerCommands) fetchLayers(ctx context.Context, execution *Execution, documentId DocumentId, layerIds []LayerId) ([]*LayerNode, error) {
	refs := make([]*Reference, len(layerIds))
	for i, layerId := range layerIds {
		refs[i] = LayerRef(documentId, layerId)
	}
	return self.fetchLayerRefs(ctx, execution, refs)
}

func (self *LayerCommands) fetchLayerRefs(ctx context.Context, execution *Execution, refs []*Reference) ([]*LayerNode, error) {
	hostCtx, cancel := self.hostCtx(ctx)
	defer cancel()

	descriptors, err := fetchLayerProperties(
		hostCtx,
		self.host,
		refs,
		requiredLayerProperties,
		optionalLayerProperties,
	)
	if err != nil {
		return nil, hostCommandError(execution.Operation(), err)
	}

	nodes := make([]*LayerNode, 0, len(descriptors))
	for _, properties := range descriptors {
		node, err := layerNodeFromProperties(properties)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, node)
	}
	return nodes, nil
}
