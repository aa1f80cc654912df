package layers

import (
	"context"
	"fmt"

	"golang.org/x/exp/slices"

	"github.com/golang/glog"
)

// host selection references are order sensitive for some modifiers, so
// every reference list below preserves caller order
type SelectionModifier string

const (
	SelectionReplace SelectionModifier = "select"
	SelectionAdd SelectionModifier = "addToSelection"
	SelectionRemove SelectionModifier = "removeFromSelection"
)

// Select targets the given layers with the given modifier.
func (self *LayerCommands) Select(ctx context.Context, documentId DocumentId, layerIds []LayerId, modifier SelectionModifier) error {
	return self.scheduler.Run(ctx, OpSelectLayers, func(ctx context.Context, execution *Execution) error {
		model, err := self.document(documentId)
		if err != nil {
			return err
		}
		if len(layerIds) == 0 {
			return &ValidationError{Field: "layerIDs", Message: "required"}
		}
		for _, layerId := range layerIds {
			if model.Layer(layerId) == nil {
				return &ValidationError{
					Field: "layerIDs",
					Message: fmt.Sprintf("unknown layer %d", layerId),
				}
			}
		}

		var selection []LayerId
		switch modifier {
		case SelectionReplace, "":
			selection = slices.Clone(layerIds)
		case SelectionAdd:
			selection = model.SelectedIds()
			for _, layerId := range layerIds {
				if !slices.Contains(selection, layerId) {
					selection = append(selection, layerId)
				}
			}
		case SelectionRemove:
			selection = slices.DeleteFunc(model.SelectedIds(), func(selectedId LayerId) bool {
				return slices.Contains(layerIds, selectedId)
			})
		default:
			return &ValidationError{
				Field: "modifier",
				Message: fmt.Sprintf("unknown modifier %q", modifier),
			}
		}

		refs := make([]*Reference, len(layerIds))
		for i, layerId := range layerIds {
			refs[i] = LayerRef(documentId, layerId)
		}
		return self.fireAndReconcile(
			ctx,
			execution,
			&SelectLayersByIdEvent{
				DocumentId: documentId,
				LayerIds: selection,
			},
			[]*PlayDescriptor{{
				Name: "select",
				Params: map[string]any{
					"ref": refs,
					"selectionModifier": string(modifier),
					"makeVisible": false,
				},
			}},
		)
	})
}

// SelectAll resolves as a no-op on a missing or flat document.
func (self *LayerCommands) SelectAll(ctx context.Context, documentId DocumentId) error {
	return self.scheduler.Run(ctx, OpSelectAll, func(ctx context.Context, execution *Execution) error {
		model := self.store.Document(documentId)
		if model == nil || model.Flat() {
			glog.V(2).Infof("[layers]selectAll skip %d\n", documentId)
			return nil
		}

		layerIds := []LayerId{}
		for _, node := range model.Layers() {
			if !node.IsGroupEnd() && !node.IsBackground() {
				layerIds = append(layerIds, node.Id)
			}
		}
		return self.fireAndReconcile(
			ctx,
			execution,
			&SelectLayersByIdEvent{
				DocumentId: documentId,
				LayerIds: layerIds,
			},
			[]*PlayDescriptor{{
				Name: "selectAllLayers",
				Params: map[string]any{
					"ref": []*Reference{DocumentRef(documentId)},
				},
			}},
		)
	})
}

// DeselectAll resolves as a no-op on a missing or flat document.
func (self *LayerCommands) DeselectAll(ctx context.Context, documentId DocumentId) error {
	return self.scheduler.Run(ctx, OpDeselectAll, func(ctx context.Context, execution *Execution) error {
		model := self.store.Document(documentId)
		if model == nil || model.Flat() {
			glog.V(2).Infof("[layers]deselectAll skip %d\n", documentId)
			return nil
		}

		return self.fireAndReconcile(
			ctx,
			execution,
			&SelectLayersByIdEvent{
				DocumentId: documentId,
				LayerIds: []LayerId{},
			},
			[]*PlayDescriptor{{
				Name: "selectNoLayers",
				Params: map[string]any{
					"ref": []*Reference{DocumentRef(documentId)},
				},
			}},
		)
	})
}

func (self *LayerCommands) Rename(ctx context.Context, documentId DocumentId, layerId LayerId, name string) error {
	return self.scheduler.Run(ctx, OpRenameLayer, func(ctx context.Context, execution *Execution) error {
		model, err := self.document(documentId)
		if err != nil {
			return err
		}
		if name == "" {
			return &ValidationError{Field: "name", Message: "required"}
		}
		node := model.Layer(layerId)
		if node == nil {
			return &ValidationError{
				Field: "layerID",
				Message: fmt.Sprintf("unknown layer %d", layerId),
			}
		}

		update := node.Clone()
		update.Name = name
		return self.fireAndReconcile(
			ctx,
			execution,
			&ResetLayersEvent{
				DocumentId: documentId,
				Layers: []*LayerNode{update},
			},
			[]*PlayDescriptor{{
				Name: "set",
				Params: map[string]any{
					"ref": []*Reference{LayerRef(documentId, layerId)},
					"to": map[string]any{"name": name},
				},
			}},
		)
	})
}

func (self *LayerCommands) SetVisibility(ctx context.Context, documentId DocumentId, layerIds []LayerId, visible bool) error {
	return self.scheduler.Run(ctx, OpSetVisibility, func(ctx context.Context, execution *Execution) error {
		if _, err := self.document(documentId); err != nil {
			return err
		}
		if len(layerIds) == 0 {
			return &ValidationError{Field: "layerIDs", Message: "required"}
		}

		name := "show"
		if !visible {
			name = "hide"
		}
		refs := make([]*Reference, len(layerIds))
		for i, layerId := range layerIds {
			refs[i] = LayerRef(documentId, layerId)
		}
		return self.fireAndReconcile(
			ctx,
			execution,
			&VisibilityChangedEvent{
				DocumentId: documentId,
				LayerIds: layerIds,
				Visible: visible,
			},
			[]*PlayDescriptor{{
				Name: name,
				Params: map[string]any{
					"ref": refs,
				},
			}},
		)
	})
}

func (self *LayerCommands) SetLocking(ctx context.Context, documentId DocumentId, layerIds []LayerId, locked bool) error {
	return self.scheduler.Run(ctx, OpSetLocking, func(ctx context.Context, execution *Execution) error {
		if _, err := self.document(documentId); err != nil {
			return err
		}
		if len(layerIds) == 0 {
			return &ValidationError{Field: "layerIDs", Message: "required"}
		}

		refs := make([]*Reference, len(layerIds))
		for i, layerId := range layerIds {
			refs[i] = LayerRef(documentId, layerId)
		}
		return self.fireAndReconcile(
			ctx,
			execution,
			&LockChangedEvent{
				DocumentId: documentId,
				LayerIds: layerIds,
				Locked: locked,
			},
			[]*PlayDescriptor{{
				Name: "applyLocking",
				Params: map[string]any{
					"ref": refs,
					"layerLocking": map[string]any{"protectAll": locked},
				},
			}},
		)
	})
}

func (self *LayerCommands) SetOpacity(ctx context.Context, documentId DocumentId, layerIds []LayerId, opacity int) error {
	return self.scheduler.Run(ctx, OpSetOpacity, func(ctx context.Context, execution *Execution) error {
		if _, err := self.document(documentId); err != nil {
			return err
		}
		if len(layerIds) == 0 {
			return &ValidationError{Field: "layerIDs", Message: "required"}
		}
		if opacity < 0 || 100 < opacity {
			return &ValidationError{
				Field: "opacity",
				Message: fmt.Sprintf("out of range: %d", opacity),
			}
		}

		descriptors := make([]*PlayDescriptor, len(layerIds))
		for i, layerId := range layerIds {
			descriptors[i] = &PlayDescriptor{
				Name: "set",
				Params: map[string]any{
					"ref": []*Reference{LayerRef(documentId, layerId)},
					"to": map[string]any{"opacity": opacity},
				},
			}
		}
		return self.fireAndReconcile(
			ctx,
			execution,
			&OpacityChangedEvent{
				DocumentId: documentId,
				LayerIds: layerIds,
				Opacity: opacity,
			},
			descriptors,
		)
	})
}

func (self *LayerCommands) SetBlendMode(ctx context.Context, documentId DocumentId, layerIds []LayerId, mode BlendMode) error {
	return self.scheduler.Run(ctx, OpSetBlendMode, func(ctx context.Context, execution *Execution) error {
		if _, err := self.document(documentId); err != nil {
			return err
		}
		if len(layerIds) == 0 {
			return &ValidationError{Field: "layerIDs", Message: "required"}
		}
		if mode == "" {
			return &ValidationError{Field: "mode", Message: "required"}
		}

		refs := make([]*Reference, len(layerIds))
		for i, layerId := range layerIds {
			refs[i] = LayerRef(documentId, layerId)
		}
		return self.fireAndReconcile(
			ctx,
			execution,
			&BlendModeChangedEvent{
				DocumentId: documentId,
				LayerIds: layerIds,
				Mode: mode,
			},
			[]*PlayDescriptor{{
				Name: "set",
				Params: map[string]any{
					"ref": refs,
					"to": map[string]any{"mode": mode},
				},
			}},
		)
	})
}

// Reorder applies a full new z-order, bottom up. The host request is
// index addressed, so positions are translated through the
// background-shifted host index space.
func (self *LayerCommands) Reorder(ctx context.Context, documentId DocumentId, layerIds []LayerId) error {
	return self.scheduler.Run(ctx, OpReorderLayers, func(ctx context.Context, execution *Execution) error {
		model, err := self.document(documentId)
		if err != nil {
			return err
		}
		reordered, err := model.WithReorder(layerIds)
		if err != nil {
			return &ValidationError{Field: "layerIDs", Message: err.Error()}
		}

		descriptors := []*PlayDescriptor{}
		for position, node := range reordered.Layers() {
			currentPosition, _ := model.Position(node.Id)
			if currentPosition == position || node.IsGroupEnd() {
				continue
			}
			descriptors = append(descriptors, &PlayDescriptor{
				Name: "move",
				Params: map[string]any{
					"ref": []*Reference{LayerRef(documentId, node.Id)},
					"to": []*Reference{LayerIndexRef(documentId, model.HostIndex(position))},
				},
			})
		}
		if len(descriptors) == 0 {
			return nil
		}
		return self.fireAndReconcile(
			ctx,
			execution,
			&ReorderLayersEvent{
				DocumentId: documentId,
				LayerIds: layerIds,
			},
			descriptors,
		)
	})
}

func (self *LayerCommands) SetProportional(ctx context.Context, documentId DocumentId, layerIds []LayerId, proportional bool) error {
	return self.scheduler.Run(ctx, OpSetProportional, func(ctx context.Context, execution *Execution) error {
		if _, err := self.document(documentId); err != nil {
			return err
		}
		if len(layerIds) == 0 {
			return &ValidationError{Field: "layerIDs", Message: "required"}
		}

		refs := make([]*Reference, len(layerIds))
		for i, layerId := range layerIds {
			refs[i] = LayerRef(documentId, layerId)
		}
		return self.fireAndReconcile(
			ctx,
			execution,
			&SetLayersProportionalEvent{
				DocumentId: documentId,
				LayerIds: layerIds,
				Proportional: proportional,
			},
			[]*PlayDescriptor{{
				Name: "set",
				Params: map[string]any{
					"ref": refs,
					"to": map[string]any{"proportionalScaling": proportional},
				},
			}},
		)
	})
}

// DeleteSelected removes the current selection. The host's selection
// after a delete is authoritative, so control transfers to a selection
// re-query once the optimistic removal and the host call settle.
func (self *LayerCommands) DeleteSelected(ctx context.Context, documentId DocumentId) error {
	return self.scheduler.Run(ctx, OpDeleteSelected, func(ctx context.Context, execution *Execution) error {
		model, err := self.document(documentId)
		if err != nil {
			return err
		}
		selection := model.SelectedIds()
		if len(selection) == 0 {
			glog.V(2).Infof("[layers]delete skip, empty selection %d\n", documentId)
			return nil
		}

		err = self.fireAndReconcile(
			ctx,
			execution,
			&DeleteLayersEvent{
				DocumentId: documentId,
				LayerIds: selection,
			},
			[]*PlayDescriptor{{
				Name: "delete",
				Params: map[string]any{
					"ref": []*Reference{CurrentSelectionRef(documentId)},
				},
			}},
		)
		if err != nil {
			return err
		}
		return execution.Transfer(ctx, OpResetSelection, func(ctx context.Context, execution *Execution) error {
			return self.resetSelection(ctx, execution, documentId)
		})
	})
}

// GroupSelected wraps the current selection in a new group. When the
// resulting nesting would exceed the host ceiling the command resolves
// with no effect and zero host traffic; an over-deep group request
// hangs the host.
func (self *LayerCommands) GroupSelected(ctx context.Context, documentId DocumentId, name string) error {
	return self.scheduler.Run(ctx, OpGroupSelected, func(ctx context.Context, execution *Execution) error {
		model, err := self.document(documentId)
		if err != nil {
			return err
		}
		selection := model.SelectedIds()
		if len(selection) == 0 {
			glog.V(2).Infof("[layers]group skip, empty selection %d\n", documentId)
			return nil
		}
		if depth := model.GroupedNestingDepth(selection); MaxNestingDepth < depth {
			glog.Infof("[layers]group skip, depth %d exceeds ceiling %d\n", depth, MaxNestingDepth)
			return nil
		}

		hostCtx, cancel := self.hostCtx(ctx)
		defer cancel()

		result, err := self.host.PlayObject(hostCtx, &PlayDescriptor{
			Name: "groupLayers",
			Params: map[string]any{
				"ref": []*Reference{CurrentSelectionRef(documentId)},
				"name": name,
			},
		})
		if err != nil {
			return hostCommandError(execution.Operation(), err)
		}
		groupId, ok := asInt64(result["layerID"])
		if !ok {
			return &InvariantViolation{Message: "groupLayers result missing layerID"}
		}

		self.dispatcher.Dispatch(&GroupSelectedEvent{
			DocumentId: documentId,
			GroupId: groupId,
			// the end marker id is local-only until the next resync
			GroupEndId: -groupId,
			Name: name,
		})
		return nil
	})
}
