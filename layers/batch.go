package layers

import (
	"context"
	"fmt"

	"github.com/golang/glog"
)

// host property names fetched for every layer. required properties are
// guaranteed present in every fetched descriptor; optional properties
// are fetched with per-item error tolerance and silently omitted when
// the host does not report them for a layer.
var requiredLayerProperties = []string{
	"layerID",
	"name",
	"layerKind",
	"visible",
	"opacity",
	"mode",
	"itemIndex",
}

var optionalLayerProperties = []string{
	"bounds",
	"layerLocking",
	"background",
	"targeted",
	"proportionalScaling",
}

type LayerProperties map[string]any

func (self LayerProperties) Has(property string) bool {
	_, ok := self[property]
	return ok
}

// fetchLayerProperties issues two batched requests, one strict for the
// required properties and one error-tolerant for the optional ones,
// and zips the flattened per-property results back into one descriptor
// per reference, preserving input order.
func fetchLayerProperties(
	ctx context.Context,
	host Host,
	refs []*Reference,
	required []string,
	optional []string,
) ([]LayerProperties, error) {
	if len(refs) == 0 {
		return []LayerProperties{}, nil
	}

	requiredValues, err := host.BatchGetProperties(ctx, refs, required, &BatchGetOptions{})
	if err != nil {
		return nil, err
	}
	if len(requiredValues) != len(refs)*len(required) {
		return nil, &InvariantViolation{
			Message: fmt.Sprintf(
				"batched get returned %d slots for %d refs x %d properties",
				len(requiredValues),
				len(refs),
				len(required),
			),
		}
	}

	var optionalValues []PropertyValue
	if 0 < len(optional) {
		optionalValues, err = host.BatchGetProperties(ctx, refs, optional, &BatchGetOptions{
			ContinueOnError: true,
		})
		if err != nil {
			return nil, err
		}
		if len(optionalValues) != len(refs)*len(optional) {
			return nil, &InvariantViolation{
				Message: fmt.Sprintf(
					"batched get returned %d slots for %d refs x %d properties",
					len(optionalValues),
					len(refs),
					len(optional),
				),
			}
		}
	}

	descriptors := make([]LayerProperties, len(refs))
	for i := range refs {
		properties := LayerProperties{}
		for j, property := range required {
			slot := requiredValues[i*len(required)+j]
			if slot.Err != nil {
				return nil, slot.Err
			}
			properties[property] = slot.Value
		}
		for j, property := range optional {
			slot := optionalValues[i*len(optional)+j]
			if slot.Err != nil {
				// absent, not defaulted to null
				glog.V(2).Infof("[batch]omit %s[%d] = %s\n", property, i, slot.Err)
				continue
			}
			properties[property] = slot.Value
		}
		descriptors[i] = properties
	}
	return descriptors, nil
}

// layerNodeFromProperties builds the immutable node from a fetched
// descriptor. Only required properties may be assumed present.
func layerNodeFromProperties(properties LayerProperties) (*LayerNode, error) {
	layerId, ok := asInt64(properties["layerID"])
	if !ok {
		return nil, &ValidationError{Field: "layerID", Message: "missing or not a number"}
	}
	name, _ := properties["name"].(string)
	kind, _ := asInt64(properties["layerKind"])
	visible, _ := properties["visible"].(bool)
	opacity, _ := asInt64(properties["opacity"])
	mode, _ := properties["mode"].(string)

	node := &LayerNode{
		Id: layerId,
		Kind: LayerKind(kind),
		Name: name,
		Visible: visible,
		Opacity: int(opacity),
		Mode: mode,
	}
	if background, ok := properties["background"].(bool); ok && background {
		node.Kind = LayerKindBackground
	}
	if targeted, ok := properties["targeted"].(bool); ok {
		node.Selected = targeted
	}
	if locking, ok := properties["layerLocking"].(map[string]any); ok {
		if all, ok := locking["protectAll"].(bool); ok {
			node.Locked = all
		}
	}
	if proportional, ok := properties["proportionalScaling"].(bool); ok {
		node.Proportional = proportional
	}
	if bounds, ok := properties["bounds"].(map[string]any); ok {
		node.Bounds = boundsFromDescriptor(bounds)
	}
	return node, nil
}

func boundsFromDescriptor(descriptor map[string]any) *Bounds {
	top, _ := asFloat64(descriptor["top"])
	left, _ := asFloat64(descriptor["left"])
	bottom, _ := asFloat64(descriptor["bottom"])
	right, _ := asFloat64(descriptor["right"])
	return &Bounds{
		Top: top,
		Left: left,
		Bottom: bottom,
		Right: right,
	}
}

// host payloads decoded from json carry float64 for all numbers, while
// locally-built payloads carry native int types
func asInt64(value any) (int64, bool) {
	switch v := value.(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case float64:
		return int64(v), true
	default:
		return 0, false
	}
}

func asFloat64(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case int64:
		return float64(v), true
	case int:
		return float64(v), true
	default:
		return 0, false
	}
}
