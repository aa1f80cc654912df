package layers

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/go-playground/assert/v2"
)

func TestFetchLayerPropertiesOmitsFailedOptional(t *testing.T) {
	host := newFakeHost()
	// no bounds, no targeted: the host errors on those slots
	host.layerProps[1] = LayerProperties{
		"layerID": float64(1),
		"name": "a",
		"layerKind": float64(LayerKindPixel),
		"visible": true,
		"opacity": float64(100),
		"mode": "normal",
		"itemIndex": float64(1),
	}

	descriptors, err := fetchLayerProperties(
		context.Background(),
		host,
		[]*Reference{LayerRef(1, 1)},
		requiredLayerProperties,
		optionalLayerProperties,
	)
	assert.Equal(t, nil, err)
	assert.Equal(t, 1, len(descriptors))
	assert.Equal(t, "a", descriptors[0]["name"])
	// omitted, not defaulted to null
	assert.Equal(t, false, descriptors[0].Has("bounds"))
	assert.Equal(t, false, descriptors[0].Has("targeted"))
}

func TestFetchLayerPropertiesRequiredFailureFails(t *testing.T) {
	host := newFakeHost()
	host.layerProps[1] = LayerProperties{
		// layerID missing
		"name": "a",
	}

	_, err := fetchLayerProperties(
		context.Background(),
		host,
		[]*Reference{LayerRef(1, 1)},
		requiredLayerProperties,
		nil,
	)
	assert.NotEqual(t, nil, err)
}

func TestFetchLayerPropertiesPreservesOrder(t *testing.T) {
	host := newFakeHost()
	host.seedLayer(pixelLayer(1, "a"))
	host.seedLayer(pixelLayer(2, "b"))
	host.seedLayer(pixelLayer(3, "c"))

	descriptors, err := fetchLayerProperties(
		context.Background(),
		host,
		[]*Reference{LayerRef(1, 3), LayerRef(1, 1), LayerRef(1, 2)},
		requiredLayerProperties,
		optionalLayerProperties,
	)
	assert.Equal(t, nil, err)
	assert.Equal(t, "c", descriptors[0]["name"])
	assert.Equal(t, "a", descriptors[1]["name"])
	assert.Equal(t, "b", descriptors[2]["name"])
}

// a host that returns the wrong slot count
type miscountingHost struct {
	*fakeHost
}

func (self *miscountingHost) BatchGetProperties(ctx context.Context, refs []*Reference, properties []string, options *BatchGetOptions) ([]PropertyValue, error) {
	values, err := self.fakeHost.BatchGetProperties(ctx, refs, properties, options)
	if err != nil {
		return nil, err
	}
	return values[:len(values)-1], nil
}

func TestFetchLayerPropertiesSlotCountInvariant(t *testing.T) {
	host := &miscountingHost{fakeHost: newFakeHost()}
	host.seedLayer(pixelLayer(1, "a"))

	_, err := fetchLayerProperties(
		context.Background(),
		host,
		[]*Reference{LayerRef(1, 1)},
		requiredLayerProperties,
		nil,
	)
	var violation *InvariantViolation
	assert.Equal(t, true, errors.As(err, &violation))
}

func TestLayerNodeFromProperties(t *testing.T) {
	node, err := layerNodeFromProperties(LayerProperties{
		"layerID": float64(7),
		"name": "Background",
		"layerKind": float64(LayerKindPixel),
		"visible": true,
		"opacity": float64(100),
		"mode": "normal",
		"background": true,
		"targeted": true,
		"layerLocking": map[string]any{"protectAll": true},
		"proportionalScaling": true,
		"bounds": map[string]any{
			"top": float64(1),
			"left": float64(2),
			"bottom": float64(3),
			"right": float64(4),
		},
	})
	assert.Equal(t, nil, err)
	assert.Equal(t, LayerId(7), node.Id)
	// the background flag overrides the reported kind
	assert.Equal(t, LayerKindBackground, node.Kind)
	assert.Equal(t, true, node.Selected)
	assert.Equal(t, true, node.Locked)
	assert.Equal(t, true, node.Proportional)
	assert.Equal(t, 2.0, node.Bounds.Left)

	_, err = layerNodeFromProperties(LayerProperties{"name": "no id"})
	var validation *ValidationError
	assert.Equal(t, true, errors.As(err, &validation))
}

func TestNumberCoercion(t *testing.T) {
	for _, value := range []any{7, int64(7), float64(7)} {
		coerced, ok := asInt64(value)
		if !ok || coerced != 7 {
			t.Fatalf("asInt64(%T) = %v %v", value, coerced, ok)
		}
	}
	if _, ok := asInt64("7"); ok {
		t.Fatal("asInt64 accepted a string")
	}
	if _, ok := asFloat64(fmt.Errorf("x")); ok {
		t.Fatal("asFloat64 accepted an error")
	}
}
