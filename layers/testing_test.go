package layers

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

// fakeHost is an in-memory Host for scenario tests. Property queries
// resolve against seeded per-layer and per-document maps; every play
// is recorded for assertion.
type fakeHost struct {
	mutex sync.Mutex

	plays []*PlayDescriptor
	gets int

	// play name -> result payload
	playResults map[string]map[string]any
	// play names that fail
	failNames map[string]bool

	layerProps map[LayerId]LayerProperties
	layerPropsByIndex map[int]LayerProperties
	docProps map[string]any

	listeners map[string]*CallbackList[ListenerFunction]
	listenerCounts map[string]int
}

func newFakeHost() *fakeHost {
	return &fakeHost{
		playResults: map[string]map[string]any{},
		failNames: map[string]bool{},
		layerProps: map[LayerId]LayerProperties{},
		layerPropsByIndex: map[int]LayerProperties{},
		docProps: map[string]any{},
		listeners: map[string]*CallbackList[ListenerFunction]{},
		listenerCounts: map[string]int{},
	}
}

func (self *fakeHost) PlayObject(ctx context.Context, descriptor *PlayDescriptor) (map[string]any, error) {
	self.mutex.Lock()
	self.plays = append(self.plays, descriptor)
	fail := self.failNames[descriptor.Name]
	result := self.playResults[descriptor.Name]
	self.mutex.Unlock()

	if fail {
		return nil, fmt.Errorf("host rejected %q", descriptor.Name)
	}
	if result == nil {
		result = map[string]any{}
	}
	return result, nil
}

func (self *fakeHost) BatchPlayObjects(ctx context.Context, descriptors []*PlayDescriptor) ([]map[string]any, error) {
	results := make([]map[string]any, len(descriptors))
	for i, descriptor := range descriptors {
		result, err := self.PlayObject(ctx, descriptor)
		if err != nil {
			return nil, err
		}
		results[i] = result
	}
	return results, nil
}

func (self *fakeHost) resolve(ref *Reference) map[string]any {
	if ref.LayerId != nil {
		return self.layerProps[*ref.LayerId]
	}
	if ref.HostIndex != nil {
		return self.layerPropsByIndex[*ref.HostIndex]
	}
	return self.docProps
}

func (self *fakeHost) BatchGetProperties(ctx context.Context, refs []*Reference, properties []string, options *BatchGetOptions) ([]PropertyValue, error) {
	self.mutex.Lock()
	self.gets += 1
	self.mutex.Unlock()

	values := make([]PropertyValue, 0, len(refs)*len(properties))
	for _, ref := range refs {
		resolved := self.resolve(ref)
		for _, property := range properties {
			value, ok := resolved[property]
			if !ok {
				values = append(values, PropertyValue{
					Err: fmt.Errorf("no property %q", property),
				})
				continue
			}
			values = append(values, PropertyValue{Value: value})
		}
	}
	return values, nil
}

func (self *fakeHost) BatchGetProperty(ctx context.Context, refs []*Reference, property string) ([]any, error) {
	values, err := self.BatchGetProperties(ctx, refs, []string{property}, &BatchGetOptions{})
	if err != nil {
		return nil, err
	}
	out := make([]any, len(values))
	for i, value := range values {
		if value.Err != nil {
			return nil, value.Err
		}
		out[i] = value.Value
	}
	return out, nil
}

func (self *fakeHost) AddListener(event string, listener ListenerFunction) func() {
	self.mutex.Lock()
	callbacks, ok := self.listeners[event]
	if !ok {
		callbacks = NewCallbackList[ListenerFunction]()
		self.listeners[event] = callbacks
	}
	self.listenerCounts[event] += 1
	self.mutex.Unlock()

	unsub := callbacks.Add(listener)
	return func() {
		self.mutex.Lock()
		self.listenerCounts[event] -= 1
		self.mutex.Unlock()
		unsub()
	}
}

// deliver a host notification synchronously to all listeners
func (self *fakeHost) fire(event string, body map[string]any) {
	self.mutex.Lock()
	callbacks := self.listeners[event]
	self.mutex.Unlock()

	if callbacks == nil {
		return
	}
	for _, listener := range callbacks.Get() {
		listener(event, body)
	}
}

func (self *fakeHost) playNames() []string {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	names := make([]string, len(self.plays))
	for i, play := range self.plays {
		names[i] = play.Name
	}
	return names
}

func (self *fakeHost) playCount() int {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	return len(self.plays)
}

func (self *fakeHost) getCount() int {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	return self.gets
}

// seed a full fetchable property descriptor for a layer
func (self *fakeHost) seedLayer(node *LayerNode) {
	props := LayerProperties{
		"layerID": float64(node.Id),
		"name": node.Name,
		"layerKind": float64(node.Kind),
		"visible": node.Visible,
		"opacity": float64(node.Opacity),
		"mode": node.Mode,
		"itemIndex": float64(0),
	}
	if node.IsBackground() {
		props["background"] = true
	}
	if node.Selected {
		props["targeted"] = true
	}
	if node.Locked {
		props["layerLocking"] = map[string]any{"protectAll": true}
	}
	if node.Bounds != nil {
		props["bounds"] = map[string]any{
			"top": node.Bounds.Top,
			"left": node.Bounds.Left,
			"bottom": node.Bounds.Bottom,
			"right": node.Bounds.Right,
		}
	}
	self.layerProps[node.Id] = props
}

type testHarness struct {
	ctx context.Context
	cancel context.CancelFunc
	host *fakeHost
	dispatcher *Dispatcher
	store *DocumentStore
	scheduler *Scheduler
	commands *LayerCommands
}

func newTestHarness(t *testing.T) *testHarness {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	host := newFakeHost()
	dispatcher := NewDispatcher()
	store := NewDocumentStore(dispatcher)
	scheduler := NewSchedulerWithDefaults(ctx)
	commands := NewLayerCommandsWithDefaults(ctx, host, store, dispatcher, scheduler)
	return &testHarness{
		ctx: ctx,
		cancel: cancel,
		host: host,
		dispatcher: dispatcher,
		store: store,
		scheduler: scheduler,
		commands: commands,
	}
}

func (self *testHarness) seedDocument(documentId DocumentId, nodes []*LayerNode) *DocumentModel {
	model := NewDocumentModel(documentId, nodes)
	self.store.ReplaceDocument(model)
	self.store.SetActiveDocument(documentId)
	return model
}

// wait for the store to reach a condition, for handlers that run
// asynchronously through the scheduler
func (self *testHarness) waitForDocument(t *testing.T, documentId DocumentId, condition func(model *DocumentModel) bool) *DocumentModel {
	deadline := time.Now().Add(5 * time.Second)
	for {
		notify := self.store.UpdateMonitor().NotifyChannel()
		model := self.store.Document(documentId)
		if model != nil && condition(model) {
			return model
		}
		if deadline.Before(time.Now()) {
			t.Fatalf("timeout waiting for document %d", documentId)
		}
		select {
		case <-notify:
		case <-time.After(10 * time.Millisecond):
		}
	}
}

// wait for an arbitrary condition, polling alongside store updates
func (self *testHarness) waitFor(t *testing.T, message string, condition func() bool) {
	deadline := time.Now().Add(5 * time.Second)
	for {
		notify := self.store.UpdateMonitor().NotifyChannel()
		if condition() {
			return
		}
		if deadline.Before(time.Now()) {
			t.Fatalf("timeout waiting for %s", message)
		}
		select {
		case <-notify:
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func pixelLayer(layerId LayerId, name string) *LayerNode {
	return &LayerNode{
		Id: layerId,
		Kind: LayerKindPixel,
		Name: name,
		Visible: true,
		Opacity: 100,
		Mode: BlendNormal,
		Bounds: &Bounds{Top: 0, Left: 0, Bottom: 100, Right: 100},
	}
}

func emptyLayer(layerId LayerId, name string) *LayerNode {
	return &LayerNode{
		Id: layerId,
		Kind: LayerKindPixel,
		Name: name,
		Visible: true,
		Opacity: 100,
		Mode: BlendNormal,
	}
}

func backgroundLayer(layerId LayerId) *LayerNode {
	return &LayerNode{
		Id: layerId,
		Kind: LayerKindBackground,
		Name: "Background",
		Visible: true,
		Opacity: 100,
		Mode: BlendNormal,
	}
}

func groupStart(layerId LayerId, name string) *LayerNode {
	return &LayerNode{
		Id: layerId,
		Kind: LayerKindGroup,
		Name: name,
		Visible: true,
		Opacity: 100,
		Mode: BlendPassThrough,
	}
}

func groupEnd(layerId LayerId) *LayerNode {
	return &LayerNode{
		Id: layerId,
		Kind: LayerKindGroupEnd,
		Name: "</Layer group>",
	}
}
