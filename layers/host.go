package layers

import (
	"context"
)

// the host-adapter transport surface consumed by the command set.
// implementations are external to this package (see the adapter
// package for the websocket client, and the in-package fake used by
// tests).

// a play descriptor names a host operation and carries its
// schemaless nested parameters
type PlayDescriptor struct {
	Name string `json:"name"`
	Params map[string]any `json:"params,omitempty"`
}

// Reference addresses a document or layer on the host. Exactly one of
// the addressing fields is set.
type Reference struct {
	DocumentId DocumentId `json:"documentID"`
	LayerId *LayerId `json:"layerID,omitempty"`
	// host index, 1-based and background-shifted
	HostIndex *int `json:"index,omitempty"`
	CurrentSelection bool `json:"current,omitempty"`
}

func DocumentRef(documentId DocumentId) *Reference {
	return &Reference{
		DocumentId: documentId,
	}
}

func LayerRef(documentId DocumentId, layerId LayerId) *Reference {
	return &Reference{
		DocumentId: documentId,
		LayerId: &layerId,
	}
}

func LayerIndexRef(documentId DocumentId, hostIndex int) *Reference {
	return &Reference{
		DocumentId: documentId,
		HostIndex: &hostIndex,
	}
}

func CurrentSelectionRef(documentId DocumentId) *Reference {
	return &Reference{
		DocumentId: documentId,
		CurrentSelection: true,
	}
}

type BatchGetOptions struct {
	// collect per-item failures instead of failing the whole batch
	ContinueOnError bool
}

// one slot of a flattened batched get. with ContinueOnError a slot can
// carry a per-item error instead of a value.
type PropertyValue struct {
	Value any
	Err error
}

type ListenerFunction func(event string, body map[string]any)

type Host interface {
	// play one action descriptor and return the host's result payload
	PlayObject(ctx context.Context, descriptor *PlayDescriptor) (map[string]any, error)
	// play several action descriptors in one host round trip
	BatchPlayObjects(ctx context.Context, descriptors []*PlayDescriptor) ([]map[string]any, error)
	// fetch properties for each reference. the result is flattened in
	// reference-major order: len(refs) * len(properties) slots.
	BatchGetProperties(ctx context.Context, refs []*Reference, properties []string, options *BatchGetOptions) ([]PropertyValue, error)
	BatchGetProperty(ctx context.Context, refs []*Reference, property string) ([]any, error)
	// returns the remove function, which is idempotent
	AddListener(event string, listener ListenerFunction) func()
}
