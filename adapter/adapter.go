package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/gorilla/websocket"
	"github.com/oklog/ulid/v2"

	"github.com/easelapp/easel/layers"
)

// HostAdapter is the websocket transport to the host's local control
// endpoint. It implements layers.Host: play calls are correlated by
// request id, host notifications are fanned out to registered
// listeners. The connection is re-established on failure; calls
// pending across a disconnect fail and are not replayed.

const frameBufferSize = 32

type HostAdapterSettings struct {
	WsHandshakeTimeout time.Duration
	AuthTimeout time.Duration
	ReconnectTimeout time.Duration
	PingTimeout time.Duration
	WriteTimeout time.Duration
	ReadTimeout time.Duration
}

func DefaultHostAdapterSettings() *HostAdapterSettings {
	return &HostAdapterSettings{
		WsHandshakeTimeout: 2 * time.Second,
		AuthTimeout: 2 * time.Second,
		ReconnectTimeout: 5 * time.Second,
		PingTimeout: 1 * time.Second,
		WriteTimeout: 5 * time.Second,
		ReadTimeout: 15 * time.Second,
	}
}

// one wire message in either direction
type frame struct {
	Id string `json:"id,omitempty"`
	Type string `json:"type"`
	Name string `json:"name,omitempty"`
	Body json.RawMessage `json:"body,omitempty"`
}

const (
	frameTypeAuth = "auth"
	frameTypeOk = "ok"
	frameTypePlay = "play"
	frameTypeBatchPlay = "batchPlay"
	frameTypeGet = "get"
	frameTypeResult = "result"
	frameTypeError = "error"
	frameTypeEvent = "event"
)

// a batched get slot on the wire. exactly one of value/error is set.
type getSlot struct {
	Value any `json:"value,omitempty"`
	Error string `json:"error,omitempty"`
	Ok bool `json:"ok"`
}

type getRequest struct {
	Refs []*layers.Reference `json:"refs"`
	Properties []string `json:"properties"`
	ContinueOnError bool `json:"continueOnError,omitempty"`
}

type batchPlayRequest struct {
	Descriptors []*layers.PlayDescriptor `json:"descriptors"`
}

type pendingCall struct {
	result chan *frame
}

type HostAdapter struct {
	ctx context.Context
	cancel context.CancelFunc

	url string
	auth *SessionAuth

	settings *HostAdapterSettings

	send chan *frame

	mutex sync.Mutex
	pending map[string]*pendingCall
	listeners map[string]*layers.CallbackList[layers.ListenerFunction]
}

func NewHostAdapterWithDefaults(ctx context.Context, url string, auth *SessionAuth) *HostAdapter {
	return NewHostAdapter(ctx, url, auth, DefaultHostAdapterSettings())
}

func NewHostAdapter(ctx context.Context, url string, auth *SessionAuth, settings *HostAdapterSettings) *HostAdapter {
	cancelCtx, cancel := context.WithCancel(ctx)
	adapter := &HostAdapter{
		ctx: cancelCtx,
		cancel: cancel,
		url: url,
		auth: auth,
		settings: settings,
		send: make(chan *frame, frameBufferSize),
		pending: map[string]*pendingCall{},
		listeners: map[string]*layers.CallbackList[layers.ListenerFunction]{},
	}
	go adapter.run()
	return adapter
}

func (self *HostAdapter) Close() {
	self.cancel()
}

// layers.Host

func (self *HostAdapter) PlayObject(ctx context.Context, descriptor *layers.PlayDescriptor) (map[string]any, error) {
	body, err := json.Marshal(descriptor.Params)
	if err != nil {
		return nil, err
	}
	result, err := self.call(ctx, &frame{
		Type: frameTypePlay,
		Name: descriptor.Name,
		Body: body,
	})
	if err != nil {
		return nil, err
	}
	out := map[string]any{}
	if 0 < len(result.Body) {
		if err := json.Unmarshal(result.Body, &out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (self *HostAdapter) BatchPlayObjects(ctx context.Context, descriptors []*layers.PlayDescriptor) ([]map[string]any, error) {
	body, err := json.Marshal(&batchPlayRequest{
		Descriptors: descriptors,
	})
	if err != nil {
		return nil, err
	}
	result, err := self.call(ctx, &frame{
		Type: frameTypeBatchPlay,
		Body: body,
	})
	if err != nil {
		return nil, err
	}
	out := []map[string]any{}
	if 0 < len(result.Body) {
		if err := json.Unmarshal(result.Body, &out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (self *HostAdapter) BatchGetProperties(ctx context.Context, refs []*layers.Reference, properties []string, options *layers.BatchGetOptions) ([]layers.PropertyValue, error) {
	continueOnError := options != nil && options.ContinueOnError
	body, err := json.Marshal(&getRequest{
		Refs: refs,
		Properties: properties,
		ContinueOnError: continueOnError,
	})
	if err != nil {
		return nil, err
	}
	result, err := self.call(ctx, &frame{
		Type: frameTypeGet,
		Body: body,
	})
	if err != nil {
		return nil, err
	}
	slots := []getSlot{}
	if err := json.Unmarshal(result.Body, &slots); err != nil {
		return nil, err
	}
	values := make([]layers.PropertyValue, len(slots))
	for i, slot := range slots {
		if slot.Ok {
			values[i] = layers.PropertyValue{Value: slot.Value}
		} else {
			values[i] = layers.PropertyValue{Err: errors.New(slot.Error)}
		}
	}
	return values, nil
}

func (self *HostAdapter) BatchGetProperty(ctx context.Context, refs []*layers.Reference, property string) ([]any, error) {
	values, err := self.BatchGetProperties(ctx, refs, []string{property}, &layers.BatchGetOptions{})
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

func (self *HostAdapter) AddListener(event string, listener layers.ListenerFunction) func() {
	self.mutex.Lock()
	callbacks, ok := self.listeners[event]
	if !ok {
		callbacks = layers.NewCallbackList[layers.ListenerFunction]()
		self.listeners[event] = callbacks
	}
	self.mutex.Unlock()

	return callbacks.Add(listener)
}

func (self *HostAdapter) call(ctx context.Context, request *frame) (*frame, error) {
	request.Id = ulid.Make().String()

	call := &pendingCall{
		result: make(chan *frame, 1),
	}
	self.mutex.Lock()
	self.pending[request.Id] = call
	self.mutex.Unlock()
	defer func() {
		self.mutex.Lock()
		delete(self.pending, request.Id)
		self.mutex.Unlock()
	}()

	select {
	case <-self.ctx.Done():
		return nil, errors.New("adapter closed")
	case <-ctx.Done():
		return nil, ctx.Err()
	case self.send <- request:
	}

	select {
	case <-self.ctx.Done():
		return nil, errors.New("adapter closed")
	case <-ctx.Done():
		return nil, ctx.Err()
	case result := <-call.result:
		if result == nil {
			return nil, errors.New("connection lost")
		}
		if result.Type == frameTypeError {
			payload := map[string]any{}
			if 0 < len(result.Body) {
				json.Unmarshal(result.Body, &payload)
			}
			message, _ := payload["message"].(string)
			if message == "" {
				message = "host rejected the request"
			}
			return nil, &layers.HostCommandError{
				Operation: request.Name,
				Payload: payload,
				Err: errors.New(message),
			}
		}
		return result, nil
	}
}

func (self *HostAdapter) deliver(result *frame) {
	self.mutex.Lock()
	call, ok := self.pending[result.Id]
	if ok {
		delete(self.pending, result.Id)
	}
	self.mutex.Unlock()

	if !ok {
		glog.V(2).Infof("[adapter]drop result %s\n", result.Id)
		return
	}
	call.result <- result
}

// drop frames queued for a dead connection and fail their callers. a
// stale request must never be replayed on the next connection.
func (self *HostAdapter) drainSend() {
	for {
		select {
		case out := <-self.send:
			self.mutex.Lock()
			call, ok := self.pending[out.Id]
			if ok {
				delete(self.pending, out.Id)
			}
			self.mutex.Unlock()
			if ok {
				call.result <- nil
			}
		default:
			return
		}
	}
}

// fail all pending calls, e.g. on disconnect
func (self *HostAdapter) failPending() {
	self.mutex.Lock()
	pending := self.pending
	self.pending = map[string]*pendingCall{}
	self.mutex.Unlock()

	for _, call := range pending {
		call.result <- nil
	}
}

func (self *HostAdapter) event(name string, body map[string]any) {
	self.mutex.Lock()
	callbacks, ok := self.listeners[name]
	self.mutex.Unlock()

	if !ok {
		glog.V(2).Infof("[adapter]no listeners for %s\n", name)
		return
	}
	for _, listener := range callbacks.Get() {
		layers.HandleError(func() {
			listener(name, body)
		})
	}
}

func (self *HostAdapter) run() {
	defer self.cancel()

	for {
		reconnect := time.After(self.settings.ReconnectTimeout)

		connect := func() (*websocket.Conn, error) {
			dialer := &websocket.Dialer{
				HandshakeTimeout: self.settings.WsHandshakeTimeout,
			}
			ws, _, err := dialer.DialContext(self.ctx, self.url, nil)
			if err != nil {
				return nil, err
			}

			success := false
			defer func() {
				if !success {
					ws.Close()
				}
			}()

			token, err := self.auth.SessionToken()
			if err != nil {
				return nil, err
			}
			authBody, err := json.Marshal(map[string]any{
				"token": token,
				"app": self.auth.App,
			})
			if err != nil {
				return nil, err
			}
			authFrame, err := json.Marshal(&frame{
				Type: frameTypeAuth,
				Body: authBody,
			})
			if err != nil {
				return nil, err
			}

			ws.SetWriteDeadline(time.Now().Add(self.settings.AuthTimeout))
			if err := ws.WriteMessage(websocket.TextMessage, authFrame); err != nil {
				return nil, err
			}
			ws.SetReadDeadline(time.Now().Add(self.settings.AuthTimeout))
			_, message, err := ws.ReadMessage()
			if err != nil {
				return nil, err
			}
			ack := &frame{}
			if err := json.Unmarshal(message, ack); err != nil {
				return nil, err
			}
			if ack.Type != frameTypeOk {
				return nil, fmt.Errorf("pairing rejected: %s", ack.Type)
			}

			success = true
			return ws, nil
		}

		ws, err := connect()
		if err != nil {
			glog.Infof("[adapter]connect error = %s\n", err)
			select {
			case <-self.ctx.Done():
				return
			case <-reconnect:
				continue
			}
		}
		glog.Infof("[adapter]paired %s\n", self.auth.InstanceId)

		c := func() {
			defer func() {
				ws.Close()
				self.drainSend()
				self.failPending()
			}()

			handleCtx, handleCancel := context.WithCancel(self.ctx)
			defer handleCancel()

			go func() {
				defer handleCancel()

				for {
					select {
					case <-handleCtx.Done():
						return
					case out := <-self.send:
						message, err := json.Marshal(out)
						if err != nil {
							glog.Infof("[adapter]-> encode error = %s\n", err)
							continue
						}
						ws.SetWriteDeadline(time.Now().Add(self.settings.WriteTimeout))
						if err := ws.WriteMessage(websocket.TextMessage, message); err != nil {
							glog.Infof("[adapter]-> error = %s\n", err)
							return
						}
						glog.V(2).Infof("[adapter]-> %s %s\n", out.Type, out.Name)
					case <-time.After(self.settings.PingTimeout):
						ws.SetWriteDeadline(time.Now().Add(self.settings.WriteTimeout))
						if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
							return
						}
					}
				}
			}()

			for {
				select {
				case <-handleCtx.Done():
					return
				default:
				}

				ws.SetReadDeadline(time.Now().Add(self.settings.ReadTimeout))
				_, message, err := ws.ReadMessage()
				if err != nil {
					glog.Infof("[adapter]<- error = %s\n", err)
					return
				}

				in := &frame{}
				if err := json.Unmarshal(message, in); err != nil {
					glog.Infof("[adapter]<- decode error = %s\n", err)
					continue
				}
				switch in.Type {
				case frameTypeResult, frameTypeError:
					self.deliver(in)
				case frameTypeEvent:
					body := map[string]any{}
					if 0 < len(in.Body) {
						if err := json.Unmarshal(in.Body, &body); err != nil {
							glog.Infof("[adapter]<- event decode error = %s\n", err)
							continue
						}
					}
					glog.V(2).Infof("[adapter]<- event %s\n", in.Name)
					self.event(in.Name, body)
				default:
					glog.V(2).Infof("[adapter]<- other %s\n", in.Type)
				}
			}
		}
		c()

		select {
		case <-self.ctx.Done():
			return
		case <-time.After(self.settings.ReconnectTimeout):
		}
	}
}
