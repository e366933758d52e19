package event

import (
	"slices"
	"sync"
)

// AllEvents subscribes a handler to every event name
const AllEvents = "*"

// EventHandler receives the events named by HandledEvents
type EventHandler interface {
	Handle(event DomainEvent) error
	HandledEvents() []string
}

// EventDispatcher fans domain events out to subscribed handlers
type EventDispatcher interface {
	Dispatch(event DomainEvent)
	DispatchAll(events []DomainEvent)
	Subscribe(handler EventHandler)
	Unsubscribe(handler EventHandler)
}

// InMemoryDispatcher delivers events inside the process. In synchronous
// mode handlers run on the dispatching goroutine, so one session's events
// reach every handler in the order they were raised. Async mode gives up
// that ordering.
type InMemoryDispatcher struct {
	mu      sync.RWMutex
	byName  map[string][]EventHandler
	onError func(DomainEvent, error)
	async   bool
}

func NewInMemoryDispatcher(async bool) *InMemoryDispatcher {
	return &InMemoryDispatcher{
		byName: make(map[string][]EventHandler),
		async:  async,
	}
}

// OnError installs a callback for handler failures. Without one they are dropped.
func (d *InMemoryDispatcher) OnError(fn func(DomainEvent, error)) {
	d.mu.Lock()
	d.onError = fn
	d.mu.Unlock()
}

func (d *InMemoryDispatcher) Dispatch(event DomainEvent) {
	recipients, onError := d.recipients(event.EventName())

	for _, h := range recipients {
		if d.async {
			go deliver(h, event, onError)
			continue
		}
		deliver(h, event, onError)
	}
}

func (d *InMemoryDispatcher) DispatchAll(events []DomainEvent) {
	for _, e := range events {
		d.Dispatch(e)
	}
}

// Subscribe adds handler under each name it handles. Named handlers run
// before AllEvents handlers.
func (d *InMemoryDispatcher) Subscribe(handler EventHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, name := range handler.HandledEvents() {
		d.byName[name] = append(d.byName[name], handler)
	}
}

func (d *InMemoryDispatcher) Unsubscribe(handler EventHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, name := range handler.HandledEvents() {
		d.byName[name] = slices.DeleteFunc(d.byName[name], func(h EventHandler) bool {
			return h == handler
		})
	}
}

// recipients returns a private copy so delivery runs without the lock
func (d *InMemoryDispatcher) recipients(name string) ([]EventHandler, func(DomainEvent, error)) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return slices.Concat(d.byName[name], d.byName[AllEvents]), d.onError
}

func deliver(h EventHandler, event DomainEvent, onError func(DomainEvent, error)) {
	if err := h.Handle(event); err != nil && onError != nil {
		onError(event, err)
	}
}

// HandlerFunc adapts a function to EventHandler for the given event names
type HandlerFunc struct {
	Events []string
	Fn     func(event DomainEvent) error
}

func (h *HandlerFunc) Handle(event DomainEvent) error { return h.Fn(event) }
func (h *HandlerFunc) HandledEvents() []string        { return h.Events }

// NullDispatcher drops every event. It backs callers that run without
// history or metrics.
type NullDispatcher struct{}

func NewNullDispatcher() *NullDispatcher { return &NullDispatcher{} }

func (*NullDispatcher) Dispatch(DomainEvent)      {}
func (*NullDispatcher) DispatchAll([]DomainEvent) {}
func (*NullDispatcher) Subscribe(EventHandler)    {}
func (*NullDispatcher) Unsubscribe(EventHandler)  {}
