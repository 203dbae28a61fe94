package chat

import (
	"fmt"
	"sync"
)

// FrameHandler handles one client event for the connection it arrived on.
type FrameHandler func(c Conn, data map[string]any) error

type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string]FrameHandler
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[string]FrameHandler)}
}

func (d *Dispatcher) Register(event string, h FrameHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[event] = h
}

func (d *Dispatcher) GetHandler(event string) (FrameHandler, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	h, ok := d.handlers[event]
	return h, ok
}

func (d *Dispatcher) Dispatch(c Conn, f *InFrame) error {
	h, ok := d.GetHandler(f.Event)
	if !ok {
		return fmt.Errorf("no handler for event=%s", f.Event)
	}
	return h(c, f.Data)
}
