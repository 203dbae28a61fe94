package events

import (
	"context"
	"encoding/json"
	"time"

	"PPDirect/logger"

	"go.uber.org/zap"
)

// Sink ships an encoded event out of the process.
type Sink interface {
	Name() string
	Send(ctx context.Context, kind, key string, payload []byte) error
}

// Envelope is the wire shape written to every sink.
type Envelope struct {
	Kind      string    `json:"kind"`
	Timestamp time.Time `json:"ts"`
	Payload   any       `json:"payload"`
}

// Forwarder copies bus events under one namespace to external sinks.
// A failing sink is logged and skipped; it never holds up the others.
type Forwarder struct {
	bus       *Bus
	namespace string
	bufSize   int
	timeout   time.Duration
	sinks     []Sink
}

func NewForwarder(bus *Bus, namespace string, bufSize int, sinks ...Sink) *Forwarder {
	if bufSize <= 0 {
		bufSize = 1024
	}
	return &Forwarder{
		bus:       bus,
		namespace: namespace,
		bufSize:   bufSize,
		timeout:   5 * time.Second,
		sinks:     sinks,
	}
}

// Run forwards until ctx is done.
func (f *Forwarder) Run(ctx context.Context) {
	if len(f.sinks) == 0 {
		return
	}
	ch, unsub := f.bus.Subscribe(f.namespace, f.bufSize)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return
		case evt := <-ch:
			f.forward(ctx, evt)
		}
	}
}

func (f *Forwarder) forward(ctx context.Context, evt Event) {
	data, err := json.Marshal(Envelope{Kind: evt.Kind, Timestamp: evt.Timestamp, Payload: evt.Payload})
	if err != nil {
		logger.Error("encode event", zap.String("kind", evt.Kind), zap.Error(err))
		return
	}
	var key string
	if k, ok := evt.Payload.(Keyed); ok {
		key = k.EventKey()
	}
	for _, s := range f.sinks {
		sctx, cancel := context.WithTimeout(ctx, f.timeout)
		if err := s.Send(sctx, evt.Kind, key, data); err != nil {
			logger.Warn("forward event failed", zap.String("sink", s.Name()), zap.String("kind", evt.Kind), zap.Error(err))
		}
		cancel()
	}
}
