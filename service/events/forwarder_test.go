package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type sent struct {
	kind, key string
	payload   []byte
}

type fakeSink struct {
	mu   sync.Mutex
	name string
	err  error
	got  []sent
}

func (s *fakeSink) Name() string { return s.name }

func (s *fakeSink) Send(_ context.Context, kind, key string, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, sent{kind: kind, key: key, payload: payload})
	return s.err
}

func (s *fakeSink) snapshot() []sent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sent(nil), s.got...)
}

type keyedPayload struct {
	Conversation string `json:"conversation"`
}

func (p keyedPayload) EventKey() string { return p.Conversation }

func TestForwarderFansOutToSinks(t *testing.T) {
	bus := NewBus()
	broken := &fakeSink{name: "broken", err: errors.New("down")}
	ok := &fakeSink{name: "ok"}
	f := NewForwarder(bus, "chat.", 8, broken, ok)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		f.Run(ctx)
		close(done)
	}()

	// Run subscribes asynchronously; publish until the sink sees something.
	require.Eventually(t, func() bool {
		bus.Publish(Event{Kind: "chat.message.sent", Payload: keyedPayload{Conversation: "c1"}})
		return len(ok.snapshot()) > 0
	}, time.Second, 10*time.Millisecond)

	got := ok.snapshot()[0]
	require.Equal(t, "chat.message.sent", got.kind)
	require.Equal(t, "c1", got.key)

	var env struct {
		Kind    string       `json:"kind"`
		Payload keyedPayload `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(got.payload, &env))
	require.Equal(t, "chat.message.sent", env.Kind)
	require.Equal(t, "c1", env.Payload.Conversation)
	require.NotEmpty(t, broken.snapshot())

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("forwarder did not stop")
	}
}

func TestForwardUnkeyedPayloadHasEmptyKey(t *testing.T) {
	bus := NewBus()
	sink := &fakeSink{name: "s"}
	f := NewForwarder(bus, "chat.", 8, sink)
	f.forward(context.Background(), Event{Kind: "chat.x", Payload: 1})
	require.Len(t, sink.snapshot(), 1)
	require.Empty(t, sink.snapshot()[0].key)
}

func TestForwarderWithoutSinksReturns(t *testing.T) {
	f := NewForwarder(NewBus(), "chat.", 0)
	done := make(chan struct{})
	go func() {
		f.Run(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run should return immediately without sinks")
	}
}
