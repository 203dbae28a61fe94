package chat

import (
	"context"
	"sync"

	"PPDirect/logger"
	chatmodel "PPDirect/module/chat/model"
	"PPDirect/service/events"
	"PPDirect/tools/safe"

	"go.uber.org/zap"
)

// PresenceObserver hears about users coming online and going offline. Calls
// run on their own goroutine and may arrive out of order.
type PresenceObserver interface {
	UserOnline(userID string)
	UserOffline(userID string)
}

type liveConn struct {
	conn   Conn
	userID string // 匿名连接为空
}

// Relay routes realtime signals between live connections. It never touches
// the store and never returns errors: a push that cannot be delivered is
// logged and dropped.
type Relay struct {
	reg      PresenceRegistry
	observer PresenceObserver
	disp     *Dispatcher

	mu   sync.RWMutex
	live map[string]liveConn // conn_id -> conn，包括匿名连接

	bcast sync.Mutex // 保证 online-users 快照按顺序下发
}

// NewRelay builds a relay over reg. observer may be nil.
func NewRelay(reg PresenceRegistry, observer PresenceObserver) *Relay {
	r := &Relay{
		reg:      reg,
		observer: observer,
		disp:     NewDispatcher(),
		live:     make(map[string]liveConn),
	}
	r.disp.Register(EventTyping, r.handleTyping)
	r.disp.Register(EventMessageRead, r.handleRead)
	return r
}

// anonymous 客户端未登录时会带上这些占位值
func anonymous(userID string) bool {
	switch userID {
	case "", "undefined", "null":
		return true
	}
	return false
}

// Connect tracks c and, when userID identifies someone, registers it as that
// user's connection. Every live connection then receives the new roster.
func (r *Relay) Connect(c Conn, userID string) {
	if anonymous(userID) {
		userID = ""
	}
	r.mu.Lock()
	r.live[c.ID()] = liveConn{conn: c, userID: userID}
	r.mu.Unlock()

	if userID != "" {
		r.reg.Register(userID, c)
		r.notify(userID, true)
	}
	logger.Debug("relay connect", zap.String("conn", c.ID()), zap.String("userId", userID))
	r.broadcastOnline()
}

// Disconnect forgets c. The presence entry goes away only if c is still the
// connection registered for its user.
func (r *Relay) Disconnect(c Conn) {
	r.mu.Lock()
	delete(r.live, c.ID())
	r.mu.Unlock()

	if userID, ok := r.reg.Unregister(c); ok {
		r.notify(userID, false)
		logger.Debug("relay disconnect", zap.String("conn", c.ID()), zap.String("userId", userID))
	}
	r.broadcastOnline()
}

// notify 不阻塞名单广播，慢的 presence 存储只影响它自己
func (r *Relay) notify(userID string, online bool) {
	if r.observer == nil {
		return
	}
	if online {
		safe.Go("presence online", func() { r.observer.UserOnline(userID) })
		return
	}
	safe.Go("presence offline", func() { r.observer.UserOffline(userID) })
}

func (r *Relay) broadcastOnline() {
	r.bcast.Lock()
	defer r.bcast.Unlock()

	f := Frame{Event: EventOnlineUsers, Data: r.reg.Snapshot()}
	r.mu.RLock()
	conns := make([]Conn, 0, len(r.live))
	for _, lc := range r.live {
		conns = append(conns, lc.conn)
	}
	r.mu.RUnlock()
	for _, c := range conns {
		r.push(c, f)
	}
}

// HandleFrame processes one raw client frame from c.
func (r *Relay) HandleFrame(c Conn, raw []byte) {
	f, err := ParseFrame(raw)
	if err != nil {
		sample := raw
		if len(sample) > 256 {
			sample = sample[:256]
		}
		logger.Debug("relay bad frame", zap.String("conn", c.ID()), zap.Error(err), zap.ByteString("sample", sample))
		return
	}
	if err := r.disp.Dispatch(c, f); err != nil {
		logger.Debug("relay frame dropped", zap.String("conn", c.ID()), zap.String("event", f.Event), zap.Error(err))
	}
}

// identity 已登录连接以连接身份为准，匿名连接信任帧里的字段
func (r *Relay) identity(c Conn, claimed string) string {
	r.mu.RLock()
	lc, ok := r.live[c.ID()]
	r.mu.RUnlock()
	if ok && lc.userID != "" {
		return lc.userID
	}
	return claimed
}

func (r *Relay) handleTyping(c Conn, data map[string]any) error {
	p, err := decodePayload[TypingPayload](data)
	if err != nil {
		return err
	}
	r.Typing(r.identity(c, p.SenderID), p.ReceiverID, p.IsTyping)
	return nil
}

func (r *Relay) handleRead(c Conn, data map[string]any) error {
	p, err := decodePayload[ReadPayload](data)
	if err != nil {
		return err
	}
	r.ReadReceipt(p.SenderID, p.MessageID, r.identity(c, p.ReadBy))
	return nil
}

// Typing tells receiverID that senderID started or stopped typing.
func (r *Relay) Typing(senderID, receiverID string, isTyping bool) {
	r.pushTo(receiverID, Frame{Event: EventTyping, Data: TypingNotice{SenderID: senderID, IsTyping: isTyping}})
}

// ReadReceipt tells the original sender that readBy has read messageID.
func (r *Relay) ReadReceipt(senderID, messageID, readBy string) {
	r.pushTo(senderID, Frame{Event: EventMessageRead, Data: ReadNotice{MessageID: messageID, ReadBy: readBy}})
}

// MessageSent pushes a freshly persisted message to its receiver.
func (r *Relay) MessageSent(m *chatmodel.Populated) {
	if m == nil {
		return
	}
	r.pushTo(m.Receiver.ID.Hex(), Frame{Event: EventNewMessage, Data: m})
}

// MessageDeleted tells the other participant that a message is gone.
func (r *Relay) MessageDeleted(d chatmodel.MessageDeleted) {
	r.pushTo(d.ReceiverID, Frame{Event: EventMessageDeleted, Data: DeletedNotice{MessageID: d.MessageID, ConversationID: d.ConversationID}})
}

// Run consumes chat events until ctx is done.
func (r *Relay) Run(ctx context.Context, evs <-chan events.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt := <-evs:
			r.dispatchEvent(evt)
		}
	}
}

func (r *Relay) dispatchEvent(evt events.Event) {
	defer safe.Recover("relay event " + evt.Kind)
	switch p := evt.Payload.(type) {
	case chatmodel.MessageSent:
		r.MessageSent(p.Message)
	case *chatmodel.MessageSent:
		r.MessageSent(p.Message)
	case chatmodel.MessageDeleted:
		r.MessageDeleted(p)
	case *chatmodel.MessageDeleted:
		r.MessageDeleted(*p)
	default:
		logger.Debug("relay ignores event", zap.String("kind", evt.Kind))
	}
}

func (r *Relay) pushTo(userID string, f Frame) {
	if anonymous(userID) {
		return
	}
	c, ok := r.reg.Lookup(userID)
	if !ok {
		logger.Debug("relay target offline", zap.String("event", f.Event), zap.String("userId", userID))
		return
	}
	r.push(c, f)
}

func (r *Relay) push(c Conn, f Frame) {
	if err := c.Push(f); err != nil {
		logger.Debug("relay push failed", zap.String("conn", c.ID()), zap.String("event", f.Event), zap.Error(err))
	}
}

// Online reports the users currently registered.
func (r *Relay) Online() []string {
	return r.reg.Snapshot()
}

// Connections counts live connections, anonymous ones included.
func (r *Relay) Connections() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.live)
}
