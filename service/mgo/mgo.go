package mgo

import (
	"context"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	mgo "PPDirect/data/database/mgo/mongoutil"
	"PPDirect/logger"
	"PPDirect/tools/errs"

	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

const (
	baseBackoff = 200 * time.Millisecond
	maxBackoff  = 5 * time.Second
	healthEvery = 10 * time.Second
	failThresh  = 3
)

// Manager owns the Mongo client: it keeps reconnecting with backoff until the
// first success, then pings periodically and reconnects after failThresh
// consecutive failures.
type Manager struct {
	cfg *mgo.Config

	mu        sync.RWMutex
	client    *mgo.Client
	readyCh   chan struct{}
	readyOnce sync.Once
	stopped   chan struct{}

	lastErr atomic.Value // error
}

func NewManager(cfg *mgo.Config) *Manager {
	return &Manager{
		cfg:     cfg,
		readyCh: make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

// Start runs the connect/health loop until ctx is done.
func (m *Manager) Start(ctx context.Context) {
	go func() {
		defer close(m.stopped)
		for {
			if !m.connect(ctx) {
				return
			}
			m.watch(ctx)
			if ctx.Err() != nil {
				return
			}
		}
	}()
}

// Stopped is closed once the loop has exited and the client is disconnected.
func (m *Manager) Stopped() <-chan struct{} {
	return m.stopped
}

func (m *Manager) connect(ctx context.Context) bool {
	attempt := 0
	for {
		if ctx.Err() != nil {
			return false
		}

		cli, err := mgo.NewMongoDB(ctx, m.cfg)
		if err == nil {
			m.mu.Lock()
			m.client = cli
			m.mu.Unlock()
			m.readyOnce.Do(func() { close(m.readyCh) })
			logger.Info("mongo connected", zap.String("database", m.cfg.Database))
			return true
		}

		m.lastErr.Store(err)
		logger.Warn("mongo connect failed", zap.Int("attempt", attempt), zap.Error(err))

		backoff := baseBackoff << attempt
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
		jitter := time.Duration(rand.Int63n(int64(backoff / 5)))
		timer := time.NewTimer(backoff - jitter/2)
		select {
		case <-ctx.Done():
			timer.Stop()
			return false
		case <-timer.C:
		}
		if attempt < 6 {
			attempt++
		}
	}
}

func (m *Manager) watch(ctx context.Context) {
	fail := 0
	ticker := time.NewTicker(healthEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			m.drop()
			return
		case <-ticker.C:
			c, ok := m.Client()
			if !ok {
				return
			}
			pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
			err := c.Ping(pingCtx)
			cancel()
			if err == nil {
				fail = 0
				continue
			}
			fail++
			m.lastErr.Store(err)
			logger.Warn("mongo ping failed", zap.Int("fail", fail), zap.Error(err))
			if fail >= failThresh {
				m.drop()
				return
			}
		}
	}
}

func (m *Manager) drop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.client != nil {
		_ = m.client.Disconnect(context.Background())
		m.client = nil
	}
}

// Ready is closed on the first successful connection.
func (m *Manager) Ready() <-chan struct{} {
	return m.readyCh
}

// WaitReady blocks until the first connection or ctx expiry.
func (m *Manager) WaitReady(ctx context.Context) error {
	if _, ok := m.Client(); ok {
		return nil
	}
	select {
	case <-m.readyCh:
		return nil
	case <-ctx.Done():
		if err := m.Err(); err != nil {
			return errs.WrapMsg(err, "mongo not ready")
		}
		return ctx.Err()
	}
}

// Err returns the most recent connect or ping error.
func (m *Manager) Err() error {
	if v := m.lastErr.Load(); v != nil {
		return v.(error)
	}
	return nil
}

func (m *Manager) Client() (*mgo.Client, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.client, m.client != nil
}

// DB returns the current database, or ErrInternalServer while there is no
// live client (before the first connect and during a reconnect).
func (m *Manager) DB() (*mongo.Database, error) {
	c, ok := m.Client()
	if !ok {
		return nil, errs.ErrInternalServer.WrapMsg("mongo not connected")
	}
	return c.GetDB(), nil
}

// WithTx runs fn in a transaction on the current client.
func (m *Manager) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	c, ok := m.Client()
	if !ok {
		return errs.ErrInternalServer.WrapMsg("mongo not connected")
	}
	return c.WithTx(ctx, fn)
}
