package chat

import (
	"sort"
	"sync"
)

// Conn is one live connection handle. Push must not block.
type Conn interface {
	ID() string
	Push(f Frame) error
}

// PresenceRegistry maps a user to the one connection that currently speaks
// for it.
type PresenceRegistry interface {
	Register(userID string, c Conn)
	Lookup(userID string) (Conn, bool)
	Unregister(c Conn) (string, bool)
	Snapshot() []string
}

// Registry 单进程在线表：user -> 最近一次连接（后连上的覆盖先前的）
type Registry struct {
	mu     sync.RWMutex
	byUser map[string]Conn   // user -> conn
	byConn map[string]string // conn_id -> user
}

func NewRegistry() *Registry {
	return &Registry{
		byUser: make(map[string]Conn),
		byConn: make(map[string]string),
	}
}

// Register records c as userID's connection, replacing any previous one.
func (r *Registry) Register(userID string, c Conn) {
	if userID == "" || c == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	// 同一条连接换了身份，先摘掉旧身份
	if prev, ok := r.byConn[c.ID()]; ok && prev != userID {
		if cur, ok := r.byUser[prev]; ok && cur.ID() == c.ID() {
			delete(r.byUser, prev)
		}
	}
	if old, ok := r.byUser[userID]; ok && old.ID() != c.ID() {
		delete(r.byConn, old.ID())
	}
	r.byUser[userID] = c
	r.byConn[c.ID()] = userID
}

func (r *Registry) Lookup(userID string) (Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byUser[userID]
	return c, ok
}

// Unregister removes the entry only if c is still the registered handle
// for its user. A connection that was superseded by a newer one leaves the
// newer mapping untouched.
func (r *Registry) Unregister(c Conn) (string, bool) {
	if c == nil {
		return "", false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	userID, ok := r.byConn[c.ID()]
	if !ok {
		return "", false
	}
	delete(r.byConn, c.ID())
	cur, ok := r.byUser[userID]
	if !ok || cur.ID() != c.ID() {
		return "", false
	}
	delete(r.byUser, userID)
	return userID, true
}

// Snapshot returns the registered user ids, sorted.
func (r *Registry) Snapshot() []string {
	r.mu.RLock()
	out := make([]string, 0, len(r.byUser))
	for u := range r.byUser {
		out = append(out, u)
	}
	r.mu.RUnlock()
	sort.Strings(out)
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser)
}
