package chat

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegistryLastConnectionWins(t *testing.T) {
	r := NewRegistry()
	c1, c2 := newFakeConn("c1"), newFakeConn("c2")

	r.Register("u1", c1)
	r.Register("u1", c2)
	got, ok := r.Lookup("u1")
	require.True(t, ok)
	require.Equal(t, "c2", got.ID())

	// 旧连接断开不能把新连接踢掉
	_, removed := r.Unregister(c1)
	require.False(t, removed)
	got, ok = r.Lookup("u1")
	require.True(t, ok)
	require.Equal(t, "c2", got.ID())

	user, removed := r.Unregister(c2)
	require.True(t, removed)
	require.Equal(t, "u1", user)
	_, ok = r.Lookup("u1")
	require.False(t, ok)
}

func TestRegistryUnregisterUnknown(t *testing.T) {
	r := NewRegistry()
	_, removed := r.Unregister(newFakeConn("nope"))
	require.False(t, removed)
	_, removed = r.Unregister(nil)
	require.False(t, removed)
}

func TestRegistrySnapshotSorted(t *testing.T) {
	r := NewRegistry()
	r.Register("b", newFakeConn("1"))
	r.Register("a", newFakeConn("2"))
	r.Register("", newFakeConn("3"))
	require.Equal(t, []string{"a", "b"}, r.Snapshot())
	require.Equal(t, 2, r.Len())
}

func TestRegistryConcurrent(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c := newFakeConn(fmt.Sprintf("c%d", i))
			u := fmt.Sprintf("u%d", i%10)
			r.Register(u, c)
			_, _ = r.Lookup(u)
			_ = r.Snapshot()
			r.Unregister(c)
		}(i)
	}
	wg.Wait()
	for _, u := range r.Snapshot() {
		c, ok := r.Lookup(u)
		require.True(t, ok)
		require.NotNil(t, c)
	}
}
