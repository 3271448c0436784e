package notify

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegistryRegisterAndLookup(t *testing.T) {
	r := NewRegistry()
	ch := NewChannel(&fakeConn{})
	t.Cleanup(ch.Close)

	require.Nil(t, r.Lookup("cid-1"))

	r.Register("cid-1", ch)
	require.Same(t, ch, r.Lookup("cid-1"))
	require.Nil(t, r.Lookup("cid-2"))
}

func TestRegistryLastRegistrationWins(t *testing.T) {
	r := NewRegistry()
	first := NewChannel(&fakeConn{})
	second := NewChannel(&fakeConn{})
	t.Cleanup(second.Close)

	r.Register("cid", first)
	r.Register("cid", second)

	require.True(t, first.Closed(), "superseded channel must be closed")
	require.Same(t, second, r.Lookup("cid"))
}

func TestRegistryUnregisterExactMatch(t *testing.T) {
	r := NewRegistry()
	stale := NewChannel(&fakeConn{})
	current := NewChannel(&fakeConn{})
	t.Cleanup(current.Close)

	r.Register("cid", stale)
	r.Register("cid", current)

	// The stale channel disconnects late; its unregister must not evict
	// the registration that superseded it.
	r.Unregister("cid", stale)
	require.Same(t, current, r.Lookup("cid"))

	r.Unregister("cid", current)
	require.Nil(t, r.Lookup("cid"))
	require.Zero(t, r.Len())
}

func TestRegistryLookupSkipsClosedChannel(t *testing.T) {
	r := NewRegistry()
	ch := NewChannel(&fakeConn{})

	r.Register("cid", ch)
	ch.Close()

	require.Nil(t, r.Lookup("cid"))
}

func TestRegistryCloseAll(t *testing.T) {
	r := NewRegistry()
	a := NewChannel(&fakeConn{})
	b := NewChannel(&fakeConn{})

	r.Register("a", a)
	r.Register("b", b)
	r.CloseAll()

	require.True(t, a.Closed())
	require.True(t, b.Closed())
	require.Zero(t, r.Len())
}

func TestRegistryConcurrentAccess(t *testing.T) {
	r := NewRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				ch := NewChannel(&fakeConn{})
				r.Register("shared", ch)
				r.Lookup("shared")
				r.Unregister("shared", ch)
				ch.Close()
			}
		}()
	}
	wg.Wait()

	if ch := r.Lookup("shared"); ch != nil {
		ch.Close()
	}
}
