package hub

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flightmap/internal/store"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFanoutCoalesces(t *testing.T) {
	h := NewHub(discardLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	a := NewClient("a", 4)
	b := NewClient("b", 4)
	h.Register(a)
	h.Register(b)
	require.Eventually(t, func() bool { return h.ClientCount() == 2 }, time.Second, time.Millisecond)

	for v := uint64(1); v <= 5; v++ {
		h.SnapshotReplaced(&store.Snapshot{Version: v})
	}

	for _, c := range []*Client{a, b} {
		var last *store.Snapshot
		require.Eventually(t, func() bool {
			select {
			case snap := <-c.Reload:
				last = snap
			default:
			}
			return last != nil && last.Version == 5
		}, time.Second, time.Millisecond)
	}
}

func TestUnregisterClosesSend(t *testing.T) {
	h := NewHub(discardLogger())
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)

	a := NewClient("a", 1)
	h.Register(a)
	h.Unregister(a)

	select {
	case _, ok := <-a.Send:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("send channel not closed")
	}
	assert.Equal(t, 0, h.ClientCount())

	b := NewClient("b", 1)
	h.Register(b)
	require.Eventually(t, func() bool { return h.ClientCount() == 1 }, time.Second, time.Millisecond)
	cancel()

	select {
	case _, ok := <-b.Send:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("send channel not closed on shutdown")
	}
}

func TestClientNotifyKeepsNewest(t *testing.T) {
	c := NewClient("c", 1)
	c.notify(&store.Snapshot{Version: 1})
	c.notify(&store.Snapshot{Version: 2})

	snap := <-c.Reload
	assert.Equal(t, uint64(2), snap.Version)
	assert.Empty(t, c.Reload)
}

func TestEnqueueAfterClose(t *testing.T) {
	c := NewClient("c", 1)
	assert.True(t, c.Enqueue([]byte("a")))
	assert.False(t, c.Enqueue([]byte("b")), "buffer full")

	c.close()
	c.close()
	assert.False(t, c.Enqueue([]byte("c")))
}
