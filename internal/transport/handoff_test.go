package transport

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandoff_OverwritesPendingItem(t *testing.T) {
	t.Parallel()

	h := NewHandoff[string]()
	assert.False(t, h.Offer("A"))
	assert.True(t, h.Offer("B"))

	got, err := h.Take(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "B", got)

	// Nothing else is pending.
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = h.Take(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	assert.Equal(t, uint64(2), h.Offered())
	assert.Equal(t, uint64(1), h.Dropped())
}

func TestHandoff_TakeBlocksUntilOffer(t *testing.T) {
	t.Parallel()

	h := NewHandoff[int]()
	got := make(chan int, 1)
	go func() {
		v, err := h.Take(context.Background())
		if err == nil {
			got <- v
		}
	}()

	select {
	case <-got:
		t.Fatal("Take returned before Offer")
	case <-time.After(20 * time.Millisecond):
	}

	h.Offer(42)
	select {
	case v := <-got:
		assert.Equal(t, 42, v)
	case <-time.After(time.Second):
		t.Fatal("Take did not return after Offer")
	}
}

func TestHandoff_TakeCancelled(t *testing.T) {
	t.Parallel()

	h := NewHandoff[int]()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.Take(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestHandoff_ConcurrentOffersNeverBlock(t *testing.T) {
	t.Parallel()

	h := NewHandoff[int]()
	const producers, perProducer = 8, 500

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var taken sync.WaitGroup
	taken.Add(1)
	received := 0
	go func() {
		defer taken.Done()
		for {
			if _, err := h.Take(ctx); err != nil {
				return
			}
			received++
		}
	}()

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				h.Offer(p*perProducer + i)
			}
		}(p)
	}

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("producers blocked")
	}

	cancel()
	taken.Wait()

	// Every offer is either delivered, dropped or still in the slot.
	offered := h.Offered()
	assert.Equal(t, uint64(producers*perProducer), offered)
	pending := uint64(len(h.slot))
	assert.Equal(t, offered, uint64(received)+h.Dropped()+pending)
}
