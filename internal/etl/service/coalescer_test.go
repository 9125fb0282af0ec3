package service

import (
	"sync"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoalescerQueuesWhileRunInFlight(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})

	var mu sync.Mutex
	var batches [][]snowflake.ID

	c := newCoalescer(func(ids []snowflake.ID) {
		mu.Lock()
		batches = append(batches, ids)
		first := len(batches) == 1
		mu.Unlock()
		if first {
			started <- struct{}{}
			<-release
		}
	})

	c.Trigger(5)
	<-started

	// Arrives mid-run, must land in a follow-up batch.
	c.Trigger(6)
	close(release)
	c.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, batches, 2)
	assert.Equal(t, []snowflake.ID{5}, batches[0])
	assert.Equal(t, []snowflake.ID{6}, batches[1])
}

func TestCoalescerDeduplicatesPending(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})

	var mu sync.Mutex
	var batches [][]snowflake.ID

	c := newCoalescer(func(ids []snowflake.ID) {
		mu.Lock()
		batches = append(batches, ids)
		first := len(batches) == 1
		mu.Unlock()
		if first {
			started <- struct{}{}
			<-release
		}
	})

	c.Trigger(1)
	<-started
	c.Trigger(2)
	c.Trigger(2, 3)
	c.Trigger(0) // ignored
	close(release)
	c.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, batches, 2)
	assert.ElementsMatch(t, []snowflake.ID{2, 3}, batches[1])
}

func TestCoalescerWaitReturnsWhenIdle(t *testing.T) {
	c := newCoalescer(func([]snowflake.ID) {})
	c.Wait()
	c.Trigger(9)
	c.Wait()
}
