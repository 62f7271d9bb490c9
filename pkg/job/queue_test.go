package job

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue_FIFO(t *testing.T) {
	q := NewQueue()
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, q.Put(id))
	}
	assert.Equal(t, 3, q.Len())

	for _, want := range []string{"a", "b", "c"} {
		got, err := q.Get()
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestQueue_GetBlocksUntilPut(t *testing.T) {
	q := NewQueue()
	got := make(chan string, 1)

	go func() {
		id, err := q.Get()
		if err == nil {
			got <- id
		}
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, q.Put("x"))

	select {
	case id := <-got:
		assert.Equal(t, "x", id)
	case <-time.After(time.Second):
		t.Fatal("Get did not wake up after Put")
	}
}

func TestQueue_JoinWaitsForTaskDone(t *testing.T) {
	q := NewQueue()
	require.NoError(t, q.Put("a"))
	require.NoError(t, q.Put("b"))

	joined := make(chan struct{})
	go func() {
		q.Join()
		close(joined)
	}()

	for i := 0; i < 2; i++ {
		_, err := q.Get()
		require.NoError(t, err)

		select {
		case <-joined:
			t.Fatal("Join returned before all TaskDone calls")
		case <-time.After(10 * time.Millisecond):
		}
		q.TaskDone()
	}

	select {
	case <-joined:
	case <-time.After(time.Second):
		t.Fatal("Join did not return after final TaskDone")
	}
}

func TestQueue_CloseWakesConsumers(t *testing.T) {
	q := NewQueue()

	var wg sync.WaitGroup
	errs := make(chan error, 3)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := q.Get()
			errs <- err
		}()
	}

	time.Sleep(20 * time.Millisecond)
	q.Close()
	wg.Wait()

	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, <-errs, ErrQueueClosed)
	}

	assert.ErrorIs(t, q.Put("late"), ErrQueueClosed)
}

func TestQueue_DrainsBeforeClosedError(t *testing.T) {
	q := NewQueue()
	require.NoError(t, q.Put("a"))
	q.Close()

	// Items already queued are still delivered after Close.
	id, err := q.Get()
	require.NoError(t, err)
	assert.Equal(t, "a", id)

	_, err = q.Get()
	assert.ErrorIs(t, err, ErrQueueClosed)
}

func TestQueue_TaskDonePanicsWhenUnbalanced(t *testing.T) {
	q := NewQueue()
	assert.Panics(t, func() { q.TaskDone() })
}

func TestQueue_ConcurrentProducersConsumers(t *testing.T) {
	q := NewQueue()
	const producers, perProducer = 4, 25

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				_ = q.Put("job")
			}
		}()
	}

	seen := make(chan string, producers*perProducer)
	for c := 0; c < 3; c++ {
		go func() {
			for {
				id, err := q.Get()
				if err != nil {
					return
				}
				seen <- id
				q.TaskDone()
			}
		}()
	}

	wg.Wait()
	q.Join()
	q.Close()
	assert.Len(t, seen, producers*perProducer)
}
