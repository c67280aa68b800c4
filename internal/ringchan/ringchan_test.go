package ringchan

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buffered returns what is queued right now without blocking
func buffered[T any](rc *RingChannel[T]) []T {
	var out []T
	for {
		select {
		case v, ok := <-rc.C():
			if !ok {
				return out
			}
			out = append(out, v)
		default:
			return out
		}
	}
}

func TestForceSendOverwritesOldest(t *testing.T) {
	rc := New[int](3)
	var overwrites int
	for i := 1; i <= 5; i++ {
		overwritten, err := rc.ForceSend(i)
		require.NoError(t, err)
		if overwritten {
			overwrites++
		}
	}
	assert.Equal(t, 2, overwrites)
	assert.Equal(t, 3, rc.Len())
	assert.Equal(t, 3, rc.Cap())

	assert.Equal(t, []int{3, 4, 5}, buffered(rc))

	m := rc.GetMetrics()
	assert.Equal(t, int64(5), m.Written)
	assert.Equal(t, int64(2), m.Overwritten)
	assert.Zero(t, m.Errors)
}

func TestForceSendWithRoomDoesNotReportOverwrite(t *testing.T) {
	rc := New[string](2)
	overwritten, err := rc.ForceSend("a")
	require.NoError(t, err)
	assert.False(t, overwritten)
}

func TestCloseIsIdempotentAndRejectsLateSends(t *testing.T) {
	rc := New[int](2)
	_, err := rc.ForceSend(1)
	require.NoError(t, err)
	rc.Close()
	rc.Close()

	overwritten, err := rc.ForceSend(2)
	assert.ErrorIs(t, err, ErrClosed)
	assert.False(t, overwritten, "a late send is not an overwrite")

	assert.Equal(t, []int{1}, buffered(rc))
	_, ok := <-rc.C()
	assert.False(t, ok)

	m := rc.GetMetrics()
	assert.Equal(t, int64(1), m.Errors)
	assert.Zero(t, m.Overwritten)
}

func TestConcurrentProducersNeverBlock(t *testing.T) {
	rc := New[int](8)
	var wg sync.WaitGroup
	for p := 0; p < 4; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				_, _ = rc.ForceSend(i)
			}
		}()
	}
	wg.Wait()

	m := rc.GetMetrics()
	assert.Equal(t, int64(4000), m.Written)
	assert.Equal(t, int64(4000-8), m.Overwritten)
	assert.Equal(t, 8, rc.Len())
}

func TestNewPanicsOnZeroCapacity(t *testing.T) {
	assert.Panics(t, func() { New[int](0) })
}
