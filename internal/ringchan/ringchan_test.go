package ringchan

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingChannel_ForceSendOverwritesOldest(t *testing.T) {
	rc := New[int](3)

	for i := 0; i < 10; i++ {
		rc.ForceSend(i)
	}
	rc.Close()

	var got []int
	for v := range rc.C() {
		got = append(got, v)
	}

	assert.Equal(t, []int{7, 8, 9}, got, "only the newest values MUST survive")
	m := rc.GetMetrics()
	assert.Equal(t, int64(10), m.Written)
	assert.Equal(t, int64(7), m.Overwritten)
}

func TestRingChannel_ForceSendReportsDrop(t *testing.T) {
	rc := New[string](1)

	assert.False(t, rc.ForceSend("a"), "first send MUST NOT drop")
	assert.True(t, rc.ForceSend("b"), "second send MUST drop the oldest")

	v, ok := rc.TryReceive()
	require.True(t, ok)
	assert.Equal(t, "b", v)
	assert.Equal(t, int64(1), rc.GetMetrics().Processed)
}

func TestRingChannel_TrySend(t *testing.T) {
	rc := New[int](1)

	assert.True(t, rc.TrySend(1))
	assert.False(t, rc.TrySend(2), "full buffer MUST reject")
	assert.Equal(t, 1, rc.Len())
	assert.Equal(t, 1, rc.Cap())
}

func TestRingChannel_SendAfterClose(t *testing.T) {
	rc := New[int](2)
	rc.Close()
	rc.Close() // second close is a no-op

	assert.NotPanics(t, func() {
		assert.False(t, rc.ForceSend(1))
		assert.False(t, rc.TrySend(1))
	})
	assert.Equal(t, int64(2), rc.GetMetrics().Errors)

	_, ok := rc.Receive()
	assert.False(t, ok, "closed channel MUST report !ok")
}

func TestRingChannel_ConcurrentProducers(t *testing.T) {
	rc := New[int](4)

	var wg sync.WaitGroup
	for p := 0; p < 8; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				rc.ForceSend(i)
			}
		}()
	}
	wg.Wait()

	m := rc.GetMetrics()
	assert.Equal(t, int64(8000), m.Written)
	assert.Equal(t, int64(8000-rc.Len()), m.Overwritten, "every write MUST be either buffered or overwritten")
	assert.LessOrEqual(t, rc.Len(), 4)
}

func TestNew_PanicsOnZeroCapacity(t *testing.T) {
	assert.Panics(t, func() { New[int](0) })
}
