package buffer

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/visionflow/metric"
)

func TestCircularBuffer_FIFO(t *testing.T) {
	buf, err := NewCircularBuffer[int](3)
	require.NoError(t, err)

	for i := 1; i <= 3; i++ {
		require.NoError(t, buf.Write(i))
	}
	assert.True(t, buf.IsFull())

	head, ok := buf.Peek()
	require.True(t, ok)
	assert.Equal(t, 1, head)

	for i := 1; i <= 3; i++ {
		v, ok := buf.Read()
		require.True(t, ok)
		assert.Equal(t, i, v)
	}
	_, ok = buf.Read()
	assert.False(t, ok)
	assert.True(t, buf.IsEmpty())
}

func TestCircularBuffer_OverflowPolicies(t *testing.T) {
	tests := []struct {
		name     string
		policy   OverflowPolicy
		wantErr  error
		wantHead int
		wantSize int
		drops    int64
	}{
		{"reject", Reject, ErrBufferFull, 1, 2, 0},
		{"drop oldest", DropOldest, nil, 2, 2, 1},
		{"drop newest", DropNewest, nil, 1, 2, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var dropped []int
			buf, err := NewCircularBuffer[int](2,
				WithOverflowPolicy[int](tt.policy),
				WithDropCallback[int](func(item int) { dropped = append(dropped, item) }),
			)
			require.NoError(t, err)

			require.NoError(t, buf.Write(1))
			require.NoError(t, buf.Write(2))

			err = buf.Write(3)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}

			head, _ := buf.Peek()
			assert.Equal(t, tt.wantHead, head)
			assert.Equal(t, tt.wantSize, buf.Size())
			assert.Equal(t, tt.drops, buf.Stats().Drops())
			assert.Equal(t, int64(1), buf.Stats().Overflows())
			assert.Len(t, dropped, int(tt.drops))
		})
	}
}

func TestCircularBuffer_ClearAndClose(t *testing.T) {
	var dropped []string
	buf, err := NewCircularBuffer[string](4, WithDropCallback[string](func(s string) {
		dropped = append(dropped, s)
	}))
	require.NoError(t, err)

	require.NoError(t, buf.Write("a"))
	require.NoError(t, buf.Write("b"))
	buf.Clear()

	assert.Equal(t, []string{"a", "b"}, dropped)
	assert.True(t, buf.IsEmpty())

	require.NoError(t, buf.Close())
	assert.ErrorIs(t, buf.Write("c"), ErrBufferClosed)
}

func TestCircularBuffer_Statistics(t *testing.T) {
	buf, err := NewCircularBuffer[int](2)
	require.NoError(t, err)

	_ = buf.Write(1)
	_ = buf.Write(2)
	_ = buf.Write(3)
	_, _ = buf.Read()

	summary := buf.Stats().Summary()
	assert.Equal(t, int64(2), summary.Writes)
	assert.Equal(t, int64(1), summary.Reads)
	assert.Equal(t, int64(1), summary.Rejects)
	assert.Equal(t, int64(2), summary.MaxSize)
	assert.Equal(t, int64(1), summary.Size)
}

func TestCircularBuffer_Metrics(t *testing.T) {
	registry := metric.NewMetricsRegistry()

	buf, err := NewCircularBuffer[int](2, WithMetrics[int](registry, "cam.image"))
	require.NoError(t, err)

	cb := buf.(*circularBuffer[int])
	require.NotNil(t, cb.metrics)

	_ = buf.Write(1)
	_ = buf.Write(2)
	_ = buf.Write(3)

	assert.Equal(t, 2.0, testutil.ToFloat64(cb.metrics.writes))
	assert.Equal(t, 1.0, testutil.ToFloat64(cb.metrics.overflows))
	assert.Equal(t, 1.0, testutil.ToFloat64(cb.metrics.utilization))

	_, err = NewCircularBuffer[int](2, WithMetrics[int](registry, "cam.image"))
	assert.Error(t, err)
}

func TestParseOverflowPolicy(t *testing.T) {
	p, err := ParseOverflowPolicy("latest")
	require.NoError(t, err)
	assert.Equal(t, DropOldest, p)

	p, err = ParseOverflowPolicy("")
	require.NoError(t, err)
	assert.Equal(t, Reject, p)

	_, err = ParseOverflowPolicy("sometimes")
	assert.Error(t, err)
}
