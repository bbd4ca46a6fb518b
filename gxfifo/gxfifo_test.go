package gxfifo

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLowWatermarkFiresOnceOnCrossing(t *testing.T) {
	f := New()
	f.SetLowWatermark(10)

	fired := 0
	f.SetIRQLine(func() { fired++ })

	f.Push(20)
	f.Pop(5) // 15, still above watermark
	require.Equal(t, 0, fired)

	f.Pop(10) // 5, crosses below
	require.Equal(t, 1, fired)

	f.Pop(1) // stays below, no re-fire
	require.Equal(t, 1, fired)
}

func TestFullReportsAtCapacity(t *testing.T) {
	f := New()
	f.Push(1000)
	require.True(t, f.Full())
	require.Equal(t, 256, f.Count())
}

type countingWatcher struct{ n int }

func (c *countingWatcher) OnLowWatermark() { c.n++ }

func TestWatcherNotifiedOnCrossing(t *testing.T) {
	f := New()
	w := &countingWatcher{}
	f.SetWatcher(w)
	f.SetLowWatermark(128)

	f.Push(256)
	f.Pop(200)
	require.Equal(t, 1, w.n)
}
