package blocklog

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/polymesh/meshview/internal/chain"
)

func block(n uint32) Block {
	var h chain.Hash
	h[0] = byte(n)
	h[1] = byte(n >> 8)
	return Block{Number: chain.BlockNumber(n), Hash: h}
}

func numbers(bs []Block) []uint32 {
	out := make([]uint32, len(bs))
	for i, b := range bs {
		out[i] = uint32(b.Number)
	}
	return out
}

func TestPushKeepsNewestFirst(t *testing.T) {
	l := New(5)
	for n := uint32(1); n <= 3; n++ {
		l.Push(block(n))
	}
	require.Equal(t, 3, l.Len())
	require.Equal(t, []uint32{3, 2, 1}, numbers(l.Range(0, l.Len())))

	latest, ok := l.Latest()
	require.True(t, ok)
	require.EqualValues(t, 3, latest.Number)
}

func TestPushEvictsOldest(t *testing.T) {
	l := New(3)
	for n := uint32(1); n <= 10; n++ {
		l.Push(block(n))
		require.LessOrEqual(t, l.Len(), l.Cap())
	}
	require.Equal(t, 3, l.Len())
	require.Equal(t, []uint32{10, 9, 8}, numbers(l.Range(0, 3)))
}

func TestDefaultCapacity(t *testing.T) {
	l := New(0)
	require.Equal(t, DefaultMax, l.Cap())
	for n := uint32(0); n < DefaultMax+25; n++ {
		l.Push(block(n))
	}
	require.Equal(t, DefaultMax, l.Len())
	require.EqualValues(t, DefaultMax+24, l.At(0).Number)
	require.EqualValues(t, 25, l.At(DefaultMax-1).Number)
}

func TestRangeClamps(t *testing.T) {
	l := New(10)
	for n := uint32(1); n <= 4; n++ {
		l.Push(block(n))
	}
	require.Equal(t, []uint32{3, 2}, numbers(l.Range(1, 3)))
	require.Equal(t, []uint32{4, 3, 2, 1}, numbers(l.Range(-2, 50)))
	require.Nil(t, l.Range(4, 8))
	require.Nil(t, l.Range(3, 1))
}

func TestAtOutOfRangePanics(t *testing.T) {
	l := New(2)
	l.Push(block(1))
	require.Panics(t, func() { l.At(1) })
	require.Panics(t, func() { l.At(-1) })
}

func TestReset(t *testing.T) {
	l := New(2)
	l.Push(block(1))
	l.Push(block(2))
	l.Reset()
	require.Zero(t, l.Len())
	_, ok := l.Latest()
	require.False(t, ok)

	l.Push(block(7))
	require.Equal(t, []uint32{7}, numbers(l.Range(0, 10)))
}

func TestFromHeader(t *testing.T) {
	h := &chain.Header{Number: 42}
	h.ParentHash[31] = 0xff
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	b := FromHeader(h, at)
	require.EqualValues(t, 42, b.Number)
	require.Equal(t, h.Hash(), b.Hash)
	require.Equal(t, h.ParentHash, b.ParentHash)
	require.Equal(t, at, b.ReceivedAt)

	s := b.String()
	require.True(t, strings.HasPrefix(s, "42: 0x"), s)
	require.Len(t, s, len("42: ")+66)
}

func TestIntervals(t *testing.T) {
	l := New(10)
	require.Nil(t, l.Intervals(5))

	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for i, gap := range []time.Duration{0, 6 * time.Second, 5 * time.Second, 7 * time.Second} {
		start = start.Add(gap)
		b := block(uint32(i))
		b.ReceivedAt = start
		l.Push(b)
	}
	require.Equal(t, []time.Duration{6 * time.Second, 5 * time.Second, 7 * time.Second}, l.Intervals(10))
	require.Equal(t, []time.Duration{5 * time.Second, 7 * time.Second}, l.Intervals(2))
}
