// Package blocklog keeps the most recent blocks seen by the UI, newest first.
package blocklog

import (
	"fmt"
	"time"

	"github.com/polymesh/meshview/internal/chain"
)

// DefaultMax is the number of blocks retained when no limit is configured.
const DefaultMax = 1000

// Block is the display form of a header.
type Block struct {
	Number     chain.BlockNumber
	Hash       chain.Hash
	ParentHash chain.Hash
	ReceivedAt time.Time
}

// FromHeader hashes h and stamps it with the receive time.
func FromHeader(h *chain.Header, at time.Time) Block {
	return Block{
		Number:     h.Number,
		Hash:       h.Hash(),
		ParentHash: h.ParentHash,
		ReceivedAt: at,
	}
}

func (b Block) String() string { return fmt.Sprintf("%d: %s", b.Number, b.Hash) }

// Log is a fixed-capacity ring. It is not safe for concurrent use; the UI
// loop owns it.
type Log struct {
	buf  []Block
	head int
	n    int
}

// New returns a log holding at most limit blocks.
func New(limit int) *Log {
	if limit <= 0 {
		limit = DefaultMax
	}
	return &Log{buf: make([]Block, limit)}
}

// Push inserts b as the newest block, evicting the oldest when full.
func (l *Log) Push(b Block) {
	l.head = (l.head - 1 + len(l.buf)) % len(l.buf)
	l.buf[l.head] = b
	if l.n < len(l.buf) {
		l.n++
	}
}

func (l *Log) Len() int { return l.n }

func (l *Log) Cap() int { return len(l.buf) }

// At returns the i-th newest block; 0 is the latest.
func (l *Log) At(i int) Block {
	if i < 0 || i >= l.n {
		panic(fmt.Sprintf("blocklog: index %d out of range [0,%d)", i, l.n))
	}
	return l.buf[(l.head+i)%len(l.buf)]
}

// Range copies blocks [lo, hi) in newest-first order, clamped to the log.
func (l *Log) Range(lo, hi int) []Block {
	if lo < 0 {
		lo = 0
	}
	if hi > l.n {
		hi = l.n
	}
	if lo >= hi {
		return nil
	}
	out := make([]Block, 0, hi-lo)
	for i := lo; i < hi; i++ {
		out = append(out, l.At(i))
	}
	return out
}

// Latest returns the newest block.
func (l *Log) Latest() (Block, bool) {
	if l.n == 0 {
		return Block{}, false
	}
	return l.At(0), true
}

// Intervals returns the receive gaps between the newest n+1 blocks, oldest
// gap first.
func (l *Log) Intervals(n int) []time.Duration {
	recent := l.Range(0, n+1)
	if len(recent) < 2 {
		return nil
	}
	out := make([]time.Duration, 0, len(recent)-1)
	for i := len(recent) - 1; i > 0; i-- {
		out = append(out, recent[i-1].ReceivedAt.Sub(recent[i].ReceivedAt))
	}
	return out
}

// Reset drops every block.
func (l *Log) Reset() {
	clear(l.buf)
	l.head, l.n = 0, 0
}
