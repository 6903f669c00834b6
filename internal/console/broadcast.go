// Package console holds the output side of a supervised server: the replaying
// broadcast every viewer reads from, the rotating console log, command
// validation and history.
package console

import (
	"context"
	"io"
	"iter"
	"sync"
	"sync/atomic"
	"time"
)

// Stream identifies the pipe a line was read from.
type Stream string

const (
	StreamStdout Stream = "stdout"
	StreamStderr Stream = "stderr"
)

// Line is one line of process output.
type Line struct {
	Seq    uint64    `json:"seq"`
	Stream Stream    `json:"stream"`
	Text   string    `json:"text"`
	Time   time.Time `json:"time"`
}

type node struct {
	line Line
	next atomic.Pointer[node]
}

// Broadcast is a replaying multicast of output lines. Every reader first sees
// the retained history in production order, then live lines, and finishes
// once the broadcast is completed. Readers never block the producer or one
// another.
//
// Lines form a singly linked list whose next pointers are published
// atomically, so readers walk it without locks. Producers serialize on mu.
type Broadcast struct {
	limit int

	mu       sync.Mutex
	tail     *node
	retained int
	seq      uint64

	// head is a sentinel: head.next is the oldest retained line.
	head      atomic.Pointer[node]
	completed atomic.Bool
	changed   atomic.Pointer[chan struct{}]
}

// NewBroadcast creates a broadcast that keeps at most limit lines for late
// readers. A limit of zero keeps every line.
func NewBroadcast(limit int) *Broadcast {
	if limit < 0 {
		limit = 0
	}
	sentinel := &node{}
	b := &Broadcast{limit: limit, tail: sentinel}
	b.head.Store(sentinel)
	ch := make(chan struct{})
	b.changed.Store(&ch)
	return b
}

// Publish appends a line and wakes waiting readers. It returns false when the
// broadcast is already completed.
func (b *Broadcast) Publish(stream Stream, text string) (Line, bool) {
	b.mu.Lock()
	if b.completed.Load() {
		b.mu.Unlock()
		return Line{}, false
	}

	b.seq++
	n := &node{line: Line{Seq: b.seq, Stream: stream, Text: text, Time: time.Now()}}
	b.tail.next.Store(n)
	b.tail = n
	b.retained++
	if b.limit > 0 && b.retained > b.limit {
		// Readers already past the dropped node keep their own cursor.
		b.head.Store(b.head.Load().next.Load())
		b.retained--
	}
	b.notify()
	b.mu.Unlock()

	return n.line, true
}

// Complete marks the end of the stream. Readers finish after draining what
// was published before. Further calls and publishes are ignored.
func (b *Broadcast) Complete() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.completed.Swap(true) {
		return
	}
	b.notify()
}

// notify must be called with b.mu held.
func (b *Broadcast) notify() {
	ch := make(chan struct{})
	old := b.changed.Swap(&ch)
	close(*old)
}

func (b *Broadcast) Completed() bool {
	return b.completed.Load()
}

// Len returns the number of retained lines.
func (b *Broadcast) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.retained
}

// Snapshot returns the retained lines without waiting for more.
func (b *Broadcast) Snapshot() []Line {
	var lines []Line
	for n := b.head.Load().next.Load(); n != nil; n = n.next.Load() {
		lines = append(lines, n.line)
	}
	return lines
}

// NewReader returns a reader positioned before the oldest retained line.
func (b *Broadcast) NewReader() *Reader {
	return &Reader{b: b, cursor: b.head.Load()}
}

// Lines returns a lazy sequence of every retained line followed by live ones.
// The reader is attached when iteration starts. It ends when the broadcast
// completes, ctx is done, or the loop breaks.
func (b *Broadcast) Lines(ctx context.Context) iter.Seq[Line] {
	return func(yield func(Line) bool) {
		r := b.NewReader()
		for {
			line, err := r.Next(ctx)
			if err != nil || !yield(line) {
				return
			}
		}
	}
}

// Subscribe delivers the same sequence as Lines over a channel that is closed
// when it ends. Only the subscriber's own goroutine blocks on a slow receiver.
func (b *Broadcast) Subscribe(ctx context.Context, capacity int) <-chan Line {
	if capacity < 0 {
		capacity = 0
	}
	out := make(chan Line, capacity)
	r := b.NewReader()

	go func() {
		defer close(out)
		for {
			line, err := r.Next(ctx)
			if err != nil {
				return
			}
			select {
			case out <- line:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Reader is an independent cursor over a Broadcast. It is not safe for
// concurrent use; create one reader per consumer.
type Reader struct {
	b      *Broadcast
	cursor *node
}

// Next returns the next line, waiting for one if necessary. It returns io.EOF
// once the broadcast is completed and drained, or ctx.Err() when ctx ends.
func (r *Reader) Next(ctx context.Context) (Line, error) {
	for {
		if n := r.cursor.next.Load(); n != nil {
			r.cursor = n
			return n.line, nil
		}

		wait := *r.b.changed.Load()
		if r.cursor.next.Load() != nil {
			continue
		}
		if r.b.completed.Load() {
			return Line{}, io.EOF
		}

		select {
		case <-wait:
		case <-ctx.Done():
			return Line{}, ctx.Err()
		}
	}
}
