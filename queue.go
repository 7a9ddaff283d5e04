package midisampler

import (
	"sync"
	"sync/atomic"

	"golang.org/x/sys/cpu"
)

// EventQueueCapacity is the number of slots in the note event ring. One slot
// always stays empty, so at most EventQueueCapacity-1 events can be pending.
const EventQueueCapacity = 256

type eventKind uint8

const (
	eventNoteOn eventKind = iota
	eventNoteOff
)

// event is a fixed-size value copied through the ring. The instrument
// pointer is a plain reference, the queue never owns it.
type event struct {
	kind       eventKind
	note       uint8
	velocity   uint8
	id         VoiceID
	instrument *Instrument
}

// eventQueue is a bounded ring between control goroutines and the render
// goroutine. Producers publish the write index after filling the slot; the
// consumer observes it before reading, so a popped slot is always complete.
// Go atomics are sequentially consistent, which covers the acquire/release
// pairing the ring relies on.
//
// Any number of goroutines may push: producers serialize on pushMu among
// themselves. The single consumer (Sampler.Process) never takes the lock.
type eventQueue struct {
	write atomic.Uint32
	_     cpu.CacheLinePad
	read  atomic.Uint32
	_     cpu.CacheLinePad

	pushMu sync.Mutex
	events [EventQueueCapacity]event
}

// push appends e, or reports false when the ring is full.
func (q *eventQueue) push(e event) bool {
	q.pushMu.Lock()
	defer q.pushMu.Unlock()

	w := q.write.Load()
	next := (w + 1) % EventQueueCapacity
	if next == q.read.Load() {
		return false
	}
	q.events[w] = e
	q.write.Store(next)
	return true
}

// pop removes the oldest event. Only the render goroutine may call it.
func (q *eventQueue) pop(e *event) bool {
	r := q.read.Load()
	if r == q.write.Load() {
		return false
	}
	*e = q.events[r]
	q.events[r].instrument = nil
	q.read.Store((r + 1) % EventQueueCapacity)
	return true
}

// pending returns the number of queued events. The value is a snapshot.
func (q *eventQueue) pending() int {
	w := q.write.Load()
	r := q.read.Load()
	return int((w + EventQueueCapacity - r) % EventQueueCapacity)
}
