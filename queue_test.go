package midisampler

import (
	"sync"
	"testing"
)

func TestEventQueueCapacity(t *testing.T) {
	var q eventQueue

	for i := 0; i < EventQueueCapacity-1; i++ {
		if !q.push(event{kind: eventNoteOn, note: uint8(i % 128)}) {
			t.Fatalf("Push %d failed before the queue was full", i)
		}
	}
	if q.push(event{kind: eventNoteOn}) {
		t.Error("Expected push into a full queue to fail")
	}
	if got := q.pending(); got != EventQueueCapacity-1 {
		t.Errorf("Expected %d pending events, got %d", EventQueueCapacity-1, got)
	}

	var e event
	if !q.pop(&e) {
		t.Fatal("Expected pop from a full queue to succeed")
	}
	if !q.push(event{kind: eventNoteOff}) {
		t.Error("Expected push to succeed after a pop freed a slot")
	}
}

func TestEventQueueEmpty(t *testing.T) {
	var q eventQueue
	var e event

	if q.pop(&e) {
		t.Error("Expected pop from an empty queue to fail")
	}
	if q.pending() != 0 {
		t.Errorf("Expected no pending events, got %d", q.pending())
	}
}

func TestEventQueueFIFO(t *testing.T) {
	var q eventQueue

	// wrap the ring a few times
	for round := 0; round < 3; round++ {
		for i := 0; i < 200; i++ {
			if !q.push(event{note: uint8(i % 128), velocity: uint8(round)}) {
				t.Fatalf("Push %d in round %d failed", i, round)
			}
		}
		var e event
		for i := 0; i < 200; i++ {
			if !q.pop(&e) {
				t.Fatalf("Pop %d in round %d failed", i, round)
			}
			if e.note != uint8(i%128) || e.velocity != uint8(round) {
				t.Fatalf("Round %d: expected note %d, got %d (round %d)", round, i%128, e.note, e.velocity)
			}
		}
	}
}

func TestEventQueuePopClearsInstrument(t *testing.T) {
	var q eventQueue
	inst := &Instrument{name: "ref"}

	q.push(event{instrument: inst})
	var e event
	q.pop(&e)

	if e.instrument != inst {
		t.Error("Expected popped event to carry the instrument")
	}
	if q.events[0].instrument != nil {
		t.Error("Expected slot to drop its instrument reference after pop")
	}
}

func TestEventQueueConcurrentProducers(t *testing.T) {
	var q eventQueue
	const producers = 4
	const perProducer = 50

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				for !q.push(event{velocity: uint8(p), note: uint8(i)}) {
				}
			}
		}(p)
	}
	wg.Wait()

	if got := q.pending(); got != producers*perProducer {
		t.Fatalf("Expected %d pending events, got %d", producers*perProducer, got)
	}

	next := make([]uint8, producers)
	var e event
	for q.pop(&e) {
		p := e.velocity
		if e.note != next[p] {
			t.Fatalf("Producer %d: expected note %d, got %d", p, next[p], e.note)
		}
		next[p]++
	}
	for p, n := range next {
		if n != perProducer {
			t.Errorf("Producer %d: expected %d events, got %d", p, perProducer, n)
		}
	}
}
