package events

import "sync"

// Stream fans events out to subscribers. Publishing never blocks: a slow
// subscriber loses intermediate events, which is acceptable because every
// event type is a full snapshot.
type Stream struct {
	mu     sync.Mutex
	subs   map[int]chan Event
	nextID int
	closed bool
}

func NewStream() *Stream {
	return &Stream{subs: make(map[int]chan Event)}
}

// Subscribe returns a receive channel and an unsubscribe func.
func (s *Stream) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	ch := make(chan Event, buffer)
	if s.closed {
		close(ch)
		return ch, func() {}
	}
	s.subs[id] = ch
	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if sub, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(sub)
		}
	}
}

func (s *Stream) Publish(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	for _, ch := range s.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (s *Stream) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
}

// StatePusher is a single-subscriber, last-write-wins slot. A new snapshot
// replaces any unconsumed one, so the reader always sees current state.
type StatePusher struct {
	mu sync.Mutex
	ch chan Event
}

func NewStatePusher() *StatePusher {
	return &StatePusher{ch: make(chan Event, 1)}
}

func (p *StatePusher) Push(ev Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	select {
	case p.ch <- ev:
	default:
		// Drop the stale snapshot and replace it.
		select {
		case <-p.ch:
		default:
		}
		p.ch <- ev
	}
}

func (p *StatePusher) C() <-chan Event { return p.ch }
