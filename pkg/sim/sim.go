package sim

import (
	"container/heap"
	"time"

	"github.com/projectdiscovery/gologger"
)

// EventID identifies a scheduled event. The zero value never matches a
// scheduled event and is safe to cancel or query.
type EventID uint64

// Simulator is a single-threaded discrete-event scheduler driven by virtual
// time. Events fire in nondecreasing due-time order; events due at the same
// instant fire in scheduling order. It is not safe for concurrent use: all
// interaction happens from the goroutine that calls Run.
type Simulator struct {
	now     time.Duration
	queue   eventQueue
	pending map[EventID]*event
	nextID  EventID
	running bool
}

type event struct {
	id        EventID
	due       time.Duration
	seq       uint64
	fn        func()
	cancelled bool
}

// New creates a simulator with the clock at zero.
func New() *Simulator {
	return &Simulator{
		pending: make(map[EventID]*event),
	}
}

// Now returns the current virtual time as an offset from simulation start.
func (s *Simulator) Now() time.Duration {
	return s.now
}

// Len returns the number of pending (not yet fired, not cancelled) events.
func (s *Simulator) Len() int {
	return len(s.pending)
}

// Schedule registers fn to run after delay of virtual time and returns its
// event ID. A zero delay fires on the current instant, after any events
// already due. Negative delays are a programming error.
func (s *Simulator) Schedule(delay time.Duration, fn func()) EventID {
	if delay < 0 {
		panic("sim: negative delay")
	}
	if fn == nil {
		panic("sim: nil event callback")
	}
	s.nextID++
	ev := &event{
		id:  s.nextID,
		due: s.now + delay,
		seq: uint64(s.nextID),
		fn:  fn,
	}
	heap.Push(&s.queue, ev)
	s.pending[ev.id] = ev
	return ev.id
}

// Cancel removes a pending event. Cancelling an event that already fired,
// was already cancelled, or never existed is a no-op.
func (s *Simulator) Cancel(id EventID) {
	ev, ok := s.pending[id]
	if !ok {
		return
	}
	ev.cancelled = true
	delete(s.pending, id)
}

// IsPending reports whether the event is scheduled and has not yet fired.
func (s *Simulator) IsPending(id EventID) bool {
	_, ok := s.pending[id]
	return ok
}

// Run dispatches events until the queue is empty, advancing the clock to
// each event's due time. Callbacks may schedule further events.
func (s *Simulator) Run() {
	s.running = true
	for s.running {
		ev := s.pop()
		if ev == nil {
			break
		}
		s.now = ev.due
		ev.fn()
	}
	s.running = false
}

// RunUntil dispatches every event due at or before t, then advances the
// clock to t. Events due after t remain pending.
func (s *Simulator) RunUntil(t time.Duration) {
	if t < s.now {
		gologger.Warning().Msgf("sim: RunUntil(%s) is in the past (now %s)", t, s.now)
		return
	}
	s.running = true
	for s.running {
		ev := s.peek()
		if ev == nil || ev.due > t {
			break
		}
		heap.Pop(&s.queue)
		delete(s.pending, ev.id)
		s.now = ev.due
		ev.fn()
	}
	s.running = false
	s.now = t
}

// Stop makes the current Run or RunUntil return after the executing
// callback completes. Pending events are kept.
func (s *Simulator) Stop() {
	s.running = false
}

// pop returns the next live event, discarding cancelled ones.
func (s *Simulator) pop() *event {
	for s.queue.Len() > 0 {
		ev := heap.Pop(&s.queue).(*event)
		if ev.cancelled {
			continue
		}
		delete(s.pending, ev.id)
		return ev
	}
	return nil
}

// peek returns the next live event without removing it.
func (s *Simulator) peek() *event {
	for s.queue.Len() > 0 {
		ev := s.queue[0]
		if !ev.cancelled {
			return ev
		}
		heap.Pop(&s.queue)
	}
	return nil
}

// eventQueue is a min-heap ordered by due time, then scheduling order.
type eventQueue []*event

func (q eventQueue) Len() int { return len(q) }

func (q eventQueue) Less(i, j int) bool {
	if q[i].due != q[j].due {
		return q[i].due < q[j].due
	}
	return q[i].seq < q[j].seq
}

func (q eventQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *eventQueue) Push(x any) { *q = append(*q, x.(*event)) }

func (q *eventQueue) Pop() any {
	old := *q
	n := len(old)
	ev := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return ev
}
