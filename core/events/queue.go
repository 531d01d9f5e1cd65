package events

import (
	"sort"
	"time"
)

// Queue keeps pending events ordered by start time. Insertion is stable:
// events with equal start times are applied in arrival order.
type Queue struct {
	items []Event
}

// NewQueue builds a queue from the given events.
func NewQueue(evs ...Event) *Queue {
	q := &Queue{}
	q.Push(evs...)
	return q
}

// Push merges new events into the queue.
func (q *Queue) Push(evs ...Event) {
	q.items = append(q.items, evs...)
	sort.SliceStable(q.items, func(i, j int) bool {
		return q.items[i].StartTime().Before(q.items[j].StartTime())
	})
}

// PopDue removes and returns every event with start time at or before now,
// in queue order.
func (q *Queue) PopDue(now time.Time) []Event {
	n := 0
	for n < len(q.items) && !q.items[n].StartTime().After(now) {
		n++
	}
	due := q.items[:n]
	q.items = q.items[n:]
	return due
}

// Len returns the number of pending events.
func (q *Queue) Len() int { return len(q.items) }

// Snapshot returns a copy of the pending events for non-destructive
// look-ahead. Events themselves are immutable.
func (q *Queue) Snapshot() []Event {
	cp := make([]Event, len(q.items))
	copy(cp, q.items)
	return cp
}
