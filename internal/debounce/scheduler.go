// Package debounce decides when a note's accumulated edits are flushed.
//
// Every edited note has an idle counter. An edit resets it to zero; every
// tick increments it until it reaches the threshold, at which point the note
// is due for exactly one flush. A counter at the threshold is the resting
// state and is not ticked again until the next edit.
package debounce

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/starford/rplanner/internal/document"
)

// Defaults used when the configuration leaves them unset.
const (
	DefaultThreshold = 4
	DefaultPeriod    = time.Second
)

// Scheduler owns the idle counters of every edited note.
type Scheduler struct {
	mu        sync.Mutex
	threshold int
	ticks     map[document.NoteID]int
}

// New returns a scheduler that flushes after threshold idle ticks.
func New(threshold int) *Scheduler {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Scheduler{threshold: threshold, ticks: map[document.NoteID]int{}}
}

// Threshold returns the number of idle ticks before a flush.
func (s *Scheduler) Threshold() int { return s.threshold }

// Edit records an edit, creating the note's counter on its first edit.
func (s *Scheduler) Edit(id document.NoteID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ticks[id] = 0
}

// Tick advances every counter below the threshold and returns, sorted, the
// notes whose counter just reached it.
func (s *Scheduler) Tick() []document.NoteID {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []document.NoteID
	for id, n := range s.ticks {
		if n >= s.threshold {
			continue
		}
		n++
		s.ticks[id] = n
		if n == s.threshold {
			due = append(due, id)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i] < due[j] })
	return due
}

// Pending reports whether the note has edits that are not yet due or flushed.
func (s *Scheduler) Pending(id document.NoteID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.ticks[id]
	return ok && n < s.threshold
}

// Settle moves a tracked note to the resting state, for use after it was
// flushed outside the tick cycle.
func (s *Scheduler) Settle(id document.NoteID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ticks[id]; ok {
		s.ticks[id] = s.threshold
	}
}

// Forget drops the note's counter.
func (s *Scheduler) Forget(id document.NoteID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.ticks, id)
}

// Reset drops every counter.
func (s *Scheduler) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.ticks)
}

// Len returns the number of tracked notes.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ticks)
}

// Run calls Tick every period until ctx is done and hands non-empty results
// to fn.
func (s *Scheduler) Run(ctx context.Context, period time.Duration, fn func([]document.NoteID)) {
	if period <= 0 {
		period = DefaultPeriod
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if due := s.Tick(); len(due) > 0 {
				fn(due)
			}
		}
	}
}
