package idle

import (
	"sort"
	"sync"
	"time"
)

// Timer is a scheduled callback that can be cancelled.
type Timer interface {
	// Stop cancels the callback; it reports whether the call prevented it from running.
	Stop() bool
}

// Scheduler runs callbacks after a delay.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type realScheduler struct{}

// RealScheduler schedules on the runtime timer.
func RealScheduler() Scheduler { return realScheduler{} }

func (realScheduler) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// FakeScheduler is a manually advanced Scheduler for tests.
type FakeScheduler struct {
	mu      sync.Mutex
	elapsed time.Duration
	seq     int
	timers  []*fakeTimer
}

type fakeTimer struct {
	s    *FakeScheduler
	at   time.Duration
	seq  int
	f    func()
	done bool
}

var _ Scheduler = (*FakeScheduler)(nil)

func (s *FakeScheduler) AfterFunc(d time.Duration, f func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	t := &fakeTimer{s: s, at: s.elapsed + d, seq: s.seq, f: f}
	s.timers = append(s.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if t.done {
		return false
	}
	t.done = true
	return true
}

// Advance moves time forward by d, running due callbacks in order. Callbacks
// run without the scheduler lock held and may schedule new timers.
func (s *FakeScheduler) Advance(d time.Duration) {
	s.mu.Lock()
	target := s.elapsed + d
	for {
		next := s.nextDue(target)
		if next == nil {
			break
		}
		next.done = true
		s.elapsed = next.at
		s.mu.Unlock()
		next.f()
		s.mu.Lock()
	}
	s.elapsed = target
	s.mu.Unlock()
}

// Pending returns the number of timers that have neither fired nor been stopped.
func (s *FakeScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.timers {
		if !t.done {
			n++
		}
	}
	return n
}

func (s *FakeScheduler) nextDue(target time.Duration) *fakeTimer {
	live := s.timers[:0]
	for _, t := range s.timers {
		if !t.done {
			live = append(live, t)
		}
	}
	s.timers = live
	sort.Slice(live, func(i, j int) bool {
		if live[i].at != live[j].at {
			return live[i].at < live[j].at
		}
		return live[i].seq < live[j].seq
	})
	if len(live) == 0 || live[0].at > target {
		return nil
	}
	return live[0]
}
