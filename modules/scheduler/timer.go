package scheduler

import (
	"container/heap"
	"errors"
	"runtime/debug"
	"sort"
	"time"

	"github.com/Deepreo/kronos/core"
	"github.com/jonboulle/clockwork"
)

// hint tells the timer loop that name may be due at at. Hints are advisory:
// the registry entry decides whether the fire still applies. missed marks a
// fire time that passed while the job or the scheduler was not firing.
type hint struct {
	name   string
	at     time.Time
	missed bool
}

// hintQueue is a min-heap ordered by fire time, then name.
type hintQueue []hint

func (q hintQueue) Len() int { return len(q) }

func (q hintQueue) Less(i, j int) bool {
	if q[i].at.Equal(q[j].at) {
		return q[i].name < q[j].name
	}
	return q[i].at.Before(q[j].at)
}

func (q hintQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *hintQueue) Push(x any) { *q = append(*q, x.(hint)) }

func (q *hintQueue) Pop() any {
	old := *q
	n := len(old)
	h := old[n-1]
	*q = old[:n-1]
	return h
}

var errStaleHint = errors.New("stale hint")

func (s *InMemoryScheduler) pushHint(name string, at time.Time) {
	s.addHint(name, at)
	s.wakeLoop()
}

func (s *InMemoryScheduler) addHint(name string, at time.Time) {
	s.hintMu.Lock()
	defer s.hintMu.Unlock()
	heap.Push(&s.hints, hint{name: name, at: at})
}

// pushResumed queues the next fire time of a job that starts firing again.
// A time that already passed is a misfire.
func (s *InMemoryScheduler) pushResumed(name string, at time.Time) {
	s.hintMu.Lock()
	heap.Push(&s.hints, hint{name: name, at: at, missed: at.Before(s.clock.Now())})
	s.hintMu.Unlock()
	s.wakeLoop()
}

// markMissed flags every queued fire time before now. Ordering is unchanged.
func (s *InMemoryScheduler) markMissed(now time.Time) {
	s.hintMu.Lock()
	defer s.hintMu.Unlock()
	for i := range s.hints {
		if s.hints[i].at.Before(now) {
			s.hints[i].missed = true
		}
	}
}

func (s *InMemoryScheduler) wakeLoop() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// popDue removes every hint due at or before now and returns them ordered by name.
func (s *InMemoryScheduler) popDue(now time.Time) []hint {
	s.hintMu.Lock()
	var due []hint
	for s.hints.Len() > 0 && !s.hints[0].at.After(now) {
		due = append(due, heap.Pop(&s.hints).(hint))
	}
	s.hintMu.Unlock()

	sort.SliceStable(due, func(i, j int) bool { return due[i].name < due[j].name })
	return due
}

func (s *InMemoryScheduler) nextHint() (time.Time, bool) {
	s.hintMu.Lock()
	defer s.hintMu.Unlock()
	if s.hints.Len() == 0 {
		return time.Time{}, false
	}
	return s.hints[0].at, true
}

func (s *InMemoryScheduler) loop() {
	defer close(s.loopDone)
	for {
		// Everything pushed so far is covered by the pass below.
		select {
		case <-s.wake:
		default:
		}

		var timer clockwork.Timer
		var timerCh <-chan time.Time
		if s.State() == core.StateRunning {
			s.processDue(s.clock.Now())

			if at, ok := s.nextHint(); ok {
				wait := at.Sub(s.clock.Now())
				if wait <= 0 {
					continue
				}
				timer = s.clock.NewTimer(wait)
				timerCh = timer.Chan()
			}
		}

		select {
		case <-s.loopStop:
			if timer != nil {
				timer.Stop()
			}
			return
		case <-s.wake:
		case <-timerCh:
		}
		if timer != nil {
			timer.Stop()
		}
	}
}

func (s *InMemoryScheduler) processDue(now time.Time) {
	for _, h := range s.popDue(now) {
		s.fire(h, now)
	}
}

// fire advances the entry behind h and dispatches it. Panics are logged so a
// broken trigger cannot stop the loop.
//
// h is a misfire when it was missed, when it is older than the misfire
// threshold, or when a later occurrence is already due. A misfire applies the
// policy once and continues from the first occurrence after now.
func (s *InMemoryScheduler) fire(h hint, now time.Time) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("timer loop recovered from panic", "job", h.name, "panic", r, "stack", string(debug.Stack()))
		}
	}()

	var (
		entry    core.ScheduleEntry
		fire     bool
		misfired bool
		firedAt  time.Time
	)
	err := s.registry.Update(h.name, func(e *core.ScheduleEntry) error {
		if e.State != core.JobActive || !e.Trigger.NextFireTime.Equal(h.at) {
			return errStaleHint
		}

		firedAt = h.at
		fire = true
		if s.isMisfire(h, e.Trigger, now) {
			misfired = true
			firedAt = now
			fire = e.Trigger.Misfire == core.MisfireFireNow
		}

		next, ok := e.Trigger.Next(firedAt)
		if !ok {
			next = time.Time{}
		}
		e.Trigger.NextFireTime = next
		if fire {
			e.Trigger.PreviousFireTime = firedAt
		}
		entry = *e
		return nil
	})
	if err != nil {
		// Removed, paused or rescheduled since the hint was pushed.
		return
	}

	name, group := entry.Descriptor.Name, entry.Descriptor.Group
	if misfired {
		s.logger.Warn("job misfired", "job", name, "group", group, "scheduled_at", h.at, "policy", entry.Trigger.Misfire)
		s.publish(&core.JobMisfired{
			ScheduleEvent: s.baseEvent(name, group),
			ScheduledAt:   h.at,
			Policy:        entry.Trigger.Misfire,
		})
	}

	if entry.Trigger.MayFireAgain() {
		s.addHint(name, entry.Trigger.NextFireTime)
	} else {
		s.logger.Info("trigger will not fire again", "job", name, "group", group, "cron", entry.Trigger.Expression)
	}

	if fire {
		s.dispatch(entry, h.at, false)
	}
}

func (s *InMemoryScheduler) isMisfire(h hint, trigger core.Trigger, now time.Time) bool {
	if !h.at.Before(now) {
		return false
	}
	if h.missed || now.Sub(h.at) > s.misfireThreshold {
		return true
	}
	next, ok := trigger.Next(h.at)
	return ok && !next.After(now)
}
