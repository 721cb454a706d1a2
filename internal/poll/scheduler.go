package poll

import "sync"

// Task is serviced by the scheduler when its registration becomes
// due. Poll must never block; work that needs to wait is deferred by
// requesting another poll (OnDemand) or arming a Timer.
type Task interface {
	Poll()
}

type kind int

const (
	kindAlways kind = iota
	kindOnDemand
	kindTimer
)

type registration struct {
	kind         kind
	task         Task
	periodMs     int64
	nextDeadline int64
	pending      bool
	cancelled    bool
}

// Handle lets a caller cancel a registration. Cancellation during the
// registration's own callback is honored after the callback returns,
// since Service snapshots cancelled state before invoking Poll.
type Handle struct {
	s   *Scheduler
	reg *registration
}

// Cancel unregisters the task. Safe to call at any point outside the
// task's own callback; if called from within, it takes effect once the
// callback returns.
func (h *Handle) Cancel() {
	h.s.mu.Lock()
	defer h.s.mu.Unlock()
	h.reg.cancelled = true
}

// RequestPoll marks an OnDemand registration as needing service on the
// next cycle. Safe to call from an interrupt context.
func (h *Handle) RequestPoll() {
	h.s.mu.Lock()
	defer h.s.mu.Unlock()
	if h.reg.kind == kindOnDemand {
		h.reg.pending = true
	}
}

// Scheduler is the single-threaded cooperative poll loop: one Service
// call services due OnDemand tasks, then Always tasks, then Timer
// tasks whose deadline elapsed, in that order.
type Scheduler struct {
	mu    sync.Mutex
	clock Clock
	regs  []*registration
}

// NewScheduler creates a Scheduler driven by clock.
func NewScheduler(clock Clock) *Scheduler {
	return &Scheduler{clock: clock}
}

func (s *Scheduler) register(r *registration) *Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.regs = append(s.regs, r)
	return &Handle{s: s, reg: r}
}

// RegisterAlways registers a task serviced every cycle.
func (s *Scheduler) RegisterAlways(task Task) *Handle {
	return s.register(&registration{kind: kindAlways, task: task})
}

// RegisterOnDemand registers a task serviced only when RequestPoll is
// called on its Handle.
func (s *Scheduler) RegisterOnDemand(task Task) *Handle {
	return s.register(&registration{kind: kindOnDemand, task: task})
}

// RegisterTimer registers a task serviced once every periodMs,
// measured from deadline to deadline (not accumulated sleep), so
// scheduling jitter never compounds.
func (s *Scheduler) RegisterTimer(task Task, periodMs int64) *Handle {
	r := &registration{kind: kindTimer, task: task, periodMs: periodMs}
	r.nextDeadline = s.clock.NowMillis() + periodMs
	return s.register(r)
}

// Service runs exactly one poll cycle: requested OnDemand tasks (in
// registration order), then all Always tasks, then Timer tasks whose
// deadline has elapsed. A task that re-raises its own OnDemand request
// during this cycle is picked up on the next Service call, bounding
// fairness.
func (s *Scheduler) Service() {
	now := s.clock.NowMillis()

	for _, r := range s.snapshot() {
		if r.cancelled {
			continue
		}
		if r.kind == kindOnDemand {
			s.mu.Lock()
			due := r.pending
			r.pending = false
			s.mu.Unlock()
			if due {
				r.task.Poll()
			}
		}
	}

	for _, r := range s.snapshot() {
		if r.cancelled {
			continue
		}
		if r.kind == kindAlways {
			r.task.Poll()
		}
	}

	for _, r := range s.snapshot() {
		if r.cancelled {
			continue
		}
		if r.kind == kindTimer && now >= r.nextDeadline {
			s.mu.Lock()
			r.nextDeadline += r.periodMs
			if r.nextDeadline <= now {
				r.nextDeadline = now + r.periodMs
			}
			s.mu.Unlock()
			r.task.Poll()
		}
	}

	s.reap()
}

func (s *Scheduler) snapshot() []*registration {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*registration, len(s.regs))
	copy(out, s.regs)
	return out
}

func (s *Scheduler) reap() {
	s.mu.Lock()
	defer s.mu.Unlock()
	live := s.regs[:0]
	for _, r := range s.regs {
		if !r.cancelled {
			live = append(live, r)
		}
	}
	s.regs = live
}
