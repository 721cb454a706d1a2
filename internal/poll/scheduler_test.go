package poll

import (
	"testing"

	_ "github.com/satcat5/corenet/internal/testutil/testlog"
)

type fakeClock struct{ ms int64 }

func (c *fakeClock) NowMillis() int64 { return c.ms }

type countTask struct{ n int }

func (t *countTask) Poll() { t.n++ }

func TestAlwaysRunsEveryCycle(t *testing.T) {
	s := NewScheduler(&fakeClock{})
	task := &countTask{}
	s.RegisterAlways(task)

	s.Service()
	s.Service()
	s.Service()

	if task.n != 3 {
		t.Fatalf("n = %d, want 3", task.n)
	}
}

func TestOnDemandRunsOnlyWhenRequested(t *testing.T) {
	s := NewScheduler(&fakeClock{})
	task := &countTask{}
	h := s.RegisterOnDemand(task)

	s.Service()
	if task.n != 0 {
		t.Fatalf("n = %d, want 0 before request", task.n)
	}

	h.RequestPoll()
	s.Service()
	if task.n != 1 {
		t.Fatalf("n = %d, want 1 after one request", task.n)
	}

	s.Service()
	if task.n != 1 {
		t.Fatalf("n = %d, want 1, request should not persist across cycles", task.n)
	}
}

// reraiser re-requests its own poll the first time it runs, modeling a
// handler that discovers more work while draining. It must be picked
// up on the next cycle, not the current one.
type reraiser struct {
	n   int
	h   *Handle
	did bool
}

func (t *reraiser) Poll() {
	t.n++
	if !t.did {
		t.did = true
		t.h.RequestPoll()
	}
}

func TestOnDemandReraiseIsBoundedToNextCycle(t *testing.T) {
	s := NewScheduler(&fakeClock{})
	task := &reraiser{}
	h := s.RegisterOnDemand(task)
	task.h = h

	h.RequestPoll()
	s.Service()
	if task.n != 1 {
		t.Fatalf("n = %d, want 1 after first cycle", task.n)
	}

	s.Service()
	if task.n != 2 {
		t.Fatalf("n = %d, want 2, re-raise should fire on the next cycle", task.n)
	}

	s.Service()
	if task.n != 2 {
		t.Fatalf("n = %d, want 2, no further requests pending", task.n)
	}
}

func TestTimerFiresOnDeadlineNotBeforeWithoutDrift(t *testing.T) {
	clock := &fakeClock{ms: 0}
	s := NewScheduler(clock)
	task := &countTask{}
	s.RegisterTimer(task, 100)

	clock.ms = 50
	s.Service()
	if task.n != 0 {
		t.Fatalf("n = %d, want 0 before deadline", task.n)
	}

	clock.ms = 100
	s.Service()
	if task.n != 1 {
		t.Fatalf("n = %d, want 1 at deadline", task.n)
	}

	clock.ms = 150
	s.Service()
	if task.n != 1 {
		t.Fatalf("n = %d, want 1, next deadline not yet reached", task.n)
	}

	clock.ms = 200
	s.Service()
	if task.n != 2 {
		t.Fatalf("n = %d, want 2", task.n)
	}
}

func TestCancelStopsFurtherService(t *testing.T) {
	s := NewScheduler(&fakeClock{})
	task := &countTask{}
	h := s.RegisterAlways(task)

	s.Service()
	h.Cancel()
	s.Service()
	s.Service()

	if task.n != 1 {
		t.Fatalf("n = %d, want 1, cancel should stop further polls", task.n)
	}
}
