package reactive

import "testing"

// testScheduler collects scheduled effects and re-runs them on Flush.
type testScheduler struct {
	queued []*Effect
}

func (s *testScheduler) ScheduleEffect(e *Effect) {
	s.queued = append(s.queued, e)
}

func (s *testScheduler) Flush() {
	queued := s.queued
	s.queued = nil
	for _, e := range queued {
		if e.Pending() && !e.Disposed() {
			e.Run()
		}
	}
}

func TestEffectRunsImmediately(t *testing.T) {
	eng := NewEngine()
	sched := &testScheduler{}
	runs := 0

	NewEffect(eng, func() Cleanup {
		runs++
		return nil
	}, sched)

	if runs != 1 {
		t.Errorf("expected 1 run, got %d", runs)
	}
}

func TestEffectRerunsOnChange(t *testing.T) {
	eng := NewEngine()
	sched := &testScheduler{}
	s := NewSignal(eng, 1)
	var seen []int

	NewEffect(eng, func() Cleanup {
		seen = append(seen, s.Get())
		return nil
	}, sched)

	s.Set(2)
	sched.Flush()

	if len(seen) != 2 || seen[1] != 2 {
		t.Errorf("expected runs [1 2], got %v", seen)
	}
}

func TestEffectSchedulesOncePerBurst(t *testing.T) {
	eng := NewEngine()
	sched := &testScheduler{}
	s := NewSignal(eng, 0)

	NewEffect(eng, func() Cleanup {
		_ = s.Get()
		return nil
	}, sched)

	s.Set(1)
	s.Set(2)
	s.Set(3)

	if len(sched.queued) != 1 {
		t.Errorf("expected a single scheduling, got %d", len(sched.queued))
	}
}

func TestEffectCleanup(t *testing.T) {
	eng := NewEngine()
	sched := &testScheduler{}
	s := NewSignal(eng, 1)
	cleanups := 0

	e := NewEffect(eng, func() Cleanup {
		_ = s.Get()
		return func() { cleanups++ }
	}, sched)

	s.Set(2)
	sched.Flush()
	if cleanups != 1 {
		t.Errorf("expected cleanup before re-run, got %d", cleanups)
	}

	e.Dispose()
	if cleanups != 2 {
		t.Errorf("expected cleanup on dispose, got %d", cleanups)
	}
}

func TestEffectDisposeStopsReruns(t *testing.T) {
	eng := NewEngine()
	sched := &testScheduler{}
	s := NewSignal(eng, 1)
	runs := 0

	e := NewEffect(eng, func() Cleanup {
		runs++
		_ = s.Get()
		return nil
	}, sched)

	e.Dispose()
	s.Set(2)
	sched.Flush()

	if runs != 1 {
		t.Errorf("expected no runs after dispose, got %d", runs)
	}
}

func TestBatchNotifiesOnce(t *testing.T) {
	eng := NewEngine()
	sched := &testScheduler{}
	a := NewSignal(eng, 1)
	b := NewSignal(eng, 1)
	runs := 0

	NewEffect(eng, func() Cleanup {
		runs++
		_ = a.Get()
		_ = b.Get()
		return nil
	}, sched)

	eng.Batch(func() {
		a.Set(2)
		b.Set(2)
	})
	sched.Flush()

	if runs != 2 {
		t.Errorf("expected exactly one re-run after batch, got %d total runs", runs)
	}
}

func TestBatchNesting(t *testing.T) {
	eng := NewEngine()
	sched := &testScheduler{}
	s := NewSignal(eng, 0)
	runs := 0

	NewEffect(eng, func() Cleanup {
		runs++
		_ = s.Get()
		return nil
	}, sched)

	eng.Batch(func() {
		s.Set(1)
		eng.Batch(func() {
			s.Set(2)
		})
		// Inner batch end must not release notifications early.
		if len(sched.queued) != 0 {
			t.Errorf("expected no scheduling inside outer batch, got %d", len(sched.queued))
		}
		s.Set(3)
	})
	sched.Flush()

	if runs != 2 {
		t.Errorf("expected one re-run after outermost batch, got %d total runs", runs)
	}
}

func TestDeferredEffectDoesNotRunUntilAsked(t *testing.T) {
	eng := NewEngine()
	sched := &testScheduler{}
	runs := 0

	e := NewDeferredEffect(eng, func() Cleanup {
		runs++
		return nil
	}, sched)

	if runs != 0 {
		t.Errorf("expected deferred effect not to run, got %d", runs)
	}
	e.Run()
	if runs != 1 {
		t.Errorf("expected 1 run, got %d", runs)
	}
}

func TestFrameStack(t *testing.T) {
	eng := NewEngine()

	if _, ok := eng.CurrentFrame(); ok {
		t.Error("expected empty frame stack")
	}

	eng.PushFrame(Frame{Name: "outer", Phase: 0})
	eng.PushFrame(Frame{Name: "inner", Phase: 10})

	f, ok := eng.CurrentFrame()
	if !ok || f.Name != "inner" || f.Phase != 10 {
		t.Errorf("expected inner frame on top, got %+v ok=%v", f, ok)
	}

	eng.PopFrame()
	f, ok = eng.CurrentFrame()
	if !ok || f.Name != "outer" {
		t.Errorf("expected outer frame on top, got %+v ok=%v", f, ok)
	}
	eng.PopFrame()
}
