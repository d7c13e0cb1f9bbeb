package refresh

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/obsidianstack/prtg-exporter/exporter/internal/prtg"
	"github.com/obsidianstack/prtg-exporter/exporter/internal/store"
)

// fakeFetcher returns one sensor per call, or errors on the calls listed in
// failOn. When block is set, calls wait on it and ignore ctx.
type fakeFetcher struct {
	calls  atomic.Int32
	failOn map[int32]bool
	panics bool
	block  chan struct{}
}

func (f *fakeFetcher) FetchSnapshot(_ context.Context) (*prtg.Snapshot, error) {
	n := f.calls.Add(1)
	if f.block != nil {
		<-f.block
	}
	if f.panics {
		panic("boom")
	}
	if f.failOn[n] {
		return nil, errors.New("fetch failed")
	}
	id := int64(n)
	return &prtg.Snapshot{Sensors: []prtg.Sensor{{ObjID: &id}}}, nil
}

// recorder collects observed cycles.
type recorder struct {
	mu     sync.Mutex
	cycles []Cycle
	hook   func(ctx context.Context)
}

func (r *recorder) ObserveCycle(ctx context.Context, c Cycle) {
	r.mu.Lock()
	r.cycles = append(r.cycles, c)
	hook := r.hook
	r.mu.Unlock()
	if hook != nil {
		hook(ctx)
	}
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.cycles)
}

func (r *recorder) get(i int) Cycle {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cycles[i]
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestLoop_PublishesAndRepeats(t *testing.T) {
	st := store.New(false)
	f := &fakeFetcher{}
	rec := &recorder{}
	l := New(f, st, 5*time.Millisecond, rec)

	l.Start(context.Background())
	defer l.Stop(context.Background(), time.Second)

	waitFor(t, "three cycles", func() bool { return rec.count() >= 3 })

	snap, ok := st.Latest()
	if !ok {
		t.Fatal("no snapshot published")
	}
	if snap.Generation < 3 {
		t.Errorf("generation = %d, want >= 3", snap.Generation)
	}
	if c := rec.get(0); c.Sensors != 1 || c.Err != nil {
		t.Errorf("first cycle = %+v", c)
	}
	if l.State() != StateRunning {
		t.Errorf("State() = %v, want running", l.State())
	}
}

func TestLoop_StartIsIdempotent(t *testing.T) {
	f := &fakeFetcher{}
	l := New(f, store.New(false), time.Hour)

	for i := 0; i < 5; i++ {
		l.Start(context.Background())
	}
	waitFor(t, "first fetch", func() bool { return f.calls.Load() >= 1 })
	time.Sleep(20 * time.Millisecond)

	if n := f.calls.Load(); n != 1 {
		t.Errorf("fetch calls = %d, want 1 (one loop goroutine)", n)
	}
	if !l.Stop(context.Background(), time.Second) {
		t.Fatal("Stop() = false")
	}
}

func TestLoop_FailedCycleKeepsPreviousSnapshot(t *testing.T) {
	st := store.New(false)
	f := &fakeFetcher{failOn: map[int32]bool{2: true, 3: true}}

	var mu sync.Mutex
	var gens []uint64
	rec := &recorder{hook: func(context.Context) {
		snap, _ := st.Latest()
		mu.Lock()
		gens = append(gens, snap.Generation)
		mu.Unlock()
	}}
	l := New(f, st, time.Millisecond, rec)

	l.Start(context.Background())
	defer l.Stop(context.Background(), time.Second)

	waitFor(t, "four cycles", func() bool { return rec.count() >= 4 })

	if rec.get(1).Err == nil || rec.get(2).Err == nil {
		t.Error("second and third cycles should report errors")
	}
	mu.Lock()
	defer mu.Unlock()
	// Generation seen after each cycle: failures keep the previous snapshot,
	// and the loop survives them to publish again.
	want := []uint64{1, 1, 1, 2}
	for i, g := range want {
		if gens[i] != g {
			t.Errorf("after cycle %d generation = %d, want %d", i+1, gens[i], g)
		}
	}
}

func TestLoop_StopInterruptsSleep(t *testing.T) {
	rec := &recorder{}
	l := New(&fakeFetcher{}, store.New(false), time.Hour, rec)
	l.Start(context.Background())
	waitFor(t, "first cycle", func() bool { return rec.count() == 1 })

	start := time.Now()
	if !l.Stop(context.Background(), 3*time.Second) {
		t.Fatal("Stop() = false, want true")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Stop took %v; sleep was not interrupted", elapsed)
	}
	if l.State() != StateIdle {
		t.Errorf("State() = %v, want idle", l.State())
	}
}

func TestLoop_StopFromInsideLoop(t *testing.T) {
	result := make(chan bool, 1)
	elapsed := make(chan time.Duration, 1)

	rec := &recorder{}
	l := New(&fakeFetcher{}, store.New(false), time.Hour, rec)
	rec.hook = func(ctx context.Context) {
		start := time.Now()
		result <- l.Stop(ctx, 5*time.Second)
		elapsed <- time.Since(start)
	}
	l.Start(context.Background())

	select {
	case ok := <-result:
		if ok {
			t.Error("Stop from inside the loop = true, want false")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Stop from inside the loop blocked")
	}
	if d := <-elapsed; d > 500*time.Millisecond {
		t.Errorf("Stop from inside took %v, want immediate", d)
	}

	// The signal still takes effect: the loop exits.
	waitFor(t, "loop exit", func() bool { return l.State() == StateIdle })
}

func TestLoop_StopWhenIdle(t *testing.T) {
	l := New(&fakeFetcher{}, store.New(false), time.Hour)
	if !l.Stop(context.Background(), time.Second) {
		t.Fatal("Stop() on idle loop = false, want true")
	}
}

func TestLoop_Restart(t *testing.T) {
	f := &fakeFetcher{}
	l := New(f, store.New(false), time.Hour)

	l.Start(context.Background())
	waitFor(t, "first run", func() bool { return f.calls.Load() == 1 })
	if !l.Stop(context.Background(), time.Second) {
		t.Fatal("first Stop() = false")
	}

	l.Start(context.Background())
	waitFor(t, "second run", func() bool { return f.calls.Load() == 2 })
	if l.State() != StateRunning {
		t.Errorf("State() after restart = %v, want running", l.State())
	}
	if !l.Stop(context.Background(), time.Second) {
		t.Fatal("second Stop() = false")
	}
}

func TestLoop_StopTimesOutOnStuckFetch(t *testing.T) {
	f := &fakeFetcher{block: make(chan struct{})}
	l := New(f, store.New(false), time.Hour)
	l.Start(context.Background())
	waitFor(t, "fetch in flight", func() bool { return f.calls.Load() == 1 })

	start := time.Now()
	if l.Stop(context.Background(), 90*time.Millisecond) {
		t.Fatal("Stop() = true while fetch ignores cancellation")
	}
	if elapsed := time.Since(start); elapsed < 90*time.Millisecond {
		t.Errorf("Stop gave up after %v, before the timeout", elapsed)
	}
	if l.State() != StateStopping {
		t.Errorf("State() = %v, want stopping", l.State())
	}

	close(f.block)
	waitFor(t, "loop exit", func() bool { return l.State() == StateIdle })
}

func TestLoop_ParentContextCancelStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	l := New(&fakeFetcher{}, store.New(false), time.Hour)
	l.Start(ctx)

	cancel()
	waitFor(t, "loop exit", func() bool { return l.State() == StateIdle })
}

func TestLoop_RecoversPanic(t *testing.T) {
	rec := &recorder{}
	l := New(&fakeFetcher{panics: true}, store.New(false), time.Hour, rec)

	err := l.RunOnce(context.Background())
	if err == nil {
		t.Fatal("RunOnce() = nil, want panic converted to error")
	}
	if rec.count() != 1 || rec.get(0).Err == nil {
		t.Errorf("observer did not see the failed cycle")
	}
}

func TestState_String(t *testing.T) {
	for s, want := range map[State]string{
		StateIdle:     "idle",
		StateRunning:  "running",
		StateStopping: "stopping",
		State(9):      "state(9)",
	} {
		if got := s.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", int32(s), got, want)
		}
	}
}

func TestLoop_StopWithAnotherLoopsContext(t *testing.T) {
	other := New(&fakeFetcher{}, store.New(false), time.Hour)
	other.Start(context.Background())
	waitFor(t, "other loop running", func() bool { return other.State() == StateRunning })

	result := make(chan bool, 1)
	rec := &recorder{}
	rec.hook = func(ctx context.Context) {
		select {
		case result <- other.Stop(ctx, time.Second):
		default:
		}
	}
	l := New(&fakeFetcher{}, store.New(false), time.Hour, rec)
	l.Start(context.Background())
	defer l.Stop(context.Background(), time.Second)

	select {
	case ok := <-result:
		if !ok {
			t.Error("Stop of a different loop from inside a loop = false, want true")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Stop of a different loop blocked")
	}
	if other.State() != StateIdle {
		t.Errorf("other loop state = %v, want idle", other.State())
	}
	if l.State() != StateRunning {
		t.Errorf("calling loop state = %v, want running", l.State())
	}
}
