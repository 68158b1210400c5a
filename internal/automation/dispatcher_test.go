package automation

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestDispatcherDebounce(t *testing.T) {
	d := NewDispatcher()
	defer d.Dispose()

	var runs atomic.Int32
	run := func() { runs.Add(1) }

	if !d.Dispatch("wf", 200*time.Millisecond, run) {
		t.Fatal("first Dispatch skipped")
	}
	if d.Dispatch("wf", 200*time.Millisecond, run) {
		t.Error("second Dispatch inside window was not skipped")
	}
	if !d.IsDebouncing("wf") {
		t.Error("IsDebouncing = false inside window")
	}
	d.Wait()
	if got := runs.Load(); got != 1 {
		t.Fatalf("runs inside window = %d, want 1", got)
	}

	time.Sleep(300 * time.Millisecond)
	if d.IsDebouncing("wf") {
		t.Error("IsDebouncing = true after window")
	}
	if !d.Dispatch("wf", 200*time.Millisecond, run) {
		t.Error("Dispatch after window skipped")
	}
	d.Wait()
	if got := runs.Load(); got != 2 {
		t.Errorf("runs = %d, want 2", got)
	}
}

func TestDispatcherZeroIntervalDisablesDebounce(t *testing.T) {
	d := NewDispatcher()
	defer d.Dispose()

	var runs atomic.Int32
	for i := 0; i < 5; i++ {
		if !d.Dispatch("wf", 0, func() { runs.Add(1) }) {
			t.Fatalf("Dispatch %d skipped", i)
		}
	}
	d.Wait()
	if got := runs.Load(); got != 5 {
		t.Errorf("runs = %d, want 5", got)
	}
	if d.ActiveTimers() != 0 {
		t.Errorf("ActiveTimers = %d, want 0", d.ActiveTimers())
	}
}

func TestDispatcherSerialisesSameTrigger(t *testing.T) {
	d := NewDispatcher()
	defer d.Dispose()

	var (
		running atomic.Int32
		maxSeen atomic.Int32
	)
	work := func() {
		n := running.Add(1)
		for {
			old := maxSeen.Load()
			if n <= old || maxSeen.CompareAndSwap(old, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		running.Add(-1)
	}

	for i := 0; i < 5; i++ {
		d.Dispatch("same", 0, work)
	}
	d.Wait()
	if got := maxSeen.Load(); got != 1 {
		t.Errorf("max concurrent runs of one trigger = %d, want 1", got)
	}
}

func TestDispatcherDifferentTriggersRunConcurrently(t *testing.T) {
	d := NewDispatcher()
	defer d.Dispose()

	var started sync.WaitGroup
	started.Add(2)
	release := make(chan struct{})
	work := func() {
		started.Done()
		<-release
	}

	d.Dispatch("a", 0, work)
	d.Dispatch("b", 0, work)

	done := make(chan struct{})
	go func() {
		started.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("different triggers did not run concurrently")
	}
	close(release)
	d.Wait()
}

func TestDispatcherResetAll(t *testing.T) {
	d := NewDispatcher()
	defer d.Dispose()

	d.Dispatch("a", time.Hour, func() {})
	d.Dispatch("b", time.Hour, func() {})
	if got := d.ActiveTimers(); got != 2 {
		t.Fatalf("ActiveTimers = %d, want 2", got)
	}

	d.ResetAll()
	if got := d.ActiveTimers(); got != 0 {
		t.Errorf("ActiveTimers after ResetAll = %d, want 0", got)
	}
	if !d.Dispatch("a", time.Hour, func() {}) {
		t.Error("Dispatch after ResetAll skipped")
	}
	d.Wait()
}

func TestDispatcherDispose(t *testing.T) {
	d := NewDispatcher()

	finished := make(chan struct{})
	d.Dispatch("slow", time.Hour, func() {
		time.Sleep(50 * time.Millisecond)
		close(finished)
	})

	d.Dispose()
	select {
	case <-finished:
	default:
		t.Error("Dispose returned before the running execution finished")
	}
	if d.Dispatch("slow", 0, func() {}) {
		t.Error("Dispatch after Dispose was accepted")
	}
	d.Dispose() // idempotent
}

func TestDispatcherRunsSameTriggerInArrivalOrder(t *testing.T) {
	d := NewDispatcher()
	defer d.Dispose()

	var (
		mu    sync.Mutex
		order []int
	)
	const n = 200
	for i := 0; i < n; i++ {
		if !d.Dispatch("wf", 0, func() {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		}) {
			t.Fatalf("Dispatch %d skipped", i)
		}
	}
	d.Wait()

	if len(order) != n {
		t.Fatalf("ran %d executions, want %d", len(order), n)
	}
	for i, got := range order {
		if got != i {
			t.Fatalf("execution %d ran at position %d; order starts %v", got, i, order[:min(10, len(order))])
		}
	}
}

func TestDispatcherFullQueueSkips(t *testing.T) {
	d := NewDispatcher()
	defer d.Dispose()

	started := make(chan struct{})
	release := make(chan struct{})
	d.Dispatch("busy", 0, func() {
		close(started)
		<-release
	})
	<-started

	for i := 0; i < triggerQueueSize; i++ {
		if !d.Dispatch("busy", 0, func() {}) {
			t.Fatalf("Dispatch %d skipped before the queue was full", i)
		}
	}
	if d.Dispatch("busy", 0, func() {}) {
		t.Error("Dispatch on a full queue was accepted")
	}
	if !d.Dispatch("other", 0, func() {}) {
		t.Error("a full queue blocked a different trigger")
	}

	close(release)
	d.Wait()
}
