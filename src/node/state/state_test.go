package state

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestStateTransitions(t *testing.T) {
	var m Manager

	if s := m.GetState(); s != Syncing {
		t.Fatalf("initial state should be Syncing, not %v", s)
	}

	m.SetState(Running)
	if s := m.GetState(); s != Running {
		t.Fatalf("state should be Running, not %v", s)
	}

	if m.CompareAndSetState(Syncing, Stalled) {
		t.Fatalf("CompareAndSetState should fail when the state differs")
	}

	if !m.CompareAndSetState(Running, Stalled) {
		t.Fatalf("CompareAndSetState should succeed")
	}

	if s := m.GetState().String(); s != "Stalled" {
		t.Fatalf("state should be Stalled, not %s", s)
	}

	if s := State(42).String(); s != "Unknown" {
		t.Fatalf("unknown state should print as Unknown, not %s", s)
	}
}

func TestGoFuncLimit(t *testing.T) {
	var m Manager

	release := make(chan struct{})
	var started int32
	var wg sync.WaitGroup

	for i := 0; i < WGLIMIT; i++ {
		wg.Add(1)
		m.GoFunc(func() {
			defer wg.Done()
			atomic.AddInt32(&started, 1)
			<-release
		})
	}

	// the pool is full so this one runs inline
	inline := false
	m.GoFunc(func() { inline = true })
	if !inline {
		t.Fatalf("GoFunc should run f inline when WGLIMIT goroutines are running")
	}

	if n := m.Running(); n != WGLIMIT {
		t.Fatalf("Running should be %d, not %d", WGLIMIT, n)
	}

	close(release)
	wg.Wait()
	m.WaitRoutines()

	deadline := time.Now().Add(time.Second)
	for m.Running() != 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if n := m.Running(); n != 0 {
		t.Fatalf("Running should be 0, not %d", n)
	}
	if started != WGLIMIT {
		t.Fatalf("%d goroutines should have started, not %d", WGLIMIT, started)
	}
}
