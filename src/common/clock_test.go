package common

import (
	"testing"
	"time"
)

func TestFakeClockAfterFunc(t *testing.T) {
	start := time.Unix(1000, 0)
	clock := NewFakeClock(start)

	var fired []int
	clock.AfterFunc(100*time.Millisecond, func() { fired = append(fired, 100) })
	clock.AfterFunc(50*time.Millisecond, func() { fired = append(fired, 50) })
	stopped := clock.AfterFunc(70*time.Millisecond, func() { fired = append(fired, 70) })

	if !stopped.Stop() {
		t.Fatalf("Stop should return true on a pending timer")
	}
	if stopped.Stop() {
		t.Fatalf("Stop should return false on a stopped timer")
	}

	clock.Advance(60 * time.Millisecond)
	if len(fired) != 1 || fired[0] != 50 {
		t.Fatalf("fired should be [50], not %v", fired)
	}

	clock.Advance(40 * time.Millisecond)
	if len(fired) != 2 || fired[1] != 100 {
		t.Fatalf("fired should be [50 100], not %v", fired)
	}

	if clock.Pending() != 0 {
		t.Fatalf("no timer should be pending, got %d", clock.Pending())
	}

	if !clock.Now().Equal(start.Add(100 * time.Millisecond)) {
		t.Fatalf("Now should be start+100ms, not %v", clock.Now())
	}
}

func TestFakeClockAfter(t *testing.T) {
	clock := NewFakeClock(time.Unix(0, 0))

	ch := clock.After(time.Second)

	select {
	case <-ch:
		t.Fatalf("After fired before deadline")
	default:
	}

	clock.Advance(time.Second)

	select {
	case <-ch:
	default:
		t.Fatalf("After should have fired")
	}
}

func TestCorrelationID(t *testing.T) {
	a := NewCorrelationID()
	b := NewCorrelationID()

	if a == b {
		t.Fatalf("two random ids should differ")
	}
	if a.IsNil() {
		t.Fatalf("random id should not be nil")
	}

	parsed, err := ParseCorrelationID(a.String())
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if parsed != a {
		t.Fatalf("parsed id should be %v, not %v", a, parsed)
	}

	fromBytes, err := CorrelationIDFromBytes(a.Bytes())
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if fromBytes != a {
		t.Fatalf("id from bytes should be %v, not %v", a, fromBytes)
	}

	if _, err := CorrelationIDFromBytes([]byte{1, 2, 3}); err == nil {
		t.Fatalf("short input should fail")
	}
}
