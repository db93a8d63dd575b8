package tube

import (
	"testing"
	"time"
)

func TestTimeIndexPopsInDeadlineOrder(t *testing.T) {
	x := newTimeIndex()
	base := time.Unix(1000, 0)
	x.Add(1, base.Add(3*time.Second))
	x.Add(2, base.Add(1*time.Second))
	x.Add(3, base.Add(2*time.Second))

	now := base.Add(10 * time.Second)
	want := []uint64{2, 3, 1}
	for _, id := range want {
		got, ok := x.PopDue(now)
		if !ok || got != id {
			t.Fatalf("pop: got %d ok=%v, want %d", got, ok, id)
		}
	}
	if _, ok := x.PopDue(now); ok {
		t.Fatalf("pop from empty index")
	}
}

func TestTimeIndexRespectsNow(t *testing.T) {
	x := newTimeIndex()
	base := time.Unix(1000, 0)
	x.Add(1, base.Add(time.Second))
	if _, ok := x.PopDue(base); ok {
		t.Fatalf("popped entry before its deadline")
	}
	if got, ok := x.PopDue(base.Add(time.Second)); !ok || got != 1 {
		t.Fatalf("entry not due at its exact deadline")
	}
}

func TestTimeIndexRemove(t *testing.T) {
	x := newTimeIndex()
	base := time.Unix(1000, 0)
	x.Add(1, base)
	x.Add(2, base.Add(time.Second))
	if !x.Remove(1) {
		t.Fatalf("remove existing entry failed")
	}
	if x.Remove(1) {
		t.Fatalf("remove reported success twice")
	}
	got, ok := x.PopDue(base.Add(time.Minute))
	if !ok || got != 2 {
		t.Fatalf("pop after remove: got %d ok=%v", got, ok)
	}
}

func TestTimeIndexReschedule(t *testing.T) {
	x := newTimeIndex()
	base := time.Unix(1000, 0)
	x.Add(1, base.Add(time.Second))
	x.Add(2, base.Add(2*time.Second))
	x.Add(1, base.Add(3*time.Second)) // reschedule id 1 later

	got, ok := x.PopDue(base.Add(time.Minute))
	if !ok || got != 2 {
		t.Fatalf("first pop: got %d ok=%v, want 2", got, ok)
	}
	if x.Len() != 1 {
		t.Fatalf("len %d after reschedule+pop, want 1", x.Len())
	}
}
