package id

import "testing"

func TestNextIsMonotonic(t *testing.T) {
	g := NewGenerator()
	prev := g.Next()
	for i := 0; i < 1000; i++ {
		next := g.Next()
		if next.Compare(prev) <= 0 {
			t.Fatalf("id %s not greater than %s", next, prev)
		}
		prev = next
	}
}

func TestNextSurvivesClockRegression(t *testing.T) {
	g := NewGenerator()
	now := int64(5000)
	orig := NowMs
	NowMs = func() int64 { return now }
	defer func() { NowMs = orig }()

	a := g.Next()
	now = 4000 // clock goes backwards
	b := g.Next()
	if b.Compare(a) <= 0 {
		t.Fatalf("id %s should still be greater than %s", b, a)
	}
}

func TestParseRoundTrip(t *testing.T) {
	g := NewGenerator()
	id := g.Next()
	parsed, err := Parse(id.String())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if parsed != id {
		t.Fatalf("round trip mismatch: %s != %s", parsed, id)
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	if _, err := Parse("short"); err == nil {
		t.Fatalf("expected length error")
	}
	if _, err := Parse("zz000000000000000000000000000000"); err == nil {
		t.Fatalf("expected hex error")
	}
}
