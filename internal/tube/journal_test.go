package tube

import (
	"bytes"
	"context"
	"testing"
	"time"

	pebblestore "github.com/dreadatour/deque/internal/storage/pebble"
)

func openTestDB(t *testing.T) *pebblestore.DB {
	t.Helper()
	db, err := pebblestore.Open(pebblestore.Options{DataDir: t.TempDir(), Fsync: pebblestore.FsyncModeNever})
	if err != nil {
		t.Fatalf("open pebble: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestTaskRecordRoundTrip(t *testing.T) {
	in := &Task{
		ID:          42,
		State:       StateDelayed,
		Payload:     []byte("payload"),
		Channel:     "email",
		MessageType: "welcome",
		ObjectType:  7,
		ObjectID:    1234,
		ToSendAt:    time.Unix(1_700_000_100, 0),
		ValidUntil:  time.Unix(1_700_000_200, 0),
		CreatedAt:   time.Unix(1_700_000_000, 0),
		Epoch:       3,
	}
	out, ok := decodeTask(encodeTask(in))
	if !ok {
		t.Fatalf("decode failed")
	}
	if out.ID != in.ID || out.State != in.State || out.Epoch != in.Epoch {
		t.Fatalf("identity fields: %+v", out)
	}
	if out.Channel != in.Channel || out.MessageType != in.MessageType {
		t.Fatalf("classification strings: %+v", out)
	}
	if out.ObjectType != in.ObjectType || out.ObjectID != in.ObjectID {
		t.Fatalf("classification ints: %+v", out)
	}
	if !out.ToSendAt.Equal(in.ToSendAt) || !out.ValidUntil.Equal(in.ValidUntil) || !out.CreatedAt.Equal(in.CreatedAt) {
		t.Fatalf("timestamps: %+v", out)
	}
	if !bytes.Equal(out.Payload, in.Payload) {
		t.Fatalf("payload: %q", out.Payload)
	}
}

func TestTaskRecordZeroTimes(t *testing.T) {
	in := &Task{ID: 1, State: StateReady, CreatedAt: time.Unix(1_700_000_000, 0)}
	out, ok := decodeTask(encodeTask(in))
	if !ok {
		t.Fatalf("decode failed")
	}
	if !out.ToSendAt.IsZero() || !out.ValidUntil.IsZero() {
		t.Fatalf("zero times not preserved: %+v", out)
	}
}

func TestTaskRecordRejectsCorruption(t *testing.T) {
	rec := encodeTask(&Task{ID: 1, Payload: []byte("x")})
	rec[len(rec)-1] ^= 0xFF
	if _, ok := decodeTask(rec); ok {
		t.Fatalf("decoded record with bad crc")
	}
	if _, ok := decodeTask(rec[:5]); ok {
		t.Fatalf("decoded truncated record")
	}
}

func TestReloadRebuildsTube(t *testing.T) {
	db := openTestDB(t)
	clk := newTestClock()

	tb, err := Open("jobs", Options{Clock: clk, DB: db})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	mustPut(t, tb, "first", PutOptions{})
	mustPut(t, tb, "second", PutOptions{})
	delayed := mustPut(t, tb, "later", PutOptions{Delay: time.Hour})
	taken := mustTake(t, tb) // "first" moves to taken in the journal

	// Reopen against the same DB, as after a restart.
	re, err := Open("jobs", Options{Clock: clk, DB: db})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	st := re.Stats()
	if st.Ready != 2 || st.Delayed != 1 || st.Taken != 0 {
		t.Fatalf("reloaded stats: %+v", st)
	}

	// The taken task lost its owner and is ready again, in id order.
	got := mustTake(t, re)
	if got.ID != taken.ID || string(got.Payload) != "first" {
		t.Fatalf("first take after reload: id=%d payload=%q", got.ID, got.Payload)
	}
	if got.Epoch <= taken.Epoch {
		t.Fatalf("epoch not bumped across reload: %d <= %d", got.Epoch, taken.Epoch)
	}
	if got := mustTake(t, re); string(got.Payload) != "second" {
		t.Fatalf("second take after reload: %q", got.Payload)
	}
	if row, err := re.Peek(delayed.ID); err != nil || row.State != StateDelayed {
		t.Fatalf("delayed task after reload: %+v, %v", row, err)
	}

	// Ids keep advancing past journaled ones.
	fresh := mustPut(t, re, "new", PutOptions{})
	if fresh.ID <= delayed.ID {
		t.Fatalf("id %d reused after reload", fresh.ID)
	}
}

func TestReloadSkipsExpired(t *testing.T) {
	db := openTestDB(t)
	clk := newTestClock()

	tb, err := Open("jobs", Options{Clock: clk, DB: db})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	doomed := mustPut(t, tb, "doomed", PutOptions{TTL: time.Minute, HasTTL: true})
	mustPut(t, tb, "keeper", PutOptions{})

	clk.Advance(2 * time.Minute)
	re, err := Open("jobs", Options{Clock: clk, DB: db})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if _, err := re.Peek(doomed.ID); err == nil {
		t.Fatalf("expired task survived reload")
	}
	if got := mustTake(t, re); string(got.Payload) != "keeper" {
		t.Fatalf("take after reload: %q", got.Payload)
	}
}

func TestDropClearsJournal(t *testing.T) {
	db := openTestDB(t)
	clk := newTestClock()

	tb, err := Open("jobs", Options{Clock: clk, DB: db})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	mustPut(t, tb, "x", PutOptions{})
	if err := tb.Drop(); err != nil {
		t.Fatalf("drop: %v", err)
	}

	re, err := Open("jobs", Options{Clock: clk, DB: db})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if _, ok, _ := re.Take(context.Background(), 0); ok {
		t.Fatalf("dropped tube still has tasks after reload")
	}
}
