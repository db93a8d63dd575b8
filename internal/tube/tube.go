package tube

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	pebblestore "github.com/dreadatour/deque/internal/storage/pebble"
	"github.com/dreadatour/deque/pkg/log"
)

// Options configures a tube at open time.
type Options struct {
	// Clock is the time source. Defaults to the system clock.
	Clock Clock
	// Logger receives journal warnings. Defaults to a discard logger.
	Logger log.Logger
	// DB enables the task journal when set. Nil keeps the tube purely
	// in-memory.
	DB *pebblestore.DB
	// PayloadMaxBytes rejects oversized payloads on put (0 disables).
	PayloadMaxBytes int
}

// PutOptions carries the scheduling and classification arguments of put.
// Delay/TTL are relative to now; ToSendAt/ValidUntil are absolute
// alternatives. Setting both forms of the same deadline is an error.
type PutOptions struct {
	Channel     string
	MessageType string
	ObjectType  int64
	ObjectID    int64

	Delay    time.Duration
	ToSendAt time.Time

	// TTL is the hard lifetime, honored when HasTTL is set. TTL=0 is
	// legal and yields an immediately dead task. When a future ToSendAt
	// is also given the deadline is ToSendAt+TTL.
	TTL        time.Duration
	HasTTL     bool
	ValidUntil time.Time
}

// Stats is a point-in-time summary of a tube.
type Stats struct {
	Delayed int `json:"delayed"`
	Ready   int `json:"ready"`
	Taken   int `json:"taken"`
	Waiting int `json:"waiting"`
}

// Tube is one named task space. All lifecycle operations serialize on a
// single mutex; operations on different tubes are independent.
type Tube struct {
	name  string
	clock Clock

	mu      sync.Mutex
	dropped bool
	nextID  uint64
	tasks   map[uint64]*Task
	ready   *readyQueue
	wake    *timeIndex
	expiry  *timeIndex
	waiters *waiterList

	journal    *journal
	payloadMax int
}

// Open creates a tube, reloading journaled tasks when a journal DB is
// configured. Tasks found in taken state re-enter the ready queue: after
// a restart no owner survives.
func Open(name string, opts Options) (*Tube, error) {
	if opts.Clock == nil {
		opts.Clock = SystemClock()
	}
	if opts.Logger == nil {
		opts.Logger = log.Discard()
	}
	t := &Tube{
		name:       name,
		clock:      opts.Clock,
		nextID:     1,
		tasks:      make(map[uint64]*Task),
		ready:      newReadyQueue(),
		wake:       newTimeIndex(),
		expiry:     newTimeIndex(),
		waiters:    newWaiterList(),
		journal:    newJournal(opts.DB, name, opts.Logger),
		payloadMax: opts.PayloadMaxBytes,
	}
	if err := t.reload(); err != nil {
		return nil, fmt.Errorf("reload tube %q: %w", name, err)
	}
	return t, nil
}

func (t *Tube) Name() string { return t.name }

// reload re-indexes journaled tasks. Iteration order is task id order
// because journal keys sort by the big-endian id, so the rebuilt ready
// queue preserves FIFO by id.
func (t *Tube) reload() error {
	tasks, nextID, err := t.journal.load()
	if err != nil {
		return err
	}
	if nextID > t.nextID {
		t.nextID = nextID
	}
	now := t.clock.Now()
	for _, task := range tasks {
		if !task.ValidUntil.IsZero() && !task.ValidUntil.After(now) {
			t.journal.deleteTask(task.ID)
			continue
		}
		switch task.State {
		case StateTaken:
			task.State = StateReady
			t.journal.putTask(task)
			fallthrough
		case StateReady:
			t.tasks[task.ID] = task
			t.ready.PushBack(task.ID)
		case StateDelayed:
			if task.ToSendAt.After(now) {
				t.tasks[task.ID] = task
				t.wake.Add(task.ID, task.ToSendAt)
			} else {
				task.State = StateReady
				t.tasks[task.ID] = task
				t.ready.PushBack(task.ID)
				t.journal.putTask(task)
			}
		default:
			t.journal.deleteTask(task.ID)
			continue
		}
		if !task.ValidUntil.IsZero() {
			t.expiry.Add(task.ID, task.ValidUntil)
		}
	}
	return nil
}

// Put creates a task. The returned row reflects the state at insertion;
// a waiting consumer may take the task immediately afterwards.
func (t *Tube) Put(payload []byte, opts PutOptions) (Task, error) {
	if opts.Delay < 0 {
		return Task{}, fmt.Errorf("negative delay: %w", ErrBadArguments)
	}
	if opts.HasTTL && opts.TTL < 0 {
		return Task{}, fmt.Errorf("negative ttl: %w", ErrBadArguments)
	}
	if opts.Delay > 0 && !opts.ToSendAt.IsZero() {
		return Task{}, fmt.Errorf("both delay and to_send_at given: %w", ErrBadArguments)
	}
	if opts.HasTTL && !opts.ValidUntil.IsZero() {
		return Task{}, fmt.Errorf("both ttl and valid_until given: %w", ErrBadArguments)
	}
	if t.payloadMax > 0 && len(payload) > t.payloadMax {
		return Task{}, fmt.Errorf("payload exceeds %d bytes: %w", t.payloadMax, ErrBadArguments)
	}
	if len(opts.Channel) > maxLabelLen || len(opts.MessageType) > maxLabelLen {
		return Task{}, fmt.Errorf("classification label exceeds %d bytes: %w", maxLabelLen, ErrBadArguments)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.dropped {
		return Task{}, fmt.Errorf("tube %q dropped: %w", t.name, ErrNotFound)
	}
	now := t.clock.Now()
	t.sweepLocked(now)

	toSendAt := opts.ToSendAt
	if opts.Delay > 0 {
		toSendAt = now.Add(opts.Delay)
	}
	validUntil := opts.ValidUntil
	if opts.HasTTL {
		base := now
		if toSendAt.After(now) {
			base = toSendAt
		}
		validUntil = base.Add(opts.TTL)
	}

	task := &Task{
		ID:          t.nextID,
		Payload:     payload,
		Channel:     opts.Channel,
		MessageType: opts.MessageType,
		ObjectType:  opts.ObjectType,
		ObjectID:    opts.ObjectID,
		ToSendAt:    toSendAt,
		ValidUntil:  validUntil,
		CreatedAt:   now,
	}
	t.nextID++
	t.journal.writeMeta(t.nextID)

	// A deadline already in the past means the task is born dead. The id
	// is still consumed; ids are never reused.
	if !validUntil.IsZero() && !validUntil.After(now) {
		task.State = StateDone
		return task.snapshot(), nil
	}

	if toSendAt.After(now) {
		task.State = StateDelayed
		t.wake.Add(task.ID, toSendAt)
	} else {
		task.State = StateReady
		t.ready.PushBack(task.ID)
	}
	if !validUntil.IsZero() {
		t.expiry.Add(task.ID, validUntil)
	}
	t.tasks[task.ID] = task
	t.journal.putTask(task)

	snap := task.snapshot()
	if task.State == StateReady {
		t.dispatchLocked()
	}
	return snap, nil
}

// Take removes and returns the ready queue head, transitioning it to
// taken. With an empty queue, timeout=0 returns immediately with ok=false,
// timeout<0 blocks until the context ends, and timeout>0 waits at most
// that long. A timed-out take returns ok=false with a nil error.
func (t *Tube) Take(ctx context.Context, timeout time.Duration) (Task, bool, error) {
	t.mu.Lock()
	if t.dropped {
		t.mu.Unlock()
		return Task{}, false, fmt.Errorf("tube %q dropped: %w", t.name, ErrNotFound)
	}
	now := t.clock.Now()
	t.sweepLocked(now)

	if id, ok := t.ready.PopFront(); ok {
		task := t.tasks[id]
		t.takeLocked(task)
		snap := task.snapshot()
		t.mu.Unlock()
		return snap, true, nil
	}
	if timeout == 0 {
		t.mu.Unlock()
		return Task{}, false, nil
	}

	wt := t.waiters.Add()
	t.mu.Unlock()

	var timeoutC <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutC = timer.C
	}

	select {
	case task := <-wt.ch:
		return task, true, nil
	case <-timeoutC:
		t.mu.Lock()
		if t.waiters.Remove(wt) {
			t.mu.Unlock()
			return Task{}, false, nil
		}
		t.mu.Unlock()
		// Delivery won the race at the boundary; the task is already in
		// the channel and belongs to this caller.
		return <-wt.ch, true, nil
	case <-ctx.Done():
		t.mu.Lock()
		if !t.waiters.Remove(wt) {
			// Delivered but never observed by the consumer; put it back
			// at the head so FIFO order is preserved.
			task := <-wt.ch
			t.requeueHeadLocked(task.ID)
		}
		t.mu.Unlock()
		return Task{}, false, ctx.Err()
	}
}

// Ack completes a taken task. The task is destroyed; any later touch of
// the id reports ErrNotFound.
func (t *Tube) Ack(id, epoch uint64) (Task, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sweepLocked(t.clock.Now())

	task, ok := t.tasks[id]
	if !ok {
		return Task{}, fmt.Errorf("ack %d: %w", id, ErrNotFound)
	}
	if task.State != StateTaken {
		return Task{}, fmt.Errorf("ack %d in state %s: %w", id, task.State, ErrWrongState)
	}
	if task.Epoch != epoch {
		return Task{}, fmt.Errorf("ack %d epoch %d != %d: %w", id, epoch, task.Epoch, ErrStaleOwner)
	}
	t.destroyLocked(task)
	return task.snapshot(), nil
}

// Release returns a taken task to circulation: with delay=0 to the tail
// of the ready queue, with delay>0 to delayed with a fresh to_send_at.
func (t *Tube) Release(id, epoch uint64, delay time.Duration) (Task, error) {
	if delay < 0 {
		return Task{}, fmt.Errorf("negative delay: %w", ErrBadArguments)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.clock.Now()
	t.sweepLocked(now)

	task, ok := t.tasks[id]
	if !ok {
		return Task{}, fmt.Errorf("release %d: %w", id, ErrNotFound)
	}
	if task.State != StateTaken {
		return Task{}, fmt.Errorf("release %d in state %s: %w", id, task.State, ErrWrongState)
	}
	if task.Epoch != epoch {
		return Task{}, fmt.Errorf("release %d epoch %d != %d: %w", id, epoch, task.Epoch, ErrStaleOwner)
	}

	if delay > 0 {
		task.State = StateDelayed
		task.ToSendAt = now.Add(delay)
		t.wake.Add(task.ID, task.ToSendAt)
	} else {
		task.State = StateReady
		t.ready.PushBack(task.ID)
	}
	t.journal.putTask(task)
	snap := task.snapshot()
	if task.State == StateReady {
		t.dispatchLocked()
	}
	return snap, nil
}

// Peek returns the current row for a task after applying any due
// transition. An expired task reports ErrNotFound.
func (t *Tube) Peek(id uint64) (Task, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sweepLocked(t.clock.Now())

	task, ok := t.tasks[id]
	if !ok {
		return Task{}, fmt.Errorf("peek %d: %w", id, ErrNotFound)
	}
	return task.snapshot(), nil
}

// Delete destroys a task in any state, regardless of ownership.
func (t *Tube) Delete(id uint64) (Task, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sweepLocked(t.clock.Now())

	task, ok := t.tasks[id]
	if !ok {
		return Task{}, fmt.Errorf("delete %d: %w", id, ErrNotFound)
	}
	t.destroyLocked(task)
	return task.snapshot(), nil
}

// Drop removes the tube and its journal. It fails with ErrTubeBusy while
// any task is taken or any take is blocked.
func (t *Tube) Drop() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.dropped {
		return nil
	}
	t.sweepLocked(t.clock.Now())

	taken := len(t.tasks) - t.ready.Len() - t.wake.Len()
	if taken > 0 {
		return fmt.Errorf("drop %q with %d taken tasks: %w", t.name, taken, ErrTubeBusy)
	}
	if n := t.waiters.Len(); n > 0 {
		return fmt.Errorf("drop %q with %d waiting consumers: %w", t.name, n, ErrTubeBusy)
	}

	t.tasks = make(map[uint64]*Task)
	t.ready = newReadyQueue()
	t.wake = newTimeIndex()
	t.expiry = newTimeIndex()
	t.journal.dropAll()
	t.dropped = true
	return nil
}

// Stats reports per-state task counts and the number of blocked takes.
func (t *Tube) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sweepLocked(t.clock.Now())
	return Stats{
		Delayed: t.wake.Len(),
		Ready:   t.ready.Len(),
		Taken:   len(t.tasks) - t.ready.Len() - t.wake.Len(),
		Waiting: t.waiters.Len(),
	}
}

// Tasks returns up to limit task rows ordered by id (0 means no limit).
func (t *Tube) Tasks(limit int) []Task {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sweepLocked(t.clock.Now())

	out := make([]Task, 0, len(t.tasks))
	for _, task := range t.tasks {
		out = append(out, task.snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Sweep applies due expiries and promotions, at most limit of each when
// limit > 0. The engine's background sweeper calls this so delayed tasks
// wake blocked consumers without requiring a touch; lifecycle operations
// sweep without a limit before reading state.
func (t *Tube) Sweep(limit int) (expired, promoted int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sweepBatchLocked(t.clock.Now(), limit)
}

func (t *Tube) sweepLocked(now time.Time) (expired, promoted int) {
	return t.sweepBatchLocked(now, 0)
}

// sweepBatchLocked runs expiry before promotion so a task whose
// to_send_at and valid_until have both elapsed ends done, never
// transiently ready.
func (t *Tube) sweepBatchLocked(now time.Time, limit int) (expired, promoted int) {
	for limit <= 0 || expired < limit {
		id, ok := t.expiry.PopDue(now)
		if !ok {
			break
		}
		task, ok := t.tasks[id]
		if !ok {
			continue
		}
		t.ready.Remove(id)
		t.wake.Remove(id)
		delete(t.tasks, id)
		t.journal.deleteTask(id)
		task.State = StateDone
		expired++
	}
	for limit <= 0 || promoted < limit {
		id, ok := t.wake.PopDue(now)
		if !ok {
			break
		}
		task, ok := t.tasks[id]
		if !ok {
			continue
		}
		task.State = StateReady
		t.ready.PushBack(id)
		t.journal.putTask(task)
		promoted++
	}
	if promoted > 0 {
		t.dispatchLocked()
	}
	return expired, promoted
}

// dispatchLocked hands ready tasks to blocked takes in FIFO order on both
// sides. Delivery and waiter removal are mutually exclusive under the
// tube mutex, so a task is handed to at most one consumer.
func (t *Tube) dispatchLocked() {
	for t.ready.Len() > 0 && t.waiters.Len() > 0 {
		wt, _ := t.waiters.PopFront()
		id, _ := t.ready.PopFront()
		task := t.tasks[id]
		t.takeLocked(task)
		wt.ch <- task.snapshot()
	}
}

func (t *Tube) takeLocked(task *Task) {
	task.State = StateTaken
	task.Epoch++
	t.journal.putTask(task)
}

// requeueHeadLocked returns a delivered-but-unobserved task to the head
// of the ready queue.
func (t *Tube) requeueHeadLocked(id uint64) {
	task, ok := t.tasks[id]
	if !ok || task.State != StateTaken {
		return
	}
	task.State = StateReady
	t.ready.PushFront(id)
	t.journal.putTask(task)
	t.dispatchLocked()
}

func (t *Tube) destroyLocked(task *Task) {
	t.ready.Remove(task.ID)
	t.wake.Remove(task.ID)
	t.expiry.Remove(task.ID)
	delete(t.tasks, task.ID)
	t.journal.deleteTask(task.ID)
	task.State = StateDone
}
