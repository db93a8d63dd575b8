package tubesvc

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dreadatour/deque/internal/engine"
	"github.com/dreadatour/deque/internal/tube"
	"github.com/dreadatour/deque/pkg/id"
	"github.com/dreadatour/deque/pkg/log"
)

const defaultListLimit = 100

// takenRef remembers one task held by a session, in take order.
type takenRef struct {
	Tube  string
	ID    uint64
	Epoch uint64
}

// Service exposes tube lifecycle operations to the transport layer.
type Service struct {
	engine *engine.Engine
	logger log.Logger
	clock  tube.Clock
	idgen  *id.Generator

	mu       sync.Mutex
	sessions map[string][]takenRef
}

// New creates the tubes service.
func New(eng *engine.Engine, clock tube.Clock, logger log.Logger) *Service {
	if clock == nil {
		clock = tube.SystemClock()
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &Service{
		engine:   eng,
		logger:   logger.WithComponent("tubes"),
		clock:    clock,
		idgen:    id.NewGenerator(),
		sessions: make(map[string][]takenRef),
	}
}

// Put creates a task in the named tube.
func (s *Service) Put(_ context.Context, req PutRequest) (Row, error) {
	opts := tube.PutOptions{
		Channel:     req.Channel,
		MessageType: req.MessageType,
		ObjectType:  req.ObjectType,
		ObjectID:    req.ObjectID,
	}
	if req.Delay != nil {
		if *req.Delay < 0 {
			return Row{}, fmt.Errorf("negative delay: %w", tube.ErrBadArguments)
		}
		opts.Delay = secondsToDuration(*req.Delay)
	}
	if req.TTL != nil {
		if *req.TTL < 0 {
			return Row{}, fmt.Errorf("negative ttl: %w", tube.ErrBadArguments)
		}
		opts.TTL = secondsToDuration(*req.TTL)
		opts.HasTTL = true
	}
	if req.ToSendAt != nil {
		if *req.ToSendAt <= 0 {
			return Row{}, fmt.Errorf("non-positive to_send_at: %w", tube.ErrBadArguments)
		}
		opts.ToSendAt = wireToTime(*req.ToSendAt)
	}
	if req.ValidUntil != nil {
		if *req.ValidUntil <= 0 {
			return Row{}, fmt.Errorf("non-positive valid_until: %w", tube.ErrBadArguments)
		}
		opts.ValidUntil = wireToTime(*req.ValidUntil)
	}

	tb, err := s.engine.Tube(req.Tube)
	if err != nil {
		return Row{}, err
	}
	task, err := tb.Put(req.Payload, opts)
	if err != nil {
		return Row{}, err
	}
	s.logger.Debug("task put",
		log.Str("tube", req.Tube),
		log.Uint64("task", task.ID),
		log.Str("state", task.State.String()))
	return rowFromTask(task), nil
}

// Take removes and returns the next ready task. ok=false with a nil error
// means no task arrived within the timeout. When the request carries a
// session token the taken task is remembered for CloseSession; a session
// closed while the take was still blocked hands the task straight back
// instead of leaving it taken with no owner left to release it.
func (s *Service) Take(ctx context.Context, req TakeRequest) (Row, bool, error) {
	timeout := time.Duration(-1)
	if req.Timeout != nil {
		if *req.Timeout < 0 {
			return Row{}, false, fmt.Errorf("negative timeout: %w", tube.ErrBadArguments)
		}
		timeout = secondsToDuration(*req.Timeout)
	}
	if req.Session != "" {
		if sid, err := id.Parse(req.Session); err != nil || sid.IsZero() {
			return Row{}, false, fmt.Errorf("malformed session token: %w", tube.ErrBadArguments)
		}
		s.mu.Lock()
		_, open := s.sessions[req.Session]
		s.mu.Unlock()
		if !open {
			return Row{}, false, fmt.Errorf("unknown session: %w", tube.ErrBadArguments)
		}
	}
	tb, err := s.engine.Tube(req.Tube)
	if err != nil {
		return Row{}, false, err
	}
	task, ok, err := tb.Take(ctx, timeout)
	if err != nil || !ok {
		return Row{}, false, err
	}
	if req.Session != "" {
		s.mu.Lock()
		if _, open := s.sessions[req.Session]; !open {
			s.mu.Unlock()
			// The session closed while this take was blocked; the consumer
			// is gone, so the task goes back to ready.
			if _, rerr := tb.Release(task.ID, task.Epoch, 0); rerr != nil {
				s.logger.Warn("release after session close failed",
					log.Str("tube", req.Tube),
					log.Uint64("task", task.ID),
					log.Err(rerr))
			}
			return Row{}, false, nil
		}
		s.sessions[req.Session] = append(s.sessions[req.Session], takenRef{
			Tube:  req.Tube,
			ID:    task.ID,
			Epoch: task.Epoch,
		})
		s.mu.Unlock()
	}
	return rowFromTask(task), true, nil
}

// Ack completes a taken task.
func (s *Service) Ack(_ context.Context, req TaskRequest) (Row, error) {
	tb, err := s.engine.Tube(req.Tube)
	if err != nil {
		return Row{}, err
	}
	task, err := tb.Ack(req.ID, req.Epoch)
	if err != nil {
		return Row{}, err
	}
	return rowFromTask(task), nil
}

// Release returns a taken task to circulation, optionally delayed.
func (s *Service) Release(_ context.Context, req TaskRequest) (Row, error) {
	var delay time.Duration
	if req.Delay != nil {
		if *req.Delay < 0 {
			return Row{}, fmt.Errorf("negative delay: %w", tube.ErrBadArguments)
		}
		delay = secondsToDuration(*req.Delay)
	}
	tb, err := s.engine.Tube(req.Tube)
	if err != nil {
		return Row{}, err
	}
	task, err := tb.Release(req.ID, req.Epoch, delay)
	if err != nil {
		return Row{}, err
	}
	return rowFromTask(task), nil
}

// Peek returns the current row for a task after due transitions apply.
func (s *Service) Peek(_ context.Context, tubeName string, taskID uint64) (Row, error) {
	tb, err := s.engine.Tube(tubeName)
	if err != nil {
		return Row{}, err
	}
	task, err := tb.Peek(taskID)
	if err != nil {
		return Row{}, err
	}
	return rowFromTask(task), nil
}

// Delete destroys a task regardless of state or ownership.
func (s *Service) Delete(_ context.Context, tubeName string, taskID uint64) (Row, error) {
	tb, err := s.engine.Tube(tubeName)
	if err != nil {
		return Row{}, err
	}
	task, err := tb.Delete(taskID)
	if err != nil {
		return Row{}, err
	}
	return rowFromTask(task), nil
}

// Drop removes the named tube.
func (s *Service) Drop(_ context.Context, tubeName string) error {
	return s.engine.Drop(tubeName)
}

// Stats returns the per-state counts for one tube. An unregistered tube
// reports empty stats rather than an error, matching lazy creation.
func (s *Service) Stats(_ context.Context, tubeName string) (tube.Stats, error) {
	tb, ok := s.engine.Lookup(tubeName)
	if !ok {
		return tube.Stats{}, nil
	}
	return tb.Stats(), nil
}

// Tubes returns the registered tube names.
func (s *Service) Tubes(_ context.Context) []string {
	return s.engine.Names()
}

// ListTasks returns up to limit task rows from a tube, optionally
// filtered by a CEL expression over the row fields.
func (s *Service) ListTasks(_ context.Context, tubeName, filterExpr string, limit int) ([]Row, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	filter, err := newTaskFilter(filterExpr)
	if err != nil {
		return nil, fmt.Errorf("invalid filter: %v: %w", err, tube.ErrBadArguments)
	}
	tb, ok := s.engine.Lookup(tubeName)
	if !ok {
		return nil, fmt.Errorf("tube %q: %w", tubeName, tube.ErrNotFound)
	}

	now := s.clock.Now()
	rows := make([]Row, 0, limit)
	for _, task := range tb.Tasks(0) {
		row := rowFromTask(task)
		if !filter.Eval(row, now) {
			continue
		}
		rows = append(rows, row)
		if len(rows) >= limit {
			break
		}
	}
	return rows, nil
}

// NewSession issues a consumer session token and registers it, so takes
// can tell an open session from a closed or never-issued one.
func (s *Service) NewSession() string {
	token := s.idgen.Next().String()
	s.mu.Lock()
	s.sessions[token] = nil
	s.mu.Unlock()
	return token
}

// CloseSession releases every task the session still holds, in take
// order. Tasks already acked, released, deleted or expired are skipped.
// This is the disconnect hook the transport calls on consumer teardown.
func (s *Service) CloseSession(_ context.Context, session string) int {
	s.mu.Lock()
	refs := s.sessions[session]
	delete(s.sessions, session)
	s.mu.Unlock()

	released := 0
	for _, ref := range refs {
		tb, ok := s.engine.Lookup(ref.Tube)
		if !ok {
			continue
		}
		if _, err := tb.Release(ref.ID, ref.Epoch, 0); err != nil {
			continue
		}
		released++
	}
	if released > 0 {
		s.logger.Info("session closed",
			log.Str("session", session),
			log.Int("released", released))
	}
	return released
}
