package engine

import (
	"fmt"
	"math/rand"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dreadatour/deque/internal/config"
	pebblestore "github.com/dreadatour/deque/internal/storage/pebble"
	"github.com/dreadatour/deque/internal/tube"
	"github.com/dreadatour/deque/pkg/log"
)

// Options configures an engine instance.
type Options struct {
	// DataDir is the journal directory. Empty keeps the engine purely
	// in-memory (no journal, nothing survives a restart).
	DataDir string
	// Fsync selects the journal's WAL sync policy.
	Fsync         pebblestore.FsyncMode
	FsyncInterval time.Duration

	// Clock defaults to the system clock.
	Clock tube.Clock
	// Config defaults to config.Default().
	Config *config.Config
	// Logger defaults to a discard logger.
	Logger log.Logger
}

// Engine is the tube registry. tube(name) resolution is idempotent: no
// two callers ever observe different Tube instances for the same name.
type Engine struct {
	logger log.Logger
	clock  tube.Clock
	cfg    config.Config
	nameRe *regexp.Regexp
	db     *pebblestore.DB

	mu    sync.RWMutex
	tubes map[string]*tube.Tube

	sweepMu   sync.Mutex
	sweepStop chan struct{}
}

// Open creates an engine and reloads any journaled tubes from DataDir.
func Open(opts Options) (*Engine, error) {
	if opts.Clock == nil {
		opts.Clock = tube.SystemClock()
	}
	if opts.Logger == nil {
		opts.Logger = log.Discard()
	}
	cfg := config.Default()
	if opts.Config != nil {
		cfg = *opts.Config
	}

	pattern := cfg.TubeNameRegex
	if !strings.HasPrefix(pattern, "^") {
		pattern = "^" + pattern + "$"
	}
	nameRe, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("compile tube name regex %q: %w", cfg.TubeNameRegex, err)
	}

	e := &Engine{
		logger: opts.Logger.WithComponent("engine"),
		clock:  opts.Clock,
		cfg:    cfg,
		nameRe: nameRe,
		tubes:  make(map[string]*tube.Tube),
	}

	if opts.DataDir != "" {
		db, err := pebblestore.Open(pebblestore.Options{
			DataDir:       filepath.Join(opts.DataDir, "deque"),
			Fsync:         opts.Fsync,
			FsyncInterval: opts.FsyncInterval,
		})
		if err != nil {
			return nil, fmt.Errorf("open journal: %w", err)
		}
		e.db = db
		if err := e.reload(); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return e, nil
}

// reload re-opens every tube that left keys in the journal.
func (e *Engine) reload() error {
	names, err := journaledTubeNames(e.db)
	if err != nil {
		return fmt.Errorf("scan journal: %w", err)
	}
	for _, name := range names {
		tb, err := e.openTube(name)
		if err != nil {
			return err
		}
		e.tubes[name] = tb
		st := tb.Stats()
		e.logger.Info("tube reloaded",
			log.Str("tube", name),
			log.Int("ready", st.Ready),
			log.Int("delayed", st.Delayed))
	}
	return nil
}

// journaledTubeNames scans tube/{name}/... keys and returns the distinct
// names in key order.
func journaledTubeNames(db *pebblestore.DB) ([]string, error) {
	iter, err := db.PrefixIter([]byte("tube/"))
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var names []string
	last := ""
	for ok := iter.First(); ok; ok = iter.Next() {
		key := string(iter.Key())
		rest := strings.TrimPrefix(key, "tube/")
		slash := strings.IndexByte(rest, '/')
		if slash <= 0 {
			continue
		}
		name := rest[:slash]
		if name != last {
			names = append(names, name)
			last = name
		}
	}
	return names, nil
}

func (e *Engine) openTube(name string) (*tube.Tube, error) {
	return tube.Open(name, tube.Options{
		Clock:           e.clock,
		Logger:          e.logger,
		DB:              e.db,
		PayloadMaxBytes: e.cfg.TubeDefaults.PayloadMaxBytes,
	})
}

// Tube returns the tube with the given name, creating it on first
// reference when admission policy allows.
func (e *Engine) Tube(name string) (*tube.Tube, error) {
	e.mu.RLock()
	tb, ok := e.tubes[name]
	e.mu.RUnlock()
	if ok {
		return tb, nil
	}

	if !e.nameRe.MatchString(name) {
		return nil, fmt.Errorf("invalid tube name %q: %w", name, tube.ErrBadArguments)
	}
	if !e.allowed(name) {
		return nil, fmt.Errorf("tube %q not in allowed list: %w", name, tube.ErrBadArguments)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if tb, ok := e.tubes[name]; ok {
		return tb, nil
	}
	if !e.cfg.AllowAutoCreateTubes {
		return nil, fmt.Errorf("unknown tube %q: %w", name, tube.ErrNotFound)
	}
	if e.cfg.MaxTubes > 0 && len(e.tubes) >= e.cfg.MaxTubes {
		return nil, fmt.Errorf("tube limit %d reached: %w", e.cfg.MaxTubes, tube.ErrBadArguments)
	}
	tb, err := e.openTube(name)
	if err != nil {
		return nil, err
	}
	e.tubes[name] = tb
	e.logger.Info("tube created", log.Str("tube", name))
	return tb, nil
}

func (e *Engine) allowed(name string) bool {
	if len(e.cfg.AllowedTubes) == 0 {
		return true
	}
	for _, n := range e.cfg.AllowedTubes {
		if n == name {
			return true
		}
	}
	return false
}

// Lookup returns an existing tube without creating one.
func (e *Engine) Lookup(name string) (*tube.Tube, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	tb, ok := e.tubes[name]
	return tb, ok
}

// Drop removes the named tube. Dropping an unknown tube succeeds; a tube
// with taken tasks or blocked consumers fails with tube.ErrTubeBusy.
func (e *Engine) Drop(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	tb, ok := e.tubes[name]
	if !ok {
		return nil
	}
	if err := tb.Drop(); err != nil {
		return err
	}
	delete(e.tubes, name)
	e.logger.Info("tube dropped", log.Str("tube", name))
	return nil
}

// Names returns the registered tube names, sorted.
func (e *Engine) Names() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	names := make([]string, 0, len(e.tubes))
	for name := range e.tubes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SweepAll runs one sweep tick over every tube.
func (e *Engine) SweepAll() (expired, promoted int) {
	e.mu.RLock()
	tubes := make([]*tube.Tube, 0, len(e.tubes))
	for _, tb := range e.tubes {
		tubes = append(tubes, tb)
	}
	e.mu.RUnlock()

	for _, tb := range tubes {
		ex, pr := tb.Sweep(e.cfg.TubeDefaults.SweepBatch)
		expired += ex
		promoted += pr
	}
	return expired, promoted
}

// StartSweeper runs a background loop sweeping all tubes, so delayed
// tasks wake blocked consumers without requiring a touch.
func (e *Engine) StartSweeper(interval time.Duration) {
	e.sweepMu.Lock()
	defer e.sweepMu.Unlock()
	if e.sweepStop != nil {
		return
	}
	if interval <= 0 {
		ms := e.cfg.TubeDefaults.SweepIntervalMs
		if ms <= 0 {
			ms = 500
		}
		interval = time.Duration(ms) * time.Millisecond
	}
	e.sweepStop = make(chan struct{})
	stop := e.sweepStop
	go func() {
		rng := rand.New(rand.NewSource(time.Now().UnixNano()))
		for {
			select {
			case <-stop:
				return
			case <-time.After(interval + time.Duration(rng.Int63n(int64(interval/10+1)))):
				expired, promoted := e.SweepAll()
				if expired > 0 || promoted > 0 {
					e.logger.Debug("sweep tick",
						log.Int("expired", expired),
						log.Int("promoted", promoted))
				}
			}
		}
	}()
}

// StopSweeper stops the background sweeper.
func (e *Engine) StopSweeper() {
	e.sweepMu.Lock()
	defer e.sweepMu.Unlock()
	if e.sweepStop != nil {
		close(e.sweepStop)
		e.sweepStop = nil
	}
}

// CheckHealth reports whether the journal is reachable.
func (e *Engine) CheckHealth() error {
	if e.db == nil {
		return nil
	}
	_, err := e.db.Get([]byte("healthz"))
	if err != nil && err != pebblestore.ErrNotFound {
		return err
	}
	return nil
}

// Close stops the sweeper and closes the journal.
func (e *Engine) Close() error {
	e.StopSweeper()
	if e.db != nil {
		return e.db.Close()
	}
	return nil
}
