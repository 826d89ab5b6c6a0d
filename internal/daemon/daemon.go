package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"sketchreel/internal/config"
	"sketchreel/internal/ledger"
	"sketchreel/internal/logging"
	"sketchreel/internal/pipeline"
)

// ErrAlreadyRunning reports that another instance holds the daemon lock.
var ErrAlreadyRunning = errors.New("another sketchreel daemon instance is already running")

// Loop is the watch loop the daemon drives.
type Loop interface {
	Run(ctx context.Context) error
	LastCycle() (pipeline.CycleReport, bool)
	Cycles() int
	Remote() string
}

// Daemon runs the watch loop under a single-instance lock.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger
	loop   Loop
	store  *ledger.Store

	lockPath string
	lock     *flock.Flock

	running   atomic.Bool
	mu        sync.RWMutex
	startedAt time.Time
	api       *apiServer
	onLocked  []LockedHook
}

// LockedHook runs once the daemon holds its lock. The returned release func,
// if any, runs when the daemon stops.
type LockedHook func() (release func(), err error)

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	StartedAt    time.Time
	Remote       string
	Cycles       int
	LastCycle    *pipeline.CycleReport
	LedgerPath   string
	LockFilePath string
	APIAddress   string
}

// New constructs a daemon. store may be nil when the ledger is disabled.
func New(cfg *config.Config, loop Loop, store *ledger.Store, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || loop == nil {
		return nil, errors.New("daemon requires config and a watch loop")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	lockPath := cfg.LockPath()
	return &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		loop:     loop,
		store:    store,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}, nil
}

// Run acquires the lock, starts the status API when configured and blocks in
// the watch loop until ctx is cancelled.
func (d *Daemon) Run(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}
	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return ErrAlreadyRunning
	}
	defer func() {
		if err := d.lock.Unlock(); err != nil {
			d.logger.Warn("failed to release daemon lock", logging.Error(err))
		}
	}()

	for _, hook := range d.onLocked {
		release, err := hook()
		if err != nil {
			return err
		}
		if release != nil {
			defer release()
		}
	}

	d.mu.Lock()
	d.startedAt = time.Now()
	d.mu.Unlock()

	srv, err := newAPIServer(d.cfg, d, d.logger)
	if err != nil {
		return err
	}
	if err := srv.start(ctx); err != nil {
		return err
	}
	d.mu.Lock()
	d.api = srv
	d.mu.Unlock()
	defer srv.stop()

	d.running.Store(true)
	defer d.running.Store(false)
	d.logger.Info("sketchreel daemon started",
		logging.String(logging.FieldEventType, "daemon_start"),
		logging.String("lock", d.lockPath),
		logging.String("remote", d.loop.Remote()),
	)

	err = d.loop.Run(ctx)
	d.logger.Info("sketchreel daemon stopped", logging.String(logging.FieldEventType, "daemon_stop"))
	return err
}

// OnLocked registers a hook that runs after the lock is acquired and before
// the watch loop starts. Hooks never run for an instance that loses the lock.
func (d *Daemon) OnLocked(hook LockedHook) {
	if hook != nil {
		d.onLocked = append(d.onLocked, hook)
	}
}

// Running reports whether the watch loop is active.
func (d *Daemon) Running() bool {
	return d.running.Load()
}

// APIAddress returns the bound status API address, or "" when disabled.
func (d *Daemon) APIAddress() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.api.address()
}

// Status returns the current daemon status.
func (d *Daemon) Status() Status {
	d.mu.RLock()
	startedAt := d.startedAt
	d.mu.RUnlock()

	status := Status{
		Running:      d.running.Load(),
		StartedAt:    startedAt,
		Remote:       d.loop.Remote(),
		Cycles:       d.loop.Cycles(),
		LockFilePath: d.lockPath,
		APIAddress:   d.APIAddress(),
	}
	if report, ok := d.loop.LastCycle(); ok {
		status.LastCycle = &report
	}
	if d.store != nil {
		status.LedgerPath = d.store.Path()
	}
	return status
}
