package model

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

var (
	ErrNotReady   = errors.New("model is not ready")
	ErrLoadFailed = errors.New("model failed to load")
)

// LoadFunc acquires the model. It runs at most once per Manager.
type LoadFunc func(ctx context.Context) (*Handle, error)

type snapshot struct {
	state  State
	handle *Handle
	err    error
}

// Manager owns the model handle. Readers see state, handle and load error
// as one consistent snapshot.
type Manager struct {
	load   LoadFunc
	logger *zap.Logger

	current atomic.Pointer[snapshot]
	start   sync.Once
	done    chan struct{}
}

func NewManager(load LoadFunc, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{
		load:   load,
		logger: logger,
		done:   make(chan struct{}),
	}
	m.current.Store(&snapshot{state: NotLoaded})
	return m
}

// Start launches the load task and returns immediately. Calls after the
// first are no-ops.
func (m *Manager) Start(ctx context.Context) {
	m.start.Do(func() {
		m.transition(NotLoaded, &snapshot{state: Loading})
		go m.run(ctx)
	})
}

func (m *Manager) run(ctx context.Context) {
	defer close(m.done)

	m.logger.Info("loading whisper model in background")
	started := time.Now()

	handle, err := m.safeLoad(ctx)
	if err == nil && handle == nil {
		err = errors.New("loader returned no model")
	}
	if err != nil {
		m.transition(Loading, &snapshot{state: Failed, err: err})
		m.logger.Error("whisper model failed to load", zap.Duration("elapsed", time.Since(started)), zap.Error(err))
		return
	}

	m.transition(Loading, &snapshot{state: Ready, handle: handle})
	m.logger.Info("whisper model loaded",
		zap.String("model", handle.Model.Label()),
		zap.String("path", handle.Model.Path),
		zap.Duration("elapsed", time.Since(started)),
	)
}

func (m *Manager) safeLoad(ctx context.Context) (handle *Handle, err error) {
	defer func() {
		if r := recover(); r != nil {
			handle, err = nil, fmt.Errorf("load panicked: %v", r)
		}
	}()
	return m.load(ctx)
}

func (m *Manager) transition(from State, next *snapshot) {
	prev := m.current.Load()
	if prev.state != from || !m.current.CompareAndSwap(prev, next) {
		m.logger.Warn("ignoring model state transition", zap.Stringer("from", prev.state), zap.Stringer("to", next.state))
	}
}

func (m *Manager) State() State {
	return m.current.Load().state
}

// Err returns the load failure, if any.
func (m *Manager) Err() error {
	return m.current.Load().err
}

// Acquire returns the handle once Ready. While loading it returns
// ErrNotReady; after a failed load the error wraps ErrLoadFailed and the cause.
func (m *Manager) Acquire() (*Handle, error) {
	snap := m.current.Load()
	switch snap.state {
	case Ready:
		return snap.handle, nil
	case Failed:
		return nil, fmt.Errorf("%w: %w", ErrLoadFailed, snap.err)
	default:
		return nil, fmt.Errorf("%w: %s", ErrNotReady, snap.state)
	}
}

// Wait blocks until the load task finished or ctx is done. It returns the
// load error, if any.
func (m *Manager) Wait(ctx context.Context) error {
	select {
	case <-m.done:
		return m.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}
