package session

import (
	"context"
	"fmt"
	"sync"

	apperrors "github.com/carbon-tracker/internal/errors"
	"github.com/carbon-tracker/internal/logging"
	"github.com/carbon-tracker/internal/notify"
)

// State represents the bootstrap lifecycle of the encryption subsystem
type State int

const (
	// StateDisconnected means no session has triggered initialization yet
	StateDisconnected State = iota
	// StateInitializing means initialization is in flight
	StateInitializing
	// StateReady means the encryption subsystem is usable
	StateReady
	// StateFailed means the last attempt failed; the next trigger retries
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Initializer prepares the encryption subsystem for use
type Initializer interface {
	Initialize(ctx context.Context) error
}

// Bootstrap ensures the encryption subsystem is initialized exactly once per
// connected session before any encrypt or decrypt workflow runs. Reentrant:
// triggers arriving while initialization is in flight or already complete are
// no-ops. There is no retry scheduling; a failed attempt waits for the next
// external trigger.
type Bootstrap struct {
	init     Initializer
	notifier *notify.Notifier
	history  *notify.HistoryLog
	logger   *logging.Logger

	mu    sync.Mutex
	state State
}

// NewBootstrap creates a bootstrap over the given initializer
func NewBootstrap(init Initializer, notifier *notify.Notifier, history *notify.HistoryLog) (*Bootstrap, error) {
	if init == nil {
		return nil, fmt.Errorf("initializer cannot be nil")
	}
	if notifier == nil {
		return nil, fmt.Errorf("notifier cannot be nil")
	}
	if history == nil {
		return nil, fmt.Errorf("history log cannot be nil")
	}

	return &Bootstrap{
		init:     init,
		notifier: notifier,
		history:  history,
		logger:   logging.GetGlobalLogger().WithField("component", "bootstrap"),
	}, nil
}

// OnConnect drives the state machine when a wallet session becomes active.
// Safe to call concurrently and repeatedly.
func (b *Bootstrap) OnConnect(ctx context.Context) error {
	b.mu.Lock()
	if b.state == StateReady || b.state == StateInitializing {
		b.mu.Unlock()
		return nil
	}
	b.state = StateInitializing
	b.mu.Unlock()

	err := b.init.Initialize(ctx)

	b.mu.Lock()
	if err != nil {
		b.state = StateFailed
	} else {
		b.state = StateReady
	}
	b.mu.Unlock()

	if err != nil {
		b.logger.WithError(err).Error("Encryption subsystem initialization failed")
		b.notifier.Error("FHE initialization failed")
		return apperrors.NewInitializationFailedError(err)
	}

	b.history.Append("FHE system initialized successfully")
	return nil
}

// OnDisconnect resets the state machine so a future session re-initializes
func (b *Bootstrap) OnDisconnect() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != StateInitializing {
		b.state = StateDisconnected
	}
}

// Ready reports whether the encryption subsystem is usable
func (b *Bootstrap) Ready() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state == StateReady
}

// State returns the current bootstrap state
func (b *Bootstrap) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
