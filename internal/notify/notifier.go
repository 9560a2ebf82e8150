// Package notify provides the transient transaction-status notifier and the
// bounded operation history log shared by all workflows.
package notify

import (
	"sync"
	"time"

	evbus "github.com/asaskevich/EventBus"

	"github.com/carbon-tracker/internal/types"
)

// StatusTopic is the event bus topic transaction statuses are published on
const StatusTopic = "tx:status"

const (
	defaultSuccessHideDelay = 2 * time.Second
	defaultErrorHideDelay   = 3 * time.Second
)

// Status is the transient value object shown to the user.
// Only one status is displayed at a time; a newer Show supersedes it.
type Status struct {
	Visible bool             `json:"visible"`
	Kind    types.StatusKind `json:"status"`
	Message string           `json:"message"`
}

// Notifier broadcasts transaction statuses over an event bus and keeps the
// single current slot. Success and error statuses auto-hide after a fixed
// delay unless a newer status supersedes them first; pending statuses stay
// visible until superseded.
type Notifier struct {
	bus              evbus.Bus
	successHideDelay time.Duration
	errorHideDelay   time.Duration

	mu      sync.Mutex
	current Status
	gen     uint64
}

// NewNotifier creates a notifier with the default auto-hide delays
func NewNotifier() *Notifier {
	return NewNotifierWithDelays(defaultSuccessHideDelay, defaultErrorHideDelay)
}

// NewNotifierWithDelays creates a notifier with explicit auto-hide delays
func NewNotifierWithDelays(successDelay, errorDelay time.Duration) *Notifier {
	return &Notifier{
		bus:              evbus.New(),
		successHideDelay: successDelay,
		errorHideDelay:   errorDelay,
	}
}

// Subscribe registers a handler for status events
func (n *Notifier) Subscribe(fn func(Status)) error {
	return n.bus.Subscribe(StatusTopic, fn)
}

// Unsubscribe removes a previously registered handler
func (n *Notifier) Unsubscribe(fn func(Status)) error {
	return n.bus.Unsubscribe(StatusTopic, fn)
}

// Pending shows a pending status. It never auto-hides.
func (n *Notifier) Pending(message string) {
	n.show(types.StatusPending, message, 0)
}

// Success shows a success status that auto-hides
func (n *Notifier) Success(message string) {
	n.show(types.StatusSuccess, message, n.successHideDelay)
}

// Error shows an error status that auto-hides
func (n *Notifier) Error(message string) {
	n.show(types.StatusError, message, n.errorHideDelay)
}

// Current returns the currently displayed status
func (n *Notifier) Current() Status {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.current
}

func (n *Notifier) show(kind types.StatusKind, message string, hideAfter time.Duration) {
	n.mu.Lock()
	n.gen++
	gen := n.gen
	n.current = Status{Visible: true, Kind: kind, Message: message}
	status := n.current
	n.mu.Unlock()

	n.bus.Publish(StatusTopic, status)

	if hideAfter > 0 {
		time.AfterFunc(hideAfter, func() { n.hide(gen) })
	}
}

// hide clears the slot only if no newer status has been shown since the timer
// was scheduled.
func (n *Notifier) hide(gen uint64) {
	n.mu.Lock()
	if gen != n.gen {
		n.mu.Unlock()
		return
	}
	n.current = Status{}
	status := n.current
	n.mu.Unlock()

	n.bus.Publish(StatusTopic, status)
}
