// Package dispatch executes planned actions through a table of named
// handlers inside a uniform envelope: every invocation, however it ends,
// produces one ActionResult, and no handler failure escapes the dispatcher.
package dispatch

import (
	"context"
	"fmt"
	"strings"

	"github.com/valet-hq/valet/internal/core"
	"github.com/valet-hq/valet/internal/logging"
	"github.com/valet-hq/valet/internal/notify"
)

// HandlerResult is what a handler returns on success. Details become the
// result's details map; SkipOwnerNotification suppresses the post-success
// notify policy for handlers that already pushed their own summary.
type HandlerResult struct {
	Details               map[string]any
	SkipOwnerNotification bool
}

// Handler executes one named action.
type Handler interface {
	// Name is the action name this handler owns.
	Name() string

	// Execute runs the action against the plan's fields.
	Execute(ctx context.Context, plan core.Plan) (*HandlerResult, error)
}

// Config for the dispatcher.
type Config struct {
	// OwnerContact is where owner notifications go (gateway address or
	// direct target). Empty disables the notify policy.
	OwnerContact string

	// GatewayAddress is the email-to-SMS gateway address. A send_email
	// action targeting it is itself a notification; notifying about it
	// would start a feedback loop.
	GatewayAddress string
}

// Dispatcher owns the action table and the notify-on-completion policy.
// Each invocation is independent; no state persists between calls.
type Dispatcher struct {
	handlers map[string]Handler
	notifier notify.Notifier
	cfg      Config
}

// NewDispatcher creates a dispatcher. The notifier may be nil; notification
// is always best-effort.
func NewDispatcher(notifier notify.Notifier, cfg Config) *Dispatcher {
	return &Dispatcher{
		handlers: make(map[string]Handler),
		notifier: notifier,
		cfg:      cfg,
	}
}

// Register adds a handler to the table.
func (d *Dispatcher) Register(h Handler) {
	d.handlers[h.Name()] = h
}

// Actions returns the registered action names.
func (d *Dispatcher) Actions() []string {
	names := make([]string, 0, len(d.handlers))
	for name := range d.handlers {
		names = append(names, name)
	}
	return names
}

// Dispatch executes the plan's action. The state machine per invocation is
// received, then rejected (no action / unsupported) or dispatched, then
// succeeded or failed, then optionally notified.
func (d *Dispatcher) Dispatch(ctx context.Context, plan core.Plan) core.ActionResult {
	action := strings.TrimSpace(plan.Action)
	if action == "" {
		return core.ActionResult{Success: false, Error: core.ErrMissingAction.Error()}
	}

	handler, ok := d.handlers[action]
	if !ok {
		logging.Warn("planned action %q has no handler", action)
		d.notifyOwner(ctx, fmt.Sprintf("I planned an action I don't support yet: %s", action))
		return core.ActionResult{Success: false, Action: action, Error: core.ErrUnsupportedAction.Error()}
	}

	result, err := d.execute(ctx, handler, plan)
	if err != nil {
		logging.Error("action %s failed: %v", action, err)
		d.notifyOwner(ctx, fmt.Sprintf("Action %s failed: %v", action, err))
		return core.ActionResult{Success: false, Action: action, Error: err.Error()}
	}

	if d.shouldNotify(plan, result) {
		d.notifyOwner(ctx, plan.Response)
	}

	return core.ActionResult{Success: true, Action: action, Details: result.Details}
}

// execute invokes the handler with a panic boundary. A panicking handler is
// a failure, not a crash.
func (d *Dispatcher) execute(ctx context.Context, handler Handler, plan core.Plan) (result *HandlerResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()

	result, err = handler.Execute(ctx, plan)
	if err != nil {
		return nil, err
	}
	if result == nil {
		result = &HandlerResult{}
	}
	return result, nil
}

// shouldNotify applies the notify-if-needed policy after a successful
// handler: a free-text reply exists, an owner contact is configured, the
// handler did not opt out, and the action is not itself a delivery to the
// gateway address (loop prevention).
func (d *Dispatcher) shouldNotify(plan core.Plan, result *HandlerResult) bool {
	if strings.TrimSpace(plan.Response) == "" {
		return false
	}
	if d.cfg.OwnerContact == "" || d.notifier == nil {
		return false
	}
	if result.SkipOwnerNotification {
		return false
	}
	if plan.Action == "send_email" && d.cfg.GatewayAddress != "" {
		to := plan.FirstString("to", "recipient", "email")
		if strings.EqualFold(to, d.cfg.GatewayAddress) {
			return false
		}
	}
	return true
}

// notifyOwner is best-effort; a failed notification is logged, never fatal.
func (d *Dispatcher) notifyOwner(ctx context.Context, message string) {
	if d.notifier == nil || d.cfg.OwnerContact == "" || message == "" {
		return
	}
	if err := d.notifier.Deliver(ctx, d.cfg.OwnerContact, message); err != nil {
		logging.Warn("owner notification failed: %v", err)
	}
}
