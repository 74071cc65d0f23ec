package structure

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"go.uber.org/zap"
)

// Result is what a node action hands back to the caller
type Result struct {
	Action Action `json:"action"`
	NodeID string `json:"nodeId"`
	// URL is set by open
	URL string `json:"url,omitempty"`
	// Data carries handler specific output, e.g. the dialog state for add
	Data any `json:"data,omitempty"`
}

// Handler runs one action against a drawn node
type Handler func(ctx context.Context, n Node) (Result, error)

// Dispatcher routes node actions by name. Nodes hold no callbacks; the
// handler is looked up here with the node id at the time of the gesture.
type Dispatcher struct {
	store    *Store
	logger   *zap.Logger
	mu       sync.RWMutex
	handlers map[Action]Handler
}

// NewDispatcher creates a dispatcher with open, detach and hide registered.
// add depends on the editor and is registered by it.
func NewDispatcher(store *Store) *Dispatcher {
	d := &Dispatcher{
		store:    store,
		logger:   store.logger,
		handlers: make(map[Action]Handler),
	}
	d.Register(ActionOpen, d.open)
	d.Register(ActionDetach, d.detach)
	d.Register(ActionHide, d.hide)
	return d
}

// Register sets the handler for action, replacing any previous one
func (d *Dispatcher) Register(action Action, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[action] = h
}

// Dispatch runs action on the node with id
func (d *Dispatcher) Dispatch(ctx context.Context, id string, action Action) (Result, error) {
	d.mu.RLock()
	h, ok := d.handlers[action]
	d.mu.RUnlock()
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrUnknownAction, action)
	}

	n, found := d.store.Node(id)
	if !found {
		return Result{}, ErrNodeNotFound
	}
	if !allowed(&n, action) {
		return Result{}, fmt.Errorf("%w: %s on %s", ErrRootNotDetachable, action, id)
	}

	d.logger.Debug("Dispatching node action", zap.String("node", id), zap.String("action", string(action)))
	return h(ctx, n)
}

func allowed(n *Node, action Action) bool {
	for _, a := range actionsFor(n) {
		if a == action {
			return true
		}
	}
	return false
}

func (d *Dispatcher) open(_ context.Context, n Node) (Result, error) {
	return Result{Action: ActionOpen, NodeID: n.ID, URL: PromptURL(n.Name, n.Version)}, nil
}

func (d *Dispatcher) detach(ctx context.Context, n Node) (Result, error) {
	if err := d.store.Detach(ctx, n.ID); err != nil {
		return Result{}, err
	}
	return Result{Action: ActionDetach, NodeID: n.ID}, nil
}

func (d *Dispatcher) hide(_ context.Context, n Node) (Result, error) {
	if err := d.store.Hide(n.ID); err != nil {
		return Result{}, err
	}
	return Result{Action: ActionHide, NodeID: n.ID}, nil
}

// PromptURL is the editor page of a prompt
func PromptURL(name, version string) string {
	return "/prompts/" + url.PathEscape(name) + "/" + url.PathEscape(version)
}
