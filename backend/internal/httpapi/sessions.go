package httpapi

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"prompt-studio/backend/internal/layout"
	"prompt-studio/backend/internal/position"
	"prompt-studio/backend/internal/prompt"
	"prompt-studio/backend/internal/structure"
	"prompt-studio/backend/internal/workflow"
)

var errSessionNotFound = errors.New("session not found")

// EditorRemote is the prompt store as the editor sees it
type EditorRemote interface {
	structure.Remote
	workflow.Remote
}

// Session is one opened structure view
type Session struct {
	ID         string
	Root       string
	CreatedAt  time.Time
	Store      *structure.Store
	Dialog     *workflow.Dialog
	Dispatcher *structure.Dispatcher
}

// SessionOptions configures every view a registry opens
type SessionOptions struct {
	Layout      layout.Config
	RootDefault prompt.Position
}

// Registry owns the open views. Position writes of all views share one
// adapter so shutdown can wait for them.
type Registry struct {
	remote    EditorRemote
	positions *position.Adapter
	opts      SessionOptions
	logger    *zap.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry creates an empty session registry
func NewRegistry(remote EditorRemote, opts SessionOptions, log *zap.Logger) *Registry {
	return &Registry{
		remote:    remote,
		positions: position.NewAdapter(remote, log.Named("position")),
		opts:      opts,
		logger:    log,
		sessions:  make(map[string]*Session),
	}
}

// Open initializes a view rooted at name/version. A view whose
// initialization failed is not registered.
func (r *Registry) Open(ctx context.Context, name, version string) (*Session, error) {
	store := structure.NewStore(r.remote,
		structure.WithLayout(r.opts.Layout),
		structure.WithRootDefault(r.opts.RootDefault),
		structure.WithPersister(r.positions),
		structure.WithLogger(r.logger.Named("structure")),
	)
	if err := store.Initialize(ctx, name, version); err != nil {
		store.Close()
		return nil, err
	}

	s := &Session{
		ID:         uuid.New().String(),
		Root:       prompt.Key(name, version),
		CreatedAt:  time.Now(),
		Store:      store,
		Dialog:     workflow.NewDialog(r.remote, store, r.opts.Layout, r.logger.Named("workflow")),
		Dispatcher: structure.NewDispatcher(store),
	}
	s.Dispatcher.Register(structure.ActionAdd, func(_ context.Context, n structure.Node) (structure.Result, error) {
		snap, err := s.Dialog.Open(n.ID)
		if err != nil {
			return structure.Result{}, err
		}
		return structure.Result{Action: structure.ActionAdd, NodeID: n.ID, Data: snap}, nil
	})

	r.mu.Lock()
	r.sessions[s.ID] = s
	r.mu.Unlock()

	r.logger.Info("Session opened", zap.String("session", s.ID), zap.String("root", s.Root))
	return s, nil
}

// Get returns the session with id
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, errSessionNotFound
	}
	return s, nil
}

// Close abandons one view. Writes it already issued still complete.
func (r *Registry) Close(id string) error {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if !ok {
		return errSessionNotFound
	}
	s.Store.Close()
	r.logger.Info("Session closed", zap.String("session", id))
	return nil
}

// Len returns the number of open views
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Shutdown closes every view and waits for in-flight position writes
func (r *Registry) Shutdown() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	for _, s := range sessions {
		s.Store.Close()
	}
	r.positions.Wait()
}
