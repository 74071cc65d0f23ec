// Package structure keeps the node/edge graph of one opened prompt tree in
// sync with user edits and the remote prompt store.
//
// The Store is the only mutator of the graph. Every mutation is one critical
// section under the store mutex, and the mutex is never held across a remote
// call: while a write is in flight the view keeps accepting edits, and the
// call's outcome is folded back as a separate step.
package structure

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"prompt-studio/backend/internal/layout"
	"prompt-studio/backend/internal/position"
	"prompt-studio/backend/internal/prompt"
	apperrors "prompt-studio/backend/pkg/errors"
	"prompt-studio/backend/pkg/logger"
)

// Remote is the part of the prompt store the graph needs
type Remote interface {
	GetPrompt(ctx context.Context, name, version string) (*prompt.Prompt, error)
	GetChildren(ctx context.Context, name, version string) ([]prompt.Prompt, error)
	PatchParent(ctx context.Context, name, version string, parentID *string) error
	PatchPosition(ctx context.Context, name, version string, pos prompt.Position) error
}

// Persister stores final drag positions
type Persister interface {
	Persist(name, version string, pos prompt.Position)
}

// DefaultRootPosition is where a root without a saved position is drawn
var DefaultRootPosition = prompt.Position{X: 250, Y: 5}

// Store owns the nodes and edges of one view
type Store struct {
	remote      Remote
	positions   Persister
	layout      layout.Config
	rootDefault prompt.Position
	logger      *zap.Logger

	mu         sync.Mutex
	rootID     string
	nodes      []*Node
	index      map[string]*Node
	edges      []Edge
	generation uint64
	closed     bool
	subs       map[int]chan View
	nextSub    int
}

// Option customizes a Store
type Option func(*Store)

// WithLayout sets the spacing used for unplaced children
func WithLayout(cfg layout.Config) Option {
	return func(s *Store) {
		s.layout = cfg
	}
}

// WithRootDefault sets where a root without a saved position is drawn
func WithRootDefault(pos prompt.Position) Option {
	return func(s *Store) {
		s.rootDefault = pos
	}
}

// WithLogger replaces the component logger
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		s.logger = l
	}
}

// WithPersister replaces the position adapter built from the remote
func WithPersister(p Persister) Option {
	return func(s *Store) {
		s.positions = p
	}
}

// NewStore creates an empty view over remote
func NewStore(remote Remote, opts ...Option) *Store {
	s := &Store{
		remote:      remote,
		layout:      layout.DefaultConfig(),
		rootDefault: DefaultRootPosition,
		logger:      logger.Named("structure"),
		index:       make(map[string]*Node),
		subs:        make(map[int]chan View),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.positions == nil {
		s.positions = position.NewAdapter(remote, s.logger.Named("position"))
	}
	return s
}

// Initialize loads the root and its direct children and replaces the graph.
// Children without a saved position, or saved at the origin, are laid out
// under the root; all others keep their saved position. If either read
// fails the graph is left empty.
func (s *Store) Initialize(ctx context.Context, name, version string) error {
	rootKey := prompt.Key(name, version)

	var (
		root     *prompt.Prompt
		children []prompt.Prompt
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		root, err = s.remote.GetPrompt(gctx, name, version)
		return err
	})
	g.Go(func() error {
		var err error
		children, err = s.remote.GetChildren(gctx, name, version)
		return err
	})

	if err := g.Wait(); err != nil {
		failure := apperrors.NewInitializationFailed(rootKey, err)
		s.logger.Error("Error initializing graph", zap.String("root", rootKey), zap.Error(err))

		s.mu.Lock()
		defer s.mu.Unlock()
		if s.closed {
			return ErrClosed
		}
		s.resetLocked()
		s.publishLocked()
		return failure
	}

	nodes, edges := s.build(root, children)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.resetLocked()
	for _, n := range nodes {
		s.nodes = append(s.nodes, n)
		s.index[n.ID] = n
	}
	s.rootID = nodes[0].ID
	s.edges = edges
	s.publishLocked()

	s.logger.Info("Graph initialized",
		zap.String("root", s.rootID),
		zap.Int("nodes", len(s.nodes)),
		zap.Int("edges", len(s.edges)),
	)
	return nil
}

func (s *Store) build(root *prompt.Prompt, children []prompt.Prompt) ([]*Node, []Edge) {
	rootNode := &Node{
		ID:       root.Key(),
		Name:     root.Name,
		Version:  root.Version,
		Position: s.rootDefault,
		IsRoot:   true,
	}
	if pos, ok := root.FlowPosition(); ok {
		rootNode.Position = pos
	}

	nodes := []*Node{rootNode}
	seen := map[string]bool{rootNode.ID: true}
	var unplaced []*Node
	for _, child := range children {
		key := child.Key()
		if seen[key] {
			s.logger.Warn("Skipping duplicate prompt in children", zap.String("node", key))
			continue
		}
		seen[key] = true

		n := &Node{
			ID:         key,
			Name:       child.Name,
			Version:    child.Version,
			Detachable: true,
		}
		if pos, ok := child.FlowPosition(); ok && !pos.IsOrigin() {
			n.Position = pos
		} else {
			unplaced = append(unplaced, n)
		}
		nodes = append(nodes, n)
	}

	for i, pos := range layout.Children(s.layout, rootNode.Position, len(unplaced)) {
		unplaced[i].Position = pos
	}

	edges := make([]Edge, 0, len(nodes)-1)
	for _, n := range nodes[1:] {
		edges = append(edges, Edge{ID: EdgeID(rootNode.ID, n.ID), Source: rootNode.ID, Target: n.ID})
	}
	return nodes, edges
}

// ApplyPositionChange moves a node. Intermediate drag frames only update
// memory; the final frame also persists the rounded position. A failed
// persist keeps the local position.
func (s *Store) ApplyPositionChange(id string, pos prompt.Position, final bool) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	n, ok := s.index[id]
	if !ok {
		s.mu.Unlock()
		return ErrNodeNotFound
	}
	n.Position = pos
	name, version := n.Name, n.Version
	s.publishLocked()
	s.mu.Unlock()

	if final {
		s.positions.Persist(name, version, pos)
	}
	return nil
}

// Connect adds a local edge for a manual connect gesture. Nothing is persisted.
func (s *Store) Connect(source, target string) (Edge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return Edge{}, ErrClosed
	}
	if source == target {
		return Edge{}, ErrInvalidEdge
	}
	if s.index[source] == nil || s.index[target] == nil {
		return Edge{}, ErrNodeNotFound
	}

	edge := Edge{ID: EdgeID(source, target), Source: source, Target: target}
	for _, e := range s.edges {
		if e.ID == edge.ID {
			return e, nil
		}
	}
	s.edges = append(s.edges, edge)
	s.publishLocked()
	return edge, nil
}

// Detach clears the node's parent in the store and, once that succeeded,
// drops it from the view. The remote prompt is not deleted. On failure the
// graph is untouched.
func (s *Store) Detach(ctx context.Context, id string) error {
	n, gen, err := s.detachable(id)
	if err != nil {
		return err
	}

	if err := s.remote.PatchParent(ctx, n.Name, n.Version, nil); err != nil {
		failure := apperrors.NewStructuralWriteFailed("detach", id, prompt.ParentPatch{}, err)
		s.logger.Error("Error removing node",
			zap.String("node", id),
			zap.Any("payload", prompt.ParentPatch{}),
			zap.Error(err),
		)
		return failure
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if _, ok := s.index[id]; !ok || s.generation != gen {
		// Hidden or re-initialized meanwhile; nothing left to fold.
		return nil
	}
	s.removeLocked(id)
	s.publishLocked()

	s.logger.Info("Node detached", zap.String("node", id))
	return nil
}

// Hide drops a node from the view without touching the store
func (s *Store) Hide(id string) error {
	if _, _, err := s.detachable(id); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if _, ok := s.index[id]; !ok {
		return ErrNodeNotFound
	}
	s.removeLocked(id)
	s.publishLocked()
	return nil
}

func (s *Store) detachable(id string) (Node, uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return Node{}, 0, ErrClosed
	}
	n, ok := s.index[id]
	if !ok {
		return Node{}, 0, ErrNodeNotFound
	}
	if n.IsRoot {
		return Node{}, 0, ErrRootNotDetachable
	}
	return *n, s.generation, nil
}

// AttachChild folds a committed remote fact into the view: the child, keyed
// by its canonical name and version, is added under parentID.
func (s *Store) AttachChild(parentID string, child prompt.Prompt, pos prompt.Position) (Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return Node{}, ErrClosed
	}
	if s.index[parentID] == nil {
		return Node{}, ErrNodeNotFound
	}
	key := child.Key()
	if s.index[key] != nil {
		return Node{}, ErrNodeExists
	}

	n := &Node{
		ID:         key,
		Name:       child.Name,
		Version:    child.Version,
		Position:   pos,
		Detachable: true,
	}
	s.nodes = append(s.nodes, n)
	s.index[key] = n
	s.edges = append(s.edges, Edge{ID: EdgeID(parentID, key), Source: parentID, Target: key})
	s.publishLocked()
	return *n, nil
}

// removeLocked drops id and every edge touching it. Other nodes stay even
// when they are left without an incoming edge.
func (s *Store) removeLocked(id string) {
	nodes := s.nodes[:0]
	for _, n := range s.nodes {
		if n.ID == id {
			continue
		}
		nodes = append(nodes, n)
	}
	for i := len(nodes); i < len(s.nodes); i++ {
		s.nodes[i] = nil
	}
	s.nodes = nodes
	delete(s.index, id)

	edges := make([]Edge, 0, len(s.edges))
	for _, e := range s.edges {
		if e.Source == id || e.Target == id {
			continue
		}
		edges = append(edges, e)
	}
	s.edges = edges
}

func (s *Store) resetLocked() {
	s.rootID = ""
	s.nodes = nil
	s.index = make(map[string]*Node)
	s.edges = nil
	s.generation++
}

// Node returns a copy of the node with id
func (s *Store) Node(id string) (Node, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.index[id]
	if !ok {
		return Node{}, false
	}
	return *n, true
}

// Root returns the root node, if the view is initialized
func (s *Store) Root() (Node, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rootID == "" {
		return Node{}, false
	}
	return *s.index[s.rootID], true
}

// Nodes returns a copy of all nodes, root first
func (s *Store) Nodes() []Node {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Node, len(s.nodes))
	for i, n := range s.nodes {
		out[i] = *n
	}
	return out
}

// Edges returns a copy of all edges
func (s *Store) Edges() []Edge {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Edge(nil), s.edges...)
}

// Contains reports whether a node key is drawn
func (s *Store) Contains(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.index[id]
	return ok
}

// View regenerates the render lists from the current graph
func (s *Store) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked()
}

func (s *Store) viewLocked() View {
	v := View{
		Root:  s.rootID,
		Nodes: make([]RenderNode, 0, len(s.nodes)),
		Edges: make([]RenderEdge, 0, len(s.edges)),
	}
	for _, n := range s.nodes {
		v.Nodes = append(v.Nodes, renderNode(n))
	}
	for _, e := range s.edges {
		v.Edges = append(v.Edges, renderEdge(e))
	}
	return v
}

// Close abandons the view. Remote calls still in flight complete, but their
// results no longer change anything here.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for id, ch := range s.subs {
		close(ch)
		delete(s.subs, id)
	}
}

// Wait blocks until dispatched position writes have finished
func (s *Store) Wait() {
	if w, ok := s.positions.(interface{ Wait() }); ok {
		w.Wait()
	}
}
