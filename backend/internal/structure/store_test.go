package structure

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"prompt-studio/backend/internal/prompt"
	apperrors "prompt-studio/backend/pkg/errors"
)

// fakeRemote serves a fixed root and children and records writes
type fakeRemote struct {
	mu          sync.Mutex
	root        *prompt.Prompt
	children    []prompt.Prompt
	rootErr     error
	childrenErr error
	parentErr   error
	parentCalls []string
	posCalls    []prompt.Position
}

func (f *fakeRemote) GetPrompt(ctx context.Context, name, version string) (*prompt.Prompt, error) {
	if f.rootErr != nil {
		return nil, f.rootErr
	}
	return f.root, nil
}

func (f *fakeRemote) GetChildren(ctx context.Context, name, version string) ([]prompt.Prompt, error) {
	if f.childrenErr != nil {
		return nil, f.childrenErr
	}
	return f.children, nil
}

func (f *fakeRemote) PatchParent(ctx context.Context, name, version string, parentID *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.parentCalls = append(f.parentCalls, prompt.Key(name, version))
	return f.parentErr
}

func (f *fakeRemote) PatchPosition(ctx context.Context, name, version string, pos prompt.Position) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.posCalls = append(f.posCalls, pos)
	return nil
}

func (f *fakeRemote) parents() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.parentCalls...)
}

func (f *fakeRemote) positions() []prompt.Position {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]prompt.Position(nil), f.posCalls...)
}

func at(x, y float64) *prompt.Position {
	return &prompt.Position{X: x, Y: y}
}

func entity(name, version string, pos *prompt.Position) prompt.Prompt {
	return prompt.Prompt{Name: name, Version: version, Metadata: prompt.Metadata{FlowPosition: pos}}
}

func newTestStore(t *testing.T, remote *fakeRemote) *Store {
	t.Helper()
	s := NewStore(remote, WithLogger(zap.NewNop()))
	t.Cleanup(s.Close)
	return s
}

func TestInitialize_OneRootAndOneEdgePerChild(t *testing.T) {
	root := entity("root", "1.0", nil)
	remote := &fakeRemote{
		root: &root,
		children: []prompt.Prompt{
			entity("a", "1", nil),
			entity("b", "1", nil),
			entity("c", "1", nil),
		},
	}
	s := newTestStore(t, remote)

	require.NoError(t, s.Initialize(context.Background(), "root", "1.0"))

	roots := 0
	for _, n := range s.Nodes() {
		if n.IsRoot {
			roots++
			assert.False(t, n.Detachable)
		} else {
			assert.True(t, n.Detachable)
		}
	}
	assert.Equal(t, 1, roots)

	edges := s.Edges()
	require.Len(t, edges, 3)
	for _, e := range edges {
		assert.Equal(t, "root_1.0", e.Source)
		assert.Equal(t, EdgeID("root_1.0", e.Target), e.ID)
	}
}

func TestInitialize_RootDefaultAndLayout(t *testing.T) {
	root := entity("root", "1.0", nil)
	remote := &fakeRemote{
		root: &root,
		children: []prompt.Prompt{
			entity("a", "1", nil),
			entity("b", "1", at(0, 0)),
			entity("c", "1", nil),
		},
	}
	s := newTestStore(t, remote)
	require.NoError(t, s.Initialize(context.Background(), "root", "1.0"))

	rootNode, ok := s.Root()
	require.True(t, ok)
	assert.Equal(t, prompt.Position{X: 250, Y: 5}, rootNode.Position)

	want := map[string]prompt.Position{
		"a_1": {X: 0, Y: 225},
		"b_1": {X: 250, Y: 225},
		"c_1": {X: 500, Y: 225},
	}
	for id, pos := range want {
		n, ok := s.Node(id)
		require.True(t, ok, id)
		assert.Equal(t, pos, n.Position, id)
	}
}

func TestInitialize_SavedPositionsArePreserved(t *testing.T) {
	root := entity("root", "1.0", at(0, 0))
	remote := &fakeRemote{
		root: &root,
		children: []prompt.Prompt{
			entity("saved", "1", at(150, 300)),
			entity("fresh", "1", nil),
		},
	}
	s := newTestStore(t, remote)
	require.NoError(t, s.Initialize(context.Background(), "root", "1.0"))

	// A root saved at the origin stays there.
	rootNode, _ := s.Root()
	assert.Equal(t, prompt.Position{}, rootNode.Position)

	saved, _ := s.Node("saved_1")
	assert.Equal(t, prompt.Position{X: 150, Y: 300}, saved.Position)

	// Only the unplaced child takes part in the layout.
	fresh, _ := s.Node("fresh_1")
	assert.Equal(t, prompt.Position{X: 0, Y: 220}, fresh.Position)
}

func TestInitialize_DuplicateChildrenAreSkipped(t *testing.T) {
	root := entity("root", "1.0", nil)
	remote := &fakeRemote{
		root:     &root,
		children: []prompt.Prompt{entity("a", "1", nil), entity("a", "1", nil)},
	}
	s := newTestStore(t, remote)
	require.NoError(t, s.Initialize(context.Background(), "root", "1.0"))

	assert.Len(t, s.Nodes(), 2)
	assert.Len(t, s.Edges(), 1)
}

func TestInitialize_FailureLeavesEmptyGraph(t *testing.T) {
	root := entity("root", "1.0", nil)
	remote := &fakeRemote{root: &root, children: []prompt.Prompt{entity("a", "1", nil)}}
	s := newTestStore(t, remote)
	require.NoError(t, s.Initialize(context.Background(), "root", "1.0"))
	require.Len(t, s.Nodes(), 2)

	remote.childrenErr = apperrors.NewRemoteUnavailable("GET", "/prompts/root/1.0/children", errors.New("refused"))
	err := s.Initialize(context.Background(), "root", "1.0")
	require.Error(t, err)
	assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeInitialization))

	assert.Empty(t, s.Nodes())
	assert.Empty(t, s.Edges())
	_, ok := s.Root()
	assert.False(t, ok)
}

func TestApplyPositionChange_OnlyFinalFramePersists(t *testing.T) {
	root := entity("root", "1.0", nil)
	remote := &fakeRemote{root: &root, children: []prompt.Prompt{entity("a", "1", nil)}}
	s := newTestStore(t, remote)
	require.NoError(t, s.Initialize(context.Background(), "root", "1.0"))

	require.NoError(t, s.ApplyPositionChange("a_1", prompt.Position{X: 10.4, Y: 20.6}, false))
	s.Wait()
	assert.Empty(t, remote.positions())

	n, _ := s.Node("a_1")
	assert.Equal(t, prompt.Position{X: 10.4, Y: 20.6}, n.Position)

	require.NoError(t, s.ApplyPositionChange("a_1", prompt.Position{X: 10.4, Y: 20.6}, true))
	s.Wait()
	assert.Equal(t, []prompt.Position{{X: 10, Y: 21}}, remote.positions())

	// Memory keeps the unrounded coordinates.
	n, _ = s.Node("a_1")
	assert.Equal(t, prompt.Position{X: 10.4, Y: 20.6}, n.Position)
}

func TestApplyPositionChange_UnknownNode(t *testing.T) {
	s := newTestStore(t, &fakeRemote{})
	assert.ErrorIs(t, s.ApplyPositionChange("nope", prompt.Position{}, true), ErrNodeNotFound)
}

func TestConnect(t *testing.T) {
	root := entity("root", "1.0", nil)
	remote := &fakeRemote{root: &root, children: []prompt.Prompt{entity("a", "1", nil), entity("b", "1", nil)}}
	s := newTestStore(t, remote)
	require.NoError(t, s.Initialize(context.Background(), "root", "1.0"))

	e, err := s.Connect("a_1", "b_1")
	require.NoError(t, err)
	assert.Equal(t, "e-a_1-b_1", e.ID)
	assert.Len(t, s.Edges(), 3)

	_, err = s.Connect("a_1", "b_1")
	require.NoError(t, err)
	assert.Len(t, s.Edges(), 3)

	_, err = s.Connect("a_1", "a_1")
	assert.ErrorIs(t, err, ErrInvalidEdge)
	_, err = s.Connect("a_1", "missing")
	assert.ErrorIs(t, err, ErrNodeNotFound)

	assert.Empty(t, remote.parents())
}

func TestDetach_SuccessRemovesNodeAndItsEdges(t *testing.T) {
	root := entity("root", "1.0", nil)
	remote := &fakeRemote{root: &root, children: []prompt.Prompt{entity("a", "1", nil), entity("b", "1", nil)}}
	s := newTestStore(t, remote)
	require.NoError(t, s.Initialize(context.Background(), "root", "1.0"))

	require.NoError(t, s.Detach(context.Background(), "a_1"))

	assert.Equal(t, []string{"a_1"}, remote.parents())
	assert.False(t, s.Contains("a_1"))
	assert.True(t, s.Contains("b_1"))
	assert.True(t, s.Contains("root_1.0"))
	for _, e := range s.Edges() {
		assert.NotEqual(t, "a_1", e.Source)
		assert.NotEqual(t, "a_1", e.Target)
	}
	assert.Len(t, s.Edges(), 1)
}

func TestDetach_RemovesExactlyOneNode(t *testing.T) {
	root := entity("root", "1.0", nil)
	remote := &fakeRemote{root: &root, children: []prompt.Prompt{entity("a", "1", nil), entity("b", "1", nil)}}
	s := newTestStore(t, remote)
	require.NoError(t, s.Initialize(context.Background(), "root", "1.0"))

	_, err := s.AttachChild("a_1", prompt.Prompt{Name: "gc", Version: "1"}, prompt.Position{X: 5, Y: 400})
	require.NoError(t, err)
	_, err = s.Connect("b_1", "a_1")
	require.NoError(t, err)
	require.Len(t, s.Nodes(), 4)

	require.NoError(t, s.Detach(context.Background(), "a_1"))

	assert.Len(t, s.Nodes(), 3)
	assert.False(t, s.Contains("a_1"))
	// The grandchild loses its incoming edge but stays in the view.
	gc, ok := s.Node("gc_1")
	require.True(t, ok)
	assert.Equal(t, prompt.Position{X: 5, Y: 400}, gc.Position)
	assert.True(t, s.Contains("b_1"))
	assert.Equal(t, []Edge{{ID: "e-root_1.0-b_1", Source: "root_1.0", Target: "b_1"}}, s.Edges())
}

func TestDetach_FailureLeavesGraphUnchanged(t *testing.T) {
	root := entity("root", "1.0", nil)
	remote := &fakeRemote{
		root:      &root,
		children:  []prompt.Prompt{entity("a", "1", nil), entity("b", "1", nil)},
		parentErr: apperrors.NewRemoteStatus("PATCH", "/prompts/a/1", 500, "boom"),
	}
	s := newTestStore(t, remote)
	require.NoError(t, s.Initialize(context.Background(), "root", "1.0"))

	nodes, edges := s.Nodes(), s.Edges()

	err := s.Detach(context.Background(), "a_1")
	require.Error(t, err)
	assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeStructuralWrite))

	assert.Equal(t, nodes, s.Nodes())
	assert.Equal(t, edges, s.Edges())
}

func TestDetach_RootMakesNoRemoteCall(t *testing.T) {
	root := entity("root", "1.0", nil)
	remote := &fakeRemote{root: &root}
	s := newTestStore(t, remote)
	require.NoError(t, s.Initialize(context.Background(), "root", "1.0"))

	assert.ErrorIs(t, s.Detach(context.Background(), "root_1.0"), ErrRootNotDetachable)
	assert.ErrorIs(t, s.Hide("root_1.0"), ErrRootNotDetachable)
	assert.ErrorIs(t, s.Detach(context.Background(), "missing"), ErrNodeNotFound)
	assert.Empty(t, remote.parents())
}

func TestHide_IsLocalOnly(t *testing.T) {
	root := entity("root", "1.0", nil)
	remote := &fakeRemote{root: &root, children: []prompt.Prompt{entity("a", "1", nil)}}
	s := newTestStore(t, remote)
	require.NoError(t, s.Initialize(context.Background(), "root", "1.0"))

	require.NoError(t, s.Hide("a_1"))
	assert.False(t, s.Contains("a_1"))
	assert.Empty(t, s.Edges())
	assert.Empty(t, remote.parents())
}

func TestAttachChild(t *testing.T) {
	root := entity("root", "1.0", nil)
	remote := &fakeRemote{root: &root}
	s := newTestStore(t, remote)
	require.NoError(t, s.Initialize(context.Background(), "root", "1.0"))

	n, err := s.AttachChild("root_1.0", prompt.Prompt{Name: "new", Version: "1.0"}, prompt.Position{X: 250, Y: 225})
	require.NoError(t, err)
	assert.Equal(t, "new_1.0", n.ID)
	assert.True(t, n.Detachable)
	assert.Equal(t, []Edge{{ID: "e-root_1.0-new_1.0", Source: "root_1.0", Target: "new_1.0"}}, s.Edges())

	_, err = s.AttachChild("root_1.0", prompt.Prompt{Name: "new", Version: "1.0"}, prompt.Position{})
	assert.ErrorIs(t, err, ErrNodeExists)
	_, err = s.AttachChild("missing", prompt.Prompt{Name: "x", Version: "1"}, prompt.Position{})
	assert.ErrorIs(t, err, ErrNodeNotFound)
}

func TestView_RenderLists(t *testing.T) {
	root := entity("a very long prompt name that will not fit on a card", "1.0", nil)
	remote := &fakeRemote{root: &root, children: []prompt.Prompt{entity("a", "1", nil)}}
	s := newTestStore(t, remote)
	require.NoError(t, s.Initialize(context.Background(), root.Name, "1.0"))

	v := s.View()
	assert.Equal(t, root.Key(), v.Root)
	require.Len(t, v.Nodes, 2)
	assert.Len(t, v.Nodes[0].Data.Label, maxLabelLength)
	assert.Equal(t, []Action{ActionOpen, ActionAdd}, v.Nodes[0].Data.Actions)
	assert.Equal(t, []Action{ActionOpen, ActionAdd, ActionDetach, ActionHide}, v.Nodes[1].Data.Actions)
	require.Len(t, v.Edges, 1)
	assert.Equal(t, "smoothstep", v.Edges[0].Type)
}

func TestSubscribe_ReceivesLatestView(t *testing.T) {
	root := entity("root", "1.0", nil)
	remote := &fakeRemote{root: &root, children: []prompt.Prompt{entity("a", "1", nil)}}
	s := NewStore(remote, WithLogger(zap.NewNop()))

	views, cancel := s.Subscribe()
	defer cancel()

	initial := <-views
	assert.Empty(t, initial.Nodes)

	require.NoError(t, s.Initialize(context.Background(), "root", "1.0"))
	require.NoError(t, s.Hide("a_1"))

	// Two changes, one buffered view: the latest.
	latest := <-views
	assert.Len(t, latest.Nodes, 1)

	s.Close()
	_, open := <-views
	assert.False(t, open)
}

func TestClose_RejectsFurtherChanges(t *testing.T) {
	root := entity("root", "1.0", nil)
	remote := &fakeRemote{root: &root, children: []prompt.Prompt{entity("a", "1", nil)}}
	s := NewStore(remote, WithLogger(zap.NewNop()))
	require.NoError(t, s.Initialize(context.Background(), "root", "1.0"))

	s.Close()
	assert.ErrorIs(t, s.ApplyPositionChange("a_1", prompt.Position{}, true), ErrClosed)
	assert.ErrorIs(t, s.Detach(context.Background(), "a_1"), ErrClosed)
	assert.Empty(t, remote.parents())
}
