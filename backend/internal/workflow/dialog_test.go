package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"prompt-studio/backend/internal/layout"
	"prompt-studio/backend/internal/prompt"
	"prompt-studio/backend/internal/structure"
	apperrors "prompt-studio/backend/pkg/errors"
)

// memoryStore is an in-memory prompt store serving both the view and the dialog
type memoryStore struct {
	mu        sync.Mutex
	prompts   map[string]prompt.Prompt
	children  map[string][]string
	createErr error
	parentErr error
	created   []prompt.Prompt
	reparents map[string]string
	// canonical, when set, is how the store rewrites a created prompt
	canonical func(prompt.Prompt) prompt.Prompt
}

func newMemoryStore(prompts ...prompt.Prompt) *memoryStore {
	m := &memoryStore{
		prompts:   map[string]prompt.Prompt{},
		children:  map[string][]string{},
		reparents: map[string]string{},
	}
	for _, p := range prompts {
		m.prompts[p.Key()] = p
	}
	return m
}

func (m *memoryStore) GetPrompt(ctx context.Context, name, version string) (*prompt.Prompt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.prompts[prompt.Key(name, version)]
	if !ok {
		return nil, apperrors.NewRemoteStatus("GET", "/prompts/"+name+"/"+version, 404, "not found")
	}
	return &p, nil
}

func (m *memoryStore) GetChildren(ctx context.Context, name, version string) ([]prompt.Prompt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []prompt.Prompt
	for _, key := range m.children[prompt.Key(name, version)] {
		out = append(out, m.prompts[key])
	}
	return out, nil
}

func (m *memoryStore) ListPrompts(ctx context.Context) ([]prompt.Prompt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]prompt.Prompt, 0, len(m.prompts))
	for _, p := range m.prompts {
		out = append(out, p)
	}
	return out, nil
}

func (m *memoryStore) CreatePrompt(ctx context.Context, p prompt.Prompt) (*prompt.Prompt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.created = append(m.created, p)
	if m.createErr != nil {
		return nil, m.createErr
	}
	if m.canonical != nil {
		p = m.canonical(p)
	}
	m.prompts[p.Key()] = p
	return &p, nil
}

func (m *memoryStore) PatchParent(ctx context.Context, name, version string, parentID *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.parentErr != nil {
		return m.parentErr
	}
	if parentID != nil {
		m.reparents[prompt.Key(name, version)] = *parentID
	}
	return nil
}

func (m *memoryStore) PatchPosition(ctx context.Context, name, version string, pos prompt.Position) error {
	return nil
}

func setup(t *testing.T, extra ...prompt.Prompt) (*Dialog, *structure.Store, *memoryStore) {
	t.Helper()
	root := prompt.Prompt{Name: "root", Version: "1.0", Metadata: prompt.Metadata{FlowPosition: &prompt.Position{X: 100, Y: 50}}}
	remote := newMemoryStore(append([]prompt.Prompt{root}, extra...)...)

	store := structure.NewStore(remote, structure.WithLogger(zap.NewNop()))
	t.Cleanup(store.Close)
	require.NoError(t, store.Initialize(context.Background(), "root", "1.0"))

	return NewDialog(remote, store, layout.DefaultConfig(), zap.NewNop()), store, remote
}

func TestDialog_CreateNewChild(t *testing.T) {
	d, store, remote := setup(t)

	_, err := d.Open("root_1.0")
	require.NoError(t, err)
	_, err = d.SetDraft("  My Prompt!  ", "1.0")
	require.NoError(t, err)

	node, err := d.Commit(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "my-prompt!_1.0", node.ID)
	assert.Equal(t, prompt.Position{X: 100, Y: 270}, node.Position)
	assert.Equal(t, StateIdle, d.Snapshot().State)

	require.Len(t, remote.created, 1)
	sent := remote.created[0]
	assert.Equal(t, "my-prompt!", sent.Name)
	require.NotNil(t, sent.ParentID)
	assert.Equal(t, "root_1.0", *sent.ParentID)

	assert.Contains(t, store.Edges(), structure.Edge{ID: "e-root_1.0-my-prompt!_1.0", Source: "root_1.0", Target: "my-prompt!_1.0"})
}

func TestDialog_CreateKeysNodeByServerName(t *testing.T) {
	d, store, remote := setup(t)
	remote.canonical = func(p prompt.Prompt) prompt.Prompt {
		p.Name, p.Version = "server-canon", "2.0"
		return p
	}

	_, err := d.Open("root_1.0")
	require.NoError(t, err)
	_, err = d.SetDraft("My Prompt!", "1.0")
	require.NoError(t, err)

	node, err := d.Commit(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "server-canon_2.0", node.ID)
	assert.True(t, store.Contains("server-canon_2.0"))
	assert.False(t, store.Contains("my-prompt!_1.0"))
	assert.Contains(t, store.Edges(), structure.Edge{ID: "e-root_1.0-server-canon_2.0", Source: "root_1.0", Target: "server-canon_2.0"})

	require.Len(t, remote.created, 1)
	assert.Equal(t, "my-prompt!", remote.created[0].Name)
}

func TestDialog_CreateFailureKeepsForm(t *testing.T) {
	d, store, remote := setup(t)
	remote.createErr = apperrors.NewRemoteStatus("POST", "/prompts", 409, "exists")

	_, _ = d.Open("root_1.0")
	_, _ = d.SetDraft("dup", "1")

	_, err := d.Commit(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeStructuralWrite))

	snap := d.Snapshot()
	assert.Equal(t, StateCollecting, snap.State)
	assert.Equal(t, Draft{Name: "dup", Version: "1"}, snap.Draft)
	assert.NotEmpty(t, snap.LastError)
	assert.Len(t, store.Nodes(), 1)
	assert.Empty(t, store.Edges())
}

func TestDialog_DraftValidation(t *testing.T) {
	d, _, remote := setup(t)
	_, _ = d.Open("root_1.0")

	_, _ = d.SetDraft("name", "")
	_, err := d.Commit(context.Background())
	assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeValidation))

	_, _ = d.SetDraft("   ", "1")
	_, err = d.Commit(context.Background())
	assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeValidation))

	assert.Empty(t, remote.created)
	assert.Equal(t, StateCollecting, d.Snapshot().State)
}

func TestDialog_AttachExisting(t *testing.T) {
	saved := prompt.Prompt{Name: "lib", Version: "2", Metadata: prompt.Metadata{FlowPosition: &prompt.Position{X: 400, Y: 400}}}
	unplaced := prompt.Prompt{Name: "fresh", Version: "1"}
	d, store, remote := setup(t, saved, unplaced)

	_, _ = d.Open("root_1.0")
	_, _ = d.SelectTab(TabExisting)

	candidates, err := d.Candidates(context.Background())
	require.NoError(t, err)
	keys := []string{}
	for _, c := range candidates {
		keys = append(keys, c.Key())
	}
	assert.ElementsMatch(t, []string{"lib_2", "fresh_1"}, keys)

	_, _ = d.SelectExisting("lib", "2")
	node, err := d.Commit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, prompt.Position{X: 400, Y: 400}, node.Position)
	assert.Equal(t, "root_1.0", remote.reparents["lib_2"])

	_, _ = d.Open("root_1.0")
	_, _ = d.SelectTab(TabExisting)
	_, _ = d.SelectExisting("fresh", "1")
	node, err = d.Commit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, prompt.Position{X: 100, Y: 270}, node.Position)

	assert.Len(t, store.Edges(), 2)

	candidates, err = d.Candidates(context.Background())
	require.NoError(t, err)
	assert.Empty(t, candidates)
}

func TestDialog_AttachExistingFailure(t *testing.T) {
	d, store, remote := setup(t, prompt.Prompt{Name: "lib", Version: "2"})
	remote.parentErr = errors.New("connection reset")

	_, _ = d.Open("root_1.0")
	_, _ = d.SelectTab(TabExisting)
	_, _ = d.SelectExisting("lib", "2")

	_, err := d.Commit(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateCollecting, d.Snapshot().State)
	assert.False(t, store.Contains("lib_2"))
}

func TestDialog_Transitions(t *testing.T) {
	d, _, _ := setup(t)

	_, err := d.Commit(context.Background())
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = d.Cancel()
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = d.Open("missing_1")
	assert.ErrorIs(t, err, ErrParentNotFound)

	_, err = d.Open("root_1.0")
	require.NoError(t, err)
	_, err = d.Open("root_1.0")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = d.SelectTab("bogus")
	assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeValidation))

	snap, err := d.Cancel()
	require.NoError(t, err)
	assert.Equal(t, StateIdle, snap.State)
	assert.Empty(t, snap.ParentID)
}

func TestNewPromptPayload_Defaults(t *testing.T) {
	payload := NewPromptPayload(Draft{Name: "Hello World", Version: "1.0"}, "root_1.0", prompt.Position{X: 1, Y: 2})

	raw, err := json.Marshal(payload)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, "hello-world", got["name"])
	assert.Equal(t, "# New Prompt\n\nEnter your prompt content here.", got["content"])
	assert.Equal(t, []any{"new"}, got["staticTags"])
	assert.Equal(t, []any{}, got["dynamicTags"])
	assert.Equal(t, []any{"en"}, got["supportedLanguages"])
	assert.Equal(t, "root_1.0", got["parentId"])

	meta := got["metadata"].(map[string]any)
	assert.Equal(t, "general", meta["category"])
	assert.Equal(t, map[string]any{"x": 1.0, "y": 2.0}, meta["flowPosition"])

	cfg := got["config"].(map[string]any)
	assert.Equal(t, "gpt-3.5-turbo", cfg["model"])
	assert.Equal(t, 0.7, cfg["temperature"])
	assert.Equal(t, 1000.0, cfg["maxTokens"])
}
