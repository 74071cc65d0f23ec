package httpapi

import (
	"context"
	"sort"
	"sync"

	"prompt-studio/backend/internal/adapter"
	"prompt-studio/backend/internal/graph"
	"prompt-studio/backend/internal/prompt"
)

// memRepo is an in-memory PromptRepository with the same error contract as
// the Neo4j one.
type memRepo struct {
	mu      sync.Mutex
	prompts map[string]prompt.Prompt
}

func newMemRepo(prompts ...prompt.Prompt) *memRepo {
	r := &memRepo{prompts: map[string]prompt.Prompt{}}
	for _, p := range prompts {
		r.prompts[p.Key()] = p
	}
	return r
}

func (r *memRepo) Get(ctx context.Context, name, version string) (*prompt.Prompt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.prompts[prompt.Key(name, version)]
	if !ok {
		return nil, graph.ErrPromptNotFound
	}
	return &p, nil
}

func (r *memRepo) Children(ctx context.Context, name, version string) ([]prompt.Prompt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := prompt.Key(name, version)
	if _, ok := r.prompts[key]; !ok {
		return nil, graph.ErrPromptNotFound
	}
	out := []prompt.Prompt{}
	for _, p := range r.sortedLocked() {
		if p.ParentID != nil && *p.ParentID == key {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *memRepo) List(ctx context.Context) ([]prompt.Prompt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sortedLocked(), nil
}

func (r *memRepo) sortedLocked() []prompt.Prompt {
	out := make([]prompt.Prompt, 0, len(r.prompts))
	for _, p := range r.prompts {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

func (r *memRepo) Create(ctx context.Context, p prompt.Prompt) (*prompt.Prompt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p.Name = prompt.Normalize(p.Name)
	if _, ok := r.prompts[p.Key()]; ok {
		return nil, graph.ErrPromptExists
	}
	if p.ParentID != nil {
		if _, ok := r.prompts[*p.ParentID]; !ok {
			return nil, graph.ErrParentNotFound
		}
	}
	r.prompts[p.Key()] = p
	return &p, nil
}

func (r *memRepo) Replace(ctx context.Context, name, version string, p prompt.Prompt) (*prompt.Prompt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	old, ok := r.prompts[prompt.Key(name, version)]
	if !ok {
		return nil, graph.ErrPromptNotFound
	}
	p.ParentID = old.ParentID
	r.prompts[p.Key()] = p
	return &p, nil
}

// Patch checks the whole update before applying any of it
func (r *memRepo) Patch(ctx context.Context, name, version string, patch graph.Patch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.prompts[prompt.Key(name, version)]
	if !ok {
		return graph.ErrPromptNotFound
	}
	if patch.SetParent && patch.ParentID != nil {
		if *patch.ParentID == p.Key() {
			return graph.ErrCycle
		}
		if _, ok := r.prompts[*patch.ParentID]; !ok {
			return graph.ErrParentNotFound
		}
	}

	if patch.SetParent {
		p.ParentID = patch.ParentID
	}
	if patch.Position != nil {
		rounded := patch.Position.Rounded()
		p.Metadata.FlowPosition = &rounded
	}
	r.prompts[p.Key()] = p
	return nil
}

func (r *memRepo) Delete(ctx context.Context, name, version string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := prompt.Key(name, version)
	if _, ok := r.prompts[key]; !ok {
		return graph.ErrPromptNotFound
	}
	delete(r.prompts, key)
	return nil
}

func (r *memRepo) position(key string) *prompt.Position {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.prompts[key].Metadata.FlowPosition
}

func (r *memRepo) parent(key string) *string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.prompts[key].ParentID
}

type echoGenerator struct {
	last adapter.Request
}

func (g *echoGenerator) Generate(ctx context.Context, in adapter.Request) (*adapter.Response, error) {
	g.last = in
	return &adapter.Response{Content: "echo: " + in.UserMsg, Model: in.Model}, nil
}

func strptr(s string) *string {
	return &s
}
