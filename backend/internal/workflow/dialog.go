// Package workflow runs the add-child dialog: collect a new or existing
// prompt for a parent node, commit it to the prompt store, and fold the
// committed result into the view.
package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"prompt-studio/backend/internal/layout"
	"prompt-studio/backend/internal/prompt"
	"prompt-studio/backend/internal/structure"
	apperrors "prompt-studio/backend/pkg/errors"
	"prompt-studio/backend/pkg/logger"
)

var (
	// ErrInvalidTransition is returned for a step the current state does not allow
	ErrInvalidTransition = errors.New("invalid dialog transition")
	// ErrParentNotFound is returned when the target parent is not drawn
	ErrParentNotFound = errors.New("parent node not found")
)

// State of the dialog
type State string

const (
	StateIdle       State = "idle"
	StateCollecting State = "collecting"
	StateCommitting State = "committing"
)

// Tab selects how the child is chosen
type Tab string

const (
	TabNewPrompt Tab = "new"
	TabExisting  Tab = "existing"
)

// Draft is the new-prompt form
type Draft struct {
	Name    string `json:"name" validate:"required,max=200"`
	Version string `json:"version" validate:"required,max=50"`
}

// Selection is a prompt picked from the existing tab
type Selection struct {
	Name    string `json:"name" validate:"required"`
	Version string `json:"version" validate:"required"`
}

// Remote is what the dialog needs from the prompt store
type Remote interface {
	ListPrompts(ctx context.Context) ([]prompt.Prompt, error)
	GetPrompt(ctx context.Context, name, version string) (*prompt.Prompt, error)
	CreatePrompt(ctx context.Context, p prompt.Prompt) (*prompt.Prompt, error)
	PatchParent(ctx context.Context, name, version string, parentID *string) error
}

// Graph is the view the dialog reads parents from and commits children into
type Graph interface {
	Node(id string) (structure.Node, bool)
	Contains(id string) bool
	AttachChild(parentID string, child prompt.Prompt, pos prompt.Position) (structure.Node, error)
}

// Snapshot is the externally visible dialog state
type Snapshot struct {
	State     State      `json:"state"`
	Tab       Tab        `json:"tab"`
	ParentID  string     `json:"parentId,omitempty"`
	Draft     Draft      `json:"draft"`
	Existing  *Selection `json:"existing,omitempty"`
	LastError string     `json:"lastError,omitempty"`
}

// Dialog is the add-child state machine of one view. The remote call of a
// commit runs without the dialog lock; a second commit while one is in
// flight is rejected.
type Dialog struct {
	remote   Remote
	graph    Graph
	layout   layout.Config
	validate *validator.Validate
	logger   *zap.Logger

	mu       sync.Mutex
	state    State
	tab      Tab
	parentID string
	draft    Draft
	existing *Selection
	lastErr  string
}

// NewDialog creates an idle dialog over graph
func NewDialog(remote Remote, graph Graph, cfg layout.Config, log *zap.Logger) *Dialog {
	if log == nil {
		log = logger.Named("workflow")
	}
	return &Dialog{
		remote:   remote,
		graph:    graph,
		layout:   cfg,
		validate: validator.New(),
		logger:   log,
		state:    StateIdle,
		tab:      TabNewPrompt,
	}
}

// Snapshot returns the current dialog state
func (d *Dialog) Snapshot() Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.snapshotLocked()
}

func (d *Dialog) snapshotLocked() Snapshot {
	s := Snapshot{
		State:     d.state,
		Tab:       d.tab,
		ParentID:  d.parentID,
		Draft:     d.draft,
		LastError: d.lastErr,
	}
	if d.existing != nil {
		sel := *d.existing
		s.Existing = &sel
	}
	return s
}

// Open starts collecting a child for parentID
func (d *Dialog) Open(parentID string) (Snapshot, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state != StateIdle {
		return d.snapshotLocked(), fmt.Errorf("%w: open while %s", ErrInvalidTransition, d.state)
	}
	if !d.graph.Contains(parentID) {
		return d.snapshotLocked(), ErrParentNotFound
	}

	d.state = StateCollecting
	d.tab = TabNewPrompt
	d.parentID = parentID
	d.draft = Draft{}
	d.existing = nil
	d.lastErr = ""
	return d.snapshotLocked(), nil
}

// SelectTab switches between the new and existing forms
func (d *Dialog) SelectTab(tab Tab) (Snapshot, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state != StateCollecting {
		return d.snapshotLocked(), fmt.Errorf("%w: select tab while %s", ErrInvalidTransition, d.state)
	}
	if tab != TabNewPrompt && tab != TabExisting {
		return d.snapshotLocked(), apperrors.NewValidationFailed("tab", fmt.Sprintf("unknown tab %q", tab))
	}
	d.tab = tab
	return d.snapshotLocked(), nil
}

// SetDraft replaces the new-prompt form
func (d *Dialog) SetDraft(name, version string) (Snapshot, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state != StateCollecting {
		return d.snapshotLocked(), fmt.Errorf("%w: edit draft while %s", ErrInvalidTransition, d.state)
	}
	d.draft = Draft{Name: name, Version: version}
	return d.snapshotLocked(), nil
}

// SelectExisting picks an existing prompt
func (d *Dialog) SelectExisting(name, version string) (Snapshot, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state != StateCollecting {
		return d.snapshotLocked(), fmt.Errorf("%w: select prompt while %s", ErrInvalidTransition, d.state)
	}
	d.existing = &Selection{Name: name, Version: version}
	return d.snapshotLocked(), nil
}

// Candidates lists the prompts that can be attached: every stored prompt
// not already drawn in the view.
func (d *Dialog) Candidates(ctx context.Context) ([]prompt.Prompt, error) {
	all, err := d.remote.ListPrompts(ctx)
	if err != nil {
		d.logger.Error("Error loading prompts", zap.Error(err))
		return nil, err
	}

	out := make([]prompt.Prompt, 0, len(all))
	for _, p := range all {
		if d.graph.Contains(p.Key()) {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// Cancel closes the dialog without committing
func (d *Dialog) Cancel() (Snapshot, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state != StateCollecting {
		return d.snapshotLocked(), fmt.Errorf("%w: cancel while %s", ErrInvalidTransition, d.state)
	}
	d.resetLocked()
	return d.snapshotLocked(), nil
}

func (d *Dialog) resetLocked() {
	d.state = StateIdle
	d.tab = TabNewPrompt
	d.parentID = ""
	d.draft = Draft{}
	d.existing = nil
	d.lastErr = ""
}

// Commit writes the collected child to the prompt store and, only once the
// store accepted it, adds the node and its edge to the view. A remote
// failure returns the dialog to collecting with the form intact.
func (d *Dialog) Commit(ctx context.Context) (structure.Node, error) {
	d.mu.Lock()
	if d.state != StateCollecting {
		state := d.state
		d.mu.Unlock()
		return structure.Node{}, fmt.Errorf("%w: commit while %s", ErrInvalidTransition, state)
	}
	parentID, tab, draft := d.parentID, d.tab, d.draft
	var existing *Selection
	if d.existing != nil {
		sel := *d.existing
		existing = &sel
	}

	parent, ok := d.graph.Node(parentID)
	if !ok {
		d.resetLocked()
		d.mu.Unlock()
		return structure.Node{}, ErrParentNotFound
	}
	if err := d.checkLocked(tab, draft, existing); err != nil {
		d.lastErr = err.Error()
		d.mu.Unlock()
		return structure.Node{}, err
	}
	d.state = StateCommitting
	d.mu.Unlock()

	var (
		child *prompt.Prompt
		pos   prompt.Position
		err   error
	)
	switch tab {
	case TabExisting:
		child, pos, err = d.attachExisting(ctx, parent, *existing)
	default:
		child, pos, err = d.createNew(ctx, parent, draft)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if err != nil {
		d.state = StateCollecting
		d.lastErr = err.Error()
		d.logger.Error("Error creating prompt", zap.String("parent", parentID), zap.Error(err))
		return structure.Node{}, err
	}

	node, err := d.graph.AttachChild(parentID, *child, pos)
	d.resetLocked()
	if err != nil {
		// The store has the link; the view no longer has room for it.
		d.logger.Warn("Committed child not added to view",
			zap.String("parent", parentID),
			zap.String("node", child.Key()),
			zap.Error(err),
		)
		return structure.Node{}, err
	}

	d.logger.Info("Child attached", zap.String("parent", parentID), zap.String("node", node.ID))
	return node, nil
}

func (d *Dialog) checkLocked(tab Tab, draft Draft, existing *Selection) error {
	if tab == TabExisting {
		if existing == nil {
			return apperrors.NewValidationFailed("existing", "no prompt selected")
		}
		if err := d.validate.Struct(existing); err != nil {
			return validationError(err)
		}
		if d.graph.Contains(prompt.Key(existing.Name, existing.Version)) {
			return apperrors.NewValidationFailed("existing", "prompt already in view")
		}
		return nil
	}

	if err := d.validate.Struct(draft); err != nil {
		return validationError(err)
	}
	if prompt.Normalize(draft.Name) == "" {
		return apperrors.NewValidationFailed("name", "empty after normalization")
	}
	return nil
}

func validationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return apperrors.NewValidationFailed(fe.Field(), fe.Tag())
	}
	return apperrors.NewValidationFailed("draft", err.Error())
}

func (d *Dialog) createNew(ctx context.Context, parent structure.Node, draft Draft) (*prompt.Prompt, prompt.Position, error) {
	pos := layout.Below(d.layout, parent.Position)
	payload := NewPromptPayload(draft, parent.ID, pos)

	created, err := d.remote.CreatePrompt(ctx, payload)
	if err != nil {
		return nil, pos, apperrors.NewStructuralWriteFailed("create", payload.Key(), payload, err)
	}
	return created, pos, nil
}

func (d *Dialog) attachExisting(ctx context.Context, parent structure.Node, sel Selection) (*prompt.Prompt, prompt.Position, error) {
	key := prompt.Key(sel.Name, sel.Version)
	parentID := parent.ID
	patch := prompt.ParentPatch{ParentID: &parentID}

	if err := d.remote.PatchParent(ctx, sel.Name, sel.Version, &parentID); err != nil {
		return nil, prompt.Position{}, apperrors.NewStructuralWriteFailed("reparent", key, patch, err)
	}

	child, err := d.remote.GetPrompt(ctx, sel.Name, sel.Version)
	if err != nil {
		return nil, prompt.Position{}, apperrors.NewStructuralWriteFailed("reparent", key, patch, err)
	}

	pos := layout.Below(d.layout, parent.Position)
	if saved, ok := child.FlowPosition(); ok && !saved.IsOrigin() {
		pos = saved
	}
	return child, pos, nil
}

// NewPromptPayload builds the create request for a draft added under parentKey
func NewPromptPayload(draft Draft, parentKey string, pos prompt.Position) prompt.Prompt {
	parent := parentKey
	return prompt.Prompt{
		Name:               prompt.Normalize(draft.Name),
		Version:            draft.Version,
		Content:            "# New Prompt\n\nEnter your prompt content here.",
		StaticTags:         []string{"new"},
		DynamicTags:        []json.RawMessage{},
		Conditions:         []json.RawMessage{},
		SupportedLanguages: []string{"en"},
		ParentID:           &parent,
		Metadata: prompt.Metadata{
			Description:  "New prompt created from structure editor",
			Category:     "general",
			Labels:       []string{},
			FlowPosition: &pos,
		},
		Config: prompt.Config{
			Model:       "gpt-3.5-turbo",
			Temperature: 0.7,
			MaxTokens:   1000,
		},
	}
}
