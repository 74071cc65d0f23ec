package prompt

import (
	"encoding/json"
	"math"
	"time"
)

// Position is a canvas coordinate. Stored in a prompt's metadata as its flow position.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// IsOrigin reports whether the position is (0,0), which the editor treats as "never placed"
func (p Position) IsOrigin() bool {
	return p.X == 0 && p.Y == 0
}

// Rounded returns the position snapped to integer coordinates, the form it is persisted in
func (p Position) Rounded() Position {
	return Position{X: math.Round(p.X), Y: math.Round(p.Y)}
}

// Offset returns p moved by (dx, dy)
func (p Position) Offset(dx, dy float64) Position {
	return Position{X: p.X + dx, Y: p.Y + dy}
}

// Metadata is the free-form descriptive part of a prompt
type Metadata struct {
	Author       string     `json:"author,omitempty"`
	Description  string     `json:"description,omitempty"`
	Category     string     `json:"category,omitempty"`
	Labels       []string   `json:"labels,omitempty"`
	CreatedAt    *time.Time `json:"createdAt,omitempty"`
	UpdatedAt    *time.Time `json:"updatedAt,omitempty"`
	FlowPosition *Position  `json:"flowPosition,omitempty"`
}

// Config is the model configuration a prompt executes with
type Config struct {
	Provider    string  `json:"provider,omitempty"`
	Model       string  `json:"model"`
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"maxTokens"`
}

// Prompt is the remote store's entity
type Prompt struct {
	Name               string            `json:"name" validate:"required,max=200"`
	Version            string            `json:"version" validate:"required,max=50"`
	Content            string            `json:"content"`
	StaticTags         []string          `json:"staticTags"`
	DynamicTags        []json.RawMessage `json:"dynamicTags"`
	Conditions         []json.RawMessage `json:"conditions"`
	SupportedLanguages []string          `json:"supportedLanguages"`
	ParentID           *string           `json:"parentId,omitempty"`
	Metadata           Metadata          `json:"metadata"`
	Config             Config            `json:"config"`
}

// Key returns the composite node key of the prompt
func (p Prompt) Key() string {
	return Key(p.Name, p.Version)
}

// FlowPosition returns the persisted position and whether one exists
func (p Prompt) FlowPosition() (Position, bool) {
	if p.Metadata.FlowPosition == nil {
		return Position{}, false
	}
	return *p.Metadata.FlowPosition, true
}

// PositionPatch is the partial update persisting a flow position
type PositionPatch struct {
	Metadata PositionPatchMetadata `json:"metadata"`
}

// PositionPatchMetadata carries only the flow position
type PositionPatchMetadata struct {
	FlowPosition Position `json:"flowPosition"`
}

// NewPositionPatch builds the patch for pos, rounded to integers
func NewPositionPatch(pos Position) PositionPatch {
	return PositionPatch{Metadata: PositionPatchMetadata{FlowPosition: pos.Rounded()}}
}

// ParentPatch is the partial update changing a prompt's parent. A nil
// ParentID serializes as "parentId": null and clears the link.
type ParentPatch struct {
	ParentID *string `json:"parentId"`
}

// ExecuteRequest asks the store to run a prompt against its configured model
type ExecuteRequest struct {
	Name    string `json:"name" binding:"required"`
	Version string `json:"version" binding:"required"`
	Input   string `json:"input"`
}

// ExecuteResult is the model output of an executed prompt
type ExecuteResult struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Model   string `json:"model"`
	Output  string `json:"output"`
}
