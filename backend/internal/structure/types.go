package structure

import (
	"errors"

	"prompt-studio/backend/internal/prompt"
)

var (
	// ErrNodeNotFound is returned for an id that is not drawn in the view
	ErrNodeNotFound = errors.New("node not found")
	// ErrRootNotDetachable is returned when detaching or hiding the root
	ErrRootNotDetachable = errors.New("root node cannot be detached")
	// ErrNodeExists is returned when a node key is already drawn
	ErrNodeExists = errors.New("node already in view")
	// ErrInvalidEdge is returned for self loops
	ErrInvalidEdge = errors.New("invalid edge")
	// ErrUnknownAction is returned by the dispatcher for unregistered actions
	ErrUnknownAction = errors.New("unknown node action")
	// ErrClosed is returned once the view has been closed
	ErrClosed = errors.New("view closed")
)

// Node is a prompt drawn in the view. It carries identity and flags only;
// behaviour is looked up in a Dispatcher by node id.
type Node struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Version    string          `json:"version"`
	Position   prompt.Position `json:"position"`
	IsRoot     bool            `json:"isRoot"`
	Detachable bool            `json:"hasDetach"`
}

// Edge is a parent -> child link
type Edge struct {
	ID     string `json:"id"`
	Source string `json:"source"`
	Target string `json:"target"`
}

// EdgeID returns the id of the edge source -> target
func EdgeID(source, target string) string {
	return "e-" + source + "-" + target
}

// Action names a behaviour a rendered node offers
type Action string

const (
	ActionOpen   Action = "open"
	ActionAdd    Action = "add"
	ActionDetach Action = "detach"
	ActionHide   Action = "hide"
)

// actionsFor lists what a node offers; the root can be neither detached nor hidden
func actionsFor(n *Node) []Action {
	if n.IsRoot {
		return []Action{ActionOpen, ActionAdd}
	}
	return []Action{ActionOpen, ActionAdd, ActionDetach, ActionHide}
}

// maxLabelLength is how much of a prompt name fits on a node card
const maxLabelLength = 35

// NodeData are the display fields of a rendered node
type NodeData struct {
	Name      string   `json:"name"`
	Version   string   `json:"version"`
	Label     string   `json:"label"`
	IsRoot    bool     `json:"isRoot"`
	HasDetach bool     `json:"hasDetach"`
	Actions   []Action `json:"actions"`
}

// RenderNode is one entry of the node list handed to the canvas
type RenderNode struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Position  prompt.Position `json:"position"`
	Draggable bool            `json:"draggable"`
	Data      NodeData        `json:"data"`
}

// RenderEdge is one entry of the edge list handed to the canvas
type RenderEdge struct {
	ID     string `json:"id"`
	Source string `json:"source"`
	Target string `json:"target"`
	Type   string `json:"type"`
}

// View is the complete render state, regenerated on every change
type View struct {
	Root  string       `json:"root"`
	Nodes []RenderNode `json:"nodes"`
	Edges []RenderEdge `json:"edges"`
}

func renderNode(n *Node) RenderNode {
	label := n.Name
	if r := []rune(label); len(r) > maxLabelLength {
		label = string(r[:maxLabelLength])
	}
	return RenderNode{
		ID:        n.ID,
		Type:      "custom",
		Position:  n.Position,
		Draggable: true,
		Data: NodeData{
			Name:      n.Name,
			Version:   n.Version,
			Label:     label,
			IsRoot:    n.IsRoot,
			HasDetach: n.Detachable,
			Actions:   actionsFor(n),
		},
	}
}

func renderEdge(e Edge) RenderEdge {
	return RenderEdge{ID: e.ID, Source: e.Source, Target: e.Target, Type: "smoothstep"}
}
