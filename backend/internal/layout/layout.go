// Package layout assigns canvas coordinates to prompts that have never been placed.
package layout

import "prompt-studio/backend/internal/prompt"

// Config holds the spacing between a parent and its children
type Config struct {
	// VerticalSpacing separates a parent row from its children row.
	VerticalSpacing float64
	// HorizontalSpacing separates neighbouring siblings.
	HorizontalSpacing float64
}

// DefaultConfig returns the 220 / 250 spacing the editor uses
func DefaultConfig() Config {
	return Config{
		VerticalSpacing:   220,
		HorizontalSpacing: 250,
	}
}

// Children places n siblings on one row a vertical increment below parent,
// centred on the parent's x and one horizontal increment apart.
// The result depends only on its arguments.
func Children(cfg Config, parent prompt.Position, n int) []prompt.Position {
	if n <= 0 {
		return nil
	}

	positions := make([]prompt.Position, n)
	center := float64(n-1) / 2
	for i := range positions {
		positions[i] = prompt.Position{
			X: parent.X + (float64(i)-center)*cfg.HorizontalSpacing,
			Y: parent.Y + cfg.VerticalSpacing,
		}
	}
	return positions
}

// Below returns the slot directly under parent, where a freshly created child starts
func Below(cfg Config, parent prompt.Position) prompt.Position {
	return parent.Offset(0, cfg.VerticalSpacing)
}
