package graph

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"prompt-studio/backend/internal/prompt"
)

// ============================================================================
// Prompt Operations
// ============================================================================

const returnPrompt = `
	OPTIONAL MATCH (p)-[:CHILD_OF]->(parent:Prompt)
	RETURN p, parent.key AS parentId
`

// Get returns the prompt stored under name/version
func (r *Repository) Get(ctx context.Context, name, version string) (*prompt.Prompt, error) {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	query := `MATCH (p:Prompt {key: $key})` + returnPrompt

	result, err := session.Run(ctx, query, map[string]any{
		"key": prompt.Key(name, version),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}

	if !result.Next(ctx) {
		if err := result.Err(); err != nil {
			return nil, fmt.Errorf("failed to fetch record: %w", err)
		}
		return nil, ErrPromptNotFound
	}

	p, ok := recordToPrompt(result.Record())
	if !ok {
		return nil, ErrPromptNotFound
	}
	return &p, nil
}

// Children returns the direct children of name/version
func (r *Repository) Children(ctx context.Context, name, version string) ([]prompt.Prompt, error) {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	query := `
		MATCH (parent:Prompt {key: $key})
		OPTIONAL MATCH (p:Prompt)-[:CHILD_OF]->(parent)
		RETURN p, parent.key AS parentId
		ORDER BY p.name, p.version
	`

	result, err := session.Run(ctx, query, map[string]any{
		"key": prompt.Key(name, version),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}

	found := false
	children := []prompt.Prompt{}
	for result.Next(ctx) {
		found = true
		if p, ok := recordToPrompt(result.Record()); ok {
			children = append(children, p)
		}
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("failed to fetch records: %w", err)
	}
	if !found {
		return nil, ErrPromptNotFound
	}
	return children, nil
}

// List returns every stored prompt
func (r *Repository) List(ctx context.Context) ([]prompt.Prompt, error) {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	query := `
		MATCH (p:Prompt)
		OPTIONAL MATCH (p)-[:CHILD_OF]->(parent:Prompt)
		RETURN p, parent.key AS parentId
		ORDER BY p.name, p.version
	`

	result, err := session.Run(ctx, query, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}

	prompts := []prompt.Prompt{}
	for result.Next(ctx) {
		if p, ok := recordToPrompt(result.Record()); ok {
			prompts = append(prompts, p)
		}
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("failed to fetch records: %w", err)
	}
	return prompts, nil
}

// Create stores a new prompt. The name is normalized here so every client
// gets the same canonical key; the returned prompt carries it. A non-nil
// ParentID links the new prompt under that parent in the same transaction.
func (r *Repository) Create(ctx context.Context, p prompt.Prompt) (*prompt.Prompt, error) {
	p.Name = prompt.Normalize(p.Name)
	props, err := propsFromPrompt(p)
	if err != nil {
		return nil, fmt.Errorf("failed to encode prompt: %w", err)
	}
	key := p.Key()

	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	created, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		exists, err := tx.Run(ctx, `MATCH (p:Prompt {key: $key}) RETURN p.key AS key`, map[string]any{"key": key})
		if err != nil {
			return nil, err
		}
		if exists.Next(ctx) {
			return nil, ErrPromptExists
		}

		var parentKey string
		if p.ParentID != nil && *p.ParentID != "" {
			parentKey = *p.ParentID
			parent, err := tx.Run(ctx, `MATCH (p:Prompt {key: $key}) RETURN p.key AS key`, map[string]any{"key": parentKey})
			if err != nil {
				return nil, err
			}
			if !parent.Next(ctx) {
				return nil, ErrParentNotFound
			}
		}

		query := `
			CREATE (p:Prompt {key: $key})
			SET p += $props,
			    p.createdAt = datetime(),
			    p.updatedAt = datetime()
			WITH p
			OPTIONAL MATCH (parent:Prompt {key: $parentKey})
			FOREACH (_ IN CASE WHEN parent IS NULL THEN [] ELSE [1] END |
				CREATE (p)-[:CHILD_OF]->(parent))
			WITH p
		` + returnPrompt

		result, err := tx.Run(ctx, query, map[string]any{
			"key":       key,
			"props":     props,
			"parentKey": parentKey,
		})
		if err != nil {
			return nil, err
		}
		record, err := result.Single(ctx)
		if err != nil {
			return nil, err
		}
		out, _ := recordToPrompt(record)
		return out, nil
	})
	if err != nil {
		if errors.Is(err, ErrPromptExists) || errors.Is(err, ErrParentNotFound) {
			return nil, err
		}
		if isConstraintViolation(err) {
			return nil, ErrPromptExists
		}
		return nil, fmt.Errorf("failed to create prompt: %w", err)
	}

	result := created.(prompt.Prompt)
	r.logger.Info("Prompt created",
		zap.String("key", key),
		zap.Stringp("parent", result.ParentID),
	)
	return &result, nil
}

// Replace overwrites the content fields of an existing prompt. Identity and
// the parent link are left alone.
func (r *Repository) Replace(ctx context.Context, name, version string, p prompt.Prompt) (*prompt.Prompt, error) {
	p.Name, p.Version = name, version
	props, err := propsFromPrompt(p)
	if err != nil {
		return nil, fmt.Errorf("failed to encode prompt: %w", err)
	}

	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	query := `
		MATCH (p:Prompt {key: $key})
		SET p += $props,
		    p.updatedAt = datetime()
		WITH p
	` + returnPrompt

	result, err := session.Run(ctx, query, map[string]any{
		"key":   prompt.Key(name, version),
		"props": props,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to replace prompt: %w", err)
	}
	if !result.Next(ctx) {
		if err := result.Err(); err != nil {
			return nil, fmt.Errorf("failed to replace prompt: %w", err)
		}
		return nil, ErrPromptNotFound
	}

	out, _ := recordToPrompt(result.Record())
	return &out, nil
}

// Patch is a partial update of one prompt. Position and parent change
// together or not at all.
type Patch struct {
	Position *prompt.Position
	// SetParent marks ParentID as present; a nil ParentID then unlinks.
	SetParent bool
	ParentID  *string
}

// PatchPosition stores the flow position of a prompt
func (r *Repository) PatchPosition(ctx context.Context, name, version string, pos prompt.Position) error {
	return r.Patch(ctx, name, version, Patch{Position: &pos})
}

// PatchParent moves a prompt under parentID, or unlinks it when parentID is nil
func (r *Repository) PatchParent(ctx context.Context, name, version string, parentID *string) error {
	return r.Patch(ctx, name, version, Patch{SetParent: true, ParentID: parentID})
}

// Patch applies the parent change, then the position, in one write
// transaction. A rejected parent leaves the position untouched.
func (r *Repository) Patch(ctx context.Context, name, version string, patch Patch) error {
	key := prompt.Key(name, version)

	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		if patch.SetParent {
			if err := relinkTx(ctx, tx, key, patch.ParentID); err != nil {
				return nil, err
			}
		}
		if patch.Position != nil {
			if err := positionTx(ctx, tx, key, *patch.Position); err != nil {
				return nil, err
			}
		}
		if !patch.SetParent && patch.Position == nil {
			result, err := tx.Run(ctx, `MATCH (p:Prompt {key: $key}) RETURN p.key AS key`, map[string]any{"key": key})
			if err != nil {
				return nil, err
			}
			return nil, requireRecord(ctx, result)
		}
		return nil, nil
	})
	if err != nil {
		if errors.Is(err, ErrPromptNotFound) || errors.Is(err, ErrParentNotFound) || errors.Is(err, ErrCycle) {
			return err
		}
		return fmt.Errorf("failed to update prompt: %w", err)
	}

	fields := []zap.Field{zap.String("key", key)}
	if patch.SetParent {
		fields = append(fields, zap.Stringp("parent", patch.ParentID))
	}
	if patch.Position != nil {
		fields = append(fields, zap.Any("position", patch.Position.Rounded()))
	}
	r.logger.Info("Prompt patched", fields...)
	return nil
}

func positionTx(ctx context.Context, tx neo4j.ManagedTransaction, key string, pos prompt.Position) error {
	rounded := pos.Rounded()
	result, err := tx.Run(ctx, `
		MATCH (p:Prompt {key: $key})
		SET p.flowX = $x,
		    p.flowY = $y,
		    p.updatedAt = datetime()
		RETURN p.key AS key
	`, map[string]any{
		"key": key,
		"x":   rounded.X,
		"y":   rounded.Y,
	})
	if err != nil {
		return err
	}
	return requireRecord(ctx, result)
}

func relinkTx(ctx context.Context, tx neo4j.ManagedTransaction, key string, parentID *string) error {
	if parentID == nil {
		result, err := tx.Run(ctx, `
			MATCH (p:Prompt {key: $key})
			OPTIONAL MATCH (p)-[link:CHILD_OF]->()
			DELETE link
			RETURN DISTINCT p.key AS key
		`, map[string]any{"key": key})
		if err != nil {
			return err
		}
		return requireRecord(ctx, result)
	}

	if *parentID == key {
		return ErrCycle
	}
	result, err := tx.Run(ctx, `
		MATCH (p:Prompt {key: $key})
		OPTIONAL MATCH (parent:Prompt {key: $parentKey})
		OPTIONAL MATCH cycle = (parent)-[:CHILD_OF*]->(p)
		RETURN p.key AS key, parent IS NOT NULL AS parentExists, cycle IS NOT NULL AS cyclic
		LIMIT 1
	`, map[string]any{"key": key, "parentKey": *parentID})
	if err != nil {
		return err
	}
	if !result.Next(ctx) {
		if err := result.Err(); err != nil {
			return err
		}
		return ErrPromptNotFound
	}
	record := result.Record()
	if exists, _ := record.Get("parentExists"); exists != true {
		return ErrParentNotFound
	}
	if cyclic, _ := record.Get("cyclic"); cyclic == true {
		return ErrCycle
	}

	_, err = tx.Run(ctx, `
		MATCH (p:Prompt {key: $key}), (parent:Prompt {key: $parentKey})
		OPTIONAL MATCH (p)-[old:CHILD_OF]->()
		DELETE old
		WITH DISTINCT p, parent
		CREATE (p)-[:CHILD_OF]->(parent)
		SET p.updatedAt = datetime()
	`, map[string]any{"key": key, "parentKey": *parentID})
	return err
}

// Delete removes a prompt and its links. Children become roots.
func (r *Repository) Delete(ctx context.Context, name, version string) error {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	query := `
		MATCH (p:Prompt {key: $key})
		WITH p, p.key AS key
		DETACH DELETE p
		RETURN key
	`

	result, err := session.Run(ctx, query, map[string]any{
		"key": prompt.Key(name, version),
	})
	if err != nil {
		return fmt.Errorf("failed to delete prompt: %w", err)
	}
	return requireRecord(ctx, result)
}

func recordToPrompt(record *neo4j.Record) (prompt.Prompt, bool) {
	node, ok := getNodeFromRecord(record, "p")
	if !ok {
		return prompt.Prompt{}, false
	}
	return promptFromProps(node.Props, getStringFromRecord(record, "parentId")), true
}

func requireRecord(ctx context.Context, result neo4j.ResultWithContext) error {
	if result.Next(ctx) {
		return nil
	}
	if err := result.Err(); err != nil {
		return fmt.Errorf("failed to fetch record: %w", err)
	}
	return ErrPromptNotFound
}

func isConstraintViolation(err error) bool {
	return strings.Contains(err.Error(), "ConstraintValidationFailed")
}
