package graph

import (
	"context"
	"errors"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"prompt-studio/backend/pkg/logger"
)

var (
	// ErrPromptNotFound is returned when no prompt has the requested key
	ErrPromptNotFound = errors.New("prompt not found")
	// ErrPromptExists is returned when creating a key that is taken
	ErrPromptExists = errors.New("prompt already exists")
	// ErrParentNotFound is returned when linking to a parent that does not exist
	ErrParentNotFound = errors.New("parent prompt not found")
	// ErrCycle is returned when a parent link would make a prompt its own ancestor
	ErrCycle = errors.New("parent link would create a cycle")
)

// Repository handles all Neo4j database operations
type Repository struct {
	driver neo4j.DriverWithContext
	logger *zap.Logger
}

// NewRepository creates a new prompt repository
func NewRepository(driver neo4j.DriverWithContext) *Repository {
	return &Repository{
		driver: driver,
		logger: logger.Named("graph"),
	}
}

// Close closes the Neo4j driver connection
func (r *Repository) Close() error {
	return r.driver.Close(context.Background())
}

var schema = []struct {
	name  string
	query string
}{
	{
		name:  "prompt_key_unique",
		query: `CREATE CONSTRAINT prompt_key_unique IF NOT EXISTS FOR (p:Prompt) REQUIRE p.key IS UNIQUE`,
	},
	{
		name:  "prompt_name",
		query: `CREATE INDEX prompt_name IF NOT EXISTS FOR (p:Prompt) ON (p.name)`,
	},
}

// EnsureSchema creates the constraints and indexes the repository relies on.
// It is idempotent.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	for _, s := range schema {
		if _, err := session.Run(ctx, s.query, nil); err != nil {
			return fmt.Errorf("failed to apply %s: %w", s.name, err)
		}
		r.logger.Debug("Schema applied", zap.String("name", s.name))
	}
	return nil
}
