package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"prompt-studio/backend/internal/graph"
	"prompt-studio/backend/internal/prompt"
	"prompt-studio/backend/pkg/config"
	"prompt-studio/backend/pkg/logger"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"
)

// seedPrompt is one prompt of the demo hierarchy; parent refers to an
// earlier entry by key.
type seedPrompt struct {
	name    string
	version string
	parent  string
	content string
	tags    []string
}

var demoTree = []seedPrompt{
	{name: "customer-support", version: "1.0", content: "You are a customer support assistant. Be concise and friendly.", tags: []string{"support"}},
	{name: "billing", version: "1.0", parent: "customer-support_1.0", content: "Answer billing questions. Never quote prices that are not in the catalogue.", tags: []string{"support", "billing"}},
	{name: "refunds", version: "1.0", parent: "billing_1.0", content: "Explain the refund policy and collect the order number.", tags: []string{"billing"}},
	{name: "technical", version: "1.0", parent: "customer-support_1.0", content: "Troubleshoot product issues step by step.", tags: []string{"support", "technical"}},
	{name: "escalation", version: "2.0", parent: "customer-support_1.0", content: "Hand the conversation to a human and summarise it.", tags: []string{"support"}},
	{name: "onboarding", version: "1.0", content: "Walk a new user through account setup.", tags: []string{"onboarding"}},
}

func main() {
	reset := flag.Bool("reset", false, "Delete every prompt before seeding")
	skipConfirm := flag.Bool("y", false, "Skip confirmation prompt")
	flag.Parse()

	// Initialize logger
	if err := logger.Init("development"); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	log := logger.Get()
	log.Info("Starting prompt seeding...")

	if *reset && !*skipConfirm {
		log.Warn("This will DELETE ALL PROMPTS from Neo4j and cannot be undone")
		// Use fmt.Print for user input prompt (needs to go to stdout)
		fmt.Print("Are you sure you want to continue? (yes/no): ")
		var response string
		fmt.Scanln(&response)
		if response != "yes" && response != "y" {
			log.Info("Aborted.")
			os.Exit(0)
		}
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration", zap.Error(err))
	}
	if err := cfg.ValidateStore(); err != nil {
		log.Fatal("Invalid store configuration", zap.Error(err))
	}

	// Initialize Neo4j driver
	driver, err := neo4j.NewDriverWithContext(
		cfg.Neo4jURI,
		neo4j.BasicAuth(cfg.Neo4jUser, cfg.Neo4jPassword, ""),
	)
	if err != nil {
		log.Fatal("Failed to create Neo4j driver", zap.Error(err))
	}
	defer driver.Close(context.Background())

	// Verify connection
	ctx := context.Background()
	if err := driver.VerifyConnectivity(ctx); err != nil {
		log.Fatal("Failed to verify Neo4j connectivity", zap.Error(err))
	}

	if *reset {
		log.Info("Deleting all prompts...")
		if err := deleteAllPrompts(ctx, driver); err != nil {
			log.Fatal("Failed to delete prompts", zap.Error(err))
		}
	}

	repo := graph.NewRepository(driver)
	log.Info("Applying schema...")
	if err := repo.EnsureSchema(ctx); err != nil {
		log.Fatal("Failed to apply schema", zap.Error(err))
	}

	created, skipped := 0, 0
	for _, s := range demoTree {
		p := prompt.Prompt{
			Name:               s.name,
			Version:            s.version,
			Content:            s.content,
			StaticTags:         s.tags,
			SupportedLanguages: []string{"en"},
			Metadata: prompt.Metadata{
				Author:      "seed",
				Description: "Demo prompt",
				Category:    "general",
			},
			Config: prompt.Config{Model: "gpt-3.5-turbo", Temperature: 0.7, MaxTokens: 1000},
		}
		if s.parent != "" {
			parent := s.parent
			p.ParentID = &parent
		}

		if _, err := repo.Create(ctx, p); err != nil {
			if errors.Is(err, graph.ErrPromptExists) {
				log.Info("Prompt already exists, skipping", zap.String("key", p.Key()))
				skipped++
				continue
			}
			log.Fatal("Failed to create prompt", zap.String("key", p.Key()), zap.Error(err))
		}
		created++
	}

	log.Info("Seeding complete",
		zap.Int("created", created),
		zap.Int("skipped", skipped),
	)
}

func deleteAllPrompts(ctx context.Context, driver neo4j.DriverWithContext) error {
	session := driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	_, err := session.Run(ctx, "MATCH (p:Prompt) DETACH DELETE p", nil)
	return err
}
