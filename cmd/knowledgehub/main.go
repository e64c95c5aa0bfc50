// knowledgehub - versioned knowledge repository with vector search.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"knowledgehub/internal/bus"
	"knowledgehub/internal/config"
	"knowledgehub/internal/embedding"
	"knowledgehub/internal/repository"
	"knowledgehub/internal/subscription"
	"knowledgehub/internal/types"
	"knowledgehub/internal/validation"
)

const version = "1.0.0"

var (
	// Flags
	verbose    bool
	configPath string
	timeout    time.Duration

	// publish flags
	publishType   string
	publishTopic  string
	publishSource string
	publishTags   []string

	// query flags
	queryLimit int
	queryKind  string

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "knowledgehub",
	Short: "knowledgehub - versioned knowledge repository with vector search",
	Long: `knowledgehub stores typed, versioned knowledge items with secondary
indices, similarity search over content embeddings, and a publish/subscribe
notification engine. The serve command attaches the repository to the JSON
event bus and streams lifecycle events to stdout.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Initialize logger
		cfg := zap.NewProductionConfig()
		if verbose {
			cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = cfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// serveCmd runs the repository attached to the event bus until interrupted
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the repository attached to the event bus",
	Long: `Starts the repository (replaying the snapshot when configured),
bridges it onto the event bus, and prints lifecycle events until SIGINT.`,
	RunE: runServe,
}

// publishCmd publishes a single item from the command line
var publishCmd = &cobra.Command{
	Use:   "publish [content]",
	Short: "Publish a knowledge item",
	Long: `Publishes one knowledge item. Content is taken from the arguments,
parsed as JSON when possible and stored as a plain string otherwise.

Example:
  knowledgehub publish --type FACT --topic deploy/rules '{"rule": "no friday deploys"}'`,
	Args: cobra.MinimumNArgs(1),
	RunE: runPublish,
}

// queryCmd searches the repository
var queryCmd = &cobra.Command{
	Use:   "query [text]",
	Short: "Query the repository",
	Long: `Queries the repository by similarity (default), topic, tag, or id.

Example:
  knowledgehub query --kind topic deploy/rules`,
	Args: cobra.MinimumNArgs(1),
	RunE: runQuery,
}

// statsCmd prints repository counters
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print repository counters",
	RunE:  runStats,
}

// versionCmd prints the version
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the knowledgehub version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("knowledgehub %s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default: $KNOWLEDGEHUB_CONFIG or ~/.knowledgehub/config.yaml)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 2*time.Minute, "Operation timeout")

	publishCmd.Flags().StringVar(&publishType, "type", "FACT", "Knowledge type (FACT, RULE, PROCEDURE, CONCEPT, RELATION, METADATA, OTHER)")
	publishCmd.Flags().StringVar(&publishTopic, "topic", "", "Topic (required)")
	publishCmd.Flags().StringVar(&publishSource, "source", "cli", "Source id")
	publishCmd.Flags().StringSliceVar(&publishTags, "tag", nil, "Tags (repeatable)")
	_ = publishCmd.MarkFlagRequired("topic")

	queryCmd.Flags().IntVar(&queryLimit, "limit", 10, "Maximum results")
	queryCmd.Flags().StringVar(&queryKind, "kind", "text", "Query kind (text, topic, tag, id)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(publishCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// buildRepository assembles a repository from the loaded configuration.
func buildRepository(ctx context.Context) (*repository.Repository, *config.Config, error) {
	path := configPath
	if path == "" {
		path = config.DefaultPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, err
	}

	embedder, err := embedding.NewEngine(embedding.Config{
		Provider:       cfg.Embedding.Provider,
		HashDimensions: cfg.Embedding.HashDimensions,
		OllamaEndpoint: cfg.Embedding.OllamaBaseURL,
		OllamaModel:    cfg.Embedding.OllamaModel,
		GenAIAPIKey:    cfg.Embedding.GenAIAPIKey,
		GenAIModel:     cfg.Embedding.GenAIModel,
		TaskType:       cfg.Embedding.TaskType,
	}, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build embedder: %w", err)
	}

	// Remote backends expose a health check; a failing backend degrades
	// publish and text search but topic/tag/id lookups still work.
	if hc, ok := embedder.(embedding.HealthChecker); ok {
		if err := hc.HealthCheck(ctx); err != nil {
			logger.Warn("embedding backend unhealthy",
				zap.String("provider", cfg.Embedding.Provider), zap.Error(err))
		}
	}

	var validator repository.Validator
	if cfg.Validation.SchemaPath != "" {
		v, err := validation.NewFromFile(cfg.Validation.SchemaPath, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load schemas: %w", err)
		}
		validator = v
	}

	repo, err := repository.New(repository.Options{
		Embedder:      embedder,
		Validator:     validator,
		CacheCapacity: cfg.Repository.CacheCapacity,
		QueueSize:     cfg.Repository.QueueSize,
		SnapshotPath:  cfg.Repository.SnapshotPath,
		Logger:        logger,
	})
	if err != nil {
		return nil, nil, err
	}
	if err := repo.Start(ctx); err != nil {
		return nil, nil, err
	}
	return repo, cfg, nil
}

// runServe runs the repository behind the event bus until interrupted
func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("Received shutdown signal")
		cancel()
	}()

	repo, cfg, err := buildRepository(ctx)
	if err != nil {
		return err
	}
	defer repo.Stop(context.Background())

	// Optional schema hot reload
	var watcher *validation.Watcher
	if cfg.Validation.SchemaPath != "" && cfg.Validation.HotReload {
		v, err := validation.NewFromFile(cfg.Validation.SchemaPath, logger)
		if err == nil {
			watcher, err = validation.NewWatcher(cfg.Validation.SchemaPath, v, logger)
			if err == nil {
				if werr := watcher.Start(ctx); werr != nil {
					logger.Warn("schema watcher failed to start", zap.Error(werr))
					watcher = nil
				}
			}
		}
		if watcher != nil {
			defer watcher.Stop()
		}
	}

	eventBus := bus.New(logger)
	adapter := bus.NewAdapter(eventBus, repo, logger)
	adapter.Start(ctx)
	defer adapter.Stop()

	// Stream lifecycle events to stdout so operators can watch mutations.
	subID := repo.Subscribe(subscription.AllFilter{}, func(n subscription.Notification) {
		fmt.Printf("[%s] %s %s topic=%s v%d\n",
			n.Timestamp.Format(time.RFC3339), n.Change, n.Item.ID, n.Item.Topic, n.Item.Version)
	})
	defer repo.Unsubscribe(subID)

	logger.Info("knowledgehub serving",
		zap.String("embedder", cfg.Embedding.Provider),
		zap.String("snapshot", cfg.Repository.SnapshotPath))

	<-ctx.Done()
	return nil
}

// runPublish publishes one item from the CLI
func runPublish(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	repo, _, err := buildRepository(ctx)
	if err != nil {
		return err
	}
	defer repo.Stop(context.Background())

	text := strings.Join(args, " ")
	var content interface{}
	if err := json.Unmarshal([]byte(text), &content); err != nil {
		content = text
	}

	kt, err := types.ParseKnowledgeType(publishType)
	if err != nil {
		return err
	}

	id, err := repo.Publish(ctx, repository.PublishParams{
		Type:     kt,
		Topic:    publishTopic,
		Content:  content,
		SourceID: publishSource,
		Tags:     publishTags,
	})
	if err != nil {
		return err
	}
	fmt.Println(id)
	return nil
}

// runQuery searches and prints matching items as JSON lines
func runQuery(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	repo, _, err := buildRepository(ctx)
	if err != nil {
		return err
	}
	defer repo.Stop(context.Background())

	query := strings.Join(args, " ")
	var items []*types.KnowledgeItem

	switch queryKind {
	case "text":
		hits, err := repo.Search(ctx, query, queryLimit)
		if err != nil {
			return err
		}
		for _, hit := range hits {
			items = append(items, hit.Item)
		}
	case "topic":
		items = repo.ByTopic(query)
	case "tag":
		items = repo.ByTag(query)
	case "id":
		if item := repo.Get(query); item != nil {
			items = append(items, item)
		}
	default:
		return fmt.Errorf("unknown query kind %q", queryKind)
	}

	if queryLimit > 0 && len(items) > queryLimit {
		items = items[:queryLimit]
	}
	for _, item := range items {
		doc, err := json.Marshal(item)
		if err != nil {
			return err
		}
		fmt.Println(string(doc))
	}
	return nil
}

// runStats prints repository counters
func runStats(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	repo, _, err := buildRepository(ctx)
	if err != nil {
		return err
	}
	defer repo.Stop(context.Background())

	stats := repo.Stats()
	doc, err := json.MarshalIndent(stats, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(doc))
	return nil
}
