// Package cli implements the corral command-line interface.
package cli

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/mongo"
	mongooptions "go.mongodb.org/mongo-driver/mongo/options"

	"github.com/matzehuels/corral/pkg/buildinfo"
	"github.com/matzehuels/corral/pkg/cache"
	"github.com/matzehuels/corral/pkg/config"
	"github.com/matzehuels/corral/pkg/document"
	"github.com/matzehuels/corral/pkg/pipeline"
)

// =============================================================================
// Constants
// =============================================================================

// appName is the application name used for directories and display.
const appName = "corral"

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// =============================================================================
// CLI - Central CLI State
// =============================================================================

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger

	// configPath is the --config flag value, empty for the default path.
	configPath string
}

// New creates a new CLI instance with a default logger.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{
		Logger: newLogger(w, level),
	}
}

// SetLogLevel updates the logger's level.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

// RootCommand creates the root cobra command with all subcommands registered.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          "corral",
		Short:        "Corral groups node graphs into nestable, gated frames",
		Long:         `Corral is the grouping engine of a node-graph editor: it corrals nodes into named, nestable groups, keeps boundary wiring normalized through proxy nodes, gates group execution, and converts group subtrees into reusable compound definitions.`,
		Version:      buildinfo.Version,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			cmd.SetContext(withLogger(cmd.Context(), c.Logger))
		},
	}

	root.SetVersionTemplate(buildinfo.Template())
	root.PersistentFlags().StringVar(&c.configPath, "config", "", "path to the corral config file (TOML)")

	// Register all subcommands
	root.AddCommand(c.inspectCommand())
	root.AddCommand(c.framesCommand())
	root.AddCommand(c.normalizeCommand())
	root.AddCommand(c.renderCommand())
	root.AddCommand(c.serveCommand())
	root.AddCommand(c.tuiCommand())
	root.AddCommand(c.cacheCommand())
	root.AddCommand(c.completionCommand())

	return root
}

// =============================================================================
// Runner Factory
// =============================================================================

// loadConfig reads the config file named by --config, falling back to the
// default path and then to built-in defaults when no file exists.
func (c *CLI) loadConfig() (config.Config, error) {
	return config.LoadOrDefault(c.configPath)
}

// newRunner creates a pipeline runner for CLI use.
func (c *CLI) newRunner(cfg config.Config, noCache bool) (*pipeline.Runner, error) {
	docs, err := c.newDocumentStore(cfg)
	if err != nil {
		return nil, err
	}
	artifactCache, keyer, err := newCache(cfg, noCache)
	if err != nil {
		return nil, err
	}
	return pipeline.NewRunner(docs, artifactCache, keyer, c.Logger), nil
}

// newDocumentStore picks the document backend: MongoDB when mongo-uri is
// configured, the per-user file store otherwise.
func (c *CLI) newDocumentStore(cfg config.Config) (document.Store, error) {
	if uri := cfg.Documents.MongoURI; uri != "" {
		client, err := mongo.Connect(context.Background(), mongooptions.Client().ApplyURI(uri))
		if err != nil {
			return nil, err
		}
		coll := client.Database(appName).Collection("documents")
		return document.NewMongoStore(coll), nil
	}
	return document.NewFileStore(cfg.Documents.Dir)
}

// newCache picks the artifact cache backend: Redis when redis-addr is
// configured (shared between machines, so keys are scoped by app name),
// the XDG file cache otherwise.
func newCache(cfg config.Config, noCache bool) (cache.Cache, cache.Keyer, error) {
	if noCache {
		return cache.NewNullCache(), nil, nil
	}
	if addr := cfg.Documents.RedisAddr; addr != "" {
		client := redis.NewClient(&redis.Options{Addr: addr})
		keyer := cache.NewScopedKeyer(cache.NewDefaultKeyer(), appName)
		return cache.NewRedisCache(client), keyer, nil
	}
	dir, err := cacheDir()
	if err != nil {
		return cache.NewNullCache(), nil, nil
	}
	fileCache, err := cache.NewFileCache(dir)
	if err != nil {
		return nil, nil, err
	}
	return fileCache, nil, nil
}

// =============================================================================
// Paths
// =============================================================================

// cacheDir returns the cache directory using XDG standard (~/.cache/corral/).
func cacheDir() (string, error) {
	if cacheHome := os.Getenv("XDG_CACHE_HOME"); cacheHome != "" {
		return filepath.Join(cacheHome, appName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".cache", appName), nil
}

// =============================================================================
// Options Helpers
// =============================================================================

// parseFormats parses a comma-separated format string into a slice.
func parseFormats(s string) []string {
	if s == "" {
		return []string{pipeline.FormatSVG}
	}
	return strings.Split(s, ",")
}
