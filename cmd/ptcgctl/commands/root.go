// Package commands implements the ptcgctl operator CLI.
package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/ptcgai/referee-server-go/internal/catalog"
	"github.com/ptcgai/referee-server-go/internal/config"
	"github.com/ptcgai/referee-server-go/internal/repository"
)

// globals holds the persistent flags shared by every command.
type globals struct {
	configPath  string
	catalogPath string
	verbose     bool
}

// Execute runs the root command.
func Execute(ctx context.Context, version string) error {
	return NewRootCommand(version).ExecuteContext(ctx)
}

// NewRootCommand builds the command tree.
func NewRootCommand(version string) *cobra.Command {
	g := &globals{}
	rootCmd := &cobra.Command{
		Use:   "ptcgctl",
		Short: "Operator tooling for the PTCG referee",
		Long: `ptcgctl compiles card effects into execution plans, reviews stored
plans, imports card catalogs, validates deck lists, inspects replays,
searches the rulebook and talks to a running referee server.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&g.configPath, "config", "c", "config/config.yaml", "config file path")
	rootCmd.PersistentFlags().StringVar(&g.catalogPath, "catalog", "", "card catalog path (defaults to engine.catalog_path)")
	rootCmd.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "enable verbose output")

	rootCmd.AddCommand(newCompileCommand(g))
	rootCmd.AddCommand(newPlansCommand(g))
	rootCmd.AddCommand(newDeckCommand(g))
	rootCmd.AddCommand(newCatalogCommand(g))
	rootCmd.AddCommand(newRulesCommand(g))
	rootCmd.AddCommand(newReplayCommand(g))
	rootCmd.AddCommand(newMatchCommand(g))

	return rootCmd
}

func (g *globals) logger() *zap.Logger {
	if !g.verbose {
		return zap.NewNop()
	}
	logger, err := zap.NewDevelopment()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

func (g *globals) config() (*config.Config, error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

func (g *globals) catalog() (*catalog.Catalog, error) {
	path := g.catalogPath
	if path == "" {
		cfg, err := g.config()
		if err != nil {
			return nil, err
		}
		path = cfg.Engine.CatalogPath
	}
	return catalog.Load(path)
}

func (g *globals) store(ctx context.Context) (repository.Store, error) {
	cfg, err := g.config()
	if err != nil {
		return nil, err
	}
	return repository.Open(ctx, cfg.Database, g.logger())
}

// render writes v as indented JSON or, for format "yaml", as YAML with the
// JSON field names.
func render(w io.Writer, format string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	switch format {
	case "", "json":
		_, err = fmt.Fprintln(w, string(data))
		return err
	case "yaml":
		var generic any
		if err := json.Unmarshal(data, &generic); err != nil {
			return err
		}
		out, err := yaml.Marshal(generic)
		if err != nil {
			return err
		}
		_, err = w.Write(out)
		return err
	}
	return fmt.Errorf("unknown output format %q (json, yaml)", format)
}
