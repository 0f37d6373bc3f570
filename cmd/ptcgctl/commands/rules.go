package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ptcgai/referee-server-go/internal/rulebook"
)

func newRulesCommand(g *globals) *cobra.Command {
	var (
		path  string
		limit int
	)
	cmd := &cobra.Command{
		Use:   "rules <query>",
		Short: "Search the rulebook",
		Example: `  ptcgctl rules "special conditions" --limit 5`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if path == "" {
				cfg, err := g.config()
				if err != nil {
					return err
				}
				path = cfg.Engine.RulebookPath
			}
			if path == "" {
				return fmt.Errorf("no rulebook configured; pass --rulebook")
			}
			kb, err := rulebook.Load(path)
			if err != nil {
				return err
			}
			entries := kb.Find(strings.Join(args, " "), limit)
			if len(entries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no matching rules")
				return nil
			}
			for _, e := range entries {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %s\n", e.Section, e.Text)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&path, "rulebook", "", "rulebook path (defaults to engine.rulebook_path)")
	cmd.Flags().IntVarP(&limit, "limit", "n", rulebook.DefaultLimit, "maximum number of sections")
	return cmd
}
