package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ptcgai/referee-server-go/internal/catalog"
	"github.com/ptcgai/referee-server-go/internal/game/compiler"
	"github.com/ptcgai/referee-server-go/internal/game/model"
	"github.com/ptcgai/referee-server-go/internal/game/plan"
)

func newCompileCommand(g *globals) *cobra.Command {
	var (
		all     bool
		effect  string
		format  string
		version int
		store   bool
	)

	cmd := &cobra.Command{
		Use:   "compile [card...]",
		Short: "Compile card effects into execution plans",
		Long: `Compile the effect text of catalog cards into execution plans.

Cards are named by catalog id (SVI-181) or by name (Nest Ball). Plans are
printed, and with --store written to the configured database as drafts.`,
		Example: `  # Print the plan of one card
  ptcgctl compile SVI-181

  # Compile the whole catalog into the database
  ptcgctl compile --all --store --version 2`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !all && len(args) == 0 {
				return fmt.Errorf("name at least one card or pass --all")
			}
			cards, err := g.catalog()
			if err != nil {
				return err
			}
			defs, err := resolveCards(cards, args, all)
			if err != nil {
				return err
			}

			c := compiler.New(g.logger(), compiler.WithVersion(version))
			var plans []*plan.ExecutionPlan
			for _, def := range defs {
				if effect == "" {
					plans = append(plans, c.CompileCard(def)...)
					continue
				}
				p, err := c.Compile(def, effect)
				if err != nil {
					return err
				}
				plans = append(plans, p)
			}

			if store {
				s, err := g.store(cmd.Context())
				if err != nil {
					return err
				}
				defer s.Close()
				for _, p := range plans {
					if err := s.Put(cmd.Context(), p); err != nil {
						return err
					}
				}
				fmt.Fprintf(cmd.OutOrStdout(), "stored %d plans\n", len(plans))
				return nil
			}
			return render(cmd.OutOrStdout(), format, plans)
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "compile every card of the catalog")
	cmd.Flags().StringVar(&effect, "effect", "", "compile only the named effect")
	cmd.Flags().StringVarP(&format, "format", "o", "json", "output format (json, yaml)")
	cmd.Flags().IntVar(&version, "version", 1, "plan version to assign")
	cmd.Flags().BoolVar(&store, "store", false, "write the plans to the configured database")

	return cmd
}

func resolveCards(cards *catalog.Catalog, args []string, all bool) ([]*model.CardDefinition, error) {
	if all {
		return cards.All(), nil
	}
	var defs []*model.CardDefinition
	for _, arg := range args {
		if def, ok := cards.Get(arg); ok {
			defs = append(defs, def)
			continue
		}
		byName := cards.ByName(arg)
		if len(byName) == 0 {
			return nil, fmt.Errorf("no card %q in the catalog", arg)
		}
		defs = append(defs, byName...)
	}
	return defs, nil
}

func parseStatus(s string) (plan.Status, error) {
	if strings.TrimSpace(s) == "" {
		return "", nil
	}
	return plan.ParseStatus(s)
}
