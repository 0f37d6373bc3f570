package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ptcgai/referee-server-go/internal/catalog"
)

func newDeckCommand(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deck",
		Short: "Work with deck lists",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "validate <deck.yaml>...",
		Short: "Check deck lists against the construction rules",
		Long: `Check that every deck list names known cards, holds exactly 60 cards,
at most 4 copies of any card other than Basic Energy and at least one
Basic Pokémon.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cards, err := g.catalog()
			if err != nil {
				return err
			}
			failed := 0
			for _, path := range args {
				list, err := catalog.LoadDeckList(path)
				if err != nil {
					return err
				}
				problems := cards.Validate(list)
				if len(problems) == 0 {
					fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (%d cards)\n", path, list.Size())
					continue
				}
				failed++
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %d problems\n", path, len(problems))
				for _, p := range problems {
					fmt.Fprintf(cmd.OutOrStdout(), "  - %s\n", p)
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d deck lists are invalid", failed, len(args))
			}
			return nil
		},
	})
	return cmd
}
