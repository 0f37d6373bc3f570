package commands

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ptcgai/referee-server-go/internal/game/plan"
	"github.com/ptcgai/referee-server-go/internal/repository"
)

func newPlansCommand(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plans",
		Short: "Inspect and review stored execution plans",
	}
	cmd.AddCommand(newPlansListCommand(g))
	cmd.AddCommand(newPlansShowCommand(g))
	cmd.AddCommand(newPlansReviewCommand(g))
	return cmd
}

func newPlansListCommand(g *globals) *cobra.Command {
	var filter struct {
		card   string
		effect string
		status string
	}
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored plans",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			status, err := parseStatus(filter.status)
			if err != nil {
				return err
			}
			s, err := g.store(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			plans, err := s.List(cmd.Context(), repository.PlanFilter{
				CardID:     filter.card,
				EffectName: filter.effect,
				Status:     status,
			})
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "CARD\tEFFECT\tVERSION\tSTATUS\tSTEPS\tUNSUPPORTED")
			for _, p := range plans {
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%d\t%d\n",
					p.CardID, p.EffectName, p.Version, p.Status, len(p.Steps), len(p.Unsupported))
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&filter.card, "card", "", "only plans of this card id")
	cmd.Flags().StringVar(&filter.effect, "effect", "", "only plans of this effect")
	cmd.Flags().StringVar(&filter.status, "status", "", "only plans in this status")
	return cmd
}

func newPlansShowCommand(g *globals) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "show <card-id> <effect> [version]",
		Short: "Print a stored plan, the latest usable version by default",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := g.store(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			var p *plan.ExecutionPlan
			if len(args) == 3 {
				version, convErr := strconv.Atoi(args[2])
				if convErr != nil {
					return fmt.Errorf("invalid version %q", args[2])
				}
				p, err = s.Get(cmd.Context(), args[0], args[1], version)
			} else {
				p, err = s.Latest(cmd.Context(), args[0], args[1])
			}
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), format, p)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "o", "json", "output format (json, yaml)")
	return cmd
}

func newPlansReviewCommand(g *globals) *cobra.Command {
	var (
		status   string
		reviewer string
	)
	cmd := &cobra.Command{
		Use:   "review <card-id> <effect> <version>",
		Short: "Move a stored plan to another review status",
		Example: `  ptcgctl plans review SVI-181 "Nest Ball" 1 --status approved --by judge`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			next, err := plan.ParseStatus(status)
			if err != nil {
				return err
			}
			version, err := strconv.Atoi(args[2])
			if err != nil {
				return fmt.Errorf("invalid version %q", args[2])
			}
			s, err := g.store(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			p, err := repository.SetStatus(cmd.Context(), s, args[0], args[1], version, next, reviewer)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s\n", p.Key(), p.Status)
			return nil
		},
	}
	cmd.Flags().StringVar(&status, "status", string(plan.StatusApproved), "new status (draft, reviewed, approved, deprecated)")
	cmd.Flags().StringVar(&reviewer, "by", "", "name of the reviewer")
	return cmd
}
