package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ptcgai/referee-server-go/internal/game"
)

func newReplayCommand(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Inspect saved match recordings",
	}
	cmd.AddCommand(newReplayShowCommand(g))
	cmd.AddCommand(newReplayVerifyCommand(g))
	return cmd
}

func newReplayShowCommand(g *globals) *cobra.Command {
	var upTo int
	cmd := &cobra.Command{
		Use:   "show <file>",
		Short: "List the audit log of a recording",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := game.LoadRecording(args[0])
			if err != nil {
				return err
			}
			entries := rec.Entries
			if upTo > 0 && upTo < len(entries) {
				entries = entries[:upTo]
			}
			fmt.Fprintf(cmd.OutOrStdout(), "match %s: %d entries\n", rec.MatchID, len(rec.Entries))
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "SEQ\tACTOR\tACTION\tSEED")
			for _, e := range entries {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", e.Seq, e.Actor, e.Action, e.RandomSeed)
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVarP(&upTo, "limit", "n", 0, "show only the first n entries")
	return cmd
}

func newReplayVerifyCommand(g *globals) *cobra.Command {
	var step int
	cmd := &cobra.Command{
		Use:   "verify <file>",
		Short: "Replay a recording and print the checksum of the resulting state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := game.LoadRecording(args[0])
			if err != nil {
				return err
			}
			n := len(rec.Entries)
			if step > 0 {
				n = step
			}
			state, err := rec.ReplayTo(n, g.logger())
			if err != nil {
				return err
			}
			sum, err := game.ComputeChecksum(state)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "match %s replayed %d/%d entries\n", rec.MatchID, n, len(rec.Entries))
			fmt.Fprintf(cmd.OutOrStdout(), "turn %d (%s), phase %s\n", state.Turn.Number, state.Turn.Player, state.Turn.Phase)
			if state.Winner != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "winner %s by %s\n", state.Winner, state.WinReason)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "checksum %s (v%d)\n", sum.Hash, sum.Version)
			return nil
		},
	}
	cmd.Flags().IntVar(&step, "to", 0, "stop after this many entries")
	return cmd
}
