package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/ptcgai/referee-server-go/internal/catalog"
	"github.com/ptcgai/referee-server-go/internal/server"
)

type remote struct {
	address string
	timeout time.Duration
}

func (r *remote) call(ctx context.Context, fn func(context.Context, *server.RefereeClient) (*structpb.Struct, error)) (*structpb.Struct, error) {
	conn, err := grpc.NewClient(r.address, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", r.address, err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return fn(ctx, server.NewRefereeClient(conn))
}

func printStruct(cmd *cobra.Command, s *structpb.Struct) error {
	out, err := protojson.MarshalOptions{Multiline: true, Indent: "  "}.Marshal(s)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return err
}

func newMatchCommand(_ *globals) *cobra.Command {
	r := &remote{}
	cmd := &cobra.Command{
		Use:   "match",
		Short: "Drive matches on a running referee server",
	}
	cmd.PersistentFlags().StringVar(&r.address, "addr", "localhost:17171", "referee gRPC address")
	cmd.PersistentFlags().DurationVar(&r.timeout, "timeout", 10*time.Second, "request timeout")

	cmd.AddCommand(newMatchCreateCommand(r))
	cmd.AddCommand(newMatchSubmitCommand(r))
	cmd.AddCommand(newMatchStateCommand(r))
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List hosted matches",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out, err := r.call(cmd.Context(), func(ctx context.Context, c *server.RefereeClient) (*structpb.Struct, error) {
				return c.ListMatches(ctx, &structpb.Struct{})
			})
			if err != nil {
				return err
			}
			return printStruct(cmd, out)
		},
	})
	return cmd
}

// deckValue converts a deck list file into its wire form.
func deckValue(path string) (map[string]any, error) {
	list, err := catalog.LoadDeckList(path)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(list)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func newMatchCreateCommand(r *remote) *cobra.Command {
	var (
		matchID    string
		players    []string
		decks      []string
		first      string
		autoActive bool
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a match from two deck lists",
		Example: `  ptcgctl match create --player alice --deck data/decks/lightning.yaml \
      --player bob --deck data/decks/lightning.yaml --auto-active`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if len(players) != 2 || len(decks) != 2 {
				return fmt.Errorf("pass --player and --deck exactly twice")
			}
			seats := make([]any, 0, 2)
			for i, player := range players {
				deck, err := deckValue(decks[i])
				if err != nil {
					return err
				}
				seats = append(seats, map[string]any{"player_id": player, "deck": deck})
			}
			in, err := structpb.NewStruct(map[string]any{
				"match_id": matchID,
				"players":  seats,
				"setup": map[string]any{
					"first_player": first,
					"auto_active":  autoActive,
				},
			})
			if err != nil {
				return err
			}
			out, err := r.call(cmd.Context(), func(ctx context.Context, c *server.RefereeClient) (*structpb.Struct, error) {
				return c.CreateMatch(ctx, in)
			})
			if err != nil {
				return err
			}
			return printStruct(cmd, out)
		},
	}
	cmd.Flags().StringVar(&matchID, "id", "", "match id (generated when empty)")
	cmd.Flags().StringArrayVar(&players, "player", nil, "player id, once per seat")
	cmd.Flags().StringArrayVar(&decks, "deck", nil, "deck list file, once per seat")
	cmd.Flags().StringVar(&first, "first", "", "first player (coin flip when empty)")
	cmd.Flags().BoolVar(&autoActive, "auto-active", false, "put the first Basic of each hand into the Active Spot")
	return cmd
}

func newMatchSubmitCommand(r *remote) *cobra.Command {
	var (
		matchID string
		actor   string
		payload string
	)
	cmd := &cobra.Command{
		Use:   "submit <action>",
		Short: "Submit one request to a match",
		Example: `  ptcgctl match submit --match m-1 --actor alice attach_energy \
      --payload '{"card_id":"...","target_id":"..."}'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fields := map[string]any{
				"match_id": matchID,
				"actor_id": actor,
				"action":   args[0],
			}
			if payload != "" {
				var p map[string]any
				if err := json.Unmarshal([]byte(payload), &p); err != nil {
					return fmt.Errorf("invalid payload: %w", err)
				}
				fields["payload"] = p
			}
			in, err := structpb.NewStruct(fields)
			if err != nil {
				return err
			}
			out, err := r.call(cmd.Context(), func(ctx context.Context, c *server.RefereeClient) (*structpb.Struct, error) {
				return c.Submit(ctx, in)
			})
			if err != nil {
				return err
			}
			return printStruct(cmd, out)
		},
	}
	cmd.Flags().StringVar(&matchID, "match", "", "match id")
	cmd.Flags().StringVar(&actor, "actor", "", "acting player")
	cmd.Flags().StringVar(&payload, "payload", "", "request payload as a JSON object")
	_ = cmd.MarkFlagRequired("match")
	_ = cmd.MarkFlagRequired("actor")
	return cmd
}

func newMatchStateCommand(r *remote) *cobra.Command {
	var matchID, viewer string
	cmd := &cobra.Command{
		Use:   "state",
		Short: "Show a match as one player sees it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			in, err := structpb.NewStruct(map[string]any{"match_id": matchID, "viewer": viewer})
			if err != nil {
				return err
			}
			out, err := r.call(cmd.Context(), func(ctx context.Context, c *server.RefereeClient) (*structpb.Struct, error) {
				return c.GetState(ctx, in)
			})
			if err != nil {
				return err
			}
			return printStruct(cmd, out)
		},
	}
	cmd.Flags().StringVar(&matchID, "match", "", "match id")
	cmd.Flags().StringVar(&viewer, "viewer", "", "viewing player (spectator when empty)")
	_ = cmd.MarkFlagRequired("match")
	return cmd
}
