package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/goran-ethernal/RollupIndexor/internal/store"
	pkgconfig "github.com/goran-ethernal/RollupIndexor/pkg/config"
	"github.com/invopop/jsonschema"
	"github.com/spf13/cobra"
)

var l2Block uint64

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Read indexed state commitments of the selected network",
}

var outputRootCmd = &cobra.Command{
	Use:   "output-root",
	Short: "Print the first commitment covering the given L2 block",
	RunE:  queryOutputRoot,
}

var highestBlockCmd = &cobra.Command{
	Use:   "highest-block",
	Short: "Print the highest L2 block covered by indexed commitments",
	RunE:  queryHighestBlock,
}

var networksCmd = &cobra.Command{
	Use:   "networks",
	Short: "List configured networks",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NETWORK\tTABLE\tL1 CONTRACT\tDISPUTE GAMES")
		for _, n := range cfg.Networks {
			games := "-"
			if n.IsFDGEligible() {
				games = n.DisputeGameFactory
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", n.ID(), n.Table, n.L1Contract, games)
		}
		return w.Flush()
	},
}

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the JSON schema of the configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		reflector := &jsonschema.Reflector{FieldNameTag: "json"}
		schema := reflector.Reflect(&pkgconfig.Config{})

		out, err := json.MarshalIndent(schema, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal schema: %w", err)
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return err
	},
}

func init() {
	outputRootCmd.Flags().Uint64Var(&l2Block, "l2-block", 0, "L2 block number to look up")
	_ = outputRootCmd.MarkFlagRequired("l2-block")

	queryCmd.AddCommand(outputRootCmd, highestBlockCmd)
}

func openForQuery() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return newApp(context.Background(), cfg, false)
}

func queryOutputRoot(cmd *cobra.Command, args []string) error {
	a, err := openForQuery()
	if err != nil {
		return err
	}
	defer a.close()

	record, err := firstCommitment(cmd.Context(), a, l2Block)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("no commitment covers L2 block %d", l2Block)
	}
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(record)
}

// firstCommitment looks up legacy outputs first and falls back to accepted
// dispute games, which cover blocks after the transition.
func firstCommitment(ctx context.Context, a *app, l2Block uint64) (any, error) {
	if a.family.IsArbitrum() {
		return a.store.FirstSendRootAtOrAfter(ctx, l2Block)
	}

	output, err := a.store.FirstOutputAtOrAfter(ctx, l2Block)
	if err == nil || !errors.Is(err, store.ErrNotFound) || !a.family.HasDisputeGames() {
		return output, err
	}

	trusted, _ := a.network.TrustedProposer()
	return a.store.FirstDisputeGameAtOrAfter(ctx, l2Block, trusted)
}

func queryHighestBlock(cmd *cobra.Command, args []string) error {
	a, err := openForQuery()
	if err != nil {
		return err
	}
	defer a.close()

	var transition *uint64
	if a.family.HasDisputeGames() {
		transition = a.network.FDGTransitionBlock
	}
	trusted, _ := a.network.TrustedProposer()

	highest, err := a.store.HighestIndexedL2Block(cmd.Context(), transition, trusted)
	if errors.Is(err, store.ErrNotFound) {
		fmt.Fprintln(os.Stderr, "nothing indexed yet")
		return nil
	}
	if err != nil {
		return err
	}

	_, err = fmt.Fprintln(cmd.OutOrStdout(), highest)
	return err
}
