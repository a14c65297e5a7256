// ════════════════════════════════════════════════════════════════════════════════════════════════
// Block Hash Horse Race - Main Entry Point
// ────────────────────────────────────────────────────────────────────────────────────────────────
// Project: Block Hash Horse Race
// Component: CLI & run orchestration
//
// Description:
//   Loads configuration (defaults → YAML → BLOCKRACE_* env → flags), wires the chain provider,
//   terminal board and optional journal into a controller and runs one race.
//
// Output:
//   - stdout: the race board, then exactly one winner line
//   - stderr: logs, or exactly one error line
//
// ════════════════════════════════════════════════════════════════════════════════════════════════

package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mjpowersjr/block-hash-experiments/config"
	"github.com/mjpowersjr/block-hash-experiments/control"
	"github.com/mjpowersjr/block-hash-experiments/controller"
	"github.com/mjpowersjr/block-hash-experiments/debug"
	"github.com/mjpowersjr/block-hash-experiments/display"
	"github.com/mjpowersjr/block-hash-experiments/journal"
	"github.com/mjpowersjr/block-hash-experiments/provider"
	"github.com/mjpowersjr/block-hash-experiments/source"
)

// maxHashBytes is the hash length of the EVM chains the default endpoint serves.
const maxHashBytes = 32

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		if errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, "race cancelled")
			os.Exit(130)
		}
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "blockrace",
		Short: "Horse race driven by chain block hashes",
		Long: `blockrace races horses across consecutive blocks of an EVM chain.

Every block hash is split into one chunk per horse; each chunk sets how far
that horse moves, scaled by how full the block was. The race replays history
from the chosen starting block, then follows new blocks until a horse
crosses the finish line.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runRace,
	}

	// Shared with subcommands
	cmd.PersistentFlags().String("config", "", "YAML config file")
	cmd.PersistentFlags().String("log-level", "", "Log level: trace, debug, info, warn, error, disabled")
	cmd.PersistentFlags().String("journal", "", "SQLite file recording every run")

	// Race flags
	cmd.Flags().StringP("block", "b", "", `Starting block: "latest", -N (N blocks behind the tip) or a height`)
	cmd.Flags().String("rpc", "", "JSON-RPC HTTP endpoint")
	cmd.Flags().String("ws", "", "JSON-RPC websocket endpoint for new heads (polls when empty)")
	cmd.Flags().Int("horses", 0, "Number of horses")
	cmd.Flags().Float64("distance", 0, "Finish line distance")
	cmd.Flags().Duration("delay", 0, "Delay between catch-up fetches")

	cmd.AddCommand(
		newHistoryCmd(),
		newVersionCmd(),
	)
	return cmd
}

// loadConfig resolves the effective configuration for cmd: flags set on the
// command line override everything else.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.LogLevel, _ = flags.GetString("log-level")
	}
	if flags.Changed("journal") {
		cfg.Journal, _ = flags.GetString("journal")
	}
	if f := flags.Lookup("block"); f != nil && f.Changed {
		cfg.Start, _ = flags.GetString("block")
	}
	if f := flags.Lookup("rpc"); f != nil && f.Changed {
		cfg.RPCURL, _ = flags.GetString("rpc")
	}
	if f := flags.Lookup("ws"); f != nil && f.Changed {
		cfg.WSURL, _ = flags.GetString("ws")
	}
	if f := flags.Lookup("horses"); f != nil && f.Changed {
		cfg.Horses, _ = flags.GetInt("horses")
	}
	if f := flags.Lookup("distance"); f != nil && f.Changed {
		cfg.Distance, _ = flags.GetFloat64("distance")
	}
	if f := flags.Lookup("delay"); f != nil && f.Changed {
		cfg.PollDelay, _ = flags.GetDuration("delay")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	debug.Configure(cmd.ErrOrStderr(), cfg.LogLevel)
	return cfg, nil
}

func runRace(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	start, err := controller.ParseStart(cfg.Start)
	if err != nil {
		return err
	}
	if need := cfg.RequiredHashBytes(); need > maxHashBytes {
		debug.DropMessage("CONFIG", fmt.Sprintf("%d horses need %d hash bytes; %d-byte hashes will be rejected",
			cfg.Horses, need, maxHashBytes))
	}

	ctx, stop := control.WithSignals(cmd.Context())
	defer stop()

	rc := controller.Config{
		Horses:   cfg.Horses,
		Distance: cfg.Distance,
		Pace:     cfg.PaceOptions(),
		Source:   source.Options{Delay: cfg.PollDelay},
		Start:    start,
		Endpoint: cfg.RPCURL,
	}
	if cfg.Journal != "" {
		j, err := journal.Open(cfg.Journal)
		if err != nil {
			return err
		}
		defer j.Close()
		rc.Recorder = j
	}

	chain := provider.New(cfg.RPCURL, cfg.WSURL, cfg.RequestTimeout, cfg.HeadPollInterval)
	board := display.New(cmd.OutOrStdout())

	winner, err := controller.New(chain, board, rc).Run(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), winner.String())
	return nil
}
