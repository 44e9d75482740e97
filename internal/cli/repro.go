package cli

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/roach88/evstore/internal/testutil"
)

// Repro defaults, overridable through the environment.
const (
	defaultReproAttempts    = 20
	defaultReproBurstCount  = 200
	defaultReproPayloadSize = 2000
	defaultReproDir         = ".repro-data"
)

// childRunner runs the evstore binary with args and returns its stdout.
type childRunner func(ctx context.Context, args []string) ([]byte, error)

// ReproOptions holds flags for the repro command.
type ReproOptions struct {
	*RootOptions
	Attempts    int
	Count       int
	PayloadSize int
	Dir         string
	Executable  string

	run childRunner
}

// ReproResult summarizes a repro run that did not reproduce.
type ReproResult struct {
	Attempts    int    `json:"attempts"`
	Count       int    `json:"count"`
	PayloadSize int    `json:"payload_size"`
	Backend     string `json:"backend"`
	Reproduced  bool   `json:"reproduced"`
}

func (r ReproResult) String() string {
	return fmt.Sprintf("✓ Did not reproduce: %d attempts, every reader saw event %d of %d (%s backend)",
		r.Attempts, r.Count-1, r.Count, r.Backend)
}

// NewReproCommand creates the repro command.
func NewReproCommand(rootOpts *RootOptions) *cobra.Command {
	return newReproCommand(rootOpts, nil)
}

func newReproCommand(rootOpts *RootOptions, run childRunner) *cobra.Command {
	opts := &ReproOptions{RootOptions: rootOpts, run: run}

	cmd := &cobra.Command{
		Use:   "repro",
		Short: "Check that a burst survives shutdown across processes",
		Long: `Run the shutdown race check. Each attempt spawns a writer process that
bursts --count events without waiting and then shuts down, followed by a
reader process that prints the document it finds. The last event's draft
must be the one the reader sees.

The data directory is removed before the first attempt.

Environment:
  REPRO_ATTEMPTS      default for --attempts (20)
  REPRO_BURST_COUNT   default for --count (200)
  REPRO_PAYLOAD_SIZE  default for --payload-size (2000)

Exit codes:
  0 - Every reader saw the last event
  1 - REPRODUCED: a reader saw an older document
  2 - Command error (a child failed, bad flags, etc.)`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRepro(opts, cmd)
		},
	}

	cmd.Flags().IntVar(&opts.Attempts, "attempts", envInt("REPRO_ATTEMPTS", defaultReproAttempts), "number of writer/reader rounds")
	cmd.Flags().IntVar(&opts.Count, "count", envInt("REPRO_BURST_COUNT", defaultReproBurstCount), "events per burst")
	cmd.Flags().IntVar(&opts.PayloadSize, "payload-size", envInt("REPRO_PAYLOAD_SIZE", defaultReproPayloadSize), "padding bytes per draft")
	cmd.Flags().StringVar(&opts.Dir, "dir", defaultReproDir, "data directory, removed before the run")
	cmd.Flags().StringVar(&opts.Executable, "exe", "", "evstore binary for the children (default: this binary)")
	_ = cmd.Flags().MarkHidden("exe")

	return cmd
}

// envInt reads a positive integer from the environment.
func envInt(name string, def int) int {
	if v, err := strconv.Atoi(os.Getenv(name)); err == nil && v > 0 {
		return v
	}
	return def
}

func runRepro(opts *ReproOptions, cmd *cobra.Command) error {
	out := opts.formatter(cmd)
	if opts.Attempts <= 0 || opts.Count <= 0 || opts.PayloadSize < 0 {
		return out.Fail(ExitCommandError, "invalid repro parameters",
			fmt.Errorf("attempts=%d count=%d payload-size=%d", opts.Attempts, opts.Count, opts.PayloadSize))
	}

	cfg, err := opts.loadConfig()
	if err != nil {
		return out.Fail(ExitCommandError, "invalid configuration", err)
	}

	run := opts.run
	if run == nil {
		exe := opts.Executable
		if exe == "" {
			if exe, err = os.Executable(); err != nil {
				return out.Fail(ExitCommandError, "cannot locate evstore binary", err)
			}
		}
		run = execRunner(exe)
	}

	if err := os.RemoveAll(opts.Dir); err != nil {
		return out.Fail(ExitCommandError, "failed to remove data directory", err)
	}

	common := []string{
		"--base-dir", opts.Dir,
		"--backend", cfg.Storage.Backend,
		"--sync", cfg.Storage.Sync,
	}
	if opts.Config != "" {
		common = append(common, "--config", opts.Config)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	for attempt := 0; attempt < opts.Attempts; attempt++ {
		storeID := fmt.Sprintf("repro-%d", attempt)
		label := strconv.Itoa(attempt)

		burst := append([]string{"burst",
			"--store", storeID,
			"--attempt", label,
			"--count", strconv.Itoa(opts.Count),
			"--payload-size", strconv.Itoa(opts.PayloadSize),
		}, common...)
		if _, err := run(ctx, burst); err != nil {
			return out.Fail(ExitCommandError, fmt.Sprintf("attempt %d: writer failed", attempt), err)
		}

		query := append([]string{"query", "--store", storeID, "--format", "text"}, common...)
		stdout, err := run(ctx, query)
		if err != nil {
			return out.Fail(ExitCommandError, fmt.Sprintf("attempt %d: reader failed", attempt), err)
		}
		doc, err := parseQueryResult(stdout)
		if err != nil {
			return out.Fail(ExitCommandError, fmt.Sprintf("attempt %d: reader output", attempt), err)
		}

		actual := doc.Str("draft")
		expected := testutil.Draft(label, opts.Count-1, opts.PayloadSize)
		out.VerboseLog("attempt %d: reader draft length %d", attempt, len(actual))
		if actual != expected {
			msg := fmt.Sprintf("REPRODUCED attempt=%d expectedLength=%d actualLength=%d expectedHead=%s actualHead=%s",
				attempt, len(expected), len(actual), head(expected, 64), head(actual, 64))
			if opts.Format == "json" {
				_ = out.Error("REPRODUCED", msg, map[string]interface{}{"attempt": attempt, "store": storeID})
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), msg)
			}
			return NewExitError(ExitFailure, msg)
		}
	}

	return out.Success(ReproResult{
		Attempts:    opts.Attempts,
		Count:       opts.Count,
		PayloadSize: opts.PayloadSize,
		Backend:     cfg.Storage.Backend,
	})
}

func head(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// execRunner runs children as separate processes of exe with the parent's
// environment.
func execRunner(exe string) childRunner {
	return func(ctx context.Context, args []string) ([]byte, error) {
		var stdout, stderr bytes.Buffer
		c := exec.CommandContext(ctx, exe, args...)
		c.Env = os.Environ()
		c.Stdout = &stdout
		c.Stderr = &stderr
		if err := c.Run(); err != nil {
			return nil, fmt.Errorf("%s %s: %w\nSTDOUT:\n%s\nSTDERR:\n%s", exe, args[0], err, stdout.String(), stderr.String())
		}
		return stdout.Bytes(), nil
	}
}
