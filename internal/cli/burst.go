package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/evstore/internal/ir"
	"github.com/roach88/evstore/internal/testutil"
)

// BurstOptions holds flags for the burst command.
type BurstOptions struct {
	*RootOptions
	Store       string
	Attempt     string
	Count       int
	PayloadSize int
}

// BurstResult reports what a burst committed.
type BurstResult struct {
	Store     string `json:"store"`
	Attempt   string `json:"attempt"`
	Committed int    `json:"committed"`
	LastSeq   uint64 `json:"last_seq"`
	State     string `json:"state"`
}

func (r BurstResult) String() string {
	return fmt.Sprintf("burst %s: committed %d events (last seq %d), store %s",
		r.Attempt, r.Committed, r.LastSeq, r.State)
}

// NewBurstCommand creates the burst command.
func NewBurstCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &BurstOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "burst",
		Short: "Commit a burst of edits without waiting, then shut down",
		Long: `Commit --count uiStateSet events as fast as possible without waiting on
any of them, then shut the store down. Event i carries the draft

  attempt=<attempt>;event=<i>;<payload-size bytes of x>

This is the writer half of repro; it exits only after every event is on disk.

Examples:
  evstore burst --attempt A --count 200 --payload-size 2000`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBurst(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Store, "store", DefaultStoreID, "store ID")
	cmd.Flags().StringVar(&opts.Attempt, "attempt", "A", "attempt label written into each draft")
	cmd.Flags().IntVar(&opts.Count, "count", 200, "number of events to commit")
	cmd.Flags().IntVar(&opts.PayloadSize, "payload-size", 2000, "padding bytes per draft")

	return cmd
}

func runBurst(opts *BurstOptions, cmd *cobra.Command) error {
	out := opts.formatter(cmd)
	if opts.Count <= 0 {
		return out.Fail(ExitCommandError, "invalid --count", fmt.Errorf("must be positive, got %d", opts.Count))
	}
	if opts.PayloadSize < 0 {
		return out.Fail(ExitCommandError, "invalid --payload-size", fmt.Errorf("must not be negative, got %d", opts.PayloadSize))
	}

	st, err := opts.openStore(context.Background(), cmd, opts.Store, false)
	if err != nil {
		return out.Fail(ExitCommandError, "failed to open store", err)
	}

	result := BurstResult{Store: opts.Store, Attempt: opts.Attempt}
	for i := 0; i < opts.Count; i++ {
		args := ir.Object{"draft": ir.String(testutil.Draft(opts.Attempt, i, opts.PayloadSize))}
		h, err := st.Commit("uiStateSet", args)
		if err != nil {
			_ = shutdownStore(st, out.GetErrWriter())
			return out.Fail(ExitCommandError, fmt.Sprintf("commit %d rejected", i), err)
		}
		result.Committed++
		result.LastSeq = h.Seq()
	}
	out.VerboseLog("admitted %d events, shutting down", result.Committed)

	err = shutdownStore(st, out.GetErrWriter())
	result.State = st.State().String()
	if err != nil {
		return out.Fail(exitCodeFor(err), "shutdown failed", err)
	}
	return out.Success(result)
}
