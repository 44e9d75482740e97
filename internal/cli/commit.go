package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/evstore/internal/ir"
	"github.com/roach88/evstore/internal/storage"
	"github.com/roach88/evstore/internal/store"
)

// DefaultStoreID is the store the commands use when --store is not given.
const DefaultStoreID = "S-A"

// CommitOptions holds flags for the commit command.
type CommitOptions struct {
	*RootOptions
	Store string
	Args  string
	Wait  bool
}

// CommitResult is the committed event as the command reports it.
type CommitResult struct {
	Store   string    `json:"store"`
	Seq     uint64    `json:"seq"`
	ID      string    `json:"id"`
	Name    string    `json:"name"`
	Args    ir.Object `json:"args"`
	Session string    `json:"session"`
}

func (r CommitResult) String() string {
	return fmt.Sprintf("committed %s seq=%d id=%s", r.Name, r.Seq, r.ID)
}

// NewCommitCommand creates the commit command.
func NewCommitCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CommitOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "commit <event>",
		Short: "Commit one event and shut down",
		Long: `Commit one event to a store, then shut the store down.

The command returns only after shutdown, so the event is durable once it
exits 0. --wait additionally waits for the commit's own handle first.

Exit codes:
  0 - Event committed and durable
  2 - Command error (store locked, invalid event, etc.)

Examples:
  evstore commit uiStateSet --args '{"draft":"hello"}'
  evstore commit uiStateReset --store S-B --backend fs`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCommit(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Store, "store", DefaultStoreID, "store ID")
	cmd.Flags().StringVar(&opts.Args, "args", "{}", "event arguments as JSON")
	cmd.Flags().BoolVar(&opts.Wait, "wait", false, "wait for the commit to be durable before shutdown")

	return cmd
}

func runCommit(opts *CommitOptions, name string, cmd *cobra.Command) error {
	out := opts.formatter(cmd)

	args, err := ir.ParseObject([]byte(opts.Args))
	if err != nil {
		return out.Fail(ExitCommandError, "invalid --args JSON", err)
	}

	ctx := context.Background()
	st, err := opts.openStore(ctx, cmd, opts.Store, false)
	if err != nil {
		return out.Fail(ExitCommandError, "failed to open store", err)
	}

	handle, err := st.Commit(name, args)
	if err != nil {
		_ = shutdownStore(st, out.GetErrWriter())
		return out.Fail(ExitCommandError, "commit rejected", err)
	}
	out.VerboseLog("admitted seq=%d", handle.Seq())

	if opts.Wait {
		if err := handle.Wait(ctx); err != nil {
			_ = shutdownStore(st, out.GetErrWriter())
			return out.Fail(ExitFailure, "commit not durable", err)
		}
	}
	if err := shutdownStore(st, out.GetErrWriter()); err != nil {
		return out.Fail(exitCodeFor(err), "shutdown failed", err)
	}

	ev := handle.Event()
	return out.Success(CommitResult{
		Store:   opts.Store,
		Seq:     ev.Seq,
		ID:      ev.ID,
		Name:    ev.Name,
		Args:    ev.Args,
		Session: ev.SessionID,
	})
}

// exitCodeFor separates lost writes (a failed check) from errors that stop
// the command before it can check anything.
func exitCodeFor(err error) int {
	if errors.Is(err, storage.ErrWriteFailed) || errors.Is(err, store.ErrDrainGateBypassed) {
		return ExitFailure
	}
	return ExitCommandError
}
