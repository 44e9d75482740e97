package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/evstore/internal/ir"
	"github.com/roach88/evstore/internal/materialize"
	"github.com/roach88/evstore/internal/store"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Store string
}

// ReplayResult holds the replay verification result.
type ReplayResult struct {
	Store         string    `json:"store"`
	Events        int       `json:"events"`
	LastSeq       uint64    `json:"last_seq"`
	DocumentHash  string    `json:"document_hash"`
	Document      ir.Object `json:"document"`
	Deterministic bool      `json:"deterministic"`
	MatchesStore  bool      `json:"matches_store"`
	Differences   []string  `json:"differences,omitempty"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay event log and verify determinism",
		Long: `Re-read every durable event, materialize the log twice, and verify that
both passes and the store's own document are byte-identical.

Exit codes:
  0 - Replay is deterministic and matches the store
  1 - Determinism verification failed (differences detected)
  2 - Command error (store not found, corrupt log, etc.)

Examples:
  evstore replay
  evstore replay --store S-B --backend bolt --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Store, "store", DefaultStoreID, "store ID")

	return cmd
}

func runReplay(opts *ReplayOptions, cmd *cobra.Command) error {
	ctx := context.Background()
	out := opts.formatter(cmd)

	st, err := opts.openStore(ctx, cmd, opts.Store, true)
	if err != nil {
		return out.Fail(ExitCommandError, "failed to open store", err)
	}
	defer shutdownStore(st, out.GetErrWriter())

	result, err := replayAndVerify(ctx, st, out)
	if err != nil {
		return out.Fail(ExitCommandError, "failed to replay store", err)
	}

	if opts.Format == "json" {
		if err := outputReplayJSON(cmd, result); err != nil {
			return err
		}
	} else {
		outputReplayText(cmd, result, opts.Verbose)
	}

	if !result.Deterministic || !result.MatchesStore {
		return NewExitError(ExitFailure, "replay verification failed")
	}
	return nil
}

// replayAndVerify materializes the durable log twice and compares both
// passes with the document the store built while opening.
func replayAndVerify(ctx context.Context, st *store.Store, out *OutputFormatter) (ReplayResult, error) {
	events, err := st.Replay(ctx)
	if err != nil {
		return ReplayResult{}, err
	}

	m := materialize.New(st.Schema())
	first, err := m.Replay(events)
	if err != nil {
		return ReplayResult{}, fmt.Errorf("first replay: %w", err)
	}
	second, err := m.Replay(events)
	if err != nil {
		return ReplayResult{}, fmt.Errorf("second replay: %w", err)
	}

	hash, err := ir.DocumentHash(first)
	if err != nil {
		return ReplayResult{}, err
	}

	result := ReplayResult{
		Store:         st.ID(),
		Events:        len(events),
		DocumentHash:  hash,
		Document:      first,
		Deterministic: true,
		MatchesStore:  true,
	}
	if n := len(events); n > 0 {
		result.LastSeq = events[n-1].Seq
	}

	firstJSON := ir.MustMarshalCanonical(first)
	out.VerboseLog("replayed %d events, document hash %s", len(events), hash)

	if secondJSON := ir.MustMarshalCanonical(second); string(firstJSON) != string(secondJSON) {
		result.Deterministic = false
		result.Differences = append(result.Differences,
			fmt.Sprintf("second pass %s differs from first %s", secondJSON, firstJSON))
	}
	if storeJSON := ir.MustMarshalCanonical(st.Query()); string(firstJSON) != string(storeJSON) {
		result.MatchesStore = false
		result.Differences = append(result.Differences,
			fmt.Sprintf("store document %s differs from replay %s", storeJSON, firstJSON))
	}
	return result, nil
}

// outputReplayJSON outputs the replay result as JSON.
func outputReplayJSON(cmd *cobra.Command, result ReplayResult) error {
	response := CLIResponse{
		Status: "ok",
		Data:   result,
	}
	if !result.Deterministic || !result.MatchesStore {
		response.Status = "error"
		response.Error = &CLIError{
			Code:    "E_NONDETERMINISTIC",
			Message: "replay verification failed",
			Details: result.Differences,
		}
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(response)
}

// outputReplayText outputs the replay result as text.
func outputReplayText(cmd *cobra.Command, result ReplayResult, verbose bool) {
	w := cmd.OutOrStdout()

	fmt.Fprintf(w, "Store %s: %d events (last seq %d)\n", result.Store, result.Events, result.LastSeq)
	if verbose {
		fmt.Fprintf(w, "  Document: %s\n", ir.MustMarshalCanonical(result.Document))
	}
	fmt.Fprintf(w, "  Document hash: %s\n", result.DocumentHash)

	if result.Deterministic && result.MatchesStore {
		fmt.Fprintln(w, "✓ Replay is deterministic")
		return
	}
	fmt.Fprintln(w, "✗ Replay verification failed")
	for _, d := range result.Differences {
		fmt.Fprintf(w, "  %s\n", d)
	}
}
