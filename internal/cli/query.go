package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/evstore/internal/ir"
)

// ResultPrefix starts the text line query prints. repro finds the reader's
// answer by it.
const ResultPrefix = "REPRO_RESULT "

// QueryOptions holds flags for the query command.
type QueryOptions struct {
	*RootOptions
	Store string
}

// QueryResult is a reader's view of a store.
type QueryResult struct {
	Store    string    `json:"store"`
	Events   uint64    `json:"events"`
	Document ir.Object `json:"document"`
}

// String renders the REPRO_RESULT line.
func (r QueryResult) String() string {
	return ResultPrefix + string(ir.MustMarshalCanonical(r.Document))
}

// NewQueryCommand creates the query command.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "query",
		Short: "Print a store's current document",
		Long: `Open a store read-only and print the document materialized from its log.

The store lock is not taken, so query runs while a writer holds the store
only on backends that allow concurrent readers (sqlite, fs).

Text output is a single line:
  REPRO_RESULT {"draft":"..."}

Examples:
  evstore query
  evstore query --store S-B --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Store, "store", DefaultStoreID, "store ID")

	return cmd
}

func runQuery(opts *QueryOptions, cmd *cobra.Command) error {
	out := opts.formatter(cmd)

	st, err := opts.openStore(context.Background(), cmd, opts.Store, true)
	if err != nil {
		return out.Fail(ExitCommandError, "failed to open store", err)
	}
	defer shutdownStore(st, out.GetErrWriter())

	result := QueryResult{
		Store:    opts.Store,
		Events:   st.Stats().Pipeline.LastApplied,
		Document: st.Query(),
	}
	out.VerboseLog("store %s: %d events applied", result.Store, result.Events)
	return out.Success(result)
}

// parseQueryResult extracts the document from the last REPRO_RESULT line of
// query's text output.
func parseQueryResult(output []byte) (ir.Object, error) {
	tag := strings.TrimSpace(ResultPrefix)
	lines := strings.Split(strings.TrimSpace(string(output)), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		rest, ok := strings.CutPrefix(strings.TrimRight(lines[i], "\r"), ResultPrefix)
		if !ok {
			continue
		}
		doc, err := ir.ParseObject([]byte(rest))
		if err != nil {
			return nil, fmt.Errorf("parse %s line: %w", tag, err)
		}
		return doc, nil
	}
	return nil, fmt.Errorf("no %s line in reader output", tag)
}
