package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/evstore/internal/config"
	"github.com/roach88/evstore/internal/store"
)

// DrainWarnInterval is how often a command reports a shutdown that is still
// draining. The command keeps waiting; it never exits mid-drain.
var DrainWarnInterval = time.Minute

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"

	// Config is an optional YAML file. The flags below override it.
	Config  string
	Backend string
	BaseDir string
	Sync    string
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the evstore CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "evstore",
		Short: "evstore - durable local event store",
		Long: `A durable local event store. Commits are admitted without blocking,
materialized in sequence order, and guaranteed on disk once shutdown returns.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.Config, "config", "", "YAML config file")
	cmd.PersistentFlags().StringVar(&opts.Backend, "backend", "", "storage backend (sqlite|fs|bolt)")
	cmd.PersistentFlags().StringVar(&opts.BaseDir, "base-dir", "", "directory holding store files")
	cmd.PersistentFlags().StringVar(&opts.Sync, "sync", "", "durability mode (full|normal|off)")

	cmd.AddCommand(NewCommitCommand(opts))
	cmd.AddCommand(NewQueryCommand(opts))
	cmd.AddCommand(NewReplayCommand(opts))
	cmd.AddCommand(NewBurstCommand(opts))
	cmd.AddCommand(NewReproCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

// formatter builds the OutputFormatter for cmd.
func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

// loadConfig reads --config and applies the flag overrides.
func (o *RootOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.LoadFile(o.Config)
	if err != nil {
		return nil, err
	}
	if o.Backend != "" {
		cfg.Storage.Backend = o.Backend
	}
	if o.BaseDir != "" {
		cfg.Storage.BaseDir = o.BaseDir
	}
	if o.Sync != "" {
		cfg.Storage.Sync = o.Sync
	}
	if o.Verbose {
		cfg.Logging.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newLogger writes text logs to w at the configured level.
func newLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	level, err := config.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// openStore opens storeID with the effective configuration. Store logs go to
// the command's stderr.
func (o *RootOptions) openStore(ctx context.Context, cmd *cobra.Command, storeID string, readOnly bool) (*store.Store, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	sch, err := cfg.LoadSchema()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load schema", err)
	}

	logger := newLogger(cfg, cmd.ErrOrStderr())
	scfg := cfg.ToStorage(logger)
	scfg.ReadOnly = readOnly

	st, err := store.Open(ctx, storeID, scfg,
		store.WithSchema(sch),
		store.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}
	return st, nil
}

// shutdownStore shuts st down and waits for the drain to finish, however
// long it takes. Every DrainWarnInterval it warns on w and waits again.
func shutdownStore(st *store.Store, w io.Writer) error {
	for waited := DrainWarnInterval; ; waited += DrainWarnInterval {
		ctx, cancel := context.WithTimeout(context.Background(), DrainWarnInterval)
		err := st.Shutdown(ctx)
		expired := ctx.Err() != nil && err == ctx.Err()
		cancel()
		if !expired {
			return err
		}
		fmt.Fprintf(w, "warning: store %s still draining after %s (state %s, pending %d)\n",
			st.ID(), waited, st.State(), st.Stats().Pipeline.Pending)
	}
}
