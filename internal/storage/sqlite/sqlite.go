package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/evstore/internal/ir"
	"github.com/roach88/evstore/internal/storage"
)

// Kind is the registered backend name.
const Kind = "sqlite"

//go:embed schema.sql
var schemaSQL string

func init() {
	storage.Register(Kind, Open)
}

// Backend is a SQLite-backed event log for one store.
type Backend struct {
	db       *sql.DB
	readOnly bool
}

// Open creates or opens the database for storeID.
//
// Writable opens apply pragmas and the schema and are idempotent. Read-only
// opens of a missing database return storage.Empty without creating a file.
func Open(ctx context.Context, cfg storage.Config, storeID string) (storage.Backend, error) {
	path := cfg.Path(storeID, ".db")

	if cfg.ReadOnly {
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			return storage.Empty(), nil
		}
		return openDB(ctx, "file:"+path+"?mode=ro", cfg, true)
	}
	return openDB(ctx, path, cfg, false)
}

func openDB(ctx context.Context, dsn string, cfg storage.Config, readOnly bool) (*Backend, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite allows one writer; a single connection also keeps the pragmas
	// below in force for every statement.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(ctx, db, cfg.Sync, readOnly); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if !readOnly {
		if err := applySchema(ctx, db); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply schema: %w", err)
		}
	}

	return &Backend{db: db, readOnly: readOnly}, nil
}

func synchronousPragma(mode storage.SyncMode) string {
	switch mode {
	case storage.SyncNormal:
		return "NORMAL"
	case storage.SyncOff:
		return "OFF"
	default:
		return "FULL"
	}
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(ctx context.Context, db *sql.DB, mode storage.SyncMode, readOnly bool) error {
	pragmas := []string{"PRAGMA busy_timeout = 5000"}
	if !readOnly {
		pragmas = append(pragmas,
			"PRAGMA journal_mode = WAL",
			"PRAGMA synchronous = "+synchronousPragma(mode),
		)
	}

	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

// applySchema creates tables if they don't exist and checks the layout
// version recorded in user_version.
func applySchema(ctx context.Context, db *sql.DB) error {
	var version int
	if err := db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}
	if version > ir.FormatVersion {
		return fmt.Errorf("database format version %d is newer than supported %d", version, ir.FormatVersion)
	}

	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	if _, err := db.ExecContext(ctx, `
		INSERT INTO store_meta (key, value) VALUES ('format_version', ?)
		ON CONFLICT(key) DO NOTHING
	`, strconv.Itoa(ir.FormatVersion)); err != nil {
		return fmt.Errorf("write format version: %w", err)
	}

	if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", ir.FormatVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

// Append inserts a batch of events in one transaction.
// A duplicate seq or id is a bug upstream and fails the whole batch.
func (b *Backend) Append(ctx context.Context, events []ir.Event) error {
	if b.readOnly {
		return storage.ErrReadOnly
	}
	if len(events) == 0 {
		return nil
	}

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("append: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op after commit

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO events (seq, id, name, args, session_id)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("append: prepare: %w", err)
	}
	defer stmt.Close()

	for _, ev := range events {
		args, err := marshalArgs(ev.Args)
		if err != nil {
			return fmt.Errorf("append seq %d: %w", ev.Seq, err)
		}
		if _, err := stmt.ExecContext(ctx, int64(ev.Seq), ev.ID, ev.Name, args, ev.SessionID); err != nil {
			return fmt.Errorf("append seq %d: %w", ev.Seq, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("append: commit: %w", err)
	}
	return nil
}

// ReadAll returns events ordered by seq, stopping before the first gap.
func (b *Backend) ReadAll(ctx context.Context) ([]ir.Event, error) {
	rows, err := b.db.QueryContext(ctx, `
		SELECT seq, id, name, args, session_id
		FROM events
		ORDER BY seq ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := []ir.Event{}
	for rows.Next() {
		var (
			seq  int64
			ev   ir.Event
			args string
		)
		if err := rows.Scan(&seq, &ev.ID, &ev.Name, &args, &ev.SessionID); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if uint64(seq) != uint64(len(events))+1 {
			break
		}
		ev.Seq = uint64(seq)
		if ev.Args, err = unmarshalArgs(args); err != nil {
			return nil, fmt.Errorf("event %d: %w", seq, err)
		}
		events = append(events, ev)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

// Close closes the database. The final connection close checkpoints the WAL.
func (b *Backend) Close() error {
	if b.db == nil {
		return nil
	}
	return b.db.Close()
}

// marshalArgs converts args to canonical JSON TEXT so stored bytes are
// identical across writers.
func marshalArgs(args ir.Object) (string, error) {
	data, err := ir.MarshalCanonical(args)
	if err != nil {
		return "", fmt.Errorf("marshal args: %w", err)
	}
	return string(data), nil
}

func unmarshalArgs(data string) (ir.Object, error) {
	obj, err := ir.ParseObject([]byte(data))
	if err != nil {
		return nil, fmt.Errorf("unmarshal args: %w", err)
	}
	return obj, nil
}
