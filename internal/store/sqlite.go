package store

import (
	"context"
	"fmt"
	"log/slog"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/fairyhunter13/service-marketplace-ledger/internal/model"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS journal (
	seq     INTEGER PRIMARY KEY,
	at      INTEGER NOT NULL,
	kind    TEXT    NOT NULL,
	payload BLOB    NOT NULL,
	prev    BLOB    NOT NULL,
	hash    BLOB    NOT NULL
);`

var sqlitePragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA synchronous=FULL",
	"PRAGMA busy_timeout=5000",
	"PRAGMA temp_store=MEMORY",
}

// SQLite is a Journal stored in a single SQLite database file.
type SQLite struct {
	pool   *sqlitex.Pool
	path   string
	logger *slog.Logger
}

// OpenSQLite opens (creating if needed) the journal database at path.
func OpenSQLite(path string, logger *slog.Logger) (*SQLite, error) {
	if path == "" {
		return nil, fmt.Errorf("store: sqlite path is required")
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	pool, err := sqlitex.NewPool(path, sqlitex.PoolOptions{
		PoolSize:    2,
		PrepareConn: prepareSQLite,
	})
	if err != nil {
		return nil, fmt.Errorf("store: opening %s: %w", path, err)
	}
	logger.Info("journal_opened", "driver", "sqlite", "path", path)
	return &SQLite{pool: pool, path: path, logger: logger}, nil
}

func prepareSQLite(conn *sqlite.Conn) error {
	for _, pragma := range sqlitePragmas {
		if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
			return fmt.Errorf("store: %s: %w", pragma, err)
		}
	}
	if err := sqlitex.ExecuteScript(conn, sqliteSchema, nil); err != nil {
		return fmt.Errorf("store: schema: %w", err)
	}
	return nil
}

func (s *SQLite) Append(ctx context.Context, recs []Record) (err error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("store: take: %w", err)
	}
	defer s.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("store: begin transaction: %w", err)
	}
	defer endTransaction(&err)

	for _, r := range recs {
		err = sqlitex.Execute(conn,
			"INSERT INTO journal (seq, at, kind, payload, prev, hash) VALUES (?, ?, ?, ?, ?, ?)",
			&sqlitex.ExecOptions{
				Args: []any{int64(r.Seq), int64(r.Time), string(r.Kind), r.Payload, r.Prev[:], r.Hash[:]},
			})
		if err != nil {
			return fmt.Errorf("store: insert record %d: %w", r.Seq, err)
		}
	}
	return nil
}

func (s *SQLite) Load(ctx context.Context, fn func(Record) error) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("store: take: %w", err)
	}
	defer s.pool.Put(conn)

	return sqlitex.Execute(conn, "SELECT seq, at, kind, payload, prev, hash FROM journal ORDER BY seq", &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			r := Record{
				Seq:  uint64(stmt.ColumnInt64(0)),
				Time: model.Timestamp(stmt.ColumnInt64(1)),
				Kind: model.EventKind(stmt.ColumnText(2)),
			}
			r.Payload = make([]byte, stmt.ColumnLen(3))
			stmt.ColumnBytes(3, r.Payload)
			stmt.ColumnBytes(4, r.Prev[:])
			stmt.ColumnBytes(5, r.Hash[:])
			return fn(r)
		},
	})
}

func (s *SQLite) Close() error {
	if err := s.pool.Close(); err != nil {
		s.logger.Error("journal_close_failed", "path", s.path, "error", err)
		return fmt.Errorf("store: closing %s: %w", s.path, err)
	}
	s.logger.Info("journal_closed", "driver", "sqlite", "path", s.path)
	return nil
}
