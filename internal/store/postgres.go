package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fairyhunter13/service-marketplace-ledger/internal/model"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS marketplace_journal (
	seq     BIGINT PRIMARY KEY,
	at      BIGINT NOT NULL,
	kind    TEXT   NOT NULL,
	payload BYTEA  NOT NULL,
	prev    BYTEA  NOT NULL,
	hash    BYTEA  NOT NULL
)`

// Postgres is a Journal stored in a PostgreSQL table.
type Postgres struct {
	db     *pgxpool.Pool
	logger *slog.Logger
}

// OpenPostgres connects to dsn and creates the journal table if needed.
func OpenPostgres(ctx context.Context, dsn string, logger *slog.Logger) (*Postgres, error) {
	if dsn == "" {
		return nil, fmt.Errorf("store: postgres DSN is required")
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("store: parse DSN: %w", err)
	}
	cfg.MaxConns = 4
	cfg.MinConns = 1
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.HealthCheckPeriod = 30 * time.Second

	db, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("store: connect: %w", err)
	}
	if _, err := db.Exec(ctx, postgresSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: schema: %w", err)
	}
	logger.Info("journal_opened", "driver", "postgres")
	return &Postgres{db: db, logger: logger}, nil
}

func (p *Postgres) Append(ctx context.Context, recs []Record) error {
	tx, err := p.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, r := range recs {
		batch.Queue(`INSERT INTO marketplace_journal(seq,at,kind,payload,prev,hash) VALUES($1,$2,$3,$4,$5,$6)`,
			int64(r.Seq), int64(r.Time), string(r.Kind), r.Payload, r.Prev[:], r.Hash[:])
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("store: insert: %w", err)
	}
	return tx.Commit(ctx)
}

func (p *Postgres) Load(ctx context.Context, fn func(Record) error) error {
	rows, err := p.db.Query(ctx, `SELECT seq,at,kind,payload,prev,hash FROM marketplace_journal ORDER BY seq`)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			seq, at    int64
			kind       string
			payload    []byte
			prev, hash []byte
		)
		if err := rows.Scan(&seq, &at, &kind, &payload, &prev, &hash); err != nil {
			return err
		}
		r := Record{Seq: uint64(seq), Time: model.Timestamp(at), Kind: model.EventKind(kind), Payload: payload}
		copy(r.Prev[:], prev)
		copy(r.Hash[:], hash)
		if err := fn(r); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (p *Postgres) Close() error {
	p.db.Close()
	p.logger.Info("journal_closed", "driver", "postgres")
	return nil
}
