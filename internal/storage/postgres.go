package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	_ "github.com/lib/pq"
	"github.com/mselser95/lmsr-amm/internal/engine"
	"go.uber.org/zap"
)

const schema = `
	CREATE TABLE IF NOT EXISTS amm_journal (
		seq        BIGINT PRIMARY KEY,
		tx_id      TEXT NOT NULL UNIQUE,
		op         TEXT NOT NULL,
		market_id  TEXT NOT NULL,
		sender     TEXT NOT NULL,
		applied_at TIMESTAMPTZ NOT NULL,
		applied_ns BIGINT NOT NULL,
		payload    JSONB NOT NULL
	)
`

// PostgresJournal implements Journal using PostgreSQL.
type PostgresJournal struct {
	db     *sql.DB
	logger *zap.Logger
}

// PostgresConfig holds PostgreSQL configuration.
type PostgresConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Database string
	SSLMode  string
	Logger   *zap.Logger
}

// NewPostgresJournal connects to PostgreSQL and creates the journal table
// if it does not exist.
func NewPostgresJournal(ctx context.Context, cfg *PostgresConfig) (*PostgresJournal, error) {
	connStr := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	err = db.PingContext(ctx)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	j := &PostgresJournal{db: db, logger: cfg.Logger}
	err = j.EnsureSchema(ctx)
	if err != nil {
		db.Close()
		return nil, err
	}

	cfg.Logger.Info("postgres-journal-connected",
		zap.String("host", cfg.Host),
		zap.String("database", cfg.Database))

	return j, nil
}

// EnsureSchema creates the journal table.
func (p *PostgresJournal) EnsureSchema(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("create journal table: %w", err)
	}
	return nil
}

// Append inserts e. The primary key on seq rejects duplicates.
func (p *PostgresJournal) Append(ctx context.Context, e Entry) error {
	payload, err := json.Marshal(e.Tx)
	if err != nil {
		return fmt.Errorf("encode transaction: %w", err)
	}

	query := `
		INSERT INTO amm_journal (
			seq, tx_id, op, market_id, sender, applied_at, applied_ns, payload
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8
		)
	`

	_, err = p.db.ExecContext(ctx, query,
		int64(e.Seq),
		e.Tx.ID,
		string(e.Tx.Op),
		e.Tx.MarketID,
		e.Tx.Sender.Hex(),
		e.At.UTC(),
		e.At.UnixNano(),
		payload,
	)
	if err != nil {
		return fmt.Errorf("insert journal entry: %w", err)
	}

	p.logger.Debug("journal-entry-stored",
		zap.Uint64("seq", e.Seq),
		zap.String("tx-id", e.Tx.ID),
		zap.String("op", string(e.Tx.Op)))

	return nil
}

// Load reads the journal in sequence order and fails on a gap. Times come
// from applied_ns; applied_at only keeps microseconds.
func (p *PostgresJournal) Load(ctx context.Context) ([]Entry, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT seq, applied_ns, payload FROM amm_journal ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("query journal: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			seq     int64
			nanos   int64
			e       Entry
			payload []byte
		)
		err = rows.Scan(&seq, &nanos, &payload)
		if err != nil {
			return nil, fmt.Errorf("scan journal entry: %w", err)
		}

		e.Seq = uint64(seq)
		if want := uint64(len(entries)) + 1; e.Seq != want {
			return nil, fmt.Errorf("%w: got seq %d, want %d", ErrOutOfOrder, e.Seq, want)
		}

		var tx engine.Tx
		err = json.Unmarshal(payload, &tx)
		if err != nil {
			return nil, fmt.Errorf("decode journal entry %d: %w", e.Seq, err)
		}
		e.Tx = tx
		e.At = time.Unix(0, nanos).UTC()
		entries = append(entries, e)
	}
	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("iterate journal: %w", err)
	}

	p.logger.Info("journal-loaded", zap.Int("entries", len(entries)))
	return entries, nil
}

// Close closes the database connection.
func (p *PostgresJournal) Close() error {
	p.logger.Info("closing-postgres-journal")
	return p.db.Close()
}
