package storage

import (
	"context"
	"database/sql"
	"errors"

	_ "github.com/lib/pq"
)

// Schema creates the state table used by PostgresBlob.
const Schema = `CREATE TABLE IF NOT EXISTS simulator_state (
	name       TEXT PRIMARY KEY,
	payload    JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// PostgresBlob stores the record as one row keyed by name.
type PostgresBlob struct {
	db   *sql.DB
	name string
}

func OpenPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	// quick ping
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func NewPostgresBlob(db *sql.DB, name string) *PostgresBlob {
	return &PostgresBlob{db: db, name: name}
}

// Migrate applies Schema.
func (p *PostgresBlob) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, Schema)
	return err
}

func (p *PostgresBlob) Load(ctx context.Context) ([]byte, error) {
	var payload []byte
	err := p.db.QueryRowContext(ctx, `SELECT payload FROM simulator_state WHERE name = $1`, p.name).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return payload, nil
}

func (p *PostgresBlob) Save(ctx context.Context, data []byte) error {
	_, err := p.db.ExecContext(ctx, `INSERT INTO simulator_state(name, payload, updated_at) VALUES($1, $2, now())
ON CONFLICT (name) DO UPDATE SET payload = EXCLUDED.payload, updated_at = EXCLUDED.updated_at`, p.name, data)
	return err
}
