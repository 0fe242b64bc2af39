package licensestore

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	defaultKeyTable        = "product_keys"
	defaultActivationTable = "activations"

	pgUniqueViolation = "23505"
)

// validIdentifier matches safe PostgreSQL identifiers (letters, digits, underscores).
var validIdentifier = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// PostgresOption configures a PostgresStore.
type PostgresOption func(*PostgresStore)

// WithKeyTable sets the product key table name. Default: "product_keys".
func WithKeyTable(name string) PostgresOption {
	return func(s *PostgresStore) {
		s.keyTable = name
	}
}

// WithActivationTable sets the activation table name. Default: "activations".
func WithActivationTable(name string) PostgresOption {
	return func(s *PostgresStore) {
		s.activationTable = name
	}
}

// PostgresStore implements Store using PostgreSQL.
type PostgresStore struct {
	pool            *pgxpool.Pool
	keyTable        string
	activationTable string
}

// pgQuerier is satisfied by both *pgxpool.Pool and pgx.Tx.
type pgQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// NewPostgresStore creates a new PostgreSQL-backed store.
// It auto-creates the tables and indexes on initialization.
func NewPostgresStore(ctx context.Context, pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	s := &PostgresStore{
		pool:            pool,
		keyTable:        defaultKeyTable,
		activationTable: defaultActivationTable,
	}
	for _, opt := range opts {
		opt(s)
	}
	for _, name := range []string{s.keyTable, s.activationTable} {
		if !validIdentifier.MatchString(name) {
			return nil, fmt.Errorf("invalid table name %q: must match [a-zA-Z_][a-zA-Z0-9_]*", name)
		}
	}
	if err := s.ensureTables(ctx); err != nil {
		return nil, fmt.Errorf("create tables: %w", err)
	}
	return s, nil
}

func (s *PostgresStore) ensureTables(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %[1]s (
			id              TEXT PRIMARY KEY,
			key_string      TEXT NOT NULL UNIQUE,
			max_activations INTEGER NOT NULL DEFAULT 1 CHECK (max_activations > 0),
			is_active       BOOLEAN NOT NULL DEFAULT TRUE
		);
		CREATE TABLE IF NOT EXISTS %[2]s (
			id              TEXT PRIMARY KEY,
			product_key_id  TEXT NOT NULL REFERENCES %[1]s (id),
			machine_id      TEXT NOT NULL UNIQUE,
			activation_date TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_%[2]s_product_key_id
			ON %[2]s (product_key_id);
	`, s.keyTable, s.activationTable)
	_, err := s.pool.Exec(ctx, query)
	return err
}

func (s *PostgresStore) queries(q pgQuerier, lock bool) *pgQueries {
	return &pgQueries{
		q:               q,
		keyTable:        s.keyTable,
		activationTable: s.activationTable,
		lockKeys:        lock,
	}
}

func (s *PostgresStore) FindKeyByString(ctx context.Context, keyString string) (*ProductKey, error) {
	return s.queries(s.pool, false).FindKeyByString(ctx, keyString)
}

func (s *PostgresStore) FindActivationByMachine(ctx context.Context, machineID string) (*Activation, error) {
	return s.queries(s.pool, false).FindActivationByMachine(ctx, machineID)
}

func (s *PostgresStore) CountActivations(ctx context.Context, productKeyID string) (int, error) {
	return s.queries(s.pool, false).CountActivations(ctx, productKeyID)
}

func (s *PostgresStore) CreateActivation(ctx context.Context, productKeyID, machineID string) (*Activation, error) {
	return s.queries(s.pool, false).CreateActivation(ctx, productKeyID, machineID)
}

// Atomically runs fn in a READ COMMITTED transaction. Key lookups inside fn
// take a row lock (SELECT ... FOR UPDATE), so a count followed by an insert
// for the same key cannot interleave with another transaction doing the same.
func (s *PostgresStore) Atomically(ctx context.Context, fn func(ctx context.Context, q Queries) error) error {
	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		return fn(ctx, s.queries(tx, true))
	})
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) Close(_ context.Context) error {
	return nil // caller manages the pgxpool.Pool lifecycle
}

type pgQueries struct {
	q               pgQuerier
	keyTable        string
	activationTable string
	lockKeys        bool
}

func (p *pgQueries) FindKeyByString(ctx context.Context, keyString string) (*ProductKey, error) {
	query := fmt.Sprintf(`
		SELECT id, key_string, max_activations, is_active
		FROM %s WHERE key_string = $1
	`, p.keyTable)
	if p.lockKeys {
		query += " FOR UPDATE"
	}

	var k ProductKey
	err := p.q.QueryRow(ctx, query, keyString).Scan(&k.ID, &k.KeyString, &k.MaxActivations, &k.IsActive)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find key: %w", err)
	}
	return &k, nil
}

func (p *pgQueries) FindActivationByMachine(ctx context.Context, machineID string) (*Activation, error) {
	query := fmt.Sprintf(`
		SELECT id, product_key_id, machine_id, activation_date
		FROM %s WHERE machine_id = $1
	`, p.activationTable)

	var a Activation
	err := p.q.QueryRow(ctx, query, machineID).Scan(&a.ID, &a.ProductKeyID, &a.MachineID, &a.ActivationDate)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find activation: %w", err)
	}
	a.ActivationDate = a.ActivationDate.UTC()
	return &a, nil
}

func (p *pgQueries) CountActivations(ctx context.Context, productKeyID string) (int, error) {
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE product_key_id = $1`, p.activationTable)
	var count int
	if err := p.q.QueryRow(ctx, query, productKeyID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count activations: %w", err)
	}
	return count, nil
}

func (p *pgQueries) CreateActivation(ctx context.Context, productKeyID, machineID string) (*Activation, error) {
	query := fmt.Sprintf(`
		INSERT INTO %s (id, product_key_id, machine_id, activation_date)
		VALUES ($1, $2, $3, $4)
		RETURNING activation_date
	`, p.activationTable)

	a := Activation{
		ID:           uuid.NewString(),
		ProductKeyID: productKeyID,
		MachineID:    machineID,
	}
	err := p.q.QueryRow(ctx, query, a.ID, productKeyID, machineID, time.Now().UTC()).Scan(&a.ActivationDate)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return nil, fmt.Errorf("create activation for %q: %w", machineID, ErrConflict)
		}
		return nil, fmt.Errorf("create activation: %w", err)
	}
	a.ActivationDate = a.ActivationDate.UTC()
	return &a, nil
}
