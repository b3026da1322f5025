// Package sqldb is the sqlx implementation of storage.Store, supporting
// SQLite and PostgreSQL through the dialect package.
package sqldb

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/doohee323/chat-gateway/internal/storage"
	"github.com/doohee323/chat-gateway/internal/storage/dialect"
)

// Store is a SQL implementation of the gateway's persistence surface.
type Store struct {
	db      *sqlx.DB
	ext     sqlx.ExtContext // db outside a transaction, tx inside InTx
	dialect dialect.Dialect
}

var _ storage.Store = (*Store)(nil)

// Config holds database connection configuration.
type Config struct {
	Driver string // sqlite or postgres
	DSN    string
}

// New opens the database, runs initialization statements and applies the
// schema. Migrations are additive only.
func New(cfg Config) (*Store, error) {
	d, err := dialect.New(cfg.Driver)
	if err != nil {
		return nil, err
	}

	db, err := sqlx.Open(d.DriverName(), cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	for _, stmt := range d.PragmaStatements() {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute pragma: %w", err)
		}
	}

	store := &Store{db: db, ext: db, dialect: d}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

func (s *Store) initSchema() error {
	autoinc := s.dialect.AutoIncrementClause()
	boolean := s.dialect.BooleanType()
	ts := s.dialect.TimestampType()

	statements := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS tenants (
			id %s,
			tenant_id TEXT NOT NULL UNIQUE,
			display_name TEXT NOT NULL DEFAULT '',
			provider_base_url TEXT NOT NULL DEFAULT '',
			provider_api_key TEXT NOT NULL DEFAULT '',
			provider_embed_token TEXT NOT NULL DEFAULT '',
			allowed_origins TEXT NOT NULL DEFAULT '',
			enabled %s NOT NULL,
			owner TEXT,
			created_at %s NOT NULL,
			updated_at %s NOT NULL
		)`, autoinc, boolean, ts, ts),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS conversation_mappings (
			id %s,
			tenant_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			provider_user TEXT NOT NULL,
			conversation_id TEXT NOT NULL,
			created_at %s NOT NULL,
			updated_at %s NOT NULL,
			UNIQUE (tenant_id, user_id, conversation_id)
		)`, autoinc, ts, ts),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS conversation_cache (
			id %s,
			tenant_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			provider_user TEXT NOT NULL,
			conversation_id TEXT NOT NULL UNIQUE,
			name TEXT,
			created_at %s,
			synced_at %s NOT NULL
		)`, autoinc, ts, ts),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS message_cache (
			id %s,
			conversation_id TEXT NOT NULL,
			message_id TEXT NOT NULL UNIQUE,
			role TEXT NOT NULL,
			content TEXT,
			created_at %s,
			synced_at %s NOT NULL
		)`, autoinc, ts, ts),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS sync_users (
			id %s,
			tenant_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			provider_user TEXT NOT NULL,
			updated_at %s NOT NULL,
			UNIQUE (tenant_id, user_id)
		)`, autoinc, ts),
		`CREATE INDEX IF NOT EXISTS idx_mappings_tenant_user ON conversation_mappings(tenant_id, user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_conversation_cache_tenant_user ON conversation_cache(tenant_id, user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_message_cache_conversation ON message_cache(conversation_id)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("schema statement failed: %w", err)
		}
	}

	// Additive migrations for databases created before these columns.
	if err := s.ensureColumn("conversation_mappings", "summary", "TEXT"); err != nil {
		return err
	}
	if err := s.ensureColumn("tenants", "owner", "TEXT"); err != nil {
		return err
	}

	return nil
}

// ensureColumn adds a nullable column if it does not exist yet. Columns
// are never dropped or altered destructively.
func (s *Store) ensureColumn(table, column, sqlType string) error {
	var count int
	q := s.db.Rebind(s.dialect.ColumnExistsQuery())
	if err := s.db.Get(&count, q, table, column); err != nil {
		return fmt.Errorf("column check %s.%s: %w", table, column, err)
	}
	if count > 0 {
		return nil
	}
	_, err := s.db.Exec(fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, sqlType))
	if err != nil {
		return fmt.Errorf("add column %s.%s: %w", table, column, err)
	}
	return nil
}

// InTx runs fn against a transaction-scoped store. The transaction is
// committed when fn returns nil and rolled back otherwise.
func (s *Store) InTx(ctx context.Context, fn func(storage.SyncStore) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	txStore := &Store{db: s.db, ext: tx, dialect: s.dialect}
	if err := fn(txStore); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate key")
}
