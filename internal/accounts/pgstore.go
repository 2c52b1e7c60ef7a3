// File: internal/accounts/pgstore.go
package accounts

import (
	"context"
	"fmt"
	"io"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

// DBPool abstracts the pgxpool.Pool so the store can be exercised against
// pgxmock in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
}

// PgStore is the keyed on-disk alternative to FileStore: the same Save/Update
// upsert and email-uniqueness semantics, expressed as SQL constraints instead
// of whole-file rewrites. Selected with store.backend: postgres.
type PgStore struct {
	pool DBPool
	log  *zap.Logger
}

const sqlBootstrap = `
	CREATE TABLE IF NOT EXISTS accounts (
		email         TEXT PRIMARY KEY,
		password      TEXT NOT NULL,
		first_name    TEXT NOT NULL DEFAULT '',
		last_name     TEXT NOT NULL DEFAULT '',
		birth_year    INT NOT NULL DEFAULT 0,
		birth_month   INT NOT NULL DEFAULT 0,
		birth_day     INT NOT NULL DEFAULT 0,
		totp_secret   TEXT NOT NULL DEFAULT '',
		creation_time TEXT NOT NULL DEFAULT '',
		elapsed_time  DOUBLE PRECISION NOT NULL DEFAULT 0
	);
	CREATE TABLE IF NOT EXISTS totp_entries (
		email  TEXT PRIMARY KEY,
		secret TEXT NOT NULL,
		time   TEXT NOT NULL DEFAULT ''
	);
`

const sqlInsertAccount = `
	INSERT INTO accounts (email, password, first_name, last_name, birth_year, birth_month, birth_day, totp_secret, creation_time, elapsed_time)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10);
`

const sqlUpsertAccount = `
	INSERT INTO accounts (email, password, totp_secret, creation_time, elapsed_time)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (email) DO UPDATE SET
		password = EXCLUDED.password,
		totp_secret = CASE WHEN EXCLUDED.totp_secret <> '' THEN EXCLUDED.totp_secret ELSE accounts.totp_secret END;
`

const sqlUpsertTotp = `
	INSERT INTO totp_entries (email, secret, time)
	VALUES ($1, $2, $3)
	ON CONFLICT (email) DO UPDATE SET
		secret = EXCLUDED.secret,
		time = EXCLUDED.time;
`

const sqlSelectAccounts = `
	SELECT email, password, first_name, last_name, birth_year, birth_month, birth_day, totp_secret, creation_time, elapsed_time
	FROM accounts
	ORDER BY creation_time ASC, email ASC;
`

// NewPgStore verifies the connection and bootstraps the schema.
func NewPgStore(ctx context.Context, pool DBPool, logger *zap.Logger) (*PgStore, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, sqlBootstrap); err != nil {
		return nil, fmt.Errorf("failed to bootstrap account schema: %w", err)
	}
	return &PgStore{pool: pool, log: logger.Named("pgstore")}, nil
}

// Save inserts a freshly created account. A duplicate email violates the
// primary key and surfaces as an error rather than silently overwriting.
func (s *PgStore) Save(record Record) error {
	ctx := context.Background()
	if _, err := s.pool.Exec(ctx, sqlInsertAccount,
		record.Email, record.Password, record.FirstName, record.LastName,
		record.BirthYear, record.BirthMonth, record.BirthDay,
		record.TotpSecret, record.CreationTime, record.ElapsedSeconds,
	); err != nil {
		s.log.Error("Failed to persist new account",
			zap.String("email", record.Email), zap.String("operation", "save"), zap.Error(err))
		return fmt.Errorf("failed to insert account %s: %w", record.Email, err)
	}

	if record.TotpSecret != "" {
		if _, err := s.pool.Exec(ctx, sqlUpsertTotp, record.Email, record.TotpSecret, record.CreationTime); err != nil {
			s.log.Error("Failed to persist TOTP entry",
				zap.String("email", record.Email), zap.String("operation", "save"), zap.Error(err))
			return fmt.Errorf("failed to insert totp entry for %s: %w", record.Email, err)
		}
	}

	s.log.Info("Account saved", zap.String("email", record.Email))
	return nil
}

// Update applies a password change as a single upsert statement; a missing
// row becomes a minimal one, matching the FileStore self-healing behavior.
func (s *PgStore) Update(change Change) error {
	ctx := context.Background()
	if _, err := s.pool.Exec(ctx, sqlUpsertAccount,
		change.Email, change.NewPassword, change.TotpSecret, change.UpdateTime, change.ElapsedSeconds,
	); err != nil {
		s.log.Error("Failed to persist account update",
			zap.String("email", change.Email), zap.String("operation", "update"), zap.Error(err))
		return fmt.Errorf("failed to upsert account %s: %w", change.Email, err)
	}

	if change.TotpSecret != "" {
		if _, err := s.pool.Exec(ctx, sqlUpsertTotp, change.Email, change.TotpSecret, change.UpdateTime); err != nil {
			s.log.Error("Failed to persist TOTP entry",
				zap.String("email", change.Email), zap.String("operation", "update"), zap.Error(err))
			return fmt.Errorf("failed to upsert totp entry for %s: %w", change.Email, err)
		}
	}

	s.log.Info("Account updated", zap.String("email", change.Email))
	return nil
}

// Load returns the full account collection.
func (s *PgStore) Load() ([]Record, error) {
	rows, err := s.pool.Query(context.Background(), sqlSelectAccounts)
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(
			&rec.Email, &rec.Password, &rec.FirstName, &rec.LastName,
			&rec.BirthYear, &rec.BirthMonth, &rec.BirthDay,
			&rec.TotpSecret, &rec.CreationTime, &rec.ElapsedSeconds,
		); err != nil {
			return nil, fmt.Errorf("failed to scan account row: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during account row iteration: %w", err)
	}
	return records, nil
}

// Export writes a derived view of the store without mutating it.
func (s *PgStore) Export(w io.Writer, format Format) error {
	records, err := s.Load()
	if err != nil {
		return err
	}
	return writeExport(w, format, records)
}
