package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/tesobe-kodeaffe/clickcounter-backend/internal/codec"
	"github.com/tesobe-kodeaffe/clickcounter-backend/internal/domain"
)

const (
	selectRecordQuery = `SELECT name, click_count, money, custom_fields, created_at, updated_at
		FROM domains WHERE name = $1`

	selectRecordForUpdateQuery = selectRecordQuery + ` FOR UPDATE`

	insertRecordIfAbsentQuery = `INSERT INTO domains (name, click_count, money, custom_fields, created_at, updated_at)
		VALUES ($1, 0, 0, '{}', $2, $2)
		ON CONFLICT (name) DO NOTHING`

	updateRecordQuery = `UPDATE domains
		SET click_count = $2, money = $3, custom_fields = $4, updated_at = $5
		WHERE name = $1`

	deleteRecordQuery = `DELETE FROM domains WHERE name = $1`
)

// PostgresRecordStore keeps records in the domains table. Each update runs in
// its own transaction holding the row lock for that domain.
type PostgresRecordStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewPostgresRecordStore wraps an open database handle.
func NewPostgresRecordStore(db *sql.DB) *PostgresRecordStore {
	return &PostgresRecordStore{db: db, now: time.Now}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*domain.DomainRecord, error) {
	var (
		rec    domain.DomainRecord
		custom []byte
	)
	if err := row.Scan(&rec.Name, &rec.ClickCount, &rec.Money, &custom, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return nil, err
	}

	fields, err := codec.DecodeFields(custom)
	if err != nil {
		return nil, fmt.Errorf("record %s: %w", rec.Name, err)
	}
	rec.Custom = fields
	return &rec, nil
}

// Get loads a record.
func (s *PostgresRecordStore) Get(ctx context.Context, name string) (*domain.DomainRecord, error) {
	rec, err := scanRecord(s.db.QueryRowContext(ctx, selectRecordQuery, name))
	if err != nil {
		return nil, classifyPostgres("get record", err)
	}
	return rec, nil
}

// Update locks the row with SELECT ... FOR UPDATE, applies mutate and writes
// the result back in the same transaction.
func (s *PostgresRecordStore) Update(
	ctx context.Context,
	name string,
	create bool,
	mutate Mutation,
) (*domain.DomainRecord, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, classifyPostgres("begin transaction", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	now := s.now()
	if create {
		if _, insertErr := tx.ExecContext(ctx, insertRecordIfAbsentQuery, name, now); insertErr != nil {
			return nil, classifyPostgres("insert record", insertErr)
		}
	}

	rec, err := scanRecord(tx.QueryRowContext(ctx, selectRecordForUpdateQuery, name))
	if err != nil {
		return nil, classifyPostgres("lock record", err)
	}

	if mutateErr := mutate(rec); mutateErr != nil {
		return nil, mutateErr
	}
	rec.UpdatedAt = now

	if _, updateErr := tx.ExecContext(ctx, updateRecordQuery,
		rec.Name, rec.ClickCount, rec.Money, string(codec.EncodeFields(rec.Custom)), rec.UpdatedAt,
	); updateErr != nil {
		return nil, classifyPostgres("update record", updateErr)
	}

	if commitErr := tx.Commit(); commitErr != nil {
		return nil, classifyCommit(commitErr)
	}
	committed = true

	return rec, nil
}

// Delete removes the row if present.
func (s *PostgresRecordStore) Delete(ctx context.Context, name string) error {
	if _, err := s.db.ExecContext(ctx, deleteRecordQuery, name); err != nil {
		return classifyPostgres("delete record", err)
	}
	return nil
}

// Ping checks the connection.
func (s *PostgresRecordStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return classifyPostgres("ping", err)
	}
	return nil
}
