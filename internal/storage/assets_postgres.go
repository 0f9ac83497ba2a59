package storage

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/tesobe-kodeaffe/clickcounter-backend/internal/domain"
)

const (
	upsertAssetQuery = `
		INSERT INTO static_assets (path, content_type, data, updated_at)
		VALUES (:path, :content_type, :data, :updated_at)
		ON CONFLICT (path) DO UPDATE
		SET content_type = EXCLUDED.content_type,
		    data = EXCLUDED.data,
		    updated_at = EXCLUDED.updated_at
	`
	selectAssetQuery = `
		SELECT path, content_type, data, updated_at
		FROM static_assets
		WHERE path = $1
	`
)

type assetRow struct {
	Path        string    `db:"path"`
	ContentType string    `db:"content_type"`
	Data        []byte    `db:"data"`
	UpdatedAt   time.Time `db:"updated_at"`
}

// PostgresAssetStore keeps static assets in the static_assets table.
type PostgresAssetStore struct {
	db *sqlx.DB
}

// NewPostgresAssetStore wraps db.
func NewPostgresAssetStore(db *sqlx.DB) *PostgresAssetStore {
	return &PostgresAssetStore{db: db}
}

// Put inserts or replaces the asset at asset.Path.
func (s *PostgresAssetStore) Put(ctx context.Context, asset *domain.Asset) error {
	row := assetRow{
		Path:        asset.Path,
		ContentType: asset.ContentType,
		Data:        asset.Data,
		UpdatedAt:   asset.UpdatedAt,
	}
	if row.UpdatedAt.IsZero() {
		row.UpdatedAt = time.Now().UTC()
	}
	if row.Data == nil {
		row.Data = []byte{}
	}

	if _, err := s.db.NamedExecContext(ctx, upsertAssetQuery, row); err != nil {
		return classifyPostgres("put asset", err)
	}
	return nil
}

// Get loads the asset at path.
func (s *PostgresAssetStore) Get(ctx context.Context, path string) (*domain.Asset, error) {
	var row assetRow
	if err := s.db.GetContext(ctx, &row, selectAssetQuery, path); err != nil {
		return nil, classifyPostgres("get asset", err)
	}
	return &domain.Asset{
		Path:        row.Path,
		Data:        row.Data,
		ContentType: row.ContentType,
		UpdatedAt:   row.UpdatedAt,
	}, nil
}
