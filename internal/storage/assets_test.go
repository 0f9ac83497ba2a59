package storage_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tesobe-kodeaffe/clickcounter-backend/internal/domain"
	"github.com/tesobe-kodeaffe/clickcounter-backend/internal/storage"
)

func newMockAssetStore(t *testing.T) (*storage.PostgresAssetStore, sqlmock.Sqlmock) {
	t.Helper()

	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	return storage.NewPostgresAssetStore(sqlx.NewDb(mockDB, "postgres")), mock
}

func TestPostgresAssetStore_Put(t *testing.T) {
	t.Helper()

	store, mock := newMockAssetStore(t)
	updated := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	mock.ExpectExec("INSERT INTO static_assets").
		WithArgs("banner.min.js", "application/javascript", []byte("x()"), updated).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.Put(context.Background(), &domain.Asset{
		Path:        "banner.min.js",
		Data:        []byte("x()"),
		ContentType: "application/javascript",
		UpdatedAt:   updated,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresAssetStore_Get(t *testing.T) {
	t.Helper()

	updated := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	testCases := []struct {
		name      string
		setupMock func(sqlmock.Sqlmock)
		wantType  string
		wantErr   error
	}{
		{
			name: "stored without content type",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("SELECT path, content_type, data, updated_at").
					WithArgs("a.txt").
					WillReturnRows(sqlmock.NewRows([]string{"path", "content_type", "data", "updated_at"}).
						AddRow("a.txt", "", []byte("hello"), updated))
			},
			wantType: domain.DefaultAssetContentType,
		},
		{
			name: "missing",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("SELECT path, content_type, data, updated_at").
					WithArgs("a.txt").
					WillReturnError(sql.ErrNoRows)
			},
			wantErr: domain.ErrNotFound,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			store, mock := newMockAssetStore(t)
			tc.setupMock(mock)

			asset, err := store.Get(context.Background(), "a.txt")
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
			} else {
				require.NoError(t, err)
				assert.Equal(t, "hello", string(asset.Data))
				assert.Equal(t, tc.wantType, asset.ServedContentType())
				assert.Equal(t, updated, asset.UpdatedAt)
			}
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}
