// Package storage persists domain records, visit events and static assets.
package storage

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/tesobe-kodeaffe/clickcounter-backend/internal/domain"
)

// Mutation edits a record in place. Returning an error aborts the update and
// leaves the stored record untouched. A mutation may run more than once when
// the caller retries, so it must depend only on the record it is given.
type Mutation func(rec *domain.DomainRecord) error

// RecordStore is a per-domain linearizable record store.
type RecordStore interface {
	// Get returns a copy of the record or domain.ErrNotFound.
	Get(ctx context.Context, name string) (*domain.DomainRecord, error)
	// Update applies mutate to the current record with no other update on the
	// same name interleaving. When create is true an absent record starts from
	// defaults, otherwise absence is domain.ErrNotFound. Contention surfaces as
	// domain.ErrConflict and backend outages as domain.ErrUnavailable.
	Update(ctx context.Context, name string, create bool, mutate Mutation) (*domain.DomainRecord, error)
	// Delete removes the record. Deleting an absent record succeeds.
	Delete(ctx context.Context, name string) error
	// Ping checks backend connectivity.
	Ping(ctx context.Context) error
}

// Crediter is implemented by record stores that apply a credit atomically
// on the server. Credit returns domain.ErrNotFound for an absent record.
type Crediter interface {
	Credit(ctx context.Context, name string, increment decimal.Decimal) (*domain.DomainRecord, error)
}

// AssetStore stores static assets by path.
type AssetStore interface {
	Put(ctx context.Context, asset *domain.Asset) error
	// Get returns the asset or domain.ErrNotFound.
	Get(ctx context.Context, path string) (*domain.Asset, error)
}

// VisitRecorder accepts visit events without blocking the caller.
type VisitRecorder interface {
	Record(ev domain.VisitEvent)
}
