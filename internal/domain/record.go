// Package domain holds the clickcounter data model.
package domain

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// DomainRecord is the per-domain configuration and counter record.
// Status is not stored; it is derived through Accounting.
type DomainRecord struct {
	Name       string
	ClickCount int64
	Money      decimal.Decimal
	Custom     *Fields
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// NewDomainRecord returns a record with default reserved fields.
func NewDomainRecord(name string, now time.Time) *DomainRecord {
	return &DomainRecord{
		Name:      name,
		Money:     decimal.Zero,
		Custom:    NewFields(),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// MergeCustom overlays patch onto the custom fields. Reserved keys are skipped.
func (r *DomainRecord) MergeCustom(patch *Fields) {
	if r.Custom == nil {
		r.Custom = NewFields()
	}
	patch.Each(func(key string, value json.RawMessage) {
		if IsReserved(key) {
			return
		}
		r.Custom.Set(key, value)
	})
}

// Credit applies one credited click.
func (r *DomainRecord) Credit(increment decimal.Decimal) {
	r.ClickCount++
	r.Money = r.Money.Add(increment)
}

// Tracked returns the reserved fields with status derived from money.
func (r *DomainRecord) Tracked(acct Accounting) Tracked {
	return Tracked{
		ClickCount: r.ClickCount,
		Money:      r.Money,
		Status:     acct.Status(r.Money),
	}
}

// Clone returns a deep copy.
func (r *DomainRecord) Clone() *DomainRecord {
	c := *r
	c.Custom = r.Custom.Clone()
	return &c
}
