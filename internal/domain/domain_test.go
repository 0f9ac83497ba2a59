package domain_test

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tesobe-kodeaffe/clickcounter-backend/internal/domain"
)

func testAccounting(t *testing.T) domain.Accounting {
	t.Helper()

	acct, err := domain.NewAccounting("0.001", "5000")
	require.NoError(t, err)
	return acct
}

func TestFields_PreservesInsertionOrder(t *testing.T) {
	f := domain.NewFields()
	f.Set("b", json.RawMessage(`1`))
	f.Set("a", json.RawMessage(`2`))
	f.Set("b", json.RawMessage(`3`))

	assert.Equal(t, []string{"b", "a"}, f.Keys())
	v, ok := f.Get("b")
	require.True(t, ok)
	assert.JSONEq(t, `3`, string(v))
}

func TestFields_NilSafe(t *testing.T) {
	var f *domain.Fields
	assert.Equal(t, 0, f.Len())
	assert.Nil(t, f.Keys())
	_, ok := f.Get("x")
	assert.False(t, ok)
}

func TestIsReserved(t *testing.T) {
	for _, key := range []string{"clickcount", "money", "status", "ClickCount", "MONEY"} {
		assert.True(t, domain.IsReserved(key), key)
	}
	assert.False(t, domain.IsReserved("foo"))
}

func TestMergeCustom_SkipsReservedAndOverwrites(t *testing.T) {
	rec := domain.NewDomainRecord("foobar", time.Now())
	rec.Custom.Set("keep", json.RawMessage(`"old"`))
	rec.Custom.Set("replace", json.RawMessage(`1`))

	patch := domain.NewFields()
	patch.Set("replace", json.RawMessage(`2`))
	patch.Set("money", json.RawMessage(`"lots"`))
	patch.Set("new", json.RawMessage(`true`))
	rec.MergeCustom(patch)

	assert.Equal(t, []string{"keep", "replace", "new"}, rec.Custom.Keys())
	v, _ := rec.Custom.Get("replace")
	assert.Equal(t, `2`, string(v))
	assert.True(t, rec.Money.IsZero())
}

func TestCredit_IsExactOverManyIncrements(t *testing.T) {
	acct := testAccounting(t)
	rec := domain.NewDomainRecord("foobar", time.Now())

	const clicks = 10000
	for range clicks {
		rec.Credit(acct.ClickIncrement)
	}

	tracked := rec.Tracked(acct)
	assert.Equal(t, int64(clicks), tracked.ClickCount)
	assert.True(t, tracked.Money.Equal(decimal.NewFromInt(10)), "money = %s", tracked.Money)
	assert.True(t, tracked.Status.Equal(decimal.RequireFromString("0.002")), "status = %s", tracked.Status)
}

func TestClone_IsDeep(t *testing.T) {
	rec := domain.NewDomainRecord("foobar", time.Now())
	rec.Custom.Set("a", json.RawMessage(`1`))

	c := rec.Clone()
	c.Custom.Set("b", json.RawMessage(`2`))
	c.Credit(decimal.RequireFromString("0.001"))

	assert.Equal(t, 1, rec.Custom.Len())
	assert.Equal(t, int64(0), rec.ClickCount)
}

func TestNewAccounting_Validation(t *testing.T) {
	testCases := []struct {
		inc, budget string
		wantErr     bool
	}{
		{"0.001", "5000", false},
		{"abc", "5000", true},
		{"0.001", "0", true},
		{"-1", "5000", true},
	}
	for _, tc := range testCases {
		t.Run(fmt.Sprintf("%s/%s", tc.inc, tc.budget), func(t *testing.T) {
			_, err := domain.NewAccounting(tc.inc, tc.budget)
			assert.Equal(t, tc.wantErr, err != nil, "err = %v", err)
		})
	}
}

func TestIsTransient(t *testing.T) {
	assert.True(t, domain.IsTransient(fmt.Errorf("wrap: %w", domain.ErrConflict)))
	assert.True(t, domain.IsTransient(domain.ErrUnavailable))
	assert.False(t, domain.IsTransient(domain.ErrNotFound))
	assert.False(t, domain.IsTransient(errors.New("other")))
	assert.False(t, domain.IsTransient(fmt.Errorf("commit: %w: %w", domain.ErrOutcomeUnknown, domain.ErrUnavailable)))
}

func TestAsset_ServedContentType(t *testing.T) {
	assert.Equal(t, "text/plain", (&domain.Asset{}).ServedContentType())
	assert.Equal(t, "text/html", (&domain.Asset{ContentType: "text/html"}).ServedContentType())
}
