package subscription

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketlink/marketlink/internal/store"
)

type fakeShops struct {
	shops map[int64]*store.Shop
}

func newFakeShops() *fakeShops {
	return &fakeShops{shops: make(map[int64]*store.Shop)}
}

func (f *fakeShops) GetShop(_ context.Context, ownerID int64) (*store.Shop, error) {
	s, ok := f.shops[ownerID]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (f *fakeShops) SetShopExpiry(_ context.Context, ownerID int64, expiresAt string) error {
	s, ok := f.shops[ownerID]
	if !ok {
		return store.ErrNotFound
	}
	s.ExpiresAt = expiresAt
	return nil
}

func fixedNow(day string) func() time.Time {
	t, err := time.Parse(DateLayout, day)
	if err != nil {
		panic(err)
	}
	return func() time.Time { return t }
}

func TestTrialWindowBoundaries(t *testing.T) {
	shops := newFakeShops()
	shops.shops[10] = &store.Shop{OwnerID: 10, Name: "trial shop", ExpiresAt: "2026-09-04"}

	cases := []struct {
		day    string
		active bool
	}{
		{"2026-09-01", true},  // creation day
		{"2026-09-04", true},  // expiry day, inclusive
		{"2026-09-05", false}, // day after
	}
	for _, tc := range cases {
		clock := NewClock(shops, 999, fixedNow(tc.day))
		assert.Equal(t, tc.active, clock.IsActive(context.Background(), 10), "day %s", tc.day)
	}
}

func TestAdminAlwaysActive(t *testing.T) {
	clock := NewClock(newFakeShops(), 999, fixedNow("2026-09-01"))
	assert.True(t, clock.IsActive(context.Background(), 999))
}

func TestInactiveWithoutShopOrParseableExpiry(t *testing.T) {
	shops := newFakeShops()
	shops.shops[20] = &store.Shop{OwnerID: 20, Name: "broken", ExpiresAt: "soon"}
	shops.shops[21] = &store.Shop{OwnerID: 21, Name: "blank", ExpiresAt: ""}
	clock := NewClock(shops, 999, fixedNow("2026-09-01"))

	assert.False(t, clock.IsActive(context.Background(), 10), "no shop record")
	assert.False(t, clock.IsActive(context.Background(), 20), "malformed expiry")
	assert.False(t, clock.IsActive(context.Background(), 21), "empty expiry")
}

func TestExtendCompounds(t *testing.T) {
	shops := newFakeShops()
	shops.shops[30] = &store.Shop{OwnerID: 30, Name: "paying", ExpiresAt: "2026-09-04"}
	clock := NewClock(shops, 999, fixedNow("2026-09-01"))

	first, err := clock.Extend(context.Background(), 30, 30)
	require.NoError(t, err)
	assert.Equal(t, "2026-10-04", first)

	second, err := clock.Extend(context.Background(), 30, 30)
	require.NoError(t, err)
	assert.Equal(t, "2026-11-03", second)
}

func TestExtendFallsBackToNow(t *testing.T) {
	shops := newFakeShops()
	shops.shops[31] = &store.Shop{OwnerID: 31, Name: "lapsed", ExpiresAt: "never"}
	clock := NewClock(shops, 999, fixedNow("2026-09-01"))

	next, err := clock.Extend(context.Background(), 31, 30)
	require.NoError(t, err)
	assert.Equal(t, "2026-10-01", next)
}
