package subscription

import (
	"context"
	"errors"
	"time"

	"github.com/marketlink/marketlink/core/logger"
	"github.com/marketlink/marketlink/internal/store"
	"log/slog"
)

// DateLayout is the calendar-date format shops carry in their expiry column.
const DateLayout = "2006-01-02"

// ShopStore is the slice of the repository the clock needs.
type ShopStore interface {
	GetShop(ctx context.Context, ownerID int64) (*store.Shop, error)
	SetShopExpiry(ctx context.Context, ownerID int64, expiresAt string) error
}

// Clock answers "is this shop currently subscribed" and applies paid
// extensions. Comparisons are at date precision and the expiry day itself
// still counts as active.
type Clock struct {
	shops   ShopStore
	adminID int64
	now     func() time.Time
}

// NewClock builds a Clock. now is optional and defaults to time.Now.
func NewClock(shops ShopStore, adminID int64, now func() time.Time) *Clock {
	if now == nil {
		now = time.Now
	}
	return &Clock{shops: shops, adminID: adminID, now: now}
}

// IsActive reports whether the user's shop is currently subscribed.
// The admin is always active. Any failure mode (no shop, empty or malformed
// expiry) degrades to inactive, never to an error.
func (c *Clock) IsActive(ctx context.Context, userID int64) bool {
	if userID == c.adminID {
		return true
	}
	shop, err := c.shops.GetShop(ctx, userID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			logger.Warn(ctx, "subscription", "shop.load_failed",
				slog.Int64("shop_id", userID),
				slog.String("err", err.Error()),
			)
		}
		return false
	}
	expiry, err := time.Parse(DateLayout, shop.ExpiresAt)
	if err != nil {
		return false
	}
	today := dateOnly(c.now())
	return !expiry.Before(today)
}

// Extend pushes the shop's expiry forward by the given number of days and
// returns the new date. The stored expiry, when parseable, is the base even if
// already past; otherwise the extension counts from today. Repeated approvals
// therefore compound.
func (c *Clock) Extend(ctx context.Context, ownerID int64, days int) (string, error) {
	base := dateOnly(c.now())
	if shop, err := c.shops.GetShop(ctx, ownerID); err == nil {
		if current, perr := time.Parse(DateLayout, shop.ExpiresAt); perr == nil {
			base = current
		}
	}
	next := base.AddDate(0, 0, days).Format(DateLayout)
	if err := c.shops.SetShopExpiry(ctx, ownerID, next); err != nil {
		return "", err
	}
	logger.Info(ctx, "subscription", "expiry.extended",
		slog.Int64("shop_id", ownerID),
		slog.String("expires_at", next),
	)
	return next, nil
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
