package store

import (
	"database/sql"
	"time"
)

// Shop is keyed by its owner: one shop per Telegram user.
// ExpiresAt holds a calendar date as TEXT ("2006-01-02"); an empty or
// malformed value means the shop is not subscribed.
type Shop struct {
	OwnerID   int64     `db:"owner_id"`
	Name      string    `db:"name"`
	ExpiresAt string    `db:"expires_at"`
	CreatedAt time.Time `db:"created_at"`
}

// Product belongs to a shop and is listed to buyers.
type Product struct {
	ID      int64  `db:"id"`
	OwnerID int64  `db:"owner_id"`
	Name    string `db:"name"`
	// Price is stored in minor currency units.
	Price int64 `db:"price"`
}

// Link is an external reference a shop owner attaches to their shop page.
type Link struct {
	ID      int64  `db:"id"`
	OwnerID int64  `db:"owner_id"`
	Title   string `db:"title"`
	URL     string `db:"url"`
}

// Order statuses.
const (
	OrderPending   = "pending"
	OrderConfirmed = "confirmed"
	OrderRejected  = "rejected"
)

// Payment statuses.
const (
	PaymentPending  = "pending"
	PaymentApproved = "approved"
	PaymentRejected = "rejected"
)

// Payment kinds.
const (
	KindOrder        = "order"
	KindSubscription = "subscription"
)

// Order captures a completed checkout: buyer contact fields collected by the
// dialog, a rendered item summary, and the payment proof reference.
type Order struct {
	ID           int64          `db:"id"`
	ShopID       int64          `db:"shop_id"`
	BuyerID      int64          `db:"buyer_id"`
	BuyerName    string         `db:"buyer_name"`
	BuyerPhone   string         `db:"buyer_phone"`
	BuyerAddress string         `db:"buyer_address"`
	Items        string         `db:"items"`
	Total        int64          `db:"total"`
	Status       string         `db:"status"`
	ProofPath    sql.NullString `db:"proof_path"`
	CreatedAt    time.Time      `db:"created_at"`
}

// Payment is the approval unit: every submission (order or subscription)
// creates exactly one pending payment. OrderID is set only for kind "order".
type Payment struct {
	ID        int64          `db:"id"`
	Kind      string         `db:"kind"`
	OrderID   sql.NullInt64  `db:"order_id"`
	ShopID    int64          `db:"shop_id"`
	PayerID   int64          `db:"payer_id"`
	ProofPath sql.NullString `db:"proof_path"`
	Status    string         `db:"status"`
	CreatedAt time.Time      `db:"created_at"`
}

// ArtifactRef points at a stored proof image from either table.
type ArtifactRef struct {
	Kind string `db:"kind"`
	ID   int64  `db:"id"`
	Path string `db:"path"`
}
