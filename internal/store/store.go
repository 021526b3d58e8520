package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("store: not found")

// Store wraps the Postgres repositories for shops, products, links, orders
// and payments.
type Store struct {
	db *sqlx.DB
}

// New creates a Store over an established connection pool.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// GetShop loads a shop by its owner ID.
func (s *Store) GetShop(ctx context.Context, ownerID int64) (*Shop, error) {
	var shop Shop
	err := s.db.GetContext(ctx, &shop,
		`SELECT owner_id, name, expires_at, created_at FROM shops WHERE owner_id = $1`, ownerID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get shop %d: %w", ownerID, err)
	}
	return &shop, nil
}

// UpsertShop writes a shop record with explicit read-then-write semantics:
// an existing row is updated in place, otherwise a new one is inserted.
func (s *Store) UpsertShop(ctx context.Context, shop *Shop) error {
	_, err := s.GetShop(ctx, shop.OwnerID)
	switch {
	case errors.Is(err, ErrNotFound):
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO shops (owner_id, name, expires_at) VALUES ($1, $2, $3)`,
			shop.OwnerID, shop.Name, shop.ExpiresAt)
		if err != nil {
			return fmt.Errorf("insert shop %d: %w", shop.OwnerID, err)
		}
		return nil
	case err != nil:
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE shops SET name = $2, expires_at = $3 WHERE owner_id = $1`,
		shop.OwnerID, shop.Name, shop.ExpiresAt)
	if err != nil {
		return fmt.Errorf("update shop %d: %w", shop.OwnerID, err)
	}
	return nil
}

// SetShopExpiry overwrites the shop's stored expiry date.
func (s *Store) SetShopExpiry(ctx context.Context, ownerID int64, expiresAt string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE shops SET expires_at = $2 WHERE owner_id = $1`, ownerID, expiresAt)
	if err != nil {
		return fmt.Errorf("set shop expiry %d: %w", ownerID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// AddProduct inserts a product and returns its generated ID.
func (s *Store) AddProduct(ctx context.Context, p *Product) (int64, error) {
	var id int64
	err := s.db.GetContext(ctx, &id,
		`INSERT INTO products (owner_id, name, price) VALUES ($1, $2, $3) RETURNING id`,
		p.OwnerID, p.Name, p.Price)
	if err != nil {
		return 0, fmt.Errorf("add product for %d: %w", p.OwnerID, err)
	}
	return id, nil
}

// ListProducts returns the shop's products in insertion order.
func (s *Store) ListProducts(ctx context.Context, ownerID int64) ([]Product, error) {
	var list []Product
	err := s.db.SelectContext(ctx, &list,
		`SELECT id, owner_id, name, price FROM products WHERE owner_id = $1 ORDER BY id`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list products for %d: %w", ownerID, err)
	}
	return list, nil
}

// DeleteProduct removes a product only when it belongs to the given owner.
func (s *Store) DeleteProduct(ctx context.Context, ownerID, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM products WHERE id = $1 AND owner_id = $2`, id, ownerID)
	if err != nil {
		return false, fmt.Errorf("delete product %d: %w", id, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// AddLink inserts a shop link and returns its generated ID.
func (s *Store) AddLink(ctx context.Context, l *Link) (int64, error) {
	var id int64
	err := s.db.GetContext(ctx, &id,
		`INSERT INTO links (owner_id, title, url) VALUES ($1, $2, $3) RETURNING id`,
		l.OwnerID, l.Title, l.URL)
	if err != nil {
		return 0, fmt.Errorf("add link for %d: %w", l.OwnerID, err)
	}
	return id, nil
}

// ListLinks returns the shop's links in insertion order.
func (s *Store) ListLinks(ctx context.Context, ownerID int64) ([]Link, error) {
	var list []Link
	err := s.db.SelectContext(ctx, &list,
		`SELECT id, owner_id, title, url FROM links WHERE owner_id = $1 ORDER BY id`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list links for %d: %w", ownerID, err)
	}
	return list, nil
}

// DeleteLink removes a link only when it belongs to the given owner.
func (s *Store) DeleteLink(ctx context.Context, ownerID, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM links WHERE id = $1 AND owner_id = $2`, id, ownerID)
	if err != nil {
		return false, fmt.Errorf("delete link %d: %w", id, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// CreateOrder inserts a pending order and returns its generated ID.
func (s *Store) CreateOrder(ctx context.Context, o *Order) (int64, error) {
	var id int64
	err := s.db.GetContext(ctx, &id,
		`INSERT INTO orders (shop_id, buyer_id, buyer_name, buyer_phone, buyer_address, items, total, status, proof_path)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id`,
		o.ShopID, o.BuyerID, o.BuyerName, o.BuyerPhone, o.BuyerAddress,
		o.Items, o.Total, OrderPending, o.ProofPath)
	if err != nil {
		return 0, fmt.Errorf("create order for shop %d: %w", o.ShopID, err)
	}
	return id, nil
}

// GetOrder loads an order by ID.
func (s *Store) GetOrder(ctx context.Context, id int64) (*Order, error) {
	var o Order
	err := s.db.GetContext(ctx, &o,
		`SELECT id, shop_id, buyer_id, buyer_name, buyer_phone, buyer_address, items, total, status, proof_path, created_at
		 FROM orders WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get order %d: %w", id, err)
	}
	return &o, nil
}

// UpdateOrderStatus transitions a pending order to the given status.
// Returns false when the order was not pending anymore.
func (s *Store) UpdateOrderStatus(ctx context.Context, id int64, status string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE orders SET status = $2 WHERE id = $1 AND status = 'pending'`, id, status)
	if err != nil {
		return false, fmt.Errorf("update order %d status: %w", id, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// ClearOrderProof drops the proof reference once the file is reclaimed.
func (s *Store) ClearOrderProof(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE orders SET proof_path = NULL WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("clear order %d proof: %w", id, err)
	}
	return nil
}

// ListOrdersByShop returns the most recent orders for a shop.
func (s *Store) ListOrdersByShop(ctx context.Context, shopID int64, limit int) ([]Order, error) {
	if limit <= 0 {
		limit = 10
	}
	var list []Order
	err := s.db.SelectContext(ctx, &list,
		`SELECT id, shop_id, buyer_id, buyer_name, buyer_phone, buyer_address, items, total, status, proof_path, created_at
		 FROM orders WHERE shop_id = $1 ORDER BY id DESC LIMIT $2`, shopID, limit)
	if err != nil {
		return nil, fmt.Errorf("list orders for shop %d: %w", shopID, err)
	}
	return list, nil
}

// CreatePayment inserts a pending payment and returns its generated ID.
func (s *Store) CreatePayment(ctx context.Context, p *Payment) (int64, error) {
	var id int64
	err := s.db.GetContext(ctx, &id,
		`INSERT INTO payments (kind, order_id, shop_id, payer_id, proof_path, status)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		p.Kind, p.OrderID, p.ShopID, p.PayerID, p.ProofPath, PaymentPending)
	if err != nil {
		return 0, fmt.Errorf("create %s payment for %d: %w", p.Kind, p.PayerID, err)
	}
	return id, nil
}

// GetPayment loads a payment by ID.
func (s *Store) GetPayment(ctx context.Context, id int64) (*Payment, error) {
	var p Payment
	err := s.db.GetContext(ctx, &p,
		`SELECT id, kind, order_id, shop_id, payer_id, proof_path, status, created_at
		 FROM payments WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get payment %d: %w", id, err)
	}
	return &p, nil
}

// UpdatePaymentStatus transitions a pending payment to the given status.
// Returns false when the payment was not pending anymore.
func (s *Store) UpdatePaymentStatus(ctx context.Context, id int64, status string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE payments SET status = $2 WHERE id = $1 AND status = 'pending'`, id, status)
	if err != nil {
		return false, fmt.Errorf("update payment %d status: %w", id, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// ClearPaymentProof drops the proof reference once the file is reclaimed.
func (s *Store) ClearPaymentProof(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE payments SET proof_path = NULL WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("clear payment %d proof: %w", id, err)
	}
	return nil
}

// ListArtifactRefs returns every stored proof reference from both tables.
func (s *Store) ListArtifactRefs(ctx context.Context) ([]ArtifactRef, error) {
	var refs []ArtifactRef
	err := s.db.SelectContext(ctx, &refs,
		`SELECT 'order' AS kind, id, proof_path AS path FROM orders WHERE proof_path IS NOT NULL
		 UNION ALL
		 SELECT 'payment' AS kind, id, proof_path AS path FROM payments WHERE proof_path IS NOT NULL`)
	if err != nil {
		return nil, fmt.Errorf("list artifact refs: %w", err)
	}
	return refs, nil
}
