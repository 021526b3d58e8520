package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return New(sqlx.NewDb(db, "sqlmock")), mock
}

func TestGetShopNotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT owner_id, name, expires_at, created_at FROM shops`).
		WithArgs(int64(42)).
		WillReturnError(sql.ErrNoRows)

	_, err := s.GetShop(context.Background(), 42)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestUpsertShopInsertsWhenMissing(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT owner_id, name, expires_at, created_at FROM shops`).
		WithArgs(int64(7)).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec(`INSERT INTO shops`).
		WithArgs(int64(7), "corner shop", "2026-09-04").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.UpsertShop(context.Background(), &Shop{OwnerID: 7, Name: "corner shop", ExpiresAt: "2026-09-04"})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestUpsertShopUpdatesExisting(t *testing.T) {
	s, mock := newMockStore(t)

	rows := sqlmock.NewRows([]string{"owner_id", "name", "expires_at", "created_at"}).
		AddRow(int64(7), "old name", "2026-01-01", time.Now())
	mock.ExpectQuery(`SELECT owner_id, name, expires_at, created_at FROM shops`).
		WithArgs(int64(7)).
		WillReturnRows(rows)
	mock.ExpectExec(`UPDATE shops SET name`).
		WithArgs(int64(7), "new name", "2026-01-01").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.UpsertShop(context.Background(), &Shop{OwnerID: 7, Name: "new name", ExpiresAt: "2026-01-01"})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestUpdatePaymentStatusOnlyTouchesPending(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(`UPDATE payments SET status = \$2 WHERE id = \$1 AND status = 'pending'`).
		WithArgs(int64(11), PaymentApproved).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := s.UpdatePaymentStatus(context.Background(), 11, PaymentApproved)
	if err != nil {
		t.Fatalf("update status: %v", err)
	}
	if ok {
		t.Fatal("expected no rows affected for settled payment")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestDeleteProductScopedToOwner(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(`DELETE FROM products WHERE id = \$1 AND owner_id = \$2`).
		WithArgs(int64(3), int64(100)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := s.DeleteProduct(context.Background(), 100, 3)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if ok {
		t.Fatal("expected delete to miss for foreign owner")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestListArtifactRefsUnionsBothTables(t *testing.T) {
	s, mock := newMockStore(t)

	rows := sqlmock.NewRows([]string{"kind", "id", "path"}).
		AddRow("order", int64(1), "uploads/5_a.jpg").
		AddRow("payment", int64(2), "uploads/6_b.jpg")
	mock.ExpectQuery(`SELECT 'order' AS kind`).WillReturnRows(rows)

	refs, err := s.ListArtifactRefs(context.Background())
	if err != nil {
		t.Fatalf("list refs: %v", err)
	}
	if len(refs) != 2 {
		t.Fatalf("expected 2 refs, got %d", len(refs))
	}
	if refs[0].Kind != "order" || refs[1].Kind != "payment" {
		t.Fatalf("unexpected kinds: %+v", refs)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
