package approval

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketlink/marketlink/internal/store"
)

type fakeStore struct {
	shops    map[int64]*store.Shop
	orders   map[int64]*store.Order
	payments map[int64]*store.Payment
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		shops:    make(map[int64]*store.Shop),
		orders:   make(map[int64]*store.Order),
		payments: make(map[int64]*store.Payment),
	}
}

func (f *fakeStore) GetShop(_ context.Context, ownerID int64) (*store.Shop, error) {
	if s, ok := f.shops[ownerID]; ok {
		return s, nil
	}
	return nil, store.ErrNotFound
}

func (f *fakeStore) GetPayment(_ context.Context, id int64) (*store.Payment, error) {
	if p, ok := f.payments[id]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, store.ErrNotFound
}

func (f *fakeStore) GetOrder(_ context.Context, id int64) (*store.Order, error) {
	if o, ok := f.orders[id]; ok {
		cp := *o
		return &cp, nil
	}
	return nil, store.ErrNotFound
}

func (f *fakeStore) UpdatePaymentStatus(_ context.Context, id int64, status string) (bool, error) {
	p, ok := f.payments[id]
	if !ok || p.Status != store.PaymentPending {
		return false, nil
	}
	p.Status = status
	return true, nil
}

func (f *fakeStore) UpdateOrderStatus(_ context.Context, id int64, status string) (bool, error) {
	o, ok := f.orders[id]
	if !ok || o.Status != store.OrderPending {
		return false, nil
	}
	o.Status = status
	return true, nil
}

type fakeNotifier struct {
	requests  []int64
	notices   map[int64][]string
	notifyErr error
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{notices: make(map[int64][]string)}
}

func (f *fakeNotifier) SendDecisionRequest(_ context.Context, approverID int64, _ Submission) error {
	f.requests = append(f.requests, approverID)
	return nil
}

func (f *fakeNotifier) Notify(_ context.Context, userID int64, text string) error {
	if f.notifyErr != nil {
		return f.notifyErr
	}
	f.notices[userID] = append(f.notices[userID], text)
	return nil
}

type fakeExtender struct {
	calls  int
	expiry string
}

func (f *fakeExtender) Extend(_ context.Context, _ int64, _ int) (string, error) {
	f.calls++
	return f.expiry, nil
}

const adminID = int64(900)

func seedOrderSubmission(st *fakeStore) {
	st.shops[50] = &store.Shop{OwnerID: 50, Name: "shop"}
	st.orders[1] = &store.Order{ID: 1, ShopID: 50, BuyerID: 70, Status: store.OrderPending}
	st.payments[10] = &store.Payment{
		ID: 10, Kind: store.KindOrder,
		OrderID: sql.NullInt64{Int64: 1, Valid: true},
		ShopID:  50, PayerID: 70, Status: store.PaymentPending,
	}
}

func TestSubmitRoutesOrderToShopOwner(t *testing.T) {
	st := newFakeStore()
	st.shops[50] = &store.Shop{OwnerID: 50, Name: "shop"}
	n := newFakeNotifier()
	d := New(st, &fakeExtender{}, n, adminID, 30)

	err := d.Submit(context.Background(), Submission{Kind: store.KindOrder, PaymentID: 10, ShopID: 50})
	require.NoError(t, err)
	assert.Equal(t, []int64{50}, n.requests)
}

func TestSubmitFallsBackToAdminWhenShopUnresolvable(t *testing.T) {
	st := newFakeStore()
	n := newFakeNotifier()
	d := New(st, &fakeExtender{}, n, adminID, 30)

	err := d.Submit(context.Background(), Submission{Kind: store.KindOrder, PaymentID: 10, ShopID: 404})
	require.NoError(t, err)
	assert.Equal(t, []int64{adminID}, n.requests)
}

func TestSubmitRoutesSubscriptionToAdmin(t *testing.T) {
	st := newFakeStore()
	st.shops[50] = &store.Shop{OwnerID: 50, Name: "shop"}
	n := newFakeNotifier()
	d := New(st, &fakeExtender{}, n, adminID, 30)

	err := d.Submit(context.Background(), Submission{Kind: store.KindSubscription, PaymentID: 11, ShopID: 50})
	require.NoError(t, err)
	assert.Equal(t, []int64{adminID}, n.requests)
}

func TestDecideUnknownPayment(t *testing.T) {
	d := New(newFakeStore(), &fakeExtender{}, newFakeNotifier(), adminID, 30)

	err := d.Decide(context.Background(), adminID, Approve, 999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDecideRejectsForeignActor(t *testing.T) {
	st := newFakeStore()
	seedOrderSubmission(st)
	d := New(st, &fakeExtender{}, newFakeNotifier(), adminID, 30)

	err := d.Decide(context.Background(), 777, Approve, 10)
	assert.ErrorIs(t, err, ErrNotAuthorized)
	assert.Equal(t, store.OrderPending, st.orders[1].Status)
	assert.Equal(t, store.PaymentPending, st.payments[10].Status)
}

func TestDecideOrderApprovePairsRecords(t *testing.T) {
	st := newFakeStore()
	seedOrderSubmission(st)
	n := newFakeNotifier()
	d := New(st, &fakeExtender{}, n, adminID, 30)

	err := d.Decide(context.Background(), 50, Approve, 10)
	require.NoError(t, err)
	assert.Equal(t, store.OrderConfirmed, st.orders[1].Status)
	assert.Equal(t, store.PaymentApproved, st.payments[10].Status)
	require.Len(t, n.notices[70], 1)
	assert.Contains(t, n.notices[70][0], "confirmed")
}

func TestDecideOrderReject(t *testing.T) {
	st := newFakeStore()
	seedOrderSubmission(st)
	n := newFakeNotifier()
	d := New(st, &fakeExtender{}, n, adminID, 30)

	err := d.Decide(context.Background(), 50, Reject, 10)
	require.NoError(t, err)
	assert.Equal(t, store.OrderRejected, st.orders[1].Status)
	assert.Equal(t, store.PaymentRejected, st.payments[10].Status)
}

func TestDecideTwiceReturnsAlreadyDecided(t *testing.T) {
	st := newFakeStore()
	seedOrderSubmission(st)
	d := New(st, &fakeExtender{}, newFakeNotifier(), adminID, 30)

	require.NoError(t, d.Decide(context.Background(), 50, Approve, 10))
	err := d.Decide(context.Background(), 50, Reject, 10)
	assert.ErrorIs(t, err, ErrAlreadyDecided)
	assert.Equal(t, store.OrderConfirmed, st.orders[1].Status)
}

func TestNotifyFailureDoesNotRollBack(t *testing.T) {
	st := newFakeStore()
	seedOrderSubmission(st)
	n := newFakeNotifier()
	n.notifyErr = errors.New("recipient unreachable")
	d := New(st, &fakeExtender{}, n, adminID, 30)

	err := d.Decide(context.Background(), 50, Approve, 10)
	require.NoError(t, err)
	assert.Equal(t, store.OrderConfirmed, st.orders[1].Status)
	assert.Equal(t, store.PaymentApproved, st.payments[10].Status)
}

func TestSubscriptionApproveExtends(t *testing.T) {
	st := newFakeStore()
	st.shops[50] = &store.Shop{OwnerID: 50, Name: "shop", ExpiresAt: "2026-09-04"}
	st.payments[20] = &store.Payment{ID: 20, Kind: store.KindSubscription, ShopID: 50, PayerID: 50, Status: store.PaymentPending}
	ext := &fakeExtender{expiry: "2026-10-04"}
	n := newFakeNotifier()
	d := New(st, ext, n, adminID, 30)

	err := d.Decide(context.Background(), adminID, Approve, 20)
	require.NoError(t, err)
	assert.Equal(t, 1, ext.calls)
	assert.Equal(t, store.PaymentApproved, st.payments[20].Status)
	require.Len(t, n.notices[50], 1)
	assert.Contains(t, n.notices[50][0], "2026-10-04")
}

func TestDecodePayloadRoundTrip(t *testing.T) {
	sub := Submission{Kind: store.KindOrder, PaymentID: 10, OrderID: 1}
	kind, paymentID, orderID, err := DecodePayload(EncodePayload(sub))
	require.NoError(t, err)
	assert.Equal(t, store.KindOrder, kind)
	assert.Equal(t, int64(10), paymentID)
	assert.Equal(t, int64(1), orderID)

	_, _, _, err = DecodePayload("garbage")
	assert.Error(t, err)
}
