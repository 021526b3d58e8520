package session

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketlink/marketlink/internal/approval"
	"github.com/marketlink/marketlink/internal/store"
)

type fakeStore struct {
	shops      map[int64]*store.Shop
	orders     []*store.Order
	payments   []*store.Payment
	nextID     int64
	createErr  error
	paymentErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{shops: make(map[int64]*store.Shop), nextID: 1}
}

func (f *fakeStore) GetShop(_ context.Context, ownerID int64) (*store.Shop, error) {
	if s, ok := f.shops[ownerID]; ok {
		return s, nil
	}
	return nil, store.ErrNotFound
}

func (f *fakeStore) CreateOrder(_ context.Context, o *store.Order) (int64, error) {
	if f.createErr != nil {
		return 0, f.createErr
	}
	o.ID = f.nextID
	f.nextID++
	f.orders = append(f.orders, o)
	return o.ID, nil
}

func (f *fakeStore) CreatePayment(_ context.Context, p *store.Payment) (int64, error) {
	if f.paymentErr != nil {
		return 0, f.paymentErr
	}
	p.ID = f.nextID
	f.nextID++
	f.payments = append(f.payments, p)
	return p.ID, nil
}

type fakeBlobs struct {
	saves   int
	saveErr error
}

func (f *fakeBlobs) Save(submitterID int64, _ io.Reader) (string, error) {
	if f.saveErr != nil {
		return "", f.saveErr
	}
	f.saves++
	return "uploads/proof.jpg", nil
}

type alwaysActive struct{}

func (alwaysActive) IsActive(context.Context, int64) bool { return true }

type neverActive struct{}

func (neverActive) IsActive(context.Context, int64) bool { return false }

type testRig struct {
	engine *Engine
	store  *fakeStore
	blobs  *fakeBlobs
	subs   []approval.Submission
}

func newRig(t *testing.T, clock ActiveChecker) *testRig {
	t.Helper()
	rig := &testRig{store: newFakeStore(), blobs: &fakeBlobs{}}
	rig.store.shops[50] = &store.Shop{OwnerID: 50, Name: "Scarf Corner", ExpiresAt: "2099-01-01"}
	rig.engine = NewEngine(Options{
		Store: rig.store,
		Blobs: rig.blobs,
		Clock: clock,
		Submit: func(_ context.Context, sub approval.Submission) error {
			rig.subs = append(rig.subs, sub)
			return nil
		},
	})
	return rig
}

func advanceToShopping(t *testing.T, rig *testRig, userID int64) {
	t.Helper()
	ctx := context.Background()
	_, err := rig.engine.StartOrder(ctx, userID, 50)
	require.NoError(t, err)
	for _, msg := range []string{"Alice", "+123456", "1 Main Street"} {
		_, err := rig.engine.HandleText(ctx, userID, msg)
		require.NoError(t, err)
	}
	state, ok := rig.engine.StateOf(userID)
	require.True(t, ok)
	require.Equal(t, StateShopping, state)
}

func TestCartTotalsAndOrdering(t *testing.T) {
	rig := newRig(t, alwaysActive{})
	advanceToShopping(t, rig, 70)
	ctx := context.Background()

	reply, err := rig.engine.HandleText(ctx, 70, "Scarf:15000")
	require.NoError(t, err)
	assert.Contains(t, reply, "15000")

	reply, err = rig.engine.HandleText(ctx, 70, "Belt:5000")
	require.NoError(t, err)
	assert.Contains(t, reply, "20000")

	view, err := rig.engine.HandleText(ctx, 70, "cart")
	require.NoError(t, err)
	scarf := strings.Index(view, "Scarf")
	belt := strings.Index(view, "Belt")
	require.GreaterOrEqual(t, scarf, 0)
	require.Greater(t, belt, scarf, "entries must render in insertion order")
	assert.Contains(t, view, "Total: 20000")
}

func TestCheckoutUnreachableBeforeAddress(t *testing.T) {
	rig := newRig(t, alwaysActive{})
	ctx := context.Background()
	_, err := rig.engine.StartOrder(ctx, 70, 50)
	require.NoError(t, err)

	// "checkout" while collecting the name is consumed as the name, not a command.
	_, err = rig.engine.HandleText(ctx, 70, "checkout")
	require.NoError(t, err)
	state, _ := rig.engine.StateOf(70)
	assert.Equal(t, StateCollectPhone, state)
	assert.Empty(t, rig.store.orders)
}

func TestOrderSubmissionPairsOrderAndPayment(t *testing.T) {
	rig := newRig(t, alwaysActive{})
	advanceToShopping(t, rig, 70)
	ctx := context.Background()

	_, err := rig.engine.HandleText(ctx, 70, "Scarf:15000")
	require.NoError(t, err)
	_, err = rig.engine.HandleText(ctx, 70, "checkout")
	require.NoError(t, err)

	reply, err := rig.engine.HandlePhoto(ctx, 70, strings.NewReader("img"))
	require.NoError(t, err)
	assert.Contains(t, reply, "submitted")

	require.Len(t, rig.store.orders, 1)
	require.Len(t, rig.store.payments, 1)
	order := rig.store.orders[0]
	payment := rig.store.payments[0]
	require.True(t, payment.OrderID.Valid)
	assert.Equal(t, order.ID, payment.OrderID.Int64, "payment must reference the order from the same submission")
	assert.Equal(t, int64(15000), order.Total)

	require.Len(t, rig.subs, 1)
	assert.Equal(t, payment.ID, rig.subs[0].PaymentID)
	assert.Equal(t, order.ID, rig.subs[0].OrderID)

	_, inProgress := rig.engine.StateOf(70)
	assert.False(t, inProgress, "session must be dropped after submission")
}

func TestBlobSaveFailureKeepsStateForRetry(t *testing.T) {
	rig := newRig(t, alwaysActive{})
	advanceToShopping(t, rig, 70)
	ctx := context.Background()

	_, err := rig.engine.HandleText(ctx, 70, "Scarf:15000")
	require.NoError(t, err)
	_, err = rig.engine.HandleText(ctx, 70, "checkout")
	require.NoError(t, err)

	rig.blobs.saveErr = errors.New("disk full")
	reply, err := rig.engine.HandlePhoto(ctx, 70, strings.NewReader("img"))
	require.NoError(t, err)
	assert.Contains(t, reply, "again")
	state, ok := rig.engine.StateOf(70)
	require.True(t, ok)
	assert.Equal(t, StateAwaitProof, state)
	assert.Empty(t, rig.store.orders)

	rig.blobs.saveErr = nil
	_, err = rig.engine.HandlePhoto(ctx, 70, strings.NewReader("img"))
	require.NoError(t, err)
	assert.Len(t, rig.store.orders, 1)
}

func TestUnknownShoppingInputReprompts(t *testing.T) {
	rig := newRig(t, alwaysActive{})
	advanceToShopping(t, rig, 70)
	ctx := context.Background()

	reply, err := rig.engine.HandleText(ctx, 70, "Scarf:-5")
	require.NoError(t, err)
	assert.Contains(t, reply, "name:price")
	state, _ := rig.engine.StateOf(70)
	assert.Equal(t, StateShopping, state)
}

func TestCancelDropsDialog(t *testing.T) {
	rig := newRig(t, alwaysActive{})
	advanceToShopping(t, rig, 70)
	ctx := context.Background()

	reply, err := rig.engine.HandleText(ctx, 70, "cancel")
	require.NoError(t, err)
	assert.Equal(t, "Cancelled.", reply)
	assert.False(t, rig.engine.InProgress(70))
}

func TestUsersProceedIndependently(t *testing.T) {
	rig := newRig(t, alwaysActive{})
	advanceToShopping(t, rig, 70)
	ctx := context.Background()

	_, err := rig.engine.StartOrder(ctx, 71, 50)
	require.NoError(t, err)

	s70, _ := rig.engine.StateOf(70)
	s71, _ := rig.engine.StateOf(71)
	assert.Equal(t, StateShopping, s70)
	assert.Equal(t, StateCollectName, s71)
}

func TestReentryRestartsFromScratch(t *testing.T) {
	rig := newRig(t, alwaysActive{})
	advanceToShopping(t, rig, 70)
	ctx := context.Background()
	_, err := rig.engine.HandleText(ctx, 70, "Scarf:15000")
	require.NoError(t, err)

	_, err = rig.engine.StartOrder(ctx, 70, 50)
	require.NoError(t, err)
	state, _ := rig.engine.StateOf(70)
	assert.Equal(t, StateCollectName, state)

	advanceToShopping(t, rig, 70)
	view, err := rig.engine.HandleText(ctx, 70, "cart")
	require.NoError(t, err)
	assert.Equal(t, "Cart is empty.", view)
}

func TestInactiveShopRefusesOrders(t *testing.T) {
	rig := newRig(t, neverActive{})
	ctx := context.Background()

	reply, err := rig.engine.StartOrder(ctx, 70, 50)
	require.NoError(t, err)
	assert.Contains(t, reply, "unavailable")
	assert.False(t, rig.engine.InProgress(70))
}

func TestIdleSessionsReclaimed(t *testing.T) {
	current := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	rig := &testRig{store: newFakeStore(), blobs: &fakeBlobs{}}
	rig.store.shops[50] = &store.Shop{OwnerID: 50, Name: "Scarf Corner", ExpiresAt: "2099-01-01"}
	rig.engine = NewEngine(Options{
		Store:   rig.store,
		Blobs:   rig.blobs,
		Clock:   alwaysActive{},
		Submit:  func(context.Context, approval.Submission) error { return nil },
		IdleTTL: 10 * time.Minute,
		Now:     func() time.Time { return current },
	})

	_, err := rig.engine.StartOrder(context.Background(), 70, 50)
	require.NoError(t, err)
	require.True(t, rig.engine.InProgress(70))

	current = current.Add(11 * time.Minute)
	assert.False(t, rig.engine.InProgress(70))
	assert.False(t, rig.engine.InProgress(70), "reclaim must be idempotent")
}

func TestSubscriptionFlow(t *testing.T) {
	rig := newRig(t, alwaysActive{})
	ctx := context.Background()

	reply, err := rig.engine.StartSubscription(ctx, 50)
	require.NoError(t, err)
	assert.Contains(t, reply, "receipt")

	reply, err = rig.engine.HandlePhoto(ctx, 50, strings.NewReader("img"))
	require.NoError(t, err)
	assert.Contains(t, reply, "submitted")

	require.Len(t, rig.store.payments, 1)
	p := rig.store.payments[0]
	assert.Equal(t, store.KindSubscription, p.Kind)
	assert.False(t, p.OrderID.Valid)
	require.Len(t, rig.subs, 1)
	assert.Equal(t, store.KindSubscription, rig.subs[0].Kind)
}

func TestSubscriptionRequiresShop(t *testing.T) {
	rig := newRig(t, alwaysActive{})
	reply, err := rig.engine.StartSubscription(context.Background(), 777)
	require.NoError(t, err)
	assert.Contains(t, reply, "/shop")
	assert.False(t, rig.engine.InProgress(777))
}
