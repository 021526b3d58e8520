package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/marketlink/marketlink/core/logger"
	"github.com/marketlink/marketlink/internal/approval"
	"github.com/marketlink/marketlink/internal/store"
	"log/slog"
)

// State identifies a step of the per-user conversation.
type State string

const (
	// Order flow: contact collection, shopping, proof upload.
	StateCollectName    State = "collect_name"
	StateCollectPhone   State = "collect_phone"
	StateCollectAddress State = "collect_address"
	StateShopping       State = "shopping"
	StateAwaitProof     State = "await_proof"

	// Subscription flow: proof upload only.
	StateSubAwaitProof State = "sub_await_proof"
)

// DefaultIdleTTL bounds how long an abandoned session survives.
const DefaultIdleTTL = 30 * time.Minute

// Store is the repository slice the engine writes at checkout.
type Store interface {
	GetShop(ctx context.Context, ownerID int64) (*store.Shop, error)
	CreateOrder(ctx context.Context, o *store.Order) (int64, error)
	CreatePayment(ctx context.Context, p *store.Payment) (int64, error)
}

// Blobs persists uploaded proof images.
type Blobs interface {
	Save(submitterID int64, r io.Reader) (string, error)
}

// ActiveChecker answers whether a shop may receive new orders.
type ActiveChecker interface {
	IsActive(ctx context.Context, userID int64) bool
}

// SubmitFunc hands a completed submission to the approval dispatcher.
type SubmitFunc func(ctx context.Context, sub approval.Submission) error

// session is one user's dialog slot. Its mutex serializes events for that
// user; different users run in parallel.
type session struct {
	mu         sync.Mutex
	userID     int64
	shopID     int64
	state      State
	name       string
	phone      string
	address    string
	cart       Cart
	lastActive time.Time
}

// Engine owns the per-user conversation state machines. All access to a
// user's dialog goes through the engine; there is no ambient session state.
type Engine struct {
	mu       sync.Mutex
	sessions map[int64]*session

	store   Store
	blobs   Blobs
	clock   ActiveChecker
	submit  SubmitFunc
	idleTTL time.Duration
	now     func() time.Time
}

// Options configures NewEngine.
type Options struct {
	Store   Store
	Blobs   Blobs
	Clock   ActiveChecker
	Submit  SubmitFunc
	IdleTTL time.Duration
	Now     func() time.Time
}

// NewEngine builds an Engine.
func NewEngine(opts Options) *Engine {
	if opts.IdleTTL <= 0 {
		opts.IdleTTL = DefaultIdleTTL
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Engine{
		sessions: make(map[int64]*session),
		store:    opts.Store,
		blobs:    opts.Blobs,
		clock:    opts.Clock,
		submit:   opts.Submit,
		idleTTL:  opts.IdleTTL,
		now:      opts.Now,
	}
}

// InProgress reports whether the user has a live dialog. Idle sessions are
// reclaimed here, so a stale slot never captures new input.
func (e *Engine) InProgress(userID int64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.sessions[userID]
	if !ok {
		return false
	}
	if e.now().Sub(s.lastActive) > e.idleTTL {
		delete(e.sessions, userID)
		return false
	}
	return true
}

// StartOrder opens (or restarts from scratch) the order dialog against the
// given shop. Re-invoking the entry point never merges with a previous
// half-finished dialog.
func (e *Engine) StartOrder(ctx context.Context, userID, shopID int64) (string, error) {
	shop, err := e.store.GetShop(ctx, shopID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "This shop does not exist.", nil
		}
		return "", err
	}
	if !e.clock.IsActive(ctx, shopID) {
		return fmt.Sprintf("%s is currently unavailable.", shop.Name), nil
	}

	e.replace(&session{
		userID:     userID,
		shopID:     shopID,
		state:      StateCollectName,
		lastActive: e.now(),
	})
	logger.Info(ctx, "session", "order.started",
		slog.Int64("user_id", userID),
		slog.Int64("shop_id", shopID),
	)
	return fmt.Sprintf("Welcome to %s! What is your name?", shop.Name), nil
}

// StartSubscription opens the subscription payment dialog for a shop owner.
func (e *Engine) StartSubscription(ctx context.Context, userID int64) (string, error) {
	if _, err := e.store.GetShop(ctx, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "Create a shop first with /shop.", nil
		}
		return "", err
	}
	e.replace(&session{
		userID:     userID,
		shopID:     userID,
		state:      StateSubAwaitProof,
		lastActive: e.now(),
	})
	logger.Info(ctx, "session", "subscription.started", slog.Int64("user_id", userID))
	return "Send a photo of your payment receipt to extend the subscription, or type cancel.", nil
}

// Cancel drops the user's dialog if one exists.
func (e *Engine) Cancel(userID int64) (string, bool) {
	e.mu.Lock()
	_, ok := e.sessions[userID]
	delete(e.sessions, userID)
	e.mu.Unlock()
	if !ok {
		return "Nothing to cancel.", false
	}
	return "Cancelled.", true
}

// HandleText advances the user's dialog with one inbound text message and
// returns the reply to send.
func (e *Engine) HandleText(ctx context.Context, userID int64, text string) (string, error) {
	s := e.slot(userID)
	if s == nil {
		return "", nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActive = e.now()

	cmd := ParseCommand(text)
	if cmd.Kind == Cancel {
		reply, _ := e.Cancel(userID)
		return reply, nil
	}

	switch s.state {
	case StateCollectName:
		s.name = cmd.Text
		s.state = StateCollectPhone
		return "Your phone number?", nil
	case StateCollectPhone:
		s.phone = cmd.Text
		s.state = StateCollectAddress
		return "Delivery address?", nil
	case StateCollectAddress:
		s.address = cmd.Text
		s.state = StateShopping
		return "Add items as name:price. Type cart to review, checkout to finish, cancel to abort.", nil
	case StateShopping:
		return e.handleShopping(s, cmd), nil
	case StateAwaitProof, StateSubAwaitProof:
		return "Send a photo of the payment receipt, or type cancel.", nil
	default:
		return "", fmt.Errorf("session for %d in unknown state %q", userID, s.state)
	}
}

func (e *Engine) handleShopping(s *session, cmd Command) string {
	switch cmd.Kind {
	case CartAdd:
		s.cart.Add(cmd.Name, cmd.Price)
		return fmt.Sprintf("Added %s. Cart total: %d.", cmd.Name, s.cart.Total())
	case ViewCart:
		return s.cart.Summary()
	case Checkout:
		if s.cart.Len() == 0 {
			return "Cart is empty. Add items as name:price first."
		}
		s.state = StateAwaitProof
		return "Send a photo of the payment receipt to place the order."
	default:
		return "Add items as name:price. Type cart to review, checkout to finish, cancel to abort."
	}
}

// HandlePhoto consumes an uploaded proof image. In a proof-awaiting state it
// stores the blob, writes the order/payment pair, hands the submission to the
// approval dispatcher and drops the dialog. A failed blob save keeps the state
// so the user can retry.
func (e *Engine) HandlePhoto(ctx context.Context, userID int64, photo io.Reader) (string, error) {
	s := e.slot(userID)
	if s == nil {
		return "", nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActive = e.now()

	switch s.state {
	case StateAwaitProof:
		return e.submitOrder(ctx, s, photo)
	case StateSubAwaitProof:
		return e.submitSubscription(ctx, s, photo)
	default:
		return "Not expecting a photo right now.", nil
	}
}

func (e *Engine) submitOrder(ctx context.Context, s *session, photo io.Reader) (string, error) {
	path, err := e.blobs.Save(s.userID, photo)
	if err != nil {
		logger.Error(ctx, "session", "artifact.save_failed",
			slog.Int64("user_id", s.userID),
			slog.String("err", err.Error()),
		)
		return "Could not store the receipt, please send the photo again.", nil
	}

	order := &store.Order{
		ShopID:       s.shopID,
		BuyerID:      s.userID,
		BuyerName:    s.name,
		BuyerPhone:   s.phone,
		BuyerAddress: s.address,
		Items:        s.cart.Summary(),
		Total:        s.cart.Total(),
		ProofPath:    sql.NullString{String: path, Valid: true},
	}
	orderID, err := e.store.CreateOrder(ctx, order)
	if err != nil {
		return "", err
	}
	paymentID, err := e.store.CreatePayment(ctx, &store.Payment{
		Kind:      store.KindOrder,
		OrderID:   sql.NullInt64{Int64: orderID, Valid: true},
		ShopID:    s.shopID,
		PayerID:   s.userID,
		ProofPath: sql.NullString{String: path, Valid: true},
	})
	if err != nil {
		return "", err
	}

	sub := approval.Submission{
		Kind:      store.KindOrder,
		PaymentID: paymentID,
		OrderID:   orderID,
		ShopID:    s.shopID,
		Submitter: s.userID,
		Artifact:  path,
		Caption: fmt.Sprintf("Order #%d\n%s\nPhone: %s\nAddress: %s\n%s",
			orderID, s.name, s.phone, s.address, s.cart.Summary()),
	}
	if err := e.submit(ctx, sub); err != nil {
		logger.Warn(ctx, "session", "submission.delivery_failed",
			slog.Int64("order_id", orderID),
			slog.Int64("payment_id", paymentID),
			slog.String("err", err.Error()),
		)
	}

	e.drop(s.userID)
	logger.Info(ctx, "session", "order.submitted",
		slog.Int64("user_id", s.userID),
		slog.Int64("shop_id", s.shopID),
		slog.Int64("order_id", orderID),
		slog.Int64("payment_id", paymentID),
	)
	return fmt.Sprintf("Order #%d submitted. You will be notified once the shop reviews it.", orderID), nil
}

func (e *Engine) submitSubscription(ctx context.Context, s *session, photo io.Reader) (string, error) {
	path, err := e.blobs.Save(s.userID, photo)
	if err != nil {
		logger.Error(ctx, "session", "artifact.save_failed",
			slog.Int64("user_id", s.userID),
			slog.String("err", err.Error()),
		)
		return "Could not store the receipt, please send the photo again.", nil
	}

	paymentID, err := e.store.CreatePayment(ctx, &store.Payment{
		Kind:      store.KindSubscription,
		ShopID:    s.shopID,
		PayerID:   s.userID,
		ProofPath: sql.NullString{String: path, Valid: true},
	})
	if err != nil {
		return "", err
	}

	sub := approval.Submission{
		Kind:      store.KindSubscription,
		PaymentID: paymentID,
		ShopID:    s.shopID,
		Submitter: s.userID,
		Artifact:  path,
		Caption:   fmt.Sprintf("Subscription payment #%d from shop %d", paymentID, s.shopID),
	}
	if err := e.submit(ctx, sub); err != nil {
		logger.Warn(ctx, "session", "submission.delivery_failed",
			slog.Int64("payment_id", paymentID),
			slog.String("err", err.Error()),
		)
	}

	e.drop(s.userID)
	logger.Info(ctx, "session", "subscription.submitted",
		slog.Int64("user_id", s.userID),
		slog.Int64("payment_id", paymentID),
	)
	return "Payment submitted. You will be notified once it is reviewed.", nil
}

func (e *Engine) replace(s *session) {
	e.mu.Lock()
	e.sessions[s.userID] = s
	e.mu.Unlock()
}

func (e *Engine) slot(userID int64) *session {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sessions[userID]
}

func (e *Engine) drop(userID int64) {
	e.mu.Lock()
	delete(e.sessions, userID)
	e.mu.Unlock()
}

// StateOf exposes the current state for tests and diagnostics.
func (e *Engine) StateOf(userID int64) (State, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.sessions[userID]
	if !ok {
		return "", false
	}
	return s.state, true
}
