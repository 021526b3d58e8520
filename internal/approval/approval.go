package approval

import (
	"context"
	"errors"
	"fmt"

	"github.com/marketlink/marketlink/core/logger"
	"github.com/marketlink/marketlink/internal/store"
	"log/slog"
)

// Decision taxonomy surfaced to callback handlers via errors.Is.
var (
	ErrNotFound       = errors.New("approval: submission not found")
	ErrNotAuthorized  = errors.New("approval: actor is not the approver")
	ErrAlreadyDecided = errors.New("approval: submission already decided")
)

// Decision is an approver's verdict on a pending submission.
type Decision string

const (
	Approve Decision = "approve"
	Reject  Decision = "reject"
)

// Submission is a completed checkout or subscription payment awaiting a
// verdict. OrderID is zero for subscription submissions.
type Submission struct {
	Kind      string
	PaymentID int64
	OrderID   int64
	ShopID    int64
	Submitter int64
	Artifact  string
	Caption   string
}

// Store is the repository slice the dispatcher mutates.
type Store interface {
	GetShop(ctx context.Context, ownerID int64) (*store.Shop, error)
	GetPayment(ctx context.Context, id int64) (*store.Payment, error)
	GetOrder(ctx context.Context, id int64) (*store.Order, error)
	UpdatePaymentStatus(ctx context.Context, id int64, status string) (bool, error)
	UpdateOrderStatus(ctx context.Context, id int64, status string) (bool, error)
}

// Extender applies approved subscription time.
type Extender interface {
	Extend(ctx context.Context, ownerID int64, days int) (string, error)
}

// Notifier delivers decision requests to approvers and verdicts to submitters.
type Notifier interface {
	SendDecisionRequest(ctx context.Context, approverID int64, sub Submission) error
	Notify(ctx context.Context, userID int64, text string) error
}

// Dispatcher routes submissions to their approver and applies decisions.
type Dispatcher struct {
	store         Store
	clock         Extender
	notifier      Notifier
	adminID       int64
	extensionDays int
}

// New builds a Dispatcher.
func New(st Store, clock Extender, notifier Notifier, adminID int64, extensionDays int) *Dispatcher {
	return &Dispatcher{
		store:         st,
		clock:         clock,
		notifier:      notifier,
		adminID:       adminID,
		extensionDays: extensionDays,
	}
}

// Approver resolves who must decide the submission: the admin for
// subscriptions, the shop owner for orders when the shop still resolves,
// the admin otherwise.
func (d *Dispatcher) Approver(ctx context.Context, kind string, shopID int64) int64 {
	if kind == store.KindSubscription {
		return d.adminID
	}
	if _, err := d.store.GetShop(ctx, shopID); err == nil {
		return shopID
	}
	return d.adminID
}

// Submit delivers the decision request to the resolved approver.
func (d *Dispatcher) Submit(ctx context.Context, sub Submission) error {
	approver := d.Approver(ctx, sub.Kind, sub.ShopID)
	if err := d.notifier.SendDecisionRequest(ctx, approver, sub); err != nil {
		return fmt.Errorf("deliver decision request for payment %d: %w", sub.PaymentID, err)
	}
	logger.Info(ctx, "approval", "submission.routed",
		slog.String("kind", sub.Kind),
		slog.Int64("payment_id", sub.PaymentID),
		slog.Int64("order_id", sub.OrderID),
		slog.Int64("user_id", approver),
	)
	return nil
}

// Decide applies an approver's verdict to a pending payment. The status
// mutation is committed first; the submitter notification afterwards is
// best-effort and never rolls the mutation back. Late decisions on settled
// payments return ErrAlreadyDecided without touching any record.
func (d *Dispatcher) Decide(ctx context.Context, actorID int64, decision Decision, paymentID int64) error {
	payment, err := d.store.GetPayment(ctx, paymentID)
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("load payment %d: %w", paymentID, err)
	}

	if actorID != d.Approver(ctx, payment.Kind, payment.ShopID) {
		return ErrNotAuthorized
	}
	if payment.Status != store.PaymentPending {
		return ErrAlreadyDecided
	}

	switch payment.Kind {
	case store.KindSubscription:
		return d.decideSubscription(ctx, payment, decision)
	default:
		return d.decideOrder(ctx, payment, decision)
	}
}

func (d *Dispatcher) decideSubscription(ctx context.Context, payment *store.Payment, decision Decision) error {
	status := store.PaymentApproved
	if decision == Reject {
		status = store.PaymentRejected
	}
	claimed, err := d.store.UpdatePaymentStatus(ctx, payment.ID, status)
	if err != nil {
		return err
	}
	if !claimed {
		return ErrAlreadyDecided
	}

	text := "Your subscription payment was rejected."
	if decision == Approve {
		expiry, err := d.clock.Extend(ctx, payment.ShopID, d.extensionDays)
		if err != nil {
			logger.Error(ctx, "approval", "extension.failed",
				slog.Int64("payment_id", payment.ID),
				slog.Int64("shop_id", payment.ShopID),
				slog.String("err", err.Error()),
			)
			return fmt.Errorf("extend shop %d: %w", payment.ShopID, err)
		}
		text = fmt.Sprintf("Subscription approved. Your shop is active until %s.", expiry)
	}

	d.notifySubmitter(ctx, payment.PayerID, payment.ID, text)
	return nil
}

func (d *Dispatcher) decideOrder(ctx context.Context, payment *store.Payment, decision Decision) error {
	if !payment.OrderID.Valid {
		return fmt.Errorf("order payment %d has no order reference", payment.ID)
	}
	orderID := payment.OrderID.Int64

	orderStatus, paymentStatus := store.OrderConfirmed, store.PaymentApproved
	text := fmt.Sprintf("Order #%d confirmed. The shop will contact you shortly.", orderID)
	if decision == Reject {
		orderStatus, paymentStatus = store.OrderRejected, store.PaymentRejected
		text = fmt.Sprintf("Order #%d was rejected by the shop.", orderID)
	}

	claimed, err := d.store.UpdatePaymentStatus(ctx, payment.ID, paymentStatus)
	if err != nil {
		return err
	}
	if !claimed {
		return ErrAlreadyDecided
	}
	if _, err := d.store.UpdateOrderStatus(ctx, orderID, orderStatus); err != nil {
		return err
	}

	d.notifySubmitter(ctx, payment.PayerID, payment.ID, text)
	return nil
}

func (d *Dispatcher) notifySubmitter(ctx context.Context, userID, paymentID int64, text string) {
	if err := d.notifier.Notify(ctx, userID, text); err != nil {
		logger.Warn(ctx, "approval", "notify.failed",
			slog.Int64("payment_id", paymentID),
			slog.Int64("user_id", userID),
			slog.String("err", err.Error()),
		)
	}
}
