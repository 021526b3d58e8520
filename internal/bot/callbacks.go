package bot

import (
	"errors"

	tele "gopkg.in/telebot.v4"

	"github.com/marketlink/marketlink/core/logger"
	"github.com/marketlink/marketlink/core/telegram/callbacks"
	"github.com/marketlink/marketlink/internal/approval"
	"log/slog"
)

const (
	callbackApprove = "approve"
	callbackReject  = "reject"
)

func (a *App) registerCallbacks() {
	_ = a.registry.RegisterCallback(callbackApprove, a.decisionHandler(approval.Approve))
	_ = a.registry.RegisterCallback(callbackReject, a.decisionHandler(approval.Reject))
}

// decisionHandler applies the approver's verdict carried by a decision
// button. Late or duplicate presses are answered without any state change.
func (a *App) decisionHandler(decision approval.Decision) tele.HandlerFunc {
	return func(c tele.Context) error {
		ctx := contextOf(c)
		cb := c.Callback()
		if cb == nil {
			return nil
		}

		payload := callbacks.CallbackPayload(c)
		kind, paymentID, orderID, err := approval.DecodePayload(payload)
		if err != nil {
			logger.Warn(ctx, "approval", "payload.malformed",
				slog.String("payload", payload),
			)
			return c.Respond(&tele.CallbackResponse{Text: "Malformed request."})
		}

		err = a.dispatcher.Decide(ctx, c.Sender().ID, decision, paymentID)
		verdict := "Approved."
		if decision == approval.Reject {
			verdict = "Rejected."
		}
		switch {
		case errors.Is(err, approval.ErrNotFound):
			verdict = "Submission not found."
		case errors.Is(err, approval.ErrAlreadyDecided):
			verdict = "Already decided."
		case errors.Is(err, approval.ErrNotAuthorized):
			return c.Respond(&tele.CallbackResponse{Text: "You are not the approver."})
		case err != nil:
			logger.Error(ctx, "approval", "decision.failed",
				slog.String("kind", kind),
				slog.Int64("payment_id", paymentID),
				slog.Int64("order_id", orderID),
				slog.String("err", err.Error()),
			)
			return c.Respond(&tele.CallbackResponse{Text: "Something went wrong."})
		}

		// Pin the verdict under the proof photo so the request cannot be
		// acted on twice by accident.
		if cb.Message != nil && cb.Message.Caption != "" {
			if err := c.EditCaption(cb.Message.Caption + "\n\n" + verdict); err != nil {
				logger.Debug(ctx, "approval", "caption.edit_failed",
					slog.String("err", err.Error()),
				)
			}
		}
		return c.Respond(&tele.CallbackResponse{Text: verdict})
	}
}
