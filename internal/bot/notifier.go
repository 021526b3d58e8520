package bot

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	tele "gopkg.in/telebot.v4"

	"github.com/marketlink/marketlink/core/telegram/keyboard"
	tgsender "github.com/marketlink/marketlink/core/telegram/sender"
	"github.com/marketlink/marketlink/internal/approval"
)

// telegramNotifier delivers approval traffic over the bot API. It is built
// before the bot exists and bound to it on startup.
type telegramNotifier struct {
	bot        atomic.Pointer[tele.Bot]
	dispatcher atomic.Pointer[tgsender.Dispatcher]
}

var errNotBound = errors.New("bot not started yet")

func (n *telegramNotifier) bind(b *tele.Bot, d *tgsender.Dispatcher) {
	n.bot.Store(b)
	n.dispatcher.Store(d)
}

func (n *telegramNotifier) send(ctx context.Context, action string, run func() error) error {
	if d := n.dispatcher.Load(); d != nil {
		if err := d.Enqueue(ctx, action, "sendMessage", run); err == nil {
			return nil
		}
	}
	return run()
}

// SendDecisionRequest posts the proof photo with approve/reject buttons to
// the approver's private chat.
func (n *telegramNotifier) SendDecisionRequest(ctx context.Context, approverID int64, sub approval.Submission) error {
	b := n.bot.Load()
	if b == nil {
		return errNotBound
	}

	payload := approval.EncodePayload(sub)
	markup := keyboard.InlineButtonsRows([]keyboard.InlineBtn{
		{Text: "Approve", Unique: callbackApprove, Data: payload},
		{Text: "Reject", Unique: callbackReject, Data: payload},
	})

	photo := &tele.Photo{
		File:    tele.FromDisk(sub.Artifact),
		Caption: sub.Caption,
	}
	recipient := &tele.User{ID: approverID}
	return n.send(ctx, "send.decision_request", func() error {
		_, err := b.Send(recipient, photo, markup)
		if err != nil {
			return fmt.Errorf("send decision request to %d: %w", approverID, err)
		}
		return nil
	})
}

// Notify sends a plain-text verdict to the submitter.
func (n *telegramNotifier) Notify(ctx context.Context, userID int64, text string) error {
	b := n.bot.Load()
	if b == nil {
		return errNotBound
	}
	recipient := &tele.User{ID: userID}
	return n.send(ctx, "send.notify", func() error {
		_, err := b.Send(recipient, text)
		return err
	})
}
