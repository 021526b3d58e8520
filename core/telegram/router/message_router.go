package router

import (
	"time"

	tg "github.com/marketlink/marketlink/core/telegram"
	"github.com/marketlink/marketlink/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// Sessions is the minimal interface for a per-user dialog engine.
// InProgress reports whether the user currently has an active dialog;
// Handle consumes the update as dialog input.
type Sessions interface {
	InProgress(userID int64) bool
	Handle(c tele.Context) error
}

// MessageOptions controls fallback behaviour for text/photo updates.
type MessageOptions struct {
	UnknownText  tele.HandlerFunc
	UnknownPhoto tele.HandlerFunc
}

// MessageRoutes builds handlers for text and photo routing. Updates from users
// with an active dialog go to the session engine; bare text falls back to
// command lookup and then the registry fallback.
func MessageRoutes(sessions Sessions, reg *tg.Registry, opts MessageOptions) []tg.Route {
	textHandler := func(c tele.Context) error {
		start := time.Now()
		text := c.Text()

		if sessions != nil && c.Sender() != nil && sessions.InProgress(c.Sender().ID) {
			return handleWithSummary(c, "session", start, "", "", func() error {
				return sessions.Handle(c)
			})
		}

		if reg != nil {
			if key, cmd, ok := reg.LookupCommand(text); ok && cmd.Handler != nil {
				name := normalizeHandlerName(key)
				return handleWithSummary(c, name, start, "", "", func() error {
					return cmd.Handler(c)
				})
			}
		}

		if reg != nil {
			if fb := reg.TextFallback(); fb != nil {
				return handleWithSummary(c, "fallback", start, "", "", func() error {
					return fb(c)
				})
			}
		}

		if opts.UnknownText != nil {
			return handleWithSummary(c, "unknown_text", start, "", "", func() error {
				return opts.UnknownText(c)
			})
		}

		logHandlerSummary(c, "unknown_text", start, "skip", "ok", nil)
		return nil
	}

	photoHandler := func(c tele.Context) error {
		start := time.Now()
		if sessions != nil && c.Sender() != nil && sessions.InProgress(c.Sender().ID) {
			return handleWithSummary(c, "session_photo", start, "", "", func() error {
				return sessions.Handle(c)
			})
		}
		if opts.UnknownPhoto != nil {
			return handleWithSummary(c, "unexpected_photo", start, "", "", func() error {
				return opts.UnknownPhoto(c)
			})
		}
		logHandlerSummary(c, "unexpected_photo", start, "skip", "ok", nil)
		return nil
	}

	return []tg.Route{
		{
			Endpoint: tele.OnText,
			Handler:  middleware.RecoverMiddleware(middleware.LoggerMiddleware(textHandler)),
		},
		{
			Endpoint: tele.OnPhoto,
			Handler:  middleware.RecoverMiddleware(middleware.LoggerMiddleware(photoHandler)),
		},
	}
}
