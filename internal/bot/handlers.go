package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/marketlink/marketlink/core/logger"
	"github.com/marketlink/marketlink/core/telegram/commands"
	tghelpers "github.com/marketlink/marketlink/core/telegram/helpers"
	"github.com/marketlink/marketlink/core/telegram/keyboard"
	"github.com/marketlink/marketlink/internal/session"
	"github.com/marketlink/marketlink/internal/store"
	"github.com/marketlink/marketlink/internal/subscription"
	"log/slog"
)

func contextOf(c tele.Context) context.Context {
	return tghelpers.BuildContext(c)
}

// sendDialogReply sends a dialog reply with a keyboard matching the user's
// current step: shortcut buttons while shopping, none once the dialog ends.
func (a *App) sendDialogReply(c tele.Context, reply string, err error) error {
	if err != nil || reply == "" {
		return sendReply(c, reply, err)
	}
	state, inProgress := a.engine.StateOf(c.Sender().ID)
	switch {
	case inProgress && state == session.StateShopping:
		return tghelpers.SendText(c, reply, &tele.SendOptions{
			ReplyMarkup: keyboard.ReplyButtons(
				[]string{"cart", "checkout"},
				[]string{"cancel"},
			),
		})
	case !inProgress:
		return tghelpers.SendText(c, reply, &tele.SendOptions{
			ReplyMarkup: keyboard.RemoveKeyboard(),
		})
	default:
		return tghelpers.SendText(c, reply)
	}
}

func sendReply(c tele.Context, reply string, err error) error {
	if err != nil {
		logger.Error(contextOf(c), "bot", "handler.failed",
			slog.Int64("user_id", c.Sender().ID),
			slog.String("err", err.Error()),
		)
		return tghelpers.SendText(c, "Something went wrong, please try again.")
	}
	if reply == "" {
		return nil
	}
	return tghelpers.SendText(c, reply)
}

func (a *App) registerCommands() {
	reg := a.registry
	reg.RegisterCommand("/start", commands.Command{
		Handler:     a.handleStart,
		Description: "Open a shop link or show help",
	})
	reg.RegisterCommand("/shop", commands.Command{
		Handler:     a.handleShopCreate,
		Description: "Create your shop",
	})
	reg.RegisterCommand("/myshop", commands.Command{
		Handler:     a.handleMyShop,
		Description: "Show your shop status",
	})
	reg.RegisterCommand("/sharelink", commands.Command{
		Handler:     a.handleShareLink,
		Description: "Get your shop's order link",
	})
	reg.RegisterCommand("/addproduct", commands.Command{
		Handler:     a.handleAddProduct,
		Description: "Add a product as name:price",
	})
	reg.RegisterCommand("/products", commands.Command{
		Handler:     a.handleProducts,
		Description: "List your products",
	})
	reg.RegisterCommand("/delproduct", commands.Command{
		Handler:     a.handleDelProduct,
		Description: "Delete a product by id",
	})
	reg.RegisterCommand("/addlink", commands.Command{
		Handler:     a.handleAddLink,
		Description: "Attach a link: title url",
	})
	reg.RegisterCommand("/links", commands.Command{
		Handler:     a.handleLinks,
		Description: "List your shop links",
	})
	reg.RegisterCommand("/dellink", commands.Command{
		Handler:     a.handleDelLink,
		Description: "Delete a link by id",
	})
	reg.RegisterCommand("/orders", commands.Command{
		Handler:     a.handleOrders,
		Description: "Show recent orders of your shop",
	})
	reg.RegisterCommand("/subscribe", commands.Command{
		Handler:     a.handleSubscribe,
		Description: "Extend your shop subscription",
	})
	reg.RegisterCommand("/cancel", commands.Command{
		Handler:     a.handleCancel,
		Description: "Abort the current dialog",
	})
	reg.RegisterCommand("/sweep", commands.Command{
		Handler:     a.handleSweep,
		Description: "Run the artifact retention sweep now",
		AdminOnly:   true,
		Hidden:      true,
	})

	reg.SetTextFallback(func(c tele.Context) error {
		return tghelpers.SendText(c, "Unknown command. Use /start, or open a shop link to place an order.")
	})
}

func (a *App) handleStart(c tele.Context) error {
	ctx := contextOf(c)
	payload := strings.TrimSpace(c.Message().Payload)
	if payload == "" {
		return tghelpers.SendText(c,
			"Welcome! Open a shop link to place an order, or create your own shop with /shop <name>.")
	}
	shopID, err := strconv.ParseInt(payload, 10, 64)
	if err != nil {
		return tghelpers.SendText(c, "That shop link looks broken.")
	}
	reply, err := a.engine.StartOrder(ctx, c.Sender().ID, shopID)
	return sendReply(c, reply, err)
}

func (a *App) handleShopCreate(c tele.Context) error {
	ctx := contextOf(c)
	ownerID := c.Sender().ID

	name := strings.TrimSpace(c.Message().Payload)
	if name == "" {
		// Explicit fallback branch: an unnamed shop takes the sender's first name.
		name = strings.TrimSpace(c.Sender().FirstName)
	}
	if name == "" {
		return tghelpers.SendText(c, "Usage: /shop <name>")
	}

	expiry := ""
	if existing, err := a.store.GetShop(ctx, ownerID); err == nil {
		expiry = existing.ExpiresAt
	} else if errors.Is(err, store.ErrNotFound) {
		expiry = time.Now().AddDate(0, 0, a.cfg.Marketplace.TrialDays).Format(subscription.DateLayout)
	} else {
		return sendReply(c, "", err)
	}

	if err := a.store.UpsertShop(ctx, &store.Shop{OwnerID: ownerID, Name: name, ExpiresAt: expiry}); err != nil {
		return sendReply(c, "", err)
	}
	logger.Info(ctx, "bot", "shop.saved",
		slog.Int64("shop_id", ownerID),
		slog.String("expires_at", expiry),
	)
	return tghelpers.SendText(c, fmt.Sprintf(
		"Shop %q saved. Trial active until %s. Share your link with /sharelink.", name, expiry))
}

func (a *App) handleMyShop(c tele.Context) error {
	ctx := contextOf(c)
	shop, err := a.store.GetShop(ctx, c.Sender().ID)
	if errors.Is(err, store.ErrNotFound) {
		return tghelpers.SendText(c, "You have no shop yet. Create one with /shop <name>.")
	}
	if err != nil {
		return sendReply(c, "", err)
	}

	status := "expired, renew with /subscribe"
	if a.clock.IsActive(ctx, shop.OwnerID) {
		status = "active"
	}
	return tghelpers.SendMD(c, fmt.Sprintf(
		"*%s*\nSubscription: %s\nExpires: %s", shop.Name, status, shop.ExpiresAt))
}

func (a *App) handleShareLink(c tele.Context) error {
	ctx := contextOf(c)
	if _, err := a.store.GetShop(ctx, c.Sender().ID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return tghelpers.SendText(c, "You have no shop yet. Create one with /shop <name>.")
		}
		return sendReply(c, "", err)
	}
	link := fmt.Sprintf("https://t.me/%s?start=%d", c.Bot().(*tele.Bot).Me.Username, c.Sender().ID)
	return tghelpers.SendText(c, "Customers can order here:\n"+link)
}

func (a *App) handleAddProduct(c tele.Context) error {
	ctx := contextOf(c)
	cmd := session.ParseCommand(c.Message().Payload)
	if cmd.Kind != session.CartAdd {
		return tghelpers.SendText(c, "Usage: /addproduct <name>:<price>")
	}
	id, err := a.store.AddProduct(ctx, &store.Product{
		OwnerID: c.Sender().ID,
		Name:    cmd.Name,
		Price:   cmd.Price,
	})
	if err != nil {
		return sendReply(c, "", err)
	}
	return tghelpers.SendText(c, fmt.Sprintf("Product #%d added: %s for %d.", id, cmd.Name, cmd.Price))
}

func (a *App) handleProducts(c tele.Context) error {
	ctx := contextOf(c)
	list, err := a.store.ListProducts(ctx, c.Sender().ID)
	if err != nil {
		return sendReply(c, "", err)
	}
	if len(list) == 0 {
		return tghelpers.SendText(c, "No products yet. Add one with /addproduct <name>:<price>.")
	}
	var b strings.Builder
	for _, p := range list {
		fmt.Fprintf(&b, "#%d %s - %d\n", p.ID, p.Name, p.Price)
	}
	return tghelpers.SendText(c, strings.TrimRight(b.String(), "\n"))
}

func (a *App) handleDelProduct(c tele.Context) error {
	ctx := contextOf(c)
	id, err := strconv.ParseInt(strings.TrimSpace(c.Message().Payload), 10, 64)
	if err != nil {
		return tghelpers.SendText(c, "Usage: /delproduct <id>")
	}
	ok, err := a.store.DeleteProduct(ctx, c.Sender().ID, id)
	if err != nil {
		return sendReply(c, "", err)
	}
	if !ok {
		return tghelpers.SendText(c, "No such product in your shop.")
	}
	return tghelpers.SendText(c, fmt.Sprintf("Product #%d deleted.", id))
}

func (a *App) handleAddLink(c tele.Context) error {
	ctx := contextOf(c)
	fields := strings.Fields(c.Message().Payload)
	if len(fields) < 2 {
		return tghelpers.SendText(c, "Usage: /addlink <title> <url>")
	}
	url := fields[len(fields)-1]
	title := strings.Join(fields[:len(fields)-1], " ")
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return tghelpers.SendText(c, "The URL must start with http:// or https://")
	}
	id, err := a.store.AddLink(ctx, &store.Link{OwnerID: c.Sender().ID, Title: title, URL: url})
	if err != nil {
		return sendReply(c, "", err)
	}
	return tghelpers.SendText(c, fmt.Sprintf("Link #%d added.", id))
}

func (a *App) handleLinks(c tele.Context) error {
	ctx := contextOf(c)
	list, err := a.store.ListLinks(ctx, c.Sender().ID)
	if err != nil {
		return sendReply(c, "", err)
	}
	if len(list) == 0 {
		return tghelpers.SendText(c, "No links yet. Add one with /addlink <title> <url>.")
	}
	var b strings.Builder
	for _, l := range list {
		fmt.Fprintf(&b, "#%d %s: %s\n", l.ID, l.Title, l.URL)
	}
	return tghelpers.SendText(c, strings.TrimRight(b.String(), "\n"))
}

func (a *App) handleDelLink(c tele.Context) error {
	ctx := contextOf(c)
	id, err := strconv.ParseInt(strings.TrimSpace(c.Message().Payload), 10, 64)
	if err != nil {
		return tghelpers.SendText(c, "Usage: /dellink <id>")
	}
	ok, err := a.store.DeleteLink(ctx, c.Sender().ID, id)
	if err != nil {
		return sendReply(c, "", err)
	}
	if !ok {
		return tghelpers.SendText(c, "No such link in your shop.")
	}
	return tghelpers.SendText(c, fmt.Sprintf("Link #%d deleted.", id))
}

func (a *App) handleOrders(c tele.Context) error {
	ctx := contextOf(c)
	list, err := a.store.ListOrdersByShop(ctx, c.Sender().ID, 10)
	if err != nil {
		return sendReply(c, "", err)
	}
	if len(list) == 0 {
		return tghelpers.SendText(c, "No orders yet.")
	}
	var b strings.Builder
	for _, o := range list {
		fmt.Fprintf(&b, "#%d %s, total %d (%s)\n", o.ID, o.BuyerName, o.Total, o.Status)
	}
	return tghelpers.SendText(c, strings.TrimRight(b.String(), "\n"))
}

func (a *App) handleSubscribe(c tele.Context) error {
	ctx := contextOf(c)
	reply, err := a.engine.StartSubscription(ctx, c.Sender().ID)
	return sendReply(c, reply, err)
}

func (a *App) handleCancel(c tele.Context) error {
	reply, _ := a.engine.Cancel(c.Sender().ID)
	return tghelpers.SendText(c, reply, &tele.SendOptions{
		ReplyMarkup: keyboard.RemoveKeyboard(),
	})
}

func (a *App) handleSweep(c tele.Context) error {
	a.sweeper.Sweep(contextOf(c))
	return tghelpers.SendText(c, "Retention sweep finished.")
}
