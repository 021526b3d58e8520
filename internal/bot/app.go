package bot

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/marketlink/marketlink/core/config"
	"github.com/marketlink/marketlink/core/logger"
	tg "github.com/marketlink/marketlink/core/telegram"
	"github.com/marketlink/marketlink/core/telegram/router"
	"github.com/marketlink/marketlink/internal/approval"
	"github.com/marketlink/marketlink/internal/artifacts"
	"github.com/marketlink/marketlink/internal/retention"
	"github.com/marketlink/marketlink/internal/session"
	"github.com/marketlink/marketlink/internal/store"
	"github.com/marketlink/marketlink/internal/subscription"
	"log/slog"

	tele "gopkg.in/telebot.v4"
)

// App wires the marketplace components onto the Telegram runtime.
type App struct {
	cfg        *config.Config
	store      *store.Store
	blobs      *artifacts.Store
	clock      *subscription.Clock
	engine     *session.Engine
	dispatcher *approval.Dispatcher
	sweeper    *retention.Sweeper
	notifier   *telegramNotifier
	registry   *tg.Registry
}

// New assembles the application over an established database pool.
func New(cfg *config.Config, db *sqlx.DB) (*App, error) {
	st := store.New(db)
	blobs, err := artifacts.NewStore(cfg.Marketplace.ArtifactDir)
	if err != nil {
		return nil, err
	}

	notifier := &telegramNotifier{}
	clock := subscription.NewClock(st, cfg.Telegram.AdminID, nil)
	dispatcher := approval.New(st, clock, notifier, cfg.Telegram.AdminID, cfg.Marketplace.ExtensionDays)
	engine := session.NewEngine(session.Options{
		Store:  st,
		Blobs:  blobs,
		Clock:  clock,
		Submit: dispatcher.Submit,
	})
	sweeper := retention.NewSweeper(st, blobs,
		time.Duration(cfg.Marketplace.RetentionDays)*24*time.Hour, nil)

	app := &App{
		cfg:        cfg,
		store:      st,
		blobs:      blobs,
		clock:      clock,
		engine:     engine,
		dispatcher: dispatcher,
		sweeper:    sweeper,
		notifier:   notifier,
		registry:   tg.NewRegistry(),
	}
	app.registerCommands()
	app.registerCallbacks()
	return app, nil
}

// RunOptions produces the Telegram runtime configuration for this app.
func (a *App) RunOptions() tg.RunOptions {
	routes := router.CommandRoutes(a.registry, router.CommandRouteOptions{
		AdminID: a.cfg.Telegram.AdminID,
	})
	routes = append(routes, router.CallbackRoute(a.registry, router.CallbackOptions{}))
	routes = append(routes, router.MessageRoutes(&sessionGlue{app: a}, a.registry, router.MessageOptions{
		UnknownPhoto: func(c tele.Context) error {
			return c.Send("Not expecting a photo right now.")
		},
	})...)

	return tg.RunOptions{
		Config:      a.cfg,
		Registry:    a.registry,
		Middlewares: tg.DefaultMiddlewares(a.cfg, nil),
		Routes:      routes,
		OnStart: func(ctx context.Context, rt tg.Runtime) error {
			a.notifier.bind(rt.Bot, rt.Dispatcher)
			delay := time.Duration(a.cfg.Marketplace.SweepDelaySeconds) * time.Second
			if err := a.sweeper.Start(ctx, delay); err != nil {
				return fmt.Errorf("start retention sweeper: %w", err)
			}
			logger.Info(ctx, "app", "started",
				slog.Int("commands", len(a.registry.Commands())),
			)
			return nil
		},
		OnStop: func(ctx context.Context, _ tg.Runtime) error {
			a.sweeper.Stop()
			logger.Info(ctx, "app", "stopped")
			return nil
		},
	}
}

// sessionGlue adapts the transport-free engine to the message router: it
// extracts text or downloads the photo, feeds the engine, and sends the reply.
type sessionGlue struct {
	app *App
}

func (g *sessionGlue) InProgress(userID int64) bool {
	return g.app.engine.InProgress(userID)
}

func (g *sessionGlue) Handle(c tele.Context) error {
	ctx := contextOf(c)
	userID := c.Sender().ID

	if photo := c.Message().Photo; photo != nil {
		rc, err := c.Bot().File(&photo.File)
		if err != nil {
			logger.Warn(ctx, "session", "photo.download_failed",
				slog.Int64("user_id", userID),
				slog.String("err", err.Error()),
			)
			return c.Send("Could not read the photo, please send it again.")
		}
		defer rc.Close()

		reply, err := g.app.engine.HandlePhoto(ctx, userID, rc)
		return g.app.sendDialogReply(c, reply, err)
	}

	reply, err := g.app.engine.HandleText(ctx, userID, c.Text())
	return g.app.sendDialogReply(c, reply, err)
}
