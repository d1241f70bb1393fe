package main

import (
	"context"
	"embed"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/template/django/v3"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
	accounts "github.com/versehub/go-accounts"
	"github.com/versehub/go-accounts/activitymap"
	"github.com/versehub/go-accounts/config"
	"github.com/versehub/go-accounts/content"
	"github.com/versehub/go-accounts/liveness"
	"github.com/versehub/go-accounts/metrics"
	"github.com/versehub/go-accounts/notify"
)

//go:embed views
var viewsFS embed.FS

const shutdownTimeout = 10 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	cfg, err := config.Load(args)
	if err != nil {
		return err
	}

	slogger := newSlog(cfg.Log)
	logger := accounts.NewSlogLogger(slogger)

	if cfg.Server.Debug {
		fmt.Println(print.MaybePrettyJSON(cfg.Masked()))
	}

	db, err := accounts.OpenDB(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := accounts.Migrate(ctx, db, logger); err != nil {
		return err
	}

	storeOpts := []accounts.BunStoreOption{}
	if path := sqliteFile(cfg.Database.Driver, cfg.Database.DSN); path != "" {
		storeOpts = append(storeOpts, accounts.WithStoreDataFile(path))
	}
	store := accounts.NewBunStore(db, storeOpts...)

	engine, err := newViewEngine()
	if err != nil {
		return err
	}

	notifier, closeNotifier, err := newNotifier(cfg, logger, engine != nil)
	if err != nil {
		return err
	}
	defer closeNotifier()

	m := metrics.New()

	deps := accounts.Dependencies{
		Store:    store,
		Hasher:   accounts.NewBcryptHasher(cfg.Accounts.BcryptCost),
		Notifier: notifier,
		Composer: accounts.MessageComposer{
			BaseURL:  cfg.Server.BaseURL,
			Renderer: engine,
		},
		Activity: accounts.MultiActivitySink{
			m,
			activitymap.LogSink(logger),
		},
		Logger:            logger,
		ResetWindow:       cfg.Accounts.ResetWindow,
		NotifyTimeout:     cfg.Notifier.Timeout,
		RequireOTP:        cfg.Accounts.RequireOTP,
		PhoneRegion:       cfg.Accounts.PhoneRegion,
		MinPasswordLength: cfg.Accounts.MinPasswordLength,
	}

	var app *fiber.App
	srv := router.NewFiberAdapter(func(*fiber.App) *fiber.App {
		app = router.DefaultFiberOptions(fiber.New(fiber.Config{
			AppName:               "versehub",
			Views:                 engine,
			DisableStartupMessage: !cfg.Server.Debug,
			EnablePrintRoutes:     cfg.Server.Debug,
		}))
		app.Use(recover.New())
		app.Use(cors.New())
		metrics.RegisterRoutes(app, m)
		return app
	})

	controller := accounts.NewAccountController(deps,
		accounts.WithControllerDebug(cfg.Server.Debug),
		accounts.WithAdminKey(cfg.Server.AdminKey),
		accounts.WithVerifyEmailView("verify_email"),
	)
	accounts.RegisterAccountRoutes(srv.Router(), controller)
	content.RegisterRoutes(srv.Router(), content.NewController(content.NewFileStore(cfg.Content.Dir, logger), logger))

	if cfg.Liveness.Enabled {
		pinger := liveness.New(cfg.Liveness.URL, cfg.Liveness.Interval, liveness.WithLogger(logger))
		go pinger.Run(ctx)
	}

	errs := make(chan error, 1)
	go func() {
		logger.Info("listening on %s", cfg.Server.Addr)
		if err := srv.Serve(cfg.Server.Addr); err != nil {
			errs <- err
		}
	}()

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	return app.ShutdownWithTimeout(shutdownTimeout)
}

func newSlog(cfg config.Log) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func newViewEngine() (*django.Engine, error) {
	sub, err := fs.Sub(viewsFS, "views")
	if err != nil {
		return nil, err
	}
	engine := django.NewFileSystem(http.FS(sub), ".django")
	if err := engine.Load(); err != nil {
		return nil, fmt.Errorf("load views: %w", err)
	}
	return engine, nil
}

func newNotifier(cfg config.Config, logger accounts.Logger, html bool) (accounts.Notifier, func(), error) {
	switch cfg.Notifier.Kind {
	case "smtp":
		smtpCfg := cfg.Notifier.SMTP
		smtpCfg.HTML = html
		return notify.NewSMTPNotifier(smtpCfg, logger), func() {}, nil
	case "kafka":
		n := notify.NewKafkaNotifier(cfg.Notifier.Kafka, logger)
		return n, func() {
			if err := n.Close(); err != nil {
				logger.Warn("closing kafka notifier: %v", err)
			}
		}, nil
	default:
		var w io.Writer = os.Stdout
		closer := func() {}
		if cfg.Notifier.Outbox != "" {
			f, err := os.OpenFile(cfg.Notifier.Outbox, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
			if err != nil {
				return nil, nil, fmt.Errorf("open outbox: %w", err)
			}
			w = f
			closer = func() { _ = f.Close() }
		}
		return notify.NewOutboxNotifier(w, logger), closer, nil
	}
}

// sqliteFile extracts the database file from a sqlite DSN. In-memory
// databases have none.
func sqliteFile(driver, dsn string) string {
	if driver != accounts.DriverSQLite {
		return ""
	}
	path := strings.TrimPrefix(dsn, "file:")
	path, query, _ := strings.Cut(path, "?")
	if path == "" || path == ":memory:" || strings.Contains(query, "mode=memory") {
		return ""
	}
	return path
}
