package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/BatmanBruc/bizwatch-bot/internal/config"
	"github.com/BatmanBruc/bizwatch-bot/internal/detector"
	"github.com/BatmanBruc/bizwatch-bot/internal/handlers"
	"github.com/BatmanBruc/bizwatch-bot/internal/logger"
	"github.com/BatmanBruc/bizwatch-bot/internal/metrics"
	"github.com/BatmanBruc/bizwatch-bot/internal/middleware"
	"github.com/BatmanBruc/bizwatch-bot/internal/notifier"
	"github.com/BatmanBruc/bizwatch-bot/internal/referral"
	"github.com/BatmanBruc/bizwatch-bot/internal/scheduler"
	"github.com/BatmanBruc/bizwatch-bot/internal/subscription"
	"github.com/BatmanBruc/bizwatch-bot/store"
	"github.com/BatmanBruc/bizwatch-bot/types"
)

type backend struct {
	users    types.EntitlementStore
	messages types.MessageStore
	payments types.PaymentStore
	conns    types.ConnectionCache
	close    func()
}

func main() {
	cfg, err := config.Load("config.env")
	if err != nil {
		l := logger.New("info", true)
		l.Fatal().Err(err).Msg("invalid configuration")
	}
	log := logger.New(cfg.Logging.Level, cfg.Logging.Pretty)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	be, err := openBackend(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Str("storage", cfg.Storage).Msg("failed to open storage")
	}
	defer be.close()

	m := metrics.New(prometheus.DefaultRegisterer)
	if cfg.MetricsAddr != "" {
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: metrics.Handler(prometheus.DefaultGatherer)}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("metrics server stopped")
			}
		}()
		defer func() {
			shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
			defer done()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	httpClient := &http.Client{
		Timeout: 2 * time.Minute,
	}
	pollTimeout := 50 * time.Second

	b, err := bot.New(
		cfg.Telegram.BotToken,
		bot.WithHTTPClient(pollTimeout, httpClient),
		bot.WithAllowedUpdates(bot.AllowedUpdates{
			"message",
			"callback_query",
			"pre_checkout_query",
			"business_connection",
			"business_message",
			"edited_business_message",
			"deleted_business_messages",
		}),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create bot")
	}
	me, err := b.GetMe(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to get bot info")
	}

	engine := subscription.NewEngine(be.users, be.payments, cfg.Subscription.MainAdminID, log,
		subscription.WithMetrics(m))
	ledger := referral.NewLedger(be.users, engine, log, m)
	notify := notifier.New(b)
	det := detector.New(be.messages, engine, notify, log,
		detector.WithDeleteDelay(cfg.Subscription.DeleteNotifyDelay),
		detector.WithMetrics(m))
	resolver := middleware.NewResolver(be.conns, logger.Component(log, "resolver"))
	mw := middleware.New(resolver, log)

	h := handlers.NewHandlers(handlers.Deps{
		Engine:      engine,
		Ledger:      ledger,
		Detector:    det,
		Messages:    be.messages,
		Resolver:    resolver,
		Notifier:    notify,
		Config:      cfg.Subscription,
		BotUsername: me.Username,
	}, log)

	sweeper := scheduler.NewSweeper(engine, log, scheduler.Config{Interval: cfg.Subscription.SweepInterval})
	sweeper.Start()
	defer sweeper.Stop()

	handlerChain := mw.Recover(mw.BusinessOwner(h.MainHandler))

	b.RegisterHandlerMatchFunc(func(update *models.Update) bool {
		return update.Message != nil
	}, handlerChain)

	b.RegisterHandler(bot.HandlerTypeCallbackQueryData, "", bot.MatchTypePrefix, handlerChain)

	b.RegisterHandlerMatchFunc(func(update *models.Update) bool {
		return update.PreCheckoutQuery != nil
	}, handlerChain)

	b.RegisterHandlerMatchFunc(middleware.IsBusinessUpdate, handlerChain)

	log.Info().Str("bot", me.Username).Str("storage", cfg.Storage).Msg("bot started")
	b.Start(ctx)
	log.Info().Msg("bot stopped")
}

func openBackend(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*backend, error) {
	if cfg.Storage == "memory" {
		log.Warn().Msg("using in-memory storage, data is lost on restart")
		mem := store.NewMemoryStore()
		return &backend{
			users:    mem,
			messages: mem,
			payments: mem,
			conns:    store.NewMemoryConnectionCache(),
			close:    func() {},
		}, nil
	}

	pg, err := store.NewPostgresStore(ctx, cfg.Postgres.DSN)
	if err != nil {
		return nil, err
	}
	rdb, err := store.NewRedisClient(ctx, cfg.Redis.Addr(), cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.Prefix)
	if err != nil {
		pg.Close()
		return nil, err
	}
	return &backend{
		users:    pg,
		messages: pg,
		payments: pg,
		conns:    store.NewRedisConnectionCache(rdb, cfg.Redis.TTL),
		close: func() {
			_ = rdb.Close()
			pg.Close()
		},
	}, nil
}
