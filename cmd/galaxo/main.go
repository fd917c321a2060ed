package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/joho/godotenv"

	"galaxo-monitor/config"
	"galaxo-monitor/internal/api"
	"galaxo-monitor/internal/bot"
	"galaxo-monitor/internal/cache"
	"galaxo-monitor/internal/database"
	"galaxo-monitor/internal/logging"
	"galaxo-monitor/internal/merger"
	"galaxo-monitor/internal/metrics"
	"galaxo-monitor/internal/monitor"
	"galaxo-monitor/internal/requester"
	"galaxo-monitor/internal/scraper"
	"galaxo-monitor/internal/storage"
)

func main() {
	// Carregar variáveis de ambiente
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("erro ao carregar configurações", "error", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)
	if envErr != nil {
		logger.Info("arquivo .env não encontrado, usando variáveis de ambiente do sistema")
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("encerrando com erro", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	transport := requester.NewHTTPTransport(scraper.DefaultHeaders(), cfg.FetchConcurrency*2)
	defer transport.Close()

	req, err := requester.New(transport, requester.Options{
		MaxRetries:    cfg.MaxRetries,
		BackoffFactor: cfg.BackoffFactor,
		Timeout:       cfg.RequestTimeout,
		Jitter:        cfg.RetryJitter,
	}, logger, m)
	if err != nil {
		return err
	}

	var historyCache scraper.HistoryCache
	if cfg.RedisAddr != "" {
		client, err := cache.New(ctx, cfg.RedisAddr)
		if err != nil {
			logger.Warn("redis indisponível, histórico sem cache", "addr", cfg.RedisAddr, "error", err)
		} else {
			defer client.Close()
			historyCache = cache.NewHistoryCache(client, cfg.HistoryCacheTTL)
		}
	}

	source := scraper.NewGalaxusClient(req, scraper.Options{
		DetailsURL: cfg.GraphQLURL,
		HistoryURL: cfg.HistoryURL,
		SiteURL:    cfg.SiteURL,
	}, historyCache, logger)

	mg := merger.New(cfg.ChangeThreshold)

	store := storage.New(storage.Options{
		Path:         cfg.DataPath,
		BackupDir:    cfg.BackupDir,
		BackupPrefix: cfg.BackupPrefix,
		Keep:         cfg.BackupKeep,
		Logger:       logger,
		Metrics:      m,
		Recalculate:  mg.Recalculate,
	})
	if err := store.Load(); err != nil {
		return err
	}
	m.Tracked(store.Len())

	mon := monitor.New(store, source, mg, monitor.Options{
		Interval:    cfg.CheckInterval,
		Concurrency: cfg.FetchConcurrency,
	}, logger, m)

	if cfg.DatabasePath != "" {
		db, err := database.New(cfg.DatabasePath, logger)
		if err != nil {
			return err
		}
		defer db.Close()
		mon.SetMirror(db)
	}

	var wg sync.WaitGroup

	if cfg.BotEnabled() {
		telegramBot, err := bot.Init(cfg.TelegramBotToken, logger)
		if err != nil {
			return err
		}
		mon.SetNotifier(bot.NewNotifier(telegramBot, cfg.TelegramChatID, logger))

		commands := bot.New(telegramBot, mon, cfg.TelegramChatID, logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			bot.Listen(ctx, telegramBot, commands)
		}()
	}

	if cfg.APIAddr != "" {
		handler := api.NewHandler(mon, logger, m, cfg.APIRateLimit)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := api.Serve(ctx, cfg.APIAddr, handler.Router(), logger); err != nil {
				logger.Error("erro na API HTTP", "error", err)
				stop()
			}
		}()
	}

	// Iniciar monitoramento; retorna quando o contexto é cancelado
	mon.Start(ctx)

	logger.Info("encerrando...")
	wg.Wait()
	return nil
}
