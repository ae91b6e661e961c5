package main

import (
	"context"
	"log" // Use standard log only for initial fatal errors before logger is set up

	"newstrader/config"
	"newstrader/internal/adapters/alpacabroker"
	"newstrader/internal/adapters/anthropic"
	"newstrader/internal/adapters/dryrun"
	"newstrader/internal/adapters/logger"
	"newstrader/internal/adapters/rss"
	"newstrader/internal/adapters/slack"
	"newstrader/internal/adapters/sqlite"
	"newstrader/internal/app"
	"newstrader/internal/ports"
	"newstrader/internal/scanner"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}

	// 2. Initialize Logger
	appLogger := logger.NewStdLogger(cfg.LogLevel)
	appLogger.Info(context.Background(), "Logger initialized", map[string]interface{}{"level": cfg.LogLevel.String()})

	// 3. Load Trading Rules
	rulesStore, err := config.NewRulesStore(cfg.RulesPath)
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to load trading rules")
		log.Fatalf("FATAL: Failed to load trading rules: %v", err)
	}
	appLogger.Info(context.Background(), "Trading rules loaded", map[string]interface{}{"path": cfg.RulesPath})

	// 4. Initialize Repository (Database Adapter)
	repo, err := sqlite.NewRepository(sqlite.Config{
		DBPath: cfg.DBPath,
		Logger: appLogger,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize database repository")
		log.Fatalf("FATAL: Failed to initialize database repository: %v", err)
	}
	defer func() {
		if err := repo.Close(); err != nil {
			appLogger.Error(context.Background(), err, "Error closing database repository")
		}
	}()
	appLogger.Info(context.Background(), "Database repository initialized")

	// 5. Initialize Market Data (Alpaca)
	marketData, err := alpacabroker.NewMarketData(alpacabroker.Config{
		APIKey:    cfg.AlpacaAPIKey,
		APISecret: cfg.AlpacaSecretKey,
		BaseURL:   cfg.AlpacaBaseURL,
		Logger:    appLogger,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize market data client")
		log.Fatalf("FATAL: Failed to initialize market data client: %v", err)
	}

	// 6. Initialize Broker (real orders in LIVE mode, simulated fills otherwise)
	var broker ports.BrokerClient
	if cfg.RunMode == config.ModeLive {
		broker, err = alpacabroker.New(alpacabroker.Config{
			APIKey:    cfg.AlpacaAPIKey,
			APISecret: cfg.AlpacaSecretKey,
			BaseURL:   cfg.AlpacaBaseURL,
			Logger:    appLogger,
		})
		if err != nil {
			appLogger.Error(context.Background(), err, "FATAL: Failed to initialize Alpaca broker")
			log.Fatalf("FATAL: Failed to initialize Alpaca broker: %v", err)
		}
	} else {
		broker = dryrun.New(appLogger)
	}
	appLogger.Info(context.Background(), "Broker initialized", map[string]interface{}{"mode": cfg.RunMode})

	// 7. Initialize News Source (RSS) and Classifier (Anthropic)
	newsFetcher, err := rss.NewFetcher(rss.Config{
		Whitelist: cfg.TickerWhitelist,
		Logger:    appLogger,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize RSS fetcher")
		log.Fatalf("FATAL: Failed to initialize RSS fetcher: %v", err)
	}

	classifier, err := anthropic.New(anthropic.Config{
		APIKey:    cfg.AnthropicAPIKey,
		Model:     cfg.AnthropicModel,
		Whitelist: cfg.TickerWhitelist,
		Logger:    appLogger,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize Anthropic classifier")
		log.Fatalf("FATAL: Failed to initialize Anthropic classifier: %v", err)
	}

	// 8. Initialize Notifier (no-op when no webhook is configured)
	notifier := slack.NewNotifier(cfg.SlackWebhookURL, appLogger)
	appLogger.Info(context.Background(), "Slack notifications", map[string]interface{}{"enabled": notifier.Enabled()})

	// 9. Initialize Application Service
	service, err := app.NewService(app.Deps{
		Cfg:        cfg,
		Logger:     appLogger,
		Rules:      rulesStore,
		News:       newsFetcher,
		Classifier: classifier,
		Scanner:    scanner.New(marketData, appLogger),
		Broker:     broker,
		MarketData: marketData,
		EventRepo:  repo,
		SignalRepo: repo,
		OrderRepo:  repo,
		PosRepo:    repo,
		RunRepo:    repo,
		Notifier:   notifier,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize trading service")
		log.Fatalf("FATAL: Failed to initialize trading service: %v", err)
	}
	appLogger.Info(context.Background(), "News trading service initialized")

	// 10. Start the Service (or run a single cycle when RUN_ONCE is set)
	if cfg.RunOnce {
		if _, err := service.RunCycle(context.Background()); err != nil {
			appLogger.Error(context.Background(), err, "Pipeline cycle failed")
			log.Fatalf("FATAL: Pipeline cycle failed: %v", err)
		}
		if err := service.CheckOpenPositions(context.Background()); err != nil {
			appLogger.Error(context.Background(), err, "Position check failed")
			log.Fatalf("FATAL: Position check failed: %v", err)
		}
		appLogger.Info(context.Background(), "Single cycle complete, exiting.")
		return
	}
	if err := service.Start(context.Background()); err != nil {
		appLogger.Error(context.Background(), err, "News trading service exited with error")
		log.Fatalf("FATAL: News trading service exited with error: %v", err)
	}

	appLogger.Info(context.Background(), "Application finished gracefully.")
}
