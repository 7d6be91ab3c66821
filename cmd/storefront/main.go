package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fjod/storefront/internal/api"
	"github.com/fjod/storefront/internal/cart"
	"github.com/fjod/storefront/internal/chat"
	"github.com/fjod/storefront/internal/checkout"
	"github.com/fjod/storefront/internal/events"
	h "github.com/fjod/storefront/internal/http"
	"github.com/fjod/storefront/internal/orders"
	"github.com/fjod/storefront/internal/poller"
	"github.com/fjod/storefront/internal/storage"
	"github.com/fjod/storefront/pkg/config"
	"github.com/fjod/storefront/pkg/logger"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	// .env is optional
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	zap.ReplaceGlobals(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	state, err := openStorage(ctx, cfg, log)
	if err != nil {
		log.Fatal("failed to open storage", zap.String("backend", cfg.StorageBackend), zap.Error(err))
	}
	defer state.Close()
	log.Info("storage ready", zap.String("backend", cfg.StorageBackend))

	client, err := api.NewClient(api.Config{BaseURL: cfg.BackendURL, Timeout: cfg.RequestTimeout}, log)
	if err != nil {
		log.Fatal("failed to create backend client", zap.Error(err))
	}

	bus := events.NewBus()

	cartStore, err := cart.Open(ctx, state, bus, log, cart.WithNotificationTTL(cfg.NotificationTTL))
	if err != nil {
		log.Fatal("failed to open cart", zap.Error(err))
	}
	orderStore, err := orders.Open(ctx, state, bus, log,
		orders.WithRemote(client),
		orders.WithNotificationTTL(cfg.NotificationTTL))
	if err != nil {
		log.Fatal("failed to open order history", zap.Error(err))
	}

	flow := checkout.NewFlow(cartStore, orderStore, client, state, bus, log, checkout.Settings{
		NotificationTTL: cfg.NotificationTTL,
		ConnectingAfter: cfg.ConnectingAfter,
		SlowAfter:       cfg.SlowAfter,
		WhatsAppNumber:  cfg.WhatsAppNumber,
	})
	defer flow.Reset()

	chats := chat.NewRegistry(ctx, client, orderStore, bus, log, chat.Settings{
		PollInterval: cfg.ChatPollInterval,
		ReloadAfter:  cfg.ChatReloadDelay,
	})
	defer chats.Close()

	if brokers := cfg.Brokers(); len(brokers) > 0 {
		reader := poller.NewKafkaReader(brokers, cfg.KafkaTopic, cfg.KafkaGroupID)
		p := poller.NewPaymentPoller(reader, flow, bus, log)
		defer p.Close()
		go p.Run(ctx)
		log.Info("payment events poller started",
			zap.Strings("brokers", brokers),
			zap.String("topic", cfg.KafkaTopic))
	}

	handler := h.NewHandler(h.Deps{
		Cart:    cartStore,
		Orders:  orderStore,
		Flow:    flow,
		Chats:   chats,
		Backend: client,
		Bus:     bus,
		Timeout: cfg.RequestTimeout,
		Logger:  log,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler.Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("storefront starting", zap.String("port", cfg.Port), zap.String("backend_url", cfg.BackendURL))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}
	log.Info("server exited")
}

func openStorage(ctx context.Context, cfg *config.Config, log *zap.Logger) (storage.Store, error) {
	switch cfg.StorageBackend {
	case "memory":
		return storage.NewMemoryStore(), nil

	case "sqlite":
		if dir := filepath.Dir(cfg.SQLitePath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create data dir: %w", err)
			}
		}
		s, err := storage.NewSQLiteStore(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		if err := s.RunMigrations(); err != nil {
			s.Close()
			return nil, err
		}
		log.Info("migrations applied", zap.String("path", cfg.SQLitePath))
		return s, nil

	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       0,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("redis connection failed: %w", err)
		}
		log.Info("redis ping succeeded", zap.String("addr", cfg.RedisAddr))
		return storage.NewRedisStore(client, cfg.StorageNS, cfg.RedisTTL), nil

	case "mongo":
		db, err := storage.OpenMongoDatabase(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, err
		}
		s := storage.NewMongoStore(db, cfg.StorageNS)
		if err := s.CreateIndexes(ctx); err != nil {
			s.Close()
			return nil, err
		}
		return s, nil

	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}
