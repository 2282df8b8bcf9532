package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/IBM/sarama"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"kanbanServer/backend/config"
	"kanbanServer/backend/internal/authservice"
	"kanbanServer/backend/internal/cache"
	"kanbanServer/backend/internal/events"
	"kanbanServer/backend/internal/httpapi/handlers"
	"kanbanServer/backend/internal/httpapi/middleware"
	"kanbanServer/backend/internal/model"
	"kanbanServer/backend/internal/order"
	"kanbanServer/backend/internal/realtime"
	"kanbanServer/backend/internal/semaphore"
	"kanbanServer/backend/internal/store"
	"kanbanServer/backend/internal/ws"
)

type boardStore interface {
	realtime.Store
	handlers.Snapshotter
}

func setupLogging(level string) {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	if os.Getenv("DEBUG") != "" {
		level = "debug"
	}
	lvl, err := log.ParseLevel(level)
	if err != nil {
		log.WithError(err).Warn("unknown log level, using info")
		lvl = log.InfoLevel
	}
	log.SetLevel(lvl)
}

func openStore(dsn string) (boardStore, error) {
	if dsn == "" {
		log.Warn("Mysql.dsn is empty, boards are kept in memory")
		mem := store.NewMemoryStore()
		// a board to open right away in development
		if _, err := mem.CreateBoard(context.Background(), model.Board{ID: "demo", Title: "Demo board"}); err != nil {
			return nil, err
		}
		return mem, nil
	}
	db, err := store.InitMySQL(dsn)
	if err != nil {
		return nil, err
	}
	gs := store.NewGormStore(db)
	if err := gs.AutoMigrate(); err != nil {
		return nil, err
	}
	return gs, nil
}

func main() {
	cfg, err := config.Load("boardConfig", os.Getenv("BOARD_CONFIG"))
	if err != nil {
		log.Fatalf("init config failed: %v", err)
	}
	setupLogging(cfg.Log.Level)
	log.WithField("port", cfg.Running.Port).Info("board server starting")

	st, err := openStore(cfg.Mysql.DSN)
	if err != nil {
		log.Fatalf("open store: %v", err)
	}

	opts := realtime.Options{
		Order:          order.New(cfg.Realtime.Step, cfg.Realtime.Epsilon),
		PersistTimeout: cfg.Realtime.PersistTimeout,
		MaxInflight:    cfg.Realtime.MaxInflight,
		PresenceTTL:    cfg.Realtime.PresenceTTL,
	}

	var presence *cache.RedisPresence
	if len(cfg.Redis.Addrs) > 0 {
		rdb := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    cfg.Redis.Addrs,
			Password: cfg.Redis.Password,
		})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			log.Fatalf("Failed to connect to redis: %v", err)
		}
		defer rdb.Close()
		presence = cache.NewRedisPresence(rdb)
		opts.Mirror = presence
	}

	var dispatcher *events.KafkaDispatcher
	if len(cfg.Kafka.Brokers) > 0 {
		producer, err := events.NewSyncProducer(cfg.Kafka.Brokers)
		if err != nil {
			log.Fatalf("Failed to connect kafka: %v", err)
		}
		defer func(p sarama.SyncProducer) { _ = p.Close() }(producer)
		dispatcher = events.NewKafkaDispatcher(producer, cfg.Kafka.Topic, semaphore.New(0), events.KafkaDispatcherOptions{
			QueueSize:   10_000,
			Workers:     4,
			MaxRetry:    3,
			BaseBackoff: 50 * time.Millisecond,
			MaxBackoff:  time.Second,
		})
		opts.Publisher = dispatcher
	}

	svc := realtime.NewService(st, opts)
	manager := ws.NewManager(svc, ws.Options{
		SendQueue:      cfg.Realtime.SendQueue,
		AllowedOrigins: cfg.Realtime.AllowedOrigins,
	})

	var verifier middleware.Verifier
	if cfg.Auth.Secret != "" {
		verifier = authservice.NewTokens(cfg.Auth.Secret)
	} else {
		verifier = middleware.NewRemoteVerifier(cfg.Auth.Path)
	}

	var online handlers.OnlineSource = handlers.OnlineFunc(svc.Presence().Members)
	if presence != nil {
		online = presence
	}
	boardHandler := handlers.NewBoardHandler(st, online)

	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	r.Use(cors.New(cors.Config{
		AllowOriginFunc:  manager.AllowOrigin,
		AllowMethods:     []string{http.MethodGet, http.MethodOptions},
		AllowHeaders:     []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	board := r.Group("/board")
	board.GET("/healthz", handlers.Healthz)
	// Authorization header or ?token=, verified before any handler runs
	authed := board.Group("", middleware.AuthMiddleware(verifier))
	authed.GET("/ws", manager.WebSocketConnect)
	authed.GET("/boards/:boardID", boardHandler.GetBoard)
	authed.GET("/boards/:boardID/online", boardHandler.GetOnline)

	srv := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Running.Port), Handler: r}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
	if dispatcher != nil {
		dispatcher.Close()
	}
}
