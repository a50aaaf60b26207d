package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"quickchat/internal/chat/app"
	"quickchat/internal/chat/repository"
	"quickchat/internal/chat/router"
	memberapp "quickchat/internal/member/app"
	memberdomain "quickchat/internal/member/domain"
	memberrepo "quickchat/internal/member/repository"
	"quickchat/pkg/config"
	"quickchat/pkg/database"
	"quickchat/pkg/logger"
	testtool "quickchat/pkg/test_tool"
	"quickchat/pkg/token"

	"github.com/go-redis/redis/v8"
	"github.com/gofiber/fiber/v2"
	fiber_log "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

func main() {
	logger.Log = logger.Initialize(config.EnvConfig.ChatService, config.EnvConfig.ChatServiceLogPath)
	cfg := config.LoadConfig[config.Chat](config.EnvConfig.ChatService, config.EnvConfig.ChatServiceYAMLPath)
	cfg.Defaults()
	if config.EnvConfig.ChatServicePort != "" {
		cfg.Port = config.EnvConfig.ChatServicePort
	}
	if cfg.JWTSecret != "" {
		token.SetSecret(cfg.JWTSecret)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. Mongo (message store)
	uri := fmt.Sprintf("mongodb://%s:%s@%s:%d", cfg.MongoSQL.User, cfg.MongoSQL.Password, cfg.MongoSQL.Host, cfg.MongoSQL.Port)
	mongo, err := database.NewMongoDB(ctx,
		database.Connection{
			ConnectStr:    uri,
			RetryCount:    cfg.MongoSQL.RetryCount,
			RetryInterval: time.Duration(cfg.MongoSQL.RetryInterval),
		},
		cfg.MongoSQL.Database)
	if err != nil {
		logger.Log.Fatal("Unable to connect to mongoDB database after retries",
			zap.String("address", fmt.Sprintf("[%s:%d]", cfg.MongoSQL.Host, cfg.MongoSQL.Port)),
			zap.Error(err))
	}
	defer mongo.Close(context.Background())

	msgRepo := repository.NewMongoMessageRepository(mongo.Database)
	if err := msgRepo.EnsureIndexes(ctx); err != nil {
		logger.Log.Fatal("ensure message indexes", zap.Error(err))
	}

	// 2. PostgreSQL (member directory)
	pgURI := fmt.Sprintf("postgres://%s:%s@%s:%d/%s",
		cfg.PostgreSQL.User, cfg.PostgreSQL.Password, cfg.PostgreSQL.Host, cfg.PostgreSQL.Port, cfg.PostgreSQL.Database)
	pool, err := database.NewDatabaseConnection(ctx, database.Connection{
		ConnectStr:    pgURI,
		RetryCount:    cfg.PostgreSQL.RetryCount,
		RetryInterval: time.Duration(cfg.PostgreSQL.RetryInterval),
	})
	if err != nil {
		logger.Log.Fatal("Unable to connect to postgreSQL database after retries",
			zap.String("address", fmt.Sprintf("[%s:%d]", cfg.PostgreSQL.Host, cfg.PostgreSQL.Port)),
			zap.Error(err))
	}
	defer pool.Close()

	// 3. Redis (member cache, session check, cross instance relay)
	redisClient := connectRedis(cfg.Redis)
	defer redisClient.Close()

	var sessions database.RedisRepository[memberdomain.MemberSession]
	if cfg.Redis.SessionCheck {
		sessions = database.NewRedisRepository[memberdomain.MemberSession](redisClient, "session:")
	}
	memberUC := memberapp.NewMemberUseCase(
		memberrepo.NewMemberRepository(pool),
		database.NewRedisRepository[memberdomain.Member](redisClient, "member:"),
		cfg.Redis.MemberTTL,
		sessions,
	)

	// 4. MinIO (optional image upload)
	var images repository.ImageStore
	if cfg.MinIO.Endpoint != "" {
		mc, err := database.NewMinIOConnection(ctx, database.MinIOConnection{
			Endpoint:      cfg.MinIO.Endpoint,
			User:          cfg.MinIO.User,
			Password:      cfg.MinIO.Password,
			BucketName:    cfg.MinIO.Bucket,
			UseSSL:        cfg.MinIO.UseSSL,
			RetryCount:    cfg.MinIO.RetryCount,
			RetryInterval: time.Duration(cfg.MinIO.RetryInterval),
		})
		if err != nil {
			logger.Log.Fatal("connect minio", zap.Error(err))
		}
		images = repository.NewMinIOImageStore(mc, cfg.MinIO.PublicURL)
	}

	// 5. Activity stream
	events := newEventPublisher(ctx, cfg.Events)
	defer events.Close()

	// 6. Realtime
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := app.NewMetrics(reg)

	var relay app.Relay
	if cfg.Redis.Relay {
		relay = repository.NewRedisPubSub(redisClient)
	}
	hub := app.NewHub(metrics, relay)

	messageUC := app.NewMessageUseCase(app.MessageDeps{
		Repo:         msgRepo,
		Members:      memberUC,
		Emitter:      hub,
		Images:       images,
		Events:       events,
		Metrics:      metrics,
		EchoToSender: cfg.Realtime.EchoToSender,
	})

	// 7. Health
	if cfg.GRPCPort != "" {
		hs, err := database.NewHealthServer(":" + cfg.GRPCPort)
		if err != nil {
			logger.Log.Fatal("listen health server", zap.Error(err))
		}
		go hs.Watch(ctx, "chat", 15*time.Second, map[string]database.Pinger{
			"mongo": mongo,
			"redis": database.PingFunc(func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }),
			"pg":    database.PingFunc(pool.Ping),
		})
		go func() {
			if err := hs.Serve(); err != nil {
				logger.Log.Warn("health server stopped", zap.Error(err))
			}
		}()
		defer hs.Stop()
	}

	if cfg.Pprof {
		testtool.StartPprof("")
	}

	// 8. Fiber
	r := fiber.New(fiber.Config{
		BodyLimit:             cfg.BodyLimit,
		DisableStartupMessage: config.IsProduction(),
	})
	file, err := os.OpenFile(fmt.Sprintf("%s/access.log", config.EnvConfig.ChatServiceLogPath), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0666)
	if err != nil {
		logger.Log.Fatal("Failed to open log file", zap.Error(err))
	}
	defer file.Close()

	r.Use(fiber_log.New(fiber_log.Config{
		Output: file, // access log 寫檔
	}))

	router.RegisterRoutes(r, router.Handlers{
		Message: app.NewMessageHandler(messageUC, cfg.RequestTimeout),
		Websocket: app.NewChatWebsocketHandler(hub, messageUC, app.ConnOptions{
			PingInterval: cfg.Realtime.PingInterval,
			WriteWait:    cfg.Realtime.WriteWait,
			SendBuffer:   cfg.Realtime.SendBuffer,
		}, cfg.RequestTimeout),
	}, router.Options{
		Verify:       memberUC.VerifyToken,
		AllowOrigins: cfg.AllowOrigins(),
		Gatherer:     reg,
	})

	go func() {
		<-ctx.Done()
		logger.Log.Info("shutting down chat service")
		hub.Shutdown()
		if err := r.ShutdownWithTimeout(10 * time.Second); err != nil {
			logger.Log.Warn("fiber shutdown", zap.Error(err))
		}
	}()

	port := ":" + cfg.Port
	logger.Log.Info("Chat Service listening", zap.String("port", port))
	if err := r.Listen(port); err != nil {
		logger.Log.Fatal("Failed to start Fiber", zap.Error(err))
	}
}

// connectRedis addr 有設定就直連，否則走 .env 的 sentinel
func connectRedis(c config.RedisConfig) *redis.Client {
	var (
		client *redis.Client
		err    error
	)
	if c.Addr != "" {
		client, err = database.NewRedisSingleClient(c.Addr, c.RedisDB)
	} else {
		masterName, sentinel := config.GetRedisSetting()
		client, err = database.NewRedisClient(masterName, sentinel, c.RedisDB)
	}
	if err != nil {
		logger.Log.Fatal("connect redis", zap.Error(err))
	}
	return client
}

func newEventPublisher(ctx context.Context, c config.EventConfig) repository.EventPublisher {
	switch c.Driver {
	case "kafka":
		w, err := database.NewKafkaWriterWithRetry(ctx, database.KafkaConnection{
			Brokers:       c.Brokers,
			Topic:         c.Topic,
			RetryCount:    c.RetryCount,
			RetryInterval: time.Duration(c.RetryInterval),
		})
		if err != nil {
			logger.Log.Fatal("connect kafka", zap.Error(err))
		}
		return repository.NewKafkaPublisher(w)

	case "rabbitmq":
		conn, err := database.ConnectRabbitMQWithRetry(database.Connection{
			ConnectStr:    c.URL,
			RetryCount:    c.RetryCount,
			RetryInterval: time.Duration(c.RetryInterval),
		})
		if err != nil {
			logger.Log.Fatal("connect rabbitMQ", zap.Error(err))
		}
		ch, err := database.OpenQueueChannel(conn, c.Queue)
		if err != nil {
			logger.Log.Fatal("open rabbitMQ queue", zap.Error(err))
		}
		return repository.NewRabbitPublisher(database.NewRabbitRepository(ch), c.Queue)

	default:
		return repository.NewNopPublisher()
	}
}
