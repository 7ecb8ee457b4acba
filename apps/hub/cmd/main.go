package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"ChatHub/apps/hub/internal/account"
	"ChatHub/apps/hub/internal/call"
	"ChatHub/apps/hub/internal/coordinator"
	"ChatHub/apps/hub/internal/friend"
	"ChatHub/apps/hub/internal/gamification"
	"ChatHub/apps/hub/internal/handler"
	"ChatHub/apps/hub/internal/manager"
	"ChatHub/apps/hub/internal/presence"
	"ChatHub/apps/hub/internal/relay"
	"ChatHub/apps/hub/internal/repository"
	"ChatHub/apps/hub/internal/server"
	"ChatHub/apps/hub/internal/signaling"
	"ChatHub/apps/hub/internal/svc"
	"ChatHub/apps/hub/mq"
	"ChatHub/config"
	"ChatHub/pkg/async"
	"ChatHub/pkg/ctxmeta"
	"ChatHub/pkg/kafka"
	"ChatHub/pkg/logger"
	"ChatHub/pkg/mail"
	"ChatHub/pkg/minio"
	"ChatHub/pkg/mysql"
	pkgredis "ChatHub/pkg/redis"
	"ChatHub/pkg/util"

	"github.com/redis/go-redis/v9"
)

// stores 四类持久化仓库
type stores struct {
	users     repository.IUserRepository
	relations repository.IRelationRepository
	messages  repository.IMessageRepository
	settings  repository.ISettingRepository
}

func main() {
	ctx, cancel := context.WithCancel(ctxmeta.WithTraceID(context.Background(), "0"))
	defer cancel()

	// 1. 配置：默认值 → HUB_CONFIG 指定的 YAML → 环境变量
	cfg, err := config.Load(os.Getenv("HUB_CONFIG"))
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}

	// 2. 日志（最先完成，后续初始化都依赖它）
	zl, err := logger.Build(cfg.Logger)
	if err != nil {
		log.Fatalf("初始化日志失败: %v", err)
	}
	logger.ReplaceGlobal(zl)
	defer func() { _ = zl.Sync() }()

	// 3. 小组件：雪花 id、协程池
	if err := util.InitSnowflake(cfg.Hub.SnowflakeNode); err != nil {
		logger.Fatal(ctx, "初始化雪花算法失败", logger.ErrorField("error", err))
	}
	if err := async.Init(cfg.Async); err != nil {
		logger.Fatal(ctx, "初始化协程池失败", logger.ErrorField("error", err))
	}
	defer func() { _ = async.Release() }()

	// 4. 持久化
	st, closeStore := buildStores(ctx, cfg.MySQL)
	defer closeStore()

	cachedUsers, err := repository.NewCachedUserRepository(st.users, repository.DefaultUserCacheSize)
	if err != nil {
		logger.Fatal(ctx, "初始化用户缓存失败", logger.ErrorField("error", err))
	}
	st.users = cachedUsers

	// 5. Redis：不可用时降级，在线状态只写身份表
	var redisClient *redis.Client
	redisClient, err = pkgredis.Build(cfg.Redis)
	if err != nil {
		logger.Warn(ctx, "Redis 初始化失败，降级为无缓存模式",
			logger.ErrorField("error", err),
		)
		redisClient = nil
	} else {
		pkgredis.ReplaceGlobal(redisClient)
		defer func() { _ = redisClient.Close() }()
		logger.Info(ctx, "Redis 初始化成功",
			logger.String("addr", cfg.Redis.Addr),
		)
	}

	// 6. Kafka 重试队列：只有 Redis 可用时才有意义
	var presenceCache repository.IPresenceCache
	if redisClient != nil {
		presenceCache = repository.NewPresenceCache(redisClient)
		stopRetry := startRedisRetry(ctx, cfg.Kafka, redisClient)
		defer stopRetry()
	}

	// 7. 可选外部服务：对象存储、邮件
	var avatars account.AvatarUploader
	if strings.TrimSpace(cfg.MinIO.Endpoint) != "" {
		store, err := minio.Build(ctx, cfg.MinIO)
		if err != nil {
			logger.Warn(ctx, "MinIO 初始化失败，头像上传不可用",
				logger.ErrorField("error", err),
			)
		} else {
			avatars = store
		}
	}
	var mailer friend.Mailer
	if sender := mail.NewSender(cfg.Mail); sender != nil {
		mailer = sender
	}

	// 8. 组装核心组件
	registry := presence.NewRegistry(presence.NewStoreProjector(st.users, presenceCache))
	xp := gamification.NewEngine(st.users, registry)
	messageRelay := relay.NewMessageRelay(st.messages, st.users, registry, xp, relay.Options{
		XPPerMessage:   cfg.Hub.XPPerMessage,
		VerifyReceiver: cfg.Hub.VerifyReceiver,
		HistoryLimit:   cfg.Hub.HistoryLimit,
	})
	friends := friend.NewWorkflow(st.users, st.relations, st.settings, registry, mailer)
	coord := coordinator.New(coordinator.Deps{
		Users:     st.users,
		Presence:  registry,
		Relay:     messageRelay,
		Friends:   friends,
		Calls:     call.NewManager(registry),
		Signaling: signaling.NewRelay(registry),
	})

	tokens := util.NewTokenIssuer(cfg.JWT)
	accounts := account.NewService(st.users, st.settings, tokens, avatars, coord)

	// 9. 接入层
	connManager := manager.NewConnectionManager()
	srv := server.New(cfg.Hub, server.Deps{
		WS:        handler.NewWSHandler(connManager, svc.NewConnectService(tokens, st.users), coord, cfg.Hub),
		API:       handler.NewAPIHandler(accounts, friends, messageRelay),
		Tokens:    tokens,
		Limiter:   handler.NewRedisRateLimiter(redisClient, cfg.Hub.APIRate, cfg.Hub.APIBurst),
		Blacklist: handler.NewBlacklist(redisClient),
	})

	go func() {
		logger.Info(ctx, "ChatHub 服务启动中",
			logger.String("addr", cfg.Hub.Addr),
			logger.String("grpc_addr", cfg.Hub.GRPCAddr),
			logger.String("db_driver", cfg.MySQL.Driver),
		)
		if err := srv.Start(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(ctx, "ChatHub 服务启动失败",
				logger.ErrorField("error", err),
			)
			cancel()
		}
	}()

	// 10. 等待退出信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case <-ctx.Done():
	}

	// 11. 优雅停机：先断开所有 WebSocket（触发下线清理），再关闭监听
	logger.Info(ctx, "ChatHub 服务开始优雅停机")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Hub.ShutdownTimeout)
	defer shutdownCancel()

	connManager.Shutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error(ctx, "ChatHub 服务优雅停机失败",
			logger.ErrorField("error", err),
		)
		return
	}
	logger.Info(ctx, "ChatHub 服务已退出")
}

// buildStores 按驱动选择持久化实现；memory 不落盘
func buildStores(ctx context.Context, cfg config.MySQLConfig) (stores, func()) {
	if strings.EqualFold(cfg.Driver, "memory") {
		logger.Warn(ctx, "使用内存存储，进程退出后数据丢失")
		mem := repository.NewMemoryStore()
		st := stores{
			users:     mem.Users(),
			relations: mem.Relations(),
			messages:  mem.Messages(),
			settings:  mem.Settings(),
		}
		return st, func() {}
	}

	db, err := mysql.Build(cfg)
	if err != nil {
		logger.Fatal(ctx, "初始化数据库失败", logger.ErrorField("error", err))
	}
	mysql.ReplaceGlobal(db)
	if cfg.AutoMigrate {
		if err := repository.AutoMigrate(db); err != nil {
			logger.Fatal(ctx, "数据库迁移失败", logger.ErrorField("error", err))
		}
	}
	st := stores{
		users:     repository.NewUserRepository(db),
		relations: repository.NewRelationRepository(db),
		messages:  repository.NewMessageRepository(db),
		settings:  repository.NewSettingRepository(db),
	}
	closeDB := func() {
		if err := mysql.Close(db); err != nil {
			logger.Error(ctx, "关闭数据库失败", logger.ErrorField("error", err))
		}
	}
	return st, closeDB
}

// startRedisRetry 启动 Redis 失败写入的重试链路：生产者投递，消费者回放
func startRedisRetry(ctx context.Context, cfg config.KafkaConfig, redisClient *redis.Client) func() {
	if len(cfg.Brokers) == 0 {
		logger.Warn(ctx, "未配置 Kafka，Redis 写入失败将不会重试")
		return func() {}
	}

	producer := mq.NewKafkaProducer(cfg.Brokers, cfg.RedisRetryTopic)
	mq.InitProducer(producer)

	consumer := kafka.NewConsumer(cfg.Brokers, cfg.RedisRetryTopic, cfg.ConsumerConfig.GroupID,
		cfg.ConsumerConfig.MinBytes, cfg.ConsumerConfig.MaxBytes, logger.L())
	retry := mq.NewRetryHandler(func(ctx context.Context, args ...interface{}) error {
		return redisClient.Do(ctx, args...).Err()
	})
	go func() {
		logger.Info(ctx, "Redis 重试消费者启动中",
			logger.String("topic", cfg.RedisRetryTopic),
			logger.String("group_id", cfg.ConsumerConfig.GroupID),
		)
		if err := consumer.Run(ctx, retry.Handle); err != nil {
			logger.Error(ctx, "Redis 重试消费者运行错误", logger.ErrorField("error", err))
		}
	}()

	return func() {
		mq.InitProducer(nil)
		if err := consumer.Close(); err != nil {
			logger.Error(ctx, "关闭 Redis 重试消费者失败", logger.ErrorField("error", err))
		}
		if err := producer.Close(); err != nil {
			logger.Error(ctx, "关闭 Kafka Producer 失败", logger.ErrorField("error", err))
		}
	}
}
