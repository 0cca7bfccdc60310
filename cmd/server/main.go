package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"ledger/internal/config"
	"ledger/internal/handler"
	"ledger/internal/infrastructure/cache"
	"ledger/internal/infrastructure/database"
	"ledger/internal/infrastructure/lock"
	"ledger/internal/infrastructure/logger"
	"ledger/internal/infrastructure/mq"
	"ledger/internal/job"
	"ledger/internal/repository"
	"ledger/internal/service"
	"ledger/pkg/idgen"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "配置文件路径")
	workerID := flag.Int64("worker-id", 1, "雪花算法机器ID (0-1023)")
	flag.Parse()

	if err := run(*configPath, *workerID); err != nil {
		fmt.Fprintf(os.Stderr, "服务异常退出: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string, workerID int64) error {
	// 加载配置
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	// 创建上下文（用于优雅关闭）
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 初始化 ID 生成器
	ids, err := idgen.New(workerID)
	if err != nil {
		return err
	}

	// 初始化数据库
	db, err := database.Open(&cfg.Database)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()
	log.Info("数据库连接成功", zap.String("driver", cfg.Database.Driver))

	store := repository.NewGormStore(db)

	// 账户锁：多实例部署走 Redis，单实例用进程内锁
	var locker lock.Locker = lock.NewLocalLocker()
	if cfg.Redis.Enabled {
		rdb, err := cache.NewRedis(ctx, &cfg.Redis)
		if err != nil {
			return err
		}
		defer rdb.Close()
		locker = lock.NewRedisLocker(rdb, cfg.Ledger.LockTTL, cfg.Ledger.LockRetryInterval, cfg.Ledger.LockMaxRetries)
		log.Info("Redis 连接成功，使用分布式账户锁")
	}

	accounts := service.NewAccountService(store, cfg.Ledger.DefaultCurrency, log.Named("account"))
	transactions := service.NewTransactionService(store, locker, ids, service.EngineConfig{
		OperationTimeout:   cfg.Ledger.OperationTimeout,
		MaxConflictRetries: cfg.Ledger.MaxConflictRetries,
		RetryInterval:      cfg.Ledger.RetryInterval,
		EventTopic:         cfg.Kafka.Topic.TransactionEvents,
	}, log.Named("engine"))
	history := service.NewHistoryService(store, cfg.Ledger.HistoryDefaultSize, cfg.Ledger.HistoryMaxSize)

	g, gctx := errgroup.WithContext(ctx)

	// 启动后台任务
	if cfg.Kafka.Enabled {
		producer, err := mq.NewProducer(&cfg.Kafka, log.Named("kafka"))
		if err != nil {
			return err
		}
		defer producer.Close()

		sender := job.NewOutboxSender(store.Outbox(), producer,
			cfg.Ledger.OutboxInterval, cfg.Ledger.OutboxBatchSize, cfg.Ledger.OutboxMaxRetry, log.Named("outbox_sender"))
		g.Go(func() error { return sender.Start(gctx) })
	}

	reconciler := job.NewReconciler(store, cfg.Ledger.ReconcileInterval, log.Named("reconciler"))
	g.Go(func() error { return reconciler.Start(gctx) })

	// 设置路由
	h := handler.NewHandler(accounts, transactions, history)
	router := handler.SetupRouter(h, cfg.Server.Mode, log.Named("http"))

	// 启动 HTTP 服务
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	g.Go(func() error {
		log.Info("服务启动", zap.Int("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("服务启动失败: %w", err)
		}
		return nil
	})

	// 等待中断信号或任一组件退出
	g.Go(func() error {
		<-gctx.Done()
		log.Info("正在关闭服务...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("服务已关闭")
	return nil
}
