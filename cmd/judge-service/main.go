package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"contestjudge/internal/common/cache"
	"contestjudge/internal/common/db"
	"contestjudge/internal/common/http/health"
	commonmw "contestjudge/internal/common/http/middleware"
	"contestjudge/internal/common/mq"
	"contestjudge/internal/common/storage"
	judgecontroller "contestjudge/internal/judge/controller"
	"contestjudge/internal/judge/repository"
	"contestjudge/internal/judge/sandbox"
	"contestjudge/internal/judge/sandbox/profile"
	judgeservice "contestjudge/internal/judge/service"
	lbcontroller "contestjudge/internal/leaderboard/controller"
	lbrepository "contestjudge/internal/leaderboard/repository"
	lbservice "contestjudge/internal/leaderboard/service"
	"contestjudge/pkg/utils/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const defaultConfigPath = "configs/judge_service.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to config file")
	flag.Parse()

	appCfg, err := loadAppConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load app config failed: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(appCfg.Logger); err != nil {
		fmt.Fprintf(os.Stderr, "init logger failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()

	runCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mysqlDB, err := db.NewMySQLWithConfig(&appCfg.Database)
	if err != nil {
		logger.Error(runCtx, "init database failed", zap.Error(err))
		return
	}
	defer func() {
		_ = mysqlDB.Close()
	}()

	redisCache, err := cache.NewRedisCacheWithConfig(&appCfg.Redis)
	if err != nil {
		logger.Error(runCtx, "init redis failed", zap.Error(err))
		return
	}
	defer func() {
		_ = redisCache.Close()
	}()

	objStorage, err := storage.NewMinIOStorage(appCfg.MinIO)
	if err != nil {
		logger.Error(runCtx, "init minio failed", zap.Error(err))
		return
	}

	queue, err := newQueue(appCfg.Queue, redisCache)
	if err != nil {
		logger.Error(runCtx, "init message queue failed", zap.Error(err), zap.String("driver", appCfg.Queue.Driver))
		return
	}
	defer func() {
		_ = queue.Close()
	}()

	registry, err := profile.NewRegistry(appCfg.Languages)
	if err != nil {
		logger.Error(runCtx, "init language profiles failed", zap.Error(err))
		return
	}

	submissions := repository.NewSubmissionRepository(mysqlDB)
	problems := repository.NewProblemRepository(mysqlDB, redisCache, objStorage, repository.ProblemRepositoryConfig{
		Bucket:           appCfg.Judge.AttachmentBucket,
		TTL:              appCfg.Judge.TestCaseTTL,
		MaxTestCaseBytes: appCfg.Judge.MaxAttachmentBytes,
		CacheTestCases:   appCfg.Judge.CacheTestCases,
	})
	executions := repository.NewExecutionRepository(mysqlDB, objStorage, appCfg.Judge.ExecutionBucket)
	attachments := repository.NewAttachmentRepository(objStorage, appCfg.Judge.AttachmentBucket, appCfg.Judge.MaxAttachmentBytes)
	contests := lbrepository.NewContestRepository(mysqlDB)

	allowed, err := contests.AllowedLanguages(runCtx)
	if err != nil {
		logger.Error(runCtx, "load contest languages failed", zap.Error(err))
		return
	}
	if err := registry.Validate(allowed); err != nil {
		logger.Fatal(runCtx, "contest allows a language without a profile", zap.Error(err))
	}

	events := repository.NewMQEventPublisher(queue, appCfg.Queue.EventTopic)
	submissionQueue := repository.NewSubmissionQueue(queue, appCfg.Queue.SubmissionTopic)
	failureQueue := repository.NewSubmissionQueue(queue, appCfg.Queue.FailureTopic)

	leaderboard, err := lbservice.NewService(lbservice.Config{
		Contests:    contests,
		Submissions: submissions,
		Problems:    problems,
		Events:      events,
		Locker:      redisCache,
		LockTTL:     appCfg.Leaderboard.LockTTL,
		LockWait:    appCfg.Leaderboard.LockWait,
	})
	if err != nil {
		logger.Error(runCtx, "init leaderboard failed", zap.Error(err))
		return
	}

	if appCfg.hasRole(roleWorker) {
		worker, err := judgeservice.NewService(judgeservice.Config{
			Submissions:     submissions,
			Problems:        problems,
			Executions:      executions,
			Attachments:     attachments,
			Profiles:        registry,
			Sandbox:         sandbox.NewDockerController(appCfg.Sandbox, nil),
			Events:          events,
			FailureQueue:    failureQueue,
			Leaderboard:     leaderboard,
			WorkRoot:        appCfg.Judge.WorkRoot,
			TeardownTimeout: appCfg.Judge.TeardownTimeout,
		})
		if err != nil {
			logger.Error(runCtx, "init judge worker failed", zap.Error(err))
			return
		}
		if err := subscribe(runCtx, queue, appCfg.Queue, appCfg.Queue.SubmissionTopic, "worker", worker.HandleMessage); err != nil {
			logger.Error(runCtx, "subscribe submission topic failed", zap.Error(err))
			return
		}
	}

	if appCfg.hasRole(roleFailure) {
		failures, err := judgeservice.NewFailureService(judgeservice.FailureConfig{
			Submissions:     submissions,
			Events:          events,
			ConflictRetries: appCfg.Judge.FailureRetries,
			ConflictBackoff: appCfg.Judge.FailureBackoff,
		})
		if err != nil {
			logger.Error(runCtx, "init failure consumer failed", zap.Error(err))
			return
		}
		if err := subscribe(runCtx, queue, appCfg.Queue, appCfg.Queue.FailureTopic, "failure", failures.HandleMessage); err != nil {
			logger.Error(runCtx, "subscribe failure topic failed", zap.Error(err))
			return
		}
	}

	if err := queue.Start(); err != nil {
		logger.Error(runCtx, "start queue consumers failed", zap.Error(err))
		return
	}

	if appCfg.hasRole(roleScheduler) {
		scheduler := lbservice.NewAutoFreezeScheduler(contests, leaderboard, appCfg.Leaderboard.FreezeInterval)
		go scheduler.Run(runCtx)
	}

	dispatcher, err := judgeservice.NewDispatcher(submissions, submissionQueue, events)
	if err != nil {
		logger.Error(runCtx, "init dispatcher failed", zap.Error(err))
		return
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(commonmw.TraceContextMiddleware())
	router.Use(commonmw.RequestLogger())
	router.GET("/healthz", health.Handler(map[string]health.Pinger{
		"mysql":   mysqlDB,
		"redis":   redisCache,
		"queue":   queue,
		"storage": bucketPinger{storage: objStorage, bucket: appCfg.Judge.AttachmentBucket},
	}))
	if appCfg.hasRole(roleAPI) {
		api := router.Group("/api/v1")
		judgecontroller.NewSubmissionController(submissions, executions, dispatcher).RegisterRoutes(api)
		lbcontroller.NewLeaderboardController(leaderboard).RegisterRoutes(api)
	}

	httpServer := &http.Server{
		Addr:         appCfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  appCfg.Server.ReadTimeout,
		WriteTimeout: appCfg.Server.WriteTimeout,
		IdleTimeout:  appCfg.Server.IdleTimeout,
	}
	listener, err := net.Listen("tcp", appCfg.Server.Addr)
	if err != nil {
		logger.Error(runCtx, "init http listener failed", zap.Error(err))
		return
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(runCtx, "judge service started",
			zap.String("addr", appCfg.Server.Addr),
			zap.Strings("roles", appCfg.Roles),
			zap.String("queue", appCfg.Queue.Driver),
		)
		errCh <- httpServer.Serve(listener)
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(context.Background(), "http server stopped", zap.Error(err))
		}
		stop()
	case <-runCtx.Done():
		logger.Info(context.Background(), "shutdown signal received")
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error(context.Background(), "http server shutdown failed", zap.Error(err))
	}
	_ = queue.Stop()
}

func newQueue(cfg QueueConfig, redisCache *cache.RedisCache) (mq.MessageQueue, error) {
	if cfg.Driver == queueDriverRedis {
		return mq.NewRedisListQueue(redisCache.Client(), mq.RedisListConfig{
			KeyPrefix: cfg.Redis.KeyPrefix,
			Consumer:  cfg.Redis.Consumer,
			MaxLen:    map[string]int64{cfg.EventTopic: cfg.Redis.EventMaxLen},
		})
	}
	return mq.NewKafkaQueue(cfg.Kafka.toMQConfig())
}

// subscribe attaches one sequential handler; scaling out means more processes.
func subscribe(ctx context.Context, queue mq.MessageQueue, cfg QueueConfig, topic, role string, handler mq.HandlerFunc) error {
	return queue.Subscribe(ctx, topic, handler, &mq.SubscribeOptions{
		ConsumerGroup: cfg.ConsumerGroup + "-" + role,
		Concurrency:   1,
		PollTimeout:   cfg.Redis.PollTimeout,
	})
}

type bucketPinger struct {
	storage *storage.MinIOStorage
	bucket  string
}

func (p bucketPinger) Ping(ctx context.Context) error {
	ok, err := p.storage.BucketExists(ctx, p.bucket)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("bucket %s does not exist", p.bucket)
	}
	return nil
}
