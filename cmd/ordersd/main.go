// Command ordersd runs the order-report worker: it polls the job table,
// parses each claimed spreadsheet in an isolated child process, stores the
// aggregate metrics and notifies the owner.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/joseph-ayodele/orders-tracker/internal/async"
	"github.com/joseph-ayodele/orders-tracker/internal/common"
	"github.com/joseph-ayodele/orders-tracker/internal/health"
	"github.com/joseph-ayodele/orders-tracker/internal/notify"
	"github.com/joseph-ayodele/orders-tracker/internal/pipeline"
	repo "github.com/joseph-ayodele/orders-tracker/internal/repository"
	"github.com/joseph-ayodele/orders-tracker/internal/sheet"
	"github.com/joseph-ayodele/orders-tracker/internal/storage"
)

const drainTimeout = 2 * time.Minute

func main() {
	cfg := common.LoadConfig()
	logger := common.NewLogger(cfg.Log, os.Stdout)
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("ordersd stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("ordersd stopped")
}

func run(ctx context.Context, cfg *common.Config, logger *slog.Logger) error {
	db, err := repo.Open(ctx, repo.Config{
		Driver:           cfg.Database.Driver,
		DSN:              cfg.Database.DSN,
		MaxConns:         cfg.Database.MaxConns,
		MinConns:         cfg.Database.MinConns,
		MaxConnLifetime:  cfg.Database.MaxConnLifetime,
		MaxConnIdleTime:  cfg.Database.MaxConnIdleTime,
		DialTimeout:      cfg.Database.DialTimeout,
		StatementTimeout: cfg.Database.StatementTimeout,
	}, logger)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer repo.Close(db, logger)

	if err := repo.HealthCheck(ctx, db, 5*time.Second, logger); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	if cfg.Database.AutoMigrate {
		if err := repo.Migrate(ctx, db); err != nil {
			return err
		}
	}

	redisOpts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("parse REDIS_URL: %w", err)
	}
	rdb := redis.NewClient(redisOpts)
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Warn("close redis client failed", "error", err)
		}
	}()
	if err := rdb.Ping(ctx).Err(); err != nil {
		// push is best effort; jobs still settle and email still goes out
		logger.Warn("redis unreachable at startup", "error", err)
	}

	stores, err := storage.Setup(ctx, cfg.Storage, cfg.Worker.UploadDir, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := stores.Close(); err != nil {
			logger.Warn("close storage client failed", "error", err)
		}
	}()

	users := repo.NewUserRepository(db, logger)
	jobs := repo.NewJobRepository(db, logger)

	mailer := notify.NewSMTPMailer(notify.SMTPConfig{
		Host:        cfg.SMTP.Host,
		Port:        cfg.SMTP.Port,
		Username:    cfg.SMTP.Username,
		Password:    cfg.SMTP.Password,
		FromName:    cfg.SMTP.FromName,
		FromAddress: cfg.SMTP.FromAddress,
		TLS:         cfg.SMTP.TLS,
		Timeout:     cfg.SMTP.Timeout,
	}, logger)
	publisher := notify.NewRedisPublisher(rdb, cfg.Redis.ChannelPrefix, logger)
	notifier := notify.NewNotifier(users, mailer, publisher, cfg.Worker.NotifyTimeout, logger)

	parser := sheet.NewIsolated(parserPath(cfg.Worker.ParserBin), logger,
		sheet.WithTimeout(cfg.Worker.ParseTimeout),
		sheet.WithMaxOutput(cfg.Worker.ParseMaxOutput),
	)

	workerID := cfg.Worker.ID
	if workerID == "" {
		workerID = defaultWorkerID()
	}
	processor := pipeline.NewProcessor(workerID, jobs, stores.Source, parser, notifier, logger)
	poller := async.NewPoller(processor, logger,
		async.WithWorkers(cfg.Worker.Workers),
		async.WithInterval(cfg.Worker.PollInterval),
	)

	monitor := health.NewMonitor(cfg.Health.Interval, 3*time.Second, logger)
	monitor.Add("orders.store", func(ctx context.Context) error {
		return repo.HealthCheck(ctx, db, 0, logger)
	})
	monitor.Add("orders.push", func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	})

	lis, err := net.Listen("tcp", cfg.Health.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.Health.Addr, err)
	}
	grpcServer := grpc.NewServer()
	monitor.Register(grpcServer)

	logger.Info("ordersd starting",
		"worker_id", workerID,
		"workers", cfg.Worker.Workers,
		"poll_interval", cfg.Worker.PollInterval,
		"health_addr", lis.Addr().String(),
		"db_driver", cfg.Database.Driver,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		poller.Start(gctx)
		<-gctx.Done()
		drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
		defer cancel()
		poller.Shutdown(drainCtx)
		return nil
	})
	g.Go(func() error {
		return monitor.Run(gctx)
	})
	g.Go(func() error {
		if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("gRPC serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		grpcServer.GracefulStop()
		return nil
	})
	return g.Wait()
}

// parserPath resolves bin on PATH, falling back to the directory ordersd runs from.
func parserPath(bin string) string {
	if filepath.IsAbs(bin) {
		return bin
	}
	if p, err := exec.LookPath(bin); err == nil {
		return p
	}
	if exe, err := os.Executable(); err == nil {
		if p := filepath.Join(filepath.Dir(exe), bin); fileExists(p) {
			return p
		}
	}
	return bin
}

func fileExists(p string) bool {
	info, err := os.Stat(p)
	return err == nil && info.Mode().IsRegular()
}

func defaultWorkerID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "ordersd"
	}
	return fmt.Sprintf("%s-%d-%s", host, os.Getpid(), uuid.NewString()[:8])
}
