package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/example/fitmirror/internal/auth"
	"github.com/example/fitmirror/internal/codec"
	"github.com/example/fitmirror/internal/config"
	"github.com/example/fitmirror/internal/database"
	"github.com/example/fitmirror/internal/grpcclient"
	"github.com/example/fitmirror/internal/handlers"
	"github.com/example/fitmirror/internal/logging"
	"github.com/example/fitmirror/internal/pose"
	"github.com/example/fitmirror/internal/repository"
	"github.com/example/fitmirror/internal/sizing"
	"github.com/example/fitmirror/internal/usecase"
)

func main() {
	cfg, err := config.Load(config.Options{
		ConfigFile: os.Getenv("FITMIRROR_CONFIG_FILE"),
		EnvFile:    os.Getenv("FITMIRROR_ENV_FILE"),
	})
	if err != nil {
		panic(err)
	}

	logger, err := logging.NewLogger(cfg.Log.Level)
	if err != nil {
		panic(err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	db, err := database.Open(ctx, cfg.DB.Driver, cfg.DB.DSN, logger)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	sessions := repository.NewSessionRepository(db, logger)
	if err := sessions.AutoMigrate(ctx); err != nil {
		logger.Fatal("auto migrate failed", zap.Error(err))
	}
	products := repository.NewProductRepository(db, logger)

	redisCtx, redisCancel := context.WithTimeout(ctx, 5*time.Second)
	defer redisCancel()
	redisClient := initRedis(redisCtx, cfg.Redis.Addr, logger)

	conn, err := grpcclient.DialPoseLandmarker(ctx, cfg.Pose.Addr, logger)
	if err != nil {
		logger.Fatal("failed to connect to pose landmarker", zap.Error(err))
	}
	defer conn.Close()

	detector, err := buildDetector(cfg.Pose, func() pose.Detector {
		return grpcclient.NewPoseDetector(conn, logger)
	})
	if err != nil {
		logger.Fatal("failed to build pose detector", zap.Error(err))
	}

	opts, err := useCaseOptions(cfg)
	if err != nil {
		logger.Fatal("invalid processing options", zap.Error(err))
	}
	uc := usecase.NewFittingUseCase(detector, sessions, products, usecase.NewRedisCache(redisClient), logger, opts)

	r := gin.Default()
	r.MaxMultipartMemory = cfg.HTTP.MaxUploadBytes
	handlers.RegisterRoutes(r, uc, handlers.Middleware{
		Identity: auth.OptionalJWTMiddleware(cfg.JWT.Secret, cfg.JWT.Audience),
		Operator: auth.JWTMiddleware(cfg.JWT.Secret, cfg.JWT.Audience),
	}, cfg.HTTP.MaxUploadBytes)

	server := &http.Server{
		Addr:    cfg.HTTP.Addr,
		Handler: r,
	}

	logger.Info("fitmirror API listening",
		zap.String("addr", cfg.HTTP.Addr),
		zap.String("pose_mode", cfg.Pose.Mode),
		zap.String("sizing_strategy", opts.Classifier.Name()))
	if err := serveHTTPServer(server, cfg.HTTP.ShutdownTimeout, logger); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

// buildDetector shares the landmarker either through one mutex-guarded
// detector or through a pool of cfg.PoolSize detectors.
func buildDetector(cfg config.PoseConfig, factory func() pose.Detector) (pose.Detector, error) {
	switch cfg.Mode {
	case "mutex":
		return pose.NewSerialized(factory()), nil
	case "pool":
		detectors := make([]pose.Detector, cfg.PoolSize)
		for i := range detectors {
			detectors[i] = factory()
		}
		pool, err := pose.NewPool(detectors...)
		if err != nil {
			return nil, err
		}
		return pool, nil
	default:
		return nil, fmt.Errorf("unknown pose mode %q", cfg.Mode)
	}
}

func useCaseOptions(cfg config.Config) (usecase.Options, error) {
	format, err := codec.ParseFormat(cfg.Output.Format)
	if err != nil {
		return usecase.Options{}, err
	}
	classifier, err := sizing.ClassifierByName(cfg.Sizing.Strategy)
	if err != nil {
		return usecase.Options{}, err
	}
	return usecase.Options{
		Deadline:   cfg.Processing.Deadline,
		Encoder:    codec.Encoder{Format: format, Quality: cfg.Output.JPEGQuality},
		Classifier: classifier,
	}, nil
}

func initRedis(ctx context.Context, addr string, zapLogger *zap.Logger) *redis.Client {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		zapLogger.Fatal("redis connection failed", zap.Error(err))
	}
	return client
}

func serveHTTPServer(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger) error {
	return serveHTTPServerWithOptions(server, shutdownTimeout, logger, nil, nil)
}

func serveHTTPServerWithOptions(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger, listener net.Listener, signalCh <-chan os.Signal) error {
	errCh := make(chan error, 1)
	go func() {
		var err error
		if listener != nil {
			err = server.Serve(listener)
		} else {
			err = server.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()

	var (
		sigCh       <-chan os.Signal
		stopSignals func()
	)

	if signalCh != nil {
		sigCh = signalCh
		stopSignals = func() {}
	} else {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
		sigCh = ch
		stopSignals = func() {
			signal.Stop(ch)
		}
	}
	defer stopSignals()

	select {
	case err := <-errCh:
		return err
	case sig, ok := <-sigCh:
		if !ok {
			return <-errCh
		}
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return <-errCh
	}
}
