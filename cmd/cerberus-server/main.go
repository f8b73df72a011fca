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

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BrandonDHaskell/Cerberus/server/internal/cerberus/service"
	"github.com/BrandonDHaskell/Cerberus/server/internal/cerberus/store/sqlite"
	"github.com/BrandonDHaskell/Cerberus/server/internal/config"
	"github.com/BrandonDHaskell/Cerberus/server/internal/dataset"
	"github.com/BrandonDHaskell/Cerberus/server/internal/db"
	"github.com/BrandonDHaskell/Cerberus/server/internal/evidence"
	"github.com/BrandonDHaskell/Cerberus/server/internal/hardware/camera"
	"github.com/BrandonDHaskell/Cerberus/server/internal/hardware/fingerprint"
	"github.com/BrandonDHaskell/Cerberus/server/internal/hardware/gpio"
	"github.com/BrandonDHaskell/Cerberus/server/internal/health"
	"github.com/BrandonDHaskell/Cerberus/server/internal/httpapi"
	"github.com/BrandonDHaskell/Cerberus/server/internal/matcher"
	"github.com/BrandonDHaskell/Cerberus/server/internal/notify"
	"github.com/BrandonDHaskell/Cerberus/server/internal/timeutil"
)

func main() {
	envFile := pflag.String("config", ".env", "dotenv file to load before reading CERBERUS_* variables")
	addr := pflag.String("addr", "", "HTTP listen address (overrides CERBERUS_HTTP_ADDR)")
	grpcAddr := pflag.String("grpc-addr", "", "gRPC health listen address (overrides CERBERUS_GRPC_ADDR)")
	tuning := pflag.String("tuning", "", "YAML detector tuning file (overrides CERBERUS_TUNING_FILE)")
	singleFactor := pflag.Bool("single-factor", false, "unlock on face match alone even when a fingerprint sensor is configured")
	pflag.Parse()

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "load %s: %v\n", *envFile, err)
		os.Exit(1)
	}

	cfg := config.FromEnv()
	if *addr != "" {
		cfg.HTTPAddr = *addr
	}
	if *grpcAddr != "" {
		cfg.GRPCAddr = *grpcAddr
	}
	if *tuning != "" {
		cfg.TuningFile = *tuning
	}
	if pflag.CommandLine.Changed("single-factor") {
		cfg.SingleFactor = *singleFactor
	}

	logger, err := newLogger(cfg.Env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if cfg.TuningFile != "" {
		if err := cfg.ApplyTuningFile(cfg.TuningFile); err != nil {
			logger.Fatal("tuning file", zap.Error(err))
		}
	}

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}

func newLogger(env string) (*zap.Logger, error) {
	if env == "prod" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Storage
	sqlDB, err := db.Open(ctx, db.Config{Path: cfg.DBPath, Env: cfg.Env})
	if err != nil {
		return err
	}
	defer sqlDB.Close()
	writer := db.NewWorker(sqlDB)
	defer writer.Close()

	identities := sqlite.NewIdentityStore(sqlDB, writer)
	enrollments := sqlite.NewEnrollmentStore(sqlDB, writer)
	detections := sqlite.NewDetectionStore(sqlDB, writer)

	clock := timeutil.RealClock{}
	t := cfg.Tuning

	ev, err := evidence.New(evidence.Config{Root: cfg.EvidenceDir, FPS: t.ClipFPS}, logger.Named("evidence"))
	if err != nil {
		return err
	}
	ds, err := dataset.New(cfg.DatasetDir, clock, logger.Named("dataset"))
	if err != nil {
		return err
	}

	healthSvc := health.New(logger.Named("health"),
		service.HealthCamera, service.HealthMatcher, service.HealthFingerprint, service.HealthLock)
	push := notify.NewExpo(notify.Config{Endpoint: cfg.ExpoEndpoint, PerMinute: cfg.PushPerMinute}, logger.Named("push"))

	deps := service.Dependencies{
		Evidence:    ev,
		Notifier:    push,
		Dataset:     ds,
		Identities:  identities,
		Enrollments: enrollments,
		Detections:  detections,
		Health:      healthSvc,
		Clock:       clock,
		Logger:      logger,
	}

	// Devices. Each one that fails to open is left nil and its capability
	// is disabled; the process keeps running.
	if cam, err := camera.NewSnapshot(camera.Config{URL: cfg.CameraURL, Timeout: cfg.CameraTimeout}); err != nil {
		logger.Warn("camera unavailable", zap.Error(err))
	} else {
		deps.Frames = cam
	}

	if m, err := matcher.New(matcher.Config{BaseURL: cfg.MatcherURL, Timeout: cfg.MatcherTimeout}); err != nil {
		logger.Warn("face matcher unavailable", zap.Error(err))
	} else {
		deps.Matcher = m
	}

	if cfg.LockPin != "" {
		if pin, err := gpio.Open(cfg.LockPin, cfg.LockedHigh); err != nil {
			logger.Warn("lock pin unavailable", zap.String("pin", cfg.LockPin), zap.Error(err))
		} else {
			deps.Pin = pin
		}
	}

	secondFactor := cfg.FingerprintPort != "" && !cfg.SingleFactor
	if cfg.FingerprintPort != "" {
		sensor, err := fingerprint.Open(fingerprint.Config{
			Path:     cfg.FingerprintPort,
			Port:     fingerprint.PortOptions{BaudRate: cfg.FingerprintBaud},
			Password: cfg.FingerprintPassword,
		})
		if err != nil {
			// Stay two-factor: a configured but broken sensor must not
			// downgrade access to face-only.
			logger.Warn("fingerprint sensor unavailable", zap.String("port", cfg.FingerprintPort), zap.Error(err))
		} else {
			defer sensor.Close()
			deps.Fingerprint = sensor
			logger.Info("fingerprint sensor ready", zap.Int("capacity", sensor.Capacity()))
		}
	}

	engine := service.NewEngine(service.Config{
		Motion: service.MotionConfig{
			Interval:       t.MotionInterval,
			PixelDelta:     uint8(min(t.MotionPixelDelta, 255)),
			PixelThreshold: t.MotionPixelThreshold,
			Cooldown:       t.MotionCooldown,
			AnalysisWidth:  t.MotionAnalysisWidth,
		},
		Face: service.FaceConfig{
			Interval:  t.FaceInterval,
			Tolerance: t.FaceTolerance,
		},
		Auth: service.AuthorizerConfig{
			Timeout:          cfg.VerificationTimeout,
			UnlockDuration:   cfg.UnlockDuration,
			RefreshOnRematch: cfg.RefreshOnRematch,
		},
		Lock: service.LockConfig{
			ReleaseWhenLocked: cfg.ReleaseWhenLocked,
		},
		SecondFactor:        secondFactor,
		FingerprintInterval: t.FingerprintInterval,
		ScanTimeout:         t.ScanTimeout,
		LogCapacity:         t.LogCapacity,
		RingCapacity:        t.RingCapacity,
		ManualUnlock:        cfg.UnlockDuration,
	}, deps)

	if err := engine.Load(ctx); err != nil {
		return fmt.Errorf("load engine state: %w", err)
	}
	if len(engine.KnownIdentities()) == 0 {
		// First boot, or the database was reset: build from the dataset.
		engine.Trainer().Trigger()
	}

	pruner := service.NewDetectionPruner(detections, service.PrunerConfig{
		RetentionDays: cfg.DetectionRetentionDays,
		IntervalHours: cfg.PruneIntervalHours,
	}, logger.Named("pruner"))
	pruner.Start(ctx)
	defer pruner.Stop()

	srv := httpapi.NewServer(httpapi.Dependencies{
		Logger:      logger.Named("http"),
		Addr:        cfg.HTTPAddr,
		Engine:      engine,
		Dataset:     ds,
		Tokens:      push,
		Health:      healthSvc,
		EvidenceDir: cfg.EvidenceDir,
		DatasetDir:  cfg.DatasetDir,
		CORSOrigins: cfg.CORSOrigins,
	})

	logger.Info("cerberus starting",
		zap.String("http", cfg.HTTPAddr),
		zap.String("grpc", cfg.GRPCAddr),
		zap.Bool("second_factor", secondFactor),
		zap.Bool("lock", engine.LockAvailable()),
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return engine.Run(gctx) })

	g.Go(func() error {
		logger.Info("listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if cfg.GRPCAddr != "" {
		g.Go(func() error { return healthSvc.Serve(gctx, cfg.GRPCAddr) })
	}

	err = g.Wait()

	if engine.LockAvailable() {
		if lerr := engine.Lock(); lerr != nil {
			logger.Error("lock on shutdown failed", zap.Error(lerr))
		}
	}
	push.Wait()

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("cerberus stopped")
	return nil
}
