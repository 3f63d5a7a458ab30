package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Freeeeeet/class_attendance/internal/app"
	"github.com/Freeeeeet/class_attendance/internal/config"
	"github.com/Freeeeeet/class_attendance/internal/controller"
	"github.com/Freeeeeet/class_attendance/internal/face"
	"github.com/Freeeeeet/class_attendance/internal/httpapi"
	"github.com/Freeeeeet/class_attendance/internal/metrics"
	"github.com/Freeeeeet/class_attendance/internal/repository"
	"github.com/Freeeeeet/class_attendance/internal/service"
	"github.com/Freeeeeet/class_attendance/internal/window"
	"github.com/go-telegram/bot"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := app.NewLogger(cfg.Environment, cfg.LogLevel)
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("Service stopped with error", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("Starting class attendance service",
		zap.String("environment", cfg.Environment),
		zap.String("http_addr", cfg.HTTPAddr),
		zap.Bool("bot_enabled", cfg.BotEnabled()))

	pool, err := pgxpool.New(ctx, cfg.GetDBDSN())
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		return err
	}

	if cfg.MigrationsEnabled {
		migrator, err := app.NewMigrator(pool, logger)
		if err != nil {
			return err
		}
		err = migrator.Run(ctx)
		migrator.Close()
		if err != nil {
			return err
		}
	}

	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// Репозитории
	userRepo := repository.NewUserRepository(pool)
	roomRepo := repository.NewRoomRepository(pool)
	courseRepo := repository.NewCourseRepository(pool)
	sessionRepo := repository.NewSessionRepository(pool)
	attendanceRepo := repository.NewAttendanceRepository(pool)

	var verifier face.Verifier = face.Disabled{}
	if cfg.FaceServiceURL != "" {
		verifier = face.NewClient(cfg.FaceServiceURL, cfg.FaceTimeout, logger)
	} else {
		logger.Warn("FACE_SERVICE_URL not set, face verification disabled")
	}

	// Сервисы
	classifier := window.NewClassifier(window.SystemClock, loc)
	userService := service.NewUserService(userRepo, logger)
	roomService := service.NewRoomService(roomRepo, logger)
	sessionService := service.NewSessionService(sessionRepo, courseRepo, roomRepo, classifier, m, logger)
	attendanceService := service.NewAttendanceService(sessionRepo, courseRepo, attendanceRepo, verifier, classifier, m, logger)

	tasks := []app.Task{
		app.AbsenceSweep(cfg.AbsenceSweepInterval, attendanceService.FinalizeClosed, logger),
	}

	if cfg.BotEnabled() {
		b, err := bot.New(cfg.TelegramToken)
		if err != nil {
			return err
		}
		botController := controller.NewBotController(
			b,
			userService,
			sessionService,
			attendanceService,
			roomService,
			classifier,
			cfg.ConflictDebounce,
			logger,
		)
		if err := botController.RegisterHandlers(ctx); err != nil {
			logger.Warn("Bot commands menu not set", zap.Error(err))
		}
		// Студенты получают уведомления об изменениях расписания в боте
		sessionService.SetNotifier(courseRepo, botController)
		tasks = append(tasks, app.Task{
			Name:     "dialog_expiry",
			Interval: time.Minute,
			Run: func(ctx context.Context) error {
				return botController.ExpireDialogs(ctx, cfg.DialogIdleTimeout)
			},
		})
		go botController.Start(ctx)
	}

	scheduler := app.NewScheduler(logger, tasks...)
	scheduler.Start(ctx)
	defer scheduler.Stop()

	api := httpapi.NewServer(sessionService, attendanceService, roomService, userService, reg, m, logger)
	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Failed to shutdown server", zap.Error(err))
		}
	}()

	logger.Info("HTTP API listening", zap.String("addr", server.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	logger.Info("Service stopped")
	return nil
}
