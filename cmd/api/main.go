package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/edupay/fee-engine/internal/config"
	"github.com/edupay/fee-engine/internal/handler"
	"github.com/edupay/fee-engine/internal/middleware"
	"github.com/edupay/fee-engine/internal/models"
	"github.com/edupay/fee-engine/internal/notify"
	"github.com/edupay/fee-engine/internal/repository"
	"github.com/edupay/fee-engine/internal/service"
)

func main() {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	_ = godotenv.Load()
	logLevel, err := logrus.ParseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	// Load configuration
	cfg, err := config.NewConfig()
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}

	// Initialize database
	db, err := sql.Open("postgres", cfg.DBConn)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		logger.Fatalf("Failed to ping database: %v", err)
	}

	// Initialize layers
	repo := repository.NewRepository(db)
	senders := notify.NewRegistry(logger)
	senders.Register(models.ChannelEmail, notify.NewEmailSender(cfg, logger))
	senders.Register(models.ChannelInApp, notify.NewConsoleSender(models.ChannelInApp, logger))
	senders.Register(models.ChannelPush, notify.NewConsoleSender(models.ChannelPush, logger))
	svc := service.NewService(repo, repo, repo, repo, repo, senders, logger, cfg.DispatchTimeout)
	h := handler.NewHandler(svc, logger)

	// Root context cancelled on shutdown so an in-flight batch stops
	// between schedules without orphaning dispatch records.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Setup router
	r := mux.NewRouter()
	adminRouter := r.PathPrefix("/").Subrouter()
	adminRouter.Use(middleware.AuthMiddleware(cfg))
	adminRouter.HandleFunc("/payment-schedules", h.CreateSchedule).Methods("POST")
	adminRouter.HandleFunc("/payment-schedules/bulk", h.BulkSetStatus).Methods("POST")
	adminRouter.HandleFunc("/payment-schedules/{id}", h.UpdateSchedule).Methods("PUT")
	adminRouter.HandleFunc("/payment-schedules/{id}", h.DeleteSchedule).Methods("DELETE")
	adminRouter.HandleFunc("/payment-schedules/{id}/status", h.GetStatus).Methods("GET")
	adminRouter.HandleFunc("/payment-schedules/{id}/send-reminder", h.SendReminderNow).Methods("POST")

	cronRouter := r.PathPrefix("/recompute").Subrouter()
	cronRouter.Use(middleware.CronAuth(cfg))
	cronRouter.HandleFunc("", h.RunRecompute).Methods("POST")

	// Daily recompute: late fees accrue and reminders fire as the calendar
	// advances, independent of any admin action.
	c := cron.New()
	if _, err := c.AddFunc(cfg.ReminderCron, func() {
		report, err := svc.RunDailyRecompute(ctx, time.Now().UTC())
		if err != nil {
			logger.Errorf("Scheduled recompute failed: %v", err)
			return
		}
		logger.Infof("Scheduled recompute: schedules=%d reminders=%d failures=%d",
			report.SchedulesProcessed, report.RemindersSent, len(report.Failures))
	}); err != nil {
		logger.Fatalf("Failed to schedule recompute job: %v", err)
	}
	c.Start()
	defer c.Stop()

	// Start server
	addr := fmt.Sprintf(":%s", cfg.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	go func() {
		logger.Infof("Starting server on %s", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Server failed: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Server shutdown: %v", err)
	}
}
