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

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"smartclassroom/server/internal/config"
	"smartclassroom/server/internal/db"
	httpserver "smartclassroom/server/internal/http"
	"smartclassroom/server/internal/identity"
	"smartclassroom/server/internal/jobs"
	"smartclassroom/server/internal/mail"
	"smartclassroom/server/internal/qr"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer pool.Close()
	store := db.NewStore(pool)

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			// Password reset tokens need redis; everything else keeps working.
			log.Printf("redis unavailable, reset tokens disabled: %v", err)
			redisClient = nil
		} else {
			defer redisClient.Close()
		}
	}

	var mailer mail.Mailer = mail.ConsoleMailer{}
	if cfg.SendgridKey != "" {
		mailer = mail.NewSendgridMailer(cfg.SendgridKey, "Smart Classroom", cfg.MailFrom)
	}

	identitySvc := identity.NewService(pool, redisClient, mailer, identity.Config{
		JWTSecret:      cfg.JWTSecret,
		JWTIssuer:      cfg.JWTIssuer,
		AccessTokenTTL: cfg.AccessTokenTTL,
		SessionTTL:     cfg.SessionTTL,
		ResetTokenTTL:  cfg.ResetTokenTTL,
		ResetBaseURL:   cfg.FrontendBaseURL,
	})

	qrSvc := qr.NewService(store, qr.Config{
		Secret:           cfg.CodeSecret,
		Rotation:         cfg.CodeRotation,
		TokenMinValidity: cfg.TokenMinValidity,
		PeriodDuration:   cfg.PeriodDuration,
		LateThreshold:    cfg.LateThreshold,
		BaseURL:          cfg.FrontendBaseURL,
	})

	handler := httpserver.NewServer(identitySvc, store, qrSvc, cfg.JWTSecret, cfg.JWTIssuer, cfg.AdminEmail)

	if cfg.TokenExpiryJobEnabled {
		go jobs.RunTokenExpiry(ctx, store, cfg.TokenExpiryJobInterval)
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Printf("listening on %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Printf("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
}
