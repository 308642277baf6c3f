// Entry point. Every client (MySQL, Redis, RabbitMQ, logger) is
// constructed here and injected; components never reach for ambient
// globals.
package main

import (
	"log"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/studyhall/studyhall-api/internal/auth"
	"github.com/studyhall/studyhall-api/internal/config"
	"github.com/studyhall/studyhall-api/internal/database"
	"github.com/studyhall/studyhall-api/internal/handler"
	"github.com/studyhall/studyhall-api/internal/logger"
	"github.com/studyhall/studyhall-api/internal/middleware"
	"github.com/studyhall/studyhall-api/internal/oauth"
	"github.com/studyhall/studyhall-api/internal/queue"
	"github.com/studyhall/studyhall-api/internal/repository"
	"github.com/studyhall/studyhall-api/internal/router"
	"github.com/studyhall/studyhall-api/internal/session"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	zlog, err := logger.New(cfg.Env)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = zlog.Sync() }()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		zlog.Fatal("mysql connect failed", zap.Error(err))
	}
	defer func() { _ = db.Close() }()

	rdb := config.NewRedisClient()
	if rdb == nil {
		zlog.Warn("redis unavailable: session cache and rate limiting disabled")
	}

	users := repository.NewUserRepo(db)
	tokens := repository.NewTokenRepo(db)
	recovery := repository.NewRecoveryCodeRepo(db)
	tempTokens := repository.NewTempTokenRepo(db)

	issuer := auth.NewTokenIssuer(cfg.JWTSecret, cfg.AccessTTL, cfg.RefreshTTL)
	hasher := auth.NewHasher(cfg.PasswordPepper, cfg.BcryptCost)
	totpMgr := auth.NewTOTPManager(cfg.TOTPIssuer, cfg.TOTPSkew)
	sessions := session.NewManager(tokens, users, rdb, issuer, zlog)
	mail := queue.NewPublisher(cfg.AMQPURL, zlog)

	authHandler := &handler.AuthHandler{
		Cfg:        cfg,
		Users:      users,
		Sessions:   sessions,
		Hasher:     hasher,
		TOTP:       totpMgr,
		Recovery:   recovery,
		TempTokens: tempTokens,
		Mail:       mail,
		Log:        zlog,
	}

	var provider oauth.Provider
	if cfg.GoogleClientID != "" && cfg.GoogleClientSecret != "" && cfg.GoogleRedirectURL != "" {
		provider = oauth.NewGoogle(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleRedirectURL)
	}
	oauthHandler := &handler.OAuthHandler{
		Cfg:      cfg,
		Provider: provider,
		Users:    users,
		Sessions: sessions,
		Log:      zlog,
	}

	gate := middleware.NewGate(issuer, users)
	limiter := middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb)

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	router.Register(e, authHandler, oauthHandler, gate, limiter)

	addr := ":" + cfg.Port
	zlog.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env))
	if err := e.Start(addr); err != nil {
		zlog.Fatal("server stopped", zap.Error(err))
	}
}
