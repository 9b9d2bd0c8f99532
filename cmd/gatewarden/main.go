package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/gatewarden/gatewarden/internal/app"
	"github.com/gatewarden/gatewarden/internal/auth"
	"github.com/gatewarden/gatewarden/internal/observability"
	"github.com/gatewarden/gatewarden/internal/platform/cache"
	"github.com/gatewarden/gatewarden/internal/platform/db"
	"github.com/gatewarden/gatewarden/internal/ratelimit"
	"github.com/gatewarden/gatewarden/internal/rbac"
	"github.com/gatewarden/gatewarden/internal/shared"
	"github.com/gatewarden/gatewarden/internal/users"
	"github.com/gatewarden/gatewarden/jobs"
)

func ratePolicies(cfg *app.Config) ratelimit.Policies {
	return ratelimit.Policies{
		ratelimit.ClassLogin:         {Class: ratelimit.ClassLogin, Max: cfg.RateLoginMax, Window: cfg.RateLoginWindow},
		ratelimit.ClassRegister:      {Class: ratelimit.ClassRegister, Max: cfg.RateRegisterMax, Window: cfg.RateRegisterWin},
		ratelimit.ClassRefresh:       {Class: ratelimit.ClassRefresh, Max: cfg.RateRefreshMax, Window: cfg.RateRefreshWin},
		ratelimit.ClassAnonymous:     {Class: ratelimit.ClassAnonymous, Max: cfg.RateAnonMax, Window: cfg.RateAnonWindow},
		ratelimit.ClassAuthenticated: {Class: ratelimit.ClassAuthenticated, Max: cfg.RateAuthedMax, Window: cfg.RateAuthedWindow},
		ratelimit.ClassAdmin:         {Class: ratelimit.ClassAdmin, Max: cfg.RateAdminMax, Window: cfg.RateAdminWindow},
	}
}

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	auditLogger := shared.NewAuditLogger(dbpool)

	rbacRepo := rbac.NewRepository(dbpool)
	graph := rbac.NewGraph(rbacRepo, cfg.SuperAdminRole)
	evaluator := rbac.NewEvaluator(graph)
	rbacService := rbac.NewService(rbacRepo, graph)

	hasher := auth.NewPasswordHasher(cfg.BcryptCost)
	authRepo := auth.NewRepository(dbpool)
	revocations := auth.NewRedisRevocationStore(redisClient)
	tokenService := auth.NewTokenService(auth.TokenConfig{
		Secret:     []byte(cfg.TokenSecret),
		Issuer:     cfg.TokenIssuer,
		AccessTTL:  cfg.AccessTokenTTL,
		RefreshTTL: cfg.RefreshTokenTTL,
	}, revocations, authRepo, logger)
	authService := auth.NewService(authRepo, hasher, tokenService)
	authMiddleware := &auth.Middleware{
		Tokens: tokenService,
		Repo:   authRepo,
		Roles:  evaluator,
		Logger: logger,
	}

	governor := ratelimit.NewGovernor()
	metrics := observability.NewMetrics(governor.Size)
	authMiddleware.OnVerify = metrics.ObserveAuth
	rbacMiddleware := rbac.Middleware{
		Evaluator:  evaluator,
		Logger:     logger,
		Audit:      auditLogger,
		OnDecision: metrics.ObserveAuthz,
	}
	rateLimiter := &ratelimit.Middleware{
		Governor:   governor,
		Policies:   ratePolicies(cfg),
		AdminRoles: cfg.AdminRoles,
		Enabled:    cfg.RateLimitEnabled,
		Logger:     logger,
		OnDecision: metrics.ObserveRateLimit,
	}

	// Governor state is in-process; prune idle callers in the background.
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				governor.Sweep(2 * time.Hour)
			}
		}
	}()

	authHandler := auth.NewHandler(logger, authService, evaluator, auditLogger, authMiddleware, rateLimiter)

	usersRepo := users.NewRepository(dbpool)
	usersService := users.NewService(usersRepo, hasher, tokenService, graph, users.PasswordPolicy{
		MinLength:      cfg.PasswordMinLength,
		RequireUpper:   cfg.PasswordRequireUpper,
		RequireLower:   cfg.PasswordRequireLower,
		RequireNumber:  cfg.PasswordRequireNumber,
		RequireSpecial: cfg.PasswordRequireSpecial,
	}, cfg.DefaultRole, logger)
	usersHandler := users.NewHandler(logger, usersService, rbacService, rbacMiddleware, auditLogger)

	rolesHandler := rbac.NewRolesHandler(logger, rbacService, rbacMiddleware)
	permissionsHandler := rbac.NewPermissionsHandler(logger, rbacService, rbacMiddleware)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		AuthHandler:        authHandler,
		AuthMiddleware:     authMiddleware,
		UsersHandler:       usersHandler,
		RolesHandler:       rolesHandler,
		PermissionsHandler: permissionsHandler,
		RBACMiddleware:     rbacMiddleware,
		RateLimiter:        rateLimiter,
		JobHandler:         jobHandler,
		Pool:               dbpool,
		Metrics:            metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
