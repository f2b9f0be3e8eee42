package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"graph-identity/backend/internal/api"
	"graph-identity/backend/internal/graph"
	"graph-identity/backend/internal/identity"
	"graph-identity/backend/pkg/config"
	"graph-identity/backend/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	if err := logger.Init(cfg.Env, cfg.LogLevel); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	log := logger.Get()
	log.Info("Starting identity server...")

	// Initialize Neo4j driver
	driver, err := neo4j.NewDriverWithContext(
		cfg.Neo4jURI,
		neo4j.BasicAuth(cfg.Neo4jUser, cfg.Neo4jPassword, ""),
	)
	if err != nil {
		log.Fatal("Failed to create Neo4j driver", zap.Error(err))
	}
	exec := graph.NewNeo4jExecutor(driver, cfg.Neo4jDatabase)
	defer exec.Close(context.Background())

	// Verify Neo4j connection
	ctx := context.Background()
	if err := exec.VerifyConnectivity(ctx); err != nil {
		log.Fatal("Failed to verify Neo4j connectivity", zap.Error(err))
	}

	manager, err := newManager(ctx, cfg, exec)
	if err != nil {
		log.Fatal("Failed to initialize identity store", zap.Error(err))
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := newRouter(manager, log)

	// Start server
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	// Graceful shutdown
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	log.Info("Server started",
		zap.String("port", cfg.Port),
		zap.Bool("extended_operations", cfg.ExtendedOperations),
	)

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited")
}

// newManager builds the graph store and account manager from configuration
func newManager(ctx context.Context, cfg *config.Config, exec graph.Executor) (*identity.Manager, error) {
	store, err := graph.NewStore(exec, graph.Options{
		Labels: graph.Labels{
			Principal:     cfg.PrincipalLabel,
			Role:          cfg.RoleLabel,
			ExternalLogin: cfg.ExternalLoginLabel,
		},
		ExtendedOperations: cfg.ExtendedOperations,
	})
	if err != nil {
		return nil, err
	}

	if cfg.EnsureConstraints {
		if err := store.EnsureConstraints(ctx); err != nil {
			return nil, err
		}
	}

	return identity.NewManager(store,
		identity.PasswordPolicy{
			MinLength:              cfg.Password.MinLength,
			RequireDigit:           cfg.Password.RequireDigit,
			RequireLowercase:       cfg.Password.RequireLowercase,
			RequireUppercase:       cfg.Password.RequireUppercase,
			RequireNonAlphanumeric: cfg.Password.RequireNonAlphanumeric,
		},
		identity.LockoutPolicy{
			EnabledByDefault:  cfg.Lockout.EnabledByDefault,
			Duration:          cfg.Lockout.Duration,
			MaxFailedAttempts: cfg.Lockout.MaxFailedAttempts,
		},
	), nil
}

func newRouter(manager *identity.Manager, log *zap.Logger) *gin.Engine {
	router := gin.New()
	router.Use(api.RequestLogger(log))
	router.Use(gin.Recovery())
	router.Use(api.CORS())

	api.NewHandler(manager).Register(router)
	return router
}
