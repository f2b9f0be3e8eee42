package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"graph-identity/backend/internal/graph"
	"graph-identity/backend/internal/identity"
	"graph-identity/backend/pkg/config"
	apperrors "graph-identity/backend/pkg/errors"
	"graph-identity/backend/pkg/logger"
)

// Seeds the graph with uniqueness constraints and an initial administrator.
//
//	go run ./backend/scripts -user admin -email admin@example.com -role admin
//
// The password comes from -password or SEED_ADMIN_PASSWORD.
func main() {
	userName := flag.String("user", "admin", "User name of the principal to create")
	email := flag.String("email", "admin@example.com", "Email of the principal to create")
	password := flag.String("password", os.Getenv("SEED_ADMIN_PASSWORD"), "Password of the principal to create")
	role := flag.String("role", "admin", "Role to grant; empty grants none")
	flag.Parse()

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
	log.Info("Starting database seeding...")

	if *password == "" {
		log.Fatal("A password is required (-password or SEED_ADMIN_PASSWORD)")
	}

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

	// Verify connection
	ctx := context.Background()
	if err := exec.VerifyConnectivity(ctx); err != nil {
		log.Fatal("Failed to verify Neo4j connectivity", zap.Error(err))
	}

	store, err := graph.NewStore(exec, graph.Options{
		Labels: graph.Labels{
			Principal:     cfg.PrincipalLabel,
			Role:          cfg.RoleLabel,
			ExternalLogin: cfg.ExternalLoginLabel,
		},
	})
	if err != nil {
		log.Fatal("Failed to create store", zap.Error(err))
	}

	log.Info("Creating constraints...")
	if err := store.EnsureConstraints(ctx); err != nil {
		log.Fatal("Failed to create constraints", zap.Error(err))
	}

	manager := identity.NewManager(store,
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
	)

	p := identity.NewPrincipal(*userName, *email)
	err = manager.Create(ctx, p, *password)
	switch {
	case errors.Is(err, apperrors.ErrAlreadyExists):
		log.Info("Principal already exists, skipping creation", zap.String("user_name", *userName))
		p, err = existingPrincipal(ctx, store, err, *userName, *email)
		if err != nil {
			log.Fatal("Failed to load existing principal", zap.Error(err))
		}
	case err != nil:
		log.Fatal("Failed to create principal", zap.Error(err))
	}

	if *role != "" {
		if err := store.AddRole(ctx, p, *role); err != nil {
			log.Fatal("Failed to grant role", zap.Error(err))
		}
	}

	log.Info("Seeding complete",
		zap.String("principal_id", p.ID),
		zap.String("role", *role),
	)
}

// existingPrincipal loads the principal that made Create report a
// duplicate, looking it up by whichever key collided.
func existingPrincipal(ctx context.Context, store identity.UserStore, createErr error, userName, email string) (*identity.Principal, error) {
	var dup *apperrors.ErrDuplicate
	if errors.As(createErr, &dup) && dup.Field == "email" {
		return store.FindByEmail(ctx, email)
	}
	return store.FindByUserName(ctx, userName)
}
