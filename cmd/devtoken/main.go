// Command devtoken mints a local bearer token for a user id and prints the
// account as the API would resolve it. Intended for development only.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"github.com/formaai/ledger-api/internal/config"
	"github.com/formaai/ledger-api/internal/domain/auth"
	"github.com/formaai/ledger-api/internal/domain/user"
	"github.com/formaai/ledger-api/internal/pkg/database"
	"github.com/formaai/ledger-api/internal/pkg/jwt"
)

func main() {
	userID := flag.String("user", "dev-user", "user id (token subject)")
	email := flag.String("email", "dev@example.com", "email claim")
	makeAdmin := flag.Bool("admin", false, "grant the admin role before minting")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	if cfg.IsProduction() {
		log.Fatal("devtoken refuses to run with ENV=production")
	}

	db, err := database.NewPostgres(context.Background(), database.PostgresConfig{URL: cfg.DatabaseURL})
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.ClosePostgres(db)

	ctx := context.Background()
	users := user.NewRepository(db)
	jwtService := jwt.NewService(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAccessTTL)

	token, err := jwtService.GenerateAccessToken(*userID, *email, "")
	if err != nil {
		log.Fatalf("Failed to sign token: %v", err)
	}

	id, err := auth.NewResolver(jwtService, users).Resolve(ctx, token)
	if err != nil {
		log.Fatalf("Token does not resolve: %v", err)
	}

	if *makeAdmin && !id.IsAdmin() {
		if _, err := users.UpdateRole(ctx, id.UserID, user.RoleAdmin); err != nil {
			log.Fatalf("Failed to grant admin: %v", err)
		}
		id.Role = user.RoleAdmin
	}

	u, err := users.GetByID(ctx, id.UserID)
	if err != nil || u == nil {
		log.Fatalf("Failed to load user %s: %v", id.UserID, err)
	}

	fmt.Printf("user:      %s (%s)\n", u.ID, u.Email)
	fmt.Printf("role:      %s\n", u.Role)
	fmt.Printf("balance:   %d\n", u.CreditBalance)
	fmt.Printf("suspended: %v\n", u.IsSuspended)
	fmt.Printf("expires:   %s\n", jwtService.GetAccessTTL())
	fmt.Println()
	fmt.Printf("Authorization: Bearer %s\n", token)
}
