// Command token-generator issues an operator API token from the configured
// signing secret. Run it on the host that holds the server configuration
// and hand the printed token to the operator.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"github.com/phrazzld/reelgen/internal/config"
	"github.com/phrazzld/reelgen/internal/service/auth"
)

func main() {
	operator := flag.String("operator", "", "operator name to embed in the token")
	flag.Parse()

	if *operator == "" {
		log.Fatal("usage: token-generator -operator <name>")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	jwtService, err := auth.NewJWTService(cfg.Auth)
	if err != nil {
		log.Fatalf("failed to create JWT service: %v", err)
	}

	token, err := jwtService.GenerateToken(context.Background(), *operator)
	if err != nil {
		log.Fatalf("failed to generate token: %v", err)
	}

	fmt.Printf("Operator: %s\nLifetime: %d minutes\nToken: %s\n",
		*operator, cfg.Auth.TokenLifetimeMinutes, token)
}
