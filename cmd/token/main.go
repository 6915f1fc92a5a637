// Command token prints a connection token for the websocket endpoint.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/Rrens/chat-gateway/internal/config"
	"github.com/Rrens/chat-gateway/internal/security"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	clientID := flag.String("client", "", "client id embedded in the token (random when empty)")
	ttl := flag.Duration("ttl", 0, "token lifetime (defaults to auth.token_ttl)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if cfg.Auth.JWTSecret == "" {
		fmt.Fprintln(os.Stderr, "JWT_SECRET is not set; the gateway accepts unauthenticated connections")
		os.Exit(1)
	}

	lifetime := cfg.Auth.TokenTTL
	if *ttl > 0 {
		lifetime = *ttl
	}
	id := *clientID
	if id == "" {
		id = uuid.NewString()
	}

	token, expiresAt, err := security.NewJWTManager(cfg.Auth.JWTSecret, lifetime).GenerateConnectionToken(id)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to issue token: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(token)
	fmt.Fprintf(os.Stderr, "client %s, expires %s\n", id, expiresAt.Format(time.RFC3339))
}
