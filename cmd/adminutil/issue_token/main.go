package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/sudo-init-do/gigmarket/internal/config"
	"github.com/sudo-init-do/gigmarket/internal/utils"
)

// Issues a bearer token for local testing. Real tokens come from the auth
// service sharing JWT_SECRET.
func main() {
	id := flag.String("id", "", "User id to put in the token")
	ttl := flag.Duration("ttl", 24*time.Hour, "Token lifetime")
	flag.Parse()

	if *id == "" {
		log.Fatalf("usage: go run ./cmd/adminutil/issue_token -id u_123 [-ttl 1h]")
	}
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.JWTSecret == "" {
		log.Fatalf("JWT_SECRET is not set")
	}
	tok, err := utils.IssueToken(*id, []byte(cfg.JWTSecret), *ttl)
	if err != nil {
		log.Fatalf("issue token: %v", err)
	}
	fmt.Println(tok)
}
