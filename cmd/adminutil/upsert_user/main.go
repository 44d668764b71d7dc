package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/sudo-init-do/gigmarket/internal/config"
	"github.com/sudo-init-do/gigmarket/internal/db"
	"github.com/sudo-init-do/gigmarket/internal/user"
	"github.com/sudo-init-do/gigmarket/internal/utils"
)

func main() {
	id := flag.String("id", "", "User id as carried in the JWT")
	name := flag.String("name", "", "Display name shown in inboxes")
	email := flag.String("email", "", "Address used for email notifications")
	photo := flag.String("photo", "", "Optional photo URL")
	flag.Parse()

	if *id == "" || *name == "" {
		log.Fatalf("usage: go run ./cmd/adminutil/upsert_user -id u_123 -name \"Ana\" [-email ana@example.com] [-photo url]")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.Open(ctx, cfg.DatabaseURL())
	if err != nil {
		log.Fatal(err)
	}
	defer pool.Close()
	if err := db.EnsureSchema(ctx, pool); err != nil {
		log.Fatal(err)
	}

	req := user.UpdateRequest{Name: *name, Email: *email, PhotoURL: *photo}
	req.Normalize()
	if err := utils.ValidateStruct(req); err != nil {
		log.Fatalf("invalid profile: %s", utils.ValidationMessage(err))
	}
	if _, err := user.NewPgStore(pool).Upsert(ctx, *id, req); err != nil {
		log.Fatalf("failed to upsert user: %v", err)
	}
	fmt.Printf("User %s saved.\n", *id)
}
